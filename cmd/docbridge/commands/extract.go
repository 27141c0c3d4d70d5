package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// defaultMaxLength matches the 10MB cap the CLI has always used.
const defaultMaxLength = "10MB"

type extractOptions struct {
	stream  bool
	text    bool
	charset string
	maxLen  string
}

func newExtractCommand(root *rootOptions) *cobra.Command {
	opts := &extractOptions{}

	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Extract the text of a document",
		Long: `Extract the text of a document and print it. Output is XHTML unless
--text is given. With --stream the text is read incrementally through a
streaming reader in the configured charset instead of being returned whole.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, root, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.stream, "stream", false, "stream the text instead of extracting it whole")
	cmd.Flags().BoolVar(&opts.text, "text", false, "plain text output instead of XHTML")
	cmd.Flags().StringVar(&opts.charset, "charset", "", "charset of streamed text (default UTF-8)")
	cmd.Flags().StringVar(&opts.maxLen, "max-length", defaultMaxLength, "maximum characters returned without --stream (unlimited for none)")
	return cmd
}

func runExtract(cmd *cobra.Command, root *rootOptions, opts *extractOptions, path string) error {
	cfg := root.cfg
	cfg.Extraction.XMLOutput = !opts.text
	cfg.Extraction.MaxStringLength = opts.maxLen
	if opts.charset != "" {
		cfg.Extraction.Charset = opts.charset
	}

	a, stop, err := root.start(cmd)
	if err != nil {
		return err
	}
	defer stop()

	out := cmd.OutOrStdout()
	ex := a.Extractor()

	if opts.stream {
		r, _, err := ex.ExtractFile(cmd.Context(), path)
		if err != nil {
			return err
		}
		defer r.Close()
		if _, err := io.Copy(out, r); err != nil {
			return fmt.Errorf("streaming %s: %w", path, err)
		}
		_, err = fmt.Fprintln(out)
		return err
	}

	text, _, err := ex.ExtractFileToString(cmd.Context(), path)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, strings.TrimRight(text, "\n"))
	return err
}
