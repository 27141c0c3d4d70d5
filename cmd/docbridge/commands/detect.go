package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDetectCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "detect <file>...",
		Short: "Print the MIME type of documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, stop, err := root.start(cmd)
			if err != nil {
				return err
			}
			defer stop()

			for _, path := range args {
				mime, err := a.Extractor().Detect(cmd.Context(), path)
				if err != nil {
					return err
				}
				if len(args) == 1 {
					fmt.Fprintln(cmd.OutOrStdout(), mime)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", path, mime)
			}
			return nil
		},
	}
}
