package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/docbridge/docbridge/internal/adapter"
	"github.com/docbridge/docbridge/internal/sink"
	"github.com/docbridge/docbridge/pkg/extract"
	"github.com/docbridge/docbridge/pkg/types"
	"github.com/docbridge/docbridge/pkg/utils"
)

type embeddedOptions struct {
	strategy  string
	batchSize int
	outDir    string
	s3URI     string
}

func newEmbeddedCommand(root *rootOptions) *cobra.Command {
	opts := &embeddedOptions{}

	cmd := &cobra.Command{
		Use:   "embedded <file>",
		Short: "List or save the documents embedded in a container",
		Long: `List the documents embedded in a container such as a DOCX, PPTX or PDF.
With --out or --s3 each document is also saved, named after its resource name.
With --batch-size the documents are delivered and saved in batches.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEmbedded(cmd, root, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.strategy, "strategy", "", "extraction strategy (optimized, list)")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "deliver documents in batches of this size")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "", "save documents to this directory")
	cmd.Flags().StringVar(&opts.s3URI, "s3", "", "save documents to s3://bucket/prefix")
	cmd.MarkFlagsMutuallyExclusive("out", "s3")
	return cmd
}

func runEmbedded(cmd *cobra.Command, root *rootOptions, opts *embeddedOptions, path string) error {
	cfg := root.cfg
	if opts.strategy != "" {
		cfg.Embedded.Strategy = opts.strategy
	}
	if opts.batchSize > 0 {
		cfg.Embedded.BatchSize = opts.batchSize
	}
	if opts.outDir != "" {
		cfg.Sink.Directory = opts.outDir
	}
	if opts.s3URI != "" {
		bucket, prefix, err := adapter.ParseS3URI(opts.s3URI)
		if err != nil {
			return err
		}
		cfg.Sink.S3.Bucket = bucket
		cfg.Sink.S3.Prefix = prefix
	}

	a, stop, err := root.start(cmd)
	if err != nil {
		return err
	}
	defer stop()

	out := cmd.OutOrStdout()
	ctx := cmd.Context()
	docSink := a.Sink()

	var (
		count int
		total int64
	)
	handle := func(batch []types.EmbeddedDocument) error {
		for i, doc := range batch {
			printDocument(out, count+i, doc)
			total += int64(doc.Size())
		}
		if docSink != nil {
			if _, err := sink.StoreAll(ctx, docSink, count, batch); err != nil {
				return err
			}
		}
		count += len(batch)
		return nil
	}

	if opts.batchSize > 0 {
		err = a.Extractor().StreamEmbedded(ctx, extract.FromPath(path), opts.batchSize,
			func(batch []types.EmbeddedDocument) (bool, error) {
				return true, handle(batch)
			})
	} else {
		var res *types.EmbeddedExtractResult
		res, err = a.Extractor().ExtractEmbedded(ctx, path)
		if err == nil {
			err = handle(res.Documents)
		}
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "%d embedded documents, %s\n", count, utils.FormatBytes(total))
	return nil
}

func printDocument(w io.Writer, index int, doc types.EmbeddedDocument) {
	fmt.Fprintf(w, "%d\t%s\t%s\t%d", index, displayName(doc), doc.ContentType, doc.Size())
	if id := doc.RelationshipID(); id != "" {
		fmt.Fprintf(w, "\t%s", id)
	}
	fmt.Fprintln(w)
}

func displayName(doc types.EmbeddedDocument) string {
	if doc.ResourceName == "" {
		return "-"
	}
	return doc.ResourceName
}
