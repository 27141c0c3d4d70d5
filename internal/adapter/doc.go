/*
Package adapter assembles a docbridge instance from a Configuration.

The adapter owns the lifecycle of every long-lived component:

	┌──────────────────────────────────────────┐
	│            cmd/docbridge (CLI)           │
	└──────────────────────────────────────────┘
	                     │
	┌──────────────────────────────────────────┐
	│              ADAPTER LAYER               │ ← This Package
	│  • logger from global settings           │
	│  • foreign runtime (goja bundle)         │
	│  • extractor with extraction settings    │
	│  • document sink (directory or S3)       │
	│  • metrics collector and HTTP endpoint   │
	└──────────────────────────────────────────┘

# Usage

	cfg := config.NewDefault()
	if err := cfg.LoadFromFile("docbridge.yaml"); err != nil {
		return err
	}

	a, err := adapter.New(ctx, cfg)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	defer a.Close()
	defer a.Stop(context.Background())

	text, md, err := a.Extractor().ExtractFileToString(ctx, "report.pdf")

Start only serves metrics; extraction works as soon as New returns. Stop
closes the sink, so a sink obtained from Sink must not be used afterwards.
*/
package adapter
