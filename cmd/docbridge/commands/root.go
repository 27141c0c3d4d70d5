package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docbridge/docbridge/internal/adapter"
	"github.com/docbridge/docbridge/internal/config"
)

// Version is set at build time.
var Version = "dev"

type rootOptions struct {
	cfgFile     string
	envFile     string
	logLevel    string
	logFormat   string
	metricsPort int

	cfg *config.Configuration
}

// NewRootCommand returns the docbridge command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "docbridge",
		Short: "docbridge - document text and embedded content extraction",
		Long: `docbridge runs a document parsing runtime in-process and exposes it as
a command line tool: MIME detection, text extraction (plain or XHTML, whole or
streamed) and embedded document extraction to a directory or an S3 bucket.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.cfgFile, "config", "c", "", "config file path (YAML)")
	flags.StringVar(&opts.envFile, "env-file", "", "dotenv file with DOCBRIDGE_* settings (default ./.env)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (DEBUG, INFO, WARN, ERROR)")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format (text, json)")
	flags.IntVar(&opts.metricsPort, "metrics-port", 0, "serve Prometheus metrics on this port while the command runs")

	cmd.AddCommand(
		newExtractCommand(opts),
		newDetectCommand(opts),
		newEmbeddedCommand(opts),
	)
	return cmd
}

// load builds the configuration: defaults, then the config file, then the
// environment, then flags.
func (o *rootOptions) load(cmd *cobra.Command) error {
	cfg := config.NewDefault()
	if o.cfgFile != "" {
		if err := cfg.LoadFromFile(o.cfgFile); err != nil {
			return err
		}
	}

	var envFiles []string
	if o.envFile != "" {
		envFiles = append(envFiles, o.envFile)
	}
	if err := cfg.LoadFromEnv(envFiles...); err != nil {
		return err
	}

	if o.logLevel != "" {
		cfg.Global.LogLevel = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Global.LogFormat = o.logFormat
	}
	if cmd.Flags().Changed("metrics-port") {
		cfg.Monitoring.Metrics.Enabled = o.metricsPort > 0
		cfg.Monitoring.Metrics.Port = o.metricsPort
	}

	o.cfg = cfg
	return nil
}

// start validates the configuration, builds an adapter and starts it. The
// returned stop function shuts it down.
func (o *rootOptions) start(cmd *cobra.Command) (*adapter.Adapter, func(), error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := adapter.New(ctx, o.cfg, adapter.WithLogOutput(cmd.ErrOrStderr()))
	if err != nil {
		return nil, nil, err
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Close()
		return nil, nil, err
	}
	if addr := a.Metrics().Addr(); addr != "" {
		a.Logger().Info(fmt.Sprintf("serving metrics on %s%s", addr, o.cfg.Monitoring.Metrics.Path))
	}

	stop := func() {
		if err := a.Stop(context.Background()); err != nil {
			a.Logger().WithError(err).Warn("shutdown failed")
		}
		_ = a.Close()
	}
	return a, stop, nil
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}
