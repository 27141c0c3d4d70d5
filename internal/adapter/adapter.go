package adapter

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/docbridge/docbridge/internal/config"
	"github.com/docbridge/docbridge/internal/foreign/jsrt"
	"github.com/docbridge/docbridge/internal/metrics"
	"github.com/docbridge/docbridge/internal/sink"
	"github.com/docbridge/docbridge/pkg/errors"
	"github.com/docbridge/docbridge/pkg/extract"
	"github.com/docbridge/docbridge/pkg/types"
	"github.com/docbridge/docbridge/pkg/utils"
)

// Adapter wires the configured runtime, extractor, sink and metrics
// collector together.
type Adapter struct {
	config *config.Configuration

	logger    *utils.StructuredLogger
	runtime   *jsrt.Runtime
	metrics   *metrics.Collector
	extractor *extract.Extractor
	sink      types.DocumentSink

	mu      sync.Mutex
	started bool
}

// Option adjusts an Adapter during New.
type Option func(*options)

type options struct {
	logOutput io.Writer
}

// WithLogOutput sends logs to w instead of stderr. A configured log file
// still takes precedence.
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOutput = w }
}

// New validates cfg and builds every component. Nothing is served until
// Start.
func New(ctx context.Context, cfg *config.Configuration, opts ...Option) (*Adapter, error) {
	if cfg == nil {
		cfg = config.NewDefault()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger, err := newLogger(cfg.Global, o.logOutput)
	if err != nil {
		return nil, err
	}

	a := &Adapter{config: cfg, logger: logger}
	if err := a.build(ctx); err != nil {
		_ = logger.Close()
		return nil, err
	}
	return a, nil
}

func newLogger(cfg config.GlobalConfig, output io.Writer) (*utils.StructuredLogger, error) {
	level, err := utils.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, err.Error()).WithComponent("adapter")
	}
	format, err := utils.ParseLogFormat(cfg.LogFormat)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, err.Error()).WithComponent("adapter")
	}
	if output == nil {
		output = os.Stderr
	}
	logger, err := utils.NewStructuredLogger(&utils.StructuredLoggerConfig{
		Level:  level,
		Output: output,
		Format: format,
		File:   cfg.LogFile,
	})
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeConfigLoad, "failed to open log output").
			WithComponent("adapter").
			WithCause(err)
	}
	return logger, nil
}

func (a *Adapter) build(ctx context.Context) error {
	cfg := a.config

	maxLength, err := cfg.Extraction.MaxLength()
	if err != nil {
		return err
	}
	bufferSize, err := cfg.Runtime.BufferSize()
	if err != nil {
		return err
	}

	a.metrics, err = metrics.NewCollector(&metrics.Config{
		Enabled:   cfg.Monitoring.Metrics.Enabled,
		Port:      cfg.Monitoring.Metrics.Port,
		Path:      cfg.Monitoring.Metrics.Path,
		Namespace: cfg.Monitoring.Metrics.Namespace,
	}, a.logger)
	if err != nil {
		return err
	}

	rtOpts := []jsrt.Option{jsrt.WithLogger(a.logger), jsrt.WithOCR(cfg.Runtime.OCR)}
	if cfg.Runtime.Bundle != "" {
		rtOpts = append(rtOpts, jsrt.WithBundleFile(cfg.Runtime.Bundle))
	}
	a.runtime, err = jsrt.New(rtOpts...)
	if err != nil {
		return err
	}

	a.extractor, err = extract.New(a.runtime,
		extract.WithConfig(cfg.Extraction.ExtractionConfig),
		extract.WithMaxLength(maxLength),
		extract.WithXMLOutput(cfg.Extraction.XMLOutput),
		extract.WithCharset(cfg.Extraction.Charset),
		extract.WithStrategy(cfg.Embedded.Strategy),
		extract.WithMaxDocuments(int32(cfg.Embedded.MaxDocuments)),
		extract.WithReaderBufferSize(bufferSize),
		extract.WithLogger(a.logger),
		extract.WithMetrics(a.metrics),
	)
	if err != nil {
		return err
	}

	a.sink, err = newSink(ctx, cfg.Sink, a.logger)
	return err
}

// newSink returns the S3 sink when a bucket is configured, the directory
// sink when a directory is, and nil otherwise.
func newSink(ctx context.Context, cfg config.SinkConfig, logger *utils.StructuredLogger) (types.DocumentSink, error) {
	switch {
	case cfg.S3.Enabled():
		s, err := sink.NewS3(ctx, sink.S3Config{
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			ForcePathStyle:  cfg.S3.ForcePathStyle,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UseCargoShip:    cfg.S3.UseCargoShip,
			MaxAttempts:     cfg.S3.MaxAttempts,
		}, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case cfg.Directory != "":
		d, err := sink.NewDirectory(cfg.Directory, logger)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, nil
	}
}

// Start starts the metrics server when metrics are enabled.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return errors.NewError(errors.ErrCodeValidationFailed, "adapter already started").
			WithComponent("adapter").
			WithOperation("start")
	}
	if err := a.metrics.Start(ctx); err != nil {
		return err
	}
	a.started = true

	a.logger.Debug("adapter started", map[string]interface{}{
		"runtime":  a.runtime.Name(),
		"strategy": a.extractor.Strategy(),
		"metrics":  a.config.Monitoring.Metrics.Enabled,
		"sink":     a.sinkName(),
	})
	return nil
}

// Stop stops the metrics server, closes the sink and flushes the log. It
// is safe to call without Start and more than once.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	if a.started {
		if err := a.metrics.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
		a.started = false
	}
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			errs = append(errs, err)
		}
		a.sink = nil
	}
	if len(errs) > 0 {
		a.logger.WithError(errs[0]).Warn("adapter stopped with errors")
		return errs[0]
	}
	a.logger.Debug("adapter stopped")
	return nil
}

// Close releases the log file, if any. Call it after Stop.
func (a *Adapter) Close() error {
	return a.logger.Close()
}

// Extractor returns the configured extractor.
func (a *Adapter) Extractor() *extract.Extractor { return a.extractor }

// Sink returns the configured sink, or nil when none is configured.
func (a *Adapter) Sink() types.DocumentSink {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sink
}

// Logger returns the adapter logger.
func (a *Adapter) Logger() *utils.StructuredLogger { return a.logger }

// Metrics returns the metrics collector.
func (a *Adapter) Metrics() *metrics.Collector { return a.metrics }

// Config returns the validated configuration.
func (a *Adapter) Config() *config.Configuration { return a.config }

func (a *Adapter) sinkName() string {
	switch a.sink.(type) {
	case *sink.S3:
		return "s3"
	case *sink.Directory:
		return "directory"
	default:
		return "none"
	}
}

// ParseS3URI splits s3://bucket/prefix into its bucket and key prefix.
func ParseS3URI(uri string) (bucket, prefix string, err error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse URI: %w", err)
	}

	switch parsed.Scheme {
	case "s3":
		if parsed.Host == "" {
			return "", "", fmt.Errorf("S3 URI must include bucket name")
		}
	default:
		return "", "", fmt.Errorf("unsupported storage scheme: %s (only s3:// supported)", parsed.Scheme)
	}

	return parsed.Host, strings.TrimPrefix(parsed.Path, "/"), nil
}
