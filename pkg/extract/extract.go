// Package extract is the public entry point of docbridge.
//
// An Extractor binds a foreign runtime to one extraction configuration and
// exposes the parser surface as Go calls: MIME detection, whole-document
// text, streaming text and embedded document extraction.
//
//	rt, err := jsrt.New()
//	...
//	ex, err := extract.New(rt, extract.WithXMLOutput(true))
//	text, md, err := ex.ExtractFileToString(ctx, "report.docx")
package extract

import (
	"context"
	"math"
	"time"

	"github.com/docbridge/docbridge/internal/connection"
	"github.com/docbridge/docbridge/internal/embedded"
	"github.com/docbridge/docbridge/internal/foreign"
	"github.com/docbridge/docbridge/internal/marshal"
	"github.com/docbridge/docbridge/internal/stream"
	"github.com/docbridge/docbridge/internal/unmarshal"
	"github.com/docbridge/docbridge/pkg/errors"
	"github.com/docbridge/docbridge/pkg/types"
	"github.com/docbridge/docbridge/pkg/utils"
)

// Defaults applied by New.
const (
	DefaultMaxLength int32 = 100000
	DefaultCharset         = "UTF-8"
)

// Source is the container an embedded extraction reads from.
type Source = embedded.Source

// BatchFunc receives one batch of embedded documents from StreamEmbedded.
type BatchFunc = embedded.BatchFunc

// Reader streams extracted text. Close it when done.
type Reader = stream.Reader

// FromPath returns a file source.
func FromPath(path string) Source { return embedded.FromPath(path) }

// FromBytes returns an in-memory source.
func FromBytes(data []byte) Source { return embedded.FromBytes(data) }

// Option configures an Extractor.
type Option func(*Extractor)

// WithConfig sets the PDF, Office and OCR configuration.
func WithConfig(cfg types.ExtractionConfig) Option {
	return func(e *Extractor) { e.cfg = cfg }
}

// WithMaxLength caps string results at n characters. A negative n means
// unlimited.
func WithMaxLength(n int32) Option {
	return func(e *Extractor) {
		if n < 0 {
			n = -1
		}
		e.maxLength = n
	}
}

// WithXMLOutput selects XHTML output instead of plain text.
func WithXMLOutput(xml bool) Option {
	return func(e *Extractor) { e.xml = xml }
}

// WithCharset sets the charset of streamed text.
func WithCharset(charset string) Option {
	return func(e *Extractor) { e.charset = charset }
}

// WithStrategy selects the embedded extraction strategy by name.
func WithStrategy(name string) Option {
	return func(e *Extractor) { e.strategy = name }
}

// WithMaxDocuments caps optimized embedded extraction; 0 means unlimited.
func WithMaxDocuments(n int32) Option {
	return func(e *Extractor) { e.maxDocuments = n }
}

// WithReaderBufferSize sets the initial scratch size of streaming readers.
func WithReaderBufferSize(size int) Option {
	return func(e *Extractor) { e.bufferSize = size }
}

// WithLogger sets the logger.
func WithLogger(logger *utils.StructuredLogger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m types.MetricsRecorder) Option {
	return func(e *Extractor) { e.metrics = m }
}

// Extractor runs extractions against one foreign runtime. It is safe for
// concurrent use; the runtime serializes the foreign calls.
type Extractor struct {
	rt foreign.Runtime

	cfg          types.ExtractionConfig
	maxLength    int32
	xml          bool
	charset      string
	strategy     string
	maxDocuments int32
	bufferSize   int

	logger  *utils.StructuredLogger
	metrics types.MetricsRecorder

	embedded embedded.Extractor
	list     embedded.Extractor
	streamer *embedded.Streamer
}

// New returns an Extractor for rt. The strategy name is validated here.
func New(rt foreign.Runtime, opts ...Option) (*Extractor, error) {
	if rt == nil {
		return nil, errors.NewError(errors.ErrCodeRuntimeSetup, "no foreign runtime configured").
			WithComponent("extract").
			WithOperation("new")
	}

	e := &Extractor{
		rt:         rt,
		cfg:        types.DefaultExtractionConfig(),
		maxLength:  DefaultMaxLength,
		charset:    DefaultCharset,
		strategy:   embedded.StrategyOptimized,
		bufferSize: stream.DefaultBufferSize,
		logger:     utils.NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithComponent("extract")

	eopts := embedded.Options{
		Strategy:     e.strategy,
		MaxDocuments: e.maxDocuments,
		Logger:       e.logger,
		Metrics:      e.metrics,
	}
	ex, err := embedded.Default(rt, eopts)
	if err != nil {
		return nil, err
	}
	e.embedded = ex
	e.streamer = embedded.NewStreamer(ex, e.logger)

	// The packed operation takes paths only; buffers go through the list
	// operation whatever the configured strategy.
	e.list = ex
	if embedded.Enabled {
		eopts.Strategy = embedded.StrategyList
		if e.list, err = embedded.Default(rt, eopts); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Config returns the extraction configuration.
func (e *Extractor) Config() types.ExtractionConfig { return e.cfg }

// MaxLength returns the string result cap, or -1 for unlimited.
func (e *Extractor) MaxLength() int32 { return e.maxLength }

// Strategy returns the embedded strategy name.
func (e *Extractor) Strategy() string { return e.strategy }

// invoke dispatches a static parser operation inside an attachment and
// hands the result to decode. size reports the bytes produced for metrics.
func (e *Extractor) invoke(ctx context.Context, operation string, args []foreign.Value, withConfig bool,
	decode func(env foreign.Env, obj foreign.Ref) (int64, error), trailing ...foreign.Value) error {
	start := time.Now()
	var size int64

	err := connection.Do(ctx, e.rt, func(ctx context.Context, h *connection.Handle) error {
		if err := ctx.Err(); err != nil {
			return foreign.Wrap("extract", operation, err)
		}
		env := h.Env()

		if withConfig {
			configs, err := marshal.All(env, e.cfg)
			if err != nil {
				return err
			}
			args = append(args, configs.Args()...)
		}
		args = append(args, trailing...)

		obj, err := foreign.CallStatic(env, marshal.NativeMainClass, operation, args...)
		if e.metrics != nil {
			e.metrics.RecordForeignCall(operation, err == nil)
		}
		if err != nil {
			return foreign.Wrap("extract", operation, err)
		}

		size, err = decode(env, obj)
		if err != nil {
			return err
		}
		e.logger.Debug("operation completed", map[string]interface{}{
			"operation":  operation,
			"attachment": h.ID(),
			"bytes":      size,
		})
		return nil
	})

	if e.metrics != nil {
		e.metrics.RecordOperation(operation, time.Since(start), size, err == nil)
		if err != nil {
			e.metrics.RecordError(operation, err)
		}
	}
	return err
}

// Detect returns the MIME type of the file at path.
func (e *Extractor) Detect(ctx context.Context, path string) (string, error) {
	if err := validatePath(marshal.OpDetect, path); err != nil {
		return "", err
	}
	var mime string
	err := e.invoke(ctx, marshal.OpDetect, []foreign.Value{path}, false,
		func(env foreign.Env, obj foreign.Ref) (int64, error) {
			var err error
			mime, _, err = unmarshal.String(env, obj, marshal.OpDetect)
			return int64(len(mime)), err
		})
	if err != nil {
		return "", err
	}
	return mime, nil
}

// ExtractFileToString returns the text of the file at path, truncated to the
// configured maximum length, and its metadata.
func (e *Extractor) ExtractFileToString(ctx context.Context, path string) (string, types.Metadata, error) {
	if err := validatePath(marshal.OpParseFileToString, path); err != nil {
		return "", nil, err
	}
	return e.toString(ctx, marshal.OpParseFileToString, path)
}

// ExtractBytesToString is ExtractFileToString for an in-memory document.
func (e *Extractor) ExtractBytesToString(ctx context.Context, data []byte) (string, types.Metadata, error) {
	if data == nil {
		data = []byte{}
	}
	return e.toString(ctx, marshal.OpParseBytesToString, data)
}

func (e *Extractor) toString(ctx context.Context, operation string, lead foreign.Value) (string, types.Metadata, error) {
	var (
		content string
		md      types.Metadata
	)
	err := e.invoke(ctx, operation, []foreign.Value{lead, e.maxLength}, true,
		func(env foreign.Env, obj foreign.Ref) (int64, error) {
			var err error
			content, md, err = unmarshal.String(env, obj, operation)
			return int64(len(content)), err
		}, e.xml)
	if err != nil {
		return "", nil, err
	}
	return content, md, nil
}

// ExtractFile returns a reader over the text of the file at path, encoded in
// the configured charset, and the document metadata. The caller must close
// the reader.
func (e *Extractor) ExtractFile(ctx context.Context, path string) (*Reader, types.Metadata, error) {
	if err := validatePath(marshal.OpParseFile, path); err != nil {
		return nil, nil, err
	}
	return e.toReader(ctx, marshal.OpParseFile, path)
}

// ExtractBytes is ExtractFile for an in-memory document.
func (e *Extractor) ExtractBytes(ctx context.Context, data []byte) (*Reader, types.Metadata, error) {
	if data == nil {
		data = []byte{}
	}
	return e.toReader(ctx, marshal.OpParseBytes, data)
}

func (e *Extractor) toReader(ctx context.Context, operation string, lead foreign.Value) (*Reader, types.Metadata, error) {
	var (
		reader *Reader
		md     types.Metadata
	)
	err := e.invoke(ctx, operation, []foreign.Value{lead, e.charset}, true,
		func(env foreign.Env, obj foreign.Ref) (int64, error) {
			ref, meta, err := unmarshal.Reader(env, obj, operation)
			if err != nil {
				return 0, err
			}
			reader, err = stream.New(e.rt, env, ref,
				stream.WithBufferSize(e.bufferSize),
				stream.WithLogger(e.logger),
				stream.WithMetrics(e.metrics),
			)
			if err != nil {
				_ = foreign.CallVoid(env, ref, "close")
				return 0, err
			}
			md = meta
			return 0, nil
		}, e.xml)
	if err != nil {
		return nil, nil, err
	}
	return reader, md, nil
}

// ExtractEmbedded returns the documents embedded in the file at path, using
// the configured strategy.
func (e *Extractor) ExtractEmbedded(ctx context.Context, path string) (*types.EmbeddedExtractResult, error) {
	if err := validatePath(marshal.OpExtractEmbedded, path); err != nil {
		return nil, err
	}
	return e.embedded.Extract(ctx, embedded.FromPath(path), e.cfg)
}

// ExtractEmbeddedFromBytes returns the documents embedded in an in-memory
// container.
func (e *Extractor) ExtractEmbeddedFromBytes(ctx context.Context, data []byte) (*types.EmbeddedExtractResult, error) {
	return e.list.Extract(ctx, embedded.FromBytes(data), e.cfg)
}

// StreamEmbedded extracts the documents embedded in src and delivers them to
// fn in groups of batchSize.
func (e *Extractor) StreamEmbedded(ctx context.Context, src Source, batchSize int, fn BatchFunc) error {
	if !src.IsPath() && embedded.Enabled {
		return embedded.NewStreamer(e.list, e.logger).Stream(ctx, src, e.cfg, batchSize, fn)
	}
	return e.streamer.Stream(ctx, src, e.cfg, batchSize, fn)
}

func validatePath(operation, path string) error {
	if path == "" {
		return errors.NewError(errors.ErrCodeValidationFailed, "empty path").
			WithComponent("extract").
			WithOperation(operation)
	}
	return nil
}

// MaxLengthFromBytes converts a byte size into a string cap, clamped to the
// foreign int range. Zero or negative sizes mean unlimited.
func MaxLengthFromBytes(size int64) int32 {
	switch {
	case size <= 0:
		return -1
	case size > math.MaxInt32:
		return math.MaxInt32
	default:
		return int32(size)
	}
}
