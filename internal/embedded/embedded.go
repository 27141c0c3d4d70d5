// Package embedded extracts the documents embedded in a container document.
//
// Two strategies talk to the runtime. List walks a foreign list of document
// objects one accessor at a time. Packed asks the runtime to serialize every
// document into a single packed buffer and decodes it in one pass. A third
// strategy, Unsupported, is selected for builds without embedded support.
package embedded

import (
	"context"
	"time"

	"github.com/docbridge/docbridge/internal/connection"
	"github.com/docbridge/docbridge/internal/foreign"
	"github.com/docbridge/docbridge/internal/marshal"
	"github.com/docbridge/docbridge/internal/unmarshal"
	"github.com/docbridge/docbridge/pkg/errors"
	"github.com/docbridge/docbridge/pkg/types"
	"github.com/docbridge/docbridge/pkg/utils"
)

// Strategy names accepted by Default.
const (
	StrategyOptimized = "optimized"
	StrategyList      = "list"
)

// Source is the container to extract from: a file path or an in-memory
// buffer. Exactly one of the two is set.
type Source struct {
	Path string
	Data []byte
}

// FromPath returns a path source.
func FromPath(path string) Source { return Source{Path: path} }

// FromBytes returns an in-memory source.
func FromBytes(data []byte) Source {
	if data == nil {
		data = []byte{}
	}
	return Source{Data: data}
}

// IsPath reports whether the source is a file path.
func (s Source) IsPath() bool { return s.Path != "" }

func (s Source) validate() error {
	if s.Path != "" && s.Data != nil {
		return errors.NewError(errors.ErrCodeValidationFailed, "source has both a path and a buffer").
			WithComponent("embedded")
	}
	if s.Path == "" && s.Data == nil {
		return errors.NewError(errors.ErrCodeValidationFailed, "source has neither a path nor a buffer").
			WithComponent("embedded")
	}
	return nil
}

func (s Source) size() int64 {
	return int64(len(s.Data))
}

// Extractor returns every embedded document of a source in container order.
type Extractor interface {
	Extract(ctx context.Context, src Source, cfg types.ExtractionConfig) (*types.EmbeddedExtractResult, error)
}

// Options configures the runtime-backed strategies.
type Options struct {
	// Strategy is StrategyOptimized (the default) or StrategyList.
	Strategy string
	// MaxDocuments caps the packed path; 0 means unlimited.
	MaxDocuments int32
	Logger       *utils.StructuredLogger
	Metrics      types.MetricsRecorder
}

func (o Options) logger() *utils.StructuredLogger {
	if o.Logger == nil {
		return utils.NopLogger()
	}
	return o.Logger.WithComponent("embedded")
}

// base carries what both runtime-backed strategies share.
type base struct {
	rt      foreign.Runtime
	logger  *utils.StructuredLogger
	metrics types.MetricsRecorder
}

type decodeFunc func(env foreign.Env, obj foreign.Ref, operation string) (*types.EmbeddedExtractResult, error)

// invoke marshals cfg, dispatches operation with the leading argument and
// any trailing arguments, and decodes the result.
func (b *base) invoke(ctx context.Context, operation string, lead foreign.Value, cfg types.ExtractionConfig,
	decode decodeFunc, trailing ...foreign.Value) (*types.EmbeddedExtractResult, error) {
	start := time.Now()

	var res *types.EmbeddedExtractResult
	err := connection.Do(ctx, b.rt, func(ctx context.Context, h *connection.Handle) error {
		if err := ctx.Err(); err != nil {
			return foreign.Wrap("embedded", operation, err)
		}

		env := h.Env()
		configs, err := marshal.All(env, cfg)
		if err != nil {
			return err
		}

		args := append([]foreign.Value{lead}, configs.Args()...)
		args = append(args, trailing...)
		obj, err := foreign.CallStatic(env, marshal.NativeMainClass, operation, args...)
		if b.metrics != nil {
			b.metrics.RecordForeignCall(operation, err == nil)
		}
		if err != nil {
			return foreign.Wrap("embedded", operation, err)
		}

		res, err = decode(env, obj, operation)
		if err != nil {
			return err
		}

		b.logger.Debug("embedded documents extracted", map[string]interface{}{
			"operation":  operation,
			"attachment": h.ID(),
			"documents":  res.Len(),
			"bytes":      res.TotalSize(),
		})
		return nil
	})

	var size int64
	if res != nil {
		size = int64(res.TotalSize())
	}
	if b.metrics != nil {
		b.metrics.RecordOperation(operation, time.Since(start), size, err == nil)
		if err != nil {
			b.metrics.RecordError(operation, err)
		}
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// List extracts through the document-list operations.
type List struct {
	base
}

// NewList returns the list strategy.
func NewList(rt foreign.Runtime, opts Options) *List {
	return &List{base{rt: rt, logger: opts.logger(), metrics: opts.Metrics}}
}

// Extract implements Extractor.
func (l *List) Extract(ctx context.Context, src Source, cfg types.ExtractionConfig) (*types.EmbeddedExtractResult, error) {
	if err := src.validate(); err != nil {
		return nil, err
	}
	if src.IsPath() {
		return l.invoke(ctx, marshal.OpExtractEmbedded, src.Path, cfg, unmarshal.Embedded)
	}
	return l.invoke(ctx, marshal.OpExtractEmbeddedFromBytes, src.Data, cfg, unmarshal.Embedded)
}

// Packed extracts through the packed-buffer operation. It supports path
// sources only.
type Packed struct {
	base
	maxDocuments int32
}

// NewPacked returns the packed strategy.
func NewPacked(rt foreign.Runtime, opts Options) *Packed {
	return &Packed{
		base:         base{rt: rt, logger: opts.logger(), metrics: opts.Metrics},
		maxDocuments: opts.MaxDocuments,
	}
}

// Extract implements Extractor.
func (p *Packed) Extract(ctx context.Context, src Source, cfg types.ExtractionConfig) (*types.EmbeddedExtractResult, error) {
	if err := src.validate(); err != nil {
		return nil, err
	}
	if !src.IsPath() {
		return nil, errors.NewError(errors.ErrCodeNotImplemented, "packed extraction from an in-memory buffer is not implemented").
			WithComponent("embedded").
			WithOperation(marshal.OpExtractEmbeddedOptimized).
			WithDetail("bytes", src.size())
	}
	return p.invoke(ctx, marshal.OpExtractEmbeddedOptimized, src.Path, cfg, unmarshal.Optimized, p.maxDocuments)
}

// Unsupported rejects every extraction.
type Unsupported struct{}

// Extract implements Extractor.
func (Unsupported) Extract(context.Context, Source, types.ExtractionConfig) (*types.EmbeddedExtractResult, error) {
	return nil, errors.NewError(errors.ErrCodeNotImplemented, "embedded extraction not implemented").
		WithComponent("embedded")
}

func newStrategy(rt foreign.Runtime, opts Options) (Extractor, error) {
	switch opts.Strategy {
	case "", StrategyOptimized:
		return NewPacked(rt, opts), nil
	case StrategyList:
		return NewList(rt, opts), nil
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidConfig, "unknown embedded strategy %q", opts.Strategy).
			WithComponent("embedded").
			WithContext("valid", StrategyOptimized+","+StrategyList)
	}
}
