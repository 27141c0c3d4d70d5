package embedded

import (
	"context"

	"github.com/docbridge/docbridge/internal/foreign"
	"github.com/docbridge/docbridge/pkg/errors"
	"github.com/docbridge/docbridge/pkg/types"
	"github.com/docbridge/docbridge/pkg/utils"
)

// BatchFunc receives one batch of documents. Returning false stops delivery;
// a non-nil error aborts and is returned from Stream unchanged.
type BatchFunc func(batch []types.EmbeddedDocument) (bool, error)

// Streamer delivers the result of an Extractor in fixed-size batches. The
// extraction itself runs to completion before the first batch is delivered.
type Streamer struct {
	extractor Extractor
	logger    *utils.StructuredLogger
}

// NewStreamer wraps extractor. A nil logger disables logging.
func NewStreamer(extractor Extractor, logger *utils.StructuredLogger) *Streamer {
	if logger == nil {
		logger = utils.NopLogger()
	}
	return &Streamer{extractor: extractor, logger: logger.WithComponent("embedded")}
}

// Stream extracts src and calls fn with consecutive groups of batchSize
// documents in container order. The last group may be shorter. Batches
// share the result's backing array but are capped, so appending to one
// never overwrites the next.
func (s *Streamer) Stream(ctx context.Context, src Source, cfg types.ExtractionConfig, batchSize int, fn BatchFunc) error {
	if batchSize < 1 {
		return errors.Newf(errors.ErrCodeValidationFailed, "batch size must be at least 1, got %d", batchSize).
			WithComponent("embedded").
			WithOperation("stream")
	}
	if fn == nil {
		return errors.NewError(errors.ErrCodeValidationFailed, "nil batch callback").
			WithComponent("embedded").
			WithOperation("stream")
	}

	res, err := s.extractor.Extract(ctx, src, cfg)
	if err != nil {
		return err
	}

	docs := res.Documents
	delivered := 0
	for start := 0; start < len(docs); start += batchSize {
		if err := ctx.Err(); err != nil {
			return foreign.Wrap("embedded", "stream", err)
		}

		end := start + batchSize
		if end > len(docs) {
			end = len(docs)
		}
		more, err := fn(docs[start:end:end])
		if err != nil {
			return err
		}
		delivered++
		if !more {
			s.logger.Debug("batch delivery stopped by callback", map[string]interface{}{
				"batches":   delivered,
				"documents": end,
				"total":     len(docs),
			})
			return nil
		}
	}
	return nil
}
