package types

import (
	"context"
	"time"
)

// MetricsRecorder receives bridge measurements. A nil MetricsRecorder is
// never called; callers check before recording.
type MetricsRecorder interface {
	RecordOperation(operation string, duration time.Duration, size int64, success bool)
	RecordForeignCall(method string, success bool)
	RecordReaderClose(failed bool)
	UpdateOpenReaders(delta int)
	RecordError(operation string, err error)
}

// DocumentSink persists embedded documents. Index is the position of the
// document within its extraction result.
type DocumentSink interface {
	Store(ctx context.Context, index int, doc EmbeddedDocument) error
	Close() error
}
