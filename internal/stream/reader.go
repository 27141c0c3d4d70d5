// Package stream adapts a foreign incremental reader to io.ReadCloser.
//
// Bytes are pulled through a foreign scratch array that grows to the size of
// the largest request and never shrinks. The foreign reader is closed exactly
// once, either by Close or by a runtime cleanup when the Reader is dropped
// without being closed.
package stream

import (
	"context"
	"io"
	"math"
	"runtime"
	"sync"

	"github.com/google/uuid"

	"github.com/docbridge/docbridge/internal/connection"
	"github.com/docbridge/docbridge/internal/foreign"
	"github.com/docbridge/docbridge/pkg/errors"
	"github.com/docbridge/docbridge/pkg/types"
	"github.com/docbridge/docbridge/pkg/utils"
)

// DefaultBufferSize is the initial size of the foreign scratch array.
const DefaultBufferSize = 32768

// State is the lifecycle position of a Reader.
type State int

const (
	StateOpen State = iota
	StateReading
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateReading:
		return "reading"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Option configures a Reader.
type Option func(*options)

type options struct {
	bufferSize int
	logger     *utils.StructuredLogger
	metrics    types.MetricsRecorder
}

// WithBufferSize sets the initial scratch array size.
func WithBufferSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.bufferSize = size
		}
	}
}

// WithLogger sets the logger used for close diagnostics.
func WithLogger(logger *utils.StructuredLogger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the recorder for open reader and close counts.
func WithMetrics(m types.MetricsRecorder) Option {
	return func(o *options) { o.metrics = m }
}

// Reader pulls bytes from a foreign reader. It is safe for use by one
// goroutine at a time; Close may be called concurrently with Read.
type Reader struct {
	rt  foreign.Runtime
	ref foreign.Ref
	id  string

	mu       sync.Mutex
	state    State
	buf      foreign.Ref
	capacity int
	total    int64

	closer  *closer
	cleanup runtime.Cleanup
	logger  *utils.StructuredLogger
}

// closer owns the foreign close. It holds no reference to the Reader so the
// Reader can become unreachable and trigger the cleanup.
type closer struct {
	once    sync.Once
	rt      foreign.Runtime
	ref     foreign.Ref
	id      string
	logger  *utils.StructuredLogger
	metrics types.MetricsRecorder
}

func (c *closer) close(abandoned bool) {
	c.once.Do(func() {
		err := connection.Do(context.Background(), c.rt, func(_ context.Context, h *connection.Handle) error {
			return foreign.CallVoid(h.Env(), c.ref, "close")
		})
		if err != nil {
			c.logger.WithError(err).Warn("failed to close foreign reader", map[string]interface{}{
				"reader_id": c.id,
				"abandoned": abandoned,
			})
		} else if abandoned {
			c.logger.Debug("closed abandoned foreign reader", map[string]interface{}{"reader_id": c.id})
		}
		if c.metrics != nil {
			c.metrics.RecordReaderClose(err != nil)
			c.metrics.UpdateOpenReaders(-1)
		}
	})
}

// New wraps the foreign reader ref. env must be attached to rt; it is used
// only to allocate the scratch array.
func New(rt foreign.Runtime, env foreign.Env, ref foreign.Ref, opts ...Option) (*Reader, error) {
	o := options{
		bufferSize: DefaultBufferSize,
		logger:     utils.NopLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	if ref == nil {
		return nil, errors.NewError(errors.ErrCodeProtocol, "null foreign reader").
			WithComponent("stream").
			WithOperation("new")
	}

	buf, err := env.NewByteArray(o.bufferSize)
	if err != nil {
		return nil, foreign.Wrap("stream", "new", err)
	}

	id := uuid.NewString()
	logger := o.logger.WithComponent("stream").WithField("reader_id", id)
	r := &Reader{
		rt:       rt,
		ref:      ref,
		id:       id,
		state:    StateOpen,
		buf:      buf,
		capacity: o.bufferSize,
		logger:   logger,
		closer: &closer{
			rt:      rt,
			ref:     ref,
			id:      id,
			logger:  logger,
			metrics: o.metrics,
		},
	}
	r.cleanup = runtime.AddCleanup(r, func(c *closer) { c.close(true) }, r.closer)

	if o.metrics != nil {
		o.metrics.UpdateOpenReaders(1)
	}
	return r, nil
}

// ID identifies the reader in logs.
func (r *Reader) ID() string { return r.id }

// State returns the current lifecycle state.
func (r *Reader) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Capacity returns the current scratch array size.
func (r *Reader) Capacity() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.capacity
}

// Read implements io.Reader. It returns (0, io.EOF) once the foreign reader
// is exhausted.
func (r *Reader) Read(p []byte) (int, error) {
	return r.ReadContext(context.Background(), p)
}

// ReadContext reads like Read, joining any attachment already carried by ctx.
func (r *Reader) ReadContext(ctx context.Context, p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateClosed {
		return 0, errors.NewError(errors.ErrCodeReaderClosed, "read from closed reader").
			WithComponent("stream").
			WithOperation("read").
			WithRequestID(r.id)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if len(p) > math.MaxInt32 {
		p = p[:math.MaxInt32]
	}
	r.state = StateReading

	var n int
	err := connection.Do(ctx, r.rt, func(_ context.Context, h *connection.Handle) error {
		var err error
		n, err = r.fill(h.Env(), p)
		return err
	})
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, io.EOF
	}
	r.total += int64(n)
	return n, nil
}

// fill performs one foreign read into p. It returns -1 at end of stream.
func (r *Reader) fill(env foreign.Env, p []byte) (int, error) {
	if len(p) > r.capacity {
		buf, err := env.NewByteArray(len(p))
		if err != nil {
			return 0, foreign.Wrap("stream", "read", err)
		}
		r.buf = buf
		r.capacity = len(p)
	}

	n, err := foreign.CallInt(env, r.ref, "read", r.buf, int32(0), int32(len(p)))
	if err != nil {
		return 0, foreign.Wrap("stream", "read", err)
	}
	switch {
	case n == -1:
		return -1, nil
	case n < 0 || int(n) > len(p):
		return 0, errors.Newf(errors.ErrCodeProtocol, "foreign read returned %d for a request of %d bytes", n, len(p)).
			WithComponent("stream").
			WithOperation("read").
			WithRequestID(r.id)
	case n == 0:
		return 0, nil
	}

	copied, err := env.CopyByteArray(r.buf, p[:n])
	if err != nil {
		return 0, foreign.Wrap("stream", "read", err)
	}
	if copied != int(n) {
		return 0, errors.Newf(errors.ErrCodeProtocol, "copied %d of %d bytes from foreign buffer", copied, n).
			WithComponent("stream").
			WithOperation("read").
			WithRequestID(r.id)
	}
	return copied, nil
}

// Close closes the foreign reader. Failures are logged and swallowed, so
// Close always returns nil. Closing twice is a no-op.
func (r *Reader) Close() error {
	r.mu.Lock()
	if r.state == StateClosed {
		r.mu.Unlock()
		return nil
	}
	r.state = StateClosed
	total := r.total
	r.mu.Unlock()

	r.cleanup.Stop()
	r.closer.close(false)
	r.logger.Debug("reader closed", map[string]interface{}{"bytes": total})
	return nil
}
