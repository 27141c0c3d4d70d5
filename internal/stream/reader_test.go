package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docbridge/docbridge/internal/connection"
	"github.com/docbridge/docbridge/internal/foreign"
	"github.com/docbridge/docbridge/internal/foreign/foreigntest"
	bridgeerrors "github.com/docbridge/docbridge/pkg/errors"
)

type recorder struct {
	mu           sync.Mutex
	open         int
	closes       int
	failedCloses int
}

func (r *recorder) RecordOperation(string, time.Duration, int64, bool) {}
func (r *recorder) RecordForeignCall(string, bool)                   {}
func (r *recorder) RecordError(string, error)                        {}

func (r *recorder) RecordReaderClose(failed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closes++
	if failed {
		r.failedCloses++
	}
}

func (r *recorder) UpdateOpenReaders(delta int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open += delta
}

func newReader(t *testing.T, src *foreigntest.Reader, opts ...Option) (*foreigntest.Runtime, *Reader) {
	t.Helper()
	rt := foreigntest.NewRuntime()
	var r *Reader
	err := connection.Do(t.Context(), rt, func(_ context.Context, h *connection.Handle) error {
		var err error
		r, err = New(rt, h.Env(), src.Object, opts...)
		return err
	})
	require.NoError(t, err)
	return rt, r
}

func TestReader_ReadAll(t *testing.T) {
	data := bytes.Repeat([]byte("docbridge "), 10000)
	src := foreigntest.NewReader(data, 4096)
	rt, r := newReader(t, src)
	defer r.Close()

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, 0, rt.Attached(), "every read releases its attachment")
}

func TestReader_EOF(t *testing.T) {
	src := foreigntest.NewReader([]byte("ab"), 0)
	_, r := newReader(t, src)
	defer r.Close()

	p := make([]byte, 8)
	n, err := r.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "ab", string(p[:n]))

	for i := 0; i < 2; i++ {
		n, err = r.Read(p)
		assert.Equal(t, 0, n)
		assert.Equal(t, io.EOF, err)
	}
}

func TestReader_BufferGrowth(t *testing.T) {
	src := foreigntest.NewReader(make([]byte, 300000), 0)
	rt, r := newReader(t, src)
	defer r.Close()

	assert.Equal(t, DefaultBufferSize, r.Capacity())

	_, err := r.Read(make([]byte, 1000))
	require.NoError(t, err)
	assert.Equal(t, []int{DefaultBufferSize}, rt.ArrayAllocations(), "small reads reuse the initial buffer")

	_, err = r.Read(make([]byte, 100000))
	require.NoError(t, err)
	assert.Equal(t, 100000, r.Capacity())

	_, err = r.Read(make([]byte, 50000))
	require.NoError(t, err)
	assert.Equal(t, 100000, r.Capacity(), "capacity never shrinks")

	_, err = r.Read(make([]byte, 100001))
	require.NoError(t, err)

	assert.Equal(t, []int{DefaultBufferSize, 100000, 100001}, rt.ArrayAllocations())
	assert.Equal(t, []int{1000, 100000, 50000, 100001}, src.Requests())
}

func TestReader_ZeroLengthRead(t *testing.T) {
	src := foreigntest.NewReader([]byte("abc"), 0)
	rt, r := newReader(t, src)
	defer r.Close()
	rt.ResetCalls()

	n, err := r.Read(nil)
	assert.Equal(t, 0, n)
	assert.NoError(t, err)
	assert.Empty(t, rt.Calls())
	assert.Equal(t, 1, rt.Attaches(), "no attach for an empty read")
}

func TestReader_CloseOnce(t *testing.T) {
	src := foreigntest.NewReader([]byte("abc"), 0)
	src.CloseErr = errors.New("stream already closed")
	m := &recorder{}
	_, r := newReader(t, src, WithMetrics(m))

	assert.Equal(t, 1, m.open)
	assert.NoError(t, r.Close(), "close failures are swallowed")
	assert.NoError(t, r.Close())
	assert.Equal(t, 1, src.Closes())
	assert.Equal(t, StateClosed, r.State())
	assert.Equal(t, 0, m.open)
	assert.Equal(t, 1, m.closes)
	assert.Equal(t, 1, m.failedCloses)
}

func TestReader_ReadAfterClose(t *testing.T) {
	src := foreigntest.NewReader([]byte("abc"), 0)
	_, r := newReader(t, src)
	require.NoError(t, r.Close())

	_, err := r.Read(make([]byte, 4))
	code, ok := bridgeerrors.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, bridgeerrors.ErrCodeReaderClosed, code)
	assert.Empty(t, src.Requests())
}

func TestReader_States(t *testing.T) {
	src := foreigntest.NewReader([]byte("abc"), 0)
	_, r := newReader(t, src)

	assert.Equal(t, StateOpen, r.State())
	_, err := r.Read(make([]byte, 1))
	require.NoError(t, err)
	assert.Equal(t, StateReading, r.State())
	require.NoError(t, r.Close())
	assert.Equal(t, "closed", r.State().String())
}

func TestReader_ProtocolViolations(t *testing.T) {
	for _, n := range []int32{-2, 9} {
		rt := foreigntest.NewRuntime()
		obj := foreigntest.NewObject("docbridge.ReaderInputStream").
			Returns("read", n).
			Returns("close", nil)

		var r *Reader
		require.NoError(t, connection.Do(t.Context(), rt, func(_ context.Context, h *connection.Handle) error {
			var err error
			r, err = New(rt, h.Env(), obj)
			return err
		}))

		_, err := r.Read(make([]byte, 8))
		code, _ := bridgeerrors.CodeOf(err)
		assert.Equal(t, bridgeerrors.ErrCodeProtocol, code, "read returned %d", n)
		require.NoError(t, r.Close())
	}
}

func TestReader_ForeignReadFailure(t *testing.T) {
	src := foreigntest.NewReader([]byte("abc"), 0)
	src.ReadErr = &foreign.Exception{Class: "IOException", Message: "stream reset"}
	_, r := newReader(t, src)
	defer r.Close()

	_, err := r.Read(make([]byte, 4))
	code, _ := bridgeerrors.CodeOf(err)
	assert.Equal(t, bridgeerrors.ErrCodeForeignException, code)
}

func TestReader_ReadContextJoinsAttachment(t *testing.T) {
	src := foreigntest.NewReader([]byte("abcdef"), 2)
	rt, r := newReader(t, src)
	defer r.Close()

	before := rt.Attaches()
	err := connection.Do(t.Context(), rt, func(ctx context.Context, _ *connection.Handle) error {
		for i := 0; i < 3; i++ {
			if _, err := r.ReadContext(ctx, make([]byte, 2)); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, before+1, rt.Attaches())
}

func TestReader_NullReference(t *testing.T) {
	rt := foreigntest.NewRuntime()
	env, err := rt.Attach(t.Context())
	require.NoError(t, err)
	defer rt.Detach(env)

	_, err = New(rt, env, nil)
	code, _ := bridgeerrors.CodeOf(err)
	assert.Equal(t, bridgeerrors.ErrCodeProtocol, code)
}

func TestReader_AbandonedReaderIsClosed(t *testing.T) {
	src := foreigntest.NewReader([]byte("abc"), 0)
	m := &recorder{}
	func() {
		_, r := newReader(t, src, WithMetrics(m))
		_, _ = r.Read(make([]byte, 1))
	}()

	assert.Eventually(t, func() bool {
		runtime.GC()
		m.mu.Lock()
		defer m.mu.Unlock()
		return src.Closes() == 1 && m.open == 0
	}, 5*time.Second, 10*time.Millisecond)
}
