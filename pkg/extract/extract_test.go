package extract

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docbridge/docbridge/internal/embedded"
	"github.com/docbridge/docbridge/internal/foreign"
	"github.com/docbridge/docbridge/internal/foreign/foreigntest"
	"github.com/docbridge/docbridge/internal/marshal"
	"github.com/docbridge/docbridge/pkg/errors"
	"github.com/docbridge/docbridge/pkg/packed"
	"github.com/docbridge/docbridge/pkg/types"
)

type recorder struct {
	mu         sync.Mutex
	operations map[string]int
	failures   map[string]int
	calls      map[string]int
	open       int
	closes     int
}

func newRecorder() *recorder {
	return &recorder{
		operations: map[string]int{},
		failures:   map[string]int{},
		calls:      map[string]int{},
	}
}

func (r *recorder) RecordOperation(op string, _ time.Duration, _ int64, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operations[op]++
	if !success {
		r.failures[op]++
	}
}

func (r *recorder) RecordForeignCall(method string, _ bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[method]++
}

func (r *recorder) RecordReaderClose(bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closes++
}

func (r *recorder) UpdateOpenReaders(delta int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open += delta
}

func (r *recorder) RecordError(string, error) {}

func scripted(t *testing.T) *foreigntest.Runtime {
	t.Helper()
	rt := foreigntest.NewRuntime()
	foreigntest.InstallConfigClasses(rt)
	return rt
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	code, ok := errors.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeRuntimeSetup, code)

	_, err = New(scripted(t), WithStrategy("fastest"))
	code, _ = errors.CodeOf(err)
	assert.Equal(t, errors.ErrCodeInvalidConfig, code)

	ex, err := New(scripted(t), WithMaxLength(-7))
	require.NoError(t, err)
	assert.Equal(t, int32(-1), ex.MaxLength())
	assert.Equal(t, embedded.StrategyOptimized, ex.Strategy())
	assert.Equal(t, types.DefaultExtractionConfig(), ex.Config())
}

func TestExtractFileToString_Arguments(t *testing.T) {
	rt := scripted(t)
	rt.DefineStatic(marshal.NativeMainClass, marshal.OpParseFileToString, func(...foreign.Value) (foreign.Value, error) {
		return foreigntest.StringResult("hello", types.Metadata{"Content-Type": {"text/plain"}}), nil
	})
	rec := newRecorder()

	ex, err := New(rt, WithMaxLength(42), WithXMLOutput(true), WithMetrics(rec))
	require.NoError(t, err)

	text, md, err := ex.ExtractFileToString(t.Context(), "/docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Equal(t, "text/plain", md.Get("Content-Type"))

	calls := rt.CallsTo(marshal.OpParseFileToString)
	require.Len(t, calls, 1)
	args := calls[0].Args
	require.Len(t, args, 6)
	assert.Equal(t, "/docs/a.txt", args[0])
	assert.Equal(t, int32(42), args[1])
	assert.Equal(t, marshal.PdfConfigClass, args[2].(foreign.Ref).ForeignClass())
	assert.Equal(t, marshal.OfficeConfigClass, args[3].(foreign.Ref).ForeignClass())
	assert.Equal(t, marshal.OcrConfigClass, args[4].(foreign.Ref).ForeignClass())
	assert.Equal(t, true, args[5])

	assert.Equal(t, 1, rec.operations[marshal.OpParseFileToString])
	assert.Equal(t, 1, rec.calls[marshal.OpParseFileToString])
	assert.Zero(t, rt.Attached())
}

func TestExtractBytesToString_Failure(t *testing.T) {
	rt := scripted(t)
	msg := "Unsupported format"
	rt.DefineStatic(marshal.NativeMainClass, marshal.OpParseBytesToString, func(...foreign.Value) (foreign.Value, error) {
		return foreigntest.FailedStringResult(2, &msg), nil
	})
	rec := newRecorder()

	ex, err := New(rt, WithMetrics(rec))
	require.NoError(t, err)

	_, _, err = ex.ExtractBytesToString(t.Context(), []byte("x"))
	assert.True(t, errors.IsParse(err), "got %v", err)
	assert.Contains(t, err.Error(), msg)
	assert.Equal(t, 1, rec.failures[marshal.OpParseBytesToString])
}

func TestDetect(t *testing.T) {
	rt := scripted(t)
	rt.DefineStatic(marshal.NativeMainClass, marshal.OpDetect, func(args ...foreign.Value) (foreign.Value, error) {
		return foreigntest.StringResult("application/pdf", nil), nil
	})

	ex, err := New(rt)
	require.NoError(t, err)

	mime, err := ex.Detect(t.Context(), "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", mime)
	assert.Equal(t, []foreign.Value{"a.pdf"}, rt.CallsTo(marshal.OpDetect)[0].Args)

	_, err = ex.Detect(t.Context(), "")
	code, _ := errors.CodeOf(err)
	assert.Equal(t, errors.ErrCodeValidationFailed, code)
}

func TestExtractFile_Reader(t *testing.T) {
	rt := scripted(t)
	reader := foreigntest.NewReader([]byte("streamed text"), 4)
	rt.DefineStatic(marshal.NativeMainClass, marshal.OpParseFile, func(...foreign.Value) (foreign.Value, error) {
		return foreigntest.ReaderResult(reader, types.Metadata{"Content-Type": {"text/plain"}}), nil
	})
	rec := newRecorder()

	ex, err := New(rt, WithCharset("ISO-8859-1"), WithReaderBufferSize(8), WithMetrics(rec))
	require.NoError(t, err)

	r, md, err := ex.ExtractFile(t.Context(), "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "text/plain", md.Get("Content-Type"))
	assert.Equal(t, 8, r.Capacity())

	args := rt.CallsTo(marshal.OpParseFile)[0].Args
	assert.Equal(t, "ISO-8859-1", args[1])
	assert.Equal(t, false, args[5])

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "streamed text", string(got))

	require.NoError(t, r.Close())
	assert.Equal(t, 1, reader.Closes())
	assert.Equal(t, 0, rec.open)
	assert.Equal(t, 1, rec.closes)
	assert.Zero(t, rt.Attached())
}

func TestExtractBytes_Failure(t *testing.T) {
	rt := scripted(t)
	rt.DefineStatic(marshal.NativeMainClass, marshal.OpParseBytes, func(...foreign.Value) (foreign.Value, error) {
		return foreigntest.FailedReaderResult(1, nil), nil
	})

	ex, err := New(rt)
	require.NoError(t, err)

	r, _, err := ex.ExtractBytes(t.Context(), nil)
	assert.Nil(t, r)
	assert.True(t, errors.IsIO(err), "got %v", err)
}

func embeddedDocs() []types.EmbeddedDocument {
	return []types.EmbeddedDocument{
		{ResourceName: "a.png", ContentType: "image/png", Content: []byte("a"), EmbeddedRelationshipID: types.StringPtr("rId1")},
		{ResourceName: "b.pdf", ContentType: "application/pdf", Content: []byte("bb")},
		{ResourceName: "c.txt", ContentType: "text/plain", Content: []byte("ccc")},
	}
}

func TestExtractEmbedded_Strategies(t *testing.T) {
	buf, err := packed.Encode(embeddedDocs())
	require.NoError(t, err)

	rt := scripted(t)
	rt.DefineStatic(marshal.NativeMainClass, marshal.OpExtractEmbeddedOptimized, func(...foreign.Value) (foreign.Value, error) {
		return foreigntest.OptimizedResult(buf, 3), nil
	})
	rt.DefineStatic(marshal.NativeMainClass, marshal.OpExtractEmbedded, func(...foreign.Value) (foreign.Value, error) {
		return foreigntest.EmbeddedResult(embeddedDocs(), nil), nil
	})
	rt.DefineStatic(marshal.NativeMainClass, marshal.OpExtractEmbeddedFromBytes, func(...foreign.Value) (foreign.Value, error) {
		return foreigntest.EmbeddedResult(embeddedDocs(), nil), nil
	})

	optimized, err := New(rt, WithMaxDocuments(5))
	require.NoError(t, err)
	res, err := optimized.ExtractEmbedded(t.Context(), "deck.pptx")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Len())
	args := rt.CallsTo(marshal.OpExtractEmbeddedOptimized)[0].Args
	assert.Equal(t, int32(5), args[len(args)-1])

	list, err := New(rt, WithStrategy(embedded.StrategyList))
	require.NoError(t, err)
	res, err = list.ExtractEmbedded(t.Context(), "deck.pptx")
	require.NoError(t, err)
	assert.Equal(t, "rId1", res.Documents[0].RelationshipID())

	res, err = optimized.ExtractEmbeddedFromBytes(t.Context(), []byte("PK"))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Len())
	assert.Len(t, rt.CallsTo(marshal.OpExtractEmbeddedFromBytes), 1)
}

func TestStreamEmbedded(t *testing.T) {
	buf, err := packed.Encode(embeddedDocs())
	require.NoError(t, err)

	rt := scripted(t)
	rt.DefineStatic(marshal.NativeMainClass, marshal.OpExtractEmbeddedOptimized, func(...foreign.Value) (foreign.Value, error) {
		return foreigntest.OptimizedResult(buf, 3), nil
	})

	ex, err := New(rt)
	require.NoError(t, err)

	var sizes []int
	err = ex.StreamEmbedded(t.Context(), FromPath("deck.pptx"), 2, func(batch []types.EmbeddedDocument) (bool, error) {
		sizes = append(sizes, len(batch))
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1}, sizes)
}

func TestCanceledContext(t *testing.T) {
	rt := scripted(t)
	rt.DefineStatic(marshal.NativeMainClass, marshal.OpDetect, func(...foreign.Value) (foreign.Value, error) {
		return foreigntest.StringResult("text/plain", nil), nil
	})

	ex, err := New(rt)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = ex.Detect(ctx, "a.txt")
	require.Error(t, err)
	assert.Empty(t, rt.CallsTo(marshal.OpDetect))
}

func TestMaxLengthFromBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want int32
	}{
		{0, -1},
		{-5, -1},
		{10 << 20, 10 << 20},
		{1 << 40, 1<<31 - 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaxLengthFromBytes(tt.in), "size %d", tt.in)
	}
}
