package unmarshal

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docbridge/docbridge/internal/foreign"
	"github.com/docbridge/docbridge/internal/foreign/foreigntest"
	bridgeerrors "github.com/docbridge/docbridge/pkg/errors"
	"github.com/docbridge/docbridge/pkg/packed"
	"github.com/docbridge/docbridge/pkg/types"
)

func attach(t *testing.T) (*foreigntest.Runtime, foreign.Env) {
	t.Helper()
	rt := foreigntest.NewRuntime()
	env, err := rt.Attach(t.Context())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Detach(env) })
	return rt, env
}

func bridgeErr(t *testing.T, err error) *bridgeerrors.BridgeError {
	t.Helper()
	var be *bridgeerrors.BridgeError
	require.ErrorAs(t, err, &be)
	return be
}

func assertNoPayloadCalls(t *testing.T, rt *foreigntest.Runtime, payload ...string) {
	t.Helper()
	for _, m := range payload {
		assert.Empty(t, rt.CallsTo(m), "%s must not be called on a failed result", m)
	}
}

func TestString_Success(t *testing.T) {
	_, env := attach(t)
	md := types.Metadata{"Content-Type": {"application/pdf"}, "dc:creator": {"a", "b"}}

	content, got, err := String(env, foreigntest.StringResult("hello", md), "parseFileToString")
	require.NoError(t, err)
	assert.Equal(t, "hello", content)
	assert.Equal(t, md, got)
}

func TestString_StatusMapping(t *testing.T) {
	for status := 1; status <= 255; status++ {
		_, env := attach(t)
		msg := fmt.Sprintf("failure %d", status)

		_, _, err := String(env, foreigntest.FailedStringResult(int32(int8(status)), &msg), "parseFileToString")
		be := bridgeErr(t, err)
		assert.Equal(t, msg, be.Message)
		assert.Equal(t, uint8(status), be.Status)

		switch status {
		case 1:
			assert.Equal(t, bridgeerrors.ErrCodeIO, be.Code)
			assert.True(t, bridgeerrors.IsIO(err))
		case 2:
			assert.Equal(t, bridgeerrors.ErrCodeParse, be.Code)
			assert.True(t, bridgeerrors.IsParse(err))
		default:
			assert.Equal(t, bridgeerrors.ErrCodeUnknown, be.Code, "status %d", status)
			assert.True(t, bridgeerrors.IsUnknown(err))
		}
	}
}

func TestString_FailureNeverTouchesPayload(t *testing.T) {
	rt, env := attach(t)

	_, _, err := String(env, foreigntest.FailedStringResult(2, nil), "parseBytesToString")
	be := bridgeErr(t, err)
	assert.Equal(t, "parseBytesToString failed with status 2", be.Message)
	assertNoPayloadCalls(t, rt, "getContent", "getMetadata")
	assert.NotErrorIs(t, err, foreigntest.ErrPayloadAfterFailure)
}

func TestString_ErrorWithStatusZero(t *testing.T) {
	_, env := attach(t)

	_, _, err := String(env, foreigntest.FailedStringResult(0, nil), "detect")
	be := bridgeErr(t, err)
	assert.Equal(t, bridgeerrors.ErrCodeUnknown, be.Code)
	assert.Equal(t, "detect failed with status 0", be.Message)
}

func TestString_ProtocolViolations(t *testing.T) {
	tests := []struct {
		name string
		obj  *foreigntest.Object
	}{
		{"isError not bool", foreigntest.NewObject("R").Returns("isError", "no")},
		{"status not byte", foreigntest.NewObject("R").Returns("isError", true).Returns("getStatus", "x")},
		{"null content", foreigntest.NewObject("R").Returns("isError", false).Returns("getContent", nil)},
		{"content not string", foreigntest.NewObject("R").Returns("isError", false).Returns("getContent", 12)},
		{"metadata not object", foreigntest.NewObject("R").
			Returns("isError", false).Returns("getContent", "x").Returns("getMetadata", "md")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, env := attach(t)
			_, _, err := String(env, tt.obj, "parseFileToString")
			be := bridgeErr(t, err)
			assert.Equal(t, bridgeerrors.ErrCodeProtocol, be.Code)
			assert.Equal(t, bridgeerrors.CategoryParse, be.Category)
		})
	}
}

func TestReader(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		_, env := attach(t)
		r := foreigntest.NewReader([]byte("abc"), 0)

		ref, md, err := Reader(env, foreigntest.ReaderResult(r, types.Metadata{"k": {"v"}}), "parseFile")
		require.NoError(t, err)
		assert.Same(t, r.Object, ref)
		assert.Equal(t, "v", md.Get("k"))
	})

	t.Run("failure", func(t *testing.T) {
		rt, env := attach(t)
		msg := "missing"
		_, _, err := Reader(env, foreigntest.FailedReaderResult(1, &msg), "parseFile")
		assert.True(t, bridgeerrors.IsIO(err))
		assertNoPayloadCalls(t, rt, "getReader", "getMetadata")
	})

	t.Run("null reader", func(t *testing.T) {
		_, env := attach(t)
		obj := foreigntest.NewObject("R").Returns("isError", false).Returns("getReader", nil)
		_, _, err := Reader(env, obj, "parseFile")
		assert.Equal(t, bridgeerrors.ErrCodeProtocol, bridgeErr(t, err).Code)
	})
}

func TestEmbedded(t *testing.T) {
	docs := []types.EmbeddedDocument{
		{ResourceName: "a.png", ContentType: "image/png", Content: []byte{1, 2, 3}, EmbeddedRelationshipID: types.StringPtr("rId1")},
		{ResourceName: "b.txt", ContentType: "text/plain", Content: []byte("hi")},
		{ResourceName: "c.bin", ContentType: types.DefaultContentType, Content: []byte{}, EmbeddedRelationshipID: types.StringPtr("")},
	}

	t.Run("with metadata", func(t *testing.T) {
		_, env := attach(t)
		res, err := Embedded(env, foreigntest.EmbeddedResult(docs, types.Metadata{"x": {"y"}}), "extractEmbedded")
		require.NoError(t, err)

		require.Equal(t, 3, res.Len())
		assert.Equal(t, "a.png", res.Documents[0].ResourceName)
		assert.Equal(t, "rId1", *res.Documents[0].EmbeddedRelationshipID)
		assert.Nil(t, res.Documents[1].EmbeddedRelationshipID)
		require.NotNil(t, res.Documents[2].EmbeddedRelationshipID, "the list path keeps an empty id")
		assert.Equal(t, "", *res.Documents[2].EmbeddedRelationshipID)
		assert.Equal(t, 5, res.TotalSize())
		assert.Equal(t, "y", res.Metadata.Get("x"))
	})

	t.Run("without metadata", func(t *testing.T) {
		_, env := attach(t)
		res, err := Embedded(env, foreigntest.EmbeddedResult(docs[:1], nil), "extractEmbedded")
		require.NoError(t, err)
		assert.NotNil(t, res.Metadata)
		assert.Empty(t, res.Metadata)
	})

	t.Run("failure", func(t *testing.T) {
		rt, env := attach(t)
		_, err := Embedded(env, foreigntest.FailedEmbeddedResult(7, nil), "extractEmbedded")
		be := bridgeErr(t, err)
		assert.Equal(t, bridgeerrors.ErrCodeUnknown, be.Code)
		assert.Equal(t, "extractEmbedded failed with status 7", be.Message)
		assertNoPayloadCalls(t, rt, "getEmbeddedDocuments")
	})

	t.Run("null element", func(t *testing.T) {
		_, env := attach(t)
		obj := foreigntest.NewObject("R").
			Returns("getErrorCode", int32(0)).
			Returns("getEmbeddedDocuments", foreigntest.List(nil))
		_, err := Embedded(env, obj, "extractEmbedded")
		assert.Equal(t, bridgeerrors.ErrCodeProtocol, bridgeErr(t, err).Code)
	})
}

func TestEmbedded_ContentIsCopied(t *testing.T) {
	_, env := attach(t)
	content := []byte("shared")
	item := foreigntest.NewObject("D").
		Returns("getResourceName", "d").
		Returns("getContentType", "text/plain").
		Returns("getContent", content).
		Returns("getEmbeddedRelationshipId", nil)

	doc, err := Document(env, item, "extractEmbedded")
	require.NoError(t, err)
	content[0] = 'X'
	assert.Equal(t, "shared", string(doc.Content))
}

func TestOptimized(t *testing.T) {
	docs := []types.EmbeddedDocument{
		{ResourceName: "a", ContentType: "text/plain", Content: []byte("1"), EmbeddedRelationshipID: types.StringPtr("r")},
		{ResourceName: "b", ContentType: "text/plain", Content: []byte("22")},
	}
	data, err := packed.Encode(docs)
	require.NoError(t, err)

	t.Run("success", func(t *testing.T) {
		_, env := attach(t)
		res, err := Optimized(env, foreigntest.OptimizedResult(data, 2), "extractEmbeddedOptimized")
		require.NoError(t, err)
		assert.Equal(t, docs, res.Documents)
		assert.Empty(t, res.Metadata)
	})

	t.Run("count mismatch", func(t *testing.T) {
		_, env := attach(t)
		res, err := Optimized(env, foreigntest.OptimizedResult(data, 3), "extractEmbeddedOptimized")
		assert.Nil(t, res)
		be := bridgeErr(t, err)
		assert.Equal(t, bridgeerrors.ErrCodeProtocol, be.Code)
		assert.Equal(t, "extractEmbeddedOptimized", be.Operation)
	})

	t.Run("missing packed data", func(t *testing.T) {
		_, env := attach(t)
		_, err := Optimized(env, foreigntest.OptimizedResult(nil, 0), "extractEmbeddedOptimized")
		assert.Equal(t, bridgeerrors.ErrCodeProtocol, bridgeErr(t, err).Code)
	})

	t.Run("failure", func(t *testing.T) {
		rt, env := attach(t)
		msg := "corrupt"
		_, err := Optimized(env, foreigntest.FailedOptimizedResult(2, &msg), "extractEmbeddedOptimized")
		assert.True(t, bridgeerrors.IsParse(err))
		assert.Equal(t, "corrupt", bridgeErr(t, err).Message)
		assertNoPayloadCalls(t, rt, "getDocumentCount", "getPackedData")
	})
}

func TestMetadata(t *testing.T) {
	_, env := attach(t)

	md, err := Metadata(env, nil, "op")
	require.NoError(t, err)
	assert.Empty(t, md)

	md, err = Metadata(env, foreigntest.Metadata(types.Metadata{"a": {"1", "2"}, "b": {}}), "op")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, md.Values("a"))
	assert.Contains(t, md, "b")
}

func TestCheck(t *testing.T) {
	assert.NoError(t, Check(types.Envelope{}, "op"))

	err := Check(types.Envelope{Code: 1, Message: "m", HasMessage: true}, "op")
	be := bridgeErr(t, err)
	assert.Equal(t, bridgeerrors.ErrCodeIO, be.Code)
	assert.Equal(t, "unmarshal", be.Component)
}
