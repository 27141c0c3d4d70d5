// Package packed implements the packed buffer format used to ship many
// embedded documents across the runtime boundary in a single call.
//
// The format is big-endian throughout:
//
//	buffer   := count:i32 document*
//	document := name:LPString type:LPString relId:LPString contentLen:i32 content:byte[contentLen]
//	LPString := len:i32 utf8bytes:byte[len]
//
// The relationship id has no presence flag, so an empty id and a missing id
// encode identically and both decode as missing.
package packed

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/docbridge/docbridge/pkg/errors"
	"github.com/docbridge/docbridge/pkg/types"
)

const component = "packed"

// decoder reads frames from a packed buffer. Every read checks the remaining
// length first, so a corrupt length can never cause a large allocation or an
// out-of-bounds read.
type decoder struct {
	buf []byte
	off int
}

func (d *decoder) fail(field string, format string, args ...interface{}) error {
	return errors.Newf(errors.ErrCodeProtocol, format, args...).
		WithComponent(component).
		WithOperation("decode").
		WithContext("field", field).
		WithDetail("offset", d.off)
}

func (d *decoder) int32(field string) (int32, error) {
	if len(d.buf)-d.off < 4 {
		return 0, d.fail(field, "short read: %s needs 4 bytes, %d left", field, len(d.buf)-d.off)
	}
	v := int32(binary.BigEndian.Uint32(d.buf[d.off:]))
	d.off += 4
	return v, nil
}

func (d *decoder) bytes(field string) ([]byte, error) {
	n, err := d.int32(field + " length")
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, d.fail(field, "negative %s length %d", field, n)
	}
	if int(n) > len(d.buf)-d.off {
		return nil, d.fail(field, "truncated %s: need %d bytes, %d left", field, n, len(d.buf)-d.off)
	}
	out := make([]byte, n)
	copy(out, d.buf[d.off:d.off+int(n)])
	d.off += int(n)
	return out, nil
}

func (d *decoder) string(field string) (string, error) {
	start := d.off
	raw, err := d.bytes(field)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		d.off = start
		return "", d.fail(field, "invalid UTF-8 in %s", field)
	}
	return string(raw), nil
}

// Decode parses a packed buffer. The count stored in the buffer must equal
// expected, which the runtime reports out of band. Any framing violation
// fails the whole decode and no documents are returned. Bytes after the
// last frame are ignored.
func Decode(data []byte, expected int) ([]types.EmbeddedDocument, error) {
	d := &decoder{buf: data}

	count, err := d.int32("count")
	if err != nil {
		return nil, err
	}
	if int(count) != expected {
		return nil, errors.Newf(errors.ErrCodeProtocol,
			"document count mismatch: expected %d, got %d", expected, count).
			WithComponent(component).
			WithOperation("decode").
			WithDetail("expected", expected).
			WithDetail("count", count)
	}
	if count < 0 {
		return nil, d.fail("count", "negative document count %d", count)
	}

	docs := make([]types.EmbeddedDocument, 0, min(int(count), len(data)/16))
	for i := 0; i < int(count); i++ {
		doc, err := d.document()
		if err != nil {
			if be, ok := err.(*errors.BridgeError); ok {
				be.WithDetail("document", i)
			}
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (d *decoder) document() (types.EmbeddedDocument, error) {
	var doc types.EmbeddedDocument

	name, err := d.string("name")
	if err != nil {
		return doc, err
	}
	contentType, err := d.string("content type")
	if err != nil {
		return doc, err
	}
	relID, err := d.string("relationship id")
	if err != nil {
		return doc, err
	}
	content, err := d.bytes("content")
	if err != nil {
		return doc, err
	}

	doc.ResourceName = name
	doc.ContentType = contentType
	doc.Content = content
	if relID != "" {
		doc.EmbeddedRelationshipID = &relID
	}
	return doc, nil
}

// Encode writes docs in the packed format. A missing relationship id is
// written as the empty string.
func Encode(docs []types.EmbeddedDocument) ([]byte, error) {
	if len(docs) > math.MaxInt32 {
		return nil, encodeError("count", len(docs))
	}

	size := 4
	for i := range docs {
		size += 16 + len(docs[i].ResourceName) + len(docs[i].ContentType) +
			len(docs[i].RelationshipID()) + len(docs[i].Content)
	}

	var buf bytes.Buffer
	buf.Grow(size)
	writeInt32(&buf, len(docs))

	for i := range docs {
		doc := &docs[i]
		fields := [][]byte{
			[]byte(doc.ResourceName),
			[]byte(doc.ContentType),
			[]byte(doc.RelationshipID()),
			doc.Content,
		}
		for j, field := range fields {
			if len(field) > math.MaxInt32 {
				return nil, encodeError(fieldNames[j], len(field)).WithDetail("document", i)
			}
			writeInt32(&buf, len(field))
			buf.Write(field)
		}
	}
	return buf.Bytes(), nil
}

var fieldNames = [...]string{"name", "content type", "relationship id", "content"}

func writeInt32(buf *bytes.Buffer, n int) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(int32(n)))
	buf.Write(b[:])
}

func encodeError(field string, n int) *errors.BridgeError {
	return errors.NewError(errors.ErrCodeProtocol, fmt.Sprintf("%s length %d exceeds int32", field, n)).
		WithComponent(component).
		WithOperation("encode")
}
