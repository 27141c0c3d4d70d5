package types

import (
	"sort"
	"strings"
)

// Metadata maps a metadata key to its ordered values.
type Metadata map[string][]string

// Get returns the first value stored under key, or "" when there is none.
func (m Metadata) Get(key string) string {
	if values := m[key]; len(values) > 0 {
		return values[0]
	}
	return ""
}

// Values returns every value stored under key.
func (m Metadata) Values(key string) []string {
	return m[key]
}

// Keys returns the metadata keys in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Add appends value to the values stored under key.
func (m Metadata) Add(key, value string) {
	m[key] = append(m[key], value)
}

// Envelope is the error status every foreign result carries. Code 0 is
// success; a failed envelope may or may not carry a message.
type Envelope struct {
	Code       uint8  `json:"code"`
	Message    string `json:"message,omitempty"`
	HasMessage bool   `json:"-"`
}

// OK reports whether the envelope signals success.
func (e Envelope) OK() bool {
	return e.Code == 0
}

// Default values the runtime assigns to embedded documents it cannot name.
const (
	DefaultContentType      = "application/octet-stream"
	DefaultResourceNameStem = "embedded_"
)

var documentTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   true,
	"application/vnd.ms-excel":                                                  true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         true,
	"application/vnd.ms-powerpoint":                                             true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
}

// EmbeddedDocument is one sub-document extracted from a container.
type EmbeddedDocument struct {
	ResourceName string `json:"resource_name"`
	ContentType  string `json:"content_type"`
	Content      []byte `json:"-"`

	// EmbeddedRelationshipID is nil when the container gave no relationship
	// id. The packed wire format cannot tell an empty id from a missing one,
	// so documents from the optimized path never carry an empty string here.
	EmbeddedRelationshipID *string `json:"embedded_relationship_id,omitempty"`
}

// Size returns the content length in bytes.
func (d *EmbeddedDocument) Size() int {
	return len(d.Content)
}

// IsImage reports whether the content type is an image type.
func (d *EmbeddedDocument) IsImage() bool {
	return strings.HasPrefix(d.ContentType, "image/")
}

// IsDocument reports whether the content type is a PDF or Office document.
func (d *EmbeddedDocument) IsDocument() bool {
	return documentTypes[d.ContentType]
}

// RelationshipID returns the relationship id, or "" when absent.
func (d *EmbeddedDocument) RelationshipID() string {
	if d.EmbeddedRelationshipID == nil {
		return ""
	}
	return *d.EmbeddedRelationshipID
}

// EmbeddedExtractResult holds the documents of one extraction in container order.
type EmbeddedExtractResult struct {
	Documents []EmbeddedDocument `json:"documents"`
	Metadata  Metadata           `json:"metadata"`
}

// Len returns the number of documents.
func (r *EmbeddedExtractResult) Len() int {
	return len(r.Documents)
}

// Images returns the image documents.
func (r *EmbeddedExtractResult) Images() []*EmbeddedDocument {
	return r.filter(func(d *EmbeddedDocument) bool { return d.IsImage() })
}

// NonImages returns every document that is not an image.
func (r *EmbeddedExtractResult) NonImages() []*EmbeddedDocument {
	return r.filter(func(d *EmbeddedDocument) bool { return !d.IsImage() })
}

// TotalSize returns the summed content length of all documents.
func (r *EmbeddedExtractResult) TotalSize() int {
	total := 0
	for i := range r.Documents {
		total += r.Documents[i].Size()
	}
	return total
}

func (r *EmbeddedExtractResult) filter(keep func(*EmbeddedDocument) bool) []*EmbeddedDocument {
	var out []*EmbeddedDocument
	for i := range r.Documents {
		if keep(&r.Documents[i]) {
			out = append(out, &r.Documents[i])
		}
	}
	return out
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
