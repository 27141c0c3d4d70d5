package foreigntest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/docbridge/docbridge/internal/foreign"
	"github.com/docbridge/docbridge/pkg/types"
)

// ErrPayloadAfterFailure is returned by payload accessors of failed results.
// A correct caller never sees it because it checks the envelope first.
var ErrPayloadAfterFailure = errors.New("foreigntest: payload accessed on a failed result")

// Class names of the scripted parser surface.
const (
	PdfConfigClass    = "org.apache.tika.parser.pdf.PDFParserConfig"
	OfficeConfigClass = "org.apache.tika.parser.microsoft.OfficeParserConfig"
	OcrConfigClass    = "org.apache.tika.parser.ocr.TesseractOCRConfig"
	NativeMainClass   = "docbridge.NativeMain"
)

var configSetters = map[string][]string{
	PdfConfigClass: {
		"setExtractInlineImages",
		"setExtractUniqueInlineImagesOnly",
		"setExtractMarkedContent",
		"setExtractAnnotationText",
		"setOcrStrategy",
	},
	OfficeConfigClass: {
		"setExtractMacros",
		"setIncludeDeletedContent",
		"setIncludeMoveFromContent",
		"setIncludeShapeBasedContent",
		"setIncludeHeadersAndFooters",
		"setIncludeMissingRows",
		"setIncludeSlideNotes",
		"setIncludeSlideMasterContent",
		"setConcatenatePhoneticRuns",
		"setExtractAllAlternativesFromMSG",
	},
	OcrConfigClass: {
		"setDensity",
		"setDepth",
		"setTimeoutSeconds",
		"setEnableImagePreprocessing",
		"setApplyRotation",
		"setLanguage",
	},
}

var ocrStrategies = map[string]bool{
	"NO_OCR":                  true,
	"OCR_ONLY":                true,
	"OCR_AND_TEXT_EXTRACTION": true,
	"AUTO":                    true,
}

// ConfigStore records the setter values of every config object built.
type ConfigStore struct {
	mu        sync.Mutex
	instances map[string][]map[string]foreign.Value
}

// Instances returns the setter values of each object of class, in
// construction order.
func (s *ConfigStore) Instances(class string) []map[string]foreign.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]foreign.Value(nil), s.instances[class]...)
}

// InstallConfigClasses defines the three parser config classes with all of
// their setters. setOcrStrategy rejects unknown literals with an exception.
// Classes listed in omit are left undefined, and "Class.method" entries drop
// a single setter.
func InstallConfigClasses(rt *Runtime, omit ...string) *ConfigStore {
	store := &ConfigStore{instances: make(map[string][]map[string]foreign.Value)}
	skip := make(map[string]bool, len(omit))
	for _, o := range omit {
		skip[o] = true
	}

	for class, setters := range configSetters {
		if skip[class] {
			continue
		}
		class, setters := class, setters
		rt.DefineClass(class, func() *Object {
			values := make(map[string]foreign.Value)
			store.mu.Lock()
			store.instances[class] = append(store.instances[class], values)
			store.mu.Unlock()

			obj := NewObject(class)
			for _, name := range setters {
				if skip[class+"."+name] {
					continue
				}
				name := name
				obj.On(name, func(args ...foreign.Value) (foreign.Value, error) {
					if len(args) != 1 {
						return nil, fmt.Errorf("%s takes one argument, got %d", name, len(args))
					}
					if name == "setOcrStrategy" {
						s, _ := args[0].(string)
						if !ocrStrategies[s] {
							return nil, &foreign.Exception{
								Class:   "IllegalArgumentException",
								Message: "No enum constant PDFParserConfig.OCR_STRATEGY." + s,
							}
						}
					}
					store.mu.Lock()
					values[name] = args[0]
					store.mu.Unlock()
					return nil, nil
				})
			}
			return obj
		})
	}
	return store
}

func values(strs []string) []foreign.Value {
	out := make([]foreign.Value, len(strs))
	for i, s := range strs {
		out[i] = s
	}
	return out
}

func optional(s *string) foreign.Value {
	if s == nil {
		return nil
	}
	return *s
}

func failing(...foreign.Value) (foreign.Value, error) {
	return nil, ErrPayloadAfterFailure
}

// Metadata returns a metadata object exposing names() and getValues(name).
func Metadata(md types.Metadata) *Object {
	return NewObject("org.apache.tika.metadata.Metadata").
		Returns("names", values(md.Keys())).
		On("getValues", func(args ...foreign.Value) (foreign.Value, error) {
			name, _ := args[0].(string)
			return values(md[name]), nil
		})
}

// List returns a list object exposing size() and get(i).
func List(items ...foreign.Value) *Object {
	return NewObject("java.util.List").
		Returns("size", int32(len(items))).
		On("get", func(args ...foreign.Value) (foreign.Value, error) {
			i, ok := foreign.AsInt64(args[0])
			if !ok || i < 0 || int(i) >= len(items) {
				return nil, &foreign.Exception{Class: "IndexOutOfBoundsException", Message: fmt.Sprint(args[0])}
			}
			return items[i], nil
		})
}

// StringResult returns a successful string result.
func StringResult(content string, md types.Metadata) *Object {
	return NewObject("docbridge.StringResult").
		Returns("isError", false).
		Returns("getContent", content).
		Returns("getMetadata", Metadata(md))
}

// FailedStringResult returns a failed string result. A nil message is the
// foreign null.
func FailedStringResult(status int32, message *string) *Object {
	return NewObject("docbridge.StringResult").
		Returns("isError", true).
		Returns("getStatus", status).
		Returns("getErrorMessage", optional(message)).
		On("getContent", failing).
		On("getMetadata", failing)
}

// ReaderResult returns a successful reader result wrapping reader.
func ReaderResult(reader *Reader, md types.Metadata) *Object {
	return NewObject("docbridge.ReaderResult").
		Returns("isError", false).
		Returns("getReader", reader.Object).
		Returns("getMetadata", Metadata(md))
}

// FailedReaderResult returns a failed reader result.
func FailedReaderResult(status int32, message *string) *Object {
	return NewObject("docbridge.ReaderResult").
		Returns("isError", true).
		Returns("getStatus", status).
		Returns("getErrorMessage", optional(message)).
		On("getReader", failing).
		On("getMetadata", failing)
}

// EmbeddedDocument returns a foreign document object for doc.
func EmbeddedDocument(doc types.EmbeddedDocument) *Object {
	return NewObject("docbridge.EmbeddedDocument").
		Returns("getResourceName", doc.ResourceName).
		Returns("getContentType", doc.ContentType).
		On("getContent", func(...foreign.Value) (foreign.Value, error) {
			if doc.Content == nil {
				return nil, nil
			}
			return append([]byte(nil), doc.Content...), nil
		}).
		Returns("getEmbeddedRelationshipId", optional(doc.EmbeddedRelationshipID))
}

// EmbeddedResult returns a successful list result. Metadata is exposed only
// when md is not nil.
func EmbeddedResult(docs []types.EmbeddedDocument, md types.Metadata) *Object {
	items := make([]foreign.Value, len(docs))
	for i := range docs {
		items[i] = EmbeddedDocument(docs[i])
	}
	obj := NewObject("docbridge.EmbeddedExtractResult").
		Returns("getErrorCode", int32(0)).
		Returns("getErrorMessage", nil).
		Returns("getEmbeddedDocuments", List(items...))
	if md != nil {
		obj.Returns("getMetadata", Metadata(md))
	}
	return obj
}

// FailedEmbeddedResult returns a failed list result.
func FailedEmbeddedResult(code int32, message *string) *Object {
	return NewObject("docbridge.EmbeddedExtractResult").
		Returns("getErrorCode", code).
		Returns("getErrorMessage", optional(message)).
		On("getEmbeddedDocuments", failing)
}

// OptimizedResult returns a successful packed result.
func OptimizedResult(packed []byte, count int32) *Object {
	obj := NewObject("docbridge.OptimizedResult").
		Returns("getErrorCode", int32(0)).
		Returns("getErrorMessage", nil).
		Returns("getDocumentCount", count)
	if packed == nil {
		return obj.Returns("getPackedData", nil)
	}
	return obj.Returns("getPackedData", append([]byte(nil), packed...))
}

// FailedOptimizedResult returns a failed packed result.
func FailedOptimizedResult(code int32, message *string) *Object {
	return NewObject("docbridge.OptimizedResult").
		Returns("getErrorCode", code).
		Returns("getErrorMessage", optional(message)).
		On("getDocumentCount", failing).
		On("getPackedData", failing)
}

// Reader is a scripted incremental byte source with read(buf, off, len)
// and close().
type Reader struct {
	Object *Object

	mu       sync.Mutex
	data     []byte
	pos      int
	chunk    int
	closes   int
	requests []int

	// ReadErr, when set, is returned by every read.
	ReadErr error
	// CloseErr, when set, is returned by close after it is counted.
	CloseErr error
}

// NewReader returns a reader serving data. When chunk is positive each read
// returns at most chunk bytes.
func NewReader(data []byte, chunk int) *Reader {
	r := &Reader{data: data, chunk: chunk}
	r.Object = NewObject("docbridge.ReaderInputStream").
		On("read", r.read).
		On("close", r.close)
	return r
}

func (r *Reader) read(args ...foreign.Value) (foreign.Value, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(args) != 3 {
		return nil, fmt.Errorf("read takes 3 arguments, got %d", len(args))
	}
	buf, ok := args[0].(*ByteArray)
	if !ok {
		return nil, fmt.Errorf("read: buffer is %T", args[0])
	}
	off, _ := foreign.AsInt64(args[1])
	n, _ := foreign.AsInt64(args[2])
	r.requests = append(r.requests, int(n))

	if r.ReadErr != nil {
		return nil, r.ReadErr
	}
	if int(off)+int(n) > len(buf.Data) {
		return nil, &foreign.Exception{Class: "IndexOutOfBoundsException", Message: "read past buffer"}
	}
	if r.pos >= len(r.data) {
		return int32(-1), nil
	}
	if r.chunk > 0 && int(n) > r.chunk {
		n = int64(r.chunk)
	}
	copied := copy(buf.Data[off:off+n], r.data[r.pos:])
	r.pos += copied
	return int32(copied), nil
}

func (r *Reader) close(...foreign.Value) (foreign.Value, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closes++
	return nil, r.CloseErr
}

// Closes returns how many times close() was invoked.
func (r *Reader) Closes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closes
}

// Requests returns the len argument of each read call.
func (r *Reader) Requests() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.requests...)
}
