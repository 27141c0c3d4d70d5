package jsrt

import (
	"github.com/dop251/goja"
	"github.com/gen2brain/go-fitz"
)

// defaultDensity is the render resolution used when the OCR config has none.
const defaultDensity = 300

func (r *Runtime) openPDF(data []byte) *fitz.Document {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		r.throw("TikaException", "opening pdf: %v", err)
	}
	return doc
}

// hostPdfText returns {pages: [text...], metadata: {key: value}}.
func (r *Runtime) hostPdfText(call goja.FunctionCall) goja.Value {
	doc := r.openPDF(r.argBytes(call, 0))
	defer doc.Close()

	n := doc.NumPage()
	pages := make([]interface{}, 0, n)
	for i := 0; i < n; i++ {
		text, err := doc.Text(i)
		if err != nil {
			r.throw("TikaException", "page %d: %v", i+1, err)
		}
		pages = append(pages, text)
	}

	md := r.vm.NewObject()
	for k, v := range doc.Metadata() {
		if v != "" {
			_ = md.Set(k, v)
		}
	}

	out := r.vm.NewObject()
	_ = out.Set("pages", r.vm.NewArray(pages...))
	_ = out.Set("metadata", md)
	return out
}

// hostPdfRender returns one page rendered as PNG at the given density.
func (r *Runtime) hostPdfRender(call goja.FunctionCall) goja.Value {
	doc := r.openPDF(r.argBytes(call, 0))
	defer doc.Close()

	page := int(call.Argument(1).ToInteger())
	dpi := float64(call.Argument(2).ToInteger())
	if dpi <= 0 {
		dpi = defaultDensity
	}
	if page < 0 || page >= doc.NumPage() {
		r.throw("TikaException", "page %d out of range", page+1)
	}
	img, err := doc.ImagePNG(page, dpi)
	if err != nil {
		r.throw("TikaException", "rendering page %d: %v", page+1, err)
	}
	return r.bytesValue(img)
}
