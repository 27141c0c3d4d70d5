package jsrt

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/dop251/goja"
	"github.com/klauspost/compress/zip"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// maxEntrySize bounds a single container member read into the VM.
const maxEntrySize = 256 << 20

// installHost defines the global host object the bundle calls into.
func (r *Runtime) installHost(ocr bool) error {
	host := r.vm.NewObject()
	fns := map[string]func(goja.FunctionCall) goja.Value{
		"readFile":   r.hostReadFile,
		"detect":     r.hostDetect,
		"zipEntries": r.hostZipEntries,
		"pdfText":    r.hostPdfText,
		"pdfRender":  r.hostPdfRender,
		"ocr":        r.hostOCR,
		"encode":     r.hostEncode,
		"utf8Encode": r.hostUTF8Encode,
		"utf8Decode": r.hostUTF8Decode,
		"log":        r.hostLog,
	}
	for name, fn := range fns {
		if err := host.Set(name, fn); err != nil {
			return err
		}
	}
	if err := host.Set("ocrEnabled", ocr); err != nil {
		return err
	}
	return r.vm.Set("host", host)
}

// throw raises a JS error whose name is the given exception class.
func (r *Runtime) throw(class, format string, args ...interface{}) {
	e := r.vm.NewGoError(fmt.Errorf(format, args...))
	_ = e.Set("name", class)
	panic(e)
}

// argBytes returns the bytes of a Uint8Array argument.
func (r *Runtime) argBytes(call goja.FunctionCall, i int) []byte {
	obj, ok := call.Argument(i).(*goja.Object)
	if !ok || !r.isUint8Array(obj) {
		r.throw("TypeError", "argument %d is not a Uint8Array", i)
	}
	return r.bytesOf(obj)
}

func (r *Runtime) bytesValue(data []byte) goja.Value {
	arr, err := r.newUint8Array(data)
	if err != nil {
		panic(err)
	}
	return arr.obj
}

func (r *Runtime) hostReadFile(call goja.FunctionCall) goja.Value {
	path := call.Argument(0).String()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			r.throw("FileNotFoundException", "%s", path)
		}
		r.throw("IOException", "%v", err)
	}
	return r.bytesValue(data)
}

func (r *Runtime) hostDetect(call goja.FunctionCall) goja.Value {
	name := ""
	if defined(call.Argument(1)) {
		name = call.Argument(1).String()
	}
	return r.vm.ToValue(Detect(r.argBytes(call, 0), name))
}

// hostZipEntries returns the file members of a zip container as
// {name, data} records in directory order.
func (r *Runtime) hostZipEntries(call goja.FunctionCall) goja.Value {
	data := r.argBytes(call, 0)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		r.throw("ZipException", "reading container: %v", err)
	}

	entries := make([]interface{}, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if f.UncompressedSize64 > maxEntrySize {
			r.throw("ZipException", "%s: entry of %d bytes exceeds the limit", f.Name, f.UncompressedSize64)
		}
		rc, err := f.Open()
		if err != nil {
			r.throw("ZipException", "%s: %v", f.Name, err)
		}
		content, err := io.ReadAll(io.LimitReader(rc, maxEntrySize))
		rc.Close()
		if err != nil {
			r.throw("ZipException", "%s: %v", f.Name, err)
		}

		entry := r.vm.NewObject()
		_ = entry.Set("name", f.Name)
		_ = entry.Set("data", r.bytesValue(content))
		entries = append(entries, entry)
	}
	return r.vm.NewArray(entries...)
}

func (r *Runtime) hostOCR(call goja.FunctionCall) goja.Value {
	img := r.argBytes(call, 0)
	lang := call.Argument(1).String()
	text, err := recognize(img, lang)
	if err != nil {
		r.throw("TesseractException", "%v", err)
	}
	return r.vm.ToValue(text)
}

func (r *Runtime) encoding(charset string) encoding.Encoding {
	if charset == "" {
		return unicode.UTF8
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		r.throw("UnsupportedEncodingException", "%s", charset)
	}
	return enc
}

func (r *Runtime) hostEncode(call goja.FunctionCall) goja.Value {
	s := call.Argument(0).String()
	charset := ""
	if defined(call.Argument(1)) {
		charset = call.Argument(1).String()
	}
	out, err := r.encoding(charset).NewEncoder().Bytes([]byte(s))
	if err != nil {
		r.throw("UnmappableCharacterException", "%s: %v", charset, err)
	}
	return r.bytesValue(out)
}

func (r *Runtime) hostUTF8Encode(call goja.FunctionCall) goja.Value {
	return r.bytesValue([]byte(call.Argument(0).String()))
}

func (r *Runtime) hostUTF8Decode(call goja.FunctionCall) goja.Value {
	data := r.argBytes(call, 0)
	if !utf8.Valid(data) {
		data = bytes.ToValidUTF8(data, []byte("�"))
	}
	return r.vm.ToValue(string(data))
}

func (r *Runtime) hostLog(call goja.FunctionCall) goja.Value {
	level := call.Argument(0).String()
	msg := call.Argument(1).String()
	switch level {
	case "debug":
		r.logger.Debug(msg)
	case "warn":
		r.logger.Warn(msg)
	case "error":
		r.logger.Error(msg)
	default:
		r.logger.Info(msg)
	}
	return goja.Undefined()
}
