package jsrt

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"
)

const (
	mimeOctetStream = "application/octet-stream"
	mimeZip         = "application/zip"
	mimePDF         = "application/pdf"
	mimeDocx        = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeXlsx        = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimePptx        = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	mimeOOXML       = "application/x-tika-ooxml"
)

var ooxmlParts = []struct {
	prefix string
	mime   string
}{
	{"word/", mimeDocx},
	{"xl/", mimeXlsx},
	{"ppt/", mimePptx},
}

// Detect returns the media type of data. Magic bytes win; name is a hint
// used only when the content is not recognized.
func Detect(data []byte, name string) string {
	if len(data) == 0 {
		if byName := byExtension(name); byName != "" {
			return byName
		}
		return mimeOctetStream
	}
	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return mimePDF
	}
	if bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		return detectZip(data)
	}

	sniffed := baseType(http.DetectContentType(data))
	if sniffed == "text/plain" || sniffed == mimeOctetStream {
		if byName := byExtension(name); byName != "" {
			return byName
		}
	}
	return sniffed
}

func detectZip(data []byte) string {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return mimeZip
	}

	contentTypes := false
	for _, f := range zr.File {
		switch {
		case f.Name == "mimetype":
			if t := readSmall(f); t != "" {
				return t
			}
		case f.Name == "[Content_Types].xml":
			contentTypes = true
		}
	}
	if !contentTypes {
		return mimeZip
	}
	for _, part := range ooxmlParts {
		for _, f := range zr.File {
			if strings.HasPrefix(f.Name, part.prefix) {
				return part.mime
			}
		}
	}
	return mimeOOXML
}

// readSmall returns the trimmed content of an ODF mimetype member.
func readSmall(f *zip.File) string {
	rc, err := f.Open()
	if err != nil {
		return ""
	}
	defer rc.Close()
	b, err := io.ReadAll(io.LimitReader(rc, 256))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func byExtension(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return ""
	}
	return baseType(mime.TypeByExtension(ext))
}

func baseType(t string) string {
	if t == "" {
		return ""
	}
	media, _, err := mime.ParseMediaType(t)
	if err != nil {
		return t
	}
	return media
}
