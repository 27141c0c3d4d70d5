package extract_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docbridge/docbridge/internal/foreign/jsrt"
	"github.com/docbridge/docbridge/pkg/extract"
	"github.com/docbridge/docbridge/pkg/types"
)

const docxType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

func writeDocx(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range [][2]string{
		{"[Content_Types].xml", "<Types/>"},
		{"word/document.xml", `<w:document><w:body><w:p><w:r><w:t>Embedded report</w:t></w:r></w:p></w:body></w:document>`},
		{"word/media/image1.png", "\x89PNG\r\n\x1a\none"},
		{"word/media/image2.png", "\x89PNG\r\n\x1a\ntwo"},
		{"word/embeddings/oleObject1.bin", "ole"},
	} {
		w, err := zw.Create(m[0])
		require.NoError(t, err)
		_, err = w.Write([]byte(m[1]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	path := filepath.Join(t.TempDir(), "report.docx")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func newExtractor(t *testing.T, opts ...extract.Option) *extract.Extractor {
	t.Helper()
	rt, err := jsrt.New()
	require.NoError(t, err)
	ex, err := extract.New(rt, opts...)
	require.NoError(t, err)
	return ex
}

func TestEndToEnd_Text(t *testing.T) {
	path := writeDocx(t)
	ex := newExtractor(t, extract.WithMaxLength(-1))

	mime, err := ex.Detect(t.Context(), path)
	require.NoError(t, err)
	assert.Equal(t, docxType, mime)

	text, md, err := ex.ExtractFileToString(t.Context(), path)
	require.NoError(t, err)
	assert.Equal(t, "Embedded report", text)
	assert.Equal(t, docxType, md.Get("Content-Type"))

	r, _, err := ex.ExtractFile(t.Context(), path)
	require.NoError(t, err)
	defer r.Close()
	streamed, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, text, string(streamed))
}

func TestEndToEnd_StreamEmbedded(t *testing.T) {
	path := writeDocx(t)
	ex := newExtractor(t)

	var (
		sizes []int
		names []string
	)
	err := ex.StreamEmbedded(t.Context(), extract.FromPath(path), 2, func(batch []types.EmbeddedDocument) (bool, error) {
		sizes = append(sizes, len(batch))
		for _, doc := range batch {
			names = append(names, doc.ResourceName)
		}
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1}, sizes)
	assert.Equal(t, []string{"image1.png", "image2.png", "oleObject1.bin"}, names)
}

func TestEndToEnd_EmbeddedFromBytes(t *testing.T) {
	data, err := os.ReadFile(writeDocx(t))
	require.NoError(t, err)
	ex := newExtractor(t)

	res, err := ex.ExtractEmbeddedFromBytes(t.Context(), data)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Len())
	assert.Len(t, res.Images(), 2)
}
