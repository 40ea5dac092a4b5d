package source

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestReadText(t *testing.T) {
	path := writeFile(t, "req.txt", []byte("Patients must search by ID."))
	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "Patients must search by ID.", got)
}

func TestReadXML(t *testing.T) {
	input := `<?xml version="1.0"?>
<requirements>
  <requirement id="1">  The pump shall alarm on occlusion.  </requirement>
  <requirement id="2"><title>Audit</title>Every dose change is logged.</requirement>
  <empty>   </empty>
</requirements>`
	got, err := Read(writeFile(t, "req.xml", []byte(input)))
	require.NoError(t, err)
	assert.Equal(t, "The pump shall alarm on occlusion.\nAudit\nEvery dose change is logged.", got)
}

func TestReadXMLInvalid(t *testing.T) {
	_, err := Read(writeFile(t, "bad.xml", []byte("<a><b></a>")))
	assert.Error(t, err)
}

func buildDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestReadDOCX(t *testing.T) {
	doc := `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:p><w:r><w:t>First </w:t></w:r><w:r><w:t>paragraph</w:t></w:r></w:p>
<w:p><w:r><w:br w:type="page"/></w:r></w:p>
<w:p><w:r><w:t>Line one</w:t><w:br/><w:t>Line two</w:t></w:r></w:p>
</w:body></w:document>`

	got, err := Read(writeFile(t, "req.docx", buildDOCX(t, doc)))
	require.NoError(t, err)
	assert.Equal(t, "First paragraph\n\nLine one\nLine two", got)
}

func TestReadDOCXMissingDocument(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err := zw.Create("other.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = Extract("x.docx", buf.Bytes())
	assert.Error(t, err)

	_, err = Extract("x.docx", []byte("not a zip"))
	assert.Error(t, err)
}

func TestReadHTML(t *testing.T) {
	page := `<html><head><title>Spec</title><style>p{}</style></head><body>
<nav>Home | About</nav>
<main><h1>Login</h1><p>The system shall lock an account after five failed attempts.</p></main>
<footer>Copyright</footer>
</body></html>`

	got, err := Read(writeFile(t, "req.html", []byte(page)))
	require.NoError(t, err)
	assert.Contains(t, got, "# Login")
	assert.Contains(t, got, "The system shall lock an account after five failed attempts.")
	assert.NotContains(t, got, "Home | About")
	assert.NotContains(t, got, "Copyright")
}

func TestUnsupportedTypes(t *testing.T) {
	for _, name := range []string{"req.pdf", "req.xlsx", "README"} {
		t.Run(name, func(t *testing.T) {
			_, err := Read(filepath.Join(t.TempDir(), name))
			assert.ErrorIs(t, err, ErrUnsupportedType)
			assert.False(t, Supported(name))
		})
	}
}

func TestSupportedCaseInsensitive(t *testing.T) {
	assert.True(t, Supported("REQ.DOCX"))
	assert.True(t, Supported("notes.Md"))
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsupportedType)
}
