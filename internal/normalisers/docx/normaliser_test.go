package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driven"
)

const docxMIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// createTestDOCX creates a minimal valid DOCX file in memory.
func createTestDOCX(documentXML, coreXML string) []byte {
	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)

	contentTypes, _ := w.Create("[Content_Types].xml")
	contentTypes.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="xml" ContentType="application/xml"/>
</Types>`))

	if documentXML != "" {
		doc, _ := w.Create("word/document.xml")
		doc.Write([]byte(documentXML))
	}

	if coreXML != "" {
		core, _ := w.Create("docProps/core.xml")
		core.Write([]byte(coreXML))
	}

	w.Close()
	return buf.Bytes()
}

func wordBody(paragraphs string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		paragraphs + `</w:body></w:document>`
}

func TestInterfaceCompliance(t *testing.T) {
	var _ driven.Normaliser = (*Normaliser)(nil)
}

func TestSupportedMIMETypes(t *testing.T) {
	normaliser := New()
	assert.Equal(t, []string{docxMIME}, normaliser.SupportedMIMETypes())
	assert.Equal(t, 50, normaliser.Priority())
}

func TestNormalise_Success(t *testing.T) {
	content := createTestDOCX(
		wordBody(`<w:p><w:r><w:t>Hello</w:t></w:r><w:r><w:t xml:space="preserve"> World</w:t></w:r></w:p>`+
			`<w:p></w:p>`+
			`<w:p><w:r><w:t>Name</w:t><w:tab/><w:t>Value</w:t><w:br/><w:t>Next line</w:t></w:r></w:p>`),
		`<?xml version="1.0"?><cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title>Test Document</dc:title></cp:coreProperties>`,
	)

	raw := &domain.RawDocument{
		DocumentID: "doc-1",
		Filename:   "report.docx",
		MIMEType:   docxMIME,
		Content:    content,
		Metadata:   map[string]any{"author": "test-author"},
	}

	result, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)

	doc := result.Document
	assert.Equal(t, "doc-1", doc.ID)
	assert.Equal(t, "Test Document", doc.Title)
	assert.Equal(t, "Hello World\n\nName\tValue\nNext line", doc.Content)
	assert.Equal(t, "test-author", doc.Metadata["author"])
	assert.Equal(t, "docx", doc.Metadata["format"])
}

func TestNormalise_TitleFallbackToFilename(t *testing.T) {
	content := createTestDOCX(wordBody(`<w:p><w:r><w:t>x</w:t></w:r></w:p>`), "")

	result, err := New().Normalise(context.Background(), &domain.RawDocument{Filename: "my_document.docx", Content: content})
	require.NoError(t, err)
	assert.Equal(t, "my document", result.Document.Title)
}

func TestNormalise_CreatorBecomesAuthor(t *testing.T) {
	core := `<?xml version="1.0"?><cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:creator> Jane Ops </dc:creator></cp:coreProperties>`
	content := createTestDOCX(wordBody(`<w:p><w:r><w:t>x</w:t></w:r></w:p>`), core)

	result, err := New().Normalise(context.Background(), &domain.RawDocument{Filename: "a.docx", Content: content})
	require.NoError(t, err)
	assert.Equal(t, "Jane Ops", result.Document.Metadata["author"])

	result, err = New().Normalise(context.Background(), &domain.RawDocument{
		Filename: "a.docx",
		Content:  content,
		Metadata: map[string]any{"author": "uploader"},
	})
	require.NoError(t, err)
	assert.Equal(t, "uploader", result.Document.Metadata["author"])
}

func TestNormalise_EmptyDocument(t *testing.T) {
	content := createTestDOCX(wordBody(""), "")

	result, err := New().Normalise(context.Background(), &domain.RawDocument{Filename: "empty.docx", Content: content})
	require.NoError(t, err)
	assert.Empty(t, result.Document.Content)
}

func TestNormalise_ParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
	}{
		{"not a zip", []byte("this is not a zip file")},
		{"missing document part", createTestDOCX("", "")},
		{"truncated xml", createTestDOCX(`<w:document><w:body><w:p>`, "")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := New().Normalise(context.Background(), &domain.RawDocument{Filename: "bad.docx", Content: tt.content})
			assert.ErrorIs(t, err, domain.ErrParse)
			assert.Nil(t, result)
		})
	}
}

func TestNormalise_NilDocument(t *testing.T) {
	_, err := New().Normalise(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
