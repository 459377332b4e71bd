package extractor

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildDocx(t *testing.T, documentXML string) []byte {
	t.Helper()

	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)

	part, err := writer.Create("word/document.xml")
	require.NoError(t, err)
	_, err = part.Write([]byte(documentXML))
	require.NoError(t, err)

	require.NoError(t, writer.Close())
	return buf.Bytes()
}

const docxHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`

func TestExtractDocxParagraphs(t *testing.T) {
	data := buildDocx(t, docxHeader+`
		<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
			<w:body>
				<w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
				<w:p><w:r><w:t>Second </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>
			</w:body>
		</w:document>`)

	text, err := Extract(data, "answer.docx")

	require.NoError(t, err)
	assert.Equal(t, "First paragraph.\nSecond paragraph.\n", text)
}

func TestExtractDocxTable(t *testing.T) {
	data := buildDocx(t, docxHeader+`
		<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
			<w:body>
				<w:tbl>
					<w:tr>
						<w:tc><w:p><w:r><w:t>Question</w:t></w:r></w:p></w:tc>
						<w:tc><w:p><w:r><w:t>Answer</w:t></w:r></w:p></w:tc>
					</w:tr>
				</w:tbl>
			</w:body>
		</w:document>`)

	text, err := Extract(data, "answer.docx")

	require.NoError(t, err)
	assert.Equal(t, "Question\tAnswer\t\n", text)
}

func TestExtractDocxLineBreaksAndTabs(t *testing.T) {
	data := buildDocx(t, docxHeader+`
		<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
			<w:body>
				<w:p><w:r><w:t>before</w:t><w:br/><w:t>after</w:t><w:tab/><w:t>tabbed</w:t></w:r></w:p>
			</w:body>
		</w:document>`)

	text, err := Extract(data, "answer.docx")

	require.NoError(t, err)
	assert.Equal(t, "before\nafter\ttabbed\n", text)
}

func TestExtractPlainTextFallback(t *testing.T) {
	text, err := Extract([]byte("raw answer text"), "answer.txt")

	require.NoError(t, err)
	assert.Equal(t, "raw answer text", text)
}

func TestExtractInvalidDocx(t *testing.T) {
	_, err := Extract([]byte("definitely not a zip"), "broken.docx")

	assert.Error(t, err)
}

func TestExtractDocxWithoutDocumentPart(t *testing.T) {
	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)
	part, err := writer.Create("word/styles.xml")
	require.NoError(t, err)
	_, err = part.Write([]byte("<styles/>"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	_, err = Extract(buf.Bytes(), "empty.docx")

	assert.ErrorContains(t, err, "word/document.xml")
}

func TestExtractIsDeterministic(t *testing.T) {
	data := buildDocx(t, docxHeader+`
		<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
			<w:body><w:p><w:r><w:t>stable output</w:t></w:r></w:p></w:body>
		</w:document>`)

	first, err := Extract(data, "a.docx")
	require.NoError(t, err)
	second, err := Extract(data, "a.docx")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
