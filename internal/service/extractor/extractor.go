// Package extractor pulls plain text out of submitted answer files.
// Extraction is pure and stateless: the same bytes always yield the
// same text.
package extractor

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Extract returns the plain text of a submitted document. The format
// is picked by file extension: .docx archives are unpacked and the
// main document part parsed, anything else is treated as UTF-8 text.
func Extract(data []byte, fileName string) (string, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".docx":
		return extractDocx(data)
	default:
		return string(data), nil
	}
}

// extractDocx reads word/document.xml from the DOCX container and
// collects the text runs. Paragraph boundaries become newlines, table
// cells within a row are joined by tabs, matching how the text is
// later tokenized.
func extractDocx(data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("not a valid docx archive: %w", err)
	}

	var docPart *zip.File
	for _, f := range reader.File {
		if f.Name == "word/document.xml" {
			docPart = f
			break
		}
	}
	if docPart == nil {
		return "", fmt.Errorf("docx has no word/document.xml part")
	}

	rc, err := docPart.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open document part: %w", err)
	}
	defer rc.Close()

	return parseDocumentXML(rc)
}

func parseDocumentXML(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)

	var text strings.Builder
	var paragraph strings.Builder
	var inCell bool

	flushParagraph := func() {
		if paragraph.Len() > 0 {
			text.WriteString(paragraph.String())
			text.WriteString("\n")
			paragraph.Reset()
		}
	}

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to parse document xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				var run string
				if err := decoder.DecodeElement(&run, &t); err != nil {
					return "", fmt.Errorf("failed to decode text run: %w", err)
				}
				paragraph.WriteString(run)
			case "tc":
				inCell = true
			case "tab":
				paragraph.WriteString("\t")
			case "br":
				paragraph.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				if inCell {
					// cells are flushed at row end, joined by tabs
					paragraph.WriteString("\t")
				} else {
					flushParagraph()
				}
			case "tc":
				inCell = false
			case "tr":
				flushParagraph()
			}
		}
	}

	flushParagraph()

	return text.String(), nil
}
