package models

import (
	"fmt"
	"time"
)

// ParseStatus describes the outcome of extracting text from one
// submitted file. Stored as its string name.
type ParseStatus string

const (
	ParseStatusNotFound ParseStatus = "NOT_FOUND"
	ParseStatusOK       ParseStatus = "OK"
	ParseStatusError    ParseStatus = "ERROR"
)

func ParseParseStatus(s string) (ParseStatus, error) {
	switch ParseStatus(s) {
	case ParseStatusNotFound, ParseStatusOK, ParseStatusError:
		return ParseStatus(s), nil
	}
	return "", fmt.Errorf("unknown parse status %q", s)
}

// Document is one submitted answer artifact tied to an exam.
type Document struct {
	ID           string      `json:"id"`
	BatchID      string      `json:"batch_id"`
	ExamID       string      `json:"exam_id"`
	OwnerCode    string      `json:"owner_code"`
	FileName     string      `json:"file_name"`
	StoragePath  string      `json:"storage_path"`
	ParsedText   *string     `json:"parsed_text,omitempty"`
	ParseStatus  ParseStatus `json:"parse_status"`
	ParseMessage string      `json:"parse_message"`
	Embedded     bool        `json:"embedded"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Text returns the extracted text or "" when parsing never produced any.
func (d *Document) Text() string {
	if d.ParsedText == nil {
		return ""
	}
	return *d.ParsedText
}

// HasText reports whether the document carries usable extracted text.
func (d *Document) HasText() bool {
	return d.ParseStatus == ParseStatusOK && d.ParsedText != nil && *d.ParsedText != ""
}
