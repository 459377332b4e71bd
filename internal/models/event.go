package models

import "time"

// DocumentParsedEvent is published after ingestion stores a document
// with extracted text. Consumers generate its fingerprint; losing the
// event only delays indexing because the poller re-checks unembedded
// documents.
type DocumentParsedEvent struct {
	DocumentID string    `json:"document_id"`
	ExamID     string    `json:"exam_id"`
	OwnerCode  string    `json:"owner_code"`
	ParsedAt   time.Time `json:"parsed_at"`
}

const (
	ExchangeName             = "similarity_exchange"
	RoutingKeyDocumentParsed = "document.parsed"
	QueueDocumentParsed      = "document_parsed_queue"
)
