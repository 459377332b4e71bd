package models

import (
	"fmt"
	"time"
)

// BatchStatus is the lifecycle state of one uploaded archive.
type BatchStatus string

const (
	BatchStatusPending BatchStatus = "PENDING"
	BatchStatusDone    BatchStatus = "DONE"
	BatchStatusError   BatchStatus = "ERROR"
)

func ParseBatchStatus(s string) (BatchStatus, error) {
	switch BatchStatus(s) {
	case BatchStatusPending, BatchStatusDone, BatchStatusError:
		return BatchStatus(s), nil
	}
	return "", fmt.Errorf("unknown batch status %q", s)
}

// IngestionBatch is one uploaded submissions archive for an exam and
// the record of its processing pass.
type IngestionBatch struct {
	ID             string      `json:"id"`
	ExamID         string      `json:"exam_id"`
	ArchivePath    string      `json:"archive_path"`
	Status         BatchStatus `json:"status"`
	Summary        string      `json:"summary"`
	ProcessedCount int         `json:"processed_count"`
	SuccessCount   int         `json:"success_count"`
	ErrorCount     int         `json:"error_count"`
	FailedOwners   []string    `json:"failed_owners"`
	UploadedAt     time.Time   `json:"uploaded_at"`
	ProcessedAt    *time.Time  `json:"processed_at,omitempty"`
}
