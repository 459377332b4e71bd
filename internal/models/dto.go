package models

import "time"

// IngestionStatusResponse reports progress of one archive's processing.
type IngestionStatusResponse struct {
	BatchID      string      `json:"batch_id"`
	ExamID       string      `json:"exam_id"`
	Status       BatchStatus `json:"status"`
	Processed    int         `json:"processed"`
	Total        int         `json:"total"`
	FailedOwners []string    `json:"failed_owners"`
	Summary      string      `json:"summary"`
}

// SuspiciousPair is one flagged pair inside a CheckResult.
type SuspiciousPair struct {
	ResultID   string  `json:"result_id"`
	Doc1ID     string  `json:"doc1_id"`
	Doc2ID     string  `json:"doc2_id"`
	Owner1Code string  `json:"owner1_code"`
	Owner2Code string  `json:"owner2_code"`
	Doc1Name   string  `json:"doc1_name"`
	Doc2Name   string  `json:"doc2_name"`
	Doc1Path   string  `json:"doc1_path"`
	Doc2Path   string  `json:"doc2_path"`
	Score      float64 `json:"score"`
}

// CheckResult is the outcome of one batch or targeted check.
type CheckResult struct {
	CheckID              string           `json:"check_id"`
	ExamID               string           `json:"exam_id"`
	ExamCode             string           `json:"exam_code"`
	CheckedAt            time.Time        `json:"checked_at"`
	Threshold            float64          `json:"threshold"`
	CheckedBy            string           `json:"checked_by"`
	TotalPairsChecked    int              `json:"total_pairs_checked"`
	SuspiciousPairsCount int              `json:"suspicious_pairs_count"`
	SuspiciousPairs      []SuspiciousPair `json:"suspicious_pairs"`
}

// VerificationResult reflects a similarity result after a verification
// action, including whatever AI payload has been stored for it.
type VerificationResult struct {
	ResultID           string             `json:"result_id"`
	Owner1Code         string             `json:"owner1_code"`
	Owner2Code         string             `json:"owner2_code"`
	Score              float64            `json:"score"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	AIVerdict          *AIJudgment        `json:"ai_verdict,omitempty"`
	AIVerifiedAt       *time.Time         `json:"ai_verified_at,omitempty"`
	TeacherVerdict     *bool              `json:"teacher_verdict,omitempty"`
	TeacherID          *string            `json:"teacher_id,omitempty"`
	TeacherNotes       *string            `json:"teacher_notes,omitempty"`
	TeacherVerifiedAt  *time.Time         `json:"teacher_verified_at,omitempty"`
}

// Exam and User are minimal lookup projections of entities owned by the
// surrounding grading system; only existence and display fields matter
// here.
type Exam struct {
	ID       string `json:"id"`
	ExamCode string `json:"exam_code"`
}

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}
