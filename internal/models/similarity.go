package models

import (
	"fmt"
	"time"
)

// VerificationStatus tracks how far a flagged pair has moved through
// the verification workflow. Transitions only move forward: a pair is
// created Pending, AI verification is allowed only from Pending, and a
// teacher may confirm (or override) from any state. Nothing ever
// returns a pair to Pending.
type VerificationStatus string

const (
	VerificationPending           VerificationStatus = "Pending"
	VerificationAISimilar         VerificationStatus = "AIVerified_Similar"
	VerificationAINotSimilar      VerificationStatus = "AIVerified_NotSimilar"
	VerificationTeacherSimilar    VerificationStatus = "TeacherConfirmed_Similar"
	VerificationTeacherNotSimilar VerificationStatus = "TeacherConfirmed_NotSimilar"
)

func ParseVerificationStatus(s string) (VerificationStatus, error) {
	switch VerificationStatus(s) {
	case VerificationPending, VerificationAISimilar, VerificationAINotSimilar,
		VerificationTeacherSimilar, VerificationTeacherNotSimilar:
		return VerificationStatus(s), nil
	}
	return "", fmt.Errorf("unknown verification status %q", s)
}

// SimilarityCheck is one invocation of the detection algorithm over an
// exam or a single document. Immutable once created.
type SimilarityCheck struct {
	ID        string    `json:"id"`
	ExamID    string    `json:"exam_id"`
	Threshold float64   `json:"threshold"`
	CheckedBy string    `json:"checked_by"`
	CheckedAt time.Time `json:"checked_at"`
}

// SimilarityResult is one flagged document pair. The two document IDs
// are always distinct and always belong to the same exam. Only
// verification actions mutate it; it is never deleted.
type SimilarityResult struct {
	ID                 string             `json:"id"`
	CheckID            string             `json:"check_id"`
	Doc1ID             string             `json:"doc1_id"`
	Doc2ID             string             `json:"doc2_id"`
	Score              float64            `json:"score"`
	Owner1Code         string             `json:"owner1_code"`
	Owner2Code         string             `json:"owner2_code"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	AIResult           []byte             `json:"ai_result,omitempty"`
	AIVerifiedAt       *time.Time         `json:"ai_verified_at,omitempty"`
	TeacherID          *string            `json:"teacher_id,omitempty"`
	TeacherNotes       *string            `json:"teacher_notes,omitempty"`
	TeacherVerifiedAt  *time.Time         `json:"teacher_verified_at,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
}

// AIJudgment is the adjudicator's stored verdict for a pair.
type AIJudgment struct {
	IsSimilar  bool    `json:"is_similar"`
	Confidence float64 `json:"confidence_score"`
	Summary    string  `json:"summary"`
	Analysis   string  `json:"analysis"`
}
