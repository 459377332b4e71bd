// Package verification moves flagged pairs through the review workflow:
// an AI adjudication first, then an optional teacher decision that
// always has the last word.
package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/swdgrade/similarity-service/internal/models"
	"github.com/swdgrade/similarity-service/internal/repository"
)

var (
	ErrResultNotFound         = errors.New("similarity result not found")
	ErrAlreadyVerified        = errors.New("similarity result is no longer pending")
	ErrTeacherNotFound        = errors.New("teacher not found")
	ErrDocumentNotParsed      = errors.New("document has no extracted text")
	ErrAdjudicatorUnavailable = errors.New("adjudicator unavailable")
)

type Service struct {
	results     repository.SimilarityRepository
	documents   repository.DocumentRepository
	lookups     repository.LookupRepository
	adjudicator Adjudicator
	logger      zerolog.Logger
}

func NewService(
	results repository.SimilarityRepository,
	documents repository.DocumentRepository,
	lookups repository.LookupRepository,
	adjudicator Adjudicator,
	logger zerolog.Logger,
) *Service {
	return &Service{
		results:     results,
		documents:   documents,
		lookups:     lookups,
		adjudicator: adjudicator,
		logger:      logger,
	}
}

// AIVerify runs the adjudicator over one pending pair and stores its
// verdict. Only Pending pairs are eligible; anything else is a state
// conflict. The check is enforced in the storage layer so two racing
// calls cannot both win.
func (s *Service) AIVerify(ctx context.Context, resultID string) (*models.VerificationResult, error) {
	result, err := s.results.GetResultByID(ctx, resultID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrResultNotFound
		}
		return nil, err
	}
	if result.VerificationStatus != models.VerificationPending {
		return nil, ErrAlreadyVerified
	}

	text1, err := s.documentText(ctx, result.Doc1ID)
	if err != nil {
		return nil, err
	}
	text2, err := s.documentText(ctx, result.Doc2ID)
	if err != nil {
		return nil, err
	}

	judgment, err := s.adjudicator.Judge(ctx, text1, text2, result.Owner1Code, result.Owner2Code, result.Score)
	if err != nil {
		return nil, err
	}

	status := models.VerificationAINotSimilar
	if judgment.IsSimilar {
		status = models.VerificationAISimilar
	}

	payload, err := json.Marshal(judgment)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal verdict: %w", err)
	}

	err = s.results.UpdateAIVerification(ctx, resultID, status, payload, time.Now().UTC())
	if err != nil {
		// A racing verification got there first.
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAlreadyVerified
		}
		return nil, err
	}

	s.logger.Info().
		Str("result_id", resultID).
		Str("status", string(status)).
		Float64("confidence", judgment.Confidence).
		Msg("AI verification recorded")

	return s.loadVerificationResult(ctx, resultID)
}

// TeacherVerify records a teacher's decision for a pair. Teachers may
// decide from any state, including overriding an earlier AI verdict.
func (s *Service) TeacherVerify(ctx context.Context, resultID, teacherID string, isSimilar bool, notes *string) (*models.VerificationResult, error) {
	if _, err := s.lookups.GetUser(ctx, teacherID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTeacherNotFound
		}
		return nil, err
	}

	if _, err := s.results.GetResultByID(ctx, resultID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrResultNotFound
		}
		return nil, err
	}

	status := models.VerificationTeacherNotSimilar
	if isSimilar {
		status = models.VerificationTeacherSimilar
	}

	err := s.results.UpdateTeacherVerification(ctx, resultID, status, teacherID, notes, time.Now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrResultNotFound
		}
		return nil, err
	}

	s.logger.Info().
		Str("result_id", resultID).
		Str("teacher_id", teacherID).
		Str("status", string(status)).
		Msg("Teacher verification recorded")

	return s.loadVerificationResult(ctx, resultID)
}

func (s *Service) documentText(ctx context.Context, documentID string) (string, error) {
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", fmt.Errorf("document %s of flagged pair is missing", documentID)
		}
		return "", err
	}
	if !doc.HasText() {
		return "", fmt.Errorf("%w: document %s", ErrDocumentNotParsed, documentID)
	}
	return doc.Text(), nil
}

func (s *Service) loadVerificationResult(ctx context.Context, resultID string) (*models.VerificationResult, error) {
	result, err := s.results.GetResultByID(ctx, resultID)
	if err != nil {
		return nil, err
	}
	return toVerificationResult(result), nil
}

func toVerificationResult(result *models.SimilarityResult) *models.VerificationResult {
	out := &models.VerificationResult{
		ResultID:           result.ID,
		Owner1Code:         result.Owner1Code,
		Owner2Code:         result.Owner2Code,
		Score:              result.Score,
		VerificationStatus: result.VerificationStatus,
		AIVerifiedAt:       result.AIVerifiedAt,
		TeacherID:          result.TeacherID,
		TeacherNotes:       result.TeacherNotes,
		TeacherVerifiedAt:  result.TeacherVerifiedAt,
	}

	if len(result.AIResult) > 0 {
		var judgment models.AIJudgment
		if err := json.Unmarshal(result.AIResult, &judgment); err == nil {
			out.AIVerdict = &judgment
		}
	}

	switch result.VerificationStatus {
	case models.VerificationTeacherSimilar:
		verdict := true
		out.TeacherVerdict = &verdict
	case models.VerificationTeacherNotSimilar:
		verdict := false
		out.TeacherVerdict = &verdict
	}

	return out
}
