// Package similarity runs the detection pipeline: deterministic text
// fingerprints indexed in Qdrant, compared either across a whole exam
// or against one document.
package similarity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/swdgrade/similarity-service/internal/config"
	"github.com/swdgrade/similarity-service/internal/models"
	"github.com/swdgrade/similarity-service/internal/repository"
	"github.com/swdgrade/similarity-service/internal/service/embedding"
	"github.com/swdgrade/similarity-service/internal/service/vectorstore"
	"github.com/swdgrade/similarity-service/pkg/utils"
)

var (
	ErrExamNotFound      = errors.New("exam not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrDocumentNotFound  = errors.New("document not found")
	ErrDocumentNotParsed = errors.New("document has no extracted text")
	ErrInvalidThreshold  = errors.New("threshold must be between 0 and 1")
)

type Service struct {
	documents repository.DocumentRepository
	checks    repository.SimilarityRepository
	lookups   repository.LookupRepository
	index     vectorstore.Index
	generator *embedding.Generator
	cfg       config.SimilarityConfig
	logger    zerolog.Logger
}

func NewService(
	documents repository.DocumentRepository,
	checks repository.SimilarityRepository,
	lookups repository.LookupRepository,
	index vectorstore.Index,
	generator *embedding.Generator,
	cfg config.SimilarityConfig,
	logger zerolog.Logger,
) *Service {
	return &Service{
		documents: documents,
		checks:    checks,
		lookups:   lookups,
		index:     index,
		generator: generator,
		cfg:       cfg,
		logger:    logger,
	}
}

// GenerateEmbedding fingerprints one document and stores the vector in
// the index. Already-embedded documents are skipped unless force is
// set; re-embedding overwrites the stored point, never duplicates it.
func (s *Service) GenerateEmbedding(ctx context.Context, documentID string, force bool) error {
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrDocumentNotFound
		}
		return err
	}

	if !doc.HasText() {
		return ErrDocumentNotParsed
	}
	if doc.Embedded && !force {
		return nil
	}

	return s.embedDocument(ctx, doc)
}

func (s *Service) embedDocument(ctx context.Context, doc *models.Document) error {
	if err := s.index.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("failed to ensure vector collection: %w", err)
	}

	text := doc.Text()
	point := vectorstore.Point{
		ID:     doc.ID,
		Vector: s.generator.Embed(text),
		Payload: vectorstore.Payload{
			DocumentID: doc.ID,
			ExamID:     doc.ExamID,
			OwnerCode:  doc.OwnerCode,
			TextLength: utf8.RuneCountInString(text),
		},
	}
	if err := s.index.Upsert(ctx, point); err != nil {
		return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
	}

	if !doc.Embedded {
		if err := s.documents.MarkEmbedded(ctx, doc.ID); err != nil {
			return fmt.Errorf("failed to mark document %s embedded: %w", doc.ID, err)
		}
		doc.Embedded = true
	}

	s.logger.Debug().Str("document_id", doc.ID).Str("exam_id", doc.ExamID).Msg("Indexed document fingerprint")
	return nil
}

// EmbedPending fingerprints up to limit parsed documents that are not
// yet indexed. Used by the background sweep.
func (s *Service) EmbedPending(ctx context.Context, limit int) (int, error) {
	docs, err := s.documents.GetUnembedded(ctx, limit)
	if err != nil {
		return 0, err
	}

	var embedded int
	for i := range docs {
		if err := s.embedDocument(ctx, &docs[i]); err != nil {
			s.logger.Error().Err(err).Str("document_id", docs[i].ID).Msg("Failed to embed document")
			continue
		}
		embedded++
	}
	return embedded, nil
}

// RunBatchCheck compares every parsed document of an exam against every
// other and records pairs scoring at or above the threshold. Documents
// not yet indexed are fingerprinted first.
func (s *Service) RunBatchCheck(ctx context.Context, examID string, threshold float64, checkedBy string) (*models.CheckResult, error) {
	exam, err := s.lookups.GetExam(ctx, examID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, err
	}

	threshold, err = s.resolveThreshold(threshold)
	if err != nil {
		return nil, err
	}
	if err := s.validateUser(ctx, checkedBy); err != nil {
		return nil, err
	}

	docs, err := s.documents.GetParsedByExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		if docs[i].Embedded || !docs[i].HasText() {
			continue
		}
		if err := s.embedDocument(ctx, &docs[i]); err != nil {
			return nil, err
		}
	}

	check := &models.SimilarityCheck{
		ID:        utils.GenerateUUID(),
		ExamID:    examID,
		Threshold: threshold,
		CheckedBy: checkedBy,
		CheckedAt: time.Now().UTC(),
	}
	if err := s.checks.CreateCheck(ctx, check); err != nil {
		return nil, err
	}

	result := &models.CheckResult{
		CheckID:         check.ID,
		ExamID:          examID,
		ExamCode:        exam.ExamCode,
		CheckedAt:       check.CheckedAt,
		Threshold:       threshold,
		CheckedBy:       checkedBy,
		SuspiciousPairs: []models.SuspiciousPair{},
	}

	points, err := s.index.Scroll(ctx, examID, s.cfg.MaxScrollPoints)
	if err != nil {
		return nil, err
	}
	if len(points) < 2 {
		return result, nil
	}

	docsByID := indexDocuments(docs)
	result.TotalPairsChecked = len(points) * (len(points) - 1) / 2

	for i := 0; i < len(points); i++ {
		for j := i + 1; j < len(points); j++ {
			score := vectorstore.Cosine(points[i].Vector, points[j].Vector)
			if score < threshold {
				continue
			}

			pair, err := s.recordPair(ctx, check.ID, points[i].Payload, points[j].Payload, score, docsByID)
			if err != nil {
				return nil, err
			}
			result.SuspiciousPairs = append(result.SuspiciousPairs, pair)
		}
	}

	sort.Slice(result.SuspiciousPairs, func(i, j int) bool {
		return result.SuspiciousPairs[i].Score > result.SuspiciousPairs[j].Score
	})
	result.SuspiciousPairsCount = len(result.SuspiciousPairs)

	s.logger.Info().
		Str("check_id", check.ID).
		Str("exam_id", examID).
		Int("pairs_checked", result.TotalPairsChecked).
		Int("suspicious", result.SuspiciousPairsCount).
		Msg("Finished batch similarity check")

	return result, nil
}

// RunTargetedCheck compares one document against every other indexed
// document of its exam. The document is re-fingerprinted first so the
// comparison always uses its current text.
func (s *Service) RunTargetedCheck(ctx context.Context, documentID string, threshold float64, checkedBy string) (*models.CheckResult, error) {
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	if !doc.HasText() {
		return nil, ErrDocumentNotParsed
	}

	threshold, err = s.resolveThreshold(threshold)
	if err != nil {
		return nil, err
	}
	if err := s.validateUser(ctx, checkedBy); err != nil {
		return nil, err
	}

	exam, err := s.lookups.GetExam(ctx, doc.ExamID)
	if err != nil {
		return nil, err
	}

	if err := s.embedDocument(ctx, doc); err != nil {
		return nil, err
	}

	check := &models.SimilarityCheck{
		ID:        utils.GenerateUUID(),
		ExamID:    doc.ExamID,
		Threshold: threshold,
		CheckedBy: checkedBy,
		CheckedAt: time.Now().UTC(),
	}
	if err := s.checks.CreateCheck(ctx, check); err != nil {
		return nil, err
	}

	result := &models.CheckResult{
		CheckID:         check.ID,
		ExamID:          doc.ExamID,
		ExamCode:        exam.ExamCode,
		CheckedAt:       check.CheckedAt,
		Threshold:       threshold,
		CheckedBy:       checkedBy,
		SuspiciousPairs: []models.SuspiciousPair{},
	}

	indexed, err := s.index.Count(ctx, doc.ExamID)
	if err != nil {
		return nil, err
	}
	if indexed > 0 {
		result.TotalPairsChecked = indexed - 1
	}

	hits, err := s.index.Search(ctx, s.generator.Embed(doc.Text()), doc.ExamID, threshold, doc.ID, s.cfg.SearchLimit)
	if err != nil {
		return nil, err
	}

	docs, err := s.documents.GetParsedByExam(ctx, doc.ExamID)
	if err != nil {
		return nil, err
	}
	docsByID := indexDocuments(docs)

	selfPayload := vectorstore.Payload{
		DocumentID: doc.ID,
		ExamID:     doc.ExamID,
		OwnerCode:  doc.OwnerCode,
	}
	for _, hit := range hits {
		pair, err := s.recordPair(ctx, check.ID, selfPayload, hit.Payload, hit.Score, docsByID)
		if err != nil {
			return nil, err
		}
		result.SuspiciousPairs = append(result.SuspiciousPairs, pair)
	}
	result.SuspiciousPairsCount = len(result.SuspiciousPairs)

	s.logger.Info().
		Str("check_id", check.ID).
		Str("document_id", doc.ID).
		Int("suspicious", result.SuspiciousPairsCount).
		Msg("Finished targeted similarity check")

	return result, nil
}

// GetCheckResults lists the stored results of one check, highest score
// first.
func (s *Service) GetCheckResults(ctx context.Context, checkID string) ([]models.SimilarityResult, error) {
	return s.checks.GetResultsByCheck(ctx, checkID)
}

// recordPair persists one flagged pair as a Pending result and returns
// its response projection.
func (s *Service) recordPair(ctx context.Context, checkID string, p1, p2 vectorstore.Payload, score float64, docsByID map[string]models.Document) (models.SuspiciousPair, error) {
	result := &models.SimilarityResult{
		ID:                 utils.GenerateUUID(),
		CheckID:            checkID,
		Doc1ID:             p1.DocumentID,
		Doc2ID:             p2.DocumentID,
		Score:              score,
		Owner1Code:         p1.OwnerCode,
		Owner2Code:         p2.OwnerCode,
		VerificationStatus: models.VerificationPending,
	}
	if err := s.checks.CreateResult(ctx, result); err != nil {
		return models.SuspiciousPair{}, err
	}

	pair := models.SuspiciousPair{
		ResultID:   result.ID,
		Doc1ID:     result.Doc1ID,
		Doc2ID:     result.Doc2ID,
		Owner1Code: result.Owner1Code,
		Owner2Code: result.Owner2Code,
		Score:      score,
	}
	if doc, ok := docsByID[result.Doc1ID]; ok {
		pair.Doc1Name = doc.FileName
		pair.Doc1Path = doc.StoragePath
	}
	if doc, ok := docsByID[result.Doc2ID]; ok {
		pair.Doc2Name = doc.FileName
		pair.Doc2Path = doc.StoragePath
	}
	return pair, nil
}

func (s *Service) resolveThreshold(threshold float64) (float64, error) {
	if threshold == 0 {
		return s.cfg.DefaultThreshold, nil
	}
	if threshold < 0 || threshold > 1 {
		return 0, ErrInvalidThreshold
	}
	return threshold, nil
}

func (s *Service) validateUser(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	if _, err := s.lookups.GetUser(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

func indexDocuments(docs []models.Document) map[string]models.Document {
	byID := make(map[string]models.Document, len(docs))
	for _, doc := range docs {
		byID[doc.ID] = doc
	}
	return byID
}
