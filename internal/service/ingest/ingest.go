// Package ingest accepts submission archives and turns them into parsed
// documents. An archive holds one folder per submission owner; each
// folder carries the answer files either directly or inside a nested
// archive. Processing happens asynchronously so uploads return fast.
package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/swdgrade/similarity-service/internal/config"
	"github.com/swdgrade/similarity-service/internal/models"
	"github.com/swdgrade/similarity-service/internal/repository"
	"github.com/swdgrade/similarity-service/internal/service/extractor"
	"github.com/swdgrade/similarity-service/internal/worker"
	"github.com/swdgrade/similarity-service/internal/worker/queue"
	"github.com/swdgrade/similarity-service/pkg/utils"
)

var (
	ErrExamNotFound   = errors.New("exam not found")
	ErrBatchNotFound  = errors.New("ingestion batch not found")
	ErrInvalidArchive = errors.New("uploaded file is not a valid zip archive")
)

type Service struct {
	batches   repository.BatchRepository
	documents repository.DocumentRepository
	lookups   repository.LookupRepository
	storage   repository.BlobStorage
	publisher queue.Publisher
	pool      *worker.Pool
	cfg       config.IngestConfig
	logger    zerolog.Logger

	notify func()
}

func NewService(
	batches repository.BatchRepository,
	documents repository.DocumentRepository,
	lookups repository.LookupRepository,
	storage repository.BlobStorage,
	publisher queue.Publisher,
	cfg config.IngestConfig,
	logger zerolog.Logger,
) *Service {
	return &Service{
		batches:   batches,
		documents: documents,
		lookups:   lookups,
		storage:   storage,
		publisher: publisher,
		pool:      worker.NewPool(cfg.MaxWorkers, logger),
		cfg:       cfg,
		logger:    logger,
	}
}

// SetNotifier registers a callback fired after every accepted upload so
// the background poller picks the batch up without waiting a full tick.
func (s *Service) SetNotifier(notify func()) {
	s.notify = notify
}

// InitiateIngestion validates the upload, stores the archive and
// records a pending batch. Processing happens later in the background.
func (s *Service) InitiateIngestion(ctx context.Context, examID string, archive []byte) (*models.IngestionBatch, error) {
	if _, err := s.lookups.GetExam(ctx, examID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to look up exam: %w", err)
	}

	if _, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive))); err != nil {
		return nil, ErrInvalidArchive
	}

	batchID := utils.GenerateUUID()
	archivePath, err := s.storage.Upload(ctx, archive, batchID+".zip", "archives/"+examID)
	if err != nil {
		return nil, fmt.Errorf("failed to store archive: %w", err)
	}

	batch := &models.IngestionBatch{
		ID:          batchID,
		ExamID:      examID,
		ArchivePath: archivePath,
		Status:      models.BatchStatusPending,
	}
	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to record ingestion batch: %w", err)
	}

	s.logger.Info().
		Str("batch_id", batch.ID).
		Str("exam_id", examID).
		Int("archive_bytes", len(archive)).
		Str("archive_sha256", utils.Sha256Hex(archive)).
		Msg("Accepted submissions archive")

	if s.notify != nil {
		s.notify()
	}

	return batch, nil
}

// GetIngestionStatus reports the current state of one batch.
func (s *Service) GetIngestionStatus(ctx context.Context, batchID string) (*models.IngestionStatusResponse, error) {
	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBatchNotFound
		}
		return nil, err
	}

	return &models.IngestionStatusResponse{
		BatchID:      batch.ID,
		ExamID:       batch.ExamID,
		Status:       batch.Status,
		Processed:    batch.SuccessCount + batch.ErrorCount,
		Total:        batch.ProcessedCount,
		FailedOwners: batch.FailedOwners,
		Summary:      batch.Summary,
	}, nil
}

// BatchDocuments lists the documents one batch produced.
func (s *Service) BatchDocuments(ctx context.Context, batchID string) ([]models.Document, error) {
	if _, err := s.batches.GetByID(ctx, batchID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBatchNotFound
		}
		return nil, err
	}
	return s.documents.GetByBatchID(ctx, batchID)
}

// PendingBatches lists batches still waiting for a processing pass.
func (s *Service) PendingBatches(ctx context.Context, limit int) ([]models.IngestionBatch, error) {
	return s.batches.GetPending(ctx, limit)
}

// ProcessBatch runs the full processing pass for one pending batch:
// download, unpack, fan out over submission folders and record the
// outcome in a single final write. A failing folder never aborts the
// others. The stored archive is removed whatever the outcome.
func (s *Service) ProcessBatch(ctx context.Context, batch models.IngestionBatch) error {
	s.logger.Info().Str("batch_id", batch.ID).Str("exam_id", batch.ExamID).Msg("Processing ingestion batch")

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := s.storage.Delete(cleanupCtx, batch.ArchivePath); err != nil {
			s.logger.Warn().Err(err).Str("archive", batch.ArchivePath).Msg("Failed to remove processed archive")
		}
	}()

	archive, err := s.storage.Download(ctx, batch.ArchivePath)
	if err != nil {
		return s.finalize(ctx, &batch, models.BatchStatusError, 0, 0, 0, nil,
			fmt.Sprintf("failed to download archive: %v", err))
	}

	tmpDir, err := os.MkdirTemp("", "ingest-"+batch.ID+"-*")
	if err != nil {
		return s.finalize(ctx, &batch, models.BatchStatusError, 0, 0, 0, nil,
			fmt.Sprintf("failed to create working directory: %v", err))
	}
	defer os.RemoveAll(tmpDir)

	if err := unzipToDir(archive, tmpDir); err != nil {
		return s.finalize(ctx, &batch, models.BatchStatusError, 0, 0, 0, nil,
			fmt.Sprintf("failed to unpack archive: %v", err))
	}

	folders, err := s.submissionFolders(tmpDir)
	if err != nil {
		return s.finalize(ctx, &batch, models.BatchStatusError, 0, 0, 0, nil,
			fmt.Sprintf("failed to list submission folders: %v", err))
	}
	if len(folders) == 0 {
		return s.finalize(ctx, &batch, models.BatchStatusError, 0, 0, 0, nil,
			"archive contains no submission folders")
	}

	owners := make([]string, len(folders))
	tasks := make([]worker.Task, len(folders))
	for i, folder := range folders {
		i, folder := i, folder
		owners[i] = ownerCodeFromFolder(filepath.Base(folder))
		tasks[i] = func(ctx context.Context) error {
			return s.processFolder(ctx, &batch, owners[i], folder)
		}
	}

	errs := s.pool.Run(ctx, tasks)

	var successCount, errorCount int
	var failedOwners []string
	for i, taskErr := range errs {
		if taskErr != nil {
			errorCount++
			failedOwners = append(failedOwners, owners[i])
			s.logger.Error().Err(taskErr).
				Str("batch_id", batch.ID).
				Str("owner_code", owners[i]).
				Msg("Submission folder failed")
			continue
		}
		successCount++
	}

	status := models.BatchStatusDone
	if errorCount == len(folders) {
		status = models.BatchStatusError
	}
	summary := fmt.Sprintf("%d folders processed, %d succeeded, %d failed", len(folders), successCount, errorCount)

	return s.finalize(ctx, &batch, status, len(folders), successCount, errorCount, failedOwners, summary)
}

func (s *Service) finalize(ctx context.Context, batch *models.IngestionBatch, status models.BatchStatus, processed, success, failed int, failedOwners []string, summary string) error {
	batch.Status = status
	batch.ProcessedCount = processed
	batch.SuccessCount = success
	batch.ErrorCount = failed
	batch.FailedOwners = failedOwners
	batch.Summary = summary

	if err := s.batches.Finalize(ctx, batch); err != nil {
		return fmt.Errorf("failed to finalize batch %s: %w", batch.ID, err)
	}

	s.logger.Info().
		Str("batch_id", batch.ID).
		Str("status", string(status)).
		Str("summary", summary).
		Msg("Finished ingestion batch")

	if status == models.BatchStatusError && processed == 0 {
		return errors.New(summary)
	}
	return nil
}

// processFolder handles one owner's submission folder. A folder with no
// answer document yields a NOT_FOUND marker document, not an error.
func (s *Service) processFolder(ctx context.Context, batch *models.IngestionBatch, ownerCode, folderPath string) error {
	docs, err := s.collectAnswerDocs(folderPath)
	if err != nil {
		return err
	}

	if len(docs) == 0 {
		doc := &models.Document{
			ID:           utils.GenerateUUID(),
			BatchID:      batch.ID,
			ExamID:       batch.ExamID,
			OwnerCode:    ownerCode,
			ParseStatus:  models.ParseStatusNotFound,
			ParseMessage: "no answer document found in submission",
		}
		if err := s.documents.Create(ctx, doc); err != nil {
			return fmt.Errorf("failed to record missing answer for %s: %w", ownerCode, err)
		}
		s.logger.Warn().Str("owner_code", ownerCode).Str("batch_id", batch.ID).Msg("Submission has no answer document")
		return nil
	}

	for fileName, content := range docs {
		if err := s.storeDocument(ctx, batch, ownerCode, fileName, content); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) storeDocument(ctx context.Context, batch *models.IngestionBatch, ownerCode, fileName string, content []byte) error {
	storagePath, err := s.storage.Upload(ctx, content, fileName, fmt.Sprintf("documents/%s/%s", batch.ExamID, ownerCode))
	if err != nil {
		return fmt.Errorf("failed to store %s for %s: %w", fileName, ownerCode, err)
	}

	doc := &models.Document{
		ID:          utils.GenerateUUID(),
		BatchID:     batch.ID,
		ExamID:      batch.ExamID,
		OwnerCode:   ownerCode,
		FileName:    fileName,
		StoragePath: storagePath,
	}

	text, err := extractor.Extract(content, fileName)
	if err != nil {
		doc.ParseStatus = models.ParseStatusError
		doc.ParseMessage = err.Error()
	} else {
		doc.ParseStatus = models.ParseStatusOK
		doc.ParsedText = &text
	}

	if err := s.documents.Create(ctx, doc); err != nil {
		return fmt.Errorf("failed to record document %s for %s: %w", fileName, ownerCode, err)
	}

	if doc.ParseStatus != models.ParseStatusOK {
		return nil
	}

	event := models.DocumentParsedEvent{
		DocumentID: doc.ID,
		ExamID:     doc.ExamID,
		OwnerCode:  doc.OwnerCode,
		ParsedAt:   time.Now().UTC(),
	}
	if err := s.publisher.PublishDocumentParsed(ctx, event); err != nil {
		// Not fatal: the embedding poller sweeps unembedded documents.
		s.logger.Warn().Err(err).Str("document_id", doc.ID).Msg("Failed to publish document parsed event")
	}

	return nil
}

// collectAnswerDocs gathers answer file contents for one submission
// folder, looking in the answer subdirectory first and falling back to
// the folder root. Nested solution archives are expanded in memory.
func (s *Service) collectAnswerDocs(folderPath string) (map[string][]byte, error) {
	searchRoot := folderPath
	if s.cfg.AnswerSubdir != "" {
		candidate := filepath.Join(folderPath, s.cfg.AnswerSubdir)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			searchRoot = candidate
		}
	}

	docs := make(map[string][]byte)
	err := filepath.WalkDir(searchRoot, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}

		name := entry.Name()
		switch {
		case strings.EqualFold(name, s.cfg.NestedArchive):
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read nested archive %s: %w", name, err)
			}
			nested, err := listArchiveDocs(data, s.cfg.DocExtension)
			if err != nil {
				return err
			}
			for nestedName, content := range nested {
				docs[nestedName] = content
			}
		case strings.EqualFold(filepath.Ext(name), s.cfg.DocExtension) && !strings.HasPrefix(name, "~$"):
			content, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", name, err)
			}
			docs[name] = content
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return docs, nil
}

func (s *Service) submissionFolders(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	// Some export tools wrap everything in a single top-level folder;
	// unwrap it unless that folder already looks like an owner folder
	// (it holds the answer subdirectory itself).
	if len(entries) == 1 && entries[0].IsDir() {
		inner := filepath.Join(root, entries[0].Name())
		innerEntries, err := os.ReadDir(inner)
		if err != nil {
			return nil, err
		}
		var hasDirs, hasAnswerSubdir bool
		for _, e := range innerEntries {
			if !e.IsDir() {
				continue
			}
			hasDirs = true
			if e.Name() == s.cfg.AnswerSubdir {
				hasAnswerSubdir = true
			}
		}
		if hasDirs && !hasAnswerSubdir {
			root = inner
			entries = innerEntries
		}
	}

	var folders []string
	for _, entry := range entries {
		if entry.IsDir() {
			folders = append(folders, filepath.Join(root, entry.Name()))
		}
	}
	return folders, nil
}
