package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/swdgrade/similarity-service/internal/models"
)

type BatchRepository interface {
	Create(ctx context.Context, batch *models.IngestionBatch) error
	GetByID(ctx context.Context, id string) (*models.IngestionBatch, error)
	GetPending(ctx context.Context, limit int) ([]models.IngestionBatch, error)
	Finalize(ctx context.Context, batch *models.IngestionBatch) error
	Ping(ctx context.Context) error
}

type batchRepository struct {
	*PostgresRepository
}

func NewBatchRepository(db *sql.DB, logger zerolog.Logger) BatchRepository {
	return &batchRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

func (r *batchRepository) Create(ctx context.Context, batch *models.IngestionBatch) error {
	query := `
		INSERT INTO ingestion_batches (
			id, exam_id, archive_path, status, summary,
			processed_count, success_count, error_count, failed_owners, uploaded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	batch.UploadedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, query,
		batch.ID,
		batch.ExamID,
		batch.ArchivePath,
		string(batch.Status),
		batch.Summary,
		batch.ProcessedCount,
		batch.SuccessCount,
		batch.ErrorCount,
		pq.Array(batch.FailedOwners),
		batch.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert ingestion batch: %w", err)
	}

	return nil
}

func (r *batchRepository) GetByID(ctx context.Context, id string) (*models.IngestionBatch, error) {
	query := `
		SELECT id, exam_id, archive_path, status, summary,
		       processed_count, success_count, error_count, failed_owners,
		       uploaded_at, processed_at
		FROM ingestion_batches
		WHERE id = $1
	`

	batch, err := scanBatch(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return batch, nil
}

func (r *batchRepository) GetPending(ctx context.Context, limit int) ([]models.IngestionBatch, error) {
	query := `
		SELECT id, exam_id, archive_path, status, summary,
		       processed_count, success_count, error_count, failed_owners,
		       uploaded_at, processed_at
		FROM ingestion_batches
		WHERE status = 'PENDING'
		ORDER BY uploaded_at
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending batches: %w", err)
	}
	defer rows.Close()

	var batches []models.IngestionBatch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, *batch)
	}

	return batches, rows.Err()
}

// Finalize records the single post-processing write for a batch: final
// status, counts, failed owners and summary in one statement.
func (r *batchRepository) Finalize(ctx context.Context, batch *models.IngestionBatch) error {
	query := `
		UPDATE ingestion_batches
		SET status = $2, summary = $3, processed_count = $4, success_count = $5,
		    error_count = $6, failed_owners = $7, processed_at = $8
		WHERE id = $1
	`

	now := time.Now().UTC()
	batch.ProcessedAt = &now

	res, err := r.db.ExecContext(ctx, query,
		batch.ID,
		string(batch.Status),
		batch.Summary,
		batch.ProcessedCount,
		batch.SuccessCount,
		batch.ErrorCount,
		pq.Array(batch.FailedOwners),
		batch.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize ingestion batch: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

func scanBatch(row rowScanner) (*models.IngestionBatch, error) {
	batch := &models.IngestionBatch{}
	var status string
	var processedAt sql.NullTime
	var failedOwners pq.StringArray

	err := row.Scan(
		&batch.ID,
		&batch.ExamID,
		&batch.ArchivePath,
		&status,
		&batch.Summary,
		&batch.ProcessedCount,
		&batch.SuccessCount,
		&batch.ErrorCount,
		&failedOwners,
		&batch.UploadedAt,
		&processedAt,
	)
	if err != nil {
		return nil, err
	}

	batch.FailedOwners = failedOwners
	if processedAt.Valid {
		batch.ProcessedAt = &processedAt.Time
	}

	batch.Status, err = models.ParseBatchStatus(status)
	if err != nil {
		return nil, err
	}

	return batch, nil
}
