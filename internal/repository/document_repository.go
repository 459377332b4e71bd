package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/swdgrade/similarity-service/internal/models"
)

type DocumentRepository interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id string) (*models.Document, error)
	GetByBatchID(ctx context.Context, batchID string) ([]models.Document, error)
	GetParsedByExam(ctx context.Context, examID string) ([]models.Document, error)
	GetUnembedded(ctx context.Context, limit int) ([]models.Document, error)
	MarkEmbedded(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

type documentRepository struct {
	*PostgresRepository
}

func NewDocumentRepository(db *sql.DB, logger zerolog.Logger) DocumentRepository {
	return &documentRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

const documentColumns = `
	id, batch_id, exam_id, owner_code, file_name, storage_path,
	parsed_text, parse_status, parse_message, embedded, created_at, updated_at
`

func (r *documentRepository) Create(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO documents (
			id, batch_id, exam_id, owner_code, file_name, storage_path,
			parsed_text, parse_status, parse_message, embedded, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		doc.ID,
		doc.BatchID,
		doc.ExamID,
		doc.OwnerCode,
		doc.FileName,
		doc.StoragePath,
		doc.ParsedText,
		string(doc.ParseStatus),
		doc.ParseMessage,
		doc.Embedded,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	return nil
}

func (r *documentRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`

	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *documentRepository) GetByBatchID(ctx context.Context, batchID string) ([]models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE batch_id = $1 ORDER BY created_at`

	return r.queryDocuments(ctx, query, batchID)
}

func (r *documentRepository) GetParsedByExam(ctx context.Context, examID string) ([]models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE exam_id = $1 AND parse_status = 'OK' ORDER BY created_at`

	return r.queryDocuments(ctx, query, examID)
}

func (r *documentRepository) GetUnembedded(ctx context.Context, limit int) ([]models.Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE parse_status = 'OK' AND embedded = FALSE
		ORDER BY created_at
		LIMIT $1
	`

	return r.queryDocuments(ctx, query, limit)
}

func (r *documentRepository) MarkEmbedded(ctx context.Context, id string) error {
	query := `UPDATE documents SET embedded = TRUE, updated_at = $2 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark document embedded: %w", err)
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

func (r *documentRepository) queryDocuments(ctx context.Context, query string, args ...interface{}) ([]models.Document, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}

	return docs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	doc := &models.Document{}
	var parsedText sql.NullString
	var status string

	err := row.Scan(
		&doc.ID,
		&doc.BatchID,
		&doc.ExamID,
		&doc.OwnerCode,
		&doc.FileName,
		&doc.StoragePath,
		&parsedText,
		&status,
		&doc.ParseMessage,
		&doc.Embedded,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if parsedText.Valid {
		doc.ParsedText = &parsedText.String
	}

	doc.ParseStatus, err = models.ParseParseStatus(status)
	if err != nil {
		return nil, err
	}

	return doc, nil
}
