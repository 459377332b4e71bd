package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/swdgrade/similarity-service/internal/models"
)

type SimilarityRepository interface {
	CreateCheck(ctx context.Context, check *models.SimilarityCheck) error
	CreateResult(ctx context.Context, result *models.SimilarityResult) error
	GetResultByID(ctx context.Context, id string) (*models.SimilarityResult, error)
	GetResultsByCheck(ctx context.Context, checkID string) ([]models.SimilarityResult, error)
	// UpdateAIVerification persists an AI verdict only while the result
	// is still Pending; it returns ErrNotFound when no Pending row with
	// the given id exists, which callers surface as a state conflict.
	UpdateAIVerification(ctx context.Context, id string, status models.VerificationStatus, payload []byte, at time.Time) error
	UpdateTeacherVerification(ctx context.Context, id string, status models.VerificationStatus, teacherID string, notes *string, at time.Time) error
	Ping(ctx context.Context) error
}

type similarityRepository struct {
	*PostgresRepository
}

func NewSimilarityRepository(db *sql.DB, logger zerolog.Logger) SimilarityRepository {
	return &similarityRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

func (r *similarityRepository) CreateCheck(ctx context.Context, check *models.SimilarityCheck) error {
	query := `
		INSERT INTO similarity_checks (id, exam_id, threshold, checked_by, checked_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		check.ID,
		check.ExamID,
		check.Threshold,
		nullableID(check.CheckedBy),
		check.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert similarity check: %w", err)
	}

	return nil
}

func (r *similarityRepository) CreateResult(ctx context.Context, result *models.SimilarityResult) error {
	query := `
		INSERT INTO similarity_results (
			id, check_id, doc1_id, doc2_id, score,
			owner1_code, owner2_code, verification_status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	result.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, query,
		result.ID,
		result.CheckID,
		result.Doc1ID,
		result.Doc2ID,
		result.Score,
		result.Owner1Code,
		result.Owner2Code,
		string(result.VerificationStatus),
		result.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert similarity result: %w", err)
	}

	return nil
}

// nullableID maps an empty ID to NULL so optional UUID foreign keys
// (an anonymous check's checked_by) do not trip uuid parsing.
func nullableID(id string) sql.NullString {
	return sql.NullString{String: id, Valid: id != ""}
}

const similarityResultColumns = `
	id, check_id, doc1_id, doc2_id, score, owner1_code, owner2_code,
	verification_status, ai_result, ai_verified_at, teacher_id,
	teacher_notes, teacher_verified_at, created_at
`

func (r *similarityRepository) GetResultByID(ctx context.Context, id string) (*models.SimilarityResult, error) {
	query := `SELECT ` + similarityResultColumns + ` FROM similarity_results WHERE id = $1`

	result, err := scanSimilarityResult(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *similarityRepository) GetResultsByCheck(ctx context.Context, checkID string) ([]models.SimilarityResult, error) {
	query := `SELECT ` + similarityResultColumns + ` FROM similarity_results WHERE check_id = $1 ORDER BY score DESC`

	rows, err := r.db.QueryContext(ctx, query, checkID)
	if err != nil {
		return nil, fmt.Errorf("failed to query similarity results: %w", err)
	}
	defer rows.Close()

	var results []models.SimilarityResult
	for rows.Next() {
		result, err := scanSimilarityResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *result)
	}

	return results, rows.Err()
}

func (r *similarityRepository) UpdateAIVerification(ctx context.Context, id string, status models.VerificationStatus, payload []byte, at time.Time) error {
	query := `
		UPDATE similarity_results
		SET verification_status = $2, ai_result = $3, ai_verified_at = $4
		WHERE id = $1 AND verification_status = 'Pending'
	`

	res, err := r.db.ExecContext(ctx, query, id, string(status), payload, at)
	if err != nil {
		return fmt.Errorf("failed to update AI verification: %w", err)
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

func (r *similarityRepository) UpdateTeacherVerification(ctx context.Context, id string, status models.VerificationStatus, teacherID string, notes *string, at time.Time) error {
	query := `
		UPDATE similarity_results
		SET verification_status = $2, teacher_id = $3, teacher_notes = $4, teacher_verified_at = $5
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, id, string(status), teacherID, notes, at)
	if err != nil {
		return fmt.Errorf("failed to update teacher verification: %w", err)
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

func scanSimilarityResult(row rowScanner) (*models.SimilarityResult, error) {
	result := &models.SimilarityResult{}
	var status string
	var aiResult []byte
	var aiVerifiedAt, teacherVerifiedAt sql.NullTime
	var teacherID, teacherNotes sql.NullString

	err := row.Scan(
		&result.ID,
		&result.CheckID,
		&result.Doc1ID,
		&result.Doc2ID,
		&result.Score,
		&result.Owner1Code,
		&result.Owner2Code,
		&status,
		&aiResult,
		&aiVerifiedAt,
		&teacherID,
		&teacherNotes,
		&teacherVerifiedAt,
		&result.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	result.AIResult = aiResult
	if aiVerifiedAt.Valid {
		result.AIVerifiedAt = &aiVerifiedAt.Time
	}
	if teacherID.Valid {
		result.TeacherID = &teacherID.String
	}
	if teacherNotes.Valid {
		result.TeacherNotes = &teacherNotes.String
	}
	if teacherVerifiedAt.Valid {
		result.TeacherVerifiedAt = &teacherVerifiedAt.Time
	}

	result.VerificationStatus, err = models.ParseVerificationStatus(status)
	if err != nil {
		return nil, err
	}

	return result, nil
}
