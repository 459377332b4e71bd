package repository

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog"

	"github.com/swdgrade/similarity-service/internal/models"
)

// LookupRepository reads the exam and user projections owned by the
// surrounding grading system. Only existence and display fields are
// needed for validation and denormalized response fields.
type LookupRepository interface {
	GetExam(ctx context.Context, id string) (*models.Exam, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	Ping(ctx context.Context) error
}

type lookupRepository struct {
	*PostgresRepository
}

func NewLookupRepository(db *sql.DB, logger zerolog.Logger) LookupRepository {
	return &lookupRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

func (r *lookupRepository) GetExam(ctx context.Context, id string) (*models.Exam, error) {
	exam := &models.Exam{}

	err := r.db.QueryRowContext(ctx,
		`SELECT id, exam_code FROM exams WHERE id = $1`, id,
	).Scan(&exam.ID, &exam.ExamCode)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return exam, nil
}

func (r *lookupRepository) GetUser(ctx context.Context, id string) (*models.User, error) {
	user := &models.User{}

	err := r.db.QueryRowContext(ctx,
		`SELECT id, username FROM users WHERE id = $1`, id,
	).Scan(&user.ID, &user.Username)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return user, nil
}
