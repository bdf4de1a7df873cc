package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examind/examind-backend/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ExamRepository handles exam data access. Questions and grading config are
// stored as JSONB; the exam definition is read whole or not at all.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID retrieves a full exam definition by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

// GetByCode retrieves a full exam definition by its join code.
func (r *ExamRepository) GetByCode(ctx context.Context, code string) (*model.Exam, error) {
	return r.getOne(ctx, `WHERE code = $1`, code)
}

func (r *ExamRepository) getOne(ctx context.Context, where string, arg interface{}) (*model.Exam, error) {
	e := &model.Exam{}
	var grading, questions []byte
	err := r.pool.QueryRow(ctx,
		`SELECT id, code, security_hash, title, class_name, duration_minutes,
		        max_violations, allow_hints, allow_review, mix_questions,
		        grading, questions, status, created_at, updated_at
		 FROM exams `+where, arg,
	).Scan(&e.ID, &e.Code, &e.SecurityHash, &e.Title, &e.ClassName, &e.DurationMinutes,
		&e.MaxViolations, &e.AllowHints, &e.AllowReview, &e.MixQuestions,
		&grading, &questions, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(grading, &e.Grading); err != nil {
		return nil, fmt.Errorf("decode grading config: %w", err)
	}
	if err := json.Unmarshal(questions, &e.Questions); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	return e, nil
}

// ListPaginated retrieves exam headers (no question bodies) newest first.
func (r *ExamRepository) ListPaginated(ctx context.Context, limit, offset int) ([]model.Exam, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM exams`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, code, title, class_name, duration_minutes, max_violations,
		        allow_hints, allow_review, mix_questions, status, created_at, updated_at
		 FROM exams
		 ORDER BY created_at DESC
		 LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.Code, &e.Title, &e.ClassName, &e.DurationMinutes,
			&e.MaxViolations, &e.AllowHints, &e.AllowReview, &e.MixQuestions,
			&e.Status, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, 0, err
		}
		exams = append(exams, e)
	}
	return exams, total, rows.Err()
}

// Create inserts a new exam in DRAFT status.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	grading, err := json.Marshal(e.Grading)
	if err != nil {
		return err
	}
	questions, err := json.Marshal(e.Questions)
	if err != nil {
		return err
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (code, security_hash, title, class_name, duration_minutes,
		                    max_violations, allow_hints, allow_review, mix_questions,
		                    grading, questions, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id, created_at, updated_at`,
		e.Code, e.SecurityHash, e.Title, e.ClassName, e.DurationMinutes,
		e.MaxViolations, e.AllowHints, e.AllowReview, e.MixQuestions,
		grading, questions, e.Status,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// Update rewrites a DRAFT exam's definition. Published exams are immutable.
func (r *ExamRepository) Update(ctx context.Context, e *model.Exam) error {
	grading, err := json.Marshal(e.Grading)
	if err != nil {
		return err
	}
	questions, err := json.Marshal(e.Questions)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams
		 SET title = $1, class_name = $2, duration_minutes = $3, max_violations = $4,
		     allow_hints = $5, allow_review = $6, mix_questions = $7,
		     grading = $8, questions = $9, updated_at = NOW()
		 WHERE id = $10 AND status = $11`,
		e.Title, e.ClassName, e.DurationMinutes, e.MaxViolations,
		e.AllowHints, e.AllowReview, e.MixQuestions,
		grading, questions, e.ID, model.ExamStatusDraft)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus transitions an exam between DRAFT, PUBLISHED and ARCHIVED.
func (r *ExamRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ExamStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPublished returns all PUBLISHED exam IDs and codes.
// Used for cache prewarming on application startup.
func (r *ExamRepository) ListPublished(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, code FROM exams WHERE status = $1`, model.ExamStatusPublished)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.Code); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// Delete removes a DRAFT exam. Published exams must be archived instead so
// stored results keep a parent row.
func (r *ExamRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM exams WHERE id = $1 AND status = $2`, id, model.ExamStatusDraft)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
