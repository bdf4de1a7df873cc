package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examind/examind-backend/internal/model"
)

// ViolationRepository stores the proctoring trail: counted violations plus
// audit-only deterrence events. Rows are append-only; the trail never
// changes after the fact.
type ViolationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{pool: pool}
}

// BulkInsert appends a batch of violation events via COPY.
func (r *ViolationRepository) BulkInsert(ctx context.Context, batch []*model.ViolationEvent) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, v := range batch {
		rows = append(rows, []interface{}{
			v.ExamID, v.StudentName, v.ClassName, v.Signal,
			v.ViolationCount, v.Escalated, v.Deterrence, v.OccurredAt,
		})
	}

	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"exam_violations"},
		[]string{"exam_id", "student_name", "class_name", "signal",
			"violation_count", "escalated", "deterrence", "occurred_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// Insert appends a single violation event. Fallback path when COPY fails.
func (r *ViolationRepository) Insert(ctx context.Context, v *model.ViolationEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_violations (exam_id, student_name, class_name, signal,
		                              violation_count, escalated, deterrence, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		v.ExamID, v.StudentName, v.ClassName, v.Signal,
		v.ViolationCount, v.Escalated, v.Deterrence, v.OccurredAt)
	return err
}

// ListByExam retrieves the stored violation trail for one exam, newest first.
func (r *ViolationRepository) ListByExam(ctx context.Context, examID uuid.UUID, limit int) ([]model.ViolationEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT exam_id, student_name, class_name, signal, violation_count, escalated, deterrence, occurred_at
		 FROM exam_violations
		 WHERE exam_id = $1
		 ORDER BY occurred_at DESC
		 LIMIT $2`, examID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.ViolationEvent
	for rows.Next() {
		var v model.ViolationEvent
		if err := rows.Scan(&v.ExamID, &v.StudentName, &v.ClassName, &v.Signal,
			&v.ViolationCount, &v.Escalated, &v.Deterrence, &v.OccurredAt); err != nil {
			return nil, err
		}
		events = append(events, v)
	}
	return events, rows.Err()
}
