package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examind/examind-backend/internal/model"
)

// ResultRepository stores finalized exam results. The (exam_id, student_name,
// class_name) triple is unique; a re-finalized session overwrites its row.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

// GetByIdentity retrieves one result by its session identity. Used to block
// re-entry after a completed attempt.
func (r *ResultRepository) GetByIdentity(ctx context.Context, examID uuid.UUID, studentName, className string) (*model.ResultRecord, error) {
	rec := &model.ResultRecord{}
	var breakdown, answers []byte
	err := r.pool.QueryRow(ctx,
		`SELECT exam_id, student_name, class_name, score, total_questions,
		        correct_count, wrong_count, empty_count, breakdown,
		        time_spent_seconds, violation_count, answers, trigger, finished_at
		 FROM exam_results
		 WHERE exam_id = $1 AND student_name = $2 AND class_name = $3`,
		examID, studentName, className,
	).Scan(&rec.ExamID, &rec.StudentName, &rec.ClassName, &rec.Score, &rec.TotalQuestions,
		&rec.Counts.Correct, &rec.Counts.Wrong, &rec.Counts.Empty, &breakdown,
		&rec.TimeSpentSeconds, &rec.ViolationCount, &answers, &rec.Trigger, &rec.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := decodeBreakdown(breakdown, rec); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(answers, &rec.Answers); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListByExam retrieves results for one exam with pagination, optionally
// filtered by class name, highest score first.
func (r *ResultRepository) ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int, className *string) ([]model.ResultRecord, int64, error) {
	countQuery := `SELECT COUNT(*) FROM exam_results WHERE exam_id = $1`
	countArgs := []interface{}{examID}
	if className != nil {
		countQuery += ` AND class_name = $2`
		countArgs = append(countArgs, *className)
	}

	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT exam_id, student_name, class_name, score, total_questions,
	                 correct_count, wrong_count, empty_count, breakdown,
	                 time_spent_seconds, violation_count, trigger, finished_at
	          FROM exam_results WHERE exam_id = $1`
	args := []interface{}{examID}
	if className != nil {
		query += ` AND class_name = $2`
		args = append(args, *className)
		query += ` ORDER BY score DESC, finished_at ASC LIMIT $3 OFFSET $4`
	} else {
		query += ` ORDER BY score DESC, finished_at ASC LIMIT $2 OFFSET $3`
	}
	args = append(args, perPage, (page-1)*perPage)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var records []model.ResultRecord
	for rows.Next() {
		var rec model.ResultRecord
		var breakdown []byte
		if err := rows.Scan(&rec.ExamID, &rec.StudentName, &rec.ClassName, &rec.Score, &rec.TotalQuestions,
			&rec.Counts.Correct, &rec.Counts.Wrong, &rec.Counts.Empty, &breakdown,
			&rec.TimeSpentSeconds, &rec.ViolationCount, &rec.Trigger, &rec.FinishedAt); err != nil {
			return nil, 0, err
		}
		if err := decodeBreakdown(breakdown, &rec); err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	return records, total, rows.Err()
}

// Upsert persists one result, overwriting any previous attempt by the same
// identity. Used as the row-by-row fallback when a bulk flush fails.
func (r *ResultRepository) Upsert(ctx context.Context, rec *model.ResultRecord) error {
	breakdown, answers, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO exam_results (exam_id, student_name, class_name, score, total_questions,
		                           correct_count, wrong_count, empty_count, breakdown,
		                           time_spent_seconds, violation_count, answers, trigger, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (exam_id, student_name, class_name) DO UPDATE
		 SET score = EXCLUDED.score,
		     total_questions = EXCLUDED.total_questions,
		     correct_count = EXCLUDED.correct_count,
		     wrong_count = EXCLUDED.wrong_count,
		     empty_count = EXCLUDED.empty_count,
		     breakdown = EXCLUDED.breakdown,
		     time_spent_seconds = EXCLUDED.time_spent_seconds,
		     violation_count = EXCLUDED.violation_count,
		     answers = EXCLUDED.answers,
		     trigger = EXCLUDED.trigger,
		     finished_at = EXCLUDED.finished_at`,
		rec.ExamID, rec.StudentName, rec.ClassName, rec.Score, rec.TotalQuestions,
		rec.Counts.Correct, rec.Counts.Wrong, rec.Counts.Empty, breakdown,
		rec.TimeSpentSeconds, rec.ViolationCount, answers, rec.Trigger, rec.FinishedAt)
	return err
}

// BulkUpsert persists a batch in one statement using UNNEST.
func (r *ResultRepository) BulkUpsert(ctx context.Context, batch []*model.ResultRecord) error {
	n := len(batch)

	examIDs := make([]uuid.UUID, 0, n)
	names := make([]string, 0, n)
	classes := make([]string, 0, n)
	scores := make([]float64, 0, n)
	totals := make([]int, 0, n)
	corrects := make([]int, 0, n)
	wrongs := make([]int, 0, n)
	empties := make([]int, 0, n)
	breakdowns := make([][]byte, 0, n)
	timeSpents := make([]int, 0, n)
	violations := make([]int, 0, n)
	answersCol := make([][]byte, 0, n)
	triggers := make([]string, 0, n)
	finishedAts := make([]time.Time, 0, n)

	for _, rec := range batch {
		breakdown, answers, err := encodeRecord(rec)
		if err != nil {
			return err
		}
		examIDs = append(examIDs, rec.ExamID)
		names = append(names, rec.StudentName)
		classes = append(classes, rec.ClassName)
		scores = append(scores, rec.Score)
		totals = append(totals, rec.TotalQuestions)
		corrects = append(corrects, rec.Counts.Correct)
		wrongs = append(wrongs, rec.Counts.Wrong)
		empties = append(empties, rec.Counts.Empty)
		breakdowns = append(breakdowns, breakdown)
		timeSpents = append(timeSpents, rec.TimeSpentSeconds)
		violations = append(violations, rec.ViolationCount)
		answersCol = append(answersCol, answers)
		triggers = append(triggers, string(rec.Trigger))
		finishedAts = append(finishedAts, rec.FinishedAt)
	}

	query := `
		INSERT INTO exam_results (exam_id, student_name, class_name, score, total_questions,
		                          correct_count, wrong_count, empty_count, breakdown,
		                          time_spent_seconds, violation_count, answers, trigger, finished_at)
		SELECT u.exam_id, u.student_name, u.class_name, u.score, u.total_questions,
		       u.correct_count, u.wrong_count, u.empty_count, u.breakdown,
		       u.time_spent_seconds, u.violation_count, u.answers, u.trigger, u.finished_at
		FROM UNNEST(
			$1::uuid[],
			$2::text[],
			$3::text[],
			$4::float8[],
			$5::int[],
			$6::int[],
			$7::int[],
			$8::int[],
			$9::jsonb[],
			$10::int[],
			$11::int[],
			$12::jsonb[],
			$13::text[],
			$14::timestamptz[]
		) AS u (exam_id, student_name, class_name, score, total_questions,
		        correct_count, wrong_count, empty_count, breakdown,
		        time_spent_seconds, violation_count, answers, trigger, finished_at)
		ON CONFLICT (exam_id, student_name, class_name) DO UPDATE
		SET score = EXCLUDED.score,
		    total_questions = EXCLUDED.total_questions,
		    correct_count = EXCLUDED.correct_count,
		    wrong_count = EXCLUDED.wrong_count,
		    empty_count = EXCLUDED.empty_count,
		    breakdown = EXCLUDED.breakdown,
		    time_spent_seconds = EXCLUDED.time_spent_seconds,
		    violation_count = EXCLUDED.violation_count,
		    answers = EXCLUDED.answers,
		    trigger = EXCLUDED.trigger,
		    finished_at = EXCLUDED.finished_at
	`

	_, err := r.pool.Exec(ctx, query, examIDs, names, classes, scores, totals,
		corrects, wrongs, empties, breakdowns, timeSpents, violations,
		answersCol, triggers, finishedAts)
	return err
}

// resultBreakdown is the JSONB shape of the per-family columns.
type resultBreakdown struct {
	Choice model.FamilyBreakdown `json:"choice"`
	Group  model.FamilyBreakdown `json:"group"`
	Text   model.FamilyBreakdown `json:"text"`
}

func encodeRecord(rec *model.ResultRecord) (breakdown, answers []byte, err error) {
	breakdown, err = json.Marshal(resultBreakdown{Choice: rec.Choice, Group: rec.Group, Text: rec.Text})
	if err != nil {
		return nil, nil, err
	}
	answers, err = json.Marshal(rec.Answers)
	if err != nil {
		return nil, nil, err
	}
	return breakdown, answers, nil
}

func decodeBreakdown(raw []byte, rec *model.ResultRecord) error {
	var b resultBreakdown
	if err := json.Unmarshal(raw, &b); err != nil {
		return err
	}
	rec.Choice, rec.Group, rec.Text = b.Choice, b.Group, b.Text
	return nil
}
