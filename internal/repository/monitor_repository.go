package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// MonitorRepository provides data access for the live exam monitoring
// feature. It combines PostgreSQL (finished results, violation trail) and
// Redis (live session snapshots).
type MonitorRepository struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool, rdb *redis.Client) *MonitorRepository {
	return &MonitorRepository{pool: pool, rdb: rdb}
}

// GetLiveSnapshotKeys scans Redis for every live session snapshot of the
// given exam. Each key identifies one in-progress student.
func (r *MonitorRepository) GetLiveSnapshotKeys(ctx context.Context, examID uuid.UUID) ([]string, error) {
	pattern := fmt.Sprintf("exam:%s:student:*:snapshot", examID)

	var keys []string
	var cursor uint64
	for {
		batch, next, err := r.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

// GetFinishedCount returns how many results have been stored for the exam.
func (r *MonitorRepository) GetFinishedCount(ctx context.Context, examID uuid.UUID) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_results WHERE exam_id = $1`, examID,
	).Scan(&count)
	return count, err
}

// GetViolationCounts returns the stored violation tally per student identity
// for the given exam.
func (r *MonitorRepository) GetViolationCounts(ctx context.Context, examID uuid.UUID) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_name || ' / ' || class_name, COUNT(*)
		 FROM exam_violations
		 WHERE exam_id = $1
		 GROUP BY student_name, class_name`,
		examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var identity string
		var count int64
		if err := rows.Scan(&identity, &count); err != nil {
			return nil, err
		}
		counts[identity] = count
	}
	return counts, rows.Err()
}
