package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/examind/examind-backend/internal/config"
	"github.com/examind/examind-backend/internal/model"
	"github.com/examind/examind-backend/internal/repository"
)

const (
	ResultBatchSize    = 50
	ResultBatchTimeout = 2 * time.Second
	ResultPollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ResultWorker drains the result queue into PostgreSQL in batches. The
// session engine already showed the student their score; this loop only has
// to make it durable, so it favors throughput over latency.
type ResultWorker struct {
	repo *repository.ResultRepository
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewResultWorker(repo *repository.ResultRepository, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{
		repo: repo,
		rdb:  rdb,
		log:  log.With().Str("component", "result_worker").Logger(),
	}
}

func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")

	batch := make([]*model.ResultRecord, 0, ResultBatchSize)
	lastFlush := time.Now()

	for {
		// Flush on size or age.
		if len(batch) > 0 &&
			(len(batch) >= ResultBatchSize || time.Since(lastFlush) >= ResultBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, ResultPollTimeout, config.WorkerKey.PersistResultsQueue).Result()
			if err != nil {
				if err == redis.Nil {
					continue // Queue empty, loop back to check the flush timer
				}
				if ctx.Err() != nil {
					return
				}
				w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
				time.Sleep(3 * time.Second)
				continue
			}

			if len(item) < 2 {
				continue
			}

			var rec model.ResultRecord
			if err := json.Unmarshal([]byte(item[1]), &rec); err != nil {
				// Malformed JSON cannot be retried. Log and discard.
				w.log.Error().Err(err).Str("data", item[1]).Msg("Discarding malformed result")
				continue
			}

			batch = append(batch, &rec)
		}
	}
}

// flushSafe attempts bulk upsert, then row-by-row fallback, then requeue.
func (w *ResultWorker) flushSafe(ctx context.Context, batch []*model.ResultRecord) {
	if len(batch) == 0 {
		return
	}

	if err := w.repo.BulkUpsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk upsert failed, attempting row-by-row recovery")

		for _, rec := range batch {
			if err := w.repo.Upsert(ctx, rec); err != nil {
				w.log.Error().Err(err).
					Str("exam_id", rec.ExamID.String()).
					Str("student", rec.StudentName).
					Msg("Single upsert failed — requeueing")
				raw, _ := json.Marshal(rec)
				w.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw)
			}
		}
		return
	}

	w.log.Debug().Int("count", len(batch)).Msg("Result batch persisted")
}
