package session

import (
	"context"
	"encoding/json"

	"github.com/examind/examind-backend/internal/config"
	"github.com/examind/examind-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// SnapshotStore is the durable key-value store behind session recovery.
// Load returns (nil, nil) when no usable snapshot exists: a malformed
// snapshot is treated exactly like a missing one, so a corrupt entry falls
// back to fresh initialization instead of crashing the session.
type SnapshotStore interface {
	Load(ctx context.Context, key model.SessionKey) (*model.Snapshot, error)
	Save(ctx context.Context, key model.SessionKey, snap *model.Snapshot) error
	Delete(ctx context.Context, key model.SessionKey) error
}

// RedisSnapshotStore persists snapshots as JSON values in Redis, keyed by the
// composite exam+student+class session key.
type RedisSnapshotStore struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewRedisSnapshotStore creates a Redis-backed snapshot store.
func NewRedisSnapshotStore(rdb *redis.Client, log zerolog.Logger) *RedisSnapshotStore {
	return &RedisSnapshotStore{
		rdb: rdb,
		log: log.With().Str("component", "snapshot_store").Logger(),
	}
}

func snapshotKey(key model.SessionKey) string {
	return config.CacheKey.SessionSnapshotKey(key.ExamID.String(), key.StudentName, key.ClassName)
}

// Load fetches and decodes the snapshot for the given session key.
func (s *RedisSnapshotStore) Load(ctx context.Context, key model.SessionKey) (*model.Snapshot, error) {
	raw, err := s.rdb.Get(ctx, snapshotKey(key)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snap model.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		s.log.Warn().Err(err).
			Str("exam_id", key.ExamID.String()).
			Msg("Discarding malformed snapshot")
		return nil, nil
	}
	if len(snap.OrderedQuestions) == 0 {
		return nil, nil
	}
	return &snap, nil
}

// Save serializes the full snapshot and writes it synchronously. Callers rely
// on write-through ordering: the snapshot hits Redis before the mutation is
// acknowledged to the client.
func (s *RedisSnapshotStore) Save(ctx context.Context, key model.SessionKey, snap *model.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, snapshotKey(key), raw, 0).Err()
}

// Delete removes the snapshot. Called exactly once, on finalization; a
// submitted exam cannot be resumed.
func (s *RedisSnapshotStore) Delete(ctx context.Context, key model.SessionKey) error {
	return s.rdb.Del(ctx, snapshotKey(key)).Err()
}
