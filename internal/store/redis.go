package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/abdul-hamid-achik/frameset/internal/job"
)

const (
	DefaultKeyPrefix = "frameset:job:"
	DefaultStatusTTL = 24 * time.Hour

	maxSaveAttempts = 5
)

var ErrSaveConflict = errors.New("store: concurrent updates kept conflicting")

type RedisOption func(*RedisStore)

func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// RedisStore mirrors job snapshots into Redis so any API replica can answer
// status polls. Snapshots expire after the configured TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: DefaultKeyPrefix,
		ttl:    DefaultStatusTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewRedisClient parses a redis:// URL into a client.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "index"
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Save merges snap into the stored copy inside an optimistic transaction so
// that late, stale saves cannot undo newer progress.
func (s *RedisStore) Save(ctx context.Context, snap job.Snapshot) error {
	key := s.key(snap.ID)

	txf := func(tx *redis.Tx) error {
		merged := snap
		prev, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var stored job.Snapshot
			if err := json.Unmarshal(prev, &stored); err == nil {
				merged = mergeSnapshots(stored, snap)
			}
		}

		data, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("encode job %s: %w", snap.ID, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			pipe.ZAdd(ctx, s.indexKey(), redis.Z{
				Score:  float64(merged.CreatedAt.UnixNano()),
				Member: merged.ID,
			})
			return nil
		})
		return err
	}

	for i := 0; i < maxSaveAttempts; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return fmt.Errorf("save job %s: %w", snap.ID, err)
		}
	}
	return fmt.Errorf("save job %s: %w", snap.ID, ErrSaveConflict)
}

func (s *RedisStore) Get(ctx context.Context, id string) (*job.Snapshot, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, job.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}

	var snap job.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &snap, nil
}

// List returns the newest snapshots first. Index entries whose snapshot has
// expired are pruned as they are found.
func (s *RedisStore) List(ctx context.Context, limit int) ([]job.Snapshot, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	if len(ids) == 0 {
		return []job.Snapshot{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	snaps := make([]job.Snapshot, 0, len(values))
	var expired []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		var snap job.Snapshot
		if err := json.Unmarshal([]byte(raw), &snap); err != nil {
			continue
		}
		snaps = append(snaps, snap)
	}

	if len(expired) > 0 {
		s.client.ZRem(ctx, s.indexKey(), expired...)
	}
	return snaps, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.key(id))
		pipe.ZRem(ctx, s.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	if del.Val() == 0 {
		return job.ErrNotFound
	}
	return nil
}

// mergeSnapshots combines a stored snapshot with a newer save of the same
// job. Terminal states are sticky and counters never decrease.
func mergeSnapshots(prev, next job.Snapshot) job.Snapshot {
	out := next
	if prev.Status.Terminal() && !next.Status.Terminal() {
		out.Status = prev.Status
		out.FinishedAt = prev.FinishedAt
		out.ErrorCode = prev.ErrorCode
		out.Error = prev.Error
	}
	if out.StartedAt == nil {
		out.StartedAt = prev.StartedAt
	}
	out.Counters = job.Counters{
		TotalEntries:    max(prev.Counters.TotalEntries, next.Counters.TotalEntries),
		ImagesExtracted: max(prev.Counters.ImagesExtracted, next.Counters.ImagesExtracted),
		VideosProcessed: max(prev.Counters.VideosProcessed, next.Counters.VideosProcessed),
		FramesExtracted: max(prev.Counters.FramesExtracted, next.Counters.FramesExtracted),
		Errors:          max(prev.Counters.Errors, next.Counters.Errors),
	}
	if len(prev.Files) > len(next.Files) {
		out.Files = prev.Files
	}
	return out
}
