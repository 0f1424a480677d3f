package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/replayproof/engine/pkg/types"
)

// Redis key layout: one JSON blob per session plus an index set of ids.
const (
	redisKeyPrefix = "rpv:session:"
	redisIndexKey  = "rpv:sessions"
)

// RedisConfig configures the Redis session backend.
type RedisConfig struct {
	Addr     string        `yaml:"addr" json:"addr"`
	Password string        `yaml:"password" json:"password"`
	DB       int           `yaml:"db" json:"db"`
	TTL      time.Duration `yaml:"ttl" json:"ttl"` // 0 keeps sessions forever
}

// RedisStore keeps sessions in Redis so CI workers can share recordings.
type RedisStore struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
func NewRedisStore(cfg *RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if cfg == nil || cfg.Addr == "" {
		return nil, fmt.Errorf("%w: redis address is required", types.ErrInput)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to connect to Redis at '%s': %v", types.ErrIO, cfg.Addr, err)
	}

	logger.Debug("Redis session store connected",
		zap.String("addr", cfg.Addr),
		zap.Int("db", cfg.DB))

	return &RedisStore{rdb: rdb, ttl: cfg.TTL, logger: logger}, nil
}

// NewRedisStoreWithClient wraps an existing client. Used by tests with
// miniredis.
func NewRedisStoreWithClient(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl, logger: logger}
}

// Load fetches a session by id.
func (rs *RedisStore) Load(ctx context.Context, id string) (*types.Session, error) {
	raw, err := rs.rdb.Get(ctx, redisKeyPrefix+id).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: session '%s' not found", types.ErrInput, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: redis get failed for session '%s': %v", types.ErrIO, id, err)
	}

	var s types.Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("%w: malformed stored session '%s': %v", types.ErrInput, id, err)
	}
	return &s, nil
}

// Save stores a session blob and adds its id to the index set atomically.
func (rs *RedisStore) Save(ctx context.Context, session *types.Session) error {
	if err := Validate(session); err != nil {
		return fmt.Errorf("%w: %v", types.ErrInput, err)
	}

	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("%w: failed to encode session: %v", types.ErrIO, err)
	}

	key := redisKeyPrefix + session.SessionID
	pipe := rs.rdb.TxPipeline()
	pipe.Set(ctx, key, raw, rs.ttl)
	pipe.SAdd(ctx, redisIndexKey, session.SessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: redis save failed for session '%s': %v", types.ErrIO, session.SessionID, err)
	}

	rs.logger.Info("Session saved to Redis",
		zap.String("session_id", session.SessionID),
		zap.Int("interactions", len(session.Interactions)))
	return nil
}

// List returns entries for every indexed session, sorted by id. Ids whose
// blob expired are pruned from the index as they are encountered.
func (rs *RedisStore) List(ctx context.Context) ([]Entry, error) {
	ids, err := rs.rdb.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: redis index read failed: %v", types.ErrIO, err)
	}
	sort.Strings(ids)

	var entries []Entry
	for _, id := range ids {
		s, err := rs.Load(ctx, id)
		if err != nil {
			rs.rdb.SRem(ctx, redisIndexKey, id)
			rs.logger.Warn("Pruned stale session index entry",
				zap.String("session_id", id), zap.Error(err))
			continue
		}
		entries = append(entries, Entry{
			SessionID:    s.SessionID,
			Interactions: len(s.Interactions),
			CreatedAt:    s.Metadata.CreatedAt,
			Tags:         s.Metadata.Tags,
			Description:  s.Metadata.Description,
		})
	}
	return entries, nil
}

// Delete removes a session blob and its index entry.
func (rs *RedisStore) Delete(ctx context.Context, id string) error {
	pipe := rs.rdb.TxPipeline()
	pipe.Del(ctx, redisKeyPrefix+id)
	pipe.SRem(ctx, redisIndexKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: redis delete failed for session '%s': %v", types.ErrIO, id, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (rs *RedisStore) Close() error {
	return rs.rdb.Close()
}
