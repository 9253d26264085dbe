package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odtboun/River/internal/model"
)

const cacheKeyPrefix = "river:negotiation:"

// Invalidator drops cached state for a negotiation.
type Invalidator interface {
	Invalidate(ctx context.Context, id int64) error
}

// CachedReader is a read-through redis cache in front of a Reader. It
// collapses the polls of many sessions watching the same negotiation.
// Cache failures fall through to the ledger.
type CachedReader struct {
	next   Reader
	redis  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedReader(next Reader, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedReader{next: next, redis: client, ttl: ttl, logger: logger}
}

func (r *CachedReader) Fetch(ctx context.Context, id int64) (*model.NegotiationRecord, error) {
	key := cacheKey(id)

	raw, err := r.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var rec model.NegotiationRecord
		if jsonErr := json.Unmarshal(raw, &rec); jsonErr == nil {
			return &rec, nil
		}
		r.logger.WarnContext(ctx, "dropping undecodable cache entry", "key", key)
	case !errors.Is(err, redis.Nil):
		r.logger.WarnContext(ctx, "negotiation cache read failed", "error", err)
	}

	rec, err := r.next.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(rec); err == nil {
		if err := r.redis.Set(ctx, key, payload, r.ttl).Err(); err != nil {
			r.logger.WarnContext(ctx, "negotiation cache write failed", "error", err)
		}
	}
	return rec, nil
}

func (r *CachedReader) Invalidate(ctx context.Context, id int64) error {
	return r.redis.Del(ctx, cacheKey(id)).Err()
}

func cacheKey(id int64) string {
	return cacheKeyPrefix + strconv.FormatInt(id, 10)
}
