package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisLedger stores records in Redis so several mock instances behind a
// load balancer share one view of replayed keys. A zero TTL keeps records forever.
type RedisLedger struct {
	R      *redis.Client
	Prefix string
	TTL    time.Duration
}

func (l RedisLedger) redisKey(op Operation, key string) string {
	sum := sha256.Sum256([]byte(key))
	prefix := l.Prefix
	if prefix == "" {
		prefix = "idem"
	}
	return fmt.Sprintf("%s:%s:%s", prefix, op, hex.EncodeToString(sum[:]))
}

// Lookup returns the record stored for key under op.
func (l RedisLedger) Lookup(ctx context.Context, op Operation, key string) (Record, bool, error) {
	if l.R == nil {
		return Record{}, false, errors.New("idempotency: redis client not configured")
	}
	raw, err := l.R.Get(ctx, l.redisKey(op, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("idempotency: get: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, false, fmt.Errorf("idempotency: decode record: %w", err)
	}
	return rec, true, nil
}

// Remember stores rec with SET NX so the first writer wins.
func (l RedisLedger) Remember(ctx context.Context, op Operation, key string, rec Record) error {
	if l.R == nil {
		return errors.New("idempotency: redis client not configured")
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("idempotency: encode record: %w", err)
	}
	ok, err := l.R.SetNX(ctx, l.redisKey(op, key), raw, l.TTL).Result()
	if err != nil {
		return fmt.Errorf("idempotency: setnx: %w", err)
	}
	if !ok {
		return ErrKeyExists
	}
	return nil
}
