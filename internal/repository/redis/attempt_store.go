package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/yourusername/fleet-api/internal/domain/entity"
)

const attemptKeyPrefix = "verification:attempts"

// DefaultAttemptRetention is how long an idle counter survives without a new attempt.
const DefaultAttemptRetention = 24 * time.Hour

// acquireScript heals an elapsed lockout, then either rejects (lockout active) or
// increments and trips past the limit. Returns {outcome, count, blocked_until_ms}
// where outcome is 0 allowed, 1 tripped, 2 rejected.
var acquireScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local max = tonumber(ARGV[2])
local lockout = tonumber(ARGV[3])
local retention = tonumber(ARGV[4])

local count = tonumber(redis.call('HGET', key, 'count') or '0')
local blocked = tonumber(redis.call('HGET', key, 'blocked_until') or '0')

if blocked > 0 and now >= blocked then
	count = 0
	blocked = 0
end
if blocked > 0 then
	return {2, count, blocked}
end

count = count + 1
local outcome = 0
if count > max then
	blocked = now + lockout
	outcome = 1
end

redis.call('HSET', key, 'count', count, 'blocked_until', blocked)
local ttl = retention
if blocked > 0 and blocked - now > ttl then
	ttl = blocked - now
end
redis.call('PEXPIRE', key, ttl)
return {outcome, count, blocked}
`)

// AttemptStore keeps resend windows in Redis hashes; the Lua script makes Acquire
// atomic across instances.
type AttemptStore struct {
	client    redis.UniversalClient
	retention time.Duration
}

// NewAttemptStore создает хранилище счетчиков попыток в Redis
func NewAttemptStore(client redis.UniversalClient, retention time.Duration) (*AttemptStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil for AttemptStore")
	}
	if retention <= 0 {
		retention = DefaultAttemptRetention
	}
	return &AttemptStore{client: client, retention: retention}, nil
}

func attemptKey(accountID uint) string {
	return fmt.Sprintf("%s:%d", attemptKeyPrefix, accountID)
}

func (s *AttemptStore) Acquire(ctx context.Context, accountID uint, now time.Time, policy entity.AttemptPolicy) (entity.AttemptWindow, entity.AttemptOutcome, error) {
	// A lockout must outlive its key, so retention is at least the lockout.
	retention := s.retention
	if policy.Lockout > retention {
		retention = policy.Lockout
	}

	res, err := acquireScript.Run(ctx, s.client, []string{attemptKey(accountID)},
		now.UnixMilli(), policy.MaxAttempts, policy.Lockout.Milliseconds(), retention.Milliseconds(),
	).Result()
	if err != nil {
		return entity.AttemptWindow{}, entity.AttemptAllowed, fmt.Errorf("acquire attempt for account #%d failed: %w", accountID, err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) != 3 {
		return entity.AttemptWindow{}, entity.AttemptAllowed, fmt.Errorf("unexpected attempt script reply %v", res)
	}
	code, _ := values[0].(int64)
	count, _ := values[1].(int64)
	blockedMs, _ := values[2].(int64)

	window := entity.AttemptWindow{Count: int(count), BlockedUntil: fromMillis(blockedMs)}
	switch code {
	case 1:
		return window, entity.AttemptTripped, nil
	case 2:
		return window, entity.AttemptRejected, nil
	default:
		return window, entity.AttemptAllowed, nil
	}
}

func (s *AttemptStore) Peek(ctx context.Context, accountID uint) (entity.AttemptWindow, error) {
	values, err := s.client.HMGet(ctx, attemptKey(accountID), "count", "blocked_until").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return entity.AttemptWindow{}, nil
		}
		return entity.AttemptWindow{}, err
	}

	var window entity.AttemptWindow
	if raw, ok := values[0].(string); ok {
		if n, err := strconv.Atoi(raw); err == nil {
			window.Count = n
		}
	}
	if raw, ok := values[1].(string); ok {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			window.BlockedUntil = fromMillis(ms)
		}
	}
	return window, nil
}

func (s *AttemptStore) Reset(ctx context.Context, accountID uint) error {
	return s.client.Del(ctx, attemptKey(accountID)).Err()
}

func fromMillis(ms int64) *time.Time {
	if ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms)
	return &t
}
