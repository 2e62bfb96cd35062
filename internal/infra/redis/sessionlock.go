package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/bayy420-999/whatsapp-sender/internal/domain"
	"github.com/bayy420-999/whatsapp-sender/internal/lock"
)

const (
	defaultLockTTL = 2 * time.Minute
	lockKeyPrefix  = "blast:lock:"
)

var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var refreshScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var _ lock.Locker = (*SessionLock)(nil)

// SessionLock enforces the one-driver-per-session ownership rule across
// processes. A lock is keyed by session id and held with a TTL, so a crashed
// driver frees its session after at most one TTL window.
type SessionLock struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewSessionLock(client *goredis.Client, ttl time.Duration) (*SessionLock, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}

	return &SessionLock{client: client, ttl: ttl}, nil
}

// Acquire takes ownership of a session id. It fails with domain.ErrConflict
// when another driver currently holds the lock.
func (l *SessionLock) Acquire(ctx context.Context, sessionID string) (lock.Handle, error) {
	if l == nil || l.client == nil {
		return nil, fmt.Errorf("session lock is not initialized")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", domain.ErrValidation)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	key := lockKeyPrefix + sessionID
	token := uuid.NewString()

	acquired, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire session lock: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: session %s is owned by another driver", domain.ErrConflict, sessionID)
	}

	return &LockHandle{lock: l, key: key, token: token}, nil
}

// LockHandle represents held ownership of one session.
type LockHandle struct {
	lock  *SessionLock
	key   string
	token string
}

// Refresh extends the TTL while the run is still in progress. It fails with
// domain.ErrConflict when ownership was lost (TTL expiry plus takeover).
func (h *LockHandle) Refresh(ctx context.Context) error {
	if h == nil || h.lock == nil {
		return fmt.Errorf("lock handle is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	kept, err := refreshScript.Run(ctx, h.lock.client, []string{h.key}, h.token, h.lock.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to refresh session lock: %w", err)
	}
	if kept == 0 {
		return fmt.Errorf("%w: session lock ownership lost", domain.ErrConflict)
	}
	return nil
}

// Release drops the lock, but only when this handle still owns it.
func (h *LockHandle) Release(ctx context.Context) error {
	if h == nil || h.lock == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := releaseScript.Run(ctx, h.lock.client, []string{h.key}, h.token).Int(); err != nil {
		return fmt.Errorf("failed to release session lock: %w", err)
	}
	return nil
}
