/*
Package redislock provides a natural-key lock shared between processes.

PURPOSE:
  attendance.MemoryLocker only serialises callers inside one process. When
  several server replicas write the same table, the reconciler needs the
  lock to live in Redis instead.

PROTOCOL:
  Lock:    SET <prefix><key> <token> NX PX <ttl>, polled until it succeeds
           or the context is done
  Unlock:  delete the key only if it still holds our token (Lua script)

  The TTL bounds how long a crashed holder can block a key. It must be
  longer than one create-or-update round trip.

SEE ALSO:
  - attendance/locker.go: KeyLocker interface and in-process implementation
*/
package redislock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/warp/attendance-engine/attendance"
)

const (
	DefaultTTL           = 10 * time.Second
	DefaultRetryInterval = 10 * time.Millisecond
	DefaultPrefix        = "attendance:lock:"
)

var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker implements attendance.KeyLocker on Redis.
type Locker struct {
	rdb           *goredis.Client
	TTL           time.Duration
	RetryInterval time.Duration
	Prefix        string
}

var _ attendance.KeyLocker = (*Locker)(nil)

// New connects to addr and verifies the connection.
func New(addr string, ttl time.Duration) (*Locker, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewWithClient(rdb, ttl), nil
}

// NewWithClient wraps an existing client. A non-positive ttl means DefaultTTL.
func NewWithClient(rdb *goredis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Locker{
		rdb:           rdb,
		TTL:           ttl,
		RetryInterval: DefaultRetryInterval,
		Prefix:        DefaultPrefix,
	}
}

// Close closes the Redis client.
func (l *Locker) Close() error {
	return l.rdb.Close()
}

// Lock blocks until key is acquired or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	name := l.Prefix + key
	token := uuid.NewString()

	for {
		ok, err := l.rdb.SetNX(ctx, name, token, l.TTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: acquire lock %s: %w", attendance.ErrStoreUnavailable, key, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(l.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			// Runs after the caller's ctx may be gone. A failed release is
			// left to expire with the TTL.
			rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = releaseScript.Run(rctx, l.rdb, []string{name}, token).Err()
		})
	}
	return unlock, nil
}
