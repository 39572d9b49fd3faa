// Package redislock implements lock.Locker on Redis with SET NX and a
// compare-and-delete release script.
package redislock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/vesting/lock"
)

const (
	defaultPrefix = "vesting:lock:"
	defaultTTL    = 30 * time.Second
	defaultRetry  = 25 * time.Millisecond
)

// releaseScript deletes the key only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var _ lock.Locker = (*Locker)(nil)

// Locker is a Redis-backed lock.Locker.
type Locker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

// Option configures a Locker.
type Option func(*Locker)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(l *Locker) { l.prefix = prefix }
}

// WithTTL sets how long a lock survives a crashed holder.
func WithTTL(ttl time.Duration) Option {
	return func(l *Locker) { l.ttl = ttl }
}

// WithRetryInterval sets how often a blocked Lock polls.
func WithRetryInterval(d time.Duration) Option {
	return func(l *Locker) { l.retry = d }
}

// New creates a Locker over client.
func New(client redis.UniversalClient, opts ...Option) *Locker {
	l := &Locker{
		client: client,
		prefix: defaultPrefix,
		ttl:    defaultTTL,
		retry:  defaultRetry,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock implements lock.Locker.
func (l *Locker) Lock(ctx context.Context, key string) (lock.Unlock, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	redisKey := l.prefix + key

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("redislock: acquire %s: %w", key, err)
		}
		if ok {
			return l.unlocker(redisKey, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *Locker) unlocker(redisKey, token string) lock.Unlock {
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			// A failed release is bounded by the TTL.
			_ = releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err()
		})
	}
}

func newToken() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("redislock: token: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
