// Package lock provides a Redis lease used to keep periodic jobs single-writer
// across worker replicas.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var ErrNotHeld = errors.New("lock not held")

// releaseScript deletes the key only if it still holds our token, so an
// expired lease never removes a successor's lock
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lease is one attempt to own a named lock
type Lease struct {
	client redis.Cmdable
	key    string
	token  string
	ttl    time.Duration
}

func NewLease(client redis.Cmdable, name string, ttl time.Duration) *Lease {
	return &Lease{
		client: client,
		key:    "lock:" + name,
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

// Key is the Redis key guarding the lease
func (l *Lease) Key() string { return l.key }

// TryAcquire sets the key if absent. It does not block.
func (l *Lease) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	return ok, nil
}

// Release gives the lock up if this lease still owns it
func (l *Lease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}
