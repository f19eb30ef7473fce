package booking

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	providerLockPrefix = "lock:provider:"
	providerLockTTL    = 10 * time.Second

	// A contended Acquire polls briefly instead of failing outright, so a
	// concurrent writer for the same slot serialises behind the holder and
	// gets a conflict from the overlap check rather than ErrProviderBusy.
	lockAttempts   = 20
	lockRetryDelay = 75 * time.Millisecond
)

// ErrProviderBusy is returned when another writer holds the provider's
// booking lock.
var ErrProviderBusy = errors.New("provider schedule is being modified, try again")

// releaseScript deletes the lock only if the caller still owns it, so an
// expired lock taken over by another writer is never released from under them.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ProviderLocker serialises booking writes per provider across processes
// with a Redis mutex.
type ProviderLocker struct {
	client *redis.Client
}

func NewProviderLocker(client *redis.Client) *ProviderLocker {
	return &ProviderLocker{client: client}
}

// Acquire takes the provider's write lock and returns a release func,
// polling for a bounded period when the lock is held. Returns
// ErrProviderBusy when the holder outlasts the polling window.
func (l *ProviderLocker) Acquire(ctx context.Context, providerID string) (func(), error) {
	key := providerLockPrefix + providerID
	token := uuid.NewString()

	for attempt := 0; attempt < lockAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(lockRetryDelay):
			}
		}
		ok, err := l.client.SetNX(ctx, key, token, providerLockTTL).Result()
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		release := func() {
			releaseScript.Run(context.Background(), l.client, []string{key}, token)
		}
		return release, nil
	}
	return nil, ErrProviderBusy
}
