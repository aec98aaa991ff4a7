package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Only the holder's token may delete the key, so a lock that expired and
// was re-acquired by someone else is never released by the old holder.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// Redis is a single-instance SET NX lock.
type Redis struct {
	Client *redis.Client
	TTL    time.Duration
	Log    zerolog.Logger
}

func (l *Redis) ttl() time.Duration {
	if l.TTL > 0 {
		return l.TTL
	}
	return 15 * time.Second
}

// Acquire takes the lock named by key. When ok is true the caller must
// invoke release; the TTL bounds the damage if it never does.
func (l *Redis) Acquire(ctx context.Context, key string) (release func(context.Context), ok bool, err error) {
	token := uuid.NewString()
	full := "lock:" + key
	ok, err = l.Client.SetNX(ctx, full, token, l.ttl()).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	release = func(ctx context.Context) {
		if err := releaseScript.Run(ctx, l.Client, []string{full}, token).Err(); err != nil && err != redis.Nil {
			l.Log.Warn().Err(err).Str("key", full).Msg("lock release failed")
		}
	}
	return release, true, nil
}
