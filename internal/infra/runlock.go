package infra

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RunLock enforces the single-flight invocation contract when the worker is
// triggered externally (cron-style run-once): a new pass must not start while
// a previous one still holds the lock. With a nil client the lock degrades to
// a no-op, which is fine for the looped deployment where passes are already
// sequential in-process.
type RunLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
end
return 0
`)

func NewRunLock(client *redis.Client, key string, ttl time.Duration) *RunLock {
	return &RunLock{client: client, key: key, ttl: ttl}
}

// Acquire attempts to take the lock. It returns a release function and
// whether the lock was obtained. The TTL bounds how long a crashed holder can
// block subsequent passes.
func (l *RunLock) Acquire(ctx context.Context) (func(), bool, error) {
	if l == nil || l.client == nil {
		return func() {}, true, nil
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{l.key}, token).Err()
	}
	return release, true, nil
}
