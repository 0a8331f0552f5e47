package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zeu5/rl-frame/types"
)

// RedisTransport backs the parameter board and the experience queue with one
// redis instance: the board is a plain key, the queue a list. Multiple actor
// processes may share it.
type RedisTransport struct {
	client   *redis.Client
	paramKey string
	queueKey string
	timeout  time.Duration
}

var (
	_ ParameterBoard  = &RedisTransport{}
	_ ExperienceQueue = &RedisTransport{}
)

func NewRedisTransport(addr, namespace string) *RedisTransport {
	if namespace == "" {
		namespace = "rl-frame"
	}
	return &RedisTransport{
		client: redis.NewClient(&redis.Options{
			Addr:        addr,
			DialTimeout: 500 * time.Millisecond,
		}),
		paramKey: namespace + ":parameter",
		queueKey: namespace + ":experiences",
		timeout:  2 * time.Second,
	}
}

func (t *RedisTransport) Publish(blob types.Blob) error {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	if err := t.client.Set(ctx, t.paramKey, []byte(blob), 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", t.paramKey, err)
	}
	return nil
}

func (t *RedisTransport) Latest() (types.Blob, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	raw, err := t.client.Get(ctx, t.paramKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", t.paramKey, err)
	}
	return types.Blob(raw), true, nil
}

func (t *RedisTransport) Push(payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	if err := t.client.LPush(ctx, t.queueKey, payload).Err(); err != nil {
		return fmt.Errorf("redis lpush %s: %w", t.queueKey, err)
	}
	return nil
}

func (t *RedisTransport) Pop(max int) ([][]byte, error) {
	if max <= 0 {
		max = 64
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	raw, err := t.client.RPopCount(ctx, t.queueKey, max).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis rpop %s: %w", t.queueKey, err)
	}
	payloads := make([][]byte, len(raw))
	for i, s := range raw {
		payloads[i] = []byte(s)
	}
	return payloads, nil
}

// Reset clears both keys, for starting a fresh training session.
func (t *RedisTransport) Reset() error {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	return t.client.Del(ctx, t.paramKey, t.queueKey).Err()
}

func (t *RedisTransport) Close() error {
	return t.client.Close()
}
