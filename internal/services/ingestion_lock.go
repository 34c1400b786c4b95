package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrIngestionInProgress 已有摄取任务在运行
var ErrIngestionInProgress = errors.New("ingestion already in progress")

// IngestionLock 保证同一时间只有一次摄取运行
type IngestionLock interface {
	// TryAcquire 非阻塞获取锁；acquired 为 false 时 release 为 nil
	TryAcquire(ctx context.Context) (release func(), acquired bool, err error)
}

// LocalLock 进程内锁
type LocalLock struct {
	mu sync.Mutex
}

func NewLocalLock() *LocalLock {
	return &LocalLock{}
}

func (l *LocalLock) TryAcquire(ctx context.Context) (func(), bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	return l.mu.Unlock, true, nil
}

// 仅删除自己持有的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock 多进程部署时基于 SET NX 的分布式锁
type RedisLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewRedisLock(client *redis.Client, key string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client is nil")
	}
	if key == "" {
		key = "docqa:ingestion:lock"
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisLock{client: client, key: key, ttl: ttl}, nil
}

func (l *RedisLock) TryAcquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire ingestion lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{l.key}, token).Err()
	}
	return release, true, nil
}
