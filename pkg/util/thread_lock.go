package util

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrLockTimeout 等待线程锁超时
var ErrLockTimeout = errors.New("timed out waiting for thread lock")

// 只删除自己持有的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisThreadLocker serializes work on one thread id across processes.
type RedisThreadLocker struct {
	rdb     *redis.Client
	ttl     time.Duration
	retry   time.Duration
	timeout time.Duration
	logger  *zap.Logger
}

func NewRedisThreadLocker(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisThreadLocker {
	return &RedisThreadLocker{
		rdb:     rdb,
		ttl:     ttl,
		retry:   50 * time.Millisecond,
		timeout: ttl,
		logger:  logger,
	}
}

// Lock blocks until the lock for threadID is held, ctx is done or the wait
// exceeds the lock ttl.
func (l *RedisThreadLocker) Lock(ctx context.Context, threadID string) (func(), error) {
	key := "lock:thread:" + threadID
	token := uuid.NewString()
	deadline := time.Now().Add(l.timeout)

	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire thread lock %s: %w", threadID, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}

	return func() {
		// 用独立 context，调用方 ctx 取消后仍要释放
		relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(relCtx, l.rdb, []string{key}, token).Err(); err != nil {
			l.logger.Warn("Failed to release thread lock",
				zap.String("thread_id", threadID),
				zap.Error(err),
			)
		}
	}, nil
}

// LocalThreadLocker is the in-process variant used when Redis is not
// configured.
type LocalThreadLocker struct {
	mu    sync.Mutex
	locks map[string]*threadLock
}

type threadLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalThreadLocker() *LocalThreadLocker {
	return &LocalThreadLocker{locks: make(map[string]*threadLock)}
}

func (l *LocalThreadLocker) Lock(ctx context.Context, threadID string) (func(), error) {
	l.mu.Lock()
	tl, ok := l.locks[threadID]
	if !ok {
		tl = &threadLock{ch: make(chan struct{}, 1)}
		l.locks[threadID] = tl
	}
	tl.refs++
	l.mu.Unlock()

	select {
	case tl.ch <- struct{}{}:
	case <-ctx.Done():
		l.drop(threadID, tl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-tl.ch
			l.drop(threadID, tl)
		})
	}, nil
}

func (l *LocalThreadLocker) drop(threadID string, tl *threadLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tl.refs--
	if tl.refs == 0 {
		delete(l.locks, threadID)
	}
}
