package recording

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"chatcall/pkg/utils"

	"github.com/gofrs/flock"
	"github.com/redis/go-redis/v9"
)

// Guard excludes concurrent merges of the same call across processes.
// ok is false when another holder has it; release must be called when ok.
type Guard interface {
	TryAcquire(ctx context.Context, callID int64) (release func(), ok bool, err error)
}

// FileGuard uses an advisory file lock per call, for instances sharing a host
// and recording directory.
type FileGuard struct {
	dir string
}

func NewFileGuard(dir string) *FileGuard {
	return &FileGuard{dir: dir}
}

func (g *FileGuard) TryAcquire(ctx context.Context, callID int64) (func(), bool, error) {
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return nil, false, fmt.Errorf("create lock directory: %w", err)
	}
	fl := flock.New(filepath.Join(g.dir, fmt.Sprintf("call_%d.lock", callID)))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("lock call %d: %w", callID, err)
	}
	if !ok {
		return nil, false, nil
	}
	return func() { _ = fl.Unlock() }, true, nil
}

// RedisGuard holds a single-slot redis cap per call. The TTL bounds how long a
// crashed holder can block merges.
type RedisGuard struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisGuard(rdb *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisGuard{rdb: rdb, ttl: ttl}
}

func (g *RedisGuard) TryAcquire(ctx context.Context, callID int64) (func(), bool, error) {
	key := utils.MergeLockKey(callID)
	ok, err := utils.AcquireConcurrencyCap(ctx, g.rdb, key, 1, g.ttl)
	if err != nil || !ok {
		return nil, false, err
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = utils.ReleaseConcurrencyCap(ctx, g.rdb, key)
	}, true, nil
}
