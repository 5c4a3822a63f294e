package lock

import (
	"context"
	"errors"
	"time"

	"github.com/fixkme/timerwheel/errs"
	"github.com/fixkme/timerwheel/mlog"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"
)

var (
	ErrFailedLock = errs.Busy.Print("failed to acquire lock")
	ErrNotOwner   = errs.NotFound.Print("lock not held by this entity")
)

// RedLock 单 redis 实例上的独占锁，用于保证一份时间轮镜像同时只有一个进程在驱动
type RedLock struct {
	rdb    redis.Cmdable
	entity string //请求锁的唯一实例
}

func NewRedLock(rdb redis.Cmdable, entity string) *RedLock {
	return &RedLock{rdb: rdb, entity: entity}
}

func (l *RedLock) Entity() string {
	return l.entity
}

// lockKey:分布式锁, expiry:锁超时时间，checkInterval：检测锁的频率
func (l *RedLock) Lock(ctx context.Context, lockKey string, expiry time.Duration, checkInterval time.Duration) error {
	lockTries := int(expiry/checkInterval) + 1
	for i := 0; i < lockTries; i++ {
		if i != 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(checkInterval):
			}
		}
		ok, err := l.rdb.SetNX(ctx, lockKey, l.entity, expiry).Result()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return ErrFailedLock
}

// lockKey:分布式锁，expiry:锁超时时间
func (l *RedLock) TryLock(ctx context.Context, lockKey string, expiry time.Duration) bool {
	val, err := l.rdb.SetNX(ctx, lockKey, l.entity, expiry).Result()
	if err != nil {
		return false
	}
	return val
}

var (
	unlockScript = redis.NewScript(`
		if redis.call("get",KEYS[1]) == ARGV[1] then
			return redis.call("del",KEYS[1])
		else
			return 0
		end
	`)
	refreshScript = redis.NewScript(`
		if redis.call("get",KEYS[1]) == ARGV[1] then
			return redis.call("pexpire",KEYS[1],ARGV[2])
		else
			return 0
		end
	`)
)

func runOwned(ctx context.Context, script *redis.Script, rdb redis.Cmdable, key string, args ...any) (bool, error) {
	val, err := script.Run(ctx, rdb, []string{key}, args...).Result()
	if err != nil {
		return false, err
	}
	num, ok := val.(int64)
	if !ok {
		return false, errors.New("ret.Val.(int64) not ok")
	}
	return num != 0, nil
}

// UnLock 只释放自己持有的锁
func (l *RedLock) UnLock(ctx context.Context, lockKey string) (bool, error) {
	return runOwned(ctx, unlockScript, l.rdb, lockKey, l.entity)
}

// Refresh 续期，锁已经不属于自己时返回 ErrNotOwner
func (l *RedLock) Refresh(ctx context.Context, lockKey string, expiry time.Duration) error {
	ok, err := runOwned(ctx, refreshScript, l.rdb, lockKey, l.entity, expiry.Milliseconds())
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotOwner
	}
	return nil
}

// KeepAlive 每 expiry/3 续期一次，直到 ctx 结束；续期失败(锁被别人拿走)时调用 onLost 并退出
func (l *RedLock) KeepAlive(ctx context.Context, lockKey string, expiry time.Duration, onLost func(err error)) {
	ticker := time.NewTicker(expiry / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := l.Refresh(ctx, lockKey, expiry)
			if err == nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, ErrNotOwner) {
				mlog.Errorf("lock %s lost by %s", lockKey, l.entity)
				if onLost != nil {
					onLost(err)
				}
				return
			}
			// 网络错误下次再试, 租期内恢复即可
			mlog.Warnf("lock %s refresh failed: %v", lockKey, err)
		}
	}
}

// GeneLockEntity 生成请求锁的唯一实例
func GeneLockEntity() string {
	id, err := uuid.NewRandom()
	if err != nil {
		return xid.New().String()
	}
	return id.String()
}
