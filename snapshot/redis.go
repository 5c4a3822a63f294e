package snapshot

import (
	"context"
	"errors"
	"time"

	"github.com/fixkme/timerwheel/errs"
	"github.com/redis/go-redis/v9"
)

// RedisStore 镜像存成一个 string key
type RedisStore struct {
	cli    redis.Cmdable
	prefix string
	ttl    time.Duration // 0 不过期
}

func NewRedisStore(cli redis.Cmdable, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{cli: cli, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) Save(ctx context.Context, key string, data []byte) error {
	return s.cli.Set(ctx, s.prefix+key, data, s.ttl).Err()
}

func (s *RedisStore) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := s.cli.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errs.NotFound.Printf("snapshot redis key %s", s.prefix+key)
	}
	return data, err
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.cli.Del(ctx, s.prefix+key).Err()
}

func (s *RedisStore) Name() string {
	return "redis:" + s.prefix
}
