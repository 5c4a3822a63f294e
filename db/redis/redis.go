package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/fixkme/timerwheel/mlog"
	"github.com/redis/go-redis/v9"
)

const (
	RedisMode_Single   = "single"
	RedisMode_Sentinel = "sentinel"
	RedisMode_Cluster  = "cluster"
)

type RedisImpl struct {
	client  *redis.Client
	cluster *redis.ClusterClient
}

func NewRedis(ctx context.Context, mode string, opts any) (*RedisImpl, error) {
	var err error
	db := &RedisImpl{}
	switch mode {
	case RedisMode_Cluster:
		db.cluster = redis.NewClusterClient(opts.(*redis.ClusterOptions))
		err = db.cluster.Ping(ctx).Err()
	case RedisMode_Sentinel:
		db.client = redis.NewFailoverClient(opts.(*redis.FailoverOptions))
		err = db.client.Ping(ctx).Err()
	default: // 默认single模式
		db.client = redis.NewClient(opts.(*redis.Options))
		err = db.client.Ping(ctx).Err()
	}

	if err != nil {
		db.Stop()
		return nil, err
	}

	return db, nil
}

func (db *RedisImpl) Client() *redis.Client {
	return db.client
}

func (db *RedisImpl) ClusterClient() *redis.ClusterClient {
	return db.cluster
}

func (db *RedisImpl) Stop() {
	if db.client != nil {
		db.client.Close()
	}
	if db.cluster != nil {
		db.cluster.Close()
	}
}

func (db *RedisImpl) GetCmdable() redis.Cmdable {
	if db.client != nil {
		return db.client
	}
	if db.cluster != nil {
		return db.cluster
	}
	return nil
}

// PubsubCB 收到redis订阅消息的回调函数
type PubsubCB func(message *redis.Message) error

// Pubsub 订阅指定格式的channel，在新的协程里不断收到消息并执行回调 cb。
// 接收出错时短暂休眠后继续，ctx 结束时退出
func Pubsub(ctx context.Context, pattern string, db *RedisImpl, cb PubsubCB) (*redis.PubSub, error) {
	pubsub, err := subscribe(ctx, pattern, db)
	if err != nil {
		return nil, err
	}
	// 等订阅确认，之后发布的消息不会丢
	if _, err = pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	retryDur := 5 * time.Second
	go func() {
		defer func() {
			if r := recover(); r != nil {
				mlog.Errorf("redis pubsub %s routine recover error %v", pattern, r)
			}
			mlog.Infof("redis pubsub %s routine quited", pattern)
		}()
		for {
			received, err := pubsub.Receive(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				mlog.Warnf("redis pubsub %s error %v, retry after %s", pattern, err, retryDur)
				select {
				case <-ctx.Done():
					return
				case <-time.After(retryDur):
				}
				continue
			}
			switch v := received.(type) {
			case *redis.Message:
				if err := cb(v); err != nil {
					mlog.Warnf("redis pubsub %s handle %s error %v", pattern, v.Channel, err)
				}
			case *redis.Subscription:
				mlog.Debugf("redis pubsub %s %s", v.Kind, v.Channel)
			case *redis.Pong:
			default:
				mlog.Debugf("redis pubsub recv %#v", v)
			}
		}
	}()
	return pubsub, nil
}

func subscribe(ctx context.Context, channel string, db *RedisImpl) (*redis.PubSub, error) {
	var pubsub *redis.PubSub
	if db.client != nil {
		pubsub = db.client.PSubscribe(ctx, channel)
	} else if db.cluster != nil {
		pubsub = db.cluster.PSubscribe(ctx, channel)
	}
	if pubsub == nil {
		return nil, fmt.Errorf("redis subscribe %s failed, nil pubsub", channel)
	}
	return pubsub, nil
}
