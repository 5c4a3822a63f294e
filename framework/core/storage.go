package core

import (
	"context"

	"github.com/fixkme/timerwheel/framework/config"
	"golang.org/x/sync/errgroup"
)

// InitStorage 并行连接配置了的 redis/mongo/etcd，未配置的跳过
func InitStorage(ctx context.Context, conf *config.AppConfig) error {
	eg, ctx := errgroup.WithContext(ctx)
	if conf.RedisAddr != "" {
		eg.Go(func() error {
			return InitRedis(ctx, &conf.RedisConfig)
		})
	}
	if conf.MongoUri != "" {
		eg.Go(func() error {
			return InitMongo(ctx, &conf.MongoConfig)
		})
	}
	if conf.EtcdEndpoints != "" {
		eg.Go(func() error {
			return InitEtcd(ctx, &conf.EtcdConfig)
		})
	}
	return eg.Wait()
}

// StopStorage 断开 InitStorage 建立的连接
func StopStorage(ctx context.Context) {
	if Redis != nil {
		Redis.Stop()
		Redis = nil
	}
	if Mongo != nil {
		Mongo.Stop(ctx)
		Mongo = nil
	}
	if Etcd != nil {
		Etcd.Close()
		Etcd = nil
	}
}
