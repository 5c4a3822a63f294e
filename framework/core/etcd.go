package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fixkme/timerwheel/framework/config"
	"github.com/fixkme/timerwheel/mlog"
	clientv3 "go.etcd.io/etcd/client/v3"
)

var Etcd *clientv3.Client

func InitEtcd(ctx context.Context, conf *config.EtcdConfig) error {
	if conf == nil || conf.EtcdEndpoints == "" {
		return errors.New("etcd endpoints is empty")
	}
	endpoints := strings.Split(conf.EtcdEndpoints, ",")
	dialTimeout := time.Duration(conf.EtcdDialTimeoutMs) * time.Millisecond
	cli, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
		// 设置了 DialTimeout，clientv3.New 是阻塞调用
		DialTimeout: dialTimeout,
	})
	if err != nil {
		mlog.Errorf("etcd connect failed: %v, endpoints: %v", err, endpoints)
		return err
	}
	if _, err = cli.Get(ctx, "timerd", clientv3.WithCountOnly()); err != nil {
		cli.Close()
		mlog.Errorf("etcd probe failed: %v, endpoints: %v", err, endpoints)
		return err
	}
	Etcd = cli
	mlog.Infof("etcd connect success, endpoints: %v", endpoints)
	return nil
}
