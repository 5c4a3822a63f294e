package snapshot

import (
	"context"

	"github.com/fixkme/timerwheel/errs"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdStore 镜像存成一个 key。etcd 默认单个请求上限约 1.5MB，只适合定时器不多的场景
type EtcdStore struct {
	kv     clientv3.KV
	prefix string
}

func NewEtcdStore(kv clientv3.KV, prefix string) *EtcdStore {
	return &EtcdStore{kv: kv, prefix: prefix}
}

func (s *EtcdStore) Save(ctx context.Context, key string, data []byte) error {
	_, err := s.kv.Put(ctx, s.prefix+key, string(data))
	return err
}

func (s *EtcdStore) Load(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.kv.Get(ctx, s.prefix+key)
	if err != nil {
		return nil, err
	}
	if len(resp.Kvs) == 0 {
		return nil, errs.NotFound.Printf("snapshot etcd key %s", s.prefix+key)
	}
	return resp.Kvs[0].Value, nil
}

func (s *EtcdStore) Delete(ctx context.Context, key string) error {
	_, err := s.kv.Delete(ctx, s.prefix+key)
	return err
}

func (s *EtcdStore) Name() string {
	return "etcd:" + s.prefix
}
