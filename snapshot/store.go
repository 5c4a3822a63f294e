// Package snapshot 时间轮镜像的编码和持久化。
//
// 镜像用 protowire 编码成一份 Envelope，按 key 存到文件、redis、mongo 或 etcd，
// 进程重启后按同一个 key 取回并恢复时间轮。
package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/fixkme/timerwheel/errs"
	"github.com/fixkme/timerwheel/util"
)

// Store 镜像存储，key 不存在时 Load 返回 errs.NotFound
type Store interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Name() string
}

const fileExt = ".snap"

// FileStore 本地文件, 先写临时文件再 rename
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := util.EnsureDir(dir); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+fileExt)
}

func (s *FileStore) Save(_ context.Context, key string, data []byte) error {
	return util.WriteFileAtomic(s.path(key), data)
}

func (s *FileStore) Load(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, errs.NotFound.Printf("snapshot file %s", s.path(key))
	}
	return data, err
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	err := os.Remove(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *FileStore) Name() string {
	return "file:" + s.dir
}
