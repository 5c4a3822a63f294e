package snapshot

import (
	"context"
	"fmt"

	"github.com/fixkme/timerwheel/mlog"
	ltime "github.com/fixkme/timerwheel/time"
	"github.com/fixkme/timerwheel/timer"
	"github.com/google/uuid"
	"github.com/rs/xid"
)

// Manager 把一个时间轮的镜像存到固定的 key
type Manager struct {
	store Store
	key   string
	owner uuid.UUID
}

func NewManager(store Store, key string, owner uuid.UUID) *Manager {
	return &Manager{store: store, key: key, owner: owner}
}

func (m *Manager) Key() string {
	return m.key
}

func (m *Manager) Owner() uuid.UUID {
	return m.owner
}

// Encode 生成镜像并编码，必须在驱动时间轮的协程里调用
func (m *Manager) Encode(ts *timer.TimerSystem) ([]byte, error) {
	img, err := ts.Snapshot()
	if err != nil {
		return nil, err
	}
	env := &Envelope{
		Version:   Version,
		ID:        xid.New(),
		Owner:     m.owner,
		CreatedMs: ltime.NowMs(),
		Image:     img,
	}
	data, err := Marshal(env)
	if err != nil {
		return nil, err
	}
	mlog.Debugf("snapshot %s encoded, %s, %d bytes", env.ID, img, len(data))
	return data, nil
}

// Write 写入存储，可以在任意协程调用
func (m *Manager) Write(ctx context.Context, data []byte) error {
	if err := m.store.Save(ctx, m.key, data); err != nil {
		return fmt.Errorf("snapshot save %s to %s: %w", m.key, m.store.Name(), err)
	}
	return nil
}

func (m *Manager) Save(ctx context.Context, ts *timer.TimerSystem) error {
	data, err := m.Encode(ts)
	if err != nil {
		return err
	}
	return m.Write(ctx, data)
}

// Load 读取并恢复时间轮，没有镜像时返回 errs.NotFound
func (m *Manager) Load(ctx context.Context, opt *timer.Options) (*timer.TimerSystem, *Envelope, error) {
	data, err := m.store.Load(ctx, m.key)
	if err != nil {
		return nil, nil, err
	}
	env, err := Unmarshal(data)
	if err != nil {
		return nil, nil, err
	}
	ts, err := timer.Restore(env.Image, opt)
	if err != nil {
		return nil, nil, err
	}
	if env.Owner != m.owner {
		mlog.Infof("snapshot %s of %s written by %s, taken over by %s", env.ID, m.key, env.Owner, m.owner)
	}
	mlog.Infof("snapshot %s loaded from %s, created at %d", env.ID, m.store.Name(), env.CreatedMs)
	return ts, env, nil
}

func (m *Manager) Discard(ctx context.Context) error {
	return m.store.Delete(ctx, m.key)
}
