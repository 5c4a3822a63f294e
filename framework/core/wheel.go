package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fixkme/timerwheel/clock"
	rdb "github.com/fixkme/timerwheel/db/redis"
	"github.com/fixkme/timerwheel/errs"
	"github.com/fixkme/timerwheel/framework/config"
	"github.com/fixkme/timerwheel/lock"
	"github.com/fixkme/timerwheel/mlog"
	"github.com/fixkme/timerwheel/snapshot"
	ltime "github.com/fixkme/timerwheel/time"
	"github.com/fixkme/timerwheel/timer"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	StoreNone  = "none"
	StoreFile  = "file"
	StoreRedis = "redis"
	StoreMongo = "mongo"
	StoreEtcd  = "etcd"
)

// WheelModule 组装时间源、时间轮、驱动时钟、镜像存储和独占锁
type WheelModule struct {
	name    string
	conf    *config.AppConfig
	actions *timer.Actions
	owner   uuid.UUID

	src    *ltime.TickSource
	ts     *timer.TimerSystem
	clock  *clock.Clock
	saver  *guardedSaver
	locker *lock.RedLock
	pubsub *redis.PubSub

	ctx      context.Context
	cancel   context.CancelFunc
	quit     chan struct{}
	stopOnce sync.Once
}

// guardedSaver 丢了锁之后不再写镜像，免得覆盖新主人的数据
type guardedSaver struct {
	*snapshot.Manager
	lost atomic.Bool
}

func (s *guardedSaver) Write(ctx context.Context, data []byte) error {
	if s.lost.Load() {
		return errs.Closed.Print("wheel lock lost, snapshot discarded")
	}
	return s.Manager.Write(ctx, data)
}

func NewWheelModule(name string, conf *config.AppConfig, actions *timer.Actions) *WheelModule {
	if actions == nil {
		actions = timer.NewActions()
	}
	return &WheelModule{
		name:    name,
		conf:    conf,
		actions: actions,
		owner:   uuid.New(),
		quit:    make(chan struct{}),
	}
}

func (m *WheelModule) lockKey() string {
	return m.conf.SnapshotPrefix + m.conf.WheelKey + ":lock"
}

func (m *WheelModule) OnInit() (err error) {
	m.ctx, m.cancel = context.WithCancel(context.Background())
	// 初始化失败时 Destroy 不会被调用, 这里把租约和订阅还回去
	defer func() {
		if err != nil {
			m.release()
		}
	}()
	ltime.SetTimeOffset(time.Duration(m.conf.TimeOffsetMs) * time.Millisecond)

	store, err := m.openStore()
	if err != nil {
		return err
	}
	if store != nil {
		m.saver = &guardedSaver{Manager: snapshot.NewManager(store, m.conf.WheelKey, m.owner)}
	}
	if ttl := m.conf.LockTTL(); ttl > 0 {
		if Redis == nil {
			return errs.InvalidArgument.Print("wheel lock needs redis")
		}
		locker := lock.NewRedLock(Redis.GetCmdable(), m.owner.String())
		if err = locker.Lock(m.ctx, m.lockKey(), ttl, ttl/10); err != nil {
			return err
		}
		m.locker = locker
		mlog.Infof("wheel %s locked by %s", m.conf.WheelKey, m.owner)
	}

	m.src = ltime.NewTickSource()
	opt := &timer.Options{
		Capacity: m.conf.WheelCapacity,
		Source:   m.src,
		Actions:  m.actions,
	}
	if m.saver != nil {
		m.ts, _, err = m.saver.Load(m.ctx, opt)
		if err != nil && !errors.Is(err, errs.NotFound) {
			return err
		}
	}
	if m.ts == nil {
		m.ts = timer.New(opt)
		if err = m.ts.Init(m.src.NowMs()); err != nil {
			return err
		}
		mlog.Infof("wheel %s starts empty", m.conf.WheelKey)
	}

	copt := &clock.Options{
		TickInterval:  m.conf.TickInterval(),
		TaskQueueSize: m.conf.TaskQueueSize,
		SaveInterval:  m.conf.SnapshotInterval(),
	}
	if m.saver != nil {
		copt.Saver = m.saver
	}
	if m.conf.SnapshotCron != "" {
		if copt.SaveSchedule, err = clock.ParseSchedule(m.conf.SnapshotCron); err != nil {
			return err
		}
	}
	m.clock = clock.NewClock(m.ts, copt)

	if Redis != nil && m.saver != nil {
		m.pubsub, err = rdb.Pubsub(m.ctx, m.conf.SnapshotPrefix+m.conf.WheelKey+":ctl:*", Redis, m.onControl)
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *WheelModule) openStore() (snapshot.Store, error) {
	switch m.conf.SnapshotStore {
	case "", StoreNone:
		return nil, nil
	case StoreFile:
		return snapshot.NewFileStore(m.conf.SnapshotDir)
	case StoreRedis:
		if Redis == nil {
			return nil, errs.InvalidArgument.Print("redis snapshot store without redis")
		}
		return snapshot.NewRedisStore(Redis.GetCmdable(), m.conf.SnapshotPrefix, 0), nil
	case StoreMongo:
		if Mongo == nil {
			return nil, errs.InvalidArgument.Print("mongo snapshot store without mongo")
		}
		return snapshot.NewMongoStore(Mongo.Collection(m.conf.MongoDatabase, m.conf.MongoCollection)), nil
	case StoreEtcd:
		if Etcd == nil {
			return nil, errs.InvalidArgument.Print("etcd snapshot store without etcd")
		}
		return snapshot.NewEtcdStore(Etcd, m.conf.SnapshotPrefix), nil
	}
	return nil, errs.InvalidArgument.Printf("snapshot store %q", m.conf.SnapshotStore)
}

// onControl 处理 <prefix><key>:ctl:save 之类的运维指令
func (m *WheelModule) onControl(msg *redis.Message) error {
	if strings.HasSuffix(msg.Channel, ":save") {
		mlog.Infof("wheel %s snapshot requested via %s", m.conf.WheelKey, msg.Channel)
		return m.clock.Save(m.ctx)
	}
	return errs.InvalidArgument.Printf("unknown control channel %s", msg.Channel)
}

func (m *WheelModule) Run() {
	if m.locker != nil {
		go m.locker.KeepAlive(m.ctx, m.lockKey(), m.conf.LockTTL(), func(err error) {
			if m.saver != nil {
				m.saver.lost.Store(true)
			}
			m.stop()
		})
	}
	m.clock.Run(m.quit)
}

func (m *WheelModule) stop() {
	m.stopOnce.Do(func() {
		close(m.quit)
	})
}

func (m *WheelModule) Destroy() {
	m.stop()
	<-m.clock.Done()
	m.release()
	if Mongo != nil && m.conf.SnapshotStore == StoreMongo {
		mlog.Infof("mongo pool %s", Mongo.PoolStats())
	}
}

// OnReload SIGHUP 时立即保存一次镜像
func (m *WheelModule) OnReload() {
	if m.saver == nil {
		return
	}
	ctx, cancel := context.WithTimeout(m.ctx, 10*time.Second)
	defer cancel()
	if err := m.clock.Save(ctx); err != nil {
		mlog.Errorf("wheel %s reload save failed: %v", m.conf.WheelKey, err)
	}
}

// release 关闭订阅、归还租约(没丢的话)并结束后台协程
func (m *WheelModule) release() {
	if m.pubsub != nil {
		m.pubsub.Close()
		m.pubsub = nil
	}
	if m.locker != nil && (m.saver == nil || !m.saver.lost.Load()) {
		if _, err := m.locker.UnLock(context.Background(), m.lockKey()); err != nil {
			mlog.Warnf("wheel %s unlock failed: %v", m.conf.WheelKey, err)
		}
	}
	m.locker = nil
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *WheelModule) Name() string {
	return m.name
}

// Scheduler 给业务使用的定时器接口，可以跨协程调用
func (m *WheelModule) Scheduler() timer.Scheduler {
	return m.clock
}

func (m *WheelModule) Clock() *clock.Clock {
	return m.clock
}

func (m *WheelModule) Owner() uuid.UUID {
	return m.owner
}
