// Package clock 用一个协程驱动时间轮。
//
// 时间轮本身不是并发安全的，Clock 独占它：定时 tick、快照都在 Clock 的协程里执行，
// 其他协程的调用通过任务管道串行化；在 Clock 协程里(例如超时回调中)调用则直接执行。
package clock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fixkme/timerwheel/errs"
	"github.com/fixkme/timerwheel/mlog"
	"github.com/fixkme/timerwheel/timer"
	"github.com/fixkme/timerwheel/util"
	"github.com/robfig/cron/v3"
)

const (
	defaultTickInterval  = 10 * time.Millisecond
	defaultTaskQueueSize = 10240
	defaultSaveTimeout   = 3 * time.Second
)

// Saver 快照保存。Encode 在 Clock 协程里调用，Write 在后台协程里调用
type Saver interface {
	Encode(ts *timer.TimerSystem) ([]byte, error)
	Write(ctx context.Context, data []byte) error
}

type Options struct {
	TickInterval  time.Duration
	TaskQueueSize int
	Saver         Saver
	SaveInterval  time.Duration // 0 只在退出时保存
	SaveSchedule  cron.Schedule // 优先于 SaveInterval
	SaveTimeout   time.Duration
}

var scheduleParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule 解析快照计划, 支持秒级字段和 @every 之类的描述符
func ParseSchedule(expr string) (cron.Schedule, error) {
	sched, err := scheduleParser.Parse(expr)
	if err != nil {
		return nil, errs.InvalidArgument.Printf("snapshot schedule %q: %v", expr, err)
	}
	return sched, nil
}

// updater 可刷新的时间源，tick 前先刷新
type updater interface {
	Update() int64
}

type Clock struct {
	ts     *timer.TimerSystem
	opt    Options
	taskch chan func()
	saveCh chan []byte
	done   chan struct{}
	closed atomic.Bool
	gid    atomic.Int64 // 驱动协程ID
	once   sync.Once
}

var _ timer.Scheduler = (*Clock)(nil)

func NewClock(ts *timer.TimerSystem, opt *Options) *Clock {
	c := &Clock{ts: ts}
	if opt != nil {
		c.opt = *opt
	}
	if c.opt.TickInterval <= 0 {
		c.opt.TickInterval = defaultTickInterval
	}
	if c.opt.TaskQueueSize <= 0 {
		c.opt.TaskQueueSize = defaultTaskQueueSize
	}
	if c.opt.SaveTimeout <= 0 {
		c.opt.SaveTimeout = defaultSaveTimeout
	}
	c.taskch = make(chan func(), c.opt.TaskQueueSize)
	c.saveCh = make(chan []byte, 1)
	c.done = make(chan struct{})
	return c
}

func (c *Clock) Start(quit <-chan struct{}) {
	c.once.Do(func() {
		go c.run(quit)
	})
}

// Run 在当前协程驱动，直到 quit 关闭
func (c *Clock) Run(quit <-chan struct{}) {
	c.once.Do(func() {
		c.run(quit)
	})
}

// Done 停止并完成最后一次保存后关闭
func (c *Clock) Done() <-chan struct{} {
	return c.done
}

func (c *Clock) run(quit <-chan struct{}) {
	c.gid.Store(util.GoroutineID())
	defer close(c.done)

	var wg sync.WaitGroup
	if c.opt.Saver != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.writer()
		}()
	}
	var saveC <-chan time.Time
	var nextSave func()
	switch {
	case c.opt.Saver == nil:
	case c.opt.SaveSchedule != nil:
		saveTimer := time.NewTimer(time.Until(c.opt.SaveSchedule.Next(time.Now())))
		defer saveTimer.Stop()
		saveC = saveTimer.C
		nextSave = func() {
			saveTimer.Reset(time.Until(c.opt.SaveSchedule.Next(time.Now())))
		}
	case c.opt.SaveInterval > 0:
		saveTicker := time.NewTicker(c.opt.SaveInterval)
		defer saveTicker.Stop()
		saveC = saveTicker.C
	}

	tickTimer := time.NewTimer(c.opt.TickInterval)
	defer tickTimer.Stop()
	mlog.Infof("clock started, tick interval %v, jiffies %d", c.opt.TickInterval, c.ts.Jiffies())
	for {
		select {
		case <-quit:
			c.closed.Store(true)
			c.drainTasks()
			close(c.saveCh)
			wg.Wait()
			c.finalSave()
			c.ts.Close()
			mlog.Infof("clock stopped")
			return
		case <-tickTimer.C:
			c.tick()
			tickTimer.Reset(c.opt.TickInterval)
		case <-saveC:
			c.save()
			if nextSave != nil {
				nextSave()
			}
		case fn := <-c.taskch:
			fn()
		}
	}
}

func (c *Clock) now() int64 {
	src := c.ts.Source()
	if u, ok := src.(updater); ok {
		return u.Update()
	}
	return src.NowMs()
}

func (c *Clock) tick() {
	c.ts.RunTimers(c.now())
}

// drainTasks 执行停止前已经入队的任务
func (c *Clock) drainTasks() {
	for {
		select {
		case fn := <-c.taskch:
			fn()
		default:
			return
		}
	}
}

func (c *Clock) save() {
	data, err := c.opt.Saver.Encode(c.ts)
	if err != nil {
		mlog.Errorf("clock encode snapshot failed: %v", err)
		return
	}
	select {
	case c.saveCh <- data:
	default:
		mlog.Warnf("clock previous snapshot still writing, skipped")
	}
}

func (c *Clock) writer() {
	for data := range c.saveCh {
		ctx, cancel := context.WithTimeout(context.Background(), c.opt.SaveTimeout)
		if err := c.opt.Saver.Write(ctx, data); err != nil {
			mlog.Errorf("clock write snapshot failed: %v", err)
		}
		cancel()
	}
}

func (c *Clock) finalSave() {
	if c.opt.Saver == nil {
		return
	}
	data, err := c.opt.Saver.Encode(c.ts)
	if err != nil {
		mlog.Errorf("clock final snapshot encode failed: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.opt.SaveTimeout)
	defer cancel()
	if err = c.opt.Saver.Write(ctx, data); err != nil {
		mlog.Errorf("clock final snapshot write failed: %v", err)
		return
	}
	mlog.Infof("clock final snapshot saved, %d timers", c.ts.AllTimers())
}

func (c *Clock) pushTask(f func()) error {
	if c.closed.Load() {
		return errs.Closed.Print("clock stopped")
	}
	if c.gid.Load() == util.GoroutineID() {
		f()
		return nil
	}
	done := make(chan struct{})
	ff := func() {
		defer close(done)
		f()
	}
	select {
	case c.taskch <- ff:
	default:
		return errs.Busy.Print("clock task queue full")
	}
	select {
	case <-done:
		return nil
	case <-c.done:
		select {
		case <-done:
			return nil
		default:
			return errs.Closed.Print("clock stopped before task ran")
		}
	}
}

// Do 在驱动协程里执行 fn
func (c *Clock) Do(fn func(ts *timer.TimerSystem)) error {
	return c.pushTask(func() {
		fn(c.ts)
	})
}

func (c *Clock) SetTimer(action string, delayMs, intervalMs, userData int64) (id int64, err error) {
	id = timer.InvalidID
	perr := c.pushTask(func() {
		id, err = c.ts.SetTimer(action, delayMs, intervalMs, userData)
	})
	if perr != nil {
		return timer.InvalidID, perr
	}
	return
}

func (c *Clock) ClearTimer(timerID int64) (err error) {
	perr := c.pushTask(func() {
		err = c.ts.ClearTimer(timerID)
	})
	if perr != nil {
		return perr
	}
	return
}

func (c *Clock) ResetTimer(timerID int64, action string, delayMs, intervalMs, userData int64) (err error) {
	perr := c.pushTask(func() {
		err = c.ts.ResetTimer(timerID, action, delayMs, intervalMs, userData)
	})
	if perr != nil {
		return perr
	}
	return
}

func (c *Clock) ModifyTimer(timerID int64, delayMs int64) (pending bool, err error) {
	perr := c.pushTask(func() {
		pending, err = c.ts.ModifyTimer(timerID, delayMs)
	})
	if perr != nil {
		return false, perr
	}
	return
}

func (c *Clock) TimerInfo(timerID int64) (info timer.Info, err error) {
	perr := c.pushTask(func() {
		info, err = c.ts.TimerInfo(timerID)
	})
	if perr != nil {
		return timer.Info{}, perr
	}
	return
}

// Save 立即保存一次快照，写入在调用方协程完成
func (c *Clock) Save(ctx context.Context) error {
	if c.opt.Saver == nil {
		return errs.InvalidArgument.Print("clock has no saver")
	}
	var data []byte
	var err error
	perr := c.pushTask(func() {
		data, err = c.opt.Saver.Encode(c.ts)
	})
	if perr != nil {
		return perr
	}
	if err != nil {
		return err
	}
	return c.opt.Saver.Write(ctx, data)
}
