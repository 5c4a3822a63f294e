// Package timer 分层时间轮。
//
// 5 级时间轮(tv1 256 槽, tv2~tv5 各 64 槽)，一个 tick 对应一个 jiffy，
// 定时器和槽位表头都是注册表里的实体，彼此用稳定的槽位ID链接，
// 整个时间轮可以直接做成镜像持久化，恢复后ID不变。
//
// TimerSystem 不是并发安全的，所有调用(包括超时回调)都应该在同一个协程里。
package timer

import (
	"runtime/debug"

	"github.com/fixkme/timerwheel/ds/staticlist"
	"github.com/fixkme/timerwheel/errs"
	"github.com/fixkme/timerwheel/mlog"
	"github.com/fixkme/timerwheel/registry"
	ltime "github.com/fixkme/timerwheel/time"
	"github.com/fixkme/timerwheel/util"
)

type Options struct {
	Capacity int          // 实体池容量，包含 HeadCount 个表头
	Source   ltime.Source // 时间源, 默认系统时间
	Actions  *Actions     // 回调表
}

func (o *Options) normalize() Options {
	var opt Options
	if o != nil {
		opt = *o
	}
	if opt.Capacity <= 0 {
		opt.Capacity = DefaultCapacity
	}
	if opt.Source == nil {
		opt.Source = ltime.SystemSource{}
	}
	if opt.Actions == nil {
		opt.Actions = NewActions()
	}
	return opt
}

type resolver struct {
	reg *registry.Registry[Timer]
}

func (r resolver) Node(id int32) *staticlist.Link {
	return &r.reg.Get(id).Link
}

type TimerSystem struct {
	jiffies      int64 // 下一个要处理的 tick
	nextTimer    int64 // 最早超时的下界提示
	activeTimers int64
	allTimers    int64

	tv1         [tvrSize]int32
	tvn         [tvnLevels][tvnSize]int32
	workList    int32 // 本 tick 到期的定时器先转移到这里再逐个触发
	cascadeList int32 // 级联时临时存放

	ready   bool
	running bool // 正在 RunTimers

	reg     *registry.Registry[Timer]
	r       resolver
	src     ltime.Source
	actions *Actions
}

func New(opt *Options) *TimerSystem {
	o := opt.normalize()
	ts := &TimerSystem{
		reg:     registry.New[Timer](o.Capacity),
		src:     o.Source,
		actions: o.Actions,
	}
	ts.r = resolver{reg: ts.reg}
	return ts
}

// Init 全新初始化，分配所有表头，jiffies 为起始 tick
func (ts *TimerSystem) Init(jiffies int64) error {
	if ts.ready {
		return errs.Duplicate.Print("timer system already initialized")
	}
	if ts.reg.Cap() <= HeadCount {
		return errs.InvalidArgument.Printf("capacity %d, need more than %d", ts.reg.Cap(), HeadCount)
	}
	var err error
	for i := range ts.tv1 {
		if ts.tv1[i], err = ts.newHead(); err != nil {
			return err
		}
	}
	for n := range ts.tvn {
		for i := range ts.tvn[n] {
			if ts.tvn[n][i], err = ts.newHead(); err != nil {
				return err
			}
		}
	}
	if ts.workList, err = ts.newHead(); err != nil {
		return err
	}
	if ts.cascadeList, err = ts.newHead(); err != nil {
		return err
	}
	ts.jiffies = util.NonNegative(jiffies)
	ts.nextTimer = ts.jiffies
	ts.activeTimers = 0
	ts.allTimers = 0
	ts.ready = true
	mlog.Debugf("timer system init, jiffies:%d, capacity:%d", ts.jiffies, ts.reg.Cap())
	return nil
}

func (ts *TimerSystem) newHead() (int32, error) {
	id, t, err := ts.reg.Create(registry.KindListHead)
	if err != nil {
		return staticlist.Null, err
	}
	t.Bind(id)
	t.InitAsHead()
	return id, nil
}

func (ts *TimerSystem) newTimer() (int32, *Timer, error) {
	id, t, err := ts.reg.Create(registry.KindTimer)
	if err != nil {
		return staticlist.Null, nil, err
	}
	t.Bind(id)
	return id, t, nil
}

func (ts *TimerSystem) timer(id int32) *Timer {
	return ts.reg.Get(id)
}

// Timer 按槽位ID取实体
func (ts *TimerSystem) Timer(id int32) *Timer {
	if ts.reg.Kind(id) != registry.KindTimer {
		return nil
	}
	return ts.reg.Get(id)
}

func (ts *TimerSystem) tvIndex(n int) int {
	return int((ts.jiffies >> (tvrBits + n*tvnBits)) & tvnMask)
}

// catchup 时间轮为空时直接把 jiffies 推到目标, 不逐 tick 空转。
// RunTimers 期间不追赶, 循环定时器要按原计划逐个 tick 补触发
func (ts *TimerSystem) catchup(jiffies int64) bool {
	if ts.allTimers != 0 || ts.running {
		return false
	}
	if jiffies > ts.jiffies {
		ts.jiffies = jiffies
	}
	return true
}

// doInternalAddTimer 按 expires 和当前 jiffies 的距离选槽，挂到槽尾
func (ts *TimerSystem) doInternalAddTimer(id int32) {
	t := ts.timer(id)
	expires := t.expires
	idx := expires - ts.jiffies
	var head int32
	switch {
	case idx < 0:
		// 已经过期，下一个 tick 触发
		head = ts.tv1[ts.jiffies&tvrMask]
	case idx < 1<<tvrBits:
		head = ts.tv1[expires&tvrMask]
	case idx < 1<<(tvrBits+tvnBits):
		head = ts.tvn[0][(expires>>tvrBits)&tvnMask]
	case idx < 1<<(tvrBits+2*tvnBits):
		head = ts.tvn[1][(expires>>(tvrBits+tvnBits))&tvnMask]
	case idx < 1<<(tvrBits+3*tvnBits):
		head = ts.tvn[2][(expires>>(tvrBits+2*tvnBits))&tvnMask]
	default:
		// 超出范围的只影响选槽，expires 本身不改
		if idx > MaxTval {
			expires = ts.jiffies + MaxTval
		}
		head = ts.tvn[3][(expires>>(tvrBits+3*tvnBits))&tvnMask]
	}
	t.InsertBefore(ts.r, &ts.timer(head).Link)
}

func (ts *TimerSystem) linkTimer(id int32) {
	ts.doInternalAddTimer(id)
	t := ts.timer(id)
	if ts.activeTimers == 0 || t.expires < ts.nextTimer {
		ts.nextTimer = t.expires
	}
	ts.activeTimers++
	ts.allTimers++
}

func (ts *TimerSystem) internalAddTimer(id int32, jiffies int64) {
	ts.catchup(jiffies)
	ts.linkTimer(id)
}

func (ts *TimerSystem) detachTimer(id int32, clearPending bool) {
	t := ts.timer(id)
	t.DetachFromWheel(ts.r, clearPending)
	ts.activeTimers--
	ts.allTimers--
	if t.expires == ts.nextTimer {
		ts.nextTimer = ts.jiffies
	}
}

func (ts *TimerSystem) detachIfPending(id int32, clearPending bool, jiffies int64) bool {
	if !ts.timer(id).TimerPending() {
		return false
	}
	ts.detachTimer(id, clearPending)
	ts.catchup(jiffies)
	return true
}

func (ts *TimerSystem) internalModTimer(id int32, jiffies, expires int64, pendingOnly bool) bool {
	ret := ts.detachIfPending(id, false, jiffies)
	if !ret && pendingOnly {
		return false
	}
	ts.timer(id).expires = expires
	ts.internalAddTimer(id, jiffies)
	return ret
}

// AddTimer 挂上一个未挂载的定时器, jiffies 为当前 tick
func (ts *TimerSystem) AddTimer(id int32, jiffies int64) error {
	t := ts.Timer(id)
	if t == nil {
		return errs.NotFound.Printf("timer slot %d", id)
	}
	if t.TimerPending() {
		return errs.InvalidArgument.Printf("timer slot %d already pending", id)
	}
	ts.internalAddTimer(id, jiffies)
	return nil
}

// DelTimer 摘除定时器但不销毁，返回之前是否挂着
func (ts *TimerSystem) DelTimer(id int32, jiffies int64) bool {
	if ts.Timer(id) == nil {
		return false
	}
	return ts.detachIfPending(id, true, jiffies)
}

// ModTimer 改超时时间, 未挂载的会被挂上；返回之前是否挂着
func (ts *TimerSystem) ModTimer(id int32, jiffies, expires int64) bool {
	t := ts.Timer(id)
	if t == nil {
		return false
	}
	if t.TimerPending() && t.expires == expires {
		return true
	}
	return ts.internalModTimer(id, jiffies, expires, false)
}

// ModTimerPending 只改挂着的定时器，未挂载的什么也不做
func (ts *TimerSystem) ModTimerPending(id int32, jiffies, expires int64) bool {
	t := ts.Timer(id)
	if t == nil {
		return false
	}
	if t.TimerPending() && t.expires == expires {
		return true
	}
	return ts.internalModTimer(id, jiffies, expires, true)
}

// cascade 把 tvn[n][index] 的定时器重新分配到更低一级，返回 index
func (ts *TimerSystem) cascade(n, index int) int {
	tmp := &ts.timer(ts.cascadeList).Link
	ts.timer(ts.tvn[n][index]).ReplaceAndReinit(ts.r, tmp)
	tmp.Range(ts.r, func(id int32) bool {
		ts.doInternalAddTimer(id)
		return true
	})
	tmp.InitAsHead()
	return index
}

// RunTimers 推进到 jiffies(含)，依次触发到期的定时器。
// 回调里再调用 RunTimers 会被忽略
func (ts *TimerSystem) RunTimers(jiffies int64) {
	if !ts.ready {
		return
	}
	if ts.running {
		mlog.Warnf("RunTimers(%d) reentered from callback, ignored", jiffies)
		return
	}
	if ts.catchup(jiffies) {
		return
	}
	ts.running = true
	defer func() {
		ts.running = false
	}()

	work := &ts.timer(ts.workList).Link
	for jiffies >= ts.jiffies {
		index := int(ts.jiffies & tvrMask)
		if index == 0 &&
			ts.cascade(0, ts.tvIndex(0)) == 0 &&
			ts.cascade(1, ts.tvIndex(1)) == 0 &&
			ts.cascade(2, ts.tvIndex(2)) == 0 {
			ts.cascade(3, ts.tvIndex(3))
		}
		ts.jiffies++
		ts.timer(ts.tv1[index]).ReplaceAndReinit(ts.r, work)
		for !work.Empty() {
			ts.expire(work.Next())
			// 回调里 Close 了
			if !ts.ready {
				return
			}
		}
	}
}

func (ts *TimerSystem) expire(id int32) {
	t := ts.timer(id)
	gid := ts.reg.GlobalID(id)
	action, userData := t.action, t.userData
	ts.detachTimer(id, true)

	if action != "" {
		ts.invoke(action, gid, userData)
	}

	// 回调里可能已经清除或重新设置了自己
	if _, _, ok := ts.reg.Lookup(registry.KindTimer, gid); !ok {
		return
	}
	t = ts.timer(id)
	if t.TimerPending() {
		return
	}
	if t.interval == 0 {
		ts.reg.Destroy(id)
		return
	}
	t.expires = util.SaturatingAdd(t.expires, t.interval)
	ts.linkTimer(id)
}

func (ts *TimerSystem) invoke(name string, gid, userData int64) {
	action, ok := ts.actions.Lookup(name)
	if !ok {
		mlog.Warnf("timer %d expired, action %q not registered", gid, name)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			mlog.Errorf("timer %d action %q panic: %v\n%s", gid, name, r, debug.Stack())
		}
	}()
	action.OnExpiry(gid, userData)
}

// Close 销毁所有定时器和表头，之后不能再使用
func (ts *TimerSystem) Close() {
	if !ts.ready {
		return
	}
	var ids []int32
	ts.reg.Range(func(e registry.Entry, _ *Timer) bool {
		ids = append(ids, e.ID)
		return true
	})
	timers := ts.reg.Count(registry.KindTimer)
	for _, id := range ids {
		ts.reg.Destroy(id)
	}
	ts.activeTimers = 0
	ts.allTimers = 0
	ts.nextTimer = ts.jiffies
	ts.ready = false
	mlog.Debugf("timer system closed at jiffies %d, %d timers dropped", ts.jiffies, timers)
}

func (ts *TimerSystem) Jiffies() int64      { return ts.jiffies }
func (ts *TimerSystem) NextTimer() int64    { return ts.nextTimer }
func (ts *TimerSystem) ActiveTimers() int64 { return ts.activeTimers }
func (ts *TimerSystem) AllTimers() int64    { return ts.allTimers }
func (ts *TimerSystem) Actions() *Actions   { return ts.actions }
func (ts *TimerSystem) Source() ltime.Source {
	return ts.src
}

// Len 存活实体数，含表头
func (ts *TimerSystem) Len() int {
	return ts.reg.Len()
}

func (ts *TimerSystem) Cap() int {
	return ts.reg.Cap()
}
