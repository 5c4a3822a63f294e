package timer

import (
	"github.com/fixkme/timerwheel/errs"
	"github.com/fixkme/timerwheel/registry"
	"github.com/fixkme/timerwheel/util"
)

// Scheduler 业务侧使用的定时器接口，时间单位为毫秒，ID 为全局ID
type Scheduler interface {
	SetTimer(action string, delayMs, intervalMs, userData int64) (int64, error)
	ClearTimer(timerID int64) error
	ResetTimer(timerID int64, action string, delayMs, intervalMs, userData int64) error
}

var _ Scheduler = (*TimerSystem)(nil)

func (ts *TimerSystem) checkAction(action string) error {
	if !ts.ready {
		return errs.Closed.Print("timer system not initialized")
	}
	if action == "" {
		return nil
	}
	if _, ok := ts.actions.Lookup(action); !ok {
		return errs.InvalidArgument.Printf("action %q not registered", action)
	}
	return nil
}

func (ts *TimerSystem) lookup(timerID int64) (int32, *Timer, error) {
	if !ts.ready {
		return 0, nil, errs.Closed.Print("timer system not initialized")
	}
	id, t, ok := ts.reg.Lookup(registry.KindTimer, timerID)
	if !ok {
		return 0, nil, errs.NotFound.Printf("timer %d", timerID)
	}
	return id, t, nil
}

// SetTimer delayMs 毫秒后触发 action，intervalMs 大于 0 时循环触发。
// 负数按 0 处理，失败返回 InvalidID
func (ts *TimerSystem) SetTimer(action string, delayMs, intervalMs, userData int64) (int64, error) {
	if err := ts.checkAction(action); err != nil {
		return InvalidID, err
	}
	id, t, err := ts.newTimer()
	if err != nil {
		return InvalidID, err
	}
	now := ts.src.NowMs()
	t.Init(action, util.SaturatingAdd(now, util.NonNegative(delayMs)), util.NonNegative(intervalMs), userData)
	ts.internalAddTimer(id, now)
	return ts.reg.GlobalID(id), nil
}

// ClearTimer 取消并销毁定时器，不论是否挂着
func (ts *TimerSystem) ClearTimer(timerID int64) error {
	id, _, err := ts.lookup(timerID)
	if err != nil {
		return err
	}
	ts.DelTimer(id, ts.src.NowMs())
	ts.reg.Destroy(id)
	return nil
}

// ResetTimer 保留ID，用新参数重新设置
func (ts *TimerSystem) ResetTimer(timerID int64, action string, delayMs, intervalMs, userData int64) error {
	if err := ts.checkAction(action); err != nil {
		return err
	}
	id, t, err := ts.lookup(timerID)
	if err != nil {
		return err
	}
	now := ts.src.NowMs()
	ts.DelTimer(id, now)
	t.Init(action, util.SaturatingAdd(now, util.NonNegative(delayMs)), util.NonNegative(intervalMs), userData)
	ts.internalAddTimer(id, now)
	return nil
}

// ModifyTimer 改为 delayMs 后超时，未挂着的会重新挂上。返回之前是否挂着
func (ts *TimerSystem) ModifyTimer(timerID int64, delayMs int64) (bool, error) {
	id, _, err := ts.lookup(timerID)
	if err != nil {
		return false, err
	}
	now := ts.src.NowMs()
	return ts.ModTimer(id, now, util.SaturatingAdd(now, util.NonNegative(delayMs))), nil
}

// ModifyPendingTimer 只修改挂着的定时器
func (ts *TimerSystem) ModifyPendingTimer(timerID int64, delayMs int64) (bool, error) {
	id, _, err := ts.lookup(timerID)
	if err != nil {
		return false, err
	}
	now := ts.src.NowMs()
	return ts.ModTimerPending(id, now, util.SaturatingAdd(now, util.NonNegative(delayMs))), nil
}

func (ts *TimerSystem) TimerInfo(timerID int64) (Info, error) {
	_, t, err := ts.lookup(timerID)
	if err != nil {
		return Info{}, err
	}
	return Info{
		ID:       timerID,
		Expires:  t.expires,
		Interval: t.interval,
		UserData: t.userData,
		Action:   t.action,
		Pending:  t.TimerPending(),
	}, nil
}

// Tick 按时间源的当前时间推进
func (ts *TimerSystem) Tick() {
	ts.RunTimers(ts.src.NowMs())
}
