package timer

import (
	"fmt"

	"github.com/fixkme/timerwheel/ds/staticlist"
)

// Timer 定时器实体，同时是链表节点；槽位表头也是 Timer
type Timer struct {
	staticlist.Link
	expires  int64  // 超时时间点
	interval int64  // 循环间隔, 0 表示只触发一次
	action   string // 回调名, 空表示无回调
	userData int64
}

// Init 重置全部字段，置为未链接
func (t *Timer) Init(action string, expires, interval, userData int64) {
	t.action = action
	t.expires = expires
	t.interval = interval
	t.userData = userData
	t.SetLinks(staticlist.Poison, staticlist.Poison)
}

func (t *Timer) Expires() int64  { return t.expires }
func (t *Timer) Interval() int64 { return t.interval }
func (t *Timer) Action() string  { return t.action }
func (t *Timer) UserData() int64 { return t.userData }

// TimerPending 是否挂在某个槽位上
func (t *Timer) TimerPending() bool {
	return t.Next() >= 0
}

// DetachFromWheel 从槽位摘除，不动 expires/interval。
// clearPending 为 false 时保留 next，调用方马上会重新插入
func (t *Timer) DetachFromWheel(r staticlist.Resolver, clearPending bool) {
	t.Remove(r)
	next := t.Next()
	if clearPending {
		next = staticlist.Poison
	}
	t.SetLinks(staticlist.Poison, next)
}

func (t *Timer) String() string {
	return fmt.Sprintf("(self:%d, prev:%d, next:%d, action:%q, expires:%d, interval:%d, user_data:%d)",
		t.Self(), t.Prev(), t.Next(), t.action, t.expires, t.interval, t.userData)
}

// Info 对外暴露的定时器信息
type Info struct {
	ID       int64
	Expires  int64
	Interval int64
	UserData int64
	Action   string
	Pending  bool
}
