package timer

import (
	"github.com/armon/go-radix"
	"github.com/fixkme/timerwheel/errs"
)

// ExpiryAction 超时回调。在驱动时间轮的协程里同步执行，不能阻塞；
// 可以在回调里增删改定时器
type ExpiryAction interface {
	OnExpiry(timerID int64, userData int64)
}

type ActionFunc func(timerID int64, userData int64)

func (f ActionFunc) OnExpiry(timerID int64, userData int64) {
	f(timerID, userData)
}

// Actions 回调表。定时器只记录回调名，进程重启恢复后按名字重新找到回调。
// 只在启动阶段注册，运行期不做并发保护
type Actions struct {
	tree *radix.Tree
}

func NewActions() *Actions {
	return &Actions{tree: radix.New()}
}

func (a *Actions) Register(name string, action ExpiryAction) error {
	if name == "" || action == nil {
		return errs.InvalidArgument.Printf("action name %q", name)
	}
	if _, ok := a.tree.Get(name); ok {
		return errs.Duplicate.Printf("action %q", name)
	}
	a.tree.Insert(name, action)
	return nil
}

func (a *Actions) RegisterFunc(name string, fn func(timerID int64, userData int64)) error {
	if fn == nil {
		return errs.InvalidArgument.Printf("action %q func is nil", name)
	}
	return a.Register(name, ActionFunc(fn))
}

func (a *Actions) Unregister(name string) bool {
	_, ok := a.tree.Delete(name)
	return ok
}

func (a *Actions) Lookup(name string) (ExpiryAction, bool) {
	v, ok := a.tree.Get(name)
	if !ok {
		return nil, false
	}
	return v.(ExpiryAction), true
}

// Names 按字典序列出指定前缀的回调名
func (a *Actions) Names(prefix string) []string {
	var names []string
	a.tree.WalkPrefix(prefix, func(name string, _ interface{}) bool {
		names = append(names, name)
		return false
	})
	return names
}

func (a *Actions) Len() int {
	return a.tree.Len()
}
