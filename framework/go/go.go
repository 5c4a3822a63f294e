package g

import (
	"runtime/debug"

	"github.com/fixkme/timerwheel/errs"
	"github.com/fixkme/timerwheel/mlog"
)

var (
	ErrGoChanFull    = errs.Busy.Print("go chan is full")
	ErrRoutineClosed = errs.Closed.Print("routine agent is closed")
)

// Go 任务管道，由一个协程依次执行
type Go struct {
	ChanCb       chan func()
	panicHandler func(r any)
}

func NewGoChan(size int) *Go {
	if size < 1024 {
		size = 1024
	} else if size > 102400 {
		size = 102400
	}

	g := new(Go)
	g.ChanCb = make(chan func(), size)
	g.panicHandler = func(r any) {
		mlog.Errorf("go run panic: %v\n%s", r, debug.Stack())
	}
	return g
}

func (g *Go) SetPanicHandler(f func(r any)) {
	if f != nil {
		g.panicHandler = f
	}
}

// SubmitWithResult 入队，执行完后 errCh 关闭；队列满时 errCh 收到 ErrGoChanFull
func (g *Go) SubmitWithResult(f func()) (errCh chan error) {
	errCh = make(chan error, 1)
	call := func() {
		defer close(errCh)
		f()
	}
	select {
	case g.ChanCb <- call:
	default:
		errCh <- ErrGoChanFull
	}
	return
}

func (g *Go) TrySubmit(f func()) (ok bool) {
	select {
	case g.ChanCb <- f:
		return true
	default:
		return false
	}
}

func (g *Go) Exec(cb func()) {
	defer func() {
		if r := recover(); r != nil {
			g.panicHandler(r)
		}
	}()

	cb()
}
