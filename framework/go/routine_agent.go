package g

import (
	"context"
	"sync"

	"github.com/fixkme/timerwheel/clock"
)

// RoutineAgent 业务协程：执行投递过来的任务，同时消费定时器到期通知。
// 把 TimerReceiver() 交给 clock.NewChanAction，超时回调就在业务协程里执行
type RoutineAgent struct {
	*Go
	closeSig    chan struct{}
	done        chan struct{}
	isClosed    bool
	mutex       sync.RWMutex
	timerCh     chan *clock.Promise
	timerCb     TimerCb
	beforeClose func()
}

type TimerCb func(tid int64, now int64, data int64)

func NewRoutineAgent(taskChSize, timerChSize int) *RoutineAgent {
	a := &RoutineAgent{
		Go:       NewGoChan(taskChSize),
		closeSig: make(chan struct{}),
		done:     make(chan struct{}),
		timerCh:  make(chan *clock.Promise, timerChSize),
	}
	return a
}

func (a *RoutineAgent) Init(timerCb TimerCb, beforeClose func()) {
	a.timerCb = timerCb
	a.beforeClose = beforeClose
}

func (a *RoutineAgent) TimerReceiver() chan<- *clock.Promise {
	return a.timerCh
}

func (a *RoutineAgent) Run() {
	defer a.onClose()

	for {
		select {
		case <-a.closeSig:
			return
		case cb := <-a.Go.ChanCb:
			a.Go.Exec(cb)
		case t := <-a.timerCh:
			if a.timerCb != nil {
				a.Go.Exec(func() {
					a.timerCb(t.TimerId, t.NowTs, t.Data)
				})
			}
		}
	}
}

// onClose 执行完已经入队的任务再退出
func (a *RoutineAgent) onClose() {
	defer close(a.done)
	if a.beforeClose != nil {
		a.beforeClose()
	}
	for {
		select {
		case cb := <-a.Go.ChanCb:
			a.Go.Exec(cb)
		default:
			return
		}
	}
}

func (a *RoutineAgent) Close() {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if a.isClosed {
		return
	}

	a.isClosed = true
	close(a.closeSig)
}

// Done Run 退出后关闭
func (a *RoutineAgent) Done() <-chan struct{} {
	return a.done
}

func (a *RoutineAgent) SyncRunFunc(f func()) (err error) {
	return a.CtxRunFunc(context.Background(), f)
}

func (a *RoutineAgent) CtxRunFunc(ctx context.Context, f func()) (err error) {
	a.mutex.RLock()
	if a.isClosed {
		a.mutex.RUnlock()
		return ErrRoutineClosed
	}
	errCh := a.Go.SubmitWithResult(f)
	a.mutex.RUnlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err = <-errCh:
		return err
	case <-a.done:
		select {
		case err = <-errCh:
			return err
		default:
			return ErrRoutineClosed
		}
	}
}

func (a *RoutineAgent) TryRunFunc(f func()) error {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	if a.isClosed {
		return ErrRoutineClosed
	}

	if !a.Go.TrySubmit(f) {
		return ErrGoChanFull
	}
	return nil
}
