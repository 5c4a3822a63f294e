package clock

import (
	"sync/atomic"
	"time"

	"github.com/fixkme/timerwheel/mlog"
	ltime "github.com/fixkme/timerwheel/time"
	"golang.org/x/time/rate"
)

type Promise struct {
	TimerId int64
	NowTs   int64 // 当前时间戳 毫秒
	Data    int64
}

// ChanAction 把到期通知投递到管道，由业务协程自己处理。
// 管道满时丢弃，不会阻塞时间轮；丢弃日志按秒限流
type ChanAction struct {
	receiver chan<- *Promise
	src      ltime.Source
	limiter  *rate.Limiter
	dropped  atomic.Int64
}

func NewChanAction(receiver chan<- *Promise, src ltime.Source) *ChanAction {
	if src == nil {
		src = ltime.SystemSource{}
	}
	return &ChanAction{
		receiver: receiver,
		src:      src,
		limiter:  rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

func (a *ChanAction) OnExpiry(timerID int64, userData int64) {
	promise := &Promise{TimerId: timerID, NowTs: a.src.NowMs(), Data: userData}
	select {
	case a.receiver <- promise:
	default:
		n := a.dropped.Add(1)
		if a.limiter.Allow() {
			mlog.Warnf("timer %d promise dropped, receiver full, %d dropped in total", timerID, n)
		}
	}
}

// Dropped 因管道满丢弃的通知数
func (a *ChanAction) Dropped() int64 {
	return a.dropped.Load()
}
