package mongo

import (
	"fmt"
	"sync/atomic"

	"github.com/fixkme/timerwheel/mlog"
	"go.mongodb.org/mongo-driver/event"
)

// MongoPoolMonitor 连接池统计，快照写入变慢时用来判断是不是连接不够
type MongoPoolMonitor struct {
	activeConnections atomic.Int32 // 当前打开的连接数
	inUse             atomic.Int32 // 当前被借出的连接数
	checkoutFailed    atomic.Int64
	poolCleared       atomic.Int64
}

func (p *MongoPoolMonitor) Event(evt *event.PoolEvent) {
	switch evt.Type {
	case event.ConnectionCreated:
		p.activeConnections.Add(1)
	case event.ConnectionClosed:
		p.activeConnections.Add(-1)
	case event.GetSucceeded:
		p.inUse.Add(1)
	case event.ConnectionReturned:
		p.inUse.Add(-1)
	case event.GetFailed:
		p.checkoutFailed.Add(1)
		mlog.Warnf("mongo checkout failed on %s: %s", evt.Address, evt.Reason)
	case event.PoolCleared:
		p.poolCleared.Add(1)
		mlog.Warnf("mongo pool cleared on %s", evt.Address)
	}
}

func (p *MongoPoolMonitor) GetActiveConnections() int {
	return int(p.activeConnections.Load())
}

func (p *MongoPoolMonitor) GetInUseConnections() int {
	return int(p.inUse.Load())
}

func (p *MongoPoolMonitor) String() string {
	return fmt.Sprintf("active:%d, in_use:%d, checkout_failed:%d, pool_cleared:%d",
		p.activeConnections.Load(), p.inUse.Load(), p.checkoutFailed.Load(), p.poolCleared.Load())
}
