package mongo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/event"
)

func TestPoolMonitor(t *testing.T) {
	m := &MongoPoolMonitor{}
	for _, typ := range []string{
		event.ConnectionCreated, event.ConnectionCreated, event.GetSucceeded,
		event.GetSucceeded, event.ConnectionReturned, event.ConnectionClosed,
		event.GetFailed, event.PoolCleared,
	} {
		m.Event(&event.PoolEvent{Type: typ, Address: "127.0.0.1:27017"})
	}
	assert.Equal(t, 1, m.GetActiveConnections())
	assert.Equal(t, 1, m.GetInUseConnections())
	assert.Equal(t, "active:1, in_use:1, checkout_failed:1, pool_cleared:1", m.String())
}
