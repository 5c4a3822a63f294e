package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisAndPubsub(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := NewRedis(ctx, RedisMode_Single, &redis.Options{Addr: mr.Addr()})
	require.NoError(t, err)
	defer db.Stop()
	require.NotNil(t, db.GetCmdable())

	got := make(chan string, 1)
	ps, err := Pubsub(ctx, "timerd:ctl:*", db, func(msg *redis.Message) error {
		got <- msg.Channel + "=" + msg.Payload
		return nil
	})
	require.NoError(t, err)
	defer ps.Close()

	require.NoError(t, db.Client().Publish(ctx, "timerd:ctl:save", "now").Err())
	select {
	case s := <-got:
		assert.Equal(t, "timerd:ctl:save=now", s)
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}
}

func TestNewRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := NewRedis(ctx, RedisMode_Single, &redis.Options{Addr: addr, MaxRetries: -1})
	assert.Error(t, err)
}
