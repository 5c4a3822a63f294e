package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadYaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timerd.yaml")
	writeFile(t, path, `
node_id: node-7
log_level: debug
wheel_key: orders
wheel_capacity: 4096
snapshot_store: redis
snapshot_cron: "@every 30s"
redis_addr: 127.0.0.1:6379
`)
	require.NoError(t, LoadConfig(path, nil))
	assert.Equal(t, "node-7", Config.NodeId)
	assert.Equal(t, "debug", Config.LogLevel)
	assert.Equal(t, "orders", Config.WheelKey)
	assert.Equal(t, 4096, Config.WheelCapacity)
	assert.Equal(t, "redis", Config.SnapshotStore)
	assert.Equal(t, "@every 30s", Config.SnapshotCron)
	assert.Equal(t, "127.0.0.1:6379", Config.RedisAddr)
	// 未配置的保持默认
	assert.Equal(t, 10*time.Millisecond, Config.TickInterval())
	assert.Equal(t, "snapshots", Config.MongoCollection)
}

func TestLoadJsonWithEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timerd.json")
	writeFile(t, path, `{"wheel_key":"a","tick_interval_ms":5,"log_std_out":false}`)

	t.Setenv("TIMERD_WHEEL_KEY", "from-env")
	t.Setenv("TIMERD_LOG_STD_OUT", "true")
	t.Setenv("TIMERD_TIME_OFFSET_MS", "-3600000")
	require.NoError(t, LoadConfig(path, LoadConfigFromEnv))
	assert.Equal(t, "from-env", Config.WheelKey)
	assert.Equal(t, 5*time.Millisecond, Config.TickInterval())
	assert.True(t, Config.LogStdOut)
	assert.Equal(t, int64(-3600000), Config.TimeOffsetMs)
	assert.Contains(t, Config.JsonFormat(), `"wheel_key": "from-env"`)

	t.Setenv("TIMERD_WHEEL_CAPACITY", "lots")
	assert.Error(t, LoadConfig(path, LoadConfigFromEnv))
}

func TestWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timerd.yaml")
	writeFile(t, path, "log_level: info\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changed := make(chan *AppConfig, 8)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(conf *AppConfig) {
			select {
			case changed <- conf:
			default:
			}
		})
	}()

	deadline := time.After(3 * time.Second)
	for {
		// 监听可能还没建立，重复写直到收到通知
		writeFile(t, path, "log_level: trace\n")
		select {
		case conf := <-changed:
			// 截断和写入可能分成两次通知
			if conf.LogLevel != "trace" {
				continue
			}
			cancel()
			require.NoError(t, <-done)
			return
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatal("no reload notification")
		}
	}
}
