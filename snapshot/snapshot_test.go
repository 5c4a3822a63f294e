package snapshot

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/fixkme/timerwheel/errs"
	ltime "github.com/fixkme/timerwheel/time"
	"github.com/fixkme/timerwheel/timer"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

type wheel struct {
	ts    *timer.TimerSystem
	src   *ltime.ManualSource
	fired []int64
}

func newWheel(t *testing.T) *wheel {
	w := &wheel{src: ltime.NewManualSource(0)}
	w.ts = timer.New(&timer.Options{Capacity: 2048, Source: w.src, Actions: w.actions(t)})
	require.NoError(t, w.ts.Init(0))
	return w
}

func (w *wheel) actions(t *testing.T) *timer.Actions {
	acts := timer.NewActions()
	require.NoError(t, acts.RegisterFunc("mark", func(_ int64, data int64) {
		w.fired = append(w.fired, data)
	}))
	return acts
}

func (w *wheel) advance(now int64) {
	w.src.Set(now)
	w.ts.RunTimers(now)
}

func populate(t *testing.T, w *wheel) {
	for _, d := range []int64{3, 400, 20000, 1 << 22} {
		_, err := w.ts.SetTimer("mark", d, 0, d)
		require.NoError(t, err)
	}
	_, err := w.ts.SetTimer("mark", 50, 25, -1)
	require.NoError(t, err)
	_, err = w.ts.SetTimer("", 10, 0, 0)
	require.NoError(t, err)
	w.advance(100)
}

func TestCodecRestore(t *testing.T) {
	w := newWheel(t)
	populate(t, w)
	img, err := w.ts.Snapshot()
	require.NoError(t, err)

	env := &Envelope{Version: Version, ID: xid.New(), Owner: uuid.New(), CreatedMs: 42, Image: img}
	data, err := Marshal(env)
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, env.ID, got.ID)
	assert.Equal(t, env.Owner, got.Owner)
	assert.Equal(t, int64(42), got.CreatedMs)
	assert.Equal(t, img, got.Image)

	r := &wheel{src: ltime.NewManualSource(100)}
	r.ts, err = timer.Restore(got.Image, &timer.Options{Source: r.src, Actions: r.actions(t)})
	require.NoError(t, err)

	w.fired, r.fired = nil, nil
	for now := int64(200); now < 1<<22+1000; now += 4099 {
		w.advance(now)
		r.advance(now)
	}
	assert.NotEmpty(t, w.fired)
	assert.Equal(t, w.fired, r.fired)
}

func TestCodecSkipsUnknownFields(t *testing.T) {
	w := newWheel(t)
	img, err := w.ts.Snapshot()
	require.NoError(t, err)
	data, err := Marshal(&Envelope{Version: Version, ID: xid.New(), Owner: uuid.New(), Image: img})
	require.NoError(t, err)

	data = protowire.AppendTag(data, 99, protowire.BytesType)
	data = protowire.AppendString(data, "from a newer writer")
	data = protowire.AppendTag(data, 100, protowire.VarintType)
	data = protowire.AppendVarint(data, 7)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, img.Jiffies, got.Image.Jiffies)
}

func TestCodecRejects(t *testing.T) {
	w := newWheel(t)
	img, err := w.ts.Snapshot()
	require.NoError(t, err)
	data, err := Marshal(&Envelope{Version: Version, ID: xid.New(), Owner: uuid.New(), Image: img})
	require.NoError(t, err)

	_, err = Unmarshal(data[:len(data)-3])
	assert.True(t, errors.Is(err, errs.Codec), "truncated: %v", err)

	bad, err := Marshal(&Envelope{Version: Version + 1, ID: xid.New(), Owner: uuid.New(), Image: img})
	require.NoError(t, err)
	_, err = Unmarshal(bad)
	assert.True(t, errors.Is(err, errs.Codec), "version: %v", err)

	_, err = Marshal(&Envelope{Version: Version})
	assert.True(t, errors.Is(err, errs.InvalidArgument))

	// kind 只有一个字节, 258 不能截断成 timer
	raw := protowire.AppendTag(nil, entID, protowire.VarintType)
	raw = protowire.AppendVarint(raw, 600)
	raw = protowire.AppendTag(raw, entKind, protowire.VarintType)
	raw = protowire.AppendVarint(raw, 258)
	_, err = unmarshalEntity(raw)
	assert.True(t, errors.Is(err, errs.Codec), "kind: %v", err)
}

func testStore(t *testing.T, s Store) {
	ctx := context.Background()
	_, err := s.Load(ctx, "wheel-a")
	assert.True(t, errors.Is(err, errs.NotFound), "%s: %v", s.Name(), err)

	require.NoError(t, s.Save(ctx, "wheel-a", []byte{1, 2, 3}))
	require.NoError(t, s.Save(ctx, "wheel-a", []byte{4, 5}))
	got, err := s.Load(ctx, "wheel-a")
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 5}, got)

	require.NoError(t, s.Delete(ctx, "wheel-a"))
	require.NoError(t, s.Delete(ctx, "wheel-a"))
	_, err = s.Load(ctx, "wheel-a")
	assert.True(t, errors.Is(err, errs.NotFound))
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	testStore(t, s)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	cli := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cli.Close()
	testStore(t, NewRedisStore(cli, "timerwheel:", 0))
}

func TestManager(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	w := newWheel(t)
	populate(t, w)
	m := NewManager(s, "node-1", uuid.New())

	_, _, err = m.Load(ctx, nil)
	assert.True(t, errors.Is(err, errs.NotFound))

	require.NoError(t, m.Save(ctx, w.ts))

	// 换一个 owner 接管
	other := NewManager(s, "node-1", uuid.New())
	r := &wheel{src: ltime.NewManualSource(100)}
	ts, env, err := other.Load(ctx, &timer.Options{Source: r.src, Actions: r.actions(t)})
	require.NoError(t, err)
	assert.Equal(t, m.Owner(), env.Owner)
	assert.Equal(t, w.ts.AllTimers(), ts.AllTimers())
	assert.Equal(t, w.ts.Jiffies(), ts.Jiffies())

	require.NoError(t, other.Discard(ctx))
	_, _, err = other.Load(ctx, nil)
	assert.True(t, errors.Is(err, errs.NotFound))
}
