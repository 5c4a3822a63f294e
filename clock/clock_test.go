package clock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fixkme/timerwheel/errs"
	ltime "github.com/fixkme/timerwheel/time"
	"github.com/fixkme/timerwheel/timer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSaver struct {
	mu     sync.Mutex
	writes []int64 // 每次写入时的定时器数
}

func (s *memSaver) Encode(ts *timer.TimerSystem) ([]byte, error) {
	if _, err := ts.Snapshot(); err != nil {
		return nil, err
	}
	return []byte{byte(ts.AllTimers())}, nil
}

func (s *memSaver) Write(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, int64(data[0]))
	return nil
}

func (s *memSaver) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

func (s *memSaver) last() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[len(s.writes)-1]
}

type fixture struct {
	src      *ltime.ManualSource
	acts     *timer.Actions
	ts       *timer.TimerSystem
	promises chan *Promise
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		src:      ltime.NewManualSource(1000),
		acts:     timer.NewActions(),
		promises: make(chan *Promise, 16),
	}
	require.NoError(t, f.acts.Register("promise", NewChanAction(f.promises, f.src)))
	f.ts = timer.New(&timer.Options{Capacity: 1024, Source: f.src, Actions: f.acts})
	require.NoError(t, f.ts.Init(f.src.NowMs()))
	return f
}

func (f *fixture) wait(t *testing.T) *Promise {
	select {
	case p := <-f.promises:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("promise not delivered")
		return nil
	}
}

func TestClockDelivers(t *testing.T) {
	f := newFixture(t)
	c := NewClock(f.ts, &Options{TickInterval: time.Millisecond})
	quit := make(chan struct{})
	c.Start(quit)
	defer func() {
		close(quit)
		<-c.Done()
	}()

	id, err := c.SetTimer("promise", 50, 0, 77)
	require.NoError(t, err)
	info, err := c.TimerInfo(id)
	require.NoError(t, err)
	assert.Equal(t, int64(1050), info.Expires)

	select {
	case <-f.promises:
		t.Fatal("fired before its time")
	case <-time.After(20 * time.Millisecond):
	}

	f.src.Set(1050)
	p := f.wait(t)
	assert.Equal(t, id, p.TimerId)
	assert.Equal(t, int64(77), p.Data)
	assert.Equal(t, int64(1050), p.NowTs)

	assert.True(t, errors.Is(c.ClearTimer(id), errs.NotFound))
}

func TestClockInlineFromCallback(t *testing.T) {
	f := newFixture(t)
	var c *Clock
	require.NoError(t, f.acts.RegisterFunc("chain", func(_, data int64) {
		// 回调在 Clock 协程里，直接执行不会死锁
		_, err := c.SetTimer("promise", 0, 0, data+1)
		assert.NoError(t, err)
	}))
	c = NewClock(f.ts, &Options{TickInterval: time.Millisecond})
	quit := make(chan struct{})
	c.Start(quit)
	defer func() {
		close(quit)
		<-c.Done()
	}()

	_, err := c.SetTimer("chain", 5, 0, 1)
	require.NoError(t, err)
	f.src.Set(1010)
	p := f.wait(t)
	assert.Equal(t, int64(2), p.Data)
	assert.Equal(t, int64(1010), p.NowTs)

	require.NoError(t, c.Do(func(ts *timer.TimerSystem) {
		assert.Equal(t, int64(0), ts.AllTimers())
	}))
}

func TestClockStopSaves(t *testing.T) {
	f := newFixture(t)
	saver := &memSaver{}
	c := NewClock(f.ts, &Options{TickInterval: time.Millisecond, Saver: saver, SaveInterval: 5 * time.Millisecond})
	quit := make(chan struct{})
	c.Start(quit)

	for i := 0; i < 3; i++ {
		_, err := c.SetTimer("promise", 10000, 0, 0)
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return saver.count() > 0 }, 2*time.Second, time.Millisecond)
	require.NoError(t, c.Save(context.Background()))

	close(quit)
	<-c.Done()
	assert.Equal(t, int64(3), saver.last())
	assert.Equal(t, 0, f.ts.Len())

	_, err := c.SetTimer("promise", 1, 0, 0)
	assert.True(t, errors.Is(err, errs.Closed))
	assert.True(t, errors.Is(c.ClearTimer(1), errs.Closed))
}

func TestClockQueueFull(t *testing.T) {
	f := newFixture(t)
	c := NewClock(f.ts, &Options{TickInterval: time.Millisecond, TaskQueueSize: 1})

	first := make(chan error, 1)
	go func() {
		_, err := c.SetTimer("promise", 10, 0, 0)
		first <- err
	}()
	require.Eventually(t, func() bool { return len(c.taskch) == 1 }, 2*time.Second, time.Millisecond)

	_, err := c.SetTimer("promise", 10, 0, 0)
	assert.True(t, errors.Is(err, errs.Busy))

	quit := make(chan struct{})
	c.Start(quit)
	require.NoError(t, <-first)
	close(quit)
	<-c.Done()
}

func TestChanActionDropsWhenFull(t *testing.T) {
	ch := make(chan *Promise, 1)
	a := NewChanAction(ch, ltime.NewManualSource(5))
	a.OnExpiry(1, 10)
	a.OnExpiry(2, 20)
	p := <-ch
	assert.Equal(t, int64(1), p.TimerId)
	assert.Equal(t, int64(5), p.NowTs)
	assert.Len(t, ch, 0)
	assert.Equal(t, int64(1), a.Dropped())
}

type everyFewMs struct{}

func (everyFewMs) Next(t time.Time) time.Time {
	return t.Add(3 * time.Millisecond)
}

func TestClockSaveSchedule(t *testing.T) {
	_, err := ParseSchedule("@every 30s")
	require.NoError(t, err)
	_, err = ParseSchedule("*/5 * * * * *")
	require.NoError(t, err)
	_, err = ParseSchedule("every now and then")
	assert.True(t, errors.Is(err, errs.InvalidArgument))

	f := newFixture(t)
	saver := &memSaver{}
	c := NewClock(f.ts, &Options{TickInterval: time.Millisecond, Saver: saver, SaveSchedule: everyFewMs{}})
	quit := make(chan struct{})
	c.Start(quit)
	require.Eventually(t, func() bool { return saver.count() >= 3 }, 2*time.Second, time.Millisecond)
	close(quit)
	<-c.Done()
}
