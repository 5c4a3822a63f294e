package time

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTickSourceCached(t *testing.T) {
	s := NewTickSource()
	first := s.NowMs()
	assert.InDelta(t, float64(time.Now().UnixMilli()), float64(first), 1000)
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, first, s.NowMs(), "only Update refreshes")
	assert.GreaterOrEqual(t, s.Update(), first+1)
}

func TestTickSourceMonotonic(t *testing.T) {
	s := NewTickSource()
	s.SetDelta(time.Hour)
	ahead := s.Update()
	s.SetDelta(0)
	assert.Equal(t, ahead, s.Update(), "setting the clock back keeps the last tick")
}

func TestManualSource(t *testing.T) {
	s := NewManualSource(100)
	assert.Equal(t, int64(100), s.NowMs())
	assert.Equal(t, int64(110), s.Advance(10))
	s.Set(50)
	assert.Equal(t, int64(110), s.NowMs())
	s.Set(200)
	assert.Equal(t, int64(200), s.Update())
	assert.Equal(t, int64(200), s.Advance(-5))
}

func TestOffset(t *testing.T) {
	defer SetTimeOffset(0)
	SetTimeOffset(time.Minute)
	assert.Equal(t, time.Minute, GetTimeOffset())
	assert.InDelta(t, float64(time.Now().UnixMilli()+MinMs), float64(NowMs()), 1000)
	assert.Equal(t, int64(1500), Ms(1500*time.Millisecond))
}
