package time

import (
	"sync/atomic"
	"time"
)

const (
	SecMs  = 1000
	MinMs  = 60 * SecMs
	HourMs = 60 * MinMs
	DayMs  = 24 * HourMs
)

// Source 逻辑时钟，单位毫秒，单调不减
type Source interface {
	NowMs() int64
}

var timeOffset atomic.Int64 // 全局时间偏移 毫秒

// SetTimeOffset 设置时间偏移量, 用于调时
func SetTimeOffset(newOffset time.Duration) {
	timeOffset.Store(newOffset.Milliseconds())
}

// GetTimeOffset 获取时间偏移量
func GetTimeOffset() time.Duration {
	return time.Duration(timeOffset.Load()) * time.Millisecond
}

// NowMs 带偏移的当前毫秒时间戳
func NowMs() int64 {
	return time.Now().UnixMilli() + timeOffset.Load()
}

// Ms 把 time.Duration 转成毫秒, 用于 SetTimer 的延迟参数
func Ms(d time.Duration) int64 {
	return d.Milliseconds()
}

// SystemSource 每次都取系统时间
type SystemSource struct{}

func (SystemSource) NowMs() int64 {
	return NowMs()
}

// TickSource 缓存的tick时间，只在 Update 时刷新，同一个tick内多次读取结果一致。
// 时间回拨时保持原值，保证单调
type TickSource struct {
	now    atomic.Int64
	offset atomic.Int64
}

func NewTickSource() *TickSource {
	s := &TickSource{}
	s.Update()
	return s
}

// Update 刷新缓存时间, 返回刷新后的值
func (s *TickSource) Update() int64 {
	ms := NowMs() + s.offset.Load()
	for {
		old := s.now.Load()
		if ms <= old {
			return old
		}
		if s.now.CompareAndSwap(old, ms) {
			return ms
		}
	}
}

// SetDelta 额外的时间偏移，往回拨不会让已缓存的时间倒退
func (s *TickSource) SetDelta(d time.Duration) {
	s.offset.Store(d.Milliseconds())
}

func (s *TickSource) NowMs() int64 {
	return s.now.Load()
}

// ManualSource 手动推进的时钟
type ManualSource struct {
	now atomic.Int64
}

func NewManualSource(startMs int64) *ManualSource {
	s := &ManualSource{}
	s.now.Store(startMs)
	return s
}

func (s *ManualSource) NowMs() int64 {
	return s.now.Load()
}

// Set 设置当前时间，不允许回退
func (s *ManualSource) Set(ms int64) {
	if ms > s.now.Load() {
		s.now.Store(ms)
	}
}

func (s *ManualSource) Advance(d int64) int64 {
	if d < 0 {
		d = 0
	}
	return s.now.Add(d)
}

// Update 与 TickSource 保持同样的驱动接口，手动时钟不自行前进
func (s *ManualSource) Update() int64 {
	return s.now.Load()
}
