package timer

import (
	"fmt"

	"github.com/fixkme/timerwheel/errs"
	"github.com/fixkme/timerwheel/mlog"
	"github.com/fixkme/timerwheel/registry"
	"github.com/fixkme/timerwheel/util"
)

// EntityImage 单个实体的镜像，表头和定时器共用
type EntityImage struct {
	ID       int32
	Kind     registry.Kind
	GlobalID int64
	Prev     int32
	Next     int32
	Expires  int64
	Interval int64
	UserData int64
	Action   string
}

// Image 时间轮完整镜像，槽位ID原样保存
type Image struct {
	Capacity     int32
	Jiffies      int64
	NextTimer    int64
	ActiveTimers int64
	AllTimers    int64
	Tv1          []int32
	Tvn          [][]int32
	WorkList     int32
	CascadeList  int32
	Sequences    []int64
	Entities     []EntityImage
}

// Snapshot 生成镜像，RunTimers 过程中(回调里)不能做
func (ts *TimerSystem) Snapshot() (*Image, error) {
	if !ts.ready {
		return nil, errs.Closed.Print("timer system not initialized")
	}
	if ts.running {
		return nil, errs.Busy.Print("snapshot inside RunTimers")
	}
	img := &Image{
		Capacity:     int32(ts.reg.Cap()),
		Jiffies:      ts.jiffies,
		NextTimer:    ts.nextTimer,
		ActiveTimers: ts.activeTimers,
		AllTimers:    ts.allTimers,
		Tv1:          append([]int32(nil), ts.tv1[:]...),
		Tvn:          make([][]int32, tvnLevels),
		WorkList:     ts.workList,
		CascadeList:  ts.cascadeList,
		Sequences:    ts.reg.Sequences(),
		Entities:     make([]EntityImage, 0, ts.reg.Len()),
	}
	for n := range ts.tvn {
		img.Tvn[n] = append([]int32(nil), ts.tvn[n][:]...)
	}
	ts.reg.Range(func(e registry.Entry, t *Timer) bool {
		img.Entities = append(img.Entities, EntityImage{
			ID:       e.ID,
			Kind:     e.Kind,
			GlobalID: e.GlobalID,
			Prev:     t.Prev(),
			Next:     t.Next(),
			Expires:  t.expires,
			Interval: t.interval,
			UserData: t.userData,
			Action:   t.action,
		})
		return true
	})
	return img, nil
}

// Restore 从镜像重建时间轮。opt.Capacity 大于镜像容量时按 opt 扩容，
// 镜像不自洽返回 Corrupt
func Restore(img *Image, opt *Options) (*TimerSystem, error) {
	if img == nil {
		return nil, errs.InvalidArgument.Print("nil image")
	}
	o := opt.normalize()
	capacity := int(img.Capacity)
	if opt != nil && opt.Capacity > capacity {
		capacity = opt.Capacity
	}
	if capacity <= HeadCount {
		return nil, errs.Corrupt.Printf("capacity %d", capacity)
	}
	if len(img.Tv1) != tvrSize || len(img.Tvn) != tvnLevels {
		return nil, errs.Corrupt.Printf("wheel shape tv1:%d tvn:%d", len(img.Tv1), len(img.Tvn))
	}
	for n := range img.Tvn {
		if len(img.Tvn[n]) != tvnSize {
			return nil, errs.Corrupt.Printf("tv%d has %d slots", n+2, len(img.Tvn[n]))
		}
	}
	if img.Jiffies < 0 || img.ActiveTimers < 0 || img.AllTimers < img.ActiveTimers {
		return nil, errs.Corrupt.Printf("counters jiffies:%d active:%d all:%d", img.Jiffies, img.ActiveTimers, img.AllTimers)
	}

	entries := make([]registry.Entry, len(img.Entities))
	byID := make(map[int32]*EntityImage, len(img.Entities))
	for i := range img.Entities {
		e := &img.Entities[i]
		entries[i] = registry.Entry{ID: e.ID, Kind: e.Kind, GlobalID: e.GlobalID}
		byID[e.ID] = e
	}
	reg, err := registry.Restore(capacity, img.Sequences, entries, func(e registry.Entry, t *Timer) error {
		ei := byID[e.ID]
		t.Bind(e.ID)
		t.SetLinks(ei.Prev, ei.Next)
		t.action = ei.Action
		t.expires = ei.Expires
		t.interval = util.NonNegative(ei.Interval)
		t.userData = ei.UserData
		return nil
	})
	if err != nil {
		return nil, errs.WrapError(err)
	}

	ts := &TimerSystem{
		jiffies:      img.Jiffies,
		nextTimer:    img.NextTimer,
		activeTimers: img.ActiveTimers,
		allTimers:    img.AllTimers,
		workList:     img.WorkList,
		cascadeList:  img.CascadeList,
		reg:          reg,
		src:          o.Source,
		actions:      o.Actions,
	}
	ts.r = resolver{reg: reg}
	copy(ts.tv1[:], img.Tv1)
	for n := range ts.tvn {
		copy(ts.tvn[n][:], img.Tvn[n])
	}
	if err = ts.validate(); err != nil {
		return nil, err
	}
	ts.ready = true
	mlog.Infof("timer system restored, jiffies:%d, timers:%d, capacity:%d", ts.jiffies, ts.allTimers, capacity)
	return ts, nil
}

func (ts *TimerSystem) validate() error {
	heads := make([]int32, 0, HeadCount)
	heads = append(heads, ts.tv1[:]...)
	for n := range ts.tvn {
		heads = append(heads, ts.tvn[n][:]...)
	}
	heads = append(heads, ts.workList, ts.cascadeList)

	seen := make(map[int32]struct{}, len(heads))
	for _, h := range heads {
		if ts.reg.Kind(h) != registry.KindListHead {
			return errs.Corrupt.Printf("slot head %d is %s", h, ts.reg.Kind(h))
		}
		if _, dup := seen[h]; dup {
			return errs.Corrupt.Printf("slot head %d shared", h)
		}
		seen[h] = struct{}{}
	}
	if ts.reg.Count(registry.KindListHead) != HeadCount {
		return errs.Corrupt.Printf("%d list heads", ts.reg.Count(registry.KindListHead))
	}
	if !ts.timer(ts.workList).Empty() || !ts.timer(ts.cascadeList).Empty() {
		return errs.Corrupt.Print("work or cascade list not empty")
	}

	// 每个挂着的节点前后指向一致
	var pending int64
	var bad error
	ts.reg.Range(func(e registry.Entry, t *Timer) bool {
		if t.Self() != e.ID {
			bad = errs.Corrupt.Printf("entity %d self %d", e.ID, t.Self())
			return false
		}
		if e.Kind == registry.KindTimer {
			if t.expires < 0 {
				bad = errs.Corrupt.Printf("timer %d expires %d", e.GlobalID, t.expires)
				return false
			}
			if !t.TimerPending() {
				return true
			}
			pending++
			if _, ok := ts.actions.Lookup(t.action); t.action != "" && !ok {
				mlog.Warnf("restored timer %d uses unregistered action %q", e.GlobalID, t.action)
			}
		}
		next, prev := ts.reg.Get(t.Next()), ts.reg.Get(t.Prev())
		if next == nil || prev == nil || next.Prev() != e.ID || prev.Next() != e.ID {
			bad = errs.Corrupt.Printf("entity %d broken links %s", e.ID, t.Link.String())
			return false
		}
		return true
	})
	if bad != nil {
		return bad
	}
	if pending != ts.allTimers {
		return errs.Corrupt.Printf("%d timers linked, counter says %d", pending, ts.allTimers)
	}

	// 所有挂着的定时器都要能从某个槽位走到
	var reached int64
	limit := int64(ts.reg.Len())
	for _, h := range heads {
		head := ts.timer(h)
		for id := head.Next(); id != h; id = ts.timer(id).Next() {
			if ts.reg.Kind(id) != registry.KindTimer {
				return errs.Corrupt.Printf("slot %d links to %s %d", h, ts.reg.Kind(id), id)
			}
			reached++
			if reached > limit {
				return errs.Corrupt.Print("cycle in slot list")
			}
		}
	}
	if reached != pending {
		return errs.Corrupt.Printf("%d timers reachable of %d linked", reached, pending)
	}
	return nil
}

func (img *Image) String() string {
	timers := 0
	for i := range img.Entities {
		if img.Entities[i].Kind == registry.KindTimer {
			timers++
		}
	}
	return fmt.Sprintf("image{jiffies:%d, timers:%d, capacity:%d}", img.Jiffies, timers, img.Capacity)
}
