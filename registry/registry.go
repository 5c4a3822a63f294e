// Package registry 实体注册表：按稳定ID创建/查找/销毁实体。
//
// 实体存放在定长数组里，槽位下标就是链接用的ID；每种实体另有一个全局ID，
// 按种类单调递增、永不复用，供外部引用。两种启动方式：New 全新分配，
// Restore 按持久化的镜像把实体放回原来的槽位。
package registry

import (
	"fmt"

	"github.com/fixkme/timerwheel/ds/staticlist"
	"github.com/fixkme/timerwheel/errs"
)

type Kind uint8

const (
	KindNone Kind = iota
	KindListHead
	KindTimer

	MaxKinds = 16
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindListHead:
		return "list_head"
	case KindTimer:
		return "timer"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Entry 实体的身份信息
type Entry struct {
	ID       int32
	Kind     Kind
	GlobalID int64
}

type entity[T any] struct {
	kind Kind
	gid  int64
	data T
}

type globalKey struct {
	kind Kind
	gid  int64
}

type Registry[T any] struct {
	pool    *staticlist.StaticList[entity[T]]
	globals map[globalKey]int32
	seq     [MaxKinds]int64
	alive   [MaxKinds]int
}

func New[T any](capacity int) *Registry[T] {
	return &Registry[T]{
		pool:    staticlist.NewStaticList[entity[T]](capacity),
		globals: make(map[globalKey]int32, capacity),
	}
}

// Create 分配实体，池满返回 AllocationFailure
func (r *Registry[T]) Create(kind Kind) (int32, *T, error) {
	if kind == KindNone || kind >= MaxKinds {
		return staticlist.Null, nil, errs.InvalidArgument.Printf("kind %d", kind)
	}
	id := r.pool.Malloc()
	if id == staticlist.Null {
		return staticlist.Null, nil, errs.AllocationFailure.Printf("registry full, cap=%d", r.pool.Cap())
	}
	r.seq[kind]++
	r.alive[kind]++
	e := r.pool.Get(id)
	e.kind = kind
	e.gid = r.seq[kind]
	r.globals[globalKey{kind, e.gid}] = id
	return id, &e.data, nil
}

// Get 按槽位ID取实体，不存在返回 nil
func (r *Registry[T]) Get(id int32) *T {
	e := r.pool.Get(id)
	if e == nil {
		return nil
	}
	return &e.data
}

func (r *Registry[T]) Kind(id int32) Kind {
	e := r.pool.Get(id)
	if e == nil {
		return KindNone
	}
	return e.kind
}

func (r *Registry[T]) GlobalID(id int32) int64 {
	e := r.pool.Get(id)
	if e == nil {
		return 0
	}
	return e.gid
}

// Lookup 按全局ID查找，已销毁或种类不符都视为不存在
func (r *Registry[T]) Lookup(kind Kind, gid int64) (int32, *T, bool) {
	id, ok := r.globals[globalKey{kind, gid}]
	if !ok {
		return staticlist.Null, nil, false
	}
	return id, &r.pool.Get(id).data, true
}

func (r *Registry[T]) Destroy(id int32) bool {
	e := r.pool.Get(id)
	if e == nil {
		return false
	}
	delete(r.globals, globalKey{e.kind, e.gid})
	r.alive[e.kind]--
	return r.pool.Free(id)
}

func (r *Registry[T]) Len() int {
	return r.pool.Len()
}

func (r *Registry[T]) Cap() int {
	return r.pool.Cap()
}

// Count 某一种类的存活实体数
func (r *Registry[T]) Count(kind Kind) int {
	if kind >= MaxKinds {
		return 0
	}
	return r.alive[kind]
}

func (r *Registry[T]) Range(fn func(e Entry, data *T) bool) {
	r.pool.Range(func(id int32, e *entity[T]) bool {
		return fn(Entry{ID: id, Kind: e.kind, GlobalID: e.gid}, &e.data)
	})
}

// Sequences 各种类的全局ID序列，随镜像一起持久化
func (r *Registry[T]) Sequences() []int64 {
	seq := make([]int64, MaxKinds)
	copy(seq, r.seq[:])
	return seq
}

// Restore 从镜像恢复：实体放回原槽位，fill 负责还原数据
func Restore[T any](capacity int, sequences []int64, entries []Entry, fill func(e Entry, data *T) error) (*Registry[T], error) {
	if len(sequences) > MaxKinds {
		return nil, errs.Corrupt.Printf("%d kind sequences", len(sequences))
	}
	r := New[T](capacity)
	ids := make([]int32, len(entries))
	for i := range entries {
		ids[i] = entries[i].ID
	}
	if err := r.pool.Restore(ids); err != nil {
		return nil, errs.Corrupt.Printf("%v", err)
	}
	copy(r.seq[:], sequences)
	for _, ent := range entries {
		if ent.Kind == KindNone || ent.Kind >= MaxKinds {
			return nil, errs.Corrupt.Printf("entity %d kind %d", ent.ID, ent.Kind)
		}
		if ent.GlobalID <= 0 || ent.GlobalID > r.seq[ent.Kind] {
			return nil, errs.Corrupt.Printf("entity %d global id %d beyond sequence %d", ent.ID, ent.GlobalID, r.seq[ent.Kind])
		}
		key := globalKey{ent.Kind, ent.GlobalID}
		if _, dup := r.globals[key]; dup {
			return nil, errs.Corrupt.Printf("global id %d of %s used twice", ent.GlobalID, ent.Kind)
		}
		e := r.pool.Get(ent.ID)
		e.kind = ent.Kind
		e.gid = ent.GlobalID
		r.globals[key] = ent.ID
		r.alive[ent.Kind]++
		if fill != nil {
			if err := fill(ent, &e.data); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}
