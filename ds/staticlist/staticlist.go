package staticlist

import "fmt"

// Node 数组槽位，空闲时 Next 串起空闲链
type Node[T any] struct {
	Data T
	Next int32
	used bool
}

// StaticList 定长数组分配器，槽位下标即稳定ID，可以整体序列化后原样恢复
type StaticList[T any] struct {
	datas []Node[T]
	free  int32
	used  int
	zero  T // 零值
}

const Null int32 = -1

func NewStaticList[T any](size int) *StaticList[T] {
	list := &StaticList[T]{
		datas: make([]Node[T], size),
	}
	list.Reset()
	return list
}

// Malloc 分配一个槽位, 满了返回 Null
func (list *StaticList[T]) Malloc() int32 {
	p := list.free
	if p != Null {
		slot := &list.datas[p]
		list.free = slot.Next
		slot.Next = Null
		slot.used = true
		list.used++
	}
	return p
}

// Free 归还槽位，p 非法或未分配时返回 false
func (list *StaticList[T]) Free(p int32) bool {
	if !list.InUse(p) {
		return false
	}
	node := &list.datas[p]
	node.Data = list.zero
	node.used = false
	node.Next = list.free
	list.free = p
	list.used--
	return true
}

func (list *StaticList[T]) InUse(p int32) bool {
	return p >= 0 && int(p) < len(list.datas) && list.datas[p].used
}

// Get 返回已分配槽位的数据指针，未分配返回 nil
func (list *StaticList[T]) Get(p int32) *T {
	if !list.InUse(p) {
		return nil
	}
	return &list.datas[p].Data
}

func (list *StaticList[T]) Len() int {
	return list.used
}

func (list *StaticList[T]) Cap() int {
	return len(list.datas)
}

// Range 按下标顺序遍历已分配槽位
func (list *StaticList[T]) Range(fn func(p int32, data *T) bool) {
	for i := range list.datas {
		node := &list.datas[i]
		if !node.used {
			continue
		}
		if !fn(int32(i), &node.Data) {
			return
		}
	}
}

func (list *StaticList[T]) Reset() {
	size := len(list.datas)
	list.used = 0
	if size == 0 {
		list.free = Null
		return
	}
	for i := 0; i < size-1; i++ {
		list.datas[i].Data = list.zero
		list.datas[i].Next = int32(i + 1)
		list.datas[i].used = false
	}
	list.datas[size-1].Data = list.zero
	list.datas[size-1].Next = Null
	list.datas[size-1].used = false
	list.free = 0
}

// Restore 清空后占用指定槽位，剩余槽位按下标升序重建空闲链
func (list *StaticList[T]) Restore(used []int32) error {
	size := len(list.datas)
	for i := range list.datas {
		list.datas[i] = Node[T]{Next: Null}
	}
	list.used = 0
	for _, p := range used {
		if p < 0 || int(p) >= size {
			return fmt.Errorf("staticlist restore: slot %d out of range [0,%d)", p, size)
		}
		if list.datas[p].used {
			return fmt.Errorf("staticlist restore: slot %d claimed twice", p)
		}
		list.datas[p].used = true
		list.used++
	}
	list.free = Null
	for i := size - 1; i >= 0; i-- {
		if list.datas[i].used {
			continue
		}
		list.datas[i].Next = list.free
		list.free = int32(i)
	}
	return nil
}
