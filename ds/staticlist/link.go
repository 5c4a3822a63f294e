package staticlist

import "fmt"

// 链表哨兵值，与任何合法ID都不同
const (
	Poison  int32 = Null
	Poison1 int32 = Poison - 1
)

// Resolver 通过ID找到节点的链接域
type Resolver interface {
	Node(id int32) *Link
}

// Link 侵入式双向循环链表节点，prev/next 存的是ID而不是指针。
// 同一个类型既可以做表头(哨兵)也可以做元素
type Link struct {
	self int32
	prev int32
	next int32
}

// Bind 绑定自身ID，链接域置为未链接
func (l *Link) Bind(self int32) {
	l.self = self
	l.prev = Poison
	l.next = Poison
}

func (l *Link) Self() int32 { return l.self }
func (l *Link) Prev() int32 { return l.prev }
func (l *Link) Next() int32 { return l.next }

// SetLinks 直接写链接域，只用于从镜像恢复
func (l *Link) SetLinks(prev, next int32) {
	l.prev = prev
	l.next = next
}

func (l *Link) InitAsHead() {
	l.next = l.self
	l.prev = l.self
}

func (l *Link) Empty() bool {
	return l.next == l.self
}

func (l *Link) IsSingular() bool {
	return !l.Empty() && l.next == l.prev
}

// InsertAfter 插到 head 后面(栈)
func (l *Link) InsertAfter(r Resolver, head *Link) {
	l.insertBetween(head, r.Node(head.next))
}

// InsertBefore 插到 head 前面，即表尾(队列)
func (l *Link) InsertBefore(r Resolver, head *Link) {
	l.insertBetween(r.Node(head.prev), head)
}

func (l *Link) insertBetween(prev, next *Link) {
	next.prev = l.self
	l.next = next.self
	l.prev = prev.self
	prev.next = l.self
}

// Remove 把自己从链表摘掉，自身的 prev/next 保持原值，由调用方决定是否覆盖
func (l *Link) Remove(r Resolver) {
	prev, next := r.Node(l.prev), r.Node(l.next)
	next.prev = prev.self
	prev.next = next.self
}

// RemovePoison 摘除并把链接域置为 Poison1
func (l *Link) RemovePoison(r Resolver) {
	l.Remove(r)
	l.prev = Poison1
	l.next = Poison1
}

func (l *Link) RemoveInit(r Resolver) {
	l.Remove(r)
	l.InitAsHead()
}

// ReplaceAndReinit 把整条链表的成员一次性交给 newHead，自己重新初始化为空表
func (l *Link) ReplaceAndReinit(r Resolver, newHead *Link) {
	if l.Empty() {
		newHead.InitAsHead()
		return
	}
	newHead.next = l.next
	r.Node(newHead.next).prev = newHead.self
	newHead.prev = l.prev
	r.Node(newHead.prev).next = newHead.self
	l.InitAsHead()
}

// Range 遍历表头之后的元素, fn 可以摘除当前元素
func (l *Link) Range(r Resolver, fn func(id int32) bool) {
	for id := l.next; id != l.self; {
		next := r.Node(id).next
		if !fn(id) {
			return
		}
		id = next
	}
}

func (l *Link) Len(r Resolver) int {
	n := 0
	for id := l.next; id != l.self; id = r.Node(id).next {
		n++
	}
	return n
}

func (l *Link) String() string {
	return fmt.Sprintf("(self:%d, prev:%d, next:%d)", l.self, l.prev, l.next)
}
