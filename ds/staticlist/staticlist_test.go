package staticlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticListMallocFree(t *testing.T) {
	list := NewStaticList[int](3)
	a, b, c := list.Malloc(), list.Malloc(), list.Malloc()
	assert.Equal(t, []int32{0, 1, 2}, []int32{a, b, c})
	assert.Equal(t, Null, list.Malloc(), "full")
	assert.Equal(t, 3, list.Len())

	*list.Get(b) = 42
	assert.True(t, list.Free(b))
	assert.False(t, list.Free(b), "double free")
	assert.Nil(t, list.Get(b))
	assert.False(t, list.Free(7))

	// 刚释放的槽位优先复用，且数据已清零
	p := list.Malloc()
	assert.Equal(t, b, p)
	assert.Equal(t, 0, *list.Get(p))
}

func TestStaticListRange(t *testing.T) {
	list := NewStaticList[string](4)
	for i := 0; i < 4; i++ {
		*list.Get(list.Malloc()) = string(rune('a' + i))
	}
	list.Free(1)
	var got []string
	list.Range(func(p int32, s *string) bool {
		got = append(got, *s)
		return true
	})
	assert.Equal(t, []string{"a", "c", "d"}, got)
}

func TestStaticListRestore(t *testing.T) {
	list := NewStaticList[int](5)
	require.NoError(t, list.Restore([]int32{3, 1}))
	assert.Equal(t, 2, list.Len())
	assert.True(t, list.InUse(1))
	assert.True(t, list.InUse(3))

	// 空闲链按下标升序
	assert.Equal(t, int32(0), list.Malloc())
	assert.Equal(t, int32(2), list.Malloc())
	assert.Equal(t, int32(4), list.Malloc())
	assert.Equal(t, Null, list.Malloc())

	assert.Error(t, list.Restore([]int32{5}))
	assert.Error(t, list.Restore([]int32{2, 2}))
}
