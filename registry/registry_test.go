package registry

import (
	"errors"
	"testing"

	"github.com/fixkme/timerwheel/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	V int
}

func TestCreateLookupDestroy(t *testing.T) {
	r := New[payload](4)
	hid, _, err := r.Create(KindListHead)
	require.NoError(t, err)
	id, p, err := r.Create(KindTimer)
	require.NoError(t, err)
	p.V = 9

	// 每种实体独立编号
	assert.Equal(t, int64(1), r.GlobalID(hid))
	assert.Equal(t, int64(1), r.GlobalID(id))
	assert.Equal(t, KindTimer, r.Kind(id))

	got, gp, ok := r.Lookup(KindTimer, 1)
	require.True(t, ok)
	assert.Equal(t, id, got)
	assert.Equal(t, 9, gp.V)

	_, _, ok = r.Lookup(KindTimer, 2)
	assert.False(t, ok)

	assert.True(t, r.Destroy(id))
	assert.False(t, r.Destroy(id))
	_, _, ok = r.Lookup(KindTimer, 1)
	assert.False(t, ok, "stale global id")
	assert.Nil(t, r.Get(id))

	// 槽位复用但全局ID不复用
	id2, _, err := r.Create(KindTimer)
	require.NoError(t, err)
	assert.Equal(t, id, id2)
	assert.Equal(t, int64(2), r.GlobalID(id2))
	assert.Equal(t, 1, r.Count(KindTimer))
}

func TestCreateExhausted(t *testing.T) {
	r := New[payload](2)
	for i := 0; i < 2; i++ {
		_, _, err := r.Create(KindTimer)
		require.NoError(t, err)
	}
	_, _, err := r.Create(KindTimer)
	assert.True(t, errors.Is(err, errs.AllocationFailure))

	_, _, err = r.Create(KindNone)
	assert.True(t, errors.Is(err, errs.InvalidArgument))
}

func TestRestore(t *testing.T) {
	src := New[payload](8)
	for i := 0; i < 5; i++ {
		_, p, err := src.Create(KindTimer)
		require.NoError(t, err)
		p.V = i * 10
	}
	src.Destroy(1)
	src.Destroy(3)

	var entries []Entry
	values := map[int32]int{}
	src.Range(func(e Entry, p *payload) bool {
		entries = append(entries, e)
		values[e.ID] = p.V
		return true
	})

	dst, err := Restore(src.Cap(), src.Sequences(), entries, func(e Entry, p *payload) error {
		p.V = values[e.ID]
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, dst.Len())
	id, p, ok := dst.Lookup(KindTimer, 5)
	require.True(t, ok)
	assert.Equal(t, int32(4), id)
	assert.Equal(t, 40, p.V)

	// 序列延续，不会与恢复前的ID冲突
	_, _, err = dst.Create(KindTimer)
	require.NoError(t, err)
	id, _, _ = dst.Lookup(KindTimer, 6)
	assert.Equal(t, int32(1), id)
}

func TestRestoreCorrupt(t *testing.T) {
	seq := make([]int64, MaxKinds)
	seq[KindTimer] = 1
	_, err := Restore[payload](4, seq, []Entry{{ID: 0, Kind: KindTimer, GlobalID: 2}}, nil)
	assert.True(t, errors.Is(err, errs.Corrupt))

	_, err = Restore[payload](4, seq, []Entry{{ID: 9, Kind: KindTimer, GlobalID: 1}}, nil)
	assert.True(t, errors.Is(err, errs.Corrupt))

	_, err = Restore[payload](4, seq, []Entry{{ID: 0, Kind: KindTimer, GlobalID: 1}, {ID: 1, Kind: KindTimer, GlobalID: 1}}, nil)
	assert.True(t, errors.Is(err, errs.Corrupt))
}
