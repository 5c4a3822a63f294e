package util

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaturatingAdd(t *testing.T) {
	assert.Equal(t, int64(5), SaturatingAdd(2, 3))
	assert.Equal(t, int64(math.MaxInt64), SaturatingAdd(math.MaxInt64-1, 10))
	assert.Equal(t, int64(math.MinInt64), SaturatingAdd(math.MinInt64+1, -10))
	_, ok := AddInt64(math.MaxInt64, 1)
	assert.False(t, ok)
	assert.Equal(t, int64(0), NonNegative(-3))
	assert.Equal(t, int64(3), NonNegative(3))
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "wheel.snap")
	require.NoError(t, WriteFileAtomic(path, []byte("v1")))
	require.NoError(t, WriteFileAtomic(path, []byte("v2")))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	size, err := GetFileSize(path)
	require.NoError(t, err)
	assert.Equal(t, int64(2), size)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestGoroutineID(t *testing.T) {
	id := GoroutineID()
	assert.Greater(t, id, int64(0))
	ch := make(chan int64)
	go func() { ch <- GoroutineID() }()
	assert.NotEqual(t, id, <-ch)
}
