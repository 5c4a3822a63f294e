package util

import (
	"runtime"
	"strconv"
	"strings"
)

// GoroutineID 当前协程ID，只用于判断调用是否来自某个固定协程
func GoroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false) // 获取当前 goroutine 的调用栈
	idField := strings.Fields(strings.TrimPrefix(string(buf[:n]), "goroutine "))[0]
	id, err := strconv.ParseInt(idField, 10, 64)
	if err != nil {
		return -1
	}
	return id
}
