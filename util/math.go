package util

import "math"

func AddInt64(a, b int64) (int64, bool) {
	if b > 0 && a > math.MaxInt64-b {
		// 溢出
		return math.MaxInt64, false
	} else if b < 0 && a < math.MinInt64-b {
		// 溢出
		return math.MinInt64, false
	}
	// 未发生溢出
	return a + b, true
}

// SaturatingAdd 溢出时取边界值
func SaturatingAdd(a, b int64) int64 {
	v, _ := AddInt64(a, b)
	return v
}

// NonNegative 负数修正为0
func NonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
