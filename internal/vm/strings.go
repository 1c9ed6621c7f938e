package vm

import (
	"math"
	"strconv"
)

// indexString returns the byte at idx, or 0 when idx is out of range.
func indexString(b []byte, idx int32) byte {
	if idx < 0 || int(idx) >= len(b) {
		return 0
	}
	return b[idx]
}

// clampSlice bounds [start, end) to a string of size bytes: negative bounds
// become 0, an end past the string becomes its size and a start past the
// end becomes the end.
func clampSlice(size int, start, end int32) (int, int) {
	s, t := int(max(start, 0)), int(max(end, 0))
	t = min(t, size)
	s = min(s, t)
	return s, t
}

func (e *executor) sliceString(str Value, start, end int32) {
	b := e.m.heap.StringBytes(str)
	s, t := clampSlice(len(b), start, end)
	if s == 0 && t == len(b) {
		e.push(str)
		return
	}
	e.pushString(b[s:t:t])
}

func formatInt(v int64) []byte {
	return strconv.AppendInt(nil, v, 10)
}

func formatBool(b bool) []byte {
	if b {
		return []byte("true")
	}
	return []byte("false")
}

// formatFloat prints up to six significant digits, switching to exponent
// form for very large or small magnitudes.
func formatFloat(f float32) []byte {
	x := float64(f)
	switch {
	case math.IsNaN(x):
		return []byte("nan")
	case math.IsInf(x, 1):
		return []byte("inf")
	case math.IsInf(x, -1):
		return []byte("-inf")
	}
	return strconv.AppendFloat(nil, x, 'g', 6, 64)
}
