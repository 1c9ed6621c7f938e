// Package vm executes novasm assemblies.
//
// Values are untyped 64-bit words; the generator guarantees that every
// instruction sees operands of the type it expects. Heap objects live in a
// paged arena owned by a Heap and are reclaimed by a stop-the-world
// mark-sweep collector that pauses executors at instruction boundaries.
package vm

import "math"

// Value is a tagged 64-bit word. With the low bit clear the upper 32 bits
// hold an int32 or a float32, or the whole word holds a non-negative long
// shifted left by one. With the low bit set the remaining bits are a heap
// handle.
type Value uint64

const refTag Value = 1

// MakeInt returns the value of an int, bool or char.
func MakeInt(i int32) Value {
	return Value(uint64(uint32(i)) << 32)
}

// MakeFloat returns the value of a float; NaN payloads are preserved.
func MakeFloat(f float32) Value {
	return Value(uint64(math.Float32bits(f)) << 32)
}

// MakeBool returns the int 1 or 0.
func MakeBool(b bool) Value {
	if b {
		return MakeInt(1)
	}
	return MakeInt(0)
}

// MakeRef returns the value referencing h.
func MakeRef(h Handle) Value {
	return Value(uint64(h)<<1) | refTag
}

// MakeNullStruct returns the ref with handle zero. It stands in for the
// empty member of a nullable struct union and is never dereferenced.
func MakeNullStruct() Value {
	return MakeRef(0)
}

// makeInlineLong encodes a non-negative long without allocating.
func makeInlineLong(v int64) Value {
	return Value(uint64(v) << 1)
}

func (v Value) IsRef() bool { return v&refTag != 0 }

func (v Value) IsNullStruct() bool { return v == MakeNullStruct() }

func (v Value) Int() int32 { return int32(uint32(v >> 32)) }

func (v Value) Float() float32 { return math.Float32frombits(uint32(v >> 32)) }

func (v Value) Bool() bool { return v.Int() != 0 }

// Handle returns the heap handle of a ref value.
func (v Value) Handle() Handle { return Handle(v >> 1) }

// inlineLong decodes a value produced by makeInlineLong.
func (v Value) inlineLong() int64 { return int64(uint64(v) >> 1) }
