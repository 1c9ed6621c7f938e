// Package novasm defines the compiled bytecode artifact executed by the vm
// package, together with the tools to build, inspect and persist it.
//
// Instructions are a 1-byte opcode followed by fixed-size little-endian
// operands (see OpInfo). Literal strings live in a side table addressed by
// id, and entry points are byte offsets into the instruction stream. Every
// label is resolved by the Assembler before an Assembly exists.
package novasm

import (
	"encoding/binary"
	"math"
	"slices"
)

// Assembly is an immutable compiled program.
type Assembly struct {
	Instructions []byte
	LitStrings   []string
	EntryPoints  []uint32
}

// Size returns the length of the instruction stream in bytes.
func (a *Assembly) Size() int {
	return len(a.Instructions)
}

// InBounds reports whether n bytes starting at ip lie inside the instruction stream.
func (a *Assembly) InBounds(ip uint32, n int) bool {
	return uint64(ip)+uint64(n) <= uint64(len(a.Instructions))
}

// LitString returns the literal string with the given id.
func (a *Assembly) LitString(id uint32) (string, bool) {
	if uint64(id) >= uint64(len(a.LitStrings)) {
		return "", false
	}
	return a.LitStrings[id], true
}

func (a *Assembly) ReadUint8(ip uint32) uint8 {
	return a.Instructions[ip]
}

func (a *Assembly) ReadInt32(ip uint32) int32 {
	return int32(binary.LittleEndian.Uint32(a.Instructions[ip:]))
}

func (a *Assembly) ReadUint32(ip uint32) uint32 {
	return binary.LittleEndian.Uint32(a.Instructions[ip:])
}

func (a *Assembly) ReadInt64(ip uint32) int64 {
	return int64(binary.LittleEndian.Uint64(a.Instructions[ip:]))
}

func (a *Assembly) ReadFloat32(ip uint32) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(a.Instructions[ip:]))
}

// Equal reports whether both assemblies have identical instructions, literals and entry points.
func (a *Assembly) Equal(b *Assembly) bool {
	if a == nil || b == nil {
		return a == b
	}
	return slices.Equal(a.Instructions, b.Instructions) &&
		slices.Equal(a.LitStrings, b.LitStrings) &&
		slices.Equal(a.EntryPoints, b.EntryPoints)
}
