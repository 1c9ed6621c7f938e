// Package prog holds the validated, typed program that the backend compiles.
//
// A Program is produced upstream (frontend + optimisation passes) and is
// treated as trusted input: declarations are looked up by id and never
// re-validated for type correctness.
package prog

import "fmt"

type (
	TypeID  uint32
	FuncID  uint32
	ConstID uint32
)

// TypeKind classifies a declared type.
type TypeKind uint8

const (
	KindInt TypeKind = iota + 1
	KindLong
	KindFloat
	KindBool
	KindChar
	KindString
	KindStream
	KindStruct
	KindUnion
	KindEnum
	KindDelegate
	KindFuture
	KindLazy
)

func (k TypeKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindChar:
		return "char"
	case KindString:
		return "string"
	case KindStream:
		return "stream"
	case KindStruct:
		return "struct"
	case KindUnion:
		return "union"
	case KindEnum:
		return "enum"
	case KindDelegate:
		return "delegate"
	case KindFuture:
		return "future"
	case KindLazy:
		return "lazy"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Builtin type ids; every Program declares these first.
const (
	TypeInt TypeID = iota
	TypeLong
	TypeFloat
	TypeBool
	TypeChar
	TypeString
	TypeStream
)

// TypeDecl names a type and its kind.
type TypeDecl struct {
	ID   TypeID   `msgpack:"id"`
	Kind TypeKind `msgpack:"kind"`
	Name string   `msgpack:"name"`
}

// FieldDecl is one field of a struct.
type FieldDecl struct {
	Name string `msgpack:"name"`
	Type TypeID `msgpack:"type"`
}

// StructDef lists the fields of a struct type.
type StructDef struct {
	ID     TypeID      `msgpack:"id"`
	Fields []FieldDecl `msgpack:"fields"`
}

// UnionDef lists the member types of a union; a member's position is its runtime type id.
type UnionDef struct {
	ID    TypeID   `msgpack:"id"`
	Types []TypeID `msgpack:"types"`
}

// EnumEntry is one named enum value.
type EnumEntry struct {
	Name  string `msgpack:"name"`
	Value int32  `msgpack:"value"`
}

type EnumDef struct {
	ID      TypeID      `msgpack:"id"`
	Entries []EnumEntry `msgpack:"entries"`
}

// DelegateDef describes a function value type.
type DelegateDef struct {
	ID     TypeID   `msgpack:"id"`
	Input  []TypeID `msgpack:"input"`
	Output TypeID   `msgpack:"output"`
}

// FutureDef describes the result of a forked call.
type FutureDef struct {
	ID     TypeID `msgpack:"id"`
	Result TypeID `msgpack:"result"`
}

// LazyDef describes the result of a lazy call.
type LazyDef struct {
	ID     TypeID `msgpack:"id"`
	Result TypeID `msgpack:"result"`
}
