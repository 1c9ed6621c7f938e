package backend

import (
	"fmt"

	"novus/internal/prog"
)

// unionTypeID returns the runtime discriminant of member inside union.
func unionTypeID(p *prog.Program, union, member prog.TypeID) int32 {
	u, ok := p.Union(union)
	if !ok {
		panic(&GenError{Msg: fmt.Sprintf("type %s is not a union", p.TypeName(union))})
	}
	idx, ok := u.MemberIndex(member)
	if !ok {
		panic(&GenError{Msg: fmt.Sprintf("type %s is not a member of union %s", p.TypeName(member), p.TypeName(union))})
	}
	return int32(idx)
}

// nullableUnion describes a union of one empty tag struct and one struct
// with two or more fields. Such unions are stored as the struct itself, with
// the null struct standing in for the tag member.
type nullableUnion struct {
	nullType   prog.TypeID
	structType prog.TypeID
}

func asNullableUnion(p *prog.Program, union prog.TypeID) (nullableUnion, bool) {
	u, ok := p.Union(union)
	if !ok || len(u.Types) != 2 {
		return nullableUnion{}, false
	}
	a, b := u.Types[0], u.Types[1]
	switch {
	case p.FieldCount(a) == 0 && p.FieldCount(b) >= 2:
		return nullableUnion{nullType: a, structType: b}, true
	case p.FieldCount(b) == 0 && p.FieldCount(a) >= 2:
		return nullableUnion{nullType: b, structType: a}, true
	default:
		return nullableUnion{}, false
	}
}

func isUserType(p *prog.Program, t prog.TypeID) bool {
	switch p.Kind(t) {
	case prog.KindStruct, prog.KindUnion:
		return true
	default:
		return false
	}
}
