package vm_test

import (
	"context"
	"testing"

	"novus/internal/backend"
	"novus/internal/prog"
	"novus/internal/vm"
)

// allocsOf compiles p, runs it and returns the number of heap allocations.
func allocsOf(t *testing.T, p *prog.Program) uint64 {
	t.Helper()
	asm, err := backend.Generate(context.Background(), p, backend.Options{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	m := vm.New(asm, vm.NewMemoryPlatform(""))
	state, err := m.Run(context.Background())
	if err != nil || state != vm.StateSuccess {
		t.Fatalf("expected success, got %s %v", state, err)
	}
	return m.Heap().Stats().Allocs
}

func group(exprs ...prog.Expr) prog.Expr {
	return &prog.GroupExpr{Exprs: exprs}
}

func TestSmallStructsDoNotAllocate(t *testing.T) {
	str := func(s string) prog.Expr { return &prog.LitStringExpr{Val: s} }
	num := func(v int32) prog.Expr { return &prog.LitIntExpr{Val: v} }

	base := prog.New()
	base.AddExec(prog.ConstTable{}, group(num(7), num(1), str("x")))
	want := allocsOf(t, base)

	p := prog.New()
	empty := p.DeclareStruct("Empty")
	single := p.DeclareStruct("Single", prog.FieldDecl{Name: "v", Type: prog.TypeInt})
	pair := p.DeclareStruct("Pair",
		prog.FieldDecl{Name: "a", Type: prog.TypeInt},
		prog.FieldDecl{Name: "b", Type: prog.TypeString},
	)
	mkEmpty := p.DeclareFunc("Empty", prog.FuncMakeStruct, nil, empty)
	mkSingle := p.DeclareFunc("Single", prog.FuncMakeStruct, []prog.TypeID{prog.TypeInt}, single)
	mkPair := p.DeclareFunc("Pair", prog.FuncMakeStruct, []prog.TypeID{prog.TypeInt, prog.TypeString}, pair)
	p.AddExec(prog.ConstTable{}, group(
		p.Call(mkEmpty),
		&prog.FieldExpr{Struct: p.Call(mkSingle, num(7)), Field: 0, FieldTyp: prog.TypeInt},
		&prog.FieldExpr{Struct: p.Call(mkPair, num(1), str("x")), Field: 1, FieldTyp: prog.TypeString},
	))
	if got := allocsOf(t, p); got != want+1 {
		t.Fatalf("expected only the two-field struct to allocate (%d), got %d", want+1, got)
	}
}

func TestNullableUnionAllocations(t *testing.T) {
	base := prog.New()
	base.AddExec(prog.ConstTable{}, group(&prog.LitStringExpr{Val: "John"}, &prog.LitIntExpr{Val: 42}))
	want := allocsOf(t, base)

	p := prog.New()
	user := p.DeclareStruct("User",
		prog.FieldDecl{Name: "name", Type: prog.TypeString},
		prog.FieldDecl{Name: "age", Type: prog.TypeInt},
	)
	null := p.DeclareStruct("Null")
	nu := p.DeclareUnion("NullableUser", user, null)
	mkUser := p.DeclareFunc("User", prog.FuncMakeStruct, []prog.TypeID{prog.TypeString, prog.TypeInt}, user)
	mkNull := p.DeclareFunc("Null", prog.FuncMakeStruct, nil, null)
	fromUser := p.DeclareFunc("NullableUser", prog.FuncMakeUnion, []prog.TypeID{user}, nu)
	fromNull := p.DeclareFunc("NullableUser", prog.FuncMakeUnion, []prog.TypeID{null}, nu)
	p.AddExec(prog.ConstTable{}, group(
		p.Call(fromUser, p.Call(mkUser, &prog.LitStringExpr{Val: "John"}, &prog.LitIntExpr{Val: 42})),
		p.Call(fromNull, p.Call(mkNull)),
	))
	if got := allocsOf(t, p); got != want+1 {
		t.Fatalf("expected one allocation for the non-null member (%d), got %d", want+1, got)
	}
}
