package prog_test

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"novus/internal/prog"
)

func sampleProgram() *prog.Program {
	p := prog.New()
	point := p.DeclareStruct("Point",
		prog.FieldDecl{Name: "x", Type: prog.TypeInt},
		prog.FieldDecl{Name: "y", Type: prog.TypeInt},
	)
	none := p.DeclareStruct("None")
	opt := p.DeclareUnion("Point?", none, point)
	p.DeclareEnum("Color", prog.EnumEntry{Name: "Red", Value: 0}, prog.EnumEntry{Name: "Blue", Value: 1})
	del := p.DeclareDelegate("IntFn", []prog.TypeID{prog.TypeInt}, prog.TypeInt)
	p.DeclareFuture("int~", prog.TypeInt)

	add := p.DeclareFunc("+", prog.FuncAddInt, []prog.TypeID{prog.TypeInt, prog.TypeInt}, prog.TypeInt)
	inc := p.DeclareFunc("inc", prog.FuncUser, []prog.TypeID{prog.TypeInt}, prog.TypeInt)

	var consts prog.ConstTable
	n := consts.Register(prog.ConstInput, "n", prog.TypeInt)
	p.DefineFunc(inc, consts, p.Call(add, &prog.ConstExpr{ID: n, ConstTyp: prog.TypeInt}, &prog.LitIntExpr{Val: 1}))

	var execConsts prog.ConstTable
	tmp := execConsts.Register(prog.ConstLocal, "p", point)
	p.AddExec(execConsts, &prog.GroupExpr{Exprs: []prog.Expr{
		&prog.SwitchExpr{
			Conditions: []prog.Expr{&prog.LitBoolExpr{Val: true}},
			Branches:   []prog.Expr{&prog.LitStringExpr{Val: "a"}, &prog.LitStringExpr{Val: "b"}},
		},
		&prog.UnionGetExpr{Union: &prog.ConstExpr{ID: tmp, ConstTyp: opt}, Target: point, Const: tmp},
		&prog.CallDynExpr{Target: &prog.LitFuncExpr{Func: inc, Delegate: del}, Args: []prog.Expr{&prog.LitIntExpr{Val: -3}}, Result: prog.TypeInt},
		&prog.LitLongExpr{Val: -1 << 40},
		&prog.LitFloatExpr{Val: 1.5},
		&prog.LitCharExpr{Val: 'z'},
		&prog.LitEnumExpr{Enum: 10, Val: 1},
		&prog.CallExpr{Func: inc, Args: []prog.Expr{&prog.LitIntExpr{Val: 2}}, Mode: prog.CallFork, Result: prog.TypeInt},
	}})
	return p
}

func TestBuiltinTypesPredeclared(t *testing.T) {
	p := prog.New()
	want := []string{"int", "long", "float", "bool", "char", "string", "stream"}
	if len(p.Types) != len(want) {
		t.Fatalf("expected %d builtin types, got %d", len(want), len(p.Types))
	}
	for i, name := range want {
		if p.Types[i].Name != name || p.Types[i].ID != prog.TypeID(i) {
			t.Fatalf("builtin %d: expected %s, got %+v", i, name, p.Types[i])
		}
	}
	if p.Kind(prog.TypeString) != prog.KindString {
		t.Fatalf("expected string kind, got %v", p.Kind(prog.TypeString))
	}
}

func TestConstTablePartitions(t *testing.T) {
	var c prog.ConstTable
	a := c.Register(prog.ConstInput, "a", prog.TypeInt)
	b := c.Register(prog.ConstInput, "b", prog.TypeInt)
	env := c.Register(prog.ConstBoundInput, "env", prog.TypeString)
	local := c.Register(prog.ConstLocal, "tmp", prog.TypeInt)

	if got := c.Inputs(); !reflect.DeepEqual(got, []prog.ConstID{a, b, env}) {
		t.Fatalf("inputs: got %v", got)
	}
	if got := c.NonBoundInputs(); !reflect.DeepEqual(got, []prog.ConstID{a, b}) {
		t.Fatalf("non-bound inputs: got %v", got)
	}
	if got := c.BoundInputs(); !reflect.DeepEqual(got, []prog.ConstID{env}) {
		t.Fatalf("bound inputs: got %v", got)
	}
	if d, ok := c.Decl(local); !ok || d.Name != "tmp" {
		t.Fatalf("expected local decl, got %+v", d)
	}
	if _, ok := c.Decl(99); ok {
		t.Fatal("expected missing decl")
	}
}

func TestUnionMemberIndex(t *testing.T) {
	p := sampleProgram()
	u, ok := p.Union(9)
	if !ok {
		t.Fatal("expected union #9")
	}
	if idx, ok := u.MemberIndex(8); !ok || idx != 0 {
		t.Fatalf("expected None at 0, got %d %v", idx, ok)
	}
	if idx, ok := u.MemberIndex(7); !ok || idx != 1 {
		t.Fatalf("expected Point at 1, got %d %v", idx, ok)
	}
	if p.FieldCount(7) != 2 || p.FieldCount(prog.TypeInt) != -1 {
		t.Fatal("unexpected field counts")
	}
}

func TestEncodeDecodeProgram(t *testing.T) {
	p := sampleProgram()
	var buf bytes.Buffer
	if err := prog.Encode(&buf, p); err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := prog.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got.Types, p.Types) {
		t.Fatalf("types differ:\n%v\n%v", got.Types, p.Types)
	}
	if !reflect.DeepEqual(got.Funcs, p.Funcs) {
		t.Fatalf("funcs differ:\n%v\n%v", got.Funcs, p.Funcs)
	}
	if !reflect.DeepEqual(got.Structs, p.Structs) || !reflect.DeepEqual(got.Unions, p.Unions) {
		t.Fatal("struct or union tables differ")
	}
	if !reflect.DeepEqual(got.Defs, p.Defs) {
		t.Fatal("function bodies differ")
	}
	if !reflect.DeepEqual(got.Execs, p.Execs) {
		t.Fatal("exec statements differ")
	}
}

func TestDecodeSchemaMismatch(t *testing.T) {
	var buf bytes.Buffer
	payload := map[string]any{"magic": "novus-prog", "schema": 99}
	if err := msgpack.NewEncoder(&buf).Encode(payload); err != nil {
		t.Fatal(err)
	}
	_, err := prog.Decode(&buf)
	if !errors.Is(err, prog.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestEncodeRejectsNilExpr(t *testing.T) {
	p := prog.New()
	p.AddExec(prog.ConstTable{}, nil)
	if err := prog.Encode(&bytes.Buffer{}, p); err == nil {
		t.Fatal("expected error for nil expression")
	}
}

func TestFuncKindIsAction(t *testing.T) {
	if !prog.FuncActionAssert.IsAction() || !prog.FuncActionConWriteChar.IsAction() {
		t.Fatal("expected action kinds")
	}
	if prog.FuncAddInt.IsAction() || prog.FuncUser.IsAction() {
		t.Fatal("expected non-action kinds")
	}
}
