package prog

import "fmt"

// Program is a whole typed program: type and function tables, function
// bodies and the top-level exec statements in source order.
type Program struct {
	Types     []TypeDecl
	Structs   map[TypeID]*StructDef
	Unions    map[TypeID]*UnionDef
	Enums     map[TypeID]*EnumDef
	Delegates map[TypeID]*DelegateDef
	Futures   map[TypeID]*FutureDef
	Lazies    map[TypeID]*LazyDef
	Funcs     []FuncDecl
	Defs      map[FuncID]*FuncDef
	Execs     []*ExecStmt
}

// New returns a program with the builtin types declared.
func New() *Program {
	p := &Program{
		Structs:   make(map[TypeID]*StructDef),
		Unions:    make(map[TypeID]*UnionDef),
		Enums:     make(map[TypeID]*EnumDef),
		Delegates: make(map[TypeID]*DelegateDef),
		Futures:   make(map[TypeID]*FutureDef),
		Lazies:    make(map[TypeID]*LazyDef),
		Defs:      make(map[FuncID]*FuncDef),
	}
	for _, b := range []struct {
		kind TypeKind
		name string
	}{
		{KindInt, "int"},
		{KindLong, "long"},
		{KindFloat, "float"},
		{KindBool, "bool"},
		{KindChar, "char"},
		{KindString, "string"},
		{KindStream, "stream"},
	} {
		p.declareType(b.kind, b.name)
	}
	return p
}

func (p *Program) declareType(kind TypeKind, name string) TypeID {
	id := TypeID(len(p.Types))
	p.Types = append(p.Types, TypeDecl{ID: id, Kind: kind, Name: name})
	return id
}

// DeclareStruct adds a struct type with the given fields.
func (p *Program) DeclareStruct(name string, fields ...FieldDecl) TypeID {
	id := p.declareType(KindStruct, name)
	p.Structs[id] = &StructDef{ID: id, Fields: fields}
	return id
}

// DeclareUnion adds a union type; members keep their given order.
func (p *Program) DeclareUnion(name string, members ...TypeID) TypeID {
	id := p.declareType(KindUnion, name)
	p.Unions[id] = &UnionDef{ID: id, Types: members}
	return id
}

func (p *Program) DeclareEnum(name string, entries ...EnumEntry) TypeID {
	id := p.declareType(KindEnum, name)
	p.Enums[id] = &EnumDef{ID: id, Entries: entries}
	return id
}

func (p *Program) DeclareDelegate(name string, input []TypeID, output TypeID) TypeID {
	id := p.declareType(KindDelegate, name)
	p.Delegates[id] = &DelegateDef{ID: id, Input: input, Output: output}
	return id
}

func (p *Program) DeclareFuture(name string, result TypeID) TypeID {
	id := p.declareType(KindFuture, name)
	p.Futures[id] = &FutureDef{ID: id, Result: result}
	return id
}

func (p *Program) DeclareLazy(name string, result TypeID) TypeID {
	id := p.declareType(KindLazy, name)
	p.Lazies[id] = &LazyDef{ID: id, Result: result}
	return id
}

// DeclareFunc adds a function signature. User functions need a DefineFunc
// before the program is compiled.
func (p *Program) DeclareFunc(name string, kind FuncKind, input []TypeID, output TypeID) FuncID {
	id := FuncID(len(p.Funcs))
	p.Funcs = append(p.Funcs, FuncDecl{ID: id, Name: name, Kind: kind, Input: input, Output: output})
	return id
}

// DefineFunc attaches the body of a user function.
func (p *Program) DefineFunc(id FuncID, consts ConstTable, body Expr) {
	p.Defs[id] = &FuncDef{ID: id, Consts: consts, Body: body}
}

// AddExec appends a top-level statement.
func (p *Program) AddExec(consts ConstTable, expr Expr) {
	p.Execs = append(p.Execs, &ExecStmt{Consts: consts, Expr: expr})
}

// Call builds a call to a declared function with its declared result type.
func (p *Program) Call(fn FuncID, args ...Expr) *CallExpr {
	return &CallExpr{Func: fn, Args: args, Result: p.Funcs[fn].Output}
}

// Type returns the declaration of id.
func (p *Program) Type(id TypeID) (TypeDecl, bool) {
	if int(id) >= len(p.Types) {
		return TypeDecl{}, false
	}
	return p.Types[id], true
}

// Kind returns the kind of id or zero when undeclared.
func (p *Program) Kind(id TypeID) TypeKind {
	d, _ := p.Type(id)
	return d.Kind
}

// TypeName returns a printable name for id.
func (p *Program) TypeName(id TypeID) string {
	if d, ok := p.Type(id); ok {
		return d.Name
	}
	return fmt.Sprintf("type#%d", id)
}

// Func returns the declaration of id.
func (p *Program) Func(id FuncID) (FuncDecl, bool) {
	if int(id) >= len(p.Funcs) {
		return FuncDecl{}, false
	}
	return p.Funcs[id], true
}

// Struct returns the struct definition of id.
func (p *Program) Struct(id TypeID) (*StructDef, bool) {
	s, ok := p.Structs[id]
	return s, ok
}

// Union returns the union definition of id.
func (p *Program) Union(id TypeID) (*UnionDef, bool) {
	u, ok := p.Unions[id]
	return u, ok
}

// MemberIndex returns the runtime type id of member inside union.
func (u *UnionDef) MemberIndex(member TypeID) (int, bool) {
	for i, t := range u.Types {
		if t == member {
			return i, true
		}
	}
	return 0, false
}

// FieldCount returns the number of fields of a struct type, or -1 if id is
// not a struct.
func (p *Program) FieldCount(id TypeID) int {
	if s, ok := p.Structs[id]; ok {
		return len(s.Fields)
	}
	return -1
}

// UserFuncs returns the ids of defined user functions in declaration order.
func (p *Program) UserFuncs() []FuncID {
	var out []FuncID
	for _, f := range p.Funcs {
		if f.Kind != FuncUser {
			continue
		}
		if _, ok := p.Defs[f.ID]; ok {
			out = append(out, f.ID)
		}
	}
	return out
}
