package prog

import (
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Current schema version - increment when programPayload or wireExpr changes.
const programSchemaVersion uint16 = 1

const programMagic = "novus-prog"

// ErrSchemaMismatch is returned by Decode for files written by an incompatible version.
var ErrSchemaMismatch = errors.New("program schema mismatch")

type programPayload struct {
	Magic     string        `msgpack:"magic"`
	Schema    uint16        `msgpack:"schema"`
	Types     []TypeDecl    `msgpack:"types"`
	Structs   []StructDef   `msgpack:"structs"`
	Unions    []UnionDef    `msgpack:"unions"`
	Enums     []EnumDef     `msgpack:"enums"`
	Delegates []DelegateDef `msgpack:"delegates"`
	Futures   []FutureDef   `msgpack:"futures"`
	Lazies    []LazyDef     `msgpack:"lazies"`
	Funcs     []FuncDecl    `msgpack:"funcs"`
	Defs      []wireDef     `msgpack:"defs"`
	Execs     []wireExec    `msgpack:"execs"`
}

type wireDef struct {
	ID     FuncID     `msgpack:"id"`
	Consts ConstTable `msgpack:"consts"`
	Body   wireExpr   `msgpack:"body"`
}

type wireExec struct {
	Consts ConstTable `msgpack:"consts"`
	Expr   wireExpr   `msgpack:"expr"`
}

type exprKind uint8

const (
	wireAssign exprKind = iota + 1
	wireSwitch
	wireCall
	wireCallDyn
	wireCallSelf
	wireClosure
	wireConst
	wireField
	wireGroup
	wireUnionCheck
	wireUnionGet
	wireFail
	wireLitBool
	wireLitFloat
	wireLitInt
	wireLitLong
	wireLitString
	wireLitChar
	wireLitFunc
	wireLitEnum
)

// wireExpr is a flat form of every Expr node. Fields not used by a kind are
// left zero and omitted.
type wireExpr struct {
	Kind  exprKind   `msgpack:"k"`
	Type  TypeID     `msgpack:"t,omitempty"`
	Func  FuncID     `msgpack:"f,omitempty"`
	Const ConstID    `msgpack:"c,omitempty"`
	Int   int64      `msgpack:"i,omitempty"`
	Float float32    `msgpack:"x,omitempty"`
	Str   string     `msgpack:"s,omitempty"`
	Kids  []wireExpr `msgpack:"a,omitempty"`
	Alt   []wireExpr `msgpack:"b,omitempty"`
}

// Encode writes p to w.
func Encode(w io.Writer, p *Program) error {
	payload := programPayload{
		Magic:  programMagic,
		Schema: programSchemaVersion,
		Types:  p.Types,
		Funcs:  p.Funcs,
	}
	for _, t := range p.Types {
		switch t.Kind {
		case KindStruct:
			payload.Structs = append(payload.Structs, *p.Structs[t.ID])
		case KindUnion:
			payload.Unions = append(payload.Unions, *p.Unions[t.ID])
		case KindEnum:
			payload.Enums = append(payload.Enums, *p.Enums[t.ID])
		case KindDelegate:
			payload.Delegates = append(payload.Delegates, *p.Delegates[t.ID])
		case KindFuture:
			payload.Futures = append(payload.Futures, *p.Futures[t.ID])
		case KindLazy:
			payload.Lazies = append(payload.Lazies, *p.Lazies[t.ID])
		}
	}
	for _, f := range p.Funcs {
		def, ok := p.Defs[f.ID]
		if !ok {
			continue
		}
		body, err := toWire(def.Body)
		if err != nil {
			return fmt.Errorf("func %s: %w", f.Name, err)
		}
		payload.Defs = append(payload.Defs, wireDef{ID: def.ID, Consts: def.Consts, Body: body})
	}
	for i, ex := range p.Execs {
		e, err := toWire(ex.Expr)
		if err != nil {
			return fmt.Errorf("exec %d: %w", i, err)
		}
		payload.Execs = append(payload.Execs, wireExec{Consts: ex.Consts, Expr: e})
	}
	return msgpack.NewEncoder(w).Encode(&payload)
}

// Decode reads a program written by Encode.
func Decode(r io.Reader) (*Program, error) {
	var payload programPayload
	if err := msgpack.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode program: %w", err)
	}
	if payload.Magic != programMagic {
		return nil, fmt.Errorf("not a program file (magic %q)", payload.Magic)
	}
	if payload.Schema != programSchemaVersion {
		return nil, fmt.Errorf("%w: file has %d, expected %d", ErrSchemaMismatch, payload.Schema, programSchemaVersion)
	}

	p := New()
	p.Types = payload.Types
	p.Funcs = payload.Funcs
	for i := range payload.Structs {
		p.Structs[payload.Structs[i].ID] = &payload.Structs[i]
	}
	for i := range payload.Unions {
		p.Unions[payload.Unions[i].ID] = &payload.Unions[i]
	}
	for i := range payload.Enums {
		p.Enums[payload.Enums[i].ID] = &payload.Enums[i]
	}
	for i := range payload.Delegates {
		p.Delegates[payload.Delegates[i].ID] = &payload.Delegates[i]
	}
	for i := range payload.Futures {
		p.Futures[payload.Futures[i].ID] = &payload.Futures[i]
	}
	for i := range payload.Lazies {
		p.Lazies[payload.Lazies[i].ID] = &payload.Lazies[i]
	}
	for _, d := range payload.Defs {
		body, err := fromWire(&d.Body)
		if err != nil {
			return nil, fmt.Errorf("func #%d: %w", d.ID, err)
		}
		p.DefineFunc(d.ID, d.Consts, body)
	}
	for i, ex := range payload.Execs {
		e, err := fromWire(&ex.Expr)
		if err != nil {
			return nil, fmt.Errorf("exec %d: %w", i, err)
		}
		p.AddExec(ex.Consts, e)
	}
	return p, nil
}

func toWireList(list []Expr) ([]wireExpr, error) {
	if len(list) == 0 {
		return nil, nil
	}
	out := make([]wireExpr, len(list))
	for i, e := range list {
		w, err := toWire(e)
		if err != nil {
			return nil, err
		}
		out[i] = w
	}
	return out, nil
}

func toWire(e Expr) (wireExpr, error) {
	var (
		w   wireExpr
		err error
	)
	switch e := e.(type) {
	case *AssignExpr:
		w = wireExpr{Kind: wireAssign, Const: e.Const}
		w.Kids, err = toWireList([]Expr{e.Value})
	case *SwitchExpr:
		w = wireExpr{Kind: wireSwitch}
		if w.Kids, err = toWireList(e.Conditions); err == nil {
			w.Alt, err = toWireList(e.Branches)
		}
	case *CallExpr:
		w = wireExpr{Kind: wireCall, Func: e.Func, Type: e.Result, Int: int64(e.Mode)}
		w.Kids, err = toWireList(e.Args)
	case *CallDynExpr:
		w = wireExpr{Kind: wireCallDyn, Type: e.Result}
		if e.Fork {
			w.Int = 1
		}
		if w.Kids, err = toWireList([]Expr{e.Target}); err == nil {
			w.Alt, err = toWireList(e.Args)
		}
	case *CallSelfExpr:
		w = wireExpr{Kind: wireCallSelf, Type: e.Result}
		w.Kids, err = toWireList(e.Args)
	case *ClosureExpr:
		w = wireExpr{Kind: wireClosure, Func: e.Func, Type: e.Delegate}
		w.Kids, err = toWireList(e.Bound)
	case *ConstExpr:
		w = wireExpr{Kind: wireConst, Const: e.ID, Type: e.ConstTyp}
	case *FieldExpr:
		w = wireExpr{Kind: wireField, Type: e.FieldTyp, Int: int64(e.Field)}
		w.Kids, err = toWireList([]Expr{e.Struct})
	case *GroupExpr:
		w = wireExpr{Kind: wireGroup}
		w.Kids, err = toWireList(e.Exprs)
	case *UnionCheckExpr:
		w = wireExpr{Kind: wireUnionCheck, Type: e.Target}
		w.Kids, err = toWireList([]Expr{e.Union})
	case *UnionGetExpr:
		w = wireExpr{Kind: wireUnionGet, Type: e.Target, Const: e.Const}
		w.Kids, err = toWireList([]Expr{e.Union})
	case *FailExpr:
		w = wireExpr{Kind: wireFail, Type: e.Result}
	case *LitBoolExpr:
		w = wireExpr{Kind: wireLitBool}
		if e.Val {
			w.Int = 1
		}
	case *LitFloatExpr:
		w = wireExpr{Kind: wireLitFloat, Float: e.Val}
	case *LitIntExpr:
		w = wireExpr{Kind: wireLitInt, Int: int64(e.Val)}
	case *LitLongExpr:
		w = wireExpr{Kind: wireLitLong, Int: e.Val}
	case *LitStringExpr:
		w = wireExpr{Kind: wireLitString, Str: e.Val}
	case *LitCharExpr:
		w = wireExpr{Kind: wireLitChar, Int: int64(e.Val)}
	case *LitFuncExpr:
		w = wireExpr{Kind: wireLitFunc, Func: e.Func, Type: e.Delegate}
	case *LitEnumExpr:
		w = wireExpr{Kind: wireLitEnum, Type: e.Enum, Int: int64(e.Val)}
	case nil:
		return w, errors.New("nil expression")
	default:
		return w, fmt.Errorf("unknown expression %T", e)
	}
	return w, err
}

func fromWireList(list []wireExpr) ([]Expr, error) {
	if len(list) == 0 {
		return nil, nil
	}
	out := make([]Expr, len(list))
	for i := range list {
		e, err := fromWire(&list[i])
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func fromWire(w *wireExpr) (Expr, error) {
	kids, err := fromWireList(w.Kids)
	if err != nil {
		return nil, err
	}
	one := func() (Expr, error) {
		if len(kids) != 1 {
			return nil, fmt.Errorf("expression kind %d: expected 1 operand, got %d", w.Kind, len(kids))
		}
		return kids[0], nil
	}

	switch w.Kind {
	case wireAssign:
		v, err := one()
		if err != nil {
			return nil, err
		}
		return &AssignExpr{Const: w.Const, Value: v}, nil
	case wireSwitch:
		branches, err := fromWireList(w.Alt)
		if err != nil {
			return nil, err
		}
		if len(branches) != len(kids)+1 {
			return nil, fmt.Errorf("switch: %d conditions, %d branches", len(kids), len(branches))
		}
		return &SwitchExpr{Conditions: kids, Branches: branches}, nil
	case wireCall:
		return &CallExpr{Func: w.Func, Args: kids, Mode: CallMode(w.Int), Result: w.Type}, nil
	case wireCallDyn:
		target, err := one()
		if err != nil {
			return nil, err
		}
		args, err := fromWireList(w.Alt)
		if err != nil {
			return nil, err
		}
		return &CallDynExpr{Target: target, Args: args, Fork: w.Int != 0, Result: w.Type}, nil
	case wireCallSelf:
		return &CallSelfExpr{Args: kids, Result: w.Type}, nil
	case wireClosure:
		return &ClosureExpr{Func: w.Func, Bound: kids, Delegate: w.Type}, nil
	case wireConst:
		return &ConstExpr{ID: w.Const, ConstTyp: w.Type}, nil
	case wireField:
		s, err := one()
		if err != nil {
			return nil, err
		}
		return &FieldExpr{Struct: s, Field: int(w.Int), FieldTyp: w.Type}, nil
	case wireGroup:
		if len(kids) == 0 {
			return nil, errors.New("empty group")
		}
		return &GroupExpr{Exprs: kids}, nil
	case wireUnionCheck:
		u, err := one()
		if err != nil {
			return nil, err
		}
		return &UnionCheckExpr{Union: u, Target: w.Type}, nil
	case wireUnionGet:
		u, err := one()
		if err != nil {
			return nil, err
		}
		return &UnionGetExpr{Union: u, Target: w.Type, Const: w.Const}, nil
	case wireFail:
		return &FailExpr{Result: w.Type}, nil
	case wireLitBool:
		return &LitBoolExpr{Val: w.Int != 0}, nil
	case wireLitFloat:
		return &LitFloatExpr{Val: w.Float}, nil
	case wireLitInt:
		return &LitIntExpr{Val: int32(w.Int)}, nil
	case wireLitLong:
		return &LitLongExpr{Val: w.Int}, nil
	case wireLitString:
		return &LitStringExpr{Val: w.Str}, nil
	case wireLitChar:
		return &LitCharExpr{Val: uint8(w.Int)}, nil
	case wireLitFunc:
		return &LitFuncExpr{Func: w.Func, Delegate: w.Type}, nil
	case wireLitEnum:
		return &LitEnumExpr{Enum: w.Type, Val: int32(w.Int)}, nil
	default:
		return nil, fmt.Errorf("unknown expression kind %d", w.Kind)
	}
}
