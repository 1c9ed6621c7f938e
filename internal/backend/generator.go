// Package backend compiles a typed program into a novasm assembly.
//
// Output layout: user-type equality functions, user functions, then one
// entry point per exec statement. Every function is generated into its own
// fragment, and fragments are appended in that fixed order.
package backend

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strconv"

	"golang.org/x/sync/errgroup"

	"novus/internal/novasm"
	"novus/internal/prog"
	"novus/internal/trace"
)

// Options tune code generation.
type Options struct {
	// Jobs bounds the number of functions generated concurrently; 0 means GOMAXPROCS.
	Jobs int
}

// GenError reports a program the generator cannot lower.
type GenError struct {
	Func string // enclosing function or exec statement
	Msg  string
}

func (e *GenError) Error() string {
	if e.Func == "" {
		return "codegen: " + e.Msg
	}
	return fmt.Sprintf("codegen %s: %s", e.Func, e.Msg)
}

type unit struct {
	name  string
	label string
	build func(b *novasm.Assembler)
}

// Generate compiles p. It never re-checks types; a malformed program yields
// a *GenError or an assembler label error.
func Generate(ctx context.Context, p *prog.Program, opts Options) (*novasm.Assembly, error) {
	span, ctx := trace.Start(ctx, trace.ScopePhase, "codegen")
	defer span.End("")

	units, err := collectUnits(p)
	if err != nil {
		return nil, err
	}

	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	frags := make([]*novasm.Assembler, len(units))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, u := range units {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			frag, err := genUnit(gctx, u)
			if err != nil {
				return err
			}
			frags[i] = frag
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	root := novasm.NewAssembler()
	for _, f := range frags {
		root.Append(f)
	}
	asm, err := root.Close()
	if err != nil {
		return nil, fmt.Errorf("codegen: %w", err)
	}
	span.WithExtra("units", strconv.Itoa(len(units))).WithExtra("bytes", strconv.Itoa(asm.Size()))
	return asm, nil
}

func genUnit(ctx context.Context, u unit) (frag *novasm.Assembler, err error) {
	span, _ := trace.Start(ctx, trace.ScopeUnit, u.name)
	defer func() { span.End("") }()

	defer func() {
		if r := recover(); r != nil {
			ge, ok := r.(*GenError)
			if !ok {
				panic(r)
			}
			if ge.Func == "" {
				ge.Func = u.name
			}
			frag, err = nil, ge
		}
	}()

	frag = novasm.NewFragment(u.label)
	u.build(frag)
	span.WithExtra("bytes", strconv.Itoa(int(frag.Offset())))
	return frag, nil
}

func collectUnits(p *prog.Program) ([]unit, error) {
	var units []unit

	eqTypes, err := equalityTypes(p)
	if err != nil {
		return nil, err
	}
	for _, t := range eqTypes {
		units = append(units, unit{
			name:  "eq:" + p.TypeName(t),
			label: eqLabel(t),
			build: func(b *novasm.Assembler) { genEqFunc(p, b, t) },
		})
	}

	for _, id := range p.UserFuncs() {
		decl, _ := p.Func(id)
		def := p.Defs[id]
		units = append(units, unit{
			name:  "fn:" + decl.Name,
			label: funcLabel(id),
			build: func(b *novasm.Assembler) { genFunc(p, b, decl, def) },
		})
	}

	for i, ex := range p.Execs {
		label := execLabel(i)
		units = append(units, unit{
			name:  "exec:" + strconv.Itoa(i),
			label: label,
			build: func(b *novasm.Assembler) { genExec(p, b, label, ex) },
		})
	}
	return units, nil
}

// equalityTypes returns every user type whose equality function is needed,
// including the nested user types those functions call into, sorted by id.
func equalityTypes(p *prog.Program) ([]prog.TypeID, error) {
	need := make(map[prog.TypeID]bool)
	var add func(t prog.TypeID) error
	add = func(t prog.TypeID) error {
		if need[t] {
			return nil
		}
		switch p.Kind(t) {
		case prog.KindStruct:
			need[t] = true
			for _, f := range p.Structs[t].Fields {
				if isUserType(p, f.Type) {
					if err := add(f.Type); err != nil {
						return err
					}
				}
			}
		case prog.KindUnion:
			need[t] = true
			for _, m := range p.Unions[t].Types {
				if isUserType(p, m) {
					if err := add(m); err != nil {
						return err
					}
				}
			}
		default:
			return &GenError{Msg: fmt.Sprintf("equality is not defined for type %s", p.TypeName(t))}
		}
		return nil
	}

	var err error
	visit := func(e prog.Expr) bool {
		if err != nil {
			return false
		}
		call, ok := e.(*prog.CallExpr)
		if !ok {
			return true
		}
		decl, ok := p.Func(call.Func)
		if ok && (decl.Kind == prog.FuncCheckEqUserType || decl.Kind == prog.FuncCheckNEqUserType) && len(call.Args) == 2 {
			err = add(call.Args[0].Type())
		}
		return err == nil
	}
	for _, id := range p.UserFuncs() {
		prog.Walk(p.Defs[id].Body, visit)
	}
	for _, ex := range p.Execs {
		prog.Walk(ex.Expr, visit)
	}
	if err != nil {
		return nil, err
	}

	out := make([]prog.TypeID, 0, len(need))
	for t := range need {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func funcLabel(id prog.FuncID) string { return "fn" + strconv.FormatUint(uint64(id), 10) }

func eqLabel(t prog.TypeID) string { return "eq" + strconv.FormatUint(uint64(t), 10) }

func execLabel(i int) string { return "exec" + strconv.Itoa(i) }
