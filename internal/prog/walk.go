package prog

// Walk calls fn for e and then, if fn returns true, for each child of e in
// evaluation order.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	for _, c := range Children(e) {
		Walk(c, fn)
	}
}

// Children returns the direct sub-expressions of e in evaluation order.
func Children(e Expr) []Expr {
	switch e := e.(type) {
	case *AssignExpr:
		return []Expr{e.Value}
	case *SwitchExpr:
		out := make([]Expr, 0, len(e.Conditions)+len(e.Branches))
		out = append(out, e.Conditions...)
		return append(out, e.Branches...)
	case *CallExpr:
		return e.Args
	case *CallDynExpr:
		return append(append([]Expr(nil), e.Args...), e.Target)
	case *CallSelfExpr:
		return e.Args
	case *ClosureExpr:
		return e.Bound
	case *FieldExpr:
		return []Expr{e.Struct}
	case *GroupExpr:
		return e.Exprs
	case *UnionCheckExpr:
		return []Expr{e.Union}
	case *UnionGetExpr:
		return []Expr{e.Union}
	default:
		return nil
	}
}
