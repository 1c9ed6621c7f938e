package prog

// Expr is a typed expression node. The set of node types is closed; code
// walking a tree is expected to switch over all of them.
type Expr interface {
	Type() TypeID
	exprNode()
}

// CallMode marks how a user call is activated.
type CallMode uint8

const (
	CallNormal CallMode = iota
	CallFork
	CallLazy
)

// AssignExpr stores Value into a const and yields it.
type AssignExpr struct {
	Const ConstID
	Value Expr
}

// SwitchExpr evaluates Conditions in order and yields the branch of the first
// true one; Branches has one extra trailing entry for the else case.
type SwitchExpr struct {
	Conditions []Expr
	Branches   []Expr
}

// CallExpr invokes a declared function (user or built-in).
type CallExpr struct {
	Func   FuncID
	Args   []Expr
	Mode   CallMode
	Result TypeID
}

// CallDynExpr invokes a delegate value.
type CallDynExpr struct {
	Target Expr
	Args   []Expr
	Fork   bool
	Result TypeID
}

// CallSelfExpr re-invokes the enclosing function with new non-bound arguments.
type CallSelfExpr struct {
	Args   []Expr
	Result TypeID
}

// ClosureExpr binds arguments to a function, producing a delegate.
type ClosureExpr struct {
	Func     FuncID
	Bound    []Expr
	Delegate TypeID
}

// ConstExpr loads a const slot.
type ConstExpr struct {
	ID       ConstID
	ConstTyp TypeID
}

// FieldExpr loads a struct field.
type FieldExpr struct {
	Struct   Expr
	Field    int
	FieldTyp TypeID
}

// GroupExpr evaluates Exprs in order and yields the last.
type GroupExpr struct {
	Exprs []Expr
}

// UnionCheckExpr tests whether a union currently holds Target.
type UnionCheckExpr struct {
	Union  Expr
	Target TypeID
}

// UnionGetExpr tests whether a union holds Target and, if so, stores the value in Const.
type UnionGetExpr struct {
	Union  Expr
	Target TypeID
	Const  ConstID
}

// FailExpr aborts execution; it is typed so it can appear in any branch.
type FailExpr struct {
	Result TypeID
}

type LitBoolExpr struct{ Val bool }
type LitFloatExpr struct{ Val float32 }
type LitIntExpr struct{ Val int32 }
type LitLongExpr struct{ Val int64 }
type LitStringExpr struct{ Val string }
type LitCharExpr struct{ Val uint8 }

// LitFuncExpr is a reference to a function used as a delegate value.
type LitFuncExpr struct {
	Func     FuncID
	Delegate TypeID
}

type LitEnumExpr struct {
	Enum TypeID
	Val  int32
}

func (e *AssignExpr) Type() TypeID     { return e.Value.Type() }
func (e *SwitchExpr) Type() TypeID     { return e.Branches[0].Type() }
func (e *CallExpr) Type() TypeID       { return e.Result }
func (e *CallDynExpr) Type() TypeID    { return e.Result }
func (e *CallSelfExpr) Type() TypeID   { return e.Result }
func (e *ClosureExpr) Type() TypeID    { return e.Delegate }
func (e *ConstExpr) Type() TypeID      { return e.ConstTyp }
func (e *FieldExpr) Type() TypeID      { return e.FieldTyp }
func (e *GroupExpr) Type() TypeID      { return e.Exprs[len(e.Exprs)-1].Type() }
func (e *UnionCheckExpr) Type() TypeID { return TypeBool }
func (e *UnionGetExpr) Type() TypeID   { return TypeBool }
func (e *FailExpr) Type() TypeID       { return e.Result }
func (e *LitBoolExpr) Type() TypeID    { return TypeBool }
func (e *LitFloatExpr) Type() TypeID   { return TypeFloat }
func (e *LitIntExpr) Type() TypeID     { return TypeInt }
func (e *LitLongExpr) Type() TypeID    { return TypeLong }
func (e *LitStringExpr) Type() TypeID  { return TypeString }
func (e *LitCharExpr) Type() TypeID    { return TypeChar }
func (e *LitFuncExpr) Type() TypeID    { return e.Delegate }
func (e *LitEnumExpr) Type() TypeID    { return e.Enum }

func (*AssignExpr) exprNode()     {}
func (*SwitchExpr) exprNode()     {}
func (*CallExpr) exprNode()       {}
func (*CallDynExpr) exprNode()    {}
func (*CallSelfExpr) exprNode()   {}
func (*ClosureExpr) exprNode()    {}
func (*ConstExpr) exprNode()      {}
func (*FieldExpr) exprNode()      {}
func (*GroupExpr) exprNode()      {}
func (*UnionCheckExpr) exprNode() {}
func (*UnionGetExpr) exprNode()   {}
func (*FailExpr) exprNode()       {}
func (*LitBoolExpr) exprNode()    {}
func (*LitFloatExpr) exprNode()   {}
func (*LitIntExpr) exprNode()     {}
func (*LitLongExpr) exprNode()    {}
func (*LitStringExpr) exprNode()  {}
func (*LitCharExpr) exprNode()    {}
func (*LitFuncExpr) exprNode()    {}
func (*LitEnumExpr) exprNode()    {}
