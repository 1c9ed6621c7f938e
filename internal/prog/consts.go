package prog

// ConstKind classifies a const slot.
type ConstKind uint8

const (
	ConstInput ConstKind = iota + 1
	ConstBoundInput
	ConstLocal
)

// ConstDecl is one const (local) slot of a function or exec statement.
type ConstDecl struct {
	ID   ConstID   `msgpack:"id"`
	Name string    `msgpack:"name"`
	Type TypeID    `msgpack:"type"`
	Kind ConstKind `msgpack:"kind"`
}

// ConstTable lists the consts of one function in slot order. Inputs occupy
// the leading slots, non-bound inputs first, then bound (closure) inputs.
type ConstTable struct {
	Decls []ConstDecl `msgpack:"decls"`
}

// Register appends a const and returns its id.
func (t *ConstTable) Register(kind ConstKind, name string, typ TypeID) ConstID {
	id := ConstID(len(t.Decls))
	t.Decls = append(t.Decls, ConstDecl{ID: id, Name: name, Type: typ, Kind: kind})
	return id
}

// Count returns the number of slots.
func (t *ConstTable) Count() int {
	return len(t.Decls)
}

// Decl returns the declaration of id.
func (t *ConstTable) Decl(id ConstID) (ConstDecl, bool) {
	if int(id) >= len(t.Decls) {
		return ConstDecl{}, false
	}
	return t.Decls[id], true
}

// Inputs returns all input consts (bound and non-bound) in slot order.
func (t *ConstTable) Inputs() []ConstID {
	return t.filter(func(k ConstKind) bool { return k == ConstInput || k == ConstBoundInput })
}

func (t *ConstTable) NonBoundInputs() []ConstID {
	return t.filter(func(k ConstKind) bool { return k == ConstInput })
}

func (t *ConstTable) BoundInputs() []ConstID {
	return t.filter(func(k ConstKind) bool { return k == ConstBoundInput })
}

func (t *ConstTable) filter(keep func(ConstKind) bool) []ConstID {
	var out []ConstID
	for _, d := range t.Decls {
		if keep(d.Kind) {
			out = append(out, d.ID)
		}
	}
	return out
}
