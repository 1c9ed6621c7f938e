package novasm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
)

var (
	// ErrUndefinedLabel is returned by Close when an instruction or entry point refers to a missing label.
	ErrUndefinedLabel = errors.New("undefined label")
	// ErrDuplicateLabel is returned by Close when a label is defined twice.
	ErrDuplicateLabel = errors.New("duplicate label")
)

type labelRef struct {
	pos   uint32
	label string
}

type litRef struct {
	pos uint32
	id  uint32
}

// Assembler builds an Assembly instruction by instruction. Forward references
// to labels are recorded and patched when the assembler is closed.
//
// An Assembler created by NewFragment is built independently (for example on
// another goroutine) and later relocated into its parent with Append.
type Assembler struct {
	prefix  string
	nextGen int

	code        []byte
	labels      map[string]uint32
	labelRefs   []labelRef
	lits        []string
	litIDs      map[string]uint32
	litRefs     []litRef
	entryPoints []string

	err error
}

// NewAssembler returns an empty root assembler.
func NewAssembler() *Assembler {
	return NewFragment("")
}

// NewFragment returns an empty assembler whose generated labels carry prefix,
// so fragments built in isolation never collide once appended.
func NewFragment(prefix string) *Assembler {
	return &Assembler{
		prefix: prefix,
		labels: make(map[string]uint32),
		litIDs: make(map[string]uint32),
	}
}

// Offset returns the current write position.
func (a *Assembler) Offset() uint32 {
	return uint32(len(a.code))
}

// GenerateLabel returns a label name that is unique within this assembler.
func (a *Assembler) GenerateLabel() string {
	a.nextGen++
	if a.prefix == "" {
		return "L" + strconv.Itoa(a.nextGen)
	}
	return a.prefix + ".L" + strconv.Itoa(a.nextGen)
}

// Label binds name to the current write position.
func (a *Assembler) Label(name string) {
	if _, dup := a.labels[name]; dup {
		a.setErr(fmt.Errorf("%w: %q", ErrDuplicateLabel, name))
		return
	}
	a.labels[name] = a.Offset()
}

// AddEntryPoint registers label as the next entry point.
func (a *Assembler) AddEntryPoint(label string) {
	a.entryPoints = append(a.entryPoints, label)
}

// AddOp emits an instruction without operands.
func (a *Assembler) AddOp(op OpCode) {
	info, ok := op.Info()
	if !ok {
		a.setErr(fmt.Errorf("unknown opcode %s", op))
		return
	}
	if len(info.Operands) != 0 {
		a.setErr(fmt.Errorf("opcode %s requires operands", op))
		return
	}
	a.writeOp(op)
}

func (a *Assembler) AddLoadLitInt(v int32) {
	a.writeOp(OpLoadLitInt)
	a.writeU32(uint32(v))
}

func (a *Assembler) AddLoadLitLong(v int64) {
	a.writeOp(OpLoadLitLong)
	a.code = binary.LittleEndian.AppendUint64(a.code, uint64(v))
}

func (a *Assembler) AddLoadLitFloat(v float32) {
	a.writeOp(OpLoadLitFloat)
	a.writeU32(math.Float32bits(v))
}

// AddLoadLitString emits a string literal load; identical literals share one table entry.
func (a *Assembler) AddLoadLitString(s string) {
	a.writeOp(OpLoadLitString)
	id := a.litID(s)
	a.litRefs = append(a.litRefs, litRef{pos: a.Offset(), id: id})
	a.writeU32(id)
}

// AddLoadLitIp pushes the instruction offset of label.
func (a *Assembler) AddLoadLitIp(label string) {
	a.writeOp(OpLoadLitIp)
	a.writeLabelRef(label)
}

func (a *Assembler) AddReserveConsts(n uint8) {
	a.writeOp(OpReserveConsts)
	a.code = append(a.code, n)
}

func (a *Assembler) AddStoreConst(id uint8) {
	a.writeOp(OpStoreConst)
	a.code = append(a.code, id)
}

func (a *Assembler) AddLoadConst(id uint8) {
	a.writeOp(OpLoadConst)
	a.code = append(a.code, id)
}

func (a *Assembler) AddDup() { a.writeOp(OpDup) }
func (a *Assembler) AddPop() { a.writeOp(OpPop) }
func (a *Assembler) AddRet() { a.writeOp(OpRet) }

func (a *Assembler) AddFail() { a.writeOp(OpFail) }

func (a *Assembler) AddMakeStruct(fieldCount uint8) {
	a.writeOp(OpMakeStruct)
	a.code = append(a.code, fieldCount)
}

func (a *Assembler) AddMakeNullStruct() { a.writeOp(OpMakeNullStruct) }

func (a *Assembler) AddLoadStructField(index uint8) {
	a.writeOp(OpLoadStructField)
	a.code = append(a.code, index)
}

func (a *Assembler) AddJump(label string) {
	a.writeOp(OpJump)
	a.writeLabelRef(label)
}

// AddJumpIf emits a conditional jump taken when the popped int is non-zero.
func (a *Assembler) AddJumpIf(label string) {
	a.writeOp(OpJumpIf)
	a.writeLabelRef(label)
}

func (a *Assembler) AddCall(label string, argCount uint8, mode CallMode) {
	a.writeOp(OpCall)
	a.writeLabelRef(label)
	a.code = append(a.code, argCount, uint8(mode))
}

func (a *Assembler) AddCallDyn(argCount uint8, mode CallMode) {
	a.writeOp(OpCallDyn)
	a.code = append(a.code, argCount, uint8(mode))
}

func (a *Assembler) AddPCall(code PCallCode) {
	a.writeOp(OpPCall)
	a.code = append(a.code, uint8(code))
}

// Append relocates fragment f to the end of a. Label definitions, label
// references and literal ids of f are rebased onto a.
func (a *Assembler) Append(f *Assembler) {
	if f.err != nil {
		a.setErr(f.err)
	}
	base := a.Offset()
	a.code = append(a.code, f.code...)

	names := make([]string, 0, len(f.labels))
	for name := range f.labels {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, dup := a.labels[name]; dup {
			a.setErr(fmt.Errorf("%w: %q", ErrDuplicateLabel, name))
			continue
		}
		a.labels[name] = f.labels[name] + base
	}
	for _, ref := range f.labelRefs {
		a.labelRefs = append(a.labelRefs, labelRef{pos: ref.pos + base, label: ref.label})
	}
	for _, ref := range f.litRefs {
		id := a.litID(f.lits[ref.id])
		pos := ref.pos + base
		binary.LittleEndian.PutUint32(a.code[pos:], id)
		a.litRefs = append(a.litRefs, litRef{pos: pos, id: id})
	}
	a.entryPoints = append(a.entryPoints, f.entryPoints...)
}

// Close resolves every label reference and returns the finished assembly.
func (a *Assembler) Close() (*Assembly, error) {
	if a.err != nil {
		return nil, a.err
	}
	code := make([]byte, len(a.code))
	copy(code, a.code)
	for _, ref := range a.labelRefs {
		target, ok := a.labels[ref.label]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUndefinedLabel, ref.label)
		}
		binary.LittleEndian.PutUint32(code[ref.pos:], target)
	}
	entries := make([]uint32, 0, len(a.entryPoints))
	for _, label := range a.entryPoints {
		target, ok := a.labels[label]
		if !ok {
			return nil, fmt.Errorf("%w: entry point %q", ErrUndefinedLabel, label)
		}
		entries = append(entries, target)
	}
	lits := make([]string, len(a.lits))
	copy(lits, a.lits)
	return &Assembly{Instructions: code, LitStrings: lits, EntryPoints: entries}, nil
}

func (a *Assembler) writeOp(op OpCode) {
	a.code = append(a.code, byte(op))
}

func (a *Assembler) writeU32(v uint32) {
	a.code = binary.LittleEndian.AppendUint32(a.code, v)
}

func (a *Assembler) writeLabelRef(label string) {
	a.labelRefs = append(a.labelRefs, labelRef{pos: a.Offset(), label: label})
	a.writeU32(0)
}

func (a *Assembler) litID(s string) uint32 {
	if id, ok := a.litIDs[s]; ok {
		return id
	}
	id := uint32(len(a.lits))
	a.lits = append(a.lits, s)
	a.litIDs[s] = id
	return id
}

func (a *Assembler) setErr(err error) {
	if a.err == nil {
		a.err = err
	}
}
