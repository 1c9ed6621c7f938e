package novasm

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/fatih/color"
)

// Instr is one decoded instruction.
type Instr struct {
	Offset   uint32
	Op       OpCode
	Operands []uint64 // raw operand bits, in encoding order
}

// Int returns operand i interpreted as a signed integer of its encoded width.
func (in Instr) Int(i int) int64 {
	info, _ := in.Op.Info()
	switch info.Operands[i] {
	case OperandI32:
		return int64(int32(uint32(in.Operands[i])))
	case OperandI64:
		return int64(in.Operands[i])
	default:
		return int64(in.Operands[i])
	}
}

// Float returns operand i interpreted as a float32.
func (in Instr) Float(i int) float32 {
	return math.Float32frombits(uint32(in.Operands[i]))
}

// Disassemble decodes the whole instruction stream.
func Disassemble(a *Assembly) ([]Instr, error) {
	var out []Instr
	ip := uint32(0)
	for int(ip) < len(a.Instructions) {
		op := OpCode(a.Instructions[ip])
		info, ok := op.Info()
		if !ok {
			return out, fmt.Errorf("offset %d: unknown opcode 0x%02x", ip, uint8(op))
		}
		if !a.InBounds(ip, info.Size()) {
			return out, fmt.Errorf("offset %d: truncated %s instruction", ip, op)
		}
		in := Instr{Offset: ip, Op: op}
		pos := ip + 1
		for _, kind := range info.Operands {
			switch kind {
			case OperandU8:
				in.Operands = append(in.Operands, uint64(a.ReadUint8(pos)))
			case OperandI32, OperandU32, OperandF32:
				in.Operands = append(in.Operands, uint64(a.ReadUint32(pos)))
			case OperandI64:
				in.Operands = append(in.Operands, uint64(a.ReadInt64(pos)))
			}
			pos += uint32(kind.Size())
		}
		out = append(out, in)
		ip = pos
	}
	return out, nil
}

// TextOptions controls WriteText output.
type TextOptions struct {
	Color bool
}

// WriteText writes a human readable listing of a to w.
func WriteText(w io.Writer, a *Assembly, opts TextOptions) error {
	instrs, decodeErr := Disassemble(a)

	offsetColor := color.New(color.FgHiBlack)
	opColor := color.New(color.FgCyan, color.Bold)
	litColor := color.New(color.FgGreen)
	entryColor := color.New(color.FgYellow, color.Bold)
	for _, c := range []*color.Color{offsetColor, opColor, litColor, entryColor} {
		if opts.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	entries := make(map[uint32][]int, len(a.EntryPoints))
	for i, ep := range a.EntryPoints {
		entries[ep] = append(entries[ep], i)
	}

	if _, err := fmt.Fprintf(w, "; %d bytes, %d literals, %d entry points\n",
		len(a.Instructions), len(a.LitStrings), len(a.EntryPoints)); err != nil {
		return err
	}
	for _, in := range instrs {
		for _, idx := range entries[in.Offset] {
			if _, err := fmt.Fprintln(w, entryColor.Sprintf("entry.%d:", idx)); err != nil {
				return err
			}
		}
		line := offsetColor.Sprintf("  %06x  ", in.Offset) + opColor.Sprint(in.Op.String())
		if args := formatOperands(a, in, litColor); args != "" {
			line += " " + args
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return decodeErr
}

func formatOperands(a *Assembly, in Instr, litColor *color.Color) string {
	switch in.Op {
	case OpLoadLitString:
		s, _ := a.LitString(uint32(in.Operands[0]))
		return litColor.Sprint(strconv.Quote(s))
	case OpLoadLitFloat:
		return strconv.FormatFloat(float64(in.Float(0)), 'g', -1, 32)
	case OpLoadLitInt, OpLoadLitLong:
		return strconv.FormatInt(in.Int(0), 10)
	case OpJump, OpJumpIf, OpLoadLitIp:
		return fmt.Sprintf("0x%06x", in.Operands[0])
	case OpCall:
		return fmt.Sprintf("0x%06x argc=%d %s", in.Operands[0], in.Operands[1], CallMode(in.Operands[2]))
	case OpCallDyn:
		return fmt.Sprintf("argc=%d %s", in.Operands[0], CallMode(in.Operands[1]))
	case OpPCall:
		return PCallCode(in.Operands[0]).String()
	}
	parts := make([]string, 0, len(in.Operands))
	for _, v := range in.Operands {
		parts = append(parts, strconv.FormatUint(v, 10))
	}
	return strings.Join(parts, " ")
}
