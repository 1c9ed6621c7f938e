package novasm_test

import (
	"errors"
	"testing"

	"novus/internal/novasm"
)

func TestAssemblerResolvesForwardLabels(t *testing.T) {
	asmb := novasm.NewAssembler()
	asmb.Label("entry")
	asmb.AddLoadLitInt(1)
	asmb.AddJumpIf("target")
	asmb.AddLoadLitInt(2)
	asmb.Label("target")
	asmb.AddRet()
	asmb.AddEntryPoint("entry")

	a, err := asmb.Close()
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	// load-lit-int (5) + jump-if (5) + load-lit-int (5)
	const targetOffset = 15
	if got := a.ReadUint32(6); got != targetOffset {
		t.Fatalf("expected jump target %d, got %d", targetOffset, got)
	}
	if novasm.OpCode(a.Instructions[targetOffset]) != novasm.OpRet {
		t.Fatalf("expected ret at target, got %s", novasm.OpCode(a.Instructions[targetOffset]))
	}
	if len(a.EntryPoints) != 1 || a.EntryPoints[0] != 0 {
		t.Fatalf("expected entry point [0], got %v", a.EntryPoints)
	}
}

func TestAssemblerUndefinedLabel(t *testing.T) {
	asmb := novasm.NewAssembler()
	asmb.AddJump("missing")
	if _, err := asmb.Close(); !errors.Is(err, novasm.ErrUndefinedLabel) {
		t.Fatalf("expected ErrUndefinedLabel, got %v", err)
	}
}

func TestAssemblerDuplicateLabel(t *testing.T) {
	asmb := novasm.NewAssembler()
	asmb.Label("a")
	asmb.AddRet()
	asmb.Label("a")
	if _, err := asmb.Close(); !errors.Is(err, novasm.ErrDuplicateLabel) {
		t.Fatalf("expected ErrDuplicateLabel, got %v", err)
	}
}

func TestAssemblerAddOpRejectsOperandOpcodes(t *testing.T) {
	asmb := novasm.NewAssembler()
	asmb.AddOp(novasm.OpJump)
	if _, err := asmb.Close(); err == nil {
		t.Fatal("expected error for operand opcode emitted through AddOp")
	}
}

func TestAssemblerDeduplicatesLiterals(t *testing.T) {
	asmb := novasm.NewAssembler()
	asmb.AddLoadLitString("hello")
	asmb.AddLoadLitString("world")
	asmb.AddLoadLitString("hello")
	a, err := asmb.Close()
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(a.LitStrings) != 2 {
		t.Fatalf("expected 2 literals, got %v", a.LitStrings)
	}
	if a.ReadUint32(11) != 0 {
		t.Fatalf("expected third load to reuse literal 0, got %d", a.ReadUint32(11))
	}
}

func TestFragmentAppendRelocates(t *testing.T) {
	root := novasm.NewAssembler()
	root.Label("main")
	root.AddLoadLitString("shared")
	root.AddCall("helper", 0, novasm.CallNormal)
	root.AddRet()
	root.AddEntryPoint("main")

	frag := novasm.NewFragment("helper")
	frag.Label("helper")
	loop := frag.GenerateLabel()
	frag.Label(loop)
	frag.AddLoadLitString("own")
	frag.AddLoadLitString("shared")
	frag.AddJump(loop)

	before := root.Offset()
	root.Append(frag)
	a, err := root.Close()
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	// call operand points at the relocated helper label.
	if got := a.ReadUint32(6); got != before {
		t.Fatalf("expected call target %d, got %d", before, got)
	}
	if len(a.LitStrings) != 2 || a.LitStrings[0] != "shared" || a.LitStrings[1] != "own" {
		t.Fatalf("unexpected literal table %v", a.LitStrings)
	}
	instrs, err := novasm.Disassemble(a)
	if err != nil {
		t.Fatalf("disassemble: %v", err)
	}
	var lits []uint64
	var jump uint64
	for _, in := range instrs {
		switch in.Op {
		case novasm.OpLoadLitString:
			lits = append(lits, in.Operands[0])
		case novasm.OpJump:
			jump = in.Operands[0]
		}
	}
	if len(lits) != 3 || lits[0] != 0 || lits[1] != 1 || lits[2] != 0 {
		t.Fatalf("expected literal ids [0 1 0], got %v", lits)
	}
	if jump != uint64(before) {
		t.Fatalf("expected loop jump to %d, got %d", before, jump)
	}
}

func TestGeneratedLabelsAreUniquePerFragment(t *testing.T) {
	a := novasm.NewFragment("f1")
	b := novasm.NewFragment("f2")
	if a.GenerateLabel() == b.GenerateLabel() {
		t.Fatal("expected fragment prefixes to keep generated labels apart")
	}
}
