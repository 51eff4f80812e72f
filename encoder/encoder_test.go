package encoder

import (
	"testing"

	"github.com/lookbusy1344/vasmgo/asmcore"
)

func TestEncodeInstructionMovImmediate(t *testing.T) {
	syms := asmcore.NewSymbolTable(false)
	e := NewEncoder(syms)

	inst := &asmcore.Instruction{Mnemonic: "MOV", Operands: []string{"R0", "#5"}}
	word, err := e.EncodeInstruction(inst, 0)
	if err != nil {
		t.Fatalf("EncodeInstruction: %v", err)
	}
	// AL cond (0xE), MOV opcode (1101) as an immediate data-processing op,
	// Rd=R0, imm8=5, rotate=0: 0xE3A00005.
	if word != 0xE3A00005 {
		t.Fatalf("encoded word = 0x%08X, want 0xE3A00005", word)
	}
}

func TestEncodeInstructionNop(t *testing.T) {
	syms := asmcore.NewSymbolTable(false)
	e := NewEncoder(syms)

	word, err := e.EncodeInstruction(&asmcore.Instruction{Mnemonic: "NOP"}, 0)
	if err != nil {
		t.Fatalf("EncodeInstruction: %v", err)
	}
	if word == 0 {
		t.Fatal("NOP encoded to the zero word, want the MOV R0,R0 NOP encoding")
	}
}

func TestEncodeInstructionUnknownMnemonic(t *testing.T) {
	syms := asmcore.NewSymbolTable(false)
	e := NewEncoder(syms)

	if _, err := e.EncodeInstruction(&asmcore.Instruction{Mnemonic: "FROB"}, 0); err == nil {
		t.Fatal("expected an error for an unknown mnemonic")
	}
}

func TestParseImmediateSymbolAndLiteral(t *testing.T) {
	syms := asmcore.NewSymbolTable(false)
	sym, err := syms.Define("LABEL", asmcore.SymLabsym, false)
	if err != nil {
		t.Fatal(err)
	}
	sym.Value = 0x1000
	sym.Defined = true

	e := NewEncoder(syms)
	if v, err := e.parseImmediate("LABEL"); err != nil || v != 0x1000 {
		t.Fatalf("parseImmediate(LABEL) = %d, %v, want 0x1000, nil", v, err)
	}
	if v, err := e.parseImmediate("#'A'"); err != nil || v != 'A' {
		t.Fatalf("parseImmediate(#'A') = %d, %v, want 65, nil", v, err)
	}
	if v, err := e.parseImmediate("0x10"); err != nil || v != 16 {
		t.Fatalf("parseImmediate(0x10) = %d, %v, want 16, nil", v, err)
	}
}
