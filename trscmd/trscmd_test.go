package trscmd

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/lookbusy1344/vasmgo/asmcore"
)

func dataSection(prog *asmcore.Program, name string, org uint32, data []byte) *asmcore.Section {
	sec := prog.DefSect(name, asmcore.SecCode, org)
	sec.Append(&asmcore.Atom{Kind: asmcore.AtomData, Align: 1, Bytes: data})
	return sec
}

// TestLoadBlockOrderingByOrigin covers S5: two sections defined out of
// origin order must be emitted load-block-first by ascending Org.
func TestLoadBlockOrderingByOrigin(t *testing.T) {
	prog := asmcore.NewProgram(false)
	dataSection(prog, "HIGH", 0x6000, []byte{0xAA})
	dataSection(prog, "LOW", 0x5000, []byte{0xBB})

	out, err := New(prog, "").Write()
	if err != nil {
		t.Fatal(err)
	}
	if out[0] != 0x01 {
		t.Fatalf("first byte = 0x%02X, want a load block (0x01)", out[0])
	}
	firstAddr := binary.LittleEndian.Uint16(out[3:5])
	if firstAddr != 0x5000 {
		t.Fatalf("first load block address = 0x%04X, want 0x5000 (lowest origin first)", firstAddr)
	}
}

func TestEmptySectionIsSkipped(t *testing.T) {
	prog := asmcore.NewProgram(false)
	prog.DefSect("EMPTY", asmcore.SecCode, 0x4000) // never appended to, PC == Org
	dataSection(prog, "REAL", 0x5000, []byte{0xCC})

	out, err := New(prog, "").Write()
	if err != nil {
		t.Fatal(err)
	}
	// Exactly one load block (REAL) plus one transfer block.
	blocks := 0
	for i := 0; i < len(out); {
		switch out[i] {
		case 0x01:
			length := binary.LittleEndian.Uint16(out[i+1 : i+3])
			blocks++
			i += int(length)
		case 0x02:
			i = len(out)
		default:
			t.Fatalf("unexpected block tag 0x%02X", out[i])
		}
	}
	if blocks != 1 {
		t.Fatalf("got %d load blocks, want 1 (the empty section must be skipped)", blocks)
	}
}

func TestResolveExecUsesSymbolValue(t *testing.T) {
	prog := asmcore.NewProgram(false)
	dataSection(prog, "CODE", 0x5000, []byte{0xCC})
	prog.Symbols.SetValue("START", 0x5010)

	out, err := New(prog, "START").Write()
	if err != nil {
		t.Fatal(err)
	}
	tail := out[len(out)-5:]
	if tail[0] != 0x02 {
		t.Fatalf("last block tag = 0x%02X, want a transfer block (0x02)", tail[0])
	}
	exec := binary.LittleEndian.Uint16(tail[3:5])
	if exec != 0x5010 {
		t.Fatalf("transfer address = 0x%04X, want 0x5010", exec)
	}
}

func TestResolveExecDefaultsToFirstSectionOrigin(t *testing.T) {
	prog := asmcore.NewProgram(false)
	dataSection(prog, "CODE", 0x5000, []byte{0xCC})

	out, err := New(prog, "").Write()
	if err != nil {
		t.Fatal(err)
	}
	tail := out[len(out)-5:]
	exec := binary.LittleEndian.Uint16(tail[3:5])
	if exec != 0x5000 {
		t.Fatalf("default transfer address = 0x%04X, want the first section's origin 0x5000", exec)
	}
}

func TestUndefinedExecSymbolIsAnError(t *testing.T) {
	prog := asmcore.NewProgram(false)
	dataSection(prog, "CODE", 0x5000, []byte{0xCC})

	if _, err := New(prog, "NOPE").Write(); err == nil {
		t.Fatal("expected an error for an undefined -exec= symbol")
	}
}

func TestUndefinedImportIsFatal(t *testing.T) {
	prog := asmcore.NewProgram(false)
	dataSection(prog, "CODE", 0x5000, []byte{0xCC})
	if _, err := prog.Symbols.Import("EXTERNSYM"); err != nil {
		t.Fatal(err)
	}

	if _, err := New(prog, "").Write(); err == nil {
		t.Fatal("expected an error for an undefined IMPORT")
	}
}

func TestOverlappingSectionsAreRejected(t *testing.T) {
	prog := asmcore.NewProgram(false)
	dataSection(prog, "A", 0x5000, []byte{0, 0, 0, 0})
	dataSection(prog, "B", 0x5002, []byte{0, 0})

	if _, err := New(prog, "").Write(); err == nil {
		t.Fatal("expected an error for overlapping sections")
	}
}

func TestBSSSectionNeverEmitsLoadBlock(t *testing.T) {
	prog := asmcore.NewProgram(false)
	bss := prog.DefSect("BSS", asmcore.SecBSS, 0x6000)
	bss.Append(&asmcore.Atom{Kind: asmcore.AtomSpace, Count: 16, ElemSz: 1})
	dataSection(prog, "CODE", 0x5000, []byte{0xCC})

	out, err := New(prog, "").Write()
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Count(out[:len(out)-5], []byte{0x01}) != 1 {
		t.Fatal("expected exactly one load block; BSS must not contribute one")
	}
}
