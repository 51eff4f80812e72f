package asmcore

import "testing"

// TestSectionSizeInvariant covers §8's "sum over atoms(S) of
// size_after_align(atom, prior_pc) equals S.pc - S.org" property.
func TestSectionSizeInvariant(t *testing.T) {
	sec := NewSection(".text", SecCode, 0x1000)

	sec.Append(&Atom{Kind: AtomData, Align: 1, Bytes: []byte{1, 2, 3}})
	sec.Append(&Atom{Kind: AtomSpace, Align: 1, Count: 4, ElemSz: 2})
	sec.Append(&Atom{Kind: AtomDataDef, Align: 1, BitSize: 16})
	sec.Append(&Atom{Kind: AtomLabel, Align: 1})
	sec.Append(&Atom{Kind: AtomInstruction, Align: 1})

	want := sec.PC - sec.Org
	var sum uint32
	pc := sec.Org
	for _, a := range sec.Atoms {
		n := uint32(a.SizeAfterAlign(pc))
		sum += n
		pc += n
	}
	if sum != want {
		t.Fatalf("sum of atom sizes = %d, want %d", sum, want)
	}
	if want != 3+8+2+0+4 {
		t.Fatalf("section PC advanced by %d, want %d", want, 3+8+2+0+4)
	}
}

func TestAtomAlignmentPadding(t *testing.T) {
	a := &Atom{Kind: AtomData, Align: 4, Bytes: []byte{0xAA}}
	if got, want := a.SizeAfterAlign(1), 3+1; got != want {
		t.Fatalf("SizeAfterAlign(1) = %d, want %d", got, want)
	}
	if got, want := a.SizeAfterAlign(4), 1; got != want {
		t.Fatalf("SizeAfterAlign(4) = %d, want %d", got, want)
	}
}

func TestDummySectionEntryExit(t *testing.T) {
	p := NewProgram(false)
	real := p.DefSect(".text", SecCode, 0x8000)
	real.Advance(10)

	p.EnterDummy(0x100)
	if !p.InDummy() {
		t.Fatal("expected InDummy true after EnterDummy")
	}
	p.AdvanceDummy(4)
	if p.DummyPC() != 0x104 {
		t.Fatalf("DummyPC = 0x%X, want 0x104", p.DummyPC())
	}

	// Consecutive DUM without DEND just retargets the offset (§4.11).
	p.EnterDummy(0x200)
	if p.DummyPC() != 0x200 {
		t.Fatalf("DummyPC after second EnterDummy = 0x%X, want 0x200", p.DummyPC())
	}

	restored := p.ExitDummy()
	if restored != real {
		t.Fatal("ExitDummy did not restore the section saved by the first EnterDummy")
	}
	if p.InDummy() {
		t.Fatal("expected InDummy false after ExitDummy")
	}
	if p.Current != real {
		t.Fatal("Program.Current was not restored to the pre-dummy section")
	}
}
