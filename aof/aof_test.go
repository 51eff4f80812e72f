package aof

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/lookbusy1344/vasmgo/asmcore"
)

func TestRelocInfoPackUnpackRoundTrip(t *testing.T) {
	r := RelocInfo{SymOrAreaID: 0x001234, FT: 2, IsRelative: true, IsArea: true, ExtraType: true, II: 3}
	got := UnpackRelocInfo(r.Pack())
	if got != r {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, r)
	}
}

func TestRelocInfoPackSetsType2Marker(t *testing.T) {
	r := RelocInfo{}
	if r.Pack()&0x80000000 == 0 {
		t.Fatal("expected the type-2 relocation marker bit (31) to always be set")
	}
}

// TestFuseRelocsByOffsetAndType covers the §4.12 reloc-pair fusion rule: two
// relocations at the same offset and field type collapse into one with
// II=2, leaving a lone reloc untouched.
func TestFuseRelocsByOffsetAndType(t *testing.T) {
	in := []reloc{
		{offset: 4, info: RelocInfo{FT: 3, II: 1}},
		{offset: 4, info: RelocInfo{FT: 3, II: 1}},
		{offset: 8, info: RelocInfo{FT: 1, II: 1}},
	}
	out := fuseRelocs(in)
	if len(out) != 2 {
		t.Fatalf("got %d relocs, want 2 (one fused pair, one lone)", len(out))
	}
	if out[0].offset != 4 || out[0].info.II != 2 {
		t.Fatalf("fused reloc = %+v, want offset 4 II=2", out[0])
	}
	if out[1].offset != 8 || out[1].info.II != 1 {
		t.Fatalf("lone reloc = %+v, want offset 8 II=1", out[1])
	}
}

func TestFuseRelocsDifferingFieldTypeNotFused(t *testing.T) {
	in := []reloc{
		{offset: 4, info: RelocInfo{FT: 3}},
		{offset: 4, info: RelocInfo{FT: 1}},
	}
	out := fuseRelocs(in)
	if len(out) != 2 {
		t.Fatalf("got %d relocs, want 2 (differing FT must not fuse)", len(out))
	}
}

func newTestProgram() *asmcore.Program {
	p := asmcore.NewProgram(false)
	sec := p.DefSect("CODE", asmcore.SecCode, 0x8000)
	sec.Append(&asmcore.Atom{Kind: asmcore.AtomData, Align: 1, Bytes: []byte{0xDE, 0xAD, 0xBE, 0xEF}})
	return p
}

func TestWriteProducesValidChunkDirectory(t *testing.T) {
	prog := newTestProgram()
	out, err := New(prog).Write()
	if err != nil {
		t.Fatal(err)
	}
	if len(out) < 12 {
		t.Fatalf("file too short: %d bytes", len(out))
	}
	gotID := binary.BigEndian.Uint32(out[0:4])
	if gotID != fileID {
		t.Fatalf("file ID = 0x%X, want 0x%X", gotID, fileID)
	}
	numChunks := binary.BigEndian.Uint32(out[4:8])
	if numChunks != 5 {
		t.Fatalf("num chunks = %d, want 5", numChunks)
	}
	firstChunkID := string(bytes.TrimRight(out[12:20], "\x00"))
	if firstChunkID != "OBJ_HEAD" {
		t.Fatalf("first directory entry = %q, want OBJ_HEAD", firstChunkID)
	}
}

func TestAreaSizeAtMaximumIsAccepted(t *testing.T) {
	prog := asmcore.NewProgram(false)
	sec := prog.DefSect("BSS", asmcore.SecBSS, 0)
	sec.PC = maxAreaSize
	if _, err := New(prog).Write(); err != nil {
		t.Fatalf("area at the maximum size must be accepted: %v", err)
	}
}

func TestAreaSizeOverMaximumIsRejected(t *testing.T) {
	prog := asmcore.NewProgram(false)
	sec := prog.DefSect("BSS", asmcore.SecBSS, 0)
	sec.PC = maxAreaSize + 1
	if _, err := New(prog).Write(); err == nil {
		t.Fatal("expected an error for an area exceeding the maximum size")
	}
}

func TestStringTableInterningDeduplicates(t *testing.T) {
	st := newStringTable()
	a := st.intern("FOO")
	b := st.intern("FOO")
	if a != b {
		t.Fatalf("interning the same string twice returned different offsets: %d, %d", a, b)
	}
	c := st.intern("BAR")
	if c == a {
		t.Fatal("distinct strings must not collide on the same offset")
	}
}
