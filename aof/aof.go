// Package aof writes the Acorn Object Format object files the ARM-facing
// dialects (EDTASM, Merlin) target (§4.12). Grounded on the teacher's own
// big-endian, chunked-file discipline (the ARM CPU it emulates is itself
// big-endian-capable and the teacher's encoder already reasons in
// big-endian instruction words); the chunk directory, Area, and symbol/
// string table layouts are new here since the teacher never wrote object
// files, only executed them.
package aof

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/lookbusy1344/vasmgo/asmcore"
	"github.com/lookbusy1344/vasmgo/encoder"
)

const (
	fileID       uint32 = 0xC3CBC6C5
	versionTag   uint32 = 310
	objectTypTag uint32 = 0xC5E2D080
	maxAreaSize  uint32 = 0xFFFFFFFC
)

// Area attribute bits (§4.12).
const (
	attrCode          uint32 = 1 << 0
	attrReadOnly      uint32 = 1 << 2
	attrPosIndep      uint32 = 1 << 3
	attrNoInit        uint32 = 1 << 5 // BSS
	attrAPCS32        uint32 = 1 << 6
	attrHalfReloc     uint32 = 1 << 14 // AA_HALFRELOC, ARM7TDMI+ (§9: approximate criterion, flagged)
	attrAbsolute      uint32 = 1 << 17
)

// Symbol attribute bits.
const (
	symLocal  uint32 = 0
	symGlobal uint32 = 2
	symExtern uint32 = 1
	symAbs    uint32 = 1 << 7
	symWeak   uint32 = 1 << 8
	symCommon uint32 = 1 << 11
)

// RelocInfo is the explicit pack/unpack value for an AOF relocation's info
// word, per §9's "treat it as an explicit RelocInfo value... not scattered
// shifts and masks" design note.
type RelocInfo struct {
	SymOrAreaID uint32 // low 24 bits
	FT          uint8  // field type, bits 24-25
	IsRelative  bool   // relocation-type bit 26
	IsArea      bool   // A bit 27: true selects area id, false selects symbol id
	ExtraType   bool   // bit 28
	II          uint8  // instruction count, bits 29-30 (0,1,2,3)
}

func (r RelocInfo) Pack() uint32 {
	v := r.SymOrAreaID & 0x00FFFFFF
	v |= uint32(r.FT&0x3) << 24
	if r.IsRelative {
		v |= 1 << 26
	}
	if r.IsArea {
		v |= 1 << 27
	}
	if r.ExtraType {
		v |= 1 << 28
	}
	v |= uint32(r.II&0x3) << 29
	v |= 0x80000000 // type-2 reloc marker, always set
	return v
}

func UnpackRelocInfo(v uint32) RelocInfo {
	return RelocInfo{
		SymOrAreaID: v & 0x00FFFFFF,
		FT:          uint8((v >> 24) & 0x3),
		IsRelative:  v&(1<<26) != 0,
		IsArea:      v&(1<<27) != 0,
		ExtraType:   v&(1<<28) != 0,
		II:          uint8((v >> 29) & 0x3),
	}
}

// reloc is one byte-offset relocation pending fusion/emission.
type reloc struct {
	offset uint32
	info   RelocInfo
}

// Writer accumulates the pieces of an AOF file (string table, symbol
// table, areas) as sections are serialized, then assembles the chunk
// directory and writes everything in one pass.
type Writer struct {
	prog    *asmcore.Program
	enc     *encoder.Encoder
	strings *stringTable
}

func New(prog *asmcore.Program) *Writer {
	return &Writer{
		prog:    prog,
		enc:     encoder.NewEncoder(prog.Symbols),
		strings: newStringTable(),
	}
}

type areaRecord struct {
	nameOff  uint32
	attr     uint32
	rawSize  uint32
	relocs   []reloc
	baseAddr uint32
	payload  []byte
	isBSS    bool
}

// Write serializes the program's sections and symbols into the AOF byte
// layout described in §4.12 and returns the complete file contents.
func (w *Writer) Write() ([]byte, error) {
	areas, err := w.buildAreas()
	if err != nil {
		return nil, err
	}
	symtChunk, err := w.buildSymbolTable(areas)
	if err != nil {
		return nil, err
	}
	areaChunk := w.buildAreaChunk(areas)
	idfnChunk := w.buildIDFN()
	strtChunk := w.strings.bytes()
	headChunk := w.buildHead()

	type namedChunk struct {
		id   string
		data []byte
	}
	// OBJ_HEAD must appear first in the directory even though it is
	// computed last (§4.12).
	chunks := []namedChunk{
		{"OBJ_HEAD", headChunk},
		{"OBJ_AREA", areaChunk},
		{"OBJ_IDFN", idfnChunk},
		{"OBJ_SYMT", symtChunk},
		{"OBJ_STRT", strtChunk},
	}

	var dir bytes.Buffer
	binary.Write(&dir, binary.BigEndian, fileID)
	binary.Write(&dir, binary.BigEndian, uint32(len(chunks)))
	binary.Write(&dir, binary.BigEndian, uint32(len(chunks)))

	offset := uint32(12 + 16*len(chunks))
	var body bytes.Buffer
	for _, c := range chunks {
		idBytes := make([]byte, 8)
		copy(idBytes, c.id)
		dir.Write(idBytes)
		binary.Write(&dir, binary.BigEndian, offset)
		binary.Write(&dir, binary.BigEndian, uint32(len(c.data)))
		body.Write(c.data)
		offset += uint32(len(c.data))
	}

	out := append(dir.Bytes(), body.Bytes()...)
	return out, nil
}

func (w *Writer) buildHead() []byte {
	var b bytes.Buffer
	binary.Write(&b, binary.BigEndian, versionTag)
	binary.Write(&b, binary.BigEndian, objectTypTag)
	return b.Bytes()
}

func (w *Writer) buildIDFN() []byte {
	return []byte("vasmgo\x00\x00")
}

// buildAreas serializes every section to its raw payload, resolving
// instruction atoms through the encoder and deferring unresolved (import)
// symbol references to relocation records rather than failing outright.
func (w *Writer) buildAreas() ([]*areaRecord, error) {
	var areas []*areaRecord
	for _, sec := range w.prog.Sections {
		rec := &areaRecord{
			baseAddr: sec.Org,
			isBSS:    sec.IsBSS(),
			attr:     sectionAttr(sec),
			nameOff:  w.strings.intern(sec.Name),
		}
		if !rec.isBSS {
			payload, relocs, err := w.serializeSection(sec)
			if err != nil {
				return nil, fmt.Errorf("area %s: %w", sec.Name, err)
			}
			rec.payload = payload
			rec.relocs = fuseRelocs(relocs)
		}
		raw := uint32(sec.PC - sec.Org)
		rec.rawSize = raw
		if raw > maxAreaSize {
			return nil, fmt.Errorf("area %s: size 0x%X exceeds maximum area size 0x%X", sec.Name, raw, maxAreaSize)
		}
		areas = append(areas, rec)
	}
	return areas, nil
}

func sectionAttr(sec *asmcore.Section) uint32 {
	var attr uint32
	if sec.Flags&asmcore.SecCode != 0 {
		attr |= attrCode | attrReadOnly
	}
	if sec.IsBSS() {
		attr |= attrNoInit
	}
	if sec.Flags&asmcore.SecAbsolute != 0 {
		attr |= attrAbsolute
	}
	attr |= attrAPCS32
	return attr
}

// symbolRef resolves an instruction operand to an external (import or
// forward-undefined) symbol, if the operand names one. Local, resolved
// symbols are left to the encoder to fold directly into the instruction
// word; only truly external references need a relocation record.
func (w *Writer) symbolRef(operand string) (*asmcore.Symbol, bool) {
	name := trimOperandToIdent(operand)
	if name == "" {
		return nil, false
	}
	sym, ok := w.prog.Symbols.Lookup(name)
	if !ok {
		return nil, false
	}
	if sym.Kind == asmcore.SymImport || !sym.Defined {
		return sym, true
	}
	return nil, false
}

func trimOperandToIdent(s string) string {
	start := -1
	for i := 0; i < len(s); i++ {
		c := s[i]
		isIdent := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
		if isIdent && start < 0 {
			start = i
		}
		if !isIdent && start >= 0 {
			return s[start:i]
		}
	}
	if start >= 0 {
		return s[start:]
	}
	return ""
}

func (w *Writer) serializeSection(sec *asmcore.Section) ([]byte, []reloc, error) {
	var out bytes.Buffer
	var relocs []reloc
	pc := sec.Org

	for _, atom := range sec.Atoms {
		pad := int(alignUp(pc, atom.Align) - pc)
		for i := 0; i < pad; i++ {
			out.WriteByte(0)
		}
		pc = alignUp(pc, atom.Align)
		offsetInArea := pc - sec.Org

		switch atom.Kind {
		case asmcore.AtomData, asmcore.AtomText:
			out.Write(atom.Bytes)
			pc += uint32(len(atom.Bytes))
		case asmcore.AtomSpace:
			n := atom.Count * maxInt(atom.ElemSz, 1)
			for i := 0; i < n; i++ {
				out.WriteByte(atom.Fill)
			}
			pc += uint32(n)
		case asmcore.AtomInstruction:
			word, rel, err := w.encodeInstructionAtom(atom, pc)
			if err != nil {
				return nil, nil, err
			}
			var wbuf [4]byte
			binary.BigEndian.PutUint32(wbuf[:], word)
			out.Write(wbuf[:])
			if rel != nil {
				rel.offset = offsetInArea
				relocs = append(relocs, *rel)
			}
			pc += 4
		case asmcore.AtomLabel, asmcore.AtomAssert, asmcore.AtomSrcLine, asmcore.AtomExprPrint, asmcore.AtomVasmDebug:
			// no payload contribution
		default:
			pc += uint32(atom.SizeAfterAlign(pc))
		}
	}

	// pad to 4-byte boundary (§4.12 area payload rule).
	for out.Len()%4 != 0 {
		out.WriteByte(0)
	}
	return out.Bytes(), relocs, nil
}

// encodeInstructionAtom turns one AtomInstruction into its 32-bit word. An
// operand naming an external symbol is encoded with a zero placeholder
// target and reported back as a pending relocation instead of being
// rejected by the encoder as undefined.
func (w *Writer) encodeInstructionAtom(atom *asmcore.Atom, addr uint32) (uint32, *reloc, error) {
	cond := ""
	if len(atom.Qualifiers) > 0 {
		cond = atom.Qualifiers[0]
	}
	setFlags := len(atom.Mnemonic) > 0 && atom.Mnemonic[len(atom.Mnemonic)-1] == 'S' && len(atom.Mnemonic) > 1

	var extSym *asmcore.Symbol
	var extIdx int
	for i, op := range atom.Operands {
		if sym, ok := w.symbolRef(op); ok {
			extSym = sym
			extIdx = i
			break
		}
	}

	inst := &asmcore.Instruction{Mnemonic: atom.Mnemonic, Condition: cond, SetFlags: setFlags, Operands: append([]string(nil), atom.Operands...), Pos: atom.Pos}
	if extSym != nil {
		inst.Operands[extIdx] = "0"
	}

	word, err := w.enc.EncodeInstruction(inst, addr)
	if err != nil {
		return 0, nil, fmt.Errorf("at %s: %w", atom.Pos.String(), err)
	}
	if extSym == nil {
		return word, nil, nil
	}
	r := reloc{info: RelocInfo{
		SymOrAreaID: w.symbolIndexPlaceholder(extSym),
		FT:          3, // instruction relocation
		IsRelative:  true,
		IsArea:      false,
		II:          1,
	}}
	return word, &r, nil
}

// symbolIndexPlaceholder returns a stable per-symbol id used as the low
// 24 bits of a relocation's info word; actual symbol-table ordinal
// assignment happens in buildSymbolTable, so this is just keyed by name
// here and resolved there.
func (w *Writer) symbolIndexPlaceholder(sym *asmcore.Symbol) uint32 {
	return uint32(symbolOrdinal(w.prog, sym.Name))
}

func symbolOrdinal(prog *asmcore.Program, name string) int {
	names := sortedSymbolNames(prog)
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return 0
}

func sortedSymbolNames(prog *asmcore.Program) []string {
	all := prog.Symbols.All()
	names := make([]string, 0, len(all))
	for _, s := range all {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}

// fuseRelocs implements the reloc-pair fusion rule (§4.12): two relocations
// at the same offset with the same type but differing bit-offset/mask
// (approximated here as "same offset, same FT") collapse into one entry
// with II=2.
func fuseRelocs(in []reloc) []reloc {
	if len(in) < 2 {
		return in
	}
	sort.Slice(in, func(i, j int) bool { return in[i].offset < in[j].offset })
	var out []reloc
	i := 0
	for i < len(in) {
		cur := in[i]
		if i+1 < len(in) && in[i+1].offset == cur.offset && in[i+1].info.FT == cur.info.FT {
			cur.info.II = 2
			out = append(out, cur)
			i += 2
			continue
		}
		out = append(out, cur)
		i++
	}
	return out
}

func (w *Writer) buildAreaChunk(areas []*areaRecord) []byte {
	var b bytes.Buffer
	binary.Write(&b, binary.BigEndian, uint32(len(areas)))
	for _, a := range areas {
		binary.Write(&b, binary.BigEndian, a.nameOff)
		binary.Write(&b, binary.BigEndian, a.attr)
		aligned := (a.rawSize + 3) &^ 3
		binary.Write(&b, binary.BigEndian, aligned)
		binary.Write(&b, binary.BigEndian, uint32(len(a.relocs)))
		binary.Write(&b, binary.BigEndian, a.baseAddr)
		if !a.isBSS {
			b.Write(a.payload)
			for _, r := range a.relocs {
				binary.Write(&b, binary.BigEndian, r.offset)
				binary.Write(&b, binary.BigEndian, r.info.Pack())
			}
		}
	}
	return b.Bytes()
}

func (w *Writer) buildSymbolTable(areas []*areaRecord) ([]byte, error) {
	names := sortedSymbolNames(w.prog)
	var b bytes.Buffer
	for _, name := range names {
		sym, _ := w.prog.Symbols.Lookup(name)
		nameOff := w.strings.intern(name)
		attr := symbolAttr(sym)
		areaNameOff := uint32(0)
		if sym.Section != nil {
			areaNameOff = w.strings.intern(sym.Section.Name)
		}
		binary.Write(&b, binary.BigEndian, nameOff)
		binary.Write(&b, binary.BigEndian, attr)
		binary.Write(&b, binary.BigEndian, sym.Value)
		binary.Write(&b, binary.BigEndian, areaNameOff)
	}
	return b.Bytes(), nil
}

func symbolAttr(sym *asmcore.Symbol) uint32 {
	var attr uint32
	switch {
	case sym.Kind == asmcore.SymImport:
		attr |= symExtern
	case sym.Flags&asmcore.FlagExport != 0 || sym.Flags&asmcore.FlagXdef != 0:
		attr |= symGlobal
	default:
		attr |= symLocal
	}
	if sym.Flags&asmcore.FlagWeak != 0 {
		attr |= symWeak
	}
	if sym.Flags&asmcore.FlagCommon != 0 {
		attr |= symCommon
	}
	return attr
}

type stringTable struct {
	buf    bytes.Buffer
	offset map[string]uint32
}

func newStringTable() *stringTable {
	t := &stringTable{offset: make(map[string]uint32)}
	return t
}

// intern adds name to the string table if not already present and
// returns its byte offset, matching §4.12's "offsets computed
// monotonically as strings are inserted" rule.
func (t *stringTable) intern(name string) uint32 {
	if off, ok := t.offset[name]; ok {
		return off
	}
	off := uint32(t.buf.Len())
	t.offset[name] = off
	t.buf.WriteString(name)
	t.buf.WriteByte(0)
	return off
}

func (t *stringTable) bytes() []byte {
	var b bytes.Buffer
	raw := t.buf.Bytes()
	total := uint32(len(raw))
	binary.Write(&b, binary.BigEndian, total)
	b.Write(raw)
	for b.Len()%4 != 0 {
		b.WriteByte(0)
	}
	return b.Bytes()
}

func alignUp(pc uint32, align int) uint32 {
	if align <= 1 {
		return pc
	}
	a := uint32(align)
	r := pc % a
	if r == 0 {
		return pc
	}
	return pc + (a - r)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
