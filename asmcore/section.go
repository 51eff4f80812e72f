package asmcore

// SectionFlag is a bitset over the section attributes named in §3.
type SectionFlag uint32

const (
	SecAbsolute SectionFlag = 1 << iota
	SecInRorg
	SecLabelsAreLocal
	SecNearAddressing
	SecFarAddressing
	SecCode
	SecData
	SecBSS
	SecReadOnly
)

// Section is a named byte-stream with the attributes enumerated in §3.
// Sections form a linked list in creation order via Next; Program.Current
// points at the active one.
type Section struct {
	Name      string
	Flags     SectionFlag
	Align     int
	MemType   string
	Org       uint32
	PC        uint32
	Atoms     []*Atom
	Next      *Section
	savedOrg  uint32 // not read or set; DSECT/DUM state lives in Program.dummyStack
}

func NewSection(name string, flags SectionFlag, org uint32) *Section {
	return &Section{Name: name, Flags: flags, Align: 1, Org: org, PC: org}
}

// Append adds an atom to the section, advancing PC by its aligned size.
// Callers that don't yet know an atom's final size (e.g. an instruction
// before encoding) pass a zero-size placeholder and fix up PC afterward
// via Advance.
func (s *Section) Append(a *Atom) {
	s.Atoms = append(s.Atoms, a)
	s.PC += uint32(a.SizeAfterAlign(s.PC))
}

// Advance moves PC forward by n bytes without appending an atom; used by
// the back-end once an instruction's real encoded width is known, or by
// DSECT/DUM offset tracking.
func (s *Section) Advance(n uint32) { s.PC += n }

func (s *Section) IsBSS() bool { return s.Flags&SecBSS != 0 }

// Program is the full translation unit's section list plus the global
// registries every dialect parser shares during its single pass (§5).
type Program struct {
	Sections    []*Section
	Current     *Section
	Symbols     *SymbolTable
	Errors      *ErrorList
	Conditional *ConditionalStack
	Macros      *MacroTable
	Locals      *LocalLabelScope

	dummyStack []dummyFrame
}

type dummyFrame struct {
	savedSection *Section
	offsetPC     uint32
}

func NewProgram(noCaseSymbols bool) *Program {
	return &Program{
		Symbols:     NewSymbolTable(noCaseSymbols),
		Errors:      &ErrorList{},
		Conditional: NewConditionalStack(256),
		Macros:      NewMacroTable(),
		Locals:      NewLocalLabelScope(),
	}
}

// DefSect creates (or returns, if it already exists) a named section and
// makes it current — the polymorphic Parser contract's `defsect` (§9).
func (p *Program) DefSect(name string, flags SectionFlag, org uint32) *Section {
	for _, s := range p.Sections {
		if s.Name == name {
			p.Current = s
			return s
		}
	}
	s := NewSection(name, flags, org)
	p.Sections = append(p.Sections, s)
	if len(p.Sections) == 1 {
		// link list in creation order
	} else {
		p.Sections[len(p.Sections)-2].Next = s
	}
	p.Current = s
	return s
}

// EnterDummy implements DSECT/DUM (§4.11): save the current section (only
// on the first of a run of consecutive DUMs) and switch to offset-only
// tracking starting at addr.
func (p *Program) EnterDummy(addr uint32) {
	if len(p.dummyStack) == 0 {
		p.dummyStack = append(p.dummyStack, dummyFrame{savedSection: p.Current, offsetPC: addr})
	} else {
		// Consecutive DUM without DEND: just retarget the offset.
		p.dummyStack[len(p.dummyStack)-1].offsetPC = addr
	}
}

func (p *Program) InDummy() bool { return len(p.dummyStack) > 0 }

func (p *Program) DummyPC() uint32 {
	if len(p.dummyStack) == 0 {
		return 0
	}
	return p.dummyStack[len(p.dummyStack)-1].offsetPC
}

func (p *Program) AdvanceDummy(n uint32) {
	if len(p.dummyStack) > 0 {
		p.dummyStack[len(p.dummyStack)-1].offsetPC += n
	}
}

// ExitDummy implements DEND/ED: restore the previously current section.
func (p *Program) ExitDummy() *Section {
	if len(p.dummyStack) == 0 {
		return p.Current
	}
	f := p.dummyStack[len(p.dummyStack)-1]
	p.dummyStack = p.dummyStack[:len(p.dummyStack)-1]
	p.Current = f.savedSection
	return f.savedSection
}
