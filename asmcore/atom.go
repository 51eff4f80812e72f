package asmcore

import "github.com/lookbusy1344/vasmgo/expr"

// AtomKind tags the Atom variant (§3 Atom).
type AtomKind int

const (
	AtomData AtomKind = iota
	AtomSpace
	AtomDataDef
	AtomLabel
	AtomInstruction
	AtomROffs
	AtomAssert
	AtomSrcLine
	AtomText
	AtomExprPrint
	AtomVasmDebug
)

// Atom is a tagged variant over the eleven kinds enumerated in §3. Only the
// fields relevant to Kind are populated; every atom carries Align and Pos
// regardless of kind. Atoms are strictly appended to their Section and are
// never reordered after emission.
type Atom struct {
	Kind  AtomKind
	Align int
	Pos   Position

	// AtomData
	Bytes []byte

	// AtomSpace
	Count   int
	ElemSz  int
	Fill    byte
	NoFill  bool // SPACE with unspecified fill (BSS-style reservation)

	// AtomDataDef
	BitSize int
	Expr    *expr.Expr

	// AtomLabel
	Symbol *Symbol

	// AtomInstruction
	Mnemonic   string
	Qualifiers []string
	Operands   []string

	// AtomROffs
	FillROffs byte

	// AtomAssert
	AssertExprText string
	AssertMsg      string

	// AtomSrcLine
	LineNo int

	// AtomText
	Text string

	// AtomExprPrint
	Format string
	Width  int
}

// Size returns the atom's contribution to the section's byte count given
// the program counter immediately before it, honoring Align (§3 invariant:
// sum of atom sizes after alignment equals pc-org). Atoms whose size
// depends on an unresolved expression (AtomDataDef, AtomROffs with a
// symbolic fill target) are sized after expression resolution; callers
// that need a size before that point should treat BitSize/8 or a fixed
// element width as the natural interim size, which is what this method
// returns.
func (a *Atom) SizeAfterAlign(priorPC uint32) int {
	aligned := alignUp(priorPC, a.Align)
	pad := int(aligned - priorPC)
	switch a.Kind {
	case AtomData, AtomText:
		return pad + len(a.Bytes)
	case AtomSpace:
		return pad + a.Count*maxInt(a.ElemSz, 1)
	case AtomDataDef:
		return pad + (a.BitSize+7)/8
	case AtomLabel, AtomAssert, AtomSrcLine, AtomExprPrint, AtomVasmDebug:
		return pad
	case AtomInstruction:
		return pad + 4 // overwritten by the CPU encoder's actual width where it differs
	case AtomROffs:
		return pad
	default:
		return pad
	}
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
