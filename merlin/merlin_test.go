package merlin

import (
	"testing"

	"github.com/lookbusy1344/vasmgo/asmcore"
)

func newTestContext() *asmcore.ParserContext {
	ctx := asmcore.NewParserContext(asmcore.DefaultOptions())
	d := New()
	d.Init(ctx)
	return ctx
}

// TestParseVariableLabelSelfUpdate drives scenario S1: `]V` is redefined
// twice in terms of itself, and the defining expressions must read the
// prior backing value rather than failing to parse `]V+1` at all.
func TestParseVariableLabelSelfUpdate(t *testing.T) {
	ctx := newTestContext()
	d := New()

	src := []string{
		"     ORG $1000",
		"]V   EQU  5",
		"]V   EQU  ]V+1",
		"]V   EQU  ]V+1",
		"     DB   ]V",
	}
	if err := d.Parse(ctx, src); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ctx.Program.Errors.HasErrors() {
		t.Fatalf("unexpected errors: %v", ctx.Program.Errors.Errors)
	}

	atoms := ctx.Program.Current.Atoms
	if len(atoms) == 0 {
		t.Fatal("expected at least one atom")
	}
	last := atoms[len(atoms)-1]
	if last.Kind != asmcore.AtomData || len(last.Bytes) != 1 || last.Bytes[0] != 0x07 {
		t.Fatalf("final DB atom = %+v, want a single byte 0x07", last)
	}

	syms := ctx.Program.Symbols.All()
	var backing []string
	for _, s := range syms {
		backing = append(backing, s.Name)
	}
	if len(backing) != 3 {
		t.Fatalf("expected 3 distinct backing symbols for ]V, got %v", backing)
	}
	if v, err := ctx.Program.Symbols.Get("unid_V_3"); err != nil || v != 7 {
		t.Fatalf("unid_V_3 = %d, %v, want 7, nil", v, err)
	}
	if v, err := ctx.Program.Symbols.Get("unid_V_2"); err != nil || v != 6 {
		t.Fatalf("unid_V_2 = %d, %v, want 6, nil", v, err)
	}
	if v, err := ctx.Program.Symbols.Get("unid_V_1"); err != nil || v != 5 {
		t.Fatalf("unid_V_1 = %d, %v, want 5, nil", v, err)
	}
}

// TestParseConditionalTolerantCloseEmitsTwoNops drives scenario S6: Merlin's
// ELSE never suppresses a branch that was already taken (§9), so the body
// between ELSE and the matching FIN stays active, and the stray extra FIN
// only warns.
func TestParseConditionalTolerantCloseEmitsTwoNops(t *testing.T) {
	ctx := newTestContext()
	d := New()

	src := []string{
		"     DO   1",
		"     ELSE",
		"     NOP",
		"     FIN",
		"     NOP",
		"     FIN",
	}
	if err := d.Parse(ctx, src); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ctx.Program.Errors.HasErrors() {
		t.Fatalf("unexpected errors: %v", ctx.Program.Errors.Errors)
	}
	if len(ctx.Program.Errors.Warnings) != 1 {
		t.Fatalf("expected exactly one warning, got %d: %v", len(ctx.Program.Errors.Warnings), ctx.Program.Errors.Warnings)
	}

	var nops int
	for _, a := range ctx.Program.Current.Atoms {
		if a.Kind == asmcore.AtomInstruction && a.Mnemonic == "NOP" {
			nops++
		}
	}
	if nops != 2 {
		t.Fatalf("expected exactly two NOP atoms, got %d", nops)
	}
}
