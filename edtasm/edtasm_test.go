package edtasm

import (
	"testing"

	"github.com/lookbusy1344/vasmgo/asmcore"
)

// TestParseCharLiteralMacroExpansion drives scenario S3: the invocation
// line's `#'X` character literal is rewritten to `#$58`, and that argument
// is then substituted into the macro body before it reaches the
// instruction parser — exactly one instruction atom is emitted.
func TestParseCharLiteralMacroExpansion(t *testing.T) {
	ctx := asmcore.NewParserContext(asmcore.DefaultOptions())
	d := New()
	d.Init(ctx)

	src := []string{
		"PRINT MACRO",
		"      LD  A,\\\\1",
		"      ENDM",
		"      PRINT #'X",
	}
	if err := d.Parse(ctx, src); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ctx.Program.Errors.HasErrors() {
		t.Fatalf("unexpected errors: %v", ctx.Program.Errors.Errors)
	}

	var insns []*asmcore.Atom
	for _, a := range ctx.Program.Current.Atoms {
		if a.Kind == asmcore.AtomInstruction {
			insns = append(insns, a)
		}
	}
	if len(insns) != 1 {
		t.Fatalf("expected exactly one instruction atom, got %d", len(insns))
	}
	got := insns[0]
	if got.Mnemonic != "LD" || len(got.Operands) != 2 || got.Operands[0] != "A" || got.Operands[1] != "#$58" {
		t.Fatalf("instruction = %+v, want LD A,#$58", got)
	}
}
