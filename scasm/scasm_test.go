package scasm

import (
	"testing"

	"github.com/lookbusy1344/vasmgo/asmcore"
)

// TestParseACSharedNibbleStream drives scenario S2: `.AC` packs two
// accumulated nibbles, encoded against a table defined by an earlier
// `.AC N"chars"`, into a single output byte.
func TestParseACSharedNibbleStream(t *testing.T) {
	ctx := asmcore.NewParserContext(asmcore.DefaultOptions())
	d := New()
	d.Init(ctx)

	src := []string{
		`     .AC  1"ABC"`,
		`     .AC  /A/`,
		`     .AC  /B/`,
	}
	if err := d.Parse(ctx, src); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ctx.Program.Errors.HasErrors() {
		t.Fatalf("unexpected errors: %v", ctx.Program.Errors.Errors)
	}

	var data []byte
	for _, a := range ctx.Program.Current.Atoms {
		if a.Kind == asmcore.AtomData {
			data = append(data, a.Bytes...)
		}
	}
	if len(data) != 1 || data[0] != 0x12 {
		t.Fatalf("emitted bytes = %v, want [0x12]", data)
	}
}
