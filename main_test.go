package main

import (
	"testing"

	"github.com/lookbusy1344/vasmgo/asmcore"
	"github.com/lookbusy1344/vasmgo/edtasm"
	"github.com/lookbusy1344/vasmgo/merlin"
	"github.com/lookbusy1344/vasmgo/scasm"
)

func TestSelectDialect(t *testing.T) {
	cases := []struct {
		name string
		want interface{}
	}{
		{"", &edtasm.Dialect{}},
		{"edtasm", &edtasm.Dialect{}},
		{"Merlin", &merlin.Dialect{}},
		{"SCASM", &scasm.Dialect{}},
	}
	for _, c := range cases {
		got, err := selectDialect(c.name)
		if err != nil {
			t.Fatalf("selectDialect(%q): %v", c.name, err)
		}
		switch c.want.(type) {
		case *edtasm.Dialect:
			if _, ok := got.(*edtasm.Dialect); !ok {
				t.Fatalf("selectDialect(%q) = %T, want *edtasm.Dialect", c.name, got)
			}
		case *merlin.Dialect:
			if _, ok := got.(*merlin.Dialect); !ok {
				t.Fatalf("selectDialect(%q) = %T, want *merlin.Dialect", c.name, got)
			}
		case *scasm.Dialect:
			if _, ok := got.(*scasm.Dialect); !ok {
				t.Fatalf("selectDialect(%q) = %T, want *scasm.Dialect", c.name, got)
			}
		}
	}

	if _, err := selectDialect("cobol"); err == nil {
		t.Fatal("expected an error for an unknown dialect")
	}
}

func TestDefaultOutputPath(t *testing.T) {
	if got := defaultOutputPath("prog.s", "aof"); got != "prog.aof" {
		t.Fatalf("defaultOutputPath(aof) = %q, want prog.aof", got)
	}
	if got := defaultOutputPath("prog.s", "cmd"); got != "prog.cmd" {
		t.Fatalf("defaultOutputPath(cmd) = %q, want prog.cmd", got)
	}
	if got := defaultOutputPath("dir.with.dots/prog", "aof"); got != "dir.with.dots/prog.aof" {
		t.Fatalf("defaultOutputPath with dotted dir = %q, want dir.with.dots/prog.aof", got)
	}
}

func TestHexOrDec(t *testing.T) {
	if hexOrDec("0x1000") != 16 {
		t.Fatal("expected base 16 for a 0x-prefixed value")
	}
	if hexOrDec("4096") != 10 {
		t.Fatal("expected base 10 for a plain decimal value")
	}
}

func TestAtomKindNameCoversEveryKind(t *testing.T) {
	kinds := []asmcore.AtomKind{
		asmcore.AtomData, asmcore.AtomSpace, asmcore.AtomDataDef, asmcore.AtomLabel,
		asmcore.AtomInstruction, asmcore.AtomROffs, asmcore.AtomAssert, asmcore.AtomSrcLine,
		asmcore.AtomText, asmcore.AtomExprPrint, asmcore.AtomVasmDebug,
	}
	for _, k := range kinds {
		if atomKindName(k) == "?" {
			t.Fatalf("atomKindName(%v) fell through to the default case", k)
		}
	}
}

func TestIncludeDirsSetAppendsAndStringJoins(t *testing.T) {
	var d includeDirs
	if err := d.Set("a"); err != nil {
		t.Fatal(err)
	}
	if err := d.Set("b"); err != nil {
		t.Fatal(err)
	}
	if d.String() != "a,b" {
		t.Fatalf("String() = %q, want a,b", d.String())
	}
}
