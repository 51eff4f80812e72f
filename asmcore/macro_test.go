package asmcore

import "testing"

func TestExpandEscapesMerlinPositional(t *testing.T) {
	inv := &Invocation{Positional: []string{"A,X", "$10"}, UniqueID: 7}
	out, err := ExpandEscapes("LDA ]1,]2", EscapeMerlin, inv)
	if err != nil {
		t.Fatal(err)
	}
	if want := "LDA A,X,$10"; out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestExpandEscapesMerlinUniqueAndCount(t *testing.T) {
	inv := &Invocation{Positional: []string{"X", "Y"}, UniqueID: 3}
	out, err := ExpandEscapes("L\\@ ]0", EscapeMerlin, inv)
	if err != nil {
		t.Fatal(err)
	}
	if want := "L_000003 2"; out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestExpandEscapesSCASMPositionalAndCount(t *testing.T) {
	inv := &Invocation{Positional: []string{"1", "2", "3"}, UniqueID: 1}
	out, err := ExpandEscapes("DB ]1,]2,]3 ; ]#", EscapeSCASM, inv)
	if err != nil {
		t.Fatal(err)
	}
	if want := "DB 1,2,3 ; 3"; out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

// TestExpandEscapesEDTASMDoubled covers S3: EDTASM requires the doubled
// backslash form, and #'X has already been rewritten to #$58 upstream.
func TestExpandEscapesEDTASMDoubled(t *testing.T) {
	inv := &Invocation{Positional: []string{"#$58"}, UniqueID: 1}
	out, err := ExpandEscapes("LD  A,\\\\1", EscapeEDTASM, inv)
	if err != nil {
		t.Fatal(err)
	}
	if want := "LD  A,#$58"; out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestExpandEscapesEDTASMUniqueAndLocalLabel(t *testing.T) {
	inv := &Invocation{UniqueID: 42, LocalLabel: func(s string) string { return "GLOBAL@" + s }}
	out, err := ExpandEscapes("\\\\.loop \\\\@", EscapeEDTASM, inv)
	if err != nil {
		t.Fatal(err)
	}
	if want := "GLOBAL@loop _000042"; out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestExpandEscapesMissingParameterErrors(t *testing.T) {
	inv := &Invocation{Positional: nil, UniqueID: 1}
	if _, err := ExpandEscapes("LDA \\1", EscapeMerlin, inv); err == nil {
		t.Fatal("expected an error referencing an unsupplied parameter")
	}
}

// TestMacroTableUniqueIDsMonotone covers §8: "the \@ / ]0 unique token
// within the expansion is distinct from any prior or later invocation's
// token".
func TestMacroTableUniqueIDsMonotone(t *testing.T) {
	mt := NewMacroTable()
	seen := map[int]bool{}
	for i := 0; i < 5; i++ {
		id := mt.NextUniqueID()
		if seen[id] {
			t.Fatalf("unique id %d repeated", id)
		}
		seen[id] = true
	}
}

func TestMacroTableDefineLookupCaseInsensitiveName(t *testing.T) {
	mt := NewMacroTable()
	mt.Define(&Macro{Name: "Print", Body: []string{"NOP"}})
	if !mt.Defined("PRINT") {
		t.Fatal("macro names must resolve case-insensitively")
	}
	m, ok := mt.Lookup("print")
	if !ok || m.Name != "Print" {
		t.Fatal("Lookup failed for a differently-cased macro name")
	}
}
