package expr

import "testing"

// defaultOpts has no CurrentPCChars overlap with '*' so that '*' lexes as
// the multiply operator; dialects that use '*' for current-PC (merlin,
// scasm) never need '*' as multiply in the same grammar (§4.2).
var defaultOpts = Options{
	DollarIsHex:  true,
	PercentIsBin: true,
}

// pcOpts makes '*' denote current PC, as merlin/scasm's exprOpts() do; it
// also adds '.'.
var pcOpts = Options{
	DollarIsHex:    true,
	PercentIsBin:   true,
	CurrentPCChars: "*.",
}

func evalSrc(t *testing.T, src string, r Resolver) int64 {
	t.Helper()
	e, _, err := Parse(src, defaultOpts)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	v, err := Eval(e, r)
	if err != nil {
		t.Fatalf("Eval(%q): %v", src, err)
	}
	return v
}

func evalSrcOpts(t *testing.T, src string, opts Options, r Resolver) int64 {
	t.Helper()
	e, _, err := Parse(src, opts)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	v, err := Eval(e, r)
	if err != nil {
		t.Fatalf("Eval(%q): %v", src, err)
	}
	return v
}

func TestParsePrecedence(t *testing.T) {
	if v := evalSrc(t, "2+3*4", mapResolver{}); v != 14 {
		t.Fatalf("got %d, want 14", v)
	}
	if v := evalSrc(t, "(2+3)*4", mapResolver{}); v != 20 {
		t.Fatalf("got %d, want 20", v)
	}
}

func TestParseNumberBases(t *testing.T) {
	if v := evalSrc(t, "$10", mapResolver{}); v != 16 {
		t.Fatalf("$10 = %d, want 16", v)
	}
	if v := evalSrc(t, "%101", mapResolver{}); v != 5 {
		t.Fatalf("%%101 = %d, want 5", v)
	}
}

func TestParseUnaryAndParens(t *testing.T) {
	if v := evalSrc(t, "-(3+4)", mapResolver{}); v != -7 {
		t.Fatalf("got %d, want -7", v)
	}
}

func TestParseSymbolAndPC(t *testing.T) {
	r := mapResolver{syms: map[string]int64{"FOO": 100}, pc: 0x2000}
	if v := evalSrc(t, "FOO+1", r); v != 101 {
		t.Fatalf("got %d, want 101", v)
	}
	if v := evalSrcOpts(t, "*+2", pcOpts, r); v != 0x2002 {
		t.Fatalf("got 0x%X, want 0x2002", v)
	}
}

func TestParseMissingParenIsAnError(t *testing.T) {
	if _, _, err := Parse("(1+2", defaultOpts); err == nil {
		t.Fatal("expected an error for an unclosed paren")
	}
}
