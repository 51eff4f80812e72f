package asmcore

import "testing"

func TestConditionalBasicIfElseEndif(t *testing.T) {
	c := NewConditionalStack(256)
	if !c.Active() {
		t.Fatal("empty stack should be active (top level always taken)")
	}

	if err := c.Push(false); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if c.Active() {
		t.Fatal("expected inactive inside a false IF")
	}

	if err := c.Else(); err != nil {
		t.Fatalf("Else: %v", err)
	}
	if !c.Active() {
		t.Fatal("expected active inside ELSE of a false IF")
	}

	if _, err := c.End(false); err != nil {
		t.Fatalf("End: %v", err)
	}
	if c.Depth() != 0 {
		t.Fatalf("Depth = %d, want 0", c.Depth())
	}
	if err := c.CheckEOF(); err != nil {
		t.Fatalf("CheckEOF: %v", err)
	}
}

func TestConditionalNestedSkipNeverFlips(t *testing.T) {
	c := NewConditionalStack(256)
	// Outer IF false: the reduced scanner still pushes/pops inner frames,
	// but none of them should ever become active no matter their own
	// predicate or ELSE (§4.9 table: "otherwise push {taken=false}").
	if err := c.Push(false); err != nil {
		t.Fatal(err)
	}
	if err := c.Push(true); err != nil {
		t.Fatal(err)
	}
	if c.Active() {
		t.Fatal("inner IF true nested inside outer IF false must stay inactive")
	}
	if err := c.Else(); err != nil {
		t.Fatal(err)
	}
	if c.Active() {
		t.Fatal("ELSE inside a skipped outer block must not become active")
	}
}

// TestConditionalTolerantClose covers half of scenario S6: an extra FIN
// after the matching one warns instead of erroring. It does not drive
// Merlin's actual ELSE quirk (TestConditionalMerlinElseDoesNotSuppress
// below covers that) or count emitted atoms — see merlin_test.go for the
// full-source S6 assertion of exactly two NOPs plus one warning.
func TestConditionalTolerantClose(t *testing.T) {
	c := NewConditionalStack(256)
	if err := c.Push(true); err != nil {
		t.Fatal(err)
	}
	if err := c.Else(); err != nil {
		t.Fatal(err)
	}
	if _, err := c.End(false); err != nil {
		t.Fatalf("matching End: %v", err)
	}

	warned, err := c.End(true) // tolerant extra FIN
	if err != nil {
		t.Fatalf("tolerant End returned an error: %v", err)
	}
	if !warned {
		t.Fatal("expected the tolerant extra End to report warned=true")
	}

	_, err = c.End(false) // strict extra FIN (e.g. SCASM ENDIF) must error
	if err == nil {
		t.Fatal("expected an error from a non-tolerant unmatched End")
	}
}

// TestConditionalMerlinElseDoesNotSuppress exercises §9's documented quirk:
// Merlin's ELSE never suppresses a branch already taken, unlike the clean
// if/else implemented by Else(). This is the half of scenario S6 that
// explains why `DO 1` / `ELSE` / body leaves the body active.
func TestConditionalMerlinElseDoesNotSuppress(t *testing.T) {
	c := NewConditionalStack(256)
	if err := c.Push(true); err != nil {
		t.Fatal(err)
	}
	if err := c.ElseMerlin(); err != nil {
		t.Fatalf("ElseMerlin: %v", err)
	}
	if !c.Active() {
		t.Fatal("Merlin ELSE must not suppress a branch that was already taken")
	}

	// But it still behaves like a normal ELSE when the enclosing DO/IF was
	// false: a false frame does flip to true.
	d := NewConditionalStack(256)
	if err := d.Push(false); err != nil {
		t.Fatal(err)
	}
	if err := d.ElseMerlin(); err != nil {
		t.Fatalf("ElseMerlin: %v", err)
	}
	if !d.Active() {
		t.Fatal("Merlin ELSE of a false DO/IF should still activate")
	}
}

func TestConditionalMaxDepth(t *testing.T) {
	c := NewConditionalStack(2)
	if err := c.Push(true); err != nil {
		t.Fatal(err)
	}
	if err := c.Push(true); err != nil {
		t.Fatal(err)
	}
	if err := c.Push(true); err == nil {
		t.Fatal("expected an error once nesting exceeds max depth")
	}
}

func TestConditionalElseIfOnlyBeforeElse(t *testing.T) {
	c := NewConditionalStack(256)
	if err := c.Push(false); err != nil {
		t.Fatal(err)
	}
	if err := c.ElseIf(true); err != nil {
		t.Fatalf("ElseIf before Else: %v", err)
	}
	if !c.Active() {
		t.Fatal("ElseIf with a true predicate should activate")
	}
	if err := c.Else(); err != nil {
		t.Fatal(err)
	}
	if err := c.ElseIf(true); err == nil {
		t.Fatal("expected ElseIf after Else to be rejected")
	}
}
