package asmcore

import "testing"

// TestVariableLabelTwoPhaseUpdate covers S1 from the spec: ]V EQU 5, then
// two successive ]V EQU ]V+1 definitions. The defining expression of
// definition i+1 must resolve ]V to the backing created by definition i,
// not the one being prepared for i+1 (§3, §9 "Variable-label deferral").
func TestVariableLabelTwoPhaseUpdate(t *testing.T) {
	l := NewLocalLabelScope()

	// First definition: no prior backing, so the read-before-define value
	// (if taken) would be the implicit first allocation.
	first := l.VarCurrentName("V")
	if first == "" {
		t.Fatal("expected a backing name on first sighting")
	}

	// Second definition (]V EQU ]V+1): prepare, then the RHS reads the
	// OLD binding.
	pending1 := l.VarPrepareRewrite("V")
	rhsDuringDef2 := l.VarCurrentName("V")
	if rhsDuringDef2 != first {
		t.Fatalf("RHS of definition 2 resolved to %q, want the first backing %q", rhsDuringDef2, first)
	}
	finalized1, err := l.VarFinalize("V")
	if err != nil {
		t.Fatal(err)
	}
	if finalized1 != pending1 {
		t.Fatalf("VarFinalize returned %q, want the prepared pending name %q", finalized1, pending1)
	}

	// Third definition: RHS must now read the just-finalized second
	// backing, not the first.
	pending2 := l.VarPrepareRewrite("V")
	rhsDuringDef3 := l.VarCurrentName("V")
	if rhsDuringDef3 != finalized1 {
		t.Fatalf("RHS of definition 3 resolved to %q, want %q", rhsDuringDef3, finalized1)
	}
	finalized2, err := l.VarFinalize("V")
	if err != nil {
		t.Fatal(err)
	}
	if finalized2 != pending2 {
		t.Fatalf("VarFinalize returned %q, want %q", finalized2, pending2)
	}

	// All three backing names must be distinct.
	if first == finalized1 || finalized1 == finalized2 || first == finalized2 {
		t.Fatalf("expected three distinct backing names, got %q, %q, %q", first, finalized1, finalized2)
	}

	// After definition 3, references resolve to the latest backing.
	if got := l.VarCurrentName("V"); got != finalized2 {
		t.Fatalf("post-definition-3 reference resolved to %q, want %q", got, finalized2)
	}
}

func TestVarFinalizeWithoutPrepareErrors(t *testing.T) {
	l := NewLocalLabelScope()
	if _, err := l.VarFinalize("NEVER_PREPARED"); err == nil {
		t.Fatal("expected an error finalizing a variable label with no pending rewrite")
	}
}

func TestLocalLabelRequiresGlobalContext(t *testing.T) {
	l := NewLocalLabelScope()
	if _, err := l.LocalName("loop"); err == nil {
		t.Fatal("expected an error for a local label before any global label")
	}
	l.SetLastGlobal("START")
	name, err := l.LocalName("loop")
	if err != nil {
		t.Fatal(err)
	}
	if name != "START@loop" {
		t.Fatalf("LocalName = %q, want %q", name, "START@loop")
	}
}

func TestAnonymousLabelCounter(t *testing.T) {
	l := NewLocalLabelScope()
	if _, err := l.AnonymousBackward(); err == nil {
		t.Fatal("expected an error referencing :- before any anonymous label is defined")
	}
	forward := l.AnonymousForward()
	defined := l.DefineAnonymous()
	if forward != defined {
		t.Fatalf("the label that :+ predicted (%q) must match the one actually defined (%q)", forward, defined)
	}
	backward, err := l.AnonymousBackward()
	if err != nil {
		t.Fatal(err)
	}
	if backward != defined {
		t.Fatalf("AnonymousBackward = %q, want %q", backward, defined)
	}
}

func TestPrivateContextIncrementsPerGlobalAndMacroInvocation(t *testing.T) {
	l := NewLocalLabelScope()
	l.SetLastGlobal("A")
	n1 := l.PrivateName(1)
	l.EnterMacroInvocation()
	n2 := l.PrivateName(1)
	if n1 == n2 {
		t.Fatal("private label scope must change across a macro invocation boundary")
	}
	l.SetLastGlobal("B")
	n3 := l.PrivateName(1)
	if n3 == n2 {
		t.Fatal("private label scope must change across a new global label")
	}
}
