package asmcore

import "testing"

func TestErrorListExitCode(t *testing.T) {
	var el ErrorList
	if el.HasErrors() {
		t.Fatal("empty ErrorList should have no errors")
	}
	if el.ExitCode() != 0 {
		t.Fatalf("exit code = %d, want 0", el.ExitCode())
	}

	el.AddWarning(Position{Line: 1}, "just a warning")
	if el.HasErrors() {
		t.Fatal("a warning alone must not count as an error (§7: warnings don't set a failure exit)")
	}
	if el.ExitCode() != 0 {
		t.Fatalf("exit code after warning = %d, want 0", el.ExitCode())
	}

	el.AddError(Position{Filename: "x.s", Line: 3}, KindSyntax, 0, "%s expected", ",")
	if !el.HasErrors() {
		t.Fatal("expected HasErrors true after AddError")
	}
	if el.ExitCode() != 1 {
		t.Fatalf("exit code = %d, want 1", el.ExitCode())
	}
	if el.HasFatal() {
		t.Fatal("a syntax error is not fatal")
	}

	el.AddError(Position{Line: 4}, KindFatal, 0, "chunk count mismatch")
	if !el.HasFatal() {
		t.Fatal("expected HasFatal true after a KindFatal error")
	}
}

func TestPositionString(t *testing.T) {
	p := Position{Filename: "foo.s", Line: 12}
	if got, want := p.String(), "foo.s:12"; got != want {
		t.Fatalf("Position.String() = %q, want %q", got, want)
	}
	p2 := Position{Line: 5}
	if got, want := p2.String(), "5"; got != want {
		t.Fatalf("Position.String() with no filename = %q, want %q", got, want)
	}
}
