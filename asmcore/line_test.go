package asmcore

import "testing"

func isIdentStartTest(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
func isIdentCharTest(b byte) bool { return isIdentStartTest(b) || (b >= '0' && b <= '9') }

var testShims = LineShims{
	IsIdentStart:     isIdentStartTest,
	IsIdentChar:      isIdentCharTest,
	CommentChar:      ';',
	ColumnOneComment: true,
}

func TestSplitLineLabelAndMnemonic(t *testing.T) {
	f := SplitLine("START LDA #1 ; load it", testShims)
	if f.FullLine {
		t.Fatal("unexpected FullLine")
	}
	if f.Label != "START" {
		t.Fatalf("Label = %q, want START", f.Label)
	}
	if f.Mnemonic != "LDA" {
		t.Fatalf("Mnemonic = %q, want LDA", f.Mnemonic)
	}
	if f.Operand != "#1" {
		t.Fatalf("Operand = %q, want #1", f.Operand)
	}
}

func TestSplitLineSpacedHasNoLabel(t *testing.T) {
	f := SplitLine("    NOP", testShims)
	if f.Label != "" {
		t.Fatalf("Label = %q, want empty for a spaced line", f.Label)
	}
	if !f.Spaced {
		t.Fatal("expected Spaced = true")
	}
	if f.Mnemonic != "NOP" {
		t.Fatalf("Mnemonic = %q, want NOP", f.Mnemonic)
	}
}

func TestSplitLineColumnOneStarIsComment(t *testing.T) {
	f := SplitLine("* a full line comment", testShims)
	if !f.FullLine {
		t.Fatal("expected a column-1 '*' to be a full-line comment")
	}
}

func TestSplitLineBlankIsFullLine(t *testing.T) {
	if !SplitLine("", testShims).FullLine {
		t.Fatal("expected an empty line to be FullLine")
	}
	if !SplitLine("   ", testShims).FullLine {
		t.Fatal("expected a whitespace-only line to be FullLine")
	}
}

func TestStripInlineCommentRespectsStringLiterals(t *testing.T) {
	f := SplitLine(`START FCC ";not a comment"`, testShims)
	if f.Operand != `";not a comment"` {
		t.Fatalf("Operand = %q, a ';' inside a string literal must not truncate the line", f.Operand)
	}
}

func TestEOLCheck(t *testing.T) {
	if !EOLCheck("   ", ';', false) {
		t.Fatal("trailing whitespace alone should pass EOLCheck")
	}
	if !EOLCheck("  ; trailing comment", ';', false) {
		t.Fatal("trailing comment should pass EOLCheck")
	}
	if EOLCheck("  garbage", ';', false) {
		t.Fatal("trailing garbage should fail EOLCheck when igntrail is false")
	}
	if !EOLCheck("  garbage", ';', true) {
		t.Fatal("trailing garbage should pass EOLCheck when igntrail is true")
	}
}
