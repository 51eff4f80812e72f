package asmcore

import (
	"bytes"
	"testing"
)

func TestReadStringLiteralDoubledDelimiter(t *testing.T) {
	content, delim, consumed, err := ReadStringLiteral(`"it""s"`, StringLiteralOptions{DoubledDelimiter: true})
	if err != nil {
		t.Fatal(err)
	}
	if delim != '"' {
		t.Fatalf("delim = %q, want '\"'", delim)
	}
	if string(content) != `it"s` {
		t.Fatalf("content = %q, want %q", content, `it"s`)
	}
	if consumed != len(`"it""s"`) {
		t.Fatalf("consumed = %d, want %d", consumed, len(`"it""s"`))
	}
}

func TestReadStringLiteralUnterminated(t *testing.T) {
	_, _, _, err := ReadStringLiteral(`"abc`, StringLiteralOptions{})
	if err == nil {
		t.Fatal("expected an error for an unterminated string literal")
	}
}

// TestApplyDelimiterBitTransform covers §4.2's Merlin/SCASM bit-7 rule.
func TestApplyDelimiterBitTransform(t *testing.T) {
	in := []byte("ABC")
	highDelim := ApplyDelimiterBitTransform(in, '"') // 0x22 < 0x27: bit 7 set
	for _, b := range highDelim {
		if b&0x80 == 0 {
			t.Fatalf("expected bit 7 set for delimiter < 0x27, got %08b", b)
		}
	}
	lowDelim := ApplyDelimiterBitTransform(in, '\'') // 0x27: bit 7 clear
	for _, b := range lowDelim {
		if b&0x80 != 0 {
			t.Fatalf("expected bit 7 clear for delimiter >= 0x27, got %08b", b)
		}
	}
}

// TestStringPostProcessingTable covers every transform in §4.6's table.
func TestStringPostProcessingTable(t *testing.T) {
	content := []byte("AB")

	if got := ApplyStringPostProcessing(content, StrAZ); !bytes.Equal(got, []byte("AB\x00")) {
		t.Fatalf("AZ = %v", got)
	}
	if got := ApplyStringPostProcessing(content, StrATorDCI); got[len(got)-1] != ('B' ^ 0x80) {
		t.Fatalf("AT/DCI last byte = %08b", got[len(got)-1])
	}
	if got := ApplyStringPostProcessing(content, StrINV); got[0]&0x80 == 0 || got[1]&0x80 == 0 {
		t.Fatalf("INV = %v, want both bytes with bit 7 set", got)
	}
	if got := ApplyStringPostProcessing([]byte("ABCD"), StrFLS); got[1]&0x80 == 0 || got[3]&0x80 == 0 || got[0]&0x80 != 0 || got[2]&0x80 != 0 {
		t.Fatalf("FLS = %v, want odd indices XORed", got)
	}
	if got := ApplyStringPostProcessing([]byte("ABC"), StrREV); !bytes.Equal(got, []byte("CBA")) {
		t.Fatalf("REV = %v, want CBA", got)
	}
	if got := ApplyStringPostProcessing(content, StrSTR); got[0] != 2 || !bytes.Equal(got[1:], content) {
		t.Fatalf("STR = %v, want length-prefixed %v", got, content)
	}
	if got := ApplyStringPostProcessing(content, StrSTRL); got[0] != 2 || got[1] != 0 || !bytes.Equal(got[2:], content) {
		t.Fatalf("STRL = %v, want 2-byte LE length-prefixed %v", got, content)
	}
	if got := ApplyStringPostProcessing(content, StrFCS); got[len(got)-1] != 'B'+0x80 {
		t.Fatalf("FCS last byte = %d, want %d", got[len(got)-1], 'B'+0x80)
	}
}

func TestRewriteCharLiteral(t *testing.T) {
	// S3: EDTASM #'X (closing quote optional) rewrites to #$58.
	if got, want := RewriteCharLiteral("LD A,#'X"), "LD A,#$58"; got != want {
		t.Fatalf("RewriteCharLiteral = %q, want %q", got, want)
	}
	if got, want := RewriteCharLiteral("LD A,#'X'"), "LD A,#$58"; got != want {
		t.Fatalf("RewriteCharLiteral with closing quote = %q, want %q", got, want)
	}
	if got, want := RewriteCharLiteral("NOP"), "NOP"; got != want {
		t.Fatalf("RewriteCharLiteral with no char literal = %q, want %q", got, want)
	}
}

func TestHexNibbles(t *testing.T) {
	if got, want := HexNibbles("DE.AD, BE EF"), "DEADBEEF"; got != want {
		t.Fatalf("HexNibbles = %q, want %q", got, want)
	}
}
