package asmcore

import "strings"

// LineShims bundles per-dialect character-class predicates (§4.2 Lexical
// Shims): is-ident-start, is-ident-char, is-comment, is-eol. Each dialect
// supplies its own set rather than this package trying to parameterize a
// single shared lexer (§9: "dialect lexers are not orthogonal").
type LineShims struct {
	IsIdentStart     func(byte) bool
	IsIdentChar      func(byte) bool
	CommentChar      byte
	ColumnOneComment bool // '*' in column 1 is a full-line comment
}

// Fields is the result of splitting one logical source line into its
// label/mnemonic/operand parts, with any trailing inline comment removed.
type Fields struct {
	Label      string
	Spaced     bool // true if the line did not start in column 1
	Mnemonic   string
	Operand    string
	FullLine   bool // true if the entire line was a comment or blank
}

// SplitLine implements the first phase of §4.3's label-field parser: is
// this a comment line, does it start spaced (so the first token is
// definitely not a label), and what are the raw mnemonic/operand texts.
// It does not resolve label taxonomy (anonymous/local/variable/private) —
// that is dialect-specific and layered on top by each dialect package.
func SplitLine(raw string, shims LineShims) Fields {
	line := stripTrailingNewline(raw)
	if line == "" {
		return Fields{FullLine: true}
	}
	if shims.ColumnOneComment && line[0] == '*' {
		return Fields{FullLine: true}
	}
	if line[0] == shims.CommentChar {
		return Fields{FullLine: true}
	}

	spaced := line[0] == ' ' || line[0] == '\t'
	withoutComment := stripInlineComment(line, shims.CommentChar)
	trimmed := strings.TrimLeft(withoutComment, " \t")
	if trimmed == "" {
		return Fields{FullLine: true}
	}

	var f Fields
	f.Spaced = spaced

	rest := withoutComment
	if !spaced {
		// Unspaced token at column 0: candidate label (or directive, the
		// caller distinguishes via its directive table).
		i := 0
		for i < len(rest) && !isSpaceByte(rest[i]) {
			i++
		}
		f.Label = rest[:i]
		rest = rest[i:]
	}

	rest = strings.TrimLeft(rest, " \t")
	if rest == "" {
		return f
	}

	i := 0
	for i < len(rest) && !isSpaceByte(rest[i]) {
		i++
	}
	f.Mnemonic = rest[:i]
	f.Operand = strings.Trim(rest[i:], " \t")
	return f
}

func isSpaceByte(b byte) bool { return b == ' ' || b == '\t' }

func stripTrailingNewline(s string) string {
	s = strings.TrimRight(s, "\r\n")
	return s
}

// stripInlineComment removes a trailing `; comment`, respecting string
// literals so a `;` inside quotes doesn't truncate the line.
func stripInlineComment(s string, commentChar byte) string {
	inStr := false
	var strDelim byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr {
			if c == strDelim {
				inStr = false
			}
			continue
		}
		if c == '"' || c == '\'' {
			inStr = true
			strDelim = c
			continue
		}
		if c == commentChar {
			return s[:i]
		}
	}
	return s
}

// EOLCheck implements the "remainder of the line must be empty aside from
// whitespace/comment" rule a directive handler enforces after consuming
// its operands (§4.4), unless igntrail suppresses the warning.
func EOLCheck(remainder string, commentChar byte, igntrail bool) bool {
	if igntrail {
		return true
	}
	t := strings.TrimLeft(remainder, " \t")
	return t == "" || t[0] == commentChar
}
