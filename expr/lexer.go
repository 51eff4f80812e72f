package expr

import (
	"strconv"
	"strings"
)

// TokenType enumerates the lexical classes the expression lexer produces,
// mirroring the shape of the teacher's debugger/expr_lexer.go token set
// but trimmed to what an assembler operand expression needs.
type TokenType int

const (
	TokEOF TokenType = iota
	TokNumber
	TokIdent
	TokPlus
	TokMinus
	TokStar
	TokSlash
	TokPercent
	TokAmp
	TokPipe
	TokCaret
	TokTilde
	TokLShift
	TokRShift
	TokLParen
	TokRParen
	TokBang
	TokAmpAmp
	TokPipePipe
	TokEq
	TokNe
	TokLt
	TokLe
	TokGt
	TokGe
	TokDollarHex // $abcd, consumed whole as a number at lex time
)

type Token struct {
	Type TokenType
	Text string
	Num  int64
}

// Options tunes the lexer for a dialect's number-prefix grammar (§4.2).
// Each dialect package supplies its own Options rather than a shared flag
// bag, per the spec's "dialect lexers are not orthogonal" design note.
type Options struct {
	DollarIsHex    bool // $ABCD
	PercentIsBin   bool // %1010
	AtIsOctalOrBin bool // @17 (octal) - dialect decides which via AtIsBin
	AtIsBin        bool
	NoCPrefix      bool // disable 0x/0b/0nnn C-style forms
	NoIntelSuffix  bool // disable trailing h/o/q/d/b suffix forms
	CurrentPCChars string // characters that denote "current PC" in this position, e.g. "*."
}

func DefaultOptions() Options {
	return Options{
		DollarIsHex:    true,
		PercentIsBin:   true,
		NoCPrefix:      false,
		NoIntelSuffix:  false,
		CurrentPCChars: "*",
	}
}

// Lexer tokenizes a single expression substring (the operand field already
// isolated by the dialect's statement splitter).
type Lexer struct {
	src  string
	pos  int
	opts Options
}

func NewLexer(src string, opts Options) *Lexer {
	return &Lexer{src: src, opts: opts}
}

func (l *Lexer) peekByte() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) skipSpace() {
	for l.pos < len(l.src) && (l.src[l.pos] == ' ' || l.src[l.pos] == '\t') {
		l.pos++
	}
}

func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isIdentChar(b byte) bool {
	return isIdentStart(b) || (b >= '0' && b <= '9') || b == '.' || b == '$' || b == '@'
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// Next returns the next token. Number lexing implements the dialect's
// prefix/suffix grammar described in §4.2.
func (l *Lexer) Next() Token {
	l.skipSpace()
	if l.pos >= len(l.src) {
		return Token{Type: TokEOF}
	}
	c := l.src[l.pos]

	if strings.IndexByte(l.opts.CurrentPCChars, c) >= 0 {
		// Always treated as PC, whatever follows; dialects pass in a
		// pre-isolated operand.
		l.pos++
		return Token{Type: TokIdent, Text: string(c)}
	}

	switch c {
	case '+':
		l.pos++
		return Token{Type: TokPlus, Text: "+"}
	case '-':
		l.pos++
		return Token{Type: TokMinus, Text: "-"}
	case '*':
		l.pos++
		return Token{Type: TokStar, Text: "*"}
	case '/':
		l.pos++
		return Token{Type: TokSlash, Text: "/"}
	case '(':
		l.pos++
		return Token{Type: TokLParen, Text: "("}
	case ')':
		l.pos++
		return Token{Type: TokRParen, Text: ")"}
	case '~':
		l.pos++
		return Token{Type: TokTilde, Text: "~"}
	case '^':
		l.pos++
		return Token{Type: TokCaret, Text: "^"}
	case '&':
		l.pos++
		if l.peekByte() == '&' {
			l.pos++
			return Token{Type: TokAmpAmp, Text: "&&"}
		}
		return Token{Type: TokAmp, Text: "&"}
	case '|':
		l.pos++
		if l.peekByte() == '|' {
			l.pos++
			return Token{Type: TokPipePipe, Text: "||"}
		}
		return Token{Type: TokPipe, Text: "|"}
	case '!':
		l.pos++
		if l.peekByte() == '=' {
			l.pos++
			return Token{Type: TokNe, Text: "!="}
		}
		return Token{Type: TokBang, Text: "!"}
	case '=':
		l.pos++
		if l.peekByte() == '=' {
			l.pos++
		}
		return Token{Type: TokEq, Text: "=="}
	case '<':
		l.pos++
		if l.peekByte() == '<' {
			l.pos++
			return Token{Type: TokLShift, Text: "<<"}
		}
		if l.peekByte() == '=' {
			l.pos++
			return Token{Type: TokLe, Text: "<="}
		}
		return Token{Type: TokLt, Text: "<"}
	case '>':
		l.pos++
		if l.peekByte() == '>' {
			l.pos++
			return Token{Type: TokRShift, Text: ">>"}
		}
		if l.peekByte() == '=' {
			l.pos++
			return Token{Type: TokGe, Text: ">="}
		}
		return Token{Type: TokGt, Text: ">"}
	case '%':
		if l.opts.PercentIsBin && l.pos+1 < len(l.src) && (l.src[l.pos+1] == '0' || l.src[l.pos+1] == '1') {
			return l.lexRadixNumber(1, 2)
		}
		l.pos++
		return Token{Type: TokPercent, Text: "%"}
	case '$':
		if l.opts.DollarIsHex {
			return l.lexRadixNumber(1, 16)
		}
	case '@':
		if l.opts.AtIsOctalOrBin {
			radix := 8
			if l.opts.AtIsBin {
				radix = 2
			}
			return l.lexRadixNumber(1, radix)
		}
	case '\'':
		return l.lexCharLiteral()
	}

	if isDigit(c) {
		return l.lexNumber()
	}
	if isIdentStart(c) {
		return l.lexIdent()
	}

	// Unknown character: consume it as a single-char ident to keep the
	// parser from spinning; callers report this as a syntax error.
	l.pos++
	return Token{Type: TokIdent, Text: string(c)}
}

func (l *Lexer) lexRadixNumber(skip, radix int) Token {
	start := l.pos + skip
	p := start
	for p < len(l.src) && isHexDigitFor(l.src[p], radix) {
		p++
	}
	text := l.src[start:p]
	l.pos = p
	v, _ := strconv.ParseInt(text, radix, 64)
	return Token{Type: TokNumber, Text: l.src[l.pos-len(text)-skip : p], Num: v}
}

func isHexDigitFor(b byte, radix int) bool {
	switch {
	case radix <= 10:
		return b >= '0' && b < byte('0'+radix)
	default:
		return isDigit(b) || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
	}
}

// lexNumber implements decimal, 0x/0b/0-octal C-style prefixes (gated by
// NoCPrefix) and the Intel h/o/q/d/b suffix forms (gated by NoIntelSuffix).
func (l *Lexer) lexNumber() Token {
	start := l.pos
	if !l.opts.NoCPrefix && l.peekByte() == '0' && l.pos+1 < len(l.src) {
		switch l.src[l.pos+1] {
		case 'x', 'X':
			l.pos += 2
			return l.lexRadixNumber(0, 16)
		case 'b', 'B':
			l.pos += 2
			return l.lexRadixNumber(0, 2)
		}
	}
	for l.pos < len(l.src) && isAlnum(l.src[l.pos]) {
		l.pos++
	}
	text := l.src[start:l.pos]

	if !l.opts.NoIntelSuffix && len(text) > 1 {
		last := text[len(text)-1]
		switch last {
		case 'h', 'H':
			if v, err := strconv.ParseInt(text[:len(text)-1], 16, 64); err == nil {
				return Token{Type: TokNumber, Text: text, Num: v}
			}
		case 'o', 'O', 'q', 'Q':
			if v, err := strconv.ParseInt(text[:len(text)-1], 8, 64); err == nil {
				return Token{Type: TokNumber, Text: text, Num: v}
			}
		case 'b', 'B':
			if v, err := strconv.ParseInt(text[:len(text)-1], 2, 64); err == nil {
				return Token{Type: TokNumber, Text: text, Num: v}
			}
		}
	}

	// A leading zero is C-style octal unless NoCPrefix is set; digits that
	// are not valid octal (e.g. "08") fall back to decimal.
	if !l.opts.NoCPrefix && len(text) > 1 && text[0] == '0' {
		if v, err := strconv.ParseInt(text[1:], 8, 64); err == nil {
			return Token{Type: TokNumber, Text: text, Num: v}
		}
	}
	if v, err := strconv.ParseInt(text, 10, 64); err == nil {
		return Token{Type: TokNumber, Text: text, Num: v}
	}
	return Token{Type: TokNumber, Text: text, Num: 0}
}

func isAlnum(b byte) bool { return isDigit(b) || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') }

func (l *Lexer) lexIdent() Token {
	start := l.pos
	for l.pos < len(l.src) && isIdentChar(l.src[l.pos]) {
		l.pos++
	}
	return Token{Type: TokIdent, Text: l.src[start:l.pos]}
}

// lexCharLiteral reads 'x' (or the unterminated EDTASM form 'x) and yields
// its numeric value as a TokNumber, matching how the label-field parser
// hands off character literals after the #'x -> #$xx buffer rewrite; this
// path covers bare quoted literals appearing directly in an expression.
func (l *Lexer) lexCharLiteral() Token {
	start := l.pos
	l.pos++ // opening quote
	if l.pos >= len(l.src) {
		return Token{Type: TokNumber, Num: 0}
	}
	ch := l.src[l.pos]
	l.pos++
	if l.pos < len(l.src) && l.src[l.pos] == '\'' {
		l.pos++
	}
	return Token{Type: TokNumber, Text: l.src[start:l.pos], Num: int64(ch)}
}
