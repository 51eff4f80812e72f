package expr

import "fmt"

// Parser builds an Expr tree from a token stream via precedence climbing,
// grounded on the teacher's debugger/expr_parser.go recursive-descent
// structure but stopping at tree construction instead of folding straight
// to a uint32 — the assembler needs to keep SYM/PC leaves around for
// forward references and relocations (§3 Expression, §9 Atom graph).
type Parser struct {
	lex *Lexer
	cur Token
}

func NewParser(src string, opts Options) *Parser {
	p := &Parser{lex: NewLexer(src, opts)}
	p.cur = p.lex.Next()
	return p
}

func (p *Parser) advance() { p.cur = p.lex.Next() }

// Parse parses a full expression and returns the tree plus the byte offset
// into src where parsing stopped (the caller's eol() check uses this to
// verify nothing but whitespace/comment remains, per §4.4).
func Parse(src string, opts Options) (*Expr, int, error) {
	p := NewParser(src, opts)
	e, err := p.parseExpr(0)
	if err != nil {
		return nil, p.lex.pos, err
	}
	return e, p.lex.pos, nil
}

var binPrec = map[TokenType]int{
	TokPipePipe: 1,
	TokAmpAmp:   2,
	TokPipe:     3,
	TokCaret:    4,
	TokAmp:      5,
	TokEq:       6, TokNe: 6,
	TokLt: 7, TokLe: 7, TokGt: 7, TokGe: 7,
	TokLShift: 8, TokRShift: 8,
	TokPlus: 9, TokMinus: 9,
	TokStar: 10, TokSlash: 10, TokPercent: 10,
}

var binOp = map[TokenType]Op{
	TokPipePipe: OpLOr,
	TokAmpAmp:   OpLAnd,
	TokPipe:     OpOr,
	TokCaret:    OpXor,
	TokAmp:      OpAnd,
	TokEq:       OpEq,
	TokNe:       OpNe,
	TokLt:       OpLt,
	TokLe:       OpLe,
	TokGt:       OpGt,
	TokGe:       OpGe,
	TokLShift:   OpShl,
	TokRShift:   OpShr,
	TokPlus:     OpAdd,
	TokMinus:    OpSub,
	TokStar:     OpMul,
	TokSlash:    OpDiv,
	TokPercent:  OpMod,
}

func (p *Parser) parseExpr(minPrec int) (*Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		prec, ok := binPrec[p.cur.Type]
		if !ok || prec < minPrec {
			return left, nil
		}
		op := binOp[p.cur.Type]
		p.advance()
		right, err := p.parseExpr(prec + 1)
		if err != nil {
			return nil, err
		}
		left = Binary(op, left, right)
	}
}

func (p *Parser) parseUnary() (*Expr, error) {
	switch p.cur.Type {
	case TokMinus:
		p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Unary(OpNeg, x), nil
	case TokPlus:
		p.advance()
		return p.parseUnary()
	case TokTilde:
		p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Unary(OpNot, x), nil
	case TokBang:
		p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Unary(OpLNot, x), nil
	default:
		return p.parsePrimary()
	}
}

func (p *Parser) parsePrimary() (*Expr, error) {
	switch p.cur.Type {
	case TokNumber:
		v := p.cur.Num
		p.advance()
		return Number(v), nil
	case TokLParen:
		p.advance()
		e, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		if p.cur.Type != TokRParen {
			return nil, fmt.Errorf(") expected")
		}
		p.advance()
		return e, nil
	case TokIdent:
		name := p.cur.Text
		p.advance()
		if name == "*" || name == "." {
			return CurrentPC(), nil
		}
		return Symbol(name), nil
	case TokStar:
		// '*' lexed as an operator when not consumed as current-PC by the
		// caller's identifier path; treat bare '*' as current PC too.
		p.advance()
		return CurrentPC(), nil
	default:
		return nil, fmt.Errorf("identifier expected")
	}
}
