// Package edtasm implements the EDTASM-family front end, the ARM/Acorn
// dialect named in spec §1. It is grounded on the teacher's
// parser/parser.go two-pass structure (first pass builds the symbol
// table and atom stream, resolving forward references on a second
// pass-equivalent expression evaluation at AOF-write time) and its
// lexer.go token classification, generalized from ARM-only mnemonics to
// the directive set in §4.4 plus EDTASM's own lexical quirks (§4.2,
// §4.3, §4.7).
package edtasm

import (
	"fmt"
	"strings"

	"github.com/lookbusy1344/vasmgo/asmcore"
	"github.com/lookbusy1344/vasmgo/expr"
	"github.com/lookbusy1344/vasmgo/incres"
)

var shims = asmcore.LineShims{
	IsIdentStart:     isIdentStart,
	IsIdentChar:      isIdentChar,
	CommentChar:      ';',
	ColumnOneComment: true,
}

func isIdentStart(b byte) bool {
	return b == '_' || b == '.' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isIdentChar(b byte) bool {
	return isIdentStart(b) || (b >= '0' && b <= '9')
}

// Dialect implements asmcore.Parser for EDTASM.
type Dialect struct{}

func New() *Dialect { return &Dialect{} }

func (d *Dialect) Init(ctx *asmcore.ParserContext) {
	ctx.Program.DefSect(".text", asmcore.SecCode, ctx.Opts.DefaultOrg)
}

func (d *Dialect) ConstPrefix() string { return "#" }
func (d *Dialect) ConstSuffix() string { return "" }
func (d *Dialect) ChkIdEnd(b byte) bool {
	return b == 0 || b == ' ' || b == '\t' || b == ',' || b == ';' || b == '\n'
}

func (d *Dialect) DefSect(ctx *asmcore.ParserContext, name string) *asmcore.Section {
	return ctx.Program.DefSect(name, asmcore.SecCode, ctx.Opts.DefaultOrg)
}

// GetLocalLabel resolves an EDTASM local label synthesized as `.N`/`:ID`
// scoped to the last global label (§4.3).
func (d *Dialect) GetLocalLabel(ctx *asmcore.ParserContext, id string) (string, error) {
	return ctx.Program.Locals.LocalName(id)
}

// Args implements the macro-invocation argument reader for EDTASM:
// comma-separated, with `<...>` bracketed arguments where `>>` escapes to
// a literal `>` (§4.7).
func (d *Dialect) Args(ctx *asmcore.ParserContext, line string) ([]string, error) {
	var args []string
	i := 0
	for i < len(line) {
		for i < len(line) && line[i] == ' ' {
			i++
		}
		if i >= len(line) {
			break
		}
		if line[i] == '<' {
			var sb strings.Builder
			i++
			for i < len(line) {
				if line[i] == '>' {
					if i+1 < len(line) && line[i+1] == '>' {
						sb.WriteByte('>')
						i += 2
						continue
					}
					i++
					break
				}
				sb.WriteByte(line[i])
				i++
			}
			args = append(args, sb.String())
		} else {
			start := i
			for i < len(line) && line[i] != ',' {
				i++
			}
			args = append(args, strings.TrimSpace(line[start:i]))
		}
		if i < len(line) && line[i] == ',' {
			i++
		}
	}
	return args, nil
}

func (d *Dialect) ParseMacroArg(ctx *asmcore.ParserContext, line string) (string, int, error) {
	args, err := d.Args(ctx, line)
	if err != nil || len(args) == 0 {
		return "", 0, err
	}
	return args[0], len(args[0]), nil
}

// ExpandMacro expands a macro body using the `\\N`/`\\@`/`\\.label` escape
// forms EDTASM requires (doubled backslash, §4.7).
func (d *Dialect) ExpandMacro(ctx *asmcore.ParserContext, m *asmcore.Macro, inv *asmcore.Invocation) ([]string, error) {
	inv.LocalLabel = func(ident string) string {
		name, err := ctx.Program.Locals.LocalName(ident)
		if err != nil {
			return ident
		}
		return name
	}
	out := make([]string, 0, len(m.Body))
	for _, l := range m.Body {
		expanded, err := asmcore.ExpandEscapes(l, asmcore.EscapeEDTASM, inv)
		if err != nil {
			return nil, fmt.Errorf("macro expansion too long: %w", err)
		}
		out = append(out, expanded)
	}
	return out, nil
}

// Parse runs the full single-pass parse over lines, emitting atoms into
// ctx.Program's current section (§2 pipeline).
func (d *Dialect) Parse(ctx *asmcore.ParserContext, lines []string) error {
	ctx.Program.Locals.SetLastGlobal("")
	ctx.Source.PushFile("input", lines)

	for {
		line, ok := ctx.Source.ReadNextLine()
		if !ok {
			break
		}
		ctx.CurrentPos.Line++
		if err := d.parseLine(ctx, line); err != nil {
			ctx.Program.Errors.AddError(ctx.CurrentPos, asmcore.KindSyntax, 0, "%v", err)
		}
	}

	if err := ctx.Program.Conditional.CheckEOF(); err != nil {
		ctx.Program.Errors.AddError(ctx.CurrentPos, asmcore.KindFatal, 0, "%v", err)
	}
	return nil
}

func (d *Dialect) parseLine(ctx *asmcore.ParserContext, raw string) error {
	rewritten := asmcore.RewriteCharLiteral(raw)
	fields := asmcore.SplitLine(rewritten, shims)
	if fields.FullLine {
		return nil
	}

	mnUpper := strings.ToUpper(fields.Mnemonic)

	// Conditional-affecting directives must be recognized even while
	// skipping (§4.9's "reduced line scanner").
	if handled, err := d.handleConditional(ctx, mnUpper, fields.Operand); handled {
		return err
	}
	if !ctx.Program.Conditional.Active() {
		return nil
	}

	// EQU/SET (and bare `=`) and MACRO claim the label field themselves —
	// it becomes an equate/abs symbol or a macro name, not a LABSYM bound
	// to the current PC (§4.5, §4.7). Every other mnemonic binds an
	// ordinary positional label first, as usual.
	claimsLabel := mnUpper == "EQU" || mnUpper == "SET" || fields.Mnemonic == "=" || mnUpper == "MACRO" || mnUpper == "MAC"
	if fields.Label != "" && !claimsLabel {
		if err := d.bindLabel(ctx, fields.Label); err != nil {
			return err
		}
	}

	if fields.Mnemonic == "" {
		return nil
	}

	if mnUpper == "EQU" || mnUpper == "SET" || fields.Mnemonic == "=" {
		return d.defineEquOrSet(ctx, fields.Label, fields.Operand, mnUpper == "SET")
	}
	if mnUpper == "MACRO" || mnUpper == "MAC" {
		return d.defineMacro(ctx, fields.Label)
	}

	if h, ok := directives[mnUpper]; ok {
		return h(d, ctx, fields.Operand)
	}

	if m, ok := ctx.Program.Macros.Lookup(mnUpper); ok {
		return d.invokeMacro(ctx, m, fields.Operand)
	}

	// Otherwise treat as a CPU instruction: record an instruction atom.
	// The actual encoding happens later via the encoder package, an
	// external collaborator per §1.
	return d.emitInstruction(ctx, fields.Mnemonic, fields.Operand)
}

func (d *Dialect) bindLabel(ctx *asmcore.ParserContext, label string) error {
	if strings.HasPrefix(label, ":") {
		name, err := ctx.Program.Locals.LocalName(label[1:])
		if err != nil {
			return err
		}
		return d.defineLabelAt(ctx, name)
	}
	ctx.Program.Locals.SetLastGlobal(label)
	return d.defineLabelAt(ctx, label)
}

func (d *Dialect) defineLabelAt(ctx *asmcore.ParserContext, name string) error {
	sym, err := ctx.Program.Symbols.Define(name, asmcore.SymLabsym, false)
	if err != nil {
		return err
	}
	sec := ctx.Program.Current
	sym.Section = sec
	sym.Value = sec.PC
	sym.Defined = true
	sec.Append(&asmcore.Atom{Kind: asmcore.AtomLabel, Align: 1, Pos: ctx.CurrentPos, Symbol: sym})
	return nil
}

func (d *Dialect) emitInstruction(ctx *asmcore.ParserContext, mnemonic, operand string) error {
	cond, base := splitCondition(mnemonic)
	setFlags := strings.HasSuffix(base, "S") && len(base) > 1
	ops := splitOperands(operand)
	inst := &asmcore.Instruction{Mnemonic: base, Condition: cond, SetFlags: setFlags, Operands: ops, Pos: ctx.CurrentPos}
	sec := ctx.Program.Current
	sec.Append(&asmcore.Atom{Kind: asmcore.AtomInstruction, Align: 4, Pos: ctx.CurrentPos,
		Mnemonic: inst.Mnemonic, Operands: inst.Operands, Qualifiers: []string{inst.Condition}})
	return nil
}

func splitCondition(mnemonic string) (cond, base string) {
	conds := []string{"EQ", "NE", "CS", "HS", "CC", "LO", "MI", "PL", "VS", "VC", "HI", "LS", "GE", "LT", "GT", "LE", "AL"}
	for _, c := range conds {
		if strings.HasSuffix(mnemonic, c) && len(mnemonic) > len(c) {
			return c, strings.TrimSuffix(mnemonic, c)
		}
	}
	return "", mnemonic
}

func splitOperands(operand string) []string {
	if operand == "" {
		return nil
	}
	parts := strings.Split(operand, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

func (d *Dialect) invokeMacro(ctx *asmcore.ParserContext, m *asmcore.Macro, operand string) error {
	ctx.Program.Locals.EnterMacroInvocation()
	args, _ := d.Args(ctx, operand)
	uid := ctx.Program.Macros.NextUniqueID()
	inv := &asmcore.Invocation{Positional: args, UniqueID: uid}
	body, err := d.ExpandMacro(ctx, m, inv)
	if err != nil {
		return err
	}
	ctx.Source.PushMacro(m.Name, body, args, nil)
	return nil
}

func (d *Dialect) handleConditional(ctx *asmcore.ParserContext, mnemonic, operand string) (bool, error) {
	switch mnemonic {
	case "COND", "IF":
		v, err := d.evalCond(ctx, operand)
		if err != nil {
			v = false
		}
		return true, ctx.Program.Conditional.Push(v)
	case "IFDEF":
		_, ok := ctx.Program.Symbols.Lookup(strings.TrimSpace(operand))
		return true, ctx.Program.Conditional.Push(ok)
	case "IFND", "IFNDEF":
		_, ok := ctx.Program.Symbols.Lookup(strings.TrimSpace(operand))
		return true, ctx.Program.Conditional.Push(!ok)
	case "IFC", "IFNC":
		a, b := splitCommaPair(operand)
		eq := a == b
		if mnemonic == "IFNC" {
			eq = !eq
		}
		return true, ctx.Program.Conditional.Push(eq)
	case "IFB", "IFNB":
		blank := strings.TrimSpace(operand) == ""
		if mnemonic == "IFNB" {
			blank = !blank
		}
		return true, ctx.Program.Conditional.Push(blank)
	case "ELSE":
		return true, ctx.Program.Conditional.Else()
	case "ELSEIF":
		v, err := d.evalCond(ctx, operand)
		if err != nil {
			v = false
		}
		return true, ctx.Program.Conditional.ElseIf(v)
	case "ENDIF", "ENDC":
		_, err := ctx.Program.Conditional.End(false)
		return true, err
	}
	return false, nil
}

// splitCommaPair splits an IFC/IFNC operand of the form "str1,str2" into
// its two trimmed halves.
func splitCommaPair(operand string) (string, string) {
	parts := strings.SplitN(operand, ",", 2)
	if len(parts) != 2 {
		return strings.TrimSpace(operand), ""
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

func (d *Dialect) evalCond(ctx *asmcore.ParserContext, operand string) (bool, error) {
	e, _, err := expr.Parse(operand, expr.DefaultOptions())
	if err != nil {
		return false, err
	}
	v, err := expr.Eval(e, ctx.Program.Symbols.Resolver(ctx.Program.Current.PC))
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

type directiveHandler func(*Dialect, *asmcore.ParserContext, string) error

var directives map[string]directiveHandler

func init() {
	directives = map[string]directiveHandler{
		"ORG":    (*Dialect).dirOrg,
		"DB":     (*Dialect).dirByte,
		"FCB":    (*Dialect).dirByte,
		"BYTE":   (*Dialect).dirByte,
		"DW":     (*Dialect).dirWord,
		"FDB":    (*Dialect).dirWord,
		"WORD":   (*Dialect).dirWord,
		"DS":     (*Dialect).dirSpace,
		"RMB":    (*Dialect).dirSpace,
		"BLKB":   (*Dialect).dirSpace,
		"ASC":    (*Dialect).dirString,
		"AS":     (*Dialect).dirString,
		"AZ":     (*Dialect).dirStringZ,
		"FCS":    (*Dialect).dirFcs,
		"DCI":    (*Dialect).dirDci,
		"INV":    (*Dialect).dirInv,
		"FLS":    (*Dialect).dirFls,
		"REV":    (*Dialect).dirRev,
		"STR":    (*Dialect).dirStr,
		"STRL":   (*Dialect).dirStrl,
		"HEX":    (*Dialect).dirHex,
		"HS":     (*Dialect).dirHex,
		"HX":     (*Dialect).dirHex,
		"DDB":    (*Dialect).dirDdb,
		"DL":     (*Dialect).dirDl,
		"DA":     (*Dialect).dirDa,
		"ADRL":   (*Dialect).dirDl,
		"BLKW":   (*Dialect).dirBlkw,
		"BLKL":   (*Dialect).dirBlkl,
		"REPT":   (*Dialect).dirRept,
		"ENDR":   (*Dialect).dirEndr,
		"MEXIT":  (*Dialect).dirMexit,
		"EXITMACRO": (*Dialect).dirMexit,
		"EVEN":   (*Dialect).dirEven,
		"ODD":    (*Dialect).dirOdd,
		"ALIGN":  (*Dialect).dirAlign,
		"XDEF":   (*Dialect).dirXdef,
		"XREF":   (*Dialect).dirXref,
		"GLOBAL": (*Dialect).dirXdef,
		"EXTERN": (*Dialect).dirXref,
		"WEAK":   (*Dialect).dirWeak,
		"LOCAL":  (*Dialect).dirLocalSym,
		"COMM":   (*Dialect).dirComm,
		"INCLUDE": (*Dialect).dirInclude,
		"INCBIN":  (*Dialect).dirIncbin,
		"ASSERT":  (*Dialect).dirAssert,
		"FAIL":    (*Dialect).dirFail,
		"ECHO":    (*Dialect).dirEcho,
		"PRINTT":  (*Dialect).dirEcho,
		"PRINTV":  (*Dialect).dirEcho,
		"LIST":    (*Dialect).dirNoop,
		"NOLIST":  (*Dialect).dirNoop,
		"PAGE":    (*Dialect).dirNoop,
		"PLEN":    (*Dialect).dirNoop,
		"TITLE":   (*Dialect).dirNoop,
		"IDNT":    (*Dialect).dirNoop,
		"DSOURCE": (*Dialect).dirNoop,
		"OPT":     (*Dialect).dirNoop,
		"OUTPUT":  (*Dialect).dirNoop,
		"DAT":     (*Dialect).dirNoop,
		"INCDIR":  (*Dialect).dirIncdir,
		"IN":      (*Dialect).dirInclude,
		"INB":     (*Dialect).dirIncbin,
		"USR":     (*Dialect).dirNoop,
		"ERR":     (*Dialect).dirFail,
		"CHK":     (*Dialect).dirNoop,
	}
}

// dirNoop handles directives that only affect native listing pagination or
// are meaningless to a cross-assembler (§1 Non-goals, §4.4's
// unsupported-in-cross-assembly table): accepted and ignored.
func (d *Dialect) dirNoop(ctx *asmcore.ParserContext, operand string) error { return nil }

// dirFail/ERR force a reported error unconditionally, same semantics as a
// failed ASSERT (§4.4's "Listing & misc" group).
func (d *Dialect) dirFail(ctx *asmcore.ParserContext, operand string) error {
	return fmt.Errorf("FAIL: %s", strings.TrimSpace(operand))
}

// dirEcho implements ECHO/PRINTT/PRINTV: emit a TEXT atom carrying the
// operand, consumed by the listing layer rather than the object writers.
func (d *Dialect) dirEcho(ctx *asmcore.ParserContext, operand string) error {
	ctx.Program.Current.Append(&asmcore.Atom{Kind: asmcore.AtomText, Align: 1, Pos: ctx.CurrentPos, Text: operand})
	return nil
}

// dirAssert implements ASSERT expr[,"msg"] (§4.4, §8 invariant): emits an
// ASSERT atom and reports a failure immediately if the expression is
// constant-foldable to zero.
func (d *Dialect) dirAssert(ctx *asmcore.ParserContext, operand string) error {
	exprText, msg := splitCommaPair(operand)
	v, err := d.constExpr(ctx, exprText)
	if err != nil {
		return err
	}
	ctx.Program.Current.Append(&asmcore.Atom{Kind: asmcore.AtomAssert, Align: 1, Pos: ctx.CurrentPos,
		AssertExprText: exprText, AssertMsg: msg})
	if v == 0 {
		return fmt.Errorf("assertion failed: %s", exprText)
	}
	return nil
}

// dirIncdir adds a directory to the include-path search list used by
// subsequent INCLUDE/INCBIN directives (§4.4, §6).
func (d *Dialect) dirIncdir(ctx *asmcore.ParserContext, operand string) error {
	dir := unquoteFilename(strings.TrimSpace(operand))
	if dir == "" {
		return fmt.Errorf("INCDIR requires a path")
	}
	ctx.Opts.IncludePaths = append(ctx.Opts.IncludePaths, dir)
	return nil
}

// dirInclude implements the Line Source's include-file nesting (§1, §6).
func (d *Dialect) dirInclude(ctx *asmcore.ParserContext, operand string) error {
	name := unquoteFilename(strings.TrimSpace(operand))
	lines, err := incres.New(ctx.Opts.IncludePaths).ReadLines(name)
	if err != nil {
		return err
	}
	ctx.Source.PushFile(name, lines)
	return nil
}

// dirIncbin implements `INCBIN "file"[,offset[,length]]` (§1, §5 I/O: "a
// file range into a single DATA atom in one shot").
func (d *Dialect) dirIncbin(ctx *asmcore.ParserContext, operand string) error {
	nameField, rest := splitCommaPair(operand)
	name := unquoteFilename(strings.TrimSpace(nameField))

	var offset, length int64
	if rest != "" {
		offField, lenField := splitCommaPair(rest)
		v, err := d.constExpr(ctx, offField)
		if err != nil {
			return fmt.Errorf("INCBIN offset: %w", err)
		}
		offset = v
		if lenField != "" {
			v, err := d.constExpr(ctx, lenField)
			if err != nil {
				return fmt.Errorf("INCBIN length: %w", err)
			}
			length = v
		}
	}

	data, err := incres.New(ctx.Opts.IncludePaths).ReadBinary(name, offset, length)
	if err != nil {
		return err
	}
	ctx.Program.Current.Append(&asmcore.Atom{Kind: asmcore.AtomData, Align: 1, Pos: ctx.CurrentPos, Bytes: data})
	return nil
}

// unquoteFilename strips one layer of matching quotes from an include
// operand.
func unquoteFilename(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func (d *Dialect) dirOrg(ctx *asmcore.ParserContext, operand string) error {
	v, err := d.constExpr(ctx, operand)
	if err != nil {
		return err
	}
	ctx.Program.Current.Org = uint32(v)
	ctx.Program.Current.PC = uint32(v)
	return nil
}

func (d *Dialect) constExpr(ctx *asmcore.ParserContext, operand string) (int64, error) {
	e, _, err := expr.Parse(operand, expr.DefaultOptions())
	if err != nil {
		return 0, err
	}
	return expr.Eval(e, ctx.Program.Symbols.Resolver(ctx.Program.Current.PC))
}

// defineEquOrSet implements §4.5: EQU/`=` creates an immutable equate;
// SET creates or rebinds a mutable abs symbol. EDTASM has no `]NAME`
// variable labels, so no pending/finalize phase is needed here (that is
// Merlin/SCASM territory, §4.3/§4.5/§9).
func (d *Dialect) defineEquOrSet(ctx *asmcore.ParserContext, label, operand string, mutable bool) error {
	if label == "" {
		return fmt.Errorf("EQU/SET requires a label")
	}
	v, err := d.constExpr(ctx, operand)
	if err != nil {
		return err
	}
	sym, err := ctx.Program.Symbols.Define(label, asmcore.SymExpression, mutable)
	if err != nil {
		return err
	}
	sym.Value = uint32(v)
	sym.Defined = true
	return nil
}

func (d *Dialect) dirByte(ctx *asmcore.ParserContext, operand string) error {
	parts := splitOperands(operand)
	var bytes []byte
	for _, p := range parts {
		v, err := d.constExpr(ctx, p)
		if err != nil {
			return err
		}
		bytes = append(bytes, byte(v))
	}
	ctx.Program.Current.Append(&asmcore.Atom{Kind: asmcore.AtomData, Align: 1, Pos: ctx.CurrentPos, Bytes: bytes})
	return nil
}

func (d *Dialect) dirWord(ctx *asmcore.ParserContext, operand string) error {
	parts := splitOperands(operand)
	var bytes []byte
	for _, p := range parts {
		v, err := d.constExpr(ctx, p)
		if err != nil {
			return err
		}
		bytes = append(bytes, byte(v), byte(v>>8))
	}
	ctx.Program.Current.Append(&asmcore.Atom{Kind: asmcore.AtomData, Align: 1, Pos: ctx.CurrentPos, Bytes: bytes})
	return nil
}

func (d *Dialect) dirSpace(ctx *asmcore.ParserContext, operand string) error {
	v, err := d.constExpr(ctx, operand)
	if err != nil {
		return err
	}
	ctx.Program.Current.Append(&asmcore.Atom{Kind: asmcore.AtomSpace, Align: 1, Pos: ctx.CurrentPos, Count: int(v), ElemSz: 1, NoFill: true})
	return nil
}

func (d *Dialect) dirString(ctx *asmcore.ParserContext, operand string) error {
	content, _, _, err := asmcore.ReadStringLiteral(strings.TrimSpace(operand), asmcore.StringLiteralOptions{AllowEscapes: true})
	if err != nil {
		return err
	}
	ctx.Program.Current.Append(&asmcore.Atom{Kind: asmcore.AtomData, Align: 1, Pos: ctx.CurrentPos, Bytes: content})
	return nil
}

func (d *Dialect) dirStringZ(ctx *asmcore.ParserContext, operand string) error {
	return d.stringDirective(ctx, operand, asmcore.StrAZ)
}

// stringDirective shares the read-literal-then-postprocess-then-emit
// pattern across every string directive variant in §4.6's bit-exact table.
func (d *Dialect) stringDirective(ctx *asmcore.ParserContext, operand string, kind asmcore.StringDirective) error {
	content, _, _, err := asmcore.ReadStringLiteral(strings.TrimSpace(operand), asmcore.StringLiteralOptions{AllowEscapes: true})
	if err != nil {
		return err
	}
	content = asmcore.ApplyStringPostProcessing(content, kind)
	ctx.Program.Current.Append(&asmcore.Atom{Kind: asmcore.AtomData, Align: 1, Pos: ctx.CurrentPos, Bytes: content})
	return nil
}

func (d *Dialect) dirFcs(ctx *asmcore.ParserContext, operand string) error {
	return d.stringDirective(ctx, operand, asmcore.StrFCS)
}

func (d *Dialect) dirDci(ctx *asmcore.ParserContext, operand string) error {
	return d.stringDirective(ctx, operand, asmcore.StrATorDCI)
}

func (d *Dialect) dirInv(ctx *asmcore.ParserContext, operand string) error {
	return d.stringDirective(ctx, operand, asmcore.StrINV)
}

func (d *Dialect) dirFls(ctx *asmcore.ParserContext, operand string) error {
	return d.stringDirective(ctx, operand, asmcore.StrFLS)
}

func (d *Dialect) dirRev(ctx *asmcore.ParserContext, operand string) error {
	return d.stringDirective(ctx, operand, asmcore.StrREV)
}

func (d *Dialect) dirStr(ctx *asmcore.ParserContext, operand string) error {
	return d.stringDirective(ctx, operand, asmcore.StrSTR)
}

func (d *Dialect) dirStrl(ctx *asmcore.ParserContext, operand string) error {
	return d.stringDirective(ctx, operand, asmcore.StrSTRL)
}

// dirHex implements HEX/HS/HX: a run of raw hex-nibble pairs, with
// separators (`.`, `,`, whitespace) stripped before decoding (§4.6).
func (d *Dialect) dirHex(ctx *asmcore.ParserContext, operand string) error {
	digits := asmcore.HexNibbles(operand)
	if len(digits)%2 != 0 {
		return fmt.Errorf("HEX directive has an odd number of nibbles: %q", operand)
	}
	bytes := make([]byte, 0, len(digits)/2)
	for i := 0; i < len(digits); i += 2 {
		hi, err := hexVal(digits[i])
		if err != nil {
			return err
		}
		lo, err := hexVal(digits[i+1])
		if err != nil {
			return err
		}
		bytes = append(bytes, byte(hi<<4|lo))
	}
	ctx.Program.Current.Append(&asmcore.Atom{Kind: asmcore.AtomData, Align: 1, Pos: ctx.CurrentPos, Bytes: bytes})
	return nil
}

func hexVal(c byte) (int, error) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), nil
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10, nil
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, nil
	}
	return 0, fmt.Errorf("invalid hex digit: %c", c)
}

// dirDdb emits a 3-byte (24-bit) little-endian value per operand, the
// EDTASM "address" data width between DW and DL.
func (d *Dialect) dirDdb(ctx *asmcore.ParserContext, operand string) error {
	parts := splitOperands(operand)
	var bytes []byte
	for _, p := range parts {
		v, err := d.constExpr(ctx, p)
		if err != nil {
			return err
		}
		bytes = append(bytes, byte(v), byte(v>>8), byte(v>>16))
	}
	ctx.Program.Current.Append(&asmcore.Atom{Kind: asmcore.AtomData, Align: 1, Pos: ctx.CurrentPos, Bytes: bytes})
	return nil
}

// dirDl emits a 4-byte little-endian long word; also backs ADRL.
func (d *Dialect) dirDl(ctx *asmcore.ParserContext, operand string) error {
	parts := splitOperands(operand)
	var bytes []byte
	for _, p := range parts {
		v, err := d.constExpr(ctx, p)
		if err != nil {
			return err
		}
		bytes = append(bytes, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
	}
	ctx.Program.Current.Append(&asmcore.Atom{Kind: asmcore.AtomData, Align: 4, Pos: ctx.CurrentPos, Bytes: bytes})
	return nil
}

// dirDa aliases DW: "define address", a 16-bit little-endian value.
func (d *Dialect) dirDa(ctx *asmcore.ParserContext, operand string) error {
	return d.dirWord(ctx, operand)
}

// dirBlkw reserves N uninitialized 16-bit words.
func (d *Dialect) dirBlkw(ctx *asmcore.ParserContext, operand string) error {
	v, err := d.constExpr(ctx, operand)
	if err != nil {
		return err
	}
	ctx.Program.Current.Append(&asmcore.Atom{Kind: asmcore.AtomSpace, Align: 2, Pos: ctx.CurrentPos, Count: int(v), ElemSz: 2, NoFill: true})
	return nil
}

// dirBlkl reserves N uninitialized 32-bit long words.
func (d *Dialect) dirBlkl(ctx *asmcore.ParserContext, operand string) error {
	v, err := d.constExpr(ctx, operand)
	if err != nil {
		return err
	}
	ctx.Program.Current.Append(&asmcore.Atom{Kind: asmcore.AtomSpace, Align: 4, Pos: ctx.CurrentPos, Count: int(v), ElemSz: 4, NoFill: true})
	return nil
}

// dirMexit implements MEXIT/EXITMACRO: unwind the source stack up through
// the innermost macro frame (§4.7 Scopes).
func (d *Dialect) dirMexit(ctx *asmcore.ParserContext, operand string) error {
	return ctx.Source.ExitMacro()
}

// dirOdd pads with one byte if PC is currently even, the complement of
// EVEN.
func (d *Dialect) dirOdd(ctx *asmcore.ParserContext, operand string) error {
	sec := ctx.Program.Current
	if sec.PC%2 == 0 {
		sec.Append(&asmcore.Atom{Kind: asmcore.AtomSpace, Align: 1, Count: 1, ElemSz: 1, Pos: ctx.CurrentPos})
	}
	return nil
}

// dirAlign pads to the next multiple of the operand's evaluated boundary.
func (d *Dialect) dirAlign(ctx *asmcore.ParserContext, operand string) error {
	n, err := d.constExpr(ctx, operand)
	if err != nil {
		return err
	}
	if n <= 0 {
		return fmt.Errorf("ALIGN boundary must be positive, got %d", n)
	}
	sec := ctx.Program.Current
	rem := sec.PC % uint32(n)
	if rem == 0 {
		return nil
	}
	pad := int(uint32(n) - rem)
	sec.Append(&asmcore.Atom{Kind: asmcore.AtomSpace, Align: 1, Count: pad, ElemSz: 1, Pos: ctx.CurrentPos})
	return nil
}

// dirWeak marks listed symbols weak (linker may prefer a strong
// definition elsewhere without reporting a multiple-definition error).
func (d *Dialect) dirWeak(ctx *asmcore.ParserContext, operand string) error {
	for _, name := range splitOperands(operand) {
		if s, ok := ctx.Program.Symbols.Lookup(name); ok {
			s.Flags |= asmcore.FlagWeak
		}
	}
	return nil
}

// dirLocalSym marks listed symbols as not exported (the inverse of
// XDEF/GLOBAL), matching the LOCAL directive some EDTASM variants accept.
func (d *Dialect) dirLocalSym(ctx *asmcore.ParserContext, operand string) error {
	for _, name := range splitOperands(operand) {
		if s, ok := ctx.Program.Symbols.Lookup(name); ok {
			s.Flags &^= asmcore.FlagExport | asmcore.FlagXdef
		}
	}
	return nil
}

// dirComm declares a common symbol: a size reservation shared across
// translation units, resolved at link time.
func (d *Dialect) dirComm(ctx *asmcore.ParserContext, operand string) error {
	name, sizeExpr := splitCommaPair(operand)
	if name == "" {
		return fmt.Errorf("COMM requires a symbol name")
	}
	size, err := d.constExpr(ctx, sizeExpr)
	if err != nil {
		return err
	}
	sym, err := ctx.Program.Symbols.Define(name, asmcore.SymLabsym, false)
	if err != nil {
		return err
	}
	sym.Flags |= asmcore.FlagCommon
	sym.Size = int(size)
	return nil
}

// defineMacro implements MACRO/MAC definition (§4.7 Definition): the label
// field supplies the name (already stripped of normal label binding by
// parseLine), and the body is recorded verbatim up to ENDM/EM, exactly as
// it will later be replayed by ExpandMacro rather than parsed now.
func (d *Dialect) defineMacro(ctx *asmcore.ParserContext, name string) error {
	if name == "" {
		return fmt.Errorf("MACRO requires a name in the label field")
	}
	if ctx.Program.Macros.Defined(name) {
		return fmt.Errorf("macro %q already defined", name)
	}
	defPos := ctx.CurrentPos
	var body []string
	for {
		line, ok := ctx.Source.ReadNextLine()
		if !ok {
			return fmt.Errorf("unterminated MACRO %q: missing ENDM", name)
		}
		ctx.CurrentPos.Line++
		fields := asmcore.SplitLine(asmcore.RewriteCharLiteral(line), shims)
		if strings.ToUpper(fields.Mnemonic) == "ENDM" || strings.ToUpper(fields.Mnemonic) == "EM" {
			break
		}
		body = append(body, line)
	}
	ctx.Program.Macros.Define(&asmcore.Macro{Name: name, Body: body, DefPos: defPos})
	return nil
}

// dirRept implements REPT/ENDR (§4.8 Repeat/Loop Engine): the count is
// evaluated once up front, the body recorded verbatim up to ENDR, then
// pushed as a repeat source frame so ReadNextLine replays it N times.
func (d *Dialect) dirRept(ctx *asmcore.ParserContext, operand string) error {
	n, err := d.constExpr(ctx, operand)
	if err != nil {
		return err
	}
	var body []string
	for {
		line, ok := ctx.Source.ReadNextLine()
		if !ok {
			return fmt.Errorf("unterminated REPT: missing ENDR")
		}
		ctx.CurrentPos.Line++
		fields := asmcore.SplitLine(asmcore.RewriteCharLiteral(line), shims)
		if strings.ToUpper(fields.Mnemonic) == "ENDR" {
			break
		}
		body = append(body, line)
	}
	if n <= 0 || len(body) == 0 {
		return nil
	}
	ctx.Source.PushRepeat(body, int(n), "", "")
	return nil
}

// dirEndr only runs when an ENDR is reached outside of a REPT body being
// consumed by dirRept's own scan loop above — i.e. a stray ENDR.
func (d *Dialect) dirEndr(ctx *asmcore.ParserContext, operand string) error {
	return fmt.Errorf("ENDR without matching REPT")
}

func (d *Dialect) dirEven(ctx *asmcore.ParserContext, operand string) error {
	sec := ctx.Program.Current
	if sec.PC%2 != 0 {
		sec.Append(&asmcore.Atom{Kind: asmcore.AtomSpace, Align: 1, Count: 1, ElemSz: 1, Pos: ctx.CurrentPos})
	}
	return nil
}

func (d *Dialect) dirXdef(ctx *asmcore.ParserContext, operand string) error {
	for _, name := range splitOperands(operand) {
		if s, ok := ctx.Program.Symbols.Lookup(name); ok {
			s.Flags |= asmcore.FlagExport | asmcore.FlagXdef
		}
	}
	return nil
}

func (d *Dialect) dirXref(ctx *asmcore.ParserContext, operand string) error {
	for _, name := range splitOperands(operand) {
		if _, err := ctx.Program.Symbols.Import(name); err != nil {
			return err
		}
	}
	return nil
}
