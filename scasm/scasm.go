// Package scasm implements the S-C Macro Assembler ("SCASM") front end,
// the second 65xx dialect named in spec §1. Grounded on edtasm/merlin's
// shared structure, with SCASM's own lexical quirks layered on top: dot-
// prefixed directives, `.N` local / `:N` private labels, macro sigils
// `>NAME`/`_NAME`, and the `.AC` nibble-compression engine whose table
// indexing quirk is documented in §C.
package scasm

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
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isIdentChar(b byte) bool {
	return isIdentStart(b) || (b >= '0' && b <= '9')
}

func exprOpts() expr.Options {
	o := expr.DefaultOptions()
	o.CurrentPCChars = "*"
	return o
}

// acState holds the shared nibble-compression stream for `.AC` (§4.6):
// three tables indexed 1..3 (slot 0 reserved — the `j+1` quirk §C calls
// out) and a pending half-byte nibble carried between calls.
type acState struct {
	tables     [4]map[byte]int // index 1..3 populated by `.AC N"chars"`; 0 unused
	pending    int
	hasPending bool
}

func newACState() *acState {
	return &acState{tables: [4]map[byte]int{}}
}

func (s *acState) reset() {
	s.pending = 0
	s.hasPending = false
}

// Dialect implements asmcore.Parser for SCASM. It carries the `.AC` stream
// state as instance data since it must persist across directive calls
// within one translation unit but never leak across separate parses.
type Dialect struct {
	ac        *acState
	rsCounter int64 // running RSSET/RSRESET/RS offset register (§4.4)
	foCounter int64 // running CLRFO/SETFO/FO* offset register (§4.4)
}

func New() *Dialect { return &Dialect{ac: newACState()} }

func (d *Dialect) Init(ctx *asmcore.ParserContext) {
	ctx.Program.DefSect(".code", asmcore.SecCode, ctx.Opts.DefaultOrg)
}

func (d *Dialect) ConstPrefix() string { return "#" }
func (d *Dialect) ConstSuffix() string { return "" }
func (d *Dialect) ChkIdEnd(b byte) bool {
	return b == 0 || b == ' ' || b == '\t' || b == ';' || b == '\n'
}

func (d *Dialect) DefSect(ctx *asmcore.ParserContext, name string) *asmcore.Section {
	return ctx.Program.DefSect(name, asmcore.SecCode, ctx.Opts.DefaultOrg)
}

func (d *Dialect) GetLocalLabel(ctx *asmcore.ParserContext, id string) (string, error) {
	return ctx.Program.Locals.LocalName(id)
}

// Args implements the SCASM macro-argument reader: comma-separated, with
// one layer of surrounding quotes stripped from a quoted argument so `"HI"`
// becomes `HI` inside the macro body (§4.7).
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
		start := i
		for i < len(line) && line[i] != ',' {
			i++
		}
		args = append(args, stripQuotes(strings.TrimSpace(line[start:i])))
		if i < len(line) && line[i] == ',' {
			i++
		}
	}
	return args, nil
}

func stripQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func (d *Dialect) ParseMacroArg(ctx *asmcore.ParserContext, line string) (string, int, error) {
	args, err := d.Args(ctx, line)
	if err != nil || len(args) == 0 {
		return "", 0, err
	}
	return args[0], len(args[0]), nil
}

// ExpandMacro expands a SCASM macro body using \1-\9/\0, \@, \<sym>, \(),
// \NAME and ]1-]9/]# escapes (§4.7).
func (d *Dialect) ExpandMacro(ctx *asmcore.ParserContext, m *asmcore.Macro, inv *asmcore.Invocation) ([]string, error) {
	out := make([]string, 0, len(m.Body))
	for _, l := range m.Body {
		expanded, err := asmcore.ExpandEscapes(l, asmcore.EscapeSCASM, inv)
		if err != nil {
			return nil, fmt.Errorf("macro expansion too long: %w", err)
		}
		out = append(out, expanded)
	}
	return out, nil
}

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

// stripLineNumberNoise implements "accepts a literal line number at the
// start of a line as noise" (§4.4): a purely-numeric first token followed
// by whitespace is discarded before the rest of the line is parsed.
func stripLineNumberNoise(line string) string {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(line) {
		return line
	}
	if line[i] != ' ' && line[i] != '\t' {
		return line
	}
	return line[i:]
}

// dotStrip implements SCASM's "dot-prefixed dialects strip one leading
// dot" rule (§4.4).
func dotStrip(mnemonic string) string {
	return strings.TrimPrefix(mnemonic, ".")
}

func (d *Dialect) parseLine(ctx *asmcore.ParserContext, raw string) error {
	fields := asmcore.SplitLine(stripLineNumberNoise(raw), shims)
	if fields.FullLine {
		return nil
	}

	mnUpper := dotStrip(strings.ToUpper(fields.Mnemonic))

	if handled, err := d.handleConditional(ctx, mnUpper, fields.Operand); handled {
		return err
	}
	if !ctx.Program.Conditional.Active() {
		return nil
	}

	// Macro-invocation sigils `>NAME` / `_NAME` (§4.7).
	if strings.HasPrefix(fields.Mnemonic, ">") && fields.Mnemonic != ">" {
		return d.invokeMacroByName(ctx, fields.Mnemonic[1:], fields.Operand)
	}
	if strings.HasPrefix(fields.Mnemonic, "_") && len(fields.Mnemonic) > 1 {
		if m, ok := ctx.Program.Macros.Lookup(fields.Mnemonic[1:]); ok {
			return d.invokeMacro(ctx, m, fields.Operand)
		}
	}

	claimsLabel := mnUpper == "EQ" || mnUpper == "=" || mnUpper == "SET" || mnUpper == "SE" || mnUpper == "MA" || mnUpper == "MAC"
	if fields.Label != "" && !claimsLabel {
		if err := d.bindLabel(ctx, fields.Label); err != nil {
			return err
		}
	}

	if fields.Mnemonic == "" {
		return nil
	}

	switch mnUpper {
	case "EQ", "=":
		return d.defineEquOrSet(ctx, fields.Label, fields.Operand, false)
	case "SET", "SE":
		return d.defineEquOrSet(ctx, fields.Label, fields.Operand, true)
	case "MA", "MAC":
		return d.defineMacro(ctx, fields.Label)
	}

	if h, ok := directives[mnUpper]; ok {
		return h(d, ctx, fields.Operand)
	}

	if m, ok := ctx.Program.Macros.Lookup(mnUpper); ok {
		return d.invokeMacro(ctx, m, fields.Operand)
	}

	return d.emitInstruction(ctx, fields.Mnemonic, fields.Operand)
}

// bindLabel resolves SCASM's label taxonomy: `.N` locals (0..255) scoped to
// the last global, `:N` private labels scoped by the private-context
// counter, and ordinary global labels (§4.3).
func (d *Dialect) bindLabel(ctx *asmcore.ParserContext, label string) error {
	switch {
	case strings.HasPrefix(label, "."):
		n, err := parseDigits(label[1:])
		if err != nil {
			return fmt.Errorf("invalid SCASM local label %q: %w", label, err)
		}
		name, err := ctx.Program.Locals.ScasmLocalName(n)
		if err != nil {
			return err
		}
		return d.defineLabelAt(ctx, name)
	case strings.HasPrefix(label, ":"):
		n, err := parseDigits(label[1:])
		if err != nil {
			return fmt.Errorf("invalid SCASM private label %q: %w", label, err)
		}
		return d.defineLabelAt(ctx, ctx.Program.Locals.PrivateName(n))
	case label == "*" || label == ".":
		return nil
	default:
		ctx.Program.Locals.SetLastGlobal(label)
		return d.defineLabelAt(ctx, label)
	}
}

func parseDigits(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty numeric label")
	}
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("not numeric: %q", s)
		}
		n = n*10 + int(s[i]-'0')
	}
	if n < 0 || n > 255 {
		return 0, fmt.Errorf("local label out of range 0..255: %d", n)
	}
	return n, nil
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

func (d *Dialect) constExpr(ctx *asmcore.ParserContext, operand string) (int64, error) {
	e, _, err := expr.Parse(operand, exprOpts())
	if err != nil {
		return 0, err
	}
	return expr.Eval(e, ctx.Program.Symbols.Resolver(ctx.Program.Current.PC))
}

// defineEquOrSet implements §4.5's EQ/SET dispatch, including the
// multi-byte equate form `LABEL .EQ $36,37` (§4.5): the first expression
// names the symbol; later comma-separated expressions are parsed for
// validation and discarded (documentation only).
func (d *Dialect) defineEquOrSet(ctx *asmcore.ParserContext, label, operand string, mutable bool) error {
	if label == "" {
		return fmt.Errorf("EQ/SET requires a label")
	}
	parts := splitOperands(operand)
	if len(parts) == 0 {
		return fmt.Errorf("EQ/SET requires an expression")
	}
	v, err := d.constExpr(ctx, parts[0])
	if err != nil {
		return err
	}
	for _, extra := range parts[1:] {
		if _, err := d.constExpr(ctx, extra); err != nil {
			return err
		}
	}
	sym, err := ctx.Program.Symbols.Define(label, asmcore.SymExpression, mutable)
	if err != nil {
		return err
	}
	sym.Value = uint32(v)
	sym.Defined = true
	return nil
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

func splitCommaPair(operand string) (string, string) {
	parts := strings.SplitN(operand, ",", 2)
	if len(parts) != 2 {
		return strings.TrimSpace(operand), ""
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

func (d *Dialect) emitInstruction(ctx *asmcore.ParserContext, mnemonic, operand string) error {
	ops := splitOperands(operand)
	sec := ctx.Program.Current
	sec.Append(&asmcore.Atom{Kind: asmcore.AtomInstruction, Align: 1, Pos: ctx.CurrentPos,
		Mnemonic: strings.ToUpper(mnemonic), Operands: ops})
	return nil
}

func (d *Dialect) invokeMacro(ctx *asmcore.ParserContext, m *asmcore.Macro, operand string) error {
	ctx.Program.Locals.EnterMacroInvocation()
	args, _ := d.Args(ctx, operand)
	uid := ctx.Program.Macros.NextUniqueID()
	inv := &asmcore.Invocation{Positional: args, UniqueID: uid,
		SymbolAbs: func(name string) (uint32, bool) {
			s, ok := ctx.Program.Symbols.Lookup(name)
			if !ok || !s.Defined {
				return 0, false
			}
			return s.Value, true
		}}
	body, err := d.ExpandMacro(ctx, m, inv)
	if err != nil {
		return err
	}
	ctx.Source.PushMacro(m.Name, body, args, nil)
	return nil
}

func (d *Dialect) invokeMacroByName(ctx *asmcore.ParserContext, name, operand string) error {
	m, ok := ctx.Program.Macros.Lookup(name)
	if !ok {
		return fmt.Errorf("undefined macro: %s", name)
	}
	return d.invokeMacro(ctx, m, operand)
}

// handleConditional routes SCASM's IF family through the shared
// asmcore.ConditionalStack (§4.9).
func (d *Dialect) handleConditional(ctx *asmcore.ParserContext, mnemonic, operand string) (bool, error) {
	switch mnemonic {
	case "IF":
		v, err := d.evalCond(ctx, operand)
		if err != nil {
			v = false
		}
		return true, ctx.Program.Conditional.Push(v)
	case "IFDEF", "IFMACROD":
		name := strings.TrimSpace(operand)
		var ok bool
		if mnemonic == "IFMACROD" {
			ok = ctx.Program.Macros.Defined(name)
		} else {
			_, ok = ctx.Program.Symbols.Lookup(name)
		}
		return true, ctx.Program.Conditional.Push(ok)
	case "IFND", "IFMACROND":
		name := strings.TrimSpace(operand)
		var ok bool
		if mnemonic == "IFMACROND" {
			ok = ctx.Program.Macros.Defined(name)
		} else {
			_, ok = ctx.Program.Symbols.Lookup(name)
		}
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
	case "IFEQ", "IFNE", "IFGT", "IFGE", "IFLT", "IFLE":
		a, b := splitCommaPair(operand)
		av, err := d.constExpr(ctx, a)
		if err != nil {
			return true, ctx.Program.Conditional.Push(false)
		}
		bv, err := d.constExpr(ctx, b)
		if err != nil {
			return true, ctx.Program.Conditional.Push(false)
		}
		var v bool
		switch mnemonic {
		case "IFEQ":
			v = av == bv
		case "IFNE":
			v = av != bv
		case "IFGT":
			v = av > bv
		case "IFGE":
			v = av >= bv
		case "IFLT":
			v = av < bv
		case "IFLE":
			v = av <= bv
		}
		return true, ctx.Program.Conditional.Push(v)
	case "IFUSED", "IFNUSED":
		// No reference-counting pass exists in a single-pass assembler;
		// approximate "used" as "defined", same spirit as IFP1/IFP2 (merlin.go).
		name := strings.TrimSpace(operand)
		_, ok := ctx.Program.Symbols.Lookup(name)
		if mnemonic == "IFNUSED" {
			ok = !ok
		}
		return true, ctx.Program.Conditional.Push(ok)
	case "IIF":
		return true, d.handleIIF(ctx, operand)
	case "ELSE", "EL":
		return true, ctx.Program.Conditional.Else()
	case "ELSEIF":
		v, err := d.evalCond(ctx, operand)
		if err != nil {
			v = false
		}
		return true, ctx.Program.Conditional.ElseIf(v)
	case "ENDIF", "FIN", "EI":
		_, err := ctx.Program.Conditional.End(false)
		return true, err
	}
	return false, nil
}

// handleIIF implements `IIF expr ...`: inline, continues parsing the rest
// of the line only when the predicate is true (§4.9).
func (d *Dialect) handleIIF(ctx *asmcore.ParserContext, operand string) error {
	e, consumed, err := expr.Parse(operand, exprOpts())
	if err != nil {
		return err
	}
	v, err := expr.Eval(e, ctx.Program.Symbols.Resolver(ctx.Program.Current.PC))
	if err != nil {
		return err
	}
	if v == 0 {
		return nil
	}
	rest := strings.TrimSpace(operand[consumed:])
	rest = strings.TrimPrefix(rest, ",")
	rest = strings.TrimSpace(rest)
	fields := asmcore.SplitLine(" "+rest, shims)
	mn := dotStrip(strings.ToUpper(fields.Mnemonic))
	if h, ok := directives[mn]; ok {
		return h(d, ctx, fields.Operand)
	}
	if fields.Mnemonic == "" {
		return nil
	}
	return d.emitInstruction(ctx, fields.Mnemonic, fields.Operand)
}

func (d *Dialect) evalCond(ctx *asmcore.ParserContext, operand string) (bool, error) {
	e, _, err := expr.Parse(operand, exprOpts())
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
		"OR":     (*Dialect).dirOrg,
		"ORG":    (*Dialect).dirOrg,
		"DUM":    (*Dialect).dirDum,
		"DSECT":  (*Dialect).dirDum,
		"DEND":   (*Dialect).dirDend,
		"ED":     (*Dialect).dirDend,
		"DA":     (*Dialect).dirDa,
		"DW":     (*Dialect).dirWord,
		"WORD":   (*Dialect).dirWord,
		"DDB":    (*Dialect).dirDdb,
		"DB":     (*Dialect).dirByte,
		"BYTE":   (*Dialect).dirByte,
		"DL":     (*Dialect).dirDl,
		"ADRL":   (*Dialect).dirDl,
		"DS":     (*Dialect).dirSpace,
		"BS":     (*Dialect).dirSpace,
		"AS":     (*Dialect).dirString,
		"ASC":    (*Dialect).dirString,
		"AZ":     (*Dialect).dirStringZ,
		"CS":     (*Dialect).dirStr,
		"CZ":     (*Dialect).dirStringZ,
		"STR":    (*Dialect).dirStr,
		"STRL":   (*Dialect).dirStrl,
		"AT":     (*Dialect).dirDci,
		"DCI":    (*Dialect).dirDci,
		"INV":    (*Dialect).dirInv,
		"FLS":    (*Dialect).dirFls,
		"REV":    (*Dialect).dirRev,
		"HEX":    (*Dialect).dirHex,
		"HS":     (*Dialect).dirHS,
		"HX":     (*Dialect).dirHX,
		"AC":     (*Dialect).dirAC,
		"PS":     (*Dialect).dirStr,
		"XDEF":   (*Dialect).dirXdef,
		"GLOBAL": (*Dialect).dirXdef,
		"XREF":   (*Dialect).dirXref,
		"EXTERN": (*Dialect).dirXref,
		"WEAK":   (*Dialect).dirWeak,
		"LOCAL":  (*Dialect).dirLocalSym,
		"COMM":   (*Dialect).dirComm,
		"EVEN":   (*Dialect).dirEven,
		"ODD":    (*Dialect).dirOdd,
		"ALIGN":  (*Dialect).dirAlign,
		"RSSET":  (*Dialect).dirRSSet,
		"RSRESET": (*Dialect).dirRSSet,
		"RS":     (*Dialect).dirRS,
		"CLRFO":  (*Dialect).dirClrfo,
		"SETFO":  (*Dialect).dirSetfo,
		"CARGS":  (*Dialect).dirCargs,
		"STRUCT": (*Dialect).dirDum,
		"ENDSTRUCT": (*Dialect).dirDend,
		"MEXIT":  (*Dialect).dirMexit,
		"EXITMACRO": (*Dialect).dirMexit,
		"REPT":   (*Dialect).dirRept,
		"LUP":    (*Dialect).dirRept,
		"ENDR":   (*Dialect).dirEndr,
		"ENDU":   (*Dialect).dirEndr,
		"MX":     (*Dialect).dirMx,
		"XC":     (*Dialect).dirXc,
		"LONGA":  (*Dialect).dirLonga,
		"LONGI":  (*Dialect).dirLongi,
		"REP":    (*Dialect).dirRep,
		"SEP":    (*Dialect).dirSep,
		"LIST":   (*Dialect).dirNoop,
		"NOLIST": (*Dialect).dirNoop,
		"PAGE":   (*Dialect).dirNoop,
		"TITLE":  (*Dialect).dirNoop,
		"INCLUDE": (*Dialect).dirInclude,
		"INCBIN": (*Dialect).dirIncbin,
		"ASSERT": (*Dialect).dirAssert,
		"ECHO":   (*Dialect).dirEcho,
		"PRINTT": (*Dialect).dirEcho,
		"PRINTV": (*Dialect).dirEcho,
		"FAIL":   (*Dialect).dirFail,
		"ERR":    (*Dialect).dirFail,
		"PLEN":   (*Dialect).dirNoop,
		"IDNT":   (*Dialect).dirNoop,
		"DSOURCE": (*Dialect).dirNoop,
		"OPT":    (*Dialect).dirNoop,
		"OUTPUT": (*Dialect).dirNoop,
		"DAT":    (*Dialect).dirNoop,
		"USR":    (*Dialect).dirNoop,
		"CHK":    (*Dialect).dirNoop,
		"INCDIR": (*Dialect).dirIncdir,
		"IN":     (*Dialect).dirInclude,
		"INB":    (*Dialect).dirIncbin,
	}
}

func (d *Dialect) dirNoop(ctx *asmcore.ParserContext, operand string) error { return nil }

// dirFail/ERR force a reported error unconditionally (§4.4's "Listing &
// misc" group), same semantics as a failed ASSERT.
func (d *Dialect) dirFail(ctx *asmcore.ParserContext, operand string) error {
	return fmt.Errorf("FAIL: %s", strings.TrimSpace(operand))
}

// dirIncdir adds a directory to the include-path search list used by
// subsequent INCLUDE/INCBIN directives (§4.4, §6).
func (d *Dialect) dirIncdir(ctx *asmcore.ParserContext, operand string) error {
	dir := stripQuotes(strings.TrimSpace(operand))
	if dir == "" {
		return fmt.Errorf("INCDIR requires a path")
	}
	ctx.Opts.IncludePaths = append(ctx.Opts.IncludePaths, dir)
	return nil
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

func (d *Dialect) dirDum(ctx *asmcore.ParserContext, operand string) error {
	var addr uint32
	if strings.TrimSpace(operand) != "" {
		v, err := d.constExpr(ctx, operand)
		if err != nil {
			return err
		}
		addr = uint32(v)
	} else if ctx.Program.InDummy() {
		addr = ctx.Program.DummyPC()
	}
	ctx.Program.EnterDummy(addr)
	return nil
}

func (d *Dialect) dirDend(ctx *asmcore.ParserContext, operand string) error {
	ctx.Program.ExitDummy()
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

func (d *Dialect) dirDdb(ctx *asmcore.ParserContext, operand string) error {
	parts := splitOperands(operand)
	var bytes []byte
	for _, p := range parts {
		v, err := d.constExpr(ctx, p)
		if err != nil {
			return err
		}
		bytes = append(bytes, byte(v>>8), byte(v))
	}
	ctx.Program.Current.Append(&asmcore.Atom{Kind: asmcore.AtomData, Align: 1, Pos: ctx.CurrentPos, Bytes: bytes})
	return nil
}

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

// dirDa implements SCASM's "define address" with optional per-operand `#`
// (low byte only) or `/` (high byte only) prefix (§4.6).
func (d *Dialect) dirDa(ctx *asmcore.ParserContext, operand string) error {
	parts := splitOperands(operand)
	var bytes []byte
	for _, p := range parts {
		lowOnly, highOnly := false, false
		if strings.HasPrefix(p, "#") {
			lowOnly = true
			p = p[1:]
		} else if strings.HasPrefix(p, "/") {
			highOnly = true
			p = p[1:]
		}
		v, err := d.constExpr(ctx, p)
		if err != nil {
			return err
		}
		switch {
		case lowOnly:
			bytes = append(bytes, byte(v))
		case highOnly:
			bytes = append(bytes, byte(v>>8))
		default:
			bytes = append(bytes, byte(v), byte(v>>8))
		}
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

// readDelimited reads a one-character-delimiter-prefixed literal: an
// optional `-` forces the bit-7-set branch of the delimiter rule
// regardless of the actual delimiter's ASCII value (§4.4 SCASM quirk:
// "allows an optional 1-character delimiter prefix to string directives").
func readDelimited(operand string) ([]byte, error) {
	s := strings.TrimSpace(operand)
	forceHigh := false
	if strings.HasPrefix(s, "-") {
		forceHigh = true
		s = s[1:]
	}
	content, delim, _, err := asmcore.ReadStringLiteral(s, asmcore.StringLiteralOptions{DoubledDelimiter: true})
	if err != nil {
		return nil, err
	}
	if forceHigh {
		delim = 0 // < 0x27, forces bit 7 set
	}
	return asmcore.ApplyDelimiterBitTransform(content, delim), nil
}

func (d *Dialect) dirString(ctx *asmcore.ParserContext, operand string) error {
	content, err := readDelimited(operand)
	if err != nil {
		return err
	}
	ctx.Program.Current.Append(&asmcore.Atom{Kind: asmcore.AtomData, Align: 1, Pos: ctx.CurrentPos, Bytes: content})
	return nil
}

func (d *Dialect) stringDirective(ctx *asmcore.ParserContext, operand string, kind asmcore.StringDirective) error {
	content, err := readDelimited(operand)
	if err != nil {
		return err
	}
	content = asmcore.ApplyStringPostProcessing(content, kind)
	ctx.Program.Current.Append(&asmcore.Atom{Kind: asmcore.AtomData, Align: 1, Pos: ctx.CurrentPos, Bytes: content})
	return nil
}

func (d *Dialect) dirStringZ(ctx *asmcore.ParserContext, operand string) error {
	return d.stringDirective(ctx, operand, asmcore.StrAZ)
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

// dirHex implements HEX: nibble pairs packed into bytes; an odd number of
// hex digits is rejected (HS pads instead, HX emits one byte per nibble).
func (d *Dialect) dirHex(ctx *asmcore.ParserContext, operand string) error {
	digits := asmcore.HexNibbles(operand)
	if len(digits)%2 != 0 {
		return fmt.Errorf("odd number of hex digits")
	}
	bytes, err := packNibblePairs(digits)
	if err != nil {
		return err
	}
	ctx.Program.Current.Append(&asmcore.Atom{Kind: asmcore.AtomData, Align: 1, Pos: ctx.CurrentPos, Bytes: bytes})
	return nil
}

// dirHS implements SCASM's `.HS`: an odd nibble count is tolerated by
// padding with a leading zero nibble (§8 Boundary behaviors), unlike
// Merlin's strict HEX.
func (d *Dialect) dirHS(ctx *asmcore.ParserContext, operand string) error {
	digits := asmcore.HexNibbles(operand)
	if len(digits)%2 != 0 {
		digits = "0" + digits
	}
	bytes, err := packNibblePairs(digits)
	if err != nil {
		return err
	}
	ctx.Program.Current.Append(&asmcore.Atom{Kind: asmcore.AtomData, Align: 1, Pos: ctx.CurrentPos, Bytes: bytes})
	return nil
}

// dirHX implements `.HX`: one nibble per output byte (four bits of data
// per byte, §4.6), rather than packing nibble pairs.
func (d *Dialect) dirHX(ctx *asmcore.ParserContext, operand string) error {
	digits := asmcore.HexNibbles(operand)
	bytes := make([]byte, 0, len(digits))
	for i := 0; i < len(digits); i++ {
		v, err := hexVal(digits[i])
		if err != nil {
			return err
		}
		bytes = append(bytes, byte(v))
	}
	ctx.Program.Current.Append(&asmcore.Atom{Kind: asmcore.AtomData, Align: 1, Pos: ctx.CurrentPos, Bytes: bytes})
	return nil
}

func packNibblePairs(digits string) ([]byte, error) {
	bytes := make([]byte, 0, len(digits)/2)
	for i := 0; i < len(digits); i += 2 {
		hi, err := hexVal(digits[i])
		if err != nil {
			return nil, err
		}
		lo, err := hexVal(digits[i+1])
		if err != nil {
			return nil, err
		}
		bytes = append(bytes, byte(hi<<4|lo))
	}
	return bytes, nil
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

// dirAC implements `.AC`, SCASM's nibble-compression directive (§4.6, §9
// Open Questions, §C item 2). Two forms share one operand
// grammar: `.AC N"chars"` DEFINES table slot N (1..3) from the characters
// of the delimited string, each character's nibble value being its
// 1-based position in the string (the "j+1" quirk: slot 0 of the
// decompressor is reserved, so table positions are never zero-indexed at
// lookup time). `.AC delim c delim` with a single-character payload
// ENCODES that character against table 1 by default, pushing a nibble
// into the shared stream; two accumulated nibbles pack into one output
// byte (high nibble first). `.AC 0` resets the stream (and any pending
// nibble) without touching the tables.
func (d *Dialect) dirAC(ctx *asmcore.ParserContext, operand string) error {
	s := strings.TrimSpace(operand)
	if s == "0" {
		d.ac.reset()
		return nil
	}

	// N"chars" table-definition form: a leading digit immediately
	// followed by a delimiter character.
	if len(s) >= 2 && s[0] >= '1' && s[0] <= '3' && !isHexDigitByte(s[1]) {
		slot := int(s[0] - '0')
		content, _, _, err := asmcore.ReadStringLiteral(s[1:], asmcore.StringLiteralOptions{})
		if err != nil {
			return err
		}
		table := make(map[byte]int, len(content))
		for j, c := range content {
			table[c] = j + 1 // j+1: slot 0 reserved, per the preserved quirk
		}
		d.ac.tables[slot] = table
		return nil
	}

	// delim c delim single-character encode form.
	content, _, _, err := asmcore.ReadStringLiteral(s, asmcore.StringLiteralOptions{})
	if err != nil {
		return err
	}
	if len(content) != 1 {
		return fmt.Errorf(".AC encode form expects exactly one character, got %d", len(content))
	}
	table := d.ac.tables[1]
	nibble, ok := table[content[0]]
	if !ok {
		return fmt.Errorf(".AC: character %q not in table 1", content[0])
	}
	if d.ac.hasPending {
		b := byte(d.ac.pending<<4) | byte(nibble&0xF)
		ctx.Program.Current.Append(&asmcore.Atom{Kind: asmcore.AtomData, Align: 1, Pos: ctx.CurrentPos, Bytes: []byte{b}})
		d.ac.hasPending = false
	} else {
		d.ac.pending = nibble
		d.ac.hasPending = true
	}
	return nil
}

func isHexDigitByte(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

func (d *Dialect) dirXdef(ctx *asmcore.ParserContext, operand string) error {
	for _, name := range splitOperands(operand) {
		if name == "" {
			continue
		}
		if s, ok := ctx.Program.Symbols.Lookup(name); ok {
			s.Flags |= asmcore.FlagExport | asmcore.FlagXdef
		}
	}
	return nil
}

func (d *Dialect) dirXref(ctx *asmcore.ParserContext, operand string) error {
	for _, name := range splitOperands(operand) {
		if name == "" {
			continue
		}
		if _, err := ctx.Program.Symbols.Import(name); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dialect) dirWeak(ctx *asmcore.ParserContext, operand string) error {
	for _, name := range splitOperands(operand) {
		if s, ok := ctx.Program.Symbols.Lookup(name); ok {
			s.Flags |= asmcore.FlagWeak
		}
	}
	return nil
}

func (d *Dialect) dirLocalSym(ctx *asmcore.ParserContext, operand string) error {
	for _, name := range splitOperands(operand) {
		if s, ok := ctx.Program.Symbols.Lookup(name); ok {
			s.Flags &^= asmcore.FlagExport | asmcore.FlagXdef
		}
	}
	return nil
}

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

func (d *Dialect) dirEven(ctx *asmcore.ParserContext, operand string) error {
	sec := ctx.Program.Current
	if sec.PC%2 != 0 {
		sec.Append(&asmcore.Atom{Kind: asmcore.AtomSpace, Align: 1, Count: 1, ElemSz: 1, Pos: ctx.CurrentPos})
	}
	return nil
}

func (d *Dialect) dirOdd(ctx *asmcore.ParserContext, operand string) error {
	sec := ctx.Program.Current
	if sec.PC%2 == 0 {
		sec.Append(&asmcore.Atom{Kind: asmcore.AtomSpace, Align: 1, Count: 1, ElemSz: 1, Pos: ctx.CurrentPos})
	}
	return nil
}

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

func (d *Dialect) dirRSSet(ctx *asmcore.ParserContext, operand string) error {
	if strings.TrimSpace(operand) == "" {
		d.rsCounter = 0
		return nil
	}
	v, err := d.constExpr(ctx, operand)
	if err != nil {
		return err
	}
	d.rsCounter = v
	return nil
}

func (d *Dialect) dirRS(ctx *asmcore.ParserContext, operand string) error {
	n, err := d.constExpr(ctx, operand)
	if err != nil {
		return err
	}
	d.rsCounter += n
	return nil
}

func (d *Dialect) dirMexit(ctx *asmcore.ParserContext, operand string) error {
	return ctx.Source.ExitMacro()
}

// dirClrfo/dirSetfo implement the CLRFO/SETFO offset register (§4.4's
// "Offset/struct" group), a second running counter independent of
// RSSET/RS, grounded on original_source/syntax/edtasm/syntax.c's
// handle_clrfo/handle_setfo (new_abs(fo_name, ...)).
func (d *Dialect) dirClrfo(ctx *asmcore.ParserContext, operand string) error {
	d.foCounter = 0
	return nil
}

func (d *Dialect) dirSetfo(ctx *asmcore.ParserContext, operand string) error {
	v, err := d.constExpr(ctx, operand)
	if err != nil {
		return err
	}
	d.foCounter = v
	return nil
}

// dirCargs defines a run of stack-frame offset symbols, one per
// comma-separated name, starting at an optional `#expr` base (default 4)
// and advancing by a per-name `.b`/`.w`/`.l` size suffix (default 2),
// grounded on original_source/syntax/edtasm/syntax.c's handle_cargs.
func (d *Dialect) dirCargs(ctx *asmcore.ParserContext, operand string) error {
	s := strings.TrimSpace(operand)
	offs := int64(4)
	if strings.HasPrefix(s, "#") {
		rest := s[1:]
		comma := strings.IndexByte(rest, ',')
		if comma < 0 {
			return fmt.Errorf("CARGS: , expected")
		}
		v, err := d.constExpr(ctx, rest[:comma])
		if err != nil {
			return err
		}
		offs = v
		s = strings.TrimSpace(rest[comma+1:])
	}
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name := item
		size := int64(2)
		if dot := strings.LastIndexByte(item, '.'); dot >= 0 && dot == len(item)-2 {
			name = item[:dot]
			switch strings.ToLower(item[dot+1:]) {
			case "b", "w":
				size = 2
			case "l":
				size = 4
			}
		}
		sym, err := ctx.Program.Symbols.Define(name, asmcore.SymExpression, false)
		if err != nil {
			return err
		}
		sym.Value = uint32(offs)
		sym.Defined = true
		offs += size
	}
	return nil
}

func (d *Dialect) dirEndr(ctx *asmcore.ParserContext, operand string) error {
	return fmt.Errorf("ENDR without matching REPT/LUP")
}

// defineMacro records a MA/MAC body verbatim up to ENDM/EM (§4.7).
func (d *Dialect) defineMacro(ctx *asmcore.ParserContext, name string) error {
	if name == "" {
		return fmt.Errorf("MAC requires a name in the label field")
	}
	if ctx.Program.Macros.Defined(name) {
		return fmt.Errorf("macro %q already defined", name)
	}
	defPos := ctx.CurrentPos
	var body []string
	for {
		line, ok := ctx.Source.ReadNextLine()
		if !ok {
			return fmt.Errorf("unterminated MAC %q: missing ENDM", name)
		}
		ctx.CurrentPos.Line++
		fields := asmcore.SplitLine(stripLineNumberNoise(line), shims)
		term := dotStrip(strings.ToUpper(fields.Mnemonic))
		if term == "ENDM" || term == "EM" {
			break
		}
		body = append(body, line)
	}
	ctx.Program.Macros.Define(&asmcore.Macro{Name: name, Body: body, DefPos: defPos})
	return nil
}

// dirRept implements REPT/LUP...ENDR/ENDU (§4.8).
func (d *Dialect) dirRept(ctx *asmcore.ParserContext, operand string) error {
	countExpr, iterName := splitCommaPair(operand)
	n, err := d.constExpr(ctx, countExpr)
	if err != nil {
		return err
	}
	var body []string
	for {
		line, ok := ctx.Source.ReadNextLine()
		if !ok {
			return fmt.Errorf("unterminated REPT/LUP: missing ENDR")
		}
		ctx.CurrentPos.Line++
		fields := asmcore.SplitLine(stripLineNumberNoise(line), shims)
		term := dotStrip(strings.ToUpper(fields.Mnemonic))
		if term == "ENDR" || term == "ENDU" {
			break
		}
		body = append(body, line)
	}
	if n <= 0 || len(body) == 0 {
		return nil
	}
	ctx.Source.PushRepeat(body, int(n), strings.TrimSpace(iterName), "__RPTCNT")
	return nil
}

func (d *Dialect) dirMx(ctx *asmcore.ParserContext, operand string) error {
	v, err := d.constExpr(ctx, operand)
	if err != nil {
		return err
	}
	ctx.Mode65.SetMX(int(v))
	return nil
}

func (d *Dialect) dirXc(ctx *asmcore.ParserContext, operand string) error {
	ctx.Mode65.XC(strings.EqualFold(strings.TrimSpace(operand), "OFF"))
	return nil
}

func (d *Dialect) dirLonga(ctx *asmcore.ParserContext, operand string) error {
	ctx.Mode65.SetLongA(strings.EqualFold(strings.TrimSpace(operand), "ON"))
	return nil
}

func (d *Dialect) dirLongi(ctx *asmcore.ParserContext, operand string) error {
	ctx.Mode65.SetLongI(strings.EqualFold(strings.TrimSpace(operand), "ON"))
	return nil
}

func normalizeImmOperand(operand string) string {
	t := strings.TrimSpace(operand)
	if t == "" || t[0] == '#' {
		return t
	}
	return "#" + t
}

func (d *Dialect) dirRep(ctx *asmcore.ParserContext, operand string) error {
	v, err := d.constExpr(ctx, strings.TrimPrefix(normalizeImmOperand(operand), "#"))
	if err != nil {
		return err
	}
	ctx.Mode65.REP(int(v))
	return d.emitInstruction(ctx, "REP", normalizeImmOperand(operand))
}

func (d *Dialect) dirSep(ctx *asmcore.ParserContext, operand string) error {
	v, err := d.constExpr(ctx, strings.TrimPrefix(normalizeImmOperand(operand), "#"))
	if err != nil {
		return err
	}
	ctx.Mode65.SEP(int(v))
	return d.emitInstruction(ctx, "SEP", normalizeImmOperand(operand))
}

func (d *Dialect) dirInclude(ctx *asmcore.ParserContext, operand string) error {
	name := stripQuotes(strings.TrimSpace(operand))
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
	name := stripQuotes(strings.TrimSpace(nameField))

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

func (d *Dialect) dirEcho(ctx *asmcore.ParserContext, operand string) error {
	ctx.Program.Current.Append(&asmcore.Atom{Kind: asmcore.AtomText, Align: 1, Pos: ctx.CurrentPos, Text: operand})
	return nil
}
