// Package merlin implements the Merlin front end, one of the two 65xx
// dialects named in spec §1. It is grounded on edtasm's structure (same
// teacher lineage: parser/parser.go's single-pass atom stream, lexer.go
// token classification) plus the variable-label two-phase update and
// DO/IF conditional merge documented in §C.
package merlin

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

// Dialect implements asmcore.Parser for Merlin.
// Dialect carries the RS/FO running offset registers as instance state
// (§4.4's "Offset/struct" group), since they must persist across
// directive calls within one translation unit but never leak across
// separate parses.
type Dialect struct {
	rsCounter int64
	foCounter int64
}

func New() *Dialect { return &Dialect{} }

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

// Args implements the macro-argument reader for Merlin: arguments are
// separated by any of `;`, `,`, `.`, `-`, `/`, `(`, or a space (§4.7).
func (d *Dialect) Args(ctx *asmcore.ParserContext, line string) ([]string, error) {
	var args []string
	i := 0
	isSep := func(b byte) bool {
		switch b {
		case ';', ',', '.', '-', '/', '(', ' ', '\t':
			return true
		}
		return false
	}
	for i < len(line) {
		for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
			i++
		}
		if i >= len(line) {
			break
		}
		start := i
		for i < len(line) && !isSep(line[i]) {
			i++
		}
		if i > start {
			args = append(args, line[start:i])
		}
		if i < len(line) && isSep(line[i]) {
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

// ExpandMacro expands a Merlin macro body using the shared backslash/bracket
// escape table (§4.7): \1-\9, \0, \@, \<sym>, \(), \NAME, ]1-]8, ]0, ]].
func (d *Dialect) ExpandMacro(ctx *asmcore.ParserContext, m *asmcore.Macro, inv *asmcore.Invocation) ([]string, error) {
	out := make([]string, 0, len(m.Body))
	for _, l := range m.Body {
		expanded, err := asmcore.ExpandEscapes(l, asmcore.EscapeMerlin, inv)
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

// rewriteTerminatorAliases implements the dispatch-time rewrite of Merlin's
// `<<<` (synonym for EOM) and `--^` (synonym for ENDR) tokens (§4.4).
func rewriteTerminatorAliases(mnemonic string) string {
	switch mnemonic {
	case "<<<":
		return "EOM"
	case "--^":
		return "ENDR"
	}
	return mnemonic
}

func (d *Dialect) parseLine(ctx *asmcore.ParserContext, raw string) error {
	fields := asmcore.SplitLine(raw, shims)
	if fields.FullLine {
		return nil
	}

	mnUpper := rewriteTerminatorAliases(strings.ToUpper(fields.Mnemonic))

	if handled, err := d.handleConditional(ctx, mnUpper, fields.Operand); handled {
		return err
	}
	if !ctx.Program.Conditional.Active() {
		return nil
	}

	// `>>>NAME` macro invocation sigil: the whole mnemonic token starts
	// with `>>>` (§4.7 Invocation).
	if strings.HasPrefix(fields.Mnemonic, ">>>") {
		return d.invokeMacroByName(ctx, fields.Mnemonic[3:], fields.Operand)
	}

	claimsLabel := mnUpper == "EQU" || mnUpper == "=" || mnUpper == "SET" || mnUpper == "SE" ||
		mnUpper == "MAC" || mnUpper == "MACRO"
	if fields.Label != "" && !claimsLabel {
		if err := d.bindLabel(ctx, fields.Label); err != nil {
			return err
		}
	}

	if fields.Mnemonic == "" {
		return nil
	}

	switch mnUpper {
	case "EQU", "=":
		return d.defineEquOrSet(ctx, fields.Label, fields.Operand, false)
	case "SET", "SE":
		return d.defineEquOrSet(ctx, fields.Label, fields.Operand, true)
	case "MAC", "MACRO":
		return d.defineMacro(ctx, fields.Label)
	case "PMC":
		name, rest := splitFirstToken(fields.Operand)
		return d.invokeMacroByName(ctx, name, rest)
	}

	if h, ok := directives[mnUpper]; ok {
		return h(d, ctx, fields.Operand)
	}

	if m, ok := ctx.Program.Macros.Lookup(mnUpper); ok {
		return d.invokeMacro(ctx, m, fields.Operand)
	}

	return d.emitInstruction(ctx, fields.Mnemonic, fields.Operand)
}

func splitFirstToken(s string) (string, string) {
	s = strings.TrimLeft(s, " \t")
	i := 0
	for i < len(s) && s[i] != ' ' && s[i] != '\t' && s[i] != ',' {
		i++
	}
	return s[:i], strings.TrimLeft(s[i:], " \t,")
}

// bindLabel resolves Merlin's label taxonomy: `]NAME` variable labels,
// `:ID` locals scoped to the last global, current-PC `*`/`.` routed to ORG,
// and ordinary global labels (§4.3).
func (d *Dialect) bindLabel(ctx *asmcore.ParserContext, label string) error {
	switch {
	case strings.HasPrefix(label, "]"):
		// Defined via EQU/SET handling (claimsLabel above keeps this out of
		// the generic path); a bare `]NAME` with no assignment still needs a
		// LABSYM bound at the current PC for completeness.
		name := ctx.Program.Locals.VarCurrentName(label[1:])
		return d.defineLabelAt(ctx, name)
	case strings.HasPrefix(label, ":"):
		name, err := ctx.Program.Locals.LocalName(label[1:])
		if err != nil {
			return err
		}
		return d.defineLabelAt(ctx, name)
	case label == "*" || label == ".":
		return nil // current-PC label: with EQU/= it is an ORG, in defineEquOrSet
	default:
		ctx.Program.Locals.SetLastGlobal(label)
		return d.defineLabelAt(ctx, label)
	}
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
	e, _, err := expr.Parse(rewriteVarLabels(ctx, operand), exprOpts())
	if err != nil {
		return 0, err
	}
	return expr.Eval(e, ctx.Program.Symbols.Resolver(ctx.Program.Current.PC))
}

// rewriteVarLabels substitutes every `]NAME` occurrence in an operand
// string with its current (or, mid-update, still-old) backing symbol name
// before the string reaches expr.Parse. expr's lexer has no notion of `]`
// as part of an identifier (expr/lexer.go), so without this rewrite a
// reference like `]V+1` lexes as a bare `]` symbol followed by a dangling
// `V` token and fails to resolve — breaking every read of a Merlin
// variable label, including the defining expression of `]V = ]V+1` itself
// (§3, §4.5, §9 "Variable-label deferral", spec.md S1). Quoted literals are
// copied verbatim so a `]` inside a character/string literal is untouched.
func rewriteVarLabels(ctx *asmcore.ParserContext, s string) string {
	if !strings.ContainsRune(s, ']') {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); {
		c := s[i]
		if c == '\'' || c == '"' {
			quote := c
			b.WriteByte(c)
			i++
			for i < len(s) && s[i] != quote {
				b.WriteByte(s[i])
				i++
			}
			if i < len(s) {
				b.WriteByte(s[i])
				i++
			}
			continue
		}
		if c == ']' && i+1 < len(s) && isIdentStart(s[i+1]) {
			j := i + 1
			for j < len(s) && isIdentChar(s[j]) {
				j++
			}
			b.WriteString(ctx.Program.Locals.VarCurrentName(s[i+1:j]))
			i = j
			continue
		}
		b.WriteByte(c)
		i++
	}
	return b.String()
}

// defineEquOrSet implements §4.5's EQU/SET dispatch plus the `]NAME`
// variable-label two-phase update (§3, §9 "Variable-label deferral"): the
// pending unique name is prepared BEFORE the RHS is evaluated, so `]V =
// ]V+1` reads the OLD backing's value, then finalized AFTER.
func (d *Dialect) defineEquOrSet(ctx *asmcore.ParserContext, label, operand string, mutable bool) error {
	if label == "" {
		return fmt.Errorf("EQU/SET requires a label")
	}
	if label == "*" || label == "." {
		return d.dirOrg(ctx, operand)
	}
	if strings.HasPrefix(label, "]") {
		varName := label[1:]
		pending := ctx.Program.Locals.VarPrepareRewrite(varName)
		v, err := d.constExpr(ctx, operand)
		if err != nil {
			return err
		}
		finalName, err := ctx.Program.Locals.VarFinalize(varName)
		if err != nil {
			return err
		}
		sym, err := ctx.Program.Symbols.Define(finalName, asmcore.SymExpression, false)
		if err != nil {
			return err
		}
		sym.Value = uint32(v)
		sym.Defined = true
		_ = pending
		return nil
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
	for i, op := range ops {
		ops[i] = rewriteVarLabels(ctx, op)
	}
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

// handleConditional routes Merlin's conditional directives through the
// shared asmcore.ConditionalStack (§4.9), including the §C
// supplement: `DO` and the compatibility alias `IF` share one handler
// (numeric predicate, nonzero means taken), and `FIN` tolerates an
// unmatched close with a warning instead of an error (S6).
func (d *Dialect) handleConditional(ctx *asmcore.ParserContext, mnemonic, operand string) (bool, error) {
	switch mnemonic {
	case "DO", "IF":
		v, err := d.evalCond(ctx, operand)
		if err != nil {
			v = false
		}
		return true, ctx.Program.Conditional.Push(v)
	case "IFDEF":
		_, ok := ctx.Program.Symbols.Lookup(strings.TrimSpace(operand))
		return true, ctx.Program.Conditional.Push(ok)
	case "IFND":
		_, ok := ctx.Program.Symbols.Lookup(strings.TrimSpace(operand))
		return true, ctx.Program.Conditional.Push(!ok)
	case "IFMACROD":
		return true, ctx.Program.Conditional.Push(ctx.Program.Macros.Defined(strings.TrimSpace(operand)))
	case "IFMACROND":
		return true, ctx.Program.Conditional.Push(!ctx.Program.Macros.Defined(strings.TrimSpace(operand)))
	case "IFUSED", "IFNUSED":
		// No reference-counting pass exists in a single-pass assembler;
		// approximate "used" as "defined", same spirit as IFP1/IFP2 below.
		_, ok := ctx.Program.Symbols.Lookup(strings.TrimSpace(operand))
		if mnemonic == "IFNUSED" {
			ok = !ok
		}
		return true, ctx.Program.Conditional.Push(ok)
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
	case "IFP1":
		ctx.Program.Errors.AddWarning(ctx.CurrentPos, "IFP1 is always taken (single-pass assembler)")
		return true, ctx.Program.Conditional.Push(true)
	case "IFP2":
		ctx.Program.Errors.AddWarning(ctx.CurrentPos, "IFP2 is always skipped (single-pass assembler)")
		return true, ctx.Program.Conditional.Push(false)
	case "ELSE":
		return true, ctx.Program.Conditional.ElseMerlin()
	case "ELSEIF":
		v, err := d.evalCond(ctx, operand)
		if err != nil {
			v = false
		}
		return true, ctx.Program.Conditional.ElseIf(v)
	case "FIN", "EI", "ENDIF":
		warned, err := ctx.Program.Conditional.End(true)
		if warned {
			ctx.Program.Errors.AddWarning(ctx.CurrentPos, "FIN without matching DO/IF")
		}
		return true, err
	}
	return false, nil
}

func (d *Dialect) evalCond(ctx *asmcore.ParserContext, operand string) (bool, error) {
	e, _, err := expr.Parse(rewriteVarLabels(ctx, operand), exprOpts())
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
		"ORG":     (*Dialect).dirOrg,
		"OR":      (*Dialect).dirOrg,
		"RORG":    (*Dialect).dirRorg,
		"PH":      (*Dialect).dirRorg,
		"PHASE":   (*Dialect).dirRorg,
		"REND":    (*Dialect).dirRend,
		"EP":      (*Dialect).dirRend,
		"DEPHASE": (*Dialect).dirRend,
		"DUM":     (*Dialect).dirDum,
		"DSECT":   (*Dialect).dirDum,
		"DEND":    (*Dialect).dirDend,
		"ED":      (*Dialect).dirDend,
		"DB":      (*Dialect).dirByte,
		"FCB":     (*Dialect).dirByte,
		"BYTE":    (*Dialect).dirByte,
		"DW":      (*Dialect).dirWord,
		"FDB":     (*Dialect).dirWord,
		"WORD":    (*Dialect).dirWord,
		"DA":      (*Dialect).dirWord,
		"DDB":     (*Dialect).dirDdb,
		"DL":      (*Dialect).dirDl,
		"ADRL":    (*Dialect).dirDl,
		"DS":      (*Dialect).dirSpace,
		"BS":      (*Dialect).dirSpace,
		"RMB":     (*Dialect).dirSpace,
		"ASC":     (*Dialect).dirString,
		"AS":      (*Dialect).dirString,
		"FCC":     (*Dialect).dirString,
		"AZ":      (*Dialect).dirStringZ,
		"AT":      (*Dialect).dirDci,
		"DCI":     (*Dialect).dirDci,
		"INV":     (*Dialect).dirInv,
		"FLS":     (*Dialect).dirFls,
		"REV":     (*Dialect).dirRev,
		"STR":     (*Dialect).dirStr,
		"STRL":    (*Dialect).dirStrl,
		"FCS":     (*Dialect).dirFcs,
		"HEX":     (*Dialect).dirHexMerlin,
		"HS":      (*Dialect).dirHexMerlin,
		"XDEF":    (*Dialect).dirXdef,
		"ENT":     (*Dialect).dirXdef,
		"GLOBAL":  (*Dialect).dirXdef,
		"XREF":    (*Dialect).dirXref,
		"EXT":     (*Dialect).dirXref,
		"EXTERN":  (*Dialect).dirXref,
		"NREF":    (*Dialect).dirXref,
		"WEAK":    (*Dialect).dirWeak,
		"LOCAL":   (*Dialect).dirLocalSym,
		"COMM":    (*Dialect).dirComm,
		"EVEN":    (*Dialect).dirEven,
		"ODD":     (*Dialect).dirOdd,
		"ALIGN":   (*Dialect).dirAlign,
		"CNOP":    (*Dialect).dirCnop,
		"PG":      (*Dialect).dirNoop,
		"RSSET":   (*Dialect).dirRSSet,
		"RSRESET": (*Dialect).dirRSSet,
		"RS":      (*Dialect).dirRS,
		"CLRFO":   (*Dialect).dirClrfo,
		"SETFO":   (*Dialect).dirSetfo,
		"CARGS":   (*Dialect).dirCargs,
		"STRUCT":  (*Dialect).dirDum,
		"ENDSTRUCT": (*Dialect).dirDend,
		"REPT":    (*Dialect).dirRept,
		"LUP":     (*Dialect).dirRept,
		"LU":      (*Dialect).dirRept,
		"ENDR":    (*Dialect).dirEndr,
		"ENDU":    (*Dialect).dirEndr,
		"MEXIT":   (*Dialect).dirMexit,
		"EXITMACRO": (*Dialect).dirMexit,
		"EOM":     (*Dialect).dirEom,
		"MX":      (*Dialect).dirMx,
		"XC":      (*Dialect).dirXc,
		"LONGA":   (*Dialect).dirLonga,
		"LONGI":   (*Dialect).dirLongi,
		"REP":     (*Dialect).dirRep,
		"SEP":     (*Dialect).dirSep,
		"LIST":    (*Dialect).dirNoop,
		"NOLIST":  (*Dialect).dirNoop,
		"PAGE":    (*Dialect).dirNoop,
		"TITLE":   (*Dialect).dirNoop,
		"USE":     (*Dialect).dirUse,
		"PUT":     (*Dialect).dirInclude,
		"INCLUDE": (*Dialect).dirInclude,
		"INCBIN":  (*Dialect).dirIncbin,
		"ASSERT":  (*Dialect).dirAssert,
		"ECHO":    (*Dialect).dirEcho,
		"PRINTT":  (*Dialect).dirEcho,
		"PRINTV":  (*Dialect).dirEcho,
		"FAIL":    (*Dialect).dirFail,
		"ERR":     (*Dialect).dirFail,
		"PLEN":    (*Dialect).dirNoop,
		"IDNT":    (*Dialect).dirNoop,
		"DSOURCE": (*Dialect).dirNoop,
		"OPT":     (*Dialect).dirNoop,
		"OUTPUT":  (*Dialect).dirNoop,
		"DAT":     (*Dialect).dirNoop,
		"USR":     (*Dialect).dirNoop,
		"CHK":     (*Dialect).dirNoop,
		"INCDIR":  (*Dialect).dirIncdir,
		"IN":      (*Dialect).dirInclude,
		"INB":     (*Dialect).dirIncbin,
	}
}

// dirFail/ERR force a reported error unconditionally (§4.4's "Listing &
// misc" group), same semantics as a failed ASSERT.
func (d *Dialect) dirFail(ctx *asmcore.ParserContext, operand string) error {
	return fmt.Errorf("FAIL: %s", strings.TrimSpace(operand))
}

// dirIncdir adds a directory to the include-path search list used by
// subsequent INCLUDE/PUT/INCBIN/USE directives (§4.4, §6).
func (d *Dialect) dirIncdir(ctx *asmcore.ParserContext, operand string) error {
	dir := unquoteFilename(strings.TrimSpace(operand))
	if dir == "" {
		return fmt.Errorf("INCDIR requires a path")
	}
	ctx.Opts.IncludePaths = append(ctx.Opts.IncludePaths, dir)
	return nil
}

func (d *Dialect) dirNoop(ctx *asmcore.ParserContext, operand string) error { return nil }

func (d *Dialect) dirOrg(ctx *asmcore.ParserContext, operand string) error {
	v, err := d.constExpr(ctx, operand)
	if err != nil {
		return err
	}
	ctx.Program.Current.Org = uint32(v)
	ctx.Program.Current.PC = uint32(v)
	return nil
}

// dirRorg implements RORG/PH/PHASE: relocate subsequent code to a new
// address without actually moving the section (§4.4 Origin & section).
func (d *Dialect) dirRorg(ctx *asmcore.ParserContext, operand string) error {
	v, err := d.constExpr(ctx, operand)
	if err != nil {
		return err
	}
	ctx.Program.Current.Flags |= asmcore.SecInRorg
	ctx.Program.Current.PC = uint32(v)
	return nil
}

func (d *Dialect) dirRend(ctx *asmcore.ParserContext, operand string) error {
	ctx.Program.Current.Flags &^= asmcore.SecInRorg
	return nil
}

// dirDum implements DUM/DSECT (§4.11): switch to offset-section mode.
// Consecutive DUMs without DEND merely retarget the offset.
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

// dirDdb emits big-endian words (high byte first), per §4.6.
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

func (d *Dialect) dirSpace(ctx *asmcore.ParserContext, operand string) error {
	v, err := d.constExpr(ctx, operand)
	if err != nil {
		return err
	}
	ctx.Program.Current.Append(&asmcore.Atom{Kind: asmcore.AtomSpace, Align: 1, Pos: ctx.CurrentPos, Count: int(v), ElemSz: 1, NoFill: true})
	return nil
}

func readLiteral(operand string) ([]byte, byte, error) {
	content, delim, _, err := asmcore.ReadStringLiteral(strings.TrimSpace(operand), asmcore.StringLiteralOptions{AllowEscapes: false, DoubledDelimiter: true})
	if err != nil {
		return nil, 0, err
	}
	return asmcore.ApplyDelimiterBitTransform(content, delim), delim, nil
}

func (d *Dialect) dirString(ctx *asmcore.ParserContext, operand string) error {
	content, _, err := readLiteral(operand)
	if err != nil {
		return err
	}
	ctx.Program.Current.Append(&asmcore.Atom{Kind: asmcore.AtomData, Align: 1, Pos: ctx.CurrentPos, Bytes: content})
	return nil
}

func (d *Dialect) stringDirective(ctx *asmcore.ParserContext, operand string, kind asmcore.StringDirective) error {
	content, _, err := readLiteral(operand)
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
func (d *Dialect) dirFcs(ctx *asmcore.ParserContext, operand string) error {
	return d.stringDirective(ctx, operand, asmcore.StrFCS)
}

// dirHexMerlin implements Merlin HEX/HS: rejects an odd nibble count
// outright ("even number of hex digits required", §8 Boundary behaviors),
// unlike SCASM's tolerant .HS.
func (d *Dialect) dirHexMerlin(ctx *asmcore.ParserContext, operand string) error {
	digits := asmcore.HexNibbles(operand)
	if len(digits)%2 != 0 {
		return fmt.Errorf("even number of hex digits required")
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

func (d *Dialect) dirCnop(ctx *asmcore.ParserContext, operand string) error {
	a, b := splitCommaPair(operand)
	extra, err := d.constExpr(ctx, a)
	if err != nil {
		return err
	}
	boundary, err := d.constExpr(ctx, b)
	if err != nil {
		return err
	}
	if boundary <= 0 {
		return fmt.Errorf("CNOP boundary must be positive")
	}
	sec := ctx.Program.Current
	rem := (int64(sec.PC) + extra) % boundary
	if rem != 0 {
		pad := int(boundary - rem)
		sec.Append(&asmcore.Atom{Kind: asmcore.AtomSpace, Align: 1, Count: pad, ElemSz: 1, Pos: ctx.CurrentPos})
	}
	return nil
}

func (d *Dialect) dirMexit(ctx *asmcore.ParserContext, operand string) error {
	return ctx.Source.ExitMacro()
}

func (d *Dialect) dirEom(ctx *asmcore.ParserContext, operand string) error {
	return fmt.Errorf("ENDM/EOM without matching MACRO")
}

// dirRSSet/dirRS/dirClrfo/dirSetfo implement §4.4's "Offset/struct" group:
// two independent running counters (RSSET/RS, CLRFO/SETFO), grounded on
// original_source/syntax/edtasm/syntax.c's handle_rsset/handle_clrfo/
// handle_setfo (each a bare new_abs(<counter>, expr) on its own register).
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

// defineMacro records a MAC/MACRO body verbatim up to any of its
// terminators: ENDM, EM, or (after dispatch-time rewrite) <<< (§4.7).
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
		fields := asmcore.SplitLine(line, shims)
		term := rewriteTerminatorAliases(strings.ToUpper(fields.Mnemonic))
		if term == "ENDM" || term == "EM" || term == "EOM" {
			break
		}
		body = append(body, line)
	}
	ctx.Program.Macros.Define(&asmcore.Macro{Name: name, Body: body, DefPos: defPos})
	return nil
}

// dirRept implements REPT/LUP...ENDR/--^/ENDU (§4.8): the count is
// evaluated once, the body recorded verbatim, then replayed N times via a
// repeat source frame. An optional iterator name follows a comma.
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
		fields := asmcore.SplitLine(line, shims)
		term := rewriteTerminatorAliases(strings.ToUpper(fields.Mnemonic))
		if term == "ENDR" || term == "ENDU" {
			break
		}
		body = append(body, line)
	}
	if n <= 0 || len(body) == 0 {
		return nil
	}
	ctx.Source.PushRepeat(body, int(n), strings.TrimSpace(iterName), "REPTN")
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

// normalizeImmOperand auto-inserts a missing `#` on REP/SEP's operand, a
// documented Merlin compatibility quirk (§4.10).
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

// dirUse implements Merlin's ProDOS-path `USE N/file` form (§6 Environment):
// for prefix `4/`, the base path comes from VASM_MERLIN_PREFIX_4 (default
// "./"); other prefixes fall back to a plain search-path lookup.
func (d *Dialect) dirUse(ctx *asmcore.ParserContext, operand string) error {
	name := unquoteFilename(strings.TrimSpace(operand))
	lines, err := incres.New(ctx.Opts.IncludePaths).ReadLinesForUse(name)
	if err != nil {
		return err
	}
	ctx.Source.PushFile(name, lines)
	return nil
}

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
// operand (§4.2). Merlin's macro-argument reader, Args, leaves quotes in
// place.
func unquoteFilename(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
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
