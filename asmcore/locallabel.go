package asmcore

import "fmt"

// LocalLabelScope tracks every form of scoped/synthetic label naming
// described in §4.3: the last-global-label context for `:ID`/`.N` locals,
// the anonymous-label monotonic counter, the private-label context
// counter (SCASM `:N`), and the variable-label (`]NAME`) pending/finalize
// registry (§3, §4.5, §9 "Variable-label deferral").
type LocalLabelScope struct {
	lastGlobal string

	anonCounter int // monotonic; `:+`/`:-` resolve relative to this

	privateContext int // increments per new global label and per macro invocation

	// variable labels: name -> current unique backing name, and a
	// separate pending name prepared before an update expression is
	// evaluated so `]V = ]V+1` reads the *old* backing's value.
	varCurrent map[string]string
	varPending map[string]string
	varCount   map[string]int

	inlineStack []int
	nextInlineID int
}

func NewLocalLabelScope() *LocalLabelScope {
	return &LocalLabelScope{
		varCurrent: make(map[string]string),
		varPending: make(map[string]string),
		varCount:   make(map[string]int),
	}
}

// SetLastGlobal records the most recently defined global label, the
// context that `:ID`/`.N` locals are scoped to.
func (l *LocalLabelScope) SetLastGlobal(name string) {
	l.lastGlobal = name
	l.privateContext++
}

// EnterMacroInvocation bumps the private-label context so `:N`/`]LABEL`
// locals inside a macro body don't clash with outer or sibling
// invocations (§4.7 Scopes).
func (l *LocalLabelScope) EnterMacroInvocation() { l.privateContext++ }

// LocalName synthesizes the unique name for an EDTASM/Merlin/SCASM local
// label `:ID`/`:digits` scoped to the last global label.
func (l *LocalLabelScope) LocalName(id string) (string, error) {
	if l.lastGlobal == "" {
		return "", fmt.Errorf("local label without global context")
	}
	return fmt.Sprintf("%s@%s", l.lastGlobal, id), nil
}

// ScasmLocalName synthesizes the name for a SCASM `.N` local (N in
// 0..255), scoped the same way.
func (l *LocalLabelScope) ScasmLocalName(n int) (string, error) {
	if l.lastGlobal == "" {
		return "", fmt.Errorf("local label without global context")
	}
	return fmt.Sprintf("%s.%d", l.lastGlobal, n), nil
}

// PrivateName synthesizes the name for a SCASM private label `:N`, scoped
// by the private-context counter.
func (l *LocalLabelScope) PrivateName(n int) string {
	return fmt.Sprintf("__priv%d_%d", l.privateContext, n)
}

// DefineAnonymous advances the anonymous counter and returns its synthetic
// name (monotonic counter per §3/§4.3).
func (l *LocalLabelScope) DefineAnonymous() string {
	l.anonCounter++
	return fmt.Sprintf("__anon%d", l.anonCounter)
}

// AnonymousForward returns the name the *next* anonymous label (`:+`) will
// receive once defined.
func (l *LocalLabelScope) AnonymousForward() string {
	return fmt.Sprintf("__anon%d", l.anonCounter+1)
}

// AnonymousBackward returns the most recently defined anonymous label's
// name (`:-`).
func (l *LocalLabelScope) AnonymousBackward() (string, error) {
	if l.anonCounter == 0 {
		return "", fmt.Errorf("no preceding anonymous label")
	}
	return fmt.Sprintf("__anon%d", l.anonCounter), nil
}

// VarCurrentName returns the current backing name for a variable label,
// allocating the first one if this is its first sighting (a forward
// reference ahead of its first EQU).
func (l *LocalLabelScope) VarCurrentName(name string) string {
	if cur, ok := l.varCurrent[name]; ok {
		return cur
	}
	l.varCount[name]++
	cur := fmt.Sprintf("unid_%s_%d", name, l.varCount[name])
	l.varCurrent[name] = cur
	return cur
}

// VarPrepareRewrite implements the "prepare pending unique name BEFORE
// evaluating the RHS" half of the two-phase update (§3, §9). Call this
// before parsing the defining expression of a `]NAME` (re)definition.
func (l *LocalLabelScope) VarPrepareRewrite(name string) string {
	// The current backing is left untouched, so an RHS that references
	// name resolves to the OLD binding. On a first definition the pending
	// name is the first allocation, so backings run unid_NAME_1, _2, ...
	l.varCount[name]++
	pending := fmt.Sprintf("unid_%s_%d", name, l.varCount[name])
	l.varPending[name] = pending
	return pending
}

// VarFinalize implements the "publish AFTER" half: swap the pending name
// into current now that the defining expression has been evaluated.
func (l *LocalLabelScope) VarFinalize(name string) (string, error) {
	pending, ok := l.varPending[name]
	if !ok {
		return "", fmt.Errorf("no pending rewrite for variable label %s", name)
	}
	l.varCurrent[name] = pending
	delete(l.varPending, name)
	return pending, nil
}

// EnterInline pushes a new inline-block scope id, for locals that should
// not leak outside an inline block.
func (l *LocalLabelScope) EnterInline() int {
	l.nextInlineID++
	l.inlineStack = append(l.inlineStack, l.nextInlineID)
	return l.nextInlineID
}

func (l *LocalLabelScope) ExitInline() {
	if len(l.inlineStack) > 0 {
		l.inlineStack = l.inlineStack[:len(l.inlineStack)-1]
	}
}

func (l *LocalLabelScope) CurrentInline() (int, bool) {
	if len(l.inlineStack) == 0 {
		return 0, false
	}
	return l.inlineStack[len(l.inlineStack)-1], true
}
