package asmcore

import (
	"fmt"

	"github.com/lookbusy1344/vasmgo/expr"
)

// SymbolKind is mutually exclusive per §3's invariant: a symbol is either
// declared (LABSYM/EXPRESSION) or imported (IMPORT), never both.
type SymbolKind int

const (
	SymLabsym SymbolKind = iota
	SymImport
	SymExpression
)

// SymbolFlag is a bitset; several flags may be set on the same symbol.
type SymbolFlag uint32

const (
	FlagExport SymbolFlag = 1 << iota
	FlagXref
	FlagXdef
	FlagWeak
	FlagNear
	FlagLocal
	FlagCommon
	FlagVasmIntern
)

// Symbol is keyed by name in a SymbolTable. Value/Defined mirror the
// resolved numeric state the CPU back-end (encoder) and the object-file
// writers consume; Expr holds the defining expression for symbols whose
// value depends on other symbols (forward references, EQU chains).
type Symbol struct {
	Name    string
	Kind    SymbolKind
	Flags   SymbolFlag
	Section *Section
	Expr    *expr.Expr
	Size    int
	Align   int
	Value   uint32
	Defined bool
	Mutable bool // true for SET/SE, false for EQU/=
}

func (s *Symbol) HasFlag(f SymbolFlag) bool { return s.Flags&f != 0 }

// SymbolTable is the process-wide registry described in §5 (owned by the
// parser for the duration of its single pass). NoCase mirrors the
// per-parser case-sensitivity flag from §3.
type SymbolTable struct {
	NoCase  bool
	symbols map[string]*Symbol
	order   []string
}

func NewSymbolTable(noCase bool) *SymbolTable {
	return &SymbolTable{NoCase: noCase, symbols: make(map[string]*Symbol)}
}

func (t *SymbolTable) key(name string) string {
	if t.NoCase {
		return toUpperASCII(name)
	}
	return name
}

func toUpperASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 32
		}
	}
	return string(b)
}

// Lookup returns the symbol for name, or (nil, false) if never sighted.
func (t *SymbolTable) Lookup(name string) (*Symbol, bool) {
	s, ok := t.symbols[t.key(name)]
	return s, ok
}

// Get returns the resolved numeric value of a defined symbol, or an error
// describing why it cannot be resolved yet (undefined / import-only).
func (t *SymbolTable) Get(name string) (uint32, error) {
	s, ok := t.Lookup(name)
	if !ok {
		return 0, fmt.Errorf("undefined symbol: %s", name)
	}
	if !s.Defined {
		return 0, fmt.Errorf("symbol %s has no resolved value yet", name)
	}
	return s.Value, nil
}

// Define creates or rebinds a symbol. EQU-style equates are immutable
// after definition; SET/SE-style symbols may be rebound repeatedly
// (§3 Lifecycle, §8 round-trip law: "value at use-site equals the most
// recent SET preceding it in source order").
func (t *SymbolTable) Define(name string, kind SymbolKind, mutable bool) (*Symbol, error) {
	k := t.key(name)
	if existing, ok := t.symbols[k]; ok {
		if existing.Kind == SymImport {
			return nil, fmt.Errorf("xref must not be defined already: %s", name)
		}
		if !existing.Mutable {
			return nil, fmt.Errorf("binding already set: %s", name)
		}
		existing.Kind = kind
		existing.Mutable = mutable
		return existing, nil
	}
	s := &Symbol{Name: name, Kind: kind, Mutable: mutable}
	t.symbols[k] = s
	t.order = append(t.order, k)
	return s, nil
}

// Import registers an external (IMPORT/xref) symbol.
func (t *SymbolTable) Import(name string) (*Symbol, error) {
	k := t.key(name)
	if existing, ok := t.symbols[k]; ok {
		if existing.Kind != SymImport {
			return nil, fmt.Errorf("xref must not be defined already: %s", name)
		}
		return existing, nil
	}
	s := &Symbol{Name: name, Kind: SymImport, Flags: FlagXref}
	t.symbols[k] = s
	t.order = append(t.order, k)
	return s, nil
}

// SetValue resolves a symbol to a concrete numeric value (used once its
// defining expression evaluates cleanly, or immediately for simple
// equates of a constant).
func (t *SymbolTable) SetValue(name string, value uint32) {
	k := t.key(name)
	s, ok := t.symbols[k]
	if !ok {
		s = &Symbol{Name: name}
		t.symbols[k] = s
		t.order = append(t.order, k)
	}
	s.Value = value
	s.Defined = true
}

// Undefined returns every symbol that was referenced or imported but never
// resolved to a value — used for the `/CMD` writer's "undefined IMPORT is
// fatal" rule (§4.13) and general end-of-parse diagnostics.
func (t *SymbolTable) Undefined() []*Symbol {
	var out []*Symbol
	for _, k := range t.order {
		s := t.symbols[k]
		if !s.Defined {
			out = append(out, s)
		}
	}
	return out
}

// All returns every symbol in definition order, for the object-file
// writers' symbol table emission.
func (t *SymbolTable) All() []*Symbol {
	out := make([]*Symbol, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, t.symbols[k])
	}
	return out
}

// symbolResolver adapts a SymbolTable + current PC into an expr.Resolver.
type symbolResolver struct {
	table *SymbolTable
	pc    int64
}

func (r symbolResolver) LookupSymbol(name string) (int64, bool) {
	s, ok := r.table.Lookup(name)
	if !ok || !s.Defined {
		return 0, false
	}
	return int64(s.Value), true
}

func (r symbolResolver) CurrentPC() int64 { return r.pc }

// Resolver builds an expr.Resolver bound to this table and a PC value,
// for evaluating an expr.Expr tree produced by the expr package.
func (t *SymbolTable) Resolver(pc uint32) expr.Resolver {
	return symbolResolver{table: t, pc: int64(pc)}
}
