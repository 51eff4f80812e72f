package expr

import "testing"

type mapResolver struct {
	syms map[string]int64
	pc   int64
}

func (m mapResolver) LookupSymbol(name string) (int64, bool) {
	v, ok := m.syms[name]
	return v, ok
}
func (m mapResolver) CurrentPC() int64 { return m.pc }

func TestEvalArithmetic(t *testing.T) {
	// (2 + 3) * 4 - 1 = 19
	e := Binary(OpSub, Binary(OpMul, Binary(OpAdd, Number(2), Number(3)), Number(4)), Number(1))
	v, err := Eval(e, mapResolver{})
	if err != nil {
		t.Fatal(err)
	}
	if v != 19 {
		t.Fatalf("got %d, want 19", v)
	}
}

func TestEvalSymbolAndPC(t *testing.T) {
	r := mapResolver{syms: map[string]int64{"LEN": 10}, pc: 0x8000}
	e := Binary(OpAdd, Symbol("LEN"), CurrentPC())
	v, err := Eval(e, r)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0x800A {
		t.Fatalf("got 0x%X, want 0x800A", v)
	}
}

func TestEvalUndefinedSymbol(t *testing.T) {
	_, err := Eval(Symbol("NOPE"), mapResolver{})
	if err == nil {
		t.Fatal("expected an ErrUndefined")
	}
	var undef *ErrUndefined
	if !asErrUndefined(err, &undef) {
		t.Fatalf("expected *ErrUndefined, got %T: %v", err, err)
	}
	if undef.Name != "NOPE" {
		t.Fatalf("ErrUndefined.Name = %q, want NOPE", undef.Name)
	}
}

func asErrUndefined(err error, out **ErrUndefined) bool {
	e, ok := err.(*ErrUndefined)
	if ok {
		*out = e
	}
	return ok
}

func TestEvalDivisionByZero(t *testing.T) {
	if _, err := Eval(Binary(OpDiv, Number(1), Number(0)), mapResolver{}); err == nil {
		t.Fatal("expected a division-by-zero error")
	}
}

func TestUnaryOperators(t *testing.T) {
	cases := []struct {
		op   Op
		in   int64
		want int64
	}{
		{OpNeg, 5, -5},
		{OpNot, 0, -1},
		{OpLNot, 0, 1},
		{OpLNot, 7, 0},
	}
	for _, c := range cases {
		v, err := Eval(Unary(c.op, Number(c.in)), mapResolver{})
		if err != nil {
			t.Fatal(err)
		}
		if v != c.want {
			t.Fatalf("op=%d in=%d got=%d want=%d", c.op, c.in, v, c.want)
		}
	}
}

func TestIsConstantAndSimplify(t *testing.T) {
	constExpr := Binary(OpAdd, Number(2), Number(3))
	if !IsConstant(constExpr) {
		t.Fatal("expected a NUM-only tree to be constant")
	}
	simplified := Simplify(constExpr)
	if simplified.Kind != KindNum || simplified.Num != 5 {
		t.Fatalf("Simplify did not fold to 5: %+v", simplified)
	}

	withSym := Binary(OpAdd, Symbol("X"), Number(1))
	if IsConstant(withSym) {
		t.Fatal("a tree referencing a symbol must not be constant")
	}
	// Simplify must leave the symbol-dependent subtree intact for later
	// resolution (forward references, §9 Atom graph).
	simplified2 := Simplify(withSym)
	if simplified2.Kind != KindBinary || simplified2.Left.Kind != KindSym {
		t.Fatalf("Simplify folded away a forward reference: %+v", simplified2)
	}
}

func TestCopyTreeIsDeep(t *testing.T) {
	orig := Binary(OpAdd, Symbol("A"), Number(1))
	cp := CopyTree(orig)
	cp.Left.Sym = "MUTATED"
	if orig.Left.Sym == "MUTATED" {
		t.Fatal("CopyTree must produce an independent tree, not share nodes")
	}
}
