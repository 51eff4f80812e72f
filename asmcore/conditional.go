package asmcore

import "fmt"

// CondFrame is a single conditional-assembly stack entry (§3, §4.9).
type CondFrame struct {
	Taken  bool
	InElse bool
}

// ConditionalStack is the engine behind §4.9: a line is "executed" only
// while every frame on the stack is Taken. Depth is bounded (default 256,
// per §3's "bounded by a constant").
type ConditionalStack struct {
	frames  []CondFrame
	maxDepth int
}

func NewConditionalStack(maxDepth int) *ConditionalStack {
	return &ConditionalStack{maxDepth: maxDepth}
}

// Active reports whether code at the current nesting level should be
// parsed for real (every enclosing frame is taken).
func (c *ConditionalStack) Active() bool {
	for _, f := range c.frames {
		if !f.Taken {
			return false
		}
	}
	return true
}

// Push implements the IF-family handlers: when the enclosing frame is
// taken, the new frame's Taken is the evaluated predicate; otherwise it is
// pushed as false regardless (§4.9 table) so nested IFs inside a skipped
// block don't spuriously flip taken when their own ELSE runs.
func (c *ConditionalStack) Push(predicate bool) error {
	if len(c.frames) >= c.maxDepth {
		return fmt.Errorf("maximum conditional nesting depth exceeded")
	}
	enclosingTaken := c.Active()
	taken := enclosingTaken && predicate
	c.frames = append(c.frames, CondFrame{Taken: taken})
	return nil
}

// Else implements ELSE/EL: flips Taken if the enclosing frame is taken,
// and marks InElse so a further ELSEIF is rejected.
func (c *ConditionalStack) Else() error {
	if len(c.frames) == 0 {
		return fmt.Errorf("else without if")
	}
	top := &c.frames[len(c.frames)-1]
	if top.InElse {
		return fmt.Errorf("else after else")
	}
	enclosingTaken := true
	for _, f := range c.frames[:len(c.frames)-1] {
		if !f.Taken {
			enclosingTaken = false
			break
		}
	}
	if enclosingTaken {
		top.Taken = !top.Taken
	}
	top.InElse = true
	return nil
}

// ElseMerlin implements Merlin's `.ELSE` as documented in §9's Open
// Questions: the real assembler's else-tracking is not robust and, unlike
// textbook if/else, never suppresses a branch that was already taken — it
// only flips a false frame to true. A `DO 1` / `ELSE` / body therefore falls
// through ELSE with the body still active, which is what spec.md's S6
// scenario exercises (two NOPs survive a DO-then-ELSE, not one).
func (c *ConditionalStack) ElseMerlin() error {
	if len(c.frames) == 0 {
		return fmt.Errorf("else without if")
	}
	top := &c.frames[len(c.frames)-1]
	if top.InElse {
		return fmt.Errorf("else after else")
	}
	enclosingTaken := true
	for _, f := range c.frames[:len(c.frames)-1] {
		if !f.Taken {
			enclosingTaken = false
			break
		}
	}
	if enclosingTaken && !top.Taken {
		top.Taken = true
	}
	top.InElse = true
	return nil
}

// ElseIf re-evaluates the predicate; only legal before ELSE (§4.9).
func (c *ConditionalStack) ElseIf(predicate bool) error {
	if len(c.frames) == 0 {
		return fmt.Errorf("elseif without if")
	}
	top := &c.frames[len(c.frames)-1]
	if top.InElse {
		return fmt.Errorf("elseif after else")
	}
	enclosingTaken := true
	for _, f := range c.frames[:len(c.frames)-1] {
		if !f.Taken {
			enclosingTaken = false
			break
		}
	}
	top.Taken = enclosingTaken && predicate
	return nil
}

// End implements ENDIF/FIN/EI. tolerant allows the Merlin FIN behavior of
// warning instead of erroring on an unmatched close (§4.9, S6).
func (c *ConditionalStack) End(tolerant bool) (warned bool, err error) {
	if len(c.frames) == 0 {
		if tolerant {
			return true, nil
		}
		return false, fmt.Errorf("endif without if")
	}
	c.frames = c.frames[:len(c.frames)-1]
	return false, nil
}

// Depth reports current nesting, mainly for diagnostics/tests.
func (c *ConditionalStack) Depth() int { return len(c.frames) }

// CheckEOF implements cond_check(): any unclosed block at EOF is an error
// (§3 invariant, §4.9 "cond_check() at EOF must report any unclosed block").
func (c *ConditionalStack) CheckEOF() error {
	if len(c.frames) != 0 {
		return fmt.Errorf("unterminated conditional block (%d level(s) still open)", len(c.frames))
	}
	return nil
}
