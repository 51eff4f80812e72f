package asmcore

// Instruction is the parsed-but-unencoded instruction record handed to the
// CPU instruction encoder, the external collaborator the spec declares
// out of scope (§1 Out of scope: "parse_instruction, new_inst,
// parse_operand"). EDTASM is the ARM-targeting dialect (§1), so its
// AtomInstruction atoms carry one of these for the encoder package to
// turn into machine code during AOF area payload generation.
type Instruction struct {
	Mnemonic  string
	Condition string
	SetFlags  bool
	Operands  []string
	Pos       Position
}
