package arch

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// X86 - an Oracle decoding 64-bit x86 instructions from a flat code image
// mapped at a fixed base address.
type X86 struct {
	base uint64
	text []byte
	mode int
}

// NewX86 returns an oracle for the 64-bit code image text mapped at base.
func NewX86(base uint64, text []byte) *X86 {
	return &X86{base: base, text: text, mode: 64}
}

// decode - decodes the instruction at pc, failing when pc lies outside the
// image or the bytes do not form a valid instruction.
func (a *X86) decode(pc uint64) (x86asm.Inst, error) {
	if pc < a.base || pc >= a.base+uint64(len(a.text)) {
		return x86asm.Inst{}, fmt.Errorf("pc %#x outside code image [%#x, %#x)",
			pc, a.base, a.base+uint64(len(a.text)))
	}
	inst, err := x86asm.Decode(a.text[pc-a.base:], a.mode)
	if err != nil {
		return x86asm.Inst{}, fmt.Errorf("decoding instruction at %#x: %v", pc, err)
	}
	return inst, nil
}

// ClassifyInsn implements Oracle.
func (a *X86) ClassifyInsn(pc uint64) (Class, error) {
	inst, err := a.decode(pc)
	if err != nil {
		return ClassOther, err
	}
	switch inst.Op {
	case x86asm.CALL, x86asm.LCALL:
		return ClassCall, nil
	case x86asm.RET, x86asm.LRET:
		return ClassReturn, nil
	case x86asm.JMP, x86asm.LJMP:
		return ClassJump, nil
	}
	return ClassOther, nil
}

// InsnLength implements Oracle.
func (a *X86) InsnLength(pc uint64) (int, error) {
	inst, err := a.decode(pc)
	if err != nil {
		return 0, err
	}
	return inst.Len, nil
}

// InsnText returns the disassembled text of the instruction at pc in Go
// assembler syntax. symname, when non-nil, resolves branch targets to
// symbol names.
func (a *X86) InsnText(pc uint64, symname func(uint64) (string, uint64)) (string, error) {
	inst, err := a.decode(pc)
	if err != nil {
		return "", err
	}
	return x86asm.GoSyntax(inst, pc, symname), nil
}

// InsnBytes returns the raw opcode bytes of the instruction at pc.
func (a *X86) InsnBytes(pc uint64) ([]byte, error) {
	inst, err := a.decode(pc)
	if err != nil {
		return nil, err
	}
	off := pc - a.base
	return a.text[off : off+uint64(inst.Len)], nil
}
