package arch

import "fmt"

// ScriptedInsn - classification and length of one scripted instruction.
type ScriptedInsn struct {
	Class Class
	Size  int
}

// Scripted - an Oracle backed by a fixed PC-to-instruction map. PCs that were
// never scripted fail to decode, which is how tests and offline tools model
// unreadable memory.
type Scripted struct {
	insns map[uint64]ScriptedInsn
}

// NewScripted returns an empty scripted oracle.
func NewScripted() *Scripted {
	return &Scripted{insns: make(map[uint64]ScriptedInsn)}
}

// Put scripts the instruction at pc.
func (s *Scripted) Put(pc uint64, class Class, size int) *Scripted {
	s.insns[pc] = ScriptedInsn{Class: class, Size: size}
	return s
}

// ClassifyInsn implements Oracle.
func (s *Scripted) ClassifyInsn(pc uint64) (Class, error) {
	insn, ok := s.insns[pc]
	if !ok {
		return ClassOther, fmt.Errorf("no instruction scripted at %#x", pc)
	}
	return insn.Class, nil
}

// InsnLength implements Oracle.
func (s *Scripted) InsnLength(pc uint64) (int, error) {
	insn, ok := s.insns[pc]
	if !ok {
		return 0, fmt.Errorf("no instruction scripted at %#x", pc)
	}
	return insn.Size, nil
}
