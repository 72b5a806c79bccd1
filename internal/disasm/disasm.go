// Package disasm pretty-prints recorded instructions: one line per
// instruction with the address, the enclosing symbol and the disassembled
// text.
package disasm

import (
	"fmt"
	"strings"

	"github.com/keurnel/btrace/internal/arch"
	"github.com/keurnel/btrace/internal/symbols"
)

// Flags select optional parts of a printed line.
type Flags uint8

const (
	// FlagRawInsn - print the opcode bytes in front of the text.
	FlagRawInsn Flags = 1 << iota

	// FlagOmitSymbol - leave out the <symbol+offset> annotation.
	FlagOmitSymbol
)

// Printer formats instruction lines for a flat x86-64 code image.
type Printer struct {
	oracle *arch.X86
	syms   symbols.Resolver
	flags  Flags
}

// New returns a printer decoding through oracle and annotating symbols
// through syms. syms may be nil; lines then carry no symbol annotation.
func New(oracle *arch.X86, syms symbols.Resolver, flags Flags) *Printer {
	return &Printer{oracle: oracle, syms: syms, flags: flags}
}

// symname - resolves a branch target for the disassembler syntax.
func (p *Printer) symname(addr uint64) (string, uint64) {
	if p.syms == nil {
		return "", 0
	}
	m := p.syms.MinimalAt(addr)
	if m == nil {
		return "", 0
	}
	return m.Name, m.Entry
}

// annotation - the <symbol+offset> part of a line, empty when unknown.
func (p *Printer) annotation(pc uint64) string {
	if p.flags&FlagOmitSymbol != 0 || p.syms == nil {
		return ""
	}

	name, base := p.symname(pc)
	if name == "" {
		return ""
	}

	if pc == base {
		return fmt.Sprintf(" <%s>", name)
	}
	return fmt.Sprintf(" <%s+%d>", name, pc-base)
}

// Line formats the instruction at pc. Undecodable instructions render as
// "(bad)" so a listing can continue across decode trouble.
func (p *Printer) Line(pc uint64) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%#x%s:\t", pc, p.annotation(pc))

	if p.flags&FlagRawInsn != 0 {
		raw, err := p.oracle.InsnBytes(pc)
		if err == nil {
			for _, b := range raw {
				fmt.Fprintf(&sb, "%02x ", b)
			}
		}
		sb.WriteByte('\t')
	}

	text, err := p.oracle.InsnText(pc, p.symname)
	if err != nil {
		text = "(bad)"
	}
	sb.WriteString(text)

	return sb.String()
}
