package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/keurnel/btrace/internal/arch"
	"github.com/keurnel/btrace/internal/btrace"
	"github.com/keurnel/btrace/internal/disasm"
	"github.com/keurnel/btrace/internal/symbols"
)

var dumpOpts struct {
	trace   string
	image   string
	base    uint64
	symbols string
	pc      uint64
	insns   bool
	raw     bool
}

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Reconstruct and print a recorded branch trace",
	Long: `Dump reads a recorded btrace block list, a flat code image and a symbol
table, reconstructs the function-call trace offline, and prints it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDump()
	},
}

func init() {
	flags := dumpCmd.Flags()
	flags.StringVar(&dumpOpts.trace, "trace", "", "btrace XML block list (required)")
	flags.StringVar(&dumpOpts.image, "image", "", "flat code image (required)")
	flags.Uint64Var(&dumpOpts.base, "base", 0, "load address of the code image")
	flags.StringVar(&dumpOpts.symbols, "symbols", "", "YAML symbol table")
	flags.Uint64Var(&dumpOpts.pc, "pc", 0, "current PC (defaults to the newest block's end)")
	flags.BoolVar(&dumpOpts.insns, "insns", false, "print the instruction history as well")
	flags.BoolVar(&dumpOpts.raw, "raw", false, "print opcode bytes in the instruction history")

	dumpCmd.MarkFlagRequired("trace")
	dumpCmd.MarkFlagRequired("image")
}

func runDump() error {
	raw, err := os.ReadFile(dumpOpts.trace)
	if err != nil {
		return err
	}
	data, err := btrace.ParseData(raw)
	if err != nil {
		return err
	}
	if data.Empty() {
		return errors.New("trace file contains no blocks")
	}

	image, err := os.ReadFile(dumpOpts.image)
	if err != nil {
		return err
	}
	oracle := arch.NewX86(dumpOpts.base, image)

	var resolver symbols.Resolver
	if dumpOpts.symbols != "" {
		table, err := symbols.LoadTable(dumpOpts.symbols)
		if err != nil {
			return err
		}
		resolver = table
	} else {
		resolver = symbols.NewTable(nil)
	}

	// Serve the recorded blocks as a full read; the engine falls back to
	// it after the delta read fails.
	target := btrace.NewScriptTarget()
	target.Push(btrace.ReadAll, data)

	engine := btrace.New(btrace.NewScriptProvider(target), oracle, resolver)

	th := &btrace.Thread{ID: 1, PC: dumpOpts.pc}
	if th.PC == 0 {
		th.PC = data.Blocks[0].End
	}

	conf := &btrace.Config{Format: btrace.FormatBTS}
	if err := engine.Enable(th, conf); err != nil {
		return err
	}
	if err := engine.Fetch(th); err != nil {
		return err
	}

	if err := printCalls(th); err != nil {
		return err
	}

	if dumpOpts.insns {
		fmt.Println()
		return printInsns(th, oracle, resolver)
	}

	return nil
}

// printCalls - prints one line per function segment: number, stack depth as
// indentation, name and global instruction range.
func printCalls(th *btrace.Thread) error {
	bt := &th.Btrace

	it, err := bt.CallBegin()
	if err != nil {
		return err
	}

	for {
		f := it.Get()
		if f == nil {
			break
		}

		if f.IsGap() {
			fmt.Printf("%d\t[decode error: %s]\n", f.Number, f.ErrCode)
		} else {
			indent := strings.Repeat("  ", f.Level+bt.Level())
			fmt.Printf("%d\t%s%s\tinsn [%d, %d)\n",
				f.Number, indent, f.PrintName(),
				f.InsnOffset, f.InsnOffset+len(f.Insns))
		}

		if it.Next(1) == 0 {
			break
		}
	}

	return nil
}

// printInsns - prints the instruction history through the disassembly
// printer, one line per instruction, gaps included.
func printInsns(th *btrace.Thread, oracle *arch.X86, resolver symbols.Resolver) error {
	bt := &th.Btrace

	var flags disasm.Flags
	if dumpOpts.raw {
		flags |= disasm.FlagRawInsn
	}
	printer := disasm.New(oracle, resolver, flags)

	it, err := bt.InsnBegin()
	if err != nil {
		return err
	}
	end, err := bt.InsnEnd()
	if err != nil {
		return err
	}

	for it.Cmp(&end) < 0 {
		insn := it.Get()
		if insn == nil {
			fmt.Println("[decode error]")
		} else {
			fmt.Printf("%d\t%s\n", it.Number(), printer.Line(insn.PC))
		}

		if it.Next(1) == 0 {
			break
		}
	}

	return nil
}
