package symbols

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// TableFunc - one function entry in a symbol table. A function covers the
// half-open address range [Entry, Entry+Size).
type TableFunc struct {
	Name string `yaml:"name"`
	File string `yaml:"file,omitempty"`
	Entry uint64 `yaml:"entry"`
	Size  uint64 `yaml:"size"`

	// MinimalOnly marks functions for which only a minimal symbol is
	// available (e.g. stripped library code).
	MinimalOnly bool `yaml:"minimal-only,omitempty"`
}

// Table - a Resolver backed by a sorted list of function ranges. It serves
// both as the offline resolver behind the CLI and as the scripted resolver
// in tests.
type Table struct {
	funcs []TableFunc // Sorted by Entry.
}

// NewTable builds a table resolver from the given function entries. The
// entries are sorted by entry address; ranges are expected not to overlap.
func NewTable(funcs []TableFunc) *Table {
	sorted := make([]TableFunc, len(funcs))
	copy(sorted, funcs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Entry < sorted[j].Entry
	})
	return &Table{funcs: sorted}
}

// tableFile - on-disk YAML layout of a symbol table.
type tableFile struct {
	Functions []TableFunc `yaml:"functions"`
}

// LoadTable reads a YAML symbol table from path.
func LoadTable(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseTable(raw)
}

// ParseTable decodes a YAML symbol table.
func ParseTable(raw []byte) (*Table, error) {
	var file tableFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing symbol table: %w", err)
	}
	return NewTable(file.Functions), nil
}

// lookup - finds the entry whose range contains pc. Returns nil on a miss.
func (t *Table) lookup(pc uint64) *TableFunc {
	// Find the first function starting after pc; its predecessor is the
	// only candidate.
	i := sort.Search(len(t.funcs), func(i int) bool {
		return t.funcs[i].Entry > pc
	})
	if i == 0 {
		return nil
	}
	cand := &t.funcs[i-1]
	if pc >= cand.Entry+cand.Size {
		return nil
	}
	return cand
}

// FunctionAt implements Resolver.
func (t *Table) FunctionAt(pc uint64) *Function {
	cand := t.lookup(pc)
	if cand == nil || cand.MinimalOnly {
		return nil
	}
	return &Function{Name: cand.Name, File: cand.File, Entry: cand.Entry}
}

// MinimalAt implements Resolver.
func (t *Table) MinimalAt(pc uint64) *Minimal {
	cand := t.lookup(pc)
	if cand == nil {
		return nil
	}
	return &Minimal{Name: cand.Name, Entry: cand.Entry}
}

// FunctionEntry implements Resolver.
func (t *Table) FunctionEntry(pc uint64) (uint64, bool) {
	cand := t.lookup(pc)
	if cand == nil {
		return 0, false
	}
	return cand.Entry, true
}
