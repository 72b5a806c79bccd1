// Package symbols defines the symbol service the trace engine consumes: a
// per-PC lookup of minimal and full symbols, the identity rule used to decide
// whether two instructions belong to the same function, and two resolver
// implementations (a YAML-loadable table and an LRU memoizer).
package symbols

// Minimal - minimal symbol information for a function. Identity is the
// linkage name alone.
type Minimal struct {
	Name  string // Linkage name.
	Entry uint64 // Entry address of the symbol.
}

// Function - full symbol information for a function. Identity is the linkage
// name plus the source file it was defined in.
type Function struct {
	Name  string // Linkage name.
	File  string // Source file the function was defined in.
	Entry uint64 // Entry address of the function.
}

// Resolver maps a program counter to the symbol information the engine works
// with. Either flavor may be absent for a given PC; both being nil means "no
// symbol information".
type Resolver interface {
	// FunctionAt returns the full symbol containing pc, or nil.
	FunctionAt(pc uint64) *Function

	// MinimalAt returns the minimal symbol containing pc, or nil.
	MinimalAt(pc uint64) *Minimal

	// FunctionEntry returns the entry PC of the function containing pc.
	// The second result is false when the enclosing function is unknown.
	FunctionEntry(pc uint64) (uint64, bool)
}

// Switched reports whether the symbol information (newM, newF) names a
// different function than (haveM, haveF).
//
// The minimal flavor compares by linkage name, the full flavor by linkage
// name and source file. Losing all symbol information counts as a switch, as
// does gaining it.
func Switched(haveM *Minimal, haveF *Function, newM *Minimal, newF *Function) bool {
	// If the minimal symbol changed, we certainly switched functions.
	if newM != nil && haveM != nil && newM.Name != haveM.Name {
		return true
	}

	// If the full symbol changed, we certainly switched functions.
	if newF != nil && haveF != nil {
		if newF.Name != haveF.Name {
			return true
		}
		if newF.File != haveF.File {
			return true
		}
	}

	// If we lost symbol information, we switched functions.
	if !(haveM == nil && haveF == nil) && newM == nil && newF == nil {
		return true
	}

	// If we gained symbol information, we switched functions.
	if haveM == nil && haveF == nil && !(newM == nil && newF == nil) {
		return true
	}

	return false
}

// PrintName returns the name to use when printing a function known by the
// given symbols. It never returns the empty string.
func PrintName(m *Minimal, f *Function) string {
	if f != nil {
		return f.Name
	}
	if m != nil {
		return m.Name
	}
	return "<unknown>"
}

// PrintFile returns the file name to use when printing a function known by
// the given symbols. It never returns the empty string.
func PrintFile(f *Function) string {
	if f == nil {
		return "<unknown>"
	}
	return f.File
}
