package btrace

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/keurnel/btrace/internal/arch"
	"github.com/keurnel/btrace/internal/symbols"
)

// Engine reconstructs function-call traces from raw branch trace. Create an
// Engine exclusively through New.
//
// All entry points are meant to run on the debugger's main control thread;
// the engine performs no locking of its own.
type Engine struct {
	provider Provider
	arch     *arch.Service
	syms     symbols.Resolver
	log      *log.Entry
}

// New returns an engine reading raw trace from provider, classifying
// instructions through oracle and resolving symbols through syms. Symbol
// lookups are memoized in an LRU; the resolver is consulted once per
// distinct PC for as long as that PC stays cached.
func New(provider Provider, oracle arch.Oracle, syms symbols.Resolver) *Engine {
	return &Engine{
		provider: provider,
		arch:     arch.NewService(oracle),
		syms:     symbols.Memoize(syms, 0),
		log:      log.StandardLogger().WithField("module", "btrace"),
	}
}

// SetLogger redirects the engine's debug channel to logger.
func (e *Engine) SetLogger(logger *log.Logger) {
	e.log = logger.WithField("module", "btrace")
}

// addPC - seeds the trace with a single synthetic block holding the current
// PC, so iteration is defined right after enabling.
func (e *Engine) addPC(th *Thread) {
	data := &Data{
		Format: FormatBTS,
		Blocks: []Block{{Begin: th.PC, End: th.PC}},
	}

	e.computeFtrace(th, data)
}

// Enable starts branch tracing for th. Enabling an already traced thread is
// a no-op. Returns ErrNotSupported when the producer refuses the requested
// format.
func (e *Engine) Enable(th *Thread, conf *Config) error {
	if th.Btrace.target != nil {
		return nil
	}

	if !e.provider.Supports(conf.Format) {
		return ErrNotSupported
	}

	e.log.Debugf("enable thread %d", th.ID)

	target, err := e.provider.Enable(th.ID, conf)
	if err != nil {
		return err
	}
	th.Btrace.target = target

	// Record an entry for the current PC so tracing starts from where it
	// was enabled. A producer may enable silently without a handle; a
	// later Fetch on such a thread stays a no-op.
	if target != nil {
		e.addPC(th)
	}

	return nil
}

// Conf returns the configuration the thread's recording runs with, nil when
// the thread is not traced.
func (e *Engine) Conf(th *Thread) (*Config, error) {
	if th.Btrace.target == nil {
		return nil, nil
	}

	return th.Btrace.target.Conf()
}

// Fetch updates th's trace from the producer. Fetching an untraced or
// replaying thread is a silent no-op.
//
// An existing trace is extended with a delta read where possible; on stitch
// failure the engine tries a new read, and as a last resort clears the trace
// and re-reads everything.
func (e *Engine) Fetch(th *Thread) error {
	e.log.Debugf("fetch thread %d", th.ID)

	bt := &th.Btrace
	target := bt.target
	if target == nil {
		return nil
	}

	// There is no way to get new trace while replaying: a delta read would
	// return a partial record against the replay PC, not the last PC.
	if bt.replay != nil {
		return nil
	}

	var data *Data
	var err error

	// First try to extend the trace we already have.
	if bt.end != NoFunc {
		data, err = target.Read(ReadDelta)
		if err == nil {
			if serr := e.stitchTrace(th, data); serr != nil {
				// The delta cannot be anchored. Drop it and try
				// reading new trace instead.
				e.log.Debugf("stitch failed: %v", serr)

				data, err = target.Read(ReadNew)

				// Any new trace replaces what we have.
				if err == nil && !data.Empty() {
					e.Clear(th)
				}
			}
		}

		// If we were not able to read the trace, start over.
		if err != nil {
			e.Clear(th)
			data, err = target.Read(ReadAll)
		}
	} else {
		data, err = target.Read(ReadAll)
	}

	if err != nil {
		return errors.Wrap(err, "failed to read branch trace")
	}

	if !data.Empty() {
		// Saved cursors may reference instructions the rebuild prunes.
		bt.clearHistory()
		e.computeFtrace(th, data)
	}

	return nil
}

// Clear drops th's trace. All segment references and cursors into the trace
// become invalid.
func (e *Engine) Clear(th *Thread) {
	e.log.Debugf("clear thread %d", th.ID)

	th.Btrace.clear()
}

// Disable stops tracing th and drops its trace.
func (e *Engine) Disable(th *Thread) {
	bt := &th.Btrace
	if bt.target == nil {
		return
	}

	e.log.Debugf("disable thread %d", th.ID)

	if err := bt.target.Disable(); err != nil {
		e.log.Warnf("disabling branch trace for thread %d: %v", th.ID, err)
	}
	bt.target = nil

	e.Clear(th)
}

// Teardown stops tracing th because the thread is going away, and drops its
// trace.
func (e *Engine) Teardown(th *Thread) {
	bt := &th.Btrace
	if bt.target == nil {
		return
	}

	e.log.Debugf("teardown thread %d", th.ID)

	if err := bt.target.Teardown(); err != nil {
		e.log.Warnf("tearing down branch trace for thread %d: %v", th.ID, err)
	}
	bt.target = nil

	e.Clear(th)
}

// IsReplaying reports whether th is replaying, i.e. the user is stepping
// through the recorded history.
func (e *Engine) IsReplaying(th *Thread) bool {
	return th.Btrace.replay != nil
}

// IsEmpty reports whether th's trace contains no iterable instructions. A
// trace holding only the current PC counts as empty.
func (e *Engine) IsEmpty(th *Thread) bool {
	bt := &th.Btrace

	if bt.begin == NoFunc {
		return true
	}

	begin, err := bt.InsnBegin()
	if err != nil {
		return true
	}
	end, err := bt.InsnEnd()
	if err != nil {
		return true
	}

	return begin.Cmp(&end) == 0
}
