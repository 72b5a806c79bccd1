package btrace

import "github.com/pkg/errors"

// ScriptProvider - a Provider serving canned trace data. It backs offline
// reconstruction in the CLI and the producer side of tests: reads are queued
// per mode and consumed in order, and a read on an exhausted queue fails the
// way a real transport failure would.
type ScriptProvider struct {
	target *ScriptTarget
}

// NewScriptProvider returns a provider handing out the given target for any
// thread.
func NewScriptProvider(target *ScriptTarget) *ScriptProvider {
	return &ScriptProvider{target: target}
}

// Supports implements Provider. The scripted producer records BTS only.
func (p *ScriptProvider) Supports(format Format) bool {
	return format == FormatBTS
}

// Enable implements Provider.
func (p *ScriptProvider) Enable(tid int, conf *Config) (Target, error) {
	p.target.conf = *conf
	return p.target, nil
}

// scriptRead - one queued read result.
type scriptRead struct {
	data *Data
	err  error
}

// ScriptTarget - a Target replaying queued read results.
type ScriptTarget struct {
	conf     Config
	queues   map[ReadMode][]scriptRead
	disabled bool
	torn     bool
}

// NewScriptTarget returns a target with empty read queues.
func NewScriptTarget() *ScriptTarget {
	return &ScriptTarget{queues: make(map[ReadMode][]scriptRead)}
}

// Push queues data as the next successful read result for mode.
func (t *ScriptTarget) Push(mode ReadMode, data *Data) *ScriptTarget {
	t.queues[mode] = append(t.queues[mode], scriptRead{data: data})
	return t
}

// PushErr queues err as the next read result for mode.
func (t *ScriptTarget) PushErr(mode ReadMode, err error) *ScriptTarget {
	t.queues[mode] = append(t.queues[mode], scriptRead{err: err})
	return t
}

// Read implements Target. Results are handed out in Push order; an
// exhausted queue reads as a transport failure. The returned data is a
// fresh copy - the engine mutates block lists while stitching.
func (t *ScriptTarget) Read(mode ReadMode) (*Data, error) {
	queue := t.queues[mode]
	if len(queue) == 0 {
		return nil, errors.Errorf("no %s trace available", mode)
	}

	next := queue[0]
	t.queues[mode] = queue[1:]

	if next.err != nil {
		return nil, next.err
	}

	blocks := make([]Block, len(next.data.Blocks))
	copy(blocks, next.data.Blocks)

	return &Data{Format: next.data.Format, Blocks: blocks}, nil
}

// Conf implements Target.
func (t *ScriptTarget) Conf() (*Config, error) {
	conf := t.conf
	return &conf, nil
}

// Disable implements Target.
func (t *ScriptTarget) Disable() error {
	t.disabled = true
	return nil
}

// Teardown implements Target.
func (t *ScriptTarget) Teardown() error {
	t.torn = true
	return nil
}

// Disabled reports whether Disable was called.
func (t *ScriptTarget) Disabled() bool {
	return t.disabled
}

// TornDown reports whether Teardown was called.
func (t *ScriptTarget) TornDown() bool {
	return t.torn
}
