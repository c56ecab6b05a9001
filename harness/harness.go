// Package harness implements the single-input fuzz driver contract around an
// injected elementary-stream parser. Its only goal is to surface crashes and
// hangs inside the parser under adversarial input; parser output is discarded
// unseen.
package harness

import "github.com/zsiec/esfuzz/es"

// DiscardConfig is the no-op decoder-configuration sink.
func DiscardConfig(es.DecoderConfig) {}

// DiscardUnit is the no-op decoded-unit sink.
func DiscardUnit(*es.Unit) {}

// Harness runs fuzz inputs through parsers built by a single factory. It
// holds no per-input state: every input gets a fresh parser instance, so a
// finding on one input reproduces without any history from earlier inputs.
type Harness struct {
	factory es.Factory
	mode    bool
}

// New creates a Harness. The mode flag is forwarded verbatim to the factory
// on every run.
func New(factory es.Factory, mode bool) *Harness {
	return &Harness{factory: factory, mode: mode}
}

// Run feeds one input through a freshly constructed parser and returns 0,
// following the go-fuzz convention. A parse error is the expected outcome for
// malformed data and short-circuits the flush; it is never reported to the
// caller. Real defects are expected to escape as panics for the fuzzing
// engine to catch. Zero-length input is fed like any other.
func (h *Harness) Run(data []byte) int {
	p := h.factory(DiscardConfig, DiscardUnit, h.mode)
	if err := p.Parse(data, es.NoTimestamp, es.NoTimestamp); err != nil {
		return 0
	}
	// Flush drains the end-of-stream path. Its error is as uninteresting
	// as a parse error: only panics matter here.
	p.Flush()
	return 0
}
