// Package estest provides scriptable es.Parser test doubles for exercising
// harness and feeder code without a real parser. A [Recorder] builds one
// fresh [Parser] per factory call and keeps every instance, so tests can
// assert both per-instance call sequences and instance lifecycle.
package estest

import (
	"sync"

	"github.com/zsiec/esfuzz/es"
)

// Script declares how a scripted parser behaves. The zero value accepts
// every input and emits nothing.
type Script struct {
	ParseErr error // returned by every Parse call
	FlushErr error // returned by Flush

	// Configs are delivered to the config sink on the first Parse call.
	Configs []es.DecoderConfig
	// Units are delivered to the unit sink on every successful Parse.
	Units []*es.Unit
	// FlushUnits are delivered to the unit sink on Flush, modeling a
	// buffered partial unit completed by the end-of-stream drain.
	FlushUnits []*es.Unit
}

// Call records a single operation observed by a scripted parser.
type Call struct {
	Op   string // "parse" or "flush"
	Data []byte // copy of the Parse buffer, nil for flush
	PTS  es.Timestamp
	DTS  es.Timestamp
}

// Recorder hands out fresh scripted parsers through Factory and retains
// every instance it creates.
type Recorder struct {
	script Script

	mu      sync.Mutex
	created []*Parser
}

// NewRecorder creates a Recorder whose parsers all follow script.
func NewRecorder(script Script) *Recorder {
	return &Recorder{script: script}
}

// Factory returns an es.Factory that builds a new scripted parser on every
// call, never reusing an instance.
func (r *Recorder) Factory() es.Factory {
	return func(onConfig es.ConfigHandler, onUnit es.UnitHandler, mode bool) es.Parser {
		p := &Parser{
			script:   r.script,
			Mode:     mode,
			onConfig: onConfig,
			onUnit:   onUnit,
		}
		r.mu.Lock()
		r.created = append(r.created, p)
		r.mu.Unlock()
		return p
	}
}

// Created returns every parser instance built so far, in creation order.
func (r *Recorder) Created() []*Parser {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Parser, len(r.created))
	copy(out, r.created)
	return out
}

// Parser is a scripted es.Parser that records its call sequence.
type Parser struct {
	script Script

	// Mode is the flag the factory was invoked with.
	Mode bool

	onConfig es.ConfigHandler
	onUnit   es.UnitHandler

	mu         sync.Mutex
	calls      []Call
	flushes    int
	configSent bool
}

// Parse records the call, emits scripted configs and units, and returns the
// scripted error. The input buffer is copied so later mutation by the caller
// cannot corrupt the record.
func (p *Parser) Parse(data []byte, pts, dts es.Timestamp) error {
	var cp []byte
	if data != nil {
		cp = make([]byte, len(data))
		copy(cp, data)
	}

	p.mu.Lock()
	p.calls = append(p.calls, Call{Op: "parse", Data: cp, PTS: pts, DTS: dts})
	sendConfig := !p.configSent && p.script.ParseErr == nil
	if sendConfig {
		p.configSent = true
	}
	p.mu.Unlock()

	if p.script.ParseErr != nil {
		return p.script.ParseErr
	}
	if sendConfig {
		for _, cfg := range p.script.Configs {
			p.onConfig(cfg)
		}
	}
	for _, u := range p.script.Units {
		p.onUnit(u)
	}
	return nil
}

// Flush records the call, emits scripted flush units, and returns the
// scripted error.
func (p *Parser) Flush() error {
	p.mu.Lock()
	p.calls = append(p.calls, Call{Op: "flush"})
	p.flushes++
	p.mu.Unlock()

	if p.script.FlushErr != nil {
		return p.script.FlushErr
	}
	for _, u := range p.script.FlushUnits {
		p.onUnit(u)
	}
	return nil
}

// Calls returns the recorded call sequence.
func (p *Parser) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

// Flushes returns how many times Flush was called.
func (p *Parser) Flushes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushes
}
