// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"io"
	"math"
	"sync"
	"time"

	"github.com/DataDog/dd-trace-core/ddtrace/ext"
	"github.com/DataDog/dd-trace-core/internal/log"
	"github.com/DataDog/dd-trace-core/internal/samplernames"
)

// pendingTrace accumulates the spans of a single trace while some of them are
// still running, along with the sampling state which must be stamped onto the
// trace's root before it leaves the process.
type pendingTrace struct {
	spanIDs  map[uint64]struct{} // ids of all spans registered for the trace
	finished spanList            // finished spans, in finish order

	priority *SamplingPriority // sampling priority, nil until a decision is made
	locked   bool              // when set, the priority may no longer be altered

	origin        string // propagated trace origin; empty means unset
	hostname      string // reported on the root span when non-empty
	analyticsRate float64
	result        sampleResult
}

// samplingPriority returns the trace's current priority. The buffer mutex
// must be held.
func (t *pendingTrace) samplingPriority() (SamplingPriority, bool) {
	if t.priority == nil {
		return 0, false
	}
	return *t.priority, true
}

// setSamplingPriority applies the priority precedence rules. Propagated
// priorities and Auto* values lock the trace; a locked trace silently retains its value
// except that explicit attempts (manual overrides or clears) are reported.
// It returns the priority in effect after the call. The buffer mutex must be
// held.
func (t *pendingTrace) setSamplingPriority(traceID uint64, p *SamplingPriority, sampler samplernames.SamplerName) (SamplingPriority, bool) {
	if t.locked {
		if sampler == samplernames.Manual || p == nil {
			log.Debug("sampling priority already locked for trace %d; ignoring reassignment", traceID)
		}
		return t.samplingPriority()
	}
	if p == nil {
		t.priority = nil
		return t.samplingPriority()
	}
	v := *p
	t.priority = &v
	if !v.userSet() {
		// Auto* decisions of the priority sampler are final; User* ones,
		// from users or sampling rules, may still be overridden until the
		// trace completes.
		t.locked = true
	}
	return t.samplingPriority()
}

// finishSpan applies the decorations every emitted span receives.
func (t *pendingTrace) finishSpan(s *Span) {
	if t.origin != "" {
		s.setMeta(keyOrigin, t.origin)
	}
}

// finishRootSpan stamps the trace-wide sampling metadata on a root span and
// then applies the regular decorations.
func (t *pendingTrace) finishRootSpan(s *Span) {
	if t.priority != nil {
		s.setMetric(keySamplingPriority, float64(*t.priority))
	}
	if t.hostname != "" {
		s.setMeta(keyHostname, t.hostname)
	}
	if !math.IsNaN(t.analyticsRate) {
		if _, ok := s.Metrics[ext.EventSampleRate]; !ok {
			s.setMetric(ext.EventSampleRate, t.analyticsRate)
		}
	}
	if !math.IsNaN(t.result.ruleRate) {
		s.setMetric(keyRulesSamplerAppliedRate, t.result.ruleRate)
	}
	if !math.IsNaN(t.result.limiterRate) {
		s.setMetric(keyRulesSamplerLimiterRate, t.result.limiterRate)
	}
	if !math.IsNaN(t.result.priorityRate) {
		s.setMetric(keySamplingPriorityRate, t.result.priorityRate)
	}
	t.finishSpan(s)
}

// isRoot reports whether s is a root of the trace: either it has no parent,
// or its parent was never registered locally, meaning the real root lives in
// another process.
func (t *pendingTrace) isRoot(s *Span) bool {
	if s.ParentID == 0 {
		return true
	}
	_, ok := t.spanIDs[s.ParentID]
	return !ok
}

// SpanBuffer aggregates in-flight traces, samples each of them exactly once
// and hands completed ones to the writer. It is safe for concurrent use by
// any number of goroutines.
type SpanBuffer struct {
	mu     sync.Mutex
	traces map[uint64]*pendingTrace
	cfg    *config
}

// NewSpanBuffer creates a SpanBuffer with the given options applied.
func NewSpanBuffer(opts ...Option) *SpanBuffer {
	cfg := newConfig(opts...)
	return &SpanBuffer{
		traces: make(map[uint64]*pendingTrace),
		cfg:    cfg,
	}
}

// RegisterSpan records that a span with the given context has started and
// ties it to its trace, creating the trace entry on first sight. The first
// registration decides the trace's propagated state: a priority carried by
// the context is adopted and locked in place. Registering the same
// (trace, span) pair again has no effect.
func (b *SpanBuffer) RegisterSpan(ctx *SpanContext) {
	b.mu.Lock()
	t, ok := b.traces[ctx.TraceID]
	if !ok {
		t = &pendingTrace{
			spanIDs:       make(map[uint64]struct{}, 1),
			origin:        ctx.Origin,
			hostname:      b.cfg.hostname,
			analyticsRate: b.cfg.analyticsRate,
			result:        newSampleResult(),
		}
		if ctx.Priority != nil {
			p := *ctx.Priority
			t.priority = &p
			t.locked = true
		}
		b.traces[ctx.TraceID] = t
	}
	started := false
	if _, ok := t.spanIDs[ctx.SpanID]; !ok {
		t.spanIDs[ctx.SpanID] = struct{}{}
		started = true
	}
	b.mu.Unlock()
	if started {
		b.cfg.statsd.Incr("datadog.tracer.spans_started", nil, 1)
	}
}

// FinishSpan hands a completed span over to the buffer, which takes exclusive
// ownership of it. When the last registered span of a trace finishes, the
// trace is sampled if it wasn't yet, its roots are stamped and the batch goes
// to the writer.
func (b *SpanBuffer) FinishSpan(s *Span) {
	b.mu.Lock()
	t, ok := b.traces[s.TraceID]
	if !ok {
		b.mu.Unlock()
		log.Error("no trace with id %d in span buffer", s.TraceID)
		return
	}
	if _, ok := t.spanIDs[s.SpanID]; !ok {
		b.mu.Unlock()
		log.Error("span %d wasn't registered in trace %d", s.SpanID, s.TraceID)
		return
	}
	t.finished = append(t.finished, s)
	if len(t.finished) != len(t.spanIDs) {
		b.mu.Unlock()
		b.cfg.statsd.Incr("datadog.tracer.spans_finished", nil, 1)
		return
	}
	// the last registered span just finished: this is the final chance to
	// make a sampling decision for the trace.
	b.assignSamplingPriorityLocked(t, s)
	for _, sp := range t.finished {
		if t.isRoot(sp) {
			t.finishRootSpan(sp)
		} else {
			t.finishSpan(sp)
		}
	}
	trace := t.finished
	delete(b.traces, s.TraceID)
	enabled := b.cfg.enabled
	b.mu.Unlock()
	b.cfg.statsd.Incr("datadog.tracer.spans_finished", nil, 1)
	if !enabled {
		b.cfg.statsd.Count("datadog.tracer.traces_dropped", 1, []string{"reason:disabled"}, 1)
		return
	}
	b.cfg.statsd.Incr("datadog.tracer.traces_finished", nil, 1)
	b.cfg.writer.Write(trace)
}

// SamplingPriority returns the sampling priority currently assigned to the
// given trace, if any.
func (b *SpanBuffer) SamplingPriority(traceID uint64) (SamplingPriority, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.traces[traceID]
	if !ok {
		return 0, false
	}
	return t.samplingPriority()
}

// SetSamplingPriority assigns p to the given trace on behalf of the named
// sampler, subject to the precedence rules: a priority propagated from
// upstream or an Auto* value already set wins over any later write. Passing a
// nil priority clears an unlocked trace's decision. It returns the priority
// in effect after the call.
func (b *SpanBuffer) SetSamplingPriority(traceID uint64, p *SamplingPriority, sampler samplernames.SamplerName) (SamplingPriority, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.traces[traceID]
	if !ok {
		log.Error("no trace with id %d in span buffer", traceID)
		return 0, false
	}
	return t.setSamplingPriority(traceID, p, sampler)
}

// AssignSamplingPriority makes sure the trace of the given span carries a
// sampling priority, consulting the rules sampler when none was assigned
// yet. It returns the priority in effect.
func (b *SpanBuffer) AssignSamplingPriority(s *Span) (SamplingPriority, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.traces[s.TraceID]
	if !ok {
		log.Error("no trace with id %d in span buffer", s.TraceID)
		return 0, false
	}
	return b.assignSamplingPriorityLocked(t, s)
}

func (b *SpanBuffer) assignSamplingPriorityLocked(t *pendingTrace, s *Span) (SamplingPriority, bool) {
	if p, ok := t.samplingPriority(); ok {
		return p, ok
	}
	res := b.cfg.sampler.sample(s, b.cfg.clock())
	name := samplernames.AgentRate
	if !math.IsNaN(res.ruleRate) {
		name = samplernames.RuleRate
	}
	t.setSamplingPriority(s.TraceID, res.priority, name)
	t.result = res
	return t.samplingPriority()
}

// UpdateRates atomically replaces the priority sampler's per-(service, env)
// rate table, typically with the table returned by the agent.
func (b *SpanBuffer) UpdateRates(rates map[string]float64) {
	b.cfg.sampler.priority.setRates(rates)
}

// ReadRatesJSON updates the priority sampler's rate table from an
// agent-style {"rate_by_service": {...}} JSON document.
func (b *SpanBuffer) ReadRatesJSON(rc io.ReadCloser) error {
	return b.cfg.sampler.priority.readRatesJSON(rc)
}

// Flush blocks up to timeout waiting for the writer to flush every batch
// handed to it so far.
func (b *SpanBuffer) Flush(timeout time.Duration) {
	b.cfg.writer.Flush(timeout)
}

// Stop releases the writer and reports any metric left in the statsd client.
// The buffer must not be used after calling Stop.
func (b *SpanBuffer) Stop() {
	b.cfg.writer.Stop()
	b.cfg.statsd.Flush()
}
