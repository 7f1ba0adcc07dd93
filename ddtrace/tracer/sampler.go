// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"encoding/json"
	"io"
	"math"
	"sync"
)

// Sampler is the generic interface of any sampler. It must be safe for concurrent use.
type Sampler interface {
	// Sample returns true if the given span should be sampled.
	Sample(span *Span) bool
}

// RateSampler is a sampler implementation which randomly selects spans using a
// provided rate. For example, a rate of 0.75 will permit 75% of the spans.
// RateSampler implementations should be safe for concurrent use.
type RateSampler interface {
	Sampler

	// Rate returns the current sample rate.
	Rate() float64

	// SetRate sets a new sample rate.
	SetRate(rate float64)
}

// rateSampler samples from a sample rate.
type rateSampler struct {
	sync.RWMutex
	rate float64
}

// NewAllSampler is a short-hand for NewRateSampler(1). It is all-permissive.
func NewAllSampler() RateSampler { return NewRateSampler(1) }

// NewRateSampler returns an initialized RateSampler with a given sample rate.
func NewRateSampler(rate float64) RateSampler {
	return &rateSampler{rate: rate}
}

// Rate returns the current rate of the sampler.
func (r *rateSampler) Rate() float64 {
	r.RLock()
	defer r.RUnlock()
	return r.rate
}

// SetRate sets a new sampling rate.
func (r *rateSampler) SetRate(rate float64) {
	r.Lock()
	r.rate = rate
	r.Unlock()
}

// constant used for the Knuth hashing, same as the agent.
const knuthFactor = uint64(1111111111111111111)

// Sample returns true if the given span should be sampled.
func (r *rateSampler) Sample(s *Span) bool {
	if s == nil {
		return false
	}
	r.RLock()
	defer r.RUnlock()
	if r.rate == 1 {
		// fast path
		return true
	}
	return sampledByRate(s.TraceID, r.rate)
}

// sampledByRate verifies if the number n should be sampled at the specified
// rate. The decision only depends on n and rate, making it consistent across
// processes which share the trace id.
func sampledByRate(n uint64, rate float64) bool {
	if rate < 1 {
		return n*knuthFactor < uint64(rate*math.MaxUint64)
	}
	return true
}

// sampleResult reports the outcome of sampling a trace: the rates which took
// part in the decision, NaN standing for "did not apply", and the resulting
// priority, nil when no decision was made.
type sampleResult struct {
	ruleRate     float64 // rate of the matched sampling rule
	limiterRate  float64 // effective rate of the rate limiter
	priorityRate float64 // rate applied by the priority sampler
	priority     *SamplingPriority
}

func newSampleResult() sampleResult {
	return sampleResult{
		ruleRate:     math.NaN(),
		limiterRate:  math.NaN(),
		priorityRate: math.NaN(),
	}
}

// defaultRateKey is the priority sampler's catch-all entry in agent responses.
const defaultRateKey = "service:,env:"

// prioritySampler holds a set of per-service sampling rates and applies
// them to traces, falling back to a default rate for services the agent
// has not reported on yet.
type prioritySampler struct {
	mu          sync.RWMutex
	rates       map[string]float64
	defaultRate float64
}

func newPrioritySampler() *prioritySampler {
	return &prioritySampler{
		rates:       make(map[string]float64),
		defaultRate: 1.,
	}
}

// readRatesJSON will try to read the rates as JSON from the given io.ReadCloser.
func (ps *prioritySampler) readRatesJSON(rc io.ReadCloser) error {
	var payload struct {
		Rates map[string]float64 `json:"rate_by_service"`
	}
	if err := json.NewDecoder(rc).Decode(&payload); err != nil {
		return err
	}
	rc.Close()
	ps.setRates(payload.Rates)
	return nil
}

// setRates atomically replaces the rate table. The defaultRateKey entry, when
// present, becomes the new default rate.
func (ps *prioritySampler) setRates(rates map[string]float64) {
	if rates == nil {
		rates = make(map[string]float64)
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.rates = rates
	if v, ok := ps.rates[defaultRateKey]; ok {
		ps.defaultRate = v
		delete(ps.rates, defaultRateKey)
	}
}

// getRate returns the sampling rate to be used for the given span.
func (ps *prioritySampler) getRate(s *Span) float64 {
	key := "service:" + s.Service + ",env:" + s.Env()
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	if rate, ok := ps.rates[key]; ok {
		return rate
	}
	return ps.defaultRate
}

// sample decides whether the trace of the given span should be kept, based on
// the rate the agent reported for its (service, env) pair.
func (ps *prioritySampler) sample(s *Span) sampleResult {
	res := newSampleResult()
	rate := ps.getRate(s)
	res.priorityRate = rate
	if sampledByRate(s.TraceID, rate) {
		res.priority = samplingPriorityPtr(PriorityAutoKeep)
	} else {
		res.priority = samplingPriorityPtr(PriorityAutoReject)
	}
	return res
}
