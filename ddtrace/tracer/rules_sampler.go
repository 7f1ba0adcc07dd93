// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"encoding/json"
	"math"
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/DataDog/dd-trace-core/internal/log"

	"golang.org/x/time/rate"
)

// rulesSampler allows a user-defined list of rules to apply to traces.
// These rules can match based on the span's Service, Name or both.
// When making a sampling decision, the rules are checked in order until
// a match is found.
// If a match is found, the rate from that rule is used.
// The DD_TRACE_SAMPLE_RATE environment variable, when set to a valid rate,
// acts as a catch-all rule appended after the user's own.
// Otherwise, the rules sampler didn't apply to the span, and the decision
// is passed to the priority sampler.
//
// The rate is used to determine if the trace should be sampled, but an upper
// limit can be defined using the DD_TRACE_RATE_LIMIT environment variable.
// Its value is the number of traces to sample per second.
// Traces that matched the rules but exceeded the rate limit are not sampled.
type rulesSampler struct {
	rules    []SamplingRule   // the rules to match spans with
	limiter  *rateLimiter     // used to limit the volume of traces sampled
	priority *prioritySampler // fallback when no rule applies
}

// newRulesSampler configures a *rulesSampler instance using the given set of
// rules and limiter. Invalid rules or environment variable values are
// tolerated, by logging warnings and then ignoring them.
func newRulesSampler(rules []SamplingRule, limiter *rateLimiter) *rulesSampler {
	if limiter == nil {
		limiter = defaultRateLimiter()
	}
	rules = appliedSamplingRules(rules)
	if r := globalSampleRate(); !math.IsNaN(r) {
		rules = append(rules, RateRule(r))
	}
	return &rulesSampler{
		rules:    rules,
		limiter:  limiter,
		priority: newPrioritySampler(),
	}
}

// appliedSamplingRules validates the user-provided rules and returns an internal representation.
// If the DD_TRACE_SAMPLING_RULES environment variable is set, it will replace the given rules.
func appliedSamplingRules(rules []SamplingRule) []SamplingRule {
	rulesFromEnv := os.Getenv("DD_TRACE_SAMPLING_RULES")
	if rulesFromEnv != "" {
		rules = rules[:0]
		jsonRules := []struct {
			Service string      `json:"service"`
			Name    string      `json:"name"`
			Rate    json.Number `json:"sample_rate"`
		}{}
		err := json.Unmarshal([]byte(rulesFromEnv), &jsonRules)
		if err != nil {
			log.Warn("error parsing DD_TRACE_SAMPLING_RULES: %v", err)
			return nil
		}
		for _, v := range jsonRules {
			if v.Rate == "" {
				log.Warn("error parsing rule: rate not provided")
				continue
			}
			rate, err := v.Rate.Float64()
			if err != nil {
				log.Warn("error parsing rule: invalid rate: %v", err)
				continue
			}
			switch {
			case v.Service != "" && v.Name != "":
				rules = append(rules, NameServiceRule(v.Name, v.Service, rate))
			case v.Service != "":
				rules = append(rules, ServiceRule(v.Service, rate))
			case v.Name != "":
				rules = append(rules, NameRule(v.Name, rate))
			default:
				rules = append(rules, RateRule(rate))
			}
		}
	}
	validRules := make([]SamplingRule, 0, len(rules))
	for _, v := range rules {
		if !(v.Rate >= 0.0 && v.Rate <= 1.0) {
			log.Warn("ignoring rule %+v: rate is out of range", v)
			continue
		}
		validRules = append(validRules, v)
	}
	return validRules
}

// globalSampleRate returns the sampling rate found in the DD_TRACE_SAMPLE_RATE environment variable.
// If it is invalid or not within the 0-1 range, NaN is returned.
func globalSampleRate() float64 {
	defaultRate := math.NaN()
	v := os.Getenv("DD_TRACE_SAMPLE_RATE")
	if v == "" {
		return defaultRate
	}
	r, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Warn("ignoring DD_TRACE_SAMPLE_RATE: error: %v", err)
		return defaultRate
	}
	if r >= 0.0 && r <= 1.0 {
		return r
	}
	log.Warn("ignoring DD_TRACE_SAMPLE_RATE: out of range %f", r)
	return defaultRate
}

// match scans the rules in declaration order and reports the rate of the
// first one whose patterns all match the given span. When no rule matches,
// the returned rate is NaN.
func (rs *rulesSampler) match(s *Span) (bool, float64) {
	for i := range rs.rules {
		if rs.rules[i].match(s) {
			return true, rs.rules[i].Rate
		}
	}
	return false, math.NaN()
}

// sample makes a sampling decision for the trace of the given span at the
// given time. When no rule applies, the decision is delegated to the
// priority sampler unchanged.
func (rs *rulesSampler) sample(s *Span, now time.Time) sampleResult {
	matched, rate := rs.match(s)
	if !matched {
		// no matching rule, so we want to fall back to priority sampling
		return rs.priority.sample(s)
	}
	res := newSampleResult()
	res.ruleRate = rate
	if !sampledByRate(s.TraceID, rate) {
		res.priority = samplingPriorityPtr(PriorityUserReject)
		return res
	}
	sampled, limiterRate := rs.limiter.allowOne(now)
	res.limiterRate = limiterRate
	if sampled {
		res.priority = samplingPriorityPtr(PriorityUserKeep)
	} else {
		res.priority = samplingPriorityPtr(PriorityUserReject)
	}
	return res
}

// SamplingRule is used for applying sampling rates to spans that match
// the service name, operation name or both.
// For basic usage, consider using the helper functions ServiceRule, NameRule, etc.
type SamplingRule struct {
	Service *regexp.Regexp
	Name    *regexp.Regexp
	Rate    float64

	exactService string
	exactName    string
}

// ServiceRule returns a SamplingRule that applies the provided sampling rate
// to spans that match the service name provided.
func ServiceRule(service string, rate float64) SamplingRule {
	return SamplingRule{
		exactService: service,
		Rate:         rate,
	}
}

// NameRule returns a SamplingRule that applies the provided sampling rate
// to spans that match the operation name provided.
func NameRule(name string, rate float64) SamplingRule {
	return SamplingRule{
		exactName: name,
		Rate:      rate,
	}
}

// NameServiceRule returns a SamplingRule that applies the provided sampling rate
// to spans matching both the operation and service names provided.
func NameServiceRule(name string, service string, rate float64) SamplingRule {
	return SamplingRule{
		exactService: service,
		exactName:    name,
		Rate:         rate,
	}
}

// RateRule returns a SamplingRule that applies the provided sampling rate to all spans.
func RateRule(rate float64) SamplingRule {
	return SamplingRule{
		Rate: rate,
	}
}

// match returns true when the span's details match all the expected values in the rule.
func (sr *SamplingRule) match(s *Span) bool {
	if sr.Service != nil && !sr.Service.MatchString(s.Service) {
		return false
	} else if sr.exactService != "" && sr.exactService != s.Service {
		return false
	}
	if sr.Name != nil && !sr.Name.MatchString(s.Name) {
		return false
	} else if sr.exactName != "" && sr.exactName != s.Name {
		return false
	}
	return true
}

// defaultRateLimit specifies the default trace rate limit used when DD_TRACE_RATE_LIMIT is not set.
const defaultRateLimit = 100.0

// defaultRateLimiter returns a rate limiter which restricts the number of traces sampled per second.
// This defaults to 100.0. The DD_TRACE_RATE_LIMIT environment variable may override the default.
func defaultRateLimiter() *rateLimiter {
	limit := defaultRateLimit
	v := os.Getenv("DD_TRACE_RATE_LIMIT")
	if v != "" {
		l, err := strconv.ParseFloat(v, 64)
		if err != nil {
			log.Warn("using default rate limit because DD_TRACE_RATE_LIMIT is invalid: %v", err)
		} else if l < 0.0 {
			log.Warn("using default rate limit because DD_TRACE_RATE_LIMIT is negative: %f", l)
		} else {
			// override the default limit
			limit = l
		}
	}
	return newRateLimiter(limit)
}

// newRateLimiter returns a rate limiter admitting limit traces per second,
// with a burst capacity of the same size.
func newRateLimiter(limit float64) *rateLimiter {
	return &rateLimiter{
		limiter: rate.NewLimiter(rate.Limit(limit), int(math.Ceil(limit))),
		period:  time.Second,
	}
}

// newTokenBucketLimiter returns a rate limiter holding up to maxTokens tokens
// and gaining tokensPerRefresh of them every refreshInterval. The effective
// rate it reports is averaged over refreshInterval-long windows.
func newTokenBucketLimiter(maxTokens int, refreshInterval time.Duration, tokensPerRefresh int) *rateLimiter {
	return &rateLimiter{
		limiter: rate.NewLimiter(rate.Limit(float64(tokensPerRefresh)/refreshInterval.Seconds()), maxTokens),
		period:  refreshInterval,
	}
}

// rateLimiter is a wrapper on top of golang.org/x/time/rate which implements a rate limiter but also
// returns the effective rate of allowance.
type rateLimiter struct {
	limiter *rate.Limiter
	period  time.Duration // length of the effective-rate window

	mu       sync.Mutex // guards below fields
	prevTime time.Time  // time at which prevRate was set
	prevRate float64    // previous window's rate
	allowed  int        // number of traces allowed in the current period
	seen     int        // number of traces seen in the current period
}

// allowOne returns the rate limiter's decision to allow the trace to be sampled, and the
// effective rate at the time it is called. The effective rate is computed by averaging the rate
// for the previous window with the current rate.
func (r *rateLimiter) allowOne(now time.Time) (bool, float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.prevTime.IsZero() {
		r.prevTime = now
	}
	if now.Before(r.prevTime) {
		// the clock went backwards; treat it as if no time had passed
		now = r.prevTime
	}
	if d := now.Sub(r.prevTime); d >= r.period {
		// enough time has passed to reset the counters
		if d.Truncate(r.period) == r.period && r.seen > 0 {
			// exactly one window, so update prevRate
			r.prevRate = float64(r.allowed) / float64(r.seen)
		} else {
			// more than one window, so reset previous rate
			r.prevRate = 0.0
		}
		r.prevTime = now
		r.allowed = 0
		r.seen = 0
	}

	r.seen++
	var sampled bool
	if r.limiter.AllowN(now, 1) {
		r.allowed++
		sampled = true
	}
	er := (r.prevRate + (float64(r.allowed) / float64(r.seen))) / 2.0
	return sampled, er
}
