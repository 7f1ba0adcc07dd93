// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"math"
	"time"

	"github.com/DataDog/dd-trace-core/internal/log"

	"github.com/DataDog/datadog-go/v5/statsd"
)

// config holds the buffer configuration assembled by the Option functions.
type config struct {
	// enabled reports whether completed traces reach the writer. When false
	// the pipeline still runs, but finished traces are discarded.
	enabled bool

	// hostname, when non-empty, is written on every root span.
	hostname string

	// analyticsRate is the analytics event sample rate stamped on root
	// spans. NaN means unset.
	analyticsRate float64

	// sampler makes the trace-level sampling decision.
	sampler *rulesSampler

	// writer receives completed trace batches.
	writer Writer

	// statsd is used to report the buffer's health.
	statsd statsdClient

	// clock supplies the time readings used by the limiter. time.Time
	// carries the monotonic reading the limiter needs.
	clock func() time.Time

	samplingRules []SamplingRule
	limiter       *rateLimiter
	agentRates    map[string]float64
}

// Option customizes a SpanBuffer.
type Option func(*config)

func newConfig(opts ...Option) *config {
	cfg := &config{
		enabled:       true,
		analyticsRate: math.NaN(),
		clock:         time.Now,
	}
	for _, fn := range opts {
		fn(cfg)
	}
	cfg.sampler = newRulesSampler(cfg.samplingRules, cfg.limiter)
	if cfg.agentRates != nil {
		cfg.sampler.priority.setRates(cfg.agentRates)
	}
	if cfg.writer == nil {
		cfg.writer = newLogWriter()
	}
	if cfg.statsd == nil {
		cfg.statsd = &statsd.NoOpClient{}
	}
	return cfg
}

// WithEnabled determines whether completed traces are handed to the writer.
// Disabling the buffer keeps the sampling pipeline running, which is useful
// to preserve consistent limiter behavior when tracing is toggled at runtime.
func WithEnabled(enabled bool) Option {
	return func(cfg *config) {
		cfg.enabled = enabled
	}
}

// WithHostname allows specifying the hostname with which to report root spans.
func WithHostname(name string) Option {
	return func(cfg *config) {
		cfg.hostname = name
	}
}

// WithAnalyticsRate sets the global sampling rate for sampling APM events.
func WithAnalyticsRate(rate float64) Option {
	return func(cfg *config) {
		if rate >= 0.0 && rate <= 1.0 {
			cfg.analyticsRate = rate
		} else {
			log.Warn("ignoring analytics rate %f: value out of range", rate)
			cfg.analyticsRate = math.NaN()
		}
	}
}

// WithSamplingRules specifies the sampling rules to use, in declaration
// order, to determine how traces are sampled.
func WithSamplingRules(rules []SamplingRule) Option {
	return func(cfg *config) {
		cfg.samplingRules = rules
	}
}

// WithRateLimit caps the number of rule-sampled traces admitted per second.
// The DD_TRACE_RATE_LIMIT environment variable takes effect when this option
// is not used.
func WithRateLimit(tracesPerSecond float64) Option {
	return func(cfg *config) {
		cfg.limiter = newRateLimiter(tracesPerSecond)
	}
}

// WithTokenBucket configures the rule-sampling limiter as a token bucket
// holding up to maxTokens tokens and regaining tokensPerRefresh of them every
// refreshInterval.
func WithTokenBucket(maxTokens int, refreshInterval time.Duration, tokensPerRefresh int) Option {
	return func(cfg *config) {
		cfg.limiter = newTokenBucketLimiter(maxTokens, refreshInterval, tokensPerRefresh)
	}
}

// WithAgentRates seeds the priority sampler with a per-(service, env) rate
// table, in the format returned by the agent. The table can be replaced at
// runtime through SpanBuffer.UpdateRates.
func WithAgentRates(rates map[string]float64) Option {
	return func(cfg *config) {
		cfg.agentRates = rates
	}
}

// WithWriter makes the buffer hand completed traces to w instead of the
// default log writer.
func WithWriter(w Writer) Option {
	return func(cfg *config) {
		cfg.writer = w
	}
}

// WithLogger sets logger as the active logger of the whole library.
func WithLogger(logger log.Logger) Option {
	return func(_ *config) {
		log.UseLogger(logger)
	}
}

// WithStatsdClient reports the buffer's health metrics through the given
// client instead of discarding them.
func WithStatsdClient(client statsdClient) Option {
	return func(cfg *config) {
		cfg.statsd = client
	}
}

// WithClock substitutes the source of time readings used when sampling.
// Mostly useful in tests.
func WithClock(clock func() time.Time) Option {
	return func(cfg *config) {
		cfg.clock = clock
	}
}
