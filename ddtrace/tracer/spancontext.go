// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"github.com/DataDog/dd-trace-core/ddtrace/ext"
)

// SamplingPriority is the decision stamped on a trace which tells the backend
// whether to keep it, and which party made the call. Traces having a priority
// greater or equal to PriorityAutoKeep are reported.
type SamplingPriority int

const (
	// PriorityUserReject marks the trace as rejected by an explicit user
	// decision (a sampling rule or a manual override).
	PriorityUserReject SamplingPriority = ext.PriorityUserReject

	// PriorityAutoReject marks the trace as rejected by the builtin sampler.
	PriorityAutoReject SamplingPriority = ext.PriorityAutoReject

	// PriorityAutoKeep marks the trace as kept by the builtin sampler.
	PriorityAutoKeep SamplingPriority = ext.PriorityAutoKeep

	// PriorityUserKeep marks the trace as kept by an explicit user decision.
	PriorityUserKeep SamplingPriority = ext.PriorityUserKeep
)

// sampled reports whether the priority instructs the backend to keep the trace.
func (p SamplingPriority) sampled() bool { return p >= PriorityAutoKeep }

// userSet reports whether the priority records an explicit user decision, as
// opposed to one made by a sampler.
func (p SamplingPriority) userSet() bool {
	return p == PriorityUserReject || p == PriorityUserKeep
}

func (p SamplingPriority) String() string {
	switch p {
	case PriorityUserReject:
		return "user_reject"
	case PriorityAutoReject:
		return "auto_reject"
	case PriorityAutoKeep:
		return "auto_keep"
	case PriorityUserKeep:
		return "user_keep"
	default:
		return "unknown"
	}
}

// SpanContext carries the identifiers and cross-process state under which a
// span runs. Contexts are built by the propagation codecs (or by the caller,
// for trace-local spans) and registered with a SpanBuffer before the span
// they describe may finish.
type SpanContext struct {
	TraceID uint64
	SpanID  uint64

	// Priority is the sampling priority received from an upstream service,
	// if any. A propagated priority freezes the trace's sampling decision.
	Priority *SamplingPriority

	// Origin names the system which started the trace, e.g. "synthetics".
	// Empty means unset.
	Origin string
}

// samplingPriorityPtr is a convenience used when a literal priority needs a
// stable address.
func samplingPriorityPtr(p SamplingPriority) *SamplingPriority { return &p }
