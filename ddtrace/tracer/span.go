// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"fmt"
	"reflect"
	"runtime/debug"
	"strings"
	"time"

	"github.com/DataDog/dd-trace-core/ddtrace/ext"
)

// spanList is an ordered batch of spans belonging to the same trace. It is
// handed to the Writer when the trace completes.
type spanList []*Span

// Span represents a unit of computation. Spans are registered with a
// SpanBuffer while in flight and handed back to it once complete; from that
// point on the buffer holds exclusive ownership and the caller must not
// retain a reference.
type Span struct {
	Name     string             // operation name
	Service  string             // service name (i.e. "grpc.server", "http.request")
	Resource string             // resource name (i.e. "/user?id=123", "SELECT * FROM users")
	Type     string             // protocol associated with the span (i.e. "web", "db", "cache")
	Start    int64              // span start time expressed in nanoseconds since epoch
	Duration int64              // duration of the span expressed in nanoseconds
	Meta     map[string]string  // arbitrary map of metadata
	Metrics  map[string]float64 // arbitrary map of numeric metrics
	SpanID   uint64             // identifier of this span
	TraceID  uint64             // identifier of the root span
	ParentID uint64             // identifier of the span's direct parent
	Error    int32              // error status of the span; 0 means no errors
}

// Env returns the environment the span was recorded in, as carried by the
// "env" entry of its metadata.
func (s *Span) Env() string { return s.Meta[ext.Environment] }

// SetTag adds a set of key/value metadata to the span.
func (s *Span) SetTag(key string, value interface{}) {
	switch key {
	case ext.Error:
		s.setTagError(value)
		return
	}
	if v, ok := value.(bool); ok {
		s.setTagBool(key, v)
		return
	}
	if v, ok := value.(string); ok {
		s.setMeta(key, v)
		return
	}
	if v, ok := toFloat64(value); ok {
		s.setMetric(key, v)
		return
	}
	// not numeric, not a string, not a bool, and not an error
	s.setMeta(key, fmt.Sprint(value))
}

// setTagError sets the error tag. It accounts for various valid scenarios.
func (s *Span) setTagError(value interface{}) {
	switch v := value.(type) {
	case bool:
		// bool value as per Opentracing spec.
		if !v {
			s.Error = 0
		} else {
			s.Error = 1
		}
	case error:
		// if anyone sets an error value as the tag, be nice here
		// and provide all the benefits.
		s.Error = 1
		s.setMeta(ext.ErrorMsg, v.Error())
		s.setMeta(ext.ErrorType, reflect.TypeOf(v).String())
		s.setMeta(ext.ErrorStack, string(debug.Stack()))
	case nil:
		// no error
		s.Error = 0
	default:
		// in all other cases, let's assume that setting this tag
		// is the result of an error.
		s.Error = 1
	}
}

// setMeta sets a string tag.
func (s *Span) setMeta(key, v string) {
	if s.Meta == nil {
		s.Meta = make(map[string]string, 1)
	}
	switch key {
	case ext.SpanName:
		s.Name = v
	case ext.ServiceName:
		s.Service = v
	case ext.ResourceName:
		s.Resource = v
	case ext.SpanType:
		s.Type = v
	default:
		s.Meta[key] = v
	}
}

// setTagBool sets a boolean tag on the span.
func (s *Span) setTagBool(key string, v bool) {
	switch key {
	case ext.AnalyticsEvent:
		if v {
			s.setMetric(ext.EventSampleRate, 1.0)
		} else {
			s.setMetric(ext.EventSampleRate, 0.0)
		}
	default:
		if v {
			s.setMeta(key, "true")
		} else {
			s.setMeta(key, "false")
		}
	}
}

// setMetric sets a numeric tag, in our case called a metric.
func (s *Span) setMetric(key string, v float64) {
	if s.Metrics == nil {
		s.Metrics = make(map[string]float64, 1)
	}
	s.Metrics[key] = v
}

// String returns a human readable representation of the span. Not for
// production, just debugging.
func (s *Span) String() string {
	lines := []string{
		fmt.Sprintf("Name: %s", s.Name),
		fmt.Sprintf("Service: %s", s.Service),
		fmt.Sprintf("Resource: %s", s.Resource),
		fmt.Sprintf("TraceID: %d", s.TraceID),
		fmt.Sprintf("SpanID: %d", s.SpanID),
		fmt.Sprintf("ParentID: %d", s.ParentID),
		fmt.Sprintf("Start: %s", time.Unix(0, s.Start)),
		fmt.Sprintf("Duration: %s", time.Duration(s.Duration)),
		fmt.Sprintf("Error: %d", s.Error),
		fmt.Sprintf("Type: %s", s.Type),
		"Tags:",
	}
	for key, val := range s.Meta {
		lines = append(lines, fmt.Sprintf("\t%s:%s", key, val))
	}
	for key, val := range s.Metrics {
		lines = append(lines, fmt.Sprintf("\t%s:%f", key, val))
	}
	return strings.Join(lines, "\n")
}

const (
	keySamplingPriority        = "_sampling_priority_v1"
	keySamplingPriorityRate    = "_dd.agent_psr"
	keyOrigin                  = "_dd.origin"
	keyHostname                = "_dd.hostname"
	keyRulesSamplerAppliedRate = "_dd.rule_psr"
	keyRulesSamplerLimiterRate = "_dd.limit_psr"
)
