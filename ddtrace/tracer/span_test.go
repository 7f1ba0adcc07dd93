// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"errors"
	"testing"

	"github.com/DataDog/dd-trace-core/ddtrace/ext"

	"github.com/stretchr/testify/assert"
)

func TestSpanSetTag(t *testing.T) {
	assert := assert.New(t)
	s := newTestSpan(1, 10, 0, "web.request", "test-service")

	s.SetTag("component", "net/http")
	assert.Equal("net/http", s.Meta["component"])

	s.SetTag("retries", 3)
	assert.Equal(3.0, s.Metrics["retries"])

	s.SetTag("cached", true)
	assert.Equal("true", s.Meta["cached"])

	s.SetTag(ext.SpanName, "renamed.request")
	assert.Equal("renamed.request", s.Name)

	s.SetTag(ext.ServiceName, "other-service")
	assert.Equal("other-service", s.Service)

	s.SetTag(ext.ResourceName, "/home")
	assert.Equal("/home", s.Resource)

	s.SetTag(ext.SpanType, "web")
	assert.Equal("web", s.Type)

	s.SetTag("struct", struct{ A int }{1})
	assert.Equal("{1}", s.Meta["struct"])
}

func TestSpanSetTagError(t *testing.T) {
	assert := assert.New(t)
	s := newTestSpan(1, 10, 0, "web.request", "test-service")

	s.SetTag(ext.Error, errors.New("something bad"))
	assert.EqualValues(1, s.Error)
	assert.Equal("something bad", s.Meta[ext.ErrorMsg])
	assert.Equal("*errors.errorString", s.Meta[ext.ErrorType])
	assert.NotEmpty(s.Meta[ext.ErrorStack])

	s.SetTag(ext.Error, nil)
	assert.EqualValues(0, s.Error)

	s.SetTag(ext.Error, true)
	assert.EqualValues(1, s.Error)

	s.SetTag(ext.Error, false)
	assert.EqualValues(0, s.Error)
}

func TestSpanSetTagAnalytics(t *testing.T) {
	assert := assert.New(t)
	s := newTestSpan(1, 10, 0, "web.request", "test-service")

	s.SetTag(ext.AnalyticsEvent, true)
	assert.Equal(1.0, s.Metrics[ext.EventSampleRate])

	s.SetTag(ext.AnalyticsEvent, false)
	assert.Equal(0.0, s.Metrics[ext.EventSampleRate])
}

func TestSpanEnv(t *testing.T) {
	assert := assert.New(t)
	s := newTestSpan(1, 10, 0, "web.request", "test-service")
	assert.Empty(s.Env())
	s.setMeta(ext.Environment, "prod")
	assert.Equal("prod", s.Env())
}

func TestSpanString(t *testing.T) {
	s := newTestSpan(1, 10, 0, "web.request", "test-service")
	s.setMeta("env", "prod")
	s.setMetric(keySamplingPriority, 1)
	str := s.String()
	assert.Contains(t, str, "Name: web.request")
	assert.Contains(t, str, "Service: test-service")
	assert.Contains(t, str, "env:prod")
}

func TestGenerateSpanID(t *testing.T) {
	assert := assert.New(t)
	seen := make(map[uint64]struct{})
	for i := 0; i < 1000; i++ {
		id := generateSpanID()
		assert.NotZero(id)
		_, dup := seen[id]
		assert.False(dup)
		seen[id] = struct{}{}
	}
}

func TestToFloat64(t *testing.T) {
	for _, tt := range []struct {
		in  interface{}
		out float64
		ok  bool
	}{
		{in: uint64(42), out: 42, ok: true},
		{in: int32(-1), out: -1, ok: true},
		{in: float32(0.5), out: 0.5, ok: true},
		{in: 1.5, out: 1.5, ok: true},
		{in: "nope", ok: false},
		{in: nil, ok: false},
	} {
		f, ok := toFloat64(tt.in)
		assert.Equal(t, tt.ok, ok)
		if ok {
			assert.Equal(t, tt.out, f)
		}
	}
}
