// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/DataDog/dd-trace-core/internal/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImplementsWriter(t *testing.T) {
	assert.Implements(t, (*Writer)(nil), &logWriter{})
}

func TestLogWriter(t *testing.T) {
	assert := assert.New(t)
	tp := new(log.RecordLogger)
	defer log.UseLogger(tp)()
	log.SetLevel(log.LevelInfo)
	defer log.SetLevel(log.LevelWarn)

	w := newLogWriter()
	s := newTestSpan(0x1234, 0x5678, 0, "web.request", "test-service")
	s.setMeta("env", "prod")
	s.setMetric(keySamplingPriority, 2)
	w.Write(spanList{s})

	logs := tp.Logs()
	require.Len(t, logs, 1)
	start := strings.Index(logs[0], "{")
	require.NotEqual(t, -1, start)
	var decoded struct {
		Traces [][]struct {
			TraceID  string             `json:"trace_id"`
			SpanID   string             `json:"span_id"`
			ParentID string             `json:"parent_id"`
			Name     string             `json:"name"`
			Service  string             `json:"service"`
			Meta     map[string]string  `json:"meta"`
			Metrics  map[string]float64 `json:"metrics"`
		} `json:"traces"`
	}
	require.NoError(t, json.Unmarshal([]byte(logs[0][start:]), &decoded))
	require.Len(t, decoded.Traces, 1)
	require.Len(t, decoded.Traces[0], 1)
	got := decoded.Traces[0][0]
	assert.Equal("1234", got.TraceID)
	assert.Equal("5678", got.SpanID)
	assert.Equal("0", got.ParentID)
	assert.Equal("web.request", got.Name)
	assert.Equal("test-service", got.Service)
	assert.Equal("prod", got.Meta["env"])
	assert.Equal(2.0, got.Metrics[keySamplingPriority])
}
