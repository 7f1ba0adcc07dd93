// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"io"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/DataDog/dd-trace-core/ddtrace/ext"

	"github.com/stretchr/testify/assert"
)

// mkSpan creates a new span with the given service/env.
func mkSpan(svc, env string) *Span {
	s := &Span{Service: svc, Meta: map[string]string{}}
	if env != "" {
		s.Meta["env"] = env
	}
	return s
}

func TestPrioritySampler(t *testing.T) {
	t.Run("mkspan", func(t *testing.T) {
		assert := assert.New(t)
		s := mkSpan("my-service", "my-env")
		assert.Equal("my-service", s.Service)
		assert.Equal("my-env", s.Meta[ext.Environment])

		s = mkSpan("my-service2", "")
		assert.Equal("my-service2", s.Service)
		_, ok := s.Meta[ext.Environment]
		assert.False(ok)
	})

	t.Run("ops", func(t *testing.T) {
		ps := newPrioritySampler()
		assert := assert.New(t)

		type key struct{ service, env string }
		for _, tt := range []struct {
			in  string
			out map[key]float64
		}{
			{
				in: `{}`,
				out: map[key]float64{
					{"some-service", ""}:       1,
					{"obfuscate.http", "none"}: 1,
				},
			},
			{
				in: `{
					"rate_by_service":{
						"service:,env:":0.8,
						"service:obfuscate.http,env:":0.9,
						"service:obfuscate.http,env:none":0.9
					}
				}`,
				out: map[key]float64{
					{"obfuscate.http", ""}:      0.9,
					{"obfuscate.http", "none"}:  0.9,
					{"obfuscate.http", "other"}: 0.8,
					{"some-service", ""}:        0.8,
				},
			},
			{
				in: `{
					"rate_by_service":{
						"service:my-service,env:":0.2,
						"service:my-service,env:none":0.2
					}
				}`,
				out: map[key]float64{
					{"my-service", ""}:          0.2,
					{"my-service", "none"}:      0.2,
					{"obfuscate.http", ""}:      0.8,
					{"obfuscate.http", "none"}:  0.8,
					{"obfuscate.http", "other"}: 0.8,
					{"some-service", ""}:        0.8,
				},
			},
		} {
			assert.NoError(ps.readRatesJSON(io.NopCloser(strings.NewReader(tt.in))))
			for k, v := range tt.out {
				assert.Equal(v, ps.getRate(mkSpan(k.service, k.env)), k)
			}
		}
	})

	t.Run("race", func(t *testing.T) {
		ps := newPrioritySampler()
		assert := assert.New(t)

		var wg sync.WaitGroup

		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				assert.NoError(ps.readRatesJSON(
					io.NopCloser(strings.NewReader(
						`{
							"rate_by_service":{
								"service:,env:":0.8,
								"service:obfuscate.http,env:none":0.9
							}
						}`,
					)),
				))
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				ps.getRate(mkSpan("obfuscate.http", "none"))
				ps.getRate(mkSpan("other.service", "none"))
			}
		}()

		wg.Wait()
	})

	t.Run("default", func(t *testing.T) {
		assert := assert.New(t)
		ps := newPrioritySampler()

		res := ps.sample(mkSpan("", ""))
		assert.Equal(1.0, res.priorityRate)
		assert.True(math.IsNaN(res.ruleRate))
		assert.True(math.IsNaN(res.limiterRate))
		if assert.NotNil(res.priority) {
			assert.Equal(PriorityAutoKeep, *res.priority)
		}
	})

	t.Run("configured", func(t *testing.T) {
		assert := assert.New(t)
		ps := newPrioritySampler()
		ps.setRates(map[string]float64{
			"service:nginx,env:":     0.8,
			"service:nginx,env:prod": 0.2,
		})

		// unknown (service, env) pairs use the default rate
		s := mkSpan("different service", "different env")
		s.TraceID = 1
		res := ps.sample(s)
		assert.Equal(1.0, res.priorityRate)
		if assert.NotNil(res.priority) {
			assert.Equal(PriorityAutoKeep, *res.priority)
		}

		// known pairs keep close to the configured share of traces
		const n = 10000
		kept := 0
		for i := 0; i < n; i++ {
			s := mkSpan("nginx", "")
			s.TraceID = generateSpanID()
			res := ps.sample(s)
			assert.Equal(0.8, res.priorityRate)
			if res.priority != nil && res.priority.sampled() {
				kept++
			}
		}
		ratio := float64(kept) / float64(n)
		assert.Greater(ratio, 0.75)
		assert.Less(ratio, 0.85)
	})
}

func TestRateSampler(t *testing.T) {
	assert := assert.New(t)
	s := mkSpan("test-service", "")
	s.TraceID = generateSpanID()
	assert.True(NewRateSampler(1).Sample(s))
	assert.False(NewRateSampler(0).Sample(s))
	assert.False(NewRateSampler(0.5).Sample(nil))
	assert.True(NewAllSampler().Sample(s))
}

func TestRateSamplerSetting(t *testing.T) {
	assert := assert.New(t)
	rs := NewRateSampler(1)
	assert.Equal(1.0, rs.Rate())
	rs.SetRate(0.5)
	assert.Equal(0.5, rs.Rate())
}

func TestSampledByRate(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		assert := assert.New(t)
		for i := 0; i < 100; i++ {
			id := generateSpanID()
			first := sampledByRate(id, 0.5)
			assert.Equal(first, sampledByRate(id, 0.5))
		}
	})

	t.Run("monotone", func(t *testing.T) {
		// raising the rate never converts a keep into a drop
		assert := assert.New(t)
		for i := 0; i < 100; i++ {
			id := generateSpanID()
			kept := false
			for _, rate := range []float64{0.1, 0.25, 0.5, 0.75, 0.9, 1.0} {
				k := sampledByRate(id, rate)
				if kept {
					assert.True(k)
				}
				kept = k
			}
		}
	})

	t.Run("boundaries", func(t *testing.T) {
		assert := assert.New(t)
		for i := 0; i < 100; i++ {
			id := generateSpanID()
			assert.False(sampledByRate(id, 0))
			assert.True(sampledByRate(id, 1))
		}
	})
}
