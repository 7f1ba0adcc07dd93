// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

// statsdClient is the subset of the Datadog statsd client that the buffer
// uses to report its health. github.com/DataDog/datadog-go/v5/statsd clients
// satisfy it.
type statsdClient interface {
	Incr(name string, tags []string, rate float64) error
	Count(name string, value int64, tags []string, rate float64) error
	Gauge(name string, value float64, tags []string, rate float64) error
	Flush() error
}
