// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/DataDog/dd-trace-core/internal/log"
)

// Writer consumes the trace batches emitted by a SpanBuffer. Write must not
// block; transports are expected to enqueue internally and deliver from
// their own goroutines.
type Writer interface {
	// Write enqueues a completed trace. The batch is exclusively owned by
	// the writer from this point on.
	Write(trace spanList)

	// Flush blocks up to timeout until previously enqueued traces have been
	// delivered.
	Flush(timeout time.Duration)

	// Stop delivers any remaining traces and releases the writer's
	// resources.
	Stop()
}

// logWriter serializes traces to the diagnostic logger. It is the default
// sink, keeping completed traces observable in environments where no
// transport has been wired in.
type logWriter struct {
	mu     sync.Mutex
	buf    strings.Builder
	traces int
}

var _ Writer = (*logWriter)(nil)

func newLogWriter() *logWriter {
	return &logWriter{}
}

// Write implements Writer.
func (w *logWriter) Write(trace spanList) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Reset()
	w.buf.WriteString(`{"traces": [[`)
	for i, s := range trace {
		if i > 0 {
			w.buf.WriteByte(',')
		}
		w.encodeSpan(s)
	}
	w.buf.WriteString("]]}")
	w.traces++
	log.Info("completed trace: %s", w.buf.String())
}

// encodeSpan appends a JSON rendering of the span to the writer's buffer.
// Strings go through strconv.Quote; floats keep their full precision.
func (w *logWriter) encodeSpan(s *Span) {
	w.buf.WriteString(`{"trace_id": "`)
	w.buf.WriteString(strconv.FormatUint(s.TraceID, 16))
	w.buf.WriteString(`", "span_id": "`)
	w.buf.WriteString(strconv.FormatUint(s.SpanID, 16))
	w.buf.WriteString(`", "parent_id": "`)
	w.buf.WriteString(strconv.FormatUint(s.ParentID, 16))
	w.buf.WriteString(`", "name": `)
	w.buf.WriteString(strconv.Quote(s.Name))
	w.buf.WriteString(`, "service": `)
	w.buf.WriteString(strconv.Quote(s.Service))
	w.buf.WriteString(`, "resource": `)
	w.buf.WriteString(strconv.Quote(s.Resource))
	w.buf.WriteString(`, "type": `)
	w.buf.WriteString(strconv.Quote(s.Type))
	w.buf.WriteString(`, "start": `)
	w.buf.WriteString(strconv.FormatInt(s.Start, 10))
	w.buf.WriteString(`, "duration": `)
	w.buf.WriteString(strconv.FormatInt(s.Duration, 10))
	w.buf.WriteString(`, "error": `)
	w.buf.WriteString(strconv.FormatInt(int64(s.Error), 10))
	w.buf.WriteString(`, "meta": {`)
	first := true
	for k, v := range s.Meta {
		if !first {
			w.buf.WriteByte(',')
		}
		first = false
		w.buf.WriteString(strconv.Quote(k))
		w.buf.WriteString(": ")
		w.buf.WriteString(strconv.Quote(v))
	}
	w.buf.WriteString(`}, "metrics": {`)
	first = true
	for k, v := range s.Metrics {
		if !first {
			w.buf.WriteByte(',')
		}
		first = false
		w.buf.WriteString(strconv.Quote(k))
		w.buf.WriteString(": ")
		w.buf.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
	}
	w.buf.WriteString("}}")
}

// Flush implements Writer. Writes happen synchronously, so there is nothing
// to wait for.
func (w *logWriter) Flush(_ time.Duration) {}

// Stop implements Writer.
func (w *logWriter) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	log.Debug("log writer stopped after %d traces", w.traces)
}
