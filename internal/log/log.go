// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

// Package log provides logging utilities for the tracer.
package log

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/DataDog/dd-trace-core/internal/version"
)

// Level specifies the logging level that the log package prints at.
type Level int

const (
	// LevelDebug represents debug level messages.
	LevelDebug Level = iota
	// LevelInfo represents informational messages.
	LevelInfo
	// LevelWarn represents warning messages.
	LevelWarn
	// LevelError represents error messages.
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN LEVEL"
	}
}

// Logger implementations are able to log given messages that the tracer might
// output. The messages are formatted and prefixed before reaching the Logger.
type Logger interface {
	// Log prints the given message.
	Log(msg string)
}

var (
	mu             sync.RWMutex // guards below fields
	levelThreshold              = LevelWarn
	logger         Logger       = &defaultLogger{l: log.New(os.Stderr, "", log.LstdFlags)}
)

func init() {
	if v, _ := strconv.ParseBool(os.Getenv("DD_TRACE_DEBUG")); v {
		levelThreshold = LevelDebug
	}
	if v := os.Getenv("DD_LOGGING_RATE"); v != "" {
		if sec, err := strconv.ParseUint(v, 10, 64); err != nil {
			Warn("invalid value for DD_LOGGING_RATE: %v", err)
		} else {
			errrate = time.Duration(sec) * time.Second
		}
	}
}

// UseLogger sets l as the active logger and returns a function to restore the
// previous logger. The return value is mostly useful when testing.
func UseLogger(l Logger) (undo func()) {
	Flush()
	mu.Lock()
	defer mu.Unlock()
	old := logger
	logger = l
	return func() {
		mu.Lock()
		defer mu.Unlock()
		logger = old
	}
}

// SetLevel sets the given lvl as log level for logging.
func SetLevel(lvl Level) {
	mu.Lock()
	defer mu.Unlock()
	levelThreshold = lvl
}

// DebugEnabled returns true if debug log messages are enabled. This can be
// used in extremely hot code paths to avoid allocating the ...interface{}
// argument.
func DebugEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return levelThreshold == LevelDebug
}

// Debug prints the given message if the level is LevelDebug.
func Debug(fmt string, a ...interface{}) {
	if !DebugEnabled() {
		return
	}
	printMsg(LevelDebug, fmt, a...)
}

// Info prints an informational message.
func Info(fmt string, a ...interface{}) {
	if !levelOk(LevelInfo) {
		return
	}
	printMsg(LevelInfo, fmt, a...)
}

// Warn prints a warning message.
func Warn(fmt string, a ...interface{}) {
	if !levelOk(LevelWarn) {
		return
	}
	printMsg(LevelWarn, fmt, a...)
}

func levelOk(lvl Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return lvl >= levelThreshold
}

var (
	errmu   sync.Mutex                  // guards below fields
	erragg  = map[string]*errorReport{} // aggregated errors
	errrate = time.Minute               // the rate at which errors are reported
	erron   bool                        // true if errors are being aggregated
)

type errorReport struct {
	first time.Time // time when first error occurred
	err   error
	count uint64
}

// Error reports an error. Errors get aggregated and logged periodically. The
// default is once per minute or once every DD_LOGGING_RATE number of seconds.
func Error(format string, a ...interface{}) {
	key := format // format should 99.9% of the time be constant
	if reachedLimit(key) {
		// avoid too much lock contention on spammy errors
		return
	}
	errmu.Lock()
	defer errmu.Unlock()
	report, ok := erragg[key]
	if !ok {
		erragg[key] = &errorReport{
			err:   fmt.Errorf(format, a...),
			first: time.Now(),
		}
		report = erragg[key]
	}
	report.count++
	if errrate == 0 {
		flushLocked()
		return
	}
	if !erron {
		erron = true
		time.AfterFunc(errrate, Flush)
	}
}

// defaultErrorLimit specifies the maximum number of errors gathered in a report.
const defaultErrorLimit = 200

// reachedLimit reports whether the maximum count has been reached for this key.
func reachedLimit(key string) bool {
	errmu.Lock()
	defer errmu.Unlock()
	report, ok := erragg[key]
	return ok && report.count > defaultErrorLimit
}

// Flush flushes and resets all aggregated errors to the logger.
func Flush() {
	errmu.Lock()
	defer errmu.Unlock()
	flushLocked()
}

func flushLocked() {
	for _, report := range erragg {
		msg := fmt.Sprintf("%v", report.err)
		if report.count > defaultErrorLimit {
			msg += fmt.Sprintf(" (too many similar messages skipped; first occurrence: %s)", report.first.Format(time.RFC822))
		} else if report.count > 1 {
			msg += fmt.Sprintf(" (repeated %d times; first occurrence: %s)", report.count, report.first.Format(time.RFC822))
		}
		printMsg(LevelError, "%s", msg)
	}
	erragg = map[string]*errorReport{}
	erron = false
}

func printMsg(lvl Level, format string, a ...interface{}) {
	msg := fmt.Sprintf("%s %s: %s", prefixMsg, lvl, fmt.Sprintf(format, a...))
	mu.RLock()
	logger.Log(msg)
	mu.RUnlock()
}

const prefixMsg = "Datadog Tracer " + version.Tag

type defaultLogger struct{ l *log.Logger }

// Log implements Logger.
func (p *defaultLogger) Log(msg string) { p.l.Print(msg) }

// DiscardLogger discards every call to Log().
type DiscardLogger struct{}

// Log implements Logger.
func (d DiscardLogger) Log(_ string) {}
