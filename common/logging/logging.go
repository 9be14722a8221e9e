// Copyright 2015 The LUCI Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging defines a context.Context-scoped, leveled logging
// interface, following the shape used throughout go.chromium.org/luci.
//
// Production code never writes to stderr/stdout directly; it fetches the
// current Logger from the Context via Get (or one of the level-specific
// shorthands: Debugf, Infof, Warningf, Errorf) so that a caller can
// install request-scoped fields, redirect output, or silence a
// particular subtree (see SetField/SetFields/SetLevel) without
// threading a *Logger through every function signature.
package logging

import (
	"context"
	"fmt"
	"log"
	"os"
)

// Level describes the severity of a log entry.
type Level int

const (
	Debug Level = iota
	Info
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// Fields is a set of structured key/value pairs attached to log entries
// through a Context derived via SetFields.
type Fields map[string]any

// ErrorKey is the well-known Fields key under which SetError stores an
// error.
const ErrorKey = "error"

// Logger is the interface implemented by everything installed into a
// Context via SetLogger.
type Logger interface {
	// Debugf, Infof, Warningf, Errorf write a formatted message at the
	// given fixed level.
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warningf(format string, args ...any)
	Errorf(format string, args ...any)

	// LogCall writes a formatted message at level l. calldepth counts
	// additional stack frames to skip when the Logger reports a source
	// location (0 == the caller of LogCall).
	LogCall(l Level, calldepth int, format string, args []any)
}

type loggerKeyType struct{}

var loggerKey loggerKeyType

type levelKeyType struct{}

var levelKey levelKeyType

type fieldsKeyType struct{}

var fieldsKey fieldsKeyType

// SetLogger installs l as the Logger returned by Get for this Context
// and its children.
func SetLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// SetLevel installs a minimum log Level for this Context and its
// children; IsLogging and the default Logger honor it.
func SetLevel(ctx context.Context, l Level) context.Context {
	return context.WithValue(ctx, levelKey, l)
}

// GetLevel returns the minimum log Level configured on ctx, defaulting
// to Info.
func GetLevel(ctx context.Context) Level {
	if l, ok := ctx.Value(levelKey).(Level); ok {
		return l
	}
	return Info
}

// SetField attaches a single structured field to log entries emitted
// through the Logger returned by Get on the resulting Context.
func SetField(ctx context.Context, key string, value any) context.Context {
	return SetFields(ctx, Fields{key: value})
}

// SetFields attaches structured fields to log entries emitted through
// the Logger returned by Get on the resulting Context, merging with any
// fields already present.
func SetFields(ctx context.Context, fields Fields) context.Context {
	merged := make(Fields, len(fields))
	if existing, ok := ctx.Value(fieldsKey).(Fields); ok {
		for k, v := range existing {
			merged[k] = v
		}
	}
	for k, v := range fields {
		merged[k] = v
	}
	return context.WithValue(ctx, fieldsKey, merged)
}

// GetFields returns the structured fields attached to ctx.
func GetFields(ctx context.Context) Fields {
	if f, ok := ctx.Value(fieldsKey).(Fields); ok {
		return f
	}
	return nil
}

// WithError is shorthand for logging.Get(ctx) after tagging the error
// into the Context's fields, i.e.:
//
//	logging.WithError(err).Errorf(ctx, "failed to load dump for %s", name)
func WithError(err error) errLogger {
	return errLogger{err: err}
}

// errLogger is the fluent handle returned by WithError.
type errLogger struct{ err error }

func (e errLogger) Errorf(ctx context.Context, format string, args ...any) {
	Get(SetField(ctx, ErrorKey, e.err)).LogCall(Error, 1, format+": %s", append(append([]any{}, args...), e.err))
}

func (e errLogger) Warningf(ctx context.Context, format string, args ...any) {
	Get(SetField(ctx, ErrorKey, e.err)).LogCall(Warning, 1, format+": %s", append(append([]any{}, args...), e.err))
}

// Get returns the Logger installed on ctx, defaulting to a Logger that
// writes to the standard "log" package if none was installed.
func Get(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey).(Logger); ok {
		return l
	}
	return stdLogger{ctx: ctx}
}

// stdLogger is the zero-configuration fallback Logger, used by binaries
// (and tests) that never call SetLogger.
type stdLogger struct{ ctx context.Context }

func (s stdLogger) Debugf(format string, args ...any)   { s.LogCall(Debug, 1, format, args) }
func (s stdLogger) Infof(format string, args ...any)    { s.LogCall(Info, 1, format, args) }
func (s stdLogger) Warningf(format string, args ...any) { s.LogCall(Warning, 1, format, args) }
func (s stdLogger) Errorf(format string, args ...any)   { s.LogCall(Error, 1, format, args) }

func (s stdLogger) LogCall(l Level, calldepth int, format string, args []any) {
	if !IsLogging(s.ctx, l) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if fields := GetFields(s.ctx); len(fields) > 0 {
		msg = fmt.Sprintf("%s %+v", msg, fields)
	}
	stdLog.Output(calldepth+2, l.String()+": "+msg)
}

var stdLog = log.New(os.Stderr, "", log.LstdFlags|log.Lshortfile)
