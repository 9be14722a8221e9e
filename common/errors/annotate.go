// Copyright 2016 The LUCI Authors.
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

package errors

import (
	"fmt"
	"runtime"
)

// Wrapped is implemented by errors that wrap another error, in the same
// spirit as the stdlib `Unwrap() error` convention.
type Wrapped interface {
	InnerError() error
}

// frame is a single captured call-stack entry.
type frame struct {
	pc      uintptr
	message string
}

// annotatedError is an error produced by Annotator.Err.
type annotatedError struct {
	inner  error
	frames []frame
}

func (e *annotatedError) Error() string {
	if len(e.frames) == 0 {
		return e.inner.Error()
	}
	return fmt.Sprintf("%s: %s", e.frames[len(e.frames)-1].message, e.inner.Error())
}

// InnerError implements Wrapped.
func (e *annotatedError) InnerError() error { return e.inner }

// Unwrap makes annotatedError work with errors.Is/As from the standard
// library too.
func (e *annotatedError) Unwrap() error { return e.inner }

// Annotator is a fluent builder for an annotated error. Obtain one via
// Annotate or Reason.
type Annotator struct {
	inner  error
	frames []frame
}

// Annotate begins annotating err with a message describing what the
// caller was doing when err was observed.
//
// Returns nil (as an *Annotator whose Err() is nil) if err is nil, so
// that the common
//
//	if err := doThing(); err != nil {
//		return errors.Annotate(err, "doing thing").Err()
//	}
//
// pattern composes cleanly even when called speculatively.
func Annotate(err error, format string, args ...any) *Annotator {
	if err == nil {
		return nil
	}
	a := &Annotator{inner: err}
	return a.push(format, args...)
}

// Reason starts a brand new error (no wrapped cause) with the given
// message, in a form that can still gather stack frames via further
// Annotate calls higher up if it's returned and re-annotated.
func Reason(format string, args ...any) *Annotator {
	a := &Annotator{inner: fmt.Errorf(format, args...)}
	return a
}

func (a *Annotator) push(format string, args ...any) *Annotator {
	if a == nil {
		return nil
	}
	var pc uintptr
	if pcs := make([]uintptr, 1); runtime.Callers(3, pcs) > 0 {
		pc = pcs[0]
	}
	a.frames = append(a.frames, frame{pc: pc, message: fmt.Sprintf(format, args...)})
	return a
}

// Err returns the finalized annotated error, or nil if the wrapped
// error was nil.
func (a *Annotator) Err() error {
	if a == nil {
		return nil
	}
	return &annotatedError{inner: a.inner, frames: a.frames}
}

// New is a passthrough to fmt.Errorf, provided so that call sites can
// import a single "errors" package for both New and Annotate.
func New(msg string) error {
	return fmt.Errorf("%s", msg)
}
