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

package errors

// Walk performs a depth-first traversal of err, invoking fn for each
// layered error. If fn returns false, Walk stops descending further.
//
// If err is nil, fn is not invoked.
func Walk(err error, fn func(error) bool) {
	for err != nil {
		if !fn(err) {
			return
		}
		w, ok := err.(Wrapped)
		if !ok {
			return
		}
		err = w.InnerError()
	}
}

// Any returns true if fn returns true for any error visited by Walk.
func Any(err error, fn func(error) bool) (any bool) {
	Walk(err, func(err error) bool {
		any = fn(err)
		return !any
	})
	return
}
