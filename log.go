// Copyright 2024 Google LLC
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

package crocore

import "github.com/charmbracelet/log"

// Logger is the diagnostic sink an [Archive] reports soft failures and
// dump-mode progress through. It is satisfied by *[log.Logger], so
// callers that already use charmbracelet/log can pass their own logger
// straight through via [WithLogger].
type Logger interface {
	Warn(msg interface{}, keyvals ...interface{})
	Info(msg interface{}, keyvals ...interface{})
	Debug(msg interface{}, keyvals ...interface{})
}

// nopLogger discards everything. Used only if a caller explicitly opts
// out with WithLogger(nil).
type nopLogger struct{}

func (nopLogger) Warn(interface{}, ...interface{})  {}
func (nopLogger) Info(interface{}, ...interface{})  {}
func (nopLogger) Debug(interface{}, ...interface{}) {}

func defaultLogger() Logger {
	return log.Default().With("component", "crocore")
}

// DefaultLogger returns the charmbracelet/log-backed [Logger] that
// [Open] uses when no [WithLogger] option is given. Callers of
// [WithLogger] who just want the normal diagnostic output (rather than
// silence or a custom sink) can pass this explicitly.
func DefaultLogger() Logger {
	return defaultLogger()
}
