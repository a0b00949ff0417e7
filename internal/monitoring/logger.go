// Package monitoring carries the engine's diagnostic logging hook.
//
// Frame-path code never logs directly; callers that detect corruption or
// lifecycle events report through Logf so embedders can redirect or mute
// diagnostics without touching the pipeline.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. Defaults to log.Printf.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op
// logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
