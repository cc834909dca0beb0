// Package monitoring holds the process-wide diagnostic logger used by the
// capture pipeline and its supporting packages.
package monitoring

import "log"

// Logf is the diagnostic logger shared by the library packages. It defaults
// to log.Printf; tests and embedders can redirect or silence it via SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. A nil argument installs a no-op
// logger, which silences all library diagnostics.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
