// Package logger defines the minimal logging seam used throughout
// aalwines.dev: components take a Logf field or constructor argument
// rather than reaching for a package-level logger.
package logger

import "log"

// Logf is the logging function type threaded through every component that
// needs to report warnings, reduction statistics, or CEGAR refinement
// progress.
type Logf func(format string, args ...any)

// Discard drops every message. Useful as a zero-value-safe default.
func Discard(format string, args ...any) {}

// Std logs via the standard library logger.
func Std(format string, args ...any) {
	log.Printf(format, args...)
}

// WithPrefix returns a Logf that prepends prefix to every message.
func WithPrefix(logf Logf, prefix string) Logf {
	if logf == nil {
		logf = Discard
	}
	return func(format string, args ...any) {
		logf(prefix+format, args...)
	}
}
