package base

import "log"

// Logger is the minimal logging surface every domcache package depends on.
// No concrete logging framework is wired in by this module (logging glue is
// out of scope per SPEC_FULL.md §1); callers inject their own implementation
// through Options. The zero value of Options falls back to DefaultLogger.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// DefaultLogger adapts the standard library's log package to Logger.
type DefaultLogger struct{}

var _ Logger = DefaultLogger{}

// Infof implements Logger.
func (DefaultLogger) Infof(format string, args ...interface{}) { log.Printf("INFO: "+format, args...) }

// Errorf implements Logger.
func (DefaultLogger) Errorf(format string, args ...interface{}) {
	log.Printf("ERROR: "+format, args...)
}

// Fatalf implements Logger.
func (DefaultLogger) Fatalf(format string, args ...interface{}) { log.Fatalf(format, args...) }

// NoopLogger discards everything; useful in tests that assert on other
// observable state and don't want log noise.
type NoopLogger struct{}

var _ Logger = NoopLogger{}

// Infof implements Logger.
func (NoopLogger) Infof(string, ...interface{}) {}

// Errorf implements Logger.
func (NoopLogger) Errorf(string, ...interface{}) {}

// Fatalf implements Logger.
func (NoopLogger) Fatalf(string, ...interface{}) {}
