// Package monitoring holds the process-wide diagnostic loggers. The
// alignment core itself never logs; the API and storage layers report
// through here so tests can mute or capture output.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf
// and may be replaced by SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// debugEnabled gates Debugf output. Off by default.
var debugEnabled bool

// SetLogger replaces the package logger. Passing nil installs a no-op
// logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetDebug toggles Debugf output.
func SetDebug(enabled bool) {
	debugEnabled = enabled
}

// Debugf logs through Logf only when debug output is enabled. Used for
// per-mutation recompose chatter that would swamp normal logs.
func Debugf(format string, v ...interface{}) {
	if debugEnabled {
		Logf("[debug] "+format, v...)
	}
}
