package monitoring

import (
	"fmt"
	"testing"
)

func capture() (*[]string, func(string, ...interface{})) {
	var lines []string
	return &lines, func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	}
}

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	lines, logger := capture()
	SetLogger(logger)
	Logf("hello %d", 7)

	if len(*lines) != 1 || (*lines)[0] != "hello 7" {
		t.Errorf("captured = %v", *lines)
	}

	// nil installs a no-op, not a nil function.
	SetLogger(nil)
	Logf("dropped")
	if len(*lines) != 1 {
		t.Errorf("no-op logger still captured: %v", *lines)
	}
}

func TestLogfDefaultNotNil(t *testing.T) {
	if Logf == nil {
		t.Fatal("Logf is nil by default")
	}
}

func TestDebugfGatedBySetDebug(t *testing.T) {
	original := Logf
	defer func() {
		Logf = original
		SetDebug(false)
	}()

	lines, logger := capture()
	SetLogger(logger)

	SetDebug(false)
	Debugf("invisible")
	if len(*lines) != 0 {
		t.Errorf("debug off but captured %v", *lines)
	}

	SetDebug(true)
	Debugf("recompose for %s", "sess-1")
	if len(*lines) != 1 || (*lines)[0] != "[debug] recompose for sess-1" {
		t.Errorf("captured = %v", *lines)
	}
}
