package db

import (
	"strings"
	"testing"
)

func TestTruncateSQL(t *testing.T) {
	if got := truncateSQL("", 10); got != "unknown" {
		t.Errorf("expected unknown, got %q", got)
	}
	if got := truncateSQL("SELECT 1", 10); got != "SELECT 1" {
		t.Errorf("expected untouched sql, got %q", got)
	}
	long := strings.Repeat("x", 30)
	got := truncateSQL(long, 10)
	if got != strings.Repeat("x", 10)+"..." {
		t.Errorf("unexpected truncation: %q", got)
	}
}

func TestNewSlowQueryTracerDefaultThreshold(t *testing.T) {
	tr := NewSlowQueryTracer(nil, 0)
	if tr.slowThreshold.Milliseconds() != 100 {
		t.Errorf("expected 100ms default, got %v", tr.slowThreshold)
	}
}
