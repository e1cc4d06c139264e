package klog

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseFlagGating(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "")
	l.ParseFlag("fs, vm")

	l.Printf(FS, "hello %d", 1)
	l.Printf(Thread, "should not appear")
	l.Printf(VM, "world")

	out := buf.String()
	if !strings.Contains(out, "hello 1") {
		t.Errorf("expected fs log line, got %q", out)
	}
	if strings.Contains(out, "should not appear") {
		t.Errorf("thread category should have been silent, got %q", out)
	}
	if !strings.Contains(out, "world") {
		t.Errorf("expected vm log line, got %q", out)
	}
}

func TestAllCategory(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "")
	l.ParseFlag("all")
	l.Printf(Machine, "tick")
	if !strings.Contains(buf.String(), "tick") {
		t.Errorf("all should enable every category")
	}
}
