package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLoggerWritesWhenEnabled(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, true)
	if !l.Enabled() {
		t.Fatalf("expected logger to be enabled")
	}

	l.Debug("loaded %d files", 3)
	l.Stream("text", "hello")
	l.Push("file_updated", "01_map/content.md")

	out := buf.String()
	for _, want := range []string{"DEBUG [mmedit]: loaded 3 files", "STREAM [mmedit]: [text] hello", "PUSH [mmedit]: [file_updated] 01_map/content.md"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestNewLoggerSilentWhenDisabled(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, false)
	if l.Enabled() {
		t.Fatalf("expected logger to be disabled")
	}

	l.Debug("nothing")
	l.Info("nothing")
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}

	l.Error("boom %s", "here")
	if !strings.Contains(buf.String(), "mmedit error: boom here") {
		t.Fatalf("errors should always reach the error writer, got %q", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abc", 5); got != "abc" {
		t.Errorf("truncate short = %q", got)
	}
	if got := truncate("abcdef", 3); got != "abc..." {
		t.Errorf("truncate long = %q", got)
	}
}
