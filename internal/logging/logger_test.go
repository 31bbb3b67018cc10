package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestPrettyFormatterIncludesLevelAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, logrus.InfoLevel)

	l.WithField("peer", "abc123").Info("session opened")

	out := buf.String()
	if !strings.Contains(out, "INFO") {
		t.Errorf("expected level INFO in output, got %q", out)
	}
	if !strings.Contains(out, "session opened") {
		t.Errorf("expected message in output, got %q", out)
	}
	if !strings.Contains(out, "peer=abc123") {
		t.Errorf("expected field in output, got %q", out)
	}
}

func TestSilentLoggerDiscardsOutput(t *testing.T) {
	l := NewSilentLogger()
	l.Info("this should not appear anywhere")
	if l.Out == nil {
		t.Fatal("expected a non-nil discard writer")
	}
}
