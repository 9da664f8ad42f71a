package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNew_JSONFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LOG_FORMAT", "json")

	var buf bytes.Buffer
	l := New("debug", "text", false, &buf)
	if l.GetLevel() != logrus.WarnLevel {
		t.Fatalf("level: got %v want warn", l.GetLevel())
	}
	l.WithField("session", "s1").Warn("slow consumer")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("expected json line, got %q: %v", buf.String(), err)
	}
	if line["session"] != "s1" || line["msg"] != "slow consumer" {
		t.Fatalf("unexpected fields: %v", line)
	}
}

func TestNew_DebugOverridesLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New("error", "text", true, &buf)
	l.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("expected debug output, got %q", buf.String())
	}
}

func TestNew_BadLevelFallsBackToInfo(t *testing.T) {
	l := New("loud", "text", false, &bytes.Buffer{})
	if l.GetLevel() != logrus.InfoLevel {
		t.Fatalf("level: got %v want info", l.GetLevel())
	}
}
