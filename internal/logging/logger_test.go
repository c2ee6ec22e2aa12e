package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestSensitiveAttributesRedacted(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "debug")

	logger.Info("pin change", "pin", "1234", "account_id", "acct-1")

	out := buf.String()
	if strings.Contains(out, "1234") {
		t.Fatalf("pin leaked into log output: %s", out)
	}
	if !strings.Contains(out, "acct-1") {
		t.Fatalf("expected account id in output: %s", out)
	}
}

func TestInvalidLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "verbose")

	logger.Debug("hidden")
	logger.Info("shown")

	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}
