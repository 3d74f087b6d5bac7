package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

func TestSetupWritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logFile := filepath.Join(t.TempDir(), "signerd.log")
	logger := SetupWithOptions("signerd", "test", Options{Level: slog.LevelDebug, Output: &buf, File: logFile})
	logger.Debug("signed", "kind", "claim", MaskField("signer_key", "deadbeef"))

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if line["message"] != "signed" || line["severity"] != "DEBUG" || line["service"] != "signerd" || line["env"] != "test" {
		t.Fatalf("unexpected envelope: %v", line)
	}
	if line["signer_key"] != RedactedValue {
		t.Fatalf("signer key must be redacted: %v", line["signer_key"])
	}
	contents, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(contents), `"kind":"claim"`) {
		t.Fatalf("file sink missing line: %s", contents)
	}
}

func TestMaskField(t *testing.T) {
	if got := MaskField("kind", "claim"); got.Value.String() != "claim" {
		t.Fatalf("allowlisted key masked: %v", got)
	}
	if got := MaskField("Authorization", "Bearer abc"); got.Value.String() != RedactedValue {
		t.Fatalf("token not masked: %v", got)
	}
	if got := MaskValue("  "); got != "  " {
		t.Fatalf("blank value should pass through")
	}
}

func TestHandlerMasksSecretKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithOptions("signerd", "", Options{Output: &buf})
	logger.Info("loaded signer", "passphrase", "hunter2", "HMAC_Secret", "s3cret", "digest", "ab12", "recovery_id", 1)

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if line["passphrase"] != RedactedValue || line["HMAC_Secret"] != RedactedValue {
		t.Fatalf("secrets leaked: %v", line)
	}
	if line["digest"] != "ab12" || line["recovery_id"] != float64(1) {
		t.Fatalf("authorization keys should pass through: %v", line)
	}
	if _, ok := line["env"]; ok {
		t.Fatalf("blank env should be omitted: %v", line)
	}
}

func TestRedactionAllowlist(t *testing.T) {
	keys := RedactionAllowlist()
	if !sort.StringsAreSorted(keys) {
		t.Fatalf("allowlist not sorted: %v", keys)
	}
	for _, key := range []string{"digest", "public_key", "recovery_id", "kind"} {
		if !IsAllowlisted(strings.ToUpper(key)) {
			t.Fatalf("%s should be allowlisted", key)
		}
	}
	for _, key := range []string{"signer_key", "token", "passphrase"} {
		if IsAllowlisted(key) {
			t.Fatalf("%s must not be allowlisted", key)
		}
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG") != slog.LevelDebug || ParseLevel("warning") != slog.LevelWarn || ParseLevel("") != slog.LevelInfo {
		t.Fatalf("unexpected level mapping")
	}
}
