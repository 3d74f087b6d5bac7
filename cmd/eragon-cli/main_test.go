package main

import (
	"bytes"
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"eragonauth/crypto"
)

const testKeyHex = "4f3edf983ac636a65a842ce7c78d9aa706d3b113b37e2b8c3c6d53295d85f81b"

const player = "0x1111111111111111111111111111111111111111111111111111111111111111"

// checkInHex is check_in for 0x22..22 at ts 1718000000.
var checkInHex = "08636865636b5f696e" + strings.Repeat("22", 32) + "8099666600000000"

func withFixedClock(t *testing.T) {
	t.Helper()
	original := now
	now = func() time.Time { return time.Unix(1718000000, 0) }
	t.Cleanup(func() { now = original })
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	code := run(args, stdout, stderr)
	return code, stdout.String(), stderr.String()
}

func TestSignClaimFromEnvironmentKey(t *testing.T) {
	withFixedClock(t)
	t.Setenv(keyEnv, testKeyHex)
	code, stdout, stderr := runCLI(t, "sign", "--contract", "0xe7a9", "claim",
		"addr="+player, "coin_type=0x1::aptos_coin::AptosCoin", "amount=100000")
	if code != 0 {
		t.Fatalf("unexpected exit %d: %s", code, stderr)
	}
	var out struct {
		Digest     string `json:"digest"`
		Message    string `json:"message"`
		Signature  string `json:"signature"`
		RecoveryID int    `json:"recovery_id"`
		Call       struct {
			Function string `json:"function"`
		} `json:"call"`
	}
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if out.Digest != "09b0a515d837c61b505fa19306bd818bdfb679ced58dff08748995984f8ca77a" {
		t.Fatalf("unexpected digest %s", out.Digest)
	}
	if !strings.HasSuffix(out.Call.Function, "::eragon_claim::claim") {
		t.Fatalf("unexpected call %q", out.Call.Function)
	}

	code, stdout, stderr = runCLI(t, "recover", "claim", out.Message, out.Signature, strconv.Itoa(out.RecoveryID))
	if code != 0 {
		t.Fatalf("recover failed: %s", stderr)
	}
	key, _ := crypto.ParsePrivateKeyHex(testKeyHex)
	if strings.TrimSpace(stdout) != key.PubKey().Hex() {
		t.Fatalf("recovered %s, want %s", strings.TrimSpace(stdout), key.PubKey().Hex())
	}
}

func TestInspectDecodesCanonicalBytes(t *testing.T) {
	code, stdout, stderr := runCLI(t, "inspect", "check_in", checkInHex)
	if code != 0 {
		t.Fatalf("inspect failed: %s", stderr)
	}
	var out struct {
		Kind   string         `json:"kind"`
		Fields map[string]any `json:"fields"`
		Digest string         `json:"digest"`
	}
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Kind != "check_in" || out.Fields["ts"] != "1718000000" || len(out.Digest) != 64 {
		t.Fatalf("unexpected inspect output %s", stdout)
	}

	if code, _, _ := runCLI(t, "inspect", "check_in", checkInHex+"00"); code == 0 {
		t.Fatalf("expected trailing bytes to fail")
	}
}

func TestArgumentValidation(t *testing.T) {
	t.Setenv(keyEnv, "")
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"no command", nil, "Usage"},
		{"unknown command", []string{"mint"}, "Unknown command: mint"},
		{"sign without kind", []string{"sign"}, "sign requires a kind"},
		{"sign unknown kind", []string{"sign", "lottery"}, "unknown kind"},
		{"sign bad pair", []string{"sign", "check_in", "addr"}, "expected field=value"},
		{"sign unknown field", []string{"sign", "check_in", "bogus=1"}, "unknown field"},
		{"sign without key", []string{"sign", "check_in", "addr=" + player}, "no key source"},
		{"recover arity", []string{"recover", "claim"}, "recover requires"},
		{"recover bad recid", []string{"recover", "check_in", checkInHex, strings.Repeat("00", 64), "x"}, "invalid recovery id"},
		{"init-config contract", []string{"init-config"}, "--contract is required"},
		{"sign import release", []string{"sign", "import_sig_token_v2", "owner=" + player, "asset_addr=" + player, "is_import=false"}, "contradicts implied"},
		{"inspect padded prefix", []string{"inspect", "check_in", "8800" + checkInHex[2:]}, "non-canonical"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, tc.args...)
			if code != 1 {
				t.Fatalf("unexpected exit code %d", code)
			}
			if !strings.Contains(stderr, tc.want) {
				t.Fatalf("stderr %q does not mention %q", stderr, tc.want)
			}
		})
	}
}

func TestPubkeyFromKeyFile(t *testing.T) {
	path := t.TempDir() + "/server.key"
	if err := writeTestFile(path, "0x"+testKeyHex); err != nil {
		t.Fatalf("write key: %v", err)
	}
	code, stdout, stderr := runCLI(t, "pubkey", "--key-file", path)
	if code != 0 {
		t.Fatalf("pubkey failed: %s", stderr)
	}
	key, _ := crypto.ParsePrivateKeyHex(testKeyHex)
	if !strings.Contains(stdout, key.PubKey().Hex()) {
		t.Fatalf("unexpected output %s", stdout)
	}
}

func TestSchemasListsEveryKind(t *testing.T) {
	code, stdout, _ := runCLI(t, "schemas")
	if code != 0 {
		t.Fatalf("schemas failed")
	}
	for _, fn := range []string{"check_in", "claim", "roll", "roll_profile_by", "import_sig_token_v2"} {
		if !strings.Contains(stdout, `"function": "`+fn+`"`) {
			t.Fatalf("schemas output missing %s", fn)
		}
	}
}

func writeTestFile(path, contents string) error {
	return os.WriteFile(path, []byte(contents), 0o600)
}
