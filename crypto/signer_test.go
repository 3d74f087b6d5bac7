package crypto

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

const testKeyHex = "4f3edf983ac636a65a842ce7c78d9aa706d3b113b37e2b8c3c6d53295d85f81b"

func testKey(t *testing.T) *PrivateKey {
	t.Helper()
	key, err := ParsePrivateKeyHex(testKeyHex)
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	return key
}

func TestSignDigestRecovers(t *testing.T) {
	key := testKey(t)
	digest := sha256.Sum256([]byte("claim"))
	payload, err := key.SignDigest(digest[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if payload.RecoveryID > MaxRecoveryID {
		t.Fatalf("recovery id out of range: %d", payload.RecoveryID)
	}
	recovered, err := RecoverPublicKey(digest[:], payload)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if !recovered.Equal(key.PubKey()) {
		t.Fatalf("recovered key mismatch")
	}

	again, err := key.SignDigest(digest[:])
	if err != nil {
		t.Fatalf("sign again: %v", err)
	}
	if again != payload {
		t.Fatalf("RFC 6979 signatures should be deterministic")
	}
}

func TestSignatureHexFormat(t *testing.T) {
	key := testKey(t)
	digest := sha256.Sum256([]byte("roll"))
	payload, err := key.SignDigest(digest[:])
	if err != nil {
		t.Fatal(err)
	}
	sigHex := payload.SignatureHex()
	if len(sigHex) != 2*SignatureLength || strings.HasPrefix(sigHex, "0x") || strings.ToLower(sigHex) != sigHex {
		t.Fatalf("unexpected signature encoding %q", sigHex)
	}
	parsed, err := ParseSignature("0x"+sigHex, int(payload.RecoveryID))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != payload {
		t.Fatalf("parsed payload differs")
	}
	if _, err := ParseSignature(sigHex, 4); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("recid 4 must be rejected, got %v", err)
	}
	if _, err := ParseSignature(sigHex[:126], 0); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("short signature must be rejected, got %v", err)
	}
}

func TestSignDigestLength(t *testing.T) {
	key := testKey(t)
	for _, n := range []int{0, 31, 33, 64} {
		if _, err := key.SignDigest(make([]byte, n)); !errors.Is(err, ErrInvalidDigestLength) {
			t.Fatalf("len %d: expected digest length error, got %v", n, err)
		}
	}
	if _, err := RecoverPublicKey(make([]byte, 20), SignaturePayload{}); !errors.Is(err, ErrInvalidDigestLength) {
		t.Fatalf("recover should check digest length, got %v", err)
	}
}

func TestParsePrivateKeyHex(t *testing.T) {
	want := testKey(t)
	for _, in := range []string{
		"0x" + testKeyHex,
		"ed25519-priv-0x" + testKeyHex,
		"secp256k1-priv-0x" + testKeyHex,
		"  " + testKeyHex + "\n",
	} {
		key, err := ParsePrivateKeyHex(in)
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if !bytes.Equal(key.Bytes(), want.Bytes()) {
			t.Fatalf("%q decoded to a different key", in)
		}
	}
	for _, in := range []string{"", "0x", "zz", "0x1234", strings.Repeat("00", 32)} {
		if _, err := ParsePrivateKeyHex(in); !errors.Is(err, ErrInvalidKeyMaterial) {
			t.Fatalf("%q: expected invalid key material, got %v", in, err)
		}
	}
}

func TestPrivateKeyNeverPrints(t *testing.T) {
	key := testKey(t)
	if strings.Contains(key.String(), testKeyHex[:8]) {
		t.Fatalf("String leaked key material")
	}
	if strings.Contains(key.LogValue().String(), testKeyHex[:8]) {
		t.Fatalf("LogValue leaked key material")
	}
}

func TestPublicKeyEncodings(t *testing.T) {
	pub := testKey(t).PubKey()
	for _, enc := range [][]byte{pub.Bytes(), pub.Compressed(), pub.Bytes()[1:]} {
		parsed, err := ParsePublicKeyHex("0x" + hex.EncodeToString(enc))
		if err != nil {
			t.Fatalf("parse %d-byte key: %v", len(enc), err)
		}
		if !parsed.Equal(pub) {
			t.Fatalf("%d-byte encoding parsed to a different key", len(enc))
		}
	}
	if _, err := ParsePublicKeyHex("abcd"); !errors.Is(err, ErrInvalidKeyMaterial) {
		t.Fatalf("expected invalid key material, got %v", err)
	}
}

func TestNewSigner(t *testing.T) {
	key := testKey(t)
	signer, err := NewSigner(SchemeSecp256k1, key)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	if !signer.PubKey().Equal(key.PubKey()) {
		t.Fatalf("signer public key mismatch")
	}
	if _, err := NewSigner("ed25519", key); !errors.Is(err, ErrUnsupportedScheme) {
		t.Fatalf("expected unsupported scheme, got %v", err)
	}
	if _, err := NewSigner(SchemeSecp256k1, nil); !errors.Is(err, ErrInvalidKeyMaterial) {
		t.Fatalf("expected invalid key material, got %v", err)
	}
}

func TestRecoverabilityProperty(t *testing.T) {
	key := testKey(t)
	properties := gopter.NewProperties(nil)
	properties.Property("recover(d, sign(d)) == pub", prop.ForAll(
		func(digest []byte) bool {
			payload, err := key.SignDigest(digest)
			if err != nil {
				return false
			}
			pub, err := RecoverPublicKey(digest, payload)
			return err == nil && pub.Equal(key.PubKey())
		},
		gen.SliceOfN(DigestLength, gen.UInt8()),
	))
	properties.TestingRun(t)
}

func TestKeystoreRoundTrip(t *testing.T) {
	key := testKey(t)
	path := filepath.Join(t.TempDir(), "keys", "server.json")
	if err := saveToKeystore(path, key, "correct horse", keystore.LightScryptN, keystore.LightScryptP); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadFromKeystore(path, "correct horse")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !bytes.Equal(loaded.Bytes(), key.Bytes()) {
		t.Fatalf("loaded key differs")
	}
	if _, err := LoadFromKeystore(path, "wrong"); !errors.Is(err, ErrInvalidKeyMaterial) {
		t.Fatalf("expected invalid key material for wrong passphrase, got %v", err)
	}
}

func TestKeystoreReplacesFileOwnerOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "signer.keystore")
	first := testKey(t)
	second, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	for _, key := range []*PrivateKey{first, second} {
		if err := saveToKeystore(path, key, "pw", keystore.LightScryptN, keystore.LightScryptP); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("keystore mode %o, want 600", perm)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("staging files left behind: %v", entries)
	}
	loaded, err := LoadFromKeystore(path, "pw")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !bytes.Equal(loaded.Bytes(), second.Bytes()) {
		t.Fatalf("keystore still holds the first key")
	}
	if err := saveToKeystore(path, nil, "pw", keystore.LightScryptN, keystore.LightScryptP); !errors.Is(err, ErrInvalidKeyMaterial) {
		t.Fatalf("expected invalid key material for nil key, got %v", err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("corrupt: %v", err)
	}
	if _, err := LoadFromKeystore(path, "pw"); !errors.Is(err, ErrInvalidKeyMaterial) {
		t.Fatalf("expected invalid key material for corrupt file, got %v", err)
	}
}

func TestAccountAddress(t *testing.T) {
	long := "0x" + strings.Repeat("ab", 32)
	addr, err := ParseAccountAddress(long)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if addr.String() != long {
		t.Fatalf("round trip: %s", addr)
	}
	if _, err := ParseAccountAddress("0x1"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("strict parse must reject short form, got %v", err)
	}
	one, err := ParseAccountAddressRelaxed("0x1")
	if err != nil {
		t.Fatalf("relaxed: %v", err)
	}
	if one[31] != 1 || !bytes.Equal(one[:31], make([]byte, 31)) {
		t.Fatalf("relaxed parse should left-pad: %s", one)
	}
	if _, err := AccountAddressFromBytes(make([]byte, 20)); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected 20-byte input to fail, got %v", err)
	}
}
