package authorizer

import (
	"bytes"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"eragonauth/crypto"
	"eragonauth/message"
	"eragonauth/observability"
)

const testKeyHex = "4f3edf983ac636a65a842ce7c78d9aa706d3b113b37e2b8c3c6d53295d85f81b"

var fixedNow = time.Unix(1718000000, 0)

func newTestAuthorizer(t *testing.T, opts ...Option) *Authorizer {
	t.Helper()
	key, err := crypto.ParsePrivateKeyHex(testKeyHex)
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	signer, err := crypto.NewSigner(crypto.SchemeSecp256k1, key)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	auth, err := New(signer, opts...)
	if err != nil {
		t.Fatalf("new authorizer: %v", err)
	}
	return auth
}

func player(b byte) crypto.AccountAddress {
	var addr crypto.AccountAddress
	for i := range addr {
		addr[i] = b
	}
	return addr
}

func TestClaimMatchesReferenceVector(t *testing.T) {
	auth := newTestAuthorizer(t)
	action, err := auth.Claim(player(0x11), AptosCoin, 100000)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	const wantDigest = "09b0a515d837c61b505fa19306bd818bdfb679ced58dff08748995984f8ca77a"
	if got := action.DigestHex(); got != wantDigest {
		t.Fatalf("digest mismatch: got %s want %s", got, wantDigest)
	}
	if action.Message.Timestamp() != 1718000000 {
		t.Fatalf("unexpected ts %d", action.Message.Timestamp())
	}
	pub, err := crypto.RecoverPublicKey(action.Digest[:], action.Payload)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if !pub.Equal(auth.PublicKey()) {
		t.Fatalf("recovered key does not match server key")
	}
}

func TestEveryKindRecoversServerKey(t *testing.T) {
	auth := newTestAuthorizer(t)
	build := map[message.Kind]func() (*SignedAction, error){
		message.CheckIn: func() (*SignedAction, error) { return auth.CheckIn(player(1)) },
		message.Claim:   func() (*SignedAction, error) { return auth.Claim(player(2), AptosCoin, 5) },
		message.Roll:    func() (*SignedAction, error) { return auth.Roll(player(3), 1, 2, 1717999000) },
		message.RollProfileBy: func() (*SignedAction, error) {
			return auth.RollProfileBy(player(4), big.NewInt(7))
		},
		message.ImportSigTokenV2: func() (*SignedAction, error) {
			return auth.ImportAsset(player(5), player(6))
		},
	}
	for _, kind := range message.Kinds() {
		fn, ok := build[kind]
		if !ok {
			t.Fatalf("no builder for %s", kind)
		}
		action, err := fn()
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		if action.Kind() != kind {
			t.Fatalf("%s: unexpected kind %s", kind, action.Kind())
		}
		want := message.Digest(action.Canonical)
		if want != action.Digest {
			t.Fatalf("%s: digest does not hash canonical bytes", kind)
		}
		pub, err := crypto.RecoverPublicKey(action.Digest[:], action.Payload)
		if err != nil {
			t.Fatalf("%s: recover: %v", kind, err)
		}
		if !pub.Equal(auth.PublicKey()) {
			t.Fatalf("%s: recovered wrong key", kind)
		}
	}
}

func TestAuthorizeIsDeterministic(t *testing.T) {
	auth := newTestAuthorizer(t)
	first, err := auth.Roll(player(9), 3, 4, 10)
	if err != nil {
		t.Fatalf("roll: %v", err)
	}
	second, err := auth.Roll(player(9), 3, 4, 10)
	if err != nil {
		t.Fatalf("roll: %v", err)
	}
	if !bytes.Equal(first.Canonical, second.Canonical) {
		t.Fatalf("canonical bytes differ")
	}
	if first.Payload != second.Payload {
		t.Fatalf("signatures differ for identical input")
	}
	if first.ID == second.ID {
		t.Fatalf("action ids must be unique")
	}
}

func TestAuthorizeRejectsInvalidFields(t *testing.T) {
	auth := newTestAuthorizer(t)
	_, err := auth.Authorize(message.Claim, message.Fields{
		"addr":      message.Bytes(make([]byte, 31)),
		"coin_type": message.String(AptosCoin),
		"amount":    message.Uint64(1),
		"ts":        message.Uint64(1),
	})
	if !errors.Is(err, message.ErrInvalidFieldWidth) {
		t.Fatalf("expected width error, got %v", err)
	}
	_, err = auth.Authorize(message.Kind(42), message.Fields{})
	if !errors.Is(err, message.ErrUnknownKind) {
		t.Fatalf("expected unknown kind, got %v", err)
	}
}

func TestAuthorizeRejectsPreEpochClock(t *testing.T) {
	auth := newTestAuthorizer(t, WithClock(func() time.Time { return time.Unix(-5, 0) }))
	if _, err := auth.CheckIn(player(1)); !errors.Is(err, message.ErrIntegerOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}
}

func TestNewRequiresSigner(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, crypto.ErrInvalidKeyMaterial) {
		t.Fatalf("expected invalid key material, got %v", err)
	}
}

func TestAgeUsesEmbeddedTimestamp(t *testing.T) {
	auth := newTestAuthorizer(t)
	action, err := auth.CheckIn(player(2))
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if got := action.Age(fixedNow.Add(90 * time.Minute)); got != 90*time.Minute {
		t.Fatalf("unexpected age %s", got)
	}
}

func TestMetricsRecordOutcomes(t *testing.T) {
	metrics := observability.NewSignerMetrics()
	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.Collectors()...)
	auth := newTestAuthorizer(t, WithMetrics(metrics))

	if _, err := auth.CheckIn(player(1)); err != nil {
		t.Fatalf("check in: %v", err)
	}
	_, _ = auth.Authorize(message.CheckIn, message.Fields{"bogus": message.Bool(true)})

	if n, err := testutil.GatherAndCount(reg, "eragon_signer_signatures_total"); err != nil || n != 2 {
		t.Fatalf("expected two series, got %d (%v)", n, err)
	}
}
