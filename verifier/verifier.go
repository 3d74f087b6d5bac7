// Package verifier mirrors the checks the on-chain modules run before they
// act on a server authorisation: the signature must recover the trusted key,
// the timestamp must be fresh, and each (caller, kind, ts) is honoured once.
package verifier

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"eragonauth/crypto"
	"eragonauth/message"
	"eragonauth/observability"
	"eragonauth/storage"
)

var (
	ErrSignerMismatch    = errors.New("verifier: signer mismatch")
	ErrStaleSignature    = errors.New("verifier: stale signature")
	ErrReplayedSignature = errors.New("verifier: replayed signature")
	ErrInvalidConfig     = errors.New("verifier: invalid config")
)

// State is the lifecycle position of an authorisation as seen by the ledger.
type State uint8

const (
	Pending State = iota
	Consumed
	Rejected
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Consumed:
		return "consumed"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Outcome is the verifier's decision for one submission.
type Outcome struct {
	State  State
	Reason error
}

// Config holds the verifier's trusted key and freshness policy.
type Config struct {
	TrustedKey *crypto.PublicKey
	// Window is the maximum accepted age of a timestamp. Required.
	Window time.Duration
	// FutureSkew bounds how far ahead of the local clock a timestamp may be.
	FutureSkew time.Duration
	Clock      func() time.Time
	Logger     *slog.Logger
	Metrics    *observability.SignerMetrics
}

// Verifier checks signed actions and records consumed ones in a Database.
type Verifier struct {
	trusted *secp256k1.PublicKey
	window  time.Duration
	skew    time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *observability.SignerMetrics

	mu sync.Mutex
	db storage.Database
}

// New validates cfg and returns a verifier that persists consumption in db.
func New(cfg Config, db storage.Database) (*Verifier, error) {
	if cfg.TrustedKey == nil || cfg.TrustedKey.PublicKey == nil {
		return nil, fmt.Errorf("%w: trusted key required", ErrInvalidConfig)
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("%w: window must be positive", ErrInvalidConfig)
	}
	if cfg.FutureSkew < 0 {
		return nil, fmt.Errorf("%w: future skew must not be negative", ErrInvalidConfig)
	}
	if db == nil {
		return nil, fmt.Errorf("%w: database required", ErrInvalidConfig)
	}
	trusted, err := secp256k1.ParsePubKey(cfg.TrustedKey.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: trusted key: %v", ErrInvalidConfig, err)
	}
	v := &Verifier{
		trusted: trusted,
		window:  cfg.Window,
		skew:    cfg.FutureSkew,
		now:     cfg.Clock,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		db:      db,
	}
	if v.now == nil {
		v.now = time.Now
	}
	if v.logger == nil {
		v.logger = slog.Default()
	}
	return v, nil
}

// Window returns the configured freshness window.
func (v *Verifier) Window() time.Duration { return v.window }

// Recover hashes msg and returns the public key that produced payload. It does
// not consult or change consumption state.
func (v *Verifier) Recover(msg *message.CanonicalMessage, payload crypto.SignaturePayload) (*secp256k1.PublicKey, error) {
	digest, err := msg.Digest()
	if err != nil {
		return nil, err
	}
	return recoverCompact(digest[:], payload)
}

// Trusted reports whether payload over msg was produced by the trusted key.
func (v *Verifier) Trusted(msg *message.CanonicalMessage, payload crypto.SignaturePayload) (bool, error) {
	pub, err := v.Recover(msg, payload)
	if err != nil {
		return false, err
	}
	return pub.IsEqual(v.trusted), nil
}

func recoverCompact(digest []byte, payload crypto.SignaturePayload) (*secp256k1.PublicKey, error) {
	if payload.RecoveryID > crypto.MaxRecoveryID {
		return nil, fmt.Errorf("%w: recovery id %d", crypto.ErrInvalidSignature, payload.RecoveryID)
	}
	compact := make([]byte, 1+crypto.SignatureLength)
	compact[0] = 27 + payload.RecoveryID
	copy(compact[1:], payload.Signature[:])
	pub, _, err := ecdsa.RecoverCompact(compact, digest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", crypto.ErrInvalidSignature, err)
	}
	return pub, nil
}

// Verify runs the full acceptance check for a message the caller rebuilt from
// the transaction sender and call arguments. On success the (caller, kind, ts)
// tuple is consumed and cannot be accepted again.
func (v *Verifier) Verify(msg *message.CanonicalMessage, payload crypto.SignaturePayload) (Outcome, error) {
	outcome, err := v.verify(msg, payload)
	kind := msg.Kind().String()
	reason := reasonLabel(err)
	v.metrics.ObserveVerification(kind, outcome.State.String(), reason)
	if err != nil {
		v.logger.Warn("authorisation rejected",
			"kind", kind,
			"caller", hex.EncodeToString(msg.Caller()),
			"ts", msg.Timestamp(),
			"reason", reason,
		)
		return outcome, err
	}
	v.logger.Debug("authorisation consumed", "kind", kind, "ts", msg.Timestamp())
	return outcome, nil
}

func (v *Verifier) verify(msg *message.CanonicalMessage, payload crypto.SignaturePayload) (Outcome, error) {
	reject := func(err error) (Outcome, error) {
		return Outcome{State: Rejected, Reason: err}, err
	}
	pub, err := v.Recover(msg, payload)
	if err != nil {
		return reject(fmt.Errorf("%w: %v", ErrSignerMismatch, err))
	}
	if !pub.IsEqual(v.trusted) {
		return reject(ErrSignerMismatch)
	}
	if err := v.checkFresh(msg.Timestamp()); err != nil {
		return reject(err)
	}

	key := consumedKey(msg.Kind(), msg.Caller(), msg.Timestamp())
	v.mu.Lock()
	defer v.mu.Unlock()
	seen, err := v.db.Has(key)
	if err != nil {
		return Outcome{State: Pending}, fmt.Errorf("verifier: read consumed set: %w", err)
	}
	if seen {
		return reject(ErrReplayedSignature)
	}
	digest, err := msg.Digest()
	if err != nil {
		return Outcome{State: Pending}, err
	}
	if err := v.db.Put(key, digest[:]); err != nil {
		return Outcome{State: Pending}, fmt.Errorf("verifier: record consumption: %w", err)
	}
	return Outcome{State: Consumed}, nil
}

func (v *Verifier) checkFresh(ts uint64) error {
	now := v.now()
	issued := time.Unix(int64(ts), 0)
	if age := now.Sub(issued); age > v.window {
		return fmt.Errorf("%w: issued %s ago, window %s", ErrStaleSignature, age.Truncate(time.Second), v.window)
	}
	if ahead := issued.Sub(now); ahead > v.skew {
		return fmt.Errorf("%w: issued %s in the future", ErrStaleSignature, ahead.Truncate(time.Second))
	}
	return nil
}

// Consumed reports whether an authorisation for (kind, caller, ts) has been
// accepted.
func (v *Verifier) Consumed(kind message.Kind, caller []byte, ts uint64) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.db.Has(consumedKey(kind, caller, ts))
}

func consumedKey(kind message.Kind, caller []byte, ts uint64) []byte {
	return []byte(fmt.Sprintf("consumed/%s/%x/%d", kind.Discriminant(), caller, ts))
}

func reasonLabel(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSignerMismatch):
		return "signer_mismatch"
	case errors.Is(err, ErrStaleSignature):
		return "stale"
	case errors.Is(err, ErrReplayedSignature):
		return "replayed"
	default:
		return "internal"
	}
}
