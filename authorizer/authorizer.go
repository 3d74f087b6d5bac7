// Package authorizer turns player actions into signed, single-use
// authorisations the on-chain verifier accepts.
package authorizer

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"eragonauth/crypto"
	"eragonauth/message"
	"eragonauth/observability"
)

// SignedAction is the result handed to the transport layer. It is built once
// per call and never mutated.
type SignedAction struct {
	ID        uuid.UUID
	Message   *message.CanonicalMessage
	Canonical []byte
	Digest    [message.DigestLength]byte
	Payload   crypto.SignaturePayload
	IssuedAt  time.Time
}

// Kind is a shortcut for the message kind.
func (a *SignedAction) Kind() message.Kind { return a.Message.Kind() }

// CanonicalHex renders the signed bytes as lowercase hex without 0x.
func (a *SignedAction) CanonicalHex() string { return hex.EncodeToString(a.Canonical) }

// DigestHex renders the digest as lowercase hex without 0x.
func (a *SignedAction) DigestHex() string { return hex.EncodeToString(a.Digest[:]) }

// Age is how long ago the embedded timestamp was minted.
func (a *SignedAction) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(int64(a.Message.Timestamp()), 0))
}

// Option customises an Authorizer.
type Option func(*Authorizer)

// WithClock overrides the time source used to stamp typed actions.
func WithClock(now func() time.Time) Option {
	return func(a *Authorizer) {
		if now != nil {
			a.now = now
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Authorizer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMetrics records signing outcomes.
func WithMetrics(m *observability.SignerMetrics) Option {
	return func(a *Authorizer) { a.metrics = m }
}

// Authorizer signs canonical messages with the server key. It holds only
// read-only state and is safe for concurrent use.
type Authorizer struct {
	signer  crypto.DigestSigner
	now     func() time.Time
	logger  *slog.Logger
	metrics *observability.SignerMetrics
}

// New wraps signer. A nil signer is a configuration error.
func New(signer crypto.DigestSigner, opts ...Option) (*Authorizer, error) {
	if signer == nil {
		return nil, fmt.Errorf("authorizer: %w: signer not configured", crypto.ErrInvalidKeyMaterial)
	}
	a := &Authorizer{signer: signer, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// PublicKey returns the key the verifier must trust.
func (a *Authorizer) PublicKey() *crypto.PublicKey { return a.signer.PubKey() }

// Now returns the authorizer's clock reading.
func (a *Authorizer) Now() time.Time { return a.now() }

// Authorize builds, encodes, hashes and signs a message. Any failure aborts
// the action and no payload is returned.
func (a *Authorizer) Authorize(kind message.Kind, fields message.Fields) (*SignedAction, error) {
	start := time.Now()
	action, err := a.authorize(kind, fields)
	a.metrics.ObserveSignature(kind.String(), err, time.Since(start))
	if err != nil {
		a.logger.Warn("authorisation rejected", "kind", kind.String(), "error", err)
		return nil, err
	}
	a.logger.Info("authorisation signed",
		"kind", kind.String(),
		"id", action.ID.String(),
		"digest", action.DigestHex(),
		"recovery_id", action.Payload.RecoveryID,
	)
	return action, nil
}

func (a *Authorizer) authorize(kind message.Kind, fields message.Fields) (*SignedAction, error) {
	msg, err := message.Build(kind, fields)
	if err != nil {
		return nil, err
	}
	return a.Sign(msg)
}

// Sign encodes, hashes and signs an already built message.
func (a *Authorizer) Sign(msg *message.CanonicalMessage) (*SignedAction, error) {
	canonical, err := msg.Encode()
	if err != nil {
		return nil, fmt.Errorf("authorizer: encode %s: %w", msg.Kind(), err)
	}
	digest := message.Digest(canonical)
	payload, err := a.signer.SignDigest(digest[:])
	if err != nil {
		return nil, fmt.Errorf("authorizer: sign %s: %w", msg.Kind(), err)
	}
	return &SignedAction{
		ID:        uuid.New(),
		Message:   msg,
		Canonical: canonical,
		Digest:    digest,
		Payload:   payload,
		IssuedAt:  a.now(),
	}, nil
}
