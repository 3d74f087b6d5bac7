package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"eragonauth/authorizer"
	"eragonauth/crypto"
	"eragonauth/message"
	"eragonauth/observability"
	"eragonauth/verifier"
)

// Request is an action to sign and submit. The caller and timestamp fields
// are filled in by the dispatcher on every attempt.
type Request struct {
	Kind   message.Kind
	Fields message.Fields
	Extras Extras
}

// Result summarises a dispatch.
type Result struct {
	Action   *authorizer.SignedAction
	Call     Call
	Receipt  Receipt
	Attempts int
}

// Dispatcher signs actions and hands them to a Submitter, retrying transient
// transport failures.
type Dispatcher struct {
	Authorizer *authorizer.Authorizer
	Submitter  Submitter
	Contract   crypto.AccountAddress
	// MaxAttempts bounds submissions per dispatch. Zero means three.
	MaxAttempts int
	// StaleAfter forces a fresh signature when the previous one is older.
	// It should sit comfortably inside the verifier window.
	StaleAfter time.Duration
	Backoff    func() backoff.BackOff
	Logger     *slog.Logger
	Metrics    *observability.SignerMetrics
}

var tracer = otel.Tracer("eragonauth/ledger")

// Dispatch signs req for sender and submits it. Signer mismatches, replays
// and malformed requests fail immediately; stale rejections trigger a
// re-sign with a new timestamp.
func (d *Dispatcher) Dispatch(ctx context.Context, sender crypto.AccountAddress, req Request) (*Result, error) {
	if d.Authorizer == nil || d.Submitter == nil {
		return nil, errors.New("ledger: dispatcher not configured")
	}
	ctx, span := tracer.Start(ctx, "ledger.Dispatch", trace.WithAttributes(
		attribute.String("eragon.kind", req.Kind.String()),
		attribute.String("eragon.sender", sender.String()),
	))
	defer span.End()

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attempts := d.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	var policy backoff.BackOff
	if d.Backoff != nil {
		policy = d.Backoff()
	} else {
		policy = backoff.NewExponentialBackOff()
	}
	policy = backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts-1)), ctx)

	result := &Result{}
	resign := true
	op := func() error {
		if result.Action != nil && d.StaleAfter > 0 && result.Action.Age(d.Authorizer.Now()) > d.StaleAfter {
			resign = true
		}
		if resign {
			action, err := d.sign(sender, req)
			if err != nil {
				return backoff.Permanent(err)
			}
			call, err := BuildCall(d.Contract, action, req.Extras)
			if err != nil {
				return backoff.Permanent(err)
			}
			result.Action, result.Call = action, call
			resign = false
		}
		result.Attempts++
		span.AddEvent("submit", trace.WithAttributes(
			attribute.Int("eragon.attempt", result.Attempts),
			attribute.String("eragon.digest", result.Action.DigestHex()),
		))
		receipt, err := d.Submitter.SubmitCall(ctx, sender, result.Call)
		result.Receipt = receipt
		switch {
		case err == nil:
			d.Metrics.ObserveDispatch(req.Kind.String(), "success")
			return nil
		case errors.Is(err, verifier.ErrStaleSignature):
			d.Metrics.ObserveDispatch(req.Kind.String(), "stale")
			resign = true
		case errors.Is(err, verifier.ErrSignerMismatch), errors.Is(err, verifier.ErrReplayedSignature):
			d.Metrics.ObserveDispatch(req.Kind.String(), "rejected")
			return backoff.Permanent(err)
		default:
			d.Metrics.ObserveDispatch(req.Kind.String(), "retry")
		}
		logger.Warn("submission failed",
			"kind", req.Kind.String(),
			"attempt", result.Attempts,
			"error", err,
		)
		return err
	}

	if err := backoff.Retry(op, policy); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, fmt.Errorf("ledger: dispatch %s: %w", req.Kind, err)
	}
	span.SetAttributes(attribute.String("eragon.tx_hash", result.Receipt.Hash))
	logger.Info("authorisation dispatched",
		"kind", req.Kind.String(),
		"id", result.Action.ID.String(),
		"attempts", result.Attempts,
	)
	return result, nil
}

func (d *Dispatcher) sign(sender crypto.AccountAddress, req Request) (*authorizer.SignedAction, error) {
	layout, err := LayoutFor(req.Kind)
	if err != nil {
		return nil, err
	}
	fields := make(message.Fields, len(req.Fields)+2)
	for name, v := range req.Fields {
		fields[name] = v
	}
	if err := layout.ApplyImplied(fields); err != nil {
		return nil, err
	}
	fields[message.CallerField(req.Kind)] = message.Bytes(sender[:])
	fields[message.FieldTimestamp] = message.Int64(d.Authorizer.Now().Unix())
	return d.Authorizer.Authorize(req.Kind, fields)
}
