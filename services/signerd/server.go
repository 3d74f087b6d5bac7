package signerd

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eragonauth/authorizer"
	"eragonauth/crypto"
	"eragonauth/ledger"
	"eragonauth/message"
	"eragonauth/verifier"
)

const maxBodyBytes = 64 << 10

// Server exposes the authorizer and reference verifier over HTTP.
type Server struct {
	authorizer    *authorizer.Authorizer
	verifier      *verifier.Verifier
	contract      crypto.AccountAddress
	authenticator *Authenticator
	limiter       *RateLimiter
	gatherer      prometheus.Gatherer
	logger        *slog.Logger
}

// ServerConfig bundles the server's collaborators. Authenticator and
// RateLimiter are optional.
type ServerConfig struct {
	Authorizer    *authorizer.Authorizer
	Verifier      *verifier.Verifier
	Contract      crypto.AccountAddress
	Authenticator *Authenticator
	RateLimiter   *RateLimiter
	Gatherer      prometheus.Gatherer
	Logger        *slog.Logger
}

// NewServer validates cfg and returns a server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Authorizer == nil {
		return nil, errors.New("signerd: authorizer required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("signerd: verifier required")
	}
	s := &Server{
		authorizer:    cfg.Authorizer,
		verifier:      cfg.Verifier,
		contract:      cfg.Contract,
		authenticator: cfg.Authenticator,
		limiter:       cfg.RateLimiter,
		gatherer:      cfg.Gatherer,
		logger:        cfg.Logger,
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/schemas", s.handleSchemas)
		v1.Get("/public-key", s.handlePublicKey)
		v1.Route("/actions/{kind}", func(ar chi.Router) {
			if s.authenticator != nil {
				ar.Use(s.authenticator.Middleware)
			}
			ar.Use(s.limiter.Middleware)
			ar.Post("/sign", s.handleSign)
			ar.Post("/recover", s.handleRecover)
			ar.Post("/verify", s.handleVerify)
		})
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start).String(),
		)
	})
}

type schemaEntry struct {
	Kind         message.Kind        `json:"kind"`
	Discriminant string              `json:"discriminant"`
	Fields       []message.FieldSpec `json:"fields"`
	Call         ledger.Layout       `json:"call"`
}

func (s *Server) handleSchemas(w http.ResponseWriter, _ *http.Request) {
	entries := make([]schemaEntry, 0, len(message.Kinds()))
	for _, layout := range ledger.Layouts() {
		entries = append(entries, schemaEntry{
			Kind:         layout.Kind,
			Discriminant: layout.Kind.Discriminant(),
			Fields:       message.MustSchema(layout.Kind),
			Call:         layout,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"contract": s.contract.String(),
		"kinds":    entries,
	})
}

type publicKeyResponse struct {
	Scheme     crypto.Scheme `json:"scheme"`
	PublicKey  string        `json:"public_key"`
	Compressed string        `json:"compressed"`
}

func (s *Server) handlePublicKey(w http.ResponseWriter, _ *http.Request) {
	pub := s.authorizer.PublicKey()
	writeJSON(w, http.StatusOK, publicKeyResponse{
		Scheme:     crypto.SchemeSecp256k1,
		PublicKey:  pub.Hex(),
		Compressed: fmt.Sprintf("%x", pub.Compressed()),
	})
}

type signRequest struct {
	Fields map[string]json.RawMessage `json:"fields"`
	Extras map[string]json.RawMessage `json:"extras"`
}

type signResponse struct {
	ID         string          `json:"id"`
	Kind       message.Kind    `json:"kind"`
	Fields     message.Fields  `json:"fields"`
	Message    string          `json:"message"`
	Digest     string          `json:"digest"`
	Signature  string          `json:"signature"`
	RecoveryID uint8           `json:"recovery_id"`
	Timestamp  uint64          `json:"ts"`
	IssuedAt   time.Time       `json:"issued_at"`
	Call       json.RawMessage `json:"call"`
}

var errTimestampAssigned = errors.New("ts is assigned by the signer")

func (s *Server) handleSign(w http.ResponseWriter, r *http.Request) {
	kind, err := message.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	var req signRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, ok := req.Fields[message.FieldTimestamp]; ok {
		writeFailure(w, &message.FieldError{Field: message.FieldTimestamp, Err: errTimestampAssigned})
		return
	}
	fields, err := message.DecodeFieldsJSON(kind, req.Fields)
	if err != nil {
		writeFailure(w, err)
		return
	}
	layout, err := ledger.LayoutFor(kind)
	if err != nil {
		writeFailure(w, err)
		return
	}
	extras, err := layout.DecodeExtras(req.Extras)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if err := layout.ApplyImplied(fields); err != nil {
		writeFailure(w, err)
		return
	}
	fields[message.FieldTimestamp] = message.Int64(s.authorizer.Now().Unix())

	action, err := s.authorizer.Authorize(kind, fields)
	if err != nil {
		writeFailure(w, err)
		return
	}
	call, err := ledger.BuildCall(s.contract, action, extras)
	if err != nil {
		writeFailure(w, err)
		return
	}
	callJSON, err := json.Marshal(call)
	if err != nil {
		writeFailure(w, err)
		return
	}
	s.logger.Info("signed action issued",
		"kind", kind.String(),
		"id", action.ID.String(),
		"subject", subjectFrom(r.Context()),
	)
	writeJSON(w, http.StatusOK, signResponse{
		ID:         action.ID.String(),
		Kind:       kind,
		Fields:     action.Message.Fields(),
		Message:    action.CanonicalHex(),
		Digest:     action.DigestHex(),
		Signature:  action.Payload.SignatureHex(),
		RecoveryID: action.Payload.RecoveryID,
		Timestamp:  action.Message.Timestamp(),
		IssuedAt:   action.IssuedAt.UTC(),
		Call:       callJSON,
	})
}

type signatureRequest struct {
	Fields     map[string]json.RawMessage `json:"fields"`
	Signature  string                     `json:"signature"`
	RecoveryID int                        `json:"recovery_id"`
}

func (s *Server) decodeSigned(w http.ResponseWriter, r *http.Request) (*message.CanonicalMessage, crypto.SignaturePayload, bool) {
	var payload crypto.SignaturePayload
	kind, err := message.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeFailure(w, err)
		return nil, payload, false
	}
	var req signatureRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return nil, payload, false
	}
	fields, err := message.DecodeFieldsJSON(kind, req.Fields)
	if err != nil {
		writeFailure(w, err)
		return nil, payload, false
	}
	msg, err := message.Build(kind, fields)
	if err != nil {
		writeFailure(w, err)
		return nil, payload, false
	}
	payload, err = crypto.ParseSignature(req.Signature, req.RecoveryID)
	if err != nil {
		writeFailure(w, err)
		return nil, payload, false
	}
	return msg, payload, true
}

type recoverResponse struct {
	PublicKey string `json:"public_key"`
	Trusted   bool   `json:"trusted"`
	Digest    string `json:"digest"`
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	msg, payload, ok := s.decodeSigned(w, r)
	if !ok {
		return
	}
	pub, err := s.verifier.Recover(msg, payload)
	if err != nil {
		writeFailure(w, err)
		return
	}
	trusted, err := s.verifier.Trusted(msg, payload)
	if err != nil {
		writeFailure(w, err)
		return
	}
	digest, err := msg.Digest()
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recoverResponse{
		PublicKey: fmt.Sprintf("%x", pub.SerializeUncompressed()),
		Trusted:   trusted,
		Digest:    fmt.Sprintf("%x", digest),
	})
}

type verifyResponse struct {
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
}

// handleVerify runs the full acceptance check, consuming the authorisation in
// the daemon's own store. Game backends use it to pre-flight payloads.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	msg, payload, ok := s.decodeSigned(w, r)
	if !ok {
		return
	}
	outcome, err := s.verifier.Verify(msg, payload)
	if err != nil && outcome.State != verifier.Rejected {
		writeFailure(w, err)
		return
	}
	resp := verifyResponse{State: outcome.State.String()}
	status := http.StatusOK
	if outcome.Reason != nil {
		resp.Reason = outcome.Reason.Error()
		status = statusFor(outcome.Reason)
	}
	writeJSON(w, status, resp)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
