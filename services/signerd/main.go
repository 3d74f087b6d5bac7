// Package signerd runs the HTTP signing daemon that issues authorisations to
// game backends.
package signerd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"eragonauth/authorizer"
	"eragonauth/config"
	"eragonauth/crypto"
	"eragonauth/observability"
	"eragonauth/observability/logging"
	telemetry "eragonauth/observability/otel"
	"eragonauth/storage"
	"eragonauth/verifier"
)

// Main initialises and runs the signing daemon. prompt supplies a keystore
// passphrase when the configuration does not name one.
func Main(prompt func() (string, error)) error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "signerd.yaml", "path to signerd configuration (.yaml or .toml)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if env := strings.TrimSpace(os.Getenv("ERAGON_ENV")); env != "" {
		cfg.Environment = env
	}
	logger := logging.SetupWithOptions("signerd", cfg.Environment, logging.Options{
		Level:      logging.ParseLevel(cfg.Log.Level),
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})

	if !cfg.Auth.Enabled {
		logger.Warn("auth disabled; signing routes accept anonymous requests")
	}

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "signerd",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     true,
		Traces:      true,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	key, err := cfg.Signer.PrivateKey(prompt)
	if err != nil {
		return fmt.Errorf("load signer key: %w", err)
	}
	scheme, err := crypto.ParseScheme(cfg.Signer.Scheme)
	if err != nil {
		return err
	}
	signer, err := crypto.NewSigner(scheme, key)
	if err != nil {
		return fmt.Errorf("load signer key: %w", err)
	}

	metrics := observability.Signer()
	auth, err := authorizer.New(signer,
		authorizer.WithLogger(logger.With("component", "authorizer")),
		authorizer.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}

	trusted := signer.PubKey()
	if raw := strings.TrimSpace(cfg.Verifier.TrustedPublicKey); raw != "" {
		if trusted, err = crypto.ParsePublicKeyHex(raw); err != nil {
			return fmt.Errorf("trusted public key: %w", err)
		}
		if !trusted.Equal(signer.PubKey()) {
			logger.Warn("trusted public key differs from signer key; issued payloads will not verify locally",
				"public_key", signer.PubKey().Hex())
		}
	}
	store, err := storage.Open(cfg.Verifier.Store)
	if err != nil {
		return fmt.Errorf("open consumed store: %w", err)
	}
	defer store.Close()
	ver, err := verifier.New(verifier.Config{
		TrustedKey: trusted,
		Window:     cfg.Verifier.Window.Duration,
		FutureSkew: cfg.Verifier.FutureSkew.Duration,
		Logger:     logger.With("component", "verifier"),
		Metrics:    metrics,
	}, store)
	if err != nil {
		return err
	}

	server, err := NewServer(ServerConfig{
		Authorizer:    auth,
		Verifier:      ver,
		Contract:      cfg.ContractAddress(),
		Authenticator: NewAuthenticator(cfg.Auth, logger.With("component", "auth")),
		RateLimiter:   NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst),
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           otelhttp.NewHandler(server.Handler(), "signerd"),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		logger.Info("signerd listening",
			"addr", cfg.ListenAddress,
			"public_key", signer.PubKey().Hex(),
			"window", cfg.Verifier.Window.String(),
		)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

