// Package config loads the signing daemon configuration from YAML or TOML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"eragonauth/crypto"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Signerd captures the runtime configuration for the signing daemon.
type Signerd struct {
	ListenAddress string          `yaml:"listen" toml:"listen"`
	Environment   string          `yaml:"environment" toml:"environment"`
	Contract      string          `yaml:"contract" toml:"contract"`
	Signer        SignerConfig    `yaml:"signer" toml:"signer"`
	Verifier      VerifierConfig  `yaml:"verifier" toml:"verifier"`
	Auth          AuthConfig      `yaml:"auth" toml:"auth"`
	RateLimit     RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
	Log           LogConfig       `yaml:"log" toml:"log"`
	Telemetry     TelemetryConfig `yaml:"telemetry" toml:"telemetry"`
}

// SignerConfig names where the server key comes from. Exactly one source is
// used, in the order key, key_env, key_file, aptos_config, keystore.
type SignerConfig struct {
	Scheme        string `yaml:"scheme" toml:"scheme"`
	Key           string `yaml:"key" toml:"key"`
	KeyEnv        string `yaml:"key_env" toml:"key_env"`
	KeyFile       string `yaml:"key_file" toml:"key_file"`
	Keystore      string `yaml:"keystore" toml:"keystore"`
	PassphraseEnv string `yaml:"passphrase_env" toml:"passphrase_env"`
	AptosConfig   string `yaml:"aptos_config" toml:"aptos_config"`
	AptosProfile  string `yaml:"aptos_profile" toml:"aptos_profile"`

	passphrase string
}

// VerifierConfig controls the reference verifier behind the recover endpoint
// and the simulated ledger.
type VerifierConfig struct {
	TrustedPublicKey string   `yaml:"trusted_public_key" toml:"trusted_public_key"`
	Window           Duration `yaml:"window" toml:"window"`
	FutureSkew       Duration `yaml:"future_skew" toml:"future_skew"`
	// Store is a LevelDB directory for consumed signatures. Empty keeps them
	// in memory.
	Store string `yaml:"store" toml:"store"`
}

// AuthConfig configures bearer JWT validation on the signing routes. Auth must
// be enabled unless AllowAnonymous is set explicitly.
type AuthConfig struct {
	Enabled        bool   `yaml:"enabled" toml:"enabled"`
	AllowAnonymous bool   `yaml:"allow_anonymous" toml:"allow_anonymous"`
	HMACSecret     string `yaml:"hmac_secret" toml:"hmac_secret"`
	HMACSecretEnv  string `yaml:"hmac_secret_env" toml:"hmac_secret_env"`
	Issuer         string `yaml:"issuer" toml:"issuer"`
	Audience       string `yaml:"audience" toml:"audience"`
	Scope          string `yaml:"scope" toml:"scope"`
}

// RateLimitConfig bounds requests per client.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" toml:"requests_per_minute"`
	Burst             int `yaml:"burst" toml:"burst"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level      string `yaml:"level" toml:"level"`
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
}

// TelemetryConfig configures OTLP export. An empty endpoint disables it.
type TelemetryConfig struct {
	Endpoint    string  `yaml:"endpoint" toml:"endpoint"`
	Insecure    bool    `yaml:"insecure" toml:"insecure"`
	Headers     string  `yaml:"headers" toml:"headers"`
	SampleRatio float64 `yaml:"sample_ratio" toml:"sample_ratio"`
}

// Load reads configuration from path. Files ending in .toml are decoded as
// TOML, everything else as YAML. Unknown keys are rejected.
func Load(path string) (Signerd, error) {
	cfg := Signerd{}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		meta, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return cfg, fmt.Errorf("%w: unknown key %s", ErrInvalidConfig, undecoded[0])
		}
	} else {
		file, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		dec := yaml.NewDecoder(file)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
	}
	if err := cfg.Prepare(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Prepare applies defaults, resolves indirect secrets and validates. Load
// calls it; callers building a Signerd in code should too.
func (c *Signerd) Prepare() error {
	applyDefaults(c)
	if err := c.Signer.Resolve(); err != nil {
		return fmt.Errorf("%w: signer: %v", ErrInvalidConfig, err)
	}
	if err := c.Auth.normalise(); err != nil {
		return fmt.Errorf("%w: auth: %v", ErrInvalidConfig, err)
	}
	return validateConfig(*c)
}

func applyDefaults(cfg *Signerd) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7090"
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.Verifier.Window.Duration == 0 {
		cfg.Verifier.Window.Duration = time.Hour
	}
	if cfg.Verifier.FutureSkew.Duration == 0 {
		cfg.Verifier.FutureSkew.Duration = 30 * time.Second
	}
	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit.RequestsPerMinute = 120
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 20
	}
	if cfg.Auth.Scope == "" {
		cfg.Auth.Scope = "signer:sign"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 100
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 5
	}
	if cfg.Telemetry.SampleRatio == 0 {
		cfg.Telemetry.SampleRatio = 1
	}
}

func validateConfig(cfg Signerd) error {
	if _, err := crypto.ParseAccountAddressRelaxed(cfg.Contract); err != nil {
		return fmt.Errorf("%w: contract: %v", ErrInvalidConfig, err)
	}
	if _, err := crypto.ParseScheme(cfg.Signer.Scheme); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.Verifier.Window.Duration < 0 {
		return fmt.Errorf("%w: verifier.window must be positive", ErrInvalidConfig)
	}
	if cfg.Verifier.FutureSkew.Duration < 0 {
		return fmt.Errorf("%w: verifier.future_skew must not be negative", ErrInvalidConfig)
	}
	if key := strings.TrimSpace(cfg.Verifier.TrustedPublicKey); key != "" {
		if _, err := crypto.ParsePublicKeyHex(key); err != nil {
			return fmt.Errorf("%w: verifier.trusted_public_key: %v", ErrInvalidConfig, err)
		}
	}
	if cfg.RateLimit.RequestsPerMinute < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("%w: rate_limit values must not be negative", ErrInvalidConfig)
	}
	if !cfg.Auth.Enabled && !cfg.Auth.AllowAnonymous {
		return fmt.Errorf("%w: enable auth or set auth.allow_anonymous for unauthenticated signing", ErrInvalidConfig)
	}
	if cfg.Auth.Enabled && cfg.Auth.HMACSecret == "" {
		return fmt.Errorf("%w: auth.hmac_secret must be configured when auth is enabled", ErrInvalidConfig)
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("%w: telemetry.sample_ratio must be within [0,1]", ErrInvalidConfig)
	}
	return nil
}

// Resolve trims the key sources and loads indirect material (env, file, Aptos
// profile) into Key. Keystores are left for PrivateKey.
func (s *SignerConfig) Resolve() error {
	s.Key = strings.TrimSpace(s.Key)
	s.KeyEnv = strings.TrimSpace(s.KeyEnv)
	s.KeyFile = strings.TrimSpace(s.KeyFile)
	s.Keystore = strings.TrimSpace(s.Keystore)
	s.AptosConfig = strings.TrimSpace(s.AptosConfig)
	s.AptosProfile = strings.TrimSpace(s.AptosProfile)
	if env := strings.TrimSpace(s.PassphraseEnv); env != "" {
		s.passphrase = os.Getenv(env)
	}
	if s.Key != "" {
		return nil
	}
	switch {
	case s.KeyEnv != "":
		value := strings.TrimSpace(os.Getenv(s.KeyEnv))
		if value == "" {
			return fmt.Errorf("key_env %s is empty", s.KeyEnv)
		}
		s.Key = value
	case s.KeyFile != "":
		contents, err := os.ReadFile(s.KeyFile)
		if err != nil {
			return fmt.Errorf("read key_file: %w", err)
		}
		s.Key = strings.TrimSpace(string(contents))
	case s.AptosConfig != "":
		profile, err := LoadAptosProfile(s.AptosConfig, s.AptosProfile)
		if err != nil {
			return err
		}
		if strings.TrimSpace(profile.PrivateKey) == "" {
			return fmt.Errorf("aptos profile has no private_key")
		}
		s.Key = strings.TrimSpace(profile.PrivateKey)
	case s.Keystore != "":
	default:
		return fmt.Errorf("one of key, key_env, key_file, aptos_config or keystore is required")
	}
	return nil
}

// NeedsPassphrase reports whether loading the key requires a keystore
// passphrase that was not supplied through passphrase_env.
func (s SignerConfig) NeedsPassphrase() bool {
	return s.Key == "" && s.Keystore != "" && s.passphrase == ""
}

// PrivateKey resolves the configured key material. prompt is consulted only
// for keystores without a passphrase_env and may be nil otherwise.
func (s SignerConfig) PrivateKey(prompt func() (string, error)) (*crypto.PrivateKey, error) {
	if s.Key != "" {
		return crypto.ParsePrivateKeyHex(s.Key)
	}
	if s.Keystore == "" {
		return nil, fmt.Errorf("%w: no key source configured", crypto.ErrInvalidKeyMaterial)
	}
	pass := s.passphrase
	if pass == "" && prompt != nil {
		var err error
		if pass, err = prompt(); err != nil {
			return nil, fmt.Errorf("read keystore passphrase: %w", err)
		}
	}
	return crypto.LoadFromKeystore(s.Keystore, pass)
}

func (a *AuthConfig) normalise() error {
	a.HMACSecret = strings.TrimSpace(a.HMACSecret)
	if env := strings.TrimSpace(a.HMACSecretEnv); env != "" && a.HMACSecret == "" {
		value := strings.TrimSpace(os.Getenv(env))
		if value == "" && a.Enabled {
			return fmt.Errorf("hmac_secret_env %s is empty", env)
		}
		a.HMACSecret = value
	}
	a.Issuer = strings.TrimSpace(a.Issuer)
	a.Audience = strings.TrimSpace(a.Audience)
	a.Scope = strings.TrimSpace(a.Scope)
	return nil
}

// ContractAddress returns the parsed module address.
func (c Signerd) ContractAddress() crypto.AccountAddress {
	addr, _ := crypto.ParseAccountAddressRelaxed(c.Contract)
	return addr
}
