package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"eragonauth/crypto"
)

// CreateDefault generates a fresh server key, stores it in a keystore next to
// path and writes a configuration that points at it. JWT auth is enabled with
// a random HMAC secret. Existing files are never overwritten.
func CreateDefault(path, contract, passphrase string) (Signerd, *crypto.PrivateKey, error) {
	if _, err := os.Stat(path); err == nil {
		return Signerd{}, nil, fmt.Errorf("config %s already exists", path)
	}
	keystorePath := defaultKeystorePath(path)
	if _, err := os.Stat(keystorePath); err == nil {
		return Signerd{}, nil, fmt.Errorf("keystore %s already exists", keystorePath)
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return Signerd{}, nil, err
	}
	if err := crypto.SaveToKeystore(keystorePath, key, passphrase); err != nil {
		return Signerd{}, nil, err
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return Signerd{}, nil, err
	}
	cfg := Signerd{
		Contract: contract,
		Auth:     AuthConfig{Enabled: true, HMACSecret: hex.EncodeToString(secret)},
		Signer: SignerConfig{
			Scheme:        string(crypto.SchemeSecp256k1),
			Keystore:      keystorePath,
			PassphraseEnv: "ERAGON_KEYSTORE_PASSPHRASE",
		},
		Verifier: VerifierConfig{TrustedPublicKey: key.PubKey().Hex()},
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Signerd{}, nil, err
	}
	if err := Save(path, cfg); err != nil {
		return Signerd{}, nil, err
	}
	return cfg, key, nil
}

// Save writes cfg to path in the format implied by its extension.
func Save(path string, cfg Signerd) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return toml.NewEncoder(f).Encode(cfg)
	}
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}

func defaultKeystorePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "signer.keystore")
}
