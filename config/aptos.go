package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultAptosProfile is the CLI profile holding the server signing key.
const DefaultAptosProfile = "server"

// AptosProfile is one entry of an Aptos CLI config.yaml.
type AptosProfile struct {
	Network    string `yaml:"network"`
	PrivateKey string `yaml:"private_key"`
	PublicKey  string `yaml:"public_key"`
	Account    string `yaml:"account"`
	RestURL    string `yaml:"rest_url"`
	FaucetURL  string `yaml:"faucet_url"`
}

type aptosConfigFile struct {
	Profiles map[string]AptosProfile `yaml:"profiles"`
}

// DefaultAptosConfigPath is where the Aptos CLI keeps its workspace config.
func DefaultAptosConfigPath() string {
	return filepath.Join(".aptos", "config.yaml")
}

// LoadAptosProfiles reads every profile from an Aptos CLI config file.
func LoadAptosProfiles(path string) (map[string]AptosProfile, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read aptos config: %w", err)
	}
	var file aptosConfigFile
	if err := yaml.Unmarshal(contents, &file); err != nil {
		return nil, fmt.Errorf("decode aptos config: %w", err)
	}
	if len(file.Profiles) == 0 {
		return nil, fmt.Errorf("aptos config %s has no profiles", path)
	}
	return file.Profiles, nil
}

// LoadAptosProfile returns a single named profile.
func LoadAptosProfile(path, name string) (AptosProfile, error) {
	profiles, err := LoadAptosProfiles(path)
	if err != nil {
		return AptosProfile{}, err
	}
	if name == "" {
		name = DefaultAptosProfile
	}
	profile, ok := profiles[name]
	if !ok {
		return AptosProfile{}, fmt.Errorf("aptos profile %q not found in %s", name, path)
	}
	return profile, nil
}
