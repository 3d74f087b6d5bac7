package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"eragonauth/cmd/internal/passphrase"
	"eragonauth/config"
	"eragonauth/crypto"
)

const keyEnv = "ERAGON_SIGNER_KEY"

var passphrasePrompt = func(confirm bool) func() (string, error) {
	if confirm {
		return passphrase.NewConfirmingSource(passphrase.DefaultEnv).Get
	}
	return passphrase.NewSource(passphrase.DefaultEnv).Get
}

type keyFlags struct {
	keyFile     string
	keystore    string
	aptosConfig string
	profile     string
}

func (k *keyFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&k.keyFile, "key-file", "", "file holding the hex private key")
	fs.StringVar(&k.keystore, "keystore", "", "encrypted v3 keystore holding the key")
	fs.StringVar(&k.aptosConfig, "aptos-config", "", "Aptos CLI config.yaml holding the key")
	fs.StringVar(&k.profile, "profile", config.DefaultAptosProfile, "profile name inside --aptos-config")
}

func (k *keyFlags) load() (*crypto.PrivateKey, error) {
	src := config.SignerConfig{
		KeyFile:      k.keyFile,
		Keystore:     k.keystore,
		AptosConfig:  k.aptosConfig,
		AptosProfile: k.profile,
	}
	if k.keyFile == "" && k.keystore == "" && k.aptosConfig == "" {
		if strings.TrimSpace(os.Getenv(keyEnv)) == "" {
			return nil, fmt.Errorf("no key source: pass a key flag or set %s", keyEnv)
		}
		src.KeyEnv = keyEnv
	}
	if err := src.Resolve(); err != nil {
		return nil, err
	}
	return src.PrivateKey(passphrasePrompt(false))
}

func runGenerateKey(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("generate-key", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var keystorePath string
	fs.StringVar(&keystorePath, "keystore", "", "write the key to this keystore instead of printing it")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if keystorePath != "" {
		pass, err := passphrasePrompt(true)()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		if err := crypto.SaveToKeystore(keystorePath, key, pass); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "keystore:   %s\n", keystorePath)
	} else {
		fmt.Fprintf(stdout, "private key: %x\n", key.Bytes())
	}
	fmt.Fprintf(stdout, "public key: %s\n", key.PubKey().Hex())
	return 0
}

func runInitConfig(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("init-config", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var path, contract string
	fs.StringVar(&path, "config", "signerd.yaml", "config file to create (.yaml or .toml)")
	fs.StringVar(&contract, "contract", "", "address the eragon modules are published under")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(contract) == "" {
		fmt.Fprintln(stderr, "Error: --contract is required")
		return 1
	}
	pass, err := passphrasePrompt(true)()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	cfg, key, err := config.CreateDefault(path, contract, pass)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "config:     %s\n", path)
	fmt.Fprintf(stdout, "keystore:   %s\n", cfg.Signer.Keystore)
	fmt.Fprintf(stdout, "public key: %s\n", key.PubKey().Hex())
	return 0
}

func runPubkey(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pubkey", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var keys keyFlags
	keys.register(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	key, err := keys.load()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	pub := key.PubKey()
	fmt.Fprintf(stdout, "uncompressed: %s\n", pub.Hex())
	fmt.Fprintf(stdout, "compressed:   %x\n", pub.Compressed())
	return 0
}
