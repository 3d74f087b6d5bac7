package crypto

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

var errNoKeystorePath = errors.New("crypto: empty keystore path")

// SaveToKeystore seals the authorization signer key with passphrase and
// writes it to path as a scrypt-protected v3 keystore document. The file is
// replaced atomically and left readable by the owner only.
func SaveToKeystore(path string, key *PrivateKey, passphrase string) error {
	return saveToKeystore(path, key, passphrase, keystore.StandardScryptN, keystore.StandardScryptP)
}

func saveToKeystore(path string, key *PrivateKey, passphrase string, scryptN, scryptP int) error {
	if key == nil || key.PrivateKey == nil {
		return fmt.Errorf("%w: nil signer key", ErrInvalidKeyMaterial)
	}
	if path == "" {
		return errNoKeystorePath
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return err
	}
	sealed, err := keystore.EncryptKey(&keystore.Key{
		Id:         id,
		Address:    ethcrypto.PubkeyToAddress(key.PrivateKey.PublicKey),
		PrivateKey: key.PrivateKey,
	}, passphrase, scryptN, scryptP)
	if err != nil {
		return fmt.Errorf("crypto: seal signer key: %w", err)
	}
	return writePrivateFile(path, sealed)
}

// writePrivateFile stages data next to path and renames it into place so a
// crash never leaves a truncated keystore behind.
func writePrivateFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".signer-keystore-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadFromKeystore unseals the authorization signer key. signerd refuses to
// start on anything other than a clean decrypt, so a bad passphrase and a
// corrupt document both surface as ErrInvalidKeyMaterial.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, errNoKeystorePath
	}
	sealed, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	unsealed, err := keystore.DecryptKey(sealed, passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyMaterial, err)
	}
	return &PrivateKey{PrivateKey: unsealed.PrivateKey}, nil
}
