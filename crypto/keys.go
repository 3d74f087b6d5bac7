package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// Scheme names the curve and signature algorithm used for server keys.
type Scheme string

const SchemeSecp256k1 Scheme = "secp256k1"

var (
	ErrInvalidKeyMaterial  = errors.New("crypto: invalid key material")
	ErrUnsupportedScheme   = errors.New("crypto: unsupported signature scheme")
	ErrInvalidDigestLength = errors.New("crypto: digest must be 32 bytes")
	ErrInvalidSignature    = errors.New("crypto: invalid signature")
)

// ParseScheme validates a configured scheme name. An empty name selects
// secp256k1.
func ParseScheme(name string) (Scheme, error) {
	switch Scheme(strings.ToLower(strings.TrimSpace(name))) {
	case "", SchemeSecp256k1:
		return SchemeSecp256k1, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, name)
	}
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the 32-byte scalar. Callers must not log it.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// String never reveals the scalar so that keys passed to fmt or a logger by
// mistake stay secret.
func (k *PrivateKey) String() string {
	return "secp256k1-priv-[REDACTED]"
}

// LogValue implements slog.LogValuer.
func (k *PrivateKey) LogValue() slog.Value {
	return slog.StringValue(k.String())
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyMaterial, err)
	}
	return &PrivateKey{key}, nil
}

// keyPrefixes are the AIP-80 tags the Aptos CLI writes in front of private
// keys. The server key historically lives in an Aptos profile, so the raw
// 32 bytes are reused as a secp256k1 scalar whatever the tag says.
var keyPrefixes = []string{"ed25519-priv-", "secp256k1-priv-"}

// ParsePrivateKeyHex decodes a hex private key, accepting an optional 0x and
// AIP-80 prefix.
func ParsePrivateKeyHex(s string) (*PrivateKey, error) {
	material := strings.TrimSpace(s)
	for _, prefix := range keyPrefixes {
		material = strings.TrimPrefix(material, prefix)
	}
	material = strings.TrimPrefix(material, "0x")
	if material == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidKeyMaterial)
	}
	decoded, err := hex.DecodeString(material)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyMaterial, err)
	}
	return PrivateKeyFromBytes(decoded)
}

// Bytes returns the 65-byte uncompressed public key.
func (k *PublicKey) Bytes() []byte {
	return crypto.FromECDSAPub(k.PublicKey)
}

// Compressed returns the 33-byte compressed public key.
func (k *PublicKey) Compressed() []byte {
	return crypto.CompressPubkey(k.PublicKey)
}

// Hex renders the uncompressed key as lowercase hex without 0x.
func (k *PublicKey) Hex() string {
	return hex.EncodeToString(k.Bytes())
}

// Equal reports whether both keys are the same curve point.
func (k *PublicKey) Equal(o *PublicKey) bool {
	if k == nil || o == nil || k.PublicKey == nil || o.PublicKey == nil {
		return false
	}
	return k.PublicKey.Equal(o.PublicKey)
}

// ParsePublicKeyHex accepts compressed (33 bytes), uncompressed (65 bytes) or
// bare X||Y (64 bytes) encodings.
func ParsePublicKeyHex(s string) (*PublicKey, error) {
	decoded, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyMaterial, err)
	}
	var pub *ecdsa.PublicKey
	switch len(decoded) {
	case 33:
		pub, err = crypto.DecompressPubkey(decoded)
	case 64:
		pub, err = crypto.UnmarshalPubkey(append([]byte{0x04}, decoded...))
	case 65:
		pub, err = crypto.UnmarshalPubkey(decoded)
	default:
		return nil, fmt.Errorf("%w: public key length %d", ErrInvalidKeyMaterial, len(decoded))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyMaterial, err)
	}
	return &PublicKey{pub}, nil
}
