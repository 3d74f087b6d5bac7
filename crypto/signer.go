package crypto

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

const (
	DigestLength    = 32
	SignatureLength = 64
	// MaxRecoveryID is the largest recovery identifier a verifier accepts.
	MaxRecoveryID = 3
)

// SignaturePayload is a compact r||s signature plus the recovery identifier
// that lets a verifier rebuild the signer's public key from the digest.
type SignaturePayload struct {
	Signature  [SignatureLength]byte
	RecoveryID uint8
}

// SignatureHex renders r||s as lowercase hex without 0x.
func (p SignaturePayload) SignatureHex() string {
	return hex.EncodeToString(p.Signature[:])
}

// Bytes65 returns r||s||v with v equal to the recovery identifier.
func (p SignaturePayload) Bytes65() []byte {
	out := make([]byte, SignatureLength+1)
	copy(out, p.Signature[:])
	out[SignatureLength] = p.RecoveryID
	return out
}

// ParseSignature decodes a 64-byte hex signature and a recovery identifier.
func ParseSignature(sigHex string, recoveryID int) (SignaturePayload, error) {
	var payload SignaturePayload
	if recoveryID < 0 || recoveryID > MaxRecoveryID {
		return payload, fmt.Errorf("%w: recovery id %d", ErrInvalidSignature, recoveryID)
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(sigHex), "0x"))
	if err != nil {
		return payload, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(raw) != SignatureLength {
		return payload, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidSignature, SignatureLength, len(raw))
	}
	copy(payload.Signature[:], raw)
	payload.RecoveryID = uint8(recoveryID)
	return payload, nil
}

// DigestSigner produces recoverable signatures over 32-byte digests.
type DigestSigner interface {
	SignDigest(digest []byte) (SignaturePayload, error)
	PubKey() *PublicKey
}

// NewSigner checks that key material is usable for scheme and returns it as a
// DigestSigner.
func NewSigner(scheme Scheme, key *PrivateKey) (DigestSigner, error) {
	if _, err := ParseScheme(string(scheme)); err != nil {
		return nil, err
	}
	if key == nil || key.PrivateKey == nil || key.D == nil || key.D.Sign() == 0 {
		return nil, fmt.Errorf("%w: missing private key", ErrInvalidKeyMaterial)
	}
	if key.PrivateKey.Curve != crypto.S256() {
		return nil, fmt.Errorf("%w: key is not on secp256k1", ErrInvalidKeyMaterial)
	}
	return key, nil
}

// SignDigest signs a 32-byte digest. Nonces are derived per RFC 6979 and s is
// normalised to the lower half of the curve order.
func (k *PrivateKey) SignDigest(digest []byte) (SignaturePayload, error) {
	var payload SignaturePayload
	if len(digest) != DigestLength {
		return payload, fmt.Errorf("%w: got %d", ErrInvalidDigestLength, len(digest))
	}
	if k == nil || k.PrivateKey == nil {
		return payload, fmt.Errorf("%w: missing private key", ErrInvalidKeyMaterial)
	}
	sig, err := crypto.Sign(digest, k.PrivateKey)
	if err != nil {
		return payload, fmt.Errorf("%w: %v", ErrInvalidKeyMaterial, err)
	}
	copy(payload.Signature[:], sig[:SignatureLength])
	payload.RecoveryID = sig[SignatureLength]
	return payload, nil
}

// RecoverPublicKey rebuilds the signer's public key from digest and payload.
func RecoverPublicKey(digest []byte, payload SignaturePayload) (*PublicKey, error) {
	if len(digest) != DigestLength {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDigestLength, len(digest))
	}
	if payload.RecoveryID > MaxRecoveryID {
		return nil, fmt.Errorf("%w: recovery id %d", ErrInvalidSignature, payload.RecoveryID)
	}
	pub, err := crypto.SigToPub(digest, payload.Bytes65())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return &PublicKey{pub}, nil
}
