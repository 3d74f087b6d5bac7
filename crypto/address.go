package crypto

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// AccountAddressLength is the byte length of an Aptos account address.
const AccountAddressLength = 32

var ErrInvalidAddress = errors.New("crypto: invalid account address")

// AccountAddress is a 32-byte Aptos account or object address.
type AccountAddress [AccountAddressLength]byte

// ParseAccountAddress requires the full 64 hex digits, with or without 0x.
func ParseAccountAddress(s string) (AccountAddress, error) {
	var addr AccountAddress
	raw := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(raw) != 2*AccountAddressLength {
		return addr, fmt.Errorf("%w: want %d hex digits, got %d", ErrInvalidAddress, 2*AccountAddressLength, len(raw))
	}
	if _, err := hex.Decode(addr[:], []byte(raw)); err != nil {
		return addr, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return addr, nil
}

// ParseAccountAddressRelaxed also accepts the short forms used for special
// addresses such as 0x1, left-padding them with zeros.
func ParseAccountAddressRelaxed(s string) (AccountAddress, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if raw == "" || len(raw) > 2*AccountAddressLength {
		return AccountAddress{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return ParseAccountAddress(strings.Repeat("0", 2*AccountAddressLength-len(raw)) + raw)
}

// AccountAddressFromBytes copies exactly 32 bytes.
func AccountAddressFromBytes(b []byte) (AccountAddress, error) {
	var addr AccountAddress
	if len(b) != AccountAddressLength {
		return addr, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidAddress, AccountAddressLength, len(b))
	}
	copy(addr[:], b)
	return addr, nil
}

func (a AccountAddress) Bytes() []byte {
	out := make([]byte, AccountAddressLength)
	copy(out, a[:])
	return out
}

func (a AccountAddress) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// MarshalText renders the long 0x form.
func (a AccountAddress) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText parses the strict long form.
func (a *AccountAddress) UnmarshalText(text []byte) error {
	parsed, err := ParseAccountAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
