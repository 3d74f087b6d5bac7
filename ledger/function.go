package ledger

import (
	"fmt"
	"strings"

	"eragonauth/crypto"
)

// FunctionRef names a Move function as address::module::function.
type FunctionRef struct {
	Address  crypto.AccountAddress
	Module   string
	Function string
}

// ParseFunctionRef parses "0x..::module::function". Short addresses such as
// 0x1 are left-padded.
func ParseFunctionRef(s string) (FunctionRef, error) {
	parts := strings.Split(strings.TrimSpace(s), "::")
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return FunctionRef{}, fmt.Errorf("%w: %q", ErrInvalidFunction, s)
	}
	addr, err := crypto.ParseAccountAddressRelaxed(parts[0])
	if err != nil {
		return FunctionRef{}, fmt.Errorf("%w: %v", ErrInvalidFunction, err)
	}
	return FunctionRef{Address: addr, Module: parts[1], Function: parts[2]}, nil
}

func (f FunctionRef) String() string {
	return fmt.Sprintf("%s::%s::%s", f.Address, f.Module, f.Function)
}

// MarshalText implements encoding.TextMarshaler.
func (f FunctionRef) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *FunctionRef) UnmarshalText(text []byte) error {
	parsed, err := ParseFunctionRef(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
