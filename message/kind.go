package message

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies one of the player actions the server authorises. Each kind
// owns a fixed, ordered schema whose first field is the kind's discriminant.
type Kind uint8

const (
	CheckIn Kind = iota + 1
	Claim
	Roll
	RollProfileBy
	ImportSigTokenV2
)

// ErrUnknownKind is returned when a discriminant does not name a registered kind.
var ErrUnknownKind = errors.New("message: unknown kind")

var discriminants = map[Kind]string{
	CheckIn:          "check_in",
	Claim:            "claim",
	Roll:             "roll",
	RollProfileBy:    "roll_profile_by",
	ImportSigTokenV2: "import_sig_token_v2",
}

// Discriminant returns the literal embedded as the first field of every
// message of this kind.
func (k Kind) Discriminant() string {
	return discriminants[k]
}

func (k Kind) String() string {
	if d, ok := discriminants[k]; ok {
		return d
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Valid reports whether k is a registered kind.
func (k Kind) Valid() bool {
	_, ok := discriminants[k]
	return ok
}

// ParseKind maps a discriminant back to its kind. Matching is exact.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if discriminants[k] == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, strings.TrimSpace(s))
}

// Kinds lists every registered kind in declaration order.
func Kinds() []Kind {
	return []Kind{CheckIn, Claim, Roll, RollProfileBy, ImportSigTokenV2}
}

// MarshalText renders the kind as its discriminant.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(k))
	}
	return []byte(k.Discriminant()), nil
}

// UnmarshalText parses a discriminant.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
