// Package passphrase resolves the signer keystore passphrase from the
// environment or an interactive prompt.
package passphrase

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// DefaultEnv is the variable consulted when no other name is configured.
const DefaultEnv = "ERAGON_KEYSTORE_PASSPHRASE"

var errMismatch = errors.New("passphrases do not match")

// Source lazily resolves a keystore passphrase and caches the first result.
type Source struct {
	envVar  string
	confirm bool
	read    func() ([]byte, error)

	once  sync.Once
	value string
	err   error
}

// NewSource checks envVar before prompting on the terminal.
func NewSource(envVar string) *Source {
	envVar = strings.TrimSpace(envVar)
	if envVar == "" {
		envVar = DefaultEnv
	}
	return &Source{envVar: envVar, read: readTerminal}
}

// NewConfirmingSource prompts twice when interactive. Use it when a new
// keystore is being written.
func NewConfirmingSource(envVar string) *Source {
	s := NewSource(envVar)
	s.confirm = true
	return s
}

// Get returns the cached passphrase or resolves it on first use. Whitespace
// only passphrases are rejected.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		if value, ok := os.LookupEnv(s.envVar); ok {
			if strings.TrimSpace(value) == "" {
				s.err = fmt.Errorf("%s is set but empty", s.envVar)
				return
			}
			s.value = value
			return
		}

		first, err := s.prompt("Enter signer keystore passphrase: ")
		if err != nil {
			s.err = err
			return
		}
		if s.confirm {
			second, err := s.prompt("Repeat passphrase: ")
			if err != nil {
				s.err = err
				return
			}
			if first != second {
				s.err = errMismatch
				return
			}
		}
		s.value = first
	})

	return s.value, s.err
}

func (s *Source) prompt(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	bytes, err := s.read()
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	passphrase := string(bytes)
	if strings.TrimSpace(passphrase) == "" {
		return "", errors.New("signer keystore passphrase cannot be empty")
	}
	return passphrase, nil
}

func readTerminal() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("signer keystore passphrase required and no terminal available")
	}
	bytes, err := term.ReadPassword(fd)
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	return bytes, nil
}
