package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue replaces secret material in signerd and CLI log lines.
const RedactedValue = "[REDACTED]"

// Keys that describe an authorization rather than a credential. Digests,
// public keys and recovery ids are already public once a signature leaves
// the daemon.
var (
	envelopeKeys = []string{"service", "env", "message", "severity", "timestamp", "error", "reason", "component"}
	authKeys     = []string{"kind", "id", "digest", "public_key", "recovery_id"}

	// secretKeys are masked by the handler even when logged as plain strings.
	secretKeys = map[string]struct{}{
		"signer_key":    {},
		"private_key":   {},
		"passphrase":    {},
		"hmac_secret":   {},
		"token":         {},
		"authorization": {},
	}
)

var redactionAllowlist = func() map[string]struct{} {
	set := make(map[string]struct{}, len(envelopeKeys)+len(authKeys))
	for _, group := range [][]string{envelopeKeys, authKeys} {
		for _, key := range group {
			set[key] = struct{}{}
		}
	}
	return set
}()

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// IsAllowlisted reports whether key may be logged verbatim through MaskField.
func IsAllowlisted(key string) bool {
	_, ok := redactionAllowlist[normalizeKey(key)]
	return ok
}

// RedactionAllowlist lists the allowlisted keys in sorted order.
func RedactionAllowlist() []string {
	keys := make([]string, 0, len(redactionAllowlist))
	for key := range redactionAllowlist {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField logs value under key only when key is allowlisted. Use it for
// bearer tokens, keystore passphrases and anything else a caller supplied.
func MaskField(key, value string) slog.Attr {
	if IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, MaskValue(value))
}

// redactSecret is the ReplaceAttr hook behind SetupWithOptions.
func redactSecret(attr slog.Attr) slog.Attr {
	if _, ok := secretKeys[normalizeKey(attr.Key)]; !ok {
		return attr
	}
	if attr.Value.Kind() == slog.KindString {
		return slog.String(attr.Key, MaskValue(attr.Value.String()))
	}
	return slog.String(attr.Key, RedactedValue)
}
