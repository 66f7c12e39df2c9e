package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

// redactionAllowlist names the keys this daemon may emit unmasked: the
// structured-log envelope itself plus the protocol's non-identifying
// fields (task tags, transfer units, event names, and the numeric ids the
// process mints, which carry no caller identity).
var redactionAllowlist = map[string]struct{}{
	"service":       {},
	"env":           {},
	"message":       {},
	"severity":      {},
	"timestamp":     {},
	"error":         {},
	"reason":        {},
	"component":     {},
	"tag":           {},
	"unit":          {},
	"event_type":    {},
	"transfer_id":   {},
	"withdrawal_id": {},
	"neuron_id":     {},
	"block_index":   {},
	"amount":        {},
	"address":       {},
}

// sensitiveKeys names the fields that always carry a caller identity or a
// credential: principals, ledger accounts, and the API's signing material.
var sensitiveKeys = map[string]struct{}{
	"principal":     {},
	"caller":        {},
	"receiver":      {},
	"owner":         {},
	"to":            {},
	"from":          {},
	"account":       {},
	"subaccount":    {},
	"signing_key":   {},
	"authorization": {},
}

// IsAllowlisted reports whether the provided key is exempt from automatic redaction.
func IsAllowlisted(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	_, ok := redactionAllowlist[normalized]
	return ok
}

// IsSensitive reports whether the provided key always carries an identity
// or credential and must never reach a sink unmasked.
func IsSensitive(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	_, ok := sensitiveKeys[normalized]
	return ok
}

// RedactionAllowlist returns a sorted copy of the log keys that are allowed to be emitted
// without redaction.
func RedactionAllowlist() []string {
	keys := make([]string, 0, len(redactionAllowlist))
	for key := range redactionAllowlist {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskValue returns the canonical redacted placeholder for non-empty values. Empty values
// are returned unchanged to avoid introducing noise in logs.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField returns a slog.Attr that redacts the supplied value unless the key is
// explicitly allowlisted. The original key casing is preserved for readability.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
