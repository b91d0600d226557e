// Package secrets redacts credential-bearing values from configuration
// payloads before they reach logs or the event bus.
package secrets

import (
	"encoding/json"
	"strings"
)

const redactedValue = "<redacted>"

// sensitiveFragments flags a key as credential-bearing when its lowercased
// name contains any of these substrings.
var sensitiveFragments = []string{
	"token",
	"secret",
	"password",
	"passwd",
	"apikey",
	"api_key",
	"credential",
	"private_key",
}

// SensitiveKey reports whether a payload key looks credential-bearing.
func SensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, frag := range sensitiveFragments {
		if strings.Contains(k, frag) {
			return true
		}
	}
	return false
}

// RedactJSON replaces credential-bearing string values inside a JSON payload.
// Returns the (possibly rewritten) payload and whether anything was redacted.
// Malformed input is returned unchanged with the parse error.
func RedactJSON(data []byte) ([]byte, bool, error) {
	if len(data) == 0 {
		return data, false, nil
	}
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return data, false, err
	}
	redacted, changed := redact("", payload)
	if !changed {
		return data, false, nil
	}
	out, err := json.Marshal(redacted)
	return out, true, err
}

func redact(key string, value any) (any, bool) {
	switch v := value.(type) {
	case string:
		if SensitiveKey(key) {
			return redactedValue, true
		}
		return v, false
	case map[string]any:
		changed := false
		out := make(map[string]any, len(v))
		for k, child := range v {
			red, childChanged := redact(k, child)
			if childChanged {
				changed = true
			}
			out[k] = red
		}
		return out, changed
	case []any:
		changed := false
		out := make([]any, len(v))
		for i, child := range v {
			red, childChanged := redact(key, child)
			if childChanged {
				changed = true
			}
			out[i] = red
		}
		return out, changed
	default:
		if SensitiveKey(key) && v != nil {
			return redactedValue, true
		}
		return v, false
	}
}
