package observability

import (
	"encoding/json"
	"strings"
)

const redactedPlaceholder = "[REDACTED]"

// credentialKeyFragments flags a JSON key as credential-bearing when the
// lowercased key contains any of them. Prompt and completion text is logged
// verbatim when payload logging is enabled; only key material is masked.
var credentialKeyFragments = []string{
	"api_key", "apikey", "api-key",
	"authorization", "auth", "bearer",
	"token", "password", "secret",
}

// RedactJSON masks credential-bearing values in a JSON payload before it is
// logged. Payloads that fail to parse are returned unchanged rather than
// dropped, so a malformed provider response still reaches the log.
func RedactJSON(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	b, err := json.Marshal(redact(v))
	if err != nil {
		return raw
	}
	return b
}

func redact(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, inner := range val {
			if credentialKey(k) {
				val[k] = redactedPlaceholder
				continue
			}
			val[k] = redact(inner)
		}
		return val
	case []any:
		for i := range val {
			val[i] = redact(val[i])
		}
		return val
	default:
		return v
	}
}

func credentialKey(k string) bool {
	low := strings.ToLower(k)
	for _, fragment := range credentialKeyFragments {
		if strings.Contains(low, fragment) {
			return true
		}
	}
	return false
}
