package redact

import (
	"strings"

	masker "github.com/goliatone/go-masker"
)

// Field names that must never survive into an audit row or a log line.
// Matching is case-insensitive on the normalized name (separators dropped).
var denylist = map[string]bool{
	"apikey":        true,
	"secret":        true,
	"clientsecret":  true,
	"token":         true,
	"authtoken":     true,
	"accesstoken":   true,
	"refreshtoken":  true,
	"bottoken":      true,
	"password":      true,
	"passphrase":    true,
	"privatekey":    true,
	"signingkey":    true,
	"masterkey":     true,
	"ciphertext":    true,
	"nonce":         true,
	"salt":          true,
	"plaintexthash": true,
}

// Fields that are not secrets but identify accounts; their values are
// masked rather than dropped.
var masklist = map[string]bool{
	"accountsid": true,
	"webhookurl": true,
	"email":      true,
	"from":       true,
}

func init() {
	for field := range masklist {
		masker.Default.RegisterMaskField(field, "preserveEnds(2,2)")
	}
}

// SensitiveKey reports whether a field name is on the denylist.
func SensitiveKey(name string) bool {
	return denylist[normalize(name)]
}

// Sanitize returns a copy of the map safe for persistence or logging:
// denylisted keys are omitted entirely, identifying keys are masked, and
// nested maps are walked recursively. The input is never mutated.
func Sanitize(values map[string]any) map[string]any {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]any, len(values))
	for key, value := range values {
		if SensitiveKey(key) {
			continue
		}
		switch v := value.(type) {
		case map[string]any:
			if nested := Sanitize(v); nested != nil {
				out[key] = nested
			}
		case string:
			if masklist[normalize(key)] {
				out[key] = MaskString(v)
			} else {
				out[key] = v
			}
		default:
			out[key] = value
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// MaskString obscures a value preserving two characters at each end, so
// operators can still correlate entries without seeing the secret.
func MaskString(value string) string {
	if value == "" {
		return ""
	}
	if masked, err := masker.Default.String("preserveEnds(2,2)", value); err == nil {
		return masked
	}
	runes := []rune(value)
	if len(runes) <= 4 {
		return strings.Repeat("*", len(runes))
	}
	return string(runes[:2]) + strings.Repeat("*", len(runes)-4) + string(runes[len(runes)-2:])
}

func normalize(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "_", "")
	name = strings.ReplaceAll(name, "-", "")
	return name
}
