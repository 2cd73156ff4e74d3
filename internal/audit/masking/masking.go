package masking

import "strings"

const maskToken = "****"

// sensitiveKeys are metadata keys whose values never reach activity_log in clear.
var sensitiveKeys = map[string]struct{}{
	"guardian_phone": {},
	"guardian_email": {},
	"payment_token":  {},
	"password":       {},
	"authorization":  {},
	"secret":         {},
}

// MaskSecret redacts a value while keeping a short suffix for support lookups.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// MaskSensitive returns a copy of input with sensitive keys masked at any depth.
func MaskSensitive(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}

	out := make(map[string]any, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		if _, ok := sensitiveKeys[strings.ToLower(trimmedKey)]; ok {
			if s, isString := value.(string); isString {
				out[trimmedKey] = MaskSecret(s)
				continue
			}
			out[trimmedKey] = maskToken
			continue
		}
		out[trimmedKey] = maskNested(value)
	}
	return out
}

func maskNested(value any) any {
	switch cast := value.(type) {
	case map[string]any:
		return MaskSensitive(cast)
	case []any:
		items := make([]any, 0, len(cast))
		for _, item := range cast {
			items = append(items, maskNested(item))
		}
		return items
	default:
		return value
	}
}
