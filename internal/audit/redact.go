package audit

import "strings"

// redactedMarker replaces a sensitive field's value in audit output.
const redactedMarker = "[REDACTED]"

// sensitiveKeySubstrings are matched case-insensitively against each
// field name; any key containing one of these is redacted regardless of
// nesting depth, per spec.md's "redacted by key" audit requirement.
var sensitiveKeySubstrings = []string{
	"password",
	"token",
	"secret",
	"api_key",
	"private_key",
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeySubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// redact returns a copy of fields with sensitive values replaced, walking
// nested maps and slices so a secret buried inside a payload map is still
// caught.
func redact(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if isSensitiveKey(k) {
			out[k] = redactedMarker
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return redact(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = redactValue(e)
		}
		return out
	default:
		return v
	}
}
