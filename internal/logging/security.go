// Ravenbridge - Fleet Telematics Bridge and Geographic Visualization
// Copyright 2026 Travis Gray (travisgrayraven)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/travisgrayraven/ravenbridge

package logging

import (
	"net/http"
	"strings"

	"github.com/goccy/go-json"
)

// Redacted is the fixed placeholder that replaces secret values before they
// reach any log sink. Secrets are replaced wholesale: no prefix, suffix or
// length information from the original value survives.
const Redacted = "[REDACTED]"

// sensitiveJSONKeys lists JSON field names whose values are always replaced
// by Redacted when a request or response body is sanitized for audit logging.
var sensitiveJSONKeys = map[string]bool{
	"access_token":  true,
	"refresh_token": true,
	"id_token":      true,
	"token":         true,
	"password":      true,
	"secret":        true,
	"api_secret":    true,
	"api_key":       true,
	"apikey":        true,
	"authorization": true,
	"bearer":        true,
	"cookie":        true,
}

// MaskSecret replaces a secret value with the fixed Redacted placeholder.
// Empty input stays empty so that absent credentials remain recognizable.
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	return Redacted
}

// SanitizeHeaders returns a copy of h safe for logging. The Authorization
// header (and any cookie headers) are wholly replaced by Redacted.
func SanitizeHeaders(h http.Header) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, len(h))
	for name, values := range h {
		if len(values) == 0 {
			continue
		}
		switch strings.ToLower(name) {
		case "authorization", "cookie", "set-cookie", "x-api-key":
			out[name] = Redacted
		default:
			out[name] = values[0]
		}
	}
	return out
}

// SanitizeBody returns a loggable rendition of a JSON request or response
// body with sensitive fields wholly replaced by Redacted.
//
// Non-JSON bodies are truncated and returned as-is: the vendor API speaks
// JSON everywhere secrets can appear, so only JSON object bodies carry
// maskable fields. Nested objects and arrays are walked recursively.
func SanitizeBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var parsed interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return truncateString(string(body), 2048)
	}

	sanitized := sanitizeValue(parsed)
	out, err := json.Marshal(sanitized)
	if err != nil {
		return truncateString(string(body), 2048)
	}
	return truncateString(string(out), 2048)
}

// sanitizeValue walks a decoded JSON value, replacing sensitive fields.
func sanitizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			if sensitiveJSONKeys[strings.ToLower(k)] {
				out[k] = Redacted
				continue
			}
			out[k] = sanitizeValue(inner)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			out[i] = sanitizeValue(inner)
		}
		return out
	default:
		return v
	}
}

// SanitizeError removes potentially sensitive information from error messages.
func SanitizeError(err string) string {
	sensitivePatterns := []string{
		"password",
		"secret",
		"token",
		"bearer",
		"authorization",
		"cookie",
	}

	lowerErr := strings.ToLower(err)
	for _, pattern := range sensitivePatterns {
		if strings.Contains(lowerErr, pattern) {
			return "authentication error"
		}
	}

	return truncateString(err, 200)
}

// truncateString truncates a string to a maximum length.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
