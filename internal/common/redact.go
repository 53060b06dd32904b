package common

import "strings"

const redactedPlaceholder = "[REDACTED]"

// RedactString replaces every occurrence of each sensitive value in s with
// [REDACTED]. Values shorter than 4 characters are skipped to avoid
// spuriously redacting common substrings.
func RedactString(s string, sensitiveValues ...string) string {
	for _, v := range sensitiveValues {
		if len(v) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, v, redactedPlaceholder)
	}
	return s
}

// sensitiveKeyWords are substrings of environment/config key names that
// indicate the value should never be logged verbatim.
var sensitiveKeyWords = []string{"password", "passwd", "token", "secret", "key", "credential", "auth", "apikey"}

// IsSensitiveKey returns true when key's name suggests it holds a secret.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, word := range sensitiveKeyWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

// RedactEnvValue returns value unchanged unless key looks sensitive, in
// which case it returns the redacted placeholder. Used by the bootstrap
// config loader when logging an environment-variable override.
func RedactEnvValue(key, value string) string {
	if value != "" && IsSensitiveKey(key) {
		return redactedPlaceholder
	}
	return value
}
