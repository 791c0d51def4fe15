package logger

import (
	"regexp"
	"strings"
)

const redactedValue = "[REDACTED]"

// SensitiveDataPatterns contains regex patterns for sensitive data that should be redacted in logs
var SensitiveDataPatterns = []*regexp.Regexp{
	// Auth tokens (Bearer, JWT, etc.)
	regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9-._~+/]+=*)`),

	// API keys, tokens and secrets in query strings or key=value text
	regexp.MustCompile(`(?i)((api|access|auth|token|secret|key|passw(or)?d)[0-9a-z\-_\.]*[\s:=]+)([^;,&\s]{5,})`),
}

// SensitiveKeywords are keywords that indicate a field may contain sensitive data
var SensitiveKeywords = []string{
	"password", "passwd", "secret", "credential", "token", "api_key",
	"apikey", "authorization", "cookie", "dsn",
}

// RedactSensitiveData replaces sensitive information with "[REDACTED]"
func RedactSensitiveData(input string) string {
	if input == "" {
		return input
	}

	for _, pattern := range SensitiveDataPatterns {
		input = pattern.ReplaceAllString(input, "$1"+redactedValue)
	}

	return input
}

// isSensitiveKey reports whether a field key names a secret.
func isSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, sensitiveKey := range SensitiveKeywords {
		if strings.Contains(keyLower, sensitiveKey) {
			return true
		}
	}
	return false
}
