package logging

import (
	"regexp"
)

const (
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// Pattern to match potential passwords in connection strings
	// Matches: password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Pattern to match bearer tokens in echoed request headers
	bearerPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9-_.]+`)

	// Pattern to match API keys passed as parameters
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9-_]{20,}`)

	// Pattern to match provider secret keys leaked into error bodies.
	// OpenAI, OpenRouter and Anthropic keys all carry an sk-style prefix
	// ("Incorrect API key provided: sk-or-v1-...").
	secretKeyPattern = regexp.MustCompile(`\bsk-[A-Za-z0-9-_]{8,}`)

	// Pattern to match connection string credentials (user:pass@host format)
	connStringPattern = regexp.MustCompile(`://[^:]+:[^@]+@[^/\s]+`)
)

// SanitizeConnectionString removes sensitive data from connection strings
// Use this before logging any connection string
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}

	// Replace password values
	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)

	// Replace user:pass@host format
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)

	return sanitized
}

// SanitizeError sanitizes error messages that might contain sensitive data.
// Use this before logging any error from database operations or provider SDKs.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeText(err.Error())
}

// SanitizeText removes credential material from arbitrary log text.
func SanitizeText(s string) string {
	if s == "" {
		return ""
	}

	// Remove potential passwords
	sanitized := passwordPattern.ReplaceAllString(s, "${1}="+RedactedText)

	// Remove bearer tokens
	sanitized = bearerPattern.ReplaceAllString(sanitized, "Bearer "+RedactedText)

	// Remove API keys
	sanitized = apiKeyPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)

	// Remove sk-prefixed provider secrets
	sanitized = secretKeyPattern.ReplaceAllString(sanitized, RedactedText)

	// Remove connection string details
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)

	return sanitized
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
