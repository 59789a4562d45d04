// Package logging provides helpers for safely logging upstream payloads.
package logging

import "regexp"

const (
	// MaxUpstreamBodyLength bounds how much of an upstream error body is
	// kept in connection errors and logs.
	MaxUpstreamBodyLength = 500

	// RedactedText replaces sensitive values.
	RedactedText = "[REDACTED]"
)

var (
	// access_token=xxx, refresh_token=xxx, client_secret=xxx, code=xxx
	oauthParamPattern = regexp.MustCompile(`(?i)(access_token|refresh_token|client_secret|api_key|code)=[^;&\s"]+`)

	// "access_token":"xxx" style JSON fields
	oauthJSONPattern = regexp.MustCompile(`(?i)"(access_token|refresh_token|client_secret)"\s*:\s*"[^"]*"`)

	// Bearer tokens in headers echoed back by upstreams
	bearerPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9\-_.~+/]+=*`)

	// user:pass@host in connection URLs
	urlCredsPattern = regexp.MustCompile(`://[^:/\s]+:[^@/\s]+@[^/\s]+`)
)

// SanitizeUpstreamBody redacts credential material from an upstream response
// body and truncates it. Use before storing any provider error for diagnosis.
func SanitizeUpstreamBody(body string) string {
	if body == "" {
		return ""
	}
	s := oauthParamPattern.ReplaceAllString(body, "${1}="+RedactedText)
	s = oauthJSONPattern.ReplaceAllString(s, `"${1}":"`+RedactedText+`"`)
	s = bearerPattern.ReplaceAllString(s, "Bearer "+RedactedText)
	s = urlCredsPattern.ReplaceAllString(s, "://"+RedactedText+"@"+RedactedText)
	return TruncateString(s, MaxUpstreamBodyLength)
}

// SanitizeError redacts credential material from an error message.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	s := oauthParamPattern.ReplaceAllString(err.Error(), "${1}="+RedactedText)
	s = bearerPattern.ReplaceAllString(s, "Bearer "+RedactedText)
	s = urlCredsPattern.ReplaceAllString(s, "://"+RedactedText+"@"+RedactedText)
	return s
}

// TruncateString truncates s to maxLen and appends an ellipsis if needed.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
