// Package redact provides helpers for stripping sensitive values from log
// output and from diagnostics that are echoed back to chat users.
//
// # Threat model
//
// Secrets (bot token, LLM API key, Matrix access token) must never appear in:
//   - Telegram replies, including backend error snippets
//   - Matrix audit room notices
//   - Audit payloads stored in SQLite
//
// Redaction is best-effort: it operates on string representations and relies
// on callers to pass the right set of sensitive terms. It is NOT a substitute
// for keeping secrets out of log call-sites in the first place.
package redact

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const placeholder = "[REDACTED]"

// credentialPatterns matches well-known credential formats that may show up
// in upstream error bodies even when the caller did not pass them explicitly.
var credentialPatterns = []*regexp.Regexp{
	// OpenAI classic and project keys
	regexp.MustCompile(`\bsk-[A-Za-z0-9_\-]{20,}\b`),
	// Google API keys (Gemini)
	regexp.MustCompile(`\bAIza[0-9A-Za-z_\-]{35}\b`),
	// Telegram bot tokens
	regexp.MustCompile(`\b[0-9]{6,12}:[A-Za-z0-9_\-]{30,}\b`),
	// Bearer headers echoed back by proxies
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._\-]{16,}`),
}

// String replaces every occurrence of each sensitive value in s with
// [REDACTED]. Values shorter than 4 characters are skipped to avoid
// spurious redaction of common substrings.
//
// Example:
//
//	safe := redact.String(logLine, apiKey, botToken)
func String(s string, sensitiveValues ...string) string {
	for _, v := range sensitiveValues {
		if len(v) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, v, placeholder)
	}
	return s
}

// Credentials replaces substrings that look like API keys or bot tokens.
func Credentials(s string) string {
	for _, re := range credentialPatterns {
		s = re.ReplaceAllString(s, placeholder)
	}
	return s
}

// Snippet returns s with known secrets and credential-shaped substrings
// removed, collapsed to one line and cut to at most maxRunes runes.
func Snippet(s string, maxRunes int, sensitiveValues ...string) string {
	s = Credentials(String(s, sensitiveValues...))
	s = strings.Join(strings.Fields(s), " ")
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	r := []rune(s)
	return string(r[:maxRunes]) + "…"
}

// Map returns a shallow copy of m with values replaced by [REDACTED] for
// every key whose name suggests it contains a secret (password, token, key,
// secret, credential, auth). Non-string values are left unchanged.
func Map(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if isSensitiveKey(k) {
			if str, ok := v.(string); ok && str != "" {
				out[k] = placeholder
				continue
			}
		}
		out[k] = v
	}
	return out
}

// isSensitiveKey returns true when the key name suggests it holds a secret.
func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, word := range []string{"password", "passwd", "token", "secret", "key", "credential", "auth", "apikey"} {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}
