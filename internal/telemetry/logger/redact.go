package logger

import (
	"log/slog"
	"strings"
)

const redactedValue = "***REDACTED***"

// Substrings that mark an attribute as secret: session secrets and random
// tokens, storage encryption keys, redis passwords.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"token",
	"key",
	"credential",
}

// Suffixes naming where a secret lives or which one it is, not its value,
// so key_file and token_count stay readable.
var publicKeySuffixes = []string{
	"_file",
	"_path",
	"_id",
	"_count",
}

// redactSensitive replaces non-empty string values of sensitive attributes.
// Groups are walked recursively.
func redactSensitive(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		if a.Value.String() != "" && IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
	case slog.KindGroup:
		attrs := a.Value.Group()
		redacted := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			redacted[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(redacted...)}
	}
	return a
}

// IsSensitiveKey reports whether an attribute key names secret content.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, suffix := range publicKeySuffixes {
		if strings.HasSuffix(k, suffix) {
			return false
		}
	}
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(k, pattern) {
			return true
		}
	}
	return false
}
