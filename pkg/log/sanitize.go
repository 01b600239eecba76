package log

import (
	"net/url"
	"regexp"
	"strings"
)

var sensitiveKeywords = []string{
	"password", "passwd", "pwd",
	"api_key", "apikey", "api-key", "appid",
	"token", "access_token", "refresh_token",
	"secret", "auth", "authorization",
	"credential", "private_key", "privatekey",
}

// sensitiveQueryPattern matches credentials embedded in URLs or error strings,
// e.g. "...weather?lat=1&appid=abcdef" produced by net/http errors.
var sensitiveQueryPattern = regexp.MustCompile(`(?i)\b((?:appid|api_key|apikey|access_token|refresh_token|token|key)=)([^&\s"']+)`)

// SanitizeField checks if the key contains sensitive keywords and sanitizes the value
func SanitizeField(key, value string) string {
	if value == "" {
		return value
	}

	lowerKey := strings.ToLower(key)

	if strings.Contains(lowerKey, "email") || strings.Contains(lowerKey, "mail") {
		return sanitizeEmail(value)
	}

	if isSensitiveKey(lowerKey) {
		return sanitizeToken(value)
	}

	if lowerKey == "url" || strings.HasSuffix(lowerKey, "_url") {
		return SanitizeURL(value)
	}

	return SanitizeMessage(value)
}

func isSensitiveKey(lowerKey string) bool {
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(lowerKey, keyword) {
			return true
		}
	}
	return false
}

// SanitizeURL masks sensitive query parameters and the userinfo password of a URL.
// Unparseable input falls back to SanitizeMessage.
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return SanitizeMessage(raw)
	}

	u.RawQuery = SanitizeMessage(u.RawQuery)

	return u.Redacted()
}

// SanitizeMessage masks "key=value" credentials found anywhere in free text.
func SanitizeMessage(msg string) string {
	return sensitiveQueryPattern.ReplaceAllStringFunc(msg, func(m string) string {
		parts := sensitiveQueryPattern.FindStringSubmatch(m)
		return parts[1] + sanitizeToken(parts[2])
	})
}

// sanitizeToken masks token/password values showing only first 4 and last 4 characters
func sanitizeToken(value string) string {
	if len(value) <= 8 {
		if len(value) <= 2 {
			return strings.Repeat("*", len(value))
		}
		return string(value[0]) + strings.Repeat("*", len(value)-2) + string(value[len(value)-1])
	}

	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// sanitizeEmail masks email showing first 3 characters + @domain
func sanitizeEmail(value string) string {
	parts := strings.Split(value, "@")
	if len(parts) != 2 {
		return strings.Repeat("*", len(value))
	}

	localPart := parts[0]
	domain := parts[1]

	if len(localPart) <= 3 {
		if len(localPart) == 0 {
			return "@" + domain
		}
		return string(localPart[0]) + strings.Repeat("*", len(localPart)-1) + "@" + domain
	}

	return localPart[:3] + "***@" + domain
}
