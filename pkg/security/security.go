package security

import (
	"crypto/subtle"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/billable/jobqueue/pkg/core"
)

// Security limits and configuration
const (
	// MaxJobTypeLength is the maximum length for job types
	MaxJobTypeLength = 255

	// MaxJobDataSize is the maximum size in bytes for a job payload (1MB)
	MaxJobDataSize = 1 << 20

	// MaxAttempts is the hard limit for dispatch attempts
	MaxAttempts = 100

	// MaxConcurrency is the hard limit for worker concurrency
	MaxConcurrency = 1000

	// MaxErrorMessageLength is the maximum length for stored error messages
	MaxErrorMessageLength = 4096

	// MaxWriteBodySize is the largest forwarded write envelope the endpoint reads (8MB)
	MaxWriteBodySize = 8 << 20
)

// validName matches alphanumeric, hyphens, underscores, and dots
var validName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-\.]*$`)

// ValidateJobType validates a job type
func ValidateJobType(name string) error {
	if name == "" {
		return core.ErrInvalidJobType
	}
	if len(name) > MaxJobTypeLength {
		return core.ErrJobTypeTooLong
	}
	if !validName.MatchString(name) {
		return core.ErrInvalidJobType
	}
	return nil
}

// ValidName reports whether s is usable as a forwarded model or operation name.
func ValidName(s string) bool {
	return len(s) <= MaxJobTypeLength && validName.MatchString(s)
}

// SanitizeErrorMessage truncates and sanitizes error messages for storage
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}

	// Remove any null bytes or control characters (except newlines)
	var sanitized strings.Builder
	sanitized.Grow(len(msg))

	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()

	if utf8.RuneCountInString(result) > MaxErrorMessageLength {
		runes := []rune(result)
		result = string(runes[:MaxErrorMessageLength-3]) + "..."
	}

	return result
}

// ClampMaxAttempts ensures the attempt ceiling is within [1, MaxAttempts].
// A job always gets at least one dispatch.
func ClampMaxAttempts(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxAttempts {
		return MaxAttempts
	}
	return n
}

// ClampConcurrency ensures concurrency is within limits
func ClampConcurrency(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxConcurrency {
		return MaxConcurrency
	}
	return n
}

// BearerToken extracts the token from an Authorization header value.
// It returns "" unless the header has the form "Bearer <token>".
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// TokenEqual compares a presented token with the expected one in constant time.
// An empty expected token never matches.
func TokenEqual(presented, expected string) bool {
	if expected == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
}
