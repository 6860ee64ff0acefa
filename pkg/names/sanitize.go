package names

import (
	"regexp"
	"strings"
)

const (
	// MaxLength is the hard limit Kubernetes places on object names and label
	// values.
	MaxLength = 63

	// Placeholder is used when sanitizing leaves nothing behind.
	Placeholder = "unnamed"
)

var (
	invalidChars     = regexp.MustCompile(`[^a-z0-9.-]`)
	leadingNonAlnum  = regexp.MustCompile(`^[^a-z0-9]+`)
	trailingNonAlnum = regexp.MustCompile(`[^a-z0-9]+$`)
	separatorRuns    = regexp.MustCompile(`[-.]+`)
)

// Sanitize converts raw into a valid resource name no longer than maxLen.
// A maxLen of zero or less means [MaxLength].
//
// The result is lowercase, starts and ends with [a-z0-9], and never contains
// consecutive separators. Sanitize is idempotent.
func Sanitize(raw string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = MaxLength
	}

	name := strings.ToLower(raw)
	name = invalidChars.ReplaceAllString(name, "-")
	name = leadingNonAlnum.ReplaceAllString(name, "")
	name = trailingNonAlnum.ReplaceAllString(name, "")
	name = separatorRuns.ReplaceAllString(name, "-")

	if name == "" {
		name = Placeholder
	}

	if len(name) > maxLen {
		name = trailingNonAlnum.ReplaceAllString(name[:maxLen], "")
	}

	return name
}

// ReserveSuffix returns the length a base name must be sanitized to so that
// appending a suffix of suffixLen characters stays within maxLen.
func ReserveSuffix(maxLen, suffixLen int) int {
	if maxLen <= 0 {
		maxLen = MaxLength
	}

	n := maxLen - suffixLen
	if n < 1 {
		return 1
	}

	return n
}

// WithSuffix sanitizes base with room for suffix within maxLen and appends
// it. A maxLen of zero or less means [MaxLength].
func WithSuffix(base, suffix string, maxLen int) string {
	return Sanitize(base, ReserveSuffix(maxLen, len(suffix))) + suffix
}
