package util

import (
	"regexp"
	"strings"
)

var uuidRegex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// IsValidUUID accepts only the canonical lowercase form device ids are issued in.
func IsValidUUID(s string) bool {
	if s == "" {
		return false
	}
	return uuidRegex.MatchString(s)
}

func IsValidEnum(value string, validValues []string) bool {
	if value == "" {
		return true
	}
	for _, v := range validValues {
		if value == v {
			return true
		}
	}
	return false
}

// NormalizeCode upper-cases a user-entered pairing code and strips spaces
// and dashes.
func NormalizeCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.NewReplacer(" ", "", "-", "").Replace(code)
}

// IsValidCode reports whether code has the given length and only uses
// characters from alphabet.
func IsValidCode(code, alphabet string, length int) bool {
	if len(code) != length {
		return false
	}
	for _, c := range code {
		if !strings.ContainsRune(alphabet, c) {
			return false
		}
	}
	return true
}
