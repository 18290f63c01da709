package utils

import (
	"regexp"
	"strings"
)

// Cyrillic lookalikes frequently emitted by recognition firmware.
var cyrillicToLatin = map[rune]rune{
	'А': 'A', 'В': 'B', 'Е': 'E', 'К': 'K', 'М': 'M', 'Н': 'H',
	'О': 'O', 'Р': 'P', 'С': 'C', 'Т': 'T', 'У': 'Y', 'Х': 'X',
}

var platePattern = regexp.MustCompile(`^[A-Z0-9]{4,10}$`)

// NormalizePlate canonicalizes a recognized plate string: uppercase,
// lookalike letters folded to Latin, everything but letters and digits
// stripped. Returns "" when nothing usable remains.
func NormalizePlate(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(raw)) {
		if mapped, ok := cyrillicToLatin[r]; ok {
			r = mapped
		}
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsValidPlate reports whether a normalized plate looks like a real
// registration number: 4-10 alphanumerics with at least one digit and one
// letter. Events failing this check are excluded from automatic matching.
func IsValidPlate(normalized string) bool {
	if !platePattern.MatchString(normalized) {
		return false
	}
	hasDigit := strings.ContainsAny(normalized, "0123456789")
	hasLetter := strings.IndexFunc(normalized, func(r rune) bool {
		return r >= 'A' && r <= 'Z'
	}) >= 0
	return hasDigit && hasLetter
}
