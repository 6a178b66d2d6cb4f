package identity

import "strings"

// NormalizeEmail trims surrounding whitespace and lowercases the address.
// Every lookup and insert goes through it, so uniqueness is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
