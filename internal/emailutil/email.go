package emailutil

import "strings"

// Normalize lowercases and trims an email address so lookups and
// comparisons agree on one spelling
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// LocalPart returns the part of an address before the last @, or the whole
// input when there is none
func LocalPart(email string) string {
	i := strings.LastIndex(email, "@")
	if i < 0 {
		return email
	}
	return email[:i]
}
