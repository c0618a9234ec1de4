package session

import "regexp"

// Code is a four-decimal-digit session identifier — the only key that
// binds a broadcaster to its viewers.
type Code string

var codePattern = regexp.MustCompile(`^[0-9]{4}$`)

// ParseCode validates s as a four-digit SessionCode. "0000" is valid;
// anything shorter, longer, or non-numeric is rejected.
func ParseCode(s string) (Code, bool) {
	if !codePattern.MatchString(s) {
		return "", false
	}
	return Code(s), true
}
