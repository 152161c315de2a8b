package strings

import "strings"

// MatchFold returns the option equal to value under case folding, ignoring
// surrounding whitespace.
func MatchFold(value string, options ...string) (string, bool) {
	value = strings.TrimSpace(value)
	for _, opt := range options {
		if strings.EqualFold(value, opt) {
			return opt, true
		}
	}
	return "", false
}
