// Package validate normalizes and checks user-controlled request fields before
// they are sent to the lookup service.
package validate

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Limits on user input, counted in characters.
const (
	MaxSearchTermLength = 200
	MaxIdentifierLength = 10
	MaxCommentLength    = 2000
	MaxIssueTypeLength  = 100
)

// Reason classifies why a field was rejected.
type Reason string

const (
	ReasonEmpty   Reason = "empty"
	ReasonTooLong Reason = "too_long"
	ReasonInvalid Reason = "invalid_characters"
)

// Error describes a rejected field. Its message is safe to show to users.
type Error struct {
	Field  string
	Reason Reason
	Max    int
}

func (e *Error) Error() string {
	switch e.Reason {
	case ReasonEmpty:
		if e.Field == "search_term" {
			return "Please enter a search term."
		}
		return fmt.Sprintf("Please provide the %s.", strings.ReplaceAll(e.Field, "_", " "))
	case ReasonTooLong:
		return fmt.Sprintf("Input is too long (maximum %d characters).", e.Max)
	default:
		return "Input contains invalid characters."
	}
}

// SearchTerm trims s and requires 1..MaxSearchTermLength characters.
func SearchTerm(s string) (string, error) {
	return text("search_term", s, MaxSearchTermLength, true)
}

// Identifier trims s and requires 1..MaxIdentifierLength ASCII digits.
func Identifier(s string) (string, error) {
	trimmed, err := text("identifier", s, MaxIdentifierLength, true)
	if err != nil {
		return "", err
	}
	for i := 0; i < len(trimmed); i++ {
		if trimmed[i] < '0' || trimmed[i] > '9' {
			return "", &Error{Field: "identifier", Reason: ReasonInvalid}
		}
	}
	return trimmed, nil
}

// Comment trims s and allows up to MaxCommentLength characters. Empty is allowed.
func Comment(s string) (string, error) {
	return text("comment", s, MaxCommentLength, false)
}

// IssueType trims s and requires a short, non-empty category.
func IssueType(s string) (string, error) {
	return text("issue_type", s, MaxIssueTypeLength, true)
}

func text(field, s string, max int, required bool) (string, error) {
	trimmed := strings.TrimSpace(s)
	if required && trimmed == "" {
		return "", &Error{Field: field, Reason: ReasonEmpty}
	}
	if utf8.RuneCountInString(trimmed) > max {
		return "", &Error{Field: field, Reason: ReasonTooLong, Max: max}
	}
	return trimmed, nil
}
