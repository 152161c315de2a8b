package models

import (
	"encoding/json"
	"strings"
)

// ActionKind classifies the free-text action recorded with an inspection.
type ActionKind int

const (
	ActionActive ActionKind = iota
	ActionClosed
	ActionReopened
)

// Markers matched case-insensitively against the action text.
const (
	ClosureMarker   = "closed by dohmh"
	ReopeningMarker = "re-opened"
)

func (k ActionKind) String() string {
	switch k {
	case ActionClosed:
		return "closed"
	case ActionReopened:
		return "reopened"
	default:
		return "active"
	}
}

// Action keeps the raw action text together with its parsed kind.
// The kind is derived once, when the text enters the system.
type Action struct {
	Text string
	Kind ActionKind
}

// NewAction classifies text. Closure wins when both markers appear.
func NewAction(text string) Action {
	return Action{Text: text, Kind: ParseActionKind(text)}
}

// ParseActionKind maps action text onto its kind.
func ParseActionKind(text string) ActionKind {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, ClosureMarker):
		return ActionClosed
	case strings.Contains(lower, ReopeningMarker):
		return ActionReopened
	default:
		return ActionActive
	}
}

func (a Action) MarshalJSON() ([]byte, error) {
	if a.Text == "" {
		return []byte("null"), nil
	}
	return json.Marshal(a.Text)
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var text *string
	if err := json.Unmarshal(data, &text); err != nil {
		return err
	}
	if text == nil {
		*a = Action{}
		return nil
	}
	*a = NewAction(*text)
	return nil
}
