// Package dates parses the inspection dataset's date strings, which arrive in
// several formats depending on the upstream source.
package dates

import (
	"strings"
	"time"
)

// Layouts in priority order. The first layout that parses wins.
var DefaultLayouts = []string{
	"2006-01-02T15:04:05",              // ISO-8601 without zone
	"2006-01-02T15:04:05.999999Z07:00", // ISO-8601 with fractional seconds and zone
	"2006-01-02T15:04:05.999999Z0700",  // same, numeric zone without colon
	"1/2/2006",                         // month/day/year
	"2006-01-02",                       // calendar date
	"Mon, 02 Jan 2006 15:04:05 MST",    // RFC-1123
	"Mon, 02 Jan 2006 15:04:05 -0700",  // RFC-1123 with numeric zone
}

// MediumLayout renders dates the way status narratives display them.
const MediumLayout = "Jan 2, 2006"

// Parser tries its layouts in order. Zone-less layouts are read in Location.
type Parser struct {
	Layouts  []string
	Location *time.Location
}

// New returns a parser over DefaultLayouts reading zone-less values in loc.
// A nil loc means UTC.
func New(loc *time.Location) Parser {
	if loc == nil {
		loc = time.UTC
	}
	return Parser{Layouts: DefaultLayouts, Location: loc}
}

// Parse returns the instant text denotes. ok is false when no layout matches;
// Parse never fails otherwise.
func (p Parser) Parse(text string) (t time.Time, ok bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	layouts := p.Layouts
	if layouts == nil {
		layouts = DefaultLayouts
	}
	for _, layout := range layouts {
		if parsed, err := time.ParseInLocation(layout, text, loc); err == nil {
			return withKnownZone(parsed), true
		}
	}
	return time.Time{}, false
}

// Parse uses the default layouts in UTC.
func Parse(text string) (time.Time, bool) {
	return New(time.UTC).Parse(text)
}

// zoneOffsets holds the US zone abbreviations seen in RFC-1123 dates, in
// seconds east of UTC.
var zoneOffsets = map[string]int{
	"EST": -5 * 3600, "EDT": -4 * 3600,
	"CST": -6 * 3600, "CDT": -5 * 3600,
	"MST": -7 * 3600, "MDT": -6 * 3600,
	"PST": -8 * 3600, "PDT": -7 * 3600,
}

// withKnownZone fixes t when time.ParseInLocation recorded a zone
// abbreviation it does not know as a zero-offset zone.
func withKnownZone(t time.Time) time.Time {
	name, offset := t.Zone()
	if offset != 0 {
		return t
	}
	known, ok := zoneOffsets[name]
	if !ok {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(),
		time.FixedZone(name, known))
}
