package models

import (
	"fmt"
	"strings"
	"time"
)

// Grade codes published by the inspection dataset.
const (
	GradeA            = "A"
	GradeB            = "B"
	GradeC            = "C"
	GradePending      = "P" // grade pending issued on re-opening
	GradeNotYetIssued = "Z" // grade pending
	GradeNotYetGraded = "N"
)

// IsLetterGrade reports whether code is one of the three letter grades.
func IsLetterGrade(code string) bool {
	switch code {
	case GradeA, GradeB, GradeC:
		return true
	}
	return false
}

// IsPendingGrade reports whether code marks a grade that has not been finalized.
func IsPendingGrade(code string) bool {
	return code == GradePending || code == GradeNotYetIssued
}

// Establishment is a single restaurant as returned by the lookup service.
// Values are treated as immutable: updates replace the whole record.
type Establishment struct {
	CAMIS         string       `json:"camis,omitempty"`
	Name          string       `json:"dba,omitempty"`
	Borough       string       `json:"boro,omitempty"`
	Building      string       `json:"building,omitempty"`
	Street        string       `json:"street,omitempty"`
	ZipCode       string       `json:"zipcode,omitempty"`
	Phone         string       `json:"phone,omitempty"`
	Latitude      *float64     `json:"latitude,omitempty"`
	Longitude     *float64     `json:"longitude,omitempty"`
	Cuisine       string       `json:"cuisine_description,omitempty"`
	GradeDate     string       `json:"grade_date,omitempty"`
	FoursquareID  string       `json:"foursquare_fsq_id,omitempty"`
	GooglePlaceID string       `json:"google_place_id,omitempty"`
	Inspections   []Inspection `json:"inspections,omitempty"`

	// Recent-activity metadata, only set on entries of the recent actions feed.
	UpdateType    string `json:"update_type,omitempty"`
	ActivityDate  string `json:"activity_date,omitempty"`
	FinalizedDate string `json:"finalized_date,omitempty"`
}

// SameEstablishment reports whether a and b identify the same establishment.
// A missing identifier never matches, not even another missing identifier.
func SameEstablishment(a, b Establishment) bool {
	return a.CAMIS != "" && a.CAMIS == b.CAMIS
}

// Coordinates returns the location pair when both halves are present.
func (e Establishment) Coordinates() (lat, lng float64, ok bool) {
	if e.Latitude == nil || e.Longitude == nil {
		return 0, 0, false
	}
	return *e.Latitude, *e.Longitude, true
}

// PlaceIDs returns the third-party place identifiers keyed by provider.
func (e Establishment) PlaceIDs() map[string]string {
	ids := make(map[string]string, 2)
	if e.FoursquareID != "" {
		ids["foursquare"] = e.FoursquareID
	}
	if e.GooglePlaceID != "" {
		ids["google"] = e.GooglePlaceID
	}
	return ids
}

// WithInspections returns a copy of e carrying the given inspections.
func (e Establishment) WithInspections(inspections []Inspection) Establishment {
	e.Inspections = append([]Inspection(nil), inspections...)
	return e
}

// FullAddress joins building, street, borough and zip code into one line.
func (e Establishment) FullAddress() string {
	street := strings.TrimSpace(strings.Join(nonEmpty(e.Building, e.Street), " "))
	parts := nonEmpty(street, titleCase(e.Borough))
	addr := strings.Join(parts, ", ")
	if e.ZipCode != "" {
		if addr != "" {
			addr += " "
		}
		addr += e.ZipCode
	}
	if addr == "" {
		return "Address not available"
	}
	return addr
}

// FormattedPhone renders ten digit numbers as (XXX) XXX-XXXX and returns
// anything else unchanged.
func (e Establishment) FormattedPhone() string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, e.Phone)
	if len(digits) != 10 {
		return e.Phone
	}
	return fmt.Sprintf("(%s) %s-%s", digits[:3], digits[3:6], digits[6:])
}

// Inspection is one inspection event in an establishment's history.
type Inspection struct {
	Date           string      `json:"inspection_date,omitempty"`
	CriticalFlag   string      `json:"critical_flag,omitempty"`
	Grade          *string     `json:"grade"`
	InspectionType string      `json:"inspection_type,omitempty"`
	Action         Action      `json:"action"`
	Violations     []Violation `json:"violations,omitempty"`
}

// GradeCode returns the grade or "" when it is null or empty.
func (i Inspection) GradeCode() string {
	if i.Grade == nil {
		return ""
	}
	return strings.TrimSpace(*i.Grade)
}

// HasCriticalViolations reports whether the inspection was flagged critical.
func (i Inspection) HasCriticalViolations() bool {
	return strings.EqualFold(i.CriticalFlag, "critical")
}

// DisplayGradeText is the human label for the inspection's grade.
func (i Inspection) DisplayGradeText() string {
	switch code := i.GradeCode(); {
	case code == GradeNotYetGraded:
		return "Not Yet Graded"
	case IsPendingGrade(code):
		return "Grade Pending"
	case code == "":
		return "No Grade"
	default:
		return "Grade " + code
	}
}

// Violation is a single cited violation.
type Violation struct {
	Code        string `json:"violation_code,omitempty"`
	Description string `json:"violation_description,omitempty"`
}

// RecentSearch is a search term saved for the signed-in user.
type RecentSearch struct {
	ID        int       `json:"id"`
	Display   string    `json:"search_term_display"`
	CreatedAt time.Time `json:"created_at"`
}

// RecentActions is the feed of establishments whose status recently changed.
type RecentActions struct {
	RecentlyGraded   []Establishment `json:"recently_graded"`
	RecentlyClosed   []Establishment `json:"recently_closed"`
	RecentlyReopened []Establishment `json:"recently_reopened"`
}

// Grade returns a pointer to code, for building inspections by hand.
func Grade(code string) *string {
	return &code
}

func nonEmpty(values ...string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
