// Package status derives an establishment's display status from its raw
// inspection history.
//
// Resolution is pure: the same history and the same "now" always produce the
// same Resolution. Callers inject now; nothing here reads the wall clock.
package status

import (
	"fmt"
	"sort"
	"time"

	"cleanplate/internal/establishment/dates"
	"cleanplate/internal/establishment/models"
)

// Status is the resolved display status.
type Status int

const (
	Unknown Status = iota
	NotGraded
	Graded
	Pending
	NotYetGraded
	Closed
)

func (s Status) String() string {
	switch s {
	case NotGraded:
		return "not_graded"
	case Graded:
		return "graded"
	case Pending:
		return "pending"
	case NotYetGraded:
		return "not_yet_graded"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Narrative prefixes used in the relative time text.
const (
	PrefixGraded   = "Graded"
	PrefixUpdated  = "Updated"
	PrefixClosed   = "Closed"
	PrefixReopened = "Re-opened"
)

// DateUnavailable is returned as Since when no usable date exists.
const DateUnavailable = "Date not available"

const (
	gradeWindowDays    = 7
	activityWindowDays = 30
)

// Resolution is the outcome of resolving one establishment.
type Resolution struct {
	Status Status
	// Grade is the letter for Graded and the raw code for Pending.
	Grade string
	// Latest is the most recent inspection; nil when there are none.
	Latest *models.Inspection
	// Displayed is the inspection whose grade is shown. It differs from
	// Latest when an ungraded latest inspection falls back to an older grade.
	Displayed *models.Inspection
	// Narrative is the verb prefix of Since.
	Narrative string
	// Since is the human relative time text, empty for NotGraded.
	Since string
}

// Sorted returns the inspections ordered by parsed date descending.
// Unparseable dates sort after every parseable one; ties keep input order.
func Sorted(inspections []models.Inspection, parser dates.Parser) []models.Inspection {
	type keyed struct {
		inspection models.Inspection
		at         time.Time
		ok         bool
	}
	keys := make([]keyed, len(inspections))
	for i, insp := range inspections {
		at, ok := parser.Parse(insp.Date)
		keys[i] = keyed{inspection: insp, at: at, ok: ok}
	}
	sort.SliceStable(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.ok != b.ok {
			return a.ok
		}
		return a.ok && a.at.After(b.at)
	})
	out := make([]models.Inspection, len(keys))
	for i, k := range keys {
		out[i] = k.inspection
	}
	return out
}

// Resolve computes the status of e as of now.
func Resolve(e models.Establishment, now time.Time) Resolution {
	parser := dates.New(now.Location())
	sorted := Sorted(e.Inspections, parser)
	if len(sorted) == 0 {
		return Resolution{Status: NotGraded}
	}

	latest := sorted[0]
	res := Resolution{Latest: &latest, Displayed: &latest}

	code := latest.GradeCode()
	older := fallback(sorted)
	switch {
	case latest.Action.Kind == models.ActionClosed:
		res.Status = Closed
	case models.IsPendingGrade(code):
		res.Status = Pending
		res.Grade = code
	case code == "" && older != nil:
		res.Displayed = older
		res.Status = Graded
		res.Grade = res.Displayed.GradeCode()
	case models.IsLetterGrade(code):
		res.Status = Graded
		res.Grade = code
	case anyNotYetGraded(sorted):
		res.Status = NotYetGraded
	default:
		res.Status = Pending
		res.Grade = code
	}

	res.Narrative, res.Since = narrate(e, res, parser, now)
	return res
}

// fallback finds the first inspection after the latest carrying a letter grade.
func fallback(sorted []models.Inspection) *models.Inspection {
	for i := 1; i < len(sorted); i++ {
		if models.IsLetterGrade(sorted[i].GradeCode()) {
			insp := sorted[i]
			return &insp
		}
	}
	return nil
}

func anyNotYetGraded(sorted []models.Inspection) bool {
	for _, insp := range sorted {
		if insp.GradeCode() == models.GradeNotYetGraded {
			return true
		}
	}
	return false
}

func narrate(e models.Establishment, res Resolution, parser dates.Parser, now time.Time) (prefix, since string) {
	window := gradeWindowDays
	finalized, hasFinalized := parser.Parse(e.FinalizedDate)

	switch {
	case res.Status == Closed:
		prefix, window = PrefixClosed, activityWindowDays
	case res.Latest.Action.Kind == models.ActionReopened:
		prefix, window = PrefixReopened, activityWindowDays
	case hasFinalized, res.Status != Graded:
		prefix = PrefixUpdated
	default:
		prefix = PrefixGraded
	}

	at, ok := finalized, hasFinalized
	if !ok {
		at, ok = parser.Parse(res.Displayed.Date)
	}
	if !ok {
		return prefix, DateUnavailable
	}
	return prefix, Relative(prefix, at, now, window)
}

// Relative renders at relative to now: today, yesterday, N days ago while the
// calendar-day offset is below window, otherwise the medium date.
func Relative(prefix string, at, now time.Time, window int) string {
	days := calendarDays(at, now)
	switch {
	case days < 0 || days >= window:
		return fmt.Sprintf("%s on %s", prefix, at.In(now.Location()).Format(dates.MediumLayout))
	case days == 0:
		return prefix + " today"
	case days == 1:
		return prefix + " yesterday"
	default:
		return fmt.Sprintf("%s %d days ago", prefix, days)
	}
}

// calendarDays counts midnights between at and now in now's location.
func calendarDays(at, now time.Time) int {
	loc := now.Location()
	ay, am, ad := at.In(loc).Date()
	ny, nm, nd := now.Date()
	a := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	n := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	return int(n.Sub(a).Hours() / 24)
}
