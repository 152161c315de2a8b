package status

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cleanplate/internal/establishment/dates"
	"cleanplate/internal/establishment/models"
)

var now = time.Date(2024, 6, 10, 15, 0, 0, 0, time.UTC)

func inspection(date, grade, action string) models.Inspection {
	insp := models.Inspection{Date: date, Action: models.NewAction(action)}
	if grade != "-" {
		insp.Grade = models.Grade(grade)
	}
	return insp
}

func establishment(inspections ...models.Inspection) models.Establishment {
	return models.Establishment{CAMIS: "41234567", Inspections: inspections}
}

func TestResolveStatus(t *testing.T) {
	tests := []struct {
		name          string
		inspections   []models.Inspection
		wantStatus    Status
		wantGrade     string
		wantDisplayed string
	}{
		{
			name:          "null grade falls back to the prior letter grade",
			inspections:   []models.Inspection{inspection("2024-06-01", "-", ""), inspection("2024-05-01", "A", "")},
			wantStatus:    Graded,
			wantGrade:     "A",
			wantDisplayed: "2024-05-01",
		},
		{
			name:          "empty grade falls back past pending codes",
			inspections:   []models.Inspection{inspection("2024-05-01", "Z", ""), inspection("2024-06-01", "", ""), inspection("2024-04-01", "B", "")},
			wantStatus:    Graded,
			wantGrade:     "B",
			wantDisplayed: "2024-04-01",
		},
		{
			name:          "closure on the latest inspection wins over its grade",
			inspections:   []models.Inspection{inspection("2024-06-01", "A", "Establishment Closed by DOHMH.")},
			wantStatus:    Closed,
			wantDisplayed: "2024-06-01",
		},
		{
			name:          "closure on an older inspection is history",
			inspections:   []models.Inspection{inspection("2024-05-01", "-", "Establishment Closed by DOHMH."), inspection("2024-06-01", "C", "")},
			wantStatus:    Graded,
			wantGrade:     "C",
			wantDisplayed: "2024-06-01",
		},
		{
			name:          "grade pending code",
			inspections:   []models.Inspection{inspection("2024-06-01", "Z", ""), inspection("2024-05-01", "A", "")},
			wantStatus:    Pending,
			wantGrade:     "Z",
			wantDisplayed: "2024-06-01",
		},
		{
			name:          "reopening pending code",
			inspections:   []models.Inspection{inspection("2024-06-01", "P", "Establishment re-opened by DOHMH.")},
			wantStatus:    Pending,
			wantGrade:     "P",
			wantDisplayed: "2024-06-01",
		},
		{
			name:          "latest letter grade",
			inspections:   []models.Inspection{inspection("2024-05-01", "C", ""), inspection("2024-06-01", "A", "")},
			wantStatus:    Graded,
			wantGrade:     "A",
			wantDisplayed: "2024-06-01",
		},
		{
			name:          "no letter grade anywhere but a not yet graded entry",
			inspections:   []models.Inspection{inspection("2024-06-01", "-", ""), inspection("2024-05-01", "N", "")},
			wantStatus:    NotYetGraded,
			wantDisplayed: "2024-06-01",
		},
		{
			name:          "ungraded history defaults to pending",
			inspections:   []models.Inspection{inspection("2024-06-01", "-", ""), inspection("2024-05-01", "", "")},
			wantStatus:    Pending,
			wantDisplayed: "2024-06-01",
		},
		{
			name:          "unparseable dates sort last",
			inspections:   []models.Inspection{inspection("not a date", "C", ""), inspection("06/01/2024", "A", "")},
			wantStatus:    Graded,
			wantGrade:     "A",
			wantDisplayed: "06/01/2024",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Resolve(establishment(tt.inspections...), now)

			assert.Equal(t, tt.wantStatus, res.Status)
			assert.Equal(t, tt.wantGrade, res.Grade)
			require.NotNil(t, res.Displayed)
			assert.Equal(t, tt.wantDisplayed, res.Displayed.Date)
			require.NotNil(t, res.Latest)
		})
	}
}

func TestResolveEmptyHistory(t *testing.T) {
	res := Resolve(establishment(), now)

	assert.Equal(t, NotGraded, res.Status)
	assert.Empty(t, res.Since)
	assert.Nil(t, res.Latest)
	assert.Nil(t, res.Displayed)
}

func TestResolveIsIdempotent(t *testing.T) {
	e := establishment(
		inspection("2024-05-01", "A", ""),
		inspection("2024-06-01", "-", ""),
		inspection("garbage", "B", ""),
	)

	first := Resolve(e, now)
	second := Resolve(e, now)
	assert.Equal(t, first, second)
	assert.Equal(t, "2024-05-01", e.Inspections[0].Date, "input order is untouched")
}

func TestResolveNarrative(t *testing.T) {
	tests := []struct {
		name string
		e    models.Establishment
		want string
	}{
		{
			name: "graded today",
			e:    establishment(inspection("2024-06-10", "A", "")),
			want: "Graded today",
		},
		{
			name: "graded yesterday",
			e:    establishment(inspection("2024-06-09", "A", "")),
			want: "Graded yesterday",
		},
		{
			name: "graded within a week",
			e:    establishment(inspection("2024-06-04", "B", "")),
			want: "Graded 6 days ago",
		},
		{
			name: "graded a week ago shows the date",
			e:    establishment(inspection("2024-06-03", "B", "")),
			want: "Graded on Jun 3, 2024",
		},
		{
			name: "closure uses the longer window",
			e:    establishment(inspection("2024-05-20", "-", "Establishment Closed by DOHMH.")),
			want: "Closed 21 days ago",
		},
		{
			name: "closure past the window shows the date",
			e:    establishment(inspection("2024-05-01", "-", "Establishment Closed by DOHMH.")),
			want: "Closed on May 1, 2024",
		},
		{
			name: "reopening narrative",
			e:    establishment(inspection("2024-06-07", "A", "Establishment re-opened by DOHMH.")),
			want: "Re-opened 3 days ago",
		},
		{
			name: "finalized timestamp wins over the inspection date",
			e: models.Establishment{
				CAMIS:         "1",
				FinalizedDate: "2024-06-09T10:00:00",
				Inspections:   []models.Inspection{inspection("2024-05-01", "A", "")},
			},
			want: "Updated yesterday",
		},
		{
			name: "pending status reads as an update",
			e:    establishment(inspection("2024-06-08", "Z", "")),
			want: "Updated 2 days ago",
		},
		{
			name: "future dates show the date",
			e:    establishment(inspection("2024-06-12", "A", "")),
			want: "Graded on Jun 12, 2024",
		},
		{
			name: "fallback narrates the displayed inspection",
			e:    establishment(inspection("2024-06-10", "-", ""), inspection("2024-06-08", "A", "")),
			want: "Graded 2 days ago",
		},
		{
			name: "no parseable date",
			e:    establishment(inspection("soon", "A", "")),
			want: DateUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.e, now).Since)
		})
	}
}

func TestRelativeUsesCalendarDaysInNowLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 23:30 the previous evening is one calendar day back even though fewer
	// than 24 hours have passed.
	localNow := time.Date(2024, 6, 10, 8, 0, 0, 0, ny)
	at := time.Date(2024, 6, 9, 23, 30, 0, 0, ny)
	assert.Equal(t, "Graded yesterday", Relative(PrefixGraded, at, localNow, gradeWindowDays))

	// Zone-less inspection dates are read in now's location.
	e := establishment(inspection("2024-06-10", "A", ""))
	assert.Equal(t, "Graded today", Resolve(e, localNow).Since)
}

func TestDisplayedNeverOlderThanLaterGrades(t *testing.T) {
	e := establishment(
		inspection("2024-01-01", "C", ""),
		inspection("2024-06-01", "", ""),
		inspection("2024-03-01", "B", ""),
		inspection("2024-05-01", "-", ""),
	)
	res := Resolve(e, now)
	require.NotNil(t, res.Displayed)

	parser := dates.New(now.Location())
	displayedAt, ok := parser.Parse(res.Displayed.Date)
	require.True(t, ok)
	for _, insp := range Sorted(e.Inspections, parser) {
		at, ok := parser.Parse(insp.Date)
		if !ok || insp.GradeCode() == "" || !at.After(displayedAt) {
			continue
		}
		t.Fatalf("inspection %s with grade %s is newer than displayed %s", insp.Date, insp.GradeCode(), res.Displayed.Date)
	}
	assert.Equal(t, "B", res.Grade)
}
