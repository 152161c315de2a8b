package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"cleanplate/internal/client"
	"cleanplate/internal/establishment/models"
	"cleanplate/internal/establishment/service"
	"cleanplate/internal/establishment/status"
)

// errorText shows user messages for service failures and the raw error for
// local ones such as bad flags or config.
func errorText(err error) string {
	var ce *client.Error
	if errors.As(err, &ce) || errors.Is(err, client.ErrUnauthenticated) {
		return client.UserMessage(err)
	}
	return err.Error()
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func gradeColumn(res status.Resolution) string {
	switch res.Status {
	case status.Graded:
		return res.Grade
	case status.Pending:
		return "pending"
	case status.NotYetGraded:
		return "not yet graded"
	case status.Closed:
		return "closed"
	default:
		return "-"
	}
}

func renderEstablishments(w io.Writer, details []service.Detail) error {
	if len(details) == 0 {
		_, err := fmt.Fprintln(w, "No restaurants found.")
		return err
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "CAMIS\tNAME\tGRADE\tCUISINE\tADDRESS")
	for _, d := range details {
		e := d.Establishment
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.CAMIS, e.Name, gradeColumn(d.Resolution), e.Cuisine, e.FullAddress())
	}
	return tw.Flush()
}

func renderDetail(w io.Writer, d service.Detail, favorite bool) error {
	e, res := d.Establishment, d.Resolution
	tw := newTable(w)
	fmt.Fprintf(tw, "Name:\t%s\n", e.Name)
	fmt.Fprintf(tw, "CAMIS:\t%s\n", e.CAMIS)
	fmt.Fprintf(tw, "Address:\t%s\n", e.FullAddress())
	if phone := e.FormattedPhone(); phone != "" {
		fmt.Fprintf(tw, "Phone:\t%s\n", phone)
	}
	if e.Cuisine != "" {
		fmt.Fprintf(tw, "Cuisine:\t%s\n", e.Cuisine)
	}
	fmt.Fprintf(tw, "Status:\t%s\n", statusLine(res))
	if res.Since != "" {
		fmt.Fprintf(tw, "Updated:\t%s\n", res.Since)
	}
	if favorite {
		fmt.Fprintln(tw, "Favorite:\tyes")
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(e.Inspections) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	tw = newTable(w)
	fmt.Fprintln(tw, "DATE\tGRADE\tTYPE\tVIOLATIONS")
	for _, insp := range e.Inspections {
		critical := ""
		if insp.HasCriticalViolations() {
			critical = " (critical)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d%s\n", insp.Date, insp.DisplayGradeText(), insp.InspectionType, len(insp.Violations), critical)
	}
	return tw.Flush()
}

func statusLine(res status.Resolution) string {
	switch res.Status {
	case status.Graded:
		return "Grade " + res.Grade
	case status.Pending:
		return "Grade Pending"
	case status.NotYetGraded:
		return "Not Yet Graded"
	case status.Closed:
		return "Closed"
	default:
		return "Not Graded"
	}
}

func renderActivity(w io.Writer, a service.Activity) error {
	sections := []struct {
		title   string
		details []service.Detail
	}{
		{"Recently graded", a.Graded},
		{"Recently closed", a.Closed},
		{"Recently re-opened", a.Reopened},
	}
	for i, s := range sections {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s (%d)\n", s.title, len(s.details))
		tw := newTable(w)
		for _, d := range s.details {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", d.Establishment.CAMIS, d.Establishment.Name, d.Resolution.Since)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func renderRecentSearches(w io.Writer, list []models.RecentSearch) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(w, "No recent searches.")
		return err
	}
	tw := newTable(w)
	for _, r := range list {
		fmt.Fprintf(tw, "%s\t%s\n", r.Display, r.CreatedAt.Format("Jan 2, 2006"))
	}
	return tw.Flush()
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
