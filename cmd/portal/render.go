package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/jkcollege/school-portal/config"
	"github.com/jkcollege/school-portal/internal/application/attendance"
	"github.com/jkcollege/school-portal/internal/application/auth"
	"github.com/jkcollege/school-portal/internal/application/query"
	"github.com/jkcollege/school-portal/internal/domain/academics"
	"github.com/jkcollege/school-portal/internal/domain/session"
	"github.com/jkcollege/school-portal/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// OUTPUT
// ══════════════════════════════════════════════════════════════════════════════

// output печатает v текстом или JSON (флаг -json).
func output[T any](e *env, render func(io.Writer, T) error, v T) error {
	if e.json {
		enc := json.NewEncoder(e.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return render(e.stdout, v)
}

func renderSession(w io.Writer, s session.Session) error {
	if !s.Authenticated {
		onboarding := "not seen"
		if s.OnboardingSeen {
			onboarding = "seen"
		}
		_, err := fmt.Fprintf(w, "Signed out (onboarding %s)\nNext screen: %s\n", onboarding, s.Destination())
		return err
	}
	_, err := fmt.Fprintf(w, "Signed in as %s (%s)\nNext screen: %s\n", s.Role.Label(), s.UserID, s.Destination())
	return err
}

func renderFeatures(w io.Writer, features map[string]config.Feature) error {
	names := make([]string, 0, len(features))
	for name := range features {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FEATURE\tSTATE\tROLLOUT\tROLES")
	for _, name := range names {
		f := features[name]
		state := "off"
		if f.Enabled {
			state = "on"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d%%\t%s\n", name, state, f.RolloutPercent, orDash(strings.Join(f.TargetRoles, ", ")))
	}
	return tw.Flush()
}

func renderSignUp(w io.Writer, r *auth.SignUpResult) error {
	if r.ConfirmationRequired {
		_, err := fmt.Fprintf(w, "Account created for %s. Check your email to confirm it, then sign in.\n", r.Email)
		return err
	}
	_, err := fmt.Fprintf(w, "Account created for %s. You can sign in now.\n", r.Email)
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// Dashboard
// ─────────────────────────────────────────────────────────────────────────────

func renderDashboard(w io.Writer, d *query.DashboardResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "%s\tClass %s %s\tRoll %s\n", d.DisplayName, d.Student.ClassName, d.Student.Section, orDash(d.Student.RollNumber))
	fmt.Fprintln(tw)

	fmt.Fprintf(tw, "Average\t%s\n", percent(d.Overall.AvgPercentage))
	fmt.Fprintf(tw, "Best\t%s (%s)\n", percent(d.Overall.BestPercentage), d.Overall.BestGrade)
	fmt.Fprintf(tw, "Exams\t%d\n", d.Overall.TotalExams)
	if d.Attendance != nil {
		fmt.Fprintf(tw, "Attendance\t%s\t%d/%d days\n", percent(d.Attendance.Percentage), d.Attendance.PresentDays, d.Attendance.TotalDays)
	}
	if d.Insights != nil {
		if d.Insights.Strongest != nil {
			fmt.Fprintf(tw, "Strongest\t%s\t%s\n", d.Insights.Strongest.Name, percent(d.Insights.Strongest.Average))
		}
		if d.Insights.Weakest != nil {
			fmt.Fprintf(tw, "Needs work\t%s\t%s\n", d.Insights.Weakest.Name, percent(d.Insights.Weakest.Average))
		}
	}

	if len(d.Results) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "RESULT\tEXAM\tSCORE\tGRADE")
		for _, r := range d.Results {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.ExamName, percent(r.Percentage), r.EffectiveGrade())
		}
	}

	if len(d.Subjects) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "SUBJECT\tAVERAGE\tGRADE")
		for _, s := range d.Subjects {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, percent(s.Average), academics.CalculateGrade(s.Average))
		}
	}

	if len(d.UpcomingExams) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "DATE\tWHEN\tEXAM\tSUBJECT")
		now := timeutil.Now()
		for _, e := range d.UpcomingExams {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", timeutil.FormatDate(e.Date), timeutil.FormatRelative(e.Date, now), e.Name, orDash(e.Subject))
		}
	}

	if len(d.Announcements) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "DATE\tTYPE\tSTATUS\tTITLE")
		for _, a := range d.Announcements {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", timeutil.FormatDate(a.Date), a.Type, a.Status, a.Title)
		}
	}

	return tw.Flush()
}

func renderResult(w io.Writer, r *query.ResultDetail) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "%s\t%s\t%s (%s)\n", r.ExamName, percent(r.Percentage), r.EffectiveGrade, r.Band)
	fmt.Fprintf(tw, "Total\t%s / %s\n", number(r.TotalMarks), number(r.TotalMaxMarks))
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "SUBJECT\tMARKS\tSCORE\tGRADE")
	for _, s := range r.Subjects {
		fmt.Fprintf(tw, "%s\t%s / %s\t%s\t%s\n", s.Name, number(s.Marks), number(s.MaxMarks), percent(s.Percentage), s.Grade)
	}
	return tw.Flush()
}

func renderClassStats(w io.Writer, c *query.ClassStatsResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "Students\t%d\n", c.TotalStudents)
	fmt.Fprintf(tw, "Results\t%d\n", c.TotalResults)
	fmt.Fprintf(tw, "School average\t%s\n", percent(c.School.AvgPercentage))
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "CLASS\tSECTIONS\tSTUDENTS\tAVERAGE")
	for _, cl := range c.Classes {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", cl.ClassName, orDash(strings.Join(cl.Sections, ", ")), cl.StudentCount, percent(cl.AvgPercentage))
	}
	return tw.Flush()
}

func renderRoster(w io.Writer, r *attendance.RosterResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "Class\t%s %s\n", r.Assignment.ClassName, r.Assignment.Section)
	fmt.Fprintf(tw, "Date\t%s\n", r.Date)
	fmt.Fprintf(tw, "Marked\t%d of %d\n", r.Marked, r.Marked+r.Unmarked)
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "ID\tROLL\tNAME\tSTATUS")
	for _, e := range r.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Student.ID, orDash(e.Student.RollNumber), orDash(e.Student.FullName()), orDash(string(e.Status)))
	}
	return tw.Flush()
}

func renderMarked(w io.Writer, r *attendance.MarkAttendanceResult) error {
	_, err := fmt.Fprintf(w, "Attendance saved for %d students on %s\n", r.Saved, r.Date)
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// Formatting
// ─────────────────────────────────────────────────────────────────────────────

func percent(p float64) string {
	return fmt.Sprintf("%.1f%%", academics.Round1(p))
}

// number drops a trailing ".0".
func number(f float64) string {
	return strings.TrimSuffix(fmt.Sprintf("%.1f", academics.Round1(f)), ".0")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
