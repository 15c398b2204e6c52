// Package attendance is the teacher's daily register: the class roster
// for today and the command that saves it.
package attendance

import (
	"context"
	"time"

	"github.com/jkcollege/school-portal/internal/domain/academics"
	"github.com/jkcollege/school-portal/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET CLASS ROSTER QUERY
// ══════════════════════════════════════════════════════════════════════════════

// StudentSource lists every student row.
type StudentSource interface {
	ListStudents(ctx context.Context) ([]academics.Student, error)
}

// GetClassRosterQuery asks for the teacher's class on a day.
type GetClassRosterQuery struct {
	TeacherID string

	// Date is YYYY-MM-DD. Empty means today in the school timezone.
	Date string
}

// RosterEntry is one student with the mark already saved, if any.
type RosterEntry struct {
	Student academics.Student          `json:"student"`
	Status  academics.AttendanceStatus `json:"status,omitempty"`
}

// RosterResult is the register as the teacher sees it.
type RosterResult struct {
	Assignment academics.TeacherAssignment `json:"assignment"`
	Date       string                      `json:"date"`
	Entries    []RosterEntry               `json:"entries"`
	Marked     int                         `json:"marked"`
	Unmarked   int                         `json:"unmarked"`
}

// Complete reports whether every student has a mark.
func (r *RosterResult) Complete() bool {
	return r.Unmarked == 0
}

// GetClassRosterHandler loads the roster with today's marks.
type GetClassRosterHandler struct {
	students StudentSource
	register academics.AttendanceRegister
	now      func() time.Time
}

// NewGetClassRosterHandler creates the handler.
func NewGetClassRosterHandler(students StudentSource, register academics.AttendanceRegister) *GetClassRosterHandler {
	return &GetClassRosterHandler{students: students, register: register, now: timeutil.Now}
}

// Handle runs the query. The caller checks the teacher role.
func (h *GetClassRosterHandler) Handle(ctx context.Context, q GetClassRosterQuery) (*RosterResult, error) {
	assignment, err := h.register.GetTeacherAssignment(ctx, q.TeacherID)
	if err != nil {
		return nil, err
	}

	students, err := h.students.ListStudents(ctx)
	if err != nil {
		return nil, err
	}

	date := q.Date
	if date == "" {
		date = timeutil.FormatDateStr(h.now())
	}

	saved, err := h.register.ListDailyAttendance(ctx, date, q.TeacherID)
	if err != nil {
		return nil, err
	}
	marks := make(map[string]academics.AttendanceStatus, len(saved))
	for _, rec := range saved {
		marks[rec.StudentID] = rec.Status
	}

	roster := academics.ClassRoster(students, *assignment)
	result := &RosterResult{
		Assignment: *assignment,
		Date:       date,
		Entries:    make([]RosterEntry, 0, len(roster)),
	}
	for _, s := range roster {
		status := marks[s.ID]
		if status.IsValid() {
			result.Marked++
		} else {
			status = ""
			result.Unmarked++
		}
		result.Entries = append(result.Entries, RosterEntry{Student: s, Status: status})
	}
	return result, nil
}
