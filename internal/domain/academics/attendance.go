package academics

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jkcollege/school-portal/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DAILY ATTENDANCE
// Журнал учителя: одна отметка на ученика в день, ключ (student_id, date).
// ══════════════════════════════════════════════════════════════════════════════

// AttendanceStatus - отметка ученика за день.
type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "present"
	StatusAbsent  AttendanceStatus = "absent"
	StatusLate    AttendanceStatus = "late"
)

// IsValid проверяет, что статус из допустимого набора.
func (s AttendanceStatus) IsValid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate:
		return true
	default:
		return false
	}
}

// ParseAttendanceStatus разбирает статус без учёта регистра.
func ParseAttendanceStatus(raw string) (AttendanceStatus, error) {
	s := AttendanceStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", shared.NewDomainError("academics", "ParseAttendanceStatus", shared.ErrValidation,
			fmt.Sprintf("unknown attendance status %q, use present, absent or late", raw))
	}
	return s, nil
}

// TeacherAssignment - строка teachers: класс и секция учителя.
type TeacherAssignment struct {
	ProfileID string `json:"profile_id"`
	ClassName string `json:"class_name"`
	Section   string `json:"section"`
}

// DailyAttendance - строка daily_attendance. Date в формате YYYY-MM-DD.
type DailyAttendance struct {
	StudentID string           `json:"student_id"`
	Date      string           `json:"date"`
	Status    AttendanceStatus `json:"status"`
	MarkedBy  string           `json:"marked_by"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Rules
// ─────────────────────────────────────────────────────────────────────────────

// ClassRoster отбирает учеников класса и секции учителя и сортирует по
// имени без учёта регистра. Вход не меняется.
func ClassRoster(students []Student, a TeacherAssignment) []Student {
	out := make([]Student, 0)
	for _, s := range students {
		if s.ClassName == a.ClassName && s.Section == a.Section {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].FirstName) < strings.ToLower(out[j].FirstName)
	})
	return out
}

// Unmarked возвращает учеников списка без допустимой отметки.
func Unmarked(roster []Student, marks map[string]AttendanceStatus) []Student {
	var out []Student
	for _, s := range roster {
		if !marks[s.ID].IsValid() {
			out = append(out, s)
		}
	}
	return out
}

// FillPresent отмечает присутствующими всех, у кого отметки ещё нет.
// Возвращает новую карту.
func FillPresent(roster []Student, marks map[string]AttendanceStatus) map[string]AttendanceStatus {
	out := make(map[string]AttendanceStatus, len(roster))
	for k, v := range marks {
		out[k] = v
	}
	for _, s := range roster {
		if !out[s.ID].IsValid() {
			out[s.ID] = StatusPresent
		}
	}
	return out
}

// CheckComplete требует отметку для каждого ученика списка.
func CheckComplete(roster []Student, marks map[string]AttendanceStatus) error {
	if n := len(Unmarked(roster, marks)); n > 0 {
		return shared.NewDomainError("academics", "CheckComplete", shared.ErrIncomplete,
			fmt.Sprintf("Please mark attendance for all students. %d remaining.", n))
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Repository
// ─────────────────────────────────────────────────────────────────────────────

// AttendanceRegister - журнал посещаемости учителя.
type AttendanceRegister interface {
	// GetTeacherAssignment возвращает shared.ErrNoClassAssigned, если
	// учитель не привязан к классу.
	GetTeacherAssignment(ctx context.Context, profileID string) (*TeacherAssignment, error)

	// ListDailyAttendance возвращает отметки учителя за день.
	ListDailyAttendance(ctx context.Context, date, markedBy string) ([]DailyAttendance, error)

	// UpsertDailyAttendance записывает отметки; повтор за тот же день
	// перезаписывает статус.
	UpsertDailyAttendance(ctx context.Context, records []DailyAttendance) error
}
