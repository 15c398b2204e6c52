// Package academics содержит учебные данные ученика и чистые функции
// статистики поверх них. Внешних зависимостей нет.
package academics

import (
	"fmt"
	"strings"
	"time"

	"github.com/jkcollege/school-portal/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT
// ══════════════════════════════════════════════════════════════════════════════

// Student - строка таблицы students, связанная с профилем.
type Student struct {
	ID            string    `json:"id"`
	ProfileID     string    `json:"profile_id,omitempty"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	RollNumber    string    `json:"roll_number"`
	ClassName     string    `json:"class_name"`
	Section       string    `json:"section"`
	DateOfBirth   string    `json:"date_of_birth,omitempty"`
	Gender        string    `json:"gender,omitempty"`
	Email         string    `json:"email,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	GuardianName  string    `json:"guardian_name,omitempty"`
	GuardianPhone string    `json:"guardian_phone,omitempty"`
	Address       string    `json:"address,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// FullName возвращает "first last".
func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// ══════════════════════════════════════════════════════════════════════════════
// RESULTS
// ══════════════════════════════════════════════════════════════════════════════

// ResultEntry - оценка по одному предмету внутри экзамена.
type ResultEntry struct {
	SubjectID     string  `json:"subjectId"`
	SubjectName   string  `json:"subjectName"`
	MarksObtained float64 `json:"marksObtained"`
	MaxMarks      float64 `json:"maxMarks"`
}

// Percentage возвращает процент по предмету. MaxMarks <= 0 даёт 0.
func (e ResultEntry) Percentage() float64 {
	if e.MaxMarks <= 0 {
		return 0
	}
	return finite(e.MarksObtained * 100 / e.MaxMarks)
}

// StudentResult - результат одного экзамена.
type StudentResult struct {
	ID            string        `json:"id"`
	StudentID     string        `json:"student_id"`
	ExamName      string        `json:"exam_name"`
	Entries       []ResultEntry `json:"entries"`
	TotalMarks    float64       `json:"total_marks"`
	TotalMaxMarks float64       `json:"total_max_marks"`
	Percentage    float64       `json:"percentage"`
	Grade         Grade         `json:"grade"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Validate проверяет оценки. Пустой список предметов допустим.
func (r StudentResult) Validate() error {
	for i, e := range r.Entries {
		if e.MarksObtained < 0 || e.MaxMarks < 0 || e.MarksObtained > e.MaxMarks {
			return shared.WrapError("academics", "Validate", shared.ErrInvalidInput,
				fmt.Sprintf("entry %d (%s): %v/%v", i, e.SubjectName, e.MarksObtained, e.MaxMarks),
				shared.ErrInvalidMarks)
		}
	}
	return nil
}

// RecomputeTotals пересчитывает итоги, процент и оценку из предметов.
// Нужен для записей, созданных локально; данные с сервера не трогаются.
func (r *StudentResult) RecomputeTotals() {
	var total, outOf float64
	for _, e := range r.Entries {
		total += e.MarksObtained
		outOf += e.MaxMarks
	}
	r.TotalMarks = total
	r.TotalMaxMarks = outOf
	if outOf > 0 {
		r.Percentage = Round1(total * 100 / outOf)
	} else {
		r.Percentage = 0
	}
	r.Grade = CalculateGrade(r.Percentage)
}

// EffectiveGrade возвращает сохранённую оценку или вычисляет её по проценту.
func (r StudentResult) EffectiveGrade() Grade {
	if r.Grade != "" {
		return r.Grade
	}
	return CalculateGrade(r.Percentage)
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE
// ══════════════════════════════════════════════════════════════════════════════

// AttendanceRecord - снимок посещаемости. Present, absent и late -
// непересекающиеся корзины: present + absent + late <= total.
type AttendanceRecord struct {
	TotalDays   int     `json:"total_days"`
	PresentDays int     `json:"present_days"`
	AbsentDays  int     `json:"absent_days"`
	LateDays    int     `json:"late_days"`
	Percentage  float64 `json:"percentage"`
}

// Validate проверяет инварианты снимка.
func (a AttendanceRecord) Validate() error {
	if a.TotalDays < 0 || a.PresentDays < 0 || a.AbsentDays < 0 || a.LateDays < 0 {
		return shared.NewDomainError("academics", "ValidateAttendance", shared.ErrInvalidInput, "day counts cannot be negative")
	}
	if a.PresentDays+a.AbsentDays+a.LateDays > a.TotalDays {
		return shared.NewDomainError("academics", "ValidateAttendance", shared.ErrInvalidInput,
			fmt.Sprintf("present %d + absent %d + late %d exceeds total %d", a.PresentDays, a.AbsentDays, a.LateDays, a.TotalDays))
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EXAMS & ANNOUNCEMENTS
// ══════════════════════════════════════════════════════════════════════════════

// UpcomingExam - запланированный экзамен.
type UpcomingExam struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Date    time.Time `json:"date"`
	Subject string    `json:"subject"`
}

// AnnouncementType - вид объявления.
type AnnouncementType string

const (
	AnnouncementEvent  AnnouncementType = "event"
	AnnouncementResult AnnouncementType = "result"
	AnnouncementNotice AnnouncementType = "notice"
)

// AnnouncementStatus вычисляется относительно текущего времени.
type AnnouncementStatus string

const (
	StatusUpcoming  AnnouncementStatus = "upcoming"
	StatusCompleted AnnouncementStatus = "completed"
)

// Announcement - объявление школы.
type Announcement struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Date        time.Time        `json:"date"`
	Type        AnnouncementType `json:"type"`
}

// StatusAt возвращает upcoming, если дата строго позже now.
func (a Announcement) StatusAt(now time.Time) AnnouncementStatus {
	if a.Date.After(now) {
		return StatusUpcoming
	}
	return StatusCompleted
}
