package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jkcollege/school-portal/internal/domain/academics"
	"github.com/jkcollege/school-portal/internal/domain/shared"
	"github.com/jkcollege/school-portal/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACADEMICS REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AcademicsRepository implements academics.Repository for PostgreSQL.
type AcademicsRepository struct {
	conn    *Connection
	retrier *retry.Retrier
}

var _ academics.Repository = (*AcademicsRepository)(nil)

// NewAcademicsRepository creates a new AcademicsRepository.
func NewAcademicsRepository(conn *Connection) *AcademicsRepository {
	return &AcademicsRepository{conn: conn, retrier: retry.DatabaseRetrier()}
}

// ─────────────────────────────────────────────────────────────────────────────
// Students
// ─────────────────────────────────────────────────────────────────────────────

const studentColumns = `
	id::text, COALESCE(profile_id::text, ''),
	COALESCE(first_name, ''), COALESCE(last_name, ''), COALESCE(roll_number, ''),
	COALESCE(class_name, ''), COALESCE(section, ''), COALESCE(date_of_birth::text, ''),
	COALESCE(gender, ''), COALESCE(email, ''), COALESCE(phone, ''),
	COALESCE(guardian_name, ''), COALESCE(guardian_phone, ''), COALESCE(address, ''),
	created_at, updated_at
`

func scanStudent(row pgx.Row) (academics.Student, error) {
	var (
		s                    academics.Student
		createdAt, updatedAt *time.Time
	)
	err := row.Scan(
		&s.ID, &s.ProfileID,
		&s.FirstName, &s.LastName, &s.RollNumber,
		&s.ClassName, &s.Section, &s.DateOfBirth,
		&s.Gender, &s.Email, &s.Phone,
		&s.GuardianName, &s.GuardianPhone, &s.Address,
		&createdAt, &updatedAt,
	)
	if createdAt != nil {
		s.CreatedAt = *createdAt
	}
	if updatedAt != nil {
		s.UpdatedAt = *updatedAt
	}
	return s, err
}

// GetStudentByProfile returns the student linked to profileID.
func (r *AcademicsRepository) GetStudentByProfile(ctx context.Context, profileID string) (*academics.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE profile_id = $1 LIMIT 1`

	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	return retry.DoWithData(ctx, r.retrier, func(ctx context.Context) (*academics.Student, error) {
		s, err := scanStudent(r.conn.QueryRow(ctx, query, profileID))
		if IsNoRows(err) {
			return nil, shared.ErrStudentNotFound
		}
		if err != nil {
			return nil, mapError("GetStudentByProfile", err)
		}
		return &s, nil
	})
}

// ListStudents returns all students.
func (r *AcademicsRepository) ListStudents(ctx context.Context) ([]academics.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students`

	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	return retry.DoWithData(ctx, r.retrier, func(ctx context.Context) ([]academics.Student, error) {
		rows, err := r.conn.Query(ctx, query)
		if err != nil {
			return nil, mapError("ListStudents", err)
		}
		defer rows.Close()

		var out []academics.Student
		for rows.Next() {
			s, err := scanStudent(rows)
			if err != nil {
				return nil, mapError("ListStudents", err)
			}
			out = append(out, s)
		}
		return out, mapError("ListStudents", rows.Err())
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Results
// ─────────────────────────────────────────────────────────────────────────────

// Numeric columns may be text in older schemas; both cast through float8.
const resultColumns = `
	id::text, COALESCE(student_id::text, ''), COALESCE(exam_name, ''),
	COALESCE(entries, '[]'::jsonb),
	COALESCE(total_marks::float8, 0), COALESCE(total_max_marks::float8, 0),
	COALESCE(NULLIF(percentage::text, '')::float8, 0),
	COALESCE(grade, ''), created_at
`

// entryRow is one element of results.entries.
type entryRow struct {
	SubjectID     string      `json:"subjectId"`
	SubjectName   string      `json:"subjectName"`
	MarksObtained json.Number `json:"marksObtained"`
	MaxMarks      json.Number `json:"maxMarks"`
}

func numberOrZero(n json.Number) float64 {
	f, err := n.Float64()
	if err != nil {
		return 0
	}
	return f
}

// decodeEntries parses the jsonb entries column. null and [] both give
// an empty slice.
func decodeEntries(raw []byte) ([]academics.ResultEntry, error) {
	var rows []entryRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode entries: %w", err)
	}
	out := make([]academics.ResultEntry, 0, len(rows))
	for _, e := range rows {
		out = append(out, academics.ResultEntry{
			SubjectID:     e.SubjectID,
			SubjectName:   e.SubjectName,
			MarksObtained: numberOrZero(e.MarksObtained),
			MaxMarks:      numberOrZero(e.MaxMarks),
		})
	}
	return out, nil
}

func scanResult(row pgx.Row) (academics.StudentResult, error) {
	var (
		res       academics.StudentResult
		entries   []byte
		grade     string
		createdAt *time.Time
	)
	if err := row.Scan(
		&res.ID, &res.StudentID, &res.ExamName,
		&entries,
		&res.TotalMarks, &res.TotalMaxMarks, &res.Percentage,
		&grade, &createdAt,
	); err != nil {
		return res, err
	}

	decoded, err := decodeEntries(entries)
	if err != nil {
		return res, err
	}
	res.Entries = decoded
	res.Grade = academics.Grade(strings.TrimSpace(grade))
	if createdAt != nil {
		res.CreatedAt = *createdAt
	}
	return res, nil
}

func (r *AcademicsRepository) listResults(ctx context.Context, op, query string, args ...any) ([]academics.StudentResult, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	return retry.DoWithData(ctx, r.retrier, func(ctx context.Context) ([]academics.StudentResult, error) {
		rows, err := r.conn.Query(ctx, query, args...)
		if err != nil {
			return nil, mapError(op, err)
		}
		defer rows.Close()

		var out []academics.StudentResult
		for rows.Next() {
			res, err := scanResult(rows)
			if err != nil {
				return nil, mapError(op, err)
			}
			out = append(out, res)
		}
		return out, mapError(op, rows.Err())
	})
}

// ListResultsByStudent returns a student's results in storage order.
func (r *AcademicsRepository) ListResultsByStudent(ctx context.Context, studentID string) ([]academics.StudentResult, error) {
	return r.listResults(ctx, "ListResultsByStudent",
		`SELECT `+resultColumns+` FROM results WHERE student_id = $1`, studentID)
}

// ListResults returns all results.
func (r *AcademicsRepository) ListResults(ctx context.Context) ([]academics.StudentResult, error) {
	return r.listResults(ctx, "ListResults", `SELECT `+resultColumns+` FROM results`)
}

// ─────────────────────────────────────────────────────────────────────────────
// Attendance, exams, announcements
// ─────────────────────────────────────────────────────────────────────────────

// GetAttendance returns the attendance snapshot for a student.
func (r *AcademicsRepository) GetAttendance(ctx context.Context, studentID string) (*academics.AttendanceRecord, error) {
	const query = `
		SELECT COALESCE(total_days, 0), COALESCE(present_days, 0), COALESCE(absent_days, 0),
		       COALESCE(late_days, 0), COALESCE(NULLIF(percentage::text, '')::float8, 0)
		FROM attendance
		WHERE student_id = $1
		LIMIT 1
	`

	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	return retry.DoWithData(ctx, r.retrier, func(ctx context.Context) (*academics.AttendanceRecord, error) {
		var a academics.AttendanceRecord
		err := r.conn.QueryRow(ctx, query, studentID).Scan(&a.TotalDays, &a.PresentDays, &a.AbsentDays, &a.LateDays, &a.Percentage)
		if IsNoRows(err) {
			return nil, shared.ErrAttendanceNotFound
		}
		if err != nil {
			return nil, mapError("GetAttendance", err)
		}
		return &a, nil
	})
}

// ListUpcomingExams returns the exam schedule.
func (r *AcademicsRepository) ListUpcomingExams(ctx context.Context) ([]academics.UpcomingExam, error) {
	const query = `
		SELECT id::text, COALESCE(name, ''), exam_date, COALESCE(subject, '')
		FROM exams
	`

	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	return retry.DoWithData(ctx, r.retrier, func(ctx context.Context) ([]academics.UpcomingExam, error) {
		rows, err := r.conn.Query(ctx, query)
		if err != nil {
			return nil, mapError("ListUpcomingExams", err)
		}
		defer rows.Close()

		var out []academics.UpcomingExam
		for rows.Next() {
			var (
				e    academics.UpcomingExam
				date *time.Time
			)
			if err := rows.Scan(&e.ID, &e.Name, &date, &e.Subject); err != nil {
				return nil, mapError("ListUpcomingExams", err)
			}
			if date != nil {
				e.Date = *date
			}
			out = append(out, e)
		}
		return out, mapError("ListUpcomingExams", rows.Err())
	})
}

// ListAnnouncements returns school announcements. Unknown types read as notice.
func (r *AcademicsRepository) ListAnnouncements(ctx context.Context) ([]academics.Announcement, error) {
	const query = `
		SELECT id::text, COALESCE(title, ''), COALESCE(description, ''), announcement_date, COALESCE(type, '')
		FROM announcements
	`

	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	return retry.DoWithData(ctx, r.retrier, func(ctx context.Context) ([]academics.Announcement, error) {
		rows, err := r.conn.Query(ctx, query)
		if err != nil {
			return nil, mapError("ListAnnouncements", err)
		}
		defer rows.Close()

		var out []academics.Announcement
		for rows.Next() {
			var (
				a    academics.Announcement
				date *time.Time
				typ  string
			)
			if err := rows.Scan(&a.ID, &a.Title, &a.Description, &date, &typ); err != nil {
				return nil, mapError("ListAnnouncements", err)
			}
			if date != nil {
				a.Date = *date
			}
			a.Type = announcementType(typ)
			out = append(out, a)
		}
		return out, mapError("ListAnnouncements", rows.Err())
	})
}

func announcementType(s string) academics.AnnouncementType {
	switch t := academics.AnnouncementType(strings.ToLower(strings.TrimSpace(s))); t {
	case academics.AnnouncementEvent, academics.AnnouncementResult, academics.AnnouncementNotice:
		return t
	default:
		return academics.AnnouncementNotice
	}
}
