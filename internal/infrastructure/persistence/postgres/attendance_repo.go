package postgres

import (
	"context"

	"github.com/jkcollege/school-portal/internal/domain/academics"
	"github.com/jkcollege/school-portal/internal/domain/shared"
	"github.com/jkcollege/school-portal/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// DAILY ATTENDANCE REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// AttendanceRegisterRepository implements academics.AttendanceRegister for
// PostgreSQL.
type AttendanceRegisterRepository struct {
	conn    *Connection
	retrier *retry.Retrier
}

var _ academics.AttendanceRegister = (*AttendanceRegisterRepository)(nil)

// NewAttendanceRegisterRepository creates a new AttendanceRegisterRepository.
func NewAttendanceRegisterRepository(conn *Connection) *AttendanceRegisterRepository {
	return &AttendanceRegisterRepository{conn: conn, retrier: retry.DatabaseRetrier()}
}

// GetTeacherAssignment returns the class and section of a teacher.
func (r *AttendanceRegisterRepository) GetTeacherAssignment(ctx context.Context, profileID string) (*academics.TeacherAssignment, error) {
	const query = `
		SELECT COALESCE(class_assigned, ''), COALESCE(section_assigned, '')
		FROM teachers WHERE profile_id = $1 LIMIT 1
	`

	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	return retry.DoWithData(ctx, r.retrier, func(ctx context.Context) (*academics.TeacherAssignment, error) {
		a := academics.TeacherAssignment{ProfileID: profileID}
		err := r.conn.QueryRow(ctx, query, profileID).Scan(&a.ClassName, &a.Section)
		if IsNoRows(err) || (err == nil && a.ClassName == "") {
			return nil, shared.ErrNoClassAssigned
		}
		if err != nil {
			return nil, mapError("GetTeacherAssignment", err)
		}
		return &a, nil
	})
}

// ListDailyAttendance returns the marks a teacher saved on date.
func (r *AttendanceRegisterRepository) ListDailyAttendance(ctx context.Context, date, markedBy string) ([]academics.DailyAttendance, error) {
	const query = `
		SELECT student_id::text, date::text, status, marked_by::text
		FROM daily_attendance
		WHERE date = $1::date AND marked_by = $2
	`

	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	return retry.DoWithData(ctx, r.retrier, func(ctx context.Context) ([]academics.DailyAttendance, error) {
		rows, err := r.conn.Query(ctx, query, date, markedBy)
		if err != nil {
			return nil, mapError("ListDailyAttendance", err)
		}
		defer rows.Close()

		var out []academics.DailyAttendance
		for rows.Next() {
			var (
				rec    academics.DailyAttendance
				status string
			)
			if err := rows.Scan(&rec.StudentID, &rec.Date, &status, &rec.MarkedBy); err != nil {
				return nil, mapError("ListDailyAttendance", err)
			}
			rec.Status = academics.AttendanceStatus(status)
			out = append(out, rec)
		}
		return out, mapError("ListDailyAttendance", rows.Err())
	})
}

const upsertDailyAttendance = `
	INSERT INTO daily_attendance (student_id, date, status, marked_by)
	SELECT s, d::date, st, m
	FROM unnest($1::text[], $2::text[], $3::text[], $4::text[]) AS t(s, d, st, m)
	ON CONFLICT (student_id, date)
	DO UPDATE SET status = EXCLUDED.status, marked_by = EXCLUDED.marked_by
`

// upsertColumns splits records into the column arrays the upsert unnests.
func upsertColumns(records []academics.DailyAttendance) (students, dates, statuses, markers []string) {
	students = make([]string, len(records))
	dates = make([]string, len(records))
	statuses = make([]string, len(records))
	markers = make([]string, len(records))
	for i, rec := range records {
		students[i] = rec.StudentID
		dates[i] = rec.Date
		statuses[i] = string(rec.Status)
		markers[i] = rec.MarkedBy
	}
	return students, dates, statuses, markers
}

// UpsertDailyAttendance writes the marks in one statement, replacing any
// row with the same (student_id, date).
func (r *AttendanceRegisterRepository) UpsertDailyAttendance(ctx context.Context, records []academics.DailyAttendance) error {
	if len(records) == 0 {
		return nil
	}
	students, dates, statuses, markers := upsertColumns(records)

	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	return r.retrier.Do(ctx, func(ctx context.Context) error {
		_, err := r.conn.Exec(ctx, upsertDailyAttendance, students, dates, statuses, markers)
		return mapError("UpsertDailyAttendance", err)
	})
}
