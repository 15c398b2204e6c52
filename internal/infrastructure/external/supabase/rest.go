package supabase

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jkcollege/school-portal/internal/domain/academics"
	"github.com/jkcollege/school-portal/internal/domain/session"
	"github.com/jkcollege/school-portal/internal/domain/shared"
)

const restPath = "/rest/v1/"

// Table names.
const (
	TableProfiles      = "profiles"
	TableStudents      = "students"
	TableResults       = "results"
	TableAttendance    = "attendance"
	TableExams         = "exams"
	TableAnnouncements = "announcements"
	TableTeachers      = "teachers"
	TableDailyRegister = "daily_attendance"
)

func eq(v string) string { return "eq." + v }

// selectRows runs GET /rest/v1/<table>?select=*&<filters>.
func (c *Client) selectRows(ctx context.Context, op, table string, filters url.Values, out any) error {
	q := url.Values{"select": {"*"}}
	for k, vs := range filters {
		q[k] = vs
	}
	return c.doRequest(ctx, op, request{
		method: http.MethodGet,
		path:   restPath + table,
		query:  q,
	}, out)
}

// insertRow runs POST /rest/v1/<table> without reading the row back.
func (c *Client) insertRow(ctx context.Context, op, table string, row any) error {
	return c.doRequest(ctx, op, request{
		method: http.MethodPost,
		path:   restPath + table,
		body:   row,
		header: http.Header{"Prefer": {"return=minimal"}},
	}, nil)
}

// upsertRows runs POST /rest/v1/<table>?on_conflict=<columns> and merges
// rows that collide on those columns.
func (c *Client) upsertRows(ctx context.Context, op, table, onConflict string, rows any) error {
	return c.doRequest(ctx, op, request{
		method: http.MethodPost,
		path:   restPath + table,
		query:  url.Values{"on_conflict": {onConflict}},
		body:   rows,
		header: http.Header{"Prefer": {"resolution=merge-duplicates,return=minimal"}},
	}, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILES
// ══════════════════════════════════════════════════════════════════════════════

// ProfileStore reads and writes the profiles table.
type ProfileStore struct {
	client *Client
}

var _ session.ProfileRepository = (*ProfileStore)(nil)

// Profiles returns the profiles table accessor.
func (c *Client) Profiles() *ProfileStore {
	return &ProfileStore{client: c}
}

// GetByID returns the profile row for userID.
func (s *ProfileStore) GetByID(ctx context.Context, userID string) (*session.Profile, error) {
	const op = "GetProfile"

	var rows []ProfileDTO
	if err := s.client.selectRows(ctx, op, TableProfiles, url.Values{"id": {eq(userID)}, "limit": {"1"}}, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, shared.NewDomainError("supabase", op, shared.ErrNotFound, "profile not found")
	}
	return s.client.mapper.ProfileFromDTO(&rows[0])
}

// Create inserts a profile row.
func (s *ProfileStore) Create(ctx context.Context, profile *session.Profile) error {
	if profile == nil || profile.ID == "" {
		return shared.NewValidationError("CreateProfile", "profile id is required")
	}
	return s.client.insertRow(ctx, "CreateProfile", TableProfiles, s.client.mapper.ProfileToDTO(profile))
}

// ══════════════════════════════════════════════════════════════════════════════
// ACADEMICS
// ══════════════════════════════════════════════════════════════════════════════

// AcademicsStore reads the school tables. Row-level security on the
// backend limits what the current bearer can see.
type AcademicsStore struct {
	client *Client
}

var _ academics.Repository = (*AcademicsStore)(nil)

// Academics returns the school tables accessor.
func (c *Client) Academics() *AcademicsStore {
	return &AcademicsStore{client: c}
}

// GetStudentByProfile returns the student linked to profileID.
func (s *AcademicsStore) GetStudentByProfile(ctx context.Context, profileID string) (*academics.Student, error) {
	var rows []StudentDTO
	if err := s.client.selectRows(ctx, "GetStudentByProfile", TableStudents,
		url.Values{"profile_id": {eq(profileID)}, "limit": {"1"}}, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, shared.ErrStudentNotFound
	}
	st := s.client.mapper.StudentFromDTO(&rows[0])
	return &st, nil
}

// ListStudents returns every visible student.
func (s *AcademicsStore) ListStudents(ctx context.Context) ([]academics.Student, error) {
	var rows []StudentDTO
	if err := s.client.selectRows(ctx, "ListStudents", TableStudents, nil, &rows); err != nil {
		return nil, err
	}
	return s.client.mapper.StudentsFromDTOs(rows), nil
}

// ListResultsByStudent returns a student's results in storage order.
func (s *AcademicsStore) ListResultsByStudent(ctx context.Context, studentID string) ([]academics.StudentResult, error) {
	var rows []ResultDTO
	if err := s.client.selectRows(ctx, "ListResultsByStudent", TableResults,
		url.Values{"student_id": {eq(studentID)}}, &rows); err != nil {
		return nil, err
	}
	return s.client.mapper.ResultsFromDTOs(rows), nil
}

// ListResults returns every visible result.
func (s *AcademicsStore) ListResults(ctx context.Context) ([]academics.StudentResult, error) {
	var rows []ResultDTO
	if err := s.client.selectRows(ctx, "ListResults", TableResults, nil, &rows); err != nil {
		return nil, err
	}
	return s.client.mapper.ResultsFromDTOs(rows), nil
}

// GetAttendance returns the attendance snapshot for a student.
func (s *AcademicsStore) GetAttendance(ctx context.Context, studentID string) (*academics.AttendanceRecord, error) {
	var rows []AttendanceDTO
	if err := s.client.selectRows(ctx, "GetAttendance", TableAttendance,
		url.Values{"student_id": {eq(studentID)}, "limit": {"1"}}, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, shared.ErrAttendanceNotFound
	}
	rec := s.client.mapper.AttendanceFromDTO(&rows[0])
	return &rec, nil
}

// ListUpcomingExams returns the exam schedule.
func (s *AcademicsStore) ListUpcomingExams(ctx context.Context) ([]academics.UpcomingExam, error) {
	var rows []ExamDTO
	if err := s.client.selectRows(ctx, "ListUpcomingExams", TableExams, nil, &rows); err != nil {
		return nil, err
	}
	return s.client.mapper.ExamsFromDTOs(rows), nil
}

// ListAnnouncements returns school announcements.
func (s *AcademicsStore) ListAnnouncements(ctx context.Context) ([]academics.Announcement, error) {
	var rows []AnnouncementDTO
	if err := s.client.selectRows(ctx, "ListAnnouncements", TableAnnouncements, nil, &rows); err != nil {
		return nil, err
	}
	return s.client.mapper.AnnouncementsFromDTOs(rows), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DAILY ATTENDANCE
// ══════════════════════════════════════════════════════════════════════════════

// AttendanceRegisterStore reads teachers and writes daily_attendance.
type AttendanceRegisterStore struct {
	client *Client
}

var _ academics.AttendanceRegister = (*AttendanceRegisterStore)(nil)

// Attendance returns the daily register accessor.
func (c *Client) Attendance() *AttendanceRegisterStore {
	return &AttendanceRegisterStore{client: c}
}

// GetTeacherAssignment returns the class and section of a teacher.
func (s *AttendanceRegisterStore) GetTeacherAssignment(ctx context.Context, profileID string) (*academics.TeacherAssignment, error) {
	var rows []TeacherDTO
	if err := s.client.selectRows(ctx, "GetTeacherAssignment", TableTeachers,
		url.Values{"profile_id": {eq(profileID)}, "limit": {"1"}}, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 || rows[0].ClassAssigned == "" {
		return nil, shared.ErrNoClassAssigned
	}
	a := s.client.mapper.TeacherFromDTO(&rows[0])
	return &a, nil
}

// ListDailyAttendance returns the marks a teacher saved on date.
func (s *AttendanceRegisterStore) ListDailyAttendance(ctx context.Context, date, markedBy string) ([]academics.DailyAttendance, error) {
	var rows []DailyAttendanceDTO
	if err := s.client.selectRows(ctx, "ListDailyAttendance", TableDailyRegister,
		url.Values{"date": {eq(date)}, "marked_by": {eq(markedBy)}}, &rows); err != nil {
		return nil, err
	}
	return s.client.mapper.DailyAttendanceFromDTOs(rows), nil
}

// UpsertDailyAttendance writes the marks, replacing any row with the same
// (student_id, date).
func (s *AttendanceRegisterStore) UpsertDailyAttendance(ctx context.Context, records []academics.DailyAttendance) error {
	if len(records) == 0 {
		return nil
	}
	return s.client.upsertRows(ctx, "UpsertDailyAttendance", TableDailyRegister, "student_id,date",
		s.client.mapper.DailyAttendanceToDTOs(records))
}
