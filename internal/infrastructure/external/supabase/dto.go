// Package supabase implements the hosted backend client: the GoTrue auth
// API and the PostgREST data API of a Supabase project.
package supabase

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUTH DTOs (GoTrue)
// ══════════════════════════════════════════════════════════════════════════════

// SessionDTO is the token grant response.
type SessionDTO struct {
	AccessToken  string   `json:"access_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
	ExpiresAt    int64    `json:"expires_at,omitempty"`
	RefreshToken string   `json:"refresh_token"`
	User         *UserDTO `json:"user,omitempty"`
}

// UserDTO is an auth user.
type UserDTO struct {
	ID               string          `json:"id"`
	Email            string          `json:"email"`
	Role             string          `json:"role,omitempty"` // GoTrue audience role, not the portal role
	EmailConfirmedAt string          `json:"email_confirmed_at,omitempty"`
	LastSignInAt     string          `json:"last_sign_in_at,omitempty"`
	UserMetadata     UserMetadataDTO `json:"user_metadata"`
	CreatedAt        string          `json:"created_at,omitempty"`
}

// UserMetadataDTO holds the sign-up data payload.
type UserMetadataDTO struct {
	FullName string `json:"full_name,omitempty"`
	Name     string `json:"name,omitempty"` // set by OAuth providers
}

// signUpResponse is either a user (confirmation pending) or a full session.
type signUpResponse struct {
	UserDTO
	AccessToken string   `json:"access_token,omitempty"`
	User        *UserDTO `json:"user,omitempty"`
}

type passwordGrantRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshGrantRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type signUpRequest struct {
	Email    string          `json:"email"`
	Password string          `json:"password"`
	Data     UserMetadataDTO `json:"data"`
}

// AuthErrorDTO covers both GoTrue error shapes: the OAuth-style
// {error, error_description} and the newer {code, error_code, msg}.
type AuthErrorDTO struct {
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
	Code             int    `json:"code,omitempty"`
	ErrorCode        string `json:"error_code,omitempty"`
	Msg              string `json:"msg,omitempty"`
	Message          string `json:"message,omitempty"`
}

// Text returns the most specific message available.
func (e AuthErrorDTO) Text() string {
	for _, s := range []string{e.Msg, e.ErrorDescription, e.Message, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

// IsInvalidCredentials reports GoTrue's rejection of an email/password pair.
func (e AuthErrorDTO) IsInvalidCredentials() bool {
	if e.ErrorCode != "" {
		return e.ErrorCode == "invalid_credentials"
	}
	// Older servers reuse invalid_grant for unconfirmed emails.
	return e.Error == "invalid_grant" && strings.Contains(strings.ToLower(e.Text()), "invalid login")
}

// ══════════════════════════════════════════════════════════════════════════════
// DATA DTOs (PostgREST)
// ══════════════════════════════════════════════════════════════════════════════

// RestErrorDTO is the PostgREST error body.
type RestErrorDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// Number accepts a JSON number, a numeric string, or null. Postgres
// numeric columns reach the client as either form depending on the view.
type Number float64

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*n = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*n = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			// Unparseable numbers read as zero, same as an absent value.
			*n = 0
			return nil
		}
		*n = Number(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*n = Number(f)
	return nil
}

// ProfileDTO is a row of profiles.
type ProfileDTO struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	CreatedAt string `json:"created_at,omitempty"`
}

// StudentDTO is a row of students.
type StudentDTO struct {
	ID            string `json:"id"`
	ProfileID     string `json:"profile_id"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	RollNumber    string `json:"roll_number"`
	ClassName     string `json:"class_name"`
	Section       string `json:"section"`
	DateOfBirth   string `json:"date_of_birth"`
	Gender        string `json:"gender"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	GuardianName  string `json:"guardian_name"`
	GuardianPhone string `json:"guardian_phone"`
	Address       string `json:"address"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// ResultEntryDTO is one element of results.entries (jsonb).
type ResultEntryDTO struct {
	SubjectID     string `json:"subjectId"`
	SubjectName   string `json:"subjectName"`
	MarksObtained Number `json:"marksObtained"`
	MaxMarks      Number `json:"maxMarks"`
}

// ResultDTO is a row of results.
type ResultDTO struct {
	ID            string           `json:"id"`
	StudentID     string           `json:"student_id"`
	ExamName      string           `json:"exam_name"`
	Entries       []ResultEntryDTO `json:"entries"`
	TotalMarks    Number           `json:"total_marks"`
	TotalMaxMarks Number           `json:"total_max_marks"`
	Percentage    Number           `json:"percentage"`
	Grade         string           `json:"grade"`
	CreatedAt     string           `json:"created_at"`
}

// AttendanceDTO is a row of attendance.
type AttendanceDTO struct {
	StudentID   string `json:"student_id"`
	TotalDays   int    `json:"total_days"`
	PresentDays int    `json:"present_days"`
	AbsentDays  int    `json:"absent_days"`
	LateDays    int    `json:"late_days"`
	Percentage  Number `json:"percentage"`
}

// ExamDTO is a row of exams.
type ExamDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ExamDate string `json:"exam_date"`
	Subject  string `json:"subject"`
}

// AnnouncementDTO is a row of announcements.
type AnnouncementDTO struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Description      string `json:"description"`
	AnnouncementDate string `json:"announcement_date"`
	Type             string `json:"type"`
}

// TeacherDTO is a row of teachers.
type TeacherDTO struct {
	ProfileID       string `json:"profile_id"`
	ClassAssigned   string `json:"class_assigned"`
	SectionAssigned string `json:"section_assigned"`
}

// DailyAttendanceDTO is a row of daily_attendance, keyed by
// (student_id, date).
type DailyAttendanceDTO struct {
	StudentID string `json:"student_id"`
	Date      string `json:"date"`
	Status    string `json:"status"`
	MarkedBy  string `json:"marked_by"`
}
