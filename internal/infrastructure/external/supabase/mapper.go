package supabase

import (
	"errors"
	"strings"
	"time"

	"github.com/jkcollege/school-portal/internal/domain/academics"
	"github.com/jkcollege/school-portal/internal/domain/session"
	"github.com/jkcollege/school-portal/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAPPER - DTO to Domain Entity transformations
// ══════════════════════════════════════════════════════════════════════════════

// ErrNilDTO is returned when a nil DTO reaches the mapper.
var ErrNilDTO = errors.New("supabase: nil DTO")

// Mapper converts backend rows into domain entities, keeping the wire
// format out of the domain packages.
type Mapper struct {
	now func() time.Time
}

// NewMapper creates a new Mapper instance.
func NewMapper() *Mapper {
	return &Mapper{now: time.Now}
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTH MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// UserFromDTO converts an auth user.
func (m *Mapper) UserFromDTO(dto *UserDTO) (*session.AuthUser, error) {
	if dto == nil {
		return nil, ErrNilDTO
	}

	name := dto.UserMetadata.FullName
	if name == "" {
		name = dto.UserMetadata.Name
	}

	return &session.AuthUser{
		ID:         dto.ID,
		Email:      dto.Email,
		FullName:   name,
		Confirmed:  dto.EmailConfirmedAt != "",
		LastSignIn: timeutil.MustParse(dto.LastSignInAt),
	}, nil
}

// SessionFromDTO converts a token grant. The expiry comes from
// expires_at when present, otherwise from expires_in, otherwise from the
// access token's exp claim.
func (m *Mapper) SessionFromDTO(dto *SessionDTO) (*session.AuthSession, error) {
	if dto == nil {
		return nil, ErrNilDTO
	}

	out := &session.AuthSession{
		Tokens: session.Tokens{
			AccessToken:  dto.AccessToken,
			RefreshToken: dto.RefreshToken,
			ExpiresAt:    m.expiry(dto),
		},
	}

	if dto.User != nil {
		user, err := m.UserFromDTO(dto.User)
		if err != nil {
			return nil, err
		}
		out.User = *user
	} else if claims, err := ParseAccessToken(dto.AccessToken); err == nil {
		out.User = session.AuthUser{ID: claims.Subject, Email: claims.Email}
	}
	out.Tokens.UserID = out.User.ID

	return out, nil
}

func (m *Mapper) expiry(dto *SessionDTO) time.Time {
	switch {
	case dto.ExpiresAt > 0:
		return time.Unix(dto.ExpiresAt, 0)
	case dto.ExpiresIn > 0:
		return m.now().Add(time.Duration(dto.ExpiresIn) * time.Second)
	}
	if claims, err := ParseAccessToken(dto.AccessToken); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return time.Time{}
}

// ProfileFromDTO converts a profiles row.
func (m *Mapper) ProfileFromDTO(dto *ProfileDTO) (*session.Profile, error) {
	if dto == nil {
		return nil, ErrNilDTO
	}
	return &session.Profile{
		ID:        dto.ID,
		Role:      session.ParseRole(dto.Role),
		FirstName: dto.FirstName,
		LastName:  dto.LastName,
		CreatedAt: timeutil.MustParse(dto.CreatedAt),
	}, nil
}

// ProfileToDTO converts a profile for insertion. created_at is left to
// the column default.
func (m *Mapper) ProfileToDTO(p *session.Profile) ProfileDTO {
	return ProfileDTO{
		ID:        p.ID,
		Role:      p.Role.String(),
		FirstName: p.FirstName,
		LastName:  p.LastName,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ACADEMICS MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// StudentFromDTO converts a students row.
func (m *Mapper) StudentFromDTO(dto *StudentDTO) academics.Student {
	return academics.Student{
		ID:            dto.ID,
		ProfileID:     dto.ProfileID,
		FirstName:     dto.FirstName,
		LastName:      dto.LastName,
		RollNumber:    dto.RollNumber,
		ClassName:     dto.ClassName,
		Section:       dto.Section,
		DateOfBirth:   dto.DateOfBirth,
		Gender:        dto.Gender,
		Email:         dto.Email,
		Phone:         dto.Phone,
		GuardianName:  dto.GuardianName,
		GuardianPhone: dto.GuardianPhone,
		Address:       dto.Address,
		CreatedAt:     timeutil.MustParse(dto.CreatedAt),
		UpdatedAt:     timeutil.MustParse(dto.UpdatedAt),
	}
}

// StudentsFromDTOs converts multiple students rows.
func (m *Mapper) StudentsFromDTOs(dtos []StudentDTO) []academics.Student {
	out := make([]academics.Student, 0, len(dtos))
	for i := range dtos {
		out = append(out, m.StudentFromDTO(&dtos[i]))
	}
	return out
}

// ResultFromDTO converts a results row. A missing entries array becomes
// an empty slice; the stored grade is kept verbatim.
func (m *Mapper) ResultFromDTO(dto *ResultDTO) academics.StudentResult {
	entries := make([]academics.ResultEntry, 0, len(dto.Entries))
	for _, e := range dto.Entries {
		entries = append(entries, academics.ResultEntry{
			SubjectID:     e.SubjectID,
			SubjectName:   e.SubjectName,
			MarksObtained: float64(e.MarksObtained),
			MaxMarks:      float64(e.MaxMarks),
		})
	}

	return academics.StudentResult{
		ID:            dto.ID,
		StudentID:     dto.StudentID,
		ExamName:      dto.ExamName,
		Entries:       entries,
		TotalMarks:    float64(dto.TotalMarks),
		TotalMaxMarks: float64(dto.TotalMaxMarks),
		Percentage:    float64(dto.Percentage),
		Grade:         academics.Grade(strings.TrimSpace(dto.Grade)),
		CreatedAt:     timeutil.MustParse(dto.CreatedAt),
	}
}

// ResultsFromDTOs converts multiple results rows, preserving order.
func (m *Mapper) ResultsFromDTOs(dtos []ResultDTO) []academics.StudentResult {
	out := make([]academics.StudentResult, 0, len(dtos))
	for i := range dtos {
		out = append(out, m.ResultFromDTO(&dtos[i]))
	}
	return out
}

// AttendanceFromDTO converts an attendance row.
func (m *Mapper) AttendanceFromDTO(dto *AttendanceDTO) academics.AttendanceRecord {
	return academics.AttendanceRecord{
		TotalDays:   dto.TotalDays,
		PresentDays: dto.PresentDays,
		AbsentDays:  dto.AbsentDays,
		LateDays:    dto.LateDays,
		Percentage:  float64(dto.Percentage),
	}
}

// ExamsFromDTOs converts exams rows.
func (m *Mapper) ExamsFromDTOs(dtos []ExamDTO) []academics.UpcomingExam {
	out := make([]academics.UpcomingExam, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, academics.UpcomingExam{
			ID:      d.ID,
			Name:    d.Name,
			Date:    timeutil.MustParse(d.ExamDate),
			Subject: d.Subject,
		})
	}
	return out
}

// AnnouncementsFromDTOs converts announcements rows. Unknown types read as notice.
func (m *Mapper) AnnouncementsFromDTOs(dtos []AnnouncementDTO) []academics.Announcement {
	out := make([]academics.Announcement, 0, len(dtos))
	for _, d := range dtos {
		typ := academics.AnnouncementType(strings.ToLower(d.Type))
		switch typ {
		case academics.AnnouncementEvent, academics.AnnouncementResult, academics.AnnouncementNotice:
		default:
			typ = academics.AnnouncementNotice
		}
		out = append(out, academics.Announcement{
			ID:          d.ID,
			Title:       d.Title,
			Description: d.Description,
			Date:        timeutil.MustParse(d.AnnouncementDate),
			Type:        typ,
		})
	}
	return out
}

// TeacherFromDTO converts a teachers row.
func (m *Mapper) TeacherFromDTO(dto *TeacherDTO) academics.TeacherAssignment {
	return academics.TeacherAssignment{
		ProfileID: dto.ProfileID,
		ClassName: dto.ClassAssigned,
		Section:   dto.SectionAssigned,
	}
}

// DailyAttendanceFromDTOs converts daily_attendance rows. The date column
// may come back with a time part.
func (m *Mapper) DailyAttendanceFromDTOs(dtos []DailyAttendanceDTO) []academics.DailyAttendance {
	out := make([]academics.DailyAttendance, 0, len(dtos))
	for _, d := range dtos {
		date := d.Date
		if len(date) > len(timeutil.LayoutDate) {
			date = date[:len(timeutil.LayoutDate)]
		}
		out = append(out, academics.DailyAttendance{
			StudentID: d.StudentID,
			Date:      date,
			Status:    academics.AttendanceStatus(d.Status),
			MarkedBy:  d.MarkedBy,
		})
	}
	return out
}

// DailyAttendanceToDTOs converts records for an upsert.
func (m *Mapper) DailyAttendanceToDTOs(records []academics.DailyAttendance) []DailyAttendanceDTO {
	out := make([]DailyAttendanceDTO, 0, len(records))
	for _, r := range records {
		out = append(out, DailyAttendanceDTO{
			StudentID: r.StudentID,
			Date:      r.Date,
			Status:    string(r.Status),
			MarkedBy:  r.MarkedBy,
		})
	}
	return out
}
