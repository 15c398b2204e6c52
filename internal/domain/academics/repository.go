package academics

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Таблицы принадлежат бэкенду. Реализации: PostgREST-клиент и pgx.
// ══════════════════════════════════════════════════════════════════════════════

// Repository - чтение учебных данных.
type Repository interface {
	// ─────────────────────────────────────────────────────────────────────────
	// Students
	// ─────────────────────────────────────────────────────────────────────────

	// GetStudentByProfile возвращает ученика, привязанного к профилю.
	// Возвращает shared.ErrStudentNotFound, если привязки нет.
	GetStudentByProfile(ctx context.Context, profileID string) (*Student, error)

	// ListStudents возвращает всех учеников (для директора).
	ListStudents(ctx context.Context) ([]Student, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Results
	// ─────────────────────────────────────────────────────────────────────────

	// ListResultsByStudent возвращает результаты ученика в порядке хранения.
	ListResultsByStudent(ctx context.Context, studentID string) ([]StudentResult, error)

	// ListResults возвращает все результаты школы.
	ListResults(ctx context.Context) ([]StudentResult, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Attendance, exams, announcements
	// ─────────────────────────────────────────────────────────────────────────

	// GetAttendance возвращает снимок посещаемости.
	// Возвращает shared.ErrAttendanceNotFound, если записи нет.
	GetAttendance(ctx context.Context, studentID string) (*AttendanceRecord, error)

	// ListUpcomingExams возвращает расписание экзаменов.
	ListUpcomingExams(ctx context.Context) ([]UpcomingExam, error)

	// ListAnnouncements возвращает объявления школы.
	ListAnnouncements(ctx context.Context) ([]Announcement, error)
}
