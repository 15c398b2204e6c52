package query

import (
	"context"
	"sort"
	"time"

	"github.com/jkcollege/school-portal/internal/domain/academics"
	"github.com/jkcollege/school-portal/internal/domain/shared"
	"github.com/jkcollege/school-portal/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET DASHBOARD QUERY
// Кабинет ученика: результаты, статистика, посещаемость, экзамены.
// Всё считается заново на каждый запрос из закешированных сырых данных.
// ══════════════════════════════════════════════════════════════════════════════

// GetDashboardQuery содержит параметры запроса кабинета.
type GetDashboardQuery struct {
	// UserID - ID профиля вошедшего пользователя.
	UserID string

	// IncludeInsights - добавлять сильный и слабый предмет.
	IncludeInsights bool
}

// AnnouncementDTO - объявление со статусом относительно текущего времени.
type AnnouncementDTO struct {
	academics.Announcement
	Status academics.AnnouncementStatus `json:"status"`
}

// DashboardResult - ответ кабинета ученика.
type DashboardResult struct {
	Student     academics.Student `json:"student"`
	DisplayName string            `json:"display_name"`

	// Results - от новых к старым (порядок списка).
	Results []academics.StudentResult `json:"results"`
	Latest  *academics.StudentResult  `json:"latest,omitempty"`

	Overall  academics.OverallStats     `json:"overall"`
	Subjects []academics.SubjectAverage `json:"subjects"`
	Insights *academics.SubjectInsights `json:"insights,omitempty"`

	// Trend - от старых к новым (порядок графика).
	Trend []academics.TrendPoint `json:"trend"`

	Attendance    *academics.AttendanceSummary `json:"attendance,omitempty"`
	UpcomingExams []academics.UpcomingExam     `json:"upcoming_exams"`
	Announcements []AnnouncementDTO            `json:"announcements"`

	GeneratedAt time.Time `json:"generated_at"`
}

// GetDashboardHandler обрабатывает запрос кабинета.
type GetDashboardHandler struct {
	cache *StudentDataCache
	now   func() time.Time
}

// NewGetDashboardHandler создаёт обработчик.
func NewGetDashboardHandler(cache *StudentDataCache) *GetDashboardHandler {
	return &GetDashboardHandler{cache: cache, now: timeutil.Now}
}

// Handle выполняет запрос.
func (h *GetDashboardHandler) Handle(ctx context.Context, query GetDashboardQuery) (*DashboardResult, error) {
	if query.UserID == "" {
		return nil, shared.NewDomainError("query", "GetDashboard", shared.ErrUnauthorized, "sign in to see the dashboard")
	}

	data, err := h.cache.Get(ctx, query.UserID)
	if err != nil {
		return nil, err
	}

	return BuildDashboard(data, query.IncludeInsights, h.now()), nil
}

// BuildDashboard прогоняет движок статистики по сырым данным.
func BuildDashboard(data *StudentData, includeInsights bool, now time.Time) *DashboardResult {
	subjects := academics.ComputeSubjectAverages(data.Results)

	out := &DashboardResult{
		Student:       data.Student,
		DisplayName:   data.Student.FullName(),
		Results:       academics.SortByRecency(data.Results),
		Latest:        academics.LatestResult(data.Results),
		Overall:       academics.ComputeOverallStats(data.Results),
		Subjects:      subjects,
		Trend:         academics.ComputePerformanceTrend(data.Results),
		UpcomingExams: sortExams(data.Exams),
		Announcements: withStatus(data.Announcements, now),
		GeneratedAt:   now,
	}
	if includeInsights {
		in := academics.Insights(subjects)
		out.Insights = &in
	}
	if data.Attendance != nil {
		summary := academics.SummarizeAttendance(*data.Attendance)
		out.Attendance = &summary
	}
	return out
}

// sortExams упорядочивает экзамены по дате, ближайшие первыми.
func sortExams(exams []academics.UpcomingExam) []academics.UpcomingExam {
	out := make([]academics.UpcomingExam, len(exams))
	copy(out, exams)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

func withStatus(announcements []academics.Announcement, now time.Time) []AnnouncementDTO {
	out := make([]AnnouncementDTO, 0, len(announcements))
	for _, a := range announcements {
		out = append(out, AnnouncementDTO{Announcement: a, Status: a.StatusAt(now)})
	}
	return out
}
