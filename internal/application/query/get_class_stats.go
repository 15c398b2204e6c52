package query

import (
	"context"
	"time"

	"github.com/jkcollege/school-portal/internal/domain/academics"
	"github.com/jkcollege/school-portal/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET CLASS STATS QUERY
// Обзор школы для директора. Не кешируется: данные общие для всех
// администраторов и читаются редко.
// ══════════════════════════════════════════════════════════════════════════════

// ClassStatsResult - ответ обзора школы.
type ClassStatsResult struct {
	Classes       []academics.ClassStats `json:"classes"`
	TotalStudents int                    `json:"total_students"`
	TotalResults  int                    `json:"total_results"`
	School        academics.OverallStats `json:"school"`
	Announcements []AnnouncementDTO      `json:"announcements"`
	GeneratedAt   time.Time              `json:"generated_at"`
}

// GetClassStatsHandler обрабатывает запрос обзора.
type GetClassStatsHandler struct {
	source DataSource
	now    func() time.Time
}

// NewGetClassStatsHandler создаёт обработчик.
func NewGetClassStatsHandler(source DataSource) *GetClassStatsHandler {
	return &GetClassStatsHandler{source: source, now: timeutil.Now}
}

// Handle выполняет запрос. Права проверяет вызывающий.
func (h *GetClassStatsHandler) Handle(ctx context.Context) (*ClassStatsResult, error) {
	students, err := h.source.ListStudents(ctx)
	if err != nil {
		return nil, err
	}

	results, err := h.source.ListResults(ctx)
	if err != nil {
		return nil, err
	}

	announcements, err := h.source.ListAnnouncements(ctx)
	if err != nil {
		return nil, err
	}

	now := h.now()
	return &ClassStatsResult{
		Classes:       academics.ComputeClassStats(students, results),
		TotalStudents: len(students),
		TotalResults:  len(results),
		School:        academics.ComputeOverallStats(results),
		Announcements: withStatus(announcements, now),
		GeneratedAt:   now,
	}, nil
}
