package query

import (
	"context"

	"github.com/jkcollege/school-portal/internal/domain/academics"
	"github.com/jkcollege/school-portal/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET RESULT QUERY
// ══════════════════════════════════════════════════════════════════════════════

// GetResultQuery - один результат ученика по ID.
type GetResultQuery struct {
	UserID   string
	ResultID string
}

// ResultDetail - результат с оценкой и процентами по предметам.
type ResultDetail struct {
	academics.StudentResult
	EffectiveGrade academics.Grade   `json:"effective_grade"`
	Band           academics.Band    `json:"band"`
	Subjects       []SubjectScoreDTO `json:"subjects"`
}

// SubjectScoreDTO - предмет внутри результата.
type SubjectScoreDTO struct {
	Name       string          `json:"name"`
	Marks      float64         `json:"marks"`
	MaxMarks   float64         `json:"max_marks"`
	Percentage float64         `json:"percentage"`
	Grade      academics.Grade `json:"grade"`
}

// GetResultHandler обрабатывает запрос результата.
type GetResultHandler struct {
	cache *StudentDataCache
}

// NewGetResultHandler создаёт обработчик.
func NewGetResultHandler(cache *StudentDataCache) *GetResultHandler {
	return &GetResultHandler{cache: cache}
}

// Handle ищет результат среди данных пользователя. Чужой или
// несуществующий ID даёт shared.ErrResultNotFound.
func (h *GetResultHandler) Handle(ctx context.Context, query GetResultQuery) (*ResultDetail, error) {
	if query.ResultID == "" {
		return nil, shared.NewDomainError("query", "GetResult", shared.ErrInvalidID, "result id is required")
	}
	if query.UserID == "" {
		return nil, shared.NewDomainError("query", "GetResult", shared.ErrUnauthorized, "sign in to see results")
	}

	data, err := h.cache.Get(ctx, query.UserID)
	if err != nil {
		return nil, err
	}

	res, ok := academics.FindResultByID(data.Results, query.ResultID)
	if !ok {
		return nil, shared.ErrResultNotFound
	}
	return NewResultDetail(*res), nil
}

// NewResultDetail раскладывает результат по предметам.
func NewResultDetail(res academics.StudentResult) *ResultDetail {
	grade := res.EffectiveGrade()
	out := &ResultDetail{
		StudentResult:  res,
		EffectiveGrade: grade,
		Band:           academics.GradeBand(grade),
		Subjects:       make([]SubjectScoreDTO, 0, len(res.Entries)),
	}
	for _, e := range res.Entries {
		pct := academics.Round1(e.Percentage())
		out.Subjects = append(out.Subjects, SubjectScoreDTO{
			Name:       e.SubjectName,
			Marks:      e.MarksObtained,
			MaxMarks:   e.MaxMarks,
			Percentage: pct,
			Grade:      academics.CalculateGrade(pct),
		})
	}
	return out
}
