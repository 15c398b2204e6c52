package academics

import (
	"slices"
	"sort"
)

// ══════════════════════════════════════════════════════════════════════════════
// OVERALL STATS
// ══════════════════════════════════════════════════════════════════════════════

// OverallStats - сводка по всем экзаменам.
type OverallStats struct {
	AvgPercentage  float64 `json:"avg_percentage"`
	BestPercentage float64 `json:"best_percentage"`
	BestGrade      Grade   `json:"best_grade"`
	TotalExams     int     `json:"total_exams"`
}

// ComputeOverallStats считает средний процент и лучший результат.
// При равенстве лучшим остаётся первый по порядку входа.
func ComputeOverallStats(results []StudentResult) OverallStats {
	if len(results) == 0 {
		return OverallStats{BestGrade: GradeNone}
	}

	var sum float64
	best := 0
	for i, r := range results {
		sum += finite(r.Percentage)
		if finite(r.Percentage) > finite(results[best].Percentage) {
			best = i
		}
	}

	return OverallStats{
		AvgPercentage:  Round1(sum / float64(len(results))),
		BestPercentage: finite(results[best].Percentage),
		BestGrade:      results[best].EffectiveGrade(),
		TotalExams:     len(results),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SUBJECT AVERAGES
// ══════════════════════════════════════════════════════════════════════════════

// SubjectAverage - средний процент по предмету через все экзамены.
type SubjectAverage struct {
	Name    string    `json:"name"`
	Average float64   `json:"average"`
	Scores  []float64 `json:"scores"`
}

// ComputeSubjectAverages группирует предметы по точному имени и сортирует
// по убыванию среднего. Равные средние сохраняют порядок первого появления.
func ComputeSubjectAverages(results []StudentResult) []SubjectAverage {
	type acc struct {
		total  float64
		scores []float64
	}

	var order []string
	groups := make(map[string]*acc)

	for _, r := range results {
		for _, e := range r.Entries {
			g, ok := groups[e.SubjectName]
			if !ok {
				g = &acc{}
				groups[e.SubjectName] = g
				order = append(order, e.SubjectName)
			}
			pct := e.Percentage()
			g.total += pct
			g.scores = append(g.scores, pct)
		}
	}

	out := make([]SubjectAverage, 0, len(order))
	for _, name := range order {
		g := groups[name]
		out = append(out, SubjectAverage{
			Name:    name,
			Average: Round1(g.total / float64(len(g.scores))),
			Scores:  g.scores,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Average > out[j].Average
	})
	return out
}

// SubjectInsights - сильный и слабый предмет.
type SubjectInsights struct {
	Strongest *SubjectAverage `json:"strongest,omitempty"`
	Weakest   *SubjectAverage `json:"weakest,omitempty"`
}

// Insights выбирает крайние предметы из отсортированного списка.
// Один предмет никогда не помечается слабым.
func Insights(averages []SubjectAverage) SubjectInsights {
	var in SubjectInsights
	if len(averages) == 0 {
		return in
	}
	strongest := averages[0]
	in.Strongest = &strongest
	if len(averages) > 1 {
		weakest := averages[len(averages)-1]
		in.Weakest = &weakest
	}
	return in
}

// ══════════════════════════════════════════════════════════════════════════════
// ORDERINGS
// ══════════════════════════════════════════════════════════════════════════════

// TrendPoint - точка графика успеваемости.
type TrendPoint struct {
	ExamName   string  `json:"exam_name"`
	Percentage float64 `json:"percentage"`
	Grade      Grade   `json:"grade"`
}

// chronological возвращает копию от старых к новым. При равном CreatedAt
// сохраняется порядок входа.
func chronological(results []StudentResult) []StudentResult {
	sorted := make([]StudentResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	return sorted
}

// ComputePerformanceTrend возвращает результаты от старых к новым.
func ComputePerformanceTrend(results []StudentResult) []TrendPoint {
	sorted := chronological(results)

	out := make([]TrendPoint, 0, len(sorted))
	for _, r := range sorted {
		out = append(out, TrendPoint{
			ExamName:   r.ExamName,
			Percentage: finite(r.Percentage),
			Grade:      r.EffectiveGrade(),
		})
	}
	return out
}

// SortByRecency возвращает копию, отсортированную от новых к старым.
// Это порядок списка результатов по умолчанию: точный разворот тренда,
// в том числе при совпадающих CreatedAt.
func SortByRecency(results []StudentResult) []StudentResult {
	sorted := chronological(results)
	slices.Reverse(sorted)
	return sorted
}

// LatestResult возвращает самый свежий результат или nil.
func LatestResult(results []StudentResult) *StudentResult {
	if len(results) == 0 {
		return nil
	}
	latest := SortByRecency(results)[0]
	return &latest
}

// FindResultByID ищет результат по ID. Отсутствие - не ошибка.
func FindResultByID(results []StudentResult, id string) (*StudentResult, bool) {
	for i := range results {
		if results[i].ID == id {
			r := results[i]
			return &r, true
		}
	}
	return nil, false
}
