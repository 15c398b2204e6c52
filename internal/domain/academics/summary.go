package academics

import "sort"

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE SUMMARY
// ══════════════════════════════════════════════════════════════════════════════

// AttendanceSummary - нормализованный снимок для отображения.
type AttendanceSummary struct {
	AttendanceRecord
	Consistent bool   `json:"consistent"`
	Issue      string `json:"issue,omitempty"`
}

// SummarizeAttendance пересчитывает процент, если источник прислал 0,
// и помечает нарушенные инварианты вместо ошибки.
func SummarizeAttendance(rec AttendanceRecord) AttendanceSummary {
	out := AttendanceSummary{AttendanceRecord: rec, Consistent: true}

	if err := rec.Validate(); err != nil {
		out.Consistent = false
		out.Issue = err.Error()
	}

	switch {
	case rec.TotalDays <= 0:
		out.Percentage = 0
	case rec.Percentage <= 0 && rec.PresentDays > 0:
		out.Percentage = Round1(float64(rec.PresentDays) * 100 / float64(rec.TotalDays))
	default:
		out.Percentage = finite(rec.Percentage)
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// CLASS STATS
// ══════════════════════════════════════════════════════════════════════════════

// ClassStats - сводка по классу для кабинета директора.
type ClassStats struct {
	ClassName     string   `json:"class_name"`
	Sections      []string `json:"sections"`
	StudentCount  int      `json:"student_count"`
	AvgPercentage float64  `json:"avg_percentage"`
}

// ComputeClassStats группирует учеников по классу и считает средний
// процент их результатов. Результаты чужих учеников пропускаются.
// Порядок: по убыванию числа учеников, затем по первому появлению.
func ComputeClassStats(students []Student, results []StudentResult) []ClassStats {
	type acc struct {
		sections map[string]struct{}
		count    int
		totalPct float64
		results  int
	}

	var order []string
	groups := make(map[string]*acc)
	classOf := make(map[string]string, len(students))

	for _, s := range students {
		g, ok := groups[s.ClassName]
		if !ok {
			g = &acc{sections: make(map[string]struct{})}
			groups[s.ClassName] = g
			order = append(order, s.ClassName)
		}
		g.sections[s.Section] = struct{}{}
		g.count++
		if _, seen := classOf[s.ID]; !seen {
			classOf[s.ID] = s.ClassName
		}
	}

	for _, r := range results {
		className, ok := classOf[r.StudentID]
		if !ok {
			continue
		}
		g := groups[className]
		g.totalPct += finite(r.Percentage)
		g.results++
	}

	out := make([]ClassStats, 0, len(order))
	for _, name := range order {
		g := groups[name]
		sections := make([]string, 0, len(g.sections))
		for sec := range g.sections {
			sections = append(sections, sec)
		}
		sort.Strings(sections)

		var avg float64
		if g.results > 0 {
			avg = Round1(g.totalPct / float64(g.results))
		}
		out = append(out, ClassStats{
			ClassName:     name,
			Sections:      sections,
			StudentCount:  g.count,
			AvgPercentage: avg,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StudentCount > out[j].StudentCount
	})
	return out
}
