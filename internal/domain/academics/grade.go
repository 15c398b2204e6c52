package academics

import "math"

// Grade - буквенная оценка.
type Grade string

const (
	GradeAPlus Grade = "A+"
	GradeA     Grade = "A"
	GradeBPlus Grade = "B+"
	GradeB     Grade = "B"
	GradeCPlus Grade = "C+"
	GradeC     Grade = "C"
	GradeD     Grade = "D"
	GradeF     Grade = "F"

	// GradeNone показывается, когда экзаменов нет.
	GradeNone Grade = "-"
)

// CalculateGrade переводит процент в буквенную оценку.
func CalculateGrade(percentage float64) Grade {
	switch {
	case percentage >= 90:
		return GradeAPlus
	case percentage >= 80:
		return GradeA
	case percentage >= 70:
		return GradeBPlus
	case percentage >= 60:
		return GradeB
	case percentage >= 50:
		return GradeCPlus
	case percentage >= 40:
		return GradeC
	case percentage >= 33:
		return GradeD
	default:
		return GradeF
	}
}

// Band - группа оценок для подсветки в интерфейсе.
type Band string

const (
	BandExcellent Band = "excellent"
	BandGood      Band = "good"
	BandAverage   Band = "average"
	BandPoor      Band = "poor"
	BandFailing   Band = "failing"
	BandUnknown   Band = "unknown"
)

// GradeBand группирует оценки: A+/A, B+/B, C+/C, D, F.
func GradeBand(g Grade) Band {
	switch g {
	case GradeAPlus, GradeA:
		return BandExcellent
	case GradeBPlus, GradeB:
		return BandGood
	case GradeCPlus, GradeC:
		return BandAverage
	case GradeD:
		return BandPoor
	case GradeF:
		return BandFailing
	default:
		return BandUnknown
	}
}

// Round1 округляет до одного знака, половины вверх.
// NaN и бесконечности превращаются в 0.
func Round1(x float64) float64 {
	x = finite(x)
	return math.Floor(x*10+0.5) / 10
}

func finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}
