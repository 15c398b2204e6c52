package academics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeAttendance(t *testing.T) {
	t.Run("recomputes missing percentage", func(t *testing.T) {
		s := SummarizeAttendance(AttendanceRecord{TotalDays: 220, PresentDays: 205, AbsentDays: 10, LateDays: 5})

		assert.True(t, s.Consistent)
		assert.Equal(t, 93.2, s.Percentage)
	})

	t.Run("keeps source percentage", func(t *testing.T) {
		s := SummarizeAttendance(AttendanceRecord{TotalDays: 10, PresentDays: 9, Percentage: 91})

		assert.Equal(t, 91.0, s.Percentage)
	})

	t.Run("zero days", func(t *testing.T) {
		s := SummarizeAttendance(AttendanceRecord{Percentage: 50})

		assert.True(t, s.Consistent)
		assert.Equal(t, 0.0, s.Percentage)
	})

	t.Run("violated invariant is reported", func(t *testing.T) {
		s := SummarizeAttendance(AttendanceRecord{TotalDays: 10, PresentDays: 8, AbsentDays: 2, LateDays: 1})

		assert.False(t, s.Consistent)
		assert.NotEmpty(t, s.Issue)
	})
}

func TestComputeClassStats(t *testing.T) {
	students := []Student{
		{ID: "s1", ClassName: "Class 10", Section: "B"},
		{ID: "s2", ClassName: "Class 9", Section: "A"},
		{ID: "s3", ClassName: "Class 10", Section: "A"},
		{ID: "s4", ClassName: "Class 10", Section: "B"},
	}
	results := []StudentResult{
		{StudentID: "s1", Percentage: 80},
		{StudentID: "s3", Percentage: 71.5},
		{StudentID: "ghost", Percentage: 10},
	}

	stats := ComputeClassStats(students, results)

	require.Len(t, stats, 2)
	assert.Equal(t, "Class 10", stats[0].ClassName)
	assert.Equal(t, []string{"A", "B"}, stats[0].Sections)
	assert.Equal(t, 3, stats[0].StudentCount)
	assert.Equal(t, 75.8, stats[0].AvgPercentage)

	assert.Equal(t, "Class 9", stats[1].ClassName)
	assert.Equal(t, 0.0, stats[1].AvgPercentage)

	assert.Empty(t, ComputeClassStats(nil, nil))
}

func TestAnnouncement_StatusAt(t *testing.T) {
	now := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, StatusUpcoming, Announcement{Date: now.Add(time.Hour)}.StatusAt(now))
	assert.Equal(t, StatusCompleted, Announcement{Date: now}.StatusAt(now))
}

func TestGradeBand(t *testing.T) {
	assert.Equal(t, BandExcellent, GradeBand(GradeAPlus))
	assert.Equal(t, BandGood, GradeBand(GradeB))
	assert.Equal(t, BandAverage, GradeBand(GradeC))
	assert.Equal(t, BandPoor, GradeBand(GradeD))
	assert.Equal(t, BandFailing, GradeBand(GradeF))
	assert.Equal(t, BandUnknown, GradeBand(GradeNone))
}
