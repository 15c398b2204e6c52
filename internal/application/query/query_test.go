package query

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkcollege/school-portal/internal/domain/academics"
	"github.com/jkcollege/school-portal/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// FAKES
// ══════════════════════════════════════════════════════════════════════════════

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu    sync.Mutex
	loads int

	students      []academics.Student
	results       []academics.StudentResult
	attendance    map[string]*academics.AttendanceRecord
	exams         []academics.UpcomingExam
	announcements []academics.Announcement
	err           error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		students: []academics.Student{
			{ID: "s1", ProfileID: "u1", FirstName: "Ada", LastName: "Lovelace", ClassName: "10", Section: "A"},
			{ID: "s2", ProfileID: "u2", FirstName: "Alan", LastName: "Turing", ClassName: "10", Section: "B"},
			{ID: "s3", ProfileID: "u3", FirstName: "Grace", LastName: "Hopper", ClassName: "9", Section: "A"},
		},
		results: []academics.StudentResult{
			{ID: "r1", StudentID: "s1", ExamName: "Unit Test 1", Percentage: 72, CreatedAt: base,
				Entries: []academics.ResultEntry{
					{SubjectName: "Math", MarksObtained: 45, MaxMarks: 50},
					{SubjectName: "History", MarksObtained: 27, MaxMarks: 50},
				}},
			{ID: "r2", StudentID: "s1", ExamName: "Midterm", Percentage: 85, Grade: academics.GradeA, CreatedAt: base.Add(60 * 24 * time.Hour),
				Entries: []academics.ResultEntry{
					{SubjectName: "Math", MarksObtained: 48, MaxMarks: 50},
					{SubjectName: "History", MarksObtained: 37, MaxMarks: 50},
				}},
			{ID: "r3", StudentID: "s1", ExamName: "Unit Test 2", Percentage: 64, CreatedAt: base.Add(30 * 24 * time.Hour)},
			{ID: "r4", StudentID: "s2", ExamName: "Midterm", Percentage: 90, CreatedAt: base},
			{ID: "r5", StudentID: "ghost", ExamName: "Midterm", Percentage: 10, CreatedAt: base},
		},
		attendance: map[string]*academics.AttendanceRecord{
			"s1": {TotalDays: 100, PresentDays: 90, AbsentDays: 6, LateDays: 4},
		},
		exams: []academics.UpcomingExam{
			{ID: "e2", Name: "Finals", Date: base.Add(90 * 24 * time.Hour)},
			{ID: "e1", Name: "Unit Test 3", Date: base.Add(10 * 24 * time.Hour)},
		},
		announcements: []academics.Announcement{
			{ID: "a1", Title: "Sports Day", Date: base.Add(-24 * time.Hour), Type: academics.AnnouncementEvent},
			{ID: "a2", Title: "Results Out", Date: base.Add(24 * time.Hour), Type: academics.AnnouncementResult},
		},
	}
}

func (s *fakeSource) GetStudentByProfile(_ context.Context, profileID string) (*academics.Student, error) {
	s.mu.Lock()
	s.loads++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	for _, st := range s.students {
		if st.ProfileID == profileID {
			st := st
			return &st, nil
		}
	}
	return nil, shared.ErrStudentNotFound
}

func (s *fakeSource) ListStudents(context.Context) ([]academics.Student, error) {
	return s.students, s.err
}

func (s *fakeSource) ListResultsByStudent(_ context.Context, studentID string) ([]academics.StudentResult, error) {
	var out []academics.StudentResult
	for _, r := range s.results {
		if r.StudentID == studentID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeSource) ListResults(context.Context) ([]academics.StudentResult, error) {
	return s.results, s.err
}

func (s *fakeSource) GetAttendance(_ context.Context, studentID string) (*academics.AttendanceRecord, error) {
	if a, ok := s.attendance[studentID]; ok {
		return a, nil
	}
	return nil, shared.ErrAttendanceNotFound
}

func (s *fakeSource) ListUpcomingExams(context.Context) ([]academics.UpcomingExam, error) {
	return s.exams, nil
}

func (s *fakeSource) ListAnnouncements(context.Context) ([]academics.Announcement, error) {
	return s.announcements, s.err
}

func (s *fakeSource) loadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

// fakeRemote stores JSON like the Redis cache does.
type fakeRemote struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeRemote() *fakeRemote { return &fakeRemote{data: map[string][]byte{}} }

func (r *fakeRemote) Get(_ context.Context, key string, dest any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	raw, ok := r.data[key]
	if !ok {
		return errors.New("miss")
	}
	return json.Unmarshal(raw, dest)
}

func (r *fakeRemote) Set(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[key] = raw
	return nil
}

func (r *fakeRemote) Delete(_ context.Context, keys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		delete(r.data, k)
	}
	return nil
}

func (r *fakeRemote) DeleteByPattern(_ context.Context, pattern string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	for k := range r.data {
		if strings.HasPrefix(k, prefix) {
			delete(r.data, k)
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE
// ══════════════════════════════════════════════════════════════════════════════

func TestStudentDataCache_HitAndInvalidate(t *testing.T) {
	src := newFakeSource()
	cache := NewStudentDataCache(src, StudentDataCacheConfig{})
	ctx := context.Background()

	first, err := cache.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "s1", first.Student.ID)
	assert.Len(t, first.Results, 3)

	_, err = cache.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, src.loadCount())

	cache.Invalidate(ctx, "u1")
	_, err = cache.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, src.loadCount())

	_, err = cache.Get(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len())

	cache.InvalidateAll(ctx)
	assert.Zero(t, cache.Len())
}

func TestStudentDataCache_LoadStartedBeforeInvalidateIsDropped(t *testing.T) {
	cache := NewStudentDataCache(newFakeSource(), StudentDataCacheConfig{})

	cache.mu.Lock()
	gen, all := cache.gen["u1"], cache.all
	cache.mu.Unlock()

	cache.Invalidate(context.Background(), "u1")
	assert.False(t, cache.store("u1", gen, all, &StudentData{}))
	assert.Zero(t, cache.Len())

	cache.InvalidateAll(context.Background())
	assert.False(t, cache.store("u2", 0, all, &StudentData{}))
}

func TestStudentDataCache_TTL(t *testing.T) {
	src := newFakeSource()
	cache := NewStudentDataCache(src, StudentDataCacheConfig{TTL: time.Minute})
	now := base
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := cache.Get(ctx, "u1")
	require.NoError(t, err)

	now = now.Add(30 * time.Second)
	_, _ = cache.Get(ctx, "u1")
	assert.Equal(t, 1, src.loadCount())

	now = now.Add(time.Minute)
	_, _ = cache.Get(ctx, "u1")
	assert.Equal(t, 2, src.loadCount())
}

func TestStudentDataCache_Remote(t *testing.T) {
	src := newFakeSource()
	remote := newFakeRemote()
	ctx := context.Background()

	warm := NewStudentDataCache(src, StudentDataCacheConfig{Remote: remote})
	_, err := warm.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Contains(t, remote.data, "dashboard:u1")

	// A second process reads through the shared cache.
	cold := NewStudentDataCache(src, StudentDataCacheConfig{Remote: remote})
	data, err := cold.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", data.Student.FirstName)
	assert.Equal(t, 1, src.loadCount())

	cold.Invalidate(ctx, "u1")
	assert.NotContains(t, remote.data, "dashboard:u1")

	_, _ = warm.Get(ctx, "u2")
	warm.InvalidateAll(ctx)
	assert.Empty(t, remote.data)
}

func TestStudentDataCache_Errors(t *testing.T) {
	src := newFakeSource()
	cache := NewStudentDataCache(src, StudentDataCacheConfig{})

	_, err := cache.Get(context.Background(), "")
	assert.ErrorIs(t, err, shared.ErrInvalidID)

	_, err = cache.Get(context.Background(), "teacher-without-student")
	assert.True(t, shared.IsNotFound(err))

	src.err = shared.NewNetworkError("test", "GetStudent", errors.New("offline"))
	_, err = cache.Get(context.Background(), "u1")
	assert.ErrorIs(t, err, shared.ErrNetwork)
	assert.Zero(t, cache.Len())
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func TestGetDashboard(t *testing.T) {
	h := NewGetDashboardHandler(NewStudentDataCache(newFakeSource(), StudentDataCacheConfig{}))
	h.now = func() time.Time { return base }

	res, err := h.Handle(context.Background(), GetDashboardQuery{UserID: "u1", IncludeInsights: true})
	require.NoError(t, err)

	assert.Equal(t, "Ada Lovelace", res.DisplayName)

	// List reads newest first, the trend oldest first.
	require.Len(t, res.Results, 3)
	assert.Equal(t, []string{"r2", "r3", "r1"}, []string{res.Results[0].ID, res.Results[1].ID, res.Results[2].ID})
	require.Len(t, res.Trend, 3)
	assert.Equal(t, "Unit Test 1", res.Trend[0].ExamName)
	assert.Equal(t, "Midterm", res.Trend[2].ExamName)
	require.NotNil(t, res.Latest)
	assert.Equal(t, "r2", res.Latest.ID)

	assert.Equal(t, 3, res.Overall.TotalExams)
	assert.Equal(t, 73.7, res.Overall.AvgPercentage)
	assert.Equal(t, 85.0, res.Overall.BestPercentage)
	assert.Equal(t, academics.GradeA, res.Overall.BestGrade)

	require.Len(t, res.Subjects, 2)
	assert.Equal(t, "Math", res.Subjects[0].Name)
	require.NotNil(t, res.Insights)
	assert.Equal(t, "Math", res.Insights.Strongest.Name)
	assert.Equal(t, "History", res.Insights.Weakest.Name)

	require.NotNil(t, res.Attendance)
	assert.Equal(t, 90.0, res.Attendance.Percentage)
	assert.True(t, res.Attendance.Consistent)

	assert.Equal(t, "e1", res.UpcomingExams[0].ID)
	require.Len(t, res.Announcements, 2)
	assert.Equal(t, academics.StatusCompleted, res.Announcements[0].Status)
	assert.Equal(t, academics.StatusUpcoming, res.Announcements[1].Status)
}

func TestGetDashboard_WithoutInsightsOrAttendance(t *testing.T) {
	h := NewGetDashboardHandler(NewStudentDataCache(newFakeSource(), StudentDataCacheConfig{}))

	res, err := h.Handle(context.Background(), GetDashboardQuery{UserID: "u3"})
	require.NoError(t, err)

	assert.Nil(t, res.Insights)
	assert.Nil(t, res.Attendance)
	assert.Nil(t, res.Latest)
	assert.Empty(t, res.Results)
	assert.Equal(t, academics.GradeNone, res.Overall.BestGrade)
	assert.Zero(t, res.Overall.AvgPercentage)
}

func TestGetDashboard_RequiresUser(t *testing.T) {
	h := NewGetDashboardHandler(NewStudentDataCache(newFakeSource(), StudentDataCacheConfig{}))

	_, err := h.Handle(context.Background(), GetDashboardQuery{})
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestGetResult(t *testing.T) {
	h := NewGetResultHandler(NewStudentDataCache(newFakeSource(), StudentDataCacheConfig{}))
	ctx := context.Background()

	res, err := h.Handle(ctx, GetResultQuery{UserID: "u1", ResultID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, "Unit Test 1", res.ExamName)
	assert.Equal(t, academics.GradeBPlus, res.EffectiveGrade)
	require.Len(t, res.Subjects, 2)
	assert.Equal(t, 90.0, res.Subjects[0].Percentage)
	assert.Equal(t, academics.GradeAPlus, res.Subjects[0].Grade)
	assert.Equal(t, 54.0, res.Subjects[1].Percentage)

	// Another student's result is not visible.
	_, err = h.Handle(ctx, GetResultQuery{UserID: "u1", ResultID: "r4"})
	assert.True(t, shared.IsNotFound(err))

	_, err = h.Handle(ctx, GetResultQuery{UserID: "u1"})
	assert.ErrorIs(t, err, shared.ErrInvalidID)
}

func TestGetClassStats(t *testing.T) {
	h := NewGetClassStatsHandler(newFakeSource())
	h.now = func() time.Time { return base }

	res, err := h.Handle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, res.TotalStudents)
	assert.Equal(t, 5, res.TotalResults)

	require.Len(t, res.Classes, 2)
	assert.Equal(t, "10", res.Classes[0].ClassName)
	assert.Equal(t, 2, res.Classes[0].StudentCount)
	assert.Equal(t, []string{"A", "B"}, res.Classes[0].Sections)
	// (72 + 85 + 64 + 90) / 4; the orphan result is skipped.
	assert.Equal(t, 77.8, res.Classes[0].AvgPercentage)
	assert.Equal(t, "9", res.Classes[1].ClassName)
	assert.Zero(t, res.Classes[1].AvgPercentage)

	assert.Equal(t, academics.StatusUpcoming, res.Announcements[1].Status)
}

func TestGetClassStats_SourceError(t *testing.T) {
	src := newFakeSource()
	src.err = shared.NewNetworkError("test", "ListStudents", errors.New("offline"))

	_, err := NewGetClassStatsHandler(src).Handle(context.Background())
	assert.ErrorIs(t, err, shared.ErrNetwork)
}
