// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jkcollege/school-portal/internal/domain/academics"
	"github.com/jkcollege/school-portal/internal/domain/shared"
	"github.com/jkcollege/school-portal/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT DATA CACHE
// Кеш учебных данных пользователя. Сбрасывается при выходе или смене
// пользователя, поэтому данные одного ученика никогда не видны другому.
// ══════════════════════════════════════════════════════════════════════════════

// DataSource - источник учебных данных (PostgREST или Postgres).
type DataSource = academics.Repository

// RemoteCache - общий кеш между процессами (Redis). Опционален.
type RemoteCache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// StudentData - всё, что нужно кабинету ученика.
type StudentData struct {
	Student       academics.Student           `json:"student"`
	Results       []academics.StudentResult   `json:"results"`
	Attendance    *academics.AttendanceRecord `json:"attendance,omitempty"`
	Exams         []academics.UpcomingExam    `json:"exams"`
	Announcements []academics.Announcement    `json:"announcements"`
	FetchedAt     time.Time                   `json:"fetched_at"`
}

// StudentDataCacheConfig настраивает кеш.
type StudentDataCacheConfig struct {
	// TTL - срок жизни записи. 0 - без истечения (только явный сброс).
	TTL time.Duration

	// Remote - второй уровень кеша. nil - только память процесса.
	Remote RemoteCache

	// Key строит ключ Remote для пользователя.
	Key func(userID string) string

	Logger *slog.Logger
}

type cacheEntry struct {
	data      *StudentData
	expiresAt time.Time
}

// StudentDataCache - кеш StudentData по ID пользователя.
type StudentDataCache struct {
	source DataSource
	remote RemoteCache
	key    func(string) string
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry

	// gen растёт при каждом сбросе. Загрузка, начатая до сброса,
	// не кладёт свой результат в кеш.
	gen map[string]uint64
	all uint64
}

// NewStudentDataCache создаёт кеш поверх source.
func NewStudentDataCache(source DataSource, cfg StudentDataCacheConfig) *StudentDataCache {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	key := cfg.Key
	if key == nil {
		key = func(userID string) string { return "dashboard:" + userID }
	}
	return &StudentDataCache{
		source:  source,
		remote:  cfg.Remote,
		key:     key,
		ttl:     cfg.TTL,
		logger:  logger.With("component", "student_data_cache"),
		now:     timeutil.Now,
		entries: make(map[string]cacheEntry),
		gen:     make(map[string]uint64),
	}
}

// Get возвращает данные пользователя: память, затем Remote, затем источник.
func (c *StudentDataCache) Get(ctx context.Context, userID string) (*StudentData, error) {
	if userID == "" {
		return nil, shared.NewDomainError("query", "StudentData", shared.ErrInvalidID, "user id is required")
	}

	c.mu.Lock()
	if e, ok := c.entries[userID]; ok && (e.expiresAt.IsZero() || c.now().Before(e.expiresAt)) {
		c.mu.Unlock()
		return e.data, nil
	}
	gen, all := c.gen[userID], c.all
	c.mu.Unlock()

	if data, ok := c.getRemote(ctx, userID); ok {
		c.store(userID, gen, all, data)
		return data, nil
	}

	data, err := c.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	if c.store(userID, gen, all, data) && c.remote != nil {
		if err := c.remote.Set(ctx, c.key(userID), data, c.ttl); err != nil {
			c.logger.Warn("failed to write remote cache", "user_id", userID, "error", err)
		}
	}
	return data, nil
}

// Invalidate сбрасывает данные одного пользователя.
func (c *StudentDataCache) Invalidate(ctx context.Context, userID string) {
	c.mu.Lock()
	delete(c.entries, userID)
	c.gen[userID]++
	c.mu.Unlock()

	if c.remote != nil {
		if err := c.remote.Delete(ctx, c.key(userID)); err != nil {
			c.logger.Warn("failed to invalidate remote cache", "user_id", userID, "error", err)
		}
	}
}

// InvalidateAll сбрасывает весь кеш.
func (c *StudentDataCache) InvalidateAll(ctx context.Context) {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.all++
	c.mu.Unlock()

	if c.remote != nil {
		if err := c.remote.DeleteByPattern(ctx, c.key("*")); err != nil {
			c.logger.Warn("failed to flush remote cache", "error", err)
		}
	}
}

// Len возвращает число записей в памяти.
func (c *StudentDataCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// store кладёт data в память, если с начала загрузки не было сброса.
func (c *StudentDataCache) store(userID string, gen, all uint64, data *StudentData) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen[userID] != gen || c.all != all {
		return false
	}
	e := cacheEntry{data: data}
	if c.ttl > 0 {
		e.expiresAt = c.now().Add(c.ttl)
	}
	c.entries[userID] = e
	return true
}

func (c *StudentDataCache) getRemote(ctx context.Context, userID string) (*StudentData, bool) {
	if c.remote == nil {
		return nil, false
	}
	var data StudentData
	if err := c.remote.Get(ctx, c.key(userID), &data); err != nil {
		return nil, false
	}
	return &data, true
}

// load читает данные из источника. Нет посещаемости - не ошибка.
func (c *StudentDataCache) load(ctx context.Context, userID string) (*StudentData, error) {
	student, err := c.source.GetStudentByProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	results, err := c.source.ListResultsByStudent(ctx, student.ID)
	if err != nil {
		return nil, err
	}

	attendance, err := c.source.GetAttendance(ctx, student.ID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	exams, err := c.source.ListUpcomingExams(ctx)
	if err != nil {
		return nil, err
	}

	announcements, err := c.source.ListAnnouncements(ctx)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("student data loaded", "user_id", userID, "results", len(results))
	return &StudentData{
		Student:       *student,
		Results:       results,
		Attendance:    attendance,
		Exams:         exams,
		Announcements: announcements,
		FetchedAt:     c.now(),
	}, nil
}
