package supabase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkcollege/school-portal/internal/domain/academics"
	"github.com/jkcollege/school-portal/internal/domain/session"
	"github.com/jkcollege/school-portal/internal/domain/shared"
)

const testAnonKey = "anon-key"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultClientConfig(srv.URL, testAnonKey)
	cfg.RetryBaseDelay = time.Millisecond
	cfg.RateLimiterConfig = RateLimiterConfig{RequestsPerSecond: 1000, BurstSize: 100}
	return NewClient(cfg)
}

func signedToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email: sub + "@school.test",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestResultDTO_Parsing(t *testing.T) {
	jsonData := `{
    "id": "r-1",
    "student_id": "s-1",
    "exam_name": "Mid Term",
    "entries": [
        {"subjectId": "math", "subjectName": "Mathematics", "marksObtained": 45, "maxMarks": 50},
        {"subjectId": "sci", "subjectName": "Science", "marksObtained": "38.5", "maxMarks": "50"}
    ],
    "total_marks": 83.5,
    "total_max_marks": 100,
    "percentage": "83.50",
    "grade": "A",
    "created_at": "2025-10-01T09:30:00+00:00"
}`

	var dto ResultDTO
	require.NoError(t, json.Unmarshal([]byte(jsonData), &dto))

	result := NewMapper().ResultFromDTO(&dto)
	assert.Equal(t, "Mid Term", result.ExamName)
	assert.Len(t, result.Entries, 2)
	assert.Equal(t, 38.5, result.Entries[1].MarksObtained)
	assert.Equal(t, 83.5, result.Percentage)
	assert.Equal(t, academics.Grade("A"), result.Grade)
	assert.Equal(t, 2025, result.CreatedAt.Year())
}

func TestNumber_NullAndGarbage(t *testing.T) {
	var row struct {
		A Number `json:"a"`
		B Number `json:"b"`
		C Number `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": null, "b": "n/a", "c": ""}`), &row))
	assert.Zero(t, row.A)
	assert.Zero(t, row.B)
	assert.Zero(t, row.C)
}

func TestSignInWithPassword_Success(t *testing.T) {
	access := signedToken(t, "user-1", time.Now().Add(time.Hour))

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, testAnonKey, r.Header.Get("apikey"))

		var body passwordGrantRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "asha@school.test", body.Email)

		writeJSON(w, http.StatusOK, SessionDTO{
			AccessToken:  access,
			TokenType:    "bearer",
			ExpiresIn:    3600,
			RefreshToken: "refresh-1",
			User: &UserDTO{
				ID:           "user-1",
				Email:        "asha@school.test",
				UserMetadata: UserMetadataDTO{FullName: "Asha Verma"},
			},
		})
	})

	sess, err := client.SignInWithPassword(context.Background(), "asha@school.test", "secret")
	require.NoError(t, err)

	assert.Equal(t, "user-1", sess.User.ID)
	assert.Equal(t, "Asha Verma", sess.User.FullName)
	assert.Equal(t, "user-1", sess.Tokens.UserID)
	assert.Equal(t, "refresh-1", sess.Tokens.RefreshToken)
	assert.False(t, sess.Tokens.ExpiresAt.IsZero())
	assert.Equal(t, access, client.AccessToken())
}

func TestSignInWithPassword_InvalidCredentials(t *testing.T) {
	bodies := []map[string]any{
		{"error": "invalid_grant", "error_description": "Invalid login credentials"},
		{"code": 400, "error_code": "invalid_credentials", "msg": "Invalid login credentials"},
	}

	for _, body := range bodies {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusBadRequest, body)
		})

		_, err := client.SignInWithPassword(context.Background(), "a@b.c", "wrong")
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
	}
}

func TestSignInWithPassword_UnconfirmedEmailIsRemoteError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"code": 400, "error_code": "email_not_confirmed", "msg": "Email not confirmed"})
	})

	_, err := client.SignInWithPassword(context.Background(), "a@b.c", "pw")
	require.Error(t, err)
	assert.NotErrorIs(t, err, shared.ErrInvalidCredentials)
	assert.ErrorIs(t, err, shared.ErrRemote)
	assert.Equal(t, "Email not confirmed", shared.UserMessage(err).Message)
}

func TestDoRequest_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"message": "upstream"})
			return
		}
		writeJSON(w, http.StatusOK, UserDTO{ID: "user-1"})
	})

	user, err := client.GetUser(context.Background(), "token")
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDoRequest_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cfg := DefaultClientConfig(url, testAnonKey)
	cfg.MaxRetries = 1
	client := NewClient(cfg)

	_, err := client.GetUser(context.Background(), "token")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrNetwork)
	assert.True(t, shared.IsRetryable(err))
}

func TestBreakerOpensOnOutage(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	cfg := DefaultClientConfig(srv.URL, testAnonKey)
	cfg.MaxRetries = 1
	cfg.CircuitBreakerThreshold = 2
	cfg.CircuitBreakerTimeout = time.Hour
	client := NewClient(cfg)

	for i := 0; i < 2; i++ {
		_, err := client.GetUser(context.Background(), "token")
		assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
	}
	assert.False(t, client.IsHealthy())

	_, err := client.GetUser(context.Background(), "token")
	assert.ErrorIs(t, err, shared.ErrNetwork)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "open", client.Status().BreakerState)
}

func TestBreakerIgnoresRejectedCredentials(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error_code": "invalid_credentials", "msg": "Invalid login credentials"})
	})

	for i := 0; i < 10; i++ {
		_, _ = client.SignInWithPassword(context.Background(), "a@b.c", "wrong")
	}
	assert.True(t, client.IsHealthy())
}

func TestSignUp_SendsFullName(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/signup", r.URL.Path)

		var body signUpRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Ravi Kumar", body.Data.FullName)

		writeJSON(w, http.StatusOK, UserDTO{ID: "new-user", Email: body.Email, UserMetadata: body.Data})
	})

	user, err := client.SignUp(context.Background(), "ravi@school.test", "secret1", "Ravi Kumar")
	require.NoError(t, err)
	assert.Equal(t, "new-user", user.ID)
	assert.False(t, user.Confirmed)
	assert.Empty(t, client.AccessToken())
}

func TestSignUp_ExistingUser(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"code": 422, "error_code": "user_already_exists", "msg": "User already registered"})
	})

	_, err := client.SignUp(context.Background(), "ravi@school.test", "secret1", "Ravi")
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	assert.ErrorIs(t, err, shared.ErrRemote)
}

func TestAuthorizeURL(t *testing.T) {
	client := NewClient(DefaultClientConfig("https://demo.supabase.co/", testAnonKey))

	u, err := client.AuthorizeURL(context.Background(), "google", "http://127.0.0.1:54321/auth/callback")
	require.NoError(t, err)
	assert.Equal(t, "https://demo.supabase.co/auth/v1/authorize?provider=google&redirect_to=http%3A%2F%2F127.0.0.1%3A54321%2Fauth%2Fcallback", u)

	_, err = client.AuthorizeURL(context.Background(), " ", "")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestSetSession_LiveTokenChecksUser(t *testing.T) {
	access := signedToken(t, "user-9", time.Now().Add(time.Hour))

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		assert.Equal(t, "Bearer "+access, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, UserDTO{ID: "user-9", Email: "n@school.test"})
	})

	sess, err := client.SetSession(context.Background(), access, "refresh-9")
	require.NoError(t, err)
	assert.Equal(t, "user-9", sess.User.ID)
	assert.Equal(t, "refresh-9", sess.Tokens.RefreshToken)
	assert.Equal(t, access, client.AccessToken())
}

func TestSetSession_ExpiredTokenRefreshes(t *testing.T) {
	expired := signedToken(t, "user-9", time.Now().Add(-time.Minute))
	fresh := signedToken(t, "user-9", time.Now().Add(time.Hour))

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "refresh_token", r.URL.Query().Get("grant_type"))
		writeJSON(w, http.StatusOK, SessionDTO{AccessToken: fresh, RefreshToken: "refresh-10", ExpiresIn: 3600})
	})

	sess, err := client.SetSession(context.Background(), expired, "refresh-9")
	require.NoError(t, err)
	assert.Equal(t, fresh, sess.Tokens.AccessToken)
	assert.Equal(t, "user-9", sess.User.ID)
}

func TestSetSession_Malformed(t *testing.T) {
	client := NewClient(DefaultClientConfig("http://127.0.0.1:1", testAnonKey))
	_, err := client.SetSession(context.Background(), "not-a-jwt", "")
	assert.ErrorIs(t, err, shared.ErrInvalidFormat)
}

func TestRefreshSession_Rejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error_code": "refresh_token_not_found", "msg": "Invalid Refresh Token"})
	})

	_, err := client.RefreshSession(context.Background(), "stale")
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestSignOut_ClearsBearerEvenOnUnauthorized(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/logout", r.URL.Path)
		writeJSON(w, http.StatusUnauthorized, map[string]any{"msg": "invalid JWT"})
	})
	client.SetAccessToken("old")

	assert.NoError(t, client.SignOut(context.Background(), "old"))
	assert.Empty(t, client.AccessToken())
}

func TestProfiles_GetByID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/profiles", r.URL.Path)
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))

		if r.URL.Query().Get("id") == "eq.missing" {
			writeJSON(w, http.StatusOK, []ProfileDTO{})
			return
		}
		writeJSON(w, http.StatusOK, []ProfileDTO{{ID: "user-1", Role: "Admin", FirstName: "Meera", LastName: "Iyer"}})
	})
	client.SetAccessToken("user-token")

	p, err := client.Profiles().GetByID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, session.RoleAdmin, p.Role)
	assert.Equal(t, "Meera Iyer", p.DisplayName())

	_, err = client.Profiles().GetByID(context.Background(), "missing")
	assert.True(t, shared.IsNotFound(err))
}

func TestProfiles_Create(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "return=minimal", r.Header.Get("Prefer"))

		var row ProfileDTO
		require.NoError(t, json.NewDecoder(r.Body).Decode(&row))
		assert.Equal(t, "student", row.Role)
		w.WriteHeader(http.StatusCreated)
	})

	err := client.Profiles().Create(context.Background(), &session.Profile{ID: "u", Role: session.RoleStudent, FirstName: "A", LastName: "User"})
	assert.NoError(t, err)
}

func TestProfiles_CreateDuplicate(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, RestErrorDTO{Code: "23505", Message: "duplicate key value violates unique constraint"})
	})

	err := client.Profiles().Create(context.Background(), &session.Profile{ID: "u", Role: session.RoleStudent})
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)
}

func TestAcademics_Queries(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "*", r.URL.Query().Get("select"))

		switch r.URL.Path {
		case "/rest/v1/students":
			assert.Equal(t, "eq.profile-1", r.URL.Query().Get("profile_id"))
			writeJSON(w, http.StatusOK, []StudentDTO{{ID: "s-1", ProfileID: "profile-1", FirstName: "Asha", ClassName: "Class 10", Section: "A"}})
		case "/rest/v1/results":
			assert.Equal(t, "eq.s-1", r.URL.Query().Get("student_id"))
			writeJSON(w, http.StatusOK, []ResultDTO{{ID: "r-1", StudentID: "s-1", Percentage: 72}})
		case "/rest/v1/attendance":
			writeJSON(w, http.StatusOK, []AttendanceDTO{})
		case "/rest/v1/announcements":
			writeJSON(w, http.StatusOK, []AnnouncementDTO{{ID: "a-1", Type: "holiday", AnnouncementDate: "2026-03-20"}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	repo := client.Academics()
	ctx := context.Background()

	st, err := repo.GetStudentByProfile(ctx, "profile-1")
	require.NoError(t, err)
	assert.Equal(t, "s-1", st.ID)

	results, err := repo.ListResultsByStudent(ctx, st.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 72.0, results[0].Percentage)
	assert.NotNil(t, results[0].Entries)

	_, err = repo.GetAttendance(ctx, st.ID)
	assert.ErrorIs(t, err, shared.ErrAttendanceNotFound)

	anns, err := repo.ListAnnouncements(ctx)
	require.NoError(t, err)
	assert.Equal(t, academics.AnnouncementNotice, anns[0].Type)
}

func TestAttendance_Register(t *testing.T) {
	var upserted []DailyAttendanceDTO
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case r.URL.Path == "/rest/v1/teachers":
			if q.Get("profile_id") == "eq.t-2" {
				writeJSON(w, http.StatusOK, []TeacherDTO{})
				return
			}
			writeJSON(w, http.StatusOK, []TeacherDTO{{ProfileID: "t-1", ClassAssigned: "Class 10", SectionAssigned: "A"}})
		case r.URL.Path == "/rest/v1/daily_attendance" && r.Method == http.MethodGet:
			assert.Equal(t, "eq.2026-03-02", q.Get("date"))
			assert.Equal(t, "eq.t-1", q.Get("marked_by"))
			writeJSON(w, http.StatusOK, []DailyAttendanceDTO{{StudentID: "s-1", Date: "2026-03-02T00:00:00", Status: "late", MarkedBy: "t-1"}})
		case r.URL.Path == "/rest/v1/daily_attendance" && r.Method == http.MethodPost:
			assert.Equal(t, "student_id,date", q.Get("on_conflict"))
			assert.Equal(t, "resolution=merge-duplicates,return=minimal", r.Header.Get("Prefer"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&upserted))
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	reg := client.Attendance()
	ctx := context.Background()

	a, err := reg.GetTeacherAssignment(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, academics.TeacherAssignment{ProfileID: "t-1", ClassName: "Class 10", Section: "A"}, *a)

	_, err = reg.GetTeacherAssignment(ctx, "t-2")
	assert.ErrorIs(t, err, shared.ErrNoClassAssigned)

	marks, err := reg.ListDailyAttendance(ctx, "2026-03-02", "t-1")
	require.NoError(t, err)
	require.Len(t, marks, 1)
	assert.Equal(t, "2026-03-02", marks[0].Date)
	assert.Equal(t, academics.StatusLate, marks[0].Status)

	err = reg.UpsertDailyAttendance(ctx, []academics.DailyAttendance{
		{StudentID: "s-1", Date: "2026-03-02", Status: academics.StatusPresent, MarkedBy: "t-1"},
		{StudentID: "s-2", Date: "2026-03-02", Status: academics.StatusAbsent, MarkedBy: "t-1"},
	})
	require.NoError(t, err)
	require.Len(t, upserted, 2)
	assert.Equal(t, DailyAttendanceDTO{StudentID: "s-2", Date: "2026-03-02", Status: "absent", MarkedBy: "t-1"}, upserted[1])

	assert.NoError(t, reg.UpsertDailyAttendance(ctx, nil))
}
