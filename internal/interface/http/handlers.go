package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jkcollege/school-portal/config"
	"github.com/jkcollege/school-portal/internal/application/attendance"
	"github.com/jkcollege/school-portal/internal/application/auth"
	"github.com/jkcollege/school-portal/internal/application/query"
	"github.com/jkcollege/school-portal/internal/domain/academics"
	"github.com/jkcollege/school-portal/internal/domain/session"
	"github.com/jkcollege/school-portal/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth is liveness: the process answers.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.config.Version,
		"uptime":  s.Uptime().Round(time.Second).String(),
	})
}

// handleReady runs the dependency checks.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// SessionView is the session snapshot plus what the shell needs to route.
type SessionView struct {
	session.Session
	Destination session.Destination `json:"destination"`
	RoleLabel   string              `json:"role_label,omitempty"`
	SigningIn   bool                `json:"signing_in"`
}

func (s *Server) view(sess session.Session) SessionView {
	v := SessionView{
		Session:     sess,
		Destination: sess.Destination(),
		SigningIn:   s.deps.Sessions.IsSigningIn(),
	}
	if sess.Authenticated {
		v.RoleLabel = sess.Role.Label()
	}
	return v
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.view(s.deps.Sessions.Session()))
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Sessions.Restore(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, s.view(sess))
}

func (s *Server) handleCompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Sessions.CompleteOnboarding(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, s.view(sess))
}

// ─────────────────────────────────────────────────────────────────────────────
// Sign in / sign up / sign out
// ─────────────────────────────────────────────────────────────────────────────

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type signUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

type oauthRequest struct {
	Role string `json:"role"`
}

// SignUpResponse mirrors auth.SignUpResult without the error value.
type SignUpResponse struct {
	UserID               string `json:"user_id"`
	Email                string `json:"email"`
	ConfirmationRequired bool   `json:"confirmation_required"`
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	sess, err := s.deps.Sessions.SignIn(r.Context(), auth.SignInCommand{
		Email:    req.Email,
		Password: req.Password,
		Role:     session.ParseRole(req.Role),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, s.view(sess))
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.deps.Sessions.SignUp(r.Context(), auth.SignUpCommand{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Role:        session.ParseRole(req.Role),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	body := SignUpResponse{
		UserID:               res.UserID,
		Email:                res.Email,
		ConfirmationRequired: res.ConfirmationRequired,
	}
	if res.ProfileWarning != nil {
		writeJSONWarning(w, r, body, res.ProfileWarning)
		return
	}
	writeJSON(w, r, http.StatusCreated, body)
}

// handleOAuth blocks until the provider redirect arrives, so the write
// deadline is pushed past the server default.
func (s *Server) handleOAuth(w http.ResponseWriter, r *http.Request) {
	var req oauthRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if s.config.OAuthTimeout > 0 {
		rc := http.NewResponseController(w)
		if err := rc.SetWriteDeadline(time.Now().Add(s.config.OAuthTimeout + 5*time.Second)); err != nil {
			logger.FromContext(r.Context()).Debug("write deadline not extended", logger.Err(err))
		}
	}

	sess, err := s.deps.Sessions.SignInWithOAuth(r.Context(), auth.OAuthCommand{
		Role: session.ParseRole(req.Role),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, s.view(sess))
}

// handleSignOut always succeeds.
func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.view(s.deps.Sessions.SignOut(r.Context())))
}

// ══════════════════════════════════════════════════════════════════════════════
// ACADEMICS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())

	res, err := s.deps.Dashboard.Handle(r.Context(), query.GetDashboardQuery{
		UserID:          sess.UserID,
		IncludeInsights: s.featureEnabled(r.Context(), config.FeatureDashboardInsights),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())

	res, err := s.deps.Result.Handle(r.Context(), query.GetResultQuery{
		UserID:   sess.UserID,
		ResultID: chi.URLParam(r, "id"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) handleClassStats(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.ClassStats.Handle(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// ══════════════════════════════════════════════════════════════════════════════
// TEACHER HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleRoster(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())

	res, err := s.deps.Roster.Handle(r.Context(), attendance.GetClassRosterQuery{
		TeacherID: sess.UserID,
		Date:      r.URL.Query().Get("date"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

type markAttendanceRequest struct {
	Date       string            `json:"date"`
	Marks      map[string]string `json:"marks"`
	AllPresent bool              `json:"all_present"`
}

func (s *Server) handleMarkAttendance(w http.ResponseWriter, r *http.Request) {
	var req markAttendanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	marks := make(map[string]academics.AttendanceStatus, len(req.Marks))
	for id, raw := range req.Marks {
		status, err := academics.ParseAttendanceStatus(raw)
		if err != nil {
			writeError(w, r, err)
			return
		}
		marks[id] = status
	}

	res, err := s.deps.MarkAttendance.Handle(r.Context(), attendance.MarkAttendanceCommand{
		TeacherID:   sessionFrom(r.Context()).UserID,
		Date:        req.Date,
		Marks:       marks,
		FillPresent: req.AllPresent,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}
