package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/term"

	"github.com/jkcollege/school-portal/config"
	"github.com/jkcollege/school-portal/internal/application/attendance"
	"github.com/jkcollege/school-portal/internal/application/auth"
	"github.com/jkcollege/school-portal/internal/application/query"
	"github.com/jkcollege/school-portal/internal/domain/academics"
	"github.com/jkcollege/school-portal/internal/domain/session"
	"github.com/jkcollege/school-portal/internal/domain/shared"
	"github.com/jkcollege/school-portal/internal/infrastructure/scheduler"
	"github.com/jkcollege/school-portal/internal/infrastructure/scheduler/jobs"
	httpapi "github.com/jkcollege/school-portal/internal/interface/http"
	"github.com/jkcollege/school-portal/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

func statusCmd(_ *flag.FlagSet) func(context.Context, *env) error {
	return func(_ context.Context, e *env) error {
		return output(e, renderSession, e.app.resolver.Session())
	}
}

func featuresCmd(_ *flag.FlagSet) func(context.Context, *env) error {
	return func(_ context.Context, e *env) error {
		return output(e, renderFeatures, e.app.cfg.Features.GetAllFeatures())
	}
}

func signInCmd(fs *flag.FlagSet) func(context.Context, *env) error {
	email := fs.String("email", "", "account email (empty with -role uses the demo shortcut when enabled)")
	role := fs.String("role", "student", "role picked on the sign-in screen: student, teacher, admin")
	fromStdin := fs.Bool("password-stdin", false, "read the password from stdin")

	return func(ctx context.Context, e *env) error {
		var password string
		if *email != "" {
			var err error
			if password, err = readPassword(e, *fromStdin); err != nil {
				return err
			}
		}

		sess, err := e.app.resolver.SignIn(ctx, auth.SignInCommand{
			Email:    *email,
			Password: password,
			Role:     session.ParseRole(*role),
		})
		if err != nil {
			return err
		}
		return output(e, renderSession, sess)
	}
}

func signUpCmd(fs *flag.FlagSet) func(context.Context, *env) error {
	email := fs.String("email", "", "account email")
	name := fs.String("name", "", "display name, split into first and last name")
	role := fs.String("role", "student", "role written to the new profile")
	fromStdin := fs.Bool("password-stdin", false, "read the password from stdin")

	return func(ctx context.Context, e *env) error {
		if !e.app.cfg.Features.IsEnabled(config.FeatureAuthSignUp, nil) {
			return shared.NewDomainError("auth", "SignUp", shared.ErrForbidden, "sign-up is disabled")
		}

		password, err := readPassword(e, *fromStdin)
		if err != nil {
			return err
		}

		res, err := e.app.resolver.SignUp(ctx, auth.SignUpCommand{
			Email:       *email,
			Password:    password,
			DisplayName: *name,
			Role:        session.ParseRole(*role),
		})
		if err != nil {
			return err
		}
		if res.ProfileWarning != nil {
			printError(e.stderr, res.ProfileWarning)
		}
		return output(e, renderSignUp, res)
	}
}

func oauthCmd(fs *flag.FlagSet) func(context.Context, *env) error {
	role := fs.String("role", "student", "role picked on the sign-in screen")

	return func(ctx context.Context, e *env) error {
		if !e.app.cfg.Features.IsEnabled(config.FeatureAuthGoogle, nil) {
			return shared.NewDomainError("auth", "SignInWithOAuth", shared.ErrForbidden, "Google sign-in is disabled")
		}

		// The redirect lands on a callback-only listener for the duration
		// of the flow.
		listenCtx, stopListener := context.WithCancel(ctx)
		listenErr := make(chan error, 1)
		go func() {
			listenErr <- e.app.browser.ListenAndServe(listenCtx, e.app.cfg.OAuth.CallbackAddr)
		}()
		defer func() {
			stopListener()
			if err := <-listenErr; err != nil {
				e.app.log.Warn("oauth callback listener failed", logger.Err(err))
			}
		}()

		fmt.Fprintln(e.stderr, "Opening the browser. Finish signing in there.")
		sess, err := e.app.resolver.SignInWithOAuth(ctx, auth.OAuthCommand{Role: session.ParseRole(*role)})
		if err != nil {
			return err
		}
		return output(e, renderSession, sess)
	}
}

func signOutCmd(_ *flag.FlagSet) func(context.Context, *env) error {
	return func(ctx context.Context, e *env) error {
		return output(e, renderSession, e.app.resolver.SignOut(ctx))
	}
}

func onboardCmd(_ *flag.FlagSet) func(context.Context, *env) error {
	return func(ctx context.Context, e *env) error {
		sess, err := e.app.resolver.CompleteOnboarding(ctx)
		if err != nil {
			return err
		}
		return output(e, renderSession, sess)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ACADEMICS COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

func dashboardCmd(_ *flag.FlagSet) func(context.Context, *env) error {
	return func(ctx context.Context, e *env) error {
		sess, err := e.signedIn()
		if err != nil {
			return err
		}

		res, err := e.app.dashboard.Handle(ctx, query.GetDashboardQuery{
			UserID:          sess.UserID,
			IncludeInsights: e.featureFor(sess, config.FeatureDashboardInsights),
		})
		if err != nil {
			return err
		}
		return output(e, renderDashboard, res)
	}
}

func resultCmd(fs *flag.FlagSet) func(context.Context, *env) error {
	return func(ctx context.Context, e *env) error {
		if fs.NArg() != 1 {
			return shared.NewValidationError("Result", "usage: portal result ID")
		}
		sess, err := e.signedIn()
		if err != nil {
			return err
		}

		res, err := e.app.result.Handle(ctx, query.GetResultQuery{UserID: sess.UserID, ResultID: fs.Arg(0)})
		if err != nil {
			return err
		}
		return output(e, renderResult, res)
	}
}

func classesCmd(_ *flag.FlagSet) func(context.Context, *env) error {
	return func(ctx context.Context, e *env) error {
		sess, err := e.signedIn()
		if err != nil {
			return err
		}
		if sess.Role != session.RoleAdmin {
			return shared.NewAuthorizationError("ClassStats", "class statistics are for Principal accounts")
		}
		if !e.featureFor(sess, config.FeatureAdminClassStats) {
			return shared.NewDomainError("academics", "ClassStats", shared.ErrForbidden, "class statistics are disabled")
		}

		res, err := e.app.classStats.Handle(ctx)
		if err != nil {
			return err
		}
		return output(e, renderClassStats, res)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// TEACHER COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

func rosterCmd(fs *flag.FlagSet) func(context.Context, *env) error {
	date := fs.String("date", "", "day as YYYY-MM-DD (default today)")

	return func(ctx context.Context, e *env) error {
		sess, err := e.teacher("GetClassRoster")
		if err != nil {
			return err
		}

		res, err := e.app.roster.Handle(ctx, attendance.GetClassRosterQuery{TeacherID: sess.UserID, Date: *date})
		if err != nil {
			return err
		}
		return output(e, renderRoster, res)
	}
}

func attendCmd(fs *flag.FlagSet) func(context.Context, *env) error {
	date := fs.String("date", "", "day as YYYY-MM-DD (default today)")
	marks := fs.String("mark", "", "comma separated STUDENT_ID=present|absent|late")
	allPresent := fs.Bool("all-present", false, "mark everyone not listed in -mark as present")

	return func(ctx context.Context, e *env) error {
		sess, err := e.teacher("MarkAttendance")
		if err != nil {
			return err
		}

		parsed, err := parseMarks(*marks)
		if err != nil {
			return err
		}

		res, err := e.app.mark.Handle(ctx, attendance.MarkAttendanceCommand{
			TeacherID:   sess.UserID,
			Date:        *date,
			Marks:       parsed,
			FillPresent: *allPresent,
		})
		if err != nil {
			return err
		}
		return output(e, renderMarked, res)
	}
}

// parseMarks reads "s1=present,s2=late".
func parseMarks(raw string) (map[string]academics.AttendanceStatus, error) {
	out := make(map[string]academics.AttendanceStatus)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(id) == "" {
			return nil, shared.NewDomainError("academics", "MarkAttendance", shared.ErrValidation,
				fmt.Sprintf("bad mark %q, want STUDENT_ID=STATUS", pair))
		}
		status, err := academics.ParseAttendanceStatus(value)
		if err != nil {
			return nil, err
		}
		out[strings.TrimSpace(id)] = status
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVE
// ══════════════════════════════════════════════════════════════════════════════

func serveCmd(_ *flag.FlagSet) func(context.Context, *env) error {
	return func(ctx context.Context, e *env) error {
		a := e.app
		cfg := a.cfg

		// ─────────────────────────────────────────────────────────────────────
		// Scheduler
		// ─────────────────────────────────────────────────────────────────────
		if cfg.Scheduler.Enabled {
			sched, err := newScheduler(a)
			if err != nil {
				return err
			}
			if err := sched.Start(ctx); err != nil {
				return err
			}
			defer func() { _ = sched.Stop() }()
		}

		// ─────────────────────────────────────────────────────────────────────
		// HTTP API
		// ─────────────────────────────────────────────────────────────────────
		srvCfg := httpapi.FromAppConfig(cfg.HTTP, cfg.Observability.MetricsEnabled, cfg.App.Version)
		srvCfg.OAuthTimeout = cfg.OAuth.Timeout

		srv, err := httpapi.NewServer(srvCfg, httpapi.Dependencies{
			Sessions:       a.resolver,
			Dashboard:      a.dashboard,
			Result:         a.result,
			ClassStats:     a.classStats,
			Roster:         a.roster,
			MarkAttendance: a.mark,
			OAuthCallback:  a.browser,
			Features:       cfg.Features,
			HealthChecker:  a.health,
			Gatherer:       a.registry,
			Logger:         a.log,
		})
		if err != nil {
			return err
		}

		errCh := srv.StartAsync()
		a.log.Info("school portal is running",
			logger.String("http_address", srvCfg.Addr),
			logger.Bool("scheduler", cfg.Scheduler.Enabled),
		)

		select {
		case <-ctx.Done():
			a.log.Info("received shutdown signal")
		case err := <-errCh:
			if err != nil {
				return err
			}
			return nil
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("failed to stop HTTP server gracefully", logger.Err(err))
			return err
		}
		a.log.Info("shutdown completed successfully")
		return nil
	}
}

// newScheduler registers the session refresh job and exports run outcomes.
func newScheduler(a *app) (*scheduler.Scheduler, error) {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portal",
		Subsystem: "scheduler",
		Name:      "job_runs_total",
		Help:      "Scheduled job runs by job and outcome.",
	}, []string{"job", "outcome"})
	if err := a.registry.Register(runs); err != nil {
		return nil, err
	}

	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{Logger: a.slog})
	sched.OnJobComplete(func(r scheduler.JobResult) {
		outcome := "success"
		if !r.Success {
			outcome = "error"
		}
		runs.WithLabelValues(r.JobName, outcome).Inc()
	})

	job := jobs.NewRefreshSessionJob(a.resolver, a.cfg.Scheduler.JobTimeout, a.slog)
	if err := sched.Register(job, scheduler.NewIntervalSchedule(a.cfg.Scheduler.RefreshInterval)); err != nil {
		return nil, err
	}
	return sched, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func (e *env) signedIn() (session.Session, error) {
	sess := e.app.resolver.Session()
	if !sess.Authenticated {
		return sess, shared.ErrNotSignedIn
	}
	return sess, nil
}

func (e *env) teacher(op string) (session.Session, error) {
	sess, err := e.signedIn()
	if err != nil {
		return sess, err
	}
	if sess.Role != session.RoleTeacher {
		return sess, shared.NewAuthorizationError(op, "attendance is for Teacher accounts")
	}
	if !e.featureFor(sess, config.FeatureTeacherAttendance) {
		return sess, shared.NewDomainError("academics", op, shared.ErrForbidden, "attendance is disabled")
	}
	return sess, nil
}

func (e *env) featureFor(sess session.Session, name string) bool {
	return e.app.cfg.Features.IsEnabled(name, &config.FeatureContext{
		UserID: sess.UserID,
		Role:   sess.Role.String(),
	})
}

// readPassword prompts on a terminal without echo, or reads one line.
func readPassword(e *env, fromStdin bool) (string, error) {
	if f, ok := e.stdin.(*os.File); ok && !fromStdin && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(e.stderr, "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(e.stderr)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	return readLine(e.stdin)
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
