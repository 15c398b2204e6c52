package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkcollege/school-portal/config"
	"github.com/jkcollege/school-portal/internal/application/attendance"
	"github.com/jkcollege/school-portal/internal/application/auth"
	"github.com/jkcollege/school-portal/internal/application/query"
	"github.com/jkcollege/school-portal/internal/domain/academics"
	"github.com/jkcollege/school-portal/internal/domain/session"
	"github.com/jkcollege/school-portal/internal/domain/shared"
)

func TestRun_Usage(t *testing.T) {
	var stderr bytes.Buffer

	err := run(context.Background(), nil, strings.NewReader(""), &bytes.Buffer{}, &stderr)
	assert.ErrorIs(t, err, errUsage)
	assert.Contains(t, stderr.String(), "dashboard")
	assert.Contains(t, stderr.String(), "signin")

	stderr.Reset()
	err = run(context.Background(), []string{"enroll"}, strings.NewReader(""), &bytes.Buffer{}, &stderr)
	assert.ErrorIs(t, err, errUsage)
	assert.Contains(t, stderr.String(), `unknown command "enroll"`)

	stderr.Reset()
	err = run(context.Background(), []string{"signin", "-bogus"}, strings.NewReader(""), &bytes.Buffer{}, &stderr)
	assert.ErrorIs(t, err, errUsage)
	assert.Contains(t, stderr.String(), "usage: portal signin")
}

func TestReadPassword_FromReader(t *testing.T) {
	e := &env{stdin: strings.NewReader("s3cret\r\nignored\n"), stderr: &bytes.Buffer{}}

	pw, err := readPassword(e, true)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pw)

	e.stdin = strings.NewReader("no-newline")
	pw, err = readPassword(e, false)
	require.NoError(t, err)
	assert.Equal(t, "no-newline", pw)
}

func TestPrintError(t *testing.T) {
	var buf bytes.Buffer
	printError(&buf, shared.NewInvalidCredentialsError("SignIn", nil))
	assert.Equal(t, "Sign In Failed: Invalid email or password\n", buf.String())

	buf.Reset()
	printError(&buf, errors.New("dial tcp 10.0.0.1:5432: refused"))
	assert.Equal(t, "Error: dial tcp 10.0.0.1:5432: refused\n", buf.String())
}

func TestRenderSession(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderSession(&buf, session.Authenticated("u1", session.RoleAdmin, true)))
	assert.Equal(t, "Signed in as Principal (u1)\nNext screen: admin\n", buf.String())

	buf.Reset()
	require.NoError(t, renderSession(&buf, session.Unauthenticated(false)))
	assert.Equal(t, "Signed out (onboarding not seen)\nNext screen: onboarding\n", buf.String())
}

func TestOutput_JSON(t *testing.T) {
	var stdout bytes.Buffer
	e := &env{stdout: &stdout, json: true}

	require.NoError(t, output(e, renderSignUp, &auth.SignUpResult{UserID: "u9", Email: "a@b.co", ConfirmationRequired: true}))
	assert.Contains(t, stdout.String(), `"ConfirmationRequired": true`)
}

func TestRenderDashboard(t *testing.T) {
	data := &query.StudentData{
		Student: academics.Student{ID: "s1", FirstName: "Asha", LastName: "Rao", ClassName: "10", Section: "A"},
		Results: []academics.StudentResult{{
			ID: "r1", ExamName: "Midterm", Percentage: 72.25,
			Entries: []academics.ResultEntry{
				{SubjectName: "Math", MarksObtained: 45, MaxMarks: 50},
				{SubjectName: "History", MarksObtained: 27, MaxMarks: 50},
			},
		}},
		Attendance: &academics.AttendanceRecord{TotalDays: 100, PresentDays: 90, AbsentDays: 10},
		Exams:      []academics.UpcomingExam{{Name: "Finals", Date: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)}},
	}
	dash := query.BuildDashboard(data, true, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	var buf bytes.Buffer
	require.NoError(t, renderDashboard(&buf, dash))
	out := buf.String()

	assert.Contains(t, out, "Asha Rao")
	assert.Contains(t, out, "72.3%")
	assert.Contains(t, out, "Strongest")
	assert.Contains(t, out, "Mar 2, 2026")
	assert.Contains(t, out, "90/100 days")
}

func TestRenderClassStats(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderClassStats(&buf, &query.ClassStatsResult{
		Classes:       []academics.ClassStats{{ClassName: "10", Sections: []string{"A", "B"}, StudentCount: 2, AvgPercentage: 77.75}},
		TotalStudents: 2,
	}))
	assert.Contains(t, buf.String(), "A, B")
	assert.Contains(t, buf.String(), "77.8%")
}

func TestRenderFeatures(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderFeatures(&buf, map[string]config.Feature{
		config.FeatureAuthSignUp:      {Name: config.FeatureAuthSignUp, Enabled: true, RolloutPercent: 100},
		config.FeatureAdminClassStats: {Name: config.FeatureAdminClassStats, Enabled: false, TargetRoles: []string{"admin"}},
	}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], config.FeatureAdminClassStats)
	assert.Contains(t, lines[1], "off")
	assert.Contains(t, lines[1], "admin")
	assert.Contains(t, lines[2], "on")
	assert.Contains(t, lines[2], "100%")
}

func TestRenderRoster(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderRoster(&buf, &attendance.RosterResult{
		Assignment: academics.TeacherAssignment{ClassName: "10", Section: "A"},
		Date:       "2026-03-02",
		Entries: []attendance.RosterEntry{
			{Student: academics.Student{ID: "s1", FirstName: "Asha", LastName: "Rao", RollNumber: "7"}, Status: academics.StatusLate},
			{Student: academics.Student{ID: "s2", FirstName: "Ben"}},
		},
		Marked:   1,
		Unmarked: 1,
	}))

	out := buf.String()
	assert.Contains(t, out, "10 A")
	assert.Contains(t, out, "1 of 2")
	assert.Contains(t, out, "Asha Rao")
	assert.Contains(t, out, "late")
}

func TestParseMarks(t *testing.T) {
	marks, err := parseMarks(" s1=present, s2=LATE,,")
	require.NoError(t, err)
	assert.Equal(t, map[string]academics.AttendanceStatus{"s1": academics.StatusPresent, "s2": academics.StatusLate}, marks)

	marks, err = parseMarks("")
	require.NoError(t, err)
	assert.Empty(t, marks)

	_, err = parseMarks("s1")
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = parseMarks("s1=excused")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestNumber(t *testing.T) {
	assert.Equal(t, "45", number(45))
	assert.Equal(t, "38.5", number(38.5))
	assert.Equal(t, "-", orDash("  "))
}
