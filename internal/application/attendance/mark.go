package attendance

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jkcollege/school-portal/internal/domain/academics"
	"github.com/jkcollege/school-portal/internal/domain/shared"
	"github.com/jkcollege/school-portal/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MARK ATTENDANCE COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// MarkAttendanceCommand saves the register for one day.
type MarkAttendanceCommand struct {
	TeacherID string `validate:"required"`

	// Date is YYYY-MM-DD. Empty means today in the school timezone.
	Date string `validate:"omitempty,datetime=2006-01-02"`

	// Marks maps student ID to status.
	Marks map[string]academics.AttendanceStatus

	// FillPresent marks everyone without a mark as present first.
	FillPresent bool
}

// MarkAttendanceResult reports what was written.
type MarkAttendanceResult struct {
	Date  string `json:"date"`
	Saved int    `json:"saved"`
}

// MarkAttendanceHandler validates and upserts the register.
type MarkAttendanceHandler struct {
	students StudentSource
	register academics.AttendanceRegister
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewMarkAttendanceHandler creates the handler.
func NewMarkAttendanceHandler(students StudentSource, register academics.AttendanceRegister, logger *slog.Logger) *MarkAttendanceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MarkAttendanceHandler{
		students: students,
		register: register,
		validate: validator.New(),
		logger:   logger.With("component", "attendance"),
		now:      timeutil.Now,
	}
}

// Handle runs the command. The caller checks the teacher role.
//
// Every student of the class needs a mark; marks for students outside the
// class are rejected. Nothing is written unless the whole register passes.
func (h *MarkAttendanceHandler) Handle(ctx context.Context, cmd MarkAttendanceCommand) (*MarkAttendanceResult, error) {
	const op = "MarkAttendance"

	if err := h.validate.Struct(cmd); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 && ve[0].Field() == "Date" {
			return nil, invalid(op, "date must be YYYY-MM-DD")
		}
		return nil, invalid(op, "teacher is required")
	}

	assignment, err := h.register.GetTeacherAssignment(ctx, cmd.TeacherID)
	if err != nil {
		return nil, err
	}

	students, err := h.students.ListStudents(ctx)
	if err != nil {
		return nil, err
	}
	roster := academics.ClassRoster(students, *assignment)

	inClass := make(map[string]bool, len(roster))
	for _, s := range roster {
		inClass[s.ID] = true
	}
	for id, status := range cmd.Marks {
		if !inClass[id] {
			return nil, invalid(op, "student "+id+" is not in your class")
		}
		if !status.IsValid() {
			return nil, invalid(op, "invalid status "+string(status)+" for student "+id)
		}
	}

	marks := cmd.Marks
	if cmd.FillPresent {
		marks = academics.FillPresent(roster, marks)
	}
	if err := academics.CheckComplete(roster, marks); err != nil {
		return nil, err
	}

	date := cmd.Date
	if date == "" {
		date = timeutil.FormatDateStr(h.now())
	}
	if len(roster) == 0 {
		return &MarkAttendanceResult{Date: date}, nil
	}

	records := make([]academics.DailyAttendance, 0, len(roster))
	for _, s := range roster {
		records = append(records, academics.DailyAttendance{
			StudentID: s.ID,
			Date:      date,
			Status:    marks[s.ID],
			MarkedBy:  cmd.TeacherID,
		})
	}
	if err := h.register.UpsertDailyAttendance(ctx, records); err != nil {
		return nil, err
	}

	h.logger.Info("attendance saved",
		"teacher_id", cmd.TeacherID,
		"class", assignment.ClassName,
		"section", assignment.Section,
		"date", date,
		"count", len(records),
	)
	return &MarkAttendanceResult{Date: date, Saved: len(records)}, nil
}

func invalid(op, message string) error {
	return shared.NewDomainError("academics", op, shared.ErrValidation, message)
}
