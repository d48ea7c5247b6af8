package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/fitclass-api/internal/models"
	"github.com/noah-isme/fitclass-api/internal/scheduling"
	appErrors "github.com/noah-isme/fitclass-api/pkg/errors"
	"github.com/noah-isme/fitclass-api/pkg/export"
)

type sheetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
}

type attendanceLister interface {
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, error)
}

// SheetFormat selects the rendering of an attendance sheet.
type SheetFormat string

const (
	SheetCSV SheetFormat = "csv"
	SheetPDF SheetFormat = "pdf"
)

// Sheet is a rendered attendance sheet.
type Sheet struct {
	Filename    string
	ContentType string
	Content     []byte
}

// ExportService renders attendance sheets for a session.
type ExportService struct {
	classes    classFinder
	attendance attendanceLister
	renderers  map[SheetFormat]sheetRenderer
	logger     *zap.Logger
	loc        *time.Location
}

// NewExportService constructs an ExportService. Nil renderers fall back to pkg/export.
func NewExportService(classes classFinder, attendance attendanceLister, csv, pdf sheetRenderer, logger *zap.Logger, cfg ScheduleConfig) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		classes:    classes,
		attendance: attendance,
		renderers:  map[SheetFormat]sheetRenderer{SheetCSV: csv, SheetPDF: pdf},
		logger:     logger,
		loc:        cfg.location(),
	}
}

// SessionSheet renders the roster of session n with each member's presence.
func (s *ExportService) SessionSheet(ctx context.Context, classID string, n int, format SheetFormat, actor Actor) (*Sheet, error) {
	format = SheetFormat(strings.ToLower(string(format)))
	if format == "" {
		format = SheetCSV
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, validationError("format must be csv or pdf")
	}
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		return nil, notFoundOrInternal(err, "class not found", "failed to load class")
	}
	if actor.Role == models.RoleTrainer && class.TrainerID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "class is not assigned to this trainer")
	}
	if n < 1 || n > class.TotalSessions {
		return nil, validationError(fmt.Sprintf("session must be between 1 and %d", class.TotalSessions))
	}
	records, err := s.attendance.List(ctx, models.AttendanceFilter{ClassID: classID, SessionNumber: n})
	if err != nil {
		return nil, internalError(err, "failed to load attendance")
	}
	if len(records) == 0 {
		return nil, stateError(fmt.Sprintf("session %d has not been opened", n))
	}

	content, err := renderer.Render(s.sessionDataset(class, n, records))
	if err != nil {
		s.logger.Error("attendance sheet render failed", zap.String("class_id", classID), zap.Int("session", n), zap.Error(err))
		return nil, internalError(err, "failed to render attendance sheet")
	}
	return &Sheet{
		Filename:    fmt.Sprintf("attendance-%s-session-%d.%s", classID, n, format),
		ContentType: renderer.ContentType(),
		Content:     content,
	}, nil
}

func (s *ExportService) sessionDataset(class *models.ClassDefinition, n int, records []models.AttendanceRecord) export.Dataset {
	present := 0
	rows := make([]map[string]string, 0, len(records))
	for _, rec := range records {
		status := "absent"
		checkedIn := ""
		if rec.Present {
			present++
			status = "present"
		}
		if rec.CheckedInAt != nil {
			checkedIn = rec.CheckedInAt.In(s.loc).Format("15:04")
		}
		if !rec.Marked() && rec.UpdatedAt.Equal(rec.CreatedAt) {
			status = "unmarked"
		}
		rows = append(rows, map[string]string{
			"member":     rec.MemberID,
			"status":     status,
			"checked_in": checkedIn,
			"note":       deref(rec.Note),
		})
	}
	notes := []string{
		"Session date: " + records[0].SessionDate.Format(scheduling.DateLayout),
		"Present: " + strconv.Itoa(present) + " of " + strconv.Itoa(len(records)),
	}
	if class.Location != nil {
		notes = append(notes, "Location: "+*class.Location)
	}
	return export.Dataset{
		Title: fmt.Sprintf("%s - session %d", class.Name, n),
		Notes: notes,
		Columns: []export.Column{
			{Key: "member", Label: "Member", Width: 3},
			{Key: "status", Label: "Status", Width: 1.5},
			{Key: "checked_in", Label: "Checked in", Width: 1.5},
			{Key: "note", Label: "Note", Width: 4},
		},
		Rows: rows,
	}
}
