package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fitclass-api/internal/models"
	appErrors "github.com/noah-isme/fitclass-api/pkg/errors"
	"github.com/noah-isme/fitclass-api/pkg/export"
)

type failingRenderer struct{}

func (failingRenderer) Render(export.Dataset) ([]byte, error) {
	return nil, errors.New("font missing")
}

func (failingRenderer) ContentType() string {
	return "application/pdf"
}

func newExportFixture(t *testing.T) (*ExportService, *attendanceStoreFake) {
	t.Helper()
	sessionDate := mustDate(t, "2024-01-08")
	checkedIn := time.Date(2024, 1, 8, 18, 5, 0, 0, time.UTC)
	later := fixedNow.Add(time.Hour)
	attendance := &attendanceStoreFake{records: []*models.AttendanceRecord{
		{ClassID: "class-1", MemberID: "member-1", SessionNumber: 3, SessionDate: sessionDate, Present: true, CheckedInAt: &checkedIn, CreatedAt: fixedNow, UpdatedAt: later},
		{ClassID: "class-1", MemberID: "member-2", SessionNumber: 3, SessionDate: sessionDate, Note: strPtr("injured"), CreatedAt: fixedNow, UpdatedAt: later},
		{ClassID: "class-1", MemberID: "member-3", SessionNumber: 3, SessionDate: sessionDate, CreatedAt: fixedNow, UpdatedAt: fixedNow},
	}}
	svc := NewExportService(newClassStore(sampleClass(t)), attendance, nil, nil, nil, testScheduleConfig())
	return svc, attendance
}

func TestExportServiceSessionSheetCSV(t *testing.T) {
	svc, _ := newExportFixture(t)

	sheet, err := svc.SessionSheet(context.Background(), "class-1", 3, "", trainerActor)
	require.NoError(t, err)
	assert.Equal(t, "attendance-class-1-session-3.csv", sheet.Filename)
	assert.Equal(t, "text/csv", sheet.ContentType)
	assert.Equal(t,
		"Member,Status,Checked in,Note\nmember-1,present,18:05,\nmember-2,absent,,injured\nmember-3,unmarked,,\n",
		string(sheet.Content))
}

func TestExportServiceSessionSheetPDF(t *testing.T) {
	svc, _ := newExportFixture(t)

	sheet, err := svc.SessionSheet(context.Background(), "class-1", 3, "PDF", adminActor)
	require.NoError(t, err)
	assert.Equal(t, "attendance-class-1-session-3.pdf", sheet.Filename)
	assert.True(t, bytes.HasPrefix(sheet.Content, []byte("%PDF")))
}

func TestExportServiceSessionSheetErrors(t *testing.T) {
	svc, _ := newExportFixture(t)

	_, err := svc.SessionSheet(context.Background(), "class-1", 3, "xlsx", adminActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.SessionSheet(context.Background(), "class-1", 4, SheetCSV, adminActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)

	_, err = svc.SessionSheet(context.Background(), "class-1", 13, SheetCSV, adminActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.SessionSheet(context.Background(), "class-1", 3, SheetCSV, Actor{UserID: "trainer-2", Role: models.RoleTrainer})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.SessionSheet(context.Background(), "class-x", 3, SheetCSV, adminActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestExportServiceRenderFailure(t *testing.T) {
	_, attendance := newExportFixture(t)
	svc := NewExportService(newClassStore(sampleClass(t)), attendance, nil, failingRenderer{}, nil, testScheduleConfig())

	_, err := svc.SessionSheet(context.Background(), "class-1", 3, SheetPDF, adminActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}
