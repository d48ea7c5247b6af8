package service

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fitclass-api/internal/models"
	"github.com/noah-isme/fitclass-api/internal/scheduling"
	appErrors "github.com/noah-isme/fitclass-api/pkg/errors"
)

type classFixture struct {
	*conflictFixture
	mock        sqlmock.Sqlmock
	enrollments *enrollmentStoreFake
	attendance  *attendanceStoreFake
	locker      *lockerStub
	notifier    *notifierRecorder
	service     *ClassService
}

func newClassFixture(t *testing.T) *classFixture {
	t.Helper()
	conflicts := newConflictFixture(t)
	db, mock := newTxProviderMock(t)
	f := &classFixture{
		conflictFixture: conflicts,
		mock:            mock,
		enrollments:     newEnrollmentStore(paidEnrollment("enr-1", "class-1", "member-1"), paidEnrollment("enr-2", "class-1", "member-2")),
		attendance:      &attendanceStoreFake{},
		locker:          &lockerStub{},
		notifier:        &notifierRecorder{},
	}
	cfg := testScheduleConfig()
	recalculator := NewAttendanceService(db, f.attendance, conflicts.classes, f.enrollments, f.locker, nil, nil, nil, nil, cfg)
	f.service = NewClassService(db, conflicts.classes, conflicts.rooms, conflicts.changes, f.enrollments, conflicts.service, f.locker, recalculator, nil, f.notifier, nil, nil, cfg)
	return f
}

func weekly(day time.Weekday, start, end string) scheduling.Pattern {
	return scheduling.Pattern{{Day: scheduling.Day(day), Start: scheduling.MustTime(start), End: scheduling.MustTime(end)}}
}

func TestClassServiceCreateDetectsRoomConflicts(t *testing.T) {
	f := newClassFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.service.Create(context.Background(), models.CreateClassRequest{
		Name:          "Lunch Pilates",
		TrainerID:     "trainer-2",
		RoomID:        strPtr("room-r"),
		Capacity:      5,
		Recurrence:    weekly(time.Monday, "18:30", "19:30"),
		StartDate:     "2024-01-15",
		EndDate:       "2024-02-15",
		TotalSessions: 4,
	}, adminActor)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrScheduleConflict.Code, appErr.Code)
	conflicts := appErr.Details.(map[string]interface{})["conflicts"].([]scheduling.Occupant)
	require.Len(t, conflicts, 3)
	assert.Equal(t, 7, conflicts[0].SessionNumber)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestClassServiceCreate(t *testing.T) {
	f := newClassFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	result, err := f.service.Create(context.Background(), models.CreateClassRequest{
		Name:          " Tuesday Strength ",
		TrainerID:     "trainer-2",
		RoomID:        strPtr("room-r"),
		Capacity:      8,
		Recurrence:    weekly(time.Tuesday, "18:00", "19:00"),
		StartDate:     "2024-01-16",
		EndDate:       "2024-02-29",
		TotalSessions: 6,
	}, adminActor)
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, "Tuesday Strength", result.Class.Name)
	assert.Equal(t, scheduling.StatusUpcoming, result.Class.Status)
	assert.Contains(t, f.locker.keys, "room:room-r:2024-01-16")
	assert.Len(t, f.classes.classes, 2)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestClassServiceCreateValidation(t *testing.T) {
	base := models.CreateClassRequest{
		Name:          "Stretch",
		TrainerID:     "trainer-2",
		RoomID:        strPtr("room-r"),
		Capacity:      8,
		Recurrence:    weekly(time.Friday, "07:00", "08:00"),
		StartDate:     "2024-01-12",
		EndDate:       "2024-02-29",
		TotalSessions: 6,
	}
	cases := map[string]struct {
		mutate func(*models.CreateClassRequest)
		code   string
	}{
		"over room capacity": {func(r *models.CreateClassRequest) { r.Capacity = 50 }, appErrors.ErrValidation.Code},
		"unknown room":       {func(r *models.CreateClassRequest) { r.RoomID = strPtr("room-x") }, appErrors.ErrNotFound.Code},
		"range too short":    {func(r *models.CreateClassRequest) { r.TotalSessions = 30 }, appErrors.ErrValidation.Code},
		"reversed range":     {func(r *models.CreateClassRequest) { r.EndDate = "2024-01-01" }, appErrors.ErrValidation.Code},
		"inverted slot":      {func(r *models.CreateClassRequest) { r.Recurrence = weekly(time.Friday, "09:00", "08:00") }, appErrors.ErrValidation.Code},
		"empty recurrence":   {func(r *models.CreateClassRequest) { r.Recurrence = nil }, appErrors.ErrValidation.Code},
		"too many sessions":  {func(r *models.CreateClassRequest) { r.TotalSessions = scheduling.MaxSessions + 1 }, appErrors.ErrValidation.Code},
		"range too long":     {func(r *models.CreateClassRequest) { r.EndDate = "2034-01-12" }, appErrors.ErrValidation.Code},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newClassFixture(t)
			req := base
			tc.mutate(&req)

			_, err := f.service.Create(context.Background(), req, adminActor)
			require.Error(t, err)
			assert.Equal(t, tc.code, appErrors.FromError(err).Code)
			assert.NoError(t, f.mock.ExpectationsWereMet())
		})
	}
}

func TestClassServiceUpdateScheduleReconcilesAttendance(t *testing.T) {
	f := newClassFixture(t)
	for n := 9; n <= 12; n++ {
		rec := &models.AttendanceRecord{ClassID: "class-1", MemberID: "member-1", SessionNumber: n}
		if n == 9 {
			rec.Present = true
		}
		f.attendance.records = append(f.attendance.records, rec)
	}
	total := 8
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	result, err := f.service.UpdateSchedule(context.Background(), "class-1", models.UpdateClassScheduleRequest{TotalSessions: &total}, trainerActor)
	require.NoError(t, err)
	assert.Equal(t, 8, result.Class.TotalSessions)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, models.WarningReconciliation, result.Warnings[0].Code)
	assert.Equal(t, []int{9}, f.attendance.sessions("class-1"))

	stored, err := f.classes.FindByID(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Equal(t, 8, stored.TotalSessions)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestClassServiceUpdateScheduleConflictKeepsClass(t *testing.T) {
	f := newClassFixture(t)
	f.windows.windows["mw-1"] = &models.MaintenanceWindow{
		ID: "mw-1", RoomID: "room-r", Title: "Sprinkler test", Status: models.MaintenanceScheduled,
		ScheduledStart: time.Date(2024, 1, 16, 18, 0, 0, 0, time.UTC), DurationMinutes: 30,
	}
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.service.UpdateSchedule(context.Background(), "class-1", models.UpdateClassScheduleRequest{
		Recurrence: weekly(time.Tuesday, "18:00", "20:00"),
	}, adminActor)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrScheduleConflict.Code, appErr.Code)
	conflicts := appErr.Details.(map[string]interface{})["conflicts"].([]scheduling.Occupant)
	require.Len(t, conflicts, 1)
	assert.Equal(t, scheduling.KindMaintenance, conflicts[0].Kind)

	stored, err := f.classes.FindByID(context.Background(), "class-1")
	require.NoError(t, err)
	assert.True(t, stored.Recurrence.Equal(eveningPattern()))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestClassServiceUpdateScheduleRejectsOversizedCourse(t *testing.T) {
	f := newClassFixture(t)
	endDate := "9999-12-31"
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.service.UpdateSchedule(context.Background(), "class-1", models.UpdateClassScheduleRequest{EndDate: &endDate}, trainerActor)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "date range must not exceed")

	total := 5000
	_, err = f.service.UpdateSchedule(context.Background(), "class-1", models.UpdateClassScheduleRequest{TotalSessions: &total}, trainerActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	stored, err := f.classes.FindByID(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Equal(t, 12, stored.TotalSessions)
	assert.Equal(t, "2024-03-31", stored.EndDate.Format(scheduling.DateLayout))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestClassServiceUpdateScheduleWithoutChangeIsNoop(t *testing.T) {
	f := newClassFixture(t)
	total := 12
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	result, err := f.service.UpdateSchedule(context.Background(), "class-1", models.UpdateClassScheduleRequest{TotalSessions: &total}, trainerActor)
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, scheduling.StatusOngoing, result.Class.Status)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestClassServiceScheduleAppliesApprovedChanges(t *testing.T) {
	f := newClassFixture(t)

	schedule, err := f.service.Schedule(context.Background(), "class-1")
	require.NoError(t, err)
	require.Len(t, schedule.Sessions, 13)
	assert.Equal(t, scheduling.StatusOngoing, schedule.Status)

	var cancelled, makeups []models.ScheduledSession
	for _, session := range schedule.Sessions {
		if session.Cancelled {
			cancelled = append(cancelled, session)
		}
		if session.Kind == models.SessionMakeup {
			makeups = append(makeups, session)
		}
	}
	require.Len(t, cancelled, 1)
	assert.Equal(t, "2024-01-15", cancelled[0].Date.Format(scheduling.DateLayout))
	assert.Equal(t, "req-1", cancelled[0].RequestID)
	require.Len(t, makeups, 1)
	assert.Equal(t, "2024-01-20", makeups[0].Date.Format(scheduling.DateLayout))
	assert.Equal(t, "2024-01-17", schedule.Sessions[5].Date.Format(scheduling.DateLayout))
	assert.Equal(t, models.SessionMakeup, schedule.Sessions[6].Kind)
}

func TestClassServiceCancel(t *testing.T) {
	f := newClassFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	class, err := f.service.Cancel(context.Background(), "class-1", models.CancelClassRequest{Reason: "trainer left"}, adminActor)
	require.NoError(t, err)
	assert.Equal(t, scheduling.StatusCancelled, class.Status)
	assert.Equal(t, "trainer left", deref(class.CancelReason))
	require.Len(t, f.notifier.items, 1)
	assert.Equal(t, models.NotifyClassCancelled, f.notifier.items[0].Category)
	assert.ElementsMatch(t, []string{"trainer-1", "member-1", "member-2"}, f.notifier.items[0].Recipients)

	availability, err := f.conflictFixture.service.CheckAvailability(context.Background(), "room-r",
		time.Date(2024, 1, 17, 18, 0, 0, 0, time.UTC), time.Date(2024, 1, 17, 19, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, availability.Available)

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = f.service.Cancel(context.Background(), "class-1", models.CancelClassRequest{}, adminActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestClassServiceGetDerivesStatus(t *testing.T) {
	f := newClassFixture(t)
	f.classes.classes["class-1"].CurrentSessions = 12

	class, err := f.service.Get(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Equal(t, scheduling.StatusCompleted, class.Status)

	_, err = f.service.Get(context.Background(), "class-x")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
