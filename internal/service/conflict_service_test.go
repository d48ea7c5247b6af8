package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fitclass-api/internal/models"
	"github.com/noah-isme/fitclass-api/internal/scheduling"
	appErrors "github.com/noah-isme/fitclass-api/pkg/errors"
)

type conflictFixture struct {
	classes *classStoreFake
	changes *changeStoreFake
	windows *windowStoreFake
	rooms   *roomStoreFake
	service *ConflictService
}

func newConflictFixture(t *testing.T) *conflictFixture {
	t.Helper()
	f := &conflictFixture{
		classes: newClassStore(sampleClass(t)),
		changes: newChangeStore(approvedMakeupRequest(t)),
		windows: newWindowStore(),
		rooms: newRoomStore(
			models.Room{ID: "room-r", Name: "Studio R", Capacity: 20, Status: models.RoomActive},
			models.Room{ID: "room-closed", Name: "Studio C", Capacity: 20, Status: models.RoomMaintenance},
		),
	}
	f.service = NewConflictService(f.classes, f.changes, f.windows, f.rooms, nil, nil, time.UTC)
	return f
}

// approvedMakeupRequest retires the 2024-01-15 session and books a makeup on Saturday 2024-01-20 18:00-20:00.
func approvedMakeupRequest(t *testing.T) *models.ScheduleChangeRequest {
	makeupDate := mustDate(t, "2024-01-20")
	return &models.ScheduleChangeRequest{
		ID:            "req-1",
		TrainerID:     "trainer-1",
		ClassID:       "class-1",
		OriginalDate:  mustDate(t, "2024-01-15"),
		RequestedDate: makeupDate,
		Reason:        "trainer attends a certification",
		Urgency:       models.UrgencyNormal,
		Status:        models.ScheduleChangeApproved,
		MakeupDate:    &makeupDate,
		MakeupStart:   strPtr("18:00"),
		MakeupEnd:     strPtr("20:00"),
		MakeupRoomID:  strPtr("room-r"),
	}
}

func at(t *testing.T, day, clock string) time.Time {
	return scheduling.MustTime(clock).On(mustDate(t, day), time.UTC)
}

func TestConflictServiceReportsMakeupOccupant(t *testing.T) {
	f := newConflictFixture(t)

	availability, err := f.service.CheckAvailability(context.Background(), "room-r", at(t, "2024-01-20", "18:30"), at(t, "2024-01-20", "19:30"))
	require.NoError(t, err)
	assert.False(t, availability.Available)
	require.Len(t, availability.Conflicts, 1)
	assert.Equal(t, scheduling.KindMakeup, availability.Conflicts[0].Kind)
	assert.Equal(t, "req-1", availability.Conflicts[0].SourceID)
	assert.Equal(t, "class-1", availability.Conflicts[0].ClassID)
}

func TestConflictServiceReleasedDateIsFree(t *testing.T) {
	f := newConflictFixture(t)

	availability, err := f.service.CheckAvailability(context.Background(), "room-r", at(t, "2024-01-15", "18:00"), at(t, "2024-01-15", "19:00"))
	require.NoError(t, err)
	assert.True(t, availability.Available)
	assert.Empty(t, availability.Conflicts)
}

func TestConflictServiceReportsRegularOccurrence(t *testing.T) {
	f := newConflictFixture(t)

	availability, err := f.service.CheckAvailability(context.Background(), "room-r", at(t, "2024-01-17", "19:00"), at(t, "2024-01-17", "21:00"))
	require.NoError(t, err)
	require.Len(t, availability.Conflicts, 1)
	assert.Equal(t, scheduling.KindClass, availability.Conflicts[0].Kind)
	assert.Equal(t, 6, availability.Conflicts[0].SessionNumber)
}

func TestConflictServiceTouchingBoundsDoNotConflict(t *testing.T) {
	f := newConflictFixture(t)

	availability, err := f.service.CheckAvailability(context.Background(), "room-r", at(t, "2024-01-17", "20:00"), at(t, "2024-01-17", "21:00"))
	require.NoError(t, err)
	assert.True(t, availability.Available)
}

func TestConflictServiceIgnoresCancelledClassesAndInactiveWindows(t *testing.T) {
	f := newConflictFixture(t)
	cancelledAt := fixedNow
	f.classes.classes["class-1"].CancelledAt = &cancelledAt
	f.windows.windows["mw-1"] = &models.MaintenanceWindow{
		ID: "mw-1", RoomID: "room-r", Title: "Floor polish", Status: models.MaintenanceCancelled,
		ScheduledStart: at(t, "2024-01-17", "18:00"), DurationMinutes: 60,
	}

	availability, err := f.service.CheckAvailability(context.Background(), "room-r", at(t, "2024-01-17", "18:00"), at(t, "2024-01-17", "19:00"))
	require.NoError(t, err)
	assert.True(t, availability.Available)
}

func TestConflictServiceReportsMaintenanceWindow(t *testing.T) {
	f := newConflictFixture(t)
	f.windows.windows["mw-1"] = &models.MaintenanceWindow{
		ID: "mw-1", RoomID: "room-r", Title: "HVAC service", Status: models.MaintenanceInProgress,
		ScheduledStart: at(t, "2024-01-13", "09:00"), DurationMinutes: 120,
	}

	availability, err := f.service.CheckAvailability(context.Background(), "room-r", at(t, "2024-01-13", "10:00"), at(t, "2024-01-13", "12:00"))
	require.NoError(t, err)
	require.Len(t, availability.Conflicts, 1)
	assert.Equal(t, scheduling.KindMaintenance, availability.Conflicts[0].Kind)
	assert.Equal(t, "HVAC service", availability.Conflicts[0].Label)
}

func TestConflictServiceUnknownRoomIsAvailableWithWarning(t *testing.T) {
	f := newConflictFixture(t)

	availability, err := f.service.CheckAvailability(context.Background(), "room-missing", at(t, "2024-01-17", "18:00"), at(t, "2024-01-17", "19:00"))
	require.NoError(t, err)
	assert.True(t, availability.Available)
	require.Len(t, availability.Warnings, 1)
	assert.Equal(t, models.WarningUnresolvedLocation, availability.Warnings[0].Code)
}

func TestConflictServiceWarnsOnRoomUnderMaintenance(t *testing.T) {
	f := newConflictFixture(t)

	availability, err := f.service.CheckAvailability(context.Background(), "room-closed", at(t, "2024-01-17", "18:00"), at(t, "2024-01-17", "19:00"))
	require.NoError(t, err)
	assert.True(t, availability.Available)
	require.Len(t, availability.Warnings, 1)
	assert.Equal(t, models.WarningRoomUnavailable, availability.Warnings[0].Code)
}

func TestConflictServiceDetectWithoutRoomWarns(t *testing.T) {
	f := newConflictFixture(t)

	report, err := f.service.Detect(context.Background(), nil, []scheduling.Candidate{
		{Start: at(t, "2024-01-17", "18:00"), End: at(t, "2024-01-17", "19:00")},
	}, Exclusions{})
	require.NoError(t, err)
	assert.True(t, report.Available())
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, models.WarningUnresolvedLocation, report.Warnings[0].Code)
}

func TestConflictServiceExclusionsSkipOwnOccupants(t *testing.T) {
	f := newConflictFixture(t)
	candidates := []scheduling.Candidate{
		{RoomID: "room-r", Start: at(t, "2024-01-17", "18:00"), End: at(t, "2024-01-17", "19:00")},
		{RoomID: "room-r", Start: at(t, "2024-01-20", "18:00"), End: at(t, "2024-01-20", "19:00")},
	}

	report, err := f.service.Detect(context.Background(), nil, candidates, Exclusions{ClassID: "class-1", MakeupRequestID: "req-1"})
	require.NoError(t, err)
	assert.True(t, report.Available())

	report, err = f.service.Detect(context.Background(), nil, candidates, Exclusions{
		Released: map[string]scheduling.DateSet{"class-1": scheduling.NewDateSet(mustDate(t, "2024-01-17"))},
	})
	require.NoError(t, err)
	require.Len(t, report.Conflicts, 1)
	assert.Equal(t, scheduling.KindMakeup, report.Conflicts[0].Kind)
}

func TestConflictServiceRejectsEmptyRange(t *testing.T) {
	f := newConflictFixture(t)

	_, err := f.service.CheckAvailability(context.Background(), "room-r", at(t, "2024-01-17", "19:00"), at(t, "2024-01-17", "19:00"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestConflictServiceRoomDayKeys(t *testing.T) {
	f := newConflictFixture(t)

	keys := f.service.RoomDayKeys([]scheduling.Candidate{
		{RoomID: "room-r", Start: at(t, "2024-01-17", "23:00"), End: at(t, "2024-01-18", "01:00")},
		{RoomID: "room-r", Start: at(t, "2024-01-20", "18:00"), End: at(t, "2024-01-21", "00:00")},
		{Start: at(t, "2024-01-22", "18:00"), End: at(t, "2024-01-22", "19:00")},
	})
	assert.Equal(t, []string{"room:room-r:2024-01-17", "room:room-r:2024-01-18", "room:room-r:2024-01-20"}, keys)
}
