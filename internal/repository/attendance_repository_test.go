package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fitclass-api/internal/models"
)

func newAttendanceRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var attendanceRowColumns = []string{"id", "class_id", "member_id", "session_number", "session_date", "present", "checked_in_at", "note", "created_at", "updated_at"}

func TestAttendanceRepositoryInsertUnmarkedSkipsExisting(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	sessionDate := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	now := time.Now()
	insert := regexp.QuoteMeta("ON CONFLICT (class_id, member_id, session_number) DO NOTHING")
	mock.ExpectQuery(insert).
		WithArgs(sqlmock.AnyArg(), "class-1", "member-1", 3, sessionDate, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(attendanceRowColumns).
			AddRow("att-1", "class-1", "member-1", 3, sessionDate, false, nil, nil, now, now))
	mock.ExpectQuery(insert).
		WithArgs(sqlmock.AnyArg(), "class-1", "member-2", 3, sessionDate, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(attendanceRowColumns))

	inserted, err := repo.InsertUnmarked(context.Background(), nil, []models.AttendanceRecord{
		{ClassID: "class-1", MemberID: "member-1", SessionNumber: 3, SessionDate: sessionDate},
		{ClassID: "class-1", MemberID: "member-2", SessionNumber: 3, SessionDate: sessionDate},
	})
	require.NoError(t, err)
	require.Len(t, inserted, 1)
	require.Equal(t, "member-1", inserted[0].MemberID)
	require.False(t, inserted[0].Marked())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryUpsertPresence(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	sessionDate := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	checkedIn := time.Date(2024, 1, 8, 18, 5, 0, 0, time.UTC)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("COALESCE(attendance_records.checked_in_at, EXCLUDED.checked_in_at)")).
		WithArgs(sqlmock.AnyArg(), "class-1", "member-1", 3, sessionDate, true, &checkedIn, nil, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(attendanceRowColumns).
			AddRow("att-1", "class-1", "member-1", 3, sessionDate, true, checkedIn, nil, now, now))

	stored, err := repo.UpsertPresence(context.Background(), nil, &models.AttendanceRecord{
		ClassID: "class-1", MemberID: "member-1", SessionNumber: 3, SessionDate: sessionDate,
		Present: true, CheckedInAt: &checkedIn,
	})
	require.NoError(t, err)
	require.True(t, stored.Present)
	require.NotNil(t, stored.CheckedInAt)
	require.True(t, stored.CheckedInAt.Equal(checkedIn))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryList(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE class_id = $1 AND session_number = $2 AND member_id = $3 ORDER BY session_number, member_id")).
		WithArgs("class-1", 3, "member-1").
		WillReturnRows(sqlmock.NewRows(attendanceRowColumns).
			AddRow("att-1", "class-1", "member-1", 3, now, false, nil, "late", now, now))

	records, err := repo.List(context.Background(), models.AttendanceFilter{ClassID: "class-1", SessionNumber: 3, MemberID: "member-1"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "late", *records[0].Note)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryReconcileStatements(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)
	ctx := context.Background()

	newDate := time.Date(2024, 1, 23, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE attendance_records SET session_date = $3")).
		WithArgs("class-1", 5, newDate, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM attendance_records")).
		WithArgs("class-1", 8).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectQuery(regexp.QuoteMeta("(present = TRUE OR checked_in_at IS NOT NULL)")).
		WithArgs("class-1", 8).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	moved, err := repo.RescheduleUnmarked(ctx, nil, "class-1", 5, newDate)
	require.NoError(t, err)
	require.EqualValues(t, 2, moved)

	deleted, err := repo.DeleteUnmarkedAbove(ctx, nil, "class-1", 8)
	require.NoError(t, err)
	require.EqualValues(t, 3, deleted)

	preserved, err := repo.CountMarkedAbove(ctx, nil, "class-1", 8)
	require.NoError(t, err)
	require.Equal(t, 1, preserved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryListOpenedSessions(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT session_number FROM attendance_records")).
		WithArgs("class-1").
		WillReturnRows(sqlmock.NewRows([]string{"session_number"}).AddRow(1).AddRow(2).AddRow(3))

	sessions, err := repo.ListOpenedSessions(context.Background(), nil, "class-1")
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, sessions)
	require.NoError(t, mock.ExpectationsWereMet())
}
