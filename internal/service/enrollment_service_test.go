package service

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fitclass-api/internal/models"
	appErrors "github.com/noah-isme/fitclass-api/pkg/errors"
)

type enrollmentFixture struct {
	mock        sqlmock.Sqlmock
	classes     *classStoreFake
	enrollments *enrollmentStoreFake
	locker      *lockerStub
	service     *EnrollmentService
}

func newEnrollmentFixture(t *testing.T, capacity int) *enrollmentFixture {
	t.Helper()
	db, mock := newTxProviderMock(t)
	class := sampleClass(t)
	class.Capacity = capacity
	f := &enrollmentFixture{
		mock:        mock,
		classes:     newClassStore(class),
		enrollments: newEnrollmentStore(paidEnrollment("enr-1", "class-1", "member-1"), paidEnrollment("enr-2", "class-1", "member-2")),
		locker:      &lockerStub{},
	}
	f.service = NewEnrollmentService(db, f.enrollments, f.classes, f.locker, nil, testScheduleConfig())
	return f
}

var memberActor = Actor{UserID: "member-5", Role: models.RoleMember}

func TestEnrollmentServiceJoinFullClass(t *testing.T) {
	f := newEnrollmentFixture(t, 2)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.service.Join(context.Background(), "class-1", models.JoinClassRequest{}, memberActor)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErr.Code)
	assert.Equal(t, "class is full", appErr.Message)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEnrollmentServiceJoinThenPay(t *testing.T) {
	f := newEnrollmentFixture(t, 3)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	enrollment, err := f.service.Join(context.Background(), "class-1", models.JoinClassRequest{MemberID: "member-9"}, memberActor)
	require.NoError(t, err)
	assert.Equal(t, "member-5", enrollment.MemberID)
	assert.False(t, enrollment.Counted())
	assert.Equal(t, []string{"class:class-1"}, f.locker.keys)

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = f.service.Join(context.Background(), "class-1", models.JoinClassRequest{}, memberActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	paid, err := f.service.ConfirmPayment(context.Background(), enrollment.ID)
	require.NoError(t, err)
	assert.True(t, paid.Counted())

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = f.service.ConfirmPayment(context.Background(), enrollment.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEnrollmentServicePaymentRechecksCapacity(t *testing.T) {
	f := newEnrollmentFixture(t, 2)
	pending := paidEnrollment("enr-3", "class-1", "member-3")
	pending.PaymentConfirmed = false
	f.enrollments.enrollments["enr-3"] = pending
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.service.ConfirmPayment(context.Background(), "enr-3")
	require.Error(t, err)
	assert.Equal(t, "class is full", appErrors.FromError(err).Message)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEnrollmentServiceAdminEnrollsOnBehalf(t *testing.T) {
	f := newEnrollmentFixture(t, 5)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	enrollment, err := f.service.Join(context.Background(), "class-1", models.JoinClassRequest{MemberID: "member-9"}, adminActor)
	require.NoError(t, err)
	assert.Equal(t, "member-9", enrollment.MemberID)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEnrollmentServiceJoinCancelledClass(t *testing.T) {
	f := newEnrollmentFixture(t, 5)
	cancelledAt := fixedNow
	f.classes.classes["class-1"].CancelledAt = &cancelledAt
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.service.Join(context.Background(), "class-1", models.JoinClassRequest{}, memberActor)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErr.Code)
	assert.Equal(t, "class is cancelled", appErr.Message)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEnrollmentServiceLeave(t *testing.T) {
	f := newEnrollmentFixture(t, 2)
	member := Actor{UserID: "member-1", Role: models.RoleMember}

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	left, err := f.service.Leave(context.Background(), "class-1", "someone-else", member)
	require.NoError(t, err)
	assert.Equal(t, "member-1", left.MemberID)
	assert.Equal(t, models.EnrollmentStatusCancelled, left.Status)
	require.NotNil(t, left.LeftAt)

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = f.service.Leave(context.Background(), "class-1", "member-1", member)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)

	roster, err := f.service.Roster(context.Background(), "class-1", trainerActor)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Equal(t, "member-2", roster[0].MemberID)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEnrollmentServiceRosterAndListScoping(t *testing.T) {
	f := newEnrollmentFixture(t, 2)

	_, err := f.service.Roster(context.Background(), "class-1", Actor{UserID: "trainer-2", Role: models.RoleTrainer})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	items, page, err := f.service.List(context.Background(), models.EnrollmentFilter{}, Actor{UserID: "member-2", Role: models.RoleMember})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "enr-2", items[0].ID)
	assert.Equal(t, 1, page.TotalCount)
}
