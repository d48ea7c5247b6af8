package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/fitclass-api/internal/models"
	"github.com/noah-isme/fitclass-api/internal/repository"
	"github.com/noah-isme/fitclass-api/internal/scheduling"
	appErrors "github.com/noah-isme/fitclass-api/pkg/errors"
)

type enrollmentStore interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindByMember(ctx context.Context, exec sqlx.ExtContext, classID, memberID string) (*models.Enrollment, error)
	Upsert(ctx context.Context, exec sqlx.ExtContext, classID, memberID string) (*models.Enrollment, error)
	CountSeats(ctx context.Context, exec sqlx.ExtContext, classID string) (int, error)
	ConfirmPayment(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Enrollment, error)
	Cancel(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) (*models.Enrollment, error)
	ListRoster(ctx context.Context, exec sqlx.ExtContext, classID string) ([]models.RosterMember, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error)
}

type classSeatReader interface {
	FindByID(ctx context.Context, id string) (*models.ClassDefinition, error)
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassDefinition, error)
}

// EnrollmentService is the roster gateway: joins, departures and payment confirmation are
// serialised with session opening through the class lock.
type EnrollmentService struct {
	db          txProvider
	enrollments enrollmentStore
	classes     classSeatReader
	locker      advisoryLocker
	logger      *zap.Logger
	loc         *time.Location
	clock       Clock
}

// NewEnrollmentService creates an enrollment service instance.
func NewEnrollmentService(db txProvider, enrollments enrollmentStore, classes classSeatReader, locker advisoryLocker, logger *zap.Logger, cfg ScheduleConfig) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		db:          db,
		enrollments: enrollments,
		classes:     classes,
		locker:      locker,
		logger:      logger,
		loc:         cfg.location(),
		clock:       cfg.Now,
	}
}

// Join enrolls a member. Members enroll themselves; admins may enroll anyone.
// The seat is only taken once payment is confirmed.
func (s *EnrollmentService) Join(ctx context.Context, classID string, req models.JoinClassRequest, actor Actor) (result *models.Enrollment, err error) {
	memberID := req.MemberID
	if actor.Role == models.RoleMember || memberID == "" {
		memberID = actor.UserID
	}
	if memberID == "" {
		return nil, validationError("member_id is required")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, internalError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	class, err := s.lockOpenClass(ctx, tx, classID)
	if err != nil {
		return nil, err
	}
	if err = s.ensureSeat(ctx, tx, class); err != nil {
		return nil, err
	}
	result, err = s.enrollments.Upsert(ctx, tx, classID, memberID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "member is already enrolled in this class")
		}
		return nil, internalError(err, "failed to enroll member")
	}
	if err = tx.Commit(); err != nil {
		return nil, internalError(err, "failed to commit enrollment")
	}
	s.logger.Info("member enrolled", zap.String("class_id", classID), zap.String("member_id", memberID))
	return result, nil
}

// Leave cancels the member's active enrollment.
func (s *EnrollmentService) Leave(ctx context.Context, classID, memberID string, actor Actor) (result *models.Enrollment, err error) {
	if actor.Role == models.RoleMember {
		memberID = actor.UserID
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, internalError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.locker.Lock(ctx, tx, repository.ClassLockKey(classID)); err != nil {
		return nil, internalError(err, "failed to lock class")
	}
	enrollment, err := s.enrollments.FindByMember(ctx, tx, classID, memberID)
	if err != nil {
		return nil, notFoundOrInternal(err, "enrollment not found", "failed to load enrollment")
	}
	result, err = s.enrollments.Cancel(ctx, tx, enrollment.ID, s.clock.now())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, stateError("enrollment is not active")
		}
		return nil, internalError(err, "failed to cancel enrollment")
	}
	if err = tx.Commit(); err != nil {
		return nil, internalError(err, "failed to commit enrollment")
	}
	return result, nil
}

// ConfirmPayment marks an enrollment as paid, which puts the member on the roster.
func (s *EnrollmentService) ConfirmPayment(ctx context.Context, enrollmentID string) (result *models.Enrollment, err error) {
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		return nil, notFoundOrInternal(err, "enrollment not found", "failed to load enrollment")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, internalError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	class, err := s.lockOpenClass(ctx, tx, enrollment.ClassID)
	if err != nil {
		return nil, err
	}
	if err = s.ensureSeat(ctx, tx, class); err != nil {
		return nil, err
	}
	result, err = s.enrollments.ConfirmPayment(ctx, tx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, stateError("enrollment is inactive or already paid")
		}
		return nil, internalError(err, "failed to confirm payment")
	}
	if err = tx.Commit(); err != nil {
		return nil, internalError(err, "failed to commit payment")
	}
	return result, nil
}

// Roster lists the active paid enrollees of a class.
func (s *EnrollmentService) Roster(ctx context.Context, classID string, actor Actor) ([]models.RosterMember, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		return nil, notFoundOrInternal(err, "class not found", "failed to load class")
	}
	if actor.Role == models.RoleTrainer && class.TrainerID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "class is not assigned to this trainer")
	}
	roster, err := s.enrollments.ListRoster(ctx, nil, classID)
	if err != nil {
		return nil, internalError(err, "failed to load roster")
	}
	if roster == nil {
		roster = []models.RosterMember{}
	}
	return roster, nil
}

// List returns enrollments; members only see their own.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter, actor Actor) ([]models.Enrollment, *models.Pagination, error) {
	if actor.Role == models.RoleMember {
		filter.MemberID = actor.UserID
	}
	items, total, err := s.enrollments.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list enrollments")
	}
	return items, paginate(filter.Page, filter.PageSize, total), nil
}

func (s *EnrollmentService) lockOpenClass(ctx context.Context, tx *sqlx.Tx, classID string) (*models.ClassDefinition, error) {
	if err := s.locker.Lock(ctx, tx, repository.ClassLockKey(classID)); err != nil {
		return nil, internalError(err, "failed to lock class")
	}
	class, err := s.classes.FindByIDForUpdate(ctx, tx, classID)
	if err != nil {
		return nil, notFoundOrInternal(err, "class not found", "failed to load class")
	}
	switch scheduling.DeriveStatus(s.clock.now(), s.loc, class.Progress()) {
	case scheduling.StatusCancelled:
		return nil, stateError("class is cancelled")
	case scheduling.StatusCompleted:
		return nil, stateError("class is completed")
	}
	return class, nil
}

func (s *EnrollmentService) ensureSeat(ctx context.Context, tx *sqlx.Tx, class *models.ClassDefinition) error {
	seats, err := s.enrollments.CountSeats(ctx, tx, class.ID)
	if err != nil {
		return internalError(err, "failed to count seats")
	}
	if seats >= class.Capacity {
		return stateError("class is full")
	}
	return nil
}
