package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/noah-isme/fitclass-api/internal/models"
	"github.com/noah-isme/fitclass-api/internal/repository"
	"github.com/noah-isme/fitclass-api/internal/scheduling"
	appErrors "github.com/noah-isme/fitclass-api/pkg/errors"
	"github.com/noah-isme/fitclass-api/pkg/validation"
)

type attendanceStore interface {
	CountSession(ctx context.Context, exec sqlx.ExtContext, classID string, sessionNumber int) (int, error)
	InsertUnmarked(ctx context.Context, exec sqlx.ExtContext, records []models.AttendanceRecord) ([]models.AttendanceRecord, error)
	UpsertPresence(ctx context.Context, exec sqlx.ExtContext, rec *models.AttendanceRecord) (*models.AttendanceRecord, error)
	FindOne(ctx context.Context, exec sqlx.ExtContext, classID, memberID string, sessionNumber int) (*models.AttendanceRecord, error)
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, error)
	ListOpenedSessions(ctx context.Context, exec sqlx.ExtContext, classID string) ([]int, error)
	RescheduleUnmarked(ctx context.Context, exec sqlx.ExtContext, classID string, sessionNumber int, date time.Time) (int64, error)
	DeleteUnmarkedAbove(ctx context.Context, exec sqlx.ExtContext, classID string, limit int) (int64, error)
	CountMarkedAbove(ctx context.Context, exec sqlx.ExtContext, classID string, limit int) (int, error)
}

type classProgressStore interface {
	FindByID(ctx context.Context, id string) (*models.ClassDefinition, error)
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassDefinition, error)
	UpdateProgress(ctx context.Context, exec sqlx.ExtContext, id string, currentSessions int) error
}

type enrollmentLookup interface {
	ListRoster(ctx context.Context, exec sqlx.ExtContext, classID string) ([]models.RosterMember, error)
	FindByMember(ctx context.Context, exec sqlx.ExtContext, classID, memberID string) (*models.Enrollment, error)
}

// AttendanceService opens sessions, records presence and keeps attendance aligned with
// class schedule edits. Every write holds the class lock.
type AttendanceService struct {
	db          txProvider
	attendance  attendanceStore
	classes     classProgressStore
	enrollments enrollmentLookup
	locker      advisoryLocker
	cache       *CacheService
	metrics     *MetricsService
	validator   *validation.Validator
	logger      *zap.Logger
	loc         *time.Location
	clock       Clock
}

// NewAttendanceService constructs the service.
func NewAttendanceService(db txProvider, attendance attendanceStore, classes classProgressStore, enrollments enrollmentLookup, locker advisoryLocker, cache *CacheService, metrics *MetricsService, validate *validation.Validator, logger *zap.Logger, cfg ScheduleConfig) *AttendanceService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		db:          db,
		attendance:  attendance,
		classes:     classes,
		enrollments: enrollments,
		locker:      locker,
		cache:       cache,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		loc:         cfg.location(),
		clock:       cfg.Now,
	}
}

// OpenSession creates one unmarked record per active paid enrollee for session n and
// advances the class progress.
func (s *AttendanceService) OpenSession(ctx context.Context, classID string, req models.OpenSessionRequest, actor Actor) (result *models.OpenSessionResult, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(s.validator, err)
	}
	n := req.SessionNumber

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, internalError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	class, err := s.lockClass(ctx, tx, classID, actor)
	if err != nil {
		return nil, err
	}
	switch scheduling.DeriveStatus(s.clock.now(), s.loc, class.Progress()) {
	case scheduling.StatusCancelled:
		return nil, stateError("class is cancelled")
	case scheduling.StatusCompleted:
		return nil, stateError("class is completed")
	}
	occurrence, err := s.session(class, n)
	if err != nil {
		return nil, err
	}

	existing, err := s.attendance.CountSession(ctx, tx, classID, n)
	if err != nil {
		return nil, internalError(err, "failed to check session")
	}
	if existing > 0 {
		return nil, stateError(fmt.Sprintf("session %d is already opened", n))
	}
	roster, err := s.enrollments.ListRoster(ctx, tx, classID)
	if err != nil {
		return nil, internalError(err, "failed to load roster")
	}
	if len(roster) == 0 {
		return nil, stateError("class has no active paid enrollments")
	}

	records := make([]models.AttendanceRecord, 0, len(roster))
	for _, member := range roster {
		records = append(records, models.AttendanceRecord{
			ClassID:       classID,
			MemberID:      member.MemberID,
			SessionNumber: n,
			SessionDate:   occurrence.Date,
		})
	}
	inserted, err := s.attendance.InsertUnmarked(ctx, tx, records)
	if err != nil {
		return nil, internalError(err, "failed to open session")
	}

	current := class.CurrentSessions
	if n > current {
		current = n
	}
	completed := n == class.TotalSessions
	if completed {
		current = class.TotalSessions
	}
	if err = s.classes.UpdateProgress(ctx, tx, classID, current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, stateError("class progress changed concurrently")
		}
		return nil, internalError(err, "failed to update class progress")
	}
	if err = tx.Commit(); err != nil {
		return nil, internalError(err, "failed to commit session")
	}

	s.cache.InvalidateSchedules(ctx, classID)
	s.metrics.RecordSessionOpened()
	s.logger.Info("session opened",
		zap.String("class_id", classID),
		zap.Int("session", n),
		zap.Int("records", len(inserted)),
		zap.Bool("class_completed", completed))

	return &models.OpenSessionResult{
		ClassID:         classID,
		SessionNumber:   n,
		SessionDate:     occurrence.Date,
		Created:         len(inserted),
		Records:         inserted,
		ClassCompleted:  completed,
		CurrentSessions: current,
	}, nil
}

// MarkPresence records presence for one member in session n. A repeated check-in keeps the
// first timestamp; marking absent clears it.
func (s *AttendanceService) MarkPresence(ctx context.Context, classID string, n int, req models.MarkPresenceRequest, actor Actor) (result *models.AttendanceRecord, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(s.validator, err)
	}
	if actor.Role == models.RoleMember && req.MemberID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "members can only check themselves in")
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

	class, err := s.lockClass(ctx, tx, classID, actor)
	if err != nil {
		return nil, err
	}
	if class.Cancelled() {
		return nil, stateError("class is cancelled")
	}
	occurrence, err := s.session(class, n)
	if err != nil {
		return nil, err
	}

	sessionDate := occurrence.Date
	existing, err := s.attendance.FindOne(ctx, tx, classID, req.MemberID, n)
	switch {
	case err == nil:
		sessionDate = existing.SessionDate
	case errors.Is(err, sql.ErrNoRows):
		enrollment, lookupErr := s.enrollments.FindByMember(ctx, tx, classID, req.MemberID)
		if lookupErr != nil && !errors.Is(lookupErr, sql.ErrNoRows) {
			return nil, internalError(lookupErr, "failed to load enrollment")
		}
		if enrollment == nil || !enrollment.Counted() {
			return nil, validationError("member is not an active paid enrollee of this class")
		}
	default:
		return nil, internalError(err, "failed to load attendance")
	}

	record := &models.AttendanceRecord{
		ClassID:       classID,
		MemberID:      req.MemberID,
		SessionNumber: n,
		SessionDate:   sessionDate,
		Present:       *req.Present,
		Note:          trimmed(req.Note),
	}
	if record.Present {
		now := s.clock.now()
		record.CheckedInAt = &now
	}
	result, err = s.attendance.UpsertPresence(ctx, tx, record)
	if err != nil {
		return nil, internalError(err, "failed to record presence")
	}
	if err = tx.Commit(); err != nil {
		return nil, internalError(err, "failed to commit presence")
	}
	return result, nil
}

// Recalculate aligns attendance records with an edited schedule. It is a no-op when the
// fields driving expansion did not change. Failures are reported as a warning, never as an
// error, so the schedule edit that triggered it stands.
func (s *AttendanceService) Recalculate(ctx context.Context, previous, current models.ClassDefinition) (*models.ReconcileSummary, *models.Warning) {
	if !previous.ScheduleChanged(current) {
		return &models.ReconcileSummary{}, nil
	}
	started := time.Now()
	ctx, span := tracer.Start(ctx, "attendance.recalculate")
	span.SetAttributes(attribute.String("class_id", current.ID))

	summary, err := s.reconcile(ctx, current)
	var warning *models.Warning
	switch {
	case err != nil:
		s.logger.Warn("attendance reconciliation failed", zap.String("class_id", current.ID), zap.Error(err))
		warning = &models.Warning{
			Code:    models.WarningReconciliation,
			Message: "attendance could not be aligned with the new schedule: " + err.Error(),
		}
	case summary.Preserved > 0:
		warning = &models.Warning{
			Code:    models.WarningReconciliation,
			Message: fmt.Sprintf("%d presence-marked records beyond session %d were kept", summary.Preserved, len(current.Occurrences())),
		}
	}
	s.metrics.ObserveReconciliation(time.Since(started), warning != nil)
	endSpan(span, err)
	return summary, warning
}

func (s *AttendanceService) reconcile(ctx context.Context, class models.ClassDefinition) (summary *models.ReconcileSummary, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reconciliation: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = s.locker.Lock(ctx, tx, repository.ClassLockKey(class.ID)); err != nil {
		return nil, err
	}

	occurrences := class.Occurrences()
	limit := len(occurrences)
	opened, err := s.attendance.ListOpenedSessions(ctx, tx, class.ID)
	if err != nil {
		return nil, err
	}
	roster, err := s.enrollments.ListRoster(ctx, tx, class.ID)
	if err != nil {
		return nil, err
	}

	summary = &models.ReconcileSummary{}
	for _, n := range opened {
		occurrence, ok := scheduling.Session(occurrences, n)
		if !ok {
			continue
		}
		moved, err := s.attendance.RescheduleUnmarked(ctx, tx, class.ID, n, occurrence.Date)
		if err != nil {
			return nil, err
		}
		summary.Updated += int(moved)

		missing := make([]models.AttendanceRecord, 0, len(roster))
		for _, member := range roster {
			missing = append(missing, models.AttendanceRecord{
				ClassID:       class.ID,
				MemberID:      member.MemberID,
				SessionNumber: n,
				SessionDate:   occurrence.Date,
			})
		}
		inserted, err := s.attendance.InsertUnmarked(ctx, tx, missing)
		if err != nil {
			return nil, err
		}
		summary.Materialized += len(inserted)
	}

	deleted, err := s.attendance.DeleteUnmarkedAbove(ctx, tx, class.ID, limit)
	if err != nil {
		return nil, err
	}
	summary.Deleted = int(deleted)
	if summary.Preserved, err = s.attendance.CountMarkedAbove(ctx, tx, class.ID, limit); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reconciliation: %w", err)
	}
	return summary, nil
}

// List returns attendance records of a class. Members only see their own.
func (s *AttendanceService) List(ctx context.Context, filter models.AttendanceFilter, actor Actor) ([]models.AttendanceRecord, error) {
	if filter.ClassID == "" {
		return nil, validationError("class_id is required")
	}
	if actor.Role == models.RoleMember {
		filter.MemberID = actor.UserID
	}
	if actor.Role == models.RoleTrainer {
		class, err := s.classes.FindByID(ctx, filter.ClassID)
		if err != nil {
			return nil, notFoundOrInternal(err, "class not found", "failed to load class")
		}
		if class.TrainerID != actor.UserID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "class is not assigned to this trainer")
		}
	}
	records, err := s.attendance.List(ctx, filter)
	if err != nil {
		return nil, internalError(err, "failed to list attendance")
	}
	if records == nil {
		records = []models.AttendanceRecord{}
	}
	return records, nil
}

func (s *AttendanceService) lockClass(ctx context.Context, tx *sqlx.Tx, classID string, actor Actor) (*models.ClassDefinition, error) {
	if err := s.locker.Lock(ctx, tx, repository.ClassLockKey(classID)); err != nil {
		return nil, internalError(err, "failed to lock class")
	}
	class, err := s.classes.FindByIDForUpdate(ctx, tx, classID)
	if err != nil {
		return nil, notFoundOrInternal(err, "class not found", "failed to load class")
	}
	if actor.Role == models.RoleTrainer && class.TrainerID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "class is not assigned to this trainer")
	}
	return class, nil
}

func (s *AttendanceService) session(class *models.ClassDefinition, n int) (scheduling.Occurrence, error) {
	if n < 1 || n > class.TotalSessions {
		return scheduling.Occurrence{}, validationError(fmt.Sprintf("session_number must be between 1 and %d", class.TotalSessions))
	}
	occurrence, ok := scheduling.Session(class.Occurrences(), n)
	if !ok {
		return scheduling.Occurrence{}, validationError(fmt.Sprintf("session %d is not on the class schedule", n))
	}
	return occurrence, nil
}
