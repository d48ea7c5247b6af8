package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/fitclass-api/internal/models"
	"github.com/noah-isme/fitclass-api/internal/repository"
	"github.com/noah-isme/fitclass-api/internal/scheduling"
	appErrors "github.com/noah-isme/fitclass-api/pkg/errors"
	"github.com/noah-isme/fitclass-api/pkg/validation"
)

type classStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, class *models.ClassDefinition) error
	FindByID(ctx context.Context, id string) (*models.ClassDefinition, error)
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassDefinition, error)
	List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDefinition, int, error)
	UpdateSchedule(ctx context.Context, exec sqlx.ExtContext, class *models.ClassDefinition) error
	Cancel(ctx context.Context, exec sqlx.ExtContext, id string, reason *string, at time.Time) error
}

type effectiveChangeReader interface {
	ListEffective(ctx context.Context, exec sqlx.ExtContext, classIDs []string, from, to *time.Time) ([]models.ScheduleChangeRequest, error)
}

type attendanceRecalculator interface {
	Recalculate(ctx context.Context, previous, current models.ClassDefinition) (*models.ReconcileSummary, *models.Warning)
}

// ClassService manages class definitions and their effective schedules.
type ClassService struct {
	db           txProvider
	classes      classStore
	rooms        roomDirectory
	changes      effectiveChangeReader
	roster       rosterReader
	detector     conflictDetector
	locker       advisoryLocker
	recalculator attendanceRecalculator
	cache        *CacheService
	notifier     notifier
	validator    *validation.Validator
	logger       *zap.Logger
	loc          *time.Location
	clock        Clock
	cacheTTL     time.Duration
}

// NewClassService constructs the service.
func NewClassService(db txProvider, classes classStore, rooms roomDirectory, changes effectiveChangeReader, roster rosterReader, detector conflictDetector, locker advisoryLocker, recalculator attendanceRecalculator, cache *CacheService, notify notifier, validate *validation.Validator, logger *zap.Logger, cfg ScheduleConfig) *ClassService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{
		db:           db,
		classes:      classes,
		rooms:        rooms,
		changes:      changes,
		roster:       roster,
		detector:     detector,
		locker:       locker,
		recalculator: recalculator,
		cache:        cache,
		notifier:     notify,
		validator:    validate,
		logger:       logger,
		loc:          cfg.location(),
		clock:        cfg.Now,
		cacheTTL:     cfg.CacheTTL,
	}
}

// List returns classes with derived status. Trainers only see their own classes.
func (s *ClassService) List(ctx context.Context, filter models.ClassFilter, actor Actor) ([]models.ClassDefinition, *models.Pagination, error) {
	if actor.Role == models.RoleTrainer {
		filter.TrainerID = actor.UserID
	}
	classes, total, err := s.classes.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list classes")
	}
	now := s.clock.now()
	for i := range classes {
		classes[i].Status = scheduling.DeriveStatus(now, s.loc, classes[i].Progress())
	}
	return classes, paginate(filter.Page, filter.PageSize, total), nil
}

// Get returns a class with its derived status.
func (s *ClassService) Get(ctx context.Context, id string) (*models.ClassDefinition, error) {
	class, err := s.classes.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOrInternal(err, "class not found", "failed to load class")
	}
	class.Status = scheduling.DeriveStatus(s.clock.now(), s.loc, class.Progress())
	return class, nil
}

// Create defines a class after checking every occurrence against the room's occupants.
func (s *ClassService) Create(ctx context.Context, req models.CreateClassRequest, actor Actor) (result *models.ClassScheduleResult, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(s.validator, err)
	}
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := parseDate("end_date", req.EndDate)
	if err != nil {
		return nil, err
	}

	class := &models.ClassDefinition{
		Name:          strings.TrimSpace(req.Name),
		Description:   trimmed(req.Description),
		TrainerID:     req.TrainerID,
		RoomID:        trimmed(req.RoomID),
		Location:      trimmed(req.Location),
		Capacity:      req.Capacity,
		Recurrence:    req.Recurrence.Normalize(),
		StartDate:     start,
		EndDate:       end,
		TotalSessions: req.TotalSessions,
	}
	if actor.Role == models.RoleTrainer {
		class.TrainerID = actor.UserID
	}
	if err := s.checkDefinition(ctx, class); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "class.create")
	defer func() { endSpan(span, err) }()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, internalError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	candidates := s.candidates(class, nil)
	if err = s.locker.Lock(ctx, tx, s.detector.RoomDayKeys(candidates)...); err != nil {
		return nil, internalError(err, "failed to lock room schedule")
	}
	report, err := s.detector.Detect(ctx, tx, candidates, Exclusions{})
	if err != nil {
		return nil, err
	}
	if !report.Available() {
		err = conflictError("class schedule conflicts with existing bookings", report.Conflicts)
		return nil, err
	}
	if err = s.classes.Create(ctx, tx, class); err != nil {
		return nil, internalError(err, "failed to create class")
	}
	if err = tx.Commit(); err != nil {
		return nil, internalError(err, "failed to commit class")
	}

	class.Status = scheduling.DeriveStatus(s.clock.now(), s.loc, class.Progress())
	s.logger.Info("class created", zap.String("class_id", class.ID), zap.Int("total_sessions", class.TotalSessions))
	return &models.ClassScheduleResult{Class: class, Warnings: report.Warnings}, nil
}

// UpdateSchedule edits the fields driving expansion, re-checks the room and reconciles attendance.
// Reconciliation problems are returned as warnings; the edit itself stands.
func (s *ClassService) UpdateSchedule(ctx context.Context, id string, req models.UpdateClassScheduleRequest, actor Actor) (result *models.ClassScheduleResult, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(s.validator, err)
	}

	ctx, span := tracer.Start(ctx, "class.update_schedule")
	defer func() { endSpan(span, err) }()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, internalError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.locker.Lock(ctx, tx, repository.ClassLockKey(id)); err != nil {
		return nil, internalError(err, "failed to lock class")
	}
	previous, err := s.classes.FindByIDForUpdate(ctx, tx, id)
	if err != nil {
		err = notFoundOrInternal(err, "class not found", "failed to load class")
		return nil, err
	}
	if !actor.IsAdmin() && previous.TrainerID != actor.UserID {
		err = appErrors.Clone(appErrors.ErrForbidden, "class is not assigned to this trainer")
		return nil, err
	}
	if previous.Cancelled() {
		err = stateError("class is cancelled")
		return nil, err
	}

	next, err := s.applyScheduleEdit(*previous, req)
	if err != nil {
		return nil, err
	}
	scheduleChanged := previous.ScheduleChanged(next)
	placeChanged := deref(previous.RoomID) != deref(next.RoomID) || deref(previous.Location) != deref(next.Location)
	if !scheduleChanged && !placeChanged {
		if err = tx.Commit(); err != nil {
			return nil, internalError(err, "failed to commit class")
		}
		previous.Status = scheduling.DeriveStatus(s.clock.now(), s.loc, previous.Progress())
		return &models.ClassScheduleResult{Class: previous}, nil
	}
	if err = s.checkDefinition(ctx, &next); err != nil {
		return nil, err
	}

	changes, err := s.changes.ListEffective(ctx, tx, []string{id}, nil, nil)
	if err != nil {
		err = internalError(err, "failed to load schedule changes")
		return nil, err
	}
	released := scheduling.NewDateSet()
	for _, change := range changes {
		released.Add(change.OriginalDate)
	}
	candidates := s.candidates(&next, released)
	if err = s.locker.Lock(ctx, tx, s.detector.RoomDayKeys(candidates)...); err != nil {
		return nil, internalError(err, "failed to lock room schedule")
	}
	report, err := s.detector.Detect(ctx, tx, candidates, Exclusions{ClassID: id})
	if err != nil {
		return nil, err
	}
	if !report.Available() {
		err = conflictError("class schedule conflicts with existing bookings", report.Conflicts)
		return nil, err
	}
	if err = s.classes.UpdateSchedule(ctx, tx, &next); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = stateError("class is cancelled")
			return nil, err
		}
		return nil, internalError(err, "failed to update class schedule")
	}
	if err = tx.Commit(); err != nil {
		return nil, internalError(err, "failed to commit class schedule")
	}
	s.cache.InvalidateSchedules(ctx, id)

	warnings := report.Warnings
	if scheduleChanged && s.recalculator != nil {
		summary, warning := s.recalculator.Recalculate(ctx, *previous, next)
		if warning != nil {
			warnings = append(warnings, *warning)
		}
		if summary != nil {
			s.logger.Info("attendance reconciled",
				zap.String("class_id", id),
				zap.Int("updated", summary.Updated),
				zap.Int("materialized", summary.Materialized),
				zap.Int("deleted", summary.Deleted),
				zap.Int("preserved", summary.Preserved))
		}
	}
	next.Status = scheduling.DeriveStatus(s.clock.now(), s.loc, next.Progress())
	return &models.ClassScheduleResult{Class: &next, Warnings: warnings}, nil
}

// Cancel terminates a class. Cancelled classes no longer occupy their room.
func (s *ClassService) Cancel(ctx context.Context, id string, req models.CancelClassRequest, actor Actor) (result *models.ClassDefinition, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(s.validator, err)
	}
	class, err := s.classes.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOrInternal(err, "class not found", "failed to load class")
	}
	if !actor.IsAdmin() && class.TrainerID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "class is not assigned to this trainer")
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
	if err = s.locker.Lock(ctx, tx, repository.ClassLockKey(id)); err != nil {
		return nil, internalError(err, "failed to lock class")
	}
	now := s.clock.now()
	reason := trimmed(&req.Reason)
	if err = s.classes.Cancel(ctx, tx, id, reason, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = stateError("class is already cancelled")
			return nil, err
		}
		return nil, internalError(err, "failed to cancel class")
	}
	if err = tx.Commit(); err != nil {
		return nil, internalError(err, "failed to commit cancellation")
	}
	s.cache.InvalidateSchedules(ctx, id)

	class.CancelledAt = &now
	class.CancelReason = reason
	class.Status = scheduling.StatusCancelled
	s.notifyCancellation(ctx, class)
	return class, nil
}

type cachedSchedule struct {
	ClassID  string                    `json:"class_id"`
	Progress scheduling.Progress       `json:"progress"`
	Sessions []models.ScheduledSession `json:"sessions"`
}

// Schedule expands the class and applies approved schedule changes: retired original dates
// are flagged cancelled and makeups are appended.
func (s *ClassService) Schedule(ctx context.Context, id string) (*models.ClassSchedule, error) {
	var cached cachedSchedule
	if s.cache.Get(ctx, ScheduleCacheKey(id), &cached) {
		return &models.ClassSchedule{
			ClassID:  cached.ClassID,
			Status:   scheduling.DeriveStatus(s.clock.now(), s.loc, cached.Progress),
			Sessions: cached.Sessions,
		}, nil
	}

	class, err := s.classes.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOrInternal(err, "class not found", "failed to load class")
	}
	changes, err := s.changes.ListEffective(ctx, nil, []string{id}, nil, nil)
	if err != nil {
		return nil, internalError(err, "failed to load schedule changes")
	}
	sessions := EffectiveSessions(*class, changes)

	s.cache.Set(ctx, ScheduleCacheKey(id), cachedSchedule{ClassID: id, Progress: class.Progress(), Sessions: sessions}, s.cacheTTL)
	return &models.ClassSchedule{
		ClassID:  id,
		Status:   scheduling.DeriveStatus(s.clock.now(), s.loc, class.Progress()),
		Sessions: sessions,
	}, nil
}

// EffectiveSessions merges the expanded occurrences of class with its approved makeups.
func EffectiveSessions(class models.ClassDefinition, changes []models.ScheduleChangeRequest) []models.ScheduledSession {
	retired := make(map[string]string)
	var makeups []models.ScheduledSession
	for _, change := range changes {
		if change.ClassID != class.ID || change.Status != models.ScheduleChangeApproved {
			continue
		}
		makeup, ok := change.Makeup()
		if !ok {
			continue
		}
		retired[change.OriginalDate.Format(scheduling.DateLayout)] = change.ID
		makeups = append(makeups, models.ScheduledSession{
			ClassID:   class.ID,
			Kind:      models.SessionMakeup,
			Date:      makeup.Date,
			Start:     makeup.Start,
			End:       makeup.End,
			RoomID:    makeup.RoomID,
			Location:  makeup.Location,
			RequestID: change.ID,
		})
	}

	occurrences := class.Occurrences()
	sessions := make([]models.ScheduledSession, 0, len(occurrences)+len(makeups))
	for _, occ := range occurrences {
		session := models.ScheduledSession{
			ClassID:       class.ID,
			SessionNumber: occ.SessionNumber,
			Kind:          models.SessionRegular,
			Date:          occ.Date,
			Start:         occ.Start,
			End:           occ.End,
			RoomID:        class.RoomID,
			Location:      class.Location,
		}
		if requestID, ok := retired[occ.Date.Format(scheduling.DateLayout)]; ok {
			session.Cancelled = true
			session.RequestID = requestID
		}
		sessions = append(sessions, session)
	}
	sessions = append(sessions, makeups...)
	sort.SliceStable(sessions, func(i, j int) bool {
		if !sessions[i].Date.Equal(sessions[j].Date) {
			return sessions[i].Date.Before(sessions[j].Date)
		}
		return sessions[i].Start < sessions[j].Start
	})
	return sessions
}

func (s *ClassService) applyScheduleEdit(class models.ClassDefinition, req models.UpdateClassScheduleRequest) (models.ClassDefinition, error) {
	if req.Recurrence != nil {
		class.Recurrence = req.Recurrence.Normalize()
	}
	if req.StartDate != nil {
		start, err := parseDate("start_date", *req.StartDate)
		if err != nil {
			return class, err
		}
		class.StartDate = start
	}
	if req.EndDate != nil {
		end, err := parseDate("end_date", *req.EndDate)
		if err != nil {
			return class, err
		}
		class.EndDate = end
	}
	if req.TotalSessions != nil {
		class.TotalSessions = *req.TotalSessions
	}
	if req.RoomID != nil {
		class.RoomID = trimmed(req.RoomID)
	}
	if req.Location != nil {
		class.Location = trimmed(req.Location)
	}
	if class.CurrentSessions > class.TotalSessions {
		class.CurrentSessions = class.TotalSessions
	}
	return class, nil
}

func (s *ClassService) checkDefinition(ctx context.Context, class *models.ClassDefinition) error {
	if err := class.Recurrence.Validate(); err != nil {
		return validationError("recurrence: " + err.Error())
	}
	if class.EndDate.Before(class.StartDate) {
		return validationError("end_date must not be before start_date")
	}
	if class.TotalSessions < 1 || class.TotalSessions > scheduling.MaxSessions {
		return validationError(fmt.Sprintf("total_sessions must be between 1 and %d", scheduling.MaxSessions))
	}
	if class.EndDate.After(class.StartDate.AddDate(0, 0, scheduling.MaxSpanDays)) {
		return validationError(fmt.Sprintf("date range must not exceed %d days", scheduling.MaxSpanDays))
	}
	if class.RoomID != nil {
		room, err := s.rooms.FindByID(ctx, *class.RoomID)
		if err != nil {
			return notFoundOrInternal(err, "room not found", "failed to load room")
		}
		if class.Capacity > room.Capacity {
			return validationError(fmt.Sprintf("capacity %d exceeds room capacity %d", class.Capacity, room.Capacity))
		}
	}
	if available := len(class.Occurrences()); available < class.TotalSessions {
		return validationError(fmt.Sprintf("date range holds only %d sessions but total_sessions is %d", available, class.TotalSessions))
	}
	return nil
}

func (s *ClassService) candidates(class *models.ClassDefinition, released scheduling.DateSet) []scheduling.Candidate {
	occurrences := class.Occurrences()
	out := make([]scheduling.Candidate, 0, len(occurrences))
	for _, occ := range occurrences {
		if released.Has(occ.Date) {
			continue
		}
		start, end := occ.Window(s.loc)
		out = append(out, scheduling.Candidate{RoomID: deref(class.RoomID), Start: start, End: end})
	}
	return out
}

func (s *ClassService) notifyCancellation(ctx context.Context, class *models.ClassDefinition) {
	if s.notifier == nil {
		return
	}
	roster, err := s.roster.ListRoster(ctx, nil, class.ID)
	if err != nil {
		s.logger.Warn("failed to load roster for cancellation notice", zap.String("class_id", class.ID), zap.Error(err))
		return
	}
	recipients := []string{class.TrainerID}
	for _, member := range roster {
		recipients = append(recipients, member.MemberID)
	}
	s.notifier.Notify(ctx, models.Notification{
		Recipients: recipients,
		Category:   models.NotifyClassCancelled,
		Title:      fmt.Sprintf("%s cancelled", class.Name),
		Message:    fmt.Sprintf("%s has been cancelled", class.Name),
		Data:       map[string]string{"class_id": class.ID},
	})
}
