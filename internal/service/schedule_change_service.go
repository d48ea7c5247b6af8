package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
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

type scheduleChangeStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, req *models.ScheduleChangeRequest) error
	FindByID(ctx context.Context, id string) (*models.ScheduleChangeRequest, error)
	HasPending(ctx context.Context, exec sqlx.ExtContext, trainerID, classID string, originalDate time.Time) (bool, error)
	List(ctx context.Context, filter models.ScheduleChangeFilter) ([]models.ScheduleChangeRequest, int, error)
	Review(ctx context.Context, exec sqlx.ExtContext, params repository.ReviewParams) (*models.ScheduleChangeRequest, error)
	AttachMakeup(ctx context.Context, exec sqlx.ExtContext, id string, makeup models.MakeupOccurrence) (*models.ScheduleChangeRequest, error)
	ListEffective(ctx context.Context, exec sqlx.ExtContext, classIDs []string, from, to *time.Time) ([]models.ScheduleChangeRequest, error)
}

type classFinder interface {
	FindByID(ctx context.Context, id string) (*models.ClassDefinition, error)
}

type rosterReader interface {
	ListRoster(ctx context.Context, exec sqlx.ExtContext, classID string) ([]models.RosterMember, error)
	ListClassIDsByMember(ctx context.Context, memberID string) ([]string, error)
}

type conflictDetector interface {
	Detect(ctx context.Context, exec sqlx.ExtContext, candidates []scheduling.Candidate, excl Exclusions) (ConflictReport, error)
	RoomDayKeys(candidates []scheduling.Candidate) []string
}

// ScheduleConfig carries the timezone and clock shared by the scheduling workflows.
type ScheduleConfig struct {
	Location *time.Location
	Now      Clock
	CacheTTL time.Duration
	// MaintenancePolicy is "reject" or "warn".
	MaintenancePolicy string
}

func (c ScheduleConfig) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// ScheduleChangeService runs the trainer request and admin review workflow.
type ScheduleChangeService struct {
	db        txProvider
	changes   scheduleChangeStore
	classes   classFinder
	roster    rosterReader
	detector  conflictDetector
	locker    advisoryLocker
	cache     *CacheService
	notifier  notifier
	metrics   *MetricsService
	validator *validation.Validator
	logger    *zap.Logger
	loc       *time.Location
	clock     Clock
}

// NewScheduleChangeService wires the workflow.
func NewScheduleChangeService(db txProvider, changes scheduleChangeStore, classes classFinder, roster rosterReader, detector conflictDetector, locker advisoryLocker, cache *CacheService, notify notifier, metrics *MetricsService, validate *validation.Validator, logger *zap.Logger, cfg ScheduleConfig) *ScheduleChangeService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleChangeService{
		db:        db,
		changes:   changes,
		classes:   classes,
		roster:    roster,
		detector:  detector,
		locker:    locker,
		cache:     cache,
		notifier:  notify,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		loc:       cfg.location(),
		clock:     cfg.Now,
	}
}

// Create files a pending request to retire one occurrence of a class.
func (s *ScheduleChangeService) Create(ctx context.Context, req models.CreateScheduleChangeRequest, actor Actor) (*models.ScheduleChangeRequest, error) {
	// length rules apply to the stored text
	req.Reason = strings.TrimSpace(req.Reason)
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(s.validator, err)
	}
	original, err := parseDate("original_date", req.OriginalDate)
	if err != nil {
		return nil, err
	}
	requested, err := parseDate("requested_date", req.RequestedDate)
	if err != nil {
		return nil, err
	}

	class, err := s.classes.FindByID(ctx, req.ClassID)
	if err != nil {
		return nil, notFoundOrInternal(err, "class not found", "failed to load class")
	}
	if !actor.IsAdmin() && class.TrainerID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "class is not assigned to this trainer")
	}
	if class.Cancelled() {
		return nil, stateError("class is cancelled")
	}
	if requested.Before(scheduling.Today(s.clock.now(), s.loc)) {
		return nil, validationError("requested_date must not be in the past")
	}
	if requested.Before(scheduling.DateOf(class.StartDate)) || requested.After(scheduling.DateOf(class.EndDate)) {
		return nil, validationError("requested_date must fall within the class date range")
	}
	if _, ok := scheduling.OccurrenceOn(class.Occurrences(), original); !ok {
		return nil, validationError("original_date is not a scheduled session of the class")
	}

	pending, err := s.changes.HasPending(ctx, nil, class.TrainerID, class.ID, original)
	if err != nil {
		return nil, internalError(err, "failed to check pending requests")
	}
	if pending {
		return nil, validationError("a pending request already exists for this class and original_date")
	}
	moved, err := s.changes.ListEffective(ctx, nil, []string{class.ID}, &original, &original)
	if err != nil {
		return nil, internalError(err, "failed to check approved changes")
	}
	for _, change := range moved {
		if change.OriginalDate.Equal(original) {
			return nil, validationError("original_date was already moved by an approved schedule change")
		}
	}

	record := &models.ScheduleChangeRequest{
		TrainerID:     class.TrainerID,
		ClassID:       class.ID,
		OriginalDate:  original,
		RequestedDate: requested,
		Reason:        req.Reason,
		Urgency:       models.Urgency(req.Urgency),
	}
	if err := s.changes.Create(ctx, nil, record); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, validationError("a pending request already exists for this class and original_date")
		}
		return nil, internalError(err, "failed to create schedule change request")
	}
	s.metrics.RecordScheduleChange(string(models.ScheduleChangePending))
	s.logger.Info("schedule change requested",
		zap.String("request_id", record.ID),
		zap.String("class_id", class.ID),
		zap.String("urgency", string(record.Urgency)))

	s.notify(ctx, models.Notification{
		Audience: string(models.RoleAdmin),
		Category: models.NotifyScheduleChangeCreated,
		Title:    "Schedule change requested",
		Message:  fmt.Sprintf("%s session on %s: %s", class.Name, original.Format(scheduling.DateLayout), record.Reason),
		Data:     map[string]string{"request_id": record.ID, "class_id": class.ID, "urgency": string(record.Urgency)},
	})
	return record, nil
}

// Approve accepts a pending request. A makeup in the payload is attached afterwards through
// the same path as AttachMakeup; when that fails the approval stands and the failure is
// reported on the outcome.
func (s *ScheduleChangeService) Approve(ctx context.Context, id string, req models.ApproveScheduleChangeRequest, actor Actor) (*models.ApprovalOutcome, []models.Warning, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, invalidPayload(s.validator, err)
	}
	var makeup *models.MakeupOccurrence
	if req.Makeup != nil {
		parsed, err := s.parseMakeup(*req.Makeup)
		if err != nil {
			return nil, nil, err
		}
		makeup = parsed
	}

	approved, err := s.review(ctx, id, models.ScheduleChangeApproved, req.AdminResponse, actor)
	if err != nil {
		return nil, nil, err
	}
	s.notify(ctx, models.Notification{
		Recipients: []string{approved.TrainerID},
		Category:   models.NotifyScheduleChangeApproved,
		Title:      "Schedule change approved",
		Message:    fmt.Sprintf("Your request for %s was approved", approved.OriginalDate.Format(scheduling.DateLayout)),
		Data:       map[string]string{"request_id": approved.ID, "class_id": approved.ClassID},
	})

	outcome := &models.ApprovalOutcome{Request: approved}
	if makeup == nil {
		return outcome, nil, nil
	}
	attached, warnings, err := s.attach(ctx, approved, *makeup)
	if err != nil {
		s.logger.Warn("makeup not attached after approval", zap.String("request_id", approved.ID), zap.Error(err))
		outcome.MakeupError = err
		return outcome, nil, nil
	}
	outcome.Request = attached
	outcome.MakeupAttached = true
	return outcome, warnings, nil
}

// Reject declines a pending request.
func (s *ScheduleChangeService) Reject(ctx context.Context, id string, req models.RejectScheduleChangeRequest, actor Actor) (*models.ScheduleChangeRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(s.validator, err)
	}
	rejected, err := s.review(ctx, id, models.ScheduleChangeRejected, req.AdminResponse, actor)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, models.Notification{
		Recipients: []string{rejected.TrainerID},
		Category:   models.NotifyScheduleChangeRejected,
		Title:      "Schedule change rejected",
		Message:    fmt.Sprintf("Your request for %s was rejected", rejected.OriginalDate.Format(scheduling.DateLayout)),
		Data:       map[string]string{"request_id": rejected.ID, "class_id": rejected.ClassID},
	})
	return rejected, nil
}

// AttachMakeup books the replacement occurrence of an approved request.
func (s *ScheduleChangeService) AttachMakeup(ctx context.Context, id string, payload models.MakeupPayload) (*models.ScheduleChangeRequest, []models.Warning, error) {
	if err := s.validator.Struct(payload); err != nil {
		return nil, nil, invalidPayload(s.validator, err)
	}
	makeup, err := s.parseMakeup(payload)
	if err != nil {
		return nil, nil, err
	}
	req, err := s.changes.FindByID(ctx, id)
	if err != nil {
		return nil, nil, notFoundOrInternal(err, "schedule change request not found", "failed to load schedule change request")
	}
	return s.attach(ctx, req, *makeup)
}

// Get returns a request; trainers only see their own.
func (s *ScheduleChangeService) Get(ctx context.Context, id string, actor Actor) (*models.ScheduleChangeRequest, error) {
	req, err := s.changes.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOrInternal(err, "schedule change request not found", "failed to load schedule change request")
	}
	if !actor.IsAdmin() && req.TrainerID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	return req, nil
}

// List returns requests matching filter, scoped to the trainer unless the actor is an admin.
func (s *ScheduleChangeService) List(ctx context.Context, filter models.ScheduleChangeFilter, actor Actor) ([]models.ScheduleChangeRequest, *models.Pagination, error) {
	if !actor.IsAdmin() {
		filter.TrainerID = actor.UserID
	}
	requests, total, err := s.changes.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list schedule change requests")
	}
	return requests, paginate(filter.Page, filter.PageSize, total), nil
}

// ListEffective returns approved requests carrying a makeup for a class or for the classes
// a member is enrolled in.
func (s *ScheduleChangeService) ListEffective(ctx context.Context, filter models.EffectiveChangeFilter, actor Actor) ([]models.ScheduleChangeRequest, error) {
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, validationError("from must not be after to")
	}
	var classIDs []string
	switch {
	case filter.ClassID != "":
		if err := s.authorizeClassRead(ctx, filter.ClassID, actor); err != nil {
			return nil, err
		}
		classIDs = []string{filter.ClassID}
	case filter.MemberID != "":
		if actor.Role == models.RoleMember && filter.MemberID != actor.UserID {
			return nil, appErrors.ErrForbidden
		}
		ids, err := s.roster.ListClassIDsByMember(ctx, filter.MemberID)
		if err != nil {
			return nil, internalError(err, "failed to load member classes")
		}
		classIDs = ids
	default:
		return nil, validationError("class_id or member_id is required")
	}
	changes, err := s.changes.ListEffective(ctx, nil, classIDs, filter.From, filter.To)
	if err != nil {
		return nil, internalError(err, "failed to list effective schedule changes")
	}
	if changes == nil {
		changes = []models.ScheduleChangeRequest{}
	}
	return changes, nil
}

// authorizeClassRead limits non-admins to classes they teach or hold a counted enrollment in.
func (s *ScheduleChangeService) authorizeClassRead(ctx context.Context, classID string, actor Actor) error {
	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleTrainer:
		class, err := s.classes.FindByID(ctx, classID)
		if err != nil {
			return notFoundOrInternal(err, "class not found", "failed to load class")
		}
		if class.TrainerID != actor.UserID {
			return appErrors.Clone(appErrors.ErrForbidden, "class is not assigned to this trainer")
		}
		return nil
	default:
		ids, err := s.roster.ListClassIDsByMember(ctx, actor.UserID)
		if err != nil {
			return internalError(err, "failed to load member classes")
		}
		for _, id := range ids {
			if id == classID {
				return nil
			}
		}
		return appErrors.Clone(appErrors.ErrForbidden, "member is not enrolled in this class")
	}
}

func (s *ScheduleChangeService) review(ctx context.Context, id string, status models.ScheduleChangeStatus, response *string, actor Actor) (result *models.ScheduleChangeRequest, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, internalError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	result, err = s.changes.Review(ctx, tx, repository.ReviewParams{
		ID:            id,
		Status:        status,
		ReviewedBy:    actor.UserID,
		ReviewedAt:    s.clock.now(),
		AdminResponse: trimmed(response),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.explainReviewMiss(ctx, id)
		}
		return nil, internalError(err, "failed to review schedule change request")
	}
	if err = tx.Commit(); err != nil {
		return nil, internalError(err, "failed to commit review")
	}
	s.metrics.RecordScheduleChange(string(status))
	return result, nil
}

func (s *ScheduleChangeService) explainReviewMiss(ctx context.Context, id string) error {
	existing, err := s.changes.FindByID(ctx, id)
	if err != nil {
		return notFoundOrInternal(err, "schedule change request not found", "failed to load schedule change request")
	}
	return stateError(fmt.Sprintf("request is already %s", existing.Status))
}

func (s *ScheduleChangeService) attach(ctx context.Context, req *models.ScheduleChangeRequest, makeup models.MakeupOccurrence) (result *models.ScheduleChangeRequest, warnings []models.Warning, err error) {
	ctx, span := tracer.Start(ctx, "schedule_change.attach_makeup")
	span.SetAttributes(attribute.String("request_id", req.ID))
	defer func() { endSpan(span, err) }()

	if req.Status != models.ScheduleChangeApproved {
		return nil, nil, stateError("makeup can only be attached to an approved request")
	}
	if req.HasMakeup() {
		return nil, nil, stateError("a makeup is already attached to this request")
	}
	class, err := s.classes.FindByID(ctx, req.ClassID)
	if err != nil {
		return nil, nil, notFoundOrInternal(err, "class not found", "failed to load class")
	}
	if class.Cancelled() {
		return nil, nil, stateError("class is cancelled")
	}
	if makeup.RoomID == nil && makeup.Location == nil {
		makeup.RoomID = class.RoomID
		makeup.Location = class.Location
	}

	candidates := []scheduling.Candidate{{
		RoomID: deref(makeup.RoomID),
		Start:  makeup.Start.On(makeup.Date, s.loc),
		End:    makeup.End.On(makeup.Date, s.loc),
	}}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, internalError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.locker.Lock(ctx, tx, s.detector.RoomDayKeys(candidates)...); err != nil {
		return nil, nil, internalError(err, "failed to lock room schedule")
	}
	report, err := s.detector.Detect(ctx, tx, candidates, Exclusions{
		Released:        map[string]scheduling.DateSet{class.ID: scheduling.NewDateSet(req.OriginalDate)},
		MakeupRequestID: req.ID,
	})
	if err != nil {
		return nil, nil, err
	}
	if !report.Available() {
		err = conflictError("makeup session conflicts with existing bookings", report.Conflicts)
		return nil, nil, err
	}
	result, err = s.changes.AttachMakeup(ctx, tx, req.ID, makeup)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = stateError("makeup can only be attached once to an approved request")
			return nil, nil, err
		}
		return nil, nil, internalError(err, "failed to attach makeup")
	}
	if err = tx.Commit(); err != nil {
		return nil, nil, internalError(err, "failed to commit makeup")
	}

	s.cache.InvalidateSchedules(ctx, class.ID)
	s.notifyMembers(ctx, class, result, makeup)
	return result, report.Warnings, nil
}

func (s *ScheduleChangeService) notifyMembers(ctx context.Context, class *models.ClassDefinition, req *models.ScheduleChangeRequest, makeup models.MakeupOccurrence) {
	roster, err := s.roster.ListRoster(ctx, nil, class.ID)
	if err != nil {
		s.logger.Warn("failed to load roster for makeup notification", zap.String("class_id", class.ID), zap.Error(err))
		return
	}
	if len(roster) == 0 {
		return
	}
	recipients := make([]string, 0, len(roster))
	for _, member := range roster {
		recipients = append(recipients, member.MemberID)
	}
	s.notify(ctx, models.Notification{
		Recipients: recipients,
		Category:   models.NotifyMakeupScheduled,
		Title:      fmt.Sprintf("%s rescheduled", class.Name),
		Message: fmt.Sprintf("The session on %s moves to %s %s-%s",
			req.OriginalDate.Format(scheduling.DateLayout), makeup.Date.Format(scheduling.DateLayout), makeup.Start, makeup.End),
		Data: map[string]string{"request_id": req.ID, "class_id": class.ID},
	})
}

func (s *ScheduleChangeService) parseMakeup(p models.MakeupPayload) (*models.MakeupOccurrence, error) {
	date, err := parseDate("makeup date", p.Date)
	if err != nil {
		return nil, err
	}
	start, err := scheduling.ParseTimeOfDay(p.StartTime)
	if err != nil {
		return nil, validationError("makeup start_time must be a time of day in HH:MM format")
	}
	end, err := scheduling.ParseTimeOfDay(p.EndTime)
	if err != nil {
		return nil, validationError("makeup end_time must be a time of day in HH:MM format")
	}
	if start >= end {
		return nil, validationError("makeup start_time must be before end_time")
	}
	if date.Before(scheduling.Today(s.clock.now(), s.loc)) {
		return nil, validationError("makeup date must not be in the past")
	}
	return &models.MakeupOccurrence{
		Date:     date,
		Start:    start,
		End:      end,
		RoomID:   trimmed(p.RoomID),
		Location: trimmed(p.Location),
	}, nil
}

func (s *ScheduleChangeService) notify(ctx context.Context, n models.Notification) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, n)
}
