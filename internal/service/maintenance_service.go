package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/noah-isme/fitclass-api/internal/models"
	"github.com/noah-isme/fitclass-api/internal/repository"
	"github.com/noah-isme/fitclass-api/internal/scheduling"
	"github.com/noah-isme/fitclass-api/pkg/config"
	"github.com/noah-isme/fitclass-api/pkg/validation"
)

type maintenanceStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, window *models.MaintenanceWindow) error
	FindByID(ctx context.Context, id string) (*models.MaintenanceWindow, error)
	List(ctx context.Context, filter models.MaintenanceFilter) ([]models.MaintenanceWindow, int, error)
	Transition(ctx context.Context, exec sqlx.ExtContext, params repository.TransitionParams) (*models.MaintenanceWindow, error)
}

type roomStatusWriter interface {
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.RoomStatus) error
}

type equipmentStore interface {
	FindByID(ctx context.Context, id string) (*models.Equipment, error)
	UpdateCondition(ctx context.Context, exec sqlx.ExtContext, id string, condition models.EquipmentCondition) error
}

// MaintenanceService schedules and tracks maintenance windows on rooms and equipment.
type MaintenanceService struct {
	db        txProvider
	windows   maintenanceStore
	rooms     roomStatusWriter
	equipment equipmentStore
	classes   roomClassReader
	detector  conflictDetector
	locker    advisoryLocker
	notifier  notifier
	metrics   *MetricsService
	validator *validation.Validator
	logger    *zap.Logger
	policy    string
	clock     Clock
}

// NewMaintenanceService constructs the service. cfg.MaintenancePolicy decides whether a
// conflicting window is rejected or accepted with a warning.
func NewMaintenanceService(db txProvider, windows maintenanceStore, rooms roomStatusWriter, equipment equipmentStore, classes roomClassReader, detector conflictDetector, locker advisoryLocker, notify notifier, metrics *MetricsService, validate *validation.Validator, logger *zap.Logger, cfg ScheduleConfig) *MaintenanceService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := strings.ToLower(strings.TrimSpace(cfg.MaintenancePolicy))
	if policy != config.ConflictPolicyWarn {
		policy = config.ConflictPolicyReject
	}
	return &MaintenanceService{
		db:        db,
		windows:   windows,
		rooms:     rooms,
		equipment: equipment,
		classes:   classes,
		detector:  detector,
		locker:    locker,
		notifier:  notify,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		policy:    policy,
		clock:     cfg.Now,
	}
}

// Create schedules a window after checking the target room inside a room-day lock.
func (s *MaintenanceService) Create(ctx context.Context, req models.CreateMaintenanceRequest, actor Actor) (result *models.MaintenanceResult, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(s.validator, err)
	}
	window := &models.MaintenanceWindow{
		TargetType:      models.MaintenanceTarget(req.TargetType),
		RoomID:          strings.TrimSpace(req.RoomID),
		Title:           strings.TrimSpace(req.Title),
		ScheduledStart:  req.ScheduledStart.UTC(),
		DurationMinutes: req.DurationMinutes,
		Priority:        models.MaintenancePriority(req.Priority),
		CreatedBy:       actor.UserID,
	}
	if window.TargetType == models.MaintenanceTargetEquipment {
		equipment, err := s.equipment.FindByID(ctx, deref(req.EquipmentID))
		if err != nil {
			return nil, notFoundOrInternal(err, "equipment not found", "failed to load equipment")
		}
		window.EquipmentID = &equipment.ID
		window.RoomID = equipment.RoomID
	}
	if window.ScheduledStart.Before(s.clock.now()) {
		return nil, validationError("scheduled_start must not be in the past")
	}

	ctx, span := tracer.Start(ctx, "maintenance.create")
	span.SetAttributes(attribute.String("room_id", window.RoomID), attribute.String("policy", s.policy))
	defer func() { endSpan(span, err) }()

	candidates := []scheduling.Candidate{{RoomID: window.RoomID, Start: window.ScheduledStart, End: window.End()}}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, internalError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.locker.Lock(ctx, tx, s.detector.RoomDayKeys(candidates)...); err != nil {
		return nil, internalError(err, "failed to lock room schedule")
	}
	report, err := s.detector.Detect(ctx, tx, candidates, Exclusions{})
	if err != nil {
		return nil, err
	}
	warnings := report.Warnings
	if !report.Available() {
		if s.policy == config.ConflictPolicyReject {
			err = conflictError("maintenance window conflicts with existing bookings", report.Conflicts)
			return nil, err
		}
		snapshot, marshalErr := json.Marshal(report.Conflicts)
		if marshalErr != nil {
			return nil, internalError(marshalErr, "failed to encode conflicts")
		}
		window.ConflictSnapshot = types.JSONText(snapshot)
		warnings = append(warnings, models.Warning{
			Code:    models.WarningConflictAccepted,
			Message: fmt.Sprintf("window overlaps %d existing bookings", len(report.Conflicts)),
		})
	}
	if err = s.windows.Create(ctx, tx, window); err != nil {
		return nil, internalError(err, "failed to create maintenance window")
	}
	if err = tx.Commit(); err != nil {
		return nil, internalError(err, "failed to commit maintenance window")
	}

	s.metrics.RecordMaintenanceTransition(string(window.Status))
	s.logger.Info("maintenance scheduled",
		zap.String("window_id", window.ID),
		zap.String("room_id", window.RoomID),
		zap.Int("conflicts", len(report.Conflicts)))
	s.notifyTrainers(ctx, window)
	return &models.MaintenanceResult{Window: window, Warnings: warnings}, nil
}

// Start moves a scheduled window to in progress and takes its target out of service.
func (s *MaintenanceService) Start(ctx context.Context, id string) (*models.MaintenanceWindow, error) {
	return s.transition(ctx, repository.TransitionParams{ID: id, From: models.MaintenanceScheduled, To: models.MaintenanceInProgress},
		func(ctx context.Context, tx *sqlx.Tx, w *models.MaintenanceWindow) error {
			if w.TargetType == models.MaintenanceTargetEquipment && w.EquipmentID != nil {
				return s.equipment.UpdateCondition(ctx, tx, *w.EquipmentID, models.EquipmentOutOfService)
			}
			return s.rooms.UpdateStatus(ctx, tx, w.RoomID, models.RoomMaintenance)
		})
}

// Complete closes an in-progress window and returns its target to service.
func (s *MaintenanceService) Complete(ctx context.Context, id string, req models.CompleteMaintenanceRequest) (*models.MaintenanceWindow, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(s.validator, err)
	}
	work := strings.TrimSpace(req.WorkPerformed)
	params := repository.TransitionParams{
		ID:            id,
		From:          models.MaintenanceInProgress,
		To:            models.MaintenanceCompleted,
		ActualCost:    req.ActualCost,
		WorkPerformed: &work,
	}
	return s.transition(ctx, params, func(ctx context.Context, tx *sqlx.Tx, w *models.MaintenanceWindow) error {
		if w.TargetType == models.MaintenanceTargetEquipment && w.EquipmentID != nil {
			return s.equipment.UpdateCondition(ctx, tx, *w.EquipmentID, models.EquipmentGood)
		}
		return s.rooms.UpdateStatus(ctx, tx, w.RoomID, models.RoomActive)
	})
}

// Cancel drops a scheduled window.
func (s *MaintenanceService) Cancel(ctx context.Context, id string, req models.MaintenanceNoteRequest) (*models.MaintenanceWindow, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(s.validator, err)
	}
	return s.transition(ctx, repository.TransitionParams{ID: id, From: models.MaintenanceScheduled, To: models.MaintenanceCancelled, Note: trimmed(&req.Note)}, nil)
}

// Postpone parks a scheduled window; it stops occupying the room.
func (s *MaintenanceService) Postpone(ctx context.Context, id string, req models.MaintenanceNoteRequest) (*models.MaintenanceWindow, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(s.validator, err)
	}
	return s.transition(ctx, repository.TransitionParams{ID: id, From: models.MaintenanceScheduled, To: models.MaintenancePostponed, Note: trimmed(&req.Note)}, nil)
}

// Get returns a window.
func (s *MaintenanceService) Get(ctx context.Context, id string) (*models.MaintenanceWindow, error) {
	window, err := s.windows.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOrInternal(err, "maintenance window not found", "failed to load maintenance window")
	}
	return window, nil
}

// List returns windows matching filter.
func (s *MaintenanceService) List(ctx context.Context, filter models.MaintenanceFilter) ([]models.MaintenanceWindow, *models.Pagination, error) {
	windows, total, err := s.windows.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list maintenance windows")
	}
	return windows, paginate(filter.Page, filter.PageSize, total), nil
}

type transitionEffect func(ctx context.Context, tx *sqlx.Tx, window *models.MaintenanceWindow) error

func (s *MaintenanceService) transition(ctx context.Context, params repository.TransitionParams, effect transitionEffect) (result *models.MaintenanceWindow, err error) {
	params.At = s.clock.now()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, internalError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	result, err = s.windows.Transition(ctx, tx, params)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.explainTransitionMiss(ctx, params)
		}
		return nil, internalError(err, "failed to update maintenance window")
	}
	if effect != nil {
		if err = effect(ctx, tx, result); err != nil {
			return nil, internalError(err, "failed to update maintenance target")
		}
	}
	if err = tx.Commit(); err != nil {
		return nil, internalError(err, "failed to commit maintenance window")
	}
	s.metrics.RecordMaintenanceTransition(string(params.To))
	return result, nil
}

func (s *MaintenanceService) explainTransitionMiss(ctx context.Context, params repository.TransitionParams) error {
	existing, err := s.windows.FindByID(ctx, params.ID)
	if err != nil {
		return notFoundOrInternal(err, "maintenance window not found", "failed to load maintenance window")
	}
	return stateError(fmt.Sprintf("cannot move maintenance window from %s to %s", existing.Status, params.To))
}

func (s *MaintenanceService) notifyTrainers(ctx context.Context, window *models.MaintenanceWindow) {
	if s.notifier == nil {
		return
	}
	day := scheduling.DateOf(window.ScheduledStart)
	classes, err := s.classes.ListActiveInRoom(ctx, nil, window.RoomID, day, scheduling.DateOf(window.End()))
	if err != nil {
		s.logger.Warn("failed to resolve trainers for maintenance notice", zap.String("window_id", window.ID), zap.Error(err))
		return
	}
	seen := make(map[string]struct{})
	recipients := make([]string, 0, len(classes))
	for _, class := range classes {
		if _, ok := seen[class.TrainerID]; ok {
			continue
		}
		seen[class.TrainerID] = struct{}{}
		recipients = append(recipients, class.TrainerID)
	}
	s.notifier.Notify(ctx, models.Notification{
		Recipients: recipients,
		Audience:   string(models.RoleAdmin),
		Category:   models.NotifyMaintenanceScheduled,
		Title:      "Maintenance scheduled",
		Message: fmt.Sprintf("%s from %s for %d minutes",
			window.Title, window.ScheduledStart.Format(time.RFC3339), window.DurationMinutes),
		Data: map[string]string{"window_id": window.ID, "room_id": window.RoomID},
	})
}
