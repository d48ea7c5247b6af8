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
)

type roomClassReader interface {
	ListActiveInRoom(ctx context.Context, exec sqlx.ExtContext, roomID string, from, to time.Time) ([]models.ClassDefinition, error)
}

type makeupReader interface {
	ListEffective(ctx context.Context, exec sqlx.ExtContext, classIDs []string, from, to *time.Time) ([]models.ScheduleChangeRequest, error)
	ListMakeupsInRoom(ctx context.Context, exec sqlx.ExtContext, roomID string, from, to time.Time) ([]models.ScheduleChangeRequest, error)
}

type maintenanceOccupancyReader interface {
	ListOccupying(ctx context.Context, exec sqlx.ExtContext, roomID string, from, to time.Time) ([]models.MaintenanceWindow, error)
}

type roomDirectory interface {
	FindByID(ctx context.Context, id string) (*models.Room, error)
}

// Exclusions removes occupants that belong to the booking being validated.
type Exclusions struct {
	// ClassID skips every regular occurrence of the class.
	ClassID string
	// Released skips regular occurrences of a class on specific dates.
	Released map[string]scheduling.DateSet
	// MakeupRequestID skips the makeup of a request.
	MakeupRequestID string
	// MaintenanceID skips a maintenance window.
	MaintenanceID string
}

// ConflictReport is the outcome of checking candidates against room occupants.
type ConflictReport struct {
	Conflicts []scheduling.Occupant
	Warnings  []models.Warning
}

// Available reports whether no conflict was found.
func (r ConflictReport) Available() bool {
	return len(r.Conflicts) == 0
}

// ConflictService gathers room occupants and detects overlaps. It never writes.
type ConflictService struct {
	classes     roomClassReader
	changes     makeupReader
	maintenance maintenanceOccupancyReader
	rooms       roomDirectory
	metrics     *MetricsService
	logger      *zap.Logger
	loc         *time.Location
}

// NewConflictService constructs the service. loc anchors dates and times of day to instants.
func NewConflictService(classes roomClassReader, changes makeupReader, maintenance maintenanceOccupancyReader, rooms roomDirectory, metrics *MetricsService, logger *zap.Logger, loc *time.Location) *ConflictService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &ConflictService{classes: classes, changes: changes, maintenance: maintenance, rooms: rooms, metrics: metrics, logger: logger, loc: loc}
}

// Location returns the schedule timezone.
func (s *ConflictService) Location() *time.Location {
	return s.loc
}

// CheckAvailability answers whether roomID is free over [start, end).
func (s *ConflictService) CheckAvailability(ctx context.Context, roomID string, start, end time.Time) (*models.Availability, error) {
	if !start.Before(end) {
		return nil, validationError("start must be before end")
	}
	report, err := s.Detect(ctx, nil, []scheduling.Candidate{{RoomID: roomID, Start: start, End: end}}, Exclusions{})
	if err != nil {
		return nil, err
	}
	conflicts := report.Conflicts
	if conflicts == nil {
		conflicts = []scheduling.Occupant{}
	}
	return &models.Availability{
		RoomID:    roomID,
		Start:     start,
		End:       end,
		Available: report.Available(),
		Conflicts: conflicts,
		Warnings:  report.Warnings,
	}, nil
}

// Detect checks every candidate against the occupants of its room. Candidates without a
// room, or whose room is unknown, are treated as available and reported as warnings.
// exec may be a transaction holding the room-day locks of the candidates.
func (s *ConflictService) Detect(ctx context.Context, exec sqlx.ExtContext, candidates []scheduling.Candidate, excl Exclusions) (report ConflictReport, err error) {
	ctx, span := tracer.Start(ctx, "conflict.detect")
	span.SetAttributes(attribute.Int("candidates", len(candidates)))
	defer func() { endSpan(span, err) }()

	byRoom := make(map[string][]scheduling.Candidate)
	order := make([]string, 0)
	unresolved := 0
	for _, c := range candidates {
		if c.RoomID == "" {
			unresolved++
			continue
		}
		if _, ok := byRoom[c.RoomID]; !ok {
			order = append(order, c.RoomID)
		}
		byRoom[c.RoomID] = append(byRoom[c.RoomID], c)
	}
	if unresolved > 0 {
		report.Warnings = append(report.Warnings, models.Warning{
			Code:    models.WarningUnresolvedLocation,
			Message: "location does not reference a room; availability was not verified",
		})
	}

	seen := make(map[string]struct{})
	for _, roomID := range order {
		room, err := s.rooms.FindByID(ctx, roomID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				report.Warnings = append(report.Warnings, models.Warning{
					Code:    models.WarningUnresolvedLocation,
					Message: fmt.Sprintf("room %s is not in the room directory; availability was not verified", roomID),
				})
				continue
			}
			return ConflictReport{}, internalError(err, "failed to load room")
		}
		if room.Status != models.RoomActive {
			report.Warnings = append(report.Warnings, models.Warning{
				Code:    models.WarningRoomUnavailable,
				Message: fmt.Sprintf("room %s is currently %s", room.Name, room.Status),
			})
		}

		group := byRoom[roomID]
		from, to := s.dateSpan(group)
		occupants, err := s.Occupants(ctx, exec, roomID, from, to, excl)
		if err != nil {
			return ConflictReport{}, err
		}
		for _, candidate := range group {
			for _, hit := range scheduling.DetectConflicts(candidate, occupants) {
				key := fmt.Sprintf("%s|%s|%d", hit.Kind, hit.SourceID, hit.Start.Unix())
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				report.Conflicts = append(report.Conflicts, hit)
				s.metrics.RecordConflict(string(hit.Kind))
			}
		}
	}
	span.SetAttributes(attribute.Int("conflicts", len(report.Conflicts)))
	return report, nil
}

// Occupants lists everything holding roomID on calendar dates from..to inclusive.
func (s *ConflictService) Occupants(ctx context.Context, exec sqlx.ExtContext, roomID string, from, to time.Time, excl Exclusions) ([]scheduling.Occupant, error) {
	from, to = scheduling.DateOf(from), scheduling.DateOf(to)

	classes, err := s.classes.ListActiveInRoom(ctx, exec, roomID, from, to)
	if err != nil {
		return nil, internalError(err, "failed to load room classes")
	}
	classIDs := make([]string, 0, len(classes))
	for _, class := range classes {
		classIDs = append(classIDs, class.ID)
	}
	released, err := s.releasedDates(ctx, exec, classIDs, from, to)
	if err != nil {
		return nil, err
	}
	for classID, dates := range excl.Released {
		if released[classID] == nil {
			released[classID] = scheduling.NewDateSet()
		}
		for key := range dates {
			released[classID][key] = struct{}{}
		}
	}

	var occupants []scheduling.Occupant
	for _, class := range classes {
		if class.ID == excl.ClassID {
			continue
		}
		for _, occ := range class.Occurrences() {
			if occ.Date.Before(from) || occ.Date.After(to) || released[class.ID].Has(occ.Date) {
				continue
			}
			start, end := occ.Window(s.loc)
			occupants = append(occupants, scheduling.Occupant{
				Kind:          scheduling.KindClass,
				SourceID:      class.ID,
				ClassID:       class.ID,
				RoomID:        roomID,
				Label:         class.Name,
				SessionNumber: occ.SessionNumber,
				Start:         start,
				End:           end,
			})
		}
	}

	makeups, err := s.changes.ListMakeupsInRoom(ctx, exec, roomID, from, to)
	if err != nil {
		return nil, internalError(err, "failed to load makeup sessions")
	}
	for _, req := range makeups {
		if req.ID == excl.MakeupRequestID {
			continue
		}
		makeup, ok := req.Makeup()
		if !ok {
			s.logger.Warn("skipping malformed makeup", zap.String("request_id", req.ID))
			continue
		}
		occupants = append(occupants, scheduling.Occupant{
			Kind:     scheduling.KindMakeup,
			SourceID: req.ID,
			ClassID:  req.ClassID,
			RoomID:   roomID,
			Label:    "makeup session",
			Start:    makeup.Start.On(makeup.Date, s.loc),
			End:      makeup.End.On(makeup.Date, s.loc),
		})
	}

	windowFrom := scheduling.TimeOfDay(0).On(from, s.loc)
	windowTo := scheduling.TimeOfDay(0).On(to.AddDate(0, 0, 1), s.loc)
	windows, err := s.maintenance.ListOccupying(ctx, exec, roomID, windowFrom, windowTo)
	if err != nil {
		return nil, internalError(err, "failed to load maintenance windows")
	}
	for _, w := range windows {
		if w.ID == excl.MaintenanceID || !w.Status.Occupying() {
			continue
		}
		occupants = append(occupants, scheduling.Occupant{
			Kind:     scheduling.KindMaintenance,
			SourceID: w.ID,
			RoomID:   roomID,
			Label:    w.Title,
			Start:    w.ScheduledStart,
			End:      w.End(),
		})
	}
	return occupants, nil
}

// releasedDates maps each class to the original dates retired by an approved makeup.
func (s *ConflictService) releasedDates(ctx context.Context, exec sqlx.ExtContext, classIDs []string, from, to time.Time) (map[string]scheduling.DateSet, error) {
	released := make(map[string]scheduling.DateSet)
	if len(classIDs) == 0 {
		return released, nil
	}
	changes, err := s.changes.ListEffective(ctx, exec, classIDs, &from, &to)
	if err != nil {
		return nil, internalError(err, "failed to load schedule changes")
	}
	for _, change := range changes {
		if released[change.ClassID] == nil {
			released[change.ClassID] = scheduling.NewDateSet()
		}
		released[change.ClassID].Add(change.OriginalDate)
	}
	return released, nil
}

func (s *ConflictService) dateSpan(candidates []scheduling.Candidate) (time.Time, time.Time) {
	from := scheduling.DateOf(candidates[0].Start.In(s.loc))
	to := scheduling.DateOf(candidates[0].End.In(s.loc))
	for _, c := range candidates[1:] {
		if d := scheduling.DateOf(c.Start.In(s.loc)); d.Before(from) {
			from = d
		}
		if d := scheduling.DateOf(c.End.In(s.loc)); d.After(to) {
			to = d
		}
	}
	return from, to
}

// RoomDayKeys returns the lock keys covering candidates, one per room and local date.
func (s *ConflictService) RoomDayKeys(candidates []scheduling.Candidate) []string {
	keys := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c.RoomID == "" {
			continue
		}
		first := scheduling.DateOf(c.Start.In(s.loc))
		last := scheduling.DateOf(c.End.Add(-time.Nanosecond).In(s.loc))
		for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
			keys = append(keys, repository.RoomDayLockKey(c.RoomID, d))
		}
	}
	return keys
}
