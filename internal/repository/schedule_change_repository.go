package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/fitclass-api/internal/models"
)

const scheduleChangeColumns = `id, trainer_id, class_id, original_date, requested_date, reason, urgency, status, admin_response,
       reviewed_by, reviewed_at, makeup_date, makeup_start, makeup_end, makeup_room_id, makeup_location, created_at, updated_at`

// ScheduleChangeRepository persists schedule change requests and their makeup occurrences.
type ScheduleChangeRepository struct {
	db *sqlx.DB
}

// NewScheduleChangeRepository constructs the repository.
func NewScheduleChangeRepository(db *sqlx.DB) *ScheduleChangeRepository {
	return &ScheduleChangeRepository{db: db}
}

func (r *ScheduleChangeRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a pending request. A second pending request for the same
// trainer, class and original date returns ErrDuplicate.
func (r *ScheduleChangeRepository) Create(ctx context.Context, exec sqlx.ExtContext, req *models.ScheduleChangeRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.Status = models.ScheduleChangePending
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now
	const query = `INSERT INTO schedule_change_requests
	(id, trainer_id, class_id, original_date, requested_date, reason, urgency, status, created_at, updated_at)
	VALUES (:id, :trainer_id, :class_id, :original_date, :requested_date, :reason, :urgency, :status, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, req); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create schedule change request: %w", err)
	}
	return nil
}

// FindByID fetches a request.
func (r *ScheduleChangeRepository) FindByID(ctx context.Context, id string) (*models.ScheduleChangeRequest, error) {
	query := `SELECT ` + scheduleChangeColumns + ` FROM schedule_change_requests WHERE id = $1`
	var req models.ScheduleChangeRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// HasPending reports whether a pending request exists for the triple.
func (r *ScheduleChangeRepository) HasPending(ctx context.Context, exec sqlx.ExtContext, trainerID, classID string, originalDate time.Time) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM schedule_change_requests
WHERE trainer_id = $1 AND class_id = $2 AND original_date = $3 AND status = 'pending')`
	var exists bool
	if err := sqlx.GetContext(ctx, r.exec(exec), &exists, query, trainerID, classID, originalDate); err != nil {
		return false, fmt.Errorf("check pending schedule change: %w", err)
	}
	return exists, nil
}

// List returns requests matching the filter, latest first.
func (r *ScheduleChangeRepository) List(ctx context.Context, filter models.ScheduleChangeFilter) ([]models.ScheduleChangeRequest, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.ClassID != "" {
		args = append(args, filter.ClassID)
		where = append(where, fmt.Sprintf("class_id = $%d", len(args)))
	}
	if filter.TrainerID != "" {
		args = append(args, filter.TrainerID)
		where = append(where, fmt.Sprintf("trainer_id = $%d", len(args)))
	}
	whereClause := strings.Join(where, " AND ")
	limit, offset := pageBounds(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT %s FROM schedule_change_requests WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		scheduleChangeColumns, whereClause, limit, offset)
	var requests []models.ScheduleChangeRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list schedule change requests: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf(`SELECT COUNT(*) FROM schedule_change_requests WHERE %s`, whereClause), args...); err != nil {
		return nil, 0, fmt.Errorf("count schedule change requests: %w", err)
	}
	return requests, total, nil
}

// ReviewParams captures the outcome of an admin review.
type ReviewParams struct {
	ID            string
	Status        models.ScheduleChangeStatus
	ReviewedBy    string
	ReviewedAt    time.Time
	AdminResponse *string
}

// Review moves a pending request to approved or rejected. A request that is no longer
// pending is left untouched and sql.ErrNoRows is returned.
func (r *ScheduleChangeRepository) Review(ctx context.Context, exec sqlx.ExtContext, params ReviewParams) (*models.ScheduleChangeRequest, error) {
	query := `UPDATE schedule_change_requests
SET status = $2, reviewed_by = $3, reviewed_at = $4, admin_response = $5, updated_at = $4
WHERE id = $1 AND status = 'pending'
RETURNING ` + scheduleChangeColumns
	var req models.ScheduleChangeRequest
	err := sqlx.GetContext(ctx, r.exec(exec), &req, query, params.ID, params.Status, params.ReviewedBy, params.ReviewedAt, params.AdminResponse)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// AttachMakeup stores the makeup occurrence once, only while the request is approved.
func (r *ScheduleChangeRepository) AttachMakeup(ctx context.Context, exec sqlx.ExtContext, id string, makeup models.MakeupOccurrence) (*models.ScheduleChangeRequest, error) {
	query := `UPDATE schedule_change_requests
SET makeup_date = $2, makeup_start = $3, makeup_end = $4, makeup_room_id = $5, makeup_location = $6, updated_at = $7
WHERE id = $1 AND status = 'approved' AND makeup_date IS NULL
RETURNING ` + scheduleChangeColumns
	var req models.ScheduleChangeRequest
	err := sqlx.GetContext(ctx, r.exec(exec), &req, query,
		id, makeup.Date, makeup.Start.String(), makeup.End.String(), makeup.RoomID, makeup.Location, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// ListEffective returns approved requests carrying a makeup for the given classes,
// where either the original or the makeup date falls within [from, to] when bounds are set.
func (r *ScheduleChangeRepository) ListEffective(ctx context.Context, exec sqlx.ExtContext, classIDs []string, from, to *time.Time) ([]models.ScheduleChangeRequest, error) {
	if len(classIDs) == 0 {
		return []models.ScheduleChangeRequest{}, nil
	}
	query := `SELECT ` + scheduleChangeColumns + ` FROM schedule_change_requests
WHERE status = 'approved' AND makeup_date IS NOT NULL AND class_id = ANY($1)`
	args := []interface{}{pq.Array(classIDs)}
	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND (original_date >= $%d OR makeup_date >= $%d)", len(args), len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND (original_date <= $%d OR makeup_date <= $%d)", len(args), len(args))
	}
	query += " ORDER BY makeup_date, makeup_start"
	var requests []models.ScheduleChangeRequest
	if err := sqlx.SelectContext(ctx, r.exec(exec), &requests, query, args...); err != nil {
		return nil, fmt.Errorf("list effective schedule changes: %w", err)
	}
	return requests, nil
}

// ListMakeupsInRoom returns approved makeups of live classes booked in roomID between from and to (dates inclusive).
func (r *ScheduleChangeRepository) ListMakeupsInRoom(ctx context.Context, exec sqlx.ExtContext, roomID string, from, to time.Time) ([]models.ScheduleChangeRequest, error) {
	query := `SELECT ` + scheduleChangeColumns + ` FROM schedule_change_requests
WHERE status = 'approved' AND makeup_room_id = $1 AND makeup_date BETWEEN $2 AND $3
  AND EXISTS (SELECT 1 FROM classes c WHERE c.id = schedule_change_requests.class_id AND c.cancelled_at IS NULL)
ORDER BY makeup_date, makeup_start`
	var requests []models.ScheduleChangeRequest
	if err := sqlx.SelectContext(ctx, r.exec(exec), &requests, query, roomID, from, to); err != nil {
		return nil, fmt.Errorf("list makeups in room: %w", err)
	}
	return requests, nil
}
