package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/fitclass-api/internal/models"
)

const maintenanceColumns = `id, target_type, room_id, equipment_id, title, scheduled_start, duration_minutes, status, priority,
       actual_cost, work_performed, status_note, conflict_snapshot, created_by, started_at, completed_at, created_at, updated_at`

// MaintenanceRepository persists maintenance windows.
type MaintenanceRepository struct {
	db *sqlx.DB
}

// NewMaintenanceRepository constructs the repository.
func NewMaintenanceRepository(db *sqlx.DB) *MaintenanceRepository {
	return &MaintenanceRepository{db: db}
}

func (r *MaintenanceRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a scheduled window.
func (r *MaintenanceRepository) Create(ctx context.Context, exec sqlx.ExtContext, window *models.MaintenanceWindow) error {
	if window.ID == "" {
		window.ID = uuid.NewString()
	}
	if window.Status == "" {
		window.Status = models.MaintenanceScheduled
	}
	if window.Priority == "" {
		window.Priority = models.PriorityMedium
	}
	if len(window.ConflictSnapshot) == 0 {
		window.ConflictSnapshot = types.JSONText(`[]`)
	}
	now := time.Now().UTC()
	window.CreatedAt = now
	window.UpdatedAt = now
	const query = `INSERT INTO maintenance_windows
	(id, target_type, room_id, equipment_id, title, scheduled_start, duration_minutes, status, priority, conflict_snapshot, created_by, created_at, updated_at)
	VALUES (:id, :target_type, :room_id, :equipment_id, :title, :scheduled_start, :duration_minutes, :status, :priority, :conflict_snapshot, :created_by, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, window); err != nil {
		return fmt.Errorf("create maintenance window: %w", err)
	}
	return nil
}

// FindByID fetches a window.
func (r *MaintenanceRepository) FindByID(ctx context.Context, id string) (*models.MaintenanceWindow, error) {
	query := `SELECT ` + maintenanceColumns + ` FROM maintenance_windows WHERE id = $1`
	var window models.MaintenanceWindow
	if err := r.db.GetContext(ctx, &window, query, id); err != nil {
		return nil, err
	}
	return &window, nil
}

// ListOccupying returns scheduled or in-progress windows on roomID whose range intersects [from, to).
func (r *MaintenanceRepository) ListOccupying(ctx context.Context, exec sqlx.ExtContext, roomID string, from, to time.Time) ([]models.MaintenanceWindow, error) {
	query := `SELECT ` + maintenanceColumns + ` FROM maintenance_windows
WHERE room_id = $1 AND status IN ('scheduled', 'in_progress')
  AND scheduled_start < $3 AND scheduled_start + make_interval(mins => duration_minutes) > $2
ORDER BY scheduled_start`
	var windows []models.MaintenanceWindow
	if err := sqlx.SelectContext(ctx, r.exec(exec), &windows, query, roomID, from, to); err != nil {
		return nil, fmt.Errorf("list occupying maintenance: %w", err)
	}
	return windows, nil
}

// List returns windows matching the filter.
func (r *MaintenanceRepository) List(ctx context.Context, filter models.MaintenanceFilter) ([]models.MaintenanceWindow, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.RoomID != "" {
		args = append(args, filter.RoomID)
		where = append(where, fmt.Sprintf("room_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		where = append(where, fmt.Sprintf("scheduled_start >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where = append(where, fmt.Sprintf("scheduled_start <= $%d", len(args)))
	}
	whereClause := strings.Join(where, " AND ")
	limit, offset := pageBounds(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT %s FROM maintenance_windows WHERE %s ORDER BY scheduled_start LIMIT %d OFFSET %d`,
		maintenanceColumns, whereClause, limit, offset)
	var windows []models.MaintenanceWindow
	if err := r.db.SelectContext(ctx, &windows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list maintenance windows: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf(`SELECT COUNT(*) FROM maintenance_windows WHERE %s`, whereClause), args...); err != nil {
		return nil, 0, fmt.Errorf("count maintenance windows: %w", err)
	}
	return windows, total, nil
}

// TransitionParams describes a guarded status change.
type TransitionParams struct {
	ID            string
	From          models.MaintenanceStatus
	To            models.MaintenanceStatus
	At            time.Time
	Note          *string
	ActualCost    *float64
	WorkPerformed *string
}

// Transition moves a window from params.From to params.To. When the window is not in
// params.From the row is left untouched and sql.ErrNoRows is returned.
func (r *MaintenanceRepository) Transition(ctx context.Context, exec sqlx.ExtContext, params TransitionParams) (*models.MaintenanceWindow, error) {
	setParts := []string{"status = $3", "updated_at = $4"}
	args := []interface{}{params.ID, params.From, params.To, params.At}
	switch params.To {
	case models.MaintenanceInProgress:
		setParts = append(setParts, "started_at = $4")
	case models.MaintenanceCompleted:
		setParts = append(setParts, "completed_at = $4")
	}
	if params.Note != nil {
		args = append(args, *params.Note)
		setParts = append(setParts, fmt.Sprintf("status_note = $%d", len(args)))
	}
	if params.ActualCost != nil {
		args = append(args, *params.ActualCost)
		setParts = append(setParts, fmt.Sprintf("actual_cost = $%d", len(args)))
	}
	if params.WorkPerformed != nil {
		args = append(args, *params.WorkPerformed)
		setParts = append(setParts, fmt.Sprintf("work_performed = $%d", len(args)))
	}
	query := fmt.Sprintf(`UPDATE maintenance_windows SET %s WHERE id = $1 AND status = $2 RETURNING %s`,
		strings.Join(setParts, ", "), maintenanceColumns)
	var window models.MaintenanceWindow
	if err := sqlx.GetContext(ctx, r.exec(exec), &window, query, args...); err != nil {
		return nil, err
	}
	return &window, nil
}
