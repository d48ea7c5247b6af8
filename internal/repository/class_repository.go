package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/fitclass-api/internal/models"
)

const classColumns = `id, name, description, trainer_id, room_id, location, capacity, recurrence, start_date, end_date,
       total_sessions, current_sessions, cancelled_at, cancel_reason, created_at, updated_at`

// ClassRepository persists class definitions.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs the repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

func (r *ClassRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a class.
func (r *ClassRepository) Create(ctx context.Context, exec sqlx.ExtContext, class *models.ClassDefinition) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	class.CreatedAt = now
	class.UpdatedAt = now
	const query = `INSERT INTO classes (id, name, description, trainer_id, room_id, location, capacity, recurrence, start_date, end_date,
       total_sessions, current_sessions, created_at, updated_at)
VALUES (:id, :name, :description, :trainer_id, :room_id, :location, :capacity, :recurrence, :start_date, :end_date,
       :total_sessions, :current_sessions, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// FindByID fetches a class by identifier.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.ClassDefinition, error) {
	query := `SELECT ` + classColumns + ` FROM classes WHERE id = $1`
	var class models.ClassDefinition
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// FindByIDForUpdate locks the class row for the remainder of the transaction.
func (r *ClassRepository) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassDefinition, error) {
	query := `SELECT ` + classColumns + ` FROM classes WHERE id = $1 FOR UPDATE`
	var class models.ClassDefinition
	if err := sqlx.GetContext(ctx, r.exec(exec), &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// List returns classes matching the filter.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDefinition, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.TrainerID != "" {
		args = append(args, filter.TrainerID)
		where = append(where, fmt.Sprintf("trainer_id = $%d", len(args)))
	}
	if filter.RoomID != "" {
		args = append(args, filter.RoomID)
		where = append(where, fmt.Sprintf("room_id = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		where = append(where, fmt.Sprintf("LOWER(name) LIKE $%d", len(args)))
	}
	whereClause := strings.Join(where, " AND ")

	allowedSort := map[string]string{
		"name":       "name",
		"start_date": "start_date",
		"created_at": "created_at",
	}
	sortColumn, ok := allowedSort[filter.SortBy]
	if !ok {
		sortColumn = "start_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	limit, offset := pageBounds(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT %s FROM classes WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`,
		classColumns, whereClause, sortColumn, order, limit, offset)
	var classes []models.ClassDefinition
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf(`SELECT COUNT(*) FROM classes WHERE %s`, whereClause), args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}
	return classes, total, nil
}

// ListActiveInRoom returns non-cancelled classes held in roomID whose course range intersects [from, to].
func (r *ClassRepository) ListActiveInRoom(ctx context.Context, exec sqlx.ExtContext, roomID string, from, to time.Time) ([]models.ClassDefinition, error) {
	query := `SELECT ` + classColumns + ` FROM classes
WHERE room_id = $1 AND cancelled_at IS NULL AND start_date <= $3 AND end_date >= $2
ORDER BY start_date`
	var classes []models.ClassDefinition
	if err := sqlx.SelectContext(ctx, r.exec(exec), &classes, query, roomID, from, to); err != nil {
		return nil, fmt.Errorf("list classes in room: %w", err)
	}
	return classes, nil
}

// UpdateSchedule persists the expansion-driving fields and the room reference.
func (r *ClassRepository) UpdateSchedule(ctx context.Context, exec sqlx.ExtContext, class *models.ClassDefinition) error {
	class.UpdatedAt = time.Now().UTC()
	const query = `UPDATE classes SET recurrence = :recurrence, start_date = :start_date, end_date = :end_date,
       total_sessions = :total_sessions, current_sessions = :current_sessions, room_id = :room_id, location = :location,
       updated_at = :updated_at
WHERE id = :id AND cancelled_at IS NULL`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, class)
	if err != nil {
		return fmt.Errorf("update class schedule: %w", err)
	}
	return requireAffected(result, "update class schedule")
}

// UpdateProgress stores the current session counter.
func (r *ClassRepository) UpdateProgress(ctx context.Context, exec sqlx.ExtContext, id string, currentSessions int) error {
	const query = `UPDATE classes SET current_sessions = $2, updated_at = $3 WHERE id = $1 AND total_sessions >= $2`
	result, err := r.exec(exec).ExecContext(ctx, query, id, currentSessions, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update class progress: %w", err)
	}
	return requireAffected(result, "update class progress")
}

// Cancel marks a class cancelled. Cancelling twice returns sql.ErrNoRows.
func (r *ClassRepository) Cancel(ctx context.Context, exec sqlx.ExtContext, id string, reason *string, at time.Time) error {
	const query = `UPDATE classes SET cancelled_at = $2, cancel_reason = $3, updated_at = $2 WHERE id = $1 AND cancelled_at IS NULL`
	result, err := r.exec(exec).ExecContext(ctx, query, id, at, reason)
	if err != nil {
		return fmt.Errorf("cancel class: %w", err)
	}
	return requireAffected(result, "cancel class")
}

func requireAffected(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
