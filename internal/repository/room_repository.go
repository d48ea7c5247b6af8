package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/fitclass-api/internal/models"
)

// RoomRepository reads the room directory and records operational status changes.
type RoomRepository struct {
	db *sqlx.DB
}

// NewRoomRepository constructs the repository.
func NewRoomRepository(db *sqlx.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// FindByID returns a room.
func (r *RoomRepository) FindByID(ctx context.Context, id string) (*models.Room, error) {
	const query = `SELECT id, name, capacity, status, updated_at FROM rooms WHERE id = $1`
	var room models.Room
	if err := r.db.GetContext(ctx, &room, query, id); err != nil {
		return nil, err
	}
	return &room, nil
}

// UpdateStatus sets the operational status of a room.
func (r *RoomRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.RoomStatus) error {
	if exec == nil {
		exec = r.db
	}
	const query = `UPDATE rooms SET status = $2, updated_at = $3 WHERE id = $1`
	result, err := exec.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update room status: %w", err)
	}
	return requireAffected(result, "update room status")
}

// EquipmentRepository reads equipment and records condition changes.
type EquipmentRepository struct {
	db *sqlx.DB
}

// NewEquipmentRepository constructs the repository.
func NewEquipmentRepository(db *sqlx.DB) *EquipmentRepository {
	return &EquipmentRepository{db: db}
}

// FindByID returns an equipment item.
func (r *EquipmentRepository) FindByID(ctx context.Context, id string) (*models.Equipment, error) {
	const query = `SELECT id, room_id, name, condition, updated_at FROM equipment WHERE id = $1`
	var item models.Equipment
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateCondition sets the condition of an equipment item.
func (r *EquipmentRepository) UpdateCondition(ctx context.Context, exec sqlx.ExtContext, id string, condition models.EquipmentCondition) error {
	if exec == nil {
		exec = r.db
	}
	const query = `UPDATE equipment SET condition = $2, updated_at = $3 WHERE id = $1`
	result, err := exec.ExecContext(ctx, query, id, condition, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update equipment condition: %w", err)
	}
	return requireAffected(result, "update equipment condition")
}
