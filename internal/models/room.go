package models

import "time"

// RoomStatus is the operational status of a room.
type RoomStatus string

const (
	RoomActive      RoomStatus = "active"
	RoomMaintenance RoomStatus = "maintenance"
	RoomInactive    RoomStatus = "inactive"
)

// Room is read from the room directory.
type Room struct {
	ID        string     `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	Capacity  int        `db:"capacity" json:"capacity"`
	Status    RoomStatus `db:"status" json:"status"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// EquipmentCondition tracks whether equipment is usable.
type EquipmentCondition string

const (
	EquipmentGood         EquipmentCondition = "good"
	EquipmentNeedsService EquipmentCondition = "needs_service"
	EquipmentOutOfService EquipmentCondition = "out_of_service"
)

// Equipment lives in a room.
type Equipment struct {
	ID        string             `db:"id" json:"id"`
	RoomID    string             `db:"room_id" json:"room_id"`
	Name      string             `db:"name" json:"name"`
	Condition EquipmentCondition `db:"condition" json:"condition"`
	UpdatedAt time.Time          `db:"updated_at" json:"updated_at"`
}
