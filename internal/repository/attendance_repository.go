package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/fitclass-api/internal/models"
)

const attendanceColumns = `id, class_id, member_id, session_number, session_date, present, checked_in_at, note, created_at, updated_at`

// AttendanceRepository persists per-session attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

func (r *AttendanceRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// CountSession counts the records of one session.
func (r *AttendanceRepository) CountSession(ctx context.Context, exec sqlx.ExtContext, classID string, sessionNumber int) (int, error) {
	const query = `SELECT COUNT(*) FROM attendance_records WHERE class_id = $1 AND session_number = $2`
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, classID, sessionNumber); err != nil {
		return 0, fmt.Errorf("count session attendance: %w", err)
	}
	return count, nil
}

// InsertUnmarked creates unmarked records, skipping any (class, member, session) triple that already exists.
// Only the rows actually inserted are returned.
func (r *AttendanceRepository) InsertUnmarked(ctx context.Context, exec sqlx.ExtContext, records []models.AttendanceRecord) ([]models.AttendanceRecord, error) {
	query := `INSERT INTO attendance_records (id, class_id, member_id, session_number, session_date, present, checked_in_at, note, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, FALSE, NULL, NULL, $6, $6)
ON CONFLICT (class_id, member_id, session_number) DO NOTHING
RETURNING ` + attendanceColumns
	target := r.exec(exec)
	now := time.Now().UTC()
	inserted := make([]models.AttendanceRecord, 0, len(records))
	for _, rec := range records {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		var stored models.AttendanceRecord
		err := sqlx.GetContext(ctx, target, &stored, query, rec.ID, rec.ClassID, rec.MemberID, rec.SessionNumber, rec.SessionDate, now)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("insert attendance for member %s session %d: %w", rec.MemberID, rec.SessionNumber, err)
		}
		inserted = append(inserted, stored)
	}
	return inserted, nil
}

// UpsertPresence writes the presence state of one triple. A repeated check-in keeps the first timestamp;
// marking absent clears it. updated_at only moves when the stored state changes.
func (r *AttendanceRepository) UpsertPresence(ctx context.Context, exec sqlx.ExtContext, rec *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	query := `INSERT INTO attendance_records (id, class_id, member_id, session_number, session_date, present, checked_in_at, note, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
ON CONFLICT (class_id, member_id, session_number) DO UPDATE SET
    present = EXCLUDED.present,
    checked_in_at = CASE WHEN EXCLUDED.present THEN COALESCE(attendance_records.checked_in_at, EXCLUDED.checked_in_at) ELSE NULL END,
    note = COALESCE(EXCLUDED.note, attendance_records.note),
    updated_at = CASE
        WHEN attendance_records.present IS DISTINCT FROM EXCLUDED.present
          OR (EXCLUDED.note IS NOT NULL AND attendance_records.note IS DISTINCT FROM EXCLUDED.note)
        THEN EXCLUDED.updated_at
        ELSE attendance_records.updated_at
    END
RETURNING ` + attendanceColumns
	var stored models.AttendanceRecord
	err := sqlx.GetContext(ctx, r.exec(exec), &stored, query,
		rec.ID, rec.ClassID, rec.MemberID, rec.SessionNumber, rec.SessionDate, rec.Present, rec.CheckedInAt, rec.Note, now)
	if err != nil {
		return nil, fmt.Errorf("upsert attendance presence: %w", err)
	}
	return &stored, nil
}

// FindOne returns the record of a triple.
func (r *AttendanceRepository) FindOne(ctx context.Context, exec sqlx.ExtContext, classID, memberID string, sessionNumber int) (*models.AttendanceRecord, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance_records WHERE class_id = $1 AND member_id = $2 AND session_number = $3`
	var rec models.AttendanceRecord
	if err := sqlx.GetContext(ctx, r.exec(exec), &rec, query, classID, memberID, sessionNumber); err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns records matching the filter ordered by session then member.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance_records WHERE class_id = $1`
	args := []interface{}{filter.ClassID}
	if filter.SessionNumber > 0 {
		args = append(args, filter.SessionNumber)
		query += fmt.Sprintf(" AND session_number = $%d", len(args))
	}
	if filter.MemberID != "" {
		args = append(args, filter.MemberID)
		query += fmt.Sprintf(" AND member_id = $%d", len(args))
	}
	query += " ORDER BY session_number, member_id"
	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return records, nil
}

// ListOpenedSessions returns the distinct session numbers that already have records.
func (r *AttendanceRepository) ListOpenedSessions(ctx context.Context, exec sqlx.ExtContext, classID string) ([]int, error) {
	const query = `SELECT DISTINCT session_number FROM attendance_records WHERE class_id = $1 ORDER BY session_number`
	var sessions []int
	if err := sqlx.SelectContext(ctx, r.exec(exec), &sessions, query, classID); err != nil {
		return nil, fmt.Errorf("list opened sessions: %w", err)
	}
	return sessions, nil
}

// RescheduleUnmarked moves unmarked records of a session to a new date.
func (r *AttendanceRepository) RescheduleUnmarked(ctx context.Context, exec sqlx.ExtContext, classID string, sessionNumber int, date time.Time) (int64, error) {
	const query = `UPDATE attendance_records SET session_date = $3, updated_at = $4
WHERE class_id = $1 AND session_number = $2 AND present = FALSE AND checked_in_at IS NULL AND session_date <> $3`
	result, err := r.exec(exec).ExecContext(ctx, query, classID, sessionNumber, date, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("reschedule attendance session %d: %w", sessionNumber, err)
	}
	return result.RowsAffected()
}

// DeleteUnmarkedAbove removes unmarked records whose session number exceeds limit.
func (r *AttendanceRepository) DeleteUnmarkedAbove(ctx context.Context, exec sqlx.ExtContext, classID string, limit int) (int64, error) {
	const query = `DELETE FROM attendance_records
WHERE class_id = $1 AND session_number > $2 AND present = FALSE AND checked_in_at IS NULL`
	result, err := r.exec(exec).ExecContext(ctx, query, classID, limit)
	if err != nil {
		return 0, fmt.Errorf("delete attendance above session %d: %w", limit, err)
	}
	return result.RowsAffected()
}

// CountMarkedAbove counts presence-marked records whose session number exceeds limit.
func (r *AttendanceRepository) CountMarkedAbove(ctx context.Context, exec sqlx.ExtContext, classID string, limit int) (int, error) {
	const query = `SELECT COUNT(*) FROM attendance_records
WHERE class_id = $1 AND session_number > $2 AND (present = TRUE OR checked_in_at IS NOT NULL)`
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, classID, limit); err != nil {
		return 0, fmt.Errorf("count preserved attendance: %w", err)
	}
	return count, nil
}
