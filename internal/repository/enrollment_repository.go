package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/fitclass-api/internal/models"
)

const enrollmentColumns = `id, member_id, class_id, payment_confirmed, status, joined_at, left_at, updated_at`

// EnrollmentRepository manages class enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

func (r *EnrollmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID returns an enrollment by identifier.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindByMember returns the enrollment of memberID in classID regardless of status.
func (r *EnrollmentRepository) FindByMember(ctx context.Context, exec sqlx.ExtContext, classID, memberID string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE class_id = $1 AND member_id = $2`
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, r.exec(exec), &enrollment, query, classID, memberID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// Upsert activates the enrollment of a member, reviving a cancelled one. Payment must be confirmed again.
func (r *EnrollmentRepository) Upsert(ctx context.Context, exec sqlx.ExtContext, classID, memberID string) (*models.Enrollment, error) {
	now := time.Now().UTC()
	query := `INSERT INTO enrollments (id, member_id, class_id, payment_confirmed, status, joined_at, updated_at)
VALUES ($1, $2, $3, FALSE, 'active', $4, $4)
ON CONFLICT (class_id, member_id)
DO UPDATE SET status = 'active', payment_confirmed = FALSE, joined_at = EXCLUDED.joined_at, left_at = NULL, updated_at = EXCLUDED.updated_at
WHERE enrollments.status <> 'active'
RETURNING ` + enrollmentColumns
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, r.exec(exec), &enrollment, query, uuid.NewString(), memberID, classID, now); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// CountSeats counts active, paid enrollments of a class.
func (r *EnrollmentRepository) CountSeats(ctx context.Context, exec sqlx.ExtContext, classID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE class_id = $1 AND status = 'active' AND payment_confirmed = TRUE`
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, classID); err != nil {
		return 0, fmt.Errorf("count class seats: %w", err)
	}
	return count, nil
}

// ConfirmPayment flags an active enrollment as paid.
func (r *EnrollmentRepository) ConfirmPayment(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Enrollment, error) {
	query := `UPDATE enrollments SET payment_confirmed = TRUE, updated_at = $2
WHERE id = $1 AND status = 'active' AND payment_confirmed = FALSE
RETURNING ` + enrollmentColumns
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, r.exec(exec), &enrollment, query, id, time.Now().UTC()); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// Cancel ends an active enrollment.
func (r *EnrollmentRepository) Cancel(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) (*models.Enrollment, error) {
	query := `UPDATE enrollments SET status = 'cancelled', left_at = $2, updated_at = $2
WHERE id = $1 AND status = 'active'
RETURNING ` + enrollmentColumns
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, r.exec(exec), &enrollment, query, id, at); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ListRoster returns the active, paid members of a class ordered by join time.
func (r *EnrollmentRepository) ListRoster(ctx context.Context, exec sqlx.ExtContext, classID string) ([]models.RosterMember, error) {
	const query = `SELECT id AS enrollment_id, member_id, joined_at FROM enrollments
WHERE class_id = $1 AND status = 'active' AND payment_confirmed = TRUE
ORDER BY joined_at, member_id`
	var roster []models.RosterMember
	if err := sqlx.SelectContext(ctx, r.exec(exec), &roster, query, classID); err != nil {
		return nil, fmt.Errorf("list class roster: %w", err)
	}
	return roster, nil
}

// ListClassIDsByMember returns the classes a member is actively enrolled in.
func (r *EnrollmentRepository) ListClassIDsByMember(ctx context.Context, memberID string) ([]string, error) {
	const query = `SELECT class_id FROM enrollments WHERE member_id = $1 AND status = 'active' ORDER BY class_id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, memberID); err != nil {
		return nil, fmt.Errorf("list member classes: %w", err)
	}
	return ids, nil
}

// List returns enrollments matching the filter.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.ClassID != "" {
		args = append(args, filter.ClassID)
		where = append(where, fmt.Sprintf("class_id = $%d", len(args)))
	}
	if filter.MemberID != "" {
		args = append(args, filter.MemberID)
		where = append(where, fmt.Sprintf("member_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	whereClause := strings.Join(where, " AND ")
	limit, offset := pageBounds(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE %s ORDER BY joined_at DESC LIMIT %d OFFSET %d`,
		enrollmentColumns, whereClause, limit, offset)
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf(`SELECT COUNT(*) FROM enrollments WHERE %s`, whereClause), args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}
