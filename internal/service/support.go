package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/fitclass-api/internal/models"
	"github.com/noah-isme/fitclass-api/internal/scheduling"
	appErrors "github.com/noah-isme/fitclass-api/pkg/errors"
	"github.com/noah-isme/fitclass-api/pkg/validation"
)

var tracer = otel.Tracer("github.com/noah-isme/fitclass-api/internal/service")

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type advisoryLocker interface {
	Lock(ctx context.Context, exec sqlx.ExtContext, keys ...string) error
}

// Actor identifies the caller of a state-changing operation.
type Actor struct {
	UserID string
	Role   models.UserRole
}

// IsAdmin reports whether the actor has administrative rights.
func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

// ActorFromClaims maps JWT claims to an Actor.
func ActorFromClaims(claims *models.JWTClaims) Actor {
	if claims == nil {
		return Actor{}
	}
	return Actor{UserID: claims.UserID, Role: claims.Role}
}

// Clock supplies the current instant.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c()
}

func validationError(message string) error {
	return appErrors.Clone(appErrors.ErrValidation, message)
}

func stateError(message string) error {
	return appErrors.Clone(appErrors.ErrInvalidState, message)
}

func internalError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func notFoundOrInternal(err error, notFound, internal string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return internalError(err, internal)
}

func conflictError(message string, conflicts []scheduling.Occupant) error {
	domainErr := &models.ScheduleConflictError{Message: message, Conflicts: conflicts}
	return appErrors.Wrap(domainErr, appErrors.ErrScheduleConflict.Code, appErrors.ErrScheduleConflict.Status, message).
		WithDetails(map[string]interface{}{"conflicts": conflicts})
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func parseDate(field, raw string) (time.Time, error) {
	d, err := scheduling.ParseDate(raw)
	if err != nil {
		return time.Time{}, validationError(field + " must be a date in YYYY-MM-DD format")
	}
	return d, nil
}

// NewValidator returns the request validator with the scheduling rules registered.
func NewValidator() *validation.Validator {
	v := validation.New()
	v.RegisterRule("urgency", "must be one of low, normal, high, urgent", func(fl validator.FieldLevel) bool {
		return models.Urgency(fl.Field().String()).Valid()
	})
	v.RegisterRule("clock", "must be a time of day in HH:MM format", func(fl validator.FieldLevel) bool {
		_, err := scheduling.ParseTimeOfDay(fl.Field().String())
		return err == nil
	})
	return v
}

func invalidPayload(v *validation.Validator, err error) error {
	message := v.Describe(err)
	if message == "" {
		message = "invalid payload"
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message).
		WithDetails(v.Fields(err))
}

func paginate(page, size, total int) *models.Pagination {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 50
	}
	if size > 200 {
		size = 200
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
