package router

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fitclass-api/internal/handler"
	"github.com/noah-isme/fitclass-api/internal/middleware"
	"github.com/noah-isme/fitclass-api/internal/models"
)

// Handlers groups the HTTP handlers mounted by Register.
type Handlers struct {
	Classes         *handler.ClassHandler
	ScheduleChanges *handler.ScheduleChangeHandler
	Attendance      *handler.AttendanceHandler
	Enrollments     *handler.EnrollmentHandler
	Maintenance     *handler.MaintenanceHandler
	Rooms           *handler.RoomHandler
	Metrics         *handler.MetricsHandler
}

// Register mounts the public probes on r and the authenticated API under prefix.
func Register(r *gin.Engine, prefix string, auth middleware.TokenValidator, h Handlers) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/metrics", h.Metrics.Prometheus)

	admin := middleware.RequireRoles(models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleTrainer)
	trainer := middleware.RequireRoles(models.RoleTrainer)
	members := middleware.RequireRoles(models.RoleAdmin, models.RoleMember)

	api := r.Group(prefix, middleware.JWT(auth))

	classes := api.Group("/classes")
	classes.GET("", h.Classes.List)
	classes.POST("", admin, h.Classes.Create)
	classes.GET("/:id", h.Classes.Get)
	classes.GET("/:id/schedule", h.Classes.Schedule)
	classes.PATCH("/:id/schedule", staff, h.Classes.UpdateSchedule)
	classes.POST("/:id/cancel", staff, h.Classes.Cancel)

	classes.POST("/:id/sessions", staff, h.Attendance.OpenSession)
	classes.PUT("/:id/sessions/:session/attendance", h.Attendance.MarkPresence)
	classes.GET("/:id/sessions/:session/sheet", staff, h.Attendance.Sheet)
	classes.GET("/:id/attendance", h.Attendance.List)

	classes.GET("/:id/roster", staff, h.Enrollments.Roster)
	classes.POST("/:id/enrollments", members, h.Enrollments.Join)
	classes.DELETE("/:id/enrollments/:memberId", members, h.Enrollments.Leave)

	enrollments := api.Group("/enrollments")
	enrollments.GET("", h.Enrollments.List)
	enrollments.POST("/:id/payment", admin, h.Enrollments.ConfirmPayment)

	changes := api.Group("/schedule-changes")
	changes.GET("/effective", h.ScheduleChanges.Effective)
	changes.POST("", trainer, h.ScheduleChanges.Create)
	changes.GET("", staff, h.ScheduleChanges.List)
	changes.GET("/:id", staff, h.ScheduleChanges.Get)
	changes.POST("/:id/approve", admin, h.ScheduleChanges.Approve)
	changes.POST("/:id/reject", admin, h.ScheduleChanges.Reject)
	changes.POST("/:id/makeup", admin, h.ScheduleChanges.AttachMakeup)

	api.GET("/rooms/:id/availability", h.Rooms.Availability)

	maintenance := api.Group("/maintenance")
	maintenance.GET("", staff, h.Maintenance.List)
	maintenance.GET("/:id", staff, h.Maintenance.Get)
	maintenance.POST("", admin, h.Maintenance.Create)
	maintenance.POST("/:id/start", admin, h.Maintenance.Start)
	maintenance.POST("/:id/complete", admin, h.Maintenance.Complete)
	maintenance.POST("/:id/cancel", admin, h.Maintenance.Cancel)
	maintenance.POST("/:id/postpone", admin, h.Maintenance.Postpone)
}
