package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fitclass-api/internal/models"
	"github.com/noah-isme/fitclass-api/internal/service"
	appErrors "github.com/noah-isme/fitclass-api/pkg/errors"
	"github.com/noah-isme/fitclass-api/pkg/response"
)

type classService interface {
	List(ctx context.Context, filter models.ClassFilter, actor service.Actor) ([]models.ClassDefinition, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.ClassDefinition, error)
	Create(ctx context.Context, req models.CreateClassRequest, actor service.Actor) (*models.ClassScheduleResult, error)
	UpdateSchedule(ctx context.Context, id string, req models.UpdateClassScheduleRequest, actor service.Actor) (*models.ClassScheduleResult, error)
	Cancel(ctx context.Context, id string, req models.CancelClassRequest, actor service.Actor) (*models.ClassDefinition, error)
	Schedule(ctx context.Context, id string) (*models.ClassSchedule, error)
}

// ClassHandler exposes class definitions and their expanded schedules.
type ClassHandler struct {
	service classService
}

// NewClassHandler constructs a class handler.
func NewClassHandler(svc classService) *ClassHandler {
	return &ClassHandler{service: svc}
}

// List godoc
// @Summary List classes
// @Tags Classes
// @Produce json
// @Param trainer_id query string false "Filter by trainer"
// @Param room_id query string false "Filter by room"
// @Param search query string false "Search keyword"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /classes [get]
func (h *ClassHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	filter := models.ClassFilter{
		TrainerID: c.Query("trainer_id"),
		RoomID:    c.Query("room_id"),
		Search:    strings.TrimSpace(c.Query("search")),
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
	}
	filter.Page, filter.PageSize = pageParams(c)

	classes, pagination, err := h.service.List(c.Request.Context(), filter, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, pagination)
}

// Get godoc
// @Summary Get class detail
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id} [get]
func (h *ClassHandler) Get(c *gin.Context) {
	class, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

// Create godoc
// @Summary Define a recurring class
// @Tags Classes
// @Accept json
// @Produce json
// @Param payload body models.CreateClassRequest true "Class payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /classes [post]
func (h *ClassHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.CreateClassRequest
	if !bindJSON(c, &req, "class") {
		return
	}
	result, err := h.service.Create(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.WithWarnings(c, http.StatusCreated, result.Class, result.Warnings)
}

// UpdateSchedule godoc
// @Summary Change the recurrence, date range or session count of a class
// @Description Attendance records are reconciled afterwards; reconciliation problems are reported in meta.warnings.
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body models.UpdateClassScheduleRequest true "Schedule payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /classes/{id}/schedule [patch]
func (h *ClassHandler) UpdateSchedule(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.UpdateClassScheduleRequest
	if !bindJSON(c, &req, "schedule") {
		return
	}
	result, err := h.service.UpdateSchedule(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.WithWarnings(c, http.StatusOK, result.Class, result.Warnings)
}

// Cancel godoc
// @Summary Cancel a class
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body models.CancelClassRequest false "Cancellation reason"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/cancel [post]
func (h *ClassHandler) Cancel(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.CancelClassRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req, "cancellation") {
		return
	}
	class, err := h.service.Cancel(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

// Schedule godoc
// @Summary Expand the effective schedule of a class
// @Description Regular occurrences in order, originals replaced by a makeup flagged cancelled, makeups appended.
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/schedule [get]
func (h *ClassHandler) Schedule(c *gin.Context) {
	if strings.TrimSpace(c.Param("id")) == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "class id is required"))
		return
	}
	schedule, err := h.service.Schedule(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}
