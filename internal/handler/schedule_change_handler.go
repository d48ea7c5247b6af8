package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fitclass-api/internal/models"
	"github.com/noah-isme/fitclass-api/internal/service"
	appErrors "github.com/noah-isme/fitclass-api/pkg/errors"
	"github.com/noah-isme/fitclass-api/pkg/response"
)

type scheduleChangeService interface {
	Create(ctx context.Context, req models.CreateScheduleChangeRequest, actor service.Actor) (*models.ScheduleChangeRequest, error)
	Approve(ctx context.Context, id string, req models.ApproveScheduleChangeRequest, actor service.Actor) (*models.ApprovalOutcome, []models.Warning, error)
	Reject(ctx context.Context, id string, req models.RejectScheduleChangeRequest, actor service.Actor) (*models.ScheduleChangeRequest, error)
	AttachMakeup(ctx context.Context, id string, payload models.MakeupPayload) (*models.ScheduleChangeRequest, []models.Warning, error)
	Get(ctx context.Context, id string, actor service.Actor) (*models.ScheduleChangeRequest, error)
	List(ctx context.Context, filter models.ScheduleChangeFilter, actor service.Actor) ([]models.ScheduleChangeRequest, *models.Pagination, error)
	ListEffective(ctx context.Context, filter models.EffectiveChangeFilter, actor service.Actor) ([]models.ScheduleChangeRequest, error)
}

// ScheduleChangeHandler exposes the trainer request / admin review workflow.
type ScheduleChangeHandler struct {
	service scheduleChangeService
}

// NewScheduleChangeHandler constructs the handler.
func NewScheduleChangeHandler(svc scheduleChangeService) *ScheduleChangeHandler {
	return &ScheduleChangeHandler{service: svc}
}

// Create godoc
// @Summary Request a schedule change
// @Tags Schedule Changes
// @Accept json
// @Produce json
// @Param payload body models.CreateScheduleChangeRequest true "Request payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /schedule-changes [post]
func (h *ScheduleChangeHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.CreateScheduleChangeRequest
	if !bindJSON(c, &req, "schedule change") {
		return
	}
	created, err := h.service.Create(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// List godoc
// @Summary List schedule change requests
// @Tags Schedule Changes
// @Produce json
// @Param status query string false "pending, approved or rejected"
// @Param class_id query string false "Class"
// @Param trainer_id query string false "Trainer (admins only)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /schedule-changes [get]
func (h *ScheduleChangeHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	filter := models.ScheduleChangeFilter{
		Status:    models.ScheduleChangeStatus(c.Query("status")),
		ClassID:   c.Query("class_id"),
		TrainerID: c.Query("trainer_id"),
	}
	filter.Page, filter.PageSize = pageParams(c)
	items, pagination, err := h.service.List(c.Request.Context(), filter, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get a schedule change request
// @Tags Schedule Changes
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /schedule-changes/{id} [get]
func (h *ScheduleChangeHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	item, err := h.service.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Approve godoc
// @Summary Approve a pending request
// @Description When a makeup is supplied and cannot be booked the approval still stands; the failure is returned in meta.makeup_error.
// @Tags Schedule Changes
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body models.ApproveScheduleChangeRequest false "Approval payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedule-changes/{id}/approve [post]
func (h *ScheduleChangeHandler) Approve(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.ApproveScheduleChangeRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req, "approval") {
		return
	}
	outcome, warnings, err := h.service.Approve(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	meta := map[string]interface{}{}
	if len(warnings) > 0 {
		meta["warnings"] = warnings
	}
	if outcome.MakeupError != nil {
		meta["makeup_error"] = appErrors.FromError(outcome.MakeupError)
	}
	response.JSON(c, http.StatusOK, outcome, nil, meta)
}

// Reject godoc
// @Summary Reject a pending request
// @Tags Schedule Changes
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body models.RejectScheduleChangeRequest false "Rejection payload"
// @Success 200 {object} response.Envelope
// @Router /schedule-changes/{id}/reject [post]
func (h *ScheduleChangeHandler) Reject(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.RejectScheduleChangeRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req, "rejection") {
		return
	}
	rejected, err := h.service.Reject(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rejected, nil)
}

// AttachMakeup godoc
// @Summary Attach a makeup session to an approved request
// @Tags Schedule Changes
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body models.MakeupPayload true "Makeup slot"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedule-changes/{id}/makeup [post]
func (h *ScheduleChangeHandler) AttachMakeup(c *gin.Context) {
	if _, ok := actorFromContext(c); !ok {
		return
	}
	var payload models.MakeupPayload
	if !bindJSON(c, &payload, "makeup") {
		return
	}
	updated, warnings, err := h.service.AttachMakeup(c.Request.Context(), c.Param("id"), payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.WithWarnings(c, http.StatusOK, updated, warnings)
}

// Effective godoc
// @Summary List approved changes with a makeup
// @Tags Schedule Changes
// @Produce json
// @Param class_id query string false "Class"
// @Param member_id query string false "Member"
// @Param from query string false "First makeup date (YYYY-MM-DD)"
// @Param to query string false "Last makeup date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /schedule-changes/effective [get]
func (h *ScheduleChangeHandler) Effective(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	from, ok := dateQuery(c, "from")
	if !ok {
		return
	}
	to, ok := dateQuery(c, "to")
	if !ok {
		return
	}
	filter := models.EffectiveChangeFilter{
		ClassID:  c.Query("class_id"),
		MemberID: c.Query("member_id"),
		From:     from,
		To:       to,
	}
	items, err := h.service.ListEffective(c.Request.Context(), filter, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}
