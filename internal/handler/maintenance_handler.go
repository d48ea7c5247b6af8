package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fitclass-api/internal/models"
	"github.com/noah-isme/fitclass-api/internal/service"
	"github.com/noah-isme/fitclass-api/pkg/response"
)

type maintenanceService interface {
	Create(ctx context.Context, req models.CreateMaintenanceRequest, actor service.Actor) (*models.MaintenanceResult, error)
	Start(ctx context.Context, id string) (*models.MaintenanceWindow, error)
	Complete(ctx context.Context, id string, req models.CompleteMaintenanceRequest) (*models.MaintenanceWindow, error)
	Cancel(ctx context.Context, id string, req models.MaintenanceNoteRequest) (*models.MaintenanceWindow, error)
	Postpone(ctx context.Context, id string, req models.MaintenanceNoteRequest) (*models.MaintenanceWindow, error)
	Get(ctx context.Context, id string) (*models.MaintenanceWindow, error)
	List(ctx context.Context, filter models.MaintenanceFilter) ([]models.MaintenanceWindow, *models.Pagination, error)
}

// MaintenanceHandler exposes maintenance windows and their lifecycle.
type MaintenanceHandler struct {
	service maintenanceService
}

// NewMaintenanceHandler constructs the handler.
func NewMaintenanceHandler(svc maintenanceService) *MaintenanceHandler {
	return &MaintenanceHandler{service: svc}
}

// Create godoc
// @Summary Schedule a maintenance window
// @Description Under the warn policy conflicting bookings are accepted and listed in meta.warnings.
// @Tags Maintenance
// @Accept json
// @Produce json
// @Param payload body models.CreateMaintenanceRequest true "Window payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /maintenance [post]
func (h *MaintenanceHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.CreateMaintenanceRequest
	if !bindJSON(c, &req, "maintenance") {
		return
	}
	result, err := h.service.Create(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.WithWarnings(c, http.StatusCreated, result.Window, result.Warnings)
}

// List godoc
// @Summary List maintenance windows
// @Tags Maintenance
// @Produce json
// @Param room_id query string false "Room"
// @Param status query string false "Status"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /maintenance [get]
func (h *MaintenanceHandler) List(c *gin.Context) {
	from, ok := dateQuery(c, "from")
	if !ok {
		return
	}
	to, ok := dateQuery(c, "to")
	if !ok {
		return
	}
	filter := models.MaintenanceFilter{
		RoomID: c.Query("room_id"),
		Status: models.MaintenanceStatus(c.Query("status")),
		From:   from,
		To:     to,
	}
	filter.Page, filter.PageSize = pageParams(c)
	items, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get a maintenance window
// @Tags Maintenance
// @Produce json
// @Param id path string true "Window ID"
// @Success 200 {object} response.Envelope
// @Router /maintenance/{id} [get]
func (h *MaintenanceHandler) Get(c *gin.Context) {
	window, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, window, nil)
}

// Start godoc
// @Summary Start a scheduled window
// @Tags Maintenance
// @Produce json
// @Param id path string true "Window ID"
// @Success 200 {object} response.Envelope
// @Router /maintenance/{id}/start [post]
func (h *MaintenanceHandler) Start(c *gin.Context) {
	window, err := h.service.Start(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, window, nil)
}

// Complete godoc
// @Summary Complete an in-progress window
// @Tags Maintenance
// @Accept json
// @Produce json
// @Param id path string true "Window ID"
// @Param payload body models.CompleteMaintenanceRequest true "Completion payload"
// @Success 200 {object} response.Envelope
// @Router /maintenance/{id}/complete [post]
func (h *MaintenanceHandler) Complete(c *gin.Context) {
	var req models.CompleteMaintenanceRequest
	if !bindJSON(c, &req, "completion") {
		return
	}
	window, err := h.service.Complete(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, window, nil)
}

// Cancel godoc
// @Summary Cancel a scheduled window
// @Tags Maintenance
// @Accept json
// @Produce json
// @Param id path string true "Window ID"
// @Param payload body models.MaintenanceNoteRequest false "Reason"
// @Success 200 {object} response.Envelope
// @Router /maintenance/{id}/cancel [post]
func (h *MaintenanceHandler) Cancel(c *gin.Context) {
	h.note(c, h.service.Cancel)
}

// Postpone godoc
// @Summary Postpone a scheduled window
// @Tags Maintenance
// @Accept json
// @Produce json
// @Param id path string true "Window ID"
// @Param payload body models.MaintenanceNoteRequest false "Reason"
// @Success 200 {object} response.Envelope
// @Router /maintenance/{id}/postpone [post]
func (h *MaintenanceHandler) Postpone(c *gin.Context) {
	h.note(c, h.service.Postpone)
}

func (h *MaintenanceHandler) note(c *gin.Context, apply func(context.Context, string, models.MaintenanceNoteRequest) (*models.MaintenanceWindow, error)) {
	var req models.MaintenanceNoteRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req, "maintenance note") {
		return
	}
	window, err := apply(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, window, nil)
}
