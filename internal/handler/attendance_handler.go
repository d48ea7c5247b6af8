package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fitclass-api/internal/models"
	"github.com/noah-isme/fitclass-api/internal/service"
	appErrors "github.com/noah-isme/fitclass-api/pkg/errors"
	"github.com/noah-isme/fitclass-api/pkg/response"
)

type attendanceService interface {
	OpenSession(ctx context.Context, classID string, req models.OpenSessionRequest, actor service.Actor) (*models.OpenSessionResult, error)
	MarkPresence(ctx context.Context, classID string, n int, req models.MarkPresenceRequest, actor service.Actor) (*models.AttendanceRecord, error)
	List(ctx context.Context, filter models.AttendanceFilter, actor service.Actor) ([]models.AttendanceRecord, error)
}

type sheetExporter interface {
	SessionSheet(ctx context.Context, classID string, n int, format service.SheetFormat, actor service.Actor) (*service.Sheet, error)
}

// AttendanceHandler exposes session opening, presence marking and attendance sheets.
type AttendanceHandler struct {
	service  attendanceService
	exporter sheetExporter
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(svc attendanceService, exporter sheetExporter) *AttendanceHandler {
	return &AttendanceHandler{service: svc, exporter: exporter}
}

// OpenSession godoc
// @Summary Open a session and create unmarked records for the roster
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body models.OpenSessionRequest true "Session number"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /classes/{id}/sessions [post]
func (h *AttendanceHandler) OpenSession(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.OpenSessionRequest
	if !bindJSON(c, &req, "session") {
		return
	}
	result, err := h.service.OpenSession(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// MarkPresence godoc
// @Summary Mark a member present or absent for a session
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param session path int true "Session number"
// @Param payload body models.MarkPresenceRequest true "Presence payload"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/sessions/{session}/attendance [put]
func (h *AttendanceHandler) MarkPresence(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	n, ok := sessionParam(c)
	if !ok {
		return
	}
	var req models.MarkPresenceRequest
	if !bindJSON(c, &req, "attendance") {
		return
	}
	if req.MemberID == "" && actor.Role == models.RoleMember {
		req.MemberID = actor.UserID
	}
	record, err := h.service.MarkPresence(c.Request.Context(), c.Param("id"), n, req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// List godoc
// @Summary List attendance records of a class
// @Tags Attendance
// @Produce json
// @Param id path string true "Class ID"
// @Param session query int false "Session number"
// @Param member_id query string false "Member"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	filter := models.AttendanceFilter{ClassID: c.Param("id"), MemberID: c.Query("member_id")}
	if raw := c.Query("session"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "session must be a positive number"))
			return
		}
		filter.SessionNumber = n
	}
	records, err := h.service.List(c.Request.Context(), filter, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Sheet godoc
// @Summary Download the attendance sheet of a session
// @Tags Attendance
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Class ID"
// @Param session path int true "Session number"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Router /classes/{id}/sessions/{session}/sheet [get]
func (h *AttendanceHandler) Sheet(c *gin.Context) {
	if h.exporter == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "export service not configured"))
		return
	}
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	n, ok := sessionParam(c)
	if !ok {
		return
	}
	sheet, err := h.exporter.SessionSheet(c.Request.Context(), c.Param("id"), n, service.SheetFormat(c.Query("format")), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, sheet.Filename, sheet.ContentType, sheet.Content)
}
