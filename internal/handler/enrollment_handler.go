package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fitclass-api/internal/models"
	"github.com/noah-isme/fitclass-api/internal/service"
	"github.com/noah-isme/fitclass-api/pkg/response"
)

type enrollmentService interface {
	Join(ctx context.Context, classID string, req models.JoinClassRequest, actor service.Actor) (*models.Enrollment, error)
	Leave(ctx context.Context, classID, memberID string, actor service.Actor) (*models.Enrollment, error)
	ConfirmPayment(ctx context.Context, enrollmentID string) (*models.Enrollment, error)
	Roster(ctx context.Context, classID string, actor service.Actor) ([]models.RosterMember, error)
	List(ctx context.Context, filter models.EnrollmentFilter, actor service.Actor) ([]models.Enrollment, *models.Pagination, error)
}

// EnrollmentHandler exposes the class roster.
type EnrollmentHandler struct {
	service enrollmentService
}

// NewEnrollmentHandler constructs the handler.
func NewEnrollmentHandler(svc enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{service: svc}
}

// Join godoc
// @Summary Enroll in a class
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body models.JoinClassRequest false "Member to enroll (admins only)"
// @Success 201 {object} response.Envelope
// @Router /classes/{id}/enrollments [post]
func (h *EnrollmentHandler) Join(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.JoinClassRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req, "enrollment") {
		return
	}
	enrollment, err := h.service.Join(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// Leave godoc
// @Summary Leave a class
// @Tags Enrollments
// @Produce json
// @Param id path string true "Class ID"
// @Param memberId path string true "Member ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/enrollments/{memberId} [delete]
func (h *EnrollmentHandler) Leave(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	enrollment, err := h.service.Leave(c.Request.Context(), c.Param("id"), c.Param("memberId"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// ConfirmPayment godoc
// @Summary Confirm payment of an enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/payment [post]
func (h *EnrollmentHandler) ConfirmPayment(c *gin.Context) {
	enrollment, err := h.service.ConfirmPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Roster godoc
// @Summary List the active paid enrollees of a class
// @Tags Enrollments
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/roster [get]
func (h *EnrollmentHandler) Roster(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	roster, err := h.service.Roster(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roster, nil)
}

// List godoc
// @Summary List enrollments
// @Tags Enrollments
// @Produce json
// @Param class_id query string false "Class"
// @Param member_id query string false "Member"
// @Param status query string false "active or cancelled"
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	filter := models.EnrollmentFilter{
		ClassID:  c.Query("class_id"),
		MemberID: c.Query("member_id"),
		Status:   models.EnrollmentStatus(c.Query("status")),
	}
	filter.Page, filter.PageSize = pageParams(c)
	items, pagination, err := h.service.List(c.Request.Context(), filter, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}
