package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fitclass-api/internal/models"
	"github.com/noah-isme/fitclass-api/internal/scheduling"
	appErrors "github.com/noah-isme/fitclass-api/pkg/errors"
	"github.com/noah-isme/fitclass-api/pkg/response"
)

type availabilityChecker interface {
	CheckAvailability(ctx context.Context, roomID string, start, end time.Time) (*models.Availability, error)
	Location() *time.Location
}

// RoomHandler answers room availability queries.
type RoomHandler struct {
	checker availabilityChecker
}

// NewRoomHandler constructs the handler.
func NewRoomHandler(checker availabilityChecker) *RoomHandler {
	return &RoomHandler{checker: checker}
}

// Availability godoc
// @Summary Check whether a room is free for a time range
// @Description Lists every class occurrence, makeup and maintenance window overlapping the range.
// @Tags Rooms
// @Produce json
// @Param id path string true "Room ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param start query string true "Start time (HH:MM)"
// @Param end query string true "End time (HH:MM)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /rooms/{id}/availability [get]
func (h *RoomHandler) Availability(c *gin.Context) {
	date, err := scheduling.ParseDate(c.Query("date"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be a date in YYYY-MM-DD format"))
		return
	}
	start, err := scheduling.ParseTimeOfDay(c.Query("start"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "start must be a time in HH:MM format"))
		return
	}
	end, err := scheduling.ParseTimeOfDay(c.Query("end"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "end must be a time in HH:MM format"))
		return
	}
	loc := h.checker.Location()
	availability, err := h.checker.CheckAvailability(c.Request.Context(), c.Param("id"), start.On(date, loc), end.On(date, loc))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, availability, nil)
}
