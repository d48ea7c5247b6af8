package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fitclass-api/internal/middleware"
	"github.com/noah-isme/fitclass-api/internal/models"
	"github.com/noah-isme/fitclass-api/internal/scheduling"
	"github.com/noah-isme/fitclass-api/internal/service"
	appErrors "github.com/noah-isme/fitclass-api/pkg/errors"
	"github.com/noah-isme/fitclass-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		return nil
	}
	return claims
}

// actorFromContext writes a 401 and returns false when the request carries no claims.
func actorFromContext(c *gin.Context) (service.Actor, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return service.Actor{}, false
	}
	return service.ActorFromClaims(claims), true
}

func bindJSON(c *gin.Context, dest interface{}, what string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid "+what+" payload"))
		return false
	}
	return true
}

func sessionParam(c *gin.Context) (int, bool) {
	n, err := strconv.Atoi(c.Param("session"))
	if err != nil || n < 1 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "session must be a positive number"))
		return 0, false
	}
	return n, true
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	return page, size
}

// dateQuery parses an optional yyyy-mm-dd query parameter.
func dateQuery(c *gin.Context, key string) (*time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	date, err := scheduling.ParseDate(raw)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, key+" must be a date in YYYY-MM-DD format"))
		return nil, false
	}
	return &date, true
}
