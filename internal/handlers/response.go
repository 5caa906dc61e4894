package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/fleet-sync/internal/middleware"
	"github.com/smarttransit/fleet-sync/internal/services"
)

// respondError writes a domain error as {error, message, code}. Anything
// that is not a domain outcome is logged and reported as a 500 without detail.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	if !services.IsDomainError(err) {
		logger.WithFields(logrus.Fields{
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		}).WithError(err).Error("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Internal server error",
			"code":    services.ErrorCode(err),
		})
		return
	}

	code := services.ErrorCode(err)
	c.JSON(services.HTTPStatus(err), gin.H{
		"error":   strings.ToLower(code),
		"message": err.Error(),
		"code":    code,
	})
}

// respondBadRequest reports a body that failed to bind
func respondBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_request",
		"message": err.Error(),
		"code":    services.ErrorCode(services.ErrInvalidContent),
	})
}

// callerIdentity reads the identity stored by AuthMiddleware. It reports
// false, after writing a 401, when the middleware was not applied.
func callerIdentity(c *gin.Context) (middleware.UserContext, bool) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "User context not found",
			"code":    "MISSING_USER_CONTEXT",
		})
		return middleware.UserContext{}, false
	}
	return userCtx, true
}
