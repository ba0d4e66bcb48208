package handler

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/care-auth/internal/domain"
	"github.com/prperemyshlev/care-auth/internal/dto"
	"go.uber.org/zap"
)

var statusByKind = map[domain.ErrorKind]int{
	domain.KindInvalidCredentials:     http.StatusUnauthorized,
	domain.KindTokenInvalid:           http.StatusUnauthorized,
	domain.KindTokenExpired:           http.StatusUnauthorized,
	domain.KindAccountLocked:          http.StatusLocked,
	domain.KindAccountInactive:        http.StatusForbidden,
	domain.KindEmailAlreadyRegistered: http.StatusConflict,
	domain.KindOtpInvalid:             http.StatusBadRequest,
	domain.KindOtpExpired:             http.StatusBadRequest,
	domain.KindInvalidInput:           http.StatusBadRequest,
	domain.KindOtpAttemptsExceeded:    http.StatusTooManyRequests,
	domain.KindServiceUnavailable:     http.StatusServiceUnavailable,
}

// writeError turns a service error into the JSON error body.
// Anything that is not a domain error is logged and answered with 500.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		logger.Error("request failed",
			zap.String("route", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "INTERNAL_ERROR",
			Message: "internal server error",
		})
		return
	}

	status, ok := statusByKind[de.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	body := dto.ErrorResponse{
		Error:   string(de.Kind),
		Message: de.Message,
	}

	switch {
	case de.Kind == domain.KindAccountLocked:
		secs := int(math.Ceil(de.RetryAfter.Seconds()))
		c.Header("Retry-After", strconv.Itoa(secs))
		body.Details = gin.H{"retry_after_seconds": secs}
	case de.AttemptsRemaining != nil:
		body.Details = gin.H{"attempts_remaining": *de.AttemptsRemaining}
	case de.Kind == domain.KindServiceUnavailable:
		logger.Error("dependency unavailable",
			zap.String("route", c.FullPath()),
			zap.Error(err))
	}

	c.JSON(status, body)
}

func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{
		Error:   string(domain.KindInvalidInput),
		Message: err.Error(),
	})
}
