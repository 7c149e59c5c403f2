package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-dashboard/internal/service"
	"chat-dashboard/internal/storage"
)

// statusFor traduce los errores de dominio a codigos HTTP. Lo desconocido es 500.
func statusFor(err error) int {
	var otpErr *service.OTPError
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrNotFound),
		errors.Is(err, service.ErrOrganizationNotFound),
		errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound
	case errors.As(err, &otpErr),
		errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, storage.ErrInvalidObjectKey):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, storage.ErrUpstream):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// publicMessage nunca filtra detalles internos: 401 y 5xx tienen mensajes fijos.
func publicMessage(status int, err error) string {
	var otpErr *service.OTPError
	switch {
	case status == http.StatusUnauthorized:
		return "unauthorized"
	case status >= http.StatusInternalServerError && status != http.StatusBadGateway:
		return "internal error"
	case status == http.StatusBadGateway:
		return "storage provider unavailable"
	case errors.As(err, &otpErr):
		return otpErr.Error()
	case errors.Is(err, service.ErrOrganizationNotFound):
		return "organization not found"
	case errors.Is(err, service.ErrUserNotFound):
		return "user not found"
	case status == http.StatusNotFound:
		return "not found"
	case errors.Is(err, service.ErrEmailTaken):
		return "email already registered"
	case errors.Is(err, service.ErrRateLimited):
		return "too many requests"
	case errors.Is(err, service.ErrInvalidEmail):
		return "invalid email"
	}
	return "invalid request"
}

// abortWithError escribe {"error": ...} y corta la cadena de handlers.
func abortWithError(c *gin.Context, logger *zap.Logger, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(op+" failed", zap.Error(err))
	} else {
		logger.Debug(op+" rejected", zap.Int("status", status), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": publicMessage(status, err)})
}

func abortInvalidRequest(c *gin.Context, logger *zap.Logger, op string, err error) {
	logger.Warn("invalid "+op+" request", zap.Error(err))
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
}
