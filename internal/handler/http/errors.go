package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"gamebuddies-server/internal/service"
)

func HandleServiceError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrAuth) {
		ErrorResponse(c, http.StatusUnauthorized, err.Error())
	} else if errors.Is(err, service.ErrRegistrationFailed) {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	} else if errors.Is(err, service.ErrNotFound) {
		ErrorResponse(c, http.StatusNotFound, err.Error())
	} else if errors.Is(err, service.ErrValidation) || errors.Is(err, service.ErrWrongGameType) {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	} else if errors.Is(err, service.ErrRoomFull) || errors.Is(err, service.ErrRoomNotJoinable) ||
		errors.Is(err, service.ErrConflict) || errors.Is(err, service.ErrIllegalTransition) {
		ErrorResponse(c, http.StatusConflict, err.Error())
	} else if errors.Is(err, service.ErrNotHost) {
		ErrorResponse(c, http.StatusForbidden, err.Error())
	} else if errors.Is(err, service.ErrRateLimit) {
		ErrorResponse(c, http.StatusTooManyRequests, err.Error())
	} else if errors.Is(err, service.ErrTransientStorage) {
		ErrorResponse(c, http.StatusServiceUnavailable, err.Error())
	} else {
		// Log the internal error for debugging
		logrus.WithError(err).Error("Unhandled internal server error")
		ErrorResponse(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}
