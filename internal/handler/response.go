package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"lifesync/internal/service"
	"lifesync/internal/syncerr"
)

// apiResponse is the envelope of every /api reply. Kind carries the sync
// error kind (auth, rate_limit, ...) when a run failed for a typed reason.
type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Kind    string         `json:"kind,omitempty"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

// Accepted acknowledges a run that continues in the background.
func Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, apiResponse{
		Code:    0,
		Message: "accepted",
		Data:    data,
	})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}

// Fail maps a sync or credential error to its HTTP status and kind.
func Fail(c *gin.Context, err error) {
	status := statusOf(err)
	c.JSON(status, apiResponse{
		Code:    status,
		Message: err.Error(),
		Kind:    kindOf(err),
	})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrUnknownService), errors.Is(err, syncerr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, syncerr.ErrConfiguration):
		return http.StatusUnprocessableEntity
	case errors.Is(err, syncerr.ErrAuth), errors.Is(err, syncerr.ErrRateLimit), errors.Is(err, syncerr.ErrTransientServer):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func kindOf(err error) string {
	if k := syncerr.KindName(err); k != "error" {
		return k
	}
	return ""
}
