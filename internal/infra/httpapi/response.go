package httpapi

import (
	"errors"
	"net/http"

	"patient_recommender/internal/app"
	"patient_recommender/internal/domain/notification"
	"patient_recommender/internal/domain/patient"
	"patient_recommender/internal/infra/httpclient"

	"github.com/gin-gonic/gin"
)

// Response defines the base API payload.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo holds error details to send to clients.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	CodeBadRequest          = "BAD_REQUEST"
	CodeNotFound            = "NOT_FOUND"
	CodeUnknownRoundKind    = "UNKNOWN_ROUND_KIND"
	CodeRoundInProgress     = "ROUND_IN_PROGRESS"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeInternal            = "INTERNAL_ERROR"
)

// success writes a JSON success response.
func success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Data:    data,
	})
}

func failure(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	})
}

// renderError maps an application error onto status and code. Internal
// errors never leak their message.
func renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, app.ErrUnknownRoundKind):
		failure(c, http.StatusBadRequest, CodeUnknownRoundKind, err.Error())
	case errors.Is(err, app.ErrMissingPatientReference), errors.Is(err, app.ErrInvalidDateRange):
		failure(c, http.StatusBadRequest, CodeBadRequest, err.Error())
	case errors.Is(err, notification.ErrNotFound), errors.Is(err, patient.ErrNotFound):
		failure(c, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, app.ErrRoundInProgress):
		failure(c, http.StatusConflict, CodeRoundInProgress, err.Error())
	case errors.Is(err, httpclient.ErrUpstreamUnavailable):
		failure(c, http.StatusBadGateway, CodeUpstreamUnavailable, "upstream service unavailable")
	default:
		_ = c.Error(err)
		failure(c, http.StatusInternalServerError, CodeInternal, "internal server error")
	}
}
