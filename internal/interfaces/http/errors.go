package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/agency-ops/internal/domain/apperr"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error           string                 `json:"error"`
	Code            apperr.Kind            `json:"code"`
	Summary         string                 `json:"summary,omitempty"`
	Recommendations []string               `json:"recommendations,omitempty"`
	Details         map[string]interface{} `json:"details,omitempty"`
}

var statusByKind = map[apperr.Kind]int{
	apperr.KindUnauthorized:    http.StatusUnauthorized,
	apperr.KindForbidden:       http.StatusForbidden,
	apperr.KindNotFound:        http.StatusNotFound,
	apperr.KindValidation:      http.StatusBadRequest,
	apperr.KindBillingNotReady: http.StatusUnprocessableEntity,
	apperr.KindConflict:        http.StatusConflict,
	apperr.KindInternal:        http.StatusInternalServerError,
}

// respondError writes err using its kind. Causes of internal errors are
// logged, never returned.
func (s *Server) respondError(c *gin.Context, err error) {
	appErr := apperr.As(err)

	status, known := statusByKind[appErr.Kind]
	if !known {
		status = http.StatusInternalServerError
	}

	resp := ErrorResponse{Error: appErr.Message, Code: appErr.Kind}
	switch appErr.Kind {
	case apperr.KindInternal:
		s.logger.Error("Request failed", "path", c.Request.URL.Path, "error", err)
		resp.Error = "internal error"
	case apperr.KindBillingNotReady:
		resp.Summary, _ = appErr.Details["summary"].(string)
		resp.Recommendations, _ = appErr.Details["recommendations"].([]string)
	case apperr.KindNotFound:
		resp.Details = appErr.Details
	}

	c.JSON(status, resp)
}

// badRequest reports an unparsable request body or query
func (s *Server) badRequest(c *gin.Context, err error) {
	s.respondError(c, apperr.Validation("invalid request: %v", err))
}
