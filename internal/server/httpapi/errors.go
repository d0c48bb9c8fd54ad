package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/uploadsvc/internal/common"
	"github.com/gin-gonic/gin"
)

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func writeOK(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

// fail maps a service error onto the response envelope. Operation errors
// are matched first so a wrapped provider cause never changes the status.
// Only validation and operation errors expose their message.
func (s *HTTPServer) fail(c *gin.Context, err error) {
	var opErr *common.OperationError

	switch {
	case errors.As(err, &opErr):
		s.logger.Warn(c.Request.Context(), "operation failed", "op", opErr.Op, "error", opErr.Err)
		status := http.StatusInternalServerError
		if opErr.Severity == common.SeverityClient {
			status = http.StatusBadRequest
		}
		writeError(c, status, "OPERATION_FAILED", opErr.Message)
	case errors.Is(err, common.ErrorValidation):
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, common.ErrorUnauthorized):
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
	case errors.Is(err, common.ErrorForbidden):
		writeError(c, http.StatusForbidden, "FORBIDDEN", "forbidden")
	case errors.Is(err, common.ErrorNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", "not found")
	case errors.Is(err, common.ErrorConflict):
		writeError(c, http.StatusConflict, "CONFLICT", "already exists")
	default:
		s.logger.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
}
