package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/uploadsvc/internal/common"
	"github.com/dmitrijs2005/uploadsvc/internal/server/auth"
	"github.com/dmitrijs2005/uploadsvc/internal/server/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	principalKey = "principal"
	fileKey      = "file"
)

func (s *HTTPServer) authenticate(c *gin.Context, required bool) bool {
	header := c.GetHeader("Authorization")
	if header == "" {
		if required {
			writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing token")
			return false
		}
		return true
	}

	token, ok := auth.BearerToken(header)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "malformed authorization header")
		return false
	}

	userID, err := auth.GetUserIDFromToken(token, s.jwtSecret)
	if err != nil {
		code := "INVALID_TOKEN"
		if errors.Is(err, common.ErrTokenExpired) {
			code = "TOKEN_EXPIRED"
		}
		writeError(c, http.StatusUnauthorized, code, err.Error())
		return false
	}

	c.Set(principalKey, userID)
	return true
}

// requireAuth rejects requests without a valid bearer token.
func (s *HTTPServer) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.authenticate(c, true) {
			c.Abort()
			return
		}
		c.Next()
	}
}

// optionalAuth lets anonymous requests through but still rejects bad tokens.
func (s *HTTPServer) optionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.authenticate(c, false) {
			c.Abort()
			return
		}
		c.Next()
	}
}

func principal(c *gin.Context) string {
	return c.GetString(principalKey)
}

// loadFile resolves :id into a live file.
func (s *HTTPServer) loadFile() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if _, err := uuid.Parse(id); err != nil {
			writeError(c, http.StatusBadRequest, "INVALID_FILE_ID", "invalid file id format")
			c.Abort()
			return
		}

		file, err := s.uploads.GetFile(c.Request.Context(), id)
		if err != nil {
			s.fail(c, err)
			c.Abort()
			return
		}

		c.Set(fileKey, file)
		c.Next()
	}
}

func currentFile(c *gin.Context) *models.File {
	return c.MustGet(fileKey).(*models.File)
}

func (s *HTTPServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// observe records request counts and latency per route template.
func (s *HTTPServer) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.ObserveHTTP(route, c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}
