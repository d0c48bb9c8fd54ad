// Package httpapi exposes the upload service over HTTP using gin.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/uploadsvc/internal/logging"
	"github.com/dmitrijs2005/uploadsvc/internal/server/metrics"
	"github.com/dmitrijs2005/uploadsvc/internal/server/models"
	"github.com/dmitrijs2005/uploadsvc/internal/server/services"
	"github.com/dmitrijs2005/uploadsvc/internal/server/storage"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

// Uploads is the upload orchestration used by the handlers.
// *services.UploadService satisfies it.
type Uploads interface {
	Initiate(ctx context.Context, req services.InitiateRequest, principal string) (*services.InitiateResult, error)
	Complete(ctx context.Context, key string, parts []models.CompletedPart) (*models.File, error)
	Abort(ctx context.Context, key string) error
	GetFile(ctx context.Context, id string) (*models.File, error)
	GenerateDownloadURL(ctx context.Context, file *models.File, expiry time.Duration) string
	DeleteFile(ctx context.Context, file *models.File) bool
	CopyFile(ctx context.Context, file *models.File, destKey, principal string) (*models.File, error)
	MoveFile(ctx context.Context, file *models.File, destKey string) (*models.File, error)
	GetFileMetadata(ctx context.Context, file *models.File) (*storage.ObjectInfo, error)
	ListFiles(ctx context.Context, principal, directory string) ([]*models.File, error)
	ListFileObjects(ctx context.Context, principal, directory string) ([]storage.ObjectInfo, error)
}

// Viewers is the access and grant management used by the handlers.
type Viewers interface {
	CanRead(ctx context.Context, file *models.File, principal string) (bool, error)
	AddViewer(ctx context.Context, file *models.File, actor, viewerID string) error
	RemoveViewer(ctx context.Context, file *models.File, actor, viewerID string) error
	ListViewers(ctx context.Context, file *models.File, actor string) ([]*models.FileViewer, error)
}

// Attachments is the file-to-entity linking used by the handlers.
type Attachments interface {
	Attach(ctx context.Context, fileID string, entity services.Attachable) error
	Detach(ctx context.Context, fileID string, entity services.Attachable) error
	ListAttachments(ctx context.Context, entity services.Attachable) ([]*models.File, error)
	ListAttachmentsForFile(ctx context.Context, fileID string) ([]*models.Fileable, error)
}

type HTTPServer struct {
	address      string
	routesPrefix string
	uploads      Uploads
	viewers      Viewers
	attachments  Attachments
	metrics      *metrics.Metrics
	logger       logging.Logger
	jwtSecret    []byte
}

func NewHTTPServer(address, routesPrefix string, l logging.Logger, m *metrics.Metrics,
	u Uploads, v Viewers, a Attachments, secretKey string) *HTTPServer {
	routesPrefix = "/" + strings.Trim(routesPrefix, "/")
	return &HTTPServer{
		address:      address,
		routesPrefix: routesPrefix,
		uploads:      u,
		viewers:      v,
		attachments:  a,
		metrics:      m,
		logger:       l.With("module", "http_server"),
		jwtSecret:    []byte(secretKey),
	}
}

// Router builds the gin engine with every route registered.
func (s *HTTPServer) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), s.observe())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := r.Group(s.routesPrefix)
	{
		authed := api.Group("", s.requireAuth())
		authed.POST("/initiate", s.initiate)
		authed.POST("/complete", s.complete)
		authed.POST("/abort", s.abort)
		authed.GET("", s.listFiles)
		authed.GET("/objects", s.listObjects)
		authed.GET("/attached/:type/:entityId", s.listAttached)

		// Public files are readable without a token.
		read := api.Group("/:id", s.optionalAuth(), s.loadFile())
		read.GET("", s.getFile)
		read.GET("/metadata", s.getMetadata)

		owned := api.Group("/:id", s.requireAuth(), s.loadFile())
		owned.DELETE("", s.deleteFile)
		owned.POST("/copy", s.copyFile)
		owned.POST("/move", s.moveFile)
		owned.POST("/viewers", s.addViewer)
		owned.GET("/viewers", s.listViewers)
		owned.DELETE("/viewers/:userId", s.removeViewer)
		owned.POST("/attachments", s.attach)
		owned.GET("/attachments", s.listAttachments)
		owned.DELETE("/attachments/:type/:entityId", s.detach)
	}

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address, "prefix", s.routesPrefix)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
