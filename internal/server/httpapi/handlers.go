package httpapi

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/uploadsvc/internal/server/models"
	"github.com/dmitrijs2005/uploadsvc/internal/server/services"
	"github.com/gin-gonic/gin"
)

type initiateRequest struct {
	Filename    string `json:"filename" binding:"required,max=255"`
	ContentType string `json:"content_type" binding:"required"`
	Size        int64  `json:"size" binding:"min=0"`
	Directory   string `json:"directory"`
	Visibility  string `json:"visibility" binding:"omitempty,oneof=public private"`
}

type completeRequest struct {
	Path  string                 `json:"path" binding:"required"`
	Parts []models.CompletedPart `json:"parts" binding:"required,min=1,dive"`
}

type pathRequest struct {
	Path string `json:"path" binding:"required"`
}

type destinationRequest struct {
	Destination string `json:"destination" binding:"required"`
}

type viewerRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

type attachRequest struct {
	Type string `json:"type" binding:"required"`
	ID   string `json:"id" binding:"required"`
}

type fileResponse struct {
	File        *models.File `json:"file"`
	DownloadURL string       `json:"download_url,omitempty"`
}

func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return false
	}
	return true
}

// initiate handles POST {prefix}/initiate.
func (s *HTTPServer) initiate(c *gin.Context) {
	var req initiateRequest
	if !bind(c, &req) {
		return
	}

	res, err := s.uploads.Initiate(c.Request.Context(), services.InitiateRequest{
		Filename:    req.Filename,
		ContentType: req.ContentType,
		Size:        req.Size,
		Directory:   req.Directory,
		Visibility:  req.Visibility,
	}, principal(c))
	if err != nil {
		s.fail(c, err)
		return
	}

	writeOK(c, http.StatusCreated, res)
}

// complete handles POST {prefix}/complete.
func (s *HTTPServer) complete(c *gin.Context) {
	var req completeRequest
	if !bind(c, &req) {
		return
	}

	file, err := s.uploads.Complete(c.Request.Context(), req.Path, req.Parts)
	if err != nil {
		s.fail(c, err)
		return
	}

	writeOK(c, http.StatusOK, file)
}

// abort handles POST {prefix}/abort.
func (s *HTTPServer) abort(c *gin.Context) {
	var req pathRequest
	if !bind(c, &req) {
		return
	}

	if err := s.uploads.Abort(c.Request.Context(), req.Path); err != nil {
		s.fail(c, err)
		return
	}

	writeOK(c, http.StatusOK, gin.H{"path": req.Path, "status": models.StatusFailed})
}

func (s *HTTPServer) listFiles(c *gin.Context) {
	files, err := s.uploads.ListFiles(c.Request.Context(), principal(c), c.Query("directory"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if files == nil {
		files = []*models.File{}
	}
	writeOK(c, http.StatusOK, files)
}

func (s *HTTPServer) listObjects(c *gin.Context) {
	objects, err := s.uploads.ListFileObjects(c.Request.Context(), principal(c), c.Query("directory"))
	if err != nil {
		s.fail(c, err)
		return
	}
	writeOK(c, http.StatusOK, objects)
}

// canRead aborts with 403 unless the caller may read the current file.
func (s *HTTPServer) canRead(c *gin.Context, file *models.File) bool {
	ok, err := s.viewers.CanRead(c.Request.Context(), file, principal(c))
	if err != nil {
		s.fail(c, err)
		return false
	}
	if !ok {
		writeError(c, http.StatusForbidden, "FORBIDDEN", "forbidden")
		return false
	}
	return true
}

// canManage aborts with 403 unless the caller owns the current file.
func canManage(c *gin.Context, file *models.File) bool {
	if principal(c) != file.UserID {
		writeError(c, http.StatusForbidden, "FORBIDDEN", "forbidden")
		return false
	}
	return true
}

// getFile handles GET {prefix}/:id. Completed files come with a download URL;
// ?expires= overrides its lifetime.
func (s *HTTPServer) getFile(c *gin.Context) {
	file := currentFile(c)
	if !s.canRead(c, file) {
		return
	}

	resp := fileResponse{File: file}
	if file.Status == models.StatusCompleted {
		var expiry time.Duration
		if v := c.Query("expires"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 || d > 7*24*time.Hour {
				writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "expires must be a duration up to 168h")
				return
			}
			expiry = d
		}
		resp.DownloadURL = s.uploads.GenerateDownloadURL(c.Request.Context(), file, expiry)
	}

	writeOK(c, http.StatusOK, resp)
}

func (s *HTTPServer) getMetadata(c *gin.Context) {
	file := currentFile(c)
	if !s.canRead(c, file) {
		return
	}

	info, err := s.uploads.GetFileMetadata(c.Request.Context(), file)
	if err != nil {
		s.fail(c, err)
		return
	}
	writeOK(c, http.StatusOK, info)
}

func (s *HTTPServer) deleteFile(c *gin.Context) {
	file := currentFile(c)
	if !canManage(c, file) {
		return
	}

	if !s.uploads.DeleteFile(c.Request.Context(), file) {
		writeError(c, http.StatusInternalServerError, "DELETE_FAILED", "file could not be deleted")
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *HTTPServer) copyFile(c *gin.Context) {
	file := currentFile(c)
	if !canManage(c, file) {
		return
	}
	var req destinationRequest
	if !bind(c, &req) {
		return
	}

	cp, err := s.uploads.CopyFile(c.Request.Context(), file, req.Destination, principal(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	writeOK(c, http.StatusCreated, cp)
}

func (s *HTTPServer) moveFile(c *gin.Context) {
	file := currentFile(c)
	if !canManage(c, file) {
		return
	}
	var req destinationRequest
	if !bind(c, &req) {
		return
	}

	moved, err := s.uploads.MoveFile(c.Request.Context(), file, req.Destination)
	if err != nil {
		s.fail(c, err)
		return
	}
	writeOK(c, http.StatusOK, moved)
}

func (s *HTTPServer) addViewer(c *gin.Context) {
	var req viewerRequest
	if !bind(c, &req) {
		return
	}
	file := currentFile(c)

	if err := s.viewers.AddViewer(c.Request.Context(), file, principal(c), req.UserID); err != nil {
		s.fail(c, err)
		return
	}
	writeOK(c, http.StatusOK, gin.H{"file_id": file.ID, "user_id": req.UserID})
}

func (s *HTTPServer) removeViewer(c *gin.Context) {
	file := currentFile(c)
	if err := s.viewers.RemoveViewer(c.Request.Context(), file, principal(c), c.Param("userId")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *HTTPServer) listViewers(c *gin.Context) {
	list, err := s.viewers.ListViewers(c.Request.Context(), currentFile(c), principal(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	if list == nil {
		list = []*models.FileViewer{}
	}
	writeOK(c, http.StatusOK, list)
}

func (s *HTTPServer) attach(c *gin.Context) {
	file := currentFile(c)
	if !canManage(c, file) {
		return
	}
	var req attachRequest
	if !bind(c, &req) {
		return
	}

	if err := s.attachments.Attach(c.Request.Context(), file.ID, services.Entity{Type: req.Type, ID: req.ID}); err != nil {
		s.fail(c, err)
		return
	}
	writeOK(c, http.StatusOK, gin.H{"file_id": file.ID, "type": req.Type, "id": req.ID})
}

func (s *HTTPServer) detach(c *gin.Context) {
	file := currentFile(c)
	if !canManage(c, file) {
		return
	}

	entity := services.Entity{Type: c.Param("type"), ID: c.Param("entityId")}
	if err := s.attachments.Detach(c.Request.Context(), file.ID, entity); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *HTTPServer) listAttachments(c *gin.Context) {
	file := currentFile(c)
	if !canManage(c, file) {
		return
	}

	links, err := s.attachments.ListAttachmentsForFile(c.Request.Context(), file.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	if links == nil {
		links = []*models.Fileable{}
	}
	writeOK(c, http.StatusOK, links)
}

// listAttached handles GET {prefix}/attached/:type/:entityId. Files the
// caller may not read are left out.
func (s *HTTPServer) listAttached(c *gin.Context) {
	entity := services.Entity{Type: c.Param("type"), ID: c.Param("entityId")}
	files, err := s.attachments.ListAttachments(c.Request.Context(), entity)
	if err != nil {
		s.fail(c, err)
		return
	}

	visible := make([]*models.File, 0, len(files))
	for _, f := range files {
		ok, err := s.viewers.CanRead(c.Request.Context(), f, principal(c))
		if err != nil {
			s.fail(c, err)
			return
		}
		if ok {
			visible = append(visible, f)
		}
	}
	writeOK(c, http.StatusOK, visible)
}
