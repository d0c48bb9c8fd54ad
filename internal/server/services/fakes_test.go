package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/uploadsvc/internal/common"
	"github.com/dmitrijs2005/uploadsvc/internal/dbx"
	"github.com/dmitrijs2005/uploadsvc/internal/logging"
	"github.com/dmitrijs2005/uploadsvc/internal/server/config"
	"github.com/dmitrijs2005/uploadsvc/internal/server/models"
	"github.com/dmitrijs2005/uploadsvc/internal/server/repositories/attachments"
	"github.com/dmitrijs2005/uploadsvc/internal/server/repositories/files"
	"github.com/dmitrijs2005/uploadsvc/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/uploadsvc/internal/server/repositories/users"
	"github.com/dmitrijs2005/uploadsvc/internal/server/repositories/viewers"
	"github.com/dmitrijs2005/uploadsvc/internal/server/storage"
)

// -------- repositories --------

type fakeFilesRepo struct {
	files.Repository

	createErr error
	created   []*models.File

	byID    *models.File
	byPath  *models.File
	getErr  error
	listRes []*models.File
	listErr error

	completedErr  error
	completedMeta map[string]any

	failedErr  error
	failedIDs  []string
	failedMeta []map[string]any
	failedCtx  context.Context

	softDeleteErr error
	softDeleted   []string

	updatePathErr error
	updatedPaths  map[string]string

	listUser, listPrefix string
}

func (f *fakeFilesRepo) Create(ctx context.Context, file *models.File) error {
	if f.createErr != nil {
		return f.createErr
	}
	file.ID = "11111111-1111-1111-1111-111111111111"
	f.created = append(f.created, file)
	return nil
}

func (f *fakeFilesRepo) GetByID(ctx context.Context, id string) (*models.File, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.byID == nil || f.byID.ID != id {
		return nil, common.ErrorNotFound
	}
	return f.byID, nil
}

func (f *fakeFilesRepo) GetInitiatedByPath(ctx context.Context, path string) (*models.File, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.byPath == nil || f.byPath.Path != path || f.byPath.Status != models.StatusInitiated {
		return nil, common.ErrorNotFound
	}
	return f.byPath, nil
}

func (f *fakeFilesRepo) MarkCompleted(ctx context.Context, id string, metadata map[string]any) (*models.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.completedErr != nil {
		return nil, f.completedErr
	}
	f.completedMeta = metadata
	out := *f.byPath
	out.Status = models.StatusCompleted
	out.Metadata = map[string]any{}
	for k, v := range f.byPath.Metadata {
		out.Metadata[k] = v
	}
	for k, v := range metadata {
		out.Metadata[k] = v
	}
	return &out, nil
}

func (f *fakeFilesRepo) MarkFailed(ctx context.Context, id string, metadata map[string]any) error {
	f.failedCtx = ctx
	if f.failedErr != nil {
		return f.failedErr
	}
	f.failedIDs = append(f.failedIDs, id)
	f.failedMeta = append(f.failedMeta, metadata)
	return nil
}

func (f *fakeFilesRepo) SoftDelete(ctx context.Context, id string) error {
	if f.softDeleteErr != nil {
		return f.softDeleteErr
	}
	f.softDeleted = append(f.softDeleted, id)
	return nil
}

func (f *fakeFilesRepo) UpdatePath(ctx context.Context, id, path string) error {
	if f.updatePathErr != nil {
		return f.updatePathErr
	}
	if f.updatedPaths == nil {
		f.updatedPaths = map[string]string{}
	}
	f.updatedPaths[id] = path
	return nil
}

func (f *fakeFilesRepo) ListByOwner(ctx context.Context, userID, pathPrefix string) ([]*models.File, error) {
	f.listUser, f.listPrefix = userID, pathPrefix
	return f.listRes, f.listErr
}

type fakeViewersRepo struct {
	viewers.Repository
	grants map[string]bool
	err    error
}

func grantKey(fileID, userID string) string { return fileID + "|" + userID }

func (f *fakeViewersRepo) Add(ctx context.Context, fileID, userID string) error {
	if f.err != nil {
		return f.err
	}
	if f.grants == nil {
		f.grants = map[string]bool{}
	}
	f.grants[grantKey(fileID, userID)] = true
	return nil
}

func (f *fakeViewersRepo) Remove(ctx context.Context, fileID, userID string) error {
	if f.err != nil {
		return f.err
	}
	delete(f.grants, grantKey(fileID, userID))
	return nil
}

func (f *fakeViewersRepo) Exists(ctx context.Context, fileID, userID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.grants[grantKey(fileID, userID)], nil
}

func (f *fakeViewersRepo) List(ctx context.Context, fileID string) ([]*models.FileViewer, error) {
	if f.err != nil {
		return nil, f.err
	}
	var res []*models.FileViewer
	for k := range f.grants {
		if userID, ok := strings.CutPrefix(k, fileID+"|"); ok {
			res = append(res, &models.FileViewer{FileID: fileID, UserID: userID})
		}
	}
	return res, nil
}

type fakeUsersRepo struct {
	users.Repository
	known map[string]bool
	err   error
}

func (f *fakeUsersRepo) Exists(ctx context.Context, id string) (bool, error) {
	return f.known[id], f.err
}

type fakeAttachmentsRepo struct {
	attachments.Repository
	links []*models.Fileable
	files []*models.File
	err   error
}

func (f *fakeAttachmentsRepo) find(fileID, typ, id string) int {
	for i, l := range f.links {
		if l.FileID == fileID && l.FileableType == typ && l.FileableID == id {
			return i
		}
	}
	return -1
}

func (f *fakeAttachmentsRepo) Attach(ctx context.Context, fileID, entityType, entityID string) error {
	if f.err != nil {
		return f.err
	}
	if f.find(fileID, entityType, entityID) < 0 {
		f.links = append(f.links, &models.Fileable{FileID: fileID, FileableType: entityType, FileableID: entityID})
	}
	return nil
}

func (f *fakeAttachmentsRepo) Detach(ctx context.Context, fileID, entityType, entityID string) error {
	if f.err != nil {
		return f.err
	}
	if i := f.find(fileID, entityType, entityID); i >= 0 {
		f.links = append(f.links[:i], f.links[i+1:]...)
	}
	return nil
}

func (f *fakeAttachmentsRepo) ListFilesForEntity(ctx context.Context, entityType, entityID string) ([]*models.File, error) {
	return f.files, f.err
}

func (f *fakeAttachmentsRepo) ListForFile(ctx context.Context, fileID string) ([]*models.Fileable, error) {
	if f.err != nil {
		return nil, f.err
	}
	var res []*models.Fileable
	for _, l := range f.links {
		if l.FileID == fileID {
			res = append(res, l)
		}
	}
	return res, nil
}

type fakeRepoManager struct {
	repomanager.RepositoryManager
	u *fakeUsersRepo
	f *fakeFilesRepo
	v *fakeViewersRepo
	a *fakeAttachmentsRepo
}

func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository             { return m.u }
func (m *fakeRepoManager) Files(dbx.DBTX) files.Repository             { return m.f }
func (m *fakeRepoManager) Viewers(dbx.DBTX) viewers.Repository         { return m.v }
func (m *fakeRepoManager) Attachments(dbx.DBTX) attachments.Repository { return m.a }

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		u: &fakeUsersRepo{known: map[string]bool{}},
		f: &fakeFilesRepo{},
		v: &fakeViewersRepo{},
		a: &fakeAttachmentsRepo{},
	}
}

// -------- object store --------

type fakeStore struct {
	storage.ObjectStore

	mu sync.Mutex

	createFn   func(key, contentType string) (string, error)
	presignFn  func(key, uploadID string, n int32) (string, error)
	completeFn func(key, uploadID string, parts []models.CompletedPart) error
	abortFn    func(key, uploadID string) error
	getURLFn   func(key, disposition string, expires time.Duration) (string, error)
	deleteFn   func(key string) error
	headFn     func(key string) (*storage.ObjectInfo, error)
	copyFn     func(src, dst string) error
	listFn     func(prefix string) ([]storage.ObjectInfo, error)

	calls   map[string]int
	deleted []string
	aborted []string
}

func (f *fakeStore) count(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[op]++
}

func (f *fakeStore) CreateMultipartUpload(ctx context.Context, key, contentType string) (string, error) {
	f.count("create")
	if f.createFn != nil {
		return f.createFn(key, contentType)
	}
	return "upload-1", nil
}

func (f *fakeStore) PresignUploadPart(ctx context.Context, key, uploadID string, n int32, expires time.Duration) (string, error) {
	f.count("presign")
	if f.presignFn != nil {
		return f.presignFn(key, uploadID, n)
	}
	return fmt.Sprintf("https://s3.test/%s?partNumber=%d&uploadId=%s", key, n, uploadID), nil
}

func (f *fakeStore) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []models.CompletedPart) error {
	f.count("complete")
	if f.completeFn != nil {
		return f.completeFn(key, uploadID, parts)
	}
	return nil
}

func (f *fakeStore) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	f.count("abort")
	f.mu.Lock()
	f.aborted = append(f.aborted, key)
	f.mu.Unlock()
	if f.abortFn != nil {
		return f.abortFn(key, uploadID)
	}
	return nil
}

func (f *fakeStore) PresignGetObject(ctx context.Context, key, disposition string, expires time.Duration) (string, error) {
	f.count("get")
	if f.getURLFn != nil {
		return f.getURLFn(key, disposition, expires)
	}
	return "https://s3.test/" + key, nil
}

func (f *fakeStore) DeleteObject(ctx context.Context, key string) error {
	f.count("delete")
	f.mu.Lock()
	f.deleted = append(f.deleted, key)
	f.mu.Unlock()
	if f.deleteFn != nil {
		return f.deleteFn(key)
	}
	return nil
}

func (f *fakeStore) HeadObject(ctx context.Context, key string) (*storage.ObjectInfo, error) {
	f.count("head")
	if f.headFn != nil {
		return f.headFn(key)
	}
	return nil, &storage.OperationError{Op: "HeadObject", Key: key, Code: "NotFound", Err: common.ErrorNotFound}
}

func (f *fakeStore) CopyObject(ctx context.Context, src, dst string) error {
	f.count("copy")
	if f.copyFn != nil {
		return f.copyFn(src, dst)
	}
	return nil
}

func (f *fakeStore) ListObjects(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	f.count("list")
	if f.listFn != nil {
		return f.listFn(prefix)
	}
	return nil, nil
}

// -------- observer --------

type recordingObserver struct {
	mu       sync.Mutex
	events   []string
	parts    []int
	provider []string
}

func (o *recordingObserver) UploadEvent(e string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
}

func (o *recordingObserver) PartsPlanned(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.parts = append(o.parts, n)
}

func (o *recordingObserver) ProviderCall(op string, err error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.provider = append(o.provider, op)
}

// -------- helpers --------

func testConfig() *config.Config {
	return &config.Config{
		PartSize:           config.DefaultPartSize,
		MaxRetries:         3,
		RetryDelay:         time.Millisecond,
		PartURLExpiry:      time.Hour,
		DownloadURLExpiry:  time.Hour,
		PresignConcurrency: 4,
	}
}

func newUploadService(t *testing.T, m *fakeRepoManager, st *fakeStore) (*UploadService, *recordingObserver) {
	t.Helper()
	obs := &recordingObserver{}
	return NewUploadService(nil, m, st, testConfig(), logging.NewNopLogger(), obs), obs
}
