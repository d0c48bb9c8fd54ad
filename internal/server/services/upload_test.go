package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/dmitrijs2005/uploadsvc/internal/common"
	"github.com/dmitrijs2005/uploadsvc/internal/retryx"
	"github.com/dmitrijs2005/uploadsvc/internal/server/metrics"
	"github.com/dmitrijs2005/uploadsvc/internal/server/models"
	"github.com/dmitrijs2005/uploadsvc/internal/server/storage"
	"github.com/google/go-cmp/cmp"
)

const mib = 1024 * 1024

func transientErr(op, key string) error {
	return &storage.OperationError{Op: op, Bucket: "b", Key: key, Code: "SlowDown",
		Err: &smithy.GenericAPIError{Code: "SlowDown", Message: "reduce your request rate", Fault: smithy.FaultServer}}
}

func rejectedErr(op, key string) error {
	return &storage.OperationError{Op: op, Bucket: "b", Key: key, Code: "AccessDenied",
		Err: &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied", Fault: smithy.FaultClient}}
}

func initiateReq(size int64) InitiateRequest {
	return InitiateRequest{Filename: "report.pdf", ContentType: "application/pdf", Size: size}
}

func TestInitiate_Success(t *testing.T) {
	m := newFakeRepoManager()
	st := &fakeStore{}
	s, obs := newUploadService(t, m, st)

	res, err := s.Initiate(context.Background(), initiateReq(12*mib), "user-1")
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	if !strings.HasPrefix(res.Key, "uploads/") || !strings.HasSuffix(res.Key, "_report.pdf") {
		t.Fatalf("unexpected key %q", res.Key)
	}
	if res.UploadID != "upload-1" || res.FileID == "" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.Parts) != 3 {
		t.Fatalf("parts = %d, want 3", len(res.Parts))
	}
	for i, p := range res.Parts {
		if p.PartNumber != int32(i+1) {
			t.Fatalf("parts[%d].PartNumber = %d", i, p.PartNumber)
		}
		if !strings.Contains(p.URL, "partNumber="+strconv.Itoa(i+1)+"&") {
			t.Fatalf("parts[%d].URL = %q", i, p.URL)
		}
	}

	if len(m.f.created) != 1 {
		t.Fatalf("created rows = %d, want 1", len(m.f.created))
	}
	row := m.f.created[0]
	want := models.File{
		ID:           row.ID,
		UserID:       "user-1",
		Name:         res.Key,
		Path:         res.Key,
		OriginalName: "report.pdf",
		Disk:         models.DiskS3,
		MimeType:     "application/pdf",
		Size:         12 * mib,
		Visibility:   models.VisibilityPrivate,
		Status:       models.StatusInitiated,
		UploadID:     "upload-1",
	}
	if diff := cmp.Diff(want, *row); diff != "" {
		t.Fatalf("row mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{metrics.EventInitiated}, obs.events); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{3}, obs.parts); diff != "" {
		t.Fatalf("parts planned (-want +got):\n%s", diff)
	}
}

func TestInitiate_PartCounts(t *testing.T) {
	tests := []struct {
		size int64
		want int
	}{
		{0, 1},
		{5 * mib, 1},
		{10 * mib, 2},
		{10*mib + 1, 3},
	}
	for _, tt := range tests {
		s, _ := newUploadService(t, newFakeRepoManager(), &fakeStore{})
		res, err := s.Initiate(context.Background(), initiateReq(tt.size), "u")
		if err != nil {
			t.Fatalf("size %d: %v", tt.size, err)
		}
		if len(res.Parts) != tt.want {
			t.Fatalf("size %d: parts = %d, want %d", tt.size, len(res.Parts), tt.want)
		}
	}
}

func TestInitiate_EscapesDisplayNameAndUsesDirectory(t *testing.T) {
	m := newFakeRepoManager()
	s, _ := newUploadService(t, m, &fakeStore{})

	req := initiateReq(1)
	req.Filename = "<b>.txt"
	req.Directory = "/avatars/"
	req.Visibility = models.VisibilityPublic

	res, err := s.Initiate(context.Background(), req, "u")
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if !strings.HasPrefix(res.Key, "avatars/") || !strings.HasSuffix(res.Key, "_&lt;b&gt;.txt") {
		t.Fatalf("unexpected key %q", res.Key)
	}
	row := m.f.created[0]
	if row.OriginalName != "&lt;b&gt;.txt" || row.Visibility != models.VisibilityPublic {
		t.Fatalf("unexpected row %+v", row)
	}
}

func TestInitiate_Validation(t *testing.T) {
	tooBig := initiateReq(int64(MaxParts)*5*mib + 1)

	tests := []struct {
		name      string
		req       InitiateRequest
		principal string
		want      error
	}{
		{"anonymous", initiateReq(1), "", common.ErrorUnauthorized},
		{"no filename", InitiateRequest{ContentType: "a/b"}, "u", common.ErrorValidation},
		{"long filename", InitiateRequest{Filename: strings.Repeat("n", 256), ContentType: "a/b"}, "u", common.ErrorValidation},
		{"no content type", InitiateRequest{Filename: "a"}, "u", common.ErrorValidation},
		{"negative size", InitiateRequest{Filename: "a", ContentType: "a/b", Size: -1}, "u", common.ErrorValidation},
		{"bad visibility", InitiateRequest{Filename: "a", ContentType: "a/b", Visibility: "friends"}, "u", common.ErrorValidation},
		{"bad directory", InitiateRequest{Filename: "a", ContentType: "a/b", Directory: "../etc"}, "u", common.ErrorValidation},
		{"too many parts", tooBig, "u", common.ErrorValidation},
		{"escaped name exceeds key limit", InitiateRequest{Filename: strings.Repeat("&", 255), ContentType: "a/b"}, "u", common.ErrorValidation},
		{"multibyte name exceeds key limit", InitiateRequest{Filename: strings.Repeat("𝄞", 255), ContentType: "a/b", Directory: strings.Repeat("d", 40)}, "u", common.ErrorValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &fakeStore{}
			s, _ := newUploadService(t, newFakeRepoManager(), st)
			_, err := s.Initiate(context.Background(), tt.req, tt.principal)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if st.calls["create"] != 0 {
				t.Fatalf("provider must not be called on invalid input")
			}
		})
	}
}

func TestInitiate_CreateRetriesTransient(t *testing.T) {
	var n atomic.Int32
	st := &fakeStore{createFn: func(key, _ string) (string, error) {
		if n.Add(1) < 3 {
			return "", transientErr("CreateMultipartUpload", key)
		}
		return "upload-3", nil
	}}
	s, _ := newUploadService(t, newFakeRepoManager(), st)

	res, err := s.Initiate(context.Background(), initiateReq(1), "u")
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if res.UploadID != "upload-3" || n.Load() != 3 {
		t.Fatalf("upload id %q after %d attempts", res.UploadID, n.Load())
	}
}

func TestInitiate_CreateFailurePersistsNothing(t *testing.T) {
	tests := []struct {
		name     string
		err      func(key string) error
		attempts int
		sentinel error
	}{
		{"rejected is not retried", func(k string) error { return rejectedErr("CreateMultipartUpload", k) }, 1, retryx.ErrProviderRejected},
		{"transient exhausts budget", func(k string) error { return transientErr("CreateMultipartUpload", k) }, 3, retryx.ErrProviderTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newFakeRepoManager()
			st := &fakeStore{createFn: func(key, _ string) (string, error) { return "", tt.err(key) }}
			s, obs := newUploadService(t, m, st)

			_, err := s.Initiate(context.Background(), initiateReq(1), "u")

			var opErr *common.OperationError
			if !errors.As(err, &opErr) {
				t.Fatalf("err = %T %v, want *common.OperationError", err, err)
			}
			if opErr.Error() != "upload initiation failed" {
				t.Fatalf("message leaks provider detail: %q", opErr.Error())
			}
			if !errors.Is(err, ErrUploadInitiationFailed) || !errors.Is(err, tt.sentinel) {
				t.Fatalf("err chain = %v", err)
			}
			if st.calls["create"] != tt.attempts {
				t.Fatalf("create calls = %d, want %d", st.calls["create"], tt.attempts)
			}
			if len(m.f.created) != 0 || st.calls["abort"] != 0 {
				t.Fatalf("nothing must be persisted or aborted")
			}
			if diff := cmp.Diff([]string{metrics.EventInitiationFailed}, obs.events); diff != "" {
				t.Fatalf("events (-want +got):\n%s", diff)
			}
		})
	}
}

func TestInitiate_AbortsWhenPresignFails(t *testing.T) {
	m := newFakeRepoManager()
	st := &fakeStore{presignFn: func(_, _ string, n int32) (string, error) {
		if n == 2 {
			return "", errors.New("signer broken")
		}
		return "u", nil
	}}
	s, _ := newUploadService(t, m, st)

	_, err := s.Initiate(context.Background(), initiateReq(15*mib), "u")
	if !errors.Is(err, ErrUploadInitiationFailed) {
		t.Fatalf("err = %v", err)
	}
	if st.calls["abort"] != 1 {
		t.Fatalf("abort calls = %d, want 1", st.calls["abort"])
	}
	if len(m.f.created) != 0 {
		t.Fatalf("no row must be stored")
	}
}

func TestInitiate_AbortsWhenInsertFails(t *testing.T) {
	m := newFakeRepoManager()
	m.f.createErr = errors.New("db down")
	st := &fakeStore{
		createFn: func(string, string) (string, error) { return "upload-9", nil },
		abortFn: func(key, uploadID string) error {
			if uploadID != "upload-9" {
				t.Errorf("abort upload id = %q", uploadID)
			}
			return nil
		},
	}
	s, _ := newUploadService(t, m, st)

	_, err := s.Initiate(context.Background(), initiateReq(1), "u")
	if !errors.Is(err, ErrUploadInitiationFailed) {
		t.Fatalf("err = %v", err)
	}
	if len(st.aborted) != 1 {
		t.Fatalf("aborted = %v", st.aborted)
	}
}

func TestComplete_Success(t *testing.T) {
	m := newFakeRepoManager()
	m.f.byPath = &models.File{ID: "f1", Path: "uploads/k", Status: models.StatusInitiated, UploadID: "up-1",
		Metadata: map[string]any{"origin": "web"}}

	var gotParts []models.CompletedPart
	st := &fakeStore{completeFn: func(key, uploadID string, parts []models.CompletedPart) error {
		if key != "uploads/k" || uploadID != "up-1" {
			t.Errorf("complete(%q, %q)", key, uploadID)
		}
		gotParts = parts
		return nil
	}}
	s, obs := newUploadService(t, m, st)

	parts := []models.CompletedPart{{PartNumber: 2, ETag: `"b"`}, {PartNumber: 1, ETag: `"a"`}}
	file, err := s.Complete(context.Background(), "uploads/k", parts)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if diff := cmp.Diff(parts, gotParts); diff != "" {
		t.Fatalf("caller order must be kept (-want +got):\n%s", diff)
	}
	if file.Status != models.StatusCompleted {
		t.Fatalf("status = %q", file.Status)
	}
	want := map[string]any{"origin": "web", "parts_count": 2}
	if diff := cmp.Diff(want, file.Metadata); diff != "" {
		t.Fatalf("metadata (-want +got):\n%s", diff)
	}
	if len(m.f.failedIDs) != 0 {
		t.Fatalf("must not mark failed")
	}
	if diff := cmp.Diff([]string{metrics.EventCompleted}, obs.events); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
}

func TestComplete_NoInitiatedSession(t *testing.T) {
	tests := []struct {
		name string
		row  *models.File
	}{
		{"missing", nil},
		{"already completed", &models.File{ID: "f", Path: "uploads/k", Status: models.StatusCompleted}},
		{"failed", &models.File{ID: "f", Path: "uploads/k", Status: models.StatusFailed}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newFakeRepoManager()
			m.f.byPath = tt.row
			st := &fakeStore{}
			s, _ := newUploadService(t, m, st)

			_, err := s.Complete(context.Background(), "uploads/k", []models.CompletedPart{{PartNumber: 1, ETag: "e"}})
			if !errors.Is(err, common.ErrorNotFound) {
				t.Fatalf("err = %v, want not found", err)
			}
			if st.calls["complete"] != 0 {
				t.Fatalf("provider must not be called")
			}
		})
	}
}

func TestComplete_Validation(t *testing.T) {
	s, _ := newUploadService(t, newFakeRepoManager(), &fakeStore{})
	tests := []struct {
		name  string
		key   string
		parts []models.CompletedPart
	}{
		{"no key", "", []models.CompletedPart{{PartNumber: 1, ETag: "e"}}},
		{"no parts", "k", nil},
		{"part zero", "k", []models.CompletedPart{{PartNumber: 0, ETag: "e"}}},
		{"part too high", "k", []models.CompletedPart{{PartNumber: 10001, ETag: "e"}}},
		{"no etag", "k", []models.CompletedPart{{PartNumber: 1}}},
	}
	for _, tt := range tests {
		if _, err := s.Complete(context.Background(), tt.key, tt.parts); !errors.Is(err, common.ErrorValidation) {
			t.Fatalf("%s: err = %v", tt.name, err)
		}
	}
}

func TestComplete_ProviderFailureMarksFailed(t *testing.T) {
	m := newFakeRepoManager()
	m.f.byPath = &models.File{ID: "f1", Path: "uploads/k", Status: models.StatusInitiated, UploadID: "up"}
	st := &fakeStore{completeFn: func(key, _ string, _ []models.CompletedPart) error {
		return rejectedErr("CompleteMultipartUpload", key)
	}}
	s, obs := newUploadService(t, m, st)

	_, err := s.Complete(context.Background(), "uploads/k", []models.CompletedPart{{PartNumber: 1, ETag: "e"}})

	var opErr *common.OperationError
	if !errors.As(err, &opErr) || opErr.Error() != "upload completion failed" {
		t.Fatalf("err = %v", err)
	}
	if !errors.Is(err, ErrUploadCompletionFailed) {
		t.Fatalf("err chain = %v", err)
	}
	if diff := cmp.Diff([]string{"f1"}, m.f.failedIDs); diff != "" {
		t.Fatalf("failed ids (-want +got):\n%s", diff)
	}
	if m.f.completedMeta != nil {
		t.Fatalf("must not mark completed")
	}
	if diff := cmp.Diff([]string{metrics.EventFailed}, obs.events); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
}

func TestComplete_TransientRetriedThenSucceeds(t *testing.T) {
	m := newFakeRepoManager()
	m.f.byPath = &models.File{ID: "f1", Path: "k", Status: models.StatusInitiated, UploadID: "up"}
	var n int
	st := &fakeStore{completeFn: func(key, _ string, _ []models.CompletedPart) error {
		n++
		if n == 1 {
			return transientErr("CompleteMultipartUpload", key)
		}
		return nil
	}}
	s, _ := newUploadService(t, m, st)

	if _, err := s.Complete(context.Background(), "k", []models.CompletedPart{{PartNumber: 1, ETag: "e"}}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if n != 2 {
		t.Fatalf("attempts = %d, want 2", n)
	}
}

func TestComplete_CancelledLeavesSessionInitiated(t *testing.T) {
	m := newFakeRepoManager()
	m.f.byPath = &models.File{ID: "f1", Path: "k", Status: models.StatusInitiated, UploadID: "up"}

	ctx, cancel := context.WithCancel(context.Background())
	st := &fakeStore{completeFn: func(string, string, []models.CompletedPart) error {
		cancel()
		return context.Canceled
	}}
	s, _ := newUploadService(t, m, st)

	_, err := s.Complete(ctx, "k", []models.CompletedPart{{PartNumber: 1, ETag: "e"}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if len(m.f.failedIDs) != 0 {
		t.Fatalf("cancelled completion must not mark failed")
	}
}

func TestComplete_RecordsCompletionAfterCallerCancels(t *testing.T) {
	m := newFakeRepoManager()
	m.f.byPath = &models.File{ID: "f1", Path: "k", Status: models.StatusInitiated, UploadID: "up"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st := &fakeStore{completeFn: func(string, string, []models.CompletedPart) error {
		cancel()
		return nil
	}}
	s, obs := newUploadService(t, m, st)

	got, err := s.Complete(ctx, "k", []models.CompletedPart{{PartNumber: 1, ETag: "e"}})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got.Status != models.StatusCompleted {
		t.Fatalf("status = %q, want completed", got.Status)
	}
	if len(m.f.failedIDs) != 0 {
		t.Fatalf("finalized upload must not be marked failed")
	}
	if diff := cmp.Diff([]string{metrics.EventCompleted}, obs.events); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
}

func TestComplete_MarkFailedUsesDetachedContext(t *testing.T) {
	m := newFakeRepoManager()
	m.f.byPath = &models.File{ID: "f1", Path: "k", Status: models.StatusInitiated, UploadID: "up"}

	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()
	st := &fakeStore{completeFn: func(key, _ string, _ []models.CompletedPart) error {
		return rejectedErr("CompleteMultipartUpload", key)
	}}
	s, _ := newUploadService(t, m, st)

	_, _ = s.Complete(ctx, "k", []models.CompletedPart{{PartNumber: 1, ETag: "e"}})
	if m.f.failedCtx == nil {
		t.Fatalf("MarkFailed not called")
	}
	if _, ok := m.f.failedCtx.Deadline(); ok {
		t.Fatalf("MarkFailed context must not carry the request deadline")
	}
}

func TestAbort(t *testing.T) {
	tests := []struct {
		name     string
		abortErr error
		wantErr  bool
	}{
		{"aborted", nil, false},
		{"provider already forgot", &storage.OperationError{Op: "AbortMultipartUpload", Code: "NoSuchUpload",
			Err: &smithy.GenericAPIError{Code: "NoSuchUpload"}}, false},
		{"provider rejects", rejectedErr("AbortMultipartUpload", "k"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newFakeRepoManager()
			m.f.byPath = &models.File{ID: "f1", Path: "k", Status: models.StatusInitiated, UploadID: "up"}
			st := &fakeStore{abortFn: func(string, string) error { return tt.abortErr }}
			s, _ := newUploadService(t, m, st)

			err := s.Abort(context.Background(), "k")
			if tt.wantErr {
				if err == nil || len(m.f.failedIDs) != 0 {
					t.Fatalf("err = %v, failed = %v", err, m.f.failedIDs)
				}
				return
			}
			if err != nil {
				t.Fatalf("Abort: %v", err)
			}
			if diff := cmp.Diff([]map[string]any{{"aborted": true}}, m.f.failedMeta); diff != "" {
				t.Fatalf("metadata (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAbort_NotInitiated(t *testing.T) {
	s, _ := newUploadService(t, newFakeRepoManager(), &fakeStore{})
	if err := s.Abort(context.Background(), "k"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("err = %v", err)
	}
	if err := s.Abort(context.Background(), ""); !errors.Is(err, common.ErrorValidation) {
		t.Fatalf("err = %v", err)
	}
}

func TestGenerateDownloadURL(t *testing.T) {
	var gotDisp string
	var gotExp time.Duration
	st := &fakeStore{getURLFn: func(key, disposition string, expires time.Duration) (string, error) {
		gotDisp, gotExp = disposition, expires
		return "https://dl/" + key, nil
	}}
	s, _ := newUploadService(t, newFakeRepoManager(), st)
	file := &models.File{ID: "f", Path: "uploads/k", OriginalName: "report.pdf"}

	if got := s.GenerateDownloadURL(context.Background(), file, 0); got != "https://dl/uploads/k" {
		t.Fatalf("url = %q", got)
	}
	if gotDisp != `attachment; filename="report.pdf"` || gotExp != time.Hour {
		t.Fatalf("disposition %q expiry %v", gotDisp, gotExp)
	}

	s.GenerateDownloadURL(context.Background(), file, time.Minute)
	if gotExp != time.Minute {
		t.Fatalf("expiry = %v", gotExp)
	}

	st.getURLFn = func(string, string, time.Duration) (string, error) { return "", errors.New("boom") }
	if got := s.GenerateDownloadURL(context.Background(), file, 0); got != "" {
		t.Fatalf("url on failure = %q", got)
	}
}

func TestDeleteFile(t *testing.T) {
	file := &models.File{ID: "f1", Path: "uploads/k"}

	t.Run("remote failure leaves row", func(t *testing.T) {
		m := newFakeRepoManager()
		st := &fakeStore{deleteFn: func(key string) error { return rejectedErr("DeleteObject", key) }}
		s, _ := newUploadService(t, m, st)

		if s.DeleteFile(context.Background(), file) {
			t.Fatalf("DeleteFile = true")
		}
		if len(m.f.softDeleted) != 0 {
			t.Fatalf("row must be untouched")
		}
	})

	t.Run("local failure", func(t *testing.T) {
		m := newFakeRepoManager()
		m.f.softDeleteErr = errors.New("db down")
		s, _ := newUploadService(t, m, &fakeStore{})
		if s.DeleteFile(context.Background(), file) {
			t.Fatalf("DeleteFile = true")
		}
	})

	t.Run("success", func(t *testing.T) {
		m := newFakeRepoManager()
		st := &fakeStore{}
		s, obs := newUploadService(t, m, st)

		if !s.DeleteFile(context.Background(), file) {
			t.Fatalf("DeleteFile = false")
		}
		if diff := cmp.Diff([]string{"f1"}, m.f.softDeleted); diff != "" {
			t.Fatalf("soft deleted (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{"uploads/k"}, st.deleted); diff != "" {
			t.Fatalf("deleted keys (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{metrics.EventDeleted}, obs.events); diff != "" {
			t.Fatalf("events (-want +got):\n%s", diff)
		}
	})
}
