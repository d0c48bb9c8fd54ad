package services

import "errors"

var (
	// ErrUploadInitiationFailed is wrapped by the error returned when the
	// provider refused or failed to start a multipart upload.
	ErrUploadInitiationFailed = errors.New("upload initiation failed")
	// ErrUploadCompletionFailed is wrapped by the error returned when the
	// provider failed to finalize a multipart upload.
	ErrUploadCompletionFailed = errors.New("upload completion failed")
)
