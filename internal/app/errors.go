package app

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUploadRejected    = errors.New("upload rejected")
	ErrPaperNotFound     = errors.New("paper not found")
	ErrSyncNotConfigured = errors.New("cloud sync not configured")
	ErrActivityDisabled  = errors.New("activity log not enabled")
)
