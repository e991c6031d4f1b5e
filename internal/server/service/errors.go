package service

import "errors"

// Sentinel errors for the service layer. The API layer translates these
// into HTTP status codes and stable machine-readable error codes.
var (
	ErrInvalidLinkPath  = errors.New("invalid link format")
	ErrLinkNotFound     = errors.New("link not found")
	ErrLinkInactive     = errors.New("link is inactive")
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrPasswordRequired = errors.New("password required")
	ErrInvalidPassword  = errors.New("invalid password")
	ErrSlugTaken        = errors.New("slug already in use")
	ErrRateLimited      = errors.New("rate limited")
	ErrFileTooLarge     = errors.New("file exceeds the link's size limit")
	ErrTooManyFiles     = errors.New("link file limit reached")
	ErrStorageQuota     = errors.New("workspace storage limit exceeded")
	ErrBatchFinished    = errors.New("batch is no longer accepting files")
	ErrStorageFailed    = errors.New("storage operation failed")
	ErrDatabaseFailed   = errors.New("database operation failed")
)
