package apperrors

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrConflict              = errors.New("conflict")
	ErrProviderNotRegistered = errors.New("provider not registered")
	ErrSyncInProgress        = errors.New("sync already in progress for connection")
	ErrMissingRefreshToken   = errors.New("connection has no refresh token")
	ErrStateInvalid          = errors.New("oauth state invalid or expired")
)
