package domain

import "errors"

// Sentinel errors surfaced by the store and scheduler. Handlers translate
// these into HTTP responses with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicate         = errors.New("already exists")
	ErrConferenceStarted = errors.New("conference has already started")
	ErrOverlap           = errors.New("user has an overlapping conference booking")
	ErrInvalidState      = errors.New("booking is not in confirmation pending state")
	ErrExpired           = errors.New("confirmation deadline has expired")
	ErrAccessDenied      = errors.New("access denied")
	ErrAlreadyCanceled   = errors.New("booking is already canceled")
)
