package domain

import "errors"

var (
	ErrNotFound    = errors.New("resource not found")
	ErrStoreBusy   = errors.New("store busy")
	ErrInvalidID   = errors.New("invalid media id")
	ErrQueueFull   = errors.New("encode queue full")
	ErrEmptyPath   = errors.New("path is empty")
	ErrInvalidPath = errors.New("path contains invalid characters")
)
