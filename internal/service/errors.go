package service

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidInput   = errors.New("invalid input")
	ErrStaleReference = errors.New("stale reference")
	ErrBadLogin       = errors.New("login signature rejected")
)
