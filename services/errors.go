package services

import "errors"

var (
	ErrInvalidUsername   = errors.New("username must contain letters, digits or underscore")
	ErrAccountNotFound   = errors.New("account not found")
	ErrUnauthorized      = errors.New("invalid or expired token")
	ErrInvalidRunPayload = errors.New("invalid run payload")
	ErrRunNotFound       = errors.New("run not found")
	ErrForbidden         = errors.New("run belongs to another user")
	ErrNoFieldsToUpdate  = errors.New("no valid fields to update")
)
