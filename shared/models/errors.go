package models

import "fmt"

// UnauthorizedError indicates a missing or invalid credential.
type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string { return e.Message }

// PermissionDeniedError indicates the caller may not perform the operation,
// or the target account is in a state that forbids it.
type PermissionDeniedError struct {
	Message string
}

func (e *PermissionDeniedError) Error() string { return e.Message }

// BadRequestError indicates invalid input or a failed precondition.
type BadRequestError struct {
	Message string
}

func (e *BadRequestError) Error() string { return e.Message }

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ConflictError indicates a duplicate resource.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// ErrUnauthorized creates an UnauthorizedError with a formatted message.
func ErrUnauthorized(format string, args ...any) *UnauthorizedError {
	return &UnauthorizedError{Message: fmt.Sprintf(format, args...)}
}

// ErrPermissionDenied creates a PermissionDeniedError with a formatted message.
func ErrPermissionDenied(format string, args ...any) *PermissionDeniedError {
	return &PermissionDeniedError{Message: fmt.Sprintf(format, args...)}
}

// ErrBadRequest creates a BadRequestError with a formatted message.
func ErrBadRequest(format string, args ...any) *BadRequestError {
	return &BadRequestError{Message: fmt.Sprintf(format, args...)}
}

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...any) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...any) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}
