package engine

import (
	"fmt"

	"mantle/internal/validation"
)

// AppError is the request-scoped error taxonomy. The HTTP layer translates
// it to a status code and a JSON envelope; nothing below it swallows errors.
type AppError struct {
	Code    string                  `json:"code"`
	Status  int                     `json:"-"`
	Message string                  `json:"message"`
	Details []validation.FieldError `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func UnknownEntityError(slug string) *AppError {
	return &AppError{
		Code:    "UNKNOWN_ENTITY",
		Status:  404,
		Message: fmt.Sprintf("Unknown entity: %s", slug),
	}
}

func NotFoundError(slug string, id any) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  404,
		Message: fmt.Sprintf("%s with id %v not found", slug, id),
	}
}

func BadRequestError(msg string) *AppError {
	return &AppError{
		Code:    "BAD_REQUEST",
		Status:  400,
		Message: msg,
	}
}

func ValidationFailedError(details []validation.FieldError) *AppError {
	return &AppError{
		Code:    "VALIDATION_FAILED",
		Status:  422,
		Message: "Validation failed",
		Details: details,
	}
}

func UnauthorizedError(msg string) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Status:  401,
		Message: msg,
	}
}

func ConflictError(msg string) *AppError {
	return &AppError{
		Code:    "CONFLICT",
		Status:  409,
		Message: msg,
	}
}
