package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of an API error.
type ErrorType string

const (
	// ErrorTypeInvalidRequest indicates a malformed or invalid request.
	ErrorTypeInvalidRequest ErrorType = "invalid_request"

	// ErrorTypeNotFound indicates a resource was not found.
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeLinkage indicates a pipeline whose owner cannot be resolved.
	ErrorTypeLinkage ErrorType = "linkage"

	// ErrorTypeServer indicates an internal server error.
	ErrorTypeServer ErrorType = "server"
)

// ErrorCode provides additional specificity beyond the error type.
type ErrorCode string

const (
	ErrorCodeOwnerNotFound   ErrorCode = "owner_not_found"
	ErrorCodeMissingLinkage  ErrorCode = "missing_linkage"
	ErrorCodeInvalidDate     ErrorCode = "invalid_date"
	ErrorCodeMissingPipeline ErrorCode = "missing_pipeline"
)

// APIError is the error shape returned to HTTP clients.
type APIError struct {
	Type       ErrorType `json:"type"`
	Code       ErrorCode `json:"code,omitempty"`
	Message    string    `json:"message"`
	Param      string    `json:"param,omitempty"`
	StatusCode int       `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// HTTPStatusCode returns the appropriate HTTP status code for this error.
func (e *APIError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}

	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeLinkage:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// NewAPIError creates a new API error.
func NewAPIError(errType ErrorType, message string) *APIError {
	return &APIError{
		Type:    errType,
		Message: message,
	}
}

// WithCode adds an error code to the error.
func (e *APIError) WithCode(code ErrorCode) *APIError {
	e.Code = code
	return e
}

// WithParam adds a parameter name to the error.
func (e *APIError) WithParam(param string) *APIError {
	e.Param = param
	return e
}

// ErrInvalidRequest creates an invalid request error.
func ErrInvalidRequest(message string) *APIError {
	return NewAPIError(ErrorTypeInvalidRequest, message)
}

// ErrServer creates a server error.
func ErrServer(message string) *APIError {
	return NewAPIError(ErrorTypeServer, message)
}

// LinkageError means a pipeline's collector item is missing or does not
// reference an owner.
type LinkageError struct {
	PipelineID string
	Reason     string
}

func (e *LinkageError) Error() string {
	return fmt.Sprintf("pipeline %s: broken owner linkage: %s", e.PipelineID, e.Reason)
}

// OwnerNotFoundError means the linked owner record does not exist.
type OwnerNotFoundError struct {
	PipelineID string
	OwnerID    string
}

func (e *OwnerNotFoundError) Error() string {
	return fmt.Sprintf("pipeline %s: owner %s not found", e.PipelineID, e.OwnerID)
}

// IsPerPipeline reports whether err fails a single pipeline rather than the
// whole batch.
func IsPerPipeline(err error) bool {
	var linkage *LinkageError
	var owner *OwnerNotFoundError
	return errors.As(err, &linkage) || errors.As(err, &owner)
}

// ToAPIError converts err into the client-facing error shape.
func ToAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var linkage *LinkageError
	if errors.As(err, &linkage) {
		return NewAPIError(ErrorTypeLinkage, linkage.Error()).WithCode(ErrorCodeMissingLinkage)
	}
	var owner *OwnerNotFoundError
	if errors.As(err, &owner) {
		return NewAPIError(ErrorTypeLinkage, owner.Error()).WithCode(ErrorCodeOwnerNotFound)
	}
	return ErrServer(err.Error())
}
