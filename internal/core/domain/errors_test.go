package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		expected string
	}{
		{
			name:     "error with type and message",
			err:      &APIError{Type: ErrorTypeInvalidRequest, Message: "bad request"},
			expected: "invalid_request: bad request",
		},
		{
			name:     "error with type, code, and message",
			err:      &APIError{Type: ErrorTypeInvalidRequest, Code: ErrorCodeInvalidDate, Message: "beginDate"},
			expected: "invalid_request (invalid_date): beginDate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAPIError_HTTPStatusCode(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		expected int
	}{
		{
			name:     "invalid request",
			err:      &APIError{Type: ErrorTypeInvalidRequest},
			expected: http.StatusBadRequest,
		},
		{
			name:     "not found error",
			err:      &APIError{Type: ErrorTypeNotFound},
			expected: http.StatusNotFound,
		},
		{
			name:     "linkage error",
			err:      &APIError{Type: ErrorTypeLinkage},
			expected: http.StatusUnprocessableEntity,
		},
		{
			name:     "server error",
			err:      &APIError{Type: ErrorTypeServer},
			expected: http.StatusInternalServerError,
		},
		{
			name:     "unknown error type",
			err:      &APIError{Type: ErrorType("unknown")},
			expected: http.StatusInternalServerError,
		},
		{
			name:     "explicit status code",
			err:      &APIError{Type: ErrorTypeInvalidRequest, StatusCode: http.StatusConflict},
			expected: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.HTTPStatusCode(); got != tt.expected {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestAPIError_WithParam(t *testing.T) {
	err := ErrInvalidRequest("invalid value").WithParam("beginDate")
	if err.Param != "beginDate" {
		t.Errorf("Param = %q, want %q", err.Param, "beginDate")
	}
}

func TestIsPerPipeline(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "linkage", err: &LinkageError{PipelineID: "p", Reason: "x"}, want: true},
		{name: "wrapped owner", err: fmt.Errorf("build: %w", &OwnerNotFoundError{PipelineID: "p", OwnerID: "o"}), want: true},
		{name: "storage", err: errors.New("connection refused"), want: false},
		{name: "nil", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPerPipeline(tt.err); got != tt.want {
				t.Errorf("IsPerPipeline() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestToAPIError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType ErrorType
		wantCode ErrorCode
	}{
		{name: "linkage", err: &LinkageError{PipelineID: "p", Reason: "x"}, wantType: ErrorTypeLinkage, wantCode: ErrorCodeMissingLinkage},
		{name: "owner", err: &OwnerNotFoundError{PipelineID: "p", OwnerID: "o"}, wantType: ErrorTypeLinkage, wantCode: ErrorCodeOwnerNotFound},
		{name: "api error passes through", err: fmt.Errorf("wrap: %w", ErrInvalidRequest("bad")), wantType: ErrorTypeInvalidRequest},
		{name: "anything else", err: errors.New("boom"), wantType: ErrorTypeServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToAPIError(tt.err)
			if got.Type != tt.wantType || got.Code != tt.wantCode {
				t.Errorf("ToAPIError() = %+v, want type %v code %v", got, tt.wantType, tt.wantCode)
			}
		})
	}
}

func TestCollectorItem_OwnerID(t *testing.T) {
	tests := []struct {
		name    string
		options map[string]any
		want    string
		wantErr bool
	}{
		{name: "present", options: map[string]any{"dashboardId": "dash-1"}, want: "dash-1"},
		{name: "missing", options: map[string]any{}, wantErr: true},
		{name: "nil options", options: nil, wantErr: true},
		{name: "wrong type", options: map[string]any{"dashboardId": 7}, wantErr: true},
		{name: "empty", options: map[string]any{"dashboardId": ""}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := &CollectorItem{ID: "pipe-1", Options: tt.options}
			got, err := item.OwnerID()
			if tt.wantErr {
				var linkage *LinkageError
				if !errors.As(err, &linkage) {
					t.Fatalf("OwnerID() error = %v, want LinkageError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("OwnerID() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("OwnerID() = %q, want %q", got, tt.want)
			}
		})
	}
}
