package errors_test

import (
	"errors"
	"fmt"
	"testing"

	. "safevoice/pkg/errors"
)

func TestErrorCode_Message(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{Success, "Success"},
		{InvalidParams, "Invalid parameters"},
		{DatabaseError, "Database operation failed"},
		{TokenExpired, "Token has expired"},
		{ErrorCode(99999), "Unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.code.Message(); got != tt.want {
				t.Errorf("Message() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code       ErrorCode
		wantStatus int
	}{
		{Success, 200},
		{InvalidParams, 400},
		{ValidationFailed, 400},
		{Unauthorized, 401},
		{TokenInvalid, 401},
		{Forbidden, 403},
		{NotAssignedToCaller, 403},
		{IssueNotFound, 404},
		{ResolverNotFound, 404},
		{SolutionNotFound, 404},
		{AlreadyAssigned, 409},
		{IssueLocked, 409},
		{InvalidTransition, 409},
		{SolutionAlreadyExists, 409},
		{AttachmentSizeExceeded, 413},
		{AttachmentTypeNotAllowed, 415},
		{TooManyRequests, 429},
		{InternalServerError, 500},
		{DatabaseError, 500},
		{StoreUnavailable, 503},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d", tt.code), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.wantStatus {
				t.Errorf("HTTPStatus() = %v, want %v", got, tt.wantStatus)
			}
		})
	}
}

func TestNew(t *testing.T) {
	err := New(IssueNotFound)

	if err.Code != IssueNotFound {
		t.Errorf("Code = %v, want %v", err.Code, IssueNotFound)
	}
	if err.Error() != IssueNotFound.Message() {
		t.Errorf("Error() = %v, want %v", err.Error(), IssueNotFound.Message())
	}
	if err.Stack == "" {
		t.Error("expected stack trace")
	}
}

func TestNewf(t *testing.T) {
	err := Newf(IssueNotFound, "issue %d not found", int64(123))

	want := "issue 123 not found"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
}

func TestWrap(t *testing.T) {
	originalErr := errors.New("connection refused")
	wrappedErr := Wrap(originalErr, DatabaseError)

	if wrappedErr.Code != DatabaseError {
		t.Errorf("Code = %v, want %v", wrappedErr.Code, DatabaseError)
	}
	if wrappedErr.Unwrap() != originalErr {
		t.Error("Unwrap() should return original error")
	}
	if wrappedErr.Error() != DatabaseError.Message() {
		t.Errorf("Error() = %v, cause must not leak into the message", wrappedErr.Error())
	}
	if !errors.Is(wrappedErr, originalErr) {
		t.Error("errors.Is should find the cause")
	}
	if Wrap(nil, DatabaseError) != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestWrapRecodesExistingError(t *testing.T) {
	inner := New(IssueNotFound)
	outer := Wrap(fmt.Errorf("lookup: %w", inner), InvalidParams)

	if outer != inner {
		t.Error("Wrap should reuse the coded error")
	}
	if GetCode(outer) != InvalidParams {
		t.Errorf("GetCode() = %v, want %v", GetCode(outer), InvalidParams)
	}
}

func TestWrapf(t *testing.T) {
	err := Wrapf(errors.New("timeout"), CacheError, "rate limit check failed")

	if err.Error() != "rate limit check failed" {
		t.Errorf("Error() = %v", err.Error())
	}
	if err.Code != CacheError {
		t.Errorf("Code = %v, want %v", err.Code, CacheError)
	}
}

func TestError_WithDetail(t *testing.T) {
	err := New(AttachmentSizeExceeded).
		WithDetail("total_bytes", int64(2048)).
		WithDetail("max_bytes", int64(1024))

	if err.Details["total_bytes"] != int64(2048) {
		t.Error("total_bytes detail not set correctly")
	}
	if err.Details["max_bytes"] != int64(1024) {
		t.Error("max_bytes detail not set correctly")
	}
}

func TestValidationError(t *testing.T) {
	err := ValidationError("title", "is required")

	if err.Code != ValidationFailed {
		t.Errorf("Code = %v, want %v", err.Code, ValidationFailed)
	}
	if err.Error() != "title is required" {
		t.Errorf("Error() = %v", err.Error())
	}
	if err.Details["field"] != "title" {
		t.Error("field detail not set correctly")
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{name: "nil error", err: nil, want: Success},
		{name: "custom error", err: New(AlreadyAssigned), want: AlreadyAssigned},
		{name: "wrapped custom error", err: fmt.Errorf("assign: %w", New(AlreadyAssigned)), want: AlreadyAssigned},
		{name: "standard error", err: errors.New("standard error"), want: InternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Errorf("GetCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIs(t *testing.T) {
	err := New(SolutionNotFound)

	if !Is(err, SolutionNotFound) {
		t.Error("Is() should return true for matching code")
	}
	if Is(err, IssueNotFound) {
		t.Error("Is() should return false for other codes")
	}
	if Is(nil, SolutionNotFound) {
		t.Error("Is() should return false for nil")
	}
}

func TestGetError(t *testing.T) {
	if GetError(nil) != nil {
		t.Error("GetError(nil) should return nil")
	}
	err := GetError(errors.New("boom"))
	if err.Code != InternalServerError {
		t.Errorf("Code = %v, want %v", err.Code, InternalServerError)
	}
}

func TestAccessErrorConstructors(t *testing.T) {
	if err := ForbiddenError(""); err.Code != Forbidden || err.Message != Forbidden.Message() {
		t.Errorf("ForbiddenError(\"\") = %v/%q", err.Code, err.Message)
	}
	if err := ForbiddenError("unknown admin"); err.Code != Forbidden || err.Message != "unknown admin" {
		t.Errorf("ForbiddenError() = %v/%q", err.Code, err.Message)
	}
	if err := UnauthorizedError("unknown reporter"); err.Code != Unauthorized || err.Message != "unknown reporter" {
		t.Errorf("UnauthorizedError() = %v/%q", err.Code, err.Message)
	}
	if err := UnauthorizedError(""); err.Code.HTTPStatus() != 401 {
		t.Errorf("UnauthorizedError(\"\").HTTPStatus() = %d", err.Code.HTTPStatus())
	}
}
