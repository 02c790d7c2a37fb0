package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Identity & session errors
// 17000-17999: Grievance lifecycle errors
// 18000-18999: Evidence attachment errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError       ErrorCode = 10100
	RecordNotFound      ErrorCode = 10101
	RecordAlreadyExists ErrorCode = 10102
	TransactionFailed   ErrorCode = 10103

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// ========== Identity Errors (11000-11999) ==========

	TokenExpired ErrorCode = 11003
	TokenInvalid ErrorCode = 11004
	InvalidRole  ErrorCode = 11005

	// ========== Grievance Lifecycle Errors (17000-17999) ==========

	// Issue (17000-17099)
	IssueNotFound     ErrorCode = 17000
	IssueCreateFailed ErrorCode = 17001
	IssueDeleteFailed ErrorCode = 17002
	IssueLocked       ErrorCode = 17003

	// Assignment (17100-17199)
	AlreadyAssigned     ErrorCode = 17100
	NotAssignedToCaller ErrorCode = 17101
	ResolverNotFound    ErrorCode = 17102
	InvalidTransition   ErrorCode = 17103

	// Solution (17200-17299)
	SolutionNotFound      ErrorCode = 17200
	SolutionAlreadyExists ErrorCode = 17201

	// ========== Attachment Errors (18000-18999) ==========

	AttachmentSizeExceeded   ErrorCode = 18000
	AttachmentTypeNotAllowed ErrorCode = 18001
	StoreUnavailable         ErrorCode = 18002
	AttachmentNotFound       ErrorCode = 18003
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	Forbidden:           "Access forbidden",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Database
	DatabaseError:       "Database operation failed",
	RecordNotFound:      "Record not found in database",
	RecordAlreadyExists: "Record already exists",
	TransactionFailed:   "Database transaction failed",

	// Cache
	CacheError: "Cache operation failed",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	// Identity
	TokenExpired: "Token has expired",
	TokenInvalid: "Invalid token",
	InvalidRole:  "Invalid role",

	// Issue
	IssueNotFound:     "Issue not found",
	IssueCreateFailed: "Failed to submit issue",
	IssueDeleteFailed: "Failed to delete issue",
	IssueLocked:       "Issue can no longer be edited after assignment",

	// Assignment
	AlreadyAssigned:     "Issue already assigned to a resolver",
	NotAssignedToCaller: "Issue is not assigned to you",
	ResolverNotFound:    "Resolver not found",
	InvalidTransition:   "Operation not allowed in the current issue status",

	// Solution
	SolutionNotFound:      "Solution not found",
	SolutionAlreadyExists: "A solution already exists for this issue",

	// Attachment
	AttachmentSizeExceeded:   "Attachments exceed the maximum total size",
	AttachmentTypeNotAllowed: "Attachment type is not allowed",
	StoreUnavailable:         "Attachment store temporarily unavailable",
	AttachmentNotFound:       "Attachment not found",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == Unauthorized, c == TokenExpired, c == TokenInvalid:
		return 401
	case c == Forbidden, c == NotAssignedToCaller, c == InvalidRole:
		return 403
	case c == NotFound, c == IssueNotFound, c == SolutionNotFound, c == ResolverNotFound, c == AttachmentNotFound:
		return 404
	case c == AlreadyAssigned, c == SolutionAlreadyExists, c == IssueLocked, c == InvalidTransition, c == RecordAlreadyExists:
		return 409
	case c == AttachmentSizeExceeded:
		return 413
	case c == AttachmentTypeNotAllowed:
		return 415
	case c == TooManyRequests:
		return 429
	case c == ServiceUnavailable, c == StoreUnavailable:
		return 503
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams:
		return 400
	default:
		return 500
	}
}
