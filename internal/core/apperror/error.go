// Package apperror provides structured error handling for business failures.
// All deterministic rejections must use AppError so the apply pipeline can
// distinguish them from infrastructure faults.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes for the POS core
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"

	// Validation errors (400)
	CodeValidation     = "VALIDATION_ERROR"
	CodeBranchMismatch = "BRANCH_MISMATCH"

	// Business rule violations (422)
	CodeBranchFrozen       = "BRANCH_FROZEN"
	CodeSessionAlreadyOpen = "SESSION_ALREADY_OPEN"
	CodeSessionNotOpen     = "SESSION_NOT_OPEN"
	CodeSaleNotDraft       = "SALE_NOT_DRAFT"
	CodeSaleNotFinalized   = "SALE_NOT_FINALIZED"
	CodeSaleEmpty          = "SALE_EMPTY"

	// Referenced entity missing (422); caller must fix the reference before retry
	CodeDependencyMissing = "DEPENDENCY_MISSING"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Authentication (401)
	CodeUnauthorized = "UNAUTHORIZED"

	// Conflict (409)
	CodeDuplicateSale = "DUPLICATE_SALE"
)

// AppError is the standard error type for deterministic business failures.
// It implements the error interface and provides structured details that the
// pipeline persists on the operation ledger and the audit trail.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field names, ids, amounts)
	Details map[string]any `json:"details,omitempty"`

	// DenialReason is recorded on the audit entry when set.
	// Used for compliance-relevant rejections (frozen branch etc.).
	DenialReason string `json:"-"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// WithDenialReason sets the audit denial reason.
func (e *AppError) WithDenialReason(reason string) *AppError {
	e.DenialReason = reason
	return e
}

// --- Factory functions for common errors ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewBranchMismatch is returned when an operation payload names a branch
// other than the authenticated one.
func NewBranchMismatch(payloadBranch, authBranch any) *AppError {
	return &AppError{
		Code:       CodeBranchMismatch,
		Message:    "operation branch does not match the authenticated branch",
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"payload_branch_id": payloadBranch, "auth_branch_id": authBranch},
	}
}

// NewBranchFrozen is returned when writes against a frozen branch are rejected.
func NewBranchFrozen(branchID any) *AppError {
	return &AppError{
		Code:         CodeBranchFrozen,
		Message:      "branch is frozen and cannot accept operations",
		HTTPStatus:   http.StatusUnprocessableEntity,
		Details:      map[string]any{"branch_id": branchID},
		DenialReason: "branch administratively frozen",
	}
}

// NewBusinessRule creates a business rule violation error (422)
func NewBusinessRule(code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewDependencyMissing signals that a referenced entity does not exist or is
// unavailable. The caller must fix the reference before retrying.
func NewDependencyMissing(entity string, ref any) *AppError {
	return &AppError{
		Code:       CodeDependencyMissing,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"entity": entity, "ref": ref},
	}
}

// NewSessionAlreadyOpen is returned when a second cash session would be
// opened on the same register (or branch, for device-agnostic sessions).
func NewSessionAlreadyOpen(scope string) *AppError {
	return &AppError{
		Code:       CodeSessionAlreadyOpen,
		Message:    fmt.Sprintf("A session is already open for this %s", scope),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"scope": scope},
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewDuplicateSale is returned when a client sale uuid already maps to a
// persisted sale.
func NewDuplicateSale(clientUUID string) *AppError {
	return &AppError{
		Code:       CodeDuplicateSale,
		Message:    "a sale with this client uuid already exists",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"client_uuid": clientUUID},
	}
}

// NewUnauthorized creates an authentication error (401)
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
