package errors

import (
	"encoding/json"
	"net/http"
)

type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

const (
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal          = "INTERNAL_ERROR"

	// Tenant resolution failures.
	ErrCodeTenantNotFound     = "TENANT_NOT_FOUND"
	ErrCodeTenantInactive     = "TENANT_INACTIVE"
	ErrCodeTenantCodeRequired = "TENANT_CODE_REQUIRED"

	// Verification precondition violations. A client receiving one of these
	// holds a stale view of member state and should refresh.
	ErrCodeAlreadyVerified      = "ALREADY_VERIFIED"
	ErrCodeAlreadyRejected      = "ALREADY_REJECTED"
	ErrCodeNotPending           = "NOT_PENDING"
	ErrCodeNotRejected          = "NOT_REJECTED"
	ErrCodeCannotRejectVerified = "CANNOT_REJECT_VERIFIED"

	ErrCodeOrgNotConfigured       = "ORGANIZATION_NOT_CONFIGURED"
	ErrCodeSerialGenerationFailed = "SERIAL_GENERATION_FAILED"
	ErrCodeInsufficientPrivilege  = "INSUFFICIENT_PRIVILEGE"
	ErrCodeEmailBlacklisted       = "EMAIL_BLACKLISTED"
)

func WriteError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    code,
		Details: details,
	})
}
