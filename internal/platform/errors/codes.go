// Package errors provides structured error handling with machine-readable codes.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Request validation errors
	CodeValidation           Code = "VALIDATION"
	CodePartitionKeyMissing  Code = "PARTITION_KEY_MISSING"
	CodeBusinessUnitRequired Code = "BUSINESS_UNIT_REQUIRED"

	// Session errors
	CodeUserUnknown    Code = "USER_UNKNOWN"
	CodeSessionInvalid Code = "SESSION_INVALID"
	CodeSessionExpired Code = "SESSION_EXPIRED"

	// Record errors
	CodeNotFound        Code = "NOT_FOUND"
	CodeNothingToSubmit Code = "NOTHING_TO_SUBMIT"

	// Storage errors
	CodeStorage Code = "STORAGE"

	// Publish errors
	CodePublish Code = "PUBLISH"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// Bad request - validation failures, benign submit races
	case CodeValidation,
		CodeBusinessUnitRequired,
		CodePartitionKeyMissing,
		CodeNothingToSubmit:
		return http.StatusBadRequest

	// Unauthorized - unknown users and bad or stale sessions
	case CodeUserUnknown,
		CodeSessionInvalid,
		CodeSessionExpired:
		return http.StatusUnauthorized

	// Not found - partition has no records
	case CodeNotFound:
		return http.StatusNotFound

	default:
		return http.StatusInternalServerError
	}
}
