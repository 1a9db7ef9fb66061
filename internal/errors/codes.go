// Package errors provides structured error handling for searchgate.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Index I/O errors
//   - 3XX: Resource (lock) errors
//   - 4XX: Validation and access errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates engine and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryResource indicates writer lock contention.
	CategoryResource Category = "RESOURCE"
	// CategoryValidation indicates input validation or access errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Index I/O errors (200-299)
	ErrCodeIndexIO       = "ERR_201_INDEX_IO"
	ErrCodeIndexNotFound = "ERR_202_INDEX_NOT_FOUND"

	// Resource errors (300-399)
	ErrCodeResourceUnavailable = "ERR_301_RESOURCE_UNAVAILABLE"
	ErrCodeIndexLocked         = "ERR_302_INDEX_LOCKED"

	// Validation errors (400-499)
	ErrCodeInvalidInput     = "ERR_401_INVALID_INPUT"
	ErrCodeQuerySyntax      = "ERR_402_QUERY_SYNTAX"
	ErrCodeOriginNotAllowed = "ERR_403_ORIGIN_NOT_ALLOWED"
	ErrCodeMalformedEntry   = "ERR_404_MALFORMED_ENTRY"
	ErrCodeInvalidIndexName = "ERR_405_INVALID_INDEX_NAME"

	// Internal errors (500-599)
	ErrCodeInternal = "ERR_501_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "101" from "ERR_101_CONFIG_NOT_FOUND")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryResource
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeConfigInvalid, ErrCodeConfigNotFound:
		return SeverityFatal
	case ErrCodeMalformedEntry:
		return SeverityInfo
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// Only a single failed lock attempt is retryable; exhausting the attempts
// produces ErrCodeResourceUnavailable, which is not.
func isRetryableCode(code string) bool {
	return code == ErrCodeIndexLocked
}
