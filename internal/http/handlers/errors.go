// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Every error response carries one of these codes next to the HTTP status so
// clients can branch on a stable value instead of parsing messages.
//
// Conventions:
//   - Codes are lowercase snake_case.
//   - Generic codes mirror HTTP status semantics.
//   - Domain codes name the validation or storage step that failed.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "missing_fields",
//	  "message": "Missing fields: kwh, source"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeUnavailable      = "unavailable"

	// Domain-specific:
	ErrCodeMissingFields = "missing_fields"
	ErrCodeInvalidField  = "invalid_field"
	ErrCodeNoValidFields = "no_valid_fields"
	ErrCodePersistence   = "persistence_error"
	ErrCodeExportFailed  = "export_failed"
)
