// Package handlers defines the HTTP-layer error codes used across all API
// endpoints.
//
// Clients branch on these codes; the status alone is not specific enough
// (503 can mean either "not configured" or "store down").
//
// Example response:
//
//	{
//	  "success": false,
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "bad_request",
//	  "message": "name must be between 2 and 100 characters",
//	  "field": "author"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"

	// Backing service credentials or drivers are missing.
	ErrCodeNotConfigured = "not_configured"
	// Backing store is configured but unreachable.
	ErrCodeStoreUnavailable = "store_unavailable"
	// Push endpoint is gone; the subscription has been pruned.
	ErrCodeExpired = "expired"
)
