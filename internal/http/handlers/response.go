// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the response envelopes and the mapping from service
// errors to HTTP statuses. Every response carries "success"; failures add a
// stable code, a human-readable message and, for validation failures, the
// offending field. Internal error text is logged, never returned.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-blog-backend/internal/http/middleware"
	"github.com/tbourn/go-blog-backend/internal/push"
	"github.com/tbourn/go-blog-backend/internal/services"
)

// ErrorResponse is the error envelope returned by all endpoints.
type ErrorResponse struct {
	Success bool `json:"success" example:"false"`
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go)
	Code string `json:"code" example:"bad_request"`
	// Human-readable message, safe to show to users
	Message string `json:"message" example:"invalid email address"`
	// Field names the rejected input on validation failures
	Field string `json:"field,omitempty" example:"email"`
	// Expired is set when a push endpoint is gone
	Expired bool `json:"expired,omitempty"`
}

// MessageResponse is the generic success envelope.
type MessageResponse struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message" example:"Comment submitted and awaiting moderation"`
}

func fail(c *gin.Context, status int, code, msg string) {
	abort(c, status, ErrorResponse{Code: code, Message: msg})
}

func abort(c *gin.Context, status int, resp ErrorResponse) {
	resp.Success = false
	resp.RequestID = middleware.RequestIDFrom(c)
	if resp.RequestID == "" {
		resp.RequestID = c.Writer.Header().Get("X-Request-ID")
	}
	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail for router-level fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failErr maps a service error onto the error taxonomy. Anything not
// recognized becomes a 500 with a generic message and is logged with its
// detail.
func failErr(c *gin.Context, err error, genericMsg string) {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		abort(c, http.StatusBadRequest, ErrorResponse{Code: ErrCodeBadRequest, Message: ve.Message, Field: ve.Field})
	case errors.Is(err, services.ErrRateLimited):
		c.Header("Retry-After", "60")
		fail(c, http.StatusTooManyRequests, ErrCodeRateLimited, "too many comments submitted, please wait")
	case errors.Is(err, services.ErrNotConfigured), errors.Is(err, push.ErrNotConfigured):
		fail(c, http.StatusServiceUnavailable, ErrCodeNotConfigured, "service not configured")
	case errors.Is(err, services.ErrStoreUnavailable):
		middleware.LoggerFrom(c).Error().Err(err).Msg("backing store unavailable")
		fail(c, http.StatusServiceUnavailable, ErrCodeStoreUnavailable, "service temporarily unavailable")
	case errors.Is(err, services.ErrCommentNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "comment not found")
	default:
		middleware.LoggerFrom(c).Error().Err(err).Msg(genericMsg)
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, genericMsg)
	}
}

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func message(c *gin.Context, msg string) {
	ok(c, http.StatusOK, MessageResponse{Success: true, Message: msg})
}
