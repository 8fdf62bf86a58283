// Push HTTP handlers.
//
//   - POST /push/subscribe      (register or refresh a browser subscription)
//   - GET  /push/subscribe      (registry size, service liveness)
//   - POST /push/unsubscribe    (idempotent removal)
//   - POST /push/send           (bearer; one subscription)
//   - POST /push/broadcast      (bearer; every subscription)
package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-blog-backend/internal/domain"
	"github.com/tbourn/go-blog-backend/internal/http/middleware"
	"github.com/tbourn/go-blog-backend/internal/push"
)

// SubscribeRequest wraps a PushSubscription as produced by the browser's
// PushManager.subscribe().toJSON().
type SubscribeRequest struct {
	Subscription *domain.PushSubscription `json:"subscription"`
}

// UnsubscribeRequest names the endpoint to forget.
type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint" example:"https://push.example/abc"`
}

// SendRequest targets a single subscription.
type SendRequest struct {
	Subscription *domain.PushSubscription `json:"subscription"`
	Payload      *push.Payload            `json:"payload"`
}

// BroadcastRequest targets every registered subscription.
type BroadcastRequest struct {
	Payload *push.Payload `json:"payload"`
}

// SubscriptionStatusResponse reports the registry size.
type SubscriptionStatusResponse struct {
	Success           bool   `json:"success" example:"true"`
	SubscriptionCount int64  `json:"subscriptionCount" example:"12"`
	Message           string `json:"message" example:"Push notification service is running"`
}

// BroadcastResponse reports per-result counts of a broadcast.
type BroadcastResponse struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message" example:"Broadcast finished"`
	push.BroadcastReport
}

// Subscribe godoc
// @ID          pushSubscribe
// @Summary     Register a push subscription
// @Description Re-subscribing an endpoint overwrites its keys.
// @Tags        Push
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.SubscribeRequest  true  "Subscription"
//
// @Success     200  {object} handlers.MessageResponse
// @Failure     400  {object} handlers.ErrorResponse "Missing endpoint"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /push/subscribe [post]
func (h *Handlers) Subscribe(c *gin.Context) {
	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Subscription == nil || strings.TrimSpace(req.Subscription.Endpoint) == "" {
		abort(c, http.StatusBadRequest, ErrorResponse{Code: ErrCodeBadRequest, Message: "invalid subscription data", Field: "subscription.endpoint"})
		return
	}
	sub := *req.Subscription
	sub.Endpoint = strings.TrimSpace(sub.Endpoint)
	sub.UserAgent = c.Request.UserAgent()

	if err := h.registry.Put(c.Request.Context(), sub); err != nil {
		failErr(c, err, "failed to save subscription")
		return
	}
	h.observeRegistry(c.Request.Context())
	middleware.LoggerFrom(c).Debug().Msg("push subscription saved")
	message(c, "Subscription saved successfully")
}

// SubscriptionStatus godoc
// @ID          pushStatus
// @Summary     Push service status
// @Tags        Push
// @Produce     json
// @Success     200  {object} handlers.SubscriptionStatusResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /push/subscribe [get]
func (h *Handlers) SubscriptionStatus(c *gin.Context) {
	n, err := h.registry.Count(c.Request.Context())
	if err != nil {
		failErr(c, err, "failed to count subscriptions")
		return
	}
	h.metrics.Subscriptions(n)
	ok(c, http.StatusOK, SubscriptionStatusResponse{
		Success:           true,
		SubscriptionCount: n,
		Message:           "Push notification service is running",
	})
}

// Unsubscribe godoc
// @ID          pushUnsubscribe
// @Summary     Remove a push subscription
// @Description Succeeds whether or not the endpoint was registered.
// @Tags        Push
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.UnsubscribeRequest  true  "Endpoint"
//
// @Success     200  {object} handlers.MessageResponse
// @Failure     400  {object} handlers.ErrorResponse "Missing endpoint"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /push/unsubscribe [post]
func (h *Handlers) Unsubscribe(c *gin.Context) {
	var req UnsubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Endpoint) == "" {
		abort(c, http.StatusBadRequest, ErrorResponse{Code: ErrCodeBadRequest, Message: "endpoint is required", Field: "endpoint"})
		return
	}
	if _, err := h.registry.Remove(c.Request.Context(), strings.TrimSpace(req.Endpoint)); err != nil {
		failErr(c, err, "failed to unsubscribe")
		return
	}
	h.observeRegistry(c.Request.Context())
	message(c, "Unsubscribed successfully")
}

// SendNotification godoc
// @ID          pushSend
// @Summary     Send a notification to one subscription
// @Description A subscription the push service reports as gone is removed from the registry and answered with 410.
// @Tags        Push
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.SendRequest  true  "Subscription and payload"
//
// @Success     200  {object} handlers.MessageResponse
// @Failure     400  {object} handlers.ErrorResponse "Missing fields"
// @Failure     401  {object} handlers.ErrorResponse "Bad credential"
// @Failure     410  {object} handlers.ErrorResponse "Subscription expired"
// @Failure     503  {object} handlers.ErrorResponse "Push not configured"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /push/send [post]
func (h *Handlers) SendNotification(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Subscription == nil || req.Payload == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "subscription and payload are required")
		return
	}
	// Same key the registry stored on subscribe, for delivery and pruning.
	req.Subscription.Endpoint = strings.TrimSpace(req.Subscription.Endpoint)
	if req.Subscription.Endpoint == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "subscription and payload are required")
		return
	}
	if !h.sender.Configured() {
		failErr(c, push.ErrNotConfigured, "")
		return
	}

	ctx := c.Request.Context()
	res, err := h.sender.Send(ctx, *req.Subscription, *req.Payload)
	h.metrics.Dispatched(res.String())
	switch res {
	case push.Delivered:
		message(c, "Notification sent successfully")
	case push.Expired:
		if _, rerr := h.registry.Remove(ctx, req.Subscription.Endpoint); rerr != nil {
			middleware.LoggerFrom(c).Warn().Err(rerr).Msg("prune expired subscription")
		}
		h.observeRegistry(ctx)
		abort(c, http.StatusGone, ErrorResponse{Code: ErrCodeExpired, Message: "Subscription has expired", Expired: true})
	case push.NotConfigured:
		failErr(c, err, "")
	default:
		middleware.LoggerFrom(c).Error().Err(err).Msg("push delivery failed")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "failed to send notification")
	}
}

// Broadcast godoc
// @ID          pushBroadcast
// @Summary     Send a notification to every subscription
// @Description Expired endpoints are pruned; per-result counts are returned.
// @Tags        Push
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.BroadcastRequest  true  "Payload"
//
// @Success     200  {object} handlers.BroadcastResponse
// @Failure     400  {object} handlers.ErrorResponse "Missing title"
// @Failure     401  {object} handlers.ErrorResponse "Bad credential"
// @Failure     503  {object} handlers.ErrorResponse "Push not configured"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /push/broadcast [post]
func (h *Handlers) Broadcast(c *gin.Context) {
	var req BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Payload == nil || strings.TrimSpace(req.Payload.Title) == "" {
		abort(c, http.StatusBadRequest, ErrorResponse{Code: ErrCodeBadRequest, Message: "payload title is required", Field: "payload.title"})
		return
	}
	rep, err := h.broadcaster.Broadcast(c.Request.Context(), *req.Payload)
	if err != nil {
		failErr(c, err, "failed to broadcast notification")
		return
	}
	h.observeRegistry(c.Request.Context())
	middleware.LoggerFrom(c).Info().
		Int("delivered", rep.Delivered).
		Int("expired", rep.Expired).
		Int("failed", rep.Failed).
		Msg("push broadcast")
	ok(c, http.StatusOK, BroadcastResponse{Success: true, Message: "Broadcast finished", BroadcastReport: rep})
}

// observeRegistry refreshes the subscription gauge; errors are ignored.
func (h *Handlers) observeRegistry(ctx context.Context) {
	if h.metrics == nil {
		return
	}
	if n, err := h.registry.Count(ctx); err == nil {
		h.metrics.Subscriptions(n)
	}
}
