// Package handlers exposes the REST endpoints of the blog backend.
//
// Handlers are transport-thin: they bind input, call the application
// services and translate results into the response envelopes of
// response.go. Authorization happens before them (middleware.BearerAuth).
package handlers

import (
	"context"
	"time"

	"github.com/tbourn/go-blog-backend/internal/domain"
	"github.com/tbourn/go-blog-backend/internal/observability"
	"github.com/tbourn/go-blog-backend/internal/push"
	"github.com/tbourn/go-blog-backend/internal/services"
)

// CommentService is the comment pipeline consumed by the handlers.
// *services.CommentService implements it.
type CommentService interface {
	Submit(ctx context.Context, in services.SubmitInput) (*domain.Comment, error)
	Approved(ctx context.Context, postID string) (services.ApprovedList, error)
	Stats(ctx context.Context, postID string) (int64, *time.Time, error)
	Moderate(ctx context.Context, id, status, moderator string) (*domain.Comment, error)
	Delete(ctx context.Context, id string) (int64, error)
	Queue(ctx context.Context, status string, page, pageSize int) ([]domain.Comment, int64, error)
}

// Broadcaster fans a payload out to every registered subscription.
type Broadcaster interface {
	Broadcast(ctx context.Context, p push.Payload) (push.BroadcastReport, error)
}

// Deps bundles what New needs. Metrics may be nil.
type Deps struct {
	Comments    CommentService
	Registry    push.Registry
	Sender      push.Sender
	Broadcaster Broadcaster
	Metrics     *observability.Metrics
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	comments    CommentService
	registry    push.Registry
	sender      push.Sender
	broadcaster Broadcaster
	metrics     *observability.Metrics
}

// New constructs Handlers bound to d.
func New(d Deps) *Handlers {
	return &Handlers{
		comments:    d.Comments,
		registry:    d.Registry,
		sender:      d.Sender,
		broadcaster: d.Broadcaster,
		metrics:     d.Metrics,
	}
}
