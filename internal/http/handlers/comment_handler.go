// Comment HTTP handlers.
//
// Public endpoints:
//   - GET  /comments?post={slug}   (approved comments with replies, weak ETag)
//   - POST /comments               (submit, goes to moderation)
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-blog-backend/internal/http/middleware"
	"github.com/tbourn/go-blog-backend/internal/observability"
	"github.com/tbourn/go-blog-backend/internal/services"
)

// SubmitCommentRequest is the JSON payload of a comment submission.
type SubmitCommentRequest struct {
	PostID          string `json:"postId" example:"hello-world"`
	Author          string `json:"author" example:"Jo"`
	Email           string `json:"email" example:"jo@example.com"`
	Content         string `json:"content" example:"Nice post!"`
	ParentCommentID string `json:"parentCommentId,omitempty" example:""`
	// Honeypot is a hidden form field; humans leave it empty.
	Honeypot string `json:"honeypot,omitempty" example:""`
}

// ListCommentsResponse wraps the approved comments of a post. Count is the
// number of top-level comments.
type ListCommentsResponse struct {
	Success  bool                     `json:"success" example:"true"`
	Comments []services.PublicComment `json:"comments"`
	Count    int                      `json:"count" example:"2"`
}

const submittedMsg = "Comment submitted and awaiting moderation"

// ListComments godoc
// @ID          listComments
// @Summary     List approved comments of a post
// @Description Returns approved top-level comments newest first, each with its approved replies oldest first. Supports weak ETag via If-None-Match.
// @Tags        Comments
// @Produce     json
//
// @Param       post           query   string  true   "Post slug"                  example(hello-world)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
//
// @Success     200  {object} handlers.ListCommentsResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Missing post slug"
// @Failure     503  {object} handlers.ErrorResponse "Store not configured or unavailable"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /comments [get]
func (h *Handlers) ListComments(c *gin.Context) {
	ctx := c.Request.Context()
	post := strings.TrimSpace(c.Query("post"))
	if post == "" {
		abort(c, http.StatusBadRequest, ErrorResponse{Code: ErrCodeBadRequest, Message: "post slug is required", Field: "post"})
		return
	}

	// 304 pre-check (best effort; failures fall through to the list call
	// which reports them properly).
	if inm := c.GetHeader("If-None-Match"); inm != "" {
		if count, last, err := h.comments.Stats(ctx, post); err == nil && inm == commentsETag(count, last) {
			c.Header("ETag", inm)
			c.Header("Cache-Control", "public, no-cache")
			c.Status(http.StatusNotModified)
			return
		}
	}

	list, err := h.comments.Approved(ctx, post)
	if err != nil {
		failErr(c, err, "failed to fetch comments")
		return
	}
	// The tag describes the snapshot being served, not a later one.
	c.Header("ETag", commentsETag(list.Count, list.LastModeratedAt))
	c.Header("Cache-Control", "public, no-cache")
	ok(c, http.StatusOK, ListCommentsResponse{Success: true, Comments: list.Comments, Count: len(list.Comments)})
}

func commentsETag(count int64, last *time.Time) string {
	var ts int64
	if last != nil {
		ts = last.UnixNano()
	}
	return fmt.Sprintf(`W/"comments-%d-%d"`, count, ts)
}

// SubmitComment godoc
// @ID          submitComment
// @Summary     Submit a comment
// @Description Validates and stores a comment as pending. Submissions are rate limited per client address.
// @Tags        Comments
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.SubmitCommentRequest  true  "Comment"
//
// @Success     200  {object} handlers.MessageResponse
// @Failure     400  {object} handlers.ErrorResponse "Validation failure"
// @Failure     429  {object} handlers.ErrorResponse "Rate limited"
// @Failure     503  {object} handlers.ErrorResponse "Store not configured or unavailable"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /comments [post]
func (h *Handlers) SubmitComment(c *gin.Context) {
	var req SubmitCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	cm, err := h.comments.Submit(c.Request.Context(), services.SubmitInput{
		PostID:    req.PostID,
		Author:    req.Author,
		Email:     req.Email,
		Content:   req.Content,
		ParentID:  req.ParentCommentID,
		Honeypot:  req.Honeypot,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	switch {
	case err == nil && cm == nil:
		h.metrics.Submitted(observability.OutcomeHoneypot)
	case err == nil:
		h.metrics.Submitted(observability.OutcomeAccepted)
		middleware.LoggerFrom(c).Info().Str("comment_id", cm.ID).Str("post_id", cm.PostID).
			Float64("spam_score", cm.SpamScore).Msg("comment submitted")
	case errors.Is(err, services.ErrValidation):
		h.metrics.Submitted(observability.OutcomeInvalid)
	case errors.Is(err, services.ErrRateLimited):
		h.metrics.Submitted(observability.OutcomeRateLimited)
	default:
		h.metrics.Submitted(observability.OutcomeError)
	}
	if err != nil {
		failErr(c, err, "failed to submit comment")
		return
	}
	message(c, submittedMsg)
}
