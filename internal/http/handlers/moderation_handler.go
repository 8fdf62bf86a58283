// Moderation HTTP handlers. All routes sit behind middleware.BearerAuth.
//
//   - GET    /comments/moderate             (queue, paginated)
//   - PATCH  /comments/moderate/{id}        (set status)
//   - DELETE /comments/moderate/{id}        (delete with replies)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-blog-backend/internal/domain"
	"github.com/tbourn/go-blog-backend/internal/http/middleware"
	"github.com/tbourn/go-blog-backend/internal/utils"
)

// ModerateRequest is the JSON payload of a status change.
type ModerateRequest struct {
	Status      string `json:"status" example:"approved"`
	ModeratedBy string `json:"moderatedBy,omitempty" example:"admin"`
}

// ModerateResponse returns the updated comment.
type ModerateResponse struct {
	Success bool            `json:"success" example:"true"`
	Message string          `json:"message" example:"Comment approved"`
	Comment *domain.Comment `json:"comment"`
}

// DeleteResponse reports a cascade delete. Deleted is 0 when the comment
// did not exist.
type DeleteResponse struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message" example:"Comment deleted"`
	Deleted int64  `json:"deleted" example:"3"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// QueueResponse is a page of the moderation queue. Unlike the public list
// it carries the full records, e-mail and spam score included.
type QueueResponse struct {
	Success    bool             `json:"success" example:"true"`
	Comments   []domain.Comment `json:"comments"`
	Pagination Pagination       `json:"pagination"`
}

// ModerationQueue godoc
// @ID          moderationQueue
// @Summary     List comments for moderation
// @Description Pending comments first, then by state; newest first within a state.
// @Tags        Moderation
// @Produce     json
// @Security    BearerAuth
//
// @Param       status     query  string  false  "Filter by status"  Enums(pending, approved, rejected, spam)
// @Param       page       query  int     false  "Page number"       minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"    minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.QueueResponse
// @Failure     400  {object} handlers.ErrorResponse "Invalid status"
// @Failure     401  {object} handlers.ErrorResponse "Bad credential"
// @Failure     503  {object} handlers.ErrorResponse "Store not configured or unavailable"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /comments/moderate [get]
func (h *Handlers) ModerationQueue(c *gin.Context) {
	page := utils.AtoiDefault(c.Query("page"), 1)
	size := utils.AtoiDefault(c.Query("page_size"), 20)

	items, total, err := h.comments.Queue(c.Request.Context(), c.Query("status"), page, size)
	if err != nil {
		failErr(c, err, "failed to list comments")
		return
	}
	page, size = utils.ClampPage(page, size, 100)
	totalPages := int((total + int64(size) - 1) / int64(size))
	ok(c, http.StatusOK, QueueResponse{
		Success:  true,
		Comments: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   size,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// ModerateComment godoc
// @ID          moderateComment
// @Summary     Set the moderation status of a comment
// @Tags        Moderation
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path  string                     true  "Comment ID"
// @Param       body  body  handlers.ModerateRequest   true  "New status"
//
// @Success     200  {object} handlers.ModerateResponse
// @Failure     400  {object} handlers.ErrorResponse "Invalid status"
// @Failure     401  {object} handlers.ErrorResponse "Bad credential"
// @Failure     404  {object} handlers.ErrorResponse "Comment not found"
// @Failure     503  {object} handlers.ErrorResponse "Store not configured or unavailable"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /comments/moderate/{id} [patch]
func (h *Handlers) ModerateComment(c *gin.Context) {
	var req ModerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, ErrorResponse{Code: ErrCodeBadRequest, Message: "invalid JSON body", Field: "status"})
		return
	}

	cm, err := h.comments.Moderate(c.Request.Context(), c.Param("id"), req.Status, req.ModeratedBy)
	if err != nil {
		failErr(c, err, "failed to moderate comment")
		return
	}
	h.metrics.Moderated(string(cm.Status))
	middleware.LoggerFrom(c).Info().
		Str("comment_id", cm.ID).
		Str("status", string(cm.Status)).
		Msg("comment moderated")
	ok(c, http.StatusOK, ModerateResponse{Success: true, Message: "Comment " + string(cm.Status), Comment: cm})
}

// DeleteComment godoc
// @ID          deleteComment
// @Summary     Delete a comment and its replies
// @Description Idempotent: deleting a missing comment succeeds with deleted=0.
// @Tags        Moderation
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Comment ID"
//
// @Success     200  {object} handlers.DeleteResponse
// @Failure     401  {object} handlers.ErrorResponse "Bad credential"
// @Failure     503  {object} handlers.ErrorResponse "Store not configured or unavailable"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /comments/moderate/{id} [delete]
func (h *Handlers) DeleteComment(c *gin.Context) {
	n, err := h.comments.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err, "failed to delete comment")
		return
	}
	if n > 0 {
		h.metrics.Moderated("deleted")
		middleware.LoggerFrom(c).Info().Str("comment_id", c.Param("id")).Int64("deleted", n).Msg("comment deleted")
	}
	ok(c, http.StatusOK, DeleteResponse{Success: true, Message: "Comment deleted", Deleted: n})
}
