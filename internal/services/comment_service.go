// Package services – CommentService
//
// This file implements CommentService, the application-level component that
// owns the comment lifecycle: rate-limited submission, validation, spam
// scoring, the public read path, and moderation (status changes and cascade
// deletes).
//
// The public read path is cached per post for a short TTL. A cached list is
// served only while the post's approved aggregates still match the ones it
// was built from, so moderation done by another instance is picked up on the
// next read. Local moderation also drops the entry and bumps the post's
// generation, which keeps a read that raced it from re-caching its result.
//
// Observability: all public methods are OpenTelemetry-instrumented.
package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"gorm.io/gorm"

	"github.com/tbourn/go-blog-backend/internal/content"
	"github.com/tbourn/go-blog-backend/internal/domain"
	"github.com/tbourn/go-blog-backend/internal/ratelimit"
	"github.com/tbourn/go-blog-backend/internal/repo"
	"github.com/tbourn/go-blog-backend/internal/spam"
	"github.com/tbourn/go-blog-backend/internal/utils"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultModerator  = "admin"
	moderatorMaxRunes = 100
	cacheMaxPosts     = 512
	queueMaxPageSize  = 100
)

// PublicReply is a reply as shown to readers.
type PublicReply struct {
	ID          string    `json:"id"`
	Author      string    `json:"author"`
	Content     string    `json:"content"`
	ContentHTML string    `json:"contentHtml"`
	CreatedAt   time.Time `json:"createdAt"`
}

// PublicComment is a top-level comment as shown to readers, with its
// approved replies oldest first. Email, IP and user agent are never exposed.
type PublicComment struct {
	PublicReply
	Replies []PublicReply `json:"replies"`
}

// ApprovedList is the public view of a post along with the aggregates it
// was checked against. Comments are never older than Count and
// LastModeratedAt describe, so an ETag derived from them is safe to reuse.
type ApprovedList struct {
	Comments        []PublicComment
	Count           int64
	LastModeratedAt *time.Time
}

func (l ApprovedList) matches(count int64, last *time.Time) bool {
	if l.Count != count || (l.LastModeratedAt == nil) != (last == nil) {
		return false
	}
	return last == nil || l.LastModeratedAt.Equal(*last)
}

// CommentService coordinates comment persistence and moderation.
type CommentService struct {
	DB        *gorm.DB
	Limiter   ratelimit.Limiter
	Validator Validator
	Spam      *spam.Scorer
	Now       func() time.Time

	cache *expirable.LRU[string, ApprovedList]

	mu   sync.Mutex
	gens map[string]uint64 // per post, bumped on every local invalidation
}

// NewCommentService wires a CommentService. A nil db leaves the service in
// the "not configured" state; cacheTTL <= 0 disables the read cache.
func NewCommentService(db *gorm.DB, limiter ratelimit.Limiter, scorer *spam.Scorer, cacheTTL time.Duration) *CommentService {
	s := &CommentService{DB: db, Limiter: limiter, Spam: scorer}
	if cacheTTL > 0 {
		s.cache = expirable.NewLRU[string, ApprovedList](cacheMaxPosts, nil, cacheTTL)
	}
	return s
}

func (s *CommentService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Submit runs a submission through the pipeline: rate limit, honeypot,
// validation, parent checks, spam scoring, persistence.
//
// A filled honeypot returns (nil, nil): the caller reports success and
// nothing is stored.
func (s *CommentService) Submit(ctx context.Context, in SubmitInput) (*domain.Comment, error) {
	tr := otel.Tracer("services/CommentService")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(attribute.String("post.id", in.PostID)),
	)
	defer span.End()

	if s.Limiter != nil {
		ok, err := s.Limiter.Allow(ctx, ratelimit.Key(in.IPAddress))
		if err != nil {
			span.RecordError(err)
			return nil, errors.Join(ErrStoreUnavailable, err)
		}
		if !ok {
			return nil, ErrRateLimited
		}
	}

	if strings.TrimSpace(in.Honeypot) != "" {
		span.SetAttributes(attribute.Bool("comment.honeypot", true))
		return nil, nil
	}

	draft, err := s.Validator.Validate(in)
	if err != nil {
		return nil, err
	}
	if s.DB == nil {
		return nil, ErrNotConfigured
	}

	if draft.ParentID != nil {
		if err := s.checkParent(ctx, draft); err != nil {
			return nil, err
		}
	}

	c := &domain.Comment{
		PostID:    draft.PostID,
		ParentID:  draft.ParentID,
		Author:    draft.Author,
		Email:     draft.Email,
		Content:   draft.Content,
		IPAddress: in.IPAddress,
		UserAgent: truncateRunes(in.UserAgent, 512),
	}
	if s.Spam != nil {
		v := s.Spam.Score(draft.Author, draft.Content)
		c.SpamScore = v.Score
		span.SetAttributes(attribute.Float64("comment.spam_score", v.Score))
	}
	if err := repo.CreateComment(ctx, s.DB, c); err != nil {
		span.RecordError(err)
		return nil, storeErr(err)
	}
	return c, nil
}

// checkParent enforces the two-level tree: the parent must exist, belong to
// the same post, and not be a reply itself.
func (s *CommentService) checkParent(ctx context.Context, d CommentDraft) error {
	parent, err := repo.GetComment(ctx, s.DB, *d.ParentID)
	if errors.Is(err, repo.ErrNotFound) {
		return invalid("parentCommentId", "parent comment not found")
	}
	if err != nil {
		return storeErr(err)
	}
	if parent.PostID != d.PostID {
		return invalid("parentCommentId", "parent comment belongs to another post")
	}
	if parent.IsReply() {
		return invalid("parentCommentId", "replies cannot be nested")
	}
	return nil
}

// ListApproved returns the approved comments of a post, newest first, each
// with its approved replies.
func (s *CommentService) ListApproved(ctx context.Context, postID string) ([]PublicComment, error) {
	l, err := s.Approved(ctx, postID)
	if err != nil {
		return nil, err
	}
	return l.Comments, nil
}

// Approved is ListApproved plus the aggregates the result is current for.
func (s *CommentService) Approved(ctx context.Context, postID string) (ApprovedList, error) {
	tr := otel.Tracer("services/CommentService")
	ctx, span := tr.Start(ctx, "ListApproved",
		trace.WithAttributes(attribute.String("post.id", postID)),
	)
	defer span.End()

	postID = strings.TrimSpace(postID)
	if postID == "" {
		return ApprovedList{}, invalid("post", "post slug is required")
	}
	if s.DB == nil {
		return ApprovedList{}, ErrNotConfigured
	}

	// Aggregates first: the list read below can only be newer than them.
	count, last, err := repo.CommentsStats(ctx, s.DB, postID)
	if err != nil {
		span.RecordError(err)
		return ApprovedList{}, storeErr(err)
	}
	if s.cache != nil {
		if cached, ok := s.cache.Get(postID); ok && cached.matches(count, last) {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return cached, nil
		}
	}
	gen := s.generation(postID)

	top, replies, err := repo.ListApproved(ctx, s.DB, postID)
	if err != nil {
		span.RecordError(err)
		return ApprovedList{}, storeErr(err)
	}

	out := make([]PublicComment, 0, len(top))
	pos := make(map[string]int, len(top))
	for _, c := range top {
		pos[c.ID] = len(out)
		out = append(out, PublicComment{PublicReply: toPublic(c), Replies: []PublicReply{}})
	}
	for _, r := range replies {
		if i, ok := pos[*r.ParentID]; ok {
			out[i].Replies = append(out[i].Replies, toPublic(r))
		}
	}

	l := ApprovedList{Comments: out, Count: count, LastModeratedAt: last}
	s.store(postID, gen, l)
	return l, nil
}

// Stats exposes the approved-comment aggregates of a post for ETags.
func (s *CommentService) Stats(ctx context.Context, postID string) (int64, *time.Time, error) {
	if s.DB == nil {
		return 0, nil, ErrNotConfigured
	}
	n, at, err := repo.CommentsStats(ctx, s.DB, postID)
	return n, at, storeErr(err)
}

// Moderate sets the status of a comment. An empty moderator defaults to
// "admin". Invalid input is rejected before the store is touched.
func (s *CommentService) Moderate(ctx context.Context, id, rawStatus, moderator string) (*domain.Comment, error) {
	tr := otel.Tracer("services/CommentService")
	ctx, span := tr.Start(ctx, "Moderate",
		trace.WithAttributes(
			attribute.String("comment.id", id),
			attribute.String("comment.status", rawStatus),
		),
	)
	defer span.End()

	status, ok := domain.ParseStatus(strings.TrimSpace(rawStatus))
	if !ok {
		return nil, invalid("status", "status must be one of: pending, approved, rejected, spam")
	}
	moderator = strings.TrimSpace(moderator)
	if moderator == "" {
		moderator = defaultModerator
	}
	if utf8.RuneCountInString(moderator) > moderatorMaxRunes {
		return nil, invalid("moderatedBy", "moderatedBy is too long")
	}
	if strings.TrimSpace(id) == "" {
		return nil, invalid("id", "comment id is required")
	}
	if s.DB == nil {
		return nil, ErrNotConfigured
	}

	c, err := repo.SetStatus(ctx, s.DB, id, status, moderator, s.now())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrCommentNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, storeErr(err)
	}
	s.invalidate(c.PostID)
	return c, nil
}

// Delete removes a comment and its replies. Deleting a missing comment is a
// no-op and returns 0.
func (s *CommentService) Delete(ctx context.Context, id string) (int64, error) {
	tr := otel.Tracer("services/CommentService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(attribute.String("comment.id", id)),
	)
	defer span.End()

	if strings.TrimSpace(id) == "" {
		return 0, invalid("id", "comment id is required")
	}
	if s.DB == nil {
		return 0, ErrNotConfigured
	}

	target, err := repo.GetComment(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		span.RecordError(err)
		return 0, storeErr(err)
	}

	n, err := repo.DeleteCascade(ctx, s.DB, id)
	if err != nil {
		span.RecordError(err)
		return 0, storeErr(err)
	}
	span.SetAttributes(attribute.Int64("comment.deleted", n))
	s.invalidate(target.PostID)
	return n, nil
}

// Queue returns a page of the moderation queue. An empty status lists
// every state, pending first.
func (s *CommentService) Queue(ctx context.Context, rawStatus string, page, pageSize int) ([]domain.Comment, int64, error) {
	tr := otel.Tracer("services/CommentService")
	ctx, span := tr.Start(ctx, "Queue",
		trace.WithAttributes(
			attribute.String("comment.status", rawStatus),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	var status domain.Status
	if raw := strings.TrimSpace(rawStatus); raw != "" {
		st, ok := domain.ParseStatus(raw)
		if !ok {
			return nil, 0, invalid("status", "status must be one of: pending, approved, rejected, spam")
		}
		status = st
	}
	if s.DB == nil {
		return nil, 0, ErrNotConfigured
	}

	page, pageSize = utils.ClampPage(page, pageSize, queueMaxPageSize)
	total, err := repo.CountForModeration(ctx, s.DB, status)
	if err != nil {
		return nil, 0, storeErr(err)
	}
	if total == 0 {
		return []domain.Comment{}, 0, nil
	}
	items, err := repo.ListForModeration(ctx, s.DB, status, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, storeErr(err)
	}
	return items, total, nil
}

func (s *CommentService) generation(postID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[postID]
}

// store caches l unless the post was invalidated since gen was read.
func (s *CommentService) store(postID string, gen uint64, l ApprovedList) {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gens[postID] == gen {
		s.cache.Add(postID, l)
	}
}

func (s *CommentService) invalidate(postID string) {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gens == nil {
		s.gens = make(map[string]uint64)
	}
	s.gens[postID]++
	s.cache.Remove(postID)
}

func toPublic(c domain.Comment) PublicReply {
	return PublicReply{
		ID:          c.ID,
		Author:      c.Author,
		Content:     c.Content,
		ContentHTML: content.Render(c.Content),
		CreatedAt:   c.CreatedAt,
	}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
