// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Comment
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business rules, only persistence
// and query composition.
//
// Error semantics:
//   - When a comment is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Functions:
//
//   - CreateComment(ctx, db, c) -> error
//     Inserts a comment in pending state with a UUID and UTC timestamp.
//
//   - GetComment(ctx, db, id) -> *domain.Comment, error
//
//   - ListApproved(ctx, db, postID) -> top, replies, error
//     Reads approved top-level comments (newest first) and their approved
//     replies (oldest first) from one consistent snapshot.
//
//   - SetStatus(ctx, db, id, status, moderator, at) -> *domain.Comment, error
//     Writes status, moderated_at and moderated_by in one UPDATE.
//
//   - DeleteCascade(ctx, db, id) -> int64, error
//     Removes a comment and its direct replies atomically.
//
//   - ListForModeration / CountForModeration
//     Paginated moderation queue, pending first.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-blog-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// queueOrder sorts the moderation queue so work that needs attention comes first.
const queueOrder = "CASE status WHEN 'pending' THEN 0 WHEN 'spam' THEN 1 WHEN 'approved' THEN 2 ELSE 3 END"

// CreateComment inserts c as a new pending comment. ID and CreatedAt are
// assigned here and overwrite whatever the caller set; moderation fields are
// cleared. On success c reflects the persisted row.
func CreateComment(ctx context.Context, db *gorm.DB, c *domain.Comment) error {
	c.ID = uuid.NewString()
	c.Status = domain.StatusPending
	c.CreatedAt = time.Now().UTC()
	c.ModeratedAt = nil
	c.ModeratedBy = nil
	return db.WithContext(ctx).Create(c).Error
}

// GetComment fetches a single comment by ID. If the record does not exist,
// it returns ErrNotFound.
func GetComment(ctx context.Context, db *gorm.DB, id string) (*domain.Comment, error) {
	var c domain.Comment
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListApproved returns the approved top-level comments of a post ordered by
// creation time descending, and the approved replies to those comments
// ordered by creation time ascending. Replies whose parent is not itself an
// approved top-level comment are not returned.
func ListApproved(ctx context.Context, db *gorm.DB, postID string) (top, replies []domain.Comment, err error) {
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("post_id = ? AND status = ? AND parent_id IS NULL", postID, domain.StatusApproved).
			Order("created_at desc").
			Find(&top).Error; err != nil {
			return err
		}
		if len(top) == 0 {
			return nil
		}
		ids := make([]string, 0, len(top))
		for _, c := range top {
			ids = append(ids, c.ID)
		}
		return tx.
			Where("post_id = ? AND status = ? AND parent_id IN ?", postID, domain.StatusApproved, ids).
			Order("created_at asc").
			Find(&replies).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return top, replies, nil
}

// SetStatus moves a comment to status, stamping moderator and at in the same
// statement so the three fields never diverge. It returns the updated row,
// or ErrNotFound when no comment has the given id.
func SetStatus(ctx context.Context, db *gorm.DB, id string, status domain.Status, moderator string, at time.Time) (*domain.Comment, error) {
	var out *domain.Comment
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Comment{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"status":       status,
				"moderated_at": at.UTC(),
				"moderated_by": moderator,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		c, err := GetComment(ctx, tx, id)
		if err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}

// DeleteCascade removes the comment with the given id together with every
// comment whose parent is id. Missing rows are not an error; the number of
// deleted rows is returned.
func DeleteCascade(ctx context.Context, db *gorm.DB, id string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? OR parent_id = ?", id, id).Delete(&domain.Comment{})
		if res.Error != nil {
			return res.Error
		}
		n = res.RowsAffected
		return nil
	})
	return n, err
}

// ListForModeration returns a page of comments for the moderation queue.
// An empty status lists every state, pending first; within a state the
// newest comments come first.
func ListForModeration(ctx context.Context, db *gorm.DB, status domain.Status, offset, limit int) ([]domain.Comment, error) {
	var out []domain.Comment
	q := db.WithContext(ctx).Model(&domain.Comment{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.
		Order(queueOrder).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountForModeration returns the number of comments in the queue for status
// (all states when empty).
func CountForModeration(ctx context.Context, db *gorm.DB, status domain.Status) (int64, error) {
	var total int64
	q := db.WithContext(ctx).Model(&domain.Comment{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Count(&total).Error
	return total, err
}
