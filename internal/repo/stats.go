// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-blog-backend/internal/domain"
)

// CommentsStats returns aggregate metadata for the approved comments of a
// post: the number of rows and the latest moderation timestamp among them.
//
// Any approval, un-approval or delete of a visible comment changes at least
// one of the two values, which makes them suitable as a weak validator.
// When the post has no approved comments, count is 0 and lastModeratedAt is nil.
func CommentsStats(ctx context.Context, db *gorm.DB, postID string) (count int64, lastModeratedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Comment{}).
		Where("post_id = ? AND status = ?", postID, domain.StatusApproved)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Latest moderated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		ModeratedAt *time.Time
	}
	if err = q.Select("moderated_at").
		Where("moderated_at IS NOT NULL").
		Order("moderated_at DESC").
		Limit(1).
		Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, row.ModeratedAt, nil
}
