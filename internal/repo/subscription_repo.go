// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for push
// subscriptions, keyed by endpoint URL.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-blog-backend/internal/domain"
)

// UpsertSubscription stores s, replacing any existing row with the same
// endpoint. CreatedAt is preserved on overwrite.
func UpsertSubscription(ctx context.Context, db *gorm.DB, s *domain.PushSubscription) error {
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"expiration_time", "p256dh", "auth", "user_agent", "updated_at"}),
	}).Create(s).Error
}

// DeleteSubscription removes the subscription for endpoint and reports
// whether a row was deleted. A missing endpoint is not an error.
func DeleteSubscription(ctx context.Context, db *gorm.DB, endpoint string) (bool, error) {
	res := db.WithContext(ctx).Where("endpoint = ?", endpoint).Delete(&domain.PushSubscription{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// GetSubscription fetches one subscription, or ErrNotFound.
func GetSubscription(ctx context.Context, db *gorm.DB, endpoint string) (*domain.PushSubscription, error) {
	var s domain.PushSubscription
	if err := db.WithContext(ctx).Where("endpoint = ?", endpoint).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// CountSubscriptions returns the number of stored subscriptions.
func CountSubscriptions(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.PushSubscription{}).Count(&n).Error
	return n, err
}

// ListSubscriptions returns every stored subscription ordered by creation time.
func ListSubscriptions(ctx context.Context, db *gorm.DB) ([]domain.PushSubscription, error) {
	var out []domain.PushSubscription
	err := db.WithContext(ctx).Order("created_at asc").Find(&out).Error
	return out, err
}
