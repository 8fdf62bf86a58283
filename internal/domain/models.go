// Package domain defines the persistence models for blog comments and web
// push subscriptions. These types are mapped with GORM and form the core data
// layer of the blog backend.
package domain

import "time"

// Status is the moderation state of a comment.
type Status string

// Moderation states. New submissions always start as StatusPending.
const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusSpam     Status = "spam"
)

// Statuses lists every valid moderation state in queue order.
var Statuses = []Status{StatusPending, StatusApproved, StatusRejected, StatusSpam}

// Valid reports whether s is one of the four moderation states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusSpam:
		return true
	}
	return false
}

// ParseStatus converts raw input into a Status, reporting false for
// anything outside the enumerated set. Matching is exact.
func ParseStatus(raw string) (Status, bool) {
	s := Status(raw)
	return s, s.Valid()
}

// Comment is a reader comment attached to a blog post. Comments form a flat
// two-level tree: top-level comments (ParentID nil) and their direct replies.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - PostID: slug of the post the comment belongs to (indexed).
//   - ParentID: optional parent comment; replies never have replies.
//   - Author / Email / Content: normalized submitter input.
//   - Status: moderation state (enforced by DB constraint).
//   - SpamScore: heuristic score in [0,1] computed at submission.
//   - CreatedAt: set once at creation.
//   - ModeratedAt / ModeratedBy: set together by a moderation action.
//   - IPAddress / UserAgent: captured from the submitting request.
type Comment struct {
	ID          string     `json:"id"                    gorm:"type:char(36);primaryKey"`
	PostID      string     `json:"postId"                gorm:"type:varchar(255);not null;index:idx_post_comments,priority:1"`
	ParentID    *string    `json:"parentCommentId"       gorm:"type:char(36);index"`
	Author      string     `json:"author"                gorm:"type:varchar(100);not null"`
	Email       string     `json:"email"                 gorm:"type:varchar(320);not null"`
	Content     string     `json:"content"               gorm:"type:text;not null"`
	Status      Status     `json:"status"                gorm:"type:varchar(16);not null;default:'pending';index:idx_post_comments,priority:2;check:status IN ('pending','approved','rejected','spam')"`
	SpamScore   float64    `json:"spamScore"             gorm:"not null;default:0"`
	CreatedAt   time.Time  `json:"createdAt"             gorm:"not null;autoCreateTime:false"`
	ModeratedAt *time.Time `json:"moderatedAt,omitempty"`
	ModeratedBy *string    `json:"moderatedBy,omitempty" gorm:"type:varchar(100)"`
	IPAddress   string     `json:"ipAddress"             gorm:"type:varchar(64)"`
	UserAgent   string     `json:"userAgent"             gorm:"type:varchar(512)"`
}

// TableName returns the database table name for Comment.
func (Comment) TableName() string { return "comments" }

// IsReply reports whether the comment answers another comment.
func (c Comment) IsReply() bool { return c.ParentID != nil && *c.ParentID != "" }

// SubscriptionKeys holds the client encryption material of a push
// subscription, as issued by the browser's PushManager.
type SubscriptionKeys struct {
	P256dh string `json:"p256dh" gorm:"column:p256dh;type:varchar(255);not null"`
	Auth   string `json:"auth"   gorm:"column:auth;type:varchar(255);not null"`
}

// PushSubscription is a browser push registration keyed by its endpoint URL.
// Registering the same endpoint again overwrites the stored record.
type PushSubscription struct {
	Endpoint       string           `json:"endpoint"                 gorm:"type:varchar(2048);primaryKey"`
	ExpirationTime *int64           `json:"expirationTime,omitempty"`
	Keys           SubscriptionKeys `json:"keys"                     gorm:"embedded"`
	UserAgent      string           `json:"-"                        gorm:"type:varchar(512)"`
	CreatedAt      time.Time        `json:"-"`
	UpdatedAt      time.Time        `json:"-"`
}

// TableName returns the database table name for PushSubscription.
func (PushSubscription) TableName() string { return "push_subscriptions" }
