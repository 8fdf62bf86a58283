// Package push manages browser push subscriptions and delivers Web Push
// notifications to them.
//
// A Registry stores subscriptions keyed by endpoint URL. Put is an upsert;
// removal happens on explicit unsubscribe or when delivery reports the
// endpoint as gone. Three backends are provided: in-process memory, a GORM
// table, and a Redis hash.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/tbourn/go-blog-backend/internal/domain"
	"github.com/tbourn/go-blog-backend/internal/repo"
)

// ErrSubscriptionNotFound is returned by Get for an unknown endpoint.
var ErrSubscriptionNotFound = errors.New("subscription not found")

// Registry is the subscription store used by handlers and the broadcaster.
// Implementations are safe for concurrent use.
type Registry interface {
	Put(ctx context.Context, sub domain.PushSubscription) error
	// Remove reports whether the endpoint was registered.
	Remove(ctx context.Context, endpoint string) (bool, error)
	Get(ctx context.Context, endpoint string) (domain.PushSubscription, error)
	Count(ctx context.Context) (int64, error)
	All(ctx context.Context) ([]domain.PushSubscription, error)
}

// ---------------------------------------------------------------------------
// Memory

// MemoryRegistry keeps subscriptions in process memory. State is lost on
// restart and not shared between instances.
type MemoryRegistry struct {
	mu   sync.RWMutex
	subs map[string]domain.PushSubscription
}

// NewMemoryRegistry returns an empty MemoryRegistry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{subs: make(map[string]domain.PushSubscription)}
}

func (m *MemoryRegistry) Put(_ context.Context, sub domain.PushSubscription) error {
	now := time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.subs[sub.Endpoint]; ok {
		sub.CreatedAt = prev.CreatedAt
	} else {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	m.subs[sub.Endpoint] = sub
	return nil
}

func (m *MemoryRegistry) Remove(_ context.Context, endpoint string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.subs[endpoint]
	delete(m.subs, endpoint)
	return ok, nil
}

func (m *MemoryRegistry) Get(_ context.Context, endpoint string) (domain.PushSubscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subs[endpoint]
	if !ok {
		return domain.PushSubscription{}, ErrSubscriptionNotFound
	}
	return s, nil
}

func (m *MemoryRegistry) Count(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.subs)), nil
}

func (m *MemoryRegistry) All(_ context.Context) ([]domain.PushSubscription, error) {
	m.mu.RLock()
	out := make([]domain.PushSubscription, 0, len(m.subs))
	for _, s := range m.subs {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out, nil
}

// ---------------------------------------------------------------------------
// Database

// DBRegistry stores subscriptions in the push_subscriptions table.
type DBRegistry struct {
	DB *gorm.DB
}

// NewDBRegistry returns a registry over db. The table must already exist
// (see repo.AutoMigrate).
func NewDBRegistry(db *gorm.DB) *DBRegistry { return &DBRegistry{DB: db} }

func (r *DBRegistry) Put(ctx context.Context, sub domain.PushSubscription) error {
	return repo.UpsertSubscription(ctx, r.DB, &sub)
}

func (r *DBRegistry) Remove(ctx context.Context, endpoint string) (bool, error) {
	return repo.DeleteSubscription(ctx, r.DB, endpoint)
}

func (r *DBRegistry) Get(ctx context.Context, endpoint string) (domain.PushSubscription, error) {
	s, err := repo.GetSubscription(ctx, r.DB, endpoint)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.PushSubscription{}, ErrSubscriptionNotFound
	}
	if err != nil {
		return domain.PushSubscription{}, err
	}
	return *s, nil
}

func (r *DBRegistry) Count(ctx context.Context) (int64, error) {
	return repo.CountSubscriptions(ctx, r.DB)
}

func (r *DBRegistry) All(ctx context.Context) ([]domain.PushSubscription, error) {
	return repo.ListSubscriptions(ctx, r.DB)
}

// ---------------------------------------------------------------------------
// Redis

// DefaultRedisKey is the hash holding endpoint -> JSON subscription.
const DefaultRedisKey = "push:subscriptions"

// RedisRegistry stores subscriptions as fields of a single Redis hash so
// every instance sees the same set.
type RedisRegistry struct {
	client redis.Cmdable
	key    string
}

// NewRedisRegistry returns a registry over client using DefaultRedisKey.
func NewRedisRegistry(client redis.Cmdable) *RedisRegistry {
	return &RedisRegistry{client: client, key: DefaultRedisKey}
}

// redisRecord is the stored JSON form; it keeps the server-side fields that
// the public JSON form of a subscription omits.
type redisRecord struct {
	domain.PushSubscription
	UserAgent string    `json:"userAgent,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (r *RedisRegistry) Put(ctx context.Context, sub domain.PushSubscription) error {
	now := time.Now().UTC()
	rec := redisRecord{PushSubscription: sub, UserAgent: sub.UserAgent, CreatedAt: now, UpdatedAt: now}
	if prev, err := r.Get(ctx, sub.Endpoint); err == nil {
		rec.CreatedAt = prev.CreatedAt
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.client.HSet(ctx, r.key, sub.Endpoint, b).Err()
}

func (r *RedisRegistry) Remove(ctx context.Context, endpoint string) (bool, error) {
	n, err := r.client.HDel(ctx, r.key, endpoint).Result()
	return n > 0, err
}

func (r *RedisRegistry) Get(ctx context.Context, endpoint string) (domain.PushSubscription, error) {
	raw, err := r.client.HGet(ctx, r.key, endpoint).Result()
	if errors.Is(err, redis.Nil) {
		return domain.PushSubscription{}, ErrSubscriptionNotFound
	}
	if err != nil {
		return domain.PushSubscription{}, err
	}
	return decodeRecord(raw)
}

func (r *RedisRegistry) Count(ctx context.Context) (int64, error) {
	return r.client.HLen(ctx, r.key).Result()
}

func (r *RedisRegistry) All(ctx context.Context) ([]domain.PushSubscription, error) {
	m, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.PushSubscription, 0, len(m))
	for _, raw := range m {
		s, err := decodeRecord(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out, nil
}

func decodeRecord(raw string) (domain.PushSubscription, error) {
	var rec redisRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return domain.PushSubscription{}, err
	}
	s := rec.PushSubscription
	s.UserAgent = rec.UserAgent
	s.CreatedAt = rec.CreatedAt
	s.UpdatedAt = rec.UpdatedAt
	return s, nil
}
