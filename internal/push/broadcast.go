package push

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/go-blog-backend/internal/domain"
)

// BroadcastReport counts the outcome of a broadcast.
type BroadcastReport struct {
	Delivered int `json:"delivered"`
	Expired   int `json:"expired"`
	Failed    int `json:"failed"`
}

// Sender is the single-subscription delivery used by Broadcaster.
type Sender interface {
	Configured() bool
	Send(ctx context.Context, sub domain.PushSubscription, p Payload) (Result, error)
}

var _ Sender = (*Dispatcher)(nil)

// Broadcaster sends one payload to every registered subscription with
// bounded concurrency and prunes endpoints reported as expired.
type Broadcaster struct {
	Registry    Registry
	Sender      Sender
	Concurrency int
	Log         zerolog.Logger
	// OnResult, when set, is called once per delivery attempt.
	OnResult func(Result)
}

// Broadcast delivers p to all subscriptions. Individual delivery failures
// are counted, not returned; the error is non-nil only when the registry
// cannot be read or the sender is not configured.
func (b *Broadcaster) Broadcast(ctx context.Context, p Payload) (BroadcastReport, error) {
	var rep BroadcastReport
	if !b.Sender.Configured() {
		return rep, ErrNotConfigured
	}
	subs, err := b.Registry.All(ctx)
	if err != nil {
		return rep, err
	}

	limit := b.Concurrency
	if limit < 1 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var mu sync.Mutex
	for _, sub := range subs {
		sub := sub
		g.Go(func() error {
			res, err := b.Sender.Send(gctx, sub, p)
			if b.OnResult != nil {
				b.OnResult(res)
			}
			switch res {
			case Delivered:
			case Expired:
				if _, rerr := b.Registry.Remove(gctx, sub.Endpoint); rerr != nil {
					b.Log.Warn().Err(rerr).Str("endpoint", sub.Endpoint).Msg("prune expired subscription")
				}
			default:
				b.Log.Warn().Err(err).Str("endpoint", sub.Endpoint).Str("result", res.String()).Msg("push delivery failed")
			}

			mu.Lock()
			switch res {
			case Delivered:
				rep.Delivered++
			case Expired:
				rep.Expired++
			default:
				rep.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return rep, nil
}
