package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/tbourn/go-blog-backend/internal/domain"
)

// Result classifies one delivery attempt.
type Result int

const (
	// Delivered means the push service accepted the message.
	Delivered Result = iota
	// Expired means the endpoint is permanently gone (404/410); the
	// subscription must be removed from the registry.
	Expired
	// Failed is any other error. No retry is attempted here.
	Failed
	// NotConfigured means VAPID keys are missing; nothing was sent.
	NotConfigured
)

func (r Result) String() string {
	switch r {
	case Delivered:
		return "delivered"
	case Expired:
		return "expired"
	case Failed:
		return "failed"
	case NotConfigured:
		return "not_configured"
	}
	return "unknown"
}

var (
	// ErrNotConfigured accompanies the NotConfigured result.
	ErrNotConfigured = errors.New("push notifications not configured")
	// ErrInvalidSubscription is returned for subscriptions without an
	// endpoint or keys.
	ErrInvalidSubscription = errors.New("invalid subscription")
)

// Payload defaults applied when a field is left empty.
const (
	DefaultIcon = "/icon-192.png"
	DefaultURL  = "/"
	DefaultTag  = "notification"
)

// Payload is the JSON document delivered to the service worker.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon"`
	URL   string `json:"url"`
	Tag   string `json:"tag"`
}

// WithDefaults fills empty optional fields.
func (p Payload) WithDefaults() Payload {
	if p.Icon == "" {
		p.Icon = DefaultIcon
	}
	if p.URL == "" {
		p.URL = DefaultURL
	}
	if p.Tag == "" {
		p.Tag = DefaultTag
	}
	return p
}

// Config holds VAPID material and delivery options.
type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subject         string        // "mailto:..." or "https://..."
	TTL             time.Duration // how long the push service may hold the message
	HTTPClient      webpush.HTTPClient
}

// sendFunc matches webpush.SendNotificationWithContext.
type sendFunc func(ctx context.Context, msg []byte, s *webpush.Subscription, o *webpush.Options) (*http.Response, error)

// Dispatcher delivers payloads to single subscriptions.
type Dispatcher struct {
	cfg  Config
	send sendFunc
}

// NewDispatcher returns a Dispatcher using the Web Push protocol.
func NewDispatcher(cfg Config) *Dispatcher {
	return &Dispatcher{cfg: cfg, send: webpush.SendNotificationWithContext}
}

// Configured reports whether VAPID keys are present.
func (d *Dispatcher) Configured() bool {
	return d.cfg.VAPIDPublicKey != "" && d.cfg.VAPIDPrivateKey != ""
}

// Send encrypts p for sub and posts it to the subscription endpoint.
// The returned error carries detail for logging; callers branch on Result.
func (d *Dispatcher) Send(ctx context.Context, sub domain.PushSubscription, p Payload) (Result, error) {
	if !d.Configured() {
		return NotConfigured, ErrNotConfigured
	}
	if sub.Endpoint == "" || sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		return Failed, ErrInvalidSubscription
	}

	msg, err := json.Marshal(p.WithDefaults())
	if err != nil {
		return Failed, err
	}

	resp, err := d.send(ctx, msg, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
	}, &webpush.Options{
		HTTPClient:      d.cfg.HTTPClient,
		Subscriber:      subscriber(d.cfg.Subject),
		TTL:             int(d.cfg.TTL / time.Second),
		VAPIDPublicKey:  d.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: d.cfg.VAPIDPrivateKey,
	})
	if err != nil {
		return Failed, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return Delivered, nil
	case resp.StatusCode == http.StatusGone, resp.StatusCode == http.StatusNotFound:
		return Expired, fmt.Errorf("push endpoint gone: status %d", resp.StatusCode)
	default:
		return Failed, fmt.Errorf("push service rejected message: status %d", resp.StatusCode)
	}
}

// subscriber strips the mailto: scheme; the library adds it back for
// anything that is not an https URL.
func subscriber(subject string) string {
	return strings.TrimPrefix(subject, "mailto:")
}
