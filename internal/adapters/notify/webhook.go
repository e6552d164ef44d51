// Package notify delivers ban and appeal events to an external chat
// webhook as a detached task: at-least-once, no retry, never on the
// request path.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gatewarden/gatewarden/internal/ports"
)

const (
	defaultQueueSize  = 256
	deliveryTimeout   = 10 * time.Second
	shutdownGracetime = 5 * time.Second
)

// WebhookNotifier posts events as JSON to a configured webhook URL. Events
// are queued on a buffered channel and delivered by one worker goroutine;
// when the queue is full new events are dropped with a log line rather than
// blocking a request.
type WebhookNotifier struct {
	url    string
	client *http.Client

	queue     chan ports.Event
	closeOnce sync.Once
	done      chan struct{}
}

// NewWebhookNotifier starts the delivery worker. queueSize <= 0 uses the
// default.
func NewWebhookNotifier(url string, queueSize int) *WebhookNotifier {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	n := &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: deliveryTimeout},
		queue:  make(chan ports.Event, queueSize),
		done:   make(chan struct{}),
	}
	go n.worker()
	return n
}

// Notify enqueues an event. Never blocks.
func (n *WebhookNotifier) Notify(event ports.Event) {
	select {
	case n.queue <- event:
	default:
		log.Warn().Str("event", string(event.Kind)).Msg("Notification queue full, event dropped")
	}
}

func (n *WebhookNotifier) worker() {
	defer close(n.done)
	for event := range n.queue {
		n.deliver(event)
	}
}

type webhookPayload struct {
	Event           string `json:"event"`
	Origin          string `json:"origin,omitempty"`
	Reason          string `json:"reason,omitempty"`
	DurationMinutes int    `json:"durationMinutes,omitempty"`
	Detail          string `json:"detail,omitempty"`
	Timestamp       string `json:"timestamp"`
}

func (n *WebhookNotifier) deliver(event ports.Event) {
	payload := webhookPayload{
		Event:           string(event.Kind),
		Origin:          event.Origin,
		Reason:          event.Reason,
		DurationMinutes: int(event.Duration.Minutes()),
		Detail:          event.Detail,
		Timestamp:       event.Timestamp.Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode webhook payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		log.Error().Err(err).Msg("Failed to build webhook request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("event", payload.Event).Msg("Webhook delivery failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Warn().Int("status", resp.StatusCode).Str("event", payload.Event).Msg("Webhook delivery rejected")
		return
	}
	log.Debug().Str("event", payload.Event).Str("origin", event.Origin).Msg("Webhook delivered")
}

// Close drains queued events, waiting at most a grace period for in-flight
// deliveries.
func (n *WebhookNotifier) Close() {
	n.closeOnce.Do(func() {
		close(n.queue)
		select {
		case <-n.done:
		case <-time.After(shutdownGracetime):
			log.Warn().Msg("Notifier shutdown timed out, undelivered events dropped")
		}
	})
}
