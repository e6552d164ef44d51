package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/ports"
)

func TestWebhookNotifier_DeliversBanEvent(t *testing.T) {
	var mu sync.Mutex
	var received []webhookPayload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p webhookPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		mu.Lock()
		received = append(received, p)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, 8)
	n.Notify(ports.Event{
		Kind:      ports.EventBan,
		Origin:    "203.0.113.5",
		Reason:    "flood",
		Duration:  30 * time.Minute,
		Timestamp: time.Now().UTC(),
	})
	n.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "ban", received[0].Event)
	assert.Equal(t, "203.0.113.5", received[0].Origin)
	assert.Equal(t, "flood", received[0].Reason)
	assert.Equal(t, 30, received[0].DurationMinutes)
}

func TestWebhookNotifier_OverflowDropsInsteadOfBlocking(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	n := NewWebhookNotifier(srv.URL, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			n.Notify(ports.Event{Kind: ports.EventBan, Origin: "203.0.113.5"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full queue")
	}
}

func TestWebhookNotifier_FailedDeliveryIsSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, 8)
	n.Notify(ports.Event{Kind: ports.EventAppeal, Origin: "203.0.113.5"})
	n.Close()

	// Close is idempotent
	n.Close()
}
