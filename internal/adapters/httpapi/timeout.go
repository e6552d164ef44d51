package httpapi

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// timeoutHandler bounds every request with a deadline. When the handler
// chain exceeds it the client receives 408 with the usual JSON error body
// instead of a silently dropped connection. The wrapped request carries a
// context that expires at the deadline, so long-running work downstream
// can bail out on its own.
//
// Works like http.TimeoutHandler, which cannot be used directly because it
// hard-codes 503.
type timeoutHandler struct {
	next http.Handler
	dt   time.Duration
}

func newTimeoutHandler(next http.Handler, dt time.Duration) http.Handler {
	return &timeoutHandler{next: next, dt: dt}
}

func (h *timeoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.dt)
	defer cancel()
	r = r.WithContext(ctx)

	tw := &timeoutWriter{header: make(http.Header)}
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.next.ServeHTTP(tw, r)
	}()

	select {
	case <-done:
		tw.mu.Lock()
		defer tw.mu.Unlock()
		dst := w.Header()
		for k, v := range tw.header {
			dst[k] = v
		}
		code := tw.code
		if code == 0 {
			code = http.StatusOK
		}
		w.WriteHeader(code)
		w.Write(tw.body.Bytes())
	case <-ctx.Done():
		tw.mu.Lock()
		tw.timedOut = true
		tw.mu.Unlock()
		log.Warn().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("deadline", h.dt).
			Msg("Request deadline exceeded")
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusRequestTimeout)
		w.Write([]byte(`{"error":"Request Timeout"}`))
	}
}

// timeoutWriter buffers the handler's response so nothing reaches the wire
// after the 408 has been sent.
type timeoutWriter struct {
	mu       sync.Mutex
	header   http.Header
	body     bytes.Buffer
	code     int
	timedOut bool
}

func (tw *timeoutWriter) Header() http.Header { return tw.header }

func (tw *timeoutWriter) Write(p []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return 0, http.ErrHandlerTimeout
	}
	return tw.body.Write(p)
}

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut || tw.code != 0 {
		return
	}
	tw.code = code
}
