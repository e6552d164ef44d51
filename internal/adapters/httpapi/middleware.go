package httpapi

import (
	"bytes"
	"context"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/gatewarden/gatewarden/internal/domain"
)

// Inspector is the slice of the pipeline the middleware needs.
type Inspector interface {
	Inspect(ctx context.Context, req *domain.RequestInfo) domain.Verdict
}

// DefenseMiddleware runs every request through the inspection pipeline
// before any handler sees it. Rejected requests are answered with the
// verdict's status and a structured JSON body; nothing about the detector
// internals leaks to the client.
func DefenseMiddleware(pipeline Inspector) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := buildRequestInfo(c)

		v := pipeline.Inspect(c.Request.Context(), req)
		if v.Allowed {
			c.Next()
			return
		}
		writeRejection(c, v)
	}
}

// buildRequestInfo snapshots the request for the detectors. The body is
// read up to one byte past the size cap, enough for the payload detector
// to prove the cap is exceeded, and restored for downstream handlers.
func buildRequestInfo(c *gin.Context) *domain.RequestInfo {
	var body []byte
	if c.Request.Body != nil && c.Request.Body != http.NoBody {
		b, err := io.ReadAll(io.LimitReader(c.Request.Body, domain.MaxBodyBytes+1))
		if err != nil {
			log.Debug().Err(err).Msg("Failed to read request body")
		}
		body = b
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
	}

	return &domain.RequestInfo{
		Origin:        OriginFrom(c),
		Method:        c.Request.Method,
		Path:          c.Request.URL.Path,
		RawQuery:      c.Request.URL.RawQuery,
		Header:        c.Request.Header,
		Body:          body,
		ContentLength: c.Request.ContentLength,
		ReceivedAt:    time.Now(),
	}
}

func writeRejection(c *gin.Context, v domain.Verdict) {
	body := gin.H{"error": v.Error}
	if v.RetryAfter > 0 {
		minutes := int(math.Ceil(v.RetryAfter.Minutes()))
		body["retryAfter"] = minutes
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(v.RetryAfter.Seconds()))))
	}
	c.AbortWithStatusJSON(v.Status, body)
}
