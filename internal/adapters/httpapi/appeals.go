package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/gatewarden/gatewarden/internal/ports"
	"github.com/gatewarden/gatewarden/pkg/logsafe"
)

// ErrCaptchaRejected means the provider answered and the token is bad, as
// opposed to the provider being unreachable.
var ErrCaptchaRejected = errors.New("captcha token rejected")

// CaptchaVerifier checks a challenge token with an external provider.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

// HTTPCaptchaVerifier verifies tokens against an HTTP provider endpoint
// (hCaptcha/Turnstile style form POST).
type HTTPCaptchaVerifier struct {
	endpoint string
	secret   string
	client   *http.Client
}

func NewHTTPCaptchaVerifier(endpoint, secret string) *HTTPCaptchaVerifier {
	return &HTTPCaptchaVerifier{
		endpoint: endpoint,
		secret:   secret,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (v *HTTPCaptchaVerifier) Verify(ctx context.Context, token, remoteIP string) error {
	form := url.Values{
		"secret":   {v.secret},
		"response": {token},
		"remoteip": {remoteIP},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building captcha request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("captcha provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("captcha provider status %d", resp.StatusCode)
	}

	var result struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding captcha response: %w", err)
	}
	if !result.Success {
		return ErrCaptchaRejected
	}
	return nil
}

type appealRequest struct {
	Name         string `json:"name" binding:"required,max=100"`
	Contact      string `json:"contact" binding:"omitempty,max=200"`
	Reason       string `json:"reason" binding:"required,max=2000"`
	CaptchaToken string `json:"captchaToken"`
}

// AppealHandler accepts ban-appeal submissions. The CAPTCHA gate fails
// closed: a reachable provider must accept the token. Only an explicitly
// unconfigured provider skips the check, loudly.
type AppealHandler struct {
	captcha  CaptchaVerifier
	notifier ports.Notifier
}

func NewAppealHandler(captcha CaptchaVerifier, notifier ports.Notifier) *AppealHandler {
	if captcha == nil {
		log.Warn().Msg("CAPTCHA provider not configured, appeals are accepted without a challenge")
	}
	return &AppealHandler{captcha: captcha, notifier: notifier}
}

// Submit answers POST /api/appeals.
func (h *AppealHandler) Submit(c *gin.Context) {
	var req appealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Bad Request"})
		return
	}

	origin := OriginFrom(c)
	if h.captcha != nil {
		if err := h.captcha.Verify(c.Request.Context(), req.CaptchaToken, origin); err != nil {
			if errors.Is(err, ErrCaptchaRejected) {
				c.JSON(http.StatusForbidden, gin.H{"error": "CAPTCHA verification failed"})
				return
			}
			log.Error().Err(err).Msg("CAPTCHA provider error, refusing appeal")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "CAPTCHA verification unavailable"})
			return
		}
	}

	log.Info().
		Str("origin", origin).
		Str("name", logsafe.String(req.Name, 100)).
		Msg("Appeal submitted")

	if h.notifier != nil {
		h.notifier.Notify(ports.Event{
			Kind:      ports.EventAppeal,
			Origin:    origin,
			Detail:    logsafe.String(req.Reason, 500),
			Timestamp: time.Now().UTC(),
		})
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Appeal received"})
}

const landingPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Gatewarden</title>
<style>
body{font-family:system-ui,sans-serif;max-width:40rem;margin:4rem auto;padding:0 1rem;color:#222}
h1{font-size:1.6rem}
footer{margin-top:3rem;font-size:.8rem;color:#888}
</style>
</head>
<body>
<h1>Community Portal</h1>
<p>Welcome. If you believe you were banned in error, you can submit an
appeal and a moderator will review it.</p>
<form method="post" action="/api/appeals">
<p><label>Name <input name="name" maxlength="100" required></label></p>
<p><label>Contact <input name="contact" maxlength="200"></label></p>
<p><label>Reason <textarea name="reason" maxlength="2000" required></textarea></label></p>
<p><button type="submit">Submit appeal</button></p>
</form>
<footer>Protected by Gatewarden.</footer>
</body>
</html>
`

// LandingHandler serves the static landing page at GET /.
func LandingHandler(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(landingPage))
}
