package httpapi

import (
	"crypto/subtle"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/gatewarden/gatewarden/internal/domain"
	"github.com/gatewarden/gatewarden/internal/ports"
)

// AdminHandler serves the security admin surface: listing live bans and
// lifting one with the shared admin credential.
type AdminHandler struct {
	store    ports.ReputationStore
	adminKey string
}

func NewAdminHandler(store ports.ReputationStore, adminKey string) *AdminHandler {
	if adminKey == "" {
		log.Warn().Msg("Admin key not configured, unblock endpoint is disabled")
	}
	return &AdminHandler{store: store, adminKey: adminKey}
}

// ListBlockedIPs answers GET /api/security/blocked-ips.
func (h *AdminHandler) ListBlockedIPs(c *gin.Context) {
	records, err := h.store.ListBans(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list bans")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}
	if records == nil {
		records = []domain.BanRecord{}
	}
	c.JSON(http.StatusOK, gin.H{
		"total":     len(records),
		"ips":       records,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type unblockRequest struct {
	IP       string `json:"ip" binding:"required"`
	AdminKey string `json:"adminKey"`
}

// Unblock answers POST /api/security/unblock. The credential is compared in
// constant time; a wrong or missing key has no side effect. An empty
// configured key disables the endpoint entirely.
func (h *AdminHandler) Unblock(c *gin.Context) {
	var req unblockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Bad Request"})
		return
	}

	if h.adminKey == "" ||
		subtle.ConstantTimeCompare([]byte(req.AdminKey), []byte(h.adminKey)) != 1 {
		log.Warn().Str("origin", OriginFrom(c)).Str("target", req.IP).Msg("Unblock with invalid admin key")
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		return
	}

	existed, err := h.store.Unban(c.Request.Context(), req.IP)
	if err != nil {
		log.Error().Err(err).Str("target", req.IP).Msg("Failed to unban")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}

	log.Info().Str("origin", OriginFrom(c)).Str("target", req.IP).Bool("existed", existed).Msg("Ban lifted by admin")
	msg := "IP unblocked"
	if !existed {
		msg = "IP was not blocked"
	}
	c.JSON(http.StatusOK, gin.H{"success": existed, "message": msg})
}

// HealthHandler answers GET /health with process liveness data for external
// monitoring. Not part of the defense core.
func HealthHandler(metrics *domain.DefenseMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := metrics.GetSnapshot()

		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"uptime": int64(snap.Uptime.Seconds()),
			"memory": gin.H{
				"allocMB":      float64(ms.Alloc) / (1024 * 1024),
				"sysMB":        float64(ms.Sys) / (1024 * 1024),
				"numGC":        ms.NumGC,
				"goroutines":   runtime.NumGoroutine(),
				"totalAllocMB": float64(ms.TotalAlloc) / (1024 * 1024),
			},
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}
