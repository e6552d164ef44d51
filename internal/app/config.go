package app

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/gatewarden/gatewarden/internal/ports"
)

// DetectionConfig is the tunable slice of the defense configuration, read
// from viper on startup and on every hot-reload.
type DetectionConfig struct {
	FloodThreshold     int
	FloodWarnThreshold int
	FloodBanMinutes    int
	FloodBanCapMinutes int

	HoneypotExtraPaths []string
}

// CurrentDetectionConfig reads the detection section from viper. Defaults
// are registered in cmd before the config file is loaded.
func CurrentDetectionConfig() DetectionConfig {
	return DetectionConfig{
		FloodThreshold:     viper.GetInt("detection.flood.threshold"),
		FloodWarnThreshold: viper.GetInt("detection.flood.warn_threshold"),
		FloodBanMinutes:    viper.GetInt("detection.flood.ban_minutes"),
		FloodBanCapMinutes: viper.GetInt("detection.flood.ban_cap_minutes"),
		HoneypotExtraPaths: viper.GetStringSlice("detection.honeypot.extra_paths"),
	}
}

// Validate rejects configurations that would neuter or misconfigure the
// pipeline. A failed validation keeps the previous configuration running.
func (c DetectionConfig) Validate() error {
	if c.FloodThreshold < 1 {
		return &ConfigValidationError{Field: "detection.flood.threshold", Value: c.FloodThreshold, Reason: "must be positive"}
	}
	if c.FloodWarnThreshold < 0 || c.FloodWarnThreshold > c.FloodThreshold {
		return &ConfigValidationError{Field: "detection.flood.warn_threshold", Value: c.FloodWarnThreshold, Reason: "must be between 0 and the flood threshold"}
	}
	if c.FloodBanMinutes < 1 {
		return &ConfigValidationError{Field: "detection.flood.ban_minutes", Value: c.FloodBanMinutes, Reason: "must be positive"}
	}
	if c.FloodBanCapMinutes < c.FloodBanMinutes {
		return &ConfigValidationError{Field: "detection.flood.ban_cap_minutes", Value: c.FloodBanCapMinutes, Reason: "must be at least ban_minutes"}
	}
	return nil
}

type ConfigValidationError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("config validation error: %s = %v - %s", e.Field, e.Value, e.Reason)
}

// DetectorFactory builds a detector chain from the current configuration.
type DetectorFactory func(cfg DetectionConfig) ([]ports.Detector, error)

// HotReload watches the viper config file and rebuilds the pipeline's
// detector chain when it changes. An invalid or unbuildable new
// configuration is rejected and the running chain stays in place.
type HotReload struct {
	pipeline *Pipeline
	factory  DetectorFactory

	mu sync.Mutex
}

func NewHotReload(pipeline *Pipeline, factory DetectorFactory) *HotReload {
	return &HotReload{pipeline: pipeline, factory: factory}
}

// StartWatching registers the reload hook and begins watching the config
// file. No-op teardown: viper's watcher lives for the process lifetime.
func (h *HotReload) StartWatching() {
	viper.OnConfigChange(func(e fsnotify.Event) {
		log.Info().
			Str("file", e.Name).
			Str("op", e.Op.String()).
			Msg("Config file changed, reloading detection settings")
		h.reload()
	})
	viper.WatchConfig()
	log.Info().Str("config", viper.ConfigFileUsed()).Msg("Config hot-reload watching started")
}

func (h *HotReload) reload() {
	h.mu.Lock()
	defer h.mu.Unlock()

	cfg := CurrentDetectionConfig()
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("Invalid configuration, rejecting reload")
		return
	}

	detectors, err := h.factory(cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to rebuild detector chain, keeping current")
		return
	}

	h.pipeline.SetDetectors(detectors)
	log.Info().Int("detector_count", len(detectors)).Msg("Detection settings hot-reloaded")
}
