package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gatewarden/gatewarden/internal/adapters/detection"
	"github.com/gatewarden/gatewarden/internal/adapters/httpapi"
	"github.com/gatewarden/gatewarden/internal/adapters/notify"
	"github.com/gatewarden/gatewarden/internal/adapters/output"
	"github.com/gatewarden/gatewarden/internal/adapters/storage"
	"github.com/gatewarden/gatewarden/internal/app"
	"github.com/gatewarden/gatewarden/internal/domain"
	"github.com/gatewarden/gatewarden/internal/ports"
)

var (
	cfgFile string
	addr    string
	console bool

	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "gatewarden",
	Short: "Adaptive HTTP request-defense service",
	Long: `Gatewarden sits in front of a small public web application and
classifies every inbound request as benign or malicious using an ordered
chain of deterministic detectors sharing one IP-reputation store.

Detection Capabilities:
  - Request hygiene: method, path traversal, header injection
  - Behavioral: connection flood, rapid repeats, fingerprint rotation
  - Payload shape: size cap, JSON nesting depth, SQLi/XSS content
  - Honeypot decoy catalogue for vulnerability scanners

Bans are durable and time-bounded, held in Redis when configured and
in-process otherwise, with automatic failover between the two.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the defense server",
	Long: `Start the HTTP server with the full defense pipeline in front of
every route.

Examples:
  gatewarden serve
  gatewarden serve --addr :8080 --console
  GATEWARDEN_REDIS_URL=redis://localhost:6379/0 gatewarden serve`,
	RunE: runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Gatewarden %s\n", Version)
		fmt.Printf("Commit:  %s\n", Commit)
		fmt.Printf("Built:   %s\n", BuildTime)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./configs/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&console, "console", false, "human-readable console logging")
	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address (default :8080)")

	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/gatewarden")
	}

	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.strict_identity", true)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("redis.url", "")
	viper.SetDefault("admin.key", "")
	viper.SetDefault("proxy.trusted_cidrs", []string{})
	viper.SetDefault("notify.webhook_url", "")
	viper.SetDefault("notify.queue_size", 256)
	viper.SetDefault("captcha.endpoint", "")
	viper.SetDefault("captcha.secret", "")
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("sweep.interval_minutes", 5)
	viper.SetDefault("detection.flood.threshold", 30)
	viper.SetDefault("detection.flood.warn_threshold", 20)
	viper.SetDefault("detection.flood.ban_minutes", 30)
	viper.SetDefault("detection.flood.ban_cap_minutes", 1440)
	viper.SetDefault("detection.honeypot.extra_paths", []string{})

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn().Err(err).Msg("Error reading config file")
		}
	}

	viper.SetEnvPrefix("GATEWARDEN")
	viper.AutomaticEnv()
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	switch viper.GetString("logging.level") {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if console {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
		})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

// buildStore selects the reputation backend. A configured Redis gets the
// failover wrapper; no Redis is a valid but explicitly degraded mode.
func buildStore(ctx context.Context) ports.ReputationStore {
	redisURL := viper.GetString("redis.url")
	if redisURL == "" {
		log.Warn().Msg("No Redis configured: bans are process-local and will NOT survive a restart")
		return storage.NewMemoryStore()
	}

	primary, err := storage.NewRedisStore(ctx, redisURL)
	if err != nil {
		log.Error().Err(err).Msg("Redis unreachable at startup, starting degraded with in-memory fallback only")
		return storage.NewMemoryStore()
	}
	log.Info().Msg("Redis reputation store connected")
	return storage.NewFailover(primary, storage.NewMemoryStore())
}

func buildDetectors(cfg app.DetectionConfig) ([]ports.Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return []ports.Detector{
		detection.NewMethodValidator(),
		detection.NewTraversalDetector(),
		detection.NewHeaderInjectionDetector(),
		detection.NewFloodDetector(detection.FloodConfig{
			Threshold:     cfg.FloodThreshold,
			WarnThreshold: cfg.FloodWarnThreshold,
			BanStep:       time.Duration(cfg.FloodBanMinutes) * time.Minute,
			BanCap:        time.Duration(cfg.FloodBanCapMinutes) * time.Minute,
		}),
		detection.NewRapidRepeatDetector(),
		detection.NewFingerprintDetector(),
		detection.NewPayloadShapeDetector(),
		detection.NewSuspiciousContentDetector(),
	}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	setupLogging()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := buildStore(ctx)
	defer store.Close()

	metrics := domain.NewDefenseMetrics()

	var notifier ports.Notifier
	if url := viper.GetString("notify.webhook_url"); url != "" {
		webhook := notify.NewWebhookNotifier(url, viper.GetInt("notify.queue_size"))
		defer webhook.Close()
		notifier = webhook
		log.Info().Msg("Webhook notifier enabled")
	}

	detectionCfg := app.CurrentDetectionConfig()
	detectors, err := buildDetectors(detectionCfg)
	if err != nil {
		return fmt.Errorf("invalid detection config: %w", err)
	}

	decoys := append([]string{}, detection.DefaultHoneypotPaths...)
	decoys = append(decoys, detectionCfg.HoneypotExtraPaths...)
	honeypot := detection.NewHoneypot(decoys)
	log.Info().Int("paths", honeypot.PathCount()).Msg("Honeypot catalogue loaded")

	var observer ports.PipelineObserver
	var promMetrics *output.PrometheusMetrics
	if viper.GetBool("metrics.enabled") {
		promMetrics = output.NewPrometheusMetrics("gatewarden", metrics)
		observer = promMetrics
	}

	pipeline := app.NewPipeline(app.PipelineOptions{
		Store:     store,
		Honeypot:  honeypot,
		Detectors: detectors,
		Metrics:   metrics,
		Observer:  observer,
		Notifier:  notifier,
	})
	log.Info().Int("detectors", len(detectors)).Msg("Defense pipeline assembled")

	hotReload := app.NewHotReload(pipeline, buildDetectors)
	hotReload.StartWatching()

	sweeper := app.NewSweeper(store, metrics, observer,
		time.Duration(viper.GetInt("sweep.interval_minutes"))*time.Minute)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	identity, err := httpapi.NewIdentityResolver(
		viper.GetStringSlice("proxy.trusted_cidrs"),
		viper.GetBool("server.strict_identity"))
	if err != nil {
		return fmt.Errorf("invalid trusted-proxy CIDR list: %w", err)
	}

	var captcha httpapi.CaptchaVerifier
	if endpoint := viper.GetString("captcha.endpoint"); endpoint != "" {
		captcha = httpapi.NewHTTPCaptchaVerifier(endpoint, viper.GetString("captcha.secret"))
	}
	appeals := httpapi.NewAppealHandler(captcha, notifier)

	opts := httpapi.ServerOptions{
		Addr:     viper.GetString("server.addr"),
		Pipeline: pipeline,
		Identity: identity,
		Store:    store,
		Metrics:  metrics,
		AdminKey: viper.GetString("admin.key"),
		Appeals:  appeals,
	}
	if promMetrics != nil {
		opts.MetricsHandler = promMetrics.Handler()
	}
	server := httpapi.NewServer(opts)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
		return err
	}
	log.Info().Msg("Shutdown complete")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Fatal error")
		os.Exit(1)
	}
}
