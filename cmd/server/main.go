package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tablebook/internal/api"
	"tablebook/internal/availability"
	"tablebook/internal/cache"
	"tablebook/internal/config"
	"tablebook/internal/database"
	"tablebook/internal/events"
	"tablebook/internal/metrics"
	"tablebook/internal/service"
)

func main() {
	_ = godotenv.Load()

	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("TABLEBOOK_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		logger = logger.Level(level)
	} else {
		logger.Warn().Str("level", cfg.Log.Level).Msg("unknown log level, using info")
		logger = logger.Level(zerolog.InfoLevel)
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid timezone")
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	bus := events.NewEventBus()
	db.SetPublisher(bus)

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}
	settingsCache := cache.New(rdb, cfg.CacheTTL())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
	}

	// Initial load + hot reload of opening hours seed
	if err := config.WatchHours(ctx, cfg.Availability.HoursConfigPath, cfg.HoursReloadInterval(), func(hours *config.HoursConfig) {
		created, err := db.SyncHoursFromConfig(ctx, hours)
		if err != nil {
			logger.Error().Err(err).Msg("failed to apply hours config")
			return
		}
		logger.Info().Int("created", created).Str("summary", hours.String()).Msg("hours config applied")
	}, func(err error) {
		logger.Error().Err(err).Msg("hours config reload failed")
	}); err != nil {
		logger.Warn().Err(err).Msg("hours config not loaded, using built-in defaults")
	}

	if inserted, err := db.EnsureDefaultSchedules(ctx, nil); err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure weekly schedule")
	} else if len(inserted) > 0 {
		logger.Info().Ints("days", inserted).Msg("created default weekly schedule")
	}

	resolver := availability.NewResolver(
		availability.WithInterval(cfg.SlotInterval()),
		availability.WithLocation(loc),
	)
	svc := service.NewAvailabilityService(db, resolver, service.Options{
		WindowDays:   cfg.WindowDays(),
		FetchTimeout: cfg.FetchTimeout(),
		Cache:        settingsCache,
	}, &logger)

	if err := settingsCache.Invalidate(ctx); err != nil {
		logger.Warn().Err(err).Msg("failed to clear settings cache")
	}
	if err := svc.Reload(ctx); err != nil {
		logger.Error().Err(err).Msg("initial availability load failed; queries will fail until a reload succeeds")
	}
	svc.Watch(ctx, bus)
	go refreshDaily(ctx, svc, loc, &logger)

	if cfg.HTTP.AdminAPIKey == "" {
		logger.Warn().Msg("http.admin_api_key is empty, admin API disabled")
	}
	server := api.NewServer(svc, db, api.Config{
		AdminAPIKey:        cfg.HTTP.AdminAPIKey,
		RateLimitPerSecond: cfg.HTTP.RateLimitPerSecond,
		RateLimitBurst:     cfg.HTTP.RateLimitBurst,
		MaxRangeDays:       cfg.MaxRangeDays(),
	}, &logger)

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, settingsCache, svc, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	if cfg.Backup.Enabled {
		go database.NewBackupService(db, cfg.Backup, &logger).Start(ctx)
	}

	logger.Info().
		Int("port", cfg.HTTP.Port).
		Str("timezone", loc.String()).
		Dur("slot_interval", cfg.SlotInterval()).
		Msg("tablebook API started")
	runServer(ctx, cfg.HTTP.Port, server.Handler(), &logger)
}

// refreshDaily moves the snapshot window forward after local midnight.
func refreshDaily(ctx context.Context, svc *service.AvailabilityService, loc *time.Location, logger *zerolog.Logger) {
	for {
		now := time.Now().In(loc)
		next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 5, 0, loc)

		select {
		case <-ctx.Done():
			return
		case <-time.After(next.Sub(now)):
			if err := svc.Reload(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("daily availability reload failed")
			}
		}
	}
}

func runServer(ctx context.Context, port int, handler http.Handler, logger *zerolog.Logger) {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("api server error")
	}
	logger.Info().Msg("tablebook API stopped")
}

func startHealthServer(ctx context.Context, port int, db *database.DB, settingsCache *cache.Cache, svc *service.AvailabilityService, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if err := settingsCache.Ping(ctxPing); err != nil {
			http.Error(w, "redis not ready", http.StatusServiceUnavailable)
			return
		}
		if !svc.Ready() {
			http.Error(w, "availability not loaded", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
