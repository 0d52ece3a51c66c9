package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/ffa-tycoon/ffa-tycoon/internal/config"
	"github.com/ffa-tycoon/ffa-tycoon/internal/database"
	"github.com/ffa-tycoon/ffa-tycoon/internal/gameserver"
	"github.com/ffa-tycoon/ffa-tycoon/internal/handler"
	"github.com/ffa-tycoon/ffa-tycoon/internal/jobs"
	"github.com/ffa-tycoon/ffa-tycoon/internal/metrics"
	"github.com/ffa-tycoon/ffa-tycoon/internal/middleware"
	"github.com/ffa-tycoon/ffa-tycoon/internal/plugin"
	"github.com/ffa-tycoon/ffa-tycoon/internal/redis"
	"github.com/ffa-tycoon/ffa-tycoon/internal/repository"
	"github.com/ffa-tycoon/ffa-tycoon/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	pflag.StringVar(&cfg.FleetFile, "config", cfg.FleetFile, "path to the game server fleet file")
	pflag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	pflag.Parse()

	setLogLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	fleet, err := config.LoadFleet(cfg.FleetFile, cfg.DefaultMOTD)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.FleetFile).Msg("failed to load fleet")
	}
	log.Info().Int("servers", len(fleet.Servers)).Msg("fleet loaded")

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}
	cancel()
	log.Info().Msg("database connected")

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
		redisClient, err = redis.NewClient(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info().Msg("redis connected")
	}

	parkRepo := repository.NewParkRepository(db.DB)
	inTx := repository.NewTransactor(db, parkRepo)

	registry := gameserver.NewRegistry(fleet)
	m := metrics.New(registry)

	maps := service.NewMapCatalog(cfg.ParksDir)
	if err := maps.Refresh(); err != nil {
		log.Error().Err(err).Str("dir", cfg.ParksDir).Msg("failed to read map lists")
	}

	archiver := service.NewArchiver(parkRepo, cfg.ArchiveDir,
		service.WithTransactions(inTx),
		service.WithSaveObserver(m.Archive.ObserveSave),
	)

	var ipinfo *service.IPInfoService
	if redisClient != nil {
		ipinfo = service.NewIPInfoService(cfg.VPNAPIKey, redisClient.Client)
	} else {
		ipinfo = service.NewIPInfoService(cfg.VPNAPIKey, nil)
	}

	// Background jobs
	mapListJob := jobs.NewMapListJob(maps, config.MapListRefreshSpec)
	if err := mapListJob.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start map list job")
	}
	defer mapListJob.Stop()

	screenshotter := service.NewScreenshotter(cfg.Screenshotter)
	if screenshotter.Enabled() {
		imageJob := jobs.NewImageJob(parkRepo, screenshotter, cfg.ArchiveDir, config.ImageScanInterval)
		imageJob.Start()
		defer imageJob.Stop()
	}

	// Plugin listener
	pluginCtx, stopPlugin := context.WithCancel(context.Background())
	listener := plugin.NewListener(registry, archiver, maps, cfg.SiteName)
	pluginDone := make(chan struct{})
	go func() {
		defer close(pluginDone)
		if err := listener.ListenAndServe(pluginCtx, cfg.PluginAddr()); err != nil {
			log.Fatal().Err(err).Msg("plugin listener error")
		}
	}()

	// HTTP
	var limiter middleware.Limiter
	if redisClient != nil {
		limiter = redis.NewRateLimiter(redisClient.Client)
	} else {
		limiter = middleware.NewMemoryRateLimiter()
	}
	downloadLimit := middleware.NewIPRateLimitMiddleware(
		limiter, config.DownloadRateLimit, config.DownloadRateWindow, "download",
	)
	securityHeaders := middleware.NewSecurityHeadersMiddleware(cfg.Production)

	publicHandler := handler.NewPublicHandler(registry, parkRepo, maps, cfg.ArchiveDir,
		handler.WithDownloadLimit(downloadLimit.Handler),
		handler.WithPublicURL(cfg.PublicURL),
	)
	adminHandler := handler.NewAdminHandler(
		registry,
		handler.NewPublicHandler(registry, parkRepo, maps, cfg.ArchiveDir,
			handler.WithSaveListing(),
			handler.WithPublicURL(cfg.PublicURL),
		),
		archiver, parkRepo, inTx, ipinfo, m.Registry, cfg.ArchiveDir,
	)

	public := newRouter(securityHeaders)
	public.Use(middleware.NewBodyLimitMiddleware(0).Handler)
	public.Mount("/", publicHandler.Routes())

	private := newRouter(securityHeaders)
	private.Mount("/", adminHandler.Routes())

	servers := []*http.Server{
		newServer(cfg.Addr(), public),
		newServer(cfg.PrivateAddr(), private),
	}
	for _, server := range servers {
		go func(server *http.Server) {
			log.Info().Str("addr", server.Addr).Msg("starting server")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Msg("server error")
			}
		}(server)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	for _, server := range servers {
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Str("addr", server.Addr).Msg("server forced to shutdown")
		}
	}

	stopPlugin()
	select {
	case <-pluginDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("plugin connections still open at shutdown")
	}

	log.Info().Msg("server stopped")
}

func newRouter(securityHeaders *middleware.SecurityHeadersMiddleware) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(securityHeaders.Handler)
	return r
}

func newServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
