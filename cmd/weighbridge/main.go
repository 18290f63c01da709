package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"weighbridge-service/internal/capture"
	"weighbridge-service/internal/config"
	"weighbridge-service/internal/db"
	httphandler "weighbridge-service/internal/http"
	"weighbridge-service/internal/repository"
	"weighbridge-service/internal/service"
	"weighbridge-service/internal/station"
	platformsync "weighbridge-service/internal/sync"
	"weighbridge-service/internal/worker"
)

const backgroundWorkers = 4

func main() {
	cfg, err := config.Load(os.Getenv("WEIGHBRIDGE_CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.Log)

	database, err := db.Open(cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	if err := db.RunMigrations(database); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo := repository.NewWeighingRepository(database)
	camera := capture.NewClient(cfg.Camera, log.With().Str("component", "camera").Logger())
	weighingService := service.NewWeighingService(repo, camera, cfg.Matching,
		log.With().Str("component", "weighing").Logger())

	pool := worker.NewPool(backgroundWorkers, 256, log.With().Str("component", "worker").Logger())
	pool.Start(ctx)

	st := station.New(cfg.Station, weighingService, pool,
		log.With().Str("component", "station").Logger())

	pusher := platformsync.NewPusher(repo, cfg.Platform,
		log.With().Str("component", "pusher").Logger())
	go pusher.Run(ctx)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	handler := httphandler.NewHandler(weighingService, st,
		log.With().Str("component", "http").Logger())
	handler.Register(router, httphandler.AuthMiddleware(cfg.Auth.JWTSecret))

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("weighbridge service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	// In-flight background tasks finish on their own; queued ones are
	// abandoned.
	pool.Stop()
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if cfg.Pretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(level).With().Timestamp().Logger()
}
