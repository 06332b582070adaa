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

	"github.com/isdelr/milligram-be/internal/api"
	"github.com/isdelr/milligram-be/internal/auth"
	"github.com/isdelr/milligram-be/internal/cache"
	"github.com/isdelr/milligram-be/internal/config"
	"github.com/isdelr/milligram-be/internal/database"
	"github.com/isdelr/milligram-be/internal/logger"
	"github.com/isdelr/milligram-be/internal/media"
	"github.com/isdelr/milligram-be/internal/monitoring"
	"github.com/isdelr/milligram-be/internal/services"
	"github.com/isdelr/milligram-be/internal/websocket"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logFile := logger.Init(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile, Production: cfg.Production})
	defer logFile.Close()

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	// Set up the store
	store, err := database.Open(startupCtx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("Failed to initialize database")
	}
	defer store.Close()

	// Set up media storage
	mediaStore, err := media.New(startupCtx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.MediaDriver).Msg("Failed to initialize media storage")
	}
	var mediaHandler http.Handler
	if disk, ok := mediaStore.(*media.DiskStore); ok {
		mediaHandler = disk.Handler()
	}

	// Optional profile cache
	var profileCache services.ProfileCache
	if cfg.RedisAddr != "" {
		rc, err := cache.NewProfileCache(startupCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.CacheTTL)
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("Failed to connect to Redis")
		}
		defer rc.Close()
		profileCache = rc
	}

	// Set up WebSocket Hub
	hub := websocket.NewHub()
	go hub.Run()

	// Set up services
	userService := services.NewUserService(store, profileCache)
	postService := services.NewPostService(store, mediaStore, hub, cfg.MaxUploadBytes())
	likeService := services.NewLikeService(store, hub)
	commentService := services.NewCommentService(store, hub)

	// Set up and run the counter reconciliation job
	scheduler, err := monitoring.NewScheduler(store, cfg.ReconcileSchedule)
	if err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.ReconcileSchedule).Msg("Invalid reconcile schedule")
	}
	go scheduler.Run()

	// Set up router
	router := api.NewRouter(api.Deps{
		Config:   cfg,
		Issuer:   auth.NewTokenIssuer(cfg.JWTSecret),
		Users:    userService,
		Posts:    postService,
		Likes:    likeService,
		Comments: commentService,
		Hub:      hub,
		Store:    store,
		Stats:    monitoring.NewStatsCollector(),
		Media:    mediaHandler,
	})

	// Set up server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().Int("port", cfg.ServerPort).Str("db", cfg.DBDriver).Str("media", cfg.MediaDriver).Msg("Server starting")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ListenAndServe failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	scheduler.Stop()
	hub.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exiting")
}
