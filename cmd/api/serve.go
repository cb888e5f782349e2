package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"chatcall/internal/auth"
	"chatcall/internal/calllog"
	"chatcall/internal/config"
	"chatcall/internal/directory"
	"chatcall/internal/history"
	"chatcall/internal/httpapi"
	"chatcall/internal/recording"
	"chatcall/internal/signaling"
	"chatcall/pkg/logger"
	"chatcall/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	directoryCacheSize = 4096
	directoryCacheTTL  = 5 * time.Minute

	// mergeLockTTL outlives one merge so a live holder never loses the lock.
	mergeLockTTL = 15 * time.Minute
)

// app holds the long-lived components built by runServe.
type app struct {
	db        *sql.DB
	ws        *signaling.Server
	handlers  httpapi.Handlers
	scheduler *recording.Scheduler
	pipeline  *recording.Pipeline
}

func runServe(rootCtx context.Context) error {
	cfg, log, closeLog, err := bootstrap()
	if err != nil {
		return err
	}
	defer closeLog()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		return fmt.Errorf("auth init failed: %w", err)
	}

	db, err := utils.OpenSQL(rootCtx, cfg.DB.Driver, cfg.DSN(), utils.PoolConfig{})
	if err != nil {
		return fmt.Errorf("database init failed: %w", err)
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.Recording.MergeGuard == config.GuardRedis {
		rdb, err = utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			return fmt.Errorf("redis init failed: %w", err)
		}
		defer rdb.Close()
	}

	a, err := buildApp(rootCtx, cfg, db, rdb, authManager, log)
	if err != nil {
		return err
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	registerRoutes(r, a, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		// Websocket connections and range playback are long-lived; only
		// headers get a deadline.
		IdleTimeout: 60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "db", cfg.DB.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var listenErr error
	select {
	case <-rootCtx.Done():
	case listenErr = <-serveErr:
		if listenErr != nil {
			log.Error("http server failed", "err", listenErr)
		}
	}
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	// Pending debounced merges are dropped; calls stay flagged and a later
	// chunk or finalize reschedules them.
	a.scheduler.Stop()
	a.pipeline.Close()
	return listenErr
}

func buildApp(ctx context.Context, cfg config.Config, db *sql.DB, rdb *redis.Client, tokens *auth.Manager, log *slog.Logger) (*app, error) {
	store := calllog.NewSQLStore(db, calllog.Dialect(cfg.DB.Driver))
	if cfg.DB.Driver == config.DriverSQLite {
		// Local sqlite databases are created on first run.
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
	}
	dir := directory.NewCached(directory.NewSQLDirectory(db), directoryCacheSize, directoryCacheTTL)

	storage, err := recording.NewStorage(cfg.Recording.Dir)
	if err != nil {
		return nil, err
	}
	ffmpeg := recording.NewFFmpeg(cfg.Recording.FFmpegBin)
	if err := ffmpeg.CheckAvailable(); err != nil {
		log.Warn("ffmpeg not available; recordings will fail to merge", "bin", cfg.Recording.FFmpegBin, "err", err)
	}

	recLog := logger.Component(log, "recording")
	pipeline := recording.NewPipeline(store, storage, ffmpeg, recording.PipelineConfig{
		Workers:           cfg.Recording.MergeWorkers,
		StabilityRetries:  cfg.Recording.StabilityRetries,
		StabilityInterval: cfg.Recording.StabilityInterval,
	}, logger.Component(log, "merge"))
	switch cfg.Recording.MergeGuard {
	case config.GuardFile:
		pipeline.WithGuard(recording.NewFileGuard(filepath.Join(storage.Root(), ".locks")))
	case config.GuardRedis:
		pipeline.WithGuard(recording.NewRedisGuard(rdb, mergeLockTTL))
	}
	pipeline.Start(ctx)

	scheduler := recording.NewScheduler(func(callID int64) {
		if !pipeline.Submit(callID) {
			recLog.Debug("merge already queued", "call_id", callID)
		}
	})
	recordings := recording.NewService(store, storage, scheduler, recLog)

	hub := signaling.NewHub(logger.Component(log, "hub"))
	gateway := signaling.NewGateway(store, dir, hub, recordings, signaling.Options{
		RingTimeout: cfg.Signaling.RingTimeout,
	}, logger.Component(log, "signaling"))

	return &app{
		db:       db,
		ws:       signaling.NewServer(hub, gateway, tokens, logger.Component(log, "ws")),
		handlers: httpapi.Handlers{
			Recording: recordings,
			History:   history.NewService(store, dir),
		},
		scheduler: scheduler,
		pipeline:  pipeline,
	}, nil
}
