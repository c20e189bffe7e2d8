package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/gamecaps/api/rest"
	"github.com/kasuganosora/gamecaps/api/sse"
	apiws "github.com/kasuganosora/gamecaps/api/ws"
	"github.com/kasuganosora/gamecaps/audit"
	"github.com/kasuganosora/gamecaps/cache"
	"github.com/kasuganosora/gamecaps/config"
	dbadapter "github.com/kasuganosora/gamecaps/db"
	"github.com/kasuganosora/gamecaps/game"
	"github.com/kasuganosora/gamecaps/metrics"
	mw "github.com/kasuganosora/gamecaps/middleware"
	"github.com/kasuganosora/gamecaps/model"
	"github.com/kasuganosora/gamecaps/scheduler"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	flags := config.Flags()
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatalf("flags: %v", err)
	}

	cfg, err := config.Load("", flags)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Audit ----
	auditSvc := audit.New(db, logger.Named("audit"))

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	// ---- Game services ----
	svcs := game.NewServices(c, pubsub, logger)
	boot, err := apiws.NewBootstrap(cfg.Server.Schema, svcs)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	m := metrics.New()
	sm := apiws.NewSessionManager(logger)

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	sched.AddTicker("stats", cfg.Server.StatsInterval, func() {
		queued, live := svcs.Matchmaking.Load()
		snap := metrics.Snapshot{
			Entities: svcs.World.Count(),
			Rooms:    svcs.Chat.RoomCount(),
			Queued:   queued,
			Matches:  live,
		}
		m.SetSnapshot(snap)
		logger.Info("stats",
			zap.Int("sessions", sm.Count()),
			zap.Int("entities", snap.Entities),
			zap.Int("rooms", snap.Rooms),
			zap.Int("queued", snap.Queued),
			zap.Int("matches", snap.Matches),
		)
	})

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger, "/metrics", "/health"), mw.Recovery(logger))
	r.Use(mw.RateLimit(ctx, rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	r.GET("/health", apirest.Health(cfg.Server.Schema))
	r.GET("/metrics", gin.WrapH(m.Handler()))

	wsH := apiws.NewHandler(boot, sm, cfg.Security, m, auditSvc, logger)
	r.GET("/ws", wsH.ServeWS)

	sseH := sse.NewHandler(svcs.Feed, pubsub, 0, logger)
	r.GET("/sse/rooms/:name", sseH.ServeRoom)

	adminH := apirest.NewAdminHandler(svcs, sm, sched, auditSvc, c, sseH, logger)
	adminH.Register(r.Group("/admin", mw.AdminGuard(cfg.Server.AdminKey, cfg.Security.AdminIPs)))

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	fmt.Printf("READY %d\n", port)
	logger.Info("Server listening", zap.String("addr", ln.Addr().String()), zap.String("schema", boot.Name()))

	srv := &http.Server{Handler: r}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", zap.Error(err))
		}
	}

	sm.CloseAll(5 * time.Second)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	sched.Stop()
	auditSvc.Stop(shutdownCtx)
	if err := pubsub.Close(); err != nil {
		logger.Warn("pubsub close", zap.Error(err))
	}
	if err := c.Close(); err != nil {
		logger.Warn("cache close", zap.Error(err))
	}
}
