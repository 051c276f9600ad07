package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/focusquest/api/rest"
	"github.com/kasuganosora/focusquest/api/sse"
	"github.com/kasuganosora/focusquest/api/ws"
	"github.com/kasuganosora/focusquest/audit"
	"github.com/kasuganosora/focusquest/cache"
	"github.com/kasuganosora/focusquest/config"
	dbadapter "github.com/kasuganosora/focusquest/db"
	"github.com/kasuganosora/focusquest/game/curse"
	"github.com/kasuganosora/focusquest/game/quest"
	"github.com/kasuganosora/focusquest/game/validation"
	mw "github.com/kasuganosora/focusquest/middleware"
	"github.com/kasuganosora/focusquest/model"
	"github.com/kasuganosora/focusquest/notify"
	"github.com/kasuganosora/focusquest/scheduler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
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

	// Warn loudly if admin endpoints will be disabled.
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
	logger.Info("DB initialized")

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(context.Background())

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
	logger.Info("Cache initialized")

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()
	clock := scheduler.NewClock()
	sched.AddTicker("quest_clock", cfg.Quest.TickInterval, clock.Broadcast)

	// ---- Notifications ----
	var sink notify.Sink
	switch cfg.Notify.Driver {
	case "amqp":
		amqpSink, err := notify.DialAMQP(cfg.Notify.AMQPURL, cfg.Notify.Queue, logger)
		if err != nil {
			log.Fatalf("notify amqp: %v", err)
		}
		sink = amqpSink
	default:
		sink = notify.NewPubSubSink(pubsub)
	}
	notifier := notify.NewService(sink, sched, logger)
	defer notifier.Close()
	logger.Info("Notifications initialized", zap.String("driver", cfg.Notify.Driver))

	// ---- Metrics ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := quest.NewMetrics(reg)

	// ---- Quest engine ----
	loc := cfg.Quest.Location()
	questCfg := quest.Config{
		MinMinutes:    cfg.Quest.MinMinutes,
		MaxMinutes:    cfg.Quest.MaxMinutes,
		RecentLogSize: cfg.Quest.RecentLogSize,
		Limits: validation.Limits{
			MaxLate:          cfg.Quest.MaxLate,
			FutureStartGrace: cfg.Quest.FutureStartGrace,
			FutureEndGrace:   cfg.Quest.FutureEndGrace,
		},
		Location: loc,
	}
	curseSvc := curse.NewService(curse.Rules{
		Grace:            cfg.Curse.Grace,
		Cap:              cfg.Curse.Cap,
		ResetsAtMidnight: cfg.Curse.ResetsAtMidnight,
		GoldMultiplier:   cfg.Curse.GoldMultiplier,
		XPMultiplier:     cfg.Curse.XPMultiplier,
	}, loc)
	repo := quest.NewGormRepository(db)
	mgr := quest.NewManager(ctx, questCfg, quest.Deps{
		Repo:     repo,
		Curse:    curseSvc,
		Notifier: notifier,
		Audit:    auditSvc,
		Metrics:  metrics,
		Logger:   logger,
	}, clock, c, pubsub)
	defer mgr.Close()

	// ---- Periodic Scheduler Tasks ----
	rankH := apirest.NewRankingHandler(db, c, logger)
	sched.AddTicker("ranking_rebuild", 10*time.Minute, func(time.Time) {
		n, err := rankH.Rebuild(ctx)
		if err == nil {
			logger.Debug("ranking rebuilt", zap.Int("heroes", n))
		}
	})

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	// ---- REST API routes ----
	authH := apirest.NewAuthHandler(db, c, cfg.Security, auditSvc)
	questH := apirest.NewQuestHandler(mgr, repo, logger)
	heroH := apirest.NewHeroHandler(mgr, repo, logger)
	adminH := apirest.NewAdminHandler(db, mgr, clock, sched, c, logger)
	auth := mw.Auth(cfg.Security, c)
	perHero := mw.RateLimitBy(rate.Limit(cfg.Security.RateLimitRPS/10), cfg.Security.RateLimitBurst/10+1, mw.ByHero)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.POST("/logout", auth, authH.Logout)
		authG.POST("/refresh", auth, authH.Refresh)

		heroG := api.Group("/hero", auth)
		heroG.GET("", heroH.Me)
		heroG.GET("/classes", heroH.Classes)

		questG := api.Group("/quest", auth, perHero)
		questG.GET("", questH.State)
		questG.GET("/list", questH.List)
		questG.GET("/:id/log", questH.Log)
		questG.POST("/start", questH.Start)
		questG.POST("/giveup", questH.GiveUp)
		questG.POST("/complete", questH.Complete)
		questG.POST("/refresh", questH.Refresh)
		questG.POST("/clear-error", questH.ClearError)

		rankG := api.Group("/ranking", auth)
		rankG.GET("/xp", rankH.TopXP)

		adminG := api.Group("/admin")
		adminG.Use(mw.IPWhitelist(cfg.Server.AdminIPs), apirest.AdminAuth(cfg.Server.AdminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
		adminG.GET("/audit", adminH.AuditLog)
		adminG.POST("/heroes/:id/ban", adminH.BanHero)
		adminG.POST("/heroes/:id/curse/clear", adminH.ClearCurse)
		adminG.POST("/ranking/refresh", rankH.RefreshRanking)
	}

	// ---- SSE ----
	sseH := sse.NewHandler(pubsub, c, cfg.Security, logger)
	r.GET("/sse", sseH.ServeSSE)

	// ---- WebSocket ----
	wsH := ws.NewHandler(mgr, pubsub, c, cfg.Security, logger)
	r.GET("/ws", wsH.ServeWS)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		logger.Info("Server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
}
