package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ManagerAPI/internal/engine"
	handlers "ManagerAPI/internal/handler"
	"ManagerAPI/internal/listeners"
	"ManagerAPI/internal/models"
	"ManagerAPI/internal/voiceclone"
	"ManagerAPI/pkg/backup"
	"ManagerAPI/pkg/cache"
	"ManagerAPI/pkg/config"
	"ManagerAPI/pkg/logger"
	"ManagerAPI/pkg/metrics"
	"ManagerAPI/pkg/middleware"
	"ManagerAPI/pkg/scheduler"
	"ManagerAPI/pkg/sse"
	stores "ManagerAPI/pkg/storage"
	"ManagerAPI/pkg/util"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const namesTTL = 10 * time.Minute

func main() {
	addr := flag.String("addr", "", "HTTP listen address, overrides ADDR")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if err := logger.Init(&cfg.Log, cfg.Mode); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Error("server exited", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	if cfg.SessionSecret == "" {
		return errors.New("SESSION_SECRET is required")
	}

	db, err := util.InitDatabase(cfg.DBDriver, cfg.DSN, cfg.Mode)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	if err := models.Migrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := db.AutoMigrate(&middleware.OperationLog{}); err != nil {
		return fmt.Errorf("migrate operation log: %w", err)
	}

	m := metrics.NewMetrics()
	if err := metrics.InstrumentGorm(db, m, cfg.DBDriver); err != nil {
		return fmt.Errorf("instrument gorm: %w", err)
	}

	var redisClient *redis.Client
	if cfg.Cache.Type == "redis" {
		if redisClient, err = cache.NewRedisClient(cfg.Cache.Redis); err != nil {
			return err
		}
	}
	c, err := newCache(cfg, redisClient)
	if err != nil {
		return fmt.Errorf("init cache: %w", err)
	}
	defer c.Close()

	store, err := stores.New(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	repo := voiceclone.NewGormRepository(db)
	names := voiceclone.NewCachedNames(repo, c, namesTTL)
	hub := sse.NewHub(30 * time.Second)
	svc := voiceclone.New(repo, store,
		engine.NewClient(cfg.Engine.BaseURL, cfg.Engine.APIKey),
		voiceclone.Config{
			TrainTimeout:  cfg.Clone.TrainTimeout,
			MaxAudioBytes: cfg.Clone.MaxAudioBytes,
			Concurrency:   cfg.Clone.Concurrency,
		},
		voiceclone.WithNotifier(listeners.InitVoiceCloneListeners(hub, m)),
		voiceclone.WithNames(names),
	)

	// 上一个进程遗留的 TRAINING 记录已经没有对应的尝试
	if _, err := svc.RecoverInterrupted(context.Background()); err != nil {
		return err
	}
	if err := m.RegisterGaugeFunc("voice_clone_training_in_flight", "Training attempts currently running.",
		func() float64 { return float64(svc.InFlight()) }); err != nil {
		return err
	}
	if err := m.RegisterGaugeFunc("sse_clients", "Connected event stream clients.",
		func() float64 { return float64(hub.Clients()) }); err != nil {
		return err
	}

	cr, err := newCron(cfg, db, svc)
	if err != nil {
		return err
	}
	cr.Start()

	limiter, err := newRateLimiter(cfg, redisClient, m)
	if err != nil {
		return err
	}

	if cfg.Mode != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(logger.GinLogger(), logger.GinRecovery(), metrics.Middleware(m))
	handlers.NewHandlers(db, cfg, handlers.Deps{
		Clones:  svc,
		Names:   names,
		Hub:     hub,
		Metrics: m,
		Limiter: limiter,
	}).Register(r)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("manager-api listening", zap.String("addr", cfg.Addr), zap.String("prefix", cfg.APIPrefix))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	// SSE 连接不会自己结束，先关服务再等待训练
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cr.Stop()
	if err := svc.Close(ctx); err != nil {
		logger.Warn("voice clone service close", zap.Error(err))
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	return nil
}

func newCache(cfg *config.Config, client *redis.Client) (cache.Cache, error) {
	if client == nil {
		return cache.NewCache(cfg.Cache)
	}
	opts := cache.DefaultOptions()
	return cache.NewLayeredCache(cache.NewLocalCache(cfg.Cache.Local), cache.NewRedisCacheWithClient(client, cfg.Cache.Redis), opts), nil
}

func newCron(cfg *config.Config, db *gorm.DB, svc *voiceclone.Service) (*scheduler.Cron, error) {
	cr := scheduler.NewCron(time.Local)
	stale := scheduler.FuncJob(func(ctx context.Context) {
		if _, err := svc.FailStale(ctx, svc.StaleCutoff()); err != nil {
			logger.Warn("stale training sweep failed", zap.Error(err))
		}
	})
	if _, err := cr.Add("voice-clone-stale", cfg.Clone.StaleSchedule, stale); err != nil {
		return nil, fmt.Errorf("schedule stale sweep: %w", err)
	}
	if cfg.BackupEnabled {
		job := &backup.Backup{DB: db, Driver: cfg.DBDriver, Dir: cfg.BackupPath, Keep: 7}
		if _, err := cr.Add("backup", cfg.BackupSchedule, job); err != nil {
			return nil, fmt.Errorf("schedule backup: %w", err)
		}
	}
	return cr, nil
}

func newRateLimiter(cfg *config.Config, client *redis.Client, m *metrics.Metrics) (*middleware.RateLimiter, error) {
	rlCfg := middleware.RateLimiterConfig{
		Rate:       cfg.RateLimit,
		Identifier: "user",
		AddHeaders: true,
		PerRouteRates: map[string]string{
			cfg.APIPrefix + "/voiceClone/:id/train": cfg.RateLimit,
		},
	}
	if client == nil {
		return middleware.NewRateLimiter(rlCfg, nil).WithObserver(middleware.NewPrometheusObserver(m.Registry())), nil
	}
	store, err := middleware.NewRedisStore(client)
	if err != nil {
		return nil, fmt.Errorf("rate limiter store: %w", err)
	}
	return middleware.NewRateLimiter(rlCfg, store).WithObserver(middleware.NewPrometheusObserver(m.Registry())), nil
}
