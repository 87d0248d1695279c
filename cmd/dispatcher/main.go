package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"schoolnotify/internal/changefeed"
	"schoolnotify/internal/config"
	"schoolnotify/internal/dedup"
	"schoolnotify/internal/httpserver"
	"schoolnotify/internal/model"
	"schoolnotify/internal/push"
	"schoolnotify/internal/repository"
	"schoolnotify/internal/service"
	"schoolnotify/internal/watcher"
	"schoolnotify/pkg/circuitbreaker"
	"schoolnotify/pkg/db"
	"schoolnotify/pkg/logger"
	"schoolnotify/pkg/mq"
	"schoolnotify/pkg/otel"
	"schoolnotify/pkg/redis"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "alert dispatcher: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg.Env)
	defer log.Sync()

	timings := cfg.Dispatch.Timings()
	log.Info("Starting alert dispatcher...",
		zap.String("env", cfg.Env),
		zap.String("db_host", cfg.DB.Host),
		zap.Int("db_port", cfg.DB.Port),
		zap.String("push_driver", cfg.Push.Driver),
		zap.String("dedup_backend", cfg.Dispatch.DedupBackend),
		zap.Duration("session_max_age", timings.SessionMaxAge),
		zap.Duration("cooldown", timings.Cooldown),
	)

	// Tracing
	shutdownTracing, err := otel.Init(cfg.Otel, version, log)
	if err != nil {
		log.Fatal("Failed to init tracing", zap.Error(err))
	}
	defer shutdownTracing()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	log.Info("Initializing database connection...")
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()
	log.Info("Database connection established successfully")

	checks := map[string]httpserver.Pinger{"db": dbConn}

	// Repositories
	store := repository.NewDocumentStore(dbConn, log)
	profileRepo := repository.NewProfileRepository(store)
	linkRepo := repository.NewLinkRepository(store, log)
	containerRepo := repository.NewContainerRepository(store, log)
	logRepo := repository.NewNotificationLogRepository(dbConn, log)

	logSink := repository.NewNotificationLogSink(logRepo, cfg.Dispatch.LogBufferSize, timings.ReadTimeout, log)
	sinkCtx, stopSink := context.WithCancel(context.Background())
	go logSink.Run(sinkCtx)

	// Deduplicator
	var deduper service.Deduplicator
	switch cfg.Dispatch.DedupBackend {
	case "redis":
		rdb, err := redis.NewRedisClient(cfg.Redis)
		if err != nil {
			log.Fatal("Failed to init Redis", zap.Error(err))
		}
		defer rdb.Close()
		deduper = dedup.NewRedis(rdb, timings.Cooldown, log)
		checks["redis"] = redisPinger(rdb)
		log.Info("Using Redis deduplicator", zap.String("addr", cfg.Redis.Addr))
	default:
		mem := dedup.NewMemory(dedup.Options{
			Cooldown:      timings.Cooldown,
			Retention:     timings.DedupRetention,
			SweepInterval: timings.SweepInterval,
		}, log)
		mem.Start(ctx)
		deduper = mem
	}

	// Push transport
	var transport push.Transport
	switch cfg.Push.Driver {
	case "mq":
		publisher, err := mq.NewPublisher(cfg.MQ.URL, cfg.Push.RoutingKey)
		if err != nil {
			log.Fatal("Failed to init MQ publisher", zap.Error(err))
		}
		defer publisher.Close()
		transport = push.NewMQTransport(publisher, cfg.Push.RoutingKey, log)
		checks["mq"] = httpserver.PingFunc(func(context.Context) error {
			if !publisher.IsConnected() {
				return errors.New("publisher channel closed")
			}
			return nil
		})
	default:
		transport = push.NewLogTransport(log)
	}

	breakerCfg := circuitbreaker.DefaultConfig()
	if cfg.Push.BreakerFailureThreshold > 0 {
		breakerCfg.FailureThreshold = cfg.Push.BreakerFailureThreshold
	}
	breakerCfg.Timeout = cfg.Push.BreakerOpenTimeoutDuration()
	transport = push.NewBreakerTransport(transport, breakerCfg, log)
	if cfg.Push.RatePerSecond > 0 {
		transport = push.NewRateLimitedTransport(transport, cfg.Push.RatePerSecond, cfg.Push.Burst)
	}

	// Services
	sessions := service.NewSessionChecker(timings.SessionMaxAge)
	resolver := service.NewRelationshipResolver(linkRepo, timings.ReadTimeout, log)
	verifier := service.NewEligibilityVerifier(profileRepo, sessions, resolver, cfg.Dispatch.AdminRecipientID, timings.ReadTimeout, log)
	dispatcher := service.NewDispatcher(transport, deduper, logSink, timings.SendTimeout, log)
	processor := service.NewAlertProcessor(verifier, deduper, dispatcher, log)

	// Watcher
	feed := changefeed.NewPostgresFeed(dbConn, containerRepo, changefeed.DefaultChannel, log)
	w := watcher.New(feed, processor, watcher.Options{
		QueueSize:        cfg.Dispatch.QueueSize,
		ReattachDelay:    timings.ReattachDelay,
		AdminRecipientID: cfg.Dispatch.AdminRecipientID,
	}, log)
	targets := []model.WatchTarget{
		{Collection: model.CollectionStudentAlerts},
		{Collection: model.CollectionParentAlerts},
		{Collection: model.CollectionAdminAlerts, DocID: cfg.Dispatch.AdminContainerID},
	}

	var watchers sync.WaitGroup
	watchers.Add(1)
	go func() {
		defer watchers.Done()
		log.Info("Starting alert watchers...", zap.Int("targets", len(targets)))
		w.Run(ctx, targets)
	}()

	// HTTP Server (health checks and metrics)
	addr := ":" + cfg.Server.Port
	router := httpserver.NewRouter(log, checks)
	srv := &http.Server{
		Addr:    addr,
		Handler: router.Engine,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("alert dispatcher is fully initialized and running")

	// Graceful shutdown
	<-ctx.Done()
	log.Info("Shutting down alert dispatcher gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	// Watchers stop on ctx and wait for in-flight sends; flush their log
	// entries afterwards.
	watchers.Wait()
	stopSink()
	logSink.Wait()

	log.Info("alert dispatcher shutdown complete")
}

func redisPinger(rdb *goredis.Client) httpserver.PingFunc {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}
