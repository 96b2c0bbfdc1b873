package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/uhyunpark/hyperswap/params"
	"github.com/uhyunpark/hyperswap/pkg/api"
	"github.com/uhyunpark/hyperswap/pkg/engine"
	"github.com/uhyunpark/hyperswap/pkg/metrics"
	"github.com/uhyunpark/hyperswap/pkg/pubsub"
	"github.com/uhyunpark/hyperswap/pkg/queue"
	"github.com/uhyunpark/hyperswap/pkg/router"
	"github.com/uhyunpark/hyperswap/pkg/storage"
	"github.com/uhyunpark/hyperswap/pkg/util"
	"github.com/uhyunpark/hyperswap/pkg/venue"
)

const shutdownGrace = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	envPath := flag.String("env", "", "optional .env file (default: ./.env)")
	flag.Parse()

	// Priority: ENV > .env > YAML > defaults
	cfg, err := params.Load(*configPath, *envPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var logger *zap.Logger
	if cfg.Log.File != "" {
		logger, err = util.NewLoggerWithFile(cfg.Log.File, cfg.Log.Level)
	} else {
		logger, err = util.NewLogger(cfg.Log.Level)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "level", cfg.Log.Level, "log_file", cfg.Log.File)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, sugar); err != nil {
		sugar.Errorw("node_failed", "err", err)
		_ = logger.Sync()
		os.Exit(1)
	}
	sugar.Info("node_stopped")
}

func run(ctx context.Context, cfg params.Config, sugar *zap.SugaredLogger) error {
	// ---- Storage ----
	var (
		store   storage.OrderStore
		journal queue.Journal
	)
	if cfg.Storage.DataDir == "" {
		store = storage.NewMemoryStore()
		sugar.Infow("storage_ready", "backend", "memory")
	} else {
		ps, err := storage.NewPebbleStore(cfg.Storage.DataDir)
		if err != nil {
			return err
		}
		defer ps.Close()
		store, journal = ps, ps
		sugar.Infow("storage_ready", "backend", "pebble", "dir", cfg.Storage.DataDir)
	}

	// ---- Metrics ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	pipe := metrics.NewPipeline(reg)

	// ---- Update delivery ----
	registry := pubsub.NewRegistry()
	pubOpts := []pubsub.PublisherOption{pubsub.WithObserver(pipe)}

	var relay *pubsub.RedisRelay
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return err
		}
		relay = pubsub.NewRedisRelay(client, cfg.Redis.ChannelPrefix, cfg.Redis.NodeID, sugar)
		pubOpts = append(pubOpts, pubsub.WithForwarder(relay))
		sugar.Infow("redis_relay_enabled", "addr", cfg.Redis.Addr, "origin", relay.Origin())
	}
	publisher := pubsub.NewPublisher(registry, cfg.Publisher.Buffer, sugar, pubOpts...)

	// ---- Venues & routing ----
	sim := venue.SimConfig{
		MinLatency:  cfg.Venues.MinLatency,
		MaxLatency:  cfg.Venues.MaxLatency,
		FailureRate: cfg.Venues.FailureRate,
		Clock:       util.RealClock{},
	}
	rt := router.New([]venue.Venue{venue.NewRaydium(sim), venue.NewMeteora(sim)}, cfg.Engine.VenueTimeout, sugar)

	// ---- Queue & worker ----
	q := queue.New(queue.Options{
		Workers:     cfg.Queue.Workers,
		MaxAttempts: cfg.Queue.MaxAttempts,
		BackoffBase: cfg.Queue.BackoffBase,
		BackoffMax:  cfg.Queue.BackoffMax,
		Capacity:    cfg.Queue.Capacity,
		Clock:       util.RealClock{},
	}, journal, sugar)
	pipe.TrackQueueDepth(q.Len)

	worker := engine.NewWorker(engine.Config{
		BuildDelay:  cfg.Engine.BuildDelay,
		SubmitDelay: cfg.Engine.SubmitDelay,
		Clock:       util.RealClock{},
	}, store, rt, publisher, pipe, sugar)

	replayed, err := q.Replay(ctx)
	if err != nil {
		return err
	}
	sugar.Infow("queue_replayed", "jobs", replayed)

	// ---- API Server ----
	var audit storage.AuditLog = storage.NopAuditLog{}
	if cfg.Log.AuditFile != "" {
		fl, err := storage.NewFileAuditLog(cfg.Log.AuditFile)
		if err != nil {
			sugar.Warnw("audit_log_disabled", "path", cfg.Log.AuditFile, "err", err)
		} else {
			defer fl.Close()
			audit = fl
			sugar.Infow("audit_log_enabled", "path", cfg.Log.AuditFile)
		}
	}

	server := api.NewServer(api.Options{
		Addr:           cfg.API.Addr,
		AllowedOrigins: cfg.API.AllowedOrigins,
		SendBuffer:     cfg.Listener.SendBuffer,
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Audit:          audit,
	}, store, q, registry, sugar)

	qopts := q.Options()
	sugar.Infow("node_starting",
		"workers", qopts.Workers,
		"max_attempts", qopts.MaxAttempts,
		"queue_capacity", qopts.Capacity,
		"venues", []string{"raydium", "meteora"},
		"api_addr", cfg.API.Addr)

	// The fanout task outlives the workers so their last updates still go out.
	go publisher.Run(context.Background())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := q.Run(gctx, worker)
		q.Close()
		publisher.Close()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if relay != nil {
		g.Go(func() error {
			if err := relay.Listen(gctx, registry); err != nil && gctx.Err() == nil {
				return err
			}
			return nil
		})
	}

	err = g.Wait()
	<-publisher.Done()
	return err
}
