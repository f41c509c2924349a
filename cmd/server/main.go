package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	enrollmenthandler "pushgate/internal/enrollment/handler"
	enrollmentservice "pushgate/internal/enrollment/service"
	enrollmentstore "pushgate/internal/enrollment/store"
	"pushgate/internal/platform/config"
	"pushgate/internal/platform/httpserver"
	"pushgate/internal/platform/logger"
	"pushgate/internal/platform/metrics"
	"pushgate/internal/platform/postgres"
	"pushgate/internal/platform/redis"
	"pushgate/internal/push"
	"pushgate/internal/registry"
	"pushgate/internal/subscriber"
	txhandler "pushgate/internal/transaction/handler"
	txservice "pushgate/internal/transaction/service"
	txstore "pushgate/internal/transaction/store"
	httptransport "pushgate/internal/transport/http"
	audit "pushgate/pkg/platform/audit"
	"pushgate/pkg/platform/audit/publisher"
	auditmemory "pushgate/pkg/platform/audit/store/memory"
	auditpostgres "pushgate/pkg/platform/audit/store/postgres"
	"pushgate/pkg/platform/circuit"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}
	log := logger.New(cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// run wires dependencies and serves until ctx is cancelled.
func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)
	health := map[string]httptransport.HealthCheck{}

	var db *sql.DB
	if cfg.Postgres.URL != "" {
		var err error
		db, err = postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		health["postgres"] = db.PingContext
		log.Info("postgres storage enabled")
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		health["redis"] = redisClient.Health
		log.Info("redis transaction store enabled", "ttl", cfg.Redis.TransactionTTL)
	}

	var (
		accounts    enrollmentstore.Store = enrollmentstore.NewInMemory()
		txns        txstore.Store         = txstore.NewInMemory()
		auditEvents audit.Store           = auditmemory.NewInMemoryStore()
	)
	if db != nil {
		accounts = enrollmentstore.NewPostgres(db)
		txns = txstore.NewPostgres(db)
		auditEvents = auditpostgres.New(db)
	}
	if redisClient != nil {
		txns = txstore.NewRedis(redisClient.Client, cfg.Redis.TransactionTTL)
	}

	auditPublisher := publisher.NewPublisher(auditEvents, publisher.WithAsyncBuffer(1024), publisher.WithLogger(log))
	defer auditPublisher.Close()

	sender, closeSender, err := newSender(ctx, cfg.Push, log)
	if err != nil {
		return err
	}
	defer closeSender()
	if k, ok := sender.(*push.KafkaSender); ok {
		health["kafka"] = k.Ping
	}

	dispatcher := push.NewDispatcher(sender,
		push.WithWorkers(cfg.Push.Workers),
		push.WithQueueSize(cfg.Push.QueueSize),
		push.WithSendTimeout(cfg.Push.Timeout),
		push.WithBreaker(circuit.New("push-"+cfg.Push.Backend, circuit.WithFailureThreshold(cfg.Push.FailureThreshold))),
		push.WithDispatcherLogger(log),
		push.WithDispatcherMetrics(m),
	)
	defer dispatcher.Close()

	reg := registry.New(registry.WithLogger(log), registry.WithMetrics(m))

	enrollment := enrollmentservice.New(accounts,
		enrollmentservice.WithLogger(log),
		enrollmentservice.WithMetrics(m),
		enrollmentservice.WithAuditPublisher(auditPublisher),
	)
	transactions := txservice.New(txns, enrollment, dispatcher, reg,
		txservice.WithLogger(log),
		txservice.WithMetrics(m),
		txservice.WithAuditPublisher(auditPublisher),
	)

	router := httptransport.NewRouter(httptransport.Config{
		Logger:         log,
		Metrics:        m,
		Gatherer:       promReg,
		AllowedOrigins: cfg.Server.CORSAllowedOrigins,
		Streaming: []httptransport.Registrar{
			subscriber.NewHandler(reg, log,
				subscriber.WithOriginPatterns(cfg.WebSocket.AllowedOrigins),
				subscriber.WithWriteTimeout(cfg.WebSocket.WriteTimeout),
				subscriber.WithReadLimit(cfg.WebSocket.ReadLimit),
				subscriber.WithMetrics(m),
			),
		},
		Handlers: []httptransport.Registrar{
			enrollmenthandler.New(enrollment, log),
			txhandler.New(transactions, log),
		},
		Health: health,
	})

	srv := httpserver.New(cfg.Server.Addr, router)
	srv.BaseContext = func(_ net.Listener) context.Context { return ctx }

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("pushgate listening", "addr", cfg.Server.Addr, "push_backend", cfg.Push.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newSender builds the configured push backend and its cleanup.
func newSender(ctx context.Context, cfg config.PushConfig, log *slog.Logger) (push.Sender, func(), error) {
	switch cfg.Backend {
	case config.PushBackendFCM:
		account, err := push.ParseServiceAccount(cfg.FCMCredentials)
		if err != nil {
			return nil, nil, err
		}
		sender, err := push.NewFCMSender(ctx, account,
			push.WithProjectID(cfg.FCMProjectID),
			push.WithRequestTimeout(cfg.Timeout),
		)
		if err != nil {
			return nil, nil, err
		}
		return sender, func() {}, nil
	case config.PushBackendKafka:
		sender, err := push.NewKafkaSender(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, nil, err
		}
		setupCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		if err := sender.EnsureTopic(setupCtx, 3, 1); err != nil {
			sender.Close()
			return nil, nil, fmt.Errorf("ensure push topic: %w", err)
		}
		return sender, sender.Close, nil
	default:
		log.Warn("push notifications are logged only")
		return push.NewLogSender(log), func() {}, nil
	}
}
