package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fixflow/backend/internal/classifier"
	"github.com/fixflow/backend/internal/config"
	"github.com/fixflow/backend/internal/db"
	httpapi "github.com/fixflow/backend/internal/http"
	"github.com/fixflow/backend/internal/http/handlers"
	"github.com/fixflow/backend/internal/locks"
	"github.com/fixflow/backend/internal/metrics"
	"github.com/fixflow/backend/internal/notify"
	"github.com/fixflow/backend/internal/ratelimit"
	"github.com/fixflow/backend/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := log.Level(level).With().Str("service", "fixflow-backend").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store service.Store
	if cfg.DatabaseURL == "" {
		store = db.NewMemoryStore()
		logger.Warn().Msg("DATABASE_URL not set, using in-memory store")
	} else {
		pg, err := db.New(ctx, cfg.DatabaseURL, cfg.StoreTimeout)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect db")
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to migrate db")
		}
		store = pg
	}

	limits := ratelimit.Limits{
		PerTechnician: cfg.Dispatch.MaxPerTechnicianPerDay,
		SystemWide:    cfg.Dispatch.MaxSystemWidePerDay,
	}
	var (
		limiter ratelimit.Limiter
		locker  locks.Locker
		sinks   = notify.Multi{notify.LogSink{Logger: logger}}
	)
	if cfg.RedisURL == "" {
		limiter = ratelimit.NewMemoryLimiter(limits)
		locker = locks.NewMemoryLocker()
		logger.Warn().Msg("REDIS_URL not set, rate limits and locks are process-local")
	} else {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
		limiter = ratelimit.NewRedisLimiter(rdb, limits)
		locker = locks.NewRedisLocker(rdb)
		sinks = append(sinks, notify.StreamSink{Client: rdb, Stream: cfg.NotifyStream, MaxLen: 100000})
	}
	if cfg.NATSURL != "" {
		nc, err := notify.ConnectNATS(cfg.NATSURL, "fixflow-backend")
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect nats")
		}
		defer nc.Drain()
		sinks = append(sinks, notify.NATSSink{Conn: nc})
	}

	var cls classifier.Classifier
	if cfg.ClassifierURL == "" {
		cls = classifier.MockClassifier{}
		logger.Info().Msg("using mock classifier")
	} else {
		cls = classifier.NewHTTPClassifier(cfg.ClassifierURL, 5*time.Second)
	}

	m, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to register metrics")
	}

	svc := service.NewServices(service.Deps{
		Store:      store,
		Limiter:    limiter,
		Locker:     locker,
		Classifier: cls,
		Sink:       sinks,
		Metrics:    m,
		Config:     cfg.Dispatch,
		Logger:     logger,
	})

	sweeper := &service.Sweeper{
		Escalator: svc.Escalator,
		Interval:  cfg.SweepInterval,
		Logger:    logger.With().Str("component", "sweeper").Logger(),
	}
	go sweeper.Run(ctx)

	h := &handlers.Handler{
		Store:     store,
		Directory: svc.Directory,
		Incidents: svc.Incidents,
		Scheduler: svc.Scheduler,
		Engine:    svc.Engine,
		Escalator: svc.Escalator,
		Aging:     svc.Aging,
		Validator: validator.New(),
		Logger:    logger,
	}
	router := httpapi.Router(cfg, h, prometheus.DefaultGatherer, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}
