// Package main provides the field session API entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/chakravue/fieldeval/internal/api/handlers"
	"github.com/chakravue/fieldeval/internal/api/middleware"
	"github.com/chakravue/fieldeval/internal/config"
	"github.com/chakravue/fieldeval/internal/evaluator"
	"github.com/chakravue/fieldeval/internal/field"
	"github.com/chakravue/fieldeval/internal/form"
	"github.com/chakravue/fieldeval/internal/infrastructure/redpanda"
	"github.com/chakravue/fieldeval/internal/observability/metrics"
	"github.com/chakravue/fieldeval/internal/observability/tracing"
	"github.com/chakravue/fieldeval/pkg/workerpool"
)

const serviceName = "session-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()

	traceCfg := tracing.DefaultConfig(serviceName)
	traceCfg.Environment = cfg.Env
	traceCfg.OTLPEndpoint = cfg.OTLPEndpoint
	traceCfg.SampleRate = cfg.TraceSampleRate
	tp, err := tracing.Init(ctx, traceCfg)
	if err != nil {
		logger.Fatal("failed to init tracing", zap.Error(err))
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	// Evaluator behind a breaker
	evalCfg := evaluator.DefaultConfig(cfg.EvaluatorURL)
	evalCfg.Timeout = cfg.EvaluatorTimeout
	evalCfg.Breaker.OnStateChange = m.BreakerStateChanged
	evalClient, err := evaluator.NewHTTPClient(evalCfg, logger)
	if err != nil {
		logger.Fatal("failed to create evaluator client", zap.Error(err))
	}

	poolCfg := workerpool.DefaultConfig()
	poolCfg.Workers = cfg.DispatchWorkers
	poolCfg.QueueSize = cfg.DispatchQueue
	pool := workerpool.New(poolCfg, logger)
	pool.Start()

	deps := form.Deps{
		Evaluator:         m.InstrumentEvaluator(evalClient),
		Dispatcher:        pool,
		FieldObserver:     m,
		TraversalObserver: m,
		Logger:            logger,
	}

	var (
		producer *redpanda.Producer
		consumer *redpanda.Consumer
	)
	if cfg.KafkaEnabled() {
		if cfg.EnsureTopics {
			ensureTopics(ctx, cfg, logger)
		}

		producerCfg := redpanda.DefaultProducerConfig()
		producerCfg.Brokers = cfg.KafkaBrokers
		producer, err = redpanda.NewProducer(producerCfg, logger)
		if err != nil {
			logger.Fatal("failed to create producer", zap.Error(err))
		}
		publisher := redpanda.NewCommitPublisher(producer, cfg.CommitsTopic, logger)
		publisher.OnDelivered = m.KafkaMessagesProduced.Inc
		publisher.OnFailed = m.KafkaProduceErrors.Inc
		deps.Sink = publisher
	}

	store := form.NewStore(form.Config{
		Field: field.Config{
			MountDelay:         cfg.MountDebounce,
			LiveDelay:          cfg.LiveDebounce,
			DefaultPlaceholder: cfg.DefaultPlaceholder,
		},
	}, deps)

	if cfg.KafkaEnabled() {
		consumerCfg := redpanda.DefaultConsumerConfig()
		consumerCfg.Brokers = cfg.KafkaBrokers
		consumerCfg.GroupID = cfg.ConsumerGroup
		consumerCfg.Topics = []string{cfg.ReadingsTopic}
		consumer, err = redpanda.NewConsumer(consumerCfg,
			redpanda.ReadingHandler(store, logger, m.KafkaMessagesConsumed.Inc), logger)
		if err != nil {
			logger.Fatal("failed to create consumer", zap.Error(err))
		}
		consumer.OnError = m.KafkaConsumeErrors.Inc
		consumer.Start()
		logger.Info("consuming readings", zap.String("topic", cfg.ReadingsTopic))
	}

	formHandler := handlers.NewFormHandler(store, logger)
	formHandler.OnFormsChanged = func(n int) { m.ActiveForms.Set(float64(n)) }

	// Setup router
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Tracing(serviceName))

	r.Get("/health", healthHandler)
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if !pool.IsHealthy() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	r.Handle("/metrics", m.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/forms", formHandler.Routes())
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
		if consumer != nil {
			if err := consumer.Stop(); err != nil {
				logger.Error("consumer stop error", zap.Error(err))
			}
		}
		// fields stop scheduling before the pool drains
		store.Close()
		if err := pool.Stop(); err != nil {
			logger.Warn("worker pool stop", zap.Error(err))
		}
		if producer != nil {
			if err := producer.Flush(ctx); err != nil {
				logger.Warn("producer flush", zap.Error(err))
			}
			producer.Close()
		}
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("tracer shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting session API",
		zap.String("port", cfg.Port),
		zap.String("evaluator", cfg.EvaluatorURL),
		zap.Bool("kafka", cfg.KafkaEnabled()))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}

	<-done
	logger.Info("server stopped")
}

func ensureTopics(ctx context.Context, cfg *config.Config, logger *zap.Logger) {
	admin, err := redpanda.NewAdmin(cfg.KafkaBrokers, logger)
	if err != nil {
		logger.Fatal("failed to create admin client", zap.Error(err))
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := admin.EnsureTopics(ctx, redpanda.TopicConfigs(cfg.CommitsTopic, cfg.ReadingsTopic)); err != nil {
		logger.Fatal("failed to ensure topics", zap.Error(err))
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","service":%q,"version":"1.0.0"}`, serviceName)
}
