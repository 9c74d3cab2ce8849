package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"iot-forecast/internal/analytics"
	"iot-forecast/internal/artifacts"
	"iot-forecast/internal/config"
	"iot-forecast/internal/handlers"
	"iot-forecast/internal/ingest"
	"iot-forecast/internal/metrics"
	"iot-forecast/internal/mlmodel"
	"iot-forecast/internal/notify"
	"iot-forecast/internal/store"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	log.Info("starting IoT forecast service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Модели загружаются один раз; ошибка оставляет модель недоступной до перезапуска
	src, err := artifactSource(cfg)
	if err != nil {
		log.Error("artifact source", "err", err)
		os.Exit(1)
	}
	loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	bundle := mlmodel.Load(loadCtx, src, log)
	cancel()
	if !bundle.Status().AllLoaded() {
		log.Warn("some models are unavailable", "models", bundle.Status())
	}

	// Инициализация Redis
	redisStore, err := store.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.HistoryMaxPerDevice)
	if err != nil {
		log.Error("failed to connect to redis", "addr", cfg.RedisAddr, "err", err)
		os.Exit(1)
	}
	defer redisStore.Close()
	log.Info("connected to redis", "addr", cfg.RedisAddr)

	var notifier ingest.Notifier = notify.NewLogNotifier(log)
	if cfg.AMQPURL != "" {
		amqpNotifier, err := notify.NewAMQPNotifier(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Error("failed to connect to amqp", "err", err)
			os.Exit(1)
		}
		defer amqpNotifier.Close()
		notifier = amqpNotifier
		log.Info("alerts published to amqp", "exchange", cfg.AMQPExchange)
	}

	pipeline := ingest.NewPipeline(redisStore, notifier, log, ingest.Options{
		Workers:   cfg.IngestWorkers,
		QueueSize: cfg.IngestQueueSize,
		Thresholds: ingest.Thresholds{
			Temperature: cfg.TempThreshold,
			Humidity:    cfg.HumidityThreshold,
		},
	})
	pipeline.Start()
	defer pipeline.Stop()

	subscriber := ingest.NewSubscriber(ingest.MQTTConfig{
		Broker:   cfg.MQTTBroker,
		Topic:    cfg.MQTTTopic,
		ClientID: cfg.MQTTClientID,
		Username: cfg.MQTTUsername,
		Password: cfg.MQTTPassword,
	}, pipeline, log)
	if err := subscriber.Connect(10 * time.Second); err != nil {
		log.Error("failed to connect to mqtt broker", "broker", cfg.MQTTBroker, "err", err)
		os.Exit(1)
	}
	defer subscriber.Close()
	log.Info("connected to mqtt broker", "broker", cfg.MQTTBroker, "topic", cfg.MQTTTopic)

	forecaster := analytics.NewForecaster(redisStore, bundle, cfg.FeatureLocation)
	handler := handlers.NewHandler(handlers.Deps{
		Forecaster: forecaster,
		Detector:   analytics.NewAnomalyDetector(bundle),
		Fleet:      analytics.NewFleetAggregator(redisStore, forecaster),
		Bundle:     bundle,
		Store:      redisStore,
		Ingest:     pipeline,
		Logger:     log,
	})
	router := handlers.NewRouter(handler, handlers.NewRateLimiter(cfg.APIRateLimit, cfg.APIRateBurst))

	// HTTP сервер
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      handlers.Wrap(router),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server listening", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "err", err)
			stop()
		}
	}()

	// Периодическое обновление метрик
	go updateMetrics(ctx, redisStore, pipeline, log)

	<-ctx.Done()
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "err", err)
	}

	log.Info("server stopped gracefully")
}

func artifactSource(cfg config.Server) (artifacts.Source, error) {
	if cfg.ModelSource == "s3" {
		return artifacts.NewS3Source(artifacts.S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			UseSSL:    cfg.S3UseSSL,
		})
	}
	return artifacts.DirSource{Dir: cfg.ModelDir}, nil
}

// updateMetrics периодически обновляет метрики
func updateMetrics(ctx context.Context, s *store.RedisStore, p *ingest.Pipeline, log *slog.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		metrics.QueueSize.Set(float64(p.QueueLen()))

		ids, err := s.Devices(ctx)
		if err != nil {
			log.Debug("device count unavailable", "err", err)
			continue
		}
		metrics.ActiveDevices.Set(float64(len(ids)))
	}
}
