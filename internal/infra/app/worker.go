package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/realm-auth-service/internal/infra/config"
	kafkainfra "github.com/arklim/realm-auth-service/internal/infra/kafka"
	"github.com/arklim/realm-auth-service/internal/infra/logger"
	"github.com/arklim/realm-auth-service/internal/infra/notify"
	"github.com/arklim/realm-auth-service/internal/infra/telemetry"
)

// ErrNoBrokers is returned when the worker starts without a Kafka broker list.
var ErrNoBrokers = errors.New("app: notification worker requires kafka brokers")

// Worker consumes queued notification jobs and delivers them.
type Worker struct {
	cfg      *config.AppConfig
	logger   *zap.Logger
	consumer *kafkainfra.Consumer
	registry *prometheus.Registry
}

// NewWorker wires the notification consumer from cfg. Jobs are shared across
// worker replicas through a single consumer group.
func NewWorker(cfg *config.AppConfig) (*Worker, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, ErrNoBrokers
	}

	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics, err := telemetry.NewMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	var email notify.Sender = notify.NewLogSender("email", log)
	if cfg.Notifications.SMTP.Host != "" {
		email = notify.NewSMTPSender(cfg.Notifications.SMTP, log)
	}
	dispatcher := notify.NewDispatcher(email, notify.NewLogSender("sms", log), metrics.Notifications, log)

	consumer, err := kafkainfra.NewConsumer(kafkainfra.ConsumerOptions{
		Brokers: cfg.Kafka.Brokers,
		GroupID: cfg.Kafka.ConsumerGroup,
		Topics:  []string{kafkainfra.TopicName(cfg.Kafka.TopicPrefix, kafkainfra.TopicNotifications)},
	}, kafkainfra.NewNotificationConsumer(dispatcher, log), log)
	if err != nil {
		return nil, fmt.Errorf("init notification consumer: %w", err)
	}

	return &Worker{cfg: cfg, logger: log, consumer: consumer, registry: registry}, nil
}

// Run consumes until ctx is cancelled. Delivery counters are served on /metrics.
func (w *Worker) Run(ctx context.Context) error {
	defer func() {
		_ = w.consumer.Close()
		_ = w.logger.Sync()
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(w.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", w.cfg.App.Host, w.cfg.App.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			w.logger.Warn("worker metrics server stopped", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	w.logger.Info("starting notification worker",
		zap.Strings("brokers", w.cfg.Kafka.Brokers),
		zap.String("group", w.cfg.Kafka.ConsumerGroup),
		zap.Bool("smtp", w.cfg.Notifications.SMTP.Host != ""),
	)
	if err := w.consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("notification consumer: %w", err)
	}
	return nil
}
