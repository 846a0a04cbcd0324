package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/realm-auth-service/internal/core/domain"
	"github.com/arklim/realm-auth-service/internal/core/port"
	"github.com/arklim/realm-auth-service/internal/infra/config"
)

const (
	schemaVersion = "1.0"

	eventNotificationRequested = "auth.notification.requested"
	eventTokenRevoked          = "auth.token.revoked"
)

// EventPublisher puts notification jobs and token revocations on Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

// inboundEnvelope defers payload decoding to the consumer that knows its type.
type inboundEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   json.RawMessage  `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func decodeEnvelope(value []byte, wantType string, payload any) (inboundEnvelope, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(value, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	if env.EventType != wantType {
		return env, fmt.Errorf("unexpected event type %q", env.EventType)
	}
	if err := json.Unmarshal(env.Payload, payload); err != nil {
		return env, fmt.Errorf("decode %s payload: %w", wantType, err)
	}
	return env, nil
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, topic, key string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(topic),
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueue publishes a notification job for the worker. Jobs of one recipient share a partition.
func (p *EventPublisher) Enqueue(ctx context.Context, job domain.NotificationJob) error {
	return p.publish(ctx, job.ID, eventNotificationRequested, TopicNotifications, job.To, job.EnqueuedAt, job)
}

// PublishTokenRevoked broadcasts a revocation to every API instance.
func (p *EventPublisher) PublishTokenRevoked(ctx context.Context, event domain.TokenRevokedEvent) error {
	payload := struct {
		JTI       string    `json:"jti"`
		RevokedAt time.Time `json:"revoked_at"`
		ExpiresAt time.Time `json:"expires_at"`
	}{
		JTI:       event.JTI,
		RevokedAt: event.RevokedAt.UTC(),
		ExpiresAt: event.ExpiresAt.UTC(),
	}

	return p.publish(ctx, event.EventID, eventTokenRevoked, TopicTokenRevoked, event.JTI, event.RevokedAt, payload)
}

var (
	_ port.NotificationQueue   = (*EventPublisher)(nil)
	_ port.RevocationPublisher = (*EventPublisher)(nil)
)
