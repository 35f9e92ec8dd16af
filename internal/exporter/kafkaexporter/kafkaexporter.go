// Package kafkaexporter publishes settled operation contexts as JSON events
// to a Kafka topic, keyed by context ID.
package kafkaexporter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"

	"github.com/helixir/observe/internal/errcapture"
	"github.com/helixir/observe/internal/opcontext"
)

// Name is the registration name of the Kafka exporter.
const Name = "kafka"

const (
	// EventTypeSucceeded is emitted for operations that completed without error.
	EventTypeSucceeded = "observation.succeeded"

	// EventTypeFailed is emitted for operations that failed.
	EventTypeFailed = "observation.failed"

	defaultServiceName = "observe"
)

// ErrNoBrokers is returned by New when no broker address is configured.
var ErrNoBrokers = errors.New("kafka exporter: at least one broker is required")

// Config holds Kafka publisher settings.
type Config struct {
	// Enabled registers the exporter at startup.
	Enabled bool `mapstructure:"enabled"`
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `mapstructure:"brokers"`
	// Topic is the Kafka topic to publish observation events to.
	Topic string `mapstructure:"topic"`
	// BatchSize is the maximum number of messages to batch before sending.
	BatchSize int `mapstructure:"batch_size"`
	// BatchTimeout is the maximum time to wait before flushing a batch.
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	// ServiceName identifies the publishing service in each event.
	ServiceName string `mapstructure:"service_name"`
	// SASLUsername and SASLPassword enable SASL/PLAIN authentication. They
	// are read from the environment only.
	SASLUsername string `mapstructure:"-"`
	SASLPassword string `mapstructure:"-"`
}

// MessageWriter is the subset of *kafka.Writer used by the exporter.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Event is the payload published for each settled context.
type Event struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	Source     string          `json:"source"`
	OccurredAt time.Time       `json:"occurred_at"`
	Context    json.RawMessage `json:"context"`
	Error      errcapture.Info `json:"error,omitempty"`
}

// Exporter publishes observation events.
type Exporter struct {
	writer  MessageWriter
	source  string
	logger  zerolog.Logger
	now     func() time.Time
	eventID func() string
}

// New creates an exporter backed by a kafka.Writer for cfg.
func New(cfg Config, logger zerolog.Logger) (*Exporter, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka exporter: topic is required")
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireOne,
	}
	if cfg.SASLUsername != "" {
		w.Transport = &kafka.Transport{
			SASL: plain.Mechanism{Username: cfg.SASLUsername, Password: cfg.SASLPassword},
		}
	}
	return NewWithWriter(cfg, w, logger), nil
}

// NewWithWriter creates an exporter publishing through w.
func NewWithWriter(cfg Config, w MessageWriter, logger zerolog.Logger) *Exporter {
	source := cfg.ServiceName
	if source == "" {
		source = defaultServiceName
	}
	return &Exporter{
		writer:  w,
		source:  source,
		logger:  logger.With().Str("component", "kafka_exporter").Logger(),
		now:     time.Now,
		eventID: func() string { return uuid.New().String() },
	}
}

func (e *Exporter) Name() string { return Name }

func (e *Exporter) Success(ctx context.Context, c *opcontext.Context) error {
	return e.publish(ctx, EventTypeSucceeded, c, nil)
}

func (e *Exporter) Failure(ctx context.Context, c *opcontext.Context, err error) error {
	return e.publish(ctx, EventTypeFailed, c, errcapture.Serialize(err))
}

// Close flushes pending messages and closes the writer.
func (e *Exporter) Close() error {
	return e.writer.Close()
}

func (e *Exporter) publish(ctx context.Context, eventType string, c *opcontext.Context, errInfo errcapture.Info) error {
	body, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}

	event := Event{
		EventID:    e.eventID(),
		EventType:  eventType,
		Source:     e.source,
		OccurredAt: e.now().UTC(),
		Context:    body,
		Error:      errInfo,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(c.ID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
			{Key: "event_id", Value: []byte(event.EventID)},
			{Key: "content_type", Value: []byte("application/json")},
		},
	}
	if err := e.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}

	e.logger.Debug().
		Str("event_id", event.EventID).
		Str("event_type", eventType).
		Str("context_id", c.ID).
		Msg("published observation event")
	return nil
}
