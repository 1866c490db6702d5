package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/spinalsurgery-research/acquisition-service/internal/domain"
)

// KafkaSinkConfig configures the optional Kafka event sink.
type KafkaSinkConfig struct {
	// Brokers is the list of broker addresses.
	Brokers []string
	// Topic is the topic progress events are published to.
	Topic string
	// WriteTimeout bounds each publish. Default: 10 seconds.
	WriteTimeout time.Duration
}

// kafkaWriter is the subset of kafka.Writer the sink uses.
type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes progress events to Kafka for downstream research
// tooling. Messages are keyed by job ID so one job's events land on
// one partition in order. Publish failures are logged, never fatal:
// the events.log on disk remains the durable record.
type KafkaSink struct {
	writer  kafkaWriter
	timeout time.Duration
	logger  zerolog.Logger
}

// NewKafkaSink creates a sink writing to the given brokers and topic.
func NewKafkaSink(cfg KafkaSinkConfig, logger zerolog.Logger) *KafkaSink {
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaSink{
		writer:  writer,
		timeout: cfg.WriteTimeout,
		logger:  logger.With().Str("component", "kafka_sink").Str("topic", cfg.Topic).Logger(),
	}
}

// Publish sends one event. Errors are swallowed after logging so a
// broker outage cannot stall or fail a job.
func (s *KafkaSink) Publish(ctx context.Context, event domain.ProgressEvent) {
	value, err := json.Marshal(event)
	if err != nil {
		s.logger.Error().Err(err).Msg("marshal progress event")
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err = s.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(event.JobID.String()),
		Value: value,
	})
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("job_id", event.JobID.String()).
			Str("kind", string(event.Kind)).
			Msg("kafka publish failed")
	}
}

// Close flushes and closes the underlying writer.
func (s *KafkaSink) Close() error {
	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	return nil
}
