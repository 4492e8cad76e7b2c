package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/lightning-feed-client/internal/config"
	"github.com/couchcryptid/lightning-feed-client/internal/domain"
	"github.com/couchcryptid/lightning-feed-client/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
)

const batchTimeout = 200 * time.Millisecond

// Forwarder publishes strikes to a Kafka topic without blocking the caller.
// It implements session.Forwarder.
type Forwarder struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewForwarder creates an async Kafka producer for the configured strike
// topic. Delivery failures are counted in metrics.ForwardErrors and logged.
func NewForwarder(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Forwarder {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: batchTimeout,
		Async:        true,
		Completion: func(messages []kafkago.Message, err error) {
			if err == nil {
				return
			}
			metrics.ForwardErrors.Add(float64(len(messages)))
			logger.Warn("kafka delivery failed", "topic", cfg.KafkaTopic, "messages", len(messages), "error", err)
		},
	}
	return &Forwarder{writer: w, logger: logger}
}

// Forward queues one strike for delivery. Errors are only returned when the
// message cannot be built or the writer is closed.
func (f *Forwarder) Forward(ctx context.Context, ev domain.StrikeEvent, receivedAt time.Time) error {
	msg, err := serializeToMessage(ev, receivedAt)
	if err != nil {
		return err
	}
	return f.writer.WriteMessages(ctx, msg)
}

// Close flushes queued messages and closes the producer.
func (f *Forwarder) Close() error {
	return f.writer.Close()
}

// strikeRecord is the JSON value of a forwarded strike.
type strikeRecord struct {
	domain.StrikeEvent
	StrikeTime string    `json:"strike_time,omitempty"`
	TimeUnit   string    `json:"time_unit"`
	ReceivedAt time.Time `json:"received_at"`
}

// serializeToMessage marshals a strike into a Kafka message keyed by region
// so strikes of one region stay ordered within a partition.
func serializeToMessage(ev domain.StrikeEvent, receivedAt time.Time) (kafkago.Message, error) {
	rec := strikeRecord{StrikeEvent: ev, ReceivedAt: receivedAt.UTC()}
	t, unit, ok := domain.StrikeTime(ev.TimeRaw, time.UTC)
	rec.TimeUnit = unit.String()
	if ok {
		rec.StrikeTime = t.Format(time.RFC3339Nano)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize strike event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte("R" + strconv.Itoa(ev.Region)),
		Value: data,
		Time:  receivedAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte("lightning")},
			{Key: "received_at", Value: []byte(receivedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
