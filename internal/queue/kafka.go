package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"agroalerts/internal/config"
	"agroalerts/internal/types"
)

// MessageWriter is the subset of *kafkago.Writer used by KafkaPublisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher writes all changes of a run in one WriteMessages call, keyed
// by field ID so a field's changes stay ordered within a partition.
type KafkaPublisher struct {
	writer MessageWriter
	env    envelope
	logger *slog.Logger
}

// NewKafkaPublisher creates a producer for the configured topic.
func NewKafkaPublisher(cfg config.PublisherConfig, logger *slog.Logger) *KafkaPublisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return newKafkaPublisherWithWriter(w, logger)
}

func newKafkaPublisherWithWriter(w MessageWriter, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, env: defaultEnvelope(), logger: loggerOrDefault(logger)}
}

// Publish implements Publisher. The batch is all-or-nothing from the
// caller's point of view.
func (p *KafkaPublisher) Publish(ctx context.Context, changes []types.AlertChange) (int, error) {
	if len(changes) == 0 {
		return 0, nil
	}

	msgs := make([]kafkago.Message, len(changes))
	for i, change := range changes {
		msg, err := serializeChange(p.env.wrap(ctx, change))
		if err != nil {
			return 0, err
		}
		msgs[i] = msg
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalPublish, "failed to write alert changes to kafka", err)
	}

	p.logger.InfoContext(ctx, "alert changes written", "count", len(msgs), "run_id", types.GetRunID(ctx))
	return len(msgs), nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func serializeChange(msg types.AlertChangeMessage) (kafkago.Message, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return kafkago.Message{}, types.NewAppError(types.ErrCodeInternalPublish, "failed to marshal alert change", err)
	}
	return kafkago.Message{
		Key:   []byte(msg.FieldID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "message_id", Value: []byte(msg.MessageID)},
			{Key: "date", Value: []byte(msg.Date)},
			{Key: "published_at", Value: []byte(msg.PublishedAt.Format(time.RFC3339))},
		},
	}, nil
}
