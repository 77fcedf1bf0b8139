// Package queue publishes changed alert rows to downstream consumers over SQS
// or Kafka. The alert pipeline feeds publishers from its outbox and marks only
// the changes a publisher accepted, so delivery is at-least-once and consumers
// dedupe on MessageID or on (FieldID, Date) plus the alert values.
package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"agroalerts/internal/types"
)

// Publisher hands alert changes to a downstream transport. It returns how many
// changes were accepted before the first failure.
type Publisher interface {
	Publish(ctx context.Context, changes []types.AlertChange) (int, error)
}

// NoopPublisher accepts and discards every change. It backs
// PUBLISHER_KIND=none.
type NoopPublisher struct{}

// Publish implements Publisher.
func (NoopPublisher) Publish(_ context.Context, changes []types.AlertChange) (int, error) {
	return len(changes), nil
}

// envelope stamps the shared message fields. Tests swap newID and now.
type envelope struct {
	newID func() string
	now   func() time.Time
}

func defaultEnvelope() envelope {
	return envelope{newID: uuid.NewString, now: time.Now}
}

func (e envelope) wrap(ctx context.Context, change types.AlertChange) types.AlertChangeMessage {
	return types.NewAlertChangeMessage(e.newID(), types.GetRunID(ctx), change, e.now())
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
