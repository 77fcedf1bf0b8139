package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"agroalerts/internal/config"
	"agroalerts/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher sends one message per alert change to a single queue. The
// field ID and date travel as message attributes so consumers can filter
// without decoding the body.
type SQSPublisher struct {
	client   SQSSender
	queueURL string
	env      envelope
	logger   *slog.Logger
}

// NewSQSPublisher creates an SQSPublisher for the configured queue.
func NewSQSPublisher(client SQSSender, cfg config.PublisherConfig, logger *slog.Logger) *SQSPublisher {
	return &SQSPublisher{
		client:   client,
		queueURL: cfg.SQSQueueURL,
		env:      defaultEnvelope(),
		logger:   loggerOrDefault(logger),
	}
}

// Publish implements Publisher. It stops at the first failed send.
func (p *SQSPublisher) Publish(ctx context.Context, changes []types.AlertChange) (int, error) {
	for i, change := range changes {
		msg := p.env.wrap(ctx, change)

		body, err := json.Marshal(msg)
		if err != nil {
			return i, types.NewAppError(types.ErrCodeInternalPublish, "failed to marshal alert change", err)
		}

		input := &sqs.SendMessageInput{
			QueueUrl:    aws.String(p.queueURL),
			MessageBody: aws.String(string(body)),
			MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
				"field_id": {
					DataType:    aws.String("String"),
					StringValue: aws.String(msg.FieldID),
				},
				"date": {
					DataType:    aws.String("String"),
					StringValue: aws.String(msg.Date),
				},
			},
		}

		if _, err := p.client.SendMessage(ctx, input); err != nil {
			return i, types.NewAppErrorWithDetails(types.ErrCodeInternalPublish,
				fmt.Sprintf("failed to send alert change to %s", p.queueURL), err,
				map[string]any{"field_id": msg.FieldID, "date": msg.Date})
		}
	}

	if len(changes) > 0 {
		p.logger.InfoContext(ctx, "alert changes sent",
			"queue_url", p.queueURL,
			"count", len(changes),
			"run_id", types.GetRunID(ctx),
		)
	}
	return len(changes), nil
}
