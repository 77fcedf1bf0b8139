package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"agroalerts/internal/types"
)

// RunRecorder receives the outcome of every job run.
type RunRecorder interface {
	RecordRun(ctx context.Context, task, outcome string, duration time.Duration)
	RecordAlertsChanged(ctx context.Context, count int)
}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Compile-time assertions.
var (
	_ RunRecorder = (*CloudWatchRecorder)(nil)
	_ RunRecorder = (*Metrics)(nil)
	_ RunRecorder = MultiRecorder(nil)
)

// CloudWatchRecorder pushes run metrics to CloudWatch.
//
// Metrics emitted:
//   - PipelineRun: Dims {Task, Outcome}, one per run
//   - PipelineDuration: Dims {Task}, milliseconds
//   - AlertsChanged: no dims, rows new or changed in the alert store
//
// Publishing failures are logged and never fail the run.
type CloudWatchRecorder struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchRecorder creates a CloudWatchRecorder. An empty namespace uses
// types.MetricNamespace.
func NewCloudWatchRecorder(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchRecorder {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchRecorder{client: client, namespace: namespace, logger: logger}
}

// RecordRun emits PipelineRun and PipelineDuration in a single call.
func (r *CloudWatchRecorder) RecordRun(ctx context.Context, task, outcome string, duration time.Duration) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(r.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(types.MetricPipelineRun),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String(types.DimTask), Value: aws.String(task)},
					{Name: aws.String(types.DimOutcome), Value: aws.String(outcome)},
				},
			},
			{
				MetricName: aws.String(types.MetricPipelineDuration),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String(types.DimTask), Value: aws.String(task)},
				},
			},
		},
	}

	if _, err := r.client.PutMetricData(ctx, input); err != nil {
		r.logger.ErrorContext(ctx, "failed to record run metric",
			"error", err.Error(),
			"task", task,
			"outcome", outcome,
		)
	}
}

// RecordAlertsChanged emits AlertsChanged.
func (r *CloudWatchRecorder) RecordAlertsChanged(ctx context.Context, count int) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(r.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(types.MetricAlertsChanged),
				Value:      aws.Float64(float64(count)),
				Unit:       cwtypes.StandardUnitCount,
			},
		},
	}

	if _, err := r.client.PutMetricData(ctx, input); err != nil {
		r.logger.ErrorContext(ctx, "failed to record alerts changed metric",
			"error", err.Error(),
			"count", count,
		)
	}
}

// MultiRecorder fans every call out to each recorder in order.
type MultiRecorder []RunRecorder

// RecordRun implements RunRecorder.
func (m MultiRecorder) RecordRun(ctx context.Context, task, outcome string, duration time.Duration) {
	for _, r := range m {
		r.RecordRun(ctx, task, outcome, duration)
	}
}

// RecordAlertsChanged implements RunRecorder.
func (m MultiRecorder) RecordAlertsChanged(ctx context.Context, count int) {
	for _, r := range m {
		r.RecordAlertsChanged(ctx, count)
	}
}
