package metrics

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"guardian/internal/types"
)

// CloudWatch metric and dimension names.
const (
	MetricEvaluatedUsers    = "EvaluatedUsers"
	MetricWarningsCreated   = "WarningsCreated"
	MetricSkippedUsers      = "SkippedUsers"
	MetricNotificationsSent = "NotificationsSent"
	MetricRunDuration       = "DetectionRunDuration"

	DimStatus  = "Status"
	DimTrigger = "Trigger"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

var _ types.RunMetrics = (*CloudWatchRecorder)(nil)

// CloudWatchRecorder pushes one PutMetricData call per run. Failures are
// logged and never affect the run.
type CloudWatchRecorder struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchRecorder creates a CloudWatchRecorder publishing to namespace.
func NewCloudWatchRecorder(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchRecorder{client: client, namespace: namespace, logger: logger}
}

// RecordRun implements types.RunMetrics.
func (m *CloudWatchRecorder) RecordRun(ctx context.Context, s *types.RunSummary) {
	dims := []cwtypes.Dimension{
		{Name: aws.String(DimStatus), Value: aws.String(s.Status())},
		{Name: aws.String(DimTrigger), Value: aws.String(string(s.Trigger))},
	}
	ts := aws.Time(s.FinishedAt)

	count := func(name string, v int) cwtypes.MetricDatum {
		return cwtypes.MetricDatum{
			MetricName: aws.String(name),
			Value:      aws.Float64(float64(v)),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
			Timestamp:  ts,
		}
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			count(MetricEvaluatedUsers, s.EvaluatedUsers),
			count(MetricWarningsCreated, s.WarningsCreated),
			count(MetricSkippedUsers, len(s.SkippedUsers)),
			count(MetricNotificationsSent, s.NotificationsSent),
			{
				MetricName: aws.String(MetricRunDuration),
				Value:      aws.Float64(float64(s.FinishedAt.Sub(s.StartedAt).Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: dims,
				Timestamp:  ts,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record detection metrics",
			"error", err.Error(),
			"run_id", s.RunID,
		)
	}
}
