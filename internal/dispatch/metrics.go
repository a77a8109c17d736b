package dispatch

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"coursepulse/internal/types"
)

// MetricNamespace is the CloudWatch namespace all dispatch metrics land in.
const MetricNamespace = "CoursePulse/Dispatch"

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics implements Metrics by emitting to AWS CloudWatch.
//
// Metrics emitted:
//   - SendAttempt: Dims {Result} -- on every send outcome
//   - SendLatency: no dims -- wall time of one transport call
//   - DispatchBatchSize: no dims -- due rows selected per run
//
// Publishing is fire-and-forget: PutMetricData failures are logged and
// never affect dispatch.
var _ Metrics = (*CloudWatchMetrics)(nil)

type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

// NewCloudWatchMetrics creates a CloudWatchMetrics publishing to the
// default namespace.
func NewCloudWatchMetrics(client CloudWatchClient, logger types.Logger) *CloudWatchMetrics {
	return &CloudWatchMetrics{
		client:    client,
		namespace: MetricNamespace,
		logger:    logger,
	}
}

// RecordSend emits a SendAttempt metric with the Result dimension.
func (m *CloudWatchMetrics) RecordSend(ctx context.Context, result SendResult) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String("SendAttempt"),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{
						Name:  aws.String("Result"),
						Value: aws.String(string(result)),
					},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record send metric",
			"error", err.Error(),
			"result", string(result),
		)
	}
}

// RecordSendLatency emits the wall time of one transport call.
// Duration is recorded in milliseconds for CloudWatch precision.
func (m *CloudWatchMetrics) RecordSendLatency(ctx context.Context, d time.Duration) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String("SendLatency"),
				Value:      aws.Float64(float64(d.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record latency metric",
			"error", err.Error(),
			"duration_ms", d.Milliseconds(),
		)
	}
}

// RecordBatchSize emits the number of due rows selected for one run.
func (m *CloudWatchMetrics) RecordBatchSize(ctx context.Context, n int) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String("DispatchBatchSize"),
				Value:      aws.Float64(float64(n)),
				Unit:       cwtypes.StandardUnitCount,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record batch size metric",
			"error", err.Error(),
			"batch_size", n,
		)
	}
}

// NoopMetrics discards all telemetry.
type NoopMetrics struct{}

func (NoopMetrics) RecordSend(context.Context, SendResult)          {}
func (NoopMetrics) RecordSendLatency(context.Context, time.Duration) {}
func (NoopMetrics) RecordBatchSize(context.Context, int)             {}
