// Package obs emits operational metrics to CloudWatch. It backs the API
// chassis' MetricsCollector and adds the checkout-specific counters the
// storefront dashboards alarm on.
package obs

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metric and dimension names. Renaming any of these breaks dashboards and
// alarms, so treat them as part of the operational contract.
const (
	MetricRequestCount   = "RequestCount"
	MetricRequestLatency = "RequestLatency"
	MetricOrdersCreated  = "OrdersCreated"
	MetricCheckoutFailed = "CheckoutFailed"

	DimMethod   = "Method"
	DimEndpoint = "Endpoint"
	DimStatus   = "Status"
	DimReason   = "Reason"
)

// putTimeout bounds each PutMetricData call so a slow CloudWatch endpoint
// never stalls request handling.
const putTimeout = 2 * time.Second

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability. Production code uses the *cloudwatch.Client from
// aws-sdk-go-v2.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics publishes request telemetry and checkout counters.
// Every emit is best-effort: a metrics failure is logged and swallowed,
// never surfaced to the request path.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchMetrics creates a CloudWatchMetrics publishing to the given
// namespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordRequest emits a request count and latency datum for a completed API
// request. Called from middleware after the response is written, so it uses
// its own bounded context rather than the (already finished) request's.
func (m *CloudWatchMetrics) RecordRequest(method, endpoint, status string, duration time.Duration) {
	dims := []cwtypes.Dimension{
		{Name: aws.String(DimMethod), Value: aws.String(method)},
		{Name: aws.String(DimEndpoint), Value: aws.String(endpoint)},
		{Name: aws.String(DimStatus), Value: aws.String(status)},
	}

	m.put(&cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(MetricRequestCount),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: dims,
			},
			{
				MetricName: aws.String(MetricRequestLatency),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String(DimEndpoint), Value: aws.String(endpoint)},
				},
			},
		},
	})
}

// RecordOrderCreated counts a successful checkout. recurring distinguishes
// subscription sign-ups from one-time orders on the dashboard.
func (m *CloudWatchMetrics) RecordOrderCreated(ctx context.Context, recurring bool) {
	orderType := "one_time"
	if recurring {
		orderType = "subscription"
	}

	m.put(&cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(MetricOrdersCreated),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String("OrderType"), Value: aws.String(orderType)},
				},
			},
		},
	})
}

// RecordCheckoutFailed counts a failed checkout attempt with a coarse
// failure reason ("validation", "out_of_stock", "payment_declined",
// "upstream").
func (m *CloudWatchMetrics) RecordCheckoutFailed(ctx context.Context, reason string) {
	m.put(&cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(MetricCheckoutFailed),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String(DimReason), Value: aws.String(reason)},
				},
			},
		},
	})
}

func (m *CloudWatchMetrics) put(input *cloudwatch.PutMetricDataInput) {
	ctx, cancel := context.WithTimeout(context.Background(), putTimeout)
	defer cancel()

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Warn("failed to publish metric",
			"namespace", m.namespace,
			"error", err,
		)
	}
}
