// Package telemetry records request, verdict and usage metrics to Prometheus
// or CloudWatch.
package telemetry

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"profilehub/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

const (
	// maxDatumsPerPut is the PutMetricData limit on data points per call.
	maxDatumsPerPut = 1000

	defaultFlushInterval = 10 * time.Second
	defaultBufferSize    = 4096
	flushTimeout         = 5 * time.Second
)

// CloudWatchOption configures a CloudWatchMetrics.
type CloudWatchOption func(*CloudWatchMetrics)

// WithFlushInterval sets how often buffered data points are sent.
func WithFlushInterval(d time.Duration) CloudWatchOption {
	return func(m *CloudWatchMetrics) { m.flushInterval = d }
}

// WithBufferSize sets how many data points may wait for the next flush.
func WithBufferSize(n int) CloudWatchOption {
	return func(m *CloudWatchMetrics) { m.bufferSize = n }
}

// CloudWatchMetrics buffers observations and sends them in batches from a
// background goroutine. Recording never blocks on CloudWatch. When the buffer
// is full new data points are dropped and counted. Close flushes what is left.
//
// Metrics emitted:
//   - APIRequestCount / APILatency: Dims {Endpoint, Status}
//   - AccessVerdict: Dims {Operation, Reason}
//   - UsageCharged: Dims {Operation, RunKind}, value is the charged cost
type CloudWatchMetrics struct {
	client        CloudWatchClient
	namespace     string
	logger        *slog.Logger
	flushInterval time.Duration
	bufferSize    int

	queue     chan cwtypes.MetricDatum
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Int64
}

// NewCloudWatchMetrics creates a CloudWatchMetrics publishing to namespace,
// falling back to types.MetricNamespace when empty, and starts its flush loop.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger, opts ...CloudWatchOption) *CloudWatchMetrics {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	m := &CloudWatchMetrics{
		client:        client,
		namespace:     namespace,
		logger:        logger,
		flushInterval: defaultFlushInterval,
		bufferSize:    defaultBufferSize,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.queue = make(chan cwtypes.MetricDatum, m.bufferSize)
	go m.run()
	return m
}

// RecordRequest queues request count and latency for one HTTP request.
func (m *CloudWatchMetrics) RecordRequest(method, endpoint, status string, duration time.Duration) {
	dims := []cwtypes.Dimension{
		dimension(types.DimEndpoint, method+" "+endpoint),
		dimension(types.DimStatus, status),
	}
	m.enqueue(
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricAPIRequests),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricAPILatency),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: dims,
		},
	)
}

// RecordVerdict counts one access decision.
func (m *CloudWatchMetrics) RecordVerdict(_ context.Context, v types.Verdict) {
	m.enqueue(cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricVerdicts),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			dimension(types.DimOperation, string(v.Operation)),
			dimension(types.DimReason, string(v.ReasonCode)),
		},
	})
}

// UsageRecorded queues the charged cost. It never fails the charge.
func (m *CloudWatchMetrics) UsageRecorded(_ context.Context, e types.UsageEvent) error {
	m.enqueue(cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricUsageCharged),
		Value:      aws.Float64(e.Cost.InexactFloat64()),
		Unit:       cwtypes.StandardUnitNone,
		Dimensions: []cwtypes.Dimension{
			dimension(types.DimOperation, string(e.Operation)),
			dimension(types.DimRunKind, string(e.RunKind)),
		},
	})
	return nil
}

// Dropped reports how many data points were discarded on a full buffer.
func (m *CloudWatchMetrics) Dropped() int64 {
	return m.dropped.Load()
}

// Close stops the flush loop after sending every queued data point.
func (m *CloudWatchMetrics) Close() {
	m.closeOnce.Do(func() { close(m.stop) })
	<-m.done
}

func (m *CloudWatchMetrics) enqueue(data ...cwtypes.MetricDatum) {
	for _, d := range data {
		select {
		case m.queue <- d:
		default:
			m.dropped.Add(1)
		}
	}
}

func (m *CloudWatchMetrics) run() {
	defer close(m.done)
	ticker := time.NewTicker(m.flushInterval)
	defer ticker.Stop()

	batch := make([]cwtypes.MetricDatum, 0, maxDatumsPerPut)
	flush := func() {
		if len(batch) > 0 {
			m.put(batch)
			batch = batch[:0]
		}
	}
	for {
		select {
		case d := <-m.queue:
			batch = append(batch, d)
			if len(batch) == maxDatumsPerPut {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-m.stop:
			for {
				select {
				case d := <-m.queue:
					batch = append(batch, d)
					if len(batch) == maxDatumsPerPut {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

func (m *CloudWatchMetrics) put(data []cwtypes.MetricDatum) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: append([]cwtypes.MetricDatum(nil), data...),
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to send metrics",
			"error", err.Error(),
			"data_points", strconv.Itoa(len(data)),
			"dropped_total", m.dropped.Load(),
		)
	}
}

func dimension(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}
