package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"profilehub/internal/access"
	"profilehub/internal/config"
	"profilehub/internal/core"
	"profilehub/internal/events"
	"profilehub/internal/telemetry"
)

// Metrics is implemented by every telemetry backend.
type Metrics interface {
	core.MetricsCollector
	access.VerdictRecorder
	access.UsageObserver
}

// Observability is the metrics backend plus the optional usage publisher.
type Observability struct {
	Metrics Metrics
	// Handler serves /metrics; nil unless the backend is Prometheus.
	Handler   http.Handler
	Publisher *events.SQSUsagePublisher
}

// Close flushes a buffering metrics backend.
func (o *Observability) Close() {
	if c, ok := o.Metrics.(interface{ Close() }); ok {
		c.Close()
	}
}

// ValidatorOptions registers the backend and publisher on the validator.
func (o *Observability) ValidatorOptions() []access.ValidatorOption {
	opts := []access.ValidatorOption{
		access.WithVerdictRecorder(o.Metrics),
		access.WithUsageObserver(o.Metrics),
	}
	if o.Publisher != nil {
		opts = append(opts, access.WithUsageObserver(o.Publisher))
	}
	return opts
}

// NewObservability builds the metrics backend and usage publisher selected
// by cfg. AWS clients are only created when a component needs them.
func NewObservability(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Observability, error) {
	var awsCfg aws.Config
	if cfg.NeedsAWS() {
		var err error
		awsCfg, err = loadAWSConfig(ctx, cfg.AWS)
		if err != nil {
			return nil, err
		}
	}

	o := &Observability{}
	switch cfg.Metrics.Backend {
	case config.MetricsPrometheus:
		pm := telemetry.NewPrometheusMetrics(strings.ToLower(cfg.Metrics.Namespace))
		o.Metrics = pm
		o.Handler = pm.Handler()
	case config.MetricsCloudWatch:
		client := cloudwatch.NewFromConfig(awsCfg, func(opt *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				opt.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		o.Metrics = telemetry.NewCloudWatchMetrics(client, cfg.Metrics.Namespace, logger)
	default:
		o.Metrics = telemetry.NoopMetrics{}
	}

	if cfg.Events.UsageQueueURL != "" {
		client := sqs.NewFromConfig(awsCfg, func(opt *sqs.Options) {
			if cfg.AWS.EndpointURL != "" {
				opt.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		o.Publisher = events.NewSQSUsagePublisher(client, cfg.Events.UsageQueueURL, logger)
	}

	logger.Info("observability configured",
		"metrics_backend", cfg.Metrics.Backend,
		"usage_events", o.Publisher != nil,
	)
	return o, nil
}

func loadAWSConfig(ctx context.Context, c config.AWSConfig) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if c.Region != "" {
		opts = append(opts, awsconfig.WithRegion(c.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return awsCfg, nil
}
