package telemetry

import (
	"context"
	"time"

	"profilehub/internal/types"
)

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) RecordRequest(_, _, _ string, _ time.Duration)             {}
func (NoopMetrics) RecordVerdict(_ context.Context, _ types.Verdict)          {}
func (NoopMetrics) UsageRecorded(_ context.Context, _ types.UsageEvent) error { return nil }
