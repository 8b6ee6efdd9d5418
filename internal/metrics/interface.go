package metrics

import "context"

// Collector receives operation and tier-occupancy measurements. The serve
// command installs the Prometheus-backed collector; one-shot CLI commands
// and the stdio MCP server use the no-op collector.
type Collector interface {
	RecordOperation(ctx context.Context, operation string, status string, durationMs int64)
	RecordStage(ctx context.Context, operation string, stage string, durationMs int64)
	RecordError(ctx context.Context, operation string, errorType string)
	SetTierCount(ctx context.Context, tier string, count int64)
}
