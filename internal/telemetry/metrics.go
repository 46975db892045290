package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const importScopeName = "github.com/weftdb/weft/engine"

// ImportMetrics counts ingestion runs and their outcomes. With
// telemetry disabled the underlying meter is a no-op, so the engine
// records unconditionally.
type ImportMetrics struct {
	runs       metric.Int64Counter
	duration   metric.Float64Histogram
	assertions metric.Int64Counter
	rowErrors  metric.Int64Counter
}

// NewImportMetrics builds the engine's instrument set.
func NewImportMetrics() *ImportMetrics {
	m := Meter(importScopeName)
	runs, _ := m.Int64Counter("weft.import.runs",
		metric.WithDescription("Import runs by terminal status"),
	)
	duration, _ := m.Float64Histogram("weft.import.duration",
		metric.WithDescription("Import run wall time in milliseconds"),
		metric.WithUnit("ms"),
	)
	assertions, _ := m.Int64Counter("weft.import.assertions",
		metric.WithDescription("Assertions written, by outcome (created, closed, modified, unchanged)"),
	)
	rowErrors, _ := m.Int64Counter("weft.import.row_errors",
		metric.WithDescription("Per-row store errors survived during a run"),
	)
	return &ImportMetrics{runs: runs, duration: duration, assertions: assertions, rowErrors: rowErrors}
}

// RecordRun reports one finished run.
func (im *ImportMetrics) RecordRun(ctx context.Context, workspaceID, status string, elapsed time.Duration) {
	if im == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("workspace", workspaceID),
		attribute.String("status", status),
	)
	im.runs.Add(ctx, 1, attrs)
	im.duration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
}

// RecordAssertions reports assertion outcomes of one run.
func (im *ImportMetrics) RecordAssertions(ctx context.Context, workspaceID, outcome string, n int) {
	if im == nil || n == 0 {
		return
	}
	im.assertions.Add(ctx, int64(n), metric.WithAttributes(
		attribute.String("workspace", workspaceID),
		attribute.String("outcome", outcome),
	))
}

// RecordRowErrors reports the survived per-row error count of one run.
func (im *ImportMetrics) RecordRowErrors(ctx context.Context, workspaceID string, n int) {
	if im == nil || n == 0 {
		return
	}
	im.rowErrors.Add(ctx, int64(n), metric.WithAttributes(
		attribute.String("workspace", workspaceID),
	))
}
