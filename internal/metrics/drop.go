package metrics

import "fundingboard/logger"

// DropMetric identifies the metric name emitted when decoded records are dropped.
type DropMetric string

const (
	// DropMetricSnapshot records snapshot entries without a coin or a numeric rate.
	DropMetricSnapshot DropMetric = "snapshot_entries_dropped"
	// DropMetricHistory records history rows that could not be parsed.
	DropMetricHistory DropMetric = "history_rows_dropped"
)

// EmitDropMetric logs and emits a metric for count records dropped while
// loading uri. Nothing is emitted when count is zero.
func EmitDropMetric(log *logger.Log, metric DropMetric, uri string, count int) {
	if count <= 0 {
		return
	}
	fields := logger.Fields{}
	if uri != "" {
		fields["uri"] = uri
	}
	EmitMetric(log, "source", string(metric), count, "counter", fields)
}
