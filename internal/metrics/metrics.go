// Registers:
//
//	#fundingboard_source_loads_total
//	#fundingboard_dropped_rows_total
//	#fundingboard_series_builds_total
//	#fundingboard_chart_renders_total
//	#fundingboard_stale_responses_total
//	#fundingboard_loaded_observations
//	#fundingboard_loaded_coins
//	#go_* and process_* system metrics
//
// Exposed by the dashboard router on /metrics.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fundingboard"

var (
	once     sync.Once
	registry = prometheus.NewRegistry()

	sourceLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_loads_total",
			Help:      "Snapshot and history fetches by outcome",
		},
		[]string{"source", "outcome"},
	)
	droppedRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_rows_total",
			Help:      "Malformed records skipped while decoding",
		},
		[]string{"source"},
	)
	seriesBuilds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "series_builds_total",
			Help:      "Hourly series built per range",
		},
		[]string{"range"},
	)
	chartRenders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chart_renders_total",
			Help:      "Chart images served by type and cache result",
		},
		[]string{"type", "cache"},
	)
	staleResponses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_responses_total",
			Help:      "History responses superseded by a newer request",
		},
	)
	loadedObservations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loaded_observations",
			Help:      "Observations held from the last history load",
		},
	)
	loadedCoins = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loaded_coins",
			Help:      "Coins in the last snapshot",
		},
	)
)

// Init registers the collectors once.
func Init() {
	once.Do(func() {
		registry.MustRegister(
			sourceLoads,
			droppedRows,
			seriesBuilds,
			chartRenders,
			staleResponses,
			loadedObservations,
			loadedCoins,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	Init()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// RecordSourceLoad counts one fetch of source ("snapshot" or "history").
func RecordSourceLoad(source string, err error, dropped int) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	sourceLoads.WithLabelValues(source, outcome).Inc()
	if dropped > 0 {
		droppedRows.WithLabelValues(source).Add(float64(dropped))
	}
}

// SetLoaded updates the dataset size gauges.
func SetLoaded(coins, observations int) {
	if coins >= 0 {
		loadedCoins.Set(float64(coins))
	}
	if observations >= 0 {
		loadedObservations.Set(float64(observations))
	}
}

// IncrementSeriesBuild counts one series build for the given range.
func IncrementSeriesBuild(r string) {
	seriesBuilds.WithLabelValues(r).Inc()
}

// IncrementChartRender counts one chart response; hit reports a cache hit.
func IncrementChartRender(chartType string, hit bool) {
	cache := "miss"
	if hit {
		cache = "hit"
	}
	chartRenders.WithLabelValues(chartType, cache).Inc()
}

// IncrementStale counts a response that lost to a newer request.
func IncrementStale() {
	staleResponses.Inc()
}
