package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// searchQueries counts committed searches by final state.
	searchQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_queries_total",
			Help: "Total number of committed searches by final state.",
		},
		[]string{"state"},
	)

	// searchSourceResults counts hits contributed by each source before merge.
	searchSourceResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_source_results_total",
			Help: "Hits returned per source (custom, static) before merging.",
		},
		[]string{"source"},
	)

	searchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "search_duration_seconds",
			Help:    "Time spent querying and merging both sources.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// searchStale counts results dropped because a newer query superseded them.
	searchStale = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "search_stale_responses_total",
			Help: "Search results discarded because a newer query was committed.",
		},
	)

	searchStaticAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "search_static_available",
			Help: "1 when the static page index was found at startup, else 0.",
		},
	)

	// indexBuilds counts custom index (re)builds by outcome.
	indexBuilds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_index_builds_total",
			Help: "Custom search index builds by result (ok, error).",
		},
		[]string{"result"},
	)

	indexRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "search_index_records",
			Help: "Records in the currently served custom index.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		searchQueries, searchSourceResults, searchDuration, searchStale,
		searchStaticAvailable, indexBuilds, indexRecords,
	)
}

// ObserveSearch records one committed search.
func ObserveSearch(state string, customHits, staticHits int, d time.Duration) {
	searchQueries.WithLabelValues(state).Inc()
	searchSourceResults.WithLabelValues("custom").Add(float64(customHits))
	searchSourceResults.WithLabelValues("static").Add(float64(staticHits))
	searchDuration.Observe(d.Seconds())
}

// StaleDropped records one superseded result.
func StaleDropped() { searchStale.Inc() }

// SetStaticAvailable publishes the static index selection.
func SetStaticAvailable(ok bool) {
	if ok {
		searchStaticAvailable.Set(1)
		return
	}
	searchStaticAvailable.Set(0)
}

// IndexBuilt records a custom index build attempt. records is ignored when
// err is non-nil.
func IndexBuilt(records int, err error) {
	if err != nil {
		indexBuilds.WithLabelValues("error").Inc()
		return
	}
	indexBuilds.WithLabelValues("ok").Inc()
	indexRecords.Set(float64(records))
}
