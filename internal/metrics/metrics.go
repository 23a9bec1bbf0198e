// Package metrics holds the prometheus collectors of the service. They are registered
// with the default registry and exposed on /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	KeyAcquisitions  *prometheus.CounterVec
	KeysDisabled     prometheus.Counter
	ProviderCalls    *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec
	StageRuns        *prometheus.CounterVec
	ItemsGenerated   *prometheus.CounterVec
	Publications     *prometheus.CounterVec
	JobRuns          *prometheus.CounterVec
)

func init() {
	KeyAcquisitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentmill_key_acquisitions_total",
			Help: "Total number of provider keys handed out by the vault.",
		},
		[]string{"provider"},
	)
	KeysDisabled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "contentmill_keys_disabled_total",
			Help: "Total number of keys disabled after reaching the failure threshold.",
		},
	)
	ProviderCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentmill_provider_calls_total",
			Help: "Vendor calls by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)
	ProviderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contentmill_provider_call_duration_seconds",
			Help:    "Duration of vendor calls.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"provider"},
	)
	StageRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentmill_stage_runs_total",
			Help: "Generation stage runs by stage and outcome.",
		},
		[]string{"stage", "outcome"},
	)
	ItemsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentmill_items_generated_total",
			Help: "Rows inserted into the content pools by kind.",
		},
		[]string{"kind"},
	)
	Publications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentmill_publications_total",
			Help: "Publish attempts by outcome.",
		},
		[]string{"outcome"},
	)
	JobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentmill_job_runs_total",
			Help: "Scheduled job firings by job kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	prometheus.MustRegister(
		KeyAcquisitions,
		KeysDisabled,
		ProviderCalls,
		ProviderDuration,
		StageRuns,
		ItemsGenerated,
		Publications,
		JobRuns,
	)
}

// Outcome maps an error to the outcome label value.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
