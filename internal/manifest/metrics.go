// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// recordsTotal reports the record count of the latest reconciliation.
	// Labels: kind (agent, workflow, task), status (verified, not-in-manifest, no-file-found)
	recordsTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "bmadx",
		Subsystem: "manifest",
		Name:      "records",
		Help:      "Records in the latest reconciled set by kind and status",
	}, []string{"kind", "status"})

	diagnosticsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bmadx",
		Subsystem: "manifest",
		Name:      "diagnostics_total",
		Help:      "Reconciliation diagnostics by code",
	}, []string{"code"})

	reloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bmadx",
		Subsystem: "manifest",
		Name:      "reloads_total",
		Help:      "Completed reconciler reloads",
	})

	reconcileSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "bmadx",
		Subsystem: "manifest",
		Name:      "reconcile_seconds",
		Help:      "Time spent reconciling one location",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
)

func observe(set *Set, elapsed time.Duration) {
	reconcileSeconds.Observe(elapsed.Seconds())
	for _, kind := range Kinds {
		counts := map[Status]float64{StatusVerified: 0, StatusNotInManifest: 0, StatusNoFileFound: 0}
		for _, r := range set.Records(kind) {
			counts[r.Status]++
		}
		for status, n := range counts {
			recordsTotal.WithLabelValues(string(kind), string(status)).Set(n)
		}
	}
	for _, d := range set.Diagnostics {
		diagnosticsTotal.WithLabelValues(d.Code).Inc()
	}
}
