// SPDX-License-Identifier: MPL-2.0

package ranking

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// decisionsTotal counts rankings by method.
	// Labels: method (session, sampling)
	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bmadx",
		Subsystem: "ranking",
		Name:      "decisions_total",
		Help:      "Ranking decisions by method",
	}, []string{"method"})

	samplerFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bmadx",
		Subsystem: "ranking",
		Name:      "sampler_fallbacks_total",
		Help:      "Sampling judgments that failed and fell back to session ranking",
	})
)
