// SPDX-License-Identifier: MPL-2.0

package remote

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// fetchesTotal counts cache operations.
	// Labels: op (clone, clone_failed, fetch, fetch_failed, reuse, shared)
	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bmadx",
		Subsystem: "remote",
		Name:      "cache_operations_total",
		Help:      "Remote cache operations by outcome",
	}, []string{"op"})

	catalogLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bmadx",
		Subsystem: "remote",
		Name:      "catalog_lookups_total",
		Help:      "Catalog LRU lookups by result (hit, miss)",
	}, []string{"result"})

	resolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bmadx",
		Subsystem: "remote",
		Name:      "resolutions_total",
		Help:      "Remote reference resolutions by match kind",
	}, []string{"match"})
)
