// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// eventsTotal counts relevant filesystem events.
	// Labels: op (create, write, remove, rename, other)
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bmadx",
		Subsystem: "watch",
		Name:      "events_total",
		Help:      "Filesystem events that scheduled a reload",
	}, []string{"op"})

	// reloadsTotal counts debounced reloads.
	// Labels: result (ok, error)
	reloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bmadx",
		Subsystem: "watch",
		Name:      "reloads_total",
		Help:      "Debounced reloads by result",
	}, []string{"result"})
)
