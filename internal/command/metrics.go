// SPDX-License-Identifier: MPL-2.0

package command

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// commandsTotal counts executed commands.
	// Labels: type (agent, workflow, list, help, error), exit_code
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bmadx",
		Subsystem: "command",
		Name:      "executions_total",
		Help:      "Executed commands by result type and exit code",
	}, []string{"type", "exit_code"})

	commandSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "bmadx",
		Subsystem: "command",
		Name:      "duration_seconds",
		Help:      "Command execution latency",
		Buckets:   prometheus.DefBuckets,
	})
)

func observe(res Result, elapsed time.Duration) {
	commandsTotal.WithLabelValues(string(res.Type), strconv.Itoa(res.ExitCode)).Inc()
	commandSeconds.Observe(elapsed.Seconds())
}
