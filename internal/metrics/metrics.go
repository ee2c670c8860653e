// Package metrics exposes Prometheus collectors for analysis runs and the
// external tools they drive.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// commandTotal counts external tool invocations.
	// Labels: command (ffmpeg, ffprobe, classifier), status (success, failed).
	commandTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accentscan_command_executions_total",
			Help: "Total number of external command executions",
		},
		[]string{"command", "status"},
	)

	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "accentscan_command_duration_seconds",
			Help:    "Duration of external command executions in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"command"},
	)

	// classificationsTotal counts chunk classifications by outcome (ok, error).
	classificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accentscan_classifications_total",
			Help: "Total number of chunk classifications by outcome",
		},
		[]string{"outcome"},
	)

	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accentscan_runs_total",
			Help: "Total number of analysis runs by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(commandTotal)
	prometheus.MustRegister(commandDuration)
	prometheus.MustRegister(classificationsTotal)
	prometheus.MustRegister(runsTotal)
}

// ObserveCommand records one external command execution and its duration.
func ObserveCommand(command string, err error, took time.Duration) {
	status := "success"
	if err != nil {
		status = "failed"
	}
	commandTotal.WithLabelValues(command, status).Inc()
	commandDuration.WithLabelValues(command).Observe(took.Seconds())
}

func RecordClassification(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	classificationsTotal.WithLabelValues(outcome).Inc()
}

func RecordRun(err error) {
	outcome := "success"
	if err != nil {
		outcome = "failed"
	}
	runsTotal.WithLabelValues(outcome).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
