// Package metrics exports gate verdicts in the Prometheus text format so a
// node_exporter textfile collector can pick them up.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Results lists every label value the status gauge carries.
var Results = []string{"PASS", "FAIL", "SKIP"}

// GateExporter records gate verdicts on a private registry.
type GateExporter struct {
	reg *prometheus.Registry

	status  *prometheus.GaugeVec
	lastRun *prometheus.GaugeVec
}

// NewGateExporter creates an exporter with its own registry.
func NewGateExporter() *GateExporter {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &GateExporter{
		reg: reg,
		status: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "phasegate",
				Subsystem: "gate",
				Name:      "status",
				Help:      "Latest gate verdict (1 for the current result, 0 otherwise)",
			},
			[]string{"gate", "iteration", "result"},
		),
		lastRun: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "phasegate",
				Subsystem: "gate",
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time of the latest evaluation of the gate",
			},
			[]string{"gate", "iteration"},
		),
	}
}

// Observe records one verdict. result is PASS, FAIL or SKIP.
func (e *GateExporter) Observe(gate, iteration, result string, at time.Time) {
	for _, r := range Results {
		v := 0.0
		if r == result {
			v = 1
		}
		e.status.WithLabelValues(gate, iteration, r).Set(v)
	}
	e.lastRun.WithLabelValues(gate, iteration).Set(float64(at.Unix()))
}

// WriteTextfile writes the collected metrics to dir/<name>.prom atomically.
// Use one file per gate: the textfile collector rejects a series that
// appears in two files.
func (e *GateExporter) WriteTextfile(dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating metrics directory: %w", err)
	}
	path := filepath.Join(dir, name+".prom")
	if err := prometheus.WriteToTextfile(path, e.reg); err != nil {
		return "", fmt.Errorf("writing metrics textfile: %w", err)
	}
	return path, nil
}
