// Package metrics counts report events with Prometheus.
package metrics

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/afero"
)

// Metrics holds all Prometheus metrics of a report stream
type Metrics struct {
	// Events counts enter and leave events
	Events *prometheus.CounterVec

	// Exits counts abnormal test terminations by kind
	Exits *prometheus.CounterVec

	// OpenUnits is the number of entered but not yet left units
	OpenUnits prometheus.Gauge

	// UnitDuration observes the time between enter and leave
	UnitDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		Events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calltrace_events_total",
				Help: "Total number of reported enter and leave events",
			},
			[]string{"unit", "action", "status"},
		),
		Exits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calltrace_exits_total",
				Help: "Total number of abnormal test terminations",
			},
			[]string{"kind"},
		),
		OpenUnits: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "calltrace_open_units",
				Help: "Number of units entered but not yet left",
			},
		),
		UnitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "calltrace_unit_duration_seconds",
				Help:    "Time between enter and leave of a unit in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"unit", "status"},
		),
	}
}

// NewRegistry creates a new Prometheus registry with metrics
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	return reg, m
}

// Encode writes all metrics of g to w in the text exposition format.
func Encode(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// WriteTextfile writes all metrics of g to path on afs, e.g. for the node
// exporter textfile collector.
func WriteTextfile(afs afero.Fs, g prometheus.Gatherer, path string) error {
	var buf bytes.Buffer
	if err := Encode(&buf, g); err != nil {
		return err
	}
	if err := afs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(afs, path, buf.Bytes(), 0o644)
}
