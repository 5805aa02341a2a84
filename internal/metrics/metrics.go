// Package metrics records registry operation counts and latencies.
//
// The Prometheus recorder keeps its own registry, so several registries in
// one process (tests, embedded use) never collide on the default one. The CLI
// flushes it to a node_exporter textfile after each command.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation kinds.
const (
	OpIssue   = "issue"
	OpRevoke  = "revoke"
	OpVerify  = "verify"
	OpProof   = "proof"
	OpPublish = "publish"
)

// Recorder receives one call per completed operation.
type Recorder interface {
	RecordOperation(op string, d time.Duration, success bool)
	SetCertificates(active, revoked int)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordOperation(string, time.Duration, bool) {}
func (Nop) SetCertificates(int, int)                    {}

// Prometheus is a Recorder backed by client_golang collectors.
type Prometheus struct {
	registry     *prometheus.Registry
	operations   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	certificates *prometheus.GaugeVec
}

// NewPrometheus creates a recorder with its own registry.
func NewPrometheus(namespace string) *Prometheus {
	if namespace == "" {
		namespace = "credledger"
	}
	p := &Prometheus{registry: prometheus.NewRegistry()}

	p.operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Registry operations by kind and outcome",
		},
		[]string{"op", "result"},
	)

	p.duration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Registry operation latency",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"op"},
	)

	p.certificates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "certificates",
			Help:      "Certificates held by status",
		},
		[]string{"status"},
	)

	p.registry.MustRegister(p.operations, p.duration, p.certificates)
	return p
}

// RecordOperation implements Recorder.
func (p *Prometheus) RecordOperation(op string, d time.Duration, success bool) {
	result := "ok"
	if !success {
		result = "error"
	}
	p.operations.WithLabelValues(op, result).Inc()
	p.duration.WithLabelValues(op).Observe(d.Seconds())
}

// SetCertificates implements Recorder.
func (p *Prometheus) SetCertificates(active, revoked int) {
	p.certificates.WithLabelValues("active").Set(float64(active))
	p.certificates.WithLabelValues("revoked").Set(float64(revoked))
}

// Registry exposes the underlying registry.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// WriteTextfile writes the current values in text exposition format.
// The file is replaced atomically.
func (p *Prometheus) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, p.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

// Since is a small helper for deferred recording.
//
//	defer metrics.Since(rec, metrics.OpIssue, time.Now(), &err)
func Since(r Recorder, op string, start time.Time, errp *error) {
	success := errp == nil || *errp == nil
	r.RecordOperation(op, time.Since(start), success)
}
