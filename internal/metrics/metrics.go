// Package metrics exposes Prometheus instrumentation for logins, secret
// fetches, retries and renewal timers.
package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Login metrics
	loginTotal    *prometheus.CounterVec
	loginDuration *prometheus.HistogramVec
	authenticated prometheus.Gauge

	// Secret metrics
	secretFetchTotal *prometheus.CounterVec
	retryTotal       *prometheus.CounterVec

	// Renewal metrics
	renewalsArmed prometheus.Gauge
	renewalsFired *prometheus.CounterVec

	// Registration guard
	metricsOnce       sync.Once
	metricsRegistered atomic.Bool
)

// Recorder records client lifecycle metrics. Until InitMetrics is called
// every method is a no-op.
type Recorder struct{}

// NewRecorder creates a new Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// InitMetrics registers all collectors with the default registry.
func InitMetrics() {
	metricsOnce.Do(func() {
		loginTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultlease_login_total",
				Help: "Total number of login attempts by backend and outcome",
			},
			[]string{"backend", "status"},
		)

		loginDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vaultlease_login_duration_seconds",
				Help:    "Duration of login operations in seconds, including retries",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"backend"},
		)

		authenticated = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vaultlease_authenticated",
				Help: "Current credential state (1=authenticated, 0=not authenticated)",
			},
		)

		secretFetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultlease_secret_fetch_total",
				Help: "Total number of secret fetches by outcome",
			},
			[]string{"status"},
		)

		retryTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultlease_retry_attempts_total",
				Help: "Total number of failed attempts that were retried",
			},
			[]string{"operation"},
		)

		renewalsArmed = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vaultlease_renewals_armed",
				Help: "Number of renewal timers currently armed",
			},
		)

		renewalsFired = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultlease_renewals_fired_total",
				Help: "Total number of renewal timers that fired",
			},
			[]string{"kind"},
		)

		metricsRegistered.Store(true)
	})
}

// RecordLogin records the outcome of a login.
func (m *Recorder) RecordLogin(backend string, success bool, durationSeconds float64) {
	if !metricsRegistered.Load() {
		return
	}

	status := "failure"
	if success {
		status = "success"
	}
	loginTotal.WithLabelValues(backend, status).Inc()
	loginDuration.WithLabelValues(backend).Observe(durationSeconds)
}

// SetAuthenticated records the current credential state.
func (m *Recorder) SetAuthenticated(ok bool) {
	if !metricsRegistered.Load() {
		return
	}
	value := 0.0
	if ok {
		value = 1.0
	}
	authenticated.Set(value)
}

// RecordSecretFetch records the outcome of one secret fetch.
func (m *Recorder) RecordSecretFetch(success bool) {
	if !metricsRegistered.Load() {
		return
	}
	status := "failure"
	if success {
		status = "success"
	}
	secretFetchTotal.WithLabelValues(status).Inc()
}

// RecordRetry records a failed attempt that will be retried.
func (m *Recorder) RecordRetry(operation string) {
	if !metricsRegistered.Load() {
		return
	}
	retryTotal.WithLabelValues(operation).Inc()
}

// SetRenewalsArmed records how many renewal timers are armed.
func (m *Recorder) SetRenewalsArmed(n int) {
	if !metricsRegistered.Load() {
		return
	}
	renewalsArmed.Set(float64(n))
}

// RecordRenewalFired records a renewal timer firing. kind is "auth" or "secret".
func (m *Recorder) RecordRenewalFired(kind string) {
	if !metricsRegistered.Load() {
		return
	}
	renewalsFired.WithLabelValues(kind).Inc()
}

// GetLoginTotal returns the login counter for testing.
func GetLoginTotal() *prometheus.CounterVec {
	return loginTotal
}

// GetSecretFetchTotal returns the secret fetch counter for testing.
func GetSecretFetchTotal() *prometheus.CounterVec {
	return secretFetchTotal
}

// GetRetryTotal returns the retry counter for testing.
func GetRetryTotal() *prometheus.CounterVec {
	return retryTotal
}

// GetRenewalsArmed returns the armed renewal gauge for testing.
func GetRenewalsArmed() prometheus.Gauge {
	return renewalsArmed
}

// GetRenewalsFired returns the fired renewal counter for testing.
func GetRenewalsFired() *prometheus.CounterVec {
	return renewalsFired
}

// IsMetricsRegistered returns whether metrics have been initialized.
func IsMetricsRegistered() bool {
	return metricsRegistered.Load()
}
