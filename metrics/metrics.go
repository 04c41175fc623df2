// Package metrics provides Prometheus metrics for authentication operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for authentication operations.
type Metrics struct {
	enabled bool

	// Verification metrics
	verificationsTotal       prometheus.Counter
	verificationFailuresTotal *prometheus.CounterVec

	// Key-set metrics
	keySetFetchesTotal *prometheus.CounterVec
	keyCacheHitsTotal  prometheus.Counter
	keyCacheMissTotal  prometheus.Counter

	// Login metrics
	loginAttemptsTotal  *prometheus.CounterVec
	tokenRefreshesTotal *prometheus.CounterVec
}

// New creates and registers Prometheus metrics.
// If enabled is false, returns a no-op Metrics instance.
func New(enabled bool) *Metrics {
	m := &Metrics{enabled: enabled}

	if !enabled {
		return m
	}

	m.verificationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_verifications_total",
		Help: "Total token verification attempts",
	})

	m.verificationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_verification_failures_total",
		Help: "Total token verification failures",
	}, []string{"reason"})

	m.keySetFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_keyset_fetches_total",
		Help: "Total JWKS fetches",
	}, []string{"result"})

	m.keyCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_key_cache_hits_total",
		Help: "Total signing-key cache hits",
	})

	m.keyCacheMissTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_key_cache_misses_total",
		Help: "Total signing-key cache misses",
	})

	m.loginAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_login_attempts_total",
		Help: "Total client-side login attempts",
	}, []string{"outcome"})

	m.tokenRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_token_refreshes_total",
		Help: "Total silent session renewals",
	}, []string{"result"})

	return m
}

// RecordVerification counts a verification attempt.
func (m *Metrics) RecordVerification() {
	if m == nil || !m.enabled {
		return
	}
	m.verificationsTotal.Inc()
}

// RecordVerificationFailure counts a verification failure by reason.
func (m *Metrics) RecordVerificationFailure(reason string) {
	if m == nil || !m.enabled {
		return
	}
	m.verificationFailuresTotal.WithLabelValues(reason).Inc()
}

// RecordKeySetFetch counts a JWKS fetch by result ("ok" or "error").
func (m *Metrics) RecordKeySetFetch(result string) {
	if m == nil || !m.enabled {
		return
	}
	m.keySetFetchesTotal.WithLabelValues(result).Inc()
}

// RecordKeyCacheHit counts a signing-key cache hit.
func (m *Metrics) RecordKeyCacheHit() {
	if m == nil || !m.enabled {
		return
	}
	m.keyCacheHitsTotal.Inc()
}

// RecordKeyCacheMiss counts a signing-key cache miss.
func (m *Metrics) RecordKeyCacheMiss() {
	if m == nil || !m.enabled {
		return
	}
	m.keyCacheMissTotal.Inc()
}

// RecordLogin counts a login attempt by outcome
// ("authenticated", "challenge", "failure").
func (m *Metrics) RecordLogin(outcome string) {
	if m == nil || !m.enabled {
		return
	}
	m.loginAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordTokenRefresh counts a silent renewal by result ("ok" or "error").
func (m *Metrics) RecordTokenRefresh(result string) {
	if m == nil || !m.enabled {
		return
	}
	m.tokenRefreshesTotal.WithLabelValues(result).Inc()
}
