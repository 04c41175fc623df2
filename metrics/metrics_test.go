package metrics

import (
	"testing"
)

// Global metrics instance (reused across enabled tests to avoid Prometheus registry conflicts)
var globalMetrics *Metrics

func init() {
	globalMetrics = New(true)
}

func TestMetricsEnabled(t *testing.T) {
	if globalMetrics == nil {
		t.Fatal("metrics should not be nil")
	}
}

func TestMetricsDisabled(t *testing.T) {
	metrics := New(false)

	if metrics == nil {
		t.Fatal("metrics should not be nil (noop)")
	}

	// These should not panic even though they're noop
	metrics.RecordVerification()
	metrics.RecordVerificationFailure("signature_invalid")
	metrics.RecordKeySetFetch("ok")
	metrics.RecordKeyCacheHit()
	metrics.RecordKeyCacheMiss()
	metrics.RecordLogin("authenticated")
	metrics.RecordTokenRefresh("error")
}

func TestNilMetrics(t *testing.T) {
	var metrics *Metrics

	// A nil receiver is the "not wired" case and must be safe everywhere
	metrics.RecordVerification()
	metrics.RecordVerificationFailure("key_not_found")
	metrics.RecordKeySetFetch("error")
	metrics.RecordKeyCacheHit()
	metrics.RecordKeyCacheMiss()
	metrics.RecordLogin("failure")
	metrics.RecordTokenRefresh("ok")
}

func TestRecordVerification(t *testing.T) {
	// Should not panic
	globalMetrics.RecordVerification()
	globalMetrics.RecordVerificationFailure("issuer_mismatch")
	globalMetrics.RecordVerificationFailure("client_mismatch")
	globalMetrics.RecordVerificationFailure("token_use_mismatch")
}

func TestRecordKeySetMetrics(t *testing.T) {
	// Should not panic
	globalMetrics.RecordKeySetFetch("ok")
	globalMetrics.RecordKeySetFetch("error")
	globalMetrics.RecordKeyCacheHit()
	globalMetrics.RecordKeyCacheMiss()
}

func TestRecordLoginMetrics(t *testing.T) {
	outcomes := []string{"authenticated", "challenge", "failure"}

	for _, outcome := range outcomes {
		globalMetrics.RecordLogin(outcome)
	}

	globalMetrics.RecordTokenRefresh("ok")
	globalMetrics.RecordTokenRefresh("error")
}
