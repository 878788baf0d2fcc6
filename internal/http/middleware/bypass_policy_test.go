package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewRequestBypassEvaluatorNilWhenNothingEnabled(t *testing.T) {
	if ev := NewRequestBypassEvaluator(RequestBypassConfig{}); ev != nil {
		t.Fatal("expected nil evaluator when no bypass is configured")
	}
	if ev := NewRequestBypassEvaluator(RequestBypassConfig{TrustedMonitorCIDRs: []string{"", "not-a-cidr"}}); ev != nil {
		t.Fatal("expected nil evaluator when only invalid CIDRs are configured")
	}
}

func TestBypassMatchesProbePaths(t *testing.T) {
	ev := NewRequestBypassEvaluator(RequestBypassConfig{EnableInternalProbeBypass: true})
	if ev == nil {
		t.Fatal("expected evaluator")
	}

	tests := []struct {
		path string
		want bool
	}{
		{path: "/health/live", want: true},
		{path: "/health/ready", want: true},
		{path: "/HEALTH/LIVE", want: true},
		{path: "/api/v1/sign/url", want: false},
	}
	for _, tc := range tests {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		got, reason := ev(req)
		if got != tc.want {
			t.Errorf("path %s: expected bypass=%v, got %v (%s)", tc.path, tc.want, got, reason)
		}
		if got && reason != "internal_probe_path" {
			t.Errorf("path %s: unexpected reason %q", tc.path, reason)
		}
	}
}

func TestBypassMatchesTrustedCIDR(t *testing.T) {
	ev := NewRequestBypassEvaluator(RequestBypassConfig{TrustedMonitorCIDRs: []string{"10.20.0.0/16"}})
	if ev == nil {
		t.Fatal("expected evaluator")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sign/status/s1", nil)
	req.RemoteAddr = "10.20.3.4:5555"
	got, reason := ev(req)
	if !got || reason != "trusted_monitor_cidr" {
		t.Fatalf("expected trusted CIDR bypass, got %v (%s)", got, reason)
	}

	req.RemoteAddr = "192.168.1.1:5555"
	if got, _ := ev(req); got {
		t.Fatal("expected no bypass for untrusted address")
	}
}
