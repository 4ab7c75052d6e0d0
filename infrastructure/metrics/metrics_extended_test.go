package metrics

import (
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewMetricsInstance(t *testing.T) {
	registry := prometheus.NewRegistry()

	m := NewWithRegistry("test-service", registry)
	if m == nil {
		t.Fatal("NewWithRegistry() returned nil")
	}

	if m.RequestsTotal == nil {
		t.Error("RequestsTotal should not be nil")
	}
	if m.RequestDuration == nil {
		t.Error("RequestDuration should not be nil")
	}
	if m.RequestsInFlight == nil {
		t.Error("RequestsInFlight should not be nil")
	}
	if m.ProxiedRequestsTotal == nil {
		t.Error("ProxiedRequestsTotal should not be nil")
	}
	if m.UpstreamDuration == nil {
		t.Error("UpstreamDuration should not be nil")
	}
	if m.TunnelsActive == nil {
		t.Error("TunnelsActive should not be nil")
	}
	if m.TunnelsTotal == nil {
		t.Error("TunnelsTotal should not be nil")
	}
	if m.FlowMatchesTotal == nil {
		t.Error("FlowMatchesTotal should not be nil")
	}
	if m.FlowExecutionErrors == nil {
		t.Error("FlowExecutionErrors should not be nil")
	}
	if m.LeafCertsIssuedTotal == nil {
		t.Error("LeafCertsIssuedTotal should not be nil")
	}
	if m.LeafCacheHitsTotal == nil {
		t.Error("LeafCacheHitsTotal should not be nil")
	}
	if m.ScriptExecutionDuration == nil {
		t.Error("ScriptExecutionDuration should not be nil")
	}
	if m.ScriptErrorsTotal == nil {
		t.Error("ScriptErrorsTotal should not be nil")
	}
	if m.RecorderSize == nil {
		t.Error("RecorderSize should not be nil")
	}
	if m.ServiceUptime == nil {
		t.Error("ServiceUptime should not be nil")
	}
	if m.ServiceInfo == nil {
		t.Error("ServiceInfo should not be nil")
	}
}

func TestEnabled(t *testing.T) {
	saved := os.Getenv("METRICS_ENABLED")
	defer func() {
		if saved != "" {
			os.Setenv("METRICS_ENABLED", saved)
		} else {
			os.Unsetenv("METRICS_ENABLED")
		}
	}()

	t.Run("default enabled", func(t *testing.T) {
		os.Unsetenv("METRICS_ENABLED")
		if !Enabled() {
			t.Error("Enabled() should default to true when unset")
		}
	})

	t.Run("explicitly enabled", func(t *testing.T) {
		os.Setenv("METRICS_ENABLED", "true")
		if !Enabled() {
			t.Error("Enabled() should return true when METRICS_ENABLED=true")
		}
	})

	t.Run("enabled with arbitrary value", func(t *testing.T) {
		os.Setenv("METRICS_ENABLED", "yes")
		if !Enabled() {
			t.Error("Enabled() should return true for unrecognized non-falsy values")
		}
	})

	t.Run("explicitly disabled", func(t *testing.T) {
		os.Setenv("METRICS_ENABLED", "false")
		if Enabled() {
			t.Error("Enabled() should return false when METRICS_ENABLED=false")
		}
	})

	t.Run("disabled with 0", func(t *testing.T) {
		os.Setenv("METRICS_ENABLED", "0")
		if Enabled() {
			t.Error("Enabled() should return false when METRICS_ENABLED=0")
		}
	})

	t.Run("disabled with off", func(t *testing.T) {
		os.Setenv("METRICS_ENABLED", "off")
		if Enabled() {
			t.Error("Enabled() should return false when METRICS_ENABLED=off")
		}
	})

	t.Run("case insensitive", func(t *testing.T) {
		os.Setenv("METRICS_ENABLED", "FALSE")
		if Enabled() {
			t.Error("Enabled() should be case insensitive")
		}
	})

	t.Run("whitespace trimmed", func(t *testing.T) {
		os.Setenv("METRICS_ENABLED", "  false  ")
		if Enabled() {
			t.Error("Enabled() should trim whitespace")
		}
	})
}

func TestInitAndGlobal(t *testing.T) {
	t.Run("Init creates or returns global instance", func(t *testing.T) {
		m := Init("test-service")
		if m == nil {
			t.Fatal("Init() returned nil")
		}
	})

	t.Run("Init is idempotent", func(t *testing.T) {
		m1 := Init("service-1")
		m2 := Init("service-2")
		if m1 != m2 {
			t.Error("Init() should return same instance on subsequent calls")
		}
	})

	t.Run("Global returns same instance as Init", func(t *testing.T) {
		m1 := Init("test-service")
		m2 := Global()
		if m1 != m2 {
			t.Error("Global() should return same instance as Init()")
		}
	})

	t.Run("Global returns non-nil", func(t *testing.T) {
		m := Global()
		if m == nil {
			t.Fatal("Global() returned nil")
		}
	})
}
