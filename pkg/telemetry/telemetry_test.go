package telemetry

import (
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default config", func(c *Config) {}, false},
		{"empty service name", func(c *Config) { c.ServiceName = "" }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"bad exporter", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "jaeger"
		}, true},
		{"sampling rate out of range", func(c *Config) { c.Tracing.SamplingRate = 1.5 }, true},
		{"metrics without address", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.ListenAddress = ""
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMetricsDisabledIsNoOp(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	// Must not panic with a nil registry.
	m.RecordOperation("create", "success", "vlan", time.Millisecond)
	m.RecordRetry("rate_limited")
	m.RecordProviderCall("create", time.Millisecond)
	m.RecordProviderError("create", "transient")
	m.ObserveRateGateWait(time.Millisecond)
	m.RecordSiteRunStarted()
	m.RecordSiteRunCompleted("completed", time.Second)
	m.RecordDriftDetection("appliance", "drifted")
}

func TestMetricsEnabled(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{
		Enabled:       true,
		ListenAddress: ":0",
		Path:          "/metrics",
		Namespace:     "sitesync",
	})
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	if m.registry == nil {
		t.Fatal("enabled metrics has no registry")
	}
	m.RecordOperation("create", "success", "vlan", time.Millisecond)
	m.RecordSiteRunStarted()
	m.RecordSiteRunCompleted("completed", time.Second)

	families, err := m.registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := false
	for _, fam := range families {
		if fam.GetName() == "sitesync_operations_total" {
			found = true
		}
	}
	if !found {
		t.Error("operations_total not registered")
	}
}

func TestNewLogger(t *testing.T) {
	cfg := DefaultConfig().Logging
	cfg.Format = "json"
	cfg.Output = "stderr"
	logger, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	logger.Debug().Msg("configured")
}
