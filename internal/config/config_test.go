package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	tests := []struct {
		name   string
		check  func(*Config) bool
		expect string
	}{
		{
			name:   "default mode is api",
			check:  func(c *Config) bool { return c.Mode == "api" },
			expect: "api",
		},
		{
			name:   "default host is 0.0.0.0",
			check:  func(c *Config) bool { return c.Host == "0.0.0.0" },
			expect: "0.0.0.0",
		},
		{
			name:   "default port is 8080",
			check:  func(c *Config) bool { return c.Port == 8080 },
			expect: "8080",
		},
		{
			name:   "default log level is info",
			check:  func(c *Config) bool { return c.LogLevel == "info" },
			expect: "info",
		},
		{
			name:   "default log format is json",
			check:  func(c *Config) bool { return c.LogFormat == "json" },
			expect: "json",
		},
		{
			name:   "default metrics path",
			check:  func(c *Config) bool { return c.MetricsPath == "/metrics" },
			expect: "/metrics",
		},
		{
			name:   "default session expiry days",
			check:  func(c *Config) bool { return c.SessionExpiryDays == 30 },
			expect: "30",
		},
		{
			name:   "default search sync batch size",
			check:  func(c *Config) bool { return c.SearchSyncBatchSize == 500 },
			expect: "500",
		},
		{
			name:   "listen addr format",
			check:  func(c *Config) bool { return c.ListenAddr() == "0.0.0.0:8080" },
			expect: "0.0.0.0:8080",
		},
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(cfg) {
				t.Errorf("expected %s", tt.expect)
			}
		})
	}
}

func TestSearchSyncBatchSizeCap(t *testing.T) {
	t.Setenv("SEARCH_SYNC_BATCH_SIZE", "5000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.SearchSyncBatchSize != maxSearchSyncBatchSize {
		t.Errorf("expected batch size capped at %d, got %d", maxSearchSyncBatchSize, cfg.SearchSyncBatchSize)
	}
}

func TestIsSystemAdmin(t *testing.T) {
	cfg := &Config{
		SystemAdminIDs:    []string{"admin-1"},
		SystemAdminEmails: []string{"root@kollab.dev"},
	}

	if !cfg.IsSystemAdmin("admin-1", "someone@else.com") {
		t.Error("expected id match to be a system admin")
	}
	if !cfg.IsSystemAdmin("not-admin", "root@kollab.dev") {
		t.Error("expected email match to be a system admin")
	}
	if cfg.IsSystemAdmin("nobody", "nobody@kollab.dev") {
		t.Error("expected no match to not be a system admin")
	}
}
