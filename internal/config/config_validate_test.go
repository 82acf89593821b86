package config

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/multierr"
)

const (
	errExpectedError   = "expected error"
	errUnexpectedError = "unexpected error: %v"
	errExpectedValErr  = "expected validation error"
)

func TestConfigValidate_Valid(t *testing.T) {
	for _, backend := range Backends {
		t.Run(backend, func(t *testing.T) {
			cfg := Defaults()
			cfg.Database.Backend = backend
			cfg.Database.MaxReaders = 4
			cfg.Database.OpenTimeout = Duration{time.Second}
			cfg.Logging.Level = "debug"
			cfg.Logging.Format = "json"
			cfg.Metrics.Enabled = true

			if err := cfg.Validate(); err != nil {
				t.Errorf("valid config should pass validation: %v", err)
			}
		})
	}
}

func TestConfigValidate_EmptyOptionalFields(t *testing.T) {
	cfg := Defaults()
	cfg.Logging.Level = ""
	cfg.Logging.Format = ""
	cfg.Metrics.Namespace = ""

	if err := cfg.Validate(); err != nil {
		t.Errorf("config with empty optional fields should be valid: %v", err)
	}
}

func TestConfigValidate_MemoryNeedsNoPath(t *testing.T) {
	cfg := Defaults()
	cfg.Database.Backend = "memory"
	cfg.Database.Path = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf(errUnexpectedError, err)
	}

	cfg.Database.ReadOnly = true
	err := cfg.Validate()
	if err == nil {
		t.Fatal(errExpectedValErr)
	}
	if !strings.Contains(err.Error(), "database.read_only") {
		t.Errorf("error should mention 'database.read_only': %v", err)
	}
}

func TestConfigValidate_InvalidDatabase(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*DatabaseConfig)
		wantErr string
	}{
		{"unknown backend", func(d *DatabaseConfig) { d.Backend = "rocksdb" }, "database.backend"},
		{"empty backend", func(d *DatabaseConfig) { d.Backend = "" }, "database.backend"},
		{"empty path", func(d *DatabaseConfig) { d.Path = "" }, "database.path"},
		{"blank path", func(d *DatabaseConfig) { d.Path = "   " }, "database.path"},
		{"negative readers", func(d *DatabaseConfig) { d.MaxReaders = -1 }, "database.max_readers"},
		{"negative timeout", func(d *DatabaseConfig) { d.OpenTimeout = Duration{-time.Second} }, "database.open_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg.Database)

			err := cfg.Validate()
			if err == nil {
				t.Fatal(errExpectedValErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error should mention %q: %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfigValidate_InvalidLogLevel(t *testing.T) {
	tests := []struct {
		level   string
		wantErr bool
	}{
		{"debug", false},
		{"INFO", false},
		{"warning", false},
		{"error", false},
		{"", false},
		{"verbose", true},
		{"trace", true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := Defaults()
			cfg.Logging.Level = tt.level

			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatal(errExpectedError)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf(errUnexpectedError, err)
			}
			if tt.wantErr && !strings.Contains(err.Error(), "logging.level") {
				t.Errorf("error should mention 'logging.level': %v", err)
			}
		})
	}
}

func TestConfigValidate_MetricsNamespace(t *testing.T) {
	cfg := Defaults()
	cfg.Metrics.Namespace = "my-db"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("namespace is only checked when metrics are enabled: %v", err)
	}
	cfg.Metrics.Enabled = true
	err := cfg.Validate()
	if err == nil {
		t.Fatal(errExpectedValErr)
	}
	if !strings.Contains(err.Error(), "metrics.namespace") {
		t.Errorf("error should mention 'metrics.namespace': %v", err)
	}
}

func TestConfigValidate_MultipleErrors(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{
			Backend:     "nope",
			MaxReaders:  -5,
			OpenTimeout: Duration{-5 * time.Second},
		},
		Logging: LoggingConfig{
			Level:  "invalid-level",
			Format: "xml",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "9lives",
		},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}

	expectedErrors := []string{
		"database.backend",
		"database.path",
		"database.max_readers",
		"database.open_timeout",
		"logging.level",
		"logging.format",
		"metrics.namespace",
	}
	if n := len(multierr.Errors(err)); n != len(expectedErrors) {
		t.Errorf("got %d errors, want %d: %v", n, len(expectedErrors), err)
	}

	errStr := err.Error()
	for _, expected := range expectedErrors {
		if !strings.Contains(errStr, expected) {
			t.Errorf("error missing %q: %v", expected, errStr)
		}
	}
}

func TestValidateLogFormat(t *testing.T) {
	tests := []struct {
		format  string
		wantErr bool
	}{
		{"", false},
		{"text", false},
		{"JSON", false},
		{" json ", false},
		{"logfmt", true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			err := validateLogFormat(tt.format)
			if tt.wantErr && err == nil {
				t.Error(errExpectedError)
			}
			if !tt.wantErr && err != nil {
				t.Errorf(errUnexpectedError, err)
			}
		})
	}
}

func TestDurationText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1m30s")); err != nil {
		t.Fatal(err)
	}
	if d.Duration != 90*time.Second {
		t.Fatalf("got %s", d)
	}
	b, err := d.MarshalText()
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "1m30s" {
		t.Errorf("MarshalText = %q", b)
	}
	if err := d.UnmarshalText([]byte("later")); err == nil {
		t.Error("expected parse error")
	}
}
