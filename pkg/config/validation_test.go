package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_InvalidFilesType(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Files.Type = "s3"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for unsupported files type")
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Adapters.HTTP.Port = 70000

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for port > 65535")
	}
	if !strings.Contains(err.Error(), "Port") {
		t.Errorf("Expected error to name the Port field, got: %v", err)
	}
}

func TestValidate_NegativeWorkers(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Adapters.HTTP.Workers = -1

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for negative workers")
	}
}

func TestValidate_NegativeTimeout(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Adapters.HTTP.ReadTimeout = -time.Second

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for negative read timeout")
	}
}

func TestValidate_InvalidShutdownTimeout(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.ShutdownTimeout = 0

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for zero shutdown timeout")
	}
}

func TestValidate_InvalidBindAddress(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Adapters.HTTP.BindAddress = "not an address!"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for invalid bind address")
	}

	cfg.Adapters.HTTP.BindAddress = "127.0.0.1"
	if err := Validate(cfg); err != nil {
		t.Errorf("Expected 127.0.0.1 to be valid, got: %v", err)
	}

	cfg.Adapters.HTTP.BindAddress = "localhost"
	if err := Validate(cfg); err != nil {
		t.Errorf("Expected localhost to be valid, got: %v", err)
	}
}

func TestValidate_NoAdaptersEnabled(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Adapters.HTTP.Enabled = false

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error when no adapters enabled")
	}
	if !strings.Contains(err.Error(), "at least one adapter") {
		t.Errorf("Expected 'at least one adapter' error, got: %v", err)
	}
}

func TestValidate_MetricsPortConflict(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.Metrics.Enabled = true
	cfg.Server.Metrics.Port = cfg.Adapters.HTTP.Port

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error when metrics and HTTP share a port")
	}
}

func TestValidate_EphemeralPortsDoNotConflict(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Adapters.HTTP.Port = 0
	cfg.Server.Metrics.Enabled = true
	cfg.Server.Metrics.Port = 0

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected port 0 for both listeners to pass validation, got error: %v", err)
	}
}

func TestValidate_UnknownFilesystemOption(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Files.Filesystem["rot"] = "/typo"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for unknown filesystem option")
	}
}

func TestValidate_NegativeBufferSize(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Files.Filesystem["buffer_size"] = -1

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for negative buffer size")
	}
}

func TestValidate_LogLevelNormalization(t *testing.T) {
	for _, level := range []string{"debug", "INFO", "warn", "ERROR"} {
		cfg := GetDefaultConfig()
		cfg.Logging.Level = level

		if err := Validate(cfg); err != nil {
			t.Errorf("Expected level %q to be valid, got: %v", level, err)
		}
	}
}
