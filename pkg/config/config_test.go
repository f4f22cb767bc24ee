package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "flycs.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return configPath
}

func TestConfigLoading(t *testing.T) {
	configPath := writeConfig(t, `
project:
  root: /srv/project
  pipelines: definitions
  environments: [tst, prd]

log:
  level: debug
  format: json

loader:
  concurrency: 3
  timeout: 30s

catalog:
  path: /tmp/test/catalog

publish:
  snapshot: true
  s3:
    enabled: true
    bucket: test-bucket
    region: us-west-2
    endpoint: https://s3.us-west-2.amazonaws.com
    accessKey: test-key
    secretKey: test-secret
    prefix: test-prefix/
`)

	config, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if config.Project.Root != "/srv/project" || config.Project.Pipelines != "definitions" {
		t.Errorf("Unexpected project section %+v", config.Project)
	}
	if len(config.Project.Environments) != 2 || config.Project.Environments[1] != "prd" {
		t.Errorf("Expected environments [tst prd], got %v", config.Project.Environments)
	}
	if config.Log.Level != "debug" || config.Log.Format != "json" {
		t.Errorf("Unexpected log section %+v", config.Log)
	}
	if config.Loader.Concurrency != 3 || config.Loader.Timeout != 30*time.Second {
		t.Errorf("Unexpected loader section %+v", config.Loader)
	}
	if config.Catalog.Path != "/tmp/test/catalog" {
		t.Errorf("Expected catalog path /tmp/test/catalog, got %s", config.Catalog.Path)
	}

	s3 := config.Publish.S3
	if !s3.Enabled || s3.Bucket != "test-bucket" || s3.Region != "us-west-2" {
		t.Errorf("Unexpected S3 config %+v", s3)
	}
	if s3.AccessKey != "test-key" || s3.SecretKey != "test-secret" || s3.Prefix != "test-prefix/" {
		t.Errorf("Unexpected S3 credentials %+v", s3)
	}
	if !config.Publish.Snapshot {
		t.Errorf("Expected snapshot to be enabled")
	}
}

func TestConfigDefaults(t *testing.T) {
	config, err := Load(writeConfig(t, "log:\n  level: warn\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if config.Log.Level != "warn" {
		t.Errorf("Expected level warn, got %s", config.Log.Level)
	}
	if config.Log.Format != "console" {
		t.Errorf("Expected default format console, got %s", config.Log.Format)
	}
	if config.Loader.Concurrency != 8 {
		t.Errorf("Expected default concurrency 8, got %d", config.Loader.Concurrency)
	}
	if config.Project.Pipelines != "pipelines" {
		t.Errorf("Expected default pipelines dir, got %s", config.Project.Pipelines)
	}
	if len(config.Project.Environments) != 4 {
		t.Errorf("Expected 4 default environments, got %v", config.Project.Environments)
	}
	if config.Publish.S3.Enabled {
		t.Errorf("Publishing should be disabled by default")
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"s3 without bucket", "publish:\n  s3:\n    enabled: true\n"},
		{"negative concurrency", "loader:\n  concurrency: -1\n"},
		{"unknown log format", "log:\n  format: xml\n"},
		{"no catalog path", "catalog:\n  path: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Errorf("Expected validation error")
			}
		})
	}

	cfg := Default()
	cfg.Catalog.Path = ""
	cfg.Catalog.InMemory = true
	if err := cfg.Validate(); err != nil {
		t.Errorf("in-memory catalog without path should be valid: %v", err)
	}
}

func TestConfigErrorHandling(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("Expected error for missing file")
	}
	if _, err := Load(writeConfig(t, "loader: [not, a, mapping]\n")); err == nil {
		t.Errorf("Expected error for invalid YAML")
	}
}
