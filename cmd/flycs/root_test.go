package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// Keep this before any test that passes --root: a changed flag outranks the
// environment for the rest of the process.
func TestLoadConfigEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flycs.yaml")
	writeFile(t, path, "project:\n  root: /from/file\nlog:\n  level: warn\n")

	cfgFile = path
	t.Cleanup(func() { cfgFile = "" })
	t.Setenv("FLYCS_PROJECT_ROOT", "/from/env")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Project.Root != "/from/env" {
		t.Errorf("Root = %s, want /from/env", cfg.Project.Root)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Level = %s, want warn", cfg.Log.Level)
	}
}

func TestValidateCommand(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "queries", "datalake", "orders.yaml"), `
QUERY: SELECT id, amount FROM raw.orders
VERSION: 1.0.0
`)
	writeFile(t, filepath.Join(root, "pipelines", "ingest.yaml"), `
name: ingest
version: 1.0.0
schedule: "@daily"
start_time: "2024-01-01T00:00:00+0000"
entities:
  - name: sales
    version: 1.0.0
    stage_config:
      datalake:
        orders: 1.0.0
`)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"validate", "--root", root, "--log-level", "error"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("validate error = %v", err)
	}
	if !strings.Contains(out.String(), "1 assets, 1 pipelines valid") {
		t.Errorf("unexpected output %q", out.String())
	}
}
