package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "")
	cfg, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !exists {
		t.Fatal("Load() exists = false for a written file")
	}

	if cfg.Server.Bind != "127.0.0.1:8080" {
		t.Errorf("Server.Bind = %q", cfg.Server.Bind)
	}
	if cfg.Extractor.Model != "gemini-2.5-flash" {
		t.Errorf("Extractor.Model = %q", cfg.Extractor.Model)
	}
	if cfg.Pipeline.DispatchTimeoutSeconds != 60 {
		t.Errorf("Pipeline.DispatchTimeoutSeconds = %d", cfg.Pipeline.DispatchTimeoutSeconds)
	}
	if cfg.Store.Backend != "sqlite" {
		t.Errorf("Store.Backend = %q", cfg.Store.Backend)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfig(t, `
[server]
bind = "0.0.0.0:9090"

[pipeline]
dispatch_timeout_seconds = 30
workers = 8

[store]
backend = "bigquery"
project = "my-project"
dataset = "expenso"
`)
	cfg, _, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Bind != "0.0.0.0:9090" {
		t.Errorf("Server.Bind = %q", cfg.Server.Bind)
	}
	if cfg.Pipeline.DispatchTimeoutSeconds != 30 {
		t.Errorf("Pipeline.DispatchTimeoutSeconds = %d", cfg.Pipeline.DispatchTimeoutSeconds)
	}
	if cfg.Pipeline.Workers != 8 {
		t.Errorf("Pipeline.Workers = %d", cfg.Pipeline.Workers)
	}
	if cfg.Store.Project != "my-project" {
		t.Errorf("Store.Project = %q", cfg.Store.Project)
	}
	// Defaults fill the sections the file omitted.
	if cfg.Pipeline.QueueSize != 64 {
		t.Errorf("Pipeline.QueueSize = %d", cfg.Pipeline.QueueSize)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")
	t.Setenv("EXPENSO_BUCKET", "env-bucket")

	path := writeConfig(t, `
[extractor]
api_key = "file-key"

[storage]
bucket = "file-bucket"
`)
	cfg, _, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Extractor.APIKey != "env-key" {
		t.Errorf("Extractor.APIKey = %q, want env-key", cfg.Extractor.APIKey)
	}
	if cfg.Storage.Bucket != "env-bucket" {
		t.Errorf("Storage.Bucket = %q, want env-bucket", cfg.Storage.Bucket)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name     string
		contents string
		want     string
	}{
		{
			name: "unknown backend",
			contents: `
[store]
backend = "dynamo"
`,
			want: "unknown store backend",
		},
		{
			name: "bigquery missing project",
			contents: `
[store]
backend = "bigquery"
dataset = "expenso"
`,
			want: "project and dataset are required",
		},
		{
			name: "non-positive dispatch timeout",
			contents: `
[pipeline]
dispatch_timeout_seconds = 0
`,
			want: "dispatch_timeout_seconds must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.contents)
			_, _, _, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.toml")
	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if exists {
		t.Error("Load() exists = true for a missing file")
	}
	if resolved == "" {
		t.Error("Load() resolved path is empty")
	}
	if cfg.Store.Backend != "sqlite" {
		t.Errorf("Store.Backend = %q, want sqlite", cfg.Store.Backend)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := CreateSample(path); err != nil {
		t.Fatalf("CreateSample() error = %v", err)
	}

	// The sample must load cleanly.
	if _, _, _, err := Load(path); err != nil {
		t.Fatalf("Load(sample) error = %v", err)
	}
}
