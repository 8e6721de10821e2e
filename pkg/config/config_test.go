package config_test

import (
	"strings"
	"testing"

	"github.com/brightloom/aicore/pkg/config"
)

const sampleJSON = `{
  "version": "1",
  "providers": {
    "anthropic": {
      "models": {
        "claude-sonnet-4.5": {
          "display_name": "Claude Sonnet 4.5",
          "api_id": "claude-sonnet-4-5-20250929",
          "input_cost": 3.0,
          "output_cost": 15.0,
          "context_window": 200000,
          "max_output": 8192,
          "supports_tools": true,
          "supports_streaming": true,
          "tier": "premium"
        }
      }
    }
  },
  "compare_defaults": {
    "models": ["claude-sonnet-4.5", "gpt-5"]
  },
  "benchmark_defaults": {
    "model": "claude-sonnet-4.5",
    "iterations": 10
  }
}`

func TestLoadFromReaderParsesDocument(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleJSON))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}
	if cfg.Version != "1" {
		t.Errorf("Version = %q, want 1", cfg.Version)
	}
	if len(cfg.CompareDefaults.Models) != 2 {
		t.Errorf("CompareDefaults.Models = %v, want 2 entries", cfg.CompareDefaults.Models)
	}
	if cfg.Benchmark.Iterations != 10 {
		t.Errorf("Benchmark.Iterations = %d, want 10", cfg.Benchmark.Iterations)
	}
}

func TestLoadFromReaderIgnoresUnknownFields(t *testing.T) {
	doc := `{"version": "1", "unexpected_field": "should be ignored"}`
	if _, err := config.LoadFromReader(strings.NewReader(doc)); err != nil {
		t.Fatalf("LoadFromReader() error = %v, want nil for unknown field", err)
	}
}

func TestValidateRejectsBenchmarkWithoutIterations(t *testing.T) {
	doc := `{"version": "1", "benchmark_defaults": {"model": "gpt-5", "iterations": 0}}`
	_, err := config.LoadFromReader(strings.NewReader(doc))
	if err == nil {
		t.Fatal("expected validation error for zero iterations with model set")
	}
}

func TestLoadFromReaderRejectsMalformedJSON(t *testing.T) {
	if _, err := config.LoadFromReader(strings.NewReader("{not json")); err == nil {
		t.Fatal("expected decode error for malformed JSON")
	}
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	if _, err := config.Load("/nonexistent/path/config.json"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestOllamaHostDefaultsWhenUnset(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "")
	if got := config.OllamaHost(); got != config.DefaultOllamaHost {
		t.Errorf("OllamaHost() = %q, want %q", got, config.DefaultOllamaHost)
	}
}

func TestOllamaHostUsesEnvWhenSet(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "http://192.168.1.50:11434")
	if got := config.OllamaHost(); got != "http://192.168.1.50:11434" {
		t.Errorf("OllamaHost() = %q, want override", got)
	}
}
