// Package config loads the runtime's startup configuration document (spec
// §6): the JSON file describing catalog version, per-provider model
// records, and the compare/benchmark CLI defaults. Structurally grounded in
// the teacher's internal/config loader (open file → decode → Validate
// returning a joined error → soft warnings via slog, hard failures via
// errors.Join), decoding JSON instead of YAML since the wire format is a
// named domain requirement here, not a free ambient choice.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/brightloom/aicore/pkg/coretypes"
)

// Config is the root of the startup configuration document.
type Config struct {
	Version         string          `json:"version"`
	Providers       map[string]any  `json:"providers"`
	CompareDefaults CompareDefaults `json:"compare_defaults"`
	Benchmark       BenchmarkDefaults `json:"benchmark_defaults"`
}

// CompareDefaults lists the model ids the `compare` CLI surface uses when
// the caller does not specify any explicitly.
type CompareDefaults struct {
	Models []string `json:"models"`
}

// BenchmarkDefaults configures the `benchmark` CLI surface's default model
// and iteration count.
type BenchmarkDefaults struct {
	Model      string `json:"model"`
	Iterations int    `json:"iterations"`
}

// EnvKey names the recognised environment variables (spec §6).
type EnvKey string

const (
	EnvAnthropicAPIKey EnvKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    EnvKey = "OPENAI_API_KEY"
	EnvGeminiAPIKey    EnvKey = "GEMINI_API_KEY"
	EnvOpenRouterAPIKey EnvKey = "OPENROUTER_API_KEY"
	EnvOllamaHost      EnvKey = "OLLAMA_HOST"
)

// DefaultOllamaHost is used when OLLAMA_HOST is unset.
const DefaultOllamaHost = "http://localhost:11434"

// APIKeyFor returns the credential environment variable for kind, or ""
// if the kind has no associated environment-variable credential (local
// on-device adapters, Ollama).
func APIKeyFor(kind coretypes.ProviderKind) string {
	switch kind {
	case coretypes.AnthropicLike:
		return os.Getenv(string(EnvAnthropicAPIKey))
	case coretypes.OpenAILike:
		return os.Getenv(string(EnvOpenAIAPIKey))
	case coretypes.GeminiLike:
		return os.Getenv(string(EnvGeminiAPIKey))
	case coretypes.OpenRouterLike:
		return os.Getenv(string(EnvOpenRouterAPIKey))
	default:
		return ""
	}
}

// OllamaHost returns OLLAMA_HOST, falling back to DefaultOllamaHost.
func OllamaHost() string {
	if h := os.Getenv(string(EnvOllamaHost)); h != "" {
		return h
	}
	return DefaultOllamaHost
}

// Load reads the JSON configuration file at path and returns a validated
// Config.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a JSON config from r and validates the result.
// Unknown top-level fields are ignored per spec §6; this call does not
// call json.Decoder.DisallowUnknownFields for that reason.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	if err := json.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode json: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cfg for structural problems and returns a joined error
// listing every failure found. Soft problems are logged via slog.Warn
// rather than rejected, matching the teacher's validation posture.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		slog.Warn("config: version field is empty")
	}

	if cfg.Benchmark.Model != "" && cfg.Benchmark.Iterations <= 0 {
		errs = append(errs, fmt.Errorf("benchmark_defaults.iterations must be positive when benchmark_defaults.model is set, got %d", cfg.Benchmark.Iterations))
	}

	if len(cfg.Providers) == 0 {
		slog.Warn("config: no providers configured; catalog will rely on its hard-coded fallback set")
	}

	return errors.Join(errs...)
}
