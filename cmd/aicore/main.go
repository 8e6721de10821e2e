// Command aicore is a thin CLI entry point that wires up the provider
// registry, model catalog, retry/circuit-breaker executor, and tool
// registry and runs one chat request against a configured provider.
// Structurally grounded in the teacher's cmd/glyphoxa/main.go (flag parsing,
// slog setup, startup summary, graceful error reporting).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/brightloom/aicore/pkg/catalog"
	"github.com/brightloom/aicore/pkg/config"
	"github.com/brightloom/aicore/pkg/coretypes"
	"github.com/brightloom/aicore/pkg/providers"
	"github.com/brightloom/aicore/pkg/providers/anthropic"
	"github.com/brightloom/aicore/pkg/providers/gemini"
	"github.com/brightloom/aicore/pkg/providers/ollama"
	"github.com/brightloom/aicore/pkg/providers/openai"
	"github.com/brightloom/aicore/pkg/providers/openrouter"
	"github.com/brightloom/aicore/pkg/registry"
	"github.com/brightloom/aicore/pkg/resilience"
	"github.com/brightloom/aicore/pkg/tokens"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to the JSON configuration file (optional)")
	providerKind := flag.String("provider", string(coretypes.AnthropicLike), "provider kind to chat with")
	model := flag.String("model", "claude-sonnet-4.5", "model id to request")
	prompt := flag.String("prompt", "Hello!", "user prompt to send")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(*logLevel)})))

	cat := catalog.New()
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "aicore: %v\n", err)
			return 1
		}
		slog.Info("config loaded", "path", *configPath, "version", cfg.Version)
	}
	if err := cat.LoadDefault(); err != nil {
		slog.Warn("catalog: falling back to hard-coded model set", "error", err)
	}

	reg := registerProviders(cat)
	defer reg.Shutdown()

	exec := resilience.NewExecutor()

	kind := coretypes.ProviderKind(*providerKind)
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	var reply *providers.ChatResponse
	err := exec.Execute(ctx, kind, func() error {
		p, getErr := reg.Get(ctx, kind)
		if getErr != nil {
			return getErr
		}
		r, chatErr := p.Chat(ctx, providers.ChatRequest{Model: *model, User: *prompt})
		if chatErr != nil {
			return chatErr
		}
		reply = r
		return nil
	})
	if err != nil {
		slog.Error("chat request failed", "provider", kind, "error", err)
		return 1
	}

	reply.Usage.EstimatedCost = tokens.Cost(cat, *model, reply.Usage.InputTokens, reply.Usage.OutputTokens)
	fmt.Println(reply.Text)
	fmt.Fprintf(os.Stderr, "tokens: in=%d out=%d cost=$%.4f\n",
		reply.Usage.InputTokens, reply.Usage.OutputTokens, reply.Usage.EstimatedCost)
	return 0
}

// registerProviders wires up every adapter whose credentials are present in
// the environment, per spec §6's recognised environment variables. Each
// adapter is handed cat so its ListModels delegates to the Model Catalog.
func registerProviders(cat *catalog.Catalog) *registry.Registry {
	reg := registry.New()

	if key := config.APIKeyFor(coretypes.AnthropicLike); key != "" {
		p := anthropic.New(key)
		p.SetCatalog(cat)
		reg.Register("Anthropic", string(config.EnvAnthropicAPIKey), p)
	}
	if key := config.APIKeyFor(coretypes.OpenAILike); key != "" {
		p := openai.New(key)
		p.SetCatalog(cat)
		reg.Register("OpenAI", string(config.EnvOpenAIAPIKey), p)
	}
	if key := config.APIKeyFor(coretypes.GeminiLike); key != "" {
		p := gemini.New(key)
		p.SetCatalog(cat)
		reg.Register("Gemini", string(config.EnvGeminiAPIKey), p)
	}
	if key := config.APIKeyFor(coretypes.OpenRouterLike); key != "" {
		p := openrouter.New(key)
		p.SetCatalog(cat)
		reg.Register("OpenRouter", string(config.EnvOpenRouterAPIKey), p)
	}
	ollamaProvider := ollama.New(ollama.WithBaseURL(config.OllamaHost()))
	ollamaProvider.SetCatalog(cat)
	reg.Register("Ollama", "", ollamaProvider)

	return reg
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
