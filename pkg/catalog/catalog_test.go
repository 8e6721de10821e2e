package catalog

import (
	"testing"

	"github.com/brightloom/aicore/pkg/coretypes"
)

func TestLoadReader(t *testing.T) {
	doc := `{
		"version": "1",
		"providers": {
			"anthropic": {
				"models": {
					"claude-test": {
						"display_name": "Claude Test",
						"input_cost": 1,
						"output_cost": 2,
						"context_window": 1000,
						"max_output": 500,
						"supports_tools": true
					}
				}
			}
		}
	}`

	c := New()
	if err := c.LoadReader([]byte(doc)); err != nil {
		t.Fatalf("LoadReader: %v", err)
	}

	m, ok := c.GetByID("claude-test")
	if !ok {
		t.Fatal("expected claude-test to be registered")
	}
	if m.ContextWindow != 1000 || m.MaxOutput != 500 {
		t.Errorf("got context_window=%d max_output=%d", m.ContextWindow, m.MaxOutput)
	}
	if m.ProviderKind != coretypes.AnthropicLike {
		t.Errorf("got provider kind %q", m.ProviderKind)
	}
}

func TestLoadReaderRejectsMaxOutputExceedingContext(t *testing.T) {
	doc := `{
		"providers": {
			"openai": {
				"models": {
					"bad": {"context_window": 100, "max_output": 200}
				}
			}
		}
	}`
	c := New()
	if err := c.LoadReader([]byte(doc)); err == nil {
		t.Fatal("expected error for max_output > context_window")
	}
}

func TestFallbackModelsLoad(t *testing.T) {
	c := New()
	if err := c.loadFallback(); err != nil {
		t.Fatalf("loadFallback: %v", err)
	}
	for _, m := range FallbackModels {
		if _, ok := c.GetByID(m.ID); !ok {
			t.Errorf("fallback model %q missing after load", m.ID)
		}
	}
}

func TestGetCheapestExcludesDeprecated(t *testing.T) {
	c := New()
	c.models = map[string]coretypes.ModelDescriptor{
		"cheap": {ID: "cheap", ProviderKind: coretypes.OpenAILike, InputCostPerMTok: 1, OutputCostPerMTok: 1},
		"cheaper-but-deprecated": {
			ID: "cheaper-but-deprecated", ProviderKind: coretypes.OpenAILike,
			InputCostPerMTok: 0.1, OutputCostPerMTok: 0.1, Deprecated: true,
		},
	}
	c.loaded = true

	got, ok := c.GetCheapest(coretypes.OpenAILike)
	if !ok {
		t.Fatal("expected a cheapest model")
	}
	if got.ID != "cheap" {
		t.Errorf("got %q, want %q (deprecated model should be excluded)", got.ID, "cheap")
	}
}

func TestEstimateCostZeroForLocalProvider(t *testing.T) {
	c := New()
	c.models = map[string]coretypes.ModelDescriptor{
		"local": {ID: "local", ProviderKind: coretypes.LocalMLX, InputCostPerMTok: 99, OutputCostPerMTok: 99},
	}
	c.loaded = true

	if cost := c.EstimateCost("local", 1_000_000, 1_000_000); cost != 0 {
		t.Errorf("EstimateCost for local provider = %v, want 0", cost)
	}
}
