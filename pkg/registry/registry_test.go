package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/brightloom/aicore/pkg/coretypes"
	"github.com/brightloom/aicore/pkg/providers"
)

type fakeProvider struct {
	kind       coretypes.ProviderKind
	initCalls  int
	initErr    error
	shutdowns  int
	validCreds bool
}

func (f *fakeProvider) Init(ctx context.Context) error {
	f.initCalls++
	return f.initErr
}
func (f *fakeProvider) Shutdown()                              { f.shutdowns++ }
func (f *fakeProvider) ValidateCredentials(ctx context.Context) bool { return f.validCreds }
func (f *fakeProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	return &providers.ChatResponse{}, nil
}
func (f *fakeProvider) ChatWithTools(ctx context.Context, req providers.ChatRequest, tools []coretypes.ToolDefinition) (*providers.ChatWithToolsResponse, error) {
	return &providers.ChatWithToolsResponse{}, nil
}
func (f *fakeProvider) StreamChat(ctx context.Context, req providers.ChatRequest, h providers.StreamHandler) error {
	return nil
}
func (f *fakeProvider) EstimateTokens(text string) uint64           { return uint64(len(text)) }
func (f *fakeProvider) LastError() error                            { return nil }
func (f *fakeProvider) ListModels() []coretypes.ModelDescriptor     { return nil }
func (f *fakeProvider) Kind() coretypes.ProviderKind                { return f.kind }

func TestGetInitializesOnce(t *testing.T) {
	r := New()
	p := &fakeProvider{kind: coretypes.AnthropicLike}
	r.Register("Anthropic", "ANTHROPIC_API_KEY", p)

	if _, err := r.Get(t.Context(), coretypes.AnthropicLike); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if _, err := r.Get(t.Context(), coretypes.AnthropicLike); err != nil {
		t.Fatalf("second Get() error = %v", err)
	}
	if p.initCalls != 1 {
		t.Errorf("initCalls = %d, want 1", p.initCalls)
	}
}

func TestGetReturnsSameHandleAcrossCalls(t *testing.T) {
	r := New()
	p := &fakeProvider{kind: coretypes.OpenAILike}
	r.Register("OpenAI", "OPENAI_API_KEY", p)

	a, _ := r.Get(t.Context(), coretypes.OpenAILike)
	b, _ := r.Get(t.Context(), coretypes.OpenAILike)
	if a != b {
		t.Error("expected Get to return the identical provider instance across calls")
	}
}

func TestGetUnknownKindErrors(t *testing.T) {
	r := New()
	if _, err := r.Get(t.Context(), coretypes.OllamaLike); err == nil {
		t.Fatal("expected error for unregistered kind")
	}
}

func TestGetPropagatesInitError(t *testing.T) {
	r := New()
	p := &fakeProvider{kind: coretypes.GeminiLike, initErr: errors.New("no credentials")}
	r.Register("Gemini", "GEMINI_API_KEY", p)

	if _, err := r.Get(t.Context(), coretypes.GeminiLike); err == nil {
		t.Fatal("expected init error to propagate")
	}
	// A second Get must not retry Init once it failed and was recorded.
	if _, err := r.Get(t.Context(), coretypes.GeminiLike); err == nil {
		t.Fatal("expected cached init error on second Get")
	}
	if p.initCalls != 1 {
		t.Errorf("initCalls = %d, want 1 (no retry on cached failure)", p.initCalls)
	}
}

func TestIsAvailableReflectsCredentialValidation(t *testing.T) {
	r := New()
	p := &fakeProvider{kind: coretypes.OllamaLike, validCreds: true}
	r.Register("Ollama", "", p)
	if !r.IsAvailable(t.Context(), coretypes.OllamaLike) {
		t.Error("expected IsAvailable to be true")
	}
}

func TestKindsReturnsStableOrder(t *testing.T) {
	r := New()
	r.Register("Ollama", "", &fakeProvider{kind: coretypes.OllamaLike})
	r.Register("Anthropic", "ANTHROPIC_API_KEY", &fakeProvider{kind: coretypes.AnthropicLike})

	kinds := r.Kinds()
	if len(kinds) != 2 || kinds[0] != coretypes.AnthropicLike || kinds[1] != coretypes.OllamaLike {
		t.Errorf("Kinds() = %v, want [anthropic ollama] in taxonomy order", kinds)
	}
}

func TestShutdownTearsDownAllHandles(t *testing.T) {
	r := New()
	p := &fakeProvider{kind: coretypes.AnthropicLike}
	r.Register("Anthropic", "ANTHROPIC_API_KEY", p)
	r.Get(t.Context(), coretypes.AnthropicLike)

	r.Shutdown()
	if p.shutdowns != 1 {
		t.Errorf("shutdowns = %d, want 1", p.shutdowns)
	}

	// A Get after Shutdown should re-initialize the provider.
	if _, err := r.Get(t.Context(), coretypes.AnthropicLike); err != nil {
		t.Fatalf("Get() after Shutdown error = %v", err)
	}
	if p.initCalls != 2 {
		t.Errorf("initCalls = %d, want 2 (re-init after Shutdown)", p.initCalls)
	}
}
