package localfoundation

import (
	"context"
	"testing"

	"github.com/brightloom/aicore/pkg/coretypes"
	"github.com/brightloom/aicore/pkg/providers"
)

type fakeBridge struct {
	hardwareOK   bool
	loaded       string
	generateText string
	toolCalls    []coretypes.ToolCall
}

func (f *fakeBridge) HardwarePreconditions() (bool, string) { return f.hardwareOK, "" }

func (f *fakeBridge) EnsureModelCached(ctx context.Context, model string, progress func(pct int)) error {
	return nil
}

func (f *fakeBridge) Load(model string) error {
	f.loaded = model
	return nil
}

func (f *fakeBridge) Unload(model string) {}

func (f *fakeBridge) Generate(ctx context.Context, model, system, user string) (string, error) {
	return f.generateText, nil
}

func (f *fakeBridge) GenerateWithTools(ctx context.Context, model, system, user string, tools []coretypes.ToolDefinition) (string, []coretypes.ToolCall, error) {
	return f.generateText, f.toolCalls, nil
}

func TestChatGeneratesTextAndUsage(t *testing.T) {
	bridge := &fakeBridge{hardwareOK: true, generateText: "hi there"}
	p := New(bridge)
	resp, err := p.Chat(t.Context(), providers.ChatRequest{Model: "afm-small", User: "hi"})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if resp.Text != "hi there" {
		t.Errorf("Text = %q, want %q", resp.Text, "hi there")
	}
}

func TestChatWithToolsUsesNativeToolSurface(t *testing.T) {
	wantCalls := []coretypes.ToolCall{{ToolName: "get_weather", ArgumentsJSON: `{"city":"nyc"}`}}
	bridge := &fakeBridge{hardwareOK: true, generateText: "checking", toolCalls: wantCalls}
	p := New(bridge)
	resp, err := p.ChatWithTools(t.Context(), providers.ChatRequest{Model: "afm-small", User: "weather?"}, []coretypes.ToolDefinition{{Name: "get_weather"}})
	if err != nil {
		t.Fatalf("ChatWithTools() error = %v", err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].ToolName != "get_weather" {
		t.Errorf("ToolCalls = %v", resp.ToolCalls)
	}
}

func TestChatWithToolsDegradesWhenNoToolsOffered(t *testing.T) {
	bridge := &fakeBridge{hardwareOK: true, generateText: "plain"}
	p := New(bridge)
	resp, err := p.ChatWithTools(t.Context(), providers.ChatRequest{Model: "afm-small", User: "hi"}, nil)
	if err != nil {
		t.Fatalf("ChatWithTools() error = %v", err)
	}
	if resp.Text != "plain" {
		t.Errorf("Text = %q, want %q", resp.Text, "plain")
	}
}

func TestInitFailsWhenHardwareUnsupported(t *testing.T) {
	p := New(&fakeBridge{hardwareOK: false})
	if err := p.Init(t.Context()); err == nil {
		t.Fatal("expected hardware precondition failure")
	}
}

func TestShutdownUnloadsModel(t *testing.T) {
	bridge := &fakeBridge{hardwareOK: true, generateText: "x"}
	p := New(bridge)
	if _, err := p.Chat(t.Context(), providers.ChatRequest{Model: "afm-small", User: "hi"}); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	p.Shutdown()
	if p.loadedModel != "" {
		t.Errorf("loadedModel = %q after Shutdown, want empty", p.loadedModel)
	}
}
