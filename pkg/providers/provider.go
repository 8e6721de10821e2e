// Package providers defines the Provider contract (spec §4.5) implemented
// once per ProviderKind by the anthropic/openai/gemini/openrouter/ollama/
// localmlx/localfoundation subpackages.
package providers

import (
	"context"

	"github.com/brightloom/aicore/pkg/coretypes"
)

// ChatRequest carries a single-turn exchange: an optional system prompt and
// the user's message, addressed to a specific model id from the Model
// Catalog.
type ChatRequest struct {
	Model  string
	System string
	User   string
}

// ChatResponse is the synchronous reply to Chat.
type ChatResponse struct {
	Text  string
	Usage coretypes.TokenUsage
}

// ChatWithToolsResponse additionally carries any tool invocations the model
// requested.
type ChatWithToolsResponse struct {
	Text      string
	ToolCalls []coretypes.ToolCall
	Usage     coretypes.TokenUsage
}

// StreamHandler is the callback bundle stream_chat drives (spec §4.5):
// exactly one OnChunk(_, true) call signals termination.
type StreamHandler struct {
	OnChunk    func(text string, isFinal bool)
	OnComplete func(fullText string)
	OnError    func(message string)
}

// Provider is the uniform contract every wire-format adapter implements.
// Implementations must be safe for concurrent use; Init is idempotent and
// guarded internally by a mutex and must not perform network I/O beyond
// credential discovery (spec §4.5).
type Provider interface {
	// Init performs credential discovery only; no network calls.
	Init(ctx context.Context) error

	// Shutdown releases any held resources. Safe to call multiple times.
	Shutdown()

	// ValidateCredentials performs the first real network call to confirm
	// the discovered credential is usable.
	ValidateCredentials(ctx context.Context) bool

	// Chat performs a synchronous, non-tool-calling request.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// ChatWithTools performs a synchronous request offering tools to the
	// model. An empty tool list must degrade to the same behavior as Chat.
	ChatWithTools(ctx context.Context, req ChatRequest, tools []coretypes.ToolDefinition) (*ChatWithToolsResponse, error)

	// StreamChat drives handler with incremental chunks, finishing with
	// exactly one OnChunk(_, true) call.
	StreamChat(ctx context.Context, req ChatRequest, handler StreamHandler) error

	// EstimateTokens returns a heuristic, never-undercounting token count.
	EstimateTokens(text string) uint64

	// LastError returns the most recent error observed by this adapter, or
	// nil if none.
	LastError() error

	// ListModels returns the Model Catalog entries this adapter's kind
	// serves.
	ListModels() []coretypes.ModelDescriptor

	// Kind reports the provider family this adapter implements.
	Kind() coretypes.ProviderKind
}
