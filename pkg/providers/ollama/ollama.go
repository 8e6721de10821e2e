// Package ollama implements the Provider contract for the Ollama-like wire
// format by wrapping github.com/mozilla-ai/any-llm-go's providers/ollama
// backend, the same unified multi-provider client the teacher's
// pkg/provider/llm/anyllm package wraps for its own Ollama support.
package ollama

import (
	"context"
	"sync"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	anyllmollama "github.com/mozilla-ai/any-llm-go/providers/ollama"

	"github.com/brightloom/aicore/pkg/catalog"
	"github.com/brightloom/aicore/pkg/coretypes"
	"github.com/brightloom/aicore/pkg/gatewayerr"
	"github.com/brightloom/aicore/pkg/providers"
	"github.com/brightloom/aicore/pkg/tokens"
)

// Provider implements providers.Provider for a local Ollama daemon.
type Provider struct {
	config
	mu          sync.Mutex
	initialized bool
	backend     anyllmlib.Provider
	lastErr     error
	catalog     *catalog.Catalog
}

type config struct {
	baseURL string
}

// Option configures a Provider at construction time.
type Option func(*config)

// WithBaseURL overrides the default local Ollama daemon address
// (any-llm-go's ollama backend otherwise connects to http://localhost:11434).
func WithBaseURL(url string) Option { return func(c *config) { c.baseURL = url } }

// New constructs an Ollama-like Provider. No credentials are required
// (spec §4.5: "Ollama-like (local, no auth, NDJSON streaming)").
func New(opts ...Option) *Provider {
	cfg := config{}
	for _, o := range opts {
		o(&cfg)
	}
	return &Provider{config: cfg}
}

// Kind implements providers.Provider.
func (p *Provider) Kind() coretypes.ProviderKind { return coretypes.OllamaLike }

// Init constructs the any-llm-go backend; no network I/O and no credential
// discovery, since the local daemon requires no auth.
func (p *Provider) Init(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initialized {
		return nil
	}

	var opts []anyllmlib.Option
	if p.baseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(p.baseURL))
	}
	backend, err := anyllmollama.New(opts...)
	if err != nil {
		wrapped := gatewayerr.Wrap(coretypes.ErrNetwork, "ollama: construct any-llm-go backend", err)
		p.lastErr = wrapped
		return wrapped
	}

	p.backend = backend
	p.initialized = true
	return nil
}

// Shutdown implements providers.Provider.
func (p *Provider) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initialized = false
}

// ValidateCredentials implements providers.Provider; it probes the daemon
// instead of checking a credential, since none exists.
func (p *Provider) ValidateCredentials(ctx context.Context) bool {
	if err := p.Init(ctx); err != nil {
		return false
	}
	_, err := p.do(ctx, providers.ChatRequest{User: "ping"}, nil)
	if err != nil {
		p.recordErr(err)
		return false
	}
	return true
}

func buildParams(req providers.ChatRequest, toolDefs []coretypes.ToolDefinition) anyllmlib.CompletionParams {
	var messages []anyllmlib.Message
	if req.System != "" {
		messages = append(messages, anyllmlib.Message{Role: "system", Content: req.System})
	}
	messages = append(messages, anyllmlib.Message{Role: "user", Content: req.User})

	params := anyllmlib.CompletionParams{Model: req.Model, Messages: messages}
	for _, td := range toolDefs {
		props := make(map[string]any, len(td.Parameters))
		var required []string
		for _, param := range td.Parameters {
			prop := map[string]any{"type": string(param.Type)}
			if param.Description != "" {
				prop["description"] = param.Description
			}
			if len(param.Enum) > 0 {
				prop["enum"] = param.Enum
			}
			props[param.Name] = prop
			if param.Required {
				required = append(required, param.Name)
			}
		}
		params.Tools = append(params.Tools, anyllmlib.Tool{
			Type: "function",
			Function: anyllmlib.Function{
				Name:        td.Name,
				Description: td.Description,
				Parameters:  map[string]any{"type": "object", "properties": props, "required": required},
			},
		})
	}
	return params
}

func (p *Provider) do(ctx context.Context, req providers.ChatRequest, toolDefs []coretypes.ToolDefinition) (*providers.ChatWithToolsResponse, error) {
	resp, err := p.backend.Completion(ctx, buildParams(req, toolDefs))
	if err != nil {
		return nil, gatewayerr.Wrap(coretypes.ErrNetwork, "ollama: request failed", err)
	}
	if len(resp.Choices) == 0 {
		return nil, gatewayerr.New(coretypes.ErrUnknown, "ollama: empty choices in response")
	}

	choice := resp.Choices[0]
	text := choice.Message.ContentString()

	var toolCalls []coretypes.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		toolCalls = append(toolCalls, coretypes.ToolCall{
			ToolID:        tc.ID,
			ToolName:      tc.Function.Name,
			ArgumentsJSON: tc.Function.Arguments,
		})
	}

	var usage coretypes.TokenUsage
	if resp.Usage != nil {
		usage = coretypes.TokenUsage{
			InputTokens:  uint64(resp.Usage.PromptTokens),
			OutputTokens: uint64(resp.Usage.CompletionTokens),
		}
	} else {
		usage.OutputTokens = tokens.Estimate(text, coretypes.OllamaLike)
	}

	return &providers.ChatWithToolsResponse{Text: text, ToolCalls: toolCalls, Usage: usage}, nil
}

// Chat implements providers.Provider.
func (p *Provider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	if err := p.Init(ctx); err != nil {
		return nil, err
	}
	resp, err := p.do(ctx, req, nil)
	if err != nil {
		p.recordErr(err)
		return nil, err
	}
	return &providers.ChatResponse{Text: resp.Text, Usage: resp.Usage}, nil
}

// ChatWithTools implements providers.Provider; an empty tool list degrades
// to Chat. any-llm-go normalizes tool-call shape across backends, so this no
// longer needs to special-case per served Ollama model the way a hand-rolled
// adapter would.
func (p *Provider) ChatWithTools(ctx context.Context, req providers.ChatRequest, toolDefs []coretypes.ToolDefinition) (*providers.ChatWithToolsResponse, error) {
	if len(toolDefs) == 0 {
		resp, err := p.Chat(ctx, req)
		if err != nil {
			return nil, err
		}
		return &providers.ChatWithToolsResponse{Text: resp.Text, Usage: resp.Usage}, nil
	}
	if err := p.Init(ctx); err != nil {
		return nil, err
	}
	resp, err := p.do(ctx, req, toolDefs)
	if err != nil {
		p.recordErr(err)
		return nil, err
	}
	return resp, nil
}

// StreamChat implements providers.Provider over any-llm-go's
// CompletionStream, which normalizes Ollama's NDJSON framing into per-chunk
// deltas.
func (p *Provider) StreamChat(ctx context.Context, req providers.ChatRequest, handler providers.StreamHandler) error {
	if err := p.Init(ctx); err != nil {
		return err
	}

	chunks, errs := p.backend.CompletionStream(ctx, buildParams(req, nil))

	var acc string
	for chunk := range chunks {
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			acc += delta.Content
			if handler.OnChunk != nil {
				handler.OnChunk(delta.Content, false)
			}
		}
	}

	if err := <-errs; err != nil {
		gwErr := gatewayerr.Wrap(coretypes.ErrNetwork, "ollama: stream request failed", err)
		p.recordErr(gwErr)
		if handler.OnError != nil {
			handler.OnError(gwErr.Error())
		}
		if handler.OnChunk != nil {
			handler.OnChunk("", true)
		}
		return gwErr
	}

	if handler.OnChunk != nil {
		handler.OnChunk("", true)
	}
	if handler.OnComplete != nil {
		handler.OnComplete(acc)
	}
	return nil
}

// EstimateTokens implements providers.Provider. Ollama-like usage is always
// server-reported in practice; the estimator still backstops it.
func (p *Provider) EstimateTokens(text string) uint64 {
	return tokens.Estimate(text, coretypes.OllamaLike)
}

// LastError implements providers.Provider.
func (p *Provider) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// SetCatalog attaches the Model Catalog ListModels delegates to.
func (p *Provider) SetCatalog(c *catalog.Catalog) {
	p.mu.Lock()
	p.catalog = c
	p.mu.Unlock()
}

// ListModels implements providers.Provider by delegating to the attached
// Model Catalog; returns nil if none was set via SetCatalog.
func (p *Provider) ListModels() []coretypes.ModelDescriptor {
	p.mu.Lock()
	c := p.catalog
	p.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.GetByProvider(p.Kind())
}

func (p *Provider) recordErr(err error) {
	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
}
