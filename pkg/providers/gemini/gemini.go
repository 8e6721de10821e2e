// Package gemini implements the Provider contract for the Gemini-like wire
// format by wrapping github.com/mozilla-ai/any-llm-go's providers/gemini
// backend, the same unified multi-provider client the teacher's
// pkg/provider/llm/anyllm package wraps for its own Gemini support.
package gemini

import (
	"context"
	"os"
	"sync"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	anyllmgemini "github.com/mozilla-ai/any-llm-go/providers/gemini"

	"github.com/brightloom/aicore/pkg/catalog"
	"github.com/brightloom/aicore/pkg/coretypes"
	"github.com/brightloom/aicore/pkg/gatewayerr"
	"github.com/brightloom/aicore/pkg/providers"
	"github.com/brightloom/aicore/pkg/tokens"
)

// DefaultAuthEnv is the environment variable init() reads the API key from.
const DefaultAuthEnv = "GEMINI_API_KEY"

// Provider implements providers.Provider for the Gemini generateContent /
// streamGenerateContent surface, delegating the wire format to any-llm-go's
// gemini backend.
type Provider struct {
	config
	mu          sync.Mutex
	initialized bool
	backend     anyllmlib.Provider
	lastErr     error
	catalog     *catalog.Catalog
}

type config struct {
	apiKey  string
	baseURL string
}

// Option configures a Provider at construction time.
type Option func(*config)

// WithBaseURL overrides the default Gemini REST base URL.
func WithBaseURL(url string) Option { return func(c *config) { c.baseURL = url } }

// New constructs a Gemini-like Provider. apiKey may be empty, in which case
// Init discovers it from DefaultAuthEnv (any-llm-go falls back to
// GEMINI_API_KEY/GOOGLE_API_KEY itself, but we resolve it explicitly so
// ValidateCredentials can report ErrAuth before any network I/O).
func New(apiKey string, opts ...Option) *Provider {
	cfg := config{apiKey: apiKey}
	for _, o := range opts {
		o(&cfg)
	}
	return &Provider{config: cfg}
}

// Kind implements providers.Provider.
func (p *Provider) Kind() coretypes.ProviderKind { return coretypes.GeminiLike }

// Init discovers credentials and constructs the any-llm-go backend; no
// network I/O happens here.
func (p *Provider) Init(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initialized {
		return nil
	}

	if p.apiKey == "" {
		p.apiKey = os.Getenv(DefaultAuthEnv)
	}
	if p.apiKey == "" {
		err := gatewayerr.New(coretypes.ErrAuth, "GEMINI_API_KEY not set")
		p.lastErr = err
		return err
	}

	llmOpts := []anyllmlib.Option{anyllmlib.WithAPIKey(p.apiKey)}
	if p.baseURL != "" {
		llmOpts = append(llmOpts, anyllmlib.WithBaseURL(p.baseURL))
	}
	backend, err := anyllmgemini.New(llmOpts...)
	if err != nil {
		wrapped := gatewayerr.Wrap(coretypes.ErrAuth, "gemini: construct any-llm-go backend", err)
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

// ValidateCredentials implements providers.Provider.
func (p *Provider) ValidateCredentials(ctx context.Context) bool {
	if err := p.Init(ctx); err != nil {
		return false
	}
	_, err := p.do(ctx, "gemini-2.0-flash", providers.ChatRequest{User: "ping"}, nil)
	if err != nil {
		p.recordErr(err)
		return false
	}
	return true
}

// toolSchema builds the JSON-Schema object any-llm-go's normalized Tool
// shape expects, regardless of the backend's native wire casing — any-llm-go
// itself handles the Gemini-specific uppercase-enum translation.
func toolSchema(td coretypes.ToolDefinition) map[string]any {
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
	return map[string]any{"type": "object", "properties": props, "required": required}
}

func buildParams(model string, req providers.ChatRequest, toolDefs []coretypes.ToolDefinition) anyllmlib.CompletionParams {
	var messages []anyllmlib.Message
	if req.System != "" {
		messages = append(messages, anyllmlib.Message{Role: "system", Content: req.System})
	}
	messages = append(messages, anyllmlib.Message{Role: "user", Content: req.User})

	params := anyllmlib.CompletionParams{Model: model, Messages: messages}
	for _, td := range toolDefs {
		params.Tools = append(params.Tools, anyllmlib.Tool{
			Type: "function",
			Function: anyllmlib.Function{
				Name:        td.Name,
				Description: td.Description,
				Parameters:  toolSchema(td),
			},
		})
	}
	return params
}

func (p *Provider) do(ctx context.Context, model string, req providers.ChatRequest, toolDefs []coretypes.ToolDefinition) (*providers.ChatWithToolsResponse, error) {
	resp, err := p.backend.Completion(ctx, buildParams(model, req, toolDefs))
	if err != nil {
		return nil, classifyErr(err)
	}
	if len(resp.Choices) == 0 {
		return nil, gatewayerr.New(coretypes.ErrUnknown, "gemini: empty choices in response")
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
		usage.OutputTokens = tokens.Estimate(text, coretypes.GeminiLike)
	}

	return &providers.ChatWithToolsResponse{Text: text, ToolCalls: toolCalls, Usage: usage}, nil
}

// Chat implements providers.Provider.
func (p *Provider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	if err := p.Init(ctx); err != nil {
		return nil, err
	}
	resp, err := p.do(ctx, req.Model, req, nil)
	if err != nil {
		p.recordErr(err)
		return nil, err
	}
	return &providers.ChatResponse{Text: resp.Text, Usage: resp.Usage}, nil
}

// ChatWithTools implements providers.Provider; an empty tool list degrades
// to Chat.
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
	resp, err := p.do(ctx, req.Model, req, toolDefs)
	if err != nil {
		p.recordErr(err)
		return nil, err
	}
	return resp, nil
}

// StreamChat implements providers.Provider over any-llm-go's
// CompletionStream, which already normalizes Gemini's SSE framing into
// per-chunk deltas.
func (p *Provider) StreamChat(ctx context.Context, req providers.ChatRequest, handler providers.StreamHandler) error {
	if err := p.Init(ctx); err != nil {
		return err
	}

	chunks, errs := p.backend.CompletionStream(ctx, buildParams(req.Model, req, nil))

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
		gwErr := classifyErr(err)
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

// EstimateTokens implements providers.Provider.
func (p *Provider) EstimateTokens(text string) uint64 {
	return tokens.Estimate(text, coretypes.GeminiLike)
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

func classifyErr(err error) *gatewayerr.Error {
	return gatewayerr.Wrap(coretypes.ErrNetwork, "gemini: request failed", err)
}
