// Package anthropic implements the Provider contract for the Anthropic-like
// wire format, wrapping the anthropic-sdk-go Messages API the way the
// teacher's pkg/provider/llm/openai wraps openai-go.
package anthropic

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/brightloom/aicore/pkg/catalog"
	"github.com/brightloom/aicore/pkg/coretypes"
	"github.com/brightloom/aicore/pkg/gatewayerr"
	"github.com/brightloom/aicore/pkg/providers"
	"github.com/brightloom/aicore/pkg/tokens"
)

// DefaultAuthEnv is the environment variable init() reads the API key from,
// per spec §4.5 ("credentials come from a named environment variable").
const DefaultAuthEnv = "ANTHROPIC_API_KEY"

const defaultMaxTokens = 4096

// Provider implements providers.Provider for the Anthropic Messages API.
type Provider struct {
	config
	mu          sync.Mutex
	initialized bool
	client      anthropic.Client
	lastErr     error
	catalog     *catalog.Catalog
}

type config struct {
	apiKey    string
	baseURL   string
	timeout   time.Duration
	maxTokens int
}

// Option configures a Provider at construction time.
type Option func(*config)

// WithBaseURL overrides the default Anthropic API base URL.
func WithBaseURL(url string) Option { return func(c *config) { c.baseURL = url } }

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option { return func(c *config) { c.timeout = d } }

// WithMaxTokens overrides the default max_tokens ceiling for non-streaming
// and streaming chat calls.
func WithMaxTokens(n int) Option { return func(c *config) { c.maxTokens = n } }

// New constructs an Anthropic-like Provider. apiKey may be empty, in which
// case Init discovers it from DefaultAuthEnv.
func New(apiKey string, opts ...Option) *Provider {
	cfg := config{apiKey: apiKey, maxTokens: defaultMaxTokens}
	for _, o := range opts {
		o(&cfg)
	}
	return &Provider{config: cfg}
}

// Kind implements providers.Provider.
func (p *Provider) Kind() coretypes.ProviderKind { return coretypes.AnthropicLike }

// Init discovers credentials and constructs the SDK client. No network I/O
// happens here; it is idempotent and mutex-guarded per spec §4.5.
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
		err := gatewayerr.New(coretypes.ErrAuth, "ANTHROPIC_API_KEY not set")
		p.lastErr = err
		return err
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(p.apiKey)}
	if p.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(p.baseURL))
	}
	if p.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: p.timeout}))
	}

	p.client = anthropic.NewClient(reqOpts...)
	p.initialized = true
	return nil
}

// Shutdown releases resources. The SDK client holds no long-lived
// connections that require explicit teardown.
func (p *Provider) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initialized = false
}

// ValidateCredentials performs the first real network call: a minimal
// one-token request against the cheapest known model shape.
func (p *Provider) ValidateCredentials(ctx context.Context) bool {
	if err := p.Init(ctx); err != nil {
		return false
	}
	_, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.ModelClaude3_5HaikuLatest,
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	if err != nil {
		p.recordErr(err)
		return false
	}
	return true
}

// Chat implements providers.Provider.
func (p *Provider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	resp, err := p.do(ctx, req, nil)
	if err != nil {
		return nil, err
	}
	return &providers.ChatResponse{Text: resp.Text, Usage: resp.Usage}, nil
}

// ChatWithTools implements providers.Provider. An empty tool list degrades
// to Chat, per the contract.
func (p *Provider) ChatWithTools(ctx context.Context, req providers.ChatRequest, tools []coretypes.ToolDefinition) (*providers.ChatWithToolsResponse, error) {
	if len(tools) == 0 {
		resp, err := p.Chat(ctx, req)
		if err != nil {
			return nil, err
		}
		return &providers.ChatWithToolsResponse{Text: resp.Text, Usage: resp.Usage}, nil
	}
	return p.do(ctx, req, tools)
}

func (p *Provider) do(ctx context.Context, req providers.ChatRequest, tools []coretypes.ToolDefinition) (*providers.ChatWithToolsResponse, error) {
	if err := p.Init(ctx); err != nil {
		return nil, err
	}

	params := p.buildParams(req, tools)
	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		gwErr := classifyErr(err)
		p.recordErr(gwErr)
		return nil, gwErr
	}

	var text string
	var toolCalls []coretypes.ToolCall
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			text += variant.Text
		case anthropic.ToolUseBlock:
			toolCalls = append(toolCalls, coretypes.ToolCall{
				ToolName:      variant.Name,
				ToolID:        variant.ID,
				ArgumentsJSON: string(variant.Input),
			})
		}
	}

	usage := coretypes.TokenUsage{
		InputTokens:  uint64(msg.Usage.InputTokens),
		OutputTokens: uint64(msg.Usage.OutputTokens),
		CachedTokens: uint64(msg.Usage.CacheReadInputTokens),
	}
	return &providers.ChatWithToolsResponse{Text: text, ToolCalls: toolCalls, Usage: usage}, nil
}

// StreamChat implements providers.Provider, emitting exactly one
// OnChunk(_, true) call to signal termination.
func (p *Provider) StreamChat(ctx context.Context, req providers.ChatRequest, handler providers.StreamHandler) error {
	if err := p.Init(ctx); err != nil {
		return err
	}

	params := p.buildParams(req, nil)
	stream := p.client.Messages.NewStreaming(ctx, params)

	var acc string
	for stream.Next() {
		event := stream.Current()
		switch variant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if variant.Delta.Text != "" {
				acc += variant.Delta.Text
				if handler.OnChunk != nil {
					handler.OnChunk(variant.Delta.Text, false)
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
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
	return tokens.Estimate(text, coretypes.AnthropicLike)
}

// LastError implements providers.Provider.
func (p *Provider) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// SetCatalog attaches the Model Catalog ListModels delegates to. Pricing and
// context-window data live in the catalog, not this adapter.
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

func (p *Provider) buildParams(req providers.ChatRequest, tools []coretypes.ToolDefinition) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(p.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	for _, td := range tools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        td.Name,
				Description: anthropic.String(td.Description),
				InputSchema: toolParamSchema(td),
			},
		})
	}
	return params
}

// toolParamSchema builds the Anthropic-shaped input_schema object from a
// ToolDefinition's ordered parameter list (spec §4.7: Anthropic-like emits
// `{name, description, input_schema:{...}}`).
func toolParamSchema(td coretypes.ToolDefinition) anthropic.ToolInputSchemaParam {
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
	return anthropic.ToolInputSchemaParam{
		Properties: props,
		Required:   required,
	}
}

func classifyErr(err error) *gatewayerr.Error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return gatewayerr.FromHTTPStatus(apiErr.StatusCode, apiErr.Message)
	}
	return gatewayerr.Wrap(coretypes.ErrNetwork, "anthropic: request failed", err)
}
