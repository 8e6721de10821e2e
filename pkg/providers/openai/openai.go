// Package openai implements the Provider contract for the OpenAI-like wire
// format, wrapping openai-go's Chat Completions API the way the teacher's
// pkg/provider/llm/openai package does.
package openai

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/brightloom/aicore/pkg/catalog"
	"github.com/brightloom/aicore/pkg/coretypes"
	"github.com/brightloom/aicore/pkg/gatewayerr"
	"github.com/brightloom/aicore/pkg/providers"
	"github.com/brightloom/aicore/pkg/tokens"
)

// DefaultAuthEnv is the environment variable init() reads the API key from.
const DefaultAuthEnv = "OPENAI_API_KEY"

// Provider implements providers.Provider for the OpenAI Chat Completions API.
type Provider struct {
	config
	mu          sync.Mutex
	initialized bool
	client      oai.Client
	lastErr     error
	catalog     *catalog.Catalog
}

type config struct {
	apiKey       string
	baseURL      string
	organization string
	timeout      time.Duration
}

// Option configures a Provider at construction time.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL; OpenRouter-like
// adapters reuse this to point at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option { return func(c *config) { c.baseURL = url } }

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option { return func(c *config) { c.organization = org } }

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option { return func(c *config) { c.timeout = d } }

// New constructs an OpenAI-like Provider. apiKey may be empty, in which case
// Init discovers it from DefaultAuthEnv.
func New(apiKey string, opts ...Option) *Provider {
	cfg := config{apiKey: apiKey}
	for _, o := range opts {
		o(&cfg)
	}
	return &Provider{config: cfg}
}

// Kind implements providers.Provider.
func (p *Provider) Kind() coretypes.ProviderKind { return coretypes.OpenAILike }

// Init discovers credentials and constructs the SDK client. Idempotent and
// mutex-guarded; no network I/O happens here (spec §4.5).
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
		err := gatewayerr.New(coretypes.ErrAuth, "OPENAI_API_KEY not set")
		p.lastErr = err
		return err
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(p.apiKey)}
	if p.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(p.baseURL))
	}
	if p.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(p.organization))
	}
	if p.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: p.timeout}))
	}

	p.client = oai.NewClient(reqOpts...)
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
	_, err := p.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model:     shared.ChatModelGPT4oMini,
		MaxTokens: param.NewOpt(int64(1)),
		Messages:  []oai.ChatCompletionMessageParamUnion{oai.UserMessage("ping")},
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
// to Chat.
func (p *Provider) ChatWithTools(ctx context.Context, req providers.ChatRequest, toolDefs []coretypes.ToolDefinition) (*providers.ChatWithToolsResponse, error) {
	if len(toolDefs) == 0 {
		resp, err := p.Chat(ctx, req)
		if err != nil {
			return nil, err
		}
		return &providers.ChatWithToolsResponse{Text: resp.Text, Usage: resp.Usage}, nil
	}
	return p.do(ctx, req, toolDefs)
}

func (p *Provider) do(ctx context.Context, req providers.ChatRequest, toolDefs []coretypes.ToolDefinition) (*providers.ChatWithToolsResponse, error) {
	if err := p.Init(ctx); err != nil {
		return nil, err
	}

	params := p.buildParams(req, toolDefs)
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		gwErr := classifyErr(err)
		p.recordErr(gwErr)
		return nil, gwErr
	}
	if len(resp.Choices) == 0 {
		gwErr := gatewayerr.New(coretypes.ErrUnknown, "openai: empty choices in response")
		p.recordErr(gwErr)
		return nil, gwErr
	}

	choice := resp.Choices[0]
	var toolCalls []coretypes.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		toolCalls = append(toolCalls, coretypes.ToolCall{
			ToolName:      tc.Function.Name,
			ToolID:        tc.ID,
			ArgumentsJSON: tc.Function.Arguments,
		})
	}

	usage := coretypes.TokenUsage{
		InputTokens:  uint64(resp.Usage.PromptTokens),
		OutputTokens: uint64(resp.Usage.CompletionTokens),
		CachedTokens: uint64(resp.Usage.PromptTokensDetails.CachedTokens),
	}
	return &providers.ChatWithToolsResponse{Text: choice.Message.Content, ToolCalls: toolCalls, Usage: usage}, nil
}

// StreamChat implements providers.Provider, forwarding each text delta and
// emitting exactly one OnChunk(_, true) call to signal termination. No tools
// are sent on this path, and tool-call deltas are not collected.
func (p *Provider) StreamChat(ctx context.Context, req providers.ChatRequest, handler providers.StreamHandler) error {
	if err := p.Init(ctx); err != nil {
		return err
	}

	params := p.buildParams(req, nil)
	stream := p.client.Chat.Completions.NewStreaming(ctx, params)

	var acc string
	for stream.Next() {
		chunk := stream.Current()
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
	return tokens.Estimate(text, coretypes.OpenAILike)
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

func (p *Provider) buildParams(req providers.ChatRequest, toolDefs []coretypes.ToolDefinition) oai.ChatCompletionNewParams {
	var messages []oai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, oai.SystemMessage(req.System))
	}
	messages = append(messages, oai.UserMessage(req.User))

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: messages,
	}

	for _, td := range toolDefs {
		params.Tools = append(params.Tools, oai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        td.Name,
				Description: param.NewOpt(td.Description),
				Parameters:  functionParameters(td),
			},
		})
	}
	return params
}

// functionParameters builds the OpenAI-shaped JSON-Schema parameters object
// wrapped in a "function" envelope (spec §4.7).
func functionParameters(td coretypes.ToolDefinition) shared.FunctionParameters {
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
	return shared.FunctionParameters{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func classifyErr(err error) *gatewayerr.Error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return gatewayerr.FromHTTPStatus(apiErr.StatusCode, apiErr.Message)
	}
	return gatewayerr.Wrap(coretypes.ErrNetwork, "openai: request failed", err)
}
