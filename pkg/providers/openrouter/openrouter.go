// Package openrouter implements the Provider contract for the
// OpenRouter-like wire format: OpenAI-compatible chat completions with
// extra identification headers, built directly over pkg/transport and
// pkg/streamparse's OpenAIParser. Unlike the gemini and ollama adapters,
// this one is not a github.com/mozilla-ai/any-llm-go wrapper: that library's
// createBackend switch supports exactly openai, anthropic, gemini, ollama,
// deepseek, mistral, groq, llamacpp, and llamafile — no openrouter case
// exists, so there is no backend for this package to delegate to.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/brightloom/aicore/pkg/catalog"
	"github.com/brightloom/aicore/pkg/coretypes"
	"github.com/brightloom/aicore/pkg/gatewayerr"
	"github.com/brightloom/aicore/pkg/providers"
	"github.com/brightloom/aicore/pkg/streamparse"
	"github.com/brightloom/aicore/pkg/tokens"
	"github.com/brightloom/aicore/pkg/transport"
)

// DefaultAuthEnv is the environment variable init() reads the API key from.
const DefaultAuthEnv = "OPENROUTER_API_KEY"

const defaultBaseURL = "https://openrouter.ai/api/v1"

// Provider implements providers.Provider for the OpenRouter chat
// completions endpoint.
type Provider struct {
	config
	mu          sync.Mutex
	initialized bool
	http        *transport.Client
	lastErr     error
	catalog     *catalog.Catalog
}

type config struct {
	apiKey   string
	baseURL  string
	referrer string
	title    string
}

// Option configures a Provider at construction time.
type Option func(*config)

// WithBaseURL overrides the default OpenRouter base URL.
func WithBaseURL(url string) Option { return func(c *config) { c.baseURL = url } }

// WithAppIdentity sets the HTTP-Referer/X-Title identification headers
// OpenRouter uses for attribution (spec §4.5: "extra identification
// headers").
func WithAppIdentity(referrer, title string) Option {
	return func(c *config) { c.referrer = referrer; c.title = title }
}

// New constructs an OpenRouter-like Provider. apiKey may be empty, in which
// case Init discovers it from DefaultAuthEnv.
func New(apiKey string, opts ...Option) *Provider {
	cfg := config{apiKey: apiKey, baseURL: defaultBaseURL}
	for _, o := range opts {
		o(&cfg)
	}
	return &Provider{config: cfg}
}

// Kind implements providers.Provider.
func (p *Provider) Kind() coretypes.ProviderKind { return coretypes.OpenRouterLike }

// Init discovers credentials and constructs the HTTP client; no network I/O.
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
		err := gatewayerr.New(coretypes.ErrAuth, "OPENROUTER_API_KEY not set")
		p.lastErr = err
		return err
	}

	p.http = transport.New()
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
	_, err := p.request(ctx, providers.ChatRequest{Model: "openrouter/auto", User: "ping"}, nil)
	if err != nil {
		p.recordErr(err)
		return false
	}
	return true
}

func (p *Provider) headers() map[string]string {
	h := map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Bearer " + p.apiKey,
	}
	if p.referrer != "" {
		h["HTTP-Referer"] = p.referrer
	}
	if p.title != "" {
		h["X-Title"] = p.title
	}
	return h
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type functionSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type toolSpec struct {
	Type     string       `json:"type"`
	Function functionSpec `json:"function"`
}

type chatRequestBody struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []toolSpec    `json:"tools,omitempty"`
	Stream   bool          `json:"stream,omitempty"`
}

func buildBody(req providers.ChatRequest, toolDefs []coretypes.ToolDefinition, stream bool) chatRequestBody {
	var messages []chatMessage
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.User})

	var tools []toolSpec
	for _, td := range toolDefs {
		tools = append(tools, toolSpec{
			Type: "function",
			Function: functionSpec{
				Name:        td.Name,
				Description: td.Description,
				Parameters:  jsonSchema(td),
			},
		})
	}
	return chatRequestBody{Model: req.Model, Messages: messages, Tools: tools, Stream: stream}
}

// jsonSchema builds the lowercase-JSON-Schema-type parameters object the
// OpenAI-compatible wire format expects, wrapped in the function envelope
// by buildBody (spec §4.7).
func jsonSchema(td coretypes.ToolDefinition) map[string]any {
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

func (p *Provider) request(ctx context.Context, req providers.ChatRequest, toolDefs []coretypes.ToolDefinition) (*providers.ChatWithToolsResponse, error) {
	body, err := json.Marshal(buildBody(req, toolDefs, false))
	if err != nil {
		return nil, gatewayerr.Wrap(coretypes.ErrInvalidRequest, "openrouter: marshal request", err)
	}

	resp, err := p.http.Do(ctx, transport.Request{
		Method:  http.MethodPost,
		URL:     p.baseURL + "/chat/completions",
		Headers: p.headers(),
		Body:    body,
	})
	if err != nil {
		return nil, gatewayerr.Wrap(coretypes.ErrNetwork, "openrouter: request failed", err)
	}
	if gwErr := gatewayerr.FromHTTPStatus(resp.StatusCode, gjson.GetBytes(resp.Body, "error.message").String()); gwErr != nil {
		return nil, gwErr
	}

	raw := resp.Body
	text := gjson.GetBytes(raw, "choices.0.message.content").String()

	var toolCalls []coretypes.ToolCall
	for _, tc := range gjson.GetBytes(raw, "choices.0.message.tool_calls").Array() {
		toolCalls = append(toolCalls, coretypes.ToolCall{
			ToolName:      tc.Get("function.name").String(),
			ToolID:        tc.Get("id").String(),
			ArgumentsJSON: tc.Get("function.arguments").String(),
		})
	}

	usage := coretypes.TokenUsage{
		InputTokens:  gjson.GetBytes(raw, "usage.prompt_tokens").Uint(),
		OutputTokens: gjson.GetBytes(raw, "usage.completion_tokens").Uint(),
	}
	if usage.InputTokens == 0 && usage.OutputTokens == 0 {
		usage.OutputTokens = tokens.Estimate(text, coretypes.OpenRouterLike)
	}

	return &providers.ChatWithToolsResponse{Text: text, ToolCalls: toolCalls, Usage: usage}, nil
}

// Chat implements providers.Provider.
func (p *Provider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	if err := p.Init(ctx); err != nil {
		return nil, err
	}
	resp, err := p.request(ctx, req, nil)
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
	resp, err := p.request(ctx, req, toolDefs)
	if err != nil {
		p.recordErr(err)
		return nil, err
	}
	return resp, nil
}

// StreamChat implements providers.Provider, reusing streamparse.OpenAIParser
// since OpenRouter's streaming wire is OpenAI-compatible SSE framing.
func (p *Provider) StreamChat(ctx context.Context, req providers.ChatRequest, handler providers.StreamHandler) error {
	if err := p.Init(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(buildBody(req, nil, true))
	if err != nil {
		return gatewayerr.Wrap(coretypes.ErrInvalidRequest, "openrouter: marshal request", err)
	}

	status, _, bodyReader, err := p.http.DoStreaming(ctx, transport.Request{
		Method:  http.MethodPost,
		URL:     p.baseURL + "/chat/completions",
		Headers: p.headers(),
		Body:    body,
	})
	if err != nil {
		if handler.OnChunk != nil {
			handler.OnChunk("", true)
		}
		return gatewayerr.Wrap(coretypes.ErrNetwork, "openrouter: stream request failed", err)
	}
	defer bodyReader.Close()

	if gwErr := gatewayerr.FromHTTPStatus(status, ""); gwErr != nil {
		p.recordErr(gwErr)
		if handler.OnError != nil {
			handler.OnError(gwErr.Error())
		}
		if handler.OnChunk != nil {
			handler.OnChunk("", true)
		}
		return gwErr
	}

	parser := streamparse.NewOpenAIParser(streamparse.Handler{
		OnChunk:    handler.OnChunk,
		OnComplete: func(full string, usage coretypes.TokenUsage) { handler.OnComplete(full) },
		OnError:    handler.OnError,
	})

	buf := make([]byte, 32*1024)
	for {
		n, readErr := bodyReader.Read(buf)
		if n > 0 {
			parser.Feed(bytes.Clone(buf[:n]))
		}
		if readErr != nil {
			parser.Close()
			return nil
		}
	}
}

// EstimateTokens implements providers.Provider.
func (p *Provider) EstimateTokens(text string) uint64 {
	return tokens.Estimate(text, coretypes.OpenRouterLike)
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
