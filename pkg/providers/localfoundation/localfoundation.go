// Package localfoundation implements the Provider contract for the Apple
// Foundation Model on-device variant: a synchronous bridge stub, no HTTP,
// zero cost (spec §4.5 "Local-on-device").
package localfoundation

import (
	"context"
	"sync"

	"github.com/brightloom/aicore/pkg/catalog"
	"github.com/brightloom/aicore/pkg/coretypes"
	"github.com/brightloom/aicore/pkg/gatewayerr"
	"github.com/brightloom/aicore/pkg/providers"
	"github.com/brightloom/aicore/pkg/tokens"
)

// Bridge is the native-library seam for Apple's on-device Foundation Model
// framework.
type Bridge interface {
	HardwarePreconditions() (ok bool, reason string)
	EnsureModelCached(ctx context.Context, model string, progress func(pct int)) error
	Load(model string) error
	Unload(model string)
	Generate(ctx context.Context, model, system, user string) (string, error)
	// GenerateWithTools is used when the caller offers tools; returns raw
	// tool-call fragments in the bridge's native shape, already normalized
	// to coretypes.ToolCall by the bridge implementation.
	GenerateWithTools(ctx context.Context, model, system, user string, tools []coretypes.ToolDefinition) (string, []coretypes.ToolCall, error)
}

// Provider implements providers.Provider over Bridge.
type Provider struct {
	bridge Bridge

	mu          sync.Mutex
	initialized bool
	loadedModel string
	lastErr     error
	catalog     *catalog.Catalog
}

// New constructs a Provider around the given native bridge.
func New(bridge Bridge) *Provider {
	return &Provider{bridge: bridge}
}

// Kind implements providers.Provider.
func (p *Provider) Kind() coretypes.ProviderKind { return coretypes.LocalAppleFoundation }

// Init implements providers.Provider.
func (p *Provider) Init(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initialized {
		return nil
	}
	if ok, reason := p.bridge.HardwarePreconditions(); !ok {
		err := gatewayerr.New(coretypes.ErrNotInitialized, "apple-foundation: hardware precondition failed: "+reason)
		p.lastErr = err
		return err
	}
	p.initialized = true
	return nil
}

// Shutdown implements providers.Provider.
func (p *Provider) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loadedModel != "" {
		p.bridge.Unload(p.loadedModel)
		p.loadedModel = ""
	}
	p.initialized = false
}

// ValidateCredentials implements providers.Provider.
func (p *Provider) ValidateCredentials(ctx context.Context) bool {
	return p.Init(ctx) == nil
}

func (p *Provider) ensureLoaded(ctx context.Context, model string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loadedModel == model {
		return nil
	}
	if err := p.bridge.EnsureModelCached(ctx, model, func(int) {}); err != nil {
		return gatewayerr.Wrap(coretypes.ErrNetwork, "apple-foundation: model download failed", err)
	}
	if p.loadedModel != "" {
		p.bridge.Unload(p.loadedModel)
	}
	if err := p.bridge.Load(model); err != nil {
		return gatewayerr.Wrap(coretypes.ErrUnknown, "apple-foundation: model load failed", err)
	}
	p.loadedModel = model
	return nil
}

// Chat implements providers.Provider.
func (p *Provider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	if err := p.Init(ctx); err != nil {
		return nil, err
	}
	if err := p.ensureLoaded(ctx, req.Model); err != nil {
		p.recordErr(err)
		return nil, err
	}
	text, err := p.bridge.Generate(ctx, req.Model, req.System, req.User)
	if err != nil {
		gwErr := gatewayerr.Wrap(coretypes.ErrUnknown, "apple-foundation: generate failed", err)
		p.recordErr(gwErr)
		return nil, gwErr
	}
	usage := coretypes.TokenUsage{
		InputTokens:  tokens.Estimate(req.System+req.User, coretypes.LocalAppleFoundation),
		OutputTokens: tokens.Estimate(text, coretypes.LocalAppleFoundation),
	}
	return &providers.ChatResponse{Text: text, Usage: usage}, nil
}

// ChatWithTools implements providers.Provider using the bridge's native
// tool-calling surface when tools are offered.
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
	if err := p.ensureLoaded(ctx, req.Model); err != nil {
		p.recordErr(err)
		return nil, err
	}
	text, calls, err := p.bridge.GenerateWithTools(ctx, req.Model, req.System, req.User, toolDefs)
	if err != nil {
		gwErr := gatewayerr.Wrap(coretypes.ErrUnknown, "apple-foundation: generate failed", err)
		p.recordErr(gwErr)
		return nil, gwErr
	}
	usage := coretypes.TokenUsage{
		InputTokens:  tokens.Estimate(req.System+req.User, coretypes.LocalAppleFoundation),
		OutputTokens: tokens.Estimate(text, coretypes.LocalAppleFoundation),
	}
	return &providers.ChatWithToolsResponse{Text: text, ToolCalls: calls, Usage: usage}, nil
}

// StreamChat implements providers.Provider with single-chunk delivery
// (spec §4.5), since the bridge exposes no incremental callback.
func (p *Provider) StreamChat(ctx context.Context, req providers.ChatRequest, handler providers.StreamHandler) error {
	resp, err := p.Chat(ctx, req)
	if err != nil {
		if handler.OnError != nil {
			handler.OnError(err.Error())
		}
		if handler.OnChunk != nil {
			handler.OnChunk("", true)
		}
		return err
	}
	if handler.OnChunk != nil {
		handler.OnChunk(resp.Text, true)
	}
	if handler.OnComplete != nil {
		handler.OnComplete(resp.Text)
	}
	return nil
}

// EstimateTokens implements providers.Provider.
func (p *Provider) EstimateTokens(text string) uint64 {
	return tokens.Estimate(text, coretypes.LocalAppleFoundation)
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
