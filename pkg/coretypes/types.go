// Package coretypes defines the shared data model for the provider gateway
// and realtime voice pipeline: model descriptors, provider handles, token
// usage, tool definitions/calls, error envelopes, retry/breaker
// configuration, stream and realtime session state, and audio buffers.
//
// These types are the lingua franca between the catalog, registry, provider
// adapters, resilience layer, and realtime/audio engines. They are
// intentionally data-only; behaviour lives in the owning packages.
package coretypes

import (
	"sync"
	"time"
)

// ProviderKind identifies one of the closed set of wire-format/provider
// families this runtime speaks. It is a string (not iota) so that config
// files, logs, and metric attributes carry a stable human-readable value.
type ProviderKind string

const (
	AnthropicLike        ProviderKind = "anthropic"
	OpenAILike           ProviderKind = "openai"
	GeminiLike           ProviderKind = "gemini"
	OpenRouterLike       ProviderKind = "openrouter"
	OllamaLike           ProviderKind = "ollama"
	LocalMLX             ProviderKind = "local-mlx"
	LocalAppleFoundation ProviderKind = "local-apple-foundation"
)

// AllProviderKinds lists the closed taxonomy in a stable order, used by the
// Registry as the capacity hint for its per-kind map and as the order in
// which Kinds reports registered kinds.
var AllProviderKinds = []ProviderKind{
	AnthropicLike, OpenAILike, GeminiLike, OpenRouterLike, OllamaLike,
	LocalMLX, LocalAppleFoundation,
}

// ModelTier is a coarse cost classification used for default model
// selection (see Model Descriptor, spec §3).
type ModelTier string

const (
	TierCheap   ModelTier = "cheap"
	TierMid     ModelTier = "mid"
	TierPremium ModelTier = "premium"
)

// ModelDescriptor is the immutable-after-load record for a single model.
//
// Invariant: Costs are non-negative; MaxOutput <= ContextWindow. The Model
// Catalog enforces both at load time rather than clamping silently.
type ModelDescriptor struct {
	ID           string
	DisplayName  string
	APIID        string // what is placed on the wire
	ProviderKind ProviderKind

	InputCostPerMTok    float64
	OutputCostPerMTok   float64
	ThinkingCostPerMTok float64

	ContextWindow int
	MaxOutput     int

	SupportsTools     bool
	SupportsVision    bool
	SupportsStreaming bool

	Tier        ModelTier
	ReleaseDate string
	Deprecated  bool
}

// ProviderHandle is the Registry-owned lifecycle record for one adapter
// instance. Exactly one handle exists per ProviderKind for the lifetime of
// the process.
type ProviderHandle struct {
	Kind          ProviderKind
	DisplayName   string
	AuthEnvName   string
	BaseURL       string
	Initialized   bool
	LastError     error
	ImplState     any // adapter-owned opaque state, set by the adapter itself
}

// TokenUsage is the per-reply token and cost accounting record. Adapters
// fill the token counts and leave EstimatedCost at 0; a caller that wants a
// price sets it from tokens.Cost, which uses the Model Catalog's rates.
// Usage is monotonically summed into session totals by the caller, never by
// the adapter.
type TokenUsage struct {
	InputTokens    uint64
	OutputTokens   uint64
	CachedTokens   uint64
	EstimatedCost  float64
}

// Add returns the element-wise sum of two usages with cost summed as well.
// Used by callers accumulating usage across a session; adapters never call
// this themselves (ordering guarantee, spec §5).
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:   u.InputTokens + other.InputTokens,
		OutputTokens:  u.OutputTokens + other.OutputTokens,
		CachedTokens:  u.CachedTokens + other.CachedTokens,
		EstimatedCost: u.EstimatedCost + other.EstimatedCost,
	}
}

// ParamType is the closed set of tool-parameter JSON types.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamInteger ParamType = "integer"
	ParamBoolean ParamType = "boolean"
	ParamArray   ParamType = "array"
	ParamObject  ParamType = "object"
)

// ToolParameter describes a single named parameter of a ToolDefinition.
// Parameter order is preserved end to end (catalog -> wire schema -> parse)
// per the round-trip law in spec §8.
type ToolParameter struct {
	Name        string
	Description string
	Type        ParamType
	Required    bool
	Enum        []string
	Default     any
}

// ToolDefinition is a process-wide registered tool offered to models that
// support tool calling.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  []ToolParameter
	Handler     func(handlerCtx any, argsJSON string) (string, error)
	HandlerCtx  any
}

// ToolCall is a structured function invocation parsed out of a model reply.
// ToolID may be empty when the provider omits a call identifier.
type ToolCall struct {
	ToolName     string
	ToolID       string
	ArgumentsJSON string
}

// ErrorKind is the closed taxonomy of gateway-level error classifications
// (spec §3/§7). See package gatewayerr for the error type built on top of
// this enum.
type ErrorKind string

const (
	ErrAuth           ErrorKind = "auth"
	ErrRateLimit      ErrorKind = "rate_limit"
	ErrQuota          ErrorKind = "quota"
	ErrContextLength  ErrorKind = "context_length"
	ErrContentFilter  ErrorKind = "content_filter"
	ErrModelNotFound  ErrorKind = "model_not_found"
	ErrOverloaded     ErrorKind = "overloaded"
	ErrTimeout        ErrorKind = "timeout"
	ErrNetwork        ErrorKind = "network"
	ErrInvalidRequest ErrorKind = "invalid_request"
	ErrNotInitialized ErrorKind = "not_initialized"
	ErrUnknown        ErrorKind = "unknown"
)

// RetryPolicy holds per-provider-kind retry tuning (spec §4.6).
type RetryPolicy struct {
	MaxRetries        int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterFactor      float64

	RetryOnTimeout    bool
	RetryOnRateLimit  bool
	RetryOnServerErr  bool
}

// DefaultRetryPolicy returns the spec §4.6 defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        3,
		BaseDelay:         time.Second,
		MaxDelay:          60 * time.Second,
		BackoffMultiplier: 2,
		JitterFactor:      0.2,
		RetryOnTimeout:    true,
		RetryOnRateLimit:  true,
		RetryOnServerErr:  true,
	}
}

// BreakerState is the three-state circuit breaker machine (spec §4.6).
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// StreamState is the lifecycle of one in-flight streaming request.
type StreamState int

const (
	StreamIdle StreamState = iota
	StreamConnecting
	StreamReceiving
	StreamComplete
	StreamError
	StreamCancelled
)

// RealtimeState is the Realtime Session state machine (spec §4.8).
type RealtimeState int

const (
	RealtimeIdle RealtimeState = iota
	RealtimeConnecting
	RealtimeConnected
	RealtimeListening
	RealtimeProcessing
	RealtimeSpeaking
	RealtimeError
)

func (s RealtimeState) String() string {
	switch s {
	case RealtimeIdle:
		return "idle"
	case RealtimeConnecting:
		return "connecting"
	case RealtimeConnected:
		return "connected"
	case RealtimeListening:
		return "listening"
	case RealtimeProcessing:
		return "processing"
	case RealtimeSpeaking:
		return "speaking"
	case RealtimeError:
		return "error"
	default:
		return "unknown"
	}
}

// NBars is the default number of level-meter bars (spec §4.9).
const NBars = 40

// LevelSnapshot is a read-only copy of the session's input/output level
// arrays, safe to hand to UI readers without sharing the underlying backing
// array (spec §4.8: "snapshots returned to readers").
type LevelSnapshot struct {
	Input  [NBars]float32
	Output [NBars]float32
}

// LevelMeter holds live level-meter state behind a fine-grained lock shared
// with read-only snapshot consumers (spec §4.8/§9).
type LevelMeter struct {
	mu     sync.RWMutex
	input  [NBars]float32
	output [NBars]float32
}

// SetInput overwrites the input bars under lock.
func (m *LevelMeter) SetInput(bars [NBars]float32) {
	m.mu.Lock()
	m.input = bars
	m.mu.Unlock()
}

// SetOutput overwrites the output bars under lock.
func (m *LevelMeter) SetOutput(bars [NBars]float32) {
	m.mu.Lock()
	m.output = bars
	m.mu.Unlock()
}

// Snapshot returns a copy of both bar arrays.
func (m *LevelMeter) Snapshot() LevelSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return LevelSnapshot{Input: m.input, Output: m.output}
}

// AudioBuffer is planar float32 PCM, never retained across pipeline stages
// (spec §3). FrameCount*Channels == len(Samples).
type AudioBuffer struct {
	Samples    []float32
	FrameCount int
	SampleRate int
	Channels   int
}

// ValiditySampleThreshold is the minimum absolute sample value (in the input
// tap's validation scan) that counts as "non-silent" (spec §3/§4.9).
const ValiditySampleThreshold = 0.001

// PeakThreshold is the minimum peak value required across the validation
// scan window (spec §4.9 step 1).
const PeakThreshold = 0.01

// EmotionLabel is the courtesy classification surfaced by the emotion
// heuristics component (spec §4.10). It never gates the pipeline.
type EmotionLabel string

const (
	EmotionNeutral    EmotionLabel = "neutral"
	EmotionExcitement EmotionLabel = "excitement"
	EmotionBoredom    EmotionLabel = "boredom"
	EmotionCuriosity  EmotionLabel = "curiosity"
	EmotionConfusion  EmotionLabel = "confusion"
)
