package catalog

import "github.com/brightloom/aicore/pkg/coretypes"

// FallbackModels keeps the system operational when no models.json document
// is found anywhere in ConfigSearchPaths. Pricing reflects public list
// prices at time of writing and is expected to be superseded by a real
// config document in production deployments.
var FallbackModels = []coretypes.ModelDescriptor{
	{
		ID: "claude-sonnet-4.5", DisplayName: "Claude Sonnet 4.5", APIID: "claude-sonnet-4-5",
		ProviderKind: coretypes.AnthropicLike,
		InputCostPerMTok: 3.0, OutputCostPerMTok: 15.0,
		ContextWindow: 200_000, MaxOutput: 8_192,
		SupportsTools: true, SupportsVision: true, SupportsStreaming: true,
		Tier: coretypes.TierPremium,
	},
	{
		ID: "claude-haiku-4.5", DisplayName: "Claude Haiku 4.5", APIID: "claude-haiku-4-5",
		ProviderKind: coretypes.AnthropicLike,
		InputCostPerMTok: 0.8, OutputCostPerMTok: 4.0,
		ContextWindow: 200_000, MaxOutput: 8_192,
		SupportsTools: true, SupportsVision: true, SupportsStreaming: true,
		Tier: coretypes.TierCheap,
	},
	{
		ID: "gpt-4o", DisplayName: "GPT-4o", APIID: "gpt-4o",
		ProviderKind: coretypes.OpenAILike,
		InputCostPerMTok: 2.5, OutputCostPerMTok: 10.0,
		ContextWindow: 128_000, MaxOutput: 16_384,
		SupportsTools: true, SupportsVision: true, SupportsStreaming: true,
		Tier: coretypes.TierMid,
	},
	{
		ID: "gpt-4o-mini", DisplayName: "GPT-4o mini", APIID: "gpt-4o-mini",
		ProviderKind: coretypes.OpenAILike,
		InputCostPerMTok: 0.15, OutputCostPerMTok: 0.6,
		ContextWindow: 128_000, MaxOutput: 16_384,
		SupportsTools: true, SupportsVision: true, SupportsStreaming: true,
		Tier: coretypes.TierCheap,
	},
	{
		ID: "gemini-2.0-flash", DisplayName: "Gemini 2.0 Flash", APIID: "gemini-2.0-flash",
		ProviderKind: coretypes.GeminiLike,
		InputCostPerMTok: 0.1, OutputCostPerMTok: 0.4,
		ContextWindow: 1_048_576, MaxOutput: 8_192,
		SupportsTools: true, SupportsVision: true, SupportsStreaming: true,
		Tier: coretypes.TierCheap,
	},
	{
		ID: "gemini-1.5-pro", DisplayName: "Gemini 1.5 Pro", APIID: "gemini-1.5-pro",
		ProviderKind: coretypes.GeminiLike,
		InputCostPerMTok: 1.25, OutputCostPerMTok: 5.0,
		ContextWindow: 2_097_152, MaxOutput: 8_192,
		SupportsTools: true, SupportsVision: true, SupportsStreaming: true,
		Tier: coretypes.TierMid,
	},
	{
		ID: "openrouter-auto", DisplayName: "OpenRouter Auto", APIID: "openrouter/auto",
		ProviderKind: coretypes.OpenRouterLike,
		InputCostPerMTok: 1.0, OutputCostPerMTok: 3.0,
		ContextWindow: 128_000, MaxOutput: 8_192,
		SupportsTools: true, SupportsVision: false, SupportsStreaming: true,
		Tier: coretypes.TierMid,
	},
	{
		ID: "llama3.1", DisplayName: "Llama 3.1 (local)", APIID: "llama3.1",
		ProviderKind: coretypes.OllamaLike,
		InputCostPerMTok: 0, OutputCostPerMTok: 0,
		ContextWindow: 128_000, MaxOutput: 4_096,
		SupportsTools: true, SupportsVision: false, SupportsStreaming: true,
		Tier: coretypes.TierCheap,
	},
	{
		ID: "mlx-local", DisplayName: "MLX on-device", APIID: "mlx-local",
		ProviderKind: coretypes.LocalMLX,
		ContextWindow: 32_768, MaxOutput: 4_096,
		SupportsTools: false, SupportsVision: false, SupportsStreaming: false,
		Tier: coretypes.TierCheap,
	},
	{
		ID: "apple-foundation", DisplayName: "Apple Intelligence Foundation Model", APIID: "apple-foundation",
		ProviderKind: coretypes.LocalAppleFoundation,
		ContextWindow: 8_192, MaxOutput: 2_048,
		SupportsTools: true, SupportsVision: false, SupportsStreaming: false,
		Tier: coretypes.TierCheap,
	},
}
