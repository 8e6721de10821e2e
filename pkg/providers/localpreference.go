package providers

import "github.com/brightloom/aicore/pkg/coretypes"

// LocalAdapterPreference chooses between the two overlapping on-device
// adapters (spec §9 Open Question, resolved in favor of keeping the
// source's heuristic but exposing it as a configurable function rather than
// a hard-coded rule): short prompts, and any request that needs tools,
// prefer Apple-Foundation; longer prompts with no tool requirement prefer
// MLX's larger local model.
type LocalAdapterPreference func(promptLength int, needsTools bool) coretypes.ProviderKind

// DefaultLocalAdapterPreference implements `prompt_length < 8000 ∨
// needs_tools ⇒ Apple-Foundation, else MLX` from spec §9.
func DefaultLocalAdapterPreference(promptLength int, needsTools bool) coretypes.ProviderKind {
	if promptLength < 8000 || needsTools {
		return coretypes.LocalAppleFoundation
	}
	return coretypes.LocalMLX
}
