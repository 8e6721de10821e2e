// Package tokens implements the Token & Cost Estimator (spec §4.1).
//
// Exact tokenization is provider-proprietary; the estimator's contract is to
// overestimate modestly and never report a count that would let a caller
// overflow the model's declared context window.
package tokens

import (
	"strings"
	"unicode/utf8"

	"github.com/brightloom/aicore/pkg/catalog"
	"github.com/brightloom/aicore/pkg/coretypes"
)

// contentClass classifies scanned text into one of four buckets, each with
// its own chars-per-token constant.
type contentClass int

const (
	classEnglish contentClass = iota
	classCode
	classJSON
	classUnicode
)

// charsPerToken gives the heuristic chars-per-token ratio for each class.
var charsPerToken = map[contentClass]float64{
	classEnglish: 4.0,
	classCode:    3.5,
	classJSON:    3.0,
	classUnicode: 2.5,
}

// providerFactor adjusts the raw estimate for wire-format overhead
// differences between the three primary families (spec §4.1).
var providerFactor = map[coretypes.ProviderKind]float64{
	coretypes.AnthropicLike: 1.0,
	coretypes.OpenAILike:    0.95,
	coretypes.GeminiLike:    1.05,
}

// scanWindow is the number of leading bytes inspected for classification.
const scanWindow = 1000

// classify scans up to scanWindow leading bytes for brace/bracket/colon
// density and non-ASCII ratio and returns the content bucket.
func classify(text string) contentClass {
	n := len(text)
	if n > scanWindow {
		n = scanWindow
	}
	sample := text[:n]

	var braces, colons, nonASCII, total int
	for _, r := range sample {
		total++
		switch r {
		case '{', '}', '[', ']':
			braces++
		case ':':
			colons++
		}
		if r > 127 {
			nonASCII++
		}
	}
	if total == 0 {
		return classEnglish
	}

	nonASCIIRatio := float64(nonASCII) / float64(total)
	if nonASCIIRatio > 0.15 {
		return classUnicode
	}

	braceDensity := float64(braces) / float64(total)
	colonDensity := float64(colons) / float64(total)
	if braceDensity > 0.04 && colonDensity > 0.02 {
		return classJSON
	}
	if braceDensity > 0.02 || strings.Contains(sample, "func ") || strings.Contains(sample, "{\n") {
		return classCode
	}
	return classEnglish
}

// Estimate implements the heuristic described in spec §4.1: classify
// content, divide byte length by the class's chars-per-token constant, and
// multiply by the provider's wire-format overhead factor.
func Estimate(text string, kind coretypes.ProviderKind) uint64 {
	if text == "" {
		return 0
	}
	class := classify(text)
	cpt := charsPerToken[class]
	raw := float64(len(text)) / cpt

	factor, ok := providerFactor[kind]
	if !ok {
		factor = 1.0
	}
	return uint64(raw*factor + 0.999999) // round up, never undercount
}

// envelopeOverhead is the small per-message overhead added on top of raw
// content tokens, keyed by provider kind (spec §4.1: "4-8 tokens").
var envelopeOverhead = map[coretypes.ProviderKind]uint64{
	coretypes.AnthropicLike:  4,
	coretypes.OpenAILike:     5,
	coretypes.GeminiLike:     6,
	coretypes.OpenRouterLike: 5,
	coretypes.OllamaLike:     8,
}

// EstimateMessage estimates the token cost of a single role+content message,
// including provider-specific envelope overhead.
func EstimateMessage(role, content string, kind coretypes.ProviderKind) uint64 {
	base := Estimate(content, kind)
	overhead := envelopeOverhead[kind]
	if overhead == 0 {
		overhead = 5
	}
	roleTokens := uint64(len(role)) / 4
	return base + overhead + roleTokens
}

// Cost computes the dollar cost of in/out tokens for modelID using the
// Model Catalog's per-million-token rates. Returns 0 for local providers
// (and for unknown model ids, since no pricing exists to compute from).
func Cost(cat *catalog.Catalog, modelID string, in, out uint64) float64 {
	m, ok := cat.GetByID(modelID)
	if !ok {
		return 0
	}
	if m.ProviderKind == coretypes.LocalMLX || m.ProviderKind == coretypes.LocalAppleFoundation {
		return 0
	}
	return float64(in)/1_000_000*m.InputCostPerMTok + float64(out)/1_000_000*m.OutputCostPerMTok
}

// FitsContext reports whether in+reservedOut tokens fit within modelID's
// declared context window.
func FitsContext(cat *catalog.Catalog, in, reservedOut uint64, modelID string) bool {
	m, ok := cat.GetByID(modelID)
	if !ok {
		return false
	}
	return in+reservedOut <= uint64(m.ContextWindow)
}

// AvailableForOutput returns how many output tokens remain after accounting
// for in input tokens, capped by the model's MaxOutput.
func AvailableForOutput(cat *catalog.Catalog, in uint64, modelID string) uint64 {
	m, ok := cat.GetByID(modelID)
	if !ok {
		return 0
	}
	remaining := int64(m.ContextWindow) - int64(in)
	if remaining < 0 {
		return 0
	}
	if remaining > int64(m.MaxOutput) {
		remaining = int64(m.MaxOutput)
	}
	return uint64(remaining)
}

// safetyMargin is applied when inverting the heuristic for Truncate, so the
// truncated text is guaranteed (barring adversarial input) to estimate at or
// under maxTokens.
const safetyMargin = 0.95

const ellipsis = "…"

// Truncate shortens text to approximately maxTokens tokens under the same
// heuristic as Estimate, applying a 5% safety margin, backing off to the
// nearest whitespace boundary, and appending an ellipsis marker.
func Truncate(text string, maxTokens uint64, kind coretypes.ProviderKind) string {
	if maxTokens == 0 {
		return ""
	}
	if Estimate(text, kind) <= maxTokens {
		return text
	}

	class := classify(text)
	cpt := charsPerToken[class]
	factor, ok := providerFactor[kind]
	if !ok {
		factor = 1.0
	}

	targetChars := int(float64(maxTokens) * cpt / factor * safetyMargin)
	if targetChars <= 0 {
		return ellipsis
	}
	if targetChars >= len(text) {
		return text
	}

	// Don't split a UTF-8 rune in half.
	for targetChars > 0 && !utf8.RuneStart(text[targetChars]) {
		targetChars--
	}

	cut := text[:targetChars]
	if idx := strings.LastIndexAny(cut, " \t\n"); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " \t\n") + ellipsis
}
