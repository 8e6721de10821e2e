package streamparse

import (
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/brightloom/aicore/pkg/coretypes"
	"github.com/brightloom/aicore/pkg/tokens"
)

// GeminiParser extracts text deltas from Gemini-style SSE framing:
// `data: {json}\n` lines, text living at
// candidates[].content.parts[].text. Gemini has no explicit terminal
// sentinel; completion is signaled by the streaming body closing.
type GeminiParser struct {
	h Handler

	mu        sync.Mutex
	lines     lineSplitter
	acc       strings.Builder
	usage     coretypes.TokenUsage
	completed bool
}

// NewGeminiParser constructs a parser driving h as frames arrive.
func NewGeminiParser(h Handler) *GeminiParser {
	return &GeminiParser{h: h}
}

// Feed ingests one read's worth of raw SSE bytes.
func (p *GeminiParser) Feed(chunk []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.completed {
		return
	}

	for _, line := range p.lines.split(chunk) {
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		p.handleEvent(payload)
	}
}

func (p *GeminiParser) handleEvent(payload string) {
	raw := []byte(payload)
	parts := gjson.GetBytes(raw, "candidates.0.content.parts")
	if parts.IsArray() {
		for _, part := range parts.Array() {
			text := part.Get("text").String()
			if text == "" {
				continue
			}
			p.acc.WriteString(text)
			if p.h.OnChunk != nil {
				p.h.OnChunk(text, false)
			}
		}
	} else if text, ok := extractQuotedField(payload, "text"); ok {
		p.acc.WriteString(text)
		if p.h.OnChunk != nil {
			p.h.OnChunk(text, false)
		}
	}

	meta := gjson.GetBytes(raw, "usageMetadata")
	if meta.Exists() {
		if v := meta.Get("promptTokenCount"); v.Exists() {
			p.usage.InputTokens = v.Uint()
		}
		if v := meta.Get("candidatesTokenCount"); v.Exists() {
			p.usage.OutputTokens = v.Uint()
		}
		if v := meta.Get("cachedContentTokenCount"); v.Exists() {
			p.usage.CachedTokens = v.Uint()
		}
	}

	if finish := gjson.GetBytes(raw, "candidates.0.finishReason"); finish.Exists() && finish.String() != "" {
		p.finish()
	}
}

func (p *GeminiParser) finish() {
	if p.completed {
		return
	}
	p.completed = true
	if p.h.OnChunk != nil {
		p.h.OnChunk("", true)
	}
	if p.h.OnComplete != nil {
		full := p.acc.String()
		usage := p.usage
		if usage.InputTokens == 0 && usage.OutputTokens == 0 {
			usage.OutputTokens = tokens.Estimate(full, coretypes.GeminiLike)
		}
		p.h.OnComplete(full, usage)
	}
}

// Close signals the streaming body closed without an explicit finishReason.
func (p *GeminiParser) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finish()
}
