package streamparse

import (
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/brightloom/aicore/pkg/coretypes"
	"github.com/brightloom/aicore/pkg/tokens"
)

// OpenAIParser extracts text deltas from OpenAI-style SSE framing:
// `data: {json}\n` lines with a literal `data: [DONE]` sentinel, content at
// choices[0].delta.content.
type OpenAIParser struct {
	h Handler

	mu        sync.Mutex
	lines     lineSplitter
	acc       strings.Builder
	usage     coretypes.TokenUsage
	completed bool
}

// NewOpenAIParser constructs a parser driving h as frames arrive.
func NewOpenAIParser(h Handler) *OpenAIParser {
	return &OpenAIParser{h: h}
}

// Feed ingests one read's worth of raw SSE bytes.
func (p *OpenAIParser) Feed(chunk []byte) {
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
		if payload == "[DONE]" {
			p.finish()
			continue
		}
		p.handleEvent(payload)
	}
}

func (p *OpenAIParser) handleEvent(payload string) {
	if text, ok := gjsonText([]byte(payload), "choices.0.delta.content", "content"); ok && text != "" {
		p.acc.WriteString(text)
		if p.h.OnChunk != nil {
			p.h.OnChunk(text, false)
		}
	}
	if v := gjson.Get(payload, "usage.prompt_tokens"); v.Exists() {
		p.usage.InputTokens = v.Uint()
	}
	if v := gjson.Get(payload, "usage.completion_tokens"); v.Exists() {
		p.usage.OutputTokens = v.Uint()
	}
}

func (p *OpenAIParser) finish() {
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
			usage.OutputTokens = tokens.Estimate(full, coretypes.OpenAILike)
		}
		p.h.OnComplete(full, usage)
	}
}

// Close signals a server-closed socket with no [DONE] sentinel observed.
func (p *OpenAIParser) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finish()
}
