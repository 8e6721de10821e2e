package streamparse

import (
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/brightloom/aicore/pkg/coretypes"
	"github.com/brightloom/aicore/pkg/tokens"
)

// AnthropicParser extracts text deltas from Anthropic-style SSE framing:
// `data: {json}\n` lines, text living at content_block_delta.delta.text.
// Completion is signaled by a message_stop event or a server-closed socket,
// whichever comes first; OnComplete fires exactly once either way.
type AnthropicParser struct {
	h Handler

	mu        sync.Mutex
	lines     lineSplitter
	acc       strings.Builder
	usage     coretypes.TokenUsage
	completed bool
}

// NewAnthropicParser constructs a parser driving h as frames arrive.
func NewAnthropicParser(h Handler) *AnthropicParser {
	return &AnthropicParser{h: h}
}

// Feed ingests one read's worth of raw SSE bytes.
func (p *AnthropicParser) Feed(chunk []byte) {
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

func (p *AnthropicParser) handleEvent(payload string) {
	eventType := gjson.Get(payload, "type").String()

	switch eventType {
	case "content_block_delta":
		text, ok := gjsonText([]byte(payload), "delta.text", "text")
		if !ok {
			return
		}
		p.acc.WriteString(text)
		if p.h.OnChunk != nil {
			p.h.OnChunk(text, false)
		}
	case "message_delta":
		if v := gjson.Get(payload, "usage.output_tokens"); v.Exists() {
			p.usage.OutputTokens = v.Uint()
		}
	case "message_start":
		if v := gjson.Get(payload, "message.usage.input_tokens"); v.Exists() {
			p.usage.InputTokens = v.Uint()
		}
		if v := gjson.Get(payload, "message.usage.cache_read_input_tokens"); v.Exists() {
			p.usage.CachedTokens = v.Uint()
		}
	case "message_stop":
		p.finish()
	}
}

func (p *AnthropicParser) finish() {
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
			usage.OutputTokens = tokens.Estimate(full, coretypes.AnthropicLike)
		}
		p.h.OnComplete(full, usage)
	}
}

// Close signals the body reader reached EOF without an explicit terminal
// event (server-closed socket); OnComplete still fires exactly once.
func (p *AnthropicParser) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finish()
}
