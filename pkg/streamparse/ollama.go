package streamparse

import (
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/brightloom/aicore/pkg/coretypes"
	"github.com/brightloom/aicore/pkg/tokens"
)

// OllamaParser extracts text from Ollama-style newline-delimited JSON
// objects: content at message.content, falling back to the top-level
// response field; completion is signaled by "done": true on any object.
type OllamaParser struct {
	h Handler

	mu        sync.Mutex
	lines     lineSplitter
	acc       strings.Builder
	usage     coretypes.TokenUsage
	completed bool
}

// NewOllamaParser constructs a parser driving h as frames arrive.
func NewOllamaParser(h Handler) *OllamaParser {
	return &OllamaParser{h: h}
}

// Feed ingests one read's worth of raw NDJSON bytes.
func (p *OllamaParser) Feed(chunk []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.completed {
		return
	}

	for _, line := range p.lines.split(chunk) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		p.handleObject(line)
	}
}

func (p *OllamaParser) handleObject(raw string) {
	text, ok := gjsonText([]byte(raw), "message.content", "content")
	if !ok || text == "" {
		text, ok = gjsonText([]byte(raw), "response", "response")
	}
	if ok && text != "" {
		p.acc.WriteString(text)
		if p.h.OnChunk != nil {
			p.h.OnChunk(text, false)
		}
	}

	if v := gjson.Get(raw, "prompt_eval_count"); v.Exists() {
		p.usage.InputTokens = v.Uint()
	}
	if v := gjson.Get(raw, "eval_count"); v.Exists() {
		p.usage.OutputTokens = v.Uint()
	}

	if done := gjson.Get(raw, "done"); done.Exists() && done.Bool() {
		p.finish()
	}
}

func (p *OllamaParser) finish() {
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
			usage.OutputTokens = tokens.Estimate(full, coretypes.OllamaLike)
		}
		p.h.OnComplete(full, usage)
	}
}

// Close signals the streaming body closed without an explicit "done": true
// object (local Ollama endpoint dropped the connection early).
func (p *OllamaParser) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finish()
}
