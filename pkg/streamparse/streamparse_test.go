package streamparse

import (
	"reflect"
	"testing"

	"github.com/brightloom/aicore/pkg/coretypes"
)

func TestAnthropicParserChunkOrderAndCompletion(t *testing.T) {
	var chunks []string
	var finals []bool
	var completed string
	completions := 0

	p := NewAnthropicParser(Handler{
		OnChunk: func(text string, isFinal bool) {
			chunks = append(chunks, text)
			finals = append(finals, isFinal)
		},
		OnComplete: func(full string, usage coretypes.TokenUsage) {
			completed = full
			completions++
		},
	})

	p.Feed([]byte(`data: {"type":"content_block_delta","delta":{"text":"Hel"}}` + "\n"))
	p.Feed([]byte(`data: {"type":"content_block_delta","delta":{"text":"lo"}}` + "\n"))
	p.Feed([]byte(`data: {"type":"message_stop"}` + "\n"))

	if !reflect.DeepEqual(chunks, []string{"Hel", "lo", ""}) {
		t.Errorf("chunks = %v, want [Hel lo \"\"]", chunks)
	}
	if !reflect.DeepEqual(finals, []bool{false, false, true}) {
		t.Errorf("finals = %v, want [false false true]", finals)
	}
	if completed != "Hello" {
		t.Errorf("completed = %q, want Hello", completed)
	}
	if completions != 1 {
		t.Errorf("OnComplete fired %d times, want 1", completions)
	}

	// Close after an already-observed message_stop must not re-fire.
	p.Close()
	if completions != 1 {
		t.Errorf("OnComplete fired %d times after Close, want 1", completions)
	}
}

func TestAnthropicParserSplitAcrossFeeds(t *testing.T) {
	var chunks []string
	p := NewAnthropicParser(Handler{
		OnChunk: func(text string, isFinal bool) { chunks = append(chunks, text) },
	})

	full := `data: {"type":"content_block_delta","delta":{"text":"Hello"}}` + "\n"
	p.Feed([]byte(full[:20]))
	p.Feed([]byte(full[20:]))

	if len(chunks) != 1 || chunks[0] != "Hello" {
		t.Errorf("chunks = %v, want [Hello]", chunks)
	}
}

func TestOpenAIParserDoneSentinel(t *testing.T) {
	var chunks []string
	completions := 0
	p := NewOpenAIParser(Handler{
		OnChunk:    func(text string, isFinal bool) { chunks = append(chunks, text) },
		OnComplete: func(full string, usage coretypes.TokenUsage) { completions++ },
	})

	p.Feed([]byte(`data: {"choices":[{"delta":{"content":"Hi"}}]}` + "\n"))
	p.Feed([]byte("data: [DONE]\n"))

	if !reflect.DeepEqual(chunks, []string{"Hi", ""}) {
		t.Errorf("chunks = %v", chunks)
	}
	if completions != 1 {
		t.Errorf("completions = %d, want 1", completions)
	}
}

func TestOpenAIParserServerClosedSocketFiresCompleteOnce(t *testing.T) {
	completions := 0
	p := NewOpenAIParser(Handler{
		OnComplete: func(full string, usage coretypes.TokenUsage) { completions++ },
	})
	p.Feed([]byte(`data: {"choices":[{"delta":{"content":"x"}}]}` + "\n"))
	p.Close()
	p.Close()
	if completions != 1 {
		t.Errorf("completions = %d, want 1", completions)
	}
}

func TestGeminiParserExtractsPartsText(t *testing.T) {
	var acc string
	p := NewGeminiParser(Handler{
		OnChunk: func(text string, isFinal bool) { acc += text },
	})
	p.Feed([]byte(`data: {"candidates":[{"content":{"parts":[{"text":"foo"}]},"finishReason":"STOP"}]}` + "\n"))
	if acc != "foo" {
		t.Errorf("acc = %q, want foo", acc)
	}
}

func TestOllamaParserNDJSONWithDoneFlag(t *testing.T) {
	var acc string
	completions := 0
	p := NewOllamaParser(Handler{
		OnChunk:    func(text string, isFinal bool) { acc += text },
		OnComplete: func(full string, usage coretypes.TokenUsage) { completions++ },
	})

	p.Feed([]byte(`{"message":{"content":"Hel"},"done":false}` + "\n"))
	p.Feed([]byte(`{"message":{"content":"lo"},"done":false}` + "\n"))
	p.Feed([]byte(`{"message":{"content":""},"done":true,"prompt_eval_count":5,"eval_count":2}` + "\n"))

	if acc != "Hello" {
		t.Errorf("acc = %q, want Hello", acc)
	}
	if completions != 1 {
		t.Errorf("completions = %d, want 1", completions)
	}
}

func TestOllamaParserFallsBackToTopLevelResponse(t *testing.T) {
	var acc string
	p := NewOllamaParser(Handler{
		OnChunk: func(text string, isFinal bool) { acc += text },
	})
	p.Feed([]byte(`{"response":"plain text","done":true}` + "\n"))
	if acc != "plain text" {
		t.Errorf("acc = %q, want %q", acc, "plain text")
	}
}

func TestUnescapeJSONString(t *testing.T) {
	in := `line1\nline2\ttabbed \"quoted\" back\\slash`
	want := "line1\nline2\ttabbed \"quoted\" back\\slash"
	if got := unescapeJSONString(in); got != want {
		t.Errorf("unescapeJSONString = %q, want %q", got, want)
	}
}

func TestExtractQuotedFieldSkipsEscapedQuotes(t *testing.T) {
	raw := `{"text":"he said \"hi\" there","other":"x"}`
	got, ok := extractQuotedField(raw, "text")
	if !ok {
		t.Fatal("expected field to be found")
	}
	if got != `he said "hi" there` {
		t.Errorf("got %q", got)
	}
}
