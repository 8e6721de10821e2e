// Package streamparse implements the Stream Parser (spec §4.4): incremental
// extraction of text deltas and token usage from chunked streaming HTTP
// bodies, one extractor per wire format. Tool-call frames are not
// extracted.
//
// Every parser maintains a carry buffer across Feed calls so a frame split
// across two network reads is handled transparently, and reports completion
// exactly once regardless of whether the stream ends with a sentinel or a
// server-closed socket.
package streamparse

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/brightloom/aicore/pkg/coretypes"
)

// ChunkFunc receives each decoded text delta. isFinal is true exactly once,
// on the call that signals stream termination (which may carry an empty
// string).
type ChunkFunc func(text string, isFinal bool)

// CompleteFunc is invoked exactly once at end of stream with the full
// accumulated text and a best-effort usage figure (server-reported when the
// wire format carried one, heuristic otherwise).
type CompleteFunc func(fullText string, usage coretypes.TokenUsage)

// ErrorFunc reports a malformed-frame or transport-level problem encountered
// mid-stream. The stream may still continue after an ErrorFunc call.
type ErrorFunc func(message string)

// Handler bundles the three callbacks a Parser drives, mirroring the
// stream_chat handler shape from the provider contract (spec §4.5).
type Handler struct {
	OnChunk    ChunkFunc
	OnComplete CompleteFunc
	OnError    ErrorFunc
}

// Parser is the common interface implemented by each wire-format extractor.
// Feed is called once per read from the streaming HTTP body; Close signals
// a server-closed socket (as opposed to an explicit sentinel) so the parser
// can still fire OnComplete exactly once.
type Parser interface {
	Feed(chunk []byte)
	Close()
}

// lineSplitter accumulates bytes across Feed calls and yields complete
// newline-terminated lines, carrying a partial trailing line forward.
type lineSplitter struct {
	carry []byte
}

// split appends data to the carry buffer and returns complete lines,
// retaining any trailing partial line in the carry buffer for the next Feed.
func (s *lineSplitter) split(data []byte) []string {
	s.carry = append(s.carry, data...)
	var lines []string
	for {
		idx := indexByte(s.carry, '\n')
		if idx < 0 {
			break
		}
		line := string(s.carry[:idx])
		s.carry = s.carry[idx+1:]
		lines = append(lines, strings.TrimRight(line, "\r"))
	}
	return lines
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

// unescapeJSONString unescapes the JSON escape sequences the spec calls out
// explicitly (\n \r \t \" \\), skipping escaped quotes so embedded quoted
// text does not terminate extraction early. Used only on the brace-scanning
// fallback path for malformed frames; the happy path defers entirely to
// gjson/encoding-json, which already implement the full JSON grammar.
func unescapeJSONString(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case 'n':
				b.WriteByte('\n')
				i++
				continue
			case 'r':
				b.WriteByte('\r')
				i++
				continue
			case 't':
				b.WriteByte('\t')
				i++
				continue
			case '"':
				b.WriteByte('"')
				i++
				continue
			case '\\':
				b.WriteByte('\\')
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// extractQuotedField finds "key":"value" in raw (tolerating arbitrary
// surrounding JSON) respecting escaped quotes, and returns the unescaped
// value. Used as the brace-scanning fallback when a frame fails to parse as
// well-formed JSON — the tolerant path spec §9 asks for on malformed frames.
func extractQuotedField(raw, key string) (string, bool) {
	needle := `"` + key + `":"`
	idx := strings.Index(raw, needle)
	if idx < 0 {
		return "", false
	}
	start := idx + len(needle)
	i := start
	for i < len(raw) {
		if raw[i] == '\\' {
			i += 2
			continue
		}
		if raw[i] == '"' {
			return unescapeJSONString(raw[start:i]), true
		}
		i++
	}
	return "", false
}

// gjsonText extracts a string field via gjson and falls back to
// extractQuotedField on malformed JSON, per §4.4/§9.
func gjsonText(raw []byte, path, fallbackKey string) (string, bool) {
	res := gjson.GetBytes(raw, path)
	if res.Exists() && res.Type == gjson.String {
		return res.String(), true
	}
	return extractQuotedField(string(raw), fallbackKey)
}
