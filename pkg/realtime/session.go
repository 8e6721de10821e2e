// Package realtime implements the Realtime Session (spec component I): a
// persistent bidirectional audio session over a streaming WebSocket,
// grounded in the teacher's pkg/provider/s2s/openai session (receive loop,
// sync.Once channel close, mutex-guarded error/state) and
// internal/session.Reconnector (exponential-backoff reconnection).
package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/brightloom/aicore/pkg/coretypes"
	"github.com/brightloom/aicore/pkg/transport"
)

// reconnectDelays is the exponential-backoff schedule from spec §4.8:
// "{1s, 2s, 4s, 8s, 16s} for up to 5 attempts".
var reconnectDelays = []time.Duration{
	1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
}

// EventType enumerates the inbound event categories a Session dispatches
// (spec §4.8 on_incoming_event / §6 "Realtime wire events").
type EventType string

const (
	EventAudioDelta          EventType = "audio_delta"
	EventAudioDone           EventType = "audio_done"
	EventTranscriptDelta     EventType = "transcript_delta"
	EventTranscriptCompleted EventType = "transcript_completed"
	EventSpeechStarted       EventType = "speech_started"
	EventSpeechStopped       EventType = "speech_stopped"
	EventResponseCompleted   EventType = "response_completed"
	EventError               EventType = "error"
)

// Event is what Subscribe delivers: the decoded, typed form of one inbound
// wire event (spec §9 "Streaming callbacks ... a channel/stream of events
// (preferred where first-class async is available)").
type Event struct {
	Type       EventType
	AudioBytes []byte
	Text       string
	Message    string
}

// Config configures Connect (spec §4.8 `connect(model, voice, system_prompt)`).
type Config struct {
	Model        string
	Voice        string
	SystemPrompt string
	BaseURL      string // defaults to "wss://api.openai.com/v1/realtime"
	APIKey       string
}

const defaultBaseURL = "wss://api.openai.com/v1/realtime"

// Session is a single persistent realtime connection. External operations
// (SendAudioFrame, Mute, EndSession) may be called from any goroutine and
// coordinate through the session mutex. The receive loop is the socket's
// only reader; writes (session.update, audio frames) are issued directly
// from the calling goroutine rather than through a single send/receive task.
type Session struct {
	cfg       Config
	sessionID string

	mu             sync.Mutex
	state          coretypes.RealtimeState
	conn           *websocket.Conn
	muted          bool
	reconnectCount int
	lastErr        error

	audioBufferCount    int64
	playbackBufferCount int64

	levels coretypes.LevelMeter
	cancel *transport.CancelFlag

	events    chan Event
	ctx       context.Context
	ctxCancel context.CancelFunc
	closeOnce sync.Once
}

// New constructs a Session bound to cfg. Connect must be called before any
// other operation.
func New(cfg Config) *Session {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Session{
		cfg:       cfg,
		sessionID: uuid.NewString(),
		state:     coretypes.RealtimeIdle,
		events:    make(chan Event, 64),
		cancel:    &transport.CancelFlag{},
	}
}

// SessionID returns the identifier generated for this Session at
// construction time, stable for its whole lifetime — useful for correlating
// log lines and events across reconnects (spec §4.8's reconnection keeps the
// same logical session).
func (s *Session) SessionID() string { return s.sessionID }

// Subscribe returns the channel on which decoded inbound events arrive.
// Closed when the session reaches Idle via EndSession.
func (s *Session) Subscribe() <-chan Event { return s.events }

// State returns the session's current lifecycle state.
func (s *Session) State() coretypes.RealtimeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Levels returns a read-only snapshot of the input/output level bars.
func (s *Session) Levels() coretypes.LevelSnapshot { return s.levels.Snapshot() }

// LastError returns the most recently recorded session error, if any.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Session) setState(state coretypes.RealtimeState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Connect opens a persistent streaming socket to the realtime endpoint and
// sends session.update with server VAD enabled and create_response=true
// (spec §4.8).
func (s *Session) Connect(ctx context.Context) error {
	if s.cancel.Cancelled() {
		return fmt.Errorf("realtime: connect: session ended")
	}
	s.setState(coretypes.RealtimeConnecting)

	sessCtx, sessCancel := context.WithCancel(context.Background())
	conn, _, err := websocket.Dial(ctx, fmt.Sprintf("%s?model=%s", s.cfg.BaseURL, s.cfg.Model), &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + s.cfg.APIKey},
			"OpenAI-Beta":   []string{"realtime=v1"},
		},
	})
	if err != nil {
		sessCancel()
		s.setState(coretypes.RealtimeError)
		return fmt.Errorf("realtime: connect: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.ctx = sessCtx
	s.ctxCancel = sessCancel
	s.mu.Unlock()

	if err := s.sendSessionUpdate(); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "session update failed")
		s.setState(coretypes.RealtimeError)
		return fmt.Errorf("realtime: session update: %w", err)
	}

	s.setState(coretypes.RealtimeConnected)
	go s.receiveLoop(sessCtx, conn)
	return nil
}

type sessionUpdateMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Voice                   string `json:"voice,omitempty"`
	Instructions            string `json:"instructions,omitempty"`
	InputAudioFormat        string `json:"input_audio_format"`
	OutputAudioFormat       string `json:"output_audio_format"`
	TurnDetectionType       string `json:"turn_detection_type,omitempty"`
	CreateResponseOnSpeech  bool   `json:"create_response"`
}

func (s *Session) sendSessionUpdate() error {
	params := sessionParams{
		Voice:                  s.cfg.Voice,
		Instructions:           s.cfg.SystemPrompt,
		InputAudioFormat:       "pcm16",
		OutputAudioFormat:      "pcm16",
		TurnDetectionType:      "server_vad",
		CreateResponseOnSpeech: true,
	}
	return s.writeJSON(sessionUpdateMessage{Type: "session.update", Session: params})
}

func (s *Session) writeJSON(v any) error {
	s.mu.Lock()
	conn, ctx := s.conn, s.ctx
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("realtime: not connected")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("realtime: marshal: %w", err)
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

type appendAudioMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// SendAudioFrame validates, base64-encodes, and sends pcm16 as an
// input_audio_buffer.append event. Empty or all-zero frames are dropped at
// the boundary per spec §4.9, as is every frame while the session is muted;
// this still increments the buffer counter so callers observe the drop.
func (s *Session) SendAudioFrame(pcm16 []byte) error {
	s.mu.Lock()
	s.audioBufferCount++
	muted := s.muted
	s.mu.Unlock()

	if muted || len(pcm16) == 0 || isAllZero(pcm16) {
		return nil
	}
	return s.writeJSON(appendAudioMessage{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(pcm16),
	})
}

func isAllZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// Mute toggles local microphone capture gating; while muted, SendAudioFrame
// still counts each frame but never sends it.
func (s *Session) Mute(muted bool) {
	s.mu.Lock()
	s.muted = muted
	s.mu.Unlock()
}

// Muted reports the current mute state.
func (s *Session) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// AudioBufferCount returns the number of audio frames submitted to
// SendAudioFrame, including ones dropped at the validation boundary.
func (s *Session) AudioBufferCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioBufferCount
}

// PlaybackBufferCount returns the number of playback buffers received.
func (s *Session) PlaybackBufferCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playbackBufferCount
}

// EndSession closes the socket and returns the session to Idle from any
// state. Idempotent. Also trips the session's cancel flag, which aborts an
// in-flight Connect (spec §4.8: "cancellation of an in-flight connect is via
// the same cancel flag used by the HTTP Transport") and cuts short any
// reconnection backoff wait in progress.
func (s *Session) EndSession() error {
	s.cancel.Cancel()

	s.mu.Lock()
	conn := s.conn
	cancel := s.ctxCancel
	s.conn = nil
	s.state = coretypes.RealtimeIdle
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.closeOnce.Do(func() { close(s.events) })
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "session ended")
	}
	return nil
}

func (s *Session) recordErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

func (s *Session) emit(evt Event) {
	select {
	case s.events <- evt:
	default:
		// A full event channel indicates a stalled subscriber; dropping
		// rather than blocking keeps the receive loop responsive, matching
		// the non-blocking channel-send idiom used throughout the pipeline.
	}
}

// receiveLoop reads events from the socket and dispatches them until the
// context is cancelled or the connection errors, at which point it
// triggers reconnection (spec §4.8's reconnection rule) unless the session
// is already ending.
func (s *Session) receiveLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.recordErr(err)
			s.handleUnexpectedClose()
			return
		}
		s.OnIncomingEvent(data)
	}
}

type serverEvent struct {
	Type       string `json:"type"`
	Delta      string `json:"delta,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Error      *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// OnIncomingEvent dispatches one raw server event by its "type" field (spec
// §4.8). Exported so tests can drive the state machine without a real
// socket.
func (s *Session) OnIncomingEvent(raw []byte) {
	var evt serverEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return
	}

	switch evt.Type {
	case "response.audio.delta":
		s.setState(coretypes.RealtimeSpeaking)
		if evt.Delta == "" {
			return
		}
		audio, err := base64.StdEncoding.DecodeString(evt.Delta)
		if err != nil || len(audio) == 0 {
			return
		}
		s.mu.Lock()
		s.playbackBufferCount++
		s.mu.Unlock()
		s.emit(Event{Type: EventAudioDelta, AudioBytes: audio})

	case "response.audio.done":
		s.emit(Event{Type: EventAudioDone})

	case "conversation.item.input_audio_transcription.delta":
		s.emit(Event{Type: EventTranscriptDelta, Text: evt.Delta})

	case "conversation.item.input_audio_transcription.completed":
		s.emit(Event{Type: EventTranscriptCompleted, Text: evt.Transcript})

	case "input_audio_buffer.speech_started":
		s.setState(coretypes.RealtimeProcessing)
		s.emit(Event{Type: EventSpeechStarted})

	case "input_audio_buffer.speech_stopped":
		s.emit(Event{Type: EventSpeechStopped})

	case "response.completed":
		s.setState(coretypes.RealtimeListening)
		s.emit(Event{Type: EventResponseCompleted})

	case "error":
		msg := "unknown error"
		if evt.Error != nil && evt.Error.Message != "" {
			msg = evt.Error.Message
		}
		s.recordErr(fmt.Errorf("realtime: %s", msg))
		s.setState(coretypes.RealtimeError)
		s.emit(Event{Type: EventError, Message: msg})
	}
}

// handleUnexpectedClose implements the reconnection rule from spec §4.8: on
// unexpected close while in any non-Idle state, transition to Connecting
// and retry with exponential backoff up to 5 attempts. Audio captured
// during the reconnect window is dropped; AudioBufferCount still reflects
// frames submitted during that window via SendAudioFrame's unconditional
// counter increment.
func (s *Session) handleUnexpectedClose() {
	if s.State() == coretypes.RealtimeIdle {
		return
	}
	s.setState(coretypes.RealtimeConnecting)

	for attempt, delay := range reconnectDelays {
		if !s.sleepUnlessCancelled(delay) {
			return // EndSession tripped the cancel flag during the backoff window.
		}
		if s.State() == coretypes.RealtimeIdle {
			return // EndSession was called during the backoff window.
		}

		s.mu.Lock()
		s.reconnectCount = attempt + 1
		s.mu.Unlock()

		if err := s.Connect(context.Background()); err == nil {
			return
		}
	}

	s.setState(coretypes.RealtimeError)
	s.recordErr(fmt.Errorf("realtime: reconnection failed after %d attempts", len(reconnectDelays)))
}

// sleepUnlessCancelled sleeps d in short ticks, polling the session's cancel
// flag (spec §9's replacement for the sig_atomic_t-style cancel flag) so
// EndSession can cut a reconnect backoff wait short. Returns false if
// cancelled before d elapsed.
func (s *Session) sleepUnlessCancelled(d time.Duration) bool {
	const tick = 100 * time.Millisecond
	for remaining := d; remaining > 0; remaining -= tick {
		if s.cancel.Cancelled() {
			return false
		}
		step := tick
		if remaining < tick {
			step = remaining
		}
		time.Sleep(step)
	}
	return !s.cancel.Cancelled()
}

// ReconnectAttempts returns the number (1-5) of the most recent reconnection
// attempt, or 0 if the session has never tried to reconnect. A successful
// connect does not reset it.
func (s *Session) ReconnectAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnectCount
}
