package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/brightloom/aicore/pkg/coretypes"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func startServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("readJSON: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("readJSON unmarshal: %v", err)
	}
}

func TestConnectSendsSessionUpdate(t *testing.T) {
	done := make(chan struct{})
	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		defer close(done)
		var msg sessionUpdateMessage
		readJSON(t, conn, &msg)
		if msg.Type != "session.update" {
			t.Errorf("Type = %q, want session.update", msg.Type)
		}
		if msg.Session.TurnDetectionType != "server_vad" {
			t.Errorf("TurnDetectionType = %q, want server_vad", msg.Session.TurnDetectionType)
		}
		if !msg.Session.CreateResponseOnSpeech {
			t.Error("expected CreateResponseOnSpeech true")
		}
	})

	s := New(Config{Model: "gpt-realtime", Voice: "alloy", BaseURL: wsURL(srv), APIKey: "sk-test"})
	if err := s.Connect(t.Context()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer s.EndSession()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for session.update")
	}

	if s.State() != coretypes.RealtimeConnected {
		t.Errorf("State() = %v, want Connected", s.State())
	}
}

func TestConnectSendsAuthHeader(t *testing.T) {
	var gotAuth string
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		var msg sessionUpdateMessage
		readJSON(t, conn, &msg)
		close(done)
	}))
	t.Cleanup(srv.Close)

	s := New(Config{Model: "gpt-realtime", BaseURL: wsURL(srv), APIKey: "sk-secret"})
	if err := s.Connect(t.Context()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer s.EndSession()

	<-done
	if gotAuth != "Bearer sk-secret" {
		t.Errorf("Authorization = %q, want Bearer sk-secret", gotAuth)
	}
}

func TestSendAudioFrameEncodesAndSends(t *testing.T) {
	received := make(chan appendAudioMessage, 1)
	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		var su sessionUpdateMessage
		readJSON(t, conn, &su)
		var msg appendAudioMessage
		readJSON(t, conn, &msg)
		received <- msg
	})

	s := New(Config{Model: "gpt-realtime", BaseURL: wsURL(srv)})
	if err := s.Connect(t.Context()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer s.EndSession()

	pcm := []byte{1, 2, 3, 4}
	if err := s.SendAudioFrame(pcm); err != nil {
		t.Fatalf("SendAudioFrame() error = %v", err)
	}

	select {
	case msg := <-received:
		if msg.Type != "input_audio_buffer.append" {
			t.Errorf("Type = %q, want input_audio_buffer.append", msg.Type)
		}
		decoded, err := base64.StdEncoding.DecodeString(msg.Audio)
		if err != nil || string(decoded) != string(pcm) {
			t.Errorf("decoded audio = %v, want %v (err=%v)", decoded, pcm, err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for audio frame")
	}
}

func TestSendAudioFrameDropsSilence(t *testing.T) {
	s := New(Config{Model: "m"})
	if err := s.SendAudioFrame(nil); err != nil {
		t.Errorf("SendAudioFrame(nil) error = %v, want nil", err)
	}
	if err := s.SendAudioFrame(make([]byte, 8)); err != nil {
		t.Errorf("SendAudioFrame(zeros) error = %v, want nil", err)
	}
	if s.AudioBufferCount() != 2 {
		t.Errorf("AudioBufferCount() = %d, want 2", s.AudioBufferCount())
	}
}

func TestOnIncomingEventAudioDeltaTransitionsToSpeaking(t *testing.T) {
	s := New(Config{Model: "m"})
	s.setState(coretypes.RealtimeListening)

	audio := []byte{9, 9, 9}
	payload, _ := json.Marshal(map[string]any{
		"type":  "response.audio.delta",
		"delta": base64.StdEncoding.EncodeToString(audio),
	})
	s.OnIncomingEvent(payload)

	if s.State() != coretypes.RealtimeSpeaking {
		t.Errorf("State() = %v, want Speaking", s.State())
	}
	select {
	case evt := <-s.Subscribe():
		if evt.Type != EventAudioDelta || string(evt.AudioBytes) != string(audio) {
			t.Errorf("evt = %+v, want AudioDelta with %v", evt, audio)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	if s.PlaybackBufferCount() != 1 {
		t.Errorf("PlaybackBufferCount() = %d, want 1", s.PlaybackBufferCount())
	}
}

func TestOnIncomingEventSpeechStartedTransitionsToProcessing(t *testing.T) {
	s := New(Config{Model: "m"})
	s.setState(coretypes.RealtimeListening)

	payload, _ := json.Marshal(map[string]any{"type": "input_audio_buffer.speech_started"})
	s.OnIncomingEvent(payload)

	if s.State() != coretypes.RealtimeProcessing {
		t.Errorf("State() = %v, want Processing", s.State())
	}
	<-s.Subscribe()
}

func TestOnIncomingEventErrorTransitionsToErrorState(t *testing.T) {
	s := New(Config{Model: "m"})
	payload, _ := json.Marshal(map[string]any{
		"type":  "error",
		"error": map[string]string{"message": "boom"},
	})
	s.OnIncomingEvent(payload)

	if s.State() != coretypes.RealtimeError {
		t.Errorf("State() = %v, want Error", s.State())
	}
	if s.LastError() == nil {
		t.Error("expected LastError to be set")
	}
	evt := <-s.Subscribe()
	if evt.Type != EventError || evt.Message != "boom" {
		t.Errorf("evt = %+v, want Error with message boom", evt)
	}
}

func TestOnIncomingEventResponseCompletedReturnsToListening(t *testing.T) {
	s := New(Config{Model: "m"})
	s.setState(coretypes.RealtimeSpeaking)
	payload, _ := json.Marshal(map[string]any{"type": "response.completed"})
	s.OnIncomingEvent(payload)

	if s.State() != coretypes.RealtimeListening {
		t.Errorf("State() = %v, want Listening", s.State())
	}
	<-s.Subscribe()
}

func TestMuteTogglesMuted(t *testing.T) {
	s := New(Config{Model: "m"})
	if s.Muted() {
		t.Fatal("expected initial Muted() false")
	}
	s.Mute(true)
	if !s.Muted() {
		t.Error("expected Muted() true after Mute(true)")
	}
}

func TestEndSessionIsIdempotent(t *testing.T) {
	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		var su sessionUpdateMessage
		readJSON(t, conn, &su)
		time.Sleep(50 * time.Millisecond)
	})
	s := New(Config{Model: "m", BaseURL: wsURL(srv)})
	if err := s.Connect(t.Context()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := s.EndSession(); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	if err := s.EndSession(); err != nil {
		t.Fatalf("second EndSession() error = %v", err)
	}
	if s.State() != coretypes.RealtimeIdle {
		t.Errorf("State() = %v, want Idle", s.State())
	}
}

func TestEndSessionClosesEventsChannel(t *testing.T) {
	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		var su sessionUpdateMessage
		readJSON(t, conn, &su)
		time.Sleep(50 * time.Millisecond)
	})
	s := New(Config{Model: "m", BaseURL: wsURL(srv)})
	if err := s.Connect(t.Context()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	s.EndSession()

	_, ok := <-s.Subscribe()
	if ok {
		t.Error("expected events channel to be closed")
	}
}

func TestConnectWithCancelledContextReturnsError(t *testing.T) {
	s := New(Config{Model: "m", BaseURL: "ws://127.0.0.1:0"})
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if err := s.Connect(ctx); err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if s.State() != coretypes.RealtimeError {
		t.Errorf("State() = %v, want Error", s.State())
	}
}

func TestSessionIDIsStableAndUnique(t *testing.T) {
	a := New(Config{})
	b := New(Config{})

	if a.SessionID() == "" {
		t.Fatal("expected a non-empty SessionID")
	}
	if a.SessionID() != a.SessionID() {
		t.Error("SessionID should be stable across calls")
	}
	if a.SessionID() == b.SessionID() {
		t.Error("two distinct Sessions should not share a SessionID")
	}
}

func TestIsAllZero(t *testing.T) {
	if !isAllZero(nil) {
		t.Error("isAllZero(nil) = false, want true")
	}
	if !isAllZero([]byte{0, 0, 0}) {
		t.Error("isAllZero(zeros) = false, want true")
	}
	if isAllZero([]byte{0, 1, 0}) {
		t.Error("isAllZero(mixed) = true, want false")
	}
}
