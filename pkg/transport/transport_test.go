package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDoReturnsBufferedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New()
	resp, err := c.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if string(resp.Body) != `{"ok":true}` {
		t.Errorf("Body = %q", resp.Body)
	}
}

func TestDoRejectsOversizedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, MaxResponseBytes+1))
	}))
	defer srv.Close()

	c := New()
	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL})
	if err == nil {
		t.Fatal("expected ErrResponseTooLarge")
	}
}

func TestCancelFlagAbortsTransfer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, _ := w.(http.Flusher)
		for i := 0; i < 10; i++ {
			w.Write([]byte(strings.Repeat("x", 1024)))
			if flusher != nil {
				flusher.Flush()
			}
		}
	}))
	defer srv.Close()

	c := New()
	cancel := &CancelFlag{}
	cancel.Cancel()

	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL, Cancel: cancel})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestProgressAbort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("y", 1024)))
	}))
	defer srv.Close()

	c := New()
	_, err := c.Do(context.Background(), Request{
		Method: http.MethodGet, URL: srv.URL,
		Progress: func(n int64) int { return 1 },
	})
	if err != ErrAborted {
		t.Fatalf("err = %v, want ErrAborted", err)
	}
}

func TestTimeoutFor(t *testing.T) {
	if got := TimeoutFor(true); got != StreamingRequestTimeout {
		t.Errorf("TimeoutFor(true) = %v, want %v", got, StreamingRequestTimeout)
	}
	if got := TimeoutFor(false); got != DefaultRequestTimeout {
		t.Errorf("TimeoutFor(false) = %v, want %v", got, DefaultRequestTimeout)
	}
}
