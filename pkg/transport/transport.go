// Package transport implements the HTTP Transport (spec §4.3): a thin
// synchronous request builder over net/http with cancellation, a progress
// hook, and common TLS/keepalive settings shared by every provider adapter.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"
)

const (
	// DefaultRequestTimeout is the non-streaming request deadline (spec §4.3).
	DefaultRequestTimeout = 120 * time.Second

	// StreamingRequestTimeout applies to streaming and local-inference calls.
	StreamingRequestTimeout = 300 * time.Second

	// ConnectTimeout bounds TCP+TLS handshake time.
	ConnectTimeout = 30 * time.Second

	// MaxRedirects caps automatic redirect following.
	MaxRedirects = 5

	// MaxResponseBytes caps the growable response buffer (spec §4.3).
	MaxResponseBytes = 1 << 20 // 1 MiB
)

// ErrResponseTooLarge is returned when a non-streaming response would exceed
// MaxResponseBytes.
var ErrResponseTooLarge = errors.New("transport: response exceeded 1 MiB cap")

// ErrAborted is returned when a ProgressFunc requests early termination.
var ErrAborted = errors.New("transport: aborted by progress callback")

// ProgressFunc is invoked periodically as bytes are transferred. A non-zero
// return value aborts the transfer.
type ProgressFunc func(bytesTransferred int64) int

// CancelFlag is a process-wide-safe cancellation token polled by the
// progress callback, per spec §4.3/§9 ("replace the sig_atomic_t cancel
// flags with an owned cancellation token").
type CancelFlag struct {
	flag atomic.Bool
}

// Cancel marks the flag as cancelled. Safe to call from any goroutine.
func (c *CancelFlag) Cancel() { c.flag.Store(true) }

// Cancelled reports whether Cancel has been called.
func (c *CancelFlag) Cancelled() bool { return c.flag.Load() }

// Client wraps an *http.Client configured per spec §4.3 and shared across
// all requests issued by one provider adapter.
type Client struct {
	http    *http.Client
	timeout time.Duration
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithTimeout overrides the default request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// New constructs a Client with the shared transport settings: redirect cap,
// connect timeout, TLS verification mandatory, TCP keepalive enabled.
func New(opts ...Option) *Client {
	dialer := &net.Dialer{
		Timeout:   ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: false},
		TLSHandshakeTimeout: ConnectTimeout,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	c := &Client{
		timeout: DefaultRequestTimeout,
	}
	c.http = &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= MaxRedirects {
				return fmt.Errorf("transport: stopped after %d redirects", MaxRedirects)
			}
			return nil
		},
	}

	for _, o := range opts {
		o(c)
	}
	c.http.Timeout = c.timeout
	return c
}

// Request carries everything needed to issue one HTTP call.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte

	// Cancel, if non-nil, is polled between reads; Progress, if non-nil, is
	// invoked with cumulative bytes read and may abort the transfer.
	Cancel   *CancelFlag
	Progress ProgressFunc
}

// Response is the buffered result of a non-streaming Do call.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Do issues req and buffers the full response body, enforcing
// MaxResponseBytes and honouring Cancel/Progress.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("transport: build request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("transport: do: %w", err)
	}
	defer resp.Body.Close()

	buf, err := readCapped(resp.Body, req.Cancel, req.Progress)
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       buf,
	}, nil
}

// DoStreaming issues req and returns the live response body for incremental
// reads by the Stream Parser. The caller must close the returned
// io.ReadCloser. StatusCode/Headers are returned alongside for the caller to
// map to an Error before starting to read the body.
func (c *Client) DoStreaming(ctx context.Context, req Request) (int, http.Header, io.ReadCloser, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return 0, nil, nil, fmt.Errorf("transport: build request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("transport: do: %w", err)
	}
	return resp.StatusCode, resp.Header, resp.Body, nil
}

// readCapped reads all of r into memory up to MaxResponseBytes, polling
// cancel/progress every chunk.
func readCapped(r io.Reader, cancel *CancelFlag, progress ProgressFunc) ([]byte, error) {
	buf := make([]byte, 0, 64*1024)
	chunk := make([]byte, 32*1024)
	var total int64

	for {
		if cancel != nil && cancel.Cancelled() {
			return nil, context.Canceled
		}
		n, err := r.Read(chunk)
		if n > 0 {
			total += int64(n)
			if total > MaxResponseBytes {
				return nil, ErrResponseTooLarge
			}
			buf = append(buf, chunk[:n]...)
			if progress != nil && progress(total) != 0 {
				return nil, ErrAborted
			}
		}
		if err == io.EOF {
			return buf, nil
		}
		if err != nil {
			return nil, fmt.Errorf("transport: read body: %w", err)
		}
	}
}

// TimeoutFor returns the spec-mandated timeout for a request kind: 300s for
// streaming/local-inference calls, 120s otherwise.
func TimeoutFor(streamingOrLocal bool) time.Duration {
	if streamingOrLocal {
		return StreamingRequestTimeout
	}
	return DefaultRequestTimeout
}
