// Package transport sends replayed requests over net/http.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/funnyzak/reqreplay/internal/logger"
	"github.com/funnyzak/reqreplay/internal/replay"
	"github.com/funnyzak/reqreplay/pkg/request"
)

// ErrConnClosed is returned by Send after Close.
var ErrConnClosed = errors.New("connection is closed")

// Options HTTP client tuning
type Options struct {
	Timeout               time.Duration
	FollowRedirects       bool
	MaxRedirects          int
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	IdleConnTimeout       time.Duration
	ResponseHeaderTimeout time.Duration
	TLSHandshakeTimeout   time.Duration
	ExpectContinueTimeout time.Duration
	TLSInsecureSkipVerify bool
	// Verbose logs every request and response head at info level
	Verbose bool
}

// HTTP opens net/http backed connections.
type HTTP struct {
	opts   Options
	logger logger.Logger
}

var _ replay.Transport = (*HTTP)(nil)

// New creates a transport.
func New(opts Options, log logger.Logger) *HTTP {
	if log == nil {
		log = logger.Nop()
	}
	return &HTTP{opts: opts, logger: log}
}

// Open returns a connection with its own connection pool, so nothing is
// shared with previously opened connections.
func (h *HTTP) Open() (replay.Conn, error) {
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          positiveOrDefault(h.opts.MaxIdleConns, 100),
		MaxIdleConnsPerHost:   positiveOrDefault(h.opts.MaxIdleConnsPerHost, 10),
		IdleConnTimeout:       durationOrDefault(h.opts.IdleConnTimeout, 90*time.Second),
		ResponseHeaderTimeout: durationOrDefault(h.opts.ResponseHeaderTimeout, 15*time.Second),
		TLSHandshakeTimeout:   durationOrDefault(h.opts.TLSHandshakeTimeout, 10*time.Second),
		ExpectContinueTimeout: durationOrDefault(h.opts.ExpectContinueTimeout, 1*time.Second),
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: h.opts.TLSInsecureSkipVerify,
		},
	}

	maxRedirects := positiveOrDefault(h.opts.MaxRedirects, 10)
	client := &http.Client{
		Timeout:   h.opts.Timeout,
		Transport: tr,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if !h.opts.FollowRedirects {
				return http.ErrUseLastResponse
			}
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	return &Conn{client: client, transport: tr, logger: h.logger, verbose: h.opts.Verbose}, nil
}

// Conn is one live connection pool.
type Conn struct {
	client    *http.Client
	transport *http.Transport
	logger    logger.Logger
	verbose   bool

	mu     sync.Mutex
	closed bool
}

// Send performs exactly one request and buffers the whole response body.
// A non-empty jarPath seeds the request from the cookie file and persists
// any cookies the server sets.
func (c *Conn) Send(ctx context.Context, out request.Outbound, jarPath string) (*request.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrConnClosed
	}

	req, err := buildRequest(ctx, out)
	if err != nil {
		return nil, err
	}

	client := c.client
	var jar *recordingJar
	if jarPath != "" {
		fileMu.Lock()
		defer fileMu.Unlock()

		cf, err := loadCookieFile(jarPath)
		if err != nil {
			return nil, err
		}
		cj, err := cf.jar()
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		jar = &recordingJar{Jar: cj}
		withJar := *c.client
		withJar.Jar = jar
		client = &withJar

		defer func() {
			for _, call := range jar.seen {
				cf.merge(call.u, call.cookies)
			}
			if len(jar.seen) == 0 {
				return
			}
			if err := cf.save(jarPath); err != nil {
				c.logger.Error("Failed to save cookie jar", "path", jarPath, "error", err)
			}
		}()
	}

	if c.verbose {
		c.logger.Info("Sending request",
			"method", req.Method,
			"url", req.URL.String(),
			"headers", out.Headers,
			"user_agent", out.UserAgent,
			"body_bytes", len(out.Body),
		)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("Failed to close response body", "error", cerr)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	result := &request.Response{
		Timestamp:   start,
		StatusCode:  resp.StatusCode,
		Status:      resp.Status,
		Proto:       resp.Proto,
		Headers:     resp.Header.Clone(),
		Body:        body,
		ContentType: contentType,
		IsBinary:    request.IsBinaryContent(contentType, body),
		Duration:    time.Since(start),
	}

	if c.verbose {
		c.logger.Info("Received response",
			"status", resp.Status,
			"proto", resp.Proto,
			"content_type", contentType,
			"body_bytes", len(body),
			"duration", result.Duration,
		)
	}
	return result, nil
}

// Close releases idle connections. It is safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.transport.CloseIdleConnections()
	return nil
}

// buildRequest turns an outbound description into an *http.Request; a body
// makes it a urlencoded POST. Repeated lines for one name keep their order,
// but net/http writes header names sorted, so the order between different
// names in out.Headers does not reach the wire.
func buildRequest(ctx context.Context, out request.Outbound) (*http.Request, error) {
	var body io.Reader
	if out.HasBody {
		body = strings.NewReader(out.Body)
	}
	req, err := http.NewRequestWithContext(ctx, out.Method(), out.URL, body)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}

	for _, line := range out.Headers {
		name, value, ok := strings.Cut(line, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}
		req.Header.Add(name, strings.TrimSpace(value))
	}

	// An explicit empty value keeps net/http from adding its own agent.
	req.Header["User-Agent"] = []string{out.UserAgent}

	if out.HasBody && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return req, nil
}

func positiveOrDefault(value, def int) int {
	if value > 0 {
		return value
	}
	return def
}

func durationOrDefault(value, def time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return def
}
