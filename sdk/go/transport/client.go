// Package transport is the HTTP collaborator used by the Storm SDK.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Requester is what the service layer needs from HTTP.
type Requester interface {
	// Request sends body (JSON encoded unless nil) with optional query params.
	Request(ctx context.Context, method, rawURL string, body any, params url.Values) (*Response, error)
	// Upload streams the file at filePath as the request body.
	Upload(ctx context.Context, method, rawURL, filePath string) (*Response, error)
	// Download stores the response body at outputPath and returns it.
	Download(ctx context.Context, rawURL, outputPath string) (string, error)
}

// Config configures a Client. The token is fixed for the client's lifetime.
type Config struct {
	Token        string
	TokenInQuery bool
	Timeout      time.Duration
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// Client is the default Requester.
type Client struct {
	token        string
	tokenInQuery bool
	http         *http.Client
	log          *slog.Logger
}

var _ Requester = (*Client)(nil)

// New creates a client with sane defaults.
func New(cfg Config) *Client {
	c := &Client{
		token:        cfg.Token,
		tokenInQuery: cfg.TokenInQuery,
		http:         cfg.HTTPClient,
		log:          cfg.Logger,
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	c.log = c.log.With("component", "transport")
	if c.http == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		var rt http.RoundTripper = newTransport()
		if cfg.Token != "" && !cfg.TokenInQuery {
			rt = &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"}),
				Base:   rt,
			}
		}
		c.http = &http.Client{Timeout: timeout, Transport: rt}
	}
	return c
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

func (c *Client) Request(ctx context.Context, method, rawURL string, body any, params url.Values) (*Response, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", method, rawURL, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := c.newRequest(ctx, method, rawURL, params, rd)
	if err != nil {
		return nil, err
	}
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req)
}

func (c *Client) Upload(ctx context.Context, method, rawURL, filePath string) (*Response, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, method, rawURL, nil, f)
	if err != nil {
		return nil, err
	}
	req.ContentLength = st.Size()
	req.Header.Set("Content-Type", "application/octet-stream")
	return c.do(req)
}

// Download writes into a temporary sibling first so that a failed transfer
// never leaves a truncated file at outputPath.
func (c *Client) Download(ctx context.Context, rawURL, outputPath string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, rawURL, nil, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.send(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", newAPIError(req, resp)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(filepath.Dir(outputPath), "."+filepath.Base(outputPath)+".*")
	if err != nil {
		return "", err
	}
	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("download %s: %w", rawURL, err)
	}
	if err := os.Rename(tmp.Name(), outputPath); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	c.log.Debug("downloaded", "url", rawURL, "path", outputPath, "bytes", n)
	return outputPath, nil
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string, params url.Values, body io.Reader) (*http.Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if c.tokenInQuery && c.token != "" {
		q.Set("access_token", c.token)
	}
	u.RawQuery = q.Encode()
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	return req, nil
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	c.log.Debug("request",
		"method", req.Method,
		"url", redact(req.URL),
		"status", resp.StatusCode,
		"request_id", req.Header.Get("X-Request-Id"),
		"elapsed", time.Since(start))
	return resp, nil
}

func (c *Client) do(req *http.Request) (*Response, error) {
	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, newAPIError(req, resp)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", req.Method, redact(req.URL), err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: b}, nil
}

func redact(u *url.URL) string {
	q := u.Query()
	if !q.Has("access_token") {
		return u.String()
	}
	q.Set("access_token", "REDACTED")
	cp := *u
	cp.RawQuery = q.Encode()
	return cp.String()
}
