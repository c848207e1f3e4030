// Package gateway is the single point of egress to the careerpath REST
// backend. It is the only code allowed to build identity headers.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/careerpath-dev/careerpath/internal/cli/identity"
)

// Fallback demo identity sent while nobody is signed in
const (
	DefaultDemoID    = "demo-user"
	DefaultDemoEmail = "demo@example.com"
)

// Header names of the backend contract
const (
	HeaderDemoUID   = "X-Demo-UID"
	HeaderDemoEmail = "X-Demo-Email"
	HeaderAdmin     = "X-Admin"
)

// SessionSource yields the identity triple to attach to a call.
// *identity.Provider satisfies it.
type SessionSource interface {
	Session() identity.Session
}

// Request describes one outbound call
type Request struct {
	Method string
	Path   string
	Query  url.Values
	// Body is serialized as JSON when non-nil
	Body any
	// Header entries are merged last and override computed headers
	Header map[string]string
}

// Response is a classified successful response
type Response struct {
	Status int
	// Body is the decoded JSON document, or {"raw": "<text>"} when the
	// backend answered with something that is not JSON.
	Body json.RawMessage
}

// Decode unmarshals the response body into out
func (r *Response) Decode(out any) error {
	if len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// RequestError is returned for every non-2xx response
type RequestError struct {
	Method string
	Path   string
	Status int
	Body   json.RawMessage
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s failed (status %d): %s", e.Method, e.Path, e.Status, string(e.Body))
}

// Message returns the backend's "error" field when present
func (e *RequestError) Message() string {
	var body struct {
		Error string `json:"error"`
		Raw   string `json:"raw"`
	}
	if err := json.Unmarshal(e.Body, &body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		return body.Raw
	}
	return ""
}

// Client represents an HTTP client for the careerpath API
type Client struct {
	baseURL    string
	sessions   SessionSource
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// New creates a new API client
func New(baseURL string, sessions SessionSource, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		sessions: sessions,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Headers builds the header set for one call from the identity snapshot s.
func Headers(s identity.Session, extra map[string]string) http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-cache")

	if s.Token != "" {
		h.Set("Authorization", "Bearer "+s.Token)
	}

	demoID, demoEmail := s.DemoID, s.DemoEmail
	if demoID == "" {
		demoID = DefaultDemoID
	}
	if demoEmail == "" {
		demoEmail = DefaultDemoEmail
	}
	h.Set(HeaderDemoUID, demoID)
	h.Set(HeaderDemoEmail, demoEmail)

	for k, v := range extra {
		h.Set(k, v)
	}
	return h
}

// Call performs req with the identity current at dispatch. It never
// retries: state-changing calls must not be silently duplicated.
func (c *Client) Call(ctx context.Context, req Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		jsonData, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header = Headers(c.sessions.Session(), req.Header)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	parsed := parseBody(raw)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RequestError{
			Method: method,
			Path:   req.Path,
			Status: resp.StatusCode,
			Body:   parsed,
		}
	}

	return &Response{Status: resp.StatusCode, Body: parsed}, nil
}

// Do performs req and decodes a successful body into out (when non-nil).
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	resp, err := c.Call(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

// parseBody returns raw when it is a JSON document and wraps it otherwise
func parseBody(raw []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return json.RawMessage("null")
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	wrapped, _ := json.Marshal(map[string]string{"raw": string(raw)})
	return wrapped
}
