// Package backend talks to the contest REST API.
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xueqianLu/contestpay/internal/jsonx"
	"github.com/xueqianLu/contestpay/internal/logx"
)

const requestIDHeader = "X-Request-ID"

// TokenSource yields the current session token, or "" when logged out.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Response is the normalized result of any backend call. It is never nil.
type Response struct {
	Success bool
	Data    jsonx.RawMessage
	Message string
	Kind    ErrorKind
	Status  int
}

// Err returns nil on success and an *Error otherwise.
func (r *Response) Err() error {
	if r.Success {
		return nil
	}
	return &Error{Kind: r.Kind, Status: r.Status, Message: r.Message}
}

// Decode unmarshals Data into v.
func (r *Response) Decode(v interface{}) error {
	if err := r.Err(); err != nil {
		return err
	}
	if len(r.Data) == 0 || string(r.Data) == "null" {
		return nil
	}
	if err := jsonx.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

// envelope is the backend's wrapper shape.
type envelope struct {
	Success *bool            `json:"success"`
	Data    jsonx.RawMessage `json:"data"`
	Message string           `json:"message"`
	Error   string           `json:"error"`
}

// Client is a client for the contest backend.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTokenSource sends the session token as a bearer token.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a new backend client.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request performs one call and normalizes the result. body, when non-nil,
// is sent as JSON.
func (c *Client) Request(ctx context.Context, method, endpoint string, body interface{}) *Response {
	var reqBody io.Reader
	if body != nil {
		raw, err := jsonx.Marshal(body)
		if err != nil {
			return failure(KindBadRequest, 0, fmt.Sprintf("failed to marshal request: %v", err))
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return failure(KindUnknown, 0, fmt.Sprintf("failed to create request: %v", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	reqID := uuid.NewString()
	req.Header.Set(requestIDHeader, reqID)
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			logx.Warn("BACKEND", "session token unavailable: ", err)
		} else if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logx.Error("BACKEND", method, " ", endpoint, " [", reqID, "] failed: ", err)
		return failure(KindUnknown, 0, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return failure(KindUnknown, resp.StatusCode, fmt.Sprintf("failed to read response body: %v", err))
	}
	logx.Debug("BACKEND", method, " ", endpoint, " [", reqID, "] -> ", resp.StatusCode)
	return normalize(resp.StatusCode, respBody)
}

func normalize(status int, body []byte) *Response {
	var env envelope
	parsed := len(body) > 0 && jsonx.Unmarshal(body, &env) == nil

	if status >= 200 && status < 300 {
		r := &Response{Success: true, Status: status}
		switch {
		case !parsed || !isEnvelope(body, env):
			r.Data = body
		case env.Success != nil && !*env.Success:
			// 2xx with an explicit failure flag.
			r.Success = false
			r.Kind = KindBadRequest
			r.Message = firstNonEmpty(env.Message, env.Error, "request failed")
		default:
			r.Data = env.Data
			r.Message = env.Message
		}
		return r
	}

	msg := strings.TrimSpace(string(body))
	if parsed {
		msg = firstNonEmpty(env.Message, env.Error, msg)
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return failure(classify(status), status, msg)
}

// isEnvelope reports whether a successful body is the wrapper shape rather than
// a bare payload that happens to share a key with it. The body must carry
// "success", or carry "data" and nothing outside the wrapper's keys.
func isEnvelope(body []byte, env envelope) bool {
	if env.Success != nil {
		return true
	}
	if env.Data == nil {
		return false
	}
	var keys map[string]jsonx.RawMessage
	if err := jsonx.Unmarshal(body, &keys); err != nil {
		return false
	}
	for k := range keys {
		switch k {
		case "success", "data", "message", "error":
		default:
			return false
		}
	}
	return true
}

func failure(kind ErrorKind, status int, msg string) *Response {
	return &Response{Kind: kind, Status: status, Message: msg}
}

func firstNonEmpty(s ...string) string {
	for _, v := range s {
		if v != "" {
			return v
		}
	}
	return ""
}

// IsKind reports whether err is a backend error of kind k.
func IsKind(err error, k ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}
