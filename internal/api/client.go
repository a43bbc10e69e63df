// ABOUTME: HTTP client for the travel assistant backend (chat, conversations, tts, destinations)
// ABOUTME: One round trip per call, no retries; every failure is normalized into *Error

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL matches the backend's default development address.
	DefaultBaseURL = "http://localhost:8000/api"

	// maxBodyBytes bounds JSON responses; audio gets a larger budget.
	maxBodyBytes  = 4 << 20
	maxAudioBytes = 32 << 20
)

// TokenSource returns the bearer token to attach to requests, or "" for none.
type TokenSource func() string

// Options configures a Client.
type Options struct {
	// BaseURL is the API root, e.g. "http://localhost:8000/api".
	BaseURL string
	// HTTPClient is used for all calls. If nil, a client with Timeout is created.
	HTTPClient *http.Client
	// Timeout applies when HTTPClient is nil. Zero means 60s.
	Timeout time.Duration
	// Token is consulted on every request.
	Token  TokenSource
	Logger *slog.Logger
}

// Client is a stateless typed boundary to the backend.
type Client struct {
	baseURL string
	rootURL string
	http    *http.Client
	token   TokenSource
	logger  *slog.Logger
}

// New creates a Client from opts.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must use http or https scheme")
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: base,
		rootURL: u.Scheme + "://" + u.Host,
		http:    hc,
		token:   opts.Token,
		logger:  logger.With("component", "api"),
	}, nil
}

// BaseURL returns the API root this client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// SendMessage posts a user message and returns the assistant reply.
// An empty ConversationID asks the backend to start a new conversation.
func (c *Client) SendMessage(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	const op = "send message"
	var resp ChatResponse
	if err := c.doJSON(ctx, op, http.MethodPost, c.baseURL+"/chat/", req, &resp); err != nil {
		return nil, err
	}
	if resp.ConversationID == "" {
		return nil, &Error{Kind: KindDecode, Op: op, Detail: "response missing conversation_id"}
	}
	return &resp, nil
}

// ListConversations returns every conversation summary known to the backend.
func (c *Client) ListConversations(ctx context.Context) ([]ConversationSummary, error) {
	var out []ConversationSummary
	if err := c.doJSON(ctx, "list conversations", http.MethodGet, c.baseURL+"/conversations/", nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []ConversationSummary{}
	}
	return out, nil
}

// LoadConversation fetches a full conversation by id.
func (c *Client) LoadConversation(ctx context.Context, id string) (*ConversationDetail, error) {
	if id == "" {
		return nil, fmt.Errorf("conversation id required")
	}
	var detail ConversationDetail
	endpoint := c.baseURL + "/conversations/" + url.PathEscape(id)
	if err := c.doJSON(ctx, "load conversation", http.MethodGet, endpoint, nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// DeleteConversation deletes a conversation by id.
func (c *Client) DeleteConversation(ctx context.Context, id string) (*Ack, error) {
	if id == "" {
		return nil, fmt.Errorf("conversation id required")
	}
	var ack Ack
	endpoint := c.baseURL + "/conversations/" + url.PathEscape(id)
	if err := c.doJSON(ctx, "delete conversation", http.MethodDelete, endpoint, nil, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// SynthesizeSpeech renders text to audio bytes in the given language.
func (c *Client) SynthesizeSpeech(ctx context.Context, text, language string) ([]byte, error) {
	const op = "synthesize speech"
	body, err := json.Marshal(TTSRequest{Text: text, Language: language})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	resp, err := c.do(ctx, op, http.MethodPost, c.baseURL+"/tts/", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Op: op, Status: resp.StatusCode, Err: err}
	}
	return audio, nil
}

// ListDestinations returns destinations matching the optional filter.
func (c *Client) ListDestinations(ctx context.Context, filter DestinationFilter) ([]Destination, error) {
	q := url.Values{}
	if filter.Region != "" {
		q.Set("region", filter.Region)
	}
	if filter.Type != "" {
		q.Set("type", filter.Type)
	}
	if filter.Language != "" {
		q.Set("language", filter.Language)
	}
	endpoint := c.baseURL + "/destinations/"
	if encoded := q.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	var out []Destination
	if err := c.doJSON(ctx, "list destinations", http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetDestination fetches a single destination.
func (c *Client) GetDestination(ctx context.Context, id, language string) (*Destination, error) {
	endpoint := c.baseURL + "/destinations/" + url.PathEscape(id)
	if language != "" {
		endpoint += "?language=" + url.QueryEscape(language)
	}
	var dest Destination
	if err := c.doJSON(ctx, "get destination", http.MethodGet, endpoint, nil, &dest); err != nil {
		return nil, err
	}
	return &dest, nil
}

// Health calls the backend's root health endpoint.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var status HealthStatus
	if err := c.doJSON(ctx, "health", http.MethodGet, c.rootURL+"/health", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// doJSON performs a request with an optional JSON body and decodes a JSON response into out.
func (c *Client) doJSON(ctx context.Context, op, method, endpoint string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
	}

	resp, err := c.do(ctx, op, method, endpoint, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &Error{Kind: KindNetwork, Op: op, Status: resp.StatusCode, Err: err}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Kind: KindDecode, Op: op, Status: resp.StatusCode, Detail: "malformed response", Err: err}
	}
	return nil
}

// do sends the request and returns the response only for 2xx statuses.
// The caller owns closing the body.
func (c *Client) do(ctx context.Context, op, method, endpoint string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != nil {
		if token := c.token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("request failed",
			"op", op,
			"method", method,
			"error", err)
		return nil, &Error{Kind: KindNetwork, Op: op, Err: err}
	}

	c.logger.Debug("request completed",
		"op", op,
		"method", method,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, &Error{
			Kind:   KindServer,
			Op:     op,
			Status: resp.StatusCode,
			Detail: errorDetail(resp),
		}
	}
	return resp, nil
}

// errorDetail extracts {"detail": "..."} from an error response, else "HTTP <status>".
func errorDetail(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err == nil && len(data) > 0 {
		var eb errorBody
		if json.Unmarshal(data, &eb) == nil && eb.Detail != "" {
			return eb.Detail
		}
		// FastAPI validation errors carry a list under "detail".
		var list struct {
			Detail []struct {
				Msg string `json:"msg"`
			} `json:"detail"`
		}
		if json.Unmarshal(data, &list) == nil && len(list.Detail) > 0 && list.Detail[0].Msg != "" {
			return list.Detail[0].Msg
		}
	}
	return fmt.Sprintf("HTTP %d", resp.StatusCode)
}
