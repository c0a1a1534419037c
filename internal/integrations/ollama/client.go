package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"discord-ollama/internal/domain"
)

const defaultBaseURL = "http://localhost:11434"

// generateRequest is the request shape of /api/generate.
type generateRequest struct {
	Model     string         `json:"model"`
	Prompt    string         `json:"prompt"`
	System    string         `json:"system,omitempty"`
	Context   []int          `json:"context,omitempty"`
	Stream    *bool          `json:"stream,omitempty"`
	KeepAlive string         `json:"keep_alive,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

// tagsResponse is the minimal response shape of /api/tags.
type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("ollama: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client talks to an Ollama-compatible server. Generation requests carry no
// client-side timeout; they end when the server finishes or ctx is cancelled.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return http.DefaultClient
}

func endpoint(baseURL, path string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	base = strings.TrimSuffix(base, "/api")
	return base + "/api/" + path
}

// Generate streams a completion for req, calling fn for every decoded event in
// arrival order. Lines that do not decode are dropped. It returns when the
// server signals done, the body ends, fn fails or ctx is cancelled.
func (c *Client) Generate(ctx context.Context, req domain.GenerateRequest, fn func(domain.Fragment) error) error {
	if req.Model == "" {
		return errors.New("ollama: model must not be empty")
	}
	if fn == nil {
		return errors.New("ollama: fragment callback must not be nil")
	}

	res, err := c.post(ctx, "generate", toGenerateRequest(req, true))
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()

	if err := decodeStream(res.Body, fn); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("ollama: generate: %w", err)
	}
	return nil
}

// LoadModel asks the server to load model into memory by sending it an
// empty, non-streaming prompt.
func (c *Client) LoadModel(ctx context.Context, settings domain.ChatSettings) error {
	if settings.Model == "" {
		return errors.New("ollama: model must not be empty")
	}
	res, err := c.post(ctx, "generate", toGenerateRequest(domain.GenerateRequest{
		Model:     settings.Model,
		NumCtx:    settings.NumCtx,
		KeepAlive: settings.KeepAlive,
	}, false))
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	return nil
}

// ListModels returns the names of the models installed on the server.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	url := endpoint(c.baseURL, "tags")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ollama: create tags request: %w", err)
	}
	res, err := c.do(req, url)
	if err != nil {
		return nil, fmt.Errorf("ollama: list models: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	var payload tagsResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("ollama: decode tags response: %w", err)
	}
	names := make([]string, 0, len(payload.Models))
	for _, m := range payload.Models {
		if m.Name != "" {
			names = append(names, m.Name)
		}
	}
	return names, nil
}

func toGenerateRequest(req domain.GenerateRequest, stream bool) generateRequest {
	options := map[string]any{}
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}
	if req.NumCtx > 0 {
		options["num_ctx"] = req.NumCtx
	}
	if len(options) == 0 {
		options = nil
	}
	return generateRequest{
		Model:     req.Model,
		Prompt:    req.Prompt,
		System:    req.System,
		Context:   req.Context,
		Stream:    &stream,
		KeepAlive: req.KeepAlive,
		Options:   options,
	}
}

func (c *Client) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal %s request: %w", path, err)
	}
	url := endpoint(c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: create %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := c.do(req, url)
	if err != nil {
		return nil, fmt.Errorf("ollama: %s request failed: %w", path, err)
	}
	return res, nil
}

// do sends req and turns non-2xx responses into *HTTPStatusError. The caller
// owns the body of a successful response.
func (c *Client) do(req *http.Request, url string) (*http.Response, error) {
	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		defer func() { _ = res.Body.Close() }()
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}
	return res, nil
}
