package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/suilyzer/service/analyzer"
	natspkg "github.com/brojonat/suilyzer/service/nats"
)

// Health is the server's health report.
type Health struct {
	Status          string  `json:"status"`
	CacheSize       int     `json:"cache_size"`
	CacheTTLSeconds float64 `json:"cache_ttl_seconds"`
	CacheMaxEntries int     `json:"cache_max_entries"`
	RPCURL          string  `json:"rpc_url"`
}

// AnalysisRecord is a journaled analysis as listed by the server.
type AnalysisRecord struct {
	Digest        string          `json:"digest"`
	Sender        string          `json:"sender"`
	Status        string          `json:"status"`
	GasUsed       string          `json:"gas_used"`
	Summary       string          `json:"summary"`
	SummarySource string          `json:"summary_source"`
	NodeCount     int32           `json:"node_count"`
	EdgeCount     int32           `json:"edge_count"`
	Checkpoint    *int64          `json:"checkpoint,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	AnalyzedAt    time.Time       `json:"analyzed_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ListOptions filters and pages ListAnalyses.
type ListOptions struct {
	Sender string
	Limit  int
	Offset int
}

// APIError is a non-2xx reply from the server.
type APIError struct {
	StatusCode int
	Kind       string // error field of the reply, e.g. "not_found"
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("request failed (%d): %s: %s", e.StatusCode, e.Kind, e.Detail)
	}
	return fmt.Sprintf("request failed (%d): %s", e.StatusCode, e.Kind)
}

// IsNotFound reports whether err is a 404 reply.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client is the HTTP client for the suilyzer analysis service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new analysis service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Analyze asks the server to analyze a transaction.
func (c *Client) Analyze(ctx context.Context, digest string) (*analyzer.Result, error) {
	body, err := json.Marshal(map[string]string{"digest": digest})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var result analyzer.Result
	if err := c.do(ctx, http.MethodPost, "/api/v1/analyze", bytes.NewReader(body), &result); err != nil {
		return nil, err
	}

	c.logger.Debug("transaction analyzed", "digest", digest, "summary_source", result.SummarySource)
	return &result, nil
}

// AnalyzeRaw is Analyze without decoding, for callers that filter the JSON.
func (c *Client) AnalyzeRaw(ctx context.Context, digest string) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]string{"digest": digest})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/api/v1/analyze", bytes.NewReader(body), &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Invalidate drops the server's cached analysis of digest.
func (c *Client) Invalidate(ctx context.Context, digest string) (string, error) {
	var resp struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodDelete, "/api/v1/cache/"+url.PathEscape(digest), nil, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// ClearCache drops every cached analysis on the server.
func (c *Client) ClearCache(ctx context.Context) (string, error) {
	var resp struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodDelete, "/api/v1/cache", nil, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// Health fetches the server's health report.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// GetAnalysis fetches one journaled analysis including its full result.
func (c *Client) GetAnalysis(ctx context.Context, digest string) (*AnalysisRecord, error) {
	var rec AnalysisRecord
	if err := c.do(ctx, http.MethodGet, "/api/v1/analyses/"+url.PathEscape(digest), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListAnalyses lists journaled analyses, newest first.
func (c *Client) ListAnalyses(ctx context.Context, opts ListOptions) ([]*AnalysisRecord, error) {
	q := url.Values{}
	if opts.Sender != "" {
		q.Set("sender", opts.Sender)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	path := "/api/v1/analyses"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Analyses []*AnalysisRecord `json:"analyses"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Analyses, nil
}

// Stream follows completed analyses as the server publishes them and calls
// fn for each one. An empty digest follows every analysis. Stream returns
// when ctx is done, the server closes the stream, or fn returns an error.
func (c *Client) Stream(ctx context.Context, digest string, fn func(*natspkg.AnalysisEvent) error) error {
	u := c.baseURL + "/api/v1/stream/analyses"
	if digest != "" {
		u += "?digest=" + url.QueryEscape(digest)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream is long-lived, so the client timeout must not apply.
	streamClient := *c.httpClient
	streamClient.Timeout = 0

	resp, err := streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseErrorResponse(resp)
	}

	var event string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			event = ""
		case strings.HasPrefix(line, ":"):
			// keepalive
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if event != "analysis" {
				continue
			}
			var ev natspkg.AnalysisEvent
			if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &ev); err != nil {
				c.logger.Warn("failed to decode analysis event", "error", err)
				continue
			}
			if err := fn(&ev); err != nil {
				return err
			}
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read failed: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseErrorResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return &APIError{StatusCode: resp.StatusCode, Kind: strings.TrimSpace(string(body))}
	}

	return &APIError{StatusCode: resp.StatusCode, Kind: errResp.Error, Detail: errResp.Detail}
}
