package llm

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

	"github.com/tidwall/gjson"

	"CommentInbox/internal/config"
	"CommentInbox/internal/domain"
	"CommentInbox/internal/ports"
)

const (
	// BackendREST names the raw HTTP generateContent transport.
	BackendREST = "rest"

	geminiService  = "gemini"
	errorBodyLimit = 1024
	textPath       = "candidates.0.content.parts.0.text"
)

// GeminiClient implements ports.TextGenerator against the generateContent REST endpoint.
type GeminiClient struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

var _ ports.TextGenerator = (*GeminiClient)(nil)

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

// NewGeminiClient builds a client from configuration; a nil httpClient gets cfg.Timeout.
func NewGeminiClient(cfg config.ClassifierConfig, httpClient *http.Client) *GeminiClient {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &GeminiClient{
		endpoint:   strings.TrimSuffix(cfg.Endpoint, "/"),
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}
}

// Name identifies the backend inside the registry.
func (c *GeminiClient) Name() string {
	return BackendREST
}

// Generate posts prompt as a single user part and returns the first candidate's text.
// A response without that text yields an empty string, leaving the caller to decide.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("gemini client is nil")
	}
	if c.endpoint == "" || c.model == "" {
		return "", fmt.Errorf("gemini client misconfigured")
	}

	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal gemini payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return "", &domain.StatusError{
			Service: geminiService,
			Code:    resp.StatusCode,
			Body:    strings.TrimSpace(string(payload)),
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", domain.ErrTransport, err)
	}
	if !gjson.ValidBytes(raw) {
		return "", fmt.Errorf("%w: gemini body is not JSON", domain.ErrMalformedResponse)
	}

	return gjson.GetBytes(raw, textPath).String(), nil
}

func (c *GeminiClient) url() string {
	u := fmt.Sprintf("%s/models/%s:generateContent", c.endpoint, url.PathEscape(c.model))
	if c.apiKey != "" {
		u += "?key=" + url.QueryEscape(c.apiKey)
	}
	return u
}
