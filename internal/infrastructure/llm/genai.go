package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"CommentInbox/internal/config"
	"CommentInbox/internal/domain"
	"CommentInbox/internal/ports"
)

// BackendGenAI names the official SDK transport.
const BackendGenAI = "genai"

// GenAIClient implements ports.TextGenerator with google.golang.org/genai.
type GenAIClient struct {
	client *genai.Client
	model  string
}

var _ ports.TextGenerator = (*GenAIClient)(nil)

// NewGenAIClient creates an SDK client. The configured endpoint is only passed on when it
// is not the SDK default, so tests can point it at a local server.
func NewGenAIClient(ctx context.Context, cfg config.ClassifierConfig, httpClient *http.Client) (*GenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("genai backend requires an API key")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if base := sdkBaseURL(cfg.Endpoint); base != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GenAIClient{client: client, model: cfg.Model}, nil
}

// Name identifies the backend inside the registry.
func (c *GenAIClient) Name() string {
	return BackendGenAI
}

// Generate sends prompt as user text and returns the concatenated candidate text.
func (c *GenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", sdkError(err)
	}
	return resp.Text(), nil
}

// sdkError maps non-2xx API responses to a StatusError; anything else is transport.
func sdkError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &domain.StatusError{Service: geminiService, Code: apiErr.Code, Body: truncate(apiErr.Message)}
	}
	return fmt.Errorf("%w: genai generate: %v", domain.ErrTransport, err)
}

func truncate(body string) string {
	if len(body) > errorBodyLimit {
		return body[:errorBodyLimit]
	}
	return body
}

// sdkBaseURL strips the API version suffix the SDK appends itself.
func sdkBaseURL(endpoint string) string {
	endpoint = strings.TrimSuffix(strings.TrimSpace(endpoint), "/")
	if endpoint == "" || strings.HasPrefix(endpoint, "https://generativelanguage.googleapis.com") {
		return ""
	}
	endpoint = strings.TrimSuffix(endpoint, "/v1beta")
	return endpoint + "/"
}
