package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DatabricksProvider implements Provider for Databricks model serving
// endpoints, which speak the OpenAI chat-completion request shape.
type DatabricksProvider struct {
	baseURL     string
	endpoint    string
	token       string
	temperature float64
	maxTokens   int
	client      *http.Client
}

// ServingRequest represents a model serving invocation request.
type ServingRequest struct {
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

// Message represents a chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ServingResponse represents a model serving invocation response.
type ServingResponse struct {
	Choices []ServingChoice `json:"choices"`
}

// ServingChoice represents one completion choice.
type ServingChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// NewDatabricksProvider creates a new Databricks model serving provider. The
// base URL is the workspace URL; the endpoint is the serving endpoint name.
func NewDatabricksProvider(baseURL, endpoint, token string, temperature float64, maxTokens int) (*DatabricksProvider, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("databricks workspace URL is required")
	}
	if token == "" {
		return nil, fmt.Errorf("databricks token is required")
	}
	if endpoint == "" {
		endpoint = "databricks-claude-sonnet-4"
	}

	return &DatabricksProvider{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		endpoint:    endpoint,
		token:       token,
		temperature: temperature,
		maxTokens:   maxTokens,
		client: &http.Client{
			Timeout: 300 * time.Second,
		},
	}, nil
}

// Analyze sends a prompt to the serving endpoint and returns the raw content
// of the first choice. Callers own any JSON interpretation of the content.
func (p *DatabricksProvider) Analyze(ctx context.Context, prompt string) (string, error) {
	req := ServingRequest{
		Messages: []Message{
			{
				Role:    "system",
				Content: "You are an expert at analyzing AI agent quality. Respond with the exact format the user asks for.",
			},
			{
				Role:    "user",
				Content: prompt,
			},
		},
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
		Stream:      false,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/serving-endpoints/%s/invocations", p.baseURL, p.endpoint)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("serving endpoint error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var servingResp ServingResponse
	if err := json.NewDecoder(resp.Body).Decode(&servingResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(servingResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return servingResp.Choices[0].Message.Content, nil
}

// Name returns the provider name
func (p *DatabricksProvider) Name() string {
	return "databricks"
}

// GetEndpoint returns the serving endpoint name.
func (p *DatabricksProvider) GetEndpoint() string {
	return p.endpoint
}
