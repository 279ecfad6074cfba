package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/amishk599/leadradar/internal/model"
)

const (
	DefaultOpenAIBaseURL     = "https://api.openai.com/v1"
	DefaultPerplexityBaseURL = "https://api.perplexity.ai"
	DefaultOpenAIModel       = "gpt-4o-mini"
	DefaultPerplexityModel   = "sonar"
)

// ChatProvider calls an OpenAI-compatible /chat/completions endpoint.
// OpenAI is used for structured extraction, Perplexity for web search.
type ChatProvider struct {
	name       string
	baseURL    string
	apiKey     string
	model      string
	citations  bool
	httpClient *http.Client
}

// NewOpenAIProvider creates a provider targeting the OpenAI API.
func NewOpenAIProvider(baseURL, apiKey, model string, httpClient *http.Client) *ChatProvider {
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &ChatProvider{
		name:       "openai",
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: httpClient,
	}
}

// NewPerplexityProvider creates a search provider targeting the Perplexity API.
// Replies include the citation URLs the search grounded on.
func NewPerplexityProvider(baseURL, apiKey, model string, httpClient *http.Client) *ChatProvider {
	if model == "" {
		model = DefaultPerplexityModel
	}
	return &ChatProvider{
		name:       "perplexity",
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		citations:  true,
		httpClient: httpClient,
	}
}

// Name returns the provider name used for rate limiting and logs.
func (p *ChatProvider) Name() string { return p.name }

// chatRequest mirrors the /chat/completions request body.
type chatRequest struct {
	Model           string          `json:"model"`
	Messages        []chatMessage   `json:"messages"`
	Temperature     float64         `json:"temperature"`
	MaxTokens       int             `json:"max_tokens,omitempty"`
	ResponseFormat  *responseFormat `json:"response_format,omitempty"`
	ReturnCitations bool            `json:"return_citations,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string          `json:"type"`
	JSONSchema *jsonSchemaSpec `json:"json_schema,omitempty"`
}

type jsonSchemaSpec struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type chatChoice struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

// chatResponse mirrors the relevant fields of the response.
type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Citations []string `json:"citations,omitempty"`
	Error     *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends req and returns the first choice's content.
func (p *ChatProvider) Complete(ctx context.Context, req Request) (Response, error) {
	reqBody := chatRequest{
		Model:           p.model,
		Temperature:     req.Temperature,
		MaxTokens:       req.MaxTokens,
		ReturnCitations: p.citations,
	}
	if req.System != "" {
		reqBody.Messages = append(reqBody.Messages, chatMessage{Role: "system", Content: req.System})
	}
	reqBody.Messages = append(reqBody.Messages, chatMessage{Role: "user", Content: req.Prompt})

	switch {
	case req.Schema != nil:
		reqBody.ResponseFormat = &responseFormat{
			Type:       "json_schema",
			JSONSchema: &jsonSchemaSpec{Name: req.SchemaName, Strict: true, Schema: req.Schema},
		}
	case req.JSON:
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return Response{}, fmt.Errorf("marshal %s request: %w", p.name, err)
	}

	url := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("create %s request: %w", p.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("%s request: %w", p.name, err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read %s response: %w", p.name, err)
	}

	if resp.StatusCode != http.StatusOK {
		return Response{}, &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: model.ParseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("%s: %s", p.name, truncate(string(respBytes), 300)),
		}
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBytes, &chatResp); err != nil {
		return Response{}, fmt.Errorf("parse %s response: %v: %w", p.name, err, model.ErrMalformedResponse)
	}

	if chatResp.Error != nil {
		return Response{}, fmt.Errorf("%s error (%s): %s", p.name, chatResp.Error.Type, chatResp.Error.Message)
	}

	if len(chatResp.Choices) == 0 {
		return Response{}, fmt.Errorf("%s returned no choices: %w", p.name, model.ErrMalformedResponse)
	}

	return Response{
		Content:   chatResp.Choices[0].Message.Content,
		Tokens:    chatResp.Usage.TotalTokens,
		Citations: chatResp.Citations,
	}, nil
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
