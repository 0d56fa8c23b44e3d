// Adapters for the concrete upstream LLM providers. Each wraps a single
// vendor REST API behind the uniform Adapter.Invoke contract — a thin shim;
// these are external collaborators to the pipeline, not part of its core
// request-handling logic.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// defaultCallTimeout is the per-call deadline applied to every provider
// request (both as the client timeout and as the request context deadline).
const defaultCallTimeout = 30 * time.Second

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ── OpenAI-compatible (OpenAI, Azure OpenAI, Ollama) ─────────

type openAIAdapter struct {
	client     *http.Client
	kind       string // "openai", "azure-openai", "ollama"
	model      string
	endpoint   string
	apiKeyEnv  string
}

// NewOpenAIAdapter builds an adapter speaking the OpenAI chat-completions
// wire format. apiKeyEnv names the environment variable holding the API
// key; an empty apiKeyEnv (used for local Ollama) skips the auth header.
func NewOpenAIAdapter(kind, model, endpoint, apiKeyEnv string) Adapter {
	return &openAIAdapter{
		client:    &http.Client{Timeout: defaultCallTimeout},
		kind:      kind,
		model:     model,
		endpoint:  endpoint,
		apiKeyEnv: apiKeyEnv,
	}
}

type openAIRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (a *openAIAdapter) Invoke(args InvokeArgs) (string, error) {
	var apiKey string
	if a.apiKeyEnv != "" {
		apiKey = os.Getenv(a.apiKeyEnv)
		if apiKey == "" {
			return "", fmt.Errorf("%s: %s not set", a.kind, a.apiKeyEnv)
		}
	}

	messages := buildMessages(args)
	body, _ := json.Marshal(openAIRequest{Model: a.model, Messages: messages})

	ctx, cancel := context.WithTimeout(context.Background(), defaultCallTimeout)
	defer cancel()

	url := a.endpoint + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%s: create request: %w", a.kind, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		if a.kind == "azure-openai" {
			req.Header.Set("api-key", apiKey)
		} else {
			req.Header.Set("Authorization", "Bearer "+apiKey)
		}
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: request failed: %w", a.kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%s: status %d: %s", a.kind, resp.StatusCode, string(b))
	}

	var parsed openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%s: decode response: %w", a.kind, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%s: empty response", a.kind)
	}
	return parsed.Choices[0].Message.Content, nil
}

// ── Anthropic ─────────────────────────────────────────────────

type anthropicAdapter struct {
	client    *http.Client
	model     string
	endpoint  string
	apiKeyEnv string
	maxTokens int
}

// NewAnthropicAdapter builds an adapter speaking the Anthropic messages API.
func NewAnthropicAdapter(model, endpoint, apiKeyEnv string) Adapter {
	return &anthropicAdapter{
		client:    &http.Client{Timeout: defaultCallTimeout},
		model:     model,
		endpoint:  endpoint,
		apiKeyEnv: apiKeyEnv,
		maxTokens: 4096,
	}
}

type anthropicRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	System    string        `json:"system,omitempty"`
	MaxTokens int           `json:"max_tokens"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (a *anthropicAdapter) Invoke(args InvokeArgs) (string, error) {
	apiKey := os.Getenv(a.apiKeyEnv)
	if apiKey == "" {
		return "", fmt.Errorf("anthropic: %s not set", a.apiKeyEnv)
	}

	body, _ := json.Marshal(anthropicRequest{
		Model:     a.model,
		Messages:  []chatMessage{{Role: "user", Content: args.Input}},
		System:    args.System,
		MaxTokens: a.maxTokens,
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultCallTimeout)
	defer cancel()

	url := a.endpoint + "/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("anthropic: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("anthropic: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("anthropic: status %d: %s", resp.StatusCode, string(b))
	}

	var parsed anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("anthropic: decode response: %w", err)
	}

	content := ""
	for _, c := range parsed.Content {
		if c.Type == "text" {
			content += c.Text
		}
	}
	return content, nil
}

// buildMessages assembles the chat message list for OpenAI-compatible
// providers, prepending the composed system prompt when present.
func buildMessages(args InvokeArgs) []chatMessage {
	messages := make([]chatMessage, 0, 2)
	if args.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: args.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: args.Input})
	return messages
}
