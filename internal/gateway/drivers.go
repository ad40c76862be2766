package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// httpProviderDriver is the shape shared by every REST-based provider
// driver: a base URL, an API key, and a model-agnostic chat completion
// call. Concrete drivers set the request/response shape per provider,
// mirroring the teacher's one-struct-per-provider driver pattern.
type httpProviderDriver struct {
	kind    string
	baseURL string
	apiKey  string
	client  *http.Client
}

func newHTTPDriver(kind, baseURL, apiKey string) *httpProviderDriver {
	return &httpProviderDriver{kind: kind, baseURL: baseURL, apiKey: apiKey, client: &http.Client{Timeout: 30 * time.Second}}
}

func (d *httpProviderDriver) Kind() string { return d.kind }

func (d *httpProviderDriver) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/models", nil)
	if err != nil {
		return err
	}
	d.authorize(req)
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s health check returned %d", d.kind, resp.StatusCode)
	}
	return nil
}

func (d *httpProviderDriver) authorize(req *http.Request) {
	switch d.kind {
	case "anthropic":
		req.Header.Set("x-api-key", d.apiKey)
		req.Header.Set("anthropic-version", "2023-06-01")
	default:
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
}

// OpenAIDriver implements the OpenAI chat completion wire format; mistral,
// huggingface (TGI), and workersAI all speak an OpenAI-compatible
// completion endpoint, so they are configured as instances of the same
// driver with a different base URL, the same way the teacher's LiteLLM
// driver is "OpenAI-shaped" against a different host.
type OpenAIDriver struct{ *httpProviderDriver }

func NewOpenAIDriver(baseURL, apiKey string) *OpenAIDriver {
	return &OpenAIDriver{newHTTPDriver("openai", baseURL, apiKey)}
}

func NewOpenAICompatibleDriver(kind, baseURL, apiKey string) *OpenAIDriver {
	return &OpenAIDriver{newHTTPDriver(kind, baseURL, apiKey)}
}

type openAIChatRequest struct {
	Model    string              `json:"model"`
	Messages []map[string]string `json:"messages"`
	MaxTokens int                `json:"max_tokens,omitempty"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (d *OpenAIDriver) Call(ctx context.Context, req CompletionRequest) (string, int, int, error) {
	body, _ := json.Marshal(openAIChatRequest{
		Model:     req.Model,
		Messages:  []map[string]string{{"role": "user", "content": req.Prompt}},
		MaxTokens: req.MaxTokens,
	})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", 0, 0, err
	}
	d.authorize(httpReq)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return "", 0, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return "", 0, 0, fmt.Errorf("%s returned %d: %s", d.kind, resp.StatusCode, string(raw))
	}

	var out openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, 0, err
	}
	if len(out.Choices) == 0 {
		return "", 0, 0, fmt.Errorf("%s returned no choices", d.kind)
	}
	return out.Choices[0].Message.Content, out.Usage.PromptTokens, out.Usage.CompletionTokens, nil
}

func (d *OpenAIDriver) Embed(ctx context.Context, text string) ([]float64, error) {
	body, _ := json.Marshal(map[string]string{"model": "text-embedding-3-small", "input": text})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	d.authorize(httpReq)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s embeddings returned %d", d.kind, resp.StatusCode)
	}

	var out struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, nil
	}
	return out.Data[0].Embedding, nil
}

// AnthropicDriver implements the Anthropic messages wire format.
type AnthropicDriver struct{ *httpProviderDriver }

func NewAnthropicDriver(baseURL, apiKey string) *AnthropicDriver {
	return &AnthropicDriver{newHTTPDriver("anthropic", baseURL, apiKey)}
}

type anthropicRequest struct {
	Model     string              `json:"model"`
	MaxTokens int                 `json:"max_tokens"`
	Messages  []map[string]string `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (d *AnthropicDriver) Call(ctx context.Context, req CompletionRequest) (string, int, int, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}
	body, _ := json.Marshal(anthropicRequest{
		Model:     req.Model,
		MaxTokens: maxTokens,
		Messages:  []map[string]string{{"role": "user", "content": req.Prompt}},
	})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", 0, 0, err
	}
	d.authorize(httpReq)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return "", 0, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return "", 0, 0, fmt.Errorf("anthropic returned %d: %s", resp.StatusCode, string(raw))
	}

	var out anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, 0, err
	}
	if len(out.Content) == 0 {
		return "", 0, 0, fmt.Errorf("anthropic returned no content")
	}
	return out.Content[0].Text, out.Usage.InputTokens, out.Usage.OutputTokens, nil
}
