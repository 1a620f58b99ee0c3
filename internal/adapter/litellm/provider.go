// Package litellm implements the backend provider port against a LiteLLM
// proxy's OpenAI-compatible chat completions API.
package litellm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hiveworks/hive/internal/port/provider"
	"github.com/hiveworks/hive/internal/resilience"
)

// Name is the registry id for this provider.
const Name = "litellm"

// Provider talks to a LiteLLM proxy.
type Provider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// New creates a LiteLLM provider.
func New(baseURL, apiKey string) *Provider {
	return &Provider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing calls.
func (p *Provider) SetBreaker(b *resilience.Breaker) {
	p.breaker = b
}

// Register adds this provider to the registry under its fixed name.
func Register(reg *provider.Registry, baseURL, apiKey string, breaker *resilience.Breaker) {
	reg.Register(Name, func(_ map[string]string) (provider.Provider, error) {
		p := New(baseURL, apiKey)
		p.SetBreaker(breaker)
		return p, nil
	})
}

// Name returns the provider id.
func (p *Provider) Name() string { return Name }

type chatRequest struct {
	Model    string             `json:"model"`
	Messages []provider.Message `json:"messages"`
	Stream   bool               `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Model string `json:"model"`
}

// SendMessage sends the conversation and returns the full response.
func (p *Provider) SendMessage(ctx context.Context, model string, messages []provider.Message, opts *provider.Options) (*provider.Reply, error) {
	body, err := json.Marshal(chatRequest{Model: model, Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	if opts != nil && opts.Progress != nil {
		opts.Progress(10)
	}

	data, err := p.post(ctx, "/chat/completions", body, nil)
	if err != nil {
		return nil, err
	}

	var cr chatResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return nil, fmt.Errorf("unmarshal chat response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return nil, fmt.Errorf("chat response has no choices")
	}

	if opts != nil && opts.Progress != nil {
		opts.Progress(90)
	}
	return &provider.Reply{
		Content:  cr.Choices[0].Message.Content,
		Metadata: usageMetadata(cr),
	}, nil
}

// SendMessageStream delivers response fragments through onChunk as server-sent
// events arrive. The returned Reply carries the accumulated content.
func (p *Provider) SendMessageStream(ctx context.Context, model string, messages []provider.Message, onChunk func(string)) (*provider.Reply, error) {
	body, err := json.Marshal(chatRequest{Model: model, Messages: messages, Stream: true})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	var content strings.Builder
	_, err = p.post(ctx, "/chat/completions", body, func(r io.Reader) error {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" || payload == "[DONE]" {
				continue
			}
			var cr chatResponse
			if err := json.Unmarshal([]byte(payload), &cr); err != nil {
				continue
			}
			if len(cr.Choices) == 0 {
				continue
			}
			delta := cr.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			content.WriteString(delta)
			if onChunk != nil {
				onChunk(delta)
			}
		}
		return scanner.Err()
	})
	if err != nil {
		return nil, err
	}
	return &provider.Reply{Content: content.String()}, nil
}

// post performs one request through the breaker. When stream is non-nil the
// response body is handed to it instead of being read whole.
func (p *Provider) post(ctx context.Context, path string, body []byte, stream func(io.Reader) error) ([]byte, error) {
	var result []byte
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if p.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+p.apiKey)
		}

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= 400 {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return &provider.StatusError{Code: resp.StatusCode, Body: string(data)}
		}

		if stream != nil {
			return stream(resp.Body)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		result = data
		return nil
	}

	if p.breaker != nil {
		if err := p.breaker.Execute(call); err != nil {
			return nil, err
		}
		return result, nil
	}
	if err := call(); err != nil {
		return nil, err
	}
	return result, nil
}

func usageMetadata(cr chatResponse) map[string]string {
	meta := map[string]string{}
	if cr.Model != "" {
		meta["model"] = cr.Model
	}
	if cr.Usage.PromptTokens > 0 {
		meta["prompt_tokens"] = strconv.Itoa(cr.Usage.PromptTokens)
	}
	if cr.Usage.CompletionTokens > 0 {
		meta["completion_tokens"] = strconv.Itoa(cr.Usage.CompletionTokens)
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}
