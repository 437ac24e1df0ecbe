package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hubenschmidt/meeting-ingest/gateway/internal/apperr"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/metrics"
)

// OpenAIChatProvider streams from an OpenAI-compatible /v1/chat/completions
// endpoint. cmd/gateway registers it as the "auto" llm_model engine when an
// OpenAI API key is configured; deepseek and qwen3 are served by
// OllamaLLMProvider.
type OpenAIChatProvider struct {
	apiKey       string
	url          string
	defaultModel string
	client       *http.Client
}

// NewOpenAIChatProvider creates a client for an OpenAI-compatible chat API.
func NewOpenAIChatProvider(apiKey, url, defaultModel string, poolSize int) *OpenAIChatProvider {
	return &OpenAIChatProvider{
		apiKey:       apiKey,
		url:          url,
		defaultModel: defaultModel,
		client:       NewPooledHTTPClient(poolSize, 3*time.Minute),
	}
}

func (c *OpenAIChatProvider) Ready(ctx context.Context) bool {
	return c.apiKey != ""
}

func (c *OpenAIChatProvider) Complete(ctx context.Context, systemPrompt, userPrompt string, opts LLMOptions) (string, int, error) {
	start := time.Now()

	useModel := c.defaultModel
	if opts.ModelName != "" {
		useModel = opts.ModelName
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}

	body, err := json.Marshal(map[string]any{
		"model": useModel,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"max_tokens":  maxTokens,
		"temperature": opts.Temperature,
		"stream":      true,
	})
	if err != nil {
		return "", 0, fmt.Errorf("marshal chat completions request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("create chat completions request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("llm", "http").Inc()
		return "", 0, apperr.New(classifyTransportErr(ctx, err), "OpenAIChatProvider.Complete", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.Errors.WithLabelValues("llm", "status").Inc()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", 0, apperr.New(classifyHTTPStatus(resp.StatusCode, errBody), "OpenAIChatProvider.Complete",
			fmt.Errorf("chat completions status %d: %s", resp.StatusCode, errBody))
	}

	text, tokens := consumeChatCompletionsStream(resp.Body)
	metrics.StageDuration.WithLabelValues("llm").Observe(time.Since(start).Seconds())

	return text, tokens, nil
}

func consumeChatCompletionsStream(body io.Reader) (string, int) {
	var textBuf strings.Builder
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}
		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
			Usage struct {
				CompletionTokens int `json:"completion_tokens"`
			} `json:"usage"`
		}
		if json.Unmarshal([]byte(data), &chunk) != nil {
			continue
		}
		if chunk.Usage.CompletionTokens > 0 {
			return textBuf.String(), chunk.Usage.CompletionTokens
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		textBuf.WriteString(chunk.Choices[0].Delta.Content)
	}

	text := textBuf.String()
	return text, len(strings.Fields(text))
}
