package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hubenschmidt/meeting-ingest/gateway/internal/apperr"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/metrics"
)

// OllamaLLMProvider completes chat prompts against Ollama's streaming
// /api/chat endpoint, collecting the full response before returning it —
// the pipeline controller (C12) has no use for token-by-token delivery.
type OllamaLLMProvider struct {
	url          string
	defaultModel string
	client       *http.Client
}

// NewOllamaLLMProvider creates an Ollama HTTP client.
func NewOllamaLLMProvider(url, defaultModel string, poolSize int) *OllamaLLMProvider {
	return &OllamaLLMProvider{
		url:          url,
		defaultModel: defaultModel,
		client:       NewPooledHTTPClient(poolSize, 3*time.Minute),
	}
}

func (c *OllamaLLMProvider) Ready(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, "GET", c.url+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Complete sends a (system, user) prompt pair to Ollama and returns the full
// assembled text once the stream reports done.
func (c *OllamaLLMProvider) Complete(ctx context.Context, systemPrompt, userPrompt string, opts LLMOptions) (string, int, error) {
	start := time.Now()

	useModel := c.defaultModel
	if opts.ModelName != "" {
		useModel = opts.ModelName
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}

	resp, err := c.postChatRequest(ctx, systemPrompt, userPrompt, useModel, maxTokens)
	if err != nil {
		return "", 0, apperr.New(classifyTransportErr(ctx, err), "OllamaLLMProvider.Complete", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.Errors.WithLabelValues("llm", "status").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", 0, apperr.New(classifyHTTPStatus(resp.StatusCode, body), "OllamaLLMProvider.Complete",
			fmt.Errorf("ollama status %d: %s", resp.StatusCode, body))
	}

	sr := c.consumeStream(resp)
	metrics.StageDuration.WithLabelValues("llm").Observe(time.Since(start).Seconds())

	return sr.text, sr.evalCount, nil
}

func (c *OllamaLLMProvider) postChatRequest(ctx context.Context, systemPrompt, userPrompt, model string, maxTokens int) (*http.Response, error) {
	messages := []ollamaMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}

	reqBody := ollamaRequest{
		Model:    model,
		Stream:   true,
		Options:  ollamaOptions{NumPredict: maxTokens},
		Messages: messages,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/api/chat", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("llm", "http").Inc()
		return nil, fmt.Errorf("ollama request: %w", err)
	}

	return resp, nil
}

type streamResult struct {
	text      string
	evalCount int
}

func (c *OllamaLLMProvider) consumeStream(resp *http.Response) streamResult {
	var sr streamResult
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		var chunk ollamaStreamChunk
		if json.Unmarshal(scanner.Bytes(), &chunk) != nil {
			continue
		}
		if chunk.Done {
			sr.evalCount = chunk.EvalCount
			break
		}
		sr.text += chunk.Message.Content
	}

	return sr
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Stream   bool            `json:"stream"`
	Messages []ollamaMessage `json:"messages"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	NumPredict int `json:"num_predict"`
}

type ollamaStreamChunk struct {
	Message   ollamaMessage `json:"message"`
	Done      bool          `json:"done"`
	EvalCount int           `json:"eval_count"`
}

// classifyHTTPStatus maps an LLM backend's HTTP response to the taxonomy the
// orchestrator's retry policy and context-length halving branch on (§4.10).
// Shared by every HTTP-based LLMProvider so retry/halving behavior is
// uniform regardless of which backend handled the call.
func classifyHTTPStatus(status int, body []byte) apperr.Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return apperr.UpstreamUnavailable
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return apperr.UpstreamTimeout
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperr.UpstreamAuth
	case status >= 500:
		return apperr.UpstreamUnavailable
	case looksLikeContextLengthError(body):
		return apperr.ContextLength
	default:
		return apperr.Internal
	}
}

// classifyTransportErr maps a failed HTTP round trip (connection refused,
// context deadline, etc.) to a retry-relevant kind.
func classifyTransportErr(ctx context.Context, err error) apperr.Kind {
	if ctx.Err() == context.DeadlineExceeded || errors.Is(err, context.DeadlineExceeded) {
		return apperr.UpstreamTimeout
	}
	return apperr.UpstreamUnavailable
}

func looksLikeContextLengthError(body []byte) bool {
	lower := strings.ToLower(string(body))
	needles := []string{"context length", "context window", "context_length", "maximum context", "too many tokens"}
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}
