package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/nlpodyssey/openai-agents-go/modelsettings"
	"github.com/openai/openai-go/v2/packages/param"

	"github.com/hubenschmidt/meeting-ingest/gateway/internal/apperr"
)

// AgentLLMProvider completes chat prompts through the openai-agents-go SDK,
// backing the "auto" llm_model engine. A single ModelProvider/default-model
// pair is bound per instance; the router (internal/providers.Router) handles
// dispatch across engine names at a higher level.
type AgentLLMProvider struct {
	provider     agents.ModelProvider
	defaultModel string
}

// NewAgentLLMProvider wraps an SDK ModelProvider for one engine.
func NewAgentLLMProvider(provider agents.ModelProvider, defaultModel string) *AgentLLMProvider {
	return &AgentLLMProvider{provider: provider, defaultModel: defaultModel}
}

func (a *AgentLLMProvider) Ready(ctx context.Context) bool {
	return a.provider != nil
}

// Complete runs a single non-streamed turn through the agents SDK and
// returns the assembled output text.
func (a *AgentLLMProvider) Complete(ctx context.Context, systemPrompt, userPrompt string, opts LLMOptions) (string, int, error) {
	useModel := opts.ModelName
	if useModel == "" {
		useModel = a.defaultModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}

	agent := agents.New("meeting-summarizer").
		WithInstructions(systemPrompt).
		WithModel(useModel).
		WithModelSettings(modelsettings.ModelSettings{
			MaxTokens: param.NewOpt(int64(maxTokens)),
		})

	runner := agents.Runner{Config: agents.RunConfig{
		ModelProvider:   a.provider,
		MaxTurns:        1,
		TracingDisabled: true,
	}}

	events, errCh, err := runner.RunStreamedChan(ctx, agent, userPrompt)
	if err != nil {
		return "", 0, apperr.New(classifySDKErr(ctx, err), "AgentLLMProvider.Complete",
			fmt.Errorf("llm run start: %w", err))
	}

	var textBuf strings.Builder
	for ev := range events {
		appendOutputDelta(ev, &textBuf)
	}

	if streamErr := <-errCh; streamErr != nil {
		return "", 0, apperr.New(classifySDKErr(ctx, streamErr), "AgentLLMProvider.Complete",
			fmt.Errorf("llm run: %w", streamErr))
	}

	text := textBuf.String()
	return text, len(strings.Fields(text)), nil
}

// classifySDKErr maps an openai-agents-go SDK error to the same taxonomy the
// HTTP-based providers use, since the SDK hides the underlying status code.
func classifySDKErr(ctx context.Context, err error) apperr.Kind {
	if looksLikeContextLengthError([]byte(err.Error())) {
		return apperr.ContextLength
	}
	return classifyTransportErr(ctx, err)
}

func appendOutputDelta(ev agents.StreamEvent, textBuf *strings.Builder) {
	raw, ok := ev.(agents.RawResponsesStreamEvent)
	if !ok {
		return
	}
	if raw.Data.Type != "response.output_text.delta" {
		return
	}
	textBuf.WriteString(raw.Data.Delta)
}
