// Package llmorch wraps an LLMProvider call with a generic retry/backoff
// policy and the one piece of response-shape repair the spec calls for:
// halving max_tokens once and retrying on a context-length error.
package llmorch

import (
	"context"
	"math/rand"
	"time"

	"github.com/hubenschmidt/meeting-ingest/gateway/internal/apperr"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/metrics"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/providers"
)

// Policy controls retry attempts and backoff for LLM calls.
type Policy struct {
	MaxAttempts  int
	BaseBackoff  time.Duration
	JitterFrac   float64
}

// DefaultPolicy is 3 attempts with 20% jitter; the backoff doubles from 1s,
// so the waits between attempts are 1s and then 2s.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseBackoff: time.Second, JitterFrac: 0.2}
}

// Orchestrator drives a single LLMProvider call through Policy's retry rules.
type Orchestrator struct {
	provider providers.LLMProvider
	policy   Policy
}

// New creates an Orchestrator for one provider and policy.
func New(provider providers.LLMProvider, policy Policy) *Orchestrator {
	return &Orchestrator{provider: provider, policy: policy}
}

// Complete runs systemPrompt/userPrompt through the provider, retrying
// retryable failures per Policy and halving MaxTokens once if the provider
// reports a context-length error.
func (o *Orchestrator) Complete(ctx context.Context, systemPrompt, userPrompt string, opts providers.LLMOptions) (string, int, error) {
	var lastErr error
	contextLengthRetried := false

	for attempt := 0; attempt < o.policy.MaxAttempts; attempt++ {
		text, tokens, err := o.provider.Complete(ctx, systemPrompt, userPrompt, opts)
		if err == nil {
			return text, tokens, nil
		}
		lastErr = err

		kind := apperr.KindOf(err)
		if kind == apperr.ContextLength && !contextLengthRetried {
			contextLengthRetried = true
			opts.MaxTokens = halve(opts.MaxTokens)
			metrics.LLMRetries.WithLabelValues(string(kind)).Inc()
			continue
		}
		if !apperr.Retryable(kind) {
			return "", 0, err
		}

		metrics.LLMRetries.WithLabelValues(string(kind)).Inc()
		if attempt == o.policy.MaxAttempts-1 {
			break
		}
		if sleepErr := o.sleep(ctx, attempt); sleepErr != nil {
			return "", 0, sleepErr
		}
	}

	return "", 0, lastErr
}

func (o *Orchestrator) sleep(ctx context.Context, attempt int) error {
	backoff := o.policy.BaseBackoff * time.Duration(1<<attempt)
	jitter := time.Duration(float64(backoff) * o.policy.JitterFrac * (rand.Float64()*2 - 1))
	wait := backoff + jitter
	if wait < 0 {
		wait = backoff
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func halve(maxTokens int) int {
	if maxTokens <= 0 {
		return 1024
	}
	half := maxTokens / 2
	if half < 1 {
		return 1
	}
	return half
}
