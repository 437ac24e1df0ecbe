package llmorch

import (
	"context"
	"testing"
	"time"

	"github.com/hubenschmidt/meeting-ingest/gateway/internal/apperr"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/providers"
)

type scriptedProvider struct {
	calls   int
	results []func(opts providers.LLMOptions) (string, int, error)
}

func (p *scriptedProvider) Complete(_ context.Context, _, _ string, opts providers.LLMOptions) (string, int, error) {
	fn := p.results[p.calls]
	p.calls++
	return fn(opts)
}

func (p *scriptedProvider) Ready(context.Context) bool { return true }

func fastPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseBackoff: time.Millisecond, JitterFrac: 0}
}

func ok(text string, tokens int) func(providers.LLMOptions) (string, int, error) {
	return func(providers.LLMOptions) (string, int, error) { return text, tokens, nil }
}

func fail(kind apperr.Kind) func(providers.LLMOptions) (string, int, error) {
	return func(providers.LLMOptions) (string, int, error) {
		return "", 0, apperr.New(kind, "provider.Complete", nil)
	}
}

func TestCompleteSucceedsFirstAttempt(t *testing.T) {
	provider := &scriptedProvider{results: []func(providers.LLMOptions) (string, int, error){ok("hello", 42)}}
	o := New(provider, fastPolicy())

	text, tokens, err := o.Complete(context.Background(), "sys", "user", providers.LLMOptions{})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "hello" || tokens != 42 {
		t.Errorf("Complete() = (%q, %d), want (%q, %d)", text, tokens, "hello", 42)
	}
	if provider.calls != 1 {
		t.Errorf("provider called %d times, want 1", provider.calls)
	}
}

func TestCompleteRetriesRetryableKind(t *testing.T) {
	provider := &scriptedProvider{results: []func(providers.LLMOptions) (string, int, error){
		fail(apperr.UpstreamUnavailable),
		ok("recovered", 10),
	}}
	o := New(provider, fastPolicy())

	text, _, err := o.Complete(context.Background(), "sys", "user", providers.LLMOptions{})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "recovered" {
		t.Errorf("Complete() = %q, want %q", text, "recovered")
	}
	if provider.calls != 2 {
		t.Errorf("provider called %d times, want 2", provider.calls)
	}
}

func TestCompleteDoesNotRetryNonRetryableKind(t *testing.T) {
	provider := &scriptedProvider{results: []func(providers.LLMOptions) (string, int, error){
		fail(apperr.UpstreamAuth),
		ok("should not run", 0),
	}}
	o := New(provider, fastPolicy())

	_, _, err := o.Complete(context.Background(), "sys", "user", providers.LLMOptions{})
	if apperr.KindOf(err) != apperr.UpstreamAuth {
		t.Fatalf("Complete() err kind = %v, want %v", apperr.KindOf(err), apperr.UpstreamAuth)
	}
	if provider.calls != 1 {
		t.Errorf("provider called %d times, want 1 (no retry)", provider.calls)
	}
}

func TestCompleteHalvesMaxTokensOnContextLength(t *testing.T) {
	var seenMaxTokens []int
	provider := &scriptedProvider{results: []func(providers.LLMOptions) (string, int, error){
		func(opts providers.LLMOptions) (string, int, error) {
			seenMaxTokens = append(seenMaxTokens, opts.MaxTokens)
			return "", 0, apperr.New(apperr.ContextLength, "provider.Complete", nil)
		},
		func(opts providers.LLMOptions) (string, int, error) {
			seenMaxTokens = append(seenMaxTokens, opts.MaxTokens)
			return "fits now", 5, nil
		},
	}}
	o := New(provider, fastPolicy())

	text, _, err := o.Complete(context.Background(), "sys", "user", providers.LLMOptions{MaxTokens: 2000})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "fits now" {
		t.Errorf("Complete() = %q, want %q", text, "fits now")
	}
	if len(seenMaxTokens) != 2 || seenMaxTokens[0] != 2000 || seenMaxTokens[1] != 1000 {
		t.Errorf("seenMaxTokens = %v, want [2000 1000]", seenMaxTokens)
	}
}

func TestCompleteExhaustsAttempts(t *testing.T) {
	provider := &scriptedProvider{results: []func(providers.LLMOptions) (string, int, error){
		fail(apperr.UpstreamTimeout),
		fail(apperr.UpstreamTimeout),
		fail(apperr.UpstreamTimeout),
	}}
	o := New(provider, fastPolicy())

	_, _, err := o.Complete(context.Background(), "sys", "user", providers.LLMOptions{})
	if apperr.KindOf(err) != apperr.UpstreamTimeout {
		t.Fatalf("Complete() err kind = %v, want %v", apperr.KindOf(err), apperr.UpstreamTimeout)
	}
	if provider.calls != 3 {
		t.Errorf("provider called %d times, want 3", provider.calls)
	}
}

func TestHalve(t *testing.T) {
	cases := []struct{ in, want int }{
		{2000, 1000},
		{1, 1},
		{0, 1024},
		{-5, 1024},
	}
	for _, c := range cases {
		if got := halve(c.in); got != c.want {
			t.Errorf("halve(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}
