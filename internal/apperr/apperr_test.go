package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormatsWithAndWithoutCause(t *testing.T) {
	withCause := New(UpstreamTimeout, "asrengine.Recognize", errors.New("dial tcp: timeout"))
	want := "asrengine.Recognize: UPSTREAM_TIMEOUT: dial tcp: timeout"
	if got := withCause.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	bare := New(BadInput, "controller.Run", nil)
	want = "controller.Run: BAD_INPUT"
	if got := bare.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("boom")
	err := New(Internal, "op", cause)
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}

func TestKindOfExtractsWrappedKind(t *testing.T) {
	err := New(ContextLength, "llmorch.Complete", errors.New("too many tokens"))
	wrapped := fmt.Errorf("orchestrator: %w", err)

	if got := KindOf(wrapped); got != ContextLength {
		t.Errorf("KindOf(wrapped) = %q, want %q", got, ContextLength)
	}
}

func TestKindOfDefaultsToInternal(t *testing.T) {
	if got := KindOf(errors.New("unclassified")); got != Internal {
		t.Errorf("KindOf(plain error) = %q, want %q", got, Internal)
	}
	if got := KindOf(nil); got != Internal {
		t.Errorf("KindOf(nil) = %q, want %q", got, Internal)
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		kind Kind
		want bool
	}{
		{UpstreamTimeout, true},
		{UpstreamUnavailable, true},
		{UpstreamAuth, false},
		{BadInput, false},
		{ContextLength, false},
		{Internal, false},
	}
	for _, c := range cases {
		if got := Retryable(c.kind); got != c.want {
			t.Errorf("Retryable(%s) = %v, want %v", c.kind, got, c.want)
		}
	}
}
