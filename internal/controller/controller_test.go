package controller

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/hubenschmidt/meeting-ingest/gateway/internal/apperr"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/asrengine"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/llmorch"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/model"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/providers"
)

// fakeASRProvider returns a scripted transcript instead of calling a real
// backend, so Controller.Run can be exercised end to end without network I/O.
type fakeASRProvider struct {
	text     string
	segments []model.TranscriptSegment
	err      error
	calls    int
}

func (f *fakeASRProvider) Recognize(ctx context.Context, audio []byte, opts providers.ASROptions) (string, []model.TranscriptSegment, error) {
	f.calls++
	if f.err != nil {
		return "", nil, f.err
	}
	return f.text, f.segments, nil
}
func (f *fakeASRProvider) RequiresURL() bool              { return false }
func (f *fakeASRProvider) Ready(ctx context.Context) bool { return true }

// scriptedLLMProvider replays one (text, tokens, err) result per call, holding
// the last entry for any call past the end of the script.
type scriptedLLMProvider struct {
	results []struct {
		text   string
		tokens int
		err    error
	}
	calls int
}

func (s *scriptedLLMProvider) Complete(ctx context.Context, systemPrompt, userPrompt string, opts providers.LLMOptions) (string, int, error) {
	i := s.calls
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	s.calls++
	r := s.results[i]
	return r.text, r.tokens, r.err
}
func (s *scriptedLLMProvider) Ready(ctx context.Context) bool { return true }

func fastPolicy() llmorch.Policy {
	return llmorch.Policy{MaxAttempts: 3, BaseBackoff: time.Millisecond, JitterFrac: 0}
}

func newTestController(t *testing.T, asr providers.ASRProvider, llm providers.LLMProvider) (*Controller, *asrengine.Engine) {
	t.Helper()
	asrRouter := providers.NewRouter(map[string]providers.ASRProvider{"auto": asr}, "auto")
	engine := asrengine.New(asrRouter, nil, 0)
	llmRouter := providers.NewRouter(map[string]providers.LLMProvider{"auto": llm}, "auto")
	c := New(Config{
		ASR:       engine,
		LLMRouter: llmRouter,
		LLMPolicy: fastPolicy(),
		WorkDir:   t.TempDir(),
	})
	return c, engine
}

// Scenario 1 (§8): text-only input produces an empty transcript and a
// populated rendered minute.
func TestRunTextOnlyProducesEmptyTranscriptAndHTML(t *testing.T) {
	llm := &scriptedLLMProvider{results: []struct {
		text   string
		tokens int
		err    error
	}{
		{text: "# Minutes\n\n- discussed product iteration", tokens: 42},
	}}
	c, _ := newTestController(t, &fakeASRProvider{}, llm)

	resp, err := c.Run(context.Background(), Request{
		TextContent: "今天讨论了产品迭代",
		TemplateID:  "default",
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if resp.Status != "success" {
		t.Errorf("Status = %q, want success", resp.Status)
	}
	if len(resp.Transcript) != 0 {
		t.Errorf("Transcript = %v, want empty for a text-only request", resp.Transcript)
	}
	if resp.HTMLContent == "" {
		t.Error("HTMLContent is empty, want rendered minute")
	}
	if resp.UsageTokens <= 0 {
		t.Errorf("UsageTokens = %d, want > 0", resp.UsageTokens)
	}
}

// Scenario 2 (§8): a single two-speaker audio item yields a dense {0,1}
// speaker set, in-range timestamps, and a raw_text covering both speakers.
func TestRunSingleAudioDiarizationProducesDenseSpeakersAndMonotoneTimeline(t *testing.T) {
	asr := &fakeASRProvider{
		text: "hello there general kenobi",
		segments: []model.TranscriptSegment{
			{Text: "hello there", StartS: 0, EndS: 12, SpeakerID: 5},
			{Text: "general kenobi", StartS: 12, EndS: 30, SpeakerID: 9},
		},
	}
	llm := &scriptedLLMProvider{results: []struct {
		text   string
		tokens int
		err    error
	}{
		{text: "# Minutes\n\n- greeted", tokens: 10},
	}}
	c, _ := newTestController(t, asr, llm)

	resp, err := c.Run(context.Background(), Request{
		Audio:             []AudioInput{{Bytes: []byte("fake-wav-bytes"), Name: "a.wav"}},
		TemplateID:        "default",
		EnableDiarization: true,
		EnablePunctuation: true,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if resp.Status != "success" {
		t.Fatalf("Status = %q, want success", resp.Status)
	}
	if len(resp.Transcript) < 2 {
		t.Fatalf("len(Transcript) = %d, want >= 2", len(resp.Transcript))
	}

	speakers := map[int]bool{}
	for i, seg := range resp.Transcript {
		speakers[seg.SpeakerID] = true
		if seg.EndS < seg.StartS {
			t.Errorf("segment %d: EndS %v < StartS %v", i, seg.EndS, seg.StartS)
		}
		if seg.StartS < 0 || seg.StartS > 30 {
			t.Errorf("segment %d: StartS %v out of [0,30]", i, seg.StartS)
		}
		if i > 0 && seg.StartS < resp.Transcript[i-1].StartS {
			t.Errorf("segment %d starts before segment %d: timeline not monotone", i, i-1)
		}
	}
	if !speakers[0] || !speakers[1] {
		t.Errorf("speaker ids = %v, want dense {0,1}", speakers)
	}
	if !containsAll(resp.RawText, "hello there", "general kenobi") {
		t.Errorf("RawText %q missing one of the speakers' text", resp.RawText)
	}
}

// Scenario 6 (§8): one UPSTREAM_TIMEOUT followed by success still succeeds,
// with exactly two provider calls — the retry bound is at most 3.
func TestRunRetriesOnceOnTransientLLMFailureThenSucceeds(t *testing.T) {
	llm := &scriptedLLMProvider{results: []struct {
		text   string
		tokens int
		err    error
	}{
		{err: apperr.New(apperr.UpstreamTimeout, "test", fmt.Errorf("timed out"))},
		{text: "# Minutes\n\n- recovered", tokens: 8},
	}}
	c, _ := newTestController(t, &fakeASRProvider{}, llm)

	resp, err := c.Run(context.Background(), Request{
		TextContent: "status update",
		TemplateID:  "default",
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if resp.Status != "success" {
		t.Errorf("Status = %q, want success", resp.Status)
	}
	if llm.calls != 2 {
		t.Errorf("provider calls = %d, want 2 (one failure, one success)", llm.calls)
	}
}

// A deterministic, non-retryable failure (BadInput) must stop after a single
// provider call rather than retrying.
func TestRunDoesNotRetryOnDeterministicLLMFailure(t *testing.T) {
	llm := &scriptedLLMProvider{results: []struct {
		text   string
		tokens int
		err    error
	}{
		{err: apperr.New(apperr.BadInput, "test", fmt.Errorf("malformed request"))},
	}}
	c, _ := newTestController(t, &fakeASRProvider{}, llm)

	_, err := c.Run(context.Background(), Request{TextContent: "x", TemplateID: "default"})
	if err == nil {
		t.Fatal("Run() with deterministic LLM failure: want error, got nil")
	}
	if llm.calls != 1 {
		t.Errorf("provider calls = %d, want 1 (no retry on a non-retryable kind)", llm.calls)
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}

func TestValidateInputRejectsZeroKinds(t *testing.T) {
	_, err := validateInput(Request{})
	if err == nil {
		t.Fatal("validateInput() with no input: want error, got nil")
	}
	if kind := apperr.KindOf(err); kind != apperr.BadInput {
		t.Errorf("KindOf(err) = %v, want %v", kind, apperr.BadInput)
	}
}

func TestValidateInputRejectsMultipleKinds(t *testing.T) {
	_, err := validateInput(Request{
		Audio:       []AudioInput{{URL: "https://example.com/a.wav"}},
		TextContent: "also text",
	})
	if err == nil {
		t.Fatal("validateInput() with two input kinds: want error, got nil")
	}
}

func TestValidateInputAcceptsExactlyOneKind(t *testing.T) {
	cases := []struct {
		name string
		req  Request
		want inputKind
	}{
		{"audio", Request{Audio: []AudioInput{{URL: "u"}}}, kindAudio},
		{"document", Request{DocumentBytes: []byte("doc")}, kindDocument},
		{"text", Request{TextContent: "hello"}, kindText},
	}
	for _, c := range cases {
		kind, err := validateInput(c.req)
		if err != nil {
			t.Errorf("%s: validateInput() error = %v", c.name, err)
		}
		if kind != c.want {
			t.Errorf("%s: validateInput() kind = %v, want %v", c.name, kind, c.want)
		}
	}
}

func TestInputKindSourceKind(t *testing.T) {
	cases := []struct {
		kind inputKind
		want string
	}{
		{kindAudio, "audio"},
		{kindDocument, "document"},
		{kindText, "text"},
	}
	for _, c := range cases {
		if got := c.kind.sourceKind(); got != c.want {
			t.Errorf("sourceKind() = %q, want %q", got, c.want)
		}
	}
}

func TestRemapDenseAcrossFilesSortsByStartAndRenumbers(t *testing.T) {
	// Two files' segments interleaved out of timestamp order, each file's
	// diarization having produced its own locally-dense ids that collide.
	segs := []model.TranscriptSegment{
		{StartS: 10, EndS: 12, SpeakerID: 0}, // file 2, speaker A
		{StartS: 0, EndS: 2, SpeakerID: 0},   // file 1, speaker A
		{StartS: 2, EndS: 4, SpeakerID: 1},   // file 1, speaker B
		{StartS: 12, EndS: 14, SpeakerID: 1}, // file 2, speaker B
	}

	out := remapDenseAcrossFiles(segs)

	if len(out) != 4 {
		t.Fatalf("remapDenseAcrossFiles() returned %d segments, want 4", len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i].StartS < out[i-1].StartS {
			t.Fatalf("remapDenseAcrossFiles() did not sort by StartS: %+v", out)
		}
	}

	ids := map[int]bool{}
	maxID := 0
	for _, s := range out {
		ids[s.SpeakerID] = true
		if s.SpeakerID > maxID {
			maxID = s.SpeakerID
		}
	}
	for i := 0; i <= maxID; i++ {
		if !ids[i] {
			t.Errorf("remapDenseAcrossFiles() speaker ids = %v, missing dense id %d", ids, i)
		}
	}
}

func TestRemapDenseAcrossFilesEmptyInput(t *testing.T) {
	if out := remapDenseAcrossFiles(nil); len(out) != 0 {
		t.Errorf("remapDenseAcrossFiles(nil) = %v, want empty", out)
	}
}

func TestMaxSpeakerID(t *testing.T) {
	segs := []model.TranscriptSegment{{SpeakerID: 2}, {SpeakerID: 7}, {SpeakerID: 1}}
	if got := maxSpeakerID(segs); got != 7 {
		t.Errorf("maxSpeakerID() = %d, want 7", got)
	}
	if got := maxSpeakerID(nil); got != 0 {
		t.Errorf("maxSpeakerID(nil) = %d, want 0", got)
	}
}
