// Package controller drives the end-to-end meeting-ingestion request: it
// dispatches on input kind, fans out per-audio preprocessing/ASR/diarization/
// voiceprint work across a bounded worker pool, merges the resulting
// transcript, resolves a template and optional history context, and drives
// the LLM orchestrator to produce the final minute. It replaces the
// teacher's internal/pipeline.Pipeline WebSocket-session state machine with
// a single request-scoped Run call.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hubenschmidt/meeting-ingest/gateway/internal/apperr"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/archive"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/asrengine"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/audioprep"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/diarize"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/docparse"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/history"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/llmorch"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/metrics"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/model"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/providers"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/render"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/store"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/template"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/voiceprint"
)

const (
	defaultASRDeadline = 2 * time.Hour
	defaultLLMDeadline = 3 * time.Minute
	maxWorkers         = 4
)

// AudioInput is one submitted audio item: exactly one of Bytes or URL is set.
type AudioInput struct {
	Bytes []byte
	URL   string
	Name  string
}

// Request is the fully-parsed /process request. Exactly one of Audio,
// DocumentBytes, or TextContent is populated; VALIDATE_INPUT enforces that.
type Request struct {
	Audio         []AudioInput
	DocumentName  string
	DocumentBytes []byte
	TextContent   string

	TemplateID      string
	TemplateFile    string
	TemplateJSON    string
	TemplateRaw     string
	UserRequirement string

	HistoryIDs  []int
	HistoryMode model.HistoryMode

	ASREngine      string
	LLMEngine      string
	LLMTemperature float64
	LLMMaxTokens   int

	EnableDiarization bool
	EnablePunctuation bool
}

// Response is what /process returns to the caller.
type Response struct {
	Status      string
	Message     string
	RawText     string
	Transcript  []model.TranscriptSegment
	NeedRAG     bool
	HTMLContent string
	UsageTokens int
	FileErrors  []string
}

// Controller wires every pipeline component together for one gateway process.
type Controller struct {
	asr          *asrengine.Engine
	audioprep    *audioprep.Preparer
	voiceMatcher *voiceprint.Matcher
	docParse     func(filename string, data []byte) (string, error)
	history      *history.Service
	llmRouter    *providers.Router[providers.LLMProvider]
	llmPolicy    llmorch.Policy
	archive      *archive.Service
	records      store.TranscriptStore

	asrDeadline time.Duration
	llmDeadline time.Duration
	workDir     string
}

// Config constructs a Controller from its component dependencies.
type Config struct {
	ASR          *asrengine.Engine
	AudioPrep    *audioprep.Preparer
	VoiceMatcher *voiceprint.Matcher
	History      *history.Service
	LLMRouter    *providers.Router[providers.LLMProvider]
	LLMPolicy    llmorch.Policy
	Archive      *archive.Service
	Records      store.TranscriptStore

	ASRDeadline time.Duration
	LLMDeadline time.Duration
	WorkDir     string
}

// New creates a Controller. Records may be nil: transcript persistence is
// best-effort and the controller degrades to in-memory-only on a nil store.
func New(cfg Config) *Controller {
	asrDeadline := cfg.ASRDeadline
	if asrDeadline <= 0 {
		asrDeadline = defaultASRDeadline
	}
	llmDeadline := cfg.LLMDeadline
	if llmDeadline <= 0 {
		llmDeadline = defaultLLMDeadline
	}
	workDir := cfg.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}
	policy := cfg.LLMPolicy
	if policy.MaxAttempts == 0 {
		policy = llmorch.DefaultPolicy()
	}
	return &Controller{
		asr:          cfg.ASR,
		audioprep:    cfg.AudioPrep,
		voiceMatcher: cfg.VoiceMatcher,
		docParse:     docparse.Parse,
		history:      cfg.History,
		llmRouter:    cfg.LLMRouter,
		llmPolicy:    policy,
		archive:      cfg.Archive,
		records:      cfg.Records,
		asrDeadline:  asrDeadline,
		llmDeadline:  llmDeadline,
		workDir:      workDir,
	}
}

// Run executes the full pipeline state machine for one request.
func (c *Controller) Run(ctx context.Context, req Request) (Response, error) {
	metrics.RequestsActive.Inc()
	defer metrics.RequestsActive.Dec()
	start := time.Now()

	kind, err := validateInput(req)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues("error").Inc()
		return Response{}, err
	}

	tempDir, err := os.MkdirTemp(c.workDir, "meeting-ingest-*")
	if err != nil {
		return Response{}, apperr.New(apperr.Internal, "controller.Run", fmt.Errorf("create temp dir: %w", err))
	}
	defer os.RemoveAll(tempDir)

	var fullText string
	var segments []model.TranscriptSegment
	var fileErrors []string

	switch kind {
	case kindAudio:
		fullText, segments, fileErrors, err = c.runAudioPath(ctx, req, tempDir)
	case kindDocument:
		fullText, err = c.runDocPath(req)
	case kindText:
		fullText = req.TextContent
	}
	if err != nil {
		metrics.RequestsTotal.WithLabelValues("error").Inc()
		c.persist(ctx, "", "", "", apperr.KindOf(err), time.Since(start))
		return Response{}, err
	}
	if fullText == "" && len(fileErrors) > 0 {
		metrics.RequestsTotal.WithLabelValues("error").Inc()
		return Response{Status: "error", Message: "all files failed", FileErrors: fileErrors}, nil
	}

	resolved, err := c.resolveTemplate(req)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues("error").Inc()
		return Response{}, apperr.New(apperr.BadInput, "controller.Run", err)
	}

	historyResult := c.resolveHistory(ctx, req, fullText)

	markdown, usageTokens, err := c.runLLM(ctx, resolved, fullText, historyResult, req)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues("error").Inc()
		c.persist(ctx, kind.sourceKind(), fullText, "", apperr.KindOf(err), time.Since(start))
		return Response{}, err
	}

	c.persist(ctx, kind.sourceKind(), fullText, markdown, "", time.Since(start))
	metrics.RequestsTotal.WithLabelValues("success").Inc()
	metrics.E2EDuration.Observe(time.Since(start).Seconds())

	return Response{
		Status:      "success",
		RawText:     fullText,
		Transcript:  segments,
		NeedRAG:     historyResult.Retrieved,
		HTMLContent: render.ToHTML(markdown),
		UsageTokens: usageTokens,
		FileErrors:  fileErrors,
	}, nil
}

type inputKind int

const (
	kindAudio inputKind = iota
	kindDocument
	kindText
)

func (k inputKind) sourceKind() string {
	switch k {
	case kindAudio:
		return "audio"
	case kindDocument:
		return "document"
	default:
		return "text"
	}
}

// validateInput rejects requests supplying more than one input kind, or zero.
func validateInput(req Request) (inputKind, error) {
	present := 0
	var kind inputKind
	if len(req.Audio) > 0 {
		present++
		kind = kindAudio
	}
	if len(req.DocumentBytes) > 0 {
		present++
		kind = kindDocument
	}
	if req.TextContent != "" {
		present++
		kind = kindText
	}
	if present != 1 {
		return 0, apperr.New(apperr.BadInput, "controller.validateInput",
			fmt.Errorf("expected exactly one input kind, got %d", present))
	}
	if kind == kindAudio {
		for i, a := range req.Audio {
			if len(a.Bytes) == 0 && a.URL == "" {
				return 0, apperr.New(apperr.BadInput, "controller.validateInput",
					fmt.Errorf("audio item %d has no bytes and no URL", i))
			}
		}
	}
	return kind, nil
}

// audioResult is one audio item's pipeline output, indexed by submission order.
type audioResult struct {
	index    int
	fullText string
	segments []model.TranscriptSegment
	err      error
}

// runAudioPath runs PREPROCESS -> ASR -> (DIARIZE -> VOICE_MATCH) for every
// submitted audio item in parallel across a bounded worker pool, then merges
// the results in submission order with timestamps shifted so the merged
// timeline is monotonic.
func (c *Controller) runAudioPath(ctx context.Context, req Request, tempDir string) (string, []model.TranscriptSegment, []string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.asrDeadline)
	defer cancel()

	workers := len(req.Audio)
	if cpu := runtime.GOMAXPROCS(0); workers > cpu {
		workers = cpu
	}
	if workers > maxWorkers {
		workers = maxWorkers
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan int, len(req.Audio))
	results := make([]audioResult, len(req.Audio))
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				text, segs, err := c.processOneAudio(ctx, req.Audio[i], req, tempDir)
				results[i] = audioResult{index: i, fullText: text, segments: segs, err: err}
			}
		}()
	}
	for i := range req.Audio {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	select {
	case <-ctx.Done():
		return "", nil, nil, apperr.New(apperr.DeadlineExceeded, "controller.runAudioPath", ctx.Err())
	default:
	}

	var fullTexts []string
	var merged []model.TranscriptSegment
	var fileErrors []string
	var offset float64
	succeeded := 0

	for _, r := range results {
		if r.err != nil {
			fileErrors = append(fileErrors, fmt.Sprintf("%s: %v", req.Audio[r.index].Name, r.err))
			continue
		}
		succeeded++
		fullTexts = append(fullTexts, r.fullText)
		for _, seg := range r.segments {
			seg.StartS += offset
			seg.EndS += offset
			merged = append(merged, seg)
		}
		if len(r.segments) > 0 {
			last := r.segments[len(r.segments)-1]
			offset += last.EndS
		}
	}

	if succeeded == 0 && len(req.Audio) > 0 {
		return "", nil, fileErrors, apperr.New(apperr.UpstreamUnavailable, "controller.runAudioPath",
			fmt.Errorf("all %d audio files failed", len(req.Audio)))
	}

	merged = remapDenseAcrossFiles(merged)

	if len(merged) > 0 {
		metrics.DiarizedSpeakers.Observe(float64(maxSpeakerID(merged) + 1))
	}

	fullText := strings.Join(fullTexts, " ")
	if fullText == "" {
		fullText = model.BuildFullText(merged)
	}
	return fullText, merged, fileErrors, nil
}

// processOneAudio runs the PREPROCESS -> ASR -> DIARIZE -> VOICE_MATCH chain
// for a single audio item.
func (c *Controller) processOneAudio(ctx context.Context, in AudioInput, req Request, tempDir string) (string, []model.TranscriptSegment, error) {
	var samples []float32
	audioBytes := in.Bytes
	if c.audioprep != nil && len(in.Bytes) > 0 {
		if s, encoded, prepErr := c.audioprep.Prepare(ctx, in.Bytes, audioprep.Options{Denoise: true, LoudnessNormalize: true}); prepErr == nil {
			samples = s
			audioBytes = encoded
		}
	}

	durationS := float64(len(samples)) / 16000
	if len(in.Bytes) == 0 && in.URL != "" && c.audioprep != nil {
		if probed, probeErr := c.audioprep.ProbeDurationSeconds(ctx, in.URL); probeErr == nil {
			durationS = probed
		} else {
			slog.Warn("audio duration probe failed, duration cap not enforced for this item", "url", in.URL, "error", probeErr)
		}
	}

	start := time.Now()
	fullText, segments, err := c.asr.Recognize(ctx, req.ASREngine, asrengine.Input{
		Bytes:        audioBytes,
		URL:          in.URL,
		DurationS:    durationS,
		LanguageHint: "",
		Diarization:  req.EnableDiarization,
		Punctuation:  req.EnablePunctuation,
	})
	metrics.StageDuration.WithLabelValues("asr").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Errors.WithLabelValues("asr", string(apperr.KindOf(err))).Inc()
		return "", nil, err
	}

	if req.EnableDiarization {
		segments = diarize.Segment(segments, samples, 16000)
		if c.voiceMatcher != nil {
			segments = c.voiceMatcher.Match(ctx, segments, samples, 16000)
		}
	}

	_ = filepath.Join(tempDir, in.Name) // per-request temp dir is removed by the caller on all exit paths
	return fullText, segments, nil
}

// runDocPath extracts plain text from the submitted document.
func (c *Controller) runDocPath(req Request) (string, error) {
	text, err := c.docParse(req.DocumentName, req.DocumentBytes)
	if err != nil {
		return "", err
	}
	return text, nil
}

func (c *Controller) resolveTemplate(req Request) (model.ResolvedPrompt, error) {
	return template.Resolve(template.Request{
		PresetID:   req.TemplateID,
		FilePath:   req.TemplateFile,
		InlineJSON: req.TemplateJSON,
		Raw:        req.TemplateRaw,
	})
}

func (c *Controller) resolveHistory(ctx context.Context, req Request, queryText string) history.Result {
	if c.history == nil {
		return history.Result{}
	}
	mode := req.HistoryMode
	if mode == "" {
		mode = model.HistoryAuto
	}
	result, err := c.history.Resolve(ctx, model.HistoryRequest{IDs: req.HistoryIDs, Mode: mode}, queryText)
	if err != nil {
		return history.Result{}
	}
	return result
}

// runLLM assembles the (system, user) prompt from the template, merged
// transcript, optional history context, and user requirement, then drives
// the orchestrator with its own bounded deadline.
func (c *Controller) runLLM(ctx context.Context, resolved model.ResolvedPrompt, fullText string, hist history.Result, req Request) (string, int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.llmDeadline)
	defer cancel()

	var user strings.Builder
	user.WriteString(fullText)
	if hist.Context != "" {
		user.WriteString("\n\n--- Prior meeting context ---\n")
		user.WriteString(hist.Context)
	}
	if req.UserRequirement != "" {
		user.WriteString("\n\n--- Additional requirement ---\n")
		user.WriteString(req.UserRequirement)
	}

	temperature := req.LLMTemperature
	if temperature == 0 {
		temperature = 0.7
	}
	maxTokens := req.LLMMaxTokens
	if maxTokens == 0 {
		maxTokens = 2000
	}

	provider, err := c.llmRouter.Route(req.LLMEngine)
	if err != nil {
		return "", 0, apperr.New(apperr.BadInput, "controller.runLLM", err)
	}
	orchestrator := llmorch.New(provider, c.llmPolicy)

	start := time.Now()
	text, tokens, err := orchestrator.Complete(ctx, resolved.System, user.String(), providers.LLMOptions{
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	metrics.StageDuration.WithLabelValues("llm").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Errors.WithLabelValues("llm", string(apperr.KindOf(err))).Inc()
		return "", 0, err
	}
	return text, tokens, nil
}

// Archive chunks and upserts an approved meeting minute, surfacing failures
// to the caller per §7 (archive failures are not best-effort).
func (c *Controller) Archive(ctx context.Context, rec model.MinuteRecord) (int, error) {
	if c.archive == nil {
		return 0, apperr.New(apperr.Internal, "controller.Archive", fmt.Errorf("archive service not configured"))
	}
	return c.archive.Archive(ctx, rec)
}

func (c *Controller) persist(ctx context.Context, sourceKind, rawText, markdown string, errKind apperr.Kind, elapsed time.Duration) {
	if c.records == nil {
		return
	}
	_ = c.records.Save(ctx, store.TranscriptRecord{
		ID:         fmt.Sprintf("%d", time.Now().UnixNano()),
		SourceKind: sourceKind,
		RawText:    rawText,
		Markdown:   markdown,
		ErrorKind:  string(errKind),
		DurationMs: float64(elapsed.Milliseconds()),
	})
}

func maxSpeakerID(segs []model.TranscriptSegment) int {
	max := 0
	for _, s := range segs {
		if s.SpeakerID > max {
			max = s.SpeakerID
		}
	}
	return max
}

// remapDenseAcrossFiles renumbers speaker ids densely once more after
// merging every file's segments, since each file's diarization pass produced
// its own locally-dense ids that may collide across files.
func remapDenseAcrossFiles(segs []model.TranscriptSegment) []model.TranscriptSegment {
	if len(segs) == 0 {
		return segs
	}
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].StartS < segs[j].StartS })

	mapping := map[int]int{}
	next := 0
	out := make([]model.TranscriptSegment, len(segs))
	for i, s := range segs {
		if _, ok := mapping[s.SpeakerID]; !ok {
			mapping[s.SpeakerID] = next
			next++
		}
		out[i] = s
		out[i].SpeakerID = mapping[s.SpeakerID]
	}
	return out
}
