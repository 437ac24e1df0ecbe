// Package asrengine drives an ASRProvider with rendered hotwords and enforces
// the duration cap and bytes-vs-URL input contract uniformly across backends.
package asrengine

import (
	"context"
	"fmt"

	"github.com/hubenschmidt/meeting-ingest/gateway/internal/apperr"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/hotwords"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/model"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/providers"
)

// defaultMaxDurationSeconds is the uniform per-file audio duration cap,
// checked on each Recognize call regardless of which ASR backend handles it.
const defaultMaxDurationSeconds = 18000.0

// Input describes one audio recognition request.
type Input struct {
	Bytes        []byte
	URL          string
	DurationS    float64
	LanguageHint string
	Diarization  bool
	Punctuation  bool
}

// Engine recognizes speech via a routed ASRProvider.
type Engine struct {
	router          *providers.Router[providers.ASRProvider]
	hotwordTable    *hotwords.Table
	maxDurationSecs float64
}

// New creates an Engine bound to an ASR provider router and hotword table.
func New(router *providers.Router[providers.ASRProvider], table *hotwords.Table, maxDurationSecs float64) *Engine {
	if maxDurationSecs <= 0 {
		maxDurationSecs = defaultMaxDurationSeconds
	}
	return &Engine{router: router, hotwordTable: table, maxDurationSecs: maxDurationSecs}
}

// Recognize validates duration and input-shape against the chosen engine,
// then dispatches to it with the rendered hotword blob.
func (e *Engine) Recognize(ctx context.Context, engine string, in Input) (string, []model.TranscriptSegment, error) {
	if in.DurationS > e.maxDurationSecs {
		return "", nil, apperr.New(apperr.DurationExceeded, "asrengine.Recognize",
			fmt.Errorf("audio duration %.0fs exceeds cap %.0fs", in.DurationS, e.maxDurationSecs))
	}

	provider, err := e.router.Route(engine)
	if err != nil {
		return "", nil, apperr.New(apperr.BadInput, "asrengine.Recognize", err)
	}

	if provider.RequiresURL() && in.URL == "" {
		return "", nil, apperr.New(apperr.UnsupportedFormat, "asrengine.Recognize",
			fmt.Errorf("engine %q only accepts a fetchable URL, no URL given", engine))
	}
	if !provider.RequiresURL() && in.URL != "" && len(in.Bytes) == 0 {
		return "", nil, apperr.New(apperr.UnsupportedFormat, "asrengine.Recognize",
			fmt.Errorf("engine %q requires raw audio bytes, only a URL was given", engine))
	}

	payload := in.Bytes
	if provider.RequiresURL() {
		payload = []byte(in.URL)
	}

	opts := providers.ASROptions{
		EnablePunctuation: in.Punctuation,
		EnableDiarization: in.Diarization,
		LanguageHint:      in.LanguageHint,
	}
	if e.hotwordTable != nil {
		opts.HotwordBlob = e.hotwordTable.Render()
	}

	text, segments, err := provider.Recognize(ctx, payload, opts)
	if err != nil {
		return "", nil, apperr.New(apperr.UpstreamUnavailable, "asrengine.Recognize", err)
	}
	return text, segments, nil
}
