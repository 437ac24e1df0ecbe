package providers

import (
	"context"

	"github.com/hubenschmidt/meeting-ingest/gateway/internal/model"
)

// ASROptions carries the knobs the pipeline controller sets per call.
type ASROptions struct {
	EnablePunctuation bool
	EnableDiarization bool
	HotwordBlob       string
	LanguageHint      string
}

// ASRProvider recognizes speech in an audio blob. RequiresURL reports whether
// the backend only accepts a fetchable URL rather than raw bytes; the ASR
// engine (C6) rejects bytes-only input against such a provider with
// apperr.UnsupportedFormat instead of silently downgrading.
type ASRProvider interface {
	Recognize(ctx context.Context, audio []byte, opts ASROptions) (fullText string, segments []model.TranscriptSegment, err error)
	RequiresURL() bool
	Ready(ctx context.Context) bool
}

// LLMOptions carries per-call generation parameters.
type LLMOptions struct {
	Temperature float64
	MaxTokens   int
	ModelName   string
}

// LLMProvider completes a (system, user) prompt pair.
type LLMProvider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, opts LLMOptions) (text string, usageTokens int, err error)
	Ready(ctx context.Context) bool
}

// EmbeddingProvider turns text into fixed-dimension vectors.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	Dimension() int
	Ready(ctx context.Context) bool
}

// VectorHit is one match returned by VectorStore.Query, with the L2 distance
// already converted to similarity via s = 1/(1+d).
type VectorHit struct {
	ID         string
	Similarity float64
	Metadata   map[string]any
}

// VectorStore is the narrow contract the archive service and history/RAG
// service depend on. Concrete backends (e.g. Qdrant) report raw distance;
// implementations of this interface perform the distance->similarity
// conversion before returning hits, so callers only ever see similarity.
type VectorStore interface {
	EnsureCollection(ctx context.Context, name string, dim int) error
	VectorDimension(ctx context.Context, name string) (int, error)
	Upsert(ctx context.Context, name string, records []model.VectorRecord) error
	Query(ctx context.Context, name string, vec []float64, k int, filter map[string]any) ([]VectorHit, error)
	DeleteByMetadata(ctx context.Context, name string, match map[string]any) error
	Ready(ctx context.Context) bool
}

// VoiceprintStore is a thin facade over VectorStore bound to the 192-dim
// voiceprint collection.
type VoiceprintStore interface {
	Register(ctx context.Context, rec model.VoiceprintRecord) error
	MatchTop1(ctx context.Context, embedding [model.VoiceprintDim]float64) (hit VectorHit, ok bool, err error)
	Count(ctx context.Context) (int, error)
}
