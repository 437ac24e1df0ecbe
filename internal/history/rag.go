// Package history resolves a HistoryRequest against prior archived meetings:
// a retrieval-only mode that embeds and searches, a summary mode that pulls
// a whole prior source's chunks back together, and an auto mode that asks
// the LLM whether retrieval is even warranted before paying for it.
package history

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hubenschmidt/meeting-ingest/gateway/internal/metrics"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/model"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/providers"
)

const (
	defaultTopK           = 5
	defaultScoreThreshold = 0.3
	archiveCollection     = "meeting_archive"
)

// Service resolves HistoryRequest values into prompt-ready context text.
type Service struct {
	embedder   providers.EmbeddingProvider
	store      providers.VectorStore
	llm        providers.LLMProvider
	topK       int
	threshold  float64
	collection string
}

// Config configures a history Service.
type Config struct {
	Embedder       providers.EmbeddingProvider
	Store          providers.VectorStore
	LLM            providers.LLMProvider
	Collection     string
	TopK           int
	ScoreThreshold float64
}

// NewService creates a history/RAG resolution service.
func NewService(cfg Config) *Service {
	topK := cfg.TopK
	if topK == 0 {
		topK = defaultTopK
	}
	threshold := cfg.ScoreThreshold
	if threshold == 0 {
		threshold = defaultScoreThreshold
	}
	collection := cfg.Collection
	if collection == "" {
		collection = archiveCollection
	}
	return &Service{
		embedder:   cfg.Embedder,
		store:      cfg.Store,
		llm:        cfg.LLM,
		topK:       topK,
		threshold:  threshold,
		collection: collection,
	}
}

// Result carries the resolved context text plus whether the retrieval path
// specifically ran and contributed chunks. need_rag in the response reports
// Retrieved, not whether summary mode contributed context — resolving Open
// Question 2 per §4.9, which distinguishes "retrieval ran" from "a
// summary-mode minute was pulled back".
type Result struct {
	Context   string
	Retrieved bool
}

// Resolve dispatches on req.Mode. queryText is the text retrieval embeds
// against: normally the merged transcript/document text for the request.
func (s *Service) Resolve(ctx context.Context, req model.HistoryRequest, queryText string) (Result, error) {
	if len(req.IDs) == 0 && req.Mode == "" {
		return Result{}, nil
	}

	mode := req.Mode
	if mode == "" {
		mode = model.HistoryAuto
	}

	switch mode {
	case model.HistoryRetrieval:
		return s.retrieve(ctx, queryText, req.IDs)
	case model.HistorySummary:
		return s.summarize(ctx, req.IDs)
	case model.HistoryAuto:
		if !s.shouldRetrieve(ctx, queryText) {
			return Result{}, nil
		}
		return s.retrieve(ctx, queryText, req.IDs)
	default:
		return Result{}, fmt.Errorf("unknown history mode %q", mode)
	}
}

// shouldRetrieve asks the LLM a single yes/no question about whether the
// current text references prior context worth retrieving. A malformed or
// failed answer defaults to not retrieving, since retrieval is additive and
// its absence degrades gracefully.
func (s *Service) shouldRetrieve(ctx context.Context, queryText string) bool {
	if s.llm == nil {
		return true
	}
	prompt := "Does the following meeting text reference decisions, action " +
		"items, or topics from a previous meeting that should be looked up? " +
		"Answer with exactly one word, yes or no.\n\n" + truncate(queryText, 2000)

	text, _, err := s.llm.Complete(ctx, "You answer strictly with yes or no.", prompt, providers.LLMOptions{MaxTokens: 4})
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(text))
	return strings.HasPrefix(answer, "yes")
}

// retrieve embeds the query, searches the archive collection, and joins the
// surviving chunks (similarity >= threshold) with source citations.
func (s *Service) retrieve(ctx context.Context, queryText string, sourceIDs []int) (Result, error) {
	start := time.Now()

	vecs, err := s.embedder.Embed(ctx, []string{queryText})
	if err != nil {
		return Result{}, fmt.Errorf("embed history query: %w", err)
	}
	if len(vecs) == 0 {
		return Result{}, fmt.Errorf("empty query embedding")
	}

	var filter map[string]any
	if len(sourceIDs) == 1 {
		filter = map[string]any{"source_id": sourceIDs[0]}
	}

	hits, err := s.store.Query(ctx, s.collection, vecs[0], s.topK, filter)
	if err != nil {
		return Result{}, fmt.Errorf("history search: %w", err)
	}

	metrics.RAGDuration.Observe(time.Since(start).Seconds())

	kept := make([]providers.VectorHit, 0, len(hits))
	for _, h := range hits {
		if h.Similarity >= s.threshold {
			kept = append(kept, h)
		}
	}
	if len(kept) == 0 {
		return Result{}, nil
	}

	return Result{Context: formatHits(kept), Retrieved: true}, nil
}

// summarize pulls back every chunk belonging to the requested source ids, in
// chunk order, and joins them as one block — used when the caller wants the
// full prior minute rather than a similarity-ranked excerpt.
func (s *Service) summarize(ctx context.Context, sourceIDs []int) (Result, error) {
	if len(sourceIDs) == 0 {
		return Result{}, nil
	}

	var blocks []string
	for _, id := range sourceIDs {
		hits, err := s.store.Query(ctx, s.collection, zeroVector(s.embedder.Dimension()), 256, map[string]any{"source_id": id})
		if err != nil {
			return Result{}, fmt.Errorf("history summary query: %w", err)
		}
		sort.Slice(hits, func(i, j int) bool {
			return chunkIndexOf(hits[i].Metadata) < chunkIndexOf(hits[j].Metadata)
		})
		for _, h := range hits {
			if text, ok := h.Metadata["text"].(string); ok {
				blocks = append(blocks, text)
			}
		}
	}
	if len(blocks) == 0 {
		return Result{}, nil
	}
	return Result{Context: strings.Join(blocks, "\n")}, nil
}

func chunkIndexOf(metadata map[string]any) int {
	v, ok := metadata["chunk_index"].(float64)
	if !ok {
		return 0
	}
	return int(v)
}

func zeroVector(dim int) []float64 {
	return make([]float64, dim)
}

func formatHits(hits []providers.VectorHit) string {
	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		text, _ := h.Metadata["text"].(string)
		source, _ := h.Metadata["source_id"]
		parts = append(parts, fmt.Sprintf("[source %v] %s", source, text))
	}
	return strings.Join(parts, "\n---\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
