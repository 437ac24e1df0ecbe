// Package archive chunks an approved meeting minute and idempotently
// upserts it into the vector store for later retrieval by internal/history.
// Grounded on cmd/seed's paragraph-chunking seeding loop, generalized into a
// heading-aware chunker with overlap and keyed, idempotent re-insertion.
package archive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hubenschmidt/meeting-ingest/gateway/internal/apperr"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/metrics"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/model"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/providers"
)

const (
	collectionName = "meeting_archive"
	minChunkChars  = 400
	maxChunkChars  = 800
	overlapChars   = 80
)

// Service chunks and archives approved meeting minutes.
type Service struct {
	embedder providers.EmbeddingProvider
	store    providers.VectorStore
	dim      int
}

// New creates an archive Service, ensuring the collection exists at the
// embedder's declared dimension. If the collection already existed at a
// different dimension (e.g. the embedding model changed since it was first
// created), construction fails with apperr.VectorDimMismatch rather than
// silently archiving against the wrong geometry.
func New(ctx context.Context, embedder providers.EmbeddingProvider, store providers.VectorStore) (*Service, error) {
	dim := embedder.Dimension()
	if err := store.EnsureCollection(ctx, collectionName, dim); err != nil {
		return nil, fmt.Errorf("ensure archive collection: %w", err)
	}
	actual, err := store.VectorDimension(ctx, collectionName)
	if err != nil {
		return nil, fmt.Errorf("read archive collection dimension: %w", err)
	}
	if actual != dim {
		return nil, apperr.New(apperr.VectorDimMismatch, "archive.New",
			fmt.Errorf("collection %q has dimension %d, embedder produces %d", collectionName, actual, dim))
	}
	return &Service{embedder: embedder, store: store, dim: dim}, nil
}

// Archive chunks rec.Markdown, embeds each chunk, and idempotently replaces
// any prior chunks for rec.SourceID — Qdrant's REST API has no multi-
// operation transaction, so the old chunks are deleted first.
func (s *Service) Archive(ctx context.Context, rec model.MinuteRecord) (int, error) {
	chunks := Chunk(rec.Markdown)
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	copy(texts, chunks)

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}
	for i, v := range vectors {
		if len(v) != s.dim {
			return 0, apperr.New(apperr.VectorDimMismatch, "archive.Archive",
				fmt.Errorf("chunk %d embedding has dimension %d, collection %q expects %d", i, len(v), collectionName, s.dim))
		}
	}

	if err = s.store.DeleteByMetadata(ctx, collectionName, map[string]any{"source_id": rec.SourceID}); err != nil {
		return 0, fmt.Errorf("delete prior chunks: %w", err)
	}

	records := make([]model.VectorRecord, 0, len(chunks))
	for i, chunk := range chunks {
		records = append(records, model.VectorRecord{
			ID:        uuid.NewString(),
			Embedding: vectors[i],
			Document:  chunk,
			Metadata: map[string]any{
				"source_id":    rec.SourceID,
				"chunk_index":  i,
				"text":         chunk,
				"user_id":      rec.UserID,
				"meeting_date": rec.MeetingDate,
				"department":   rec.Department,
				"archived_at":  time.Now().UTC().Format(time.RFC3339),
			},
		})
	}

	if err = s.store.Upsert(ctx, collectionName, records); err != nil {
		return 0, fmt.Errorf("upsert chunks: %w", err)
	}

	metrics.ArchiveChunksTotal.Add(float64(len(records)))
	return len(records), nil
}

// Chunk splits markdown at heading lines, then packs each section's
// paragraphs greedily: once a chunk holds at least minChunkChars, a paragraph
// that would push it past maxChunkChars starts a new chunk, which begins with
// the previous chunk's last overlapChars characters. No chunk spans two
// sections. Paragraphs are never split, not even at sentence boundaries, so a
// chunk can exceed maxChunkChars when a paragraph is long, and a section's
// last chunk can be shorter than minChunkChars.
func Chunk(markdown string) []string {
	sections := splitHeadings(markdown)
	var chunks []string
	for _, section := range sections {
		chunks = append(chunks, chunkSection(section)...)
	}
	return chunks
}

func splitHeadings(markdown string) []string {
	lines := strings.Split(markdown, "\n")
	var sections []string
	var current strings.Builder

	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "#") && current.Len() > 0 {
			sections = append(sections, current.String())
			current.Reset()
		}
		current.WriteString(line)
		current.WriteString("\n")
	}
	if current.Len() > 0 {
		sections = append(sections, current.String())
	}
	if len(sections) == 0 {
		return []string{markdown}
	}
	return sections
}

func chunkSection(section string) []string {
	paragraphs := strings.Split(strings.TrimSpace(section), "\n\n")
	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if current.Len()+len(p) > maxChunkChars && current.Len() >= minChunkChars {
			flush()
			overlap := tailChars(current.String(), overlapChars)
			current.Reset()
			current.WriteString(overlap)
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	flush()

	if len(chunks) == 0 && strings.TrimSpace(section) != "" {
		chunks = append(chunks, strings.TrimSpace(section))
	}
	return chunks
}

func tailChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
