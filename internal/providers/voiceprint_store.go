package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hubenschmidt/meeting-ingest/gateway/internal/model"
)

// voiceprintCollection is the fixed collection name bound by VoiceprintStore.
const voiceprintCollection = "voiceprints"

// QdrantVoiceprintStore is a thin facade over VectorStore bound to the
// 192-dim voiceprint collection, per the C1 VoiceprintStore contract.
type QdrantVoiceprintStore struct {
	store VectorStore
}

// NewQdrantVoiceprintStore wraps a VectorStore for voiceprint use, ensuring
// the collection exists at construction.
func NewQdrantVoiceprintStore(ctx context.Context, store VectorStore) (*QdrantVoiceprintStore, error) {
	if err := store.EnsureCollection(ctx, voiceprintCollection, model.VoiceprintDim); err != nil {
		return nil, fmt.Errorf("ensure voiceprint collection: %w", err)
	}
	return &QdrantVoiceprintStore{store: store}, nil
}

// Register upserts one employee's voiceprint. document stores the display
// name, metadata carries employee_id and registered_at, per the persisted
// state format in §6.
func (v *QdrantVoiceprintStore) Register(ctx context.Context, rec model.VoiceprintRecord) error {
	record := model.VectorRecord{
		ID:        uuid.NewString(),
		Embedding: rec.Embedding[:],
		Document:  rec.Name,
		Metadata: map[string]any{
			"employee_id":   rec.EmployeeID,
			"registered_at": time.Now().UTC().Format(time.RFC3339),
			"text":          rec.Name,
		},
	}
	return v.store.Upsert(ctx, voiceprintCollection, []model.VectorRecord{record})
}

// MatchTop1 returns the nearest registered voiceprint, if any.
func (v *QdrantVoiceprintStore) MatchTop1(ctx context.Context, embedding [model.VoiceprintDim]float64) (VectorHit, bool, error) {
	hits, err := v.store.Query(ctx, voiceprintCollection, embedding[:], 1, nil)
	if err != nil {
		return VectorHit{}, false, err
	}
	if len(hits) == 0 {
		return VectorHit{}, false, nil
	}
	return hits[0], true, nil
}

// Count reports how many voiceprints are registered; the matcher (C5) skips
// entirely when this is zero.
func (v *QdrantVoiceprintStore) Count(ctx context.Context) (int, error) {
	qs, ok := v.store.(*QdrantStore)
	if !ok {
		return 0, fmt.Errorf("voiceprint count requires a QdrantStore backend")
	}
	return qs.CollectionPointCount(ctx, voiceprintCollection)
}
