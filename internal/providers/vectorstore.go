package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hubenschmidt/meeting-ingest/gateway/internal/model"
)

// QdrantStore implements VectorStore against Qdrant's REST API. Collections
// are always created with Euclid (L2) distance so that the similarity
// conversion s = 1/(1+d) required by the spec holds uniformly across the
// archive and voiceprint collections.
type QdrantStore struct {
	url    string
	client *http.Client
}

// NewQdrantStore creates a Qdrant REST client.
func NewQdrantStore(url string, poolSize int) *QdrantStore {
	return &QdrantStore{
		url:    url,
		client: NewPooledHTTPClient(poolSize, 10*time.Second),
	}
}

// Ready probes whether Qdrant is reachable.
func (q *QdrantStore) Ready(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, "GET", q.url+"/collections", nil)
	if err != nil {
		return false
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// EnsureCollection creates a collection if it doesn't already exist.
func (q *QdrantStore) EnsureCollection(ctx context.Context, name string, dim int) error {
	body, err := json.Marshal(qdrantCreateCollection{
		Vectors: qdrantVectorConfig{Size: dim, Distance: "Euclid"},
	})
	if err != nil {
		return fmt.Errorf("marshal collection config: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "PUT", q.url+"/collections/"+name, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create collection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	defer resp.Body.Close()

	// 409 = already exists, that's fine
	if resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusOK {
		return nil
	}
	return fmt.Errorf("create collection status %d", resp.StatusCode)
}

// VectorDimension reports the vector size a collection was actually created
// with, which may differ from what a caller now expects if the collection
// pre-dates a dimension change (e.g. a switched embedding model).
func (q *QdrantStore) VectorDimension(ctx context.Context, collection string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", q.url+"/collections/"+collection, nil)
	if err != nil {
		return 0, fmt.Errorf("create collection info request: %w", err)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("collection info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("collection info status %d", resp.StatusCode)
	}

	var result qdrantCollectionInfo
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("decode collection info: %w", err)
	}
	return result.Result.Config.Params.Vectors.Size, nil
}

// Upsert inserts or updates vector records in a collection.
func (q *QdrantStore) Upsert(ctx context.Context, collection string, records []model.VectorRecord) error {
	points := make([]qdrantPoint, 0, len(records))
	for _, r := range records {
		points = append(points, qdrantPoint{ID: r.ID, Vector: r.Embedding, Payload: r.Metadata})
	}

	body, err := json.Marshal(qdrantUpsertRequest{Points: points})
	if err != nil {
		return fmt.Errorf("marshal upsert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "PUT", q.url+"/collections/"+collection+"/points", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create upsert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upsert status %d", resp.StatusCode)
	}
	return nil
}

// Query finds nearest neighbors and converts Qdrant's reported L2 distance
// into similarity via s = 1/(1+d) before returning hits.
func (q *QdrantStore) Query(ctx context.Context, collection string, vec []float64, k int, filter map[string]any) ([]VectorHit, error) {
	req := qdrantSearchRequest{
		Vector:      vec,
		Limit:       k,
		WithPayload: true,
	}
	if len(filter) > 0 {
		req.Filter = qdrantFilterFromMap(filter)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal search: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", q.url+"/collections/"+collection+"/points/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := q.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search status %d", resp.StatusCode)
	}

	var result qdrantSearchResponse
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	hits := make([]VectorHit, 0, len(result.Result))
	for _, r := range result.Result {
		hits = append(hits, VectorHit{
			ID:         r.ID,
			Similarity: 1 / (1 + r.Score),
			Metadata:   r.Payload,
		})
	}
	return hits, nil
}

// DeleteByMetadata removes every point whose payload matches all of match's
// key/value pairs. Used by the archive service to delete a source_id's prior
// chunks before re-inserting (Qdrant's REST API has no multi-op transaction).
func (q *QdrantStore) DeleteByMetadata(ctx context.Context, collection string, match map[string]any) error {
	body, err := json.Marshal(qdrantDeleteRequest{Filter: qdrantFilterFromMap(match)})
	if err != nil {
		return fmt.Errorf("marshal delete: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", q.url+"/collections/"+collection+"/points/delete", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create delete request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("delete status %d", resp.StatusCode)
	}
	return nil
}

// CollectionPointCount returns the number of points in a collection, or 0 on error.
func (q *QdrantStore) CollectionPointCount(ctx context.Context, collection string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", q.url+"/collections/"+collection, nil)
	if err != nil {
		return 0, fmt.Errorf("create collection info request: %w", err)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("collection info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("collection info status %d", resp.StatusCode)
	}

	var result qdrantCollectionInfo
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("decode collection info: %w", err)
	}
	return result.Result.PointsCount, nil
}

func qdrantFilterFromMap(match map[string]any) *qdrantFilter {
	f := &qdrantFilter{}
	for k, v := range match {
		f.Must = append(f.Must, qdrantFieldCondition{Key: k, Match: qdrantMatchValue{Value: v}})
	}
	return f
}

type qdrantPoint struct {
	ID      string                 `json:"id"`
	Vector  []float64              `json:"vector"`
	Payload map[string]interface{} `json:"payload"`
}

type qdrantCreateCollection struct {
	Vectors qdrantVectorConfig `json:"vectors"`
}

type qdrantVectorConfig struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

type qdrantUpsertRequest struct {
	Points []qdrantPoint `json:"points"`
}

type qdrantSearchRequest struct {
	Vector      []float64     `json:"vector"`
	Limit       int           `json:"limit"`
	WithPayload bool          `json:"with_payload"`
	Filter      *qdrantFilter `json:"filter,omitempty"`
}

type qdrantSearchResult struct {
	ID      string                 `json:"id"`
	Score   float64                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
}

type qdrantSearchResponse struct {
	Result []qdrantSearchResult `json:"result"`
}

type qdrantCollectionInfo struct {
	Result struct {
		PointsCount int `json:"points_count"`
		Config      struct {
			Params struct {
				Vectors qdrantVectorConfig `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

type qdrantDeleteRequest struct {
	Filter *qdrantFilter `json:"filter"`
}

type qdrantFilter struct {
	Must []qdrantFieldCondition `json:"must"`
}

type qdrantFieldCondition struct {
	Key   string           `json:"key"`
	Match qdrantMatchValue `json:"match"`
}

type qdrantMatchValue struct {
	Value any `json:"value"`
}
