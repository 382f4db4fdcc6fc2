// Package weaviate implements the vector half of the Persistence Gateway:
// one object per tip holding its 384-dim embedding (§3.1). It substitutes
// for the array-typed embedding column the spec allows as a baseline
// (§3/§6), using Weaviate's native vector storage instead.
package weaviate

import (
	"context"
	"fmt"
	"strconv"

	weaviate "github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/likealocal/tips-pipeline/internal/model"
)

const className = "TipEmbedding"

// VectorStore stores and retrieves per-tip embedding vectors.
type VectorStore struct {
	client *weaviate.Client
}

// New constructs a VectorStore against a Weaviate instance at baseURL
// (host:port, no scheme, e.g. "localhost:8080").
func New(baseURL string) (*VectorStore, error) {
	cl, err := weaviate.NewClient(weaviate.Config{Scheme: "http", Host: baseURL})
	if err != nil {
		return nil, fmt.Errorf("weaviate client: %w", err)
	}
	return &VectorStore{client: cl}, nil
}

// objectID derives a deterministic Weaviate object ID from a tip ID so a
// repeated UpsertEmbedding for the same tip overwrites rather than
// duplicates (the idempotence §8 requires, enforced here instead of via a
// relational UNIQUE(tip_id) index since embeddings live outside Postgres).
func objectID(tipID int64) string {
	// Weaviate requires UUID-shaped IDs; derive a stable one from the
	// integer tip ID, 0-padded into the low bits of a fixed namespace UUID.
	return fmt.Sprintf("00000000-0000-0000-0000-%012d", tipID)
}

// Bootstrap ensures the TipEmbedding class exists. Safe to call repeatedly.
func (v *VectorStore) Bootstrap(ctx context.Context) error {
	existing, err := v.client.Schema().ClassGetter().WithClassName(className).Do(ctx)
	if err == nil && existing != nil {
		return nil
	}
	class := &models.Class{
		Class:      className,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: "tipId", DataType: []string{"int"}},
		},
	}
	if err := v.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("bootstrap %s: %w", className, err)
	}
	return nil
}

// UpsertEmbedding stores (or overwrites) the vector for tipID.
func (v *VectorStore) UpsertEmbedding(ctx context.Context, tipID int64, vector []float32) error {
	if len(vector) != model.EmbeddingDim {
		return fmt.Errorf("upsert embedding: vector has %d dims, want %d", len(vector), model.EmbeddingDim)
	}
	props := map[string]interface{}{"tipId": tipID}
	_, err := v.client.Data().Creator().
		WithClassName(className).
		WithID(objectID(tipID)).
		WithProperties(props).
		WithVector(vector).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("upsert embedding for tip %d: %w", tipID, err)
	}
	return nil
}

// GetVectors fetches vectors for the given tip IDs, returning a map keyed
// by tip ID. Tip IDs with no stored embedding, or whose fetch fails for any
// reason, are absent from the result (callers treat that as "not yet
// embedded"); the returned error is always nil.
func (v *VectorStore) GetVectors(ctx context.Context, tipIDs []int64) (map[int64][]float32, error) {
	out := make(map[int64][]float32, len(tipIDs))
	for _, id := range tipIDs {
		obj, err := v.client.Data().ObjectsGetter().
			WithClassName(className).
			WithID(objectID(id)).
			WithVector().
			Do(ctx)
		if err != nil {
			// Best-effort: any fetch error, a missing object or a transport
			// failure alike, skips this tip instead of aborting the fetch.
			continue
		}
		for _, o := range obj {
			if o == nil || len(o.Vector) == 0 {
				continue
			}
			out[id] = o.Vector
		}
	}
	return out, nil
}

// HealthPing validates connectivity against Weaviate's readiness endpoint.
func (v *VectorStore) HealthPing(ctx context.Context) error {
	ready, err := v.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		return fmt.Errorf("weaviate ready check: %w", err)
	}
	if !ready {
		return fmt.Errorf("weaviate not ready")
	}
	return nil
}

// parseObjectID recovers the tip ID encoded in a Weaviate object ID; kept
// for diagnostics/log lines, not on the hot path.
func parseObjectID(id string) (int64, error) {
	if len(id) < 13 {
		return 0, fmt.Errorf("malformed object id %q", id)
	}
	suffix := id[len(id)-12:]
	return strconv.ParseInt(suffix, 10, 64)
}
