package gateway

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/likealocal/tips-pipeline/internal/gateway/postgres"
	"github.com/likealocal/tips-pipeline/internal/gateway/weaviate"
	"github.com/likealocal/tips-pipeline/internal/model"
)

// impl wires the relational store and the vector store into the single
// Gateway contract the Coordinator and Promotion Engine depend on.
type impl struct {
	rel *postgres.Store
	vec *weaviate.VectorStore
}

// New builds a Gateway backed by Postgres (relational) and Weaviate (vectors).
// Weaviate's TipEmbedding class is bootstrapped here so the very first run
// against a fresh instance doesn't fail its first UpsertEmbedding call.
func New(db *sql.DB, vectorStoreURL string) (Gateway, error) {
	vs, err := weaviate.New(vectorStoreURL)
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	if err := vs.Bootstrap(context.Background()); err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	return &impl{rel: postgres.New(db), vec: vs}, nil
}

// NewWithStores builds a Gateway from already-constructed stores, mainly
// for tests that need a fake/in-memory vector store alongside a real
// Postgres test container.
func NewWithStores(rel *postgres.Store, vec *weaviate.VectorStore) Gateway {
	return &impl{rel: rel, vec: vec}
}

func (g *impl) GetOrCreateLocation(ctx context.Context, name, country string, lat, lon *float64) (*model.Location, error) {
	var loc *model.Location
	err := withTransientRetry(func() error {
		var err error
		loc, err = g.rel.GetOrCreateLocation(ctx, name, country, lat, lon)
		return err
	})
	return loc, err
}

func (g *impl) ClaimPending(ctx context.Context, limit int) ([]model.Tip, error) {
	var tips []model.Tip
	err := withTransientRetry(func() error {
		var err error
		tips, err = g.rel.ClaimPending(ctx, limit)
		return err
	})
	return tips, err
}

// RecordResult upserts the embedding in Weaviate first, then commits the
// relational transition to processed. Both operations are individually
// idempotent by tip_id, so a crash between the two — or a retried call with
// identical arguments — converges to the same end state without a
// cross-store distributed transaction (§4.1, §8 "Idempotence of result
// recording"). Each half retries
// locally on a classified transient error before surfacing as a run failure
// (§7).
func (g *impl) RecordResult(ctx context.Context, tipID int64, detectedLanguage, translatedText string, vector []float32) error {
	if err := withTransientRetry(func() error { return g.vec.UpsertEmbedding(ctx, tipID, vector) }); err != nil {
		return fmt.Errorf("record result: %w", err)
	}
	err := withTransientRetry(func() error {
		return g.rel.MarkProcessed(ctx, tipID, detectedLanguage, translatedText, Now())
	})
	if err != nil {
		return fmt.Errorf("record result: %w", err)
	}
	return nil
}

func (g *impl) RecordFailure(ctx context.Context, tipID int64, reason string) error {
	return withTransientRetry(func() error { return g.rel.MarkFailed(ctx, tipID, reason, Now()) })
}

func (g *impl) CompensateToPending(ctx context.Context, tipIDs []int64) error {
	return withTransientRetry(func() error { return g.rel.CompensateToPending(ctx, tipIDs) })
}

// ListProcessed joins the relational record (translated text) with the
// vector store (embedding) for every processed tip at locationID. A
// processed tip whose vector GetVectors does not return is left out of the
// result without logging; it is included again on a later call once its
// vector can be read.
func (g *impl) ListProcessed(ctx context.Context, locationID int64) ([]model.ProcessedTip, error) {
	var rows []model.ProcessedTip
	err := withTransientRetry(func() error {
		var err error
		rows, err = g.rel.ListProcessedTips(ctx, locationID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list processed: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.TipID
	}
	var vectors map[int64][]float32
	err = withTransientRetry(func() error {
		var err error
		vectors, err = g.vec.GetVectors(ctx, ids)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list processed: %w", err)
	}

	out := make([]model.ProcessedTip, 0, len(rows))
	for _, r := range rows {
		vec, ok := vectors[r.TipID]
		if !ok {
			continue
		}
		out = append(out, model.ProcessedTip{TipID: r.TipID, TranslatedText: r.TranslatedText, Vector: vec})
	}
	return out, nil
}

func (g *impl) ReplacePromotions(ctx context.Context, locationID int64, promotions []model.Promotion) error {
	return withTransientRetry(func() error {
		return g.rel.ReplacePromotions(ctx, locationID, promotions, Now())
	})
}

func (g *impl) GetPromotions(ctx context.Context, locationID int64) ([]model.Promotion, error) {
	var out []model.Promotion
	err := withTransientRetry(func() error {
		var err error
		out, err = g.rel.GetPromotions(ctx, locationID)
		return err
	})
	return out, err
}

func (g *impl) HealthPing(ctx context.Context) error {
	if err := g.rel.HealthPing(ctx); err != nil {
		return fmt.Errorf("gateway health: postgres: %w", err)
	}
	if err := g.vec.HealthPing(ctx); err != nil {
		return fmt.Errorf("gateway health: weaviate: %w", err)
	}
	return nil
}
