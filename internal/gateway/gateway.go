// Package gateway implements the Persistence Gateway (§4.1): idempotent
// reads/writes of locations, tips, embeddings, and promotions. The
// relational half (locations, tips, promotions) lives in Postgres
// (gateway/postgres); the vector half (embeddings) lives in Weaviate
// (gateway/weaviate) — the spec's "native vector type... performance-only
// substitution" for an array column (§3.1/§6).
package gateway

import (
	"context"
	"time"

	"github.com/likealocal/tips-pipeline/internal/model"
)

// Gateway is the full Persistence Gateway contract used by the Coordinator
// and Promotion Engine.
type Gateway interface {
	// GetOrCreateLocation upserts a Location by (name, country), matched
	// case-insensitively after trimming (§3 invariant).
	GetOrCreateLocation(ctx context.Context, name, country string, lat, lon *float64) (*model.Location, error)

	// ClaimPending returns up to limit tips with status=pending, atomically
	// transitioning them to processing, ordered by submitted_at ascending.
	ClaimPending(ctx context.Context, limit int) ([]model.Tip, error)

	// RecordResult upserts the tip's embedding and marks it processed.
	// Idempotent by tip_id: a repeated call with the same arguments leaves
	// the system in the same state as a single call.
	RecordResult(ctx context.Context, tipID int64, detectedLanguage, translatedText string, vector []float32) error

	// RecordFailure marks a tip failed with an opaque reason string.
	RecordFailure(ctx context.Context, tipID int64, reason string) error

	// CompensateToPending reverts tips from processing back to pending.
	// Idempotent and safe to call with tip IDs that are no longer processing
	// (e.g. already terminal) — those rows are left untouched.
	CompensateToPending(ctx context.Context, tipIDs []int64) error

	// ListProcessed returns every processed tip at locationID with its
	// vector, for the Promotion Engine.
	ListProcessed(ctx context.Context, locationID int64) ([]model.ProcessedTip, error)

	// ReplacePromotions atomically replaces the promotion set for a location.
	ReplacePromotions(ctx context.Context, locationID int64, promotions []model.Promotion) error

	// GetPromotions returns the current promotion set for a location.
	GetPromotions(ctx context.Context, locationID int64) ([]model.Promotion, error)

	// HealthPing reports whether the gateway's backing stores are reachable.
	HealthPing(ctx context.Context) error
}

// Now is overridable in tests; production code always uses time.Now.
var Now = time.Now
