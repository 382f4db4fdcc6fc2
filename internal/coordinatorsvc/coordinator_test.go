package coordinatorsvc

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/likealocal/tips-pipeline/internal/model"
	"github.com/likealocal/tips-pipeline/internal/promotion"
	"github.com/likealocal/tips-pipeline/internal/wake"
	"github.com/likealocal/tips-pipeline/internal/workerapi"
)

// fakeGateway is an in-memory stand-in for gateway.Gateway.
type fakeGateway struct {
	mu         sync.Mutex
	tips       map[int64]*model.Tip
	vectors    map[int64][]float32
	promotions map[int64][]model.Promotion
	nextID     int64
}

func newFakeGateway(tips ...model.Tip) *fakeGateway {
	g := &fakeGateway{
		tips:       make(map[int64]*model.Tip),
		vectors:    make(map[int64][]float32),
		promotions: make(map[int64][]model.Promotion),
	}
	for _, t := range tips {
		cp := t
		g.tips[t.ID] = &cp
		if t.ID >= g.nextID {
			g.nextID = t.ID + 1
		}
	}
	return g
}

func (g *fakeGateway) GetOrCreateLocation(ctx context.Context, name, country string, lat, lon *float64) (*model.Location, error) {
	return nil, fmt.Errorf("not implemented in fake")
}

func (g *fakeGateway) ClaimPending(ctx context.Context, limit int) ([]model.Tip, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []model.Tip
	for _, t := range g.tips {
		if len(out) >= limit {
			break
		}
		if t.Status == model.TipPending {
			t.Status = model.TipProcessing
			out = append(out, *t)
		}
	}
	return out, nil
}

func (g *fakeGateway) RecordResult(ctx context.Context, tipID int64, detectedLanguage, translatedText string, vector []float32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tips[tipID]
	if !ok {
		return fmt.Errorf("unknown tip %d", tipID)
	}
	t.Status = model.TipProcessed
	t.DetectedLanguage = &detectedLanguage
	t.TranslatedText = &translatedText
	g.vectors[tipID] = vector
	return nil
}

func (g *fakeGateway) RecordFailure(ctx context.Context, tipID int64, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tips[tipID]
	if !ok {
		return fmt.Errorf("unknown tip %d", tipID)
	}
	t.Status = model.TipFailed
	return nil
}

func (g *fakeGateway) CompensateToPending(ctx context.Context, tipIDs []int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range tipIDs {
		if t, ok := g.tips[id]; ok && t.Status == model.TipProcessing {
			t.Status = model.TipPending
		}
	}
	return nil
}

func (g *fakeGateway) ListProcessed(ctx context.Context, locationID int64) ([]model.ProcessedTip, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []model.ProcessedTip
	for id, t := range g.tips {
		if t.LocationID == locationID && t.Status == model.TipProcessed {
			out = append(out, model.ProcessedTip{TipID: id, TranslatedText: stringOrEmpty(t.TranslatedText), Vector: g.vectors[id]})
		}
	}
	return out, nil
}

func (g *fakeGateway) ReplacePromotions(ctx context.Context, locationID int64, promotions []model.Promotion) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.promotions[locationID] = promotions
	return nil
}

func (g *fakeGateway) GetPromotions(ctx context.Context, locationID int64) ([]model.Promotion, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.promotions[locationID], nil
}

func (g *fakeGateway) HealthPing(ctx context.Context) error { return nil }

func (g *fakeGateway) statusOf(tipID int64) model.TipStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tips[tipID].Status
}

// fakeWorker echoes each item back as a deterministic "processed" result,
// except for IDs listed in failIDs which come back as per-item errors.
type fakeWorker struct {
	failIDs map[int64]bool
	err     error
}

func (w *fakeWorker) ProcessBatch(ctx context.Context, batchIndex int, items []workerapi.BatchItem) ([]workerapi.BatchResult, error) {
	if w.err != nil {
		return nil, w.err
	}
	results := make([]workerapi.BatchResult, len(items))
	for i, item := range items {
		if w.failIDs[item.ID] {
			results[i] = workerapi.BatchResult{ID: item.ID, Error: "simulated item failure"}
			continue
		}
		results[i] = workerapi.BatchResult{
			ID:               item.ID,
			DetectedLanguage: "en",
			TranslatedText:   item.Text,
			Vector:           []float32{1, 0, 0},
		}
	}
	return results, nil
}

func testParams() Params {
	return Params{
		WakeEnabled:         false,
		PromotionEnabled:    true,
		BatchSize:           2,
		Fanout:              2,
		PerRunLimit:         100,
		MaxAttemptsPerBatch: 1,
		ShutdownGrace:       time.Second,
		Promotion:           promotion.Config{SimilarityThreshold: 0.85, MinMentions: 2},
	}
}

func pendingTips(locationID int64, n int) []model.Tip {
	out := make([]model.Tip, n)
	for i := 0; i < n; i++ {
		out[i] = model.Tip{ID: int64(i + 1), LocationID: locationID, RawText: "great view", Status: model.TipPending}
	}
	return out
}

func TestRun_EmptyClaimIsNoOp(t *testing.T) {
	gw := newFakeGateway()
	co := New(gw, &fakeWorker{}, nil, wake.Config{}, zerolog.Nop())

	result, err := co.Run(context.Background(), testParams())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Claimed != 0 || result.Processed != 0 {
		t.Fatalf("expected zero counts, got %+v", result)
	}
}

func TestRun_AllTipsProcessed(t *testing.T) {
	tips := pendingTips(1, 4)
	gw := newFakeGateway(tips...)
	co := New(gw, &fakeWorker{}, nil, wake.Config{}, zerolog.Nop())

	result, err := co.Run(context.Background(), testParams())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Processed != 4 {
		t.Fatalf("processed = %d, want 4", result.Processed)
	}
	for _, tip := range tips {
		if gw.statusOf(tip.ID) != model.TipProcessed {
			t.Fatalf("tip %d status = %v, want processed", tip.ID, gw.statusOf(tip.ID))
		}
	}
}

func TestRun_PartialItemFailure(t *testing.T) {
	tips := pendingTips(1, 4)
	gw := newFakeGateway(tips...)
	co := New(gw, &fakeWorker{failIDs: map[int64]bool{2: true}}, nil, wake.Config{}, zerolog.Nop())

	result, err := co.Run(context.Background(), testParams())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Processed != 3 || result.Failed != 1 {
		t.Fatalf("processed=%d failed=%d, want 3/1", result.Processed, result.Failed)
	}
	if gw.statusOf(2) != model.TipFailed {
		t.Fatalf("tip 2 status = %v, want failed", gw.statusOf(2))
	}
}

func TestRun_PromotesClusteredLocation(t *testing.T) {
	tips := pendingTips(1, 3)
	gw := newFakeGateway(tips...)
	co := New(gw, &fakeWorker{}, nil, wake.Config{}, zerolog.Nop())

	result, err := co.Run(context.Background(), testParams())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.LocationsPromoted != 1 {
		t.Fatalf("locations promoted = %d, want 1", result.LocationsPromoted)
	}
	promotions, _ := gw.GetPromotions(context.Background(), 1)
	if len(promotions) != 1 || promotions[0].MentionCount != 3 {
		t.Fatalf("unexpected promotions: %+v", promotions)
	}
}

func TestRun_TransportFailureMarksBatchExhausted(t *testing.T) {
	tips := pendingTips(1, 2)
	gw := newFakeGateway(tips...)
	co := New(gw, &fakeWorker{err: fmt.Errorf("connection refused")}, nil, wake.Config{}, zerolog.Nop())

	result, err := co.Run(context.Background(), testParams())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Failed != 2 {
		t.Fatalf("failed = %d, want 2", result.Failed)
	}
	for _, tip := range tips {
		if gw.statusOf(tip.ID) != model.TipFailed {
			t.Fatalf("tip %d status = %v, want failed", tip.ID, gw.statusOf(tip.ID))
		}
	}
}
