package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/likealocal/tips-pipeline/internal/model"
)

// container-backed integration tests, following the same TestMain +
// emulator-container shape the rest of this codebase's teacher uses for its
// Spanner-backed storage tests, adapted here to a real Postgres instance via
// testcontainers' postgres module.

var testDSN string

func TestMain(m *testing.M) {
	if os.Getenv("TIPS_SKIP_INTEGRATION") != "" {
		os.Exit(0)
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("tips"),
		postgres.WithUsername("tips"),
		postgres.WithPassword("tips"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		fmt.Printf("failed to start postgres container: %v\n", err)
		os.Exit(1)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Printf("failed to read connection string: %v\n", err)
		os.Exit(1)
	}
	testDSN = dsn

	if err := Bootstrap(ctx, testDSN); err != nil {
		fmt.Printf("failed to bootstrap schema: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	_ = container.Terminate(ctx)
	os.Exit(code)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(testDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

func TestStore_GetOrCreateLocation_IdempotentByNameCountry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	lat, lon := 48.8566, 2.3522
	loc1, err := s.GetOrCreateLocation(ctx, "Paris", "France", &lat, &lon)
	require.NoError(t, err)

	loc2, err := s.GetOrCreateLocation(ctx, "  paris ", "FRANCE", nil, nil)
	require.NoError(t, err)

	require.Equal(t, loc1.ID, loc2.ID, "case/whitespace-insensitive match must resolve to the same location")
	require.Equal(t, "Paris", loc2.Name, "first-insert casing is retained, not overwritten")
}

func TestStore_ClaimPending_TransitionsToProcessingInSubmittedOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	loc, err := s.GetOrCreateLocation(ctx, "Claim Test City", "Testland", nil, nil)
	require.NoError(t, err)

	insertTip(t, s, loc.ID, "first", 0)
	insertTip(t, s, loc.ID, "second", 1)

	claimed, err := s.ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	require.Equal(t, "first", claimed[0].RawText)
	require.Equal(t, "second", claimed[1].RawText)
	for _, tip := range claimed {
		require.Equal(t, model.TipProcessing, tip.Status)
	}
}

func TestStore_MarkProcessed_ThenListProcessed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	loc, err := s.GetOrCreateLocation(ctx, "List Processed City", "Testland", nil, nil)
	require.NoError(t, err)
	tipID := insertTip(t, s, loc.ID, "great view", 0)

	require.NoError(t, s.MarkProcessed(ctx, tipID, "en", "great view", time.Now()))

	processed, err := s.ListProcessedTips(ctx, loc.ID)
	require.NoError(t, err)
	require.Len(t, processed, 1)
	require.Equal(t, "great view", processed[0].TranslatedText)
}

func TestStore_CompensateToPending_OnlyAffectsProcessingRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	loc, err := s.GetOrCreateLocation(ctx, "Compensate City", "Testland", nil, nil)
	require.NoError(t, err)
	tipID := insertTip(t, s, loc.ID, "rainy but nice", 0)

	claimed, err := s.ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, claimed)

	require.NoError(t, s.MarkFailed(ctx, tipID, "simulated", time.Now()))
	require.NoError(t, s.CompensateToPending(ctx, []int64{tipID}))

	rows, err := s.ListProcessedTips(ctx, loc.ID)
	require.NoError(t, err)
	require.Empty(t, rows, "a failed tip must not be listed as processed")

	var status string
	require.NoError(t, s.db.QueryRow(`SELECT status FROM tips WHERE id = $1`, tipID).Scan(&status))
	require.Equal(t, string(model.TipFailed), status, "a failed (terminal) tip must not be revived by compensation")
}

func TestStore_ReplacePromotions_AtomicallyReplacesSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	loc, err := s.GetOrCreateLocation(ctx, "Promotion City", "Testland", nil, nil)
	require.NoError(t, err)

	first := []model.Promotion{{TipText: "great view", MentionCount: 3, SimilarityScore: 0.9}}
	require.NoError(t, s.ReplacePromotions(ctx, loc.ID, first, time.Now()))

	second := []model.Promotion{{TipText: "friendly staff", MentionCount: 5, SimilarityScore: 0.95}}
	require.NoError(t, s.ReplacePromotions(ctx, loc.ID, second, time.Now()))

	got, err := s.GetPromotions(ctx, loc.ID)
	require.NoError(t, err)
	require.Len(t, got, 1, "replace must remove the prior set, not append")
	require.Equal(t, "friendly staff", got[0].TipText)
}

func insertTip(t *testing.T, s *Store, locationID int64, text string, offsetSeconds int) int64 {
	t.Helper()
	var id int64
	submittedAt := time.Now().Add(time.Duration(offsetSeconds) * time.Second)
	err := s.db.QueryRow(`
		INSERT INTO tips (location_id, raw_text, status, submitted_at)
		VALUES ($1, $2, 'pending', $3)
		RETURNING id
	`, locationID, text, submittedAt).Scan(&id)
	require.NoError(t, err)
	return id
}
