// Package postgres implements the relational half of the Persistence
// Gateway: locations, tips, and promotions. Embeddings live in
// gateway/weaviate.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/likealocal/tips-pipeline/internal/model"
)

// Store is the relational half of the Persistence Gateway.
type Store struct {
	db *sql.DB
}

// Open returns a *sql.DB using the pgx stdlib driver and verifies connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return db, nil
}

// Bootstrap runs the embedded schema against dsn; safe to call repeatedly.
func Bootstrap(ctx context.Context, dsn string) error {
	db, err := Open(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	for _, stmt := range DefaultDDLStatements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	return nil
}

// New constructs a Store from an existing DB connection.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// HealthPing validates connectivity with a trivial round-trip.
func (s *Store) HealthPing(ctx context.Context) error {
	var one int
	return s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// GetOrCreateLocation upserts by (name, country) matched case-insensitively
// after trimming; the stored name/country preserve the caller's casing on
// first insert and are not overwritten on subsequent calls.
func (s *Store) GetOrCreateLocation(ctx context.Context, name, country string, lat, lon *float64) (*model.Location, error) {
	nameKey, countryKey := normalizeKey(name), normalizeKey(country)
	if nameKey == "" || countryKey == "" {
		return nil, fmt.Errorf("location name and country must be non-empty")
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO locations (name, country, lat, lon, name_key, country_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (name_key, country_key) DO UPDATE SET name_key = EXCLUDED.name_key
		RETURNING id, name, country, lat, lon
	`, name, country, lat, lon, nameKey, countryKey)

	var loc model.Location
	if err := row.Scan(&loc.ID, &loc.Name, &loc.Country, &loc.Lat, &loc.Lon); err != nil {
		return nil, fmt.Errorf("get or create location: %w", err)
	}
	return &loc, nil
}

const claimPendingSQL = `
WITH claimed AS (
	SELECT id FROM tips
	WHERE status = 'pending'
	ORDER BY submitted_at ASC
	LIMIT $1
	FOR UPDATE SKIP LOCKED
)
UPDATE tips SET status = 'processing'
WHERE id IN (SELECT id FROM claimed)
RETURNING id, location_id, raw_text, detected_language, translated_text, status, submitted_at, processed_at
`

// ClaimPending locks and claims up to limit pending tips (§4.1), returning
// them ordered by submitted_at ascending.
func (s *Store) ClaimPending(ctx context.Context, limit int) ([]model.Tip, error) {
	if limit <= 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("claim pending: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, claimPendingSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("claim pending: %w", err)
	}
	var tips []model.Tip
	for rows.Next() {
		var t model.Tip
		if err := rows.Scan(&t.ID, &t.LocationID, &t.RawText, &t.DetectedLanguage, &t.TranslatedText, &t.Status, &t.SubmittedAt, &t.ProcessedAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("claim pending: scan: %w", err)
		}
		tips = append(tips, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim pending: rows: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("claim pending: close rows: %w", err)
	}

	// CTE above already orders the claim by submitted_at, but UPDATE...RETURNING
	// does not guarantee result order, so re-sort defensively.
	sortBySubmittedAt(tips)

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("claim pending: commit: %w", err)
	}
	return tips, nil
}

func sortBySubmittedAt(tips []model.Tip) {
	for i := 1; i < len(tips); i++ {
		for j := i; j > 0 && tips[j].SubmittedAt.Before(tips[j-1].SubmittedAt); j-- {
			tips[j], tips[j-1] = tips[j-1], tips[j]
		}
	}
}

// MarkProcessed sets a tip's detected language, translated text, status, and
// processed_at. Idempotent by tip_id: re-applying the same values is a no-op
// beyond refreshing processed_at.
func (s *Store) MarkProcessed(ctx context.Context, tipID int64, detectedLanguage, translatedText string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tips
		SET detected_language = $2, translated_text = $3, status = 'processed', processed_at = $4
		WHERE id = $1
	`, tipID, detectedLanguage, translatedText, now)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// MarkFailed sets status=failed and processed_at=now with an opaque reason.
// The reason only appears in the returned error message if the update
// fails; the schema has no column for it and it is not persisted.
func (s *Store) MarkFailed(ctx context.Context, tipID int64, reason string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tips SET status = 'failed', processed_at = $2 WHERE id = $1
	`, tipID, now)
	if err != nil {
		return fmt.Errorf("mark failed (reason=%s): %w", reason, err)
	}
	return nil
}

// CompensateToPending reverts tips from processing back to pending. Tips
// that have already reached a terminal state are left untouched, making
// this safe to call more than once or with a stale tip-ID set.
func (s *Store) CompensateToPending(ctx context.Context, tipIDs []int64) error {
	if len(tipIDs) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE tips SET status = 'pending' WHERE id = ANY($1) AND status = 'processing'
	`, tipIDs)
	if err != nil {
		return fmt.Errorf("compensate to pending: %w", err)
	}
	return nil
}

// ListProcessedTips returns (tip_id, translated_text) pairs for every
// processed tip at locationID, ordered by tip_id ascending for deterministic
// clustering tie-breaks (§4.5 step 1).
func (s *Store) ListProcessedTips(ctx context.Context, locationID int64) ([]model.ProcessedTip, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, translated_text FROM tips
		WHERE location_id = $1 AND status = 'processed'
		ORDER BY id ASC
	`, locationID)
	if err != nil {
		return nil, fmt.Errorf("list processed tips: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.ProcessedTip
	for rows.Next() {
		var pt model.ProcessedTip
		var text sql.NullString
		if err := rows.Scan(&pt.TipID, &text); err != nil {
			return nil, fmt.Errorf("list processed tips: scan: %w", err)
		}
		pt.TranslatedText = text.String
		out = append(out, pt)
	}
	return out, rows.Err()
}

// ReplacePromotions atomically deletes and re-inserts a location's promotion
// set (§4.1, "replace_promotions").
func (s *Store) ReplacePromotions(ctx context.Context, locationID int64, promotions []model.Promotion, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace promotions: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM promotions WHERE location_id = $1`, locationID); err != nil {
		return fmt.Errorf("replace promotions: delete: %w", err)
	}
	for _, p := range promotions {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO promotions (location_id, tip_text, mention_count, similarity_score, promoted_at)
			VALUES ($1, $2, $3, $4, $5)
		`, locationID, p.TipText, p.MentionCount, p.SimilarityScore, now); err != nil {
			return fmt.Errorf("replace promotions: insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace promotions: commit: %w", err)
	}
	return nil
}

// GetPromotions returns the current promotion set for a location, ordered
// by mention_count descending (matches the required index, §6).
func (s *Store) GetPromotions(ctx context.Context, locationID int64) ([]model.Promotion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, location_id, tip_text, mention_count, similarity_score, promoted_at
		FROM promotions WHERE location_id = $1
		ORDER BY mention_count DESC, similarity_score DESC, id ASC
	`, locationID)
	if err != nil {
		return nil, fmt.Errorf("get promotions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Promotion
	for rows.Next() {
		var p model.Promotion
		if err := rows.Scan(&p.ID, &p.LocationID, &p.TipText, &p.MentionCount, &p.SimilarityScore, &p.PromotedAt); err != nil {
			return nil, fmt.Errorf("get promotions: scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
