package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/kapu/venue-match-go/internal/domain"
)

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const createMatchesTable = `
CREATE TABLE IF NOT EXISTS venue_product_matches (
	venue_name  TEXT PRIMARY KEY,
	products    TEXT[] NOT NULL,
	run_id      TEXT NOT NULL,
	exported_at TIMESTAMPTZ NOT NULL
)`

const upsertMatch = `
INSERT INTO venue_product_matches (venue_name, products, run_id, exported_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (venue_name) DO UPDATE
SET products = EXCLUDED.products,
    run_id = EXCLUDED.run_id,
    exported_at = EXCLUDED.exported_at`

type MatchRepository struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewMatchRepository(logger *zap.Logger) *MatchRepository {
	return &MatchRepository{logger: logger, now: time.Now}
}

func (r *MatchRepository) EnsureSchema(ctx context.Context, db Execer) error {
	if _, err := db.ExecContext(ctx, createMatchesTable); err != nil {
		return fmt.Errorf("create venue_product_matches: %w", err)
	}
	return nil
}

// SaveMatches upserts one row per venue and returns the number of rows written.
func (r *MatchRepository) SaveMatches(ctx context.Context, db Execer, runID string, matches domain.ProductMatches) (int, error) {
	exportedAt := r.now().UTC()
	written := 0
	for _, venue := range matches.VenueNames() {
		products := matches[venue]
		if products == nil {
			products = []string{}
		}
		if _, err := db.ExecContext(ctx, upsertMatch, venue, pq.Array(products), runID, exportedAt); err != nil {
			return written, fmt.Errorf("upsert matches for %q: %w", venue, err)
		}
		written++
	}

	r.logger.Info("Product matches exported",
		zap.Int("venues", written),
		zap.String("run_id", runID),
	)
	return written, nil
}
