package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/venue-match-go/internal/domain"
)

type execCall struct {
	query string
	args  []any
}

type fakeExecer struct {
	calls  []execCall
	failOn int
}

func (f *fakeExecer) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	f.calls = append(f.calls, execCall{query: query, args: args})
	if f.failOn > 0 && len(f.calls) == f.failOn {
		return nil, errors.New("connection lost")
	}
	return driver.RowsAffected(1), nil
}

func TestSaveMatchesUpsertsEveryVenueInOrder(t *testing.T) {
	exec := &fakeExecer{}
	repo := NewMatchRepository(zap.NewNop())
	fixed := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	n, err := repo.SaveMatches(context.Background(), exec, "run-1", domain.ProductMatches{
		"Zeta Bar":   {"Limes"},
		"Alpha Cafe": nil,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 || len(exec.calls) != 2 {
		t.Fatalf("expected 2 upserts, got %d", len(exec.calls))
	}
	if exec.calls[0].args[0] != "Alpha Cafe" || exec.calls[1].args[0] != "Zeta Bar" {
		t.Fatalf("expected venues in sorted order, got %v", exec.calls)
	}
	if !strings.Contains(exec.calls[0].query, "ON CONFLICT (venue_name)") {
		t.Fatalf("expected upsert query")
	}
	if exec.calls[0].args[2] != "run-1" || exec.calls[0].args[3] != fixed {
		t.Fatalf("unexpected run metadata: %v", exec.calls[0].args)
	}
}

func TestSaveMatchesStopsOnError(t *testing.T) {
	exec := &fakeExecer{failOn: 1}
	repo := NewMatchRepository(zap.NewNop())

	n, err := repo.SaveMatches(context.Background(), exec, "run-1", domain.ProductMatches{"A": {"x"}, "B": {"y"}})
	if err == nil || n != 0 {
		t.Fatalf("expected failure before any write, got n=%d err=%v", n, err)
	}
}

func TestEnsureSchema(t *testing.T) {
	exec := &fakeExecer{}
	if err := NewMatchRepository(zap.NewNop()).EnsureSchema(context.Background(), exec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(exec.calls[0].query, "CREATE TABLE IF NOT EXISTS venue_product_matches") {
		t.Fatalf("unexpected schema query: %s", exec.calls[0].query)
	}
}
