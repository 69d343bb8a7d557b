package result

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/newthinker/arena/internal/competition"
	"github.com/newthinker/arena/internal/core"
)

func makeResult(id string, mode competition.Mode, winner string, ended time.Time) competition.Result {
	res := competition.Result{
		CompetitionID: id,
		Name:          "cup " + id,
		Mode:          mode,
		StartedAt:     ended.Add(-time.Hour),
		EndedAt:       ended,
	}
	if winner != "" {
		res.Winner = &competition.CompetitorState{ID: winner}
	}
	return res
}

func TestMemoryStore_SaveAndGet(t *testing.T) {
	store := NewMemoryStore(10)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	if err := store.Save(ctx, makeResult("c1", competition.ModeTimed, "alpha", now)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Winner == nil || got.Winner.ID != "alpha" {
		t.Errorf("unexpected winner %+v", got.Winner)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, core.ErrCompetitionNotFound) {
		t.Errorf("expected ErrCompetitionNotFound, got %v", err)
	}
}

func TestMemoryStore_Duplicate(t *testing.T) {
	store := NewMemoryStore(10)
	ctx := context.Background()
	res := makeResult("c1", competition.ModeTimed, "", time.Now())

	if err := store.Save(ctx, res); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(ctx, res); !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
	if err := store.Save(ctx, competition.Result{}); err == nil {
		t.Error("expected error for empty id")
	}
}

func TestMemoryStore_ListFilters(t *testing.T) {
	store := NewMemoryStore(10)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	store.Save(ctx, makeResult("c1", competition.ModeTimed, "alpha", base))
	store.Save(ctx, makeResult("c2", competition.ModeElimination, "beta", base.Add(time.Hour)))
	store.Save(ctx, makeResult("c3", competition.ModeTimed, "beta", base.Add(2*time.Hour)))

	all, _ := store.List(ctx, ListFilter{})
	if len(all) != 3 {
		t.Fatalf("expected 3 results, got %d", len(all))
	}
	if all[0].CompetitionID != "c3" || all[2].CompetitionID != "c1" {
		t.Errorf("expected most recent first, got %s..%s", all[0].CompetitionID, all[2].CompetitionID)
	}

	timed, _ := store.List(ctx, ListFilter{Mode: competition.ModeTimed})
	if len(timed) != 2 {
		t.Errorf("expected 2 timed results, got %d", len(timed))
	}

	beta, _ := store.List(ctx, ListFilter{WinnerID: "beta"})
	if len(beta) != 2 {
		t.Errorf("expected 2 results won by beta, got %d", len(beta))
	}

	window, _ := store.List(ctx, ListFilter{From: base.Add(30 * time.Minute), To: base.Add(90 * time.Minute)})
	if len(window) != 1 || window[0].CompetitionID != "c2" {
		t.Errorf("expected only c2 in window, got %d", len(window))
	}

	n, _ := store.Count(ctx, ListFilter{Mode: competition.ModeTimed})
	if n != 2 {
		t.Errorf("expected count 2, got %d", n)
	}
}

func TestMemoryStore_Pagination(t *testing.T) {
	store := NewMemoryStore(10)
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 5; i++ {
		store.Save(ctx, makeResult(fmt.Sprintf("c%d", i), competition.ModeContinuous, "", base.Add(time.Duration(i)*time.Minute)))
	}

	page, _ := store.List(ctx, ListFilter{Limit: 2, Offset: 1})
	if len(page) != 2 {
		t.Fatalf("expected 2 results, got %d", len(page))
	}
	if page[0].CompetitionID != "c3" {
		t.Errorf("expected c3 first, got %s", page[0].CompetitionID)
	}

	empty, _ := store.List(ctx, ListFilter{Offset: 10})
	if len(empty) != 0 {
		t.Errorf("expected empty page, got %d", len(empty))
	}
}

func TestMemoryStore_MaxSize(t *testing.T) {
	store := NewMemoryStore(3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		store.Save(ctx, makeResult(fmt.Sprintf("c%d", i), competition.ModeContinuous, "", time.Now()))
	}

	n, _ := store.Count(ctx, ListFilter{})
	if n != 3 {
		t.Errorf("expected 3 results after trim, got %d", n)
	}
	if _, err := store.Get(ctx, "c0"); err == nil {
		t.Error("oldest result should be trimmed")
	}
}
