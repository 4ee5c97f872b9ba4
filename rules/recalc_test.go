package rules

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// fakeListings backs a recalculation run with an in-memory catalog
type fakeListings struct {
	mu       sync.Mutex
	listings map[string]Context
	prices   map[string]float64
	loadErr  map[string]error
	writeErr map[string]error
}

func newFakeListings() *fakeListings {
	return &fakeListings{
		listings: make(map[string]Context),
		prices:   make(map[string]float64),
		loadErr:  make(map[string]error),
		writeErr: make(map[string]error),
	}
}

func (f *fakeListings) ListingIDs(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.listings))
	for id := range f.listings {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeListings) Load(_ context.Context, id string) (Context, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadErr[id]; err != nil {
		return nil, err
	}
	return f.listings[id], nil
}

func (f *fakeListings) WriteAdjustedPrice(_ context.Context, id string, price float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.writeErr[id]; err != nil {
		return err
	}
	f.prices[id] = price
	return nil
}

func recalcFixture(t *testing.T) (*Recalculator, *fakeListings, *Ruleset) {
	t.Helper()

	store := seedStore(t,
		&Rule{
			RuleDefinition: RuleDefinition{
				Name: "Across The Board", Priority: 10, Active: true,
				Actions: []Action{{Type: ActionFixedValue, Amount: -100}},
			},
		},
	)
	engine := newTestEngine(t, store)

	catalog := newFakeListings()
	for i := 0; i < 50; i++ {
		catalog.listings[fmt.Sprintf("listing-%02d", i)] = Context{
			"listing": map[string]any{"price": float64(100 + i*10), "condition": "used"},
		}
	}

	snapshot, err := store.ActiveRuleset(context.Background())
	if err != nil {
		t.Fatalf("ActiveRuleset failed: %v", err)
	}

	return NewRecalculator(engine, catalog, catalog, 4), catalog, snapshot
}

func TestRecalculatorRun(t *testing.T) {
	recalc, catalog, snapshot := recalcFixture(t)

	report, err := recalc.Run(context.Background(), snapshot)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Processed != 50 || report.Failed != 0 {
		t.Errorf("report = %+v, want 50 processed, 0 failed", report)
	}
	// listing-00 starts at 100 and clamps to 0; no other listing does.
	if report.Clamped != 1 {
		t.Errorf("Clamped = %d, want 1", report.Clamped)
	}

	if got := catalog.prices["listing-00"]; got != 0 {
		t.Errorf("listing-00 price = %v, want clamped 0", got)
	}
	if got := catalog.prices["listing-07"]; got != 70 {
		t.Errorf("listing-07 price = %v, want 70", got)
	}
	if got := catalog.prices["listing-49"]; got != 490 {
		t.Errorf("listing-49 price = %v, want 490", got)
	}
}

func TestRecalculatorIsIdempotent(t *testing.T) {
	recalc, catalog, snapshot := recalcFixture(t)
	ctx := context.Background()

	if _, err := recalc.Run(ctx, snapshot); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}

	first := make(map[string]float64, len(catalog.prices))
	for id, p := range catalog.prices {
		first[id] = p
	}

	if _, err := recalc.Run(ctx, snapshot); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}

	for id, p := range catalog.prices {
		if first[id] != p {
			t.Errorf("listing %s price changed across runs: %v then %v", id, first[id], p)
		}
	}
}

func TestRecalculatorCountsFailuresWithoutAborting(t *testing.T) {
	recalc, catalog, snapshot := recalcFixture(t)
	catalog.loadErr["listing-03"] = errors.New("catalog offline")
	catalog.writeErr["listing-11"] = errors.New("write refused")

	report, err := recalc.Run(context.Background(), snapshot)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Processed != 48 || report.Failed != 2 {
		t.Errorf("report = %+v, want 48 processed, 2 failed", report)
	}
	if _, wrote := catalog.prices["listing-03"]; wrote {
		t.Error("listing-03 price written despite load failure")
	}
	if got := catalog.prices["listing-12"]; got != 120 {
		t.Errorf("listing-12 price = %v, want 120 (other listings unaffected)", got)
	}
}

func TestRecalculatorAbortsOnCancellation(t *testing.T) {
	recalc, _, snapshot := recalcFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := recalc.Run(ctx, snapshot)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
}
