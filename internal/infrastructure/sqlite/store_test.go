package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfscout/backend/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "data", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func scored(groupID, name string, avg, recommended string, score float64) domain.ScoredProduct {
	return domain.ScoredProduct{
		Group: domain.ProductGroup{
			GroupID:            groupID,
			RepresentativeName: name,
			Category:           "soft-drinks",
			Prices:             []decimal.Decimal{decimal.RequireFromString(avg)},
			SourcesCount:       1,
		},
		Score:            score,
		AvgMarketPrice:   decimal.RequireFromString(avg),
		RecommendedPrice: decimal.RequireFromString(recommended),
	}
}

func snapshot(runID string, created time.Time) *domain.RunSnapshot {
	products := []domain.ScoredProduct{
		scored("g1", "Coca-Cola 50cl", "205", "215.25", 0.9),
		scored("g2", "Pepsi 50cl", "180", "189", 0.4),
	}
	groups := []domain.ProductGroup{products[0].Group, products[1].Group}
	return &domain.RunSnapshot{
		RunID:     runID,
		CreatedAt: created,
		Report:    domain.RunReport{TotalRecords: 3, ValidListings: 3, Groups: 2, Categories: 1, RejectionsByReason: map[string]int{}},
		Groups:    groups,
		Rankings:  []domain.CategoryRanking{{Category: "soft-drinks", Products: products}},
	}
}

func TestStore_SaveAndGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	created := time.Date(2024, 5, 1, 12, 30, 0, 123, time.UTC)
	require.NoError(t, store.Save(ctx, snapshot("run-1", created)))

	got, err := store.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.Equal(t, 3, got.Report.ValidListings)
	require.Len(t, got.Rankings, 1)
	require.Len(t, got.Rankings[0].Products, 2)
	assert.True(t, decimal.RequireFromString("215.25").Equal(got.Rankings[0].Products[0].RecommendedPrice))

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrSnapshotMiss)
}

func TestStore_LatestAndList(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.Latest(ctx)
	assert.ErrorIs(t, err, domain.ErrSnapshotMiss)

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	// Saved out of chronological order
	for _, i := range []int{2, 3, 1} {
		require.NoError(t, store.Save(ctx, snapshot(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Hour))))
	}

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-3", latest.RunID)

	tests := []struct {
		name     string
		limit    int
		expected []string
	}{
		{"all", 10, []string{"run-3", "run-2", "run-1"}},
		{"limited", 2, []string{"run-3", "run-2"}},
		{"zero", 0, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summaries, err := store.List(ctx, tt.limit)
			require.NoError(t, err)
			ids := make([]string, 0, len(summaries))
			for _, s := range summaries {
				ids = append(ids, s.RunID)
			}
			assert.Equal(t, tt.expected, ids)
		})
	}

	summaries, err := store.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 2, summaries[0].Groups)
	assert.False(t, summaries[0].EmptyInput)
	assert.True(t, base.Add(3*time.Hour).Equal(summaries[0].CreatedAt))
}

func TestStore_SaveReplacesRun(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := snapshot("run-1", time.Now())
	require.NoError(t, store.Save(ctx, first))

	second := snapshot("run-1", time.Now())
	second.Rankings[0].Products = second.Rankings[0].Products[:1]
	second.Report.EmptyInput = true
	require.NoError(t, store.Save(ctx, second))

	summaries, err := store.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.True(t, summaries[0].EmptyInput)

	top, err := store.TopScores(ctx, "run-1", "soft-drinks", 10)
	require.NoError(t, err)
	assert.Len(t, top, 1)
}

func TestStore_Delete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(ctx, snapshot("run-1", now)))
	require.NoError(t, store.Save(ctx, snapshot("run-2", now.Add(time.Minute))))

	require.NoError(t, store.Delete(ctx, "run-2"))

	_, err := store.Get(ctx, "run-2")
	assert.ErrorIs(t, err, domain.ErrSnapshotMiss)
	rows, err := store.TopScores(ctx, "run-2", "soft-drinks", 5)
	require.NoError(t, err)
	assert.Empty(t, rows)

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-1", latest.RunID)

	assert.ErrorIs(t, store.Delete(ctx, "run-2"), domain.ErrSnapshotMiss)
}

func TestStore_TopScores(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, snapshot("run-1", time.Now())))

	top, err := store.TopScores(ctx, "run-1", "soft-drinks", 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "g1", top[0].GroupID)
	assert.Equal(t, "Coca-Cola 50cl", top[0].RepresentativeName)
	assert.True(t, decimal.RequireFromString("205").Equal(top[0].AvgMarketPrice))
	assert.Equal(t, 0.9, top[0].Score)

	none, err := store.TopScores(ctx, "run-1", "snacks", 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	ctx := context.Background()

	store, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, snapshot("run-1", time.Now())))
	require.NoError(t, store.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
}
