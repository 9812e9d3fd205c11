package usecase

import (
	"context"
	"errors"
	"sort"

	"github.com/rs/zerolog"

	"github.com/shelfscout/backend/internal/domain"
)

// Trending score weights
const (
	trendReviewGrowthWeight = 0.6
	trendRatingWeight       = 20.0
	trendSourceWeight       = 15.0
	trendPriceWeight        = 0.05
)

// TrendService compares the latest run with the one before it
type TrendService struct {
	repo   domain.SnapshotRepository
	logger zerolog.Logger
}

// NewTrendService creates a trend service over the snapshot history
func NewTrendService(repo domain.SnapshotRepository, logger zerolog.Logger) *TrendService {
	return &TrendService{
		repo:   repo,
		logger: logger.With().Str("component", "trend_service").Logger(),
	}
}

// productStats is the per-key view of one snapshot
type productStats struct {
	name    string
	price   float64
	rating  float64
	reviews int
	sources int
	seen    map[string]bool // distinct source IDs across the key's groups
}

// Trending returns the top k trending products per category. With a single stored
// run there is nothing to compare against and the result is empty.
func (s *TrendService) Trending(ctx context.Context, k int) ([]domain.CategoryTrends, error) {
	if k <= 0 {
		return nil, domain.ErrInvalidTopK
	}

	summaries, err := s.repo.List(ctx, 2)
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, domain.ErrRunNotFound
	}
	if len(summaries) < 2 {
		s.logger.Debug().Msg("only one run stored, no trends")
		return []domain.CategoryTrends{}, nil
	}

	current, err := s.get(ctx, summaries[0].RunID)
	if err != nil {
		return nil, err
	}
	previous, err := s.get(ctx, summaries[1].RunID)
	if err != nil {
		return nil, err
	}

	return topTrends(Compare(current, previous), k), nil
}

func (s *TrendService) get(ctx context.Context, runID string) (*domain.RunSnapshot, error) {
	snapshot, err := s.repo.Get(ctx, runID)
	if errors.Is(err, domain.ErrSnapshotMiss) {
		return nil, domain.ErrRunNotFound
	}
	return snapshot, err
}

// Compare computes one Trend per product of current. Products missing from previous
// keep their current price as the baseline and start from zero rating, reviews and sources.
func Compare(current, previous *domain.RunSnapshot) []domain.Trend {
	prev := snapshotStats(previous)
	curr := snapshotStats(current)

	trends := make([]domain.Trend, 0, len(curr))
	for key, c := range curr {
		p, ok := prev[key]
		if !ok {
			p = productStats{price: c.price}
		}

		priceChangePct := 0.0
		if p.price > 0 {
			priceChangePct = (c.price - p.price) / p.price * 100
		}
		reviewGrowthPct := 0.0
		if p.reviews > 0 {
			reviewGrowthPct = float64(c.reviews-p.reviews) / float64(p.reviews) * 100
		}
		ratingChange := c.rating - p.rating
		sourceChange := c.sources - p.sources

		trends = append(trends, domain.Trend{
			Key:                key.String(),
			RepresentativeName: c.name,
			Category:           key.category,
			Price:              c.price,
			PriceChangePct:     priceChangePct,
			RatingChange:       ratingChange,
			TotalReviews:       c.reviews,
			ReviewGrowthPct:    reviewGrowthPct,
			SourcesCount:       c.sources,
			SourceCountChange:  sourceChange,
			TrendingScore: trendReviewGrowthWeight*reviewGrowthPct +
				trendRatingWeight*ratingChange +
				trendSourceWeight*float64(sourceChange) -
				trendPriceWeight*priceChangePct,
		})
	}
	return trends
}

// trendKey identifies a product across runs
type trendKey struct {
	category  string
	canonical string
}

func (k trendKey) String() string {
	return k.category + "|" + k.canonical
}

// snapshotStats indexes a snapshot's products by trend key. Several groups that
// share a key are merged: prices averaged, reviews summed, sources counted once, best rating kept.
func snapshotStats(snapshot *domain.RunSnapshot) map[trendKey]productStats {
	stats := make(map[trendKey]productStats)
	counts := make(map[trendKey]int)
	for _, ranking := range snapshot.Rankings {
		for _, p := range ranking.Products {
			key := trendKey{category: p.Group.Category, canonical: CanonicalizeName(p.Group.RepresentativeName)}
			st := stats[key]
			n := counts[key]

			price := p.AvgMarketPrice.InexactFloat64()
			st.price = (st.price*float64(n) + price) / float64(n+1)
			if st.name == "" {
				st.name = p.Group.RepresentativeName
			}
			if p.Group.BestRating != nil && *p.Group.BestRating > st.rating {
				st.rating = *p.Group.BestRating
			}
			st.reviews += p.Group.TotalReviews
			if st.seen == nil {
				st.seen = make(map[string]bool)
			}
			for _, src := range p.Group.Sources {
				st.seen[src] = true
			}
			st.sources = len(st.seen)

			stats[key] = st
			counts[key] = n + 1
		}
	}
	return stats
}

// topTrends groups trends by category, orders each best first and keeps k
func topTrends(trends []domain.Trend, k int) []domain.CategoryTrends {
	byCategory := make(map[string][]domain.Trend)
	for _, t := range trends {
		byCategory[t.Category] = append(byCategory[t.Category], t)
	}

	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	out := make([]domain.CategoryTrends, 0, len(categories))
	for _, c := range categories {
		ts := byCategory[c]
		sort.SliceStable(ts, func(i, j int) bool {
			a, b := ts[i], ts[j]
			if a.TrendingScore != b.TrendingScore {
				return a.TrendingScore > b.TrendingScore
			}
			if a.TotalReviews != b.TotalReviews {
				return a.TotalReviews > b.TotalReviews
			}
			if a.RepresentativeName != b.RepresentativeName {
				return a.RepresentativeName < b.RepresentativeName
			}
			return a.Key < b.Key
		})
		if len(ts) > k {
			ts = ts[:k]
		}
		out = append(out, domain.CategoryTrends{Category: c, Trends: ts})
	}
	return out
}
