package usecase

import (
	"sort"

	"github.com/shelfscout/backend/internal/domain"
)

// Ranker orders scored products within each category
type Ranker struct{}

// NewRanker creates a ranker
func NewRanker() *Ranker {
	return &Ranker{}
}

// Rank groups scored products by category and orders each category best first.
// Categories are returned sorted by name.
func (r *Ranker) Rank(products []domain.ScoredProduct) []domain.CategoryRanking {
	byCategory := make(map[string][]domain.ScoredProduct)
	for _, p := range products {
		byCategory[p.Group.Category] = append(byCategory[p.Group.Category], p)
	}

	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	rankings := make([]domain.CategoryRanking, 0, len(categories))
	for _, c := range categories {
		ranked := byCategory[c]
		SortScored(ranked)
		rankings = append(rankings, domain.CategoryRanking{Category: c, Products: ranked})
	}
	return rankings
}

// SortScored orders products by score desc, total reviews desc, representative name
// asc, then group ID asc so that the order is total.
func SortScored(products []domain.ScoredProduct) {
	sort.SliceStable(products, func(i, j int) bool {
		a, b := products[i], products[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Group.TotalReviews != b.Group.TotalReviews {
			return a.Group.TotalReviews > b.Group.TotalReviews
		}
		if a.Group.RepresentativeName != b.Group.RepresentativeName {
			return a.Group.RepresentativeName < b.Group.RepresentativeName
		}
		return a.Group.GroupID < b.Group.GroupID
	})
}

// TopK returns the first k products of a ranking
func (r *Ranker) TopK(ranking domain.CategoryRanking, k int) (domain.CategoryRanking, error) {
	if k <= 0 {
		return domain.CategoryRanking{}, domain.ErrInvalidTopK
	}
	out := domain.CategoryRanking{Category: ranking.Category}
	n := min(k, len(ranking.Products))
	out.Products = append([]domain.ScoredProduct{}, ranking.Products[:n]...)
	return out, nil
}

// TopKAll applies TopK to every category ranking
func (r *Ranker) TopKAll(rankings []domain.CategoryRanking, k int) ([]domain.CategoryRanking, error) {
	if k <= 0 {
		return nil, domain.ErrInvalidTopK
	}
	out := make([]domain.CategoryRanking, 0, len(rankings))
	for _, ranking := range rankings {
		top, _ := r.TopK(ranking, k)
		out = append(out, top)
	}
	return out, nil
}
