package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/shelfscout/backend/internal/domain"
)

// Search modes
const (
	SearchContains = "contains" // folded query is a substring of the field
	SearchExact    = "exact"    // folded query equals the field
	SearchFuzzy    = "fuzzy"    // query tokens approximately match field tokens
)

// fuzzyMatchThreshold is the lowest fuzzy score reported as a hit
const fuzzyMatchThreshold = 0.7

// SearchQuery filters the scored products of one run
type SearchQuery struct {
	Text     string
	Mode     string // defaults to SearchContains
	Category string
	MinPrice *decimal.Decimal // inclusive, on the average market price
	MaxPrice *decimal.Decimal // inclusive
	Limit    int
}

// Validate checks the query and fills the default mode
func (q *SearchQuery) Validate() error {
	if q.Mode == "" {
		q.Mode = SearchContains
	}
	switch q.Mode {
	case SearchContains, SearchExact, SearchFuzzy:
	default:
		return fmt.Errorf("%w: unknown search mode %q", domain.ErrInvalidRequest, q.Mode)
	}
	if q.Limit <= 0 {
		return domain.ErrInvalidTopK
	}
	if q.MinPrice != nil && q.MinPrice.IsNegative() {
		return fmt.Errorf("%w: min_price must be >= 0", domain.ErrInvalidRequest)
	}
	if q.MaxPrice != nil && q.MaxPrice.IsNegative() {
		return fmt.Errorf("%w: max_price must be >= 0", domain.ErrInvalidRequest)
	}
	if q.MinPrice != nil && q.MaxPrice != nil && q.MinPrice.GreaterThan(*q.MaxPrice) {
		return fmt.Errorf("%w: min_price above max_price", domain.ErrInvalidRequest)
	}
	return nil
}

// Search matches the query text against each product's name, category and known
// brand. An empty text matches every product that passes the filters. Hits come
// back best match first, then by opportunity score.
func (s *RunService) Search(ctx context.Context, runID string, q SearchQuery) ([]domain.SearchHit, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	snapshot, err := s.Snapshot(ctx, runID)
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(keywordText(q.Text))
	hits := []domain.SearchHit{}
	for _, ranking := range snapshot.Rankings {
		if q.Category != "" && ranking.Category != q.Category {
			continue
		}
		for _, p := range ranking.Products {
			if q.MinPrice != nil && p.AvgMarketPrice.LessThan(*q.MinPrice) {
				continue
			}
			if q.MaxPrice != nil && p.AvgMarketPrice.GreaterThan(*q.MaxPrice) {
				continue
			}
			if text == "" {
				hits = append(hits, domain.SearchHit{Product: p, MatchScore: 1})
				continue
			}

			fields := []struct{ name, value string }{
				{"name", p.Group.RepresentativeName},
				{"category", p.Group.Category},
				{"brand", s.pipeline.Brand(p.Group.RepresentativeName)},
			}
			best := domain.SearchHit{Product: p}
			for _, f := range fields {
				if f.value == "" {
					continue
				}
				if score := matchField(text, f.value, q.Mode); score > best.MatchScore {
					best.MatchScore = score
					best.MatchedOn = f.name
				}
			}
			if best.MatchScore > 0 {
				hits = append(hits, best)
			}
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.MatchScore != b.MatchScore {
			return a.MatchScore > b.MatchScore
		}
		if a.Product.Score != b.Product.Score {
			return a.Product.Score > b.Product.Score
		}
		return a.Product.Group.GroupID < b.Product.Group.GroupID
	})
	if len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}

	s.logger.Debug().
		Str("run_id", snapshot.RunID).
		Str("mode", q.Mode).
		Int("hits", len(hits)).
		Msg("search completed")
	return hits, nil
}

// matchField scores a folded query against one field; 0 means no match
func matchField(text, value, mode string) float64 {
	field := strings.TrimSpace(keywordText(value))
	switch mode {
	case SearchExact:
		if field == text {
			return 1
		}
	case SearchContains:
		if strings.Contains(field, text) {
			return 1
		}
	case SearchFuzzy:
		if score := fuzzyScore(text, field); score >= fuzzyMatchThreshold {
			return score
		}
	}
	return 0
}

// fuzzyScore is the better of whole-phrase name similarity and the mean, over
// query tokens, of each token's closest field token
func fuzzyScore(text, field string) float64 {
	fieldTokens := strings.Fields(field)
	queryTokens := strings.Fields(text)
	if len(fieldTokens) == 0 || len(queryTokens) == 0 {
		return 0
	}

	total := 0.0
	for _, qt := range queryTokens {
		closest := 0.0
		for _, ft := range fieldTokens {
			closest = max(closest, levenshteinRatio(qt, ft))
		}
		total += closest
	}
	return max(nameSimilarity(text, field), total/float64(len(queryTokens)))
}
