package usecase

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/shelfscout/backend/internal/domain"
)

// ScoreWeights are the composite score weights; they must sum to 1
type ScoreWeights struct {
	Rating  float64 `mapstructure:"rating" json:"rating"`
	Reviews float64 `mapstructure:"reviews" json:"reviews"`
	Sources float64 `mapstructure:"sources" json:"sources"`
}

// DefaultScoreWeights returns the documented default weights
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{Rating: 0.40, Reviews: 0.30, Sources: 0.30}
}

// Validate checks the weights are non-negative and sum to 1
func (w ScoreWeights) Validate() error {
	if w.Rating < 0 || w.Reviews < 0 || w.Sources < 0 {
		return fmt.Errorf("%w: score weights must be non-negative", domain.ErrInvalidConfig)
	}
	if sum := w.Rating + w.Reviews + w.Sources; math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("%w: score weights sum to %.4f, want 1", domain.ErrInvalidConfig, sum)
	}
	return nil
}

// ScorerConfig holds scoring and pricing policy
type ScorerConfig struct {
	Weights           ScoreWeights
	OnSaleBonus       float64 // multiplier bonus when any member is on sale
	OutOfStockPenalty float64 // fraction removed when every member is out of stock
	Markup            float64 // recommended price markup over the average market price
	PricePrecision    int32   // decimal places of reported prices
}

// Scorer computes opportunity scores and recommended prices for product groups
type Scorer struct {
	weights   ScoreWeights
	bonus     float64
	penalty   float64
	markup    decimal.Decimal
	precision int32
}

// NewScorer creates a scorer. Weights left entirely zero fall back to the defaults.
func NewScorer(cfg ScorerConfig) (*Scorer, error) {
	if cfg.Weights == (ScoreWeights{}) {
		cfg.Weights = DefaultScoreWeights()
	}
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	if cfg.OnSaleBonus < 0 || cfg.OutOfStockPenalty < 0 || cfg.OutOfStockPenalty > 1 {
		return nil, fmt.Errorf("%w: bonus must be >= 0 and penalty within [0,1]", domain.ErrInvalidConfig)
	}
	if cfg.Markup < 0 {
		return nil, fmt.Errorf("%w: markup must be >= 0", domain.ErrInvalidConfig)
	}
	if cfg.PricePrecision <= 0 {
		cfg.PricePrecision = 2
	}

	return &Scorer{
		weights:   cfg.Weights,
		bonus:     cfg.OnSaleBonus,
		penalty:   cfg.OutOfStockPenalty,
		markup:    decimal.NewFromFloat(1 + cfg.Markup),
		precision: cfg.PricePrecision,
	}, nil
}

// categoryMax holds the per-category maxima used for min-max scaling
type categoryMax struct {
	reviews int
	sources int
}

// ScoreCategory scores every group of one category. Review and source counts are
// scaled against the largest value observed among these groups.
func (s *Scorer) ScoreCategory(groups []domain.ProductGroup) []domain.ScoredProduct {
	var m categoryMax
	for _, g := range groups {
		m.reviews = max(m.reviews, g.TotalReviews)
		m.sources = max(m.sources, g.SourcesCount)
	}

	scored := make([]domain.ScoredProduct, 0, len(groups))
	for _, g := range groups {
		scored = append(scored, s.score(g, m))
	}
	return scored
}

func (s *Scorer) score(g domain.ProductGroup, m categoryMax) domain.ScoredProduct {
	rating := 0.0
	if g.BestRating != nil {
		rating = *g.BestRating / 5
	}

	score := s.weights.Rating*rating +
		s.weights.Reviews*ratio(g.TotalReviews, m.reviews) +
		s.weights.Sources*ratio(g.SourcesCount, m.sources)

	if g.AnyOnSale {
		score *= 1 + s.bonus
	}
	if g.AllOutOfStock {
		score *= 1 - s.penalty
	}

	avg := s.AveragePrice(g.Prices)
	return domain.ScoredProduct{
		Group:            g,
		Score:            clamp01(score),
		AvgMarketPrice:   avg,
		RecommendedPrice: s.RecommendedPrice(avg),
	}
}

// AveragePrice returns the mean member price rounded to the configured precision
func (s *Scorer) AveragePrice(prices []decimal.Decimal) decimal.Decimal {
	if len(prices) == 0 {
		return decimal.Zero
	}
	sum := decimal.Sum(prices[0], prices[1:]...)
	return sum.DivRound(decimal.NewFromInt(int64(len(prices))), s.precision)
}

// RecommendedPrice applies the markup to an average market price
func (s *Scorer) RecommendedPrice(avg decimal.Decimal) decimal.Decimal {
	return avg.Mul(s.markup).Round(s.precision)
}

// ratio scales v against the category maximum; a zero maximum yields 0
func ratio(v, maximum int) float64 {
	if maximum <= 0 {
		return 0
	}
	return float64(v) / float64(maximum)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
