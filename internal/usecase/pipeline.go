package usecase

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/shelfscout/backend/internal/domain"
)

// Dedup iteration orders
const (
	DedupOrderInput     = "input"      // listings keep their input order
	DedupOrderScrapedAt = "scraped_at" // listings are stable-sorted by scrape time first
)

// PipelineConfig holds every knob of one pipeline run. It is treated as immutable
// once the pipeline is built.
type PipelineConfig struct {
	Workers             int
	SimilarityThreshold float64
	PriceTolerance      float64
	AmbiguityTolerance  float64
	Markup              float64
	PricePrecision      int32
	Weights             ScoreWeights
	OnSaleBonus         float64
	OutOfStockPenalty   float64
	DedupOrder          string
	ExampleLimit        int
	KnownBrands         []string
	WorkingCurrency     string
	Rates               domain.RateTable
	Rules               RuleSet
}

// DefaultPipelineConfig returns the documented defaults
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Workers:             runtime.NumCPU(),
		SimilarityThreshold: 0.8,
		PriceTolerance:      0.40,
		AmbiguityTolerance:  0.5,
		Markup:              0.05,
		PricePrecision:      2,
		Weights:             DefaultScoreWeights(),
		OnSaleBonus:         0.10,
		OutOfStockPenalty:   0.50,
		DedupOrder:          DedupOrderInput,
		ExampleLimit:        5,
		WorkingCurrency:     "NGN",
		Rules:               DefaultRuleSet(),
	}
}

// Validate checks the configuration for inconsistent values
func (c PipelineConfig) Validate() error {
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: similarity threshold %.2f outside (0,1]", domain.ErrInvalidConfig, c.SimilarityThreshold)
	}
	if c.PriceTolerance < 0 {
		return fmt.Errorf("%w: price tolerance must be >= 0", domain.ErrInvalidConfig)
	}
	if c.AmbiguityTolerance < 0 || c.AmbiguityTolerance > 1 {
		return fmt.Errorf("%w: ambiguity tolerance %.2f outside [0,1]", domain.ErrInvalidConfig, c.AmbiguityTolerance)
	}
	if c.Markup < 0 {
		return fmt.Errorf("%w: markup must be >= 0", domain.ErrInvalidConfig)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be >= 1", domain.ErrInvalidConfig)
	}
	if c.DedupOrder != DedupOrderInput && c.DedupOrder != DedupOrderScrapedAt {
		return fmt.Errorf("%w: unknown dedup order %q", domain.ErrInvalidConfig, c.DedupOrder)
	}
	for code, rate := range c.Rates {
		if !rate.IsPositive() {
			return fmt.Errorf("%w: rate for %s must be positive", domain.ErrInvalidConfig, code)
		}
	}
	return c.Weights.Validate()
}

// Pipeline runs raw listings through normalize, categorize, deduplicate, score and rank
type Pipeline struct {
	cfg          PipelineConfig
	normalizer   *Normalizer
	categorizer  *Categorizer
	deduplicator *Deduplicator
	scorer       *Scorer
	ranker       *Ranker
	logger       zerolog.Logger
}

// NewPipeline validates cfg and builds the stage components
func NewPipeline(cfg PipelineConfig, logger zerolog.Logger) (*Pipeline, error) {
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.DedupOrder == "" {
		cfg.DedupOrder = DedupOrderInput
	}
	if cfg.ExampleLimit <= 0 {
		cfg.ExampleLimit = 5
	}
	if cfg.PricePrecision <= 0 {
		cfg.PricePrecision = 2
	}
	if cfg.WorkingCurrency == "" {
		cfg.WorkingCurrency = "NGN"
	}
	if cfg.SimilarityThreshold == 0 {
		cfg.SimilarityThreshold = 0.8
	}
	if cfg.Weights == (ScoreWeights{}) {
		cfg.Weights = DefaultScoreWeights()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	categorizer, err := NewCategorizer(cfg.Rules)
	if err != nil {
		return nil, err
	}
	scorer, err := NewScorer(ScorerConfig{
		Weights:           cfg.Weights,
		OnSaleBonus:       cfg.OnSaleBonus,
		OutOfStockPenalty: cfg.OutOfStockPenalty,
		Markup:            cfg.Markup,
		PricePrecision:    cfg.PricePrecision,
	})
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		cfg:         cfg,
		normalizer:  NewNormalizer(cfg.WorkingCurrency, cfg.Rates, cfg.PricePrecision),
		categorizer: categorizer,
		deduplicator: NewDeduplicator(DedupConfig{
			SimilarityThreshold: cfg.SimilarityThreshold,
			PriceTolerance:      cfg.PriceTolerance,
			AmbiguityTolerance:  cfg.AmbiguityTolerance,
			KnownBrands:         cfg.KnownBrands,
		}),
		scorer: scorer,
		ranker: NewRanker(),
		logger: logger.With().Str("component", "pipeline").Logger(),
	}, nil
}

// Config returns the effective configuration
func (p *Pipeline) Config() PipelineConfig {
	return p.cfg
}

// Ranker returns the pipeline's ranker
func (p *Pipeline) Ranker() *Ranker {
	return p.ranker
}

// Brand returns the known brand a product name mentions, or ""
func (p *Pipeline) Brand(name string) string {
	return p.deduplicator.Brand(name)
}

// Categories lists the taxonomy categories of the rule set, in rule order
func (p *Pipeline) Categories() []string {
	return p.categorizer.Categories()
}

// normalized is one fan-out slot: either a listing or the reason it was rejected
type normalized struct {
	listing domain.Listing
	err     error
}

// Run processes one ordered batch of raw listings. Malformed records are excluded
// and counted in the report. When nothing survives normalization the empty result
// is returned together with domain.ErrEmptyInputRun.
func (p *Pipeline) Run(ctx context.Context, raws []domain.RawListing) (*domain.RunResult, error) {
	slots, err := p.normalizeAll(ctx, raws)
	if err != nil {
		return nil, err
	}

	result := &domain.RunResult{
		Report: domain.RunReport{
			TotalRecords:       len(raws),
			RejectionsByReason: make(map[string]int),
			RulesVersion:       p.categorizer.Version(),
		},
	}
	for i, slot := range slots {
		if slot.err != nil {
			p.reject(&result.Report, raws[i], i, slot.err)
			continue
		}
		result.Listings = append(result.Listings, slot.listing)
	}
	result.Report.ValidListings = len(result.Listings)

	if len(result.Listings) == 0 {
		result.Report.EmptyInput = true
		result.Listings = []domain.Listing{}
		result.Groups = []domain.ProductGroup{}
		result.Rankings = []domain.CategoryRanking{}
		p.logger.Warn().
			Int("total", result.Report.TotalRecords).
			Int("rejected", result.Report.RejectedRecords).
			Msg("run produced no valid listings")
		return result, domain.ErrEmptyInputRun
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ordered := result.Listings
	if p.cfg.DedupOrder == DedupOrderScrapedAt {
		ordered = append([]domain.Listing{}, result.Listings...)
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].ScrapedAt.Before(ordered[j].ScrapedAt)
		})
	}

	groups, scored, err := p.clusterAndScore(ctx, ordered)
	if err != nil {
		return nil, err
	}
	result.Groups = groups
	result.Rankings = p.ranker.Rank(scored)

	result.Report.Groups = len(groups)
	result.Report.Categories = len(result.Rankings)
	for _, g := range groups {
		if g.AmbiguousCategory {
			result.Report.AmbiguousGroups = append(result.Report.AmbiguousGroups, g.GroupID)
		}
	}

	p.logger.Info().
		Int("total", result.Report.TotalRecords).
		Int("valid", result.Report.ValidListings).
		Int("rejected", result.Report.RejectedRecords).
		Int("groups", result.Report.Groups).
		Int("categories", result.Report.Categories).
		Int("ambiguous", len(result.Report.AmbiguousGroups)).
		Msg("pipeline run complete")

	return result, nil
}

// normalizeAll fans normalization and categorization out over a bounded worker
// pool. Each record writes only its own slot, so input order is preserved.
func (p *Pipeline) normalizeAll(ctx context.Context, raws []domain.RawListing) ([]normalized, error) {
	slots := make([]normalized, len(raws))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for i := range raws {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			listing, err := p.normalizer.Normalize(raws[i], i)
			if err != nil {
				slots[i] = normalized{err: err}
				return nil
			}
			slots[i] = normalized{listing: p.categorizer.Categorize(listing)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return slots, nil
}

// clusterAndScore deduplicates and scores each category on its own goroutine.
// A category's clustering state is owned by exactly one goroutine.
func (p *Pipeline) clusterAndScore(ctx context.Context, listings []domain.Listing) ([]domain.ProductGroup, []domain.ScoredProduct, error) {
	buckets, categories := partitionByCategory(listings)
	sort.Strings(categories)

	groupsPer := make([][]domain.ProductGroup, len(categories))
	scoredPer := make([][]domain.ScoredProduct, len(categories))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for i, category := range categories {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			groupsPer[i] = p.deduplicator.DeduplicateCategory(buckets[category])
			scoredPer[i] = p.scorer.ScoreCategory(groupsPer[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var groups []domain.ProductGroup
	var scored []domain.ScoredProduct
	for i := range categories {
		groups = append(groups, groupsPer[i]...)
		scored = append(scored, scoredPer[i]...)
	}
	return groups, scored, nil
}

// reject records one excluded record in the report
func (p *Pipeline) reject(report *domain.RunReport, raw domain.RawListing, position int, err error) {
	rejection := domain.Rejection{
		SourceID: raw.SourceID,
		Position: position,
		Reason:   domain.ReasonMissingRequiredField,
		Detail:   err.Error(),
	}
	var rejErr *domain.RejectionError
	if errors.As(err, &rejErr) {
		rejection.Reason = rejErr.Reason
		rejection.Field = rejErr.Field
		rejection.Detail = rejErr.Detail
	}

	report.RejectedRecords++
	report.RejectionsByReason[rejection.Reason]++
	if countReason(report.Examples, rejection.Reason) < p.cfg.ExampleLimit {
		report.Examples = append(report.Examples, rejection)
	}

	p.logger.Debug().
		Str("source", raw.SourceID).
		Int("position", position).
		Str("reason", rejection.Reason).
		Str("field", rejection.Field).
		Msg("record rejected")
}

func countReason(examples []domain.Rejection, reason string) int {
	n := 0
	for _, e := range examples {
		if e.Reason == reason {
			n++
		}
	}
	return n
}
