package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/shelfscout/backend/internal/domain"
)

// LatestRunID addresses the most recent snapshot
const LatestRunID = "latest"

// RunServiceConfig holds configuration for the run service
type RunServiceConfig struct {
	Sources            []domain.SourceConfig
	CollectConcurrency int
	HistoryLimit       int

	// Now and NewID are overridable for tests
	Now   func() time.Time
	NewID func() string
}

// RunService collects raw listings, runs the pipeline and serves stored snapshots.
// Flow: collect sources -> pipeline run -> persist snapshot -> export
type RunService struct {
	pipeline  *Pipeline
	sources   map[string]domain.RawListingSource // by source kind
	repo      domain.SnapshotRepository
	exporters []domain.Exporter
	cfg       RunServiceConfig
	logger    zerolog.Logger
}

// NewRunService creates a run service with dependencies
func NewRunService(
	pipeline *Pipeline,
	sources map[string]domain.RawListingSource,
	repo domain.SnapshotRepository,
	exporters []domain.Exporter,
	cfg RunServiceConfig,
	logger zerolog.Logger,
) *RunService {
	if cfg.CollectConcurrency <= 0 {
		cfg.CollectConcurrency = 4
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 20
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.New().String() }
	}

	return &RunService{
		pipeline:  pipeline,
		sources:   sources,
		repo:      repo,
		exporters: exporters,
		cfg:       cfg,
		logger:    logger.With().Str("component", "run_service").Logger(),
	}
}

// Run processes caller-supplied raw listings and stores the resulting snapshot.
// An empty-input run is still stored; the snapshot is returned with domain.ErrEmptyInputRun.
func (s *RunService) Run(ctx context.Context, raws []domain.RawListing) (*domain.RunSnapshot, error) {
	return s.run(ctx, raws, nil)
}

// Collect fetches every enabled source, then runs the pipeline over the combined
// records in configured source order. Failing sources are reported, not fatal.
func (s *RunService) Collect(ctx context.Context) (*domain.RunSnapshot, error) {
	raws, failures, err := s.collect(ctx)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, raws, failures)
}

func (s *RunService) run(ctx context.Context, raws []domain.RawListing, failures []domain.SourceFailure) (*domain.RunSnapshot, error) {
	result, runErr := s.pipeline.Run(ctx, raws)
	if runErr != nil && !errors.Is(runErr, domain.ErrEmptyInputRun) {
		return nil, runErr
	}

	result.Report.SourceFailures = failures
	snapshot := &domain.RunSnapshot{
		RunID:     s.cfg.NewID(),
		CreatedAt: s.cfg.Now().UTC(),
		Report:    result.Report,
		Groups:    result.Groups,
		Rankings:  result.Rankings,
	}

	if err := s.repo.Save(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}

	if runErr == nil {
		s.export(ctx, snapshot)
	}

	s.logger.Info().
		Str("run_id", snapshot.RunID).
		Int("valid", snapshot.Report.ValidListings).
		Int("groups", snapshot.Report.Groups).
		Int("source_failures", len(failures)).
		Msg("run stored")

	return snapshot, runErr
}

// export hands the snapshot to every exporter. Export failures are logged, never fatal.
func (s *RunService) export(ctx context.Context, snapshot *domain.RunSnapshot) {
	for _, e := range s.exporters {
		if err := e.Export(ctx, snapshot); err != nil {
			s.logger.Warn().Err(err).Str("run_id", snapshot.RunID).Msg("export failed")
		}
	}
}

// collect fetches enabled sources concurrently. Results are concatenated in
// configured order regardless of completion order.
func (s *RunService) collect(ctx context.Context) ([]domain.RawListing, []domain.SourceFailure, error) {
	var enabled []domain.SourceConfig
	for _, src := range s.cfg.Sources {
		if !src.Enabled {
			s.logger.Info().Str("source", src.Name).Msg("source disabled, skipping")
			continue
		}
		enabled = append(enabled, src)
	}

	batches := make([][]domain.RawListing, len(enabled))
	errs := make([]error, len(enabled))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.CollectConcurrency)
	for i, src := range enabled {
		g.Go(func() error {
			source, ok := s.sources[src.Kind]
			if !ok {
				errs[i] = fmt.Errorf("%w: no adapter for kind %q", domain.ErrSourceFailure, src.Kind)
				return nil
			}
			batch, err := source.FetchListings(gctx, src)
			if err != nil {
				errs[i] = err
				return nil
			}
			batches[i] = batch
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var raws []domain.RawListing
	var failures []domain.SourceFailure
	for i, src := range enabled {
		if errs[i] != nil {
			s.logger.Warn().Err(errs[i]).Str("source", src.Name).Msg("source fetch failed")
			failures = append(failures, domain.SourceFailure{Source: src.Name, Error: errs[i].Error()})
			continue
		}
		raws = append(raws, batches[i]...)
	}
	return raws, failures, nil
}

// Snapshot returns a stored run; LatestRunID returns the newest one
func (s *RunService) Snapshot(ctx context.Context, runID string) (*domain.RunSnapshot, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, domain.ErrInvalidRequest
	}

	var snapshot *domain.RunSnapshot
	var err error
	if runID == LatestRunID {
		snapshot, err = s.repo.Latest(ctx)
	} else {
		snapshot, err = s.repo.Get(ctx, runID)
	}
	if errors.Is(err, domain.ErrSnapshotMiss) {
		return nil, domain.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Delete removes a stored run and returns the ID it resolved to.
// LatestRunID deletes the most recent run.
func (s *RunService) Delete(ctx context.Context, runID string) (string, error) {
	snapshot, err := s.Snapshot(ctx, runID)
	if err != nil {
		return "", err
	}
	if err := s.repo.Delete(ctx, snapshot.RunID); err != nil {
		if errors.Is(err, domain.ErrSnapshotMiss) {
			return "", domain.ErrRunNotFound
		}
		return "", err
	}
	s.logger.Info().Str("run_id", snapshot.RunID).Msg("run deleted")
	return snapshot.RunID, nil
}

// Categories describes the taxonomy new runs are categorized with
func (s *RunService) Categories() domain.Taxonomy {
	cfg := s.pipeline.Config()
	return domain.Taxonomy{
		RulesVersion:  cfg.Rules.Version,
		Categories:    s.pipeline.Categories(),
		Uncategorized: domain.Uncategorized,
	}
}

// History returns up to limit run summaries, newest first
func (s *RunService) History(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	if limit <= 0 || limit > s.cfg.HistoryLimit {
		limit = s.cfg.HistoryLimit
	}
	return s.repo.List(ctx, limit)
}

// Rankings returns the top k products of every category of a run
func (s *RunService) Rankings(ctx context.Context, runID string, k int) ([]domain.CategoryRanking, error) {
	if k <= 0 {
		return nil, domain.ErrInvalidTopK
	}
	snapshot, err := s.Snapshot(ctx, runID)
	if err != nil {
		return nil, err
	}
	return s.pipeline.Ranker().TopKAll(snapshot.Rankings, k)
}

// TopK returns the top k products of one category of a run
func (s *RunService) TopK(ctx context.Context, runID, category string, k int) (domain.CategoryRanking, error) {
	if k <= 0 {
		return domain.CategoryRanking{}, domain.ErrInvalidTopK
	}
	snapshot, err := s.Snapshot(ctx, runID)
	if err != nil {
		return domain.CategoryRanking{}, err
	}
	ranking, ok := snapshot.Ranking(category)
	if !ok {
		return domain.CategoryRanking{}, domain.ErrCategoryNotFound
	}
	return s.pipeline.Ranker().TopK(ranking, k)
}

// Group returns one scored product of a run by group ID
func (s *RunService) Group(ctx context.Context, runID, groupID string) (*domain.ScoredProduct, error) {
	snapshot, err := s.Snapshot(ctx, runID)
	if err != nil {
		return nil, err
	}
	product, ok := findScored(snapshot, groupID)
	if !ok {
		return nil, domain.ErrGroupNotFound
	}
	return &product, nil
}

// Similar score weights
const (
	similarPriceWeight  = 0.5
	similarBrandWeight  = 0.3
	similarRatingWeight = 0.2
)

// Similar returns up to k other groups of the same category, most similar first.
// Similarity blends price closeness (1 - |p - target| / largest price in the category),
// a known-brand match, and rating closeness (1 - |r - target| / 5). A missing brand or
// rating on either side contributes nothing.
func (s *RunService) Similar(ctx context.Context, runID, groupID string, k int) ([]domain.SimilarProduct, error) {
	if k <= 0 {
		return nil, domain.ErrInvalidTopK
	}
	snapshot, err := s.Snapshot(ctx, runID)
	if err != nil {
		return nil, err
	}
	target, ok := findScored(snapshot, groupID)
	if !ok {
		return nil, domain.ErrGroupNotFound
	}
	ranking, _ := snapshot.Ranking(target.Group.Category)

	targetPrice := target.AvgMarketPrice.InexactFloat64()
	targetBrand := s.pipeline.Brand(target.Group.RepresentativeName)
	maxPrice := 0.0
	for _, p := range ranking.Products {
		maxPrice = math.Max(maxPrice, p.AvgMarketPrice.InexactFloat64())
	}

	similar := make([]domain.SimilarProduct, 0, len(ranking.Products))
	for _, p := range ranking.Products {
		if p.Group.GroupID == groupID {
			continue
		}
		price := 1.0
		if maxPrice > 0 {
			price = 1 - math.Abs(p.AvgMarketPrice.InexactFloat64()-targetPrice)/maxPrice
		}
		brand := 0.0
		if targetBrand != "" && s.pipeline.Brand(p.Group.RepresentativeName) == targetBrand {
			brand = 1
		}
		rating := 0.0
		if target.Group.BestRating != nil && p.Group.BestRating != nil {
			rating = 1 - math.Abs(*p.Group.BestRating-*target.Group.BestRating)/5
		}
		sim := similarPriceWeight*price + similarBrandWeight*brand + similarRatingWeight*rating
		similar = append(similar, domain.SimilarProduct{Product: p, Similarity: sim})
	}

	sort.SliceStable(similar, func(i, j int) bool {
		if similar[i].Similarity != similar[j].Similarity {
			return similar[i].Similarity > similar[j].Similarity
		}
		return similar[i].Product.Group.GroupID < similar[j].Product.Group.GroupID
	})
	if len(similar) > k {
		similar = similar[:k]
	}
	return similar, nil
}

// ExportRows returns the flat export rows of a run in ranking order
func (s *RunService) ExportRows(ctx context.Context, runID string) ([]domain.ExportRow, error) {
	snapshot, err := s.Snapshot(ctx, runID)
	if err != nil {
		return nil, err
	}
	return SnapshotRows(snapshot), nil
}

// SnapshotRows flattens a snapshot's rankings into export rows, category by category
func SnapshotRows(snapshot *domain.RunSnapshot) []domain.ExportRow {
	var rows []domain.ExportRow
	for _, ranking := range snapshot.Rankings {
		for i := range ranking.Products {
			rows = append(rows, ranking.Products[i].ToExportRow())
		}
	}
	return rows
}

func findScored(snapshot *domain.RunSnapshot, groupID string) (domain.ScoredProduct, bool) {
	for _, ranking := range snapshot.Rankings {
		for _, p := range ranking.Products {
			if p.Group.GroupID == groupID {
				return p, true
			}
		}
	}
	return domain.ScoredProduct{}, false
}
