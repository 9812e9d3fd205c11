package domain

import "time"

// Rejection describes one raw record excluded by the normalizer
type Rejection struct {
	SourceID string `json:"sourceId"`
	Position int    `json:"position"`
	Reason   string `json:"reason"`
	Field    string `json:"field,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// SourceFailure records a source that could not be fetched during collection
type SourceFailure struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// RunReport is the run-level account of what was processed and what was excluded
type RunReport struct {
	TotalRecords       int             `json:"totalRecords"`
	ValidListings      int             `json:"validListings"`
	RejectedRecords    int             `json:"rejectedRecords"`
	RejectionsByReason map[string]int  `json:"rejectionsByReason"`
	Examples           []Rejection     `json:"examples,omitempty"`
	Groups             int             `json:"groups"`
	Categories         int             `json:"categories"`
	AmbiguousGroups    []string        `json:"ambiguousGroups,omitempty"`
	SourceFailures     []SourceFailure `json:"sourceFailures,omitempty"`
	EmptyInput         bool            `json:"emptyInput"`
	RulesVersion       string          `json:"rulesVersion,omitempty"` // category rule set the run was categorized with
}

// CategoryRanking is the ordered view of one category, best first
type CategoryRanking struct {
	Category string          `json:"category"`
	Products []ScoredProduct `json:"products"`
}

// RunResult is everything one pipeline run produces
type RunResult struct {
	Listings []Listing         `json:"listings"`
	Groups   []ProductGroup    `json:"groups"`
	Rankings []CategoryRanking `json:"rankings"` // sorted by category name
	Report   RunReport         `json:"report"`
}

// RunSnapshot is the read-only, persisted view of one run
type RunSnapshot struct {
	RunID     string            `json:"runId"`
	CreatedAt time.Time         `json:"createdAt"`
	Report    RunReport         `json:"report"`
	Groups    []ProductGroup    `json:"groups"`
	Rankings  []CategoryRanking `json:"rankings"`
}

// RunSummary is a compact history entry
type RunSummary struct {
	RunID         string    `json:"runId"`
	CreatedAt     time.Time `json:"createdAt"`
	ValidListings int       `json:"validListings"`
	Groups        int       `json:"groups"`
	EmptyInput    bool      `json:"emptyInput"`
}

// Summary returns the history entry for the snapshot
func (s *RunSnapshot) Summary() RunSummary {
	return RunSummary{
		RunID:         s.RunID,
		CreatedAt:     s.CreatedAt,
		ValidListings: s.Report.ValidListings,
		Groups:        s.Report.Groups,
		EmptyInput:    s.Report.EmptyInput,
	}
}

// Ranking returns the ranking of one category
func (s *RunSnapshot) Ranking(category string) (CategoryRanking, bool) {
	for _, r := range s.Rankings {
		if r.Category == category {
			return r, true
		}
	}
	return CategoryRanking{}, false
}

// Trend compares one product between the latest run and the previous one
type Trend struct {
	Key                string  `json:"key"`
	RepresentativeName string  `json:"representativeName"`
	Category           string  `json:"category"`
	Price              float64 `json:"price"`
	PriceChangePct     float64 `json:"priceChangePct"`
	RatingChange       float64 `json:"ratingChange"`
	TotalReviews       int     `json:"totalReviews"`
	ReviewGrowthPct    float64 `json:"reviewGrowthPct"`
	SourcesCount       int     `json:"sourcesCount"`
	SourceCountChange  int     `json:"sourceCountChange"`
	TrendingScore      float64 `json:"trendingScore"`
}

// CategoryTrends is the ordered trending view of one category
type CategoryTrends struct {
	Category string  `json:"category"`
	Trends   []Trend `json:"trends"`
}

// Taxonomy is the category rule set listings are assigned with
type Taxonomy struct {
	RulesVersion  string   `json:"rulesVersion"`
	Categories    []string `json:"categories"` // in rule order
	Uncategorized string   `json:"uncategorized"`
}
