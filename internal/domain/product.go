package domain

import "github.com/shopspring/decimal"

// ProductGroup is a cluster of listings judged to represent the same product across sources
type ProductGroup struct {
	GroupID            string            `json:"groupId"`
	Members            []string          `json:"members"` // listing IDs in join order
	RepresentativeName string            `json:"representativeName"`
	Category           string            `json:"category"`
	Prices             []decimal.Decimal `json:"prices"` // member prices in join order
	Sources            []string          `json:"sources"` // distinct source IDs, sorted
	SourcesCount       int               `json:"sourcesCount"`
	BestRating         *float64          `json:"bestRating,omitempty"`
	TotalReviews       int               `json:"totalReviews"`
	AnyOnSale          bool              `json:"anyOnSale"`
	AllOutOfStock      bool              `json:"allOutOfStock"`

	// AmbiguousCategory is set when members' source hints disagree with Category
	// beyond the configured tolerance. It is advisory only.
	AmbiguousCategory bool `json:"ambiguousCategory,omitempty"`
}

// ScoredProduct wraps a ProductGroup with its opportunity score and pricing.
// It is derived data, rebuilt from ProductGroups on every run.
type ScoredProduct struct {
	Group            ProductGroup    `json:"group"`
	Score            float64         `json:"score"`
	AvgMarketPrice   decimal.Decimal `json:"avgMarketPrice"`
	RecommendedPrice decimal.Decimal `json:"recommendedPrice"`
}

// ExportRow is the stable field set handed to exporters
type ExportRow struct {
	GroupID            string          `json:"groupId"`
	RepresentativeName string          `json:"representativeName"`
	Category           string          `json:"category"`
	AvgMarketPrice     decimal.Decimal `json:"avgMarketPrice"`
	RecommendedPrice   decimal.Decimal `json:"recommendedPrice"`
	BestRating         *float64        `json:"bestRating,omitempty"`
	TotalReviews       int             `json:"totalReviews"`
	SourcesCount       int             `json:"sourcesCount"`
	Score              float64         `json:"score"`
}

// ToExportRow flattens a scored product into the export field set
func (s *ScoredProduct) ToExportRow() ExportRow {
	return ExportRow{
		GroupID:            s.Group.GroupID,
		RepresentativeName: s.Group.RepresentativeName,
		Category:           s.Group.Category,
		AvgMarketPrice:     s.AvgMarketPrice,
		RecommendedPrice:   s.RecommendedPrice,
		BestRating:         s.Group.BestRating,
		TotalReviews:       s.Group.TotalReviews,
		SourcesCount:       s.Group.SourcesCount,
		Score:              s.Score,
	}
}

// SimilarProduct is a same-category group scored against a reference group
type SimilarProduct struct {
	Product    ScoredProduct `json:"product"`
	Similarity float64       `json:"similarity"`
}

// SearchHit is one product matched by a search, with its match score in [0,1]
type SearchHit struct {
	Product    ScoredProduct `json:"product"`
	MatchScore float64       `json:"matchScore"`
	MatchedOn  string        `json:"matchedOn"` // name, category or brand
}
