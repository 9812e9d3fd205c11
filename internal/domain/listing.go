package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Uncategorized is assigned when no categorization rule matches
const Uncategorized = "uncategorized"

// RawListing is one record as produced by a source adapter, before normalization.
// Fields holds arbitrary per-source keys with string or numeric values.
type RawListing struct {
	SourceID  string         `json:"sourceId"`
	ScrapedAt time.Time      `json:"scrapedAt"`
	Fields    map[string]any `json:"fields"`
}

// Listing is one normalized product record from one source at one point in time.
// Listings are immutable once normalized; the categorizer returns a copy.
type Listing struct {
	ID             string          `json:"id"`
	SourceID       string          `json:"sourceId"`
	RawName        string          `json:"rawName"`
	CanonicalName  string          `json:"canonicalName"`
	Category       string          `json:"category"`
	SourceCategory string          `json:"sourceCategory,omitempty"` // category hint reported by the source
	HintCategory   string          `json:"hintCategory,omitempty"`   // taxonomy category the hint alone maps to
	Price          decimal.Decimal `json:"price"`
	Unit           string          `json:"unit,omitempty"`
	Rating         *float64        `json:"rating,omitempty"` // nil when the source reports no rating
	ReviewCount    int             `json:"reviewCount"`
	OnSale         bool            `json:"onSale"`
	InStock        bool            `json:"inStock"`
	ScrapedAt      time.Time       `json:"scrapedAt"`

	// Position is the listing's index in the run's input order
	Position int `json:"-"`
}

// HasRating reports whether the source supplied a rating
func (l *Listing) HasRating() bool {
	return l.Rating != nil
}
