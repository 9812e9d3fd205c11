package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// SourceConfig describes one configured raw listing source
type SourceConfig struct {
	Name     string `mapstructure:"name" json:"name"`
	Kind     string `mapstructure:"kind" json:"kind"` // "feed" or "file"
	URL      string `mapstructure:"url" json:"url,omitempty"`
	Path     string `mapstructure:"path" json:"path,omitempty"`
	Currency string `mapstructure:"currency" json:"currency,omitempty"` // default currency of the source's prices
	Enabled  bool   `mapstructure:"enabled" json:"enabled"`
}

// RawListingSource produces raw listing records for one source.
// The pipeline never depends on which site produced a record.
type RawListingSource interface {
	FetchListings(ctx context.Context, cfg SourceConfig) ([]RawListing, error)
}

// RateTable maps a currency code to the multiplier converting it to the working currency
type RateTable map[string]decimal.Decimal

// SnapshotRepository persists read-only run snapshots
type SnapshotRepository interface {
	Save(ctx context.Context, snapshot *RunSnapshot) error
	Get(ctx context.Context, runID string) (*RunSnapshot, error)
	Latest(ctx context.Context) (*RunSnapshot, error)
	// List returns up to limit summaries, newest first
	List(ctx context.Context, limit int) ([]RunSummary, error)
	// Delete removes one snapshot; ErrSnapshotMiss when it is not stored
	Delete(ctx context.Context, runID string) error
}

// Exporter writes the scored products of a snapshot to an external sink
type Exporter interface {
	Export(ctx context.Context, snapshot *RunSnapshot) error
}
