package filesource

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/shelfscout/backend/internal/domain"
	"github.com/shelfscout/backend/internal/infrastructure/feed"
)

// Source reads raw listings from local export files. It implements
// domain.RawListingSource for sources of kind "file".
//
// CSV files carry one record per row keyed by the header row. JSON, JSON-wrapped
// and NDJSON files use the same shapes accepted from HTTP feeds.
type Source struct {
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a file source
func New(logger zerolog.Logger) *Source {
	return &Source{
		logger: logger.With().Str("component", "filesource").Logger(),
		now:    time.Now,
	}
}

// FetchListings reads the file at src.Path
func (s *Source) FetchListings(ctx context.Context, src domain.SourceConfig) ([]domain.RawListing, error) {
	path := strings.TrimSpace(src.Path)
	if path == "" {
		return nil, fmt.Errorf("%w: source %s has no path", domain.ErrSourceFailure, src.Name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrSourceFailure, path, err)
	}

	var listings []domain.RawListing
	if isCSV(path, data) {
		listings, err = ReadCSV(bytes.NewReader(data), src, s.now())
	} else {
		listings, err = feed.DecodeListings(data, src, s.now())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrSourceFailure, path, err)
	}

	s.logger.Info().Str("source", src.Name).Str("path", path).Int("records", len(listings)).Msg("file loaded")
	return listings, nil
}

// ReadCSV decodes a CSV export whose header row names the record fields.
// Empty cells are omitted so they read as missing fields.
func ReadCSV(r io.Reader, src domain.SourceConfig, now time.Time) ([]domain.RawListing, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "read csv")
	}
	if len(rows) == 0 {
		return nil, eris.New("csv has no header row")
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	listings := make([]domain.RawListing, 0, len(rows)-1)
	for _, row := range rows[1:] {
		record := make(map[string]any, len(header))
		for i, cell := range row {
			if i >= len(header) || header[i] == "" {
				continue
			}
			if cell = strings.TrimSpace(cell); cell != "" {
				record[header[i]] = cell
			}
		}
		if len(record) == 0 {
			continue
		}
		listings = append(listings, feed.MapRecord(record, src, now))
	}
	return listings, nil
}

// isCSV decides the format from the extension, sniffing the content otherwise
func isCSV(path string, data []byte) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return true
	case ".json", ".ndjson", ".jsonl":
		return false
	}
	trimmed := bytes.TrimLeft(data, " \t\r\n\ufeff")
	return len(trimmed) == 0 || (trimmed[0] != '[' && trimmed[0] != '{')
}
