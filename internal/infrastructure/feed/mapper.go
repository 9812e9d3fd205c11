package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/shelfscout/backend/internal/domain"
)

// Keys under which feeds wrap their record arrays
var wrapperKeys = []string{"listings", "products", "items", "data", "results"}

// Keys carrying the scrape timestamp of a record
var scrapedAtKeys = []string{"scraped_at", "scrapedat", "timestamp", "scrape_time"}

// Accepted scrape timestamp layouts
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// DecodeListings parses a feed body into raw listings. Accepted shapes are a JSON
// array of records, an object wrapping such an array, or newline-delimited records.
// Numbers are kept as json.Number so prices are not rounded through float64.
func DecodeListings(data []byte, src domain.SourceConfig, now time.Time) ([]domain.RawListing, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var records []map[string]any
	for {
		var value any
		err := dec.Decode(&value)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "invalid feed json")
		}

		switch v := value.(type) {
		case []any:
			records = append(records, objects(v)...)
		case map[string]any:
			if inner, ok := unwrap(v); ok {
				records = append(records, objects(inner)...)
			} else {
				records = append(records, v)
			}
		default:
			return nil, eris.Errorf("unexpected feed value of type %T", value)
		}
	}

	listings := make([]domain.RawListing, 0, len(records))
	for _, r := range records {
		listings = append(listings, MapRecord(r, src, now))
	}
	return listings, nil
}

// MapRecord converts one decoded record into a RawListing tagged with the source.
// The record's own scrape time is used when present, otherwise now. A source-level
// default currency fills in records that carry none.
func MapRecord(record map[string]any, src domain.SourceConfig, now time.Time) domain.RawListing {
	fields := make(map[string]any, len(record)+1)
	scrapedAt := now.UTC()

	for k, v := range record {
		key := strings.ToLower(strings.TrimSpace(k))
		if isScrapedAtKey(key) {
			if ts, ok := parseTime(v); ok {
				scrapedAt = ts
			}
			continue
		}
		fields[k] = v
	}

	if src.Currency != "" && !hasKey(fields, "currency", "currency_code") {
		fields["currency"] = src.Currency
	}

	return domain.RawListing{
		SourceID:  src.Name,
		ScrapedAt: scrapedAt,
		Fields:    fields,
	}
}

func unwrap(obj map[string]any) ([]any, bool) {
	for _, key := range wrapperKeys {
		for k, v := range obj {
			if strings.EqualFold(k, key) {
				if arr, ok := v.([]any); ok {
					return arr, true
				}
			}
		}
	}
	return nil, false
}

func objects(values []any) []map[string]any {
	out := make([]map[string]any, 0, len(values))
	for _, v := range values {
		if obj, ok := v.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}

func isScrapedAtKey(key string) bool {
	for _, k := range scrapedAtKeys {
		if key == k {
			return true
		}
	}
	return false
}

func hasKey(fields map[string]any, keys ...string) bool {
	for k := range fields {
		for _, want := range keys {
			if strings.EqualFold(k, want) {
				return true
			}
		}
	}
	return false
}

func parseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), true
			}
		}
	case json.Number:
		if secs, err := t.Int64(); err == nil {
			return time.Unix(secs, 0).UTC(), true
		}
	case float64:
		return time.Unix(int64(t), 0).UTC(), true
	}
	return time.Time{}, false
}
