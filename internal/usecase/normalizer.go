package usecase

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shelfscout/backend/internal/domain"
)

// Field aliases accepted from raw records, in lookup priority order
var (
	nameKeys     = []string{"name", "product_name", "title"}
	priceKeys    = []string{"price", "current_price", "sale_price"}
	currencyKeys = []string{"currency", "currency_code"}
	unitKeys     = []string{"unit", "size"}
	categoryKeys = []string{"category", "category_hint"}
	ratingKeys   = []string{"rating", "stars"}
	reviewKeys   = []string{"review_count", "reviews", "num_reviews"}
	stockKeys    = []string{"in_stock", "availability", "stock"}
	saleKeys     = []string{"on_sale", "is_on_sale"}
	discountKeys = []string{"discount_percentage", "discount_percent", "discount"}
	oldPriceKeys = []string{"old_price", "original_price", "was_price"}
	idKeys       = []string{"id", "product_id", "sku", "url"}
)

var (
	// Digit groups separated by spaces ("1 250 000") are joined before parsing
	spacedThousandsPattern = regexp.MustCompile(`(\d)[\s\x{00A0}]+(\d{3})\b`)
	// First numeric run of a price string
	priceNumberPattern = regexp.MustCompile(`\d[\d.,]*`)
	// First decimal number in free text ("4.5 out of 5")
	ratingPattern = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	// First integer count in free text ("(1,204 reviews)")
	countPattern = regexp.MustCompile(`\d[\d,]*`)
)

// currencySymbols maps symbols found in raw price strings to currency codes
var currencySymbols = []struct {
	symbol string
	code   string
}{
	{"₦", "NGN"},
	{"US$", "USD"},
	{"$", "USD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"GH₵", "GHS"},
	{"KSh", "KES"},
}

// noStockMarkers are availability phrases meaning the item cannot be bought
var noStockMarkers = []string{"out of stock", "sold out", "unavailable", "not available"}

// listingNamespace seeds deterministic listing IDs
var listingNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("shelfscout/listing"))

// Normalizer maps raw per-source records into canonical Listings.
// It is a pure function of the record and the rate table it was built with.
type Normalizer struct {
	workingCurrency string
	rates           domain.RateTable
	precision       int32
}

// NewNormalizer creates a normalizer converting prices into workingCurrency using rates
func NewNormalizer(workingCurrency string, rates domain.RateTable, precision int32) *Normalizer {
	if precision <= 0 {
		precision = 2
	}
	copied := make(domain.RateTable, len(rates))
	for code, rate := range rates {
		copied[strings.ToUpper(code)] = rate
	}
	return &Normalizer{
		workingCurrency: strings.ToUpper(workingCurrency),
		rates:           copied,
		precision:       precision,
	}
}

// Normalize converts one raw record at the given input position into a Listing.
// Rejections are *domain.RejectionError values.
func (n *Normalizer) Normalize(raw domain.RawListing, position int) (domain.Listing, error) {
	sourceID := strings.TrimSpace(raw.SourceID)
	if sourceID == "" {
		return domain.Listing{}, reject(domain.ReasonMissingRequiredField, "sourceId", "")
	}

	fields := lowerKeys(raw.Fields)

	rawName, _ := lookupString(fields, nameKeys)
	name := cleanDisplayName(rawName)
	if name == "" {
		return domain.Listing{}, reject(domain.ReasonMissingRequiredField, "name", "")
	}

	priceValue, ok := lookup(fields, priceKeys)
	if !ok || isBlank(priceValue) {
		return domain.Listing{}, reject(domain.ReasonMissingRequiredField, "price", "")
	}
	currency, _ := lookupString(fields, currencyKeys)
	price, err := n.parsePrice(priceValue, currency)
	if err != nil {
		return domain.Listing{}, err
	}

	canonical := CanonicalizeName(name)
	unit, _ := lookupString(fields, unitKeys)
	unit = strings.TrimSpace(unit)
	if unit == "" {
		unit = extractUnit(canonical)
	}
	hint, _ := lookupString(fields, categoryKeys)
	rawID, _ := lookupString(fields, idKeys)

	listing := domain.Listing{
		ID:             listingID(sourceID, position, rawID),
		SourceID:       sourceID,
		RawName:        name,
		CanonicalName:  canonical,
		Category:       domain.Uncategorized,
		SourceCategory: strings.TrimSpace(cleanDisplayName(hint)),
		Price:          price,
		Unit:           unit,
		Rating:         parseRating(fields),
		ReviewCount:    parseReviewCount(fields),
		InStock:        parseInStock(fields),
		ScrapedAt:      raw.ScrapedAt.UTC(),
		Position:       position,
	}
	listing.OnSale = n.parseOnSale(fields, price, currency)

	return listing, nil
}

// parsePrice extracts the first numeric value of a price and converts it to the working currency
func (n *Normalizer) parsePrice(value any, currency string) (decimal.Decimal, error) {
	amount, symbolCode, err := parseAmount(value)
	if err != nil {
		return decimal.Zero, err
	}

	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" {
		code = symbolCode
	}
	if code == "" || code == n.workingCurrency {
		return amount, nil
	}

	rate, ok := n.rates[code]
	if !ok {
		return decimal.Zero, reject(domain.ReasonUnparsablePrice, "currency", fmt.Sprintf("no rate for %s", code))
	}
	return amount.Mul(rate).Round(n.precision), nil
}

// parseOnSale reads an explicit sale flag, a positive discount, or an old price above the current one
func (n *Normalizer) parseOnSale(fields map[string]any, price decimal.Decimal, currency string) bool {
	if v, ok := lookup(fields, saleKeys); ok {
		if b, ok := parseBool(v); ok {
			return b
		}
	}
	if v, ok := lookup(fields, discountKeys); ok {
		if d, _, err := parseAmount(v); err == nil && d.IsPositive() {
			return true
		}
	}
	if v, ok := lookup(fields, oldPriceKeys); ok && !isBlank(v) {
		if old, err := n.parsePrice(v, currency); err == nil && old.GreaterThan(price) {
			return true
		}
	}
	return false
}

// parseAmount turns a numeric field or a free-text price into a non-negative decimal.
// It also reports the currency code implied by a symbol in the text, if any.
func parseAmount(value any) (decimal.Decimal, string, error) {
	switch v := value.(type) {
	case float64:
		return decimal.NewFromFloat(v).Abs(), "", nil
	case float32:
		return decimal.NewFromFloat32(v).Abs(), "", nil
	case int:
		return decimal.NewFromInt(int64(v)).Abs(), "", nil
	case int64:
		return decimal.NewFromInt(v).Abs(), "", nil
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.Zero, "", reject(domain.ReasonUnparsablePrice, "price", v.String())
		}
		return d.Abs(), "", nil
	}

	text := toString(value)
	code := ""
	for _, cs := range currencySymbols {
		if strings.Contains(text, cs.symbol) {
			code = cs.code
			break
		}
	}

	for spacedThousandsPattern.MatchString(text) {
		text = spacedThousandsPattern.ReplaceAllString(text, "$1$2")
	}
	match := priceNumberPattern.FindString(text)
	if match == "" {
		return decimal.Zero, "", reject(domain.ReasonUnparsablePrice, "price", text)
	}

	d, err := decimal.NewFromString(normalizeSeparators(match))
	if err != nil {
		return decimal.Zero, "", reject(domain.ReasonUnparsablePrice, "price", text)
	}
	return d.Abs(), code, nil
}

// normalizeSeparators resolves thousands and decimal separators into a plain decimal string.
// With both '.' and ',' present the last one is the decimal separator. A lone separator
// followed by exactly three digits, or repeated, is a thousands separator unless
// the integer part is a bare zero.
func normalizeSeparators(s string) string {
	s = strings.TrimRight(s, ".,")
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastDot > lastComma {
			return strings.ReplaceAll(s, ",", "")
		}
		return strings.Replace(strings.ReplaceAll(s, ".", ""), ",", ".", 1)
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 || len(s)-lastComma-1 == 3 {
			return strings.ReplaceAll(s, ",", "")
		}
		return strings.Replace(s, ",", ".", 1)
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 || (len(s)-lastDot-1 == 3 && s[:lastDot] != "0") {
			return strings.ReplaceAll(s, ".", "")
		}
	}
	return s
}

// parseRating returns nil when the rating is missing or outside 0–5
func parseRating(fields map[string]any) *float64 {
	v, ok := lookup(fields, ratingKeys)
	if !ok || isBlank(v) {
		return nil
	}

	var rating float64
	switch r := v.(type) {
	case float64:
		rating = r
	case int:
		rating = float64(r)
	case json.Number:
		f, err := r.Float64()
		if err != nil {
			return nil
		}
		rating = f
	default:
		match := ratingPattern.FindString(toString(v))
		if match == "" {
			return nil
		}
		f, err := strconv.ParseFloat(strings.Replace(match, ",", ".", 1), 64)
		if err != nil {
			return nil
		}
		rating = f
	}

	if rating < 0 || rating > 5 {
		return nil
	}
	return &rating
}

// parseReviewCount defaults to 0 when the count is missing or unreadable
func parseReviewCount(fields map[string]any) int {
	v, ok := lookup(fields, reviewKeys)
	if !ok {
		return 0
	}
	switch r := v.(type) {
	case float64:
		return max(int(r), 0)
	case int:
		return max(r, 0)
	case json.Number:
		if i, err := r.Int64(); err == nil {
			return max(int(i), 0)
		}
		if f, err := r.Float64(); err == nil {
			return max(int(f), 0)
		}
		return 0
	}
	match := countPattern.FindString(toString(v))
	if match == "" {
		return 0
	}
	count, err := strconv.Atoi(strings.ReplaceAll(match, ",", ""))
	if err != nil {
		return 0
	}
	return count
}

// parseInStock defaults to true; only an explicit negative marks the listing out of stock
func parseInStock(fields map[string]any) bool {
	v, ok := lookup(fields, stockKeys)
	if !ok || isBlank(v) {
		return true
	}
	if b, ok := parseBool(v); ok {
		return b
	}
	text := strings.ToLower(toString(v))
	for _, marker := range noStockMarkers {
		if strings.Contains(text, marker) {
			return false
		}
	}
	return true
}

// parseBool reads booleans and their common string spellings
func parseBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case float64:
		return b != 0, true
	case int:
		return b != 0, true
	case json.Number:
		return b.String() != "0", true
	}
	switch strings.ToLower(strings.TrimSpace(toString(v))) {
	case "true", "yes", "y", "1":
		return true, true
	case "false", "no", "n", "0":
		return false, true
	}
	return false, false
}

// listingID derives a stable ID from the record's origin and input position
func listingID(sourceID string, position int, rawID string) string {
	key := fmt.Sprintf("%s|%d|%s", sourceID, position, strings.TrimSpace(rawID))
	return uuid.NewSHA1(listingNamespace, []byte(key)).String()
}

func reject(reason, field, detail string) *domain.RejectionError {
	return &domain.RejectionError{Reason: reason, Field: field, Detail: detail}
}

func lowerKeys(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

func lookup(fields map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := fields[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func lookupString(fields map[string]any, keys []string) (string, bool) {
	v, ok := lookup(fields, keys)
	if !ok {
		return "", false
	}
	return toString(v), true
}

func isBlank(v any) bool {
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case bool:
		return strconv.FormatBool(s)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}
