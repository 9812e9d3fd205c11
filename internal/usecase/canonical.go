package usecase

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Compiled regex patterns for name canonicalization
var (
	// Matches a quantity followed by a unit, with or without a space ("50 cl", "1.5L", "500 grams")
	quantityUnitPattern = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(ml|cl|dl|l|ltr|litres?|liters?|g|gm|gms|grams?|kg|kgs|mg|oz|lbs?|pcs|pieces?|pk|packs?|ct|sachets?|tabs?|tablets?)\b`)

	// Decimal comma inside a quantity ("1,5l"); three-digit groups are thousands and left alone
	decimalCommaPattern = regexp.MustCompile(`(\d),(\d{1,2})(\D|$)`)

	// A token made only of a quantity and a canonical unit
	unitTokenPattern = regexp.MustCompile(`^\d+(?:\.\d+)?(?:ml|cl|dl|l|g|kg|mg|oz|lb|pcs|pk|ct|sachet|tab)$`)
)

// unitAliases maps spelled-out units to their canonical short form
var unitAliases = map[string]string{
	"ltr": "l", "litre": "l", "litres": "l", "liter": "l", "liters": "l",
	"gm": "g", "gms": "g", "gram": "g", "grams": "g",
	"kgs": "kg",
	"lbs": "lb",
	"piece": "pcs", "pieces": "pcs",
	"pack": "pk", "packs": "pk",
	"sachets": "sachet",
	"tabs": "tab", "tablet": "tab", "tablets": "tab",
}

// nameStopWords are dropped from canonical names: English filler plus packaging noise
var nameStopWords = map[string]bool{
	// Basic English stop words
	"a": true, "an": true, "the": true, "and": true, "or": true,
	"of": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "with": true, "by": true, "from": true, "is": true,
	// Packaging terms
	"bottle": true, "bottles": true, "can": true, "cans": true, "carton": true,
	"box": true, "bag": true, "jar": true, "tin": true, "pouch": true,
	// Marketing terms
	"new": true, "original": true, "genuine": true, "authentic": true,
	"best": true, "quality": true, "premium": true, "offer": true, "promo": true,
}

// foldText case-folds s and strips combining marks so "Café" and "CAFE" compare equal.
// Casers and transformers are stateful, so fresh ones are built per call.
func foldText(s string) string {
	folded := cases.Fold().String(s)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, folded)
	if err != nil {
		return folded
	}
	return stripped
}

// cleanDisplayName strips markup and HTML entities from a raw name and collapses whitespace
func cleanDisplayName(raw string) string {
	name := raw
	if strings.ContainsAny(name, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(name))
		if err == nil {
			name = doc.Text()
		} else {
			name = html.UnescapeString(name)
		}
	}
	return strings.Join(strings.Fields(name), " ")
}

// canonicalTokens returns the comparison tokens of a display name:
// case-folded, units joined to their quantity, punctuation removed, stop words dropped.
func canonicalTokens(name string) []string {
	s := foldText(name)
	s = decimalCommaPattern.ReplaceAllString(s, "$1.$2$3")
	s = quantityUnitPattern.ReplaceAllStringFunc(s, func(m string) string {
		parts := quantityUnitPattern.FindStringSubmatch(m)
		unit := strings.ToLower(parts[2])
		if alias, ok := unitAliases[unit]; ok {
			unit = alias
		}
		return parts[1] + unit
	})

	words := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '.'
	})

	tokens := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.Trim(w, ".")
		if w == "" {
			continue
		}
		// Single letters carry no identity; single digits are kept ("size 2")
		if len([]rune(w)) == 1 && !unicode.IsDigit([]rune(w)[0]) {
			continue
		}
		if nameStopWords[w] {
			continue
		}
		tokens = append(tokens, w)
	}
	return tokens
}

// CanonicalizeName returns the canonical comparison form of a display name
func CanonicalizeName(name string) string {
	return strings.Join(canonicalTokens(name), " ")
}

// extractUnit returns the first quantity+unit token of a canonical name, if any
func extractUnit(canonical string) string {
	for _, tok := range strings.Fields(canonical) {
		if unitTokenPattern.MatchString(tok) {
			return tok
		}
	}
	return ""
}

// keywordText folds text for keyword rule matching: punctuation becomes a space
// and the result is padded so " kw " containment tests whole words.
func keywordText(s string) string {
	words := strings.FieldsFunc(foldText(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	return " " + strings.Join(words, " ") + " "
}
