package usecase

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/shelfscout/backend/internal/domain"
)

// nameSimilarity scores two canonical names in [0,1] with an aligned token-sort ratio.
//
// Both names are split into token sets. The shared tokens are sorted and placed
// first, followed by each side's remaining tokens in sorted order. The two aligned
// strings are compared with a rune-level Levenshtein ratio:
//
//	1 - distance(a', b') / max(len(a'), len(b'))
//
// Word order and duplicated words therefore do not matter, while every extra word
// on either side costs similarity. A name with no tokens matches nothing.
func nameSimilarity(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	var shared, onlyA, onlyB []string
	for t := range ta {
		if tb[t] {
			shared = append(shared, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range tb {
		if !ta[t] {
			onlyB = append(onlyB, t)
		}
	}
	sort.Strings(shared)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	alignedA := strings.Join(append(append([]string{}, shared...), onlyA...), " ")
	alignedB := strings.Join(append(append([]string{}, shared...), onlyB...), " ")
	return levenshteinRatio(alignedA, alignedB)
}

// tokenSet returns the distinct whitespace-separated tokens of s
func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range strings.Fields(s) {
		set[t] = true
	}
	return set
}

// levenshteinRatio scores a against b as 1 - editDistance/longerLength over runes.
// The distance is computed in a single DP row; diag holds the previous row's
// value for the column to the left.
func levenshteinRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}
	if len(ra) == 0 {
		return 1
	}

	row := make([]int, len(rb)+1)
	for j := range row {
		row[j] = j
	}
	for i, ca := range ra {
		diag := row[0]
		row[0] = i + 1
		for j, cb := range rb {
			above := row[j+1]
			if ca == cb {
				row[j+1] = diag
			} else {
				row[j+1] = 1 + min(diag, above, row[j])
			}
			diag = above
		}
	}
	return 1 - float64(row[len(rb)])/float64(len(ra))
}

// withinPriceBand reports whether two prices differ by at most tolerance,
// measured relative to the larger price. Two zero prices are always within band.
func withinPriceBand(a, b decimal.Decimal, tolerance float64) bool {
	larger := decimal.Max(a, b)
	if larger.IsZero() {
		return true
	}
	diff := a.Sub(b).Abs()
	return diff.Div(larger).LessThanOrEqual(decimal.NewFromFloat(tolerance))
}

// listingSimilarity is name similarity gated by the price band: prices too far
// apart force zero regardless of how well the names match.
// Names made only of stop words are compared by their folded raw names.
func listingSimilarity(a, b *domain.Listing, tolerance float64) float64 {
	if !withinPriceBand(a.Price, b.Price, tolerance) {
		return 0
	}
	if a.CanonicalName == "" || b.CanonicalName == "" {
		return nameSimilarity(keywordText(a.RawName), keywordText(b.RawName))
	}
	return nameSimilarity(a.CanonicalName, b.CanonicalName)
}
