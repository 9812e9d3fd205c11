package usecase

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/shelfscout/backend/internal/domain"
)

// groupNamespace seeds deterministic group IDs
var groupNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("shelfscout/group"))

// DedupConfig holds deduplication tuning parameters
type DedupConfig struct {
	SimilarityThreshold float64  // minimum similarity to join a group
	PriceTolerance      float64  // maximum relative price gap before similarity is forced to 0
	AmbiguityTolerance  float64  // share of disagreeing category hints tolerated per group
	KnownBrands         []string // brand phrases counted as recognized tokens
}

// Deduplicator clusters listings of the same product into ProductGroups
type Deduplicator struct {
	threshold          float64
	tolerance          float64
	ambiguityTolerance float64
	brands             []string // padded, folded
}

// DefaultDedupConfig returns the documented clustering defaults
func DefaultDedupConfig() DedupConfig {
	return DedupConfig{
		SimilarityThreshold: 0.8,
		PriceTolerance:      0.40,
		AmbiguityTolerance:  0.5,
	}
}

// NewDeduplicator creates a deduplicator. Values are used as given: a zero
// price tolerance only merges equal prices.
func NewDeduplicator(cfg DedupConfig) *Deduplicator {
	d := &Deduplicator{
		threshold:          cfg.SimilarityThreshold,
		tolerance:          cfg.PriceTolerance,
		ambiguityTolerance: cfg.AmbiguityTolerance,
	}
	for _, b := range cfg.KnownBrands {
		if padded := keywordText(b); strings.TrimSpace(padded) != "" {
			d.brands = append(d.brands, padded)
		}
	}
	return d
}

// groupState is the clustering state of one group while its category is processed
type groupState struct {
	group       domain.ProductGroup
	rep         *domain.Listing
	repTokens   int
	sources     map[string]bool
	hinted      int
	disagreeing int
}

// Deduplicate partitions listings into groups. Listings are processed in the given
// order; groups are returned ordered by category name, then creation order.
func (d *Deduplicator) Deduplicate(listings []domain.Listing) []domain.ProductGroup {
	buckets, order := partitionByCategory(listings)
	sort.Strings(order)

	var groups []domain.ProductGroup
	for _, category := range order {
		groups = append(groups, d.DeduplicateCategory(buckets[category])...)
	}
	return groups
}

// DeduplicateCategory runs the greedy single-pass clustering over listings that all
// share one category. Each listing joins the group whose representative it matches
// best, provided the similarity reaches the threshold; ties go to the earlier group.
// Otherwise it starts a new singleton group.
func (d *Deduplicator) DeduplicateCategory(listings []domain.Listing) []domain.ProductGroup {
	var states []*groupState

	for i := range listings {
		l := &listings[i]

		best := -1
		bestSim := 0.0
		for gi, st := range states {
			// Category gate: never merge across categories
			if st.group.Category != l.Category {
				continue
			}
			sim := listingSimilarity(l, st.rep, d.tolerance)
			if sim >= d.threshold && sim > bestSim {
				best = gi
				bestSim = sim
			}
		}

		if best < 0 {
			states = append(states, d.newGroup(l))
			continue
		}
		d.join(states[best], l)
	}

	groups := make([]domain.ProductGroup, 0, len(states))
	for _, st := range states {
		st.group.Sources = make([]string, 0, len(st.sources))
		for src := range st.sources {
			st.group.Sources = append(st.group.Sources, src)
		}
		sort.Strings(st.group.Sources)
		st.group.SourcesCount = len(st.group.Sources)
		st.group.AmbiguousCategory = st.hinted > 0 &&
			float64(st.disagreeing)/float64(st.hinted) > d.ambiguityTolerance
		groups = append(groups, st.group)
	}
	return groups
}

func (d *Deduplicator) newGroup(l *domain.Listing) *groupState {
	st := &groupState{
		group: domain.ProductGroup{
			GroupID:            uuid.NewSHA1(groupNamespace, []byte(l.ID)).String(),
			RepresentativeName: l.RawName,
			Category:           l.Category,
			AllOutOfStock:      true,
		},
		rep:       l,
		repTokens: d.recognizedTokens(l),
		sources:   make(map[string]bool),
	}
	d.add(st, l)
	return st
}

func (d *Deduplicator) join(st *groupState, l *domain.Listing) {
	d.add(st, l)

	// Prefer the name with more recognized unit and brand tokens, then the shorter one
	tokens := d.recognizedTokens(l)
	if tokens > st.repTokens ||
		(tokens == st.repTokens && len([]rune(l.RawName)) < len([]rune(st.rep.RawName))) {
		st.rep = l
		st.repTokens = tokens
		st.group.RepresentativeName = l.RawName
	}
}

// add folds one listing's attributes into the group aggregate
func (d *Deduplicator) add(st *groupState, l *domain.Listing) {
	g := &st.group
	g.Members = append(g.Members, l.ID)
	g.Prices = append(g.Prices, l.Price)
	g.TotalReviews += l.ReviewCount
	g.AnyOnSale = g.AnyOnSale || l.OnSale
	g.AllOutOfStock = g.AllOutOfStock && !l.InStock
	if l.Rating != nil && (g.BestRating == nil || *l.Rating > *g.BestRating) {
		r := *l.Rating
		g.BestRating = &r
	}
	st.sources[l.SourceID] = true

	if l.HintCategory != "" {
		st.hinted++
		if l.HintCategory != g.Category {
			st.disagreeing++
		}
	}
}

// recognizedTokens counts unit tokens and known brand phrases in a listing's name
func (d *Deduplicator) recognizedTokens(l *domain.Listing) int {
	count := 0
	for _, tok := range strings.Fields(l.CanonicalName) {
		if unitTokenPattern.MatchString(tok) {
			count++
		}
	}
	text := keywordText(l.CanonicalName)
	for _, b := range d.brands {
		if strings.Contains(text, b) {
			count++
		}
	}
	return count
}

// Brand returns the first known brand phrase found in name, or "" when none matches
func (d *Deduplicator) Brand(name string) string {
	text := keywordText(name)
	for _, b := range d.brands {
		if strings.Contains(text, b) {
			return strings.TrimSpace(b)
		}
	}
	return ""
}

// partitionByCategory buckets listings by category, keeping input order inside each bucket.
// The second return value lists categories in first-seen order.
func partitionByCategory(listings []domain.Listing) (map[string][]domain.Listing, []string) {
	buckets := make(map[string][]domain.Listing)
	var order []string
	for _, l := range listings {
		if _, ok := buckets[l.Category]; !ok {
			order = append(order, l.Category)
		}
		buckets[l.Category] = append(buckets[l.Category], l)
	}
	return buckets, order
}
