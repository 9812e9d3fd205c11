package usecase

import (
	"fmt"
	"strings"

	"github.com/shelfscout/backend/internal/domain"
)

// CategoryRule maps a category to the keywords that identify it
type CategoryRule struct {
	Category string   `mapstructure:"category" json:"category"`
	Keywords []string `mapstructure:"keywords" json:"keywords"`
}

// RuleSet is an ordered, versioned table of categorization rules.
// The first rule with a matching keyword wins.
type RuleSet struct {
	Version string         `mapstructure:"version" json:"version"`
	Rules   []CategoryRule `mapstructure:"rules" json:"rules"`
}

// DefaultRuleSet returns the built-in taxonomy used when configuration supplies none
func DefaultRuleSet() RuleSet {
	return RuleSet{
		Version: "2024.1",
		Rules: []CategoryRule{
			{Category: "beverages", Keywords: []string{"drink", "beverage", "juice", "water", "tea", "coffee", "malt"}},
			{Category: "soft-drinks", Keywords: []string{"soda", "cola", "coke", "pepsi", "fanta", "sprite", "soft drink"}},
			{Category: "detergents", Keywords: []string{"detergent", "soap", "washing", "bleach", "cleaner"}},
			{Category: "snacks", Keywords: []string{"biscuit", "snack", "chips", "cookie", "cracker", "chin chin", "plantain chips"}},
			{Category: "personal-care", Keywords: []string{"lotion", "cream", "toothpaste", "deodorant", "shampoo", "body wash"}},
			{Category: "food", Keywords: []string{"rice", "flour", "noodles", "spaghetti", "pasta", "oil", "sugar", "salt"}},
		},
	}
}

// Validate checks that every rule names a category and at least one keyword
func (rs RuleSet) Validate() error {
	if len(rs.Rules) == 0 {
		return fmt.Errorf("%w: rule set %q has no rules", domain.ErrInvalidConfig, rs.Version)
	}
	for i, r := range rs.Rules {
		if strings.TrimSpace(r.Category) == "" {
			return fmt.Errorf("%w: rule %d has no category", domain.ErrInvalidConfig, i)
		}
		if len(r.Keywords) == 0 {
			return fmt.Errorf("%w: rule %q has no keywords", domain.ErrInvalidConfig, r.Category)
		}
	}
	return nil
}

type compiledRule struct {
	category string
	keywords []string // padded, folded
}

// Categorizer assigns taxonomy categories to listings
type Categorizer struct {
	version string
	rules   []compiledRule
}

// NewCategorizer compiles a rule set. An empty rule set falls back to DefaultRuleSet.
func NewCategorizer(rs RuleSet) (*Categorizer, error) {
	if len(rs.Rules) == 0 {
		rs = DefaultRuleSet()
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}

	c := &Categorizer{version: rs.Version}
	for _, r := range rs.Rules {
		cr := compiledRule{category: strings.TrimSpace(r.Category)}
		for _, kw := range r.Keywords {
			padded := keywordText(kw)
			if strings.TrimSpace(padded) == "" {
				continue
			}
			cr.keywords = append(cr.keywords, padded)
		}
		c.rules = append(c.rules, cr)
	}
	return c, nil
}

// Version returns the version of the compiled rule set
func (c *Categorizer) Version() string {
	return c.version
}

// Categories returns the distinct category names in rule order
func (c *Categorizer) Categories() []string {
	out := make([]string, 0, len(c.rules))
	seen := make(map[string]bool, len(c.rules))
	for _, r := range c.rules {
		if !seen[r.category] {
			seen[r.category] = true
			out = append(out, r.category)
		}
	}
	return out
}

// Categorize returns a copy of the listing with Category and HintCategory set.
// The name is matched first, then the source category hint; otherwise the
// listing is uncategorized.
func (c *Categorizer) Categorize(l domain.Listing) domain.Listing {
	out := l
	out.HintCategory = c.match(l.SourceCategory)

	if category := c.match(l.RawName); category != "" {
		out.Category = category
	} else if out.HintCategory != "" {
		out.Category = out.HintCategory
	} else {
		out.Category = domain.Uncategorized
	}
	return out
}

// match returns the first rule category whose keyword occurs as whole words in text
func (c *Categorizer) match(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	folded := keywordText(text)
	for _, r := range c.rules {
		for _, kw := range r.keywords {
			if strings.Contains(folded, kw) {
				return r.category
			}
		}
	}
	return ""
}
