package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"hyphenated brand", "Coca-Cola 50cl", "coca cola 50cl"},
		{"spaced unit", "Coca Cola 50 cl", "coca cola 50cl"},
		{"unit alias", "Golden Penny Spaghetti 500 Grams", "golden penny spaghetti 500g"},
		{"decimal comma", "Eva Water 1,5L", "eva water 1.5l"},
		{"stop words and packaging", "The Original Peak Milk in a Tin", "peak milk"},
		{"diacritics folded", "Nestlé CAFÉ Coffee", "nestle cafe coffee"},
		{"punctuation stripped", "Indomie (Chicken) Noodles, 70g!", "indomie chicken noodles 70g"},
		{"single letters dropped, digits kept", "Pampers Size 2 x", "pampers size 2"},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CanonicalizeName(tt.input))
		})
	}
}

func TestCleanDisplayName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"collapses whitespace", "  Coca   Cola \t 50cl ", "Coca Cola 50cl"},
		{"html entities", "Procter &amp; Gamble Ariel", "Procter & Gamble Ariel"},
		{"markup stripped", "<b>Milo</b> <span>400g</span>", "Milo 400g"},
		{"non-breaking space entity", "Peak&nbsp;Milk", "Peak Milk"},
		{"plain text untouched", "Dettol Soap", "Dettol Soap"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, cleanDisplayName(tt.input))
		})
	}
}

func TestExtractUnit(t *testing.T) {
	assert.Equal(t, "50cl", extractUnit("coca cola 50cl"))
	assert.Equal(t, "1.5l", extractUnit("eva water 1.5l 6pk"))
	assert.Equal(t, "", extractUnit("dettol soap"))
}

func TestKeywordText(t *testing.T) {
	assert.Equal(t, " coca cola 50cl ", keywordText("Coca-Cola 50cl"))
	assert.Equal(t, "  ", keywordText(""))
}
