package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEntityName(t *testing.T) {
	tests := []struct {
		name          string
		raw           string
		existing      []string
		want          string
		wantAmbiguous bool
	}{
		{"exact", "Sword", []string{"Sword", "Shield"}, "Sword", false},
		{"empty inventory", "Sword", nil, "Sword", false},
		{"typo", "Rottn Core", []string{"Rotten Core", "Sword"}, "Rotten Core", false},
		{"case only", "rotten core", []string{"Rotten Core"}, "Rotten Core", false},
		{"numbered items stay distinct", "Item 1", []string{"Item 2"}, "Item 1", false},
		{"numbered potion", "Potion 1", []string{"Potion 2", "Potion 3"}, "Potion 1", false},
		{"below threshold", "Axe", []string{"Sword"}, "Axe", false},
		{"ambiguous", "Healing Potin", []string{"Healing Potion", "Healing Potions"}, "Healing Potin", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ambiguous := NormalizeEntityName(tt.raw, tt.existing)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantAmbiguous, ambiguous)
		})
	}
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 20.0/21.0, similarity("rottn core", "rotten core"), 1e-9)
	assert.InDelta(t, 1.0, similarity("abc", "abc"), 1e-9)
	assert.InDelta(t, 0.0, similarity("abc", "xyz"), 1e-9)
}
