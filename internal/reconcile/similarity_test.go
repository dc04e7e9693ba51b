package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"AdMob", "admob"},
		{"Google AdMob", "googleadmob"},
		{"  ironSource ", "ironsource"},
		{"Meta Audience Network", "metaaudiencenetwork"},
		{"AppLovin-MAX", "applovinmax"},
		{"Unity_Ads 3", "unityads3"},
		{"", ""},
		{"***", ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Normalize(tc.in), "Normalize(%q)", tc.in)
	}
}

func TestLookupAlias(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		resolve bool
	}{
		{"Google AdMob", "admob", true},
		{"Facebook Audience Network", "meta", true},
		{"FAN", "meta", true},
		{"AppLovin MAX", "applovin", true},
		{"Liftoff Monetize", "vungle", true},
		{"DT Exchange", "fyber", true},
		{"totally unknown network", "", false},
	}
	for _, tc := range tests {
		got, ok := LookupAlias(tc.in)
		assert.Equal(t, tc.resolve, ok, "LookupAlias(%q)", tc.in)
		if tc.resolve {
			assert.Equal(t, tc.want, got)
		}
	}
}

func TestRankCandidatesOrdering(t *testing.T) {
	// "admob1" is one edit from "admob" and far from everything else.
	candidates := RankCandidates("admob1", Catalog)
	require.NotEmpty(t, candidates)
	assert.Equal(t, "admob", candidates[0].AdapterID)
	assert.GreaterOrEqual(t, candidates[0].Score, plausible)

	for i := 1; i < len(candidates); i++ {
		assert.GreaterOrEqual(t, candidates[i-1].Score, candidates[i].Score)
	}
}

func TestRankCandidatesEmptyName(t *testing.T) {
	assert.Nil(t, RankCandidates("", Catalog))
	assert.Nil(t, RankCandidates("###", Catalog))
}

func TestRankCandidatesNoPlausibleMatch(t *testing.T) {
	assert.Empty(t, RankCandidates("zzqqxx", Catalog))
}

func TestSimilarityBounds(t *testing.T) {
	assert.Equal(t, 1.0, similarity("admob", "admob"))
	assert.Equal(t, 0.0, similarity("", ""))
	s := similarity("admob", "vungle")
	assert.GreaterOrEqual(t, s, 0.0)
	assert.Less(t, s, plausible)
}
