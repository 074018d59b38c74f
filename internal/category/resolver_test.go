package category

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ip(i int) *int { return &i }

func TestResolveStdSpec(t *testing.T) {
	tests := []struct {
		name      string
		std, spec *int
		all       []int
		wantStd   *int
		wantSpec  *int
	}{
		{"both absent", nil, nil, nil, nil, nil},
		{"explicit", ip(2000), ip(102183), nil, ip(2000), ip(102183)},
		{"swapped", ip(102183), ip(2040), nil, ip(2040), ip(102183)},
		{"from all", nil, nil, []int{102184, 5040}, ip(5040), ip(102184)},
		{"std only", ip(5000), nil, []int{5000}, ip(5000), nil},
		{"out of range ignored", ip(42), nil, []int{7}, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotStd, gotSpec := ResolveStdSpec(tt.std, tt.spec, tt.all)
			assert.Equal(t, tt.wantStd, gotStd)
			assert.Equal(t, tt.wantSpec, gotSpec)
		})
	}
}

func TestResolve_TotalDefaultsToOther(t *testing.T) {
	assert.Equal(t, Other, Resolve("", nil, nil, nil, nil).Key)
	assert.Equal(t, Other, Resolve("unknown", ip(42), ip(-1), []int{0, 99999999}, Mapping{}).Key)
	assert.Equal(t, Other, Resolve("ygg", nil, nil, []int{}, nil).Key)
}

func TestResolve_StandardRanges(t *testing.T) {
	tests := []struct {
		id   int
		want Key
	}{
		{2000, Film},
		{2040, Film},
		{5000, Serie},
		{5070, Anime},
		{5080, Emission},
		{3010, Audio},
		{1000, Game},
		{4050, Game},
		{7020, Book},
		{7030, Comic},
		{8010, Other},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Resolve("", ip(tt.id), nil, nil, nil).Key, "id %d", tt.id)
	}
}

func TestResolve_IndexerHeuristicsBeatStandard(t *testing.T) {
	// 102178 is animation on ygg even though the standard id says film.
	got := Resolve("YGG", ip(2000), ip(102178), []int{2000, 102178}, nil)
	assert.Equal(t, Animation, got.Key)

	// Unknown indexer falls through to standard.
	got = Resolve("other-indexer", ip(2000), ip(102178), nil, nil)
	assert.Equal(t, Film, got.Key)
}

func TestResolve_AdminMappingWins(t *testing.T) {
	mapping := Mapping{102183: {GroupKey: "spectacle", Label: "Concerts"}}
	got := Resolve("ygg", ip(2000), ip(102183), nil, mapping)
	assert.Equal(t, Spectacle, got.Key)
	assert.Equal(t, "Spectacles", got.Label)
}

func TestResolve_MappingToUnknownKeyIsOther(t *testing.T) {
	mapping := Mapping{2000: {GroupKey: "nonsense"}}
	assert.Equal(t, Other, Resolve("", ip(2000), nil, nil, mapping).Key)
}

func TestPickBestID(t *testing.T) {
	mapping := Mapping{
		2000:   {GroupKey: "films", Label: "Films"},
		2040:   {GroupKey: "films", Label: "Films HD"},
		102183: {GroupKey: "other", Label: "Divers"},
		5040:   {GroupKey: "series", Label: "Séries TV"},
	}

	id, ok := PickBestID([]int{102183, 2000, 2040}, mapping)
	require.True(t, ok)
	assert.Equal(t, 2040, id)

	// Tie on specificity goes to the lowest id.
	id, ok = PickBestID([]int{5040, 2040}, mapping)
	require.True(t, ok)
	assert.Equal(t, 2040, id)

	_, ok = PickBestID([]int{1, 2, 3}, mapping)
	assert.False(t, ok)

	_, ok = PickBestID(nil, nil)
	assert.False(t, ok)
}

func TestLookup(t *testing.T) {
	assert.Equal(t, Film, Lookup(" FILMS ").Key)
	assert.Equal(t, Other, Lookup("").Key)
	assert.True(t, Valid("comics"))
	assert.False(t, Valid("podcasts"))
}

func TestFixedExcludesOther(t *testing.T) {
	fixed := Fixed()
	assert.Len(t, fixed, len(All())-1)
	assert.NotContains(t, fixed, Other)
}

func TestCategory_MediaType(t *testing.T) {
	assert.Equal(t, "movie", Lookup("films").MediaType())
	assert.Equal(t, "series", Lookup("anime").MediaType())
	assert.Equal(t, "", Lookup("animation").MediaType())
}
