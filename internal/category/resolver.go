package category

import (
	"slices"
	"strings"
)

const (
	minStandardID = 1000
	maxStandardID = 9999
	minSpecificID = 10000
)

func isStandard(id int) bool { return id >= minStandardID && id <= maxStandardID }
func isSpecific(id int) bool { return id >= minSpecificID }

// MappingEntry is one admin override for a raw category id.
type MappingEntry struct {
	GroupKey string
	Label    string
}

// Mapping holds the admin overrides of one source, keyed by raw id.
type Mapping map[int]MappingEntry

// ResolveStdSpec decides which raw id follows the standard Newznab ranges
// (1000-9999) and which is an indexer-specific extension (>= 10000).
// Misassigned arguments are swapped back and missing ones are filled from
// all. Either result may be nil.
func ResolveStdSpec(std, spec *int, all []int) (*int, *int) {
	var outStd, outSpec *int

	for _, candidate := range []*int{std, spec} {
		if candidate == nil {
			continue
		}
		v := *candidate
		switch {
		case isStandard(v) && outStd == nil:
			outStd = &v
		case isSpecific(v) && outSpec == nil:
			outSpec = &v
		}
	}

	for _, id := range all {
		if outStd == nil && isStandard(id) {
			v := id
			outStd = &v
		}
		if outSpec == nil && isSpecific(id) {
			v := id
			outSpec = &v
		}
	}

	return outStd, outSpec
}

// Resolve maps raw ids to a canonical category. It is total: it never
// fails and falls back to Other. Priority: admin mapping, then built-in
// per-indexer heuristics, then standard ranges.
func Resolve(indexerKey string, std, spec *int, all []int, mapping Mapping) Category {
	std, spec = ResolveStdSpec(std, spec, all)

	ids := candidateIDs(std, spec, all)

	if id, ok := PickBestID(ids, mapping); ok {
		return Lookup(mapping[id].GroupKey)
	}

	if heuristics, ok := indexerHeuristics[strings.ToLower(strings.TrimSpace(indexerKey))]; ok {
		for _, id := range ids {
			if key, ok := heuristics[id]; ok {
				return Lookup(string(key))
			}
		}
	}

	for _, id := range ids {
		if key, ok := standardKey(id); ok {
			return Lookup(string(key))
		}
	}

	return Lookup(string(Other))
}

// candidateIDs lists spec, std, then the rest of all, without duplicates.
// The specific id comes first since it carries the most information.
func candidateIDs(std, spec *int, all []int) []int {
	ids := make([]int, 0, len(all)+2)
	add := func(id int) {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	if spec != nil {
		add(*spec)
	}
	if std != nil {
		add(*std)
	}
	for _, id := range all {
		add(id)
	}
	return ids
}

// PickBestID chooses among the admin-mapped ids the one with the most
// specific label. Generic labels ("Other", "Films", a root id like 2000)
// lose to specific ones; ties go to the lowest id.
func PickBestID(ids []int, mapping Mapping) (int, bool) {
	best, bestScore, found := 0, -1, false
	for _, id := range ids {
		entry, ok := mapping[id]
		if !ok {
			continue
		}
		score := specificity(id, entry)
		if score > bestScore || (score == bestScore && id < best) {
			best, bestScore, found = id, score, true
		}
	}
	return best, found
}

var genericLabels = map[string]bool{
	"":       true,
	"all":    true,
	"other":  true,
	"others": true,
	"autre":  true,
	"autres": true,
	"divers": true,
	"misc":   true,
}

func specificity(id int, entry MappingEntry) int {
	key := Lookup(entry.GroupKey).Key
	if key == Other {
		return 0
	}
	label := strings.ToLower(strings.TrimSpace(entry.Label))
	if genericLabels[label] || strings.EqualFold(label, labels[key]) || strings.EqualFold(label, string(key)) {
		return 1
	}
	if isStandard(id) && id%1000 == 0 {
		return 1
	}
	return 2
}

// standardKey maps a Newznab standard id to a canonical category.
func standardKey(id int) (Key, bool) {
	if !isStandard(id) {
		return "", false
	}
	switch id {
	case 5070:
		return Anime, true
	case 5080:
		return Emission, true
	case 7030:
		return Comic, true
	}
	switch id / 1000 {
	case 1, 4:
		return Game, true
	case 2:
		return Film, true
	case 3:
		return Audio, true
	case 5:
		return Serie, true
	case 7:
		return Book, true
	case 6, 8:
		return Other, true
	}
	return "", false
}

// indexerHeuristics maps indexer-specific ids per indexer key.
var indexerHeuristics = map[string]map[int]Key{
	"ygg": {
		102145: Game,
		102146: Audio,
		102151: Book,
		102155: Comic,
		102161: Game,
		102178: Animation,
		102179: Animation,
		102180: Emission,
		102181: Emission,
		102182: Emission,
		102183: Film,
		102184: Serie,
		102185: Spectacle,
		102186: Spectacle,
		102187: Film,
	},
	"sharewood": {
		100009: Film,
		100010: Serie,
		100011: Animation,
		100012: Anime,
		100013: Emission,
		100014: Spectacle,
		100015: Audio,
		100016: Book,
		100017: Game,
	},
}
