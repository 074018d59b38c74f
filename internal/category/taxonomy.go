// Package category resolves raw indexer category ids to the canonical
// releasarr taxonomy.
package category

import "strings"

// Key identifies a canonical category. Keys are stored in the database
// and must never change.
type Key string

const (
	Film      Key = "films"
	Serie     Key = "series"
	Emission  Key = "emissions"
	Spectacle Key = "spectacle"
	Game      Key = "games"
	Animation Key = "animation"
	Anime     Key = "anime"
	Audio     Key = "audio"
	Book      Key = "books"
	Comic     Key = "comics"
	Other     Key = "other"
)

// Category is a canonical category with its display label.
type Category struct {
	Key   Key    `json:"key"`
	Label string `json:"label"`
}

var labels = map[Key]string{
	Film:      "Films",
	Serie:     "Séries",
	Emission:  "Émissions",
	Spectacle: "Spectacles",
	Game:      "Jeux",
	Animation: "Animation",
	Anime:     "Anime",
	Audio:     "Audio",
	Book:      "Livres",
	Comic:     "BD",
	Other:     "Autre",
}

// ordered is the canonical display order.
var ordered = []Key{Film, Serie, Emission, Spectacle, Game, Animation, Anime, Audio, Book, Comic, Other}

// All returns every canonical category in display order.
func All() []Category {
	out := make([]Category, len(ordered))
	for i, k := range ordered {
		out[i] = Category{Key: k, Label: labels[k]}
	}
	return out
}

// Fixed returns the categories subject to per-category retention: every
// canonical category except Other.
func Fixed() []Key {
	return ordered[:len(ordered)-1]
}

// Lookup returns the category for key. Unknown keys resolve to Other.
func Lookup(key string) Category {
	k := Key(strings.ToLower(strings.TrimSpace(key)))
	if label, ok := labels[k]; ok {
		return Category{Key: k, Label: label}
	}
	return Category{Key: Other, Label: labels[Other]}
}

// Valid reports whether key names a canonical category.
func Valid(key string) bool {
	_, ok := labels[Key(key)]
	return ok
}

// MediaType returns the library type a category reconciles against:
// "movie", "series" or "" when both should be tried.
func (c Category) MediaType() string {
	switch c.Key {
	case Film:
		return "movie"
	case Serie, Emission, Anime:
		return "series"
	default:
		return ""
	}
}
