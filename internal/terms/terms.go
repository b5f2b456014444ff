// Package terms adapts external text sources into vocabulary candidates: a
// static place-category mapping for location hints, and the extractor contract
// the scene-description collaborator implements.
package terms

import (
	"context"
	"strings"
)

// Extractor produces candidate object terms from free-form scene text.
// Implemented by the scene-description collaborator; this core only consumes
// the resulting terms.
type Extractor interface {
	ExtractTerms(ctx context.Context, text string) ([]string, error)
}

// placeTerms maps a normalized place category to the object terms someone is
// likely to encounter there. The table is static; unknown categories map to
// nothing.
var placeTerms = map[string][]string{
	"cafe":        {"cup", "mug", "menu", "counter", "pastry"},
	"restaurant":  {"plate", "glass", "menu", "napkin", "fork"},
	"supermarket": {"cart", "basket", "shelf", "checkout"},
	"station":     {"platform", "ticket machine", "turnstile", "bench"},
	"bus stop":    {"bench", "sign", "shelter"},
	"park":        {"bench", "fountain", "trash can", "path"},
	"office":      {"desk", "monitor", "keyboard", "printer"},
	"library":     {"bookshelf", "book", "desk", "chair"},
	"pharmacy":    {"counter", "shelf", "sign"},
	"bank":        {"atm", "counter", "pen"},
	"hospital":    {"reception", "wheelchair", "elevator"},
	"gym":         {"treadmill", "dumbbell", "bench", "mat"},
	"hotel":       {"reception", "luggage", "elevator", "key card"},
	"crosswalk":   {"traffic light", "curb", "pole"},
	"parking lot": {"car", "pillar", "ticket machine"},
}

// ForPlaces maps place strings to candidate vocabulary terms. Matching is
// case-insensitive on the whole string first, then on each word, so both
// "Cafe" and "corner cafe" resolve. Results are deduplicated, input order
// preserved.
func ForPlaces(places []string) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(terms []string) {
		for _, t := range terms {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	for _, place := range places {
		key := strings.ToLower(strings.TrimSpace(place))
		if terms, ok := placeTerms[key]; ok {
			add(terms)
			continue
		}
		for _, word := range strings.Fields(key) {
			if terms, ok := placeTerms[word]; ok {
				add(terms)
			}
		}
	}
	return out
}

// Categories returns the place categories the mapping knows about.
func Categories() []string {
	out := make([]string, 0, len(placeTerms))
	for k := range placeTerms {
		out = append(out, k)
	}
	return out
}
