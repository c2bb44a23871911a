package risk

import (
	"slices"

	"github.com/tidwall/gjson"

	"github.com/keeldata/trustvault/internal/pkg/xregexp"
)

// Scanner probes payloads for restricted-content categories.
type Scanner struct {
	categories []Category
}

func NewScanner(categories []Category) *Scanner {
	return &Scanner{categories: categories}
}

// Scan returns the sensitivity score and the matched category names.
// An empty payload carries no content and scores zero; a payload that is not
// valid JSON cannot be inspected and scores worst case.
func (s *Scanner) Scan(payload []byte) (int, []string) {
	if len(payload) == 0 {
		return 0, nil
	}

	if !gjson.ValidBytes(payload) {
		return 100, nil
	}

	fragments := collectFragments(gjson.ParseBytes(payload))
	if len(fragments) == 0 {
		return 0, nil
	}

	score := 0

	var matched []string

	for _, cat := range s.categories {
		if categoryHits(cat, fragments) {
			matched = append(matched, cat.Name)
			if cat.Score > score {
				score = cat.Score
			}
		}
	}

	slices.Sort(matched)

	return score, matched
}

func categoryHits(cat Category, fragments []string) bool {
	for _, pattern := range cat.Patterns {
		for _, fragment := range fragments {
			if xregexp.SearchString(pattern, fragment) {
				return true
			}
		}
	}

	return false
}

// collectFragments flattens keys and scalar values into searchable text.
// Keys matter: {"password": "..."} signals through its key alone.
func collectFragments(value gjson.Result) []string {
	var fragments []string

	var walk func(v gjson.Result)
	walk = func(v gjson.Result) {
		switch {
		case v.IsObject():
			v.ForEach(func(key, child gjson.Result) bool {
				fragments = append(fragments, key.String())
				walk(child)

				return true
			})
		case v.IsArray():
			v.ForEach(func(_, child gjson.Result) bool {
				walk(child)
				return true
			})
		case v.Type == gjson.String, v.Type == gjson.Number:
			fragments = append(fragments, v.String())
		}
	}
	walk(value)

	return fragments
}
