// Package adjust turns the feedback log into per-item multipliers and
// rebuilds the vector index with the scaled embeddings.
package adjust

import (
	"fmt"
	"sort"
	"strings"
)

// Match reports how many distinct keywords of one record an item's text
// contains.
type Match struct {
	Item  int
	Count int
}

// Matcher finds, for a keyword set, every item whose text contains at least
// one keyword as a case-insensitive substring. Keywords must already be
// normalised (trimmed, non-empty, no case-insensitive duplicates). Results
// are ordered by item id. Implementations are safe for concurrent use.
type Matcher interface {
	Matches(keywords []string) []Match
	Len() int
}

const (
	MatcherSubstring = "substring"
	MatcherTrigram   = "trigram"
)

// NewMatcher builds the named matcher over the item texts.
func NewMatcher(kind string, texts []string) (Matcher, error) {
	switch kind {
	case MatcherSubstring, "":
		return NewSubstringMatcher(texts), nil
	case MatcherTrigram:
		return NewTrigramMatcher(texts), nil
	default:
		return nil, fmt.Errorf("unknown matcher %q", kind)
	}
}

// SubstringMatcher tests every keyword against every item.
type SubstringMatcher struct {
	texts []string
}

func NewSubstringMatcher(texts []string) *SubstringMatcher {
	return &SubstringMatcher{texts: lowerAll(texts)}
}

func (m *SubstringMatcher) Len() int {
	return len(m.texts)
}

func (m *SubstringMatcher) Matches(keywords []string) []Match {
	lowered := lowerAll(keywords)
	var out []Match
	for i, text := range m.texts {
		count := 0
		for _, kw := range lowered {
			if strings.Contains(text, kw) {
				count++
			}
		}
		if count > 0 {
			out = append(out, Match{Item: i, Count: count})
		}
	}
	return out
}

// TrigramMatcher indexes every byte trigram of the lowercased item texts.
// A keyword's candidates are the items holding all of its trigrams; each
// candidate is then confirmed with a substring test, so the result equals
// SubstringMatcher's. Keywords shorter than three bytes fall back to a scan.
type TrigramMatcher struct {
	texts    []string
	postings map[uint32][]int32
}

func NewTrigramMatcher(texts []string) *TrigramMatcher {
	m := &TrigramMatcher{
		texts:    lowerAll(texts),
		postings: make(map[uint32][]int32),
	}
	seen := make(map[uint32]struct{})
	for i, text := range m.texts {
		clear(seen)
		for j := 0; j+3 <= len(text); j++ {
			g := trigram(text[j:])
			if _, dup := seen[g]; dup {
				continue
			}
			seen[g] = struct{}{}
			m.postings[g] = append(m.postings[g], int32(i))
		}
	}
	return m
}

func (m *TrigramMatcher) Len() int {
	return len(m.texts)
}

func (m *TrigramMatcher) Matches(keywords []string) []Match {
	counts := make(map[int]int)
	for _, kw := range lowerAll(keywords) {
		if len(kw) < 3 {
			for i, text := range m.texts {
				if strings.Contains(text, kw) {
					counts[i]++
				}
			}
			continue
		}
		for _, id := range m.candidates(kw) {
			if strings.Contains(m.texts[id], kw) {
				counts[int(id)]++
			}
		}
	}
	out := make([]Match, 0, len(counts))
	for item, count := range counts {
		out = append(out, Match{Item: item, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Item < out[j].Item })
	return out
}

// candidates intersects the posting lists of kw's trigrams, shortest first.
func (m *TrigramMatcher) candidates(kw string) []int32 {
	var lists [][]int32
	seen := make(map[uint32]struct{})
	for j := 0; j+3 <= len(kw); j++ {
		g := trigram(kw[j:])
		if _, dup := seen[g]; dup {
			continue
		}
		seen[g] = struct{}{}
		list, ok := m.postings[g]
		if !ok {
			return nil
		}
		lists = append(lists, list)
	}
	sort.Slice(lists, func(i, j int) bool { return len(lists[i]) < len(lists[j]) })

	result := lists[0]
	for _, list := range lists[1:] {
		result = intersect(result, list)
		if len(result) == 0 {
			return nil
		}
	}
	return result
}

func intersect(a, b []int32) []int32 {
	out := make([]int32, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}

func trigram(s string) uint32 {
	return uint32(s[0])<<16 | uint32(s[1])<<8 | uint32(s[2])
}

func lowerAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.ToLower(s)
	}
	return out
}
