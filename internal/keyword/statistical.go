package keyword

import (
	"context"
	"sort"
	"strings"
)

// Statistical ranks unigram and bigram candidates of the input by
// frequency weighted by phrase length. It needs no model and is the default
// when no extraction service is configured.
type Statistical struct{}

func NewStatistical() *Statistical {
	return &Statistical{}
}

type candidate struct {
	phrase string
	words  int
	count  int
	first  int
}

func (s *Statistical) Extract(ctx context.Context, text string, topN int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topN <= 0 || strings.TrimSpace(text) == "" {
		return nil, nil
	}
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil, nil
	}

	byPhrase := make(map[string]*candidate)
	add := func(phrase string, words, pos int) {
		c, ok := byPhrase[phrase]
		if !ok {
			c = &candidate{phrase: phrase, words: words, first: pos}
			byPhrase[phrase] = c
		}
		c.count++
	}
	for i, tok := range tokens {
		add(tok.Term, 1, tok.Position)
		if i > 0 && tokens[i-1].Position == tok.Position-1 {
			add(tokens[i-1].Term+" "+tok.Term, 2, tokens[i-1].Position)
		}
	}

	ranked := make([]*candidate, 0, len(byPhrase))
	for _, c := range byPhrase {
		ranked = append(ranked, c)
	}
	sort.Slice(ranked, func(i, j int) bool {
		si, sj := ranked[i].count*ranked[i].words, ranked[j].count*ranked[j].words
		if si != sj {
			return si > sj
		}
		if ranked[i].first != ranked[j].first {
			return ranked[i].first < ranked[j].first
		}
		return ranked[i].phrase < ranked[j].phrase
	})

	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	out := make([]string, len(ranked))
	for i, c := range ranked {
		out[i] = c.phrase
	}
	return out, nil
}
