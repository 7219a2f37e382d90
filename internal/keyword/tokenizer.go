package keyword

import (
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
	"i": {}, "me": {}, "my": {}, "you": {}, "your": {}, "we": {},
	"she": {}, "her": {}, "him": {}, "his": {}, "them": {}, "there": {},
	"too": {}, "very": {}, "just": {}, "than": {}, "then": {}, "all": {},
	"about": {}, "into": {}, "over": {}, "been": {}, "being": {},
	"did": {}, "does": {}, "don": {}, "didn": {}, "doesn": {}, "really": {},
	"movie": {}, "film": {}, "like": {}, "liked": {}, "much": {}, "more": {},
}

// Token is a lowercased content word and its index in the original word
// sequence. Two tokens are adjacent in the text when their positions differ
// by one; a stop word between them breaks adjacency.
type Token struct {
	Term     string
	Position int
}

// Tokenize lowercases text, splits it on non-alphanumeric boundaries and
// drops stop words and single-character words. No stemming is applied: the
// resulting terms are matched as substrings of item text, so they must stay
// in their surface form.
func Tokenize(text string) []Token {
	text = strings.ToLower(text)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]Token, 0, len(words))
	for pos, word := range words {
		if len([]rune(word)) < 2 {
			continue
		}
		if _, isStop := stopWords[word]; isStop {
			continue
		}
		tokens = append(tokens, Token{
			Term:     word,
			Position: pos,
		})
	}
	return tokens
}
