package tokenizer

import (
	"strings"
)

// TagPrefix marks a query token as a tag filter.
const TagPrefix = "tag:"

// Kind classifies a query token.
type Kind int

const (
	// KindTerm is a free-text token without any ':'.
	KindTerm Kind = iota
	// KindTag is a "tag:<value>" token.
	KindTag
	// KindUnknown is any other token containing ':'; it is ignored.
	KindUnknown
)

// Token is a classified query token. For tags, Value has the prefix stripped.
type Token struct {
	Kind  Kind
	Value string
}

// Split breaks a query on single spaces and drops empty tokens.
// No other whitespace is treated as a separator.
func Split(query string) []string {
	parts := strings.Split(query, " ")

	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			tokens = append(tokens, p)
		}
	}
	return tokens
}

// Classify determines the kind of a single token.
func Classify(token string) Token {
	if strings.HasPrefix(token, TagPrefix) {
		// The remainder may be empty and is kept as-is
		return Token{Kind: KindTag, Value: strings.TrimPrefix(token, TagPrefix)}
	}
	if strings.Contains(token, ":") {
		return Token{Kind: KindUnknown, Value: token}
	}
	return Token{Kind: KindTerm, Value: token}
}

// Tokenize splits and classifies a query, returning free-text terms and tag values
// in the order they appear. Tokens are not deduplicated.
func Tokenize(query string) (terms []string, tags []string) {
	terms = make([]string, 0)
	tags = make([]string, 0)

	for _, raw := range Split(query) {
		tok := Classify(raw)
		switch tok.Kind {
		case KindTerm:
			terms = append(terms, tok.Value)
		case KindTag:
			tags = append(tags, tok.Value)
		}
	}
	return terms, tags
}
