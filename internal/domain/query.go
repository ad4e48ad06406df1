package domain

import (
	"strings"
	"unicode"
)

// ParseSearchTokens splits the raw search string into lower-cased tokens.
// Tokens are delimited by '+' or any whitespace character.
func ParseSearchTokens(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return unicode.IsSpace(r) || r == '+'
	})

	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		tokens = append(tokens, strings.ToLower(field))
	}

	if len(tokens) == 0 {
		return nil
	}
	return tokens
}

// MatchesSearchTokens reports whether the entry satisfies all search tokens.
// Each token must be contained in the title, the domain hint or a tag. Only
// plaintext attributes take part; encrypted fields are never searched.
func MatchesSearchTokens(entry *Entry, tokens []string) bool {
	if len(tokens) == 0 || entry == nil {
		return true
	}

	title := strings.ToLower(entry.Title)
	hint := strings.ToLower(entry.DomainHint)

	for _, token := range tokens {
		if strings.Contains(title, token) ||
			strings.Contains(hint, token) ||
			tagContainsToken(entry.Tags, token) {
			continue
		}
		return false
	}
	return true
}

// Search returns the entries matching raw, ordered by title.
func (g *Graph) Search(raw string) []*Entry {
	tokens := ParseSearchTokens(raw)
	var out []*Entry
	for _, e := range g.SortedEntries() {
		if MatchesSearchTokens(e, tokens) {
			out = append(out, e)
		}
	}
	return out
}

func tagContainsToken(tags []string, token string) bool {
	for _, tag := range tags {
		if strings.Contains(strings.ToLower(tag), token) {
			return true
		}
	}
	return false
}
