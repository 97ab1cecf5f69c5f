// Package matcher supplies the application's default per-item search
// function: a token-based text matcher over document content.
//
// Evaluation is conjunctive across clauses. A single-term clause must occur
// at least once; an OR clause is satisfied by any of its alternatives; a
// clause whose term contains a space (an exact phrase) must occur as a
// consecutive token run. An item with any unsatisfied clause yields no
// matches at all. Weights are per occurrence, with phrases weighted higher
// than single terms.
package matcher

import (
	"context"
	"log/slog"

	"github.com/calebmur/docfind/internal/query"
	"github.com/calebmur/docfind/internal/search"
	"github.com/calebmur/docfind/internal/tokenizer"
)

// Source is an item whose text content the matcher can read.
type Source interface {
	search.Item
	Content() string
}

// Config controls match weighting and normalisation.
type Config struct {
	TermWeight   float64
	PhraseWeight float64
	Stemming     bool
}

// Matcher evaluates compiled queries against item content.
type Matcher struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Matcher, filling in defaults for zero weights.
func New(cfg Config) *Matcher {
	if cfg.TermWeight <= 0 {
		cfg.TermWeight = 1
	}
	if cfg.PhraseWeight <= 0 {
		cfg.PhraseWeight = 2
	}
	return &Matcher{
		cfg:    cfg,
		logger: slog.Default().With("component", "matcher"),
	}
}

// SearchFunc adapts the matcher to the orchestrator's per-item contract.
// Items that do not expose content yield no matches.
func (m *Matcher) SearchFunc() search.SearchFunc {
	return func(ctx context.Context, item search.Item, q query.Query) (search.ItemResult, error) {
		if err := ctx.Err(); err != nil {
			return search.ItemResult{}, err
		}
		src, ok := item.(Source)
		if !ok {
			m.logger.Warn("item has no readable content", "item", item.SearchID())
			return search.ItemResult{Item: item}, nil
		}
		return search.ItemResult{Item: item, Matches: m.Match(src.Content(), q)}, nil
	}
}

// Match returns every occurrence of every clause in content, or nil when
// any clause is unsatisfied or the query is empty.
func (m *Matcher) Match(content string, q query.Query) []search.Match {
	if q.IsEmpty() {
		return nil
	}
	tokens := tokenizer.Tokenize(content)
	if m.cfg.Stemming {
		for i := range tokens {
			tokens[i].Term = tokenizer.Stem(tokens[i].Term)
		}
	}
	positions := make(map[string][]int, len(tokens))
	for _, t := range tokens {
		positions[t.Term] = append(positions[t.Term], t.Position)
	}

	var matches []search.Match
	for _, clause := range q.Clauses {
		clauseMatches := m.matchClause(tokens, positions, clause)
		if len(clauseMatches) == 0 {
			return nil
		}
		matches = append(matches, clauseMatches...)
	}
	return matches
}

// matchClause collects the occurrences of any of the clause's words. Query
// words are normalised with the same tokenizer as the content, so a word
// that splits into several tokens is matched as a phrase.
func (m *Matcher) matchClause(tokens []tokenizer.Token, positions map[string][]int, clause query.Clause) []search.Match {
	var matches []search.Match
	for _, word := range clause.Words {
		terms := m.normalise(word)
		switch len(terms) {
		case 0:
		case 1:
			for _, pos := range positions[terms[0]] {
				matches = append(matches, search.Match{Position: pos, Weight: m.cfg.TermWeight})
			}
		default:
			matches = append(matches, m.matchPhrase(tokens, positions, terms)...)
		}
	}
	return matches
}

// matchPhrase finds consecutive token runs equal to the phrase's terms.
func (m *Matcher) matchPhrase(tokens []tokenizer.Token, positions map[string][]int, terms []string) []search.Match {
	var matches []search.Match
	for _, start := range positions[terms[0]] {
		if start+len(terms) > len(tokens) {
			continue
		}
		run := true
		for i := 1; i < len(terms); i++ {
			if tokens[start+i].Term != terms[i] {
				run = false
				break
			}
		}
		if run {
			matches = append(matches, search.Match{Position: start, Weight: m.cfg.PhraseWeight})
		}
	}
	return matches
}

func (m *Matcher) normalise(word string) []string {
	terms := tokenizer.Terms(word)
	if m.cfg.Stemming {
		for i := range terms {
			terms[i] = tokenizer.Stem(terms[i])
		}
	}
	return terms
}
