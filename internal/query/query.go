// Package query compiles the free-text search syntax into a structured
// clause sequence. The syntax recognises three symbols: whitespace delimits
// terms, double quotes capture an exact phrase (spaces inside are literal),
// and `|` joins the surrounding terms into an OR group. Everything else is
// an implicit AND.
//
// Compile never fails: unterminated quotes close at end of input and
// dangling operators are ignored.
package query

import "strings"

// Operator relates a clause to the clause preceding it in the compiled
// sequence. The first clause's operator carries no meaning.
type Operator int

const (
	OpAnd Operator = iota
	OpOr
)

func (op Operator) String() string {
	if op == OpOr {
		return "OR"
	}
	return "AND"
}

// Clause is one unit of a compiled query: a single term, or a packed group
// of OR-alternative terms.
type Clause struct {
	Words []string `json:"words"`
	Op    Operator `json:"op"`
}

// Query is an immutable ordered sequence of clauses in original
// left-to-right term order.
type Query struct {
	Clauses []Clause `json:"clauses"`
	Raw     string   `json:"raw"`
}

// IsEmpty reports whether the query compiled to no clauses.
func (q Query) IsEmpty() bool {
	return len(q.Clauses) == 0
}

// term is a flushed token before the packing pass.
type term struct {
	word string
	op   Operator
}

// Compile scans raw once, left to right, producing the compiled clause
// sequence. Consecutive OR-tagged terms are packed into a single clause.
func Compile(raw string) Query {
	terms := scan(raw)
	return Query{Clauses: pack(terms), Raw: raw}
}

// scan splits raw into operator-tagged terms. The pending operator starts
// as AND and applies to the next flushed term only.
func scan(raw string) []term {
	var (
		terms    []term
		buf      strings.Builder
		inPhrase bool
		pending  = OpAnd
	)

	flush := func() {
		word := buf.String()
		buf.Reset()
		if word == "" {
			return
		}
		terms = append(terms, term{word: word, op: pending})
		pending = OpAnd
	}

	runes := []rune(raw)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"':
			// Closing quote flushes the phrase as one term; the quote
			// itself is never part of the buffer.
			if inPhrase {
				flush()
			}
			inPhrase = !inPhrase
		case r == '|' && !inPhrase:
			flush()
			pending = OpOr
			// Retroactively rewrite the previous term so both sides of
			// the marker pack into the same OR group. No-op when the
			// marker has no prior term.
			if len(terms) > 0 {
				terms[len(terms)-1].op = OpOr
			}
			// A space directly after the marker is consumed, not a
			// delimiter event.
			if i+1 < len(runes) && runes[i+1] == ' ' {
				i++
			}
		case (r == ' ' || r == '\t' || r == '\n' || r == '\r') && !inPhrase:
			flush()
		default:
			buf.WriteRune(r)
		}
	}
	flush()
	return terms
}

// pack merges each maximal run of consecutive OR terms into one clause,
// inserted at the position where the run began.
func pack(terms []term) []Clause {
	clauses := make([]Clause, 0, len(terms))
	for i := 0; i < len(terms); i++ {
		if terms[i].op != OpOr {
			clauses = append(clauses, Clause{Words: []string{terms[i].word}, Op: OpAnd})
			continue
		}
		words := []string{terms[i].word}
		for i+1 < len(terms) && terms[i+1].op == OpOr {
			i++
			words = append(words, terms[i].word)
		}
		clauses = append(clauses, Clause{Words: words, Op: OpOr})
	}
	return clauses
}
