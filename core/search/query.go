package search

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Query is a parsed search query: optional scope filters plus the literal
// terms and phrases that form the match pattern.
type Query struct {
	// Volume restricts the search to one volume index; -1 searches all.
	Volume int `json:"volume"`

	// Chapter restricts the search to the chapter with this anchor id.
	Chapter string `json:"chapter,omitempty"`

	// Terms are the bare terms and quoted phrases, in query order.
	Terms []string `json:"terms"`

	// Raw is the query string as typed.
	Raw string `json:"raw"`
}

// queryGrammar is the participle grammar for search queries.
// Examples: `liberation`, `vol:2 breath`, `chapter:intro "the practice"`
//
//nolint:govet // participle grammar tags are not standard struct tags
type queryGrammar struct {
	Parts []*queryPart `@@*`
}

//nolint:govet // participle grammar tags are not standard struct tags
type queryPart struct {
	Volume  *int    `"vol" Colon @Int`
	Chapter *string `| "chapter" Colon ( @Term | @Int | @String )`
	Phrase  *string `| @String`
	Term    *string `| ( @Term | @Int )`
}

var queryLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"[^"]*"`},
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Colon", Pattern: `:`},
	{Name: "Term", Pattern: `[^\s:"]+`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var queryParser = participle.MustBuild[queryGrammar](
	participle.Lexer(queryLexer),
	participle.Elide("Whitespace"),
	// A bare "vol" or "chapter" term only differs from a filter at the colon.
	participle.UseLookahead(2),
)

// ParseQuery parses a query string. Parsing never fails outward: a string the
// grammar rejects is treated as a single literal term, so any user input
// searches for something.
func ParseQuery(s string) Query {
	q := Query{Volume: -1, Raw: s}
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return q
	}

	parsed, err := queryParser.ParseString("", trimmed)
	if err != nil {
		q.Terms = []string{trimmed}
		return q
	}

	for _, p := range parsed.Parts {
		switch {
		case p.Volume != nil:
			q.Volume = *p.Volume
		case p.Chapter != nil:
			q.Chapter = unquote(*p.Chapter)
		case p.Phrase != nil:
			q.Terms = append(q.Terms, unquote(*p.Phrase))
		case p.Term != nil:
			q.Terms = append(q.Terms, *p.Term)
		}
	}
	return q
}

// Pattern returns the literal text the query searches for: all terms and
// phrases joined in order.
func (q Query) Pattern() string {
	return strings.Join(q.Terms, " ")
}

// Empty reports whether the query carries no searchable text.
func (q Query) Empty() bool {
	return len(q.Terms) == 0
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
