package query

import (
	"testing"

	bquery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderinc/tgsift/internal/tokenizer"
)

func newCompiler(t *testing.T) *Compiler {
	t.Helper()
	tok, err := tokenizer.Default()
	require.NoError(t, err)
	return NewCompiler(tok)
}

// fieldedMatches collects the field of every text leaf reachable from q.
func fieldedMatches(q bquery.Query) map[string][]string {
	out := map[string][]string{}
	var walk func(bquery.Query)
	walk = func(q bquery.Query) {
		switch v := q.(type) {
		case *bquery.BooleanQuery:
			for _, c := range []bquery.Query{v.Must, v.Should, v.MustNot} {
				if c != nil {
					walk(c)
				}
			}
		case *bquery.ConjunctionQuery:
			for _, c := range v.Conjuncts {
				walk(c)
			}
		case *bquery.DisjunctionQuery:
			for _, c := range v.Disjuncts {
				walk(c)
			}
		case *bquery.MatchQuery:
			out[v.Match] = append(out[v.Match], v.Field())
		case *bquery.MatchPhraseQuery:
			out[v.MatchPhrase] = append(out[v.MatchPhrase], v.Field())
		}
	}
	walk(q)
	return out
}

func TestParse_Directives(t *testing.T) {
	plan, err := Parse("from:alice has:link test", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, plan.Senders)
	assert.True(t, plan.HasLink)
	assert.Nil(t, plan.Dates)
	assert.Equal(t, "test", plan.FreeText)
}

func TestParse_NoStrayFragments(t *testing.T) {
	plan, err := Parse("  from:bob   hello has:link   world  from:carol ", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "carol"}, plan.Senders)
	assert.Equal(t, "hello world", plan.FreeText)
}

func TestParse_Empty(t *testing.T) {
	for _, input := range []string{"", "   ", "\t\n"} {
		_, err := Parse(input, nil)
		assert.ErrorIs(t, err, ErrEmptyQuery, "input %q", input)
	}
}

func TestParse_DateRangeOnly(t *testing.T) {
	plan, err := Parse("", &DateRange{From: "2021.01.01", To: "2021.01.31"})
	require.NoError(t, err)
	assert.Equal(t, &DateRange{From: "2021.01.01", To: "2021.01.31"}, plan.Dates)
}

func TestDateRange_Validate(t *testing.T) {
	tests := []struct {
		name  string
		r     DateRange
		valid bool
	}{
		{"same day", DateRange{"2021.03.04", "2021.03.04"}, true},
		{"ordered", DateRange{"2020.12.31", "2021.01.01"}, true},
		{"reversed", DateRange{"2021.02.01", "2021.01.01"}, false},
		{"dashes", DateRange{"2021-01-01", "2021.01.02"}, false},
		{"unpadded", DateRange{"2021.1.1", "2021.01.02"}, false},
		{"empty", DateRange{"", ""}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.r.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidDateRange)
			}
		})
	}

	_, err := Parse("hello", &DateRange{From: "2021.02.01", To: "2021.01.01"})
	assert.ErrorIs(t, err, ErrInvalidDateRange)
}

func TestCompile_AllPredicatesANDed(t *testing.T) {
	c := newCompiler(t)
	q, _, err := c.Compile("from:alice has:link test", nil)
	require.NoError(t, err)

	conj, ok := q.(*bquery.ConjunctionQuery)
	require.True(t, ok)
	require.Len(t, conj.Conjuncts, 3)

	sender, ok := conj.Conjuncts[0].(*bquery.TermQuery)
	require.True(t, ok)
	assert.Equal(t, "alice", sender.Term)
	assert.Equal(t, FieldSender, sender.Field())

	link, ok := conj.Conjuncts[1].(*bquery.BoolFieldQuery)
	require.True(t, ok)
	assert.True(t, link.Bool)
	assert.Equal(t, FieldHasLink, link.Field())

	assert.Equal(t, map[string][]string{"test": {FieldSender, FieldContent}}, fieldedMatches(conj.Conjuncts[2]))
}

func TestCompile_SenderLowercased(t *testing.T) {
	c := newCompiler(t)
	q, _, err := c.Compile("from:Alice", nil)
	require.NoError(t, err)

	conj := q.(*bquery.ConjunctionQuery)
	require.Len(t, conj.Conjuncts, 1)
	term := conj.Conjuncts[0].(*bquery.TermQuery)
	assert.Equal(t, "alice", term.Term)
}

func TestCompile_MultiTermSender(t *testing.T) {
	c := newCompiler(t)
	q, _, err := c.Compile("from:mary/jane", nil)
	require.NoError(t, err)

	conj := q.(*bquery.ConjunctionQuery)
	inner, ok := conj.Conjuncts[0].(*bquery.ConjunctionQuery)
	require.True(t, ok)
	require.Len(t, inner.Conjuncts, 2)
	assert.Equal(t, "mary", inner.Conjuncts[0].(*bquery.TermQuery).Term)
	assert.Equal(t, "jane", inner.Conjuncts[1].(*bquery.TermQuery).Term)
}

func TestCompile_DateRange(t *testing.T) {
	c := newCompiler(t)
	q, _, err := c.Compile("", &DateRange{From: "2021.01.01", To: "2021.01.31"})
	require.NoError(t, err)

	conj := q.(*bquery.ConjunctionQuery)
	require.Len(t, conj.Conjuncts, 1)
	r, ok := conj.Conjuncts[0].(*bquery.TermRangeQuery)
	require.True(t, ok)
	assert.Equal(t, FieldDate, r.Field())
	assert.Equal(t, "2021.01.01", r.Min)
	assert.Equal(t, "2021.01.31", r.Max)
	require.NotNil(t, r.InclusiveMin)
	require.NotNil(t, r.InclusiveMax)
	assert.True(t, *r.InclusiveMin)
	assert.True(t, *r.InclusiveMax)
}

func TestCompile_PhraseSpansBothFields(t *testing.T) {
	c := newCompiler(t)
	q, _, err := c.Compile(`"release notes"`, nil)
	require.NoError(t, err)

	matches := fieldedMatches(q)
	assert.Equal(t, []string{FieldSender, FieldContent}, matches["release notes"])
}

func TestCompile_ExplicitFieldKept(t *testing.T) {
	c := newCompiler(t)
	q, _, err := c.Compile("content:deploy", nil)
	require.NoError(t, err)

	matches := fieldedMatches(q)
	assert.Equal(t, []string{FieldContent}, matches["deploy"])
}

func TestCompile_Empty(t *testing.T) {
	c := newCompiler(t)
	_, _, err := c.Compile("   ", nil)
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = c.Query(&Plan{})
	assert.ErrorIs(t, err, ErrEmptyQuery)
	_, err = c.Query(nil)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}
