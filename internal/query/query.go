// Package query compiles the search box language into a bleve query.
//
// The input may carry inline directives besides free text:
//
//	from:<token>   messages whose sender contains the term (repeatable)
//	has:link       messages containing a hyperlink
//
// Whatever remains after removing directives is parsed with bleve's query
// string syntax (terms, "phrases", +must, -not, field:term, wildcards) and
// matched against both sender and content. A structured date range may be
// added on top. All predicates are ANDed.
package query

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	bquery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/renderinc/tgsift/internal/tokenizer"
)

// Indexed field names.
const (
	FieldSender  = "sender"
	FieldContent = "content"
	FieldDate    = "date"
	FieldHasLink = "has_link"
)

// DateLayout is the sortable date format of the date field.
const DateLayout = "2006.01.02"

var (
	// ErrEmptyQuery means no predicate was produced. Callers should prompt
	// for input rather than show every record.
	ErrEmptyQuery = errors.New("empty query")

	// ErrInvalidDateRange is returned for malformed or reversed ranges.
	ErrInvalidDateRange = errors.New("invalid date range")
)

var (
	fromDirective = regexp.MustCompile(`from:(\S+)`)
	linkDirective = "has:link"
)

// freeTextFields are searched by free text, in this order.
var freeTextFields = []string{FieldSender, FieldContent}

// DateRange is an inclusive range of YYYY.MM.DD dates.
type DateRange struct {
	From string
	To   string
}

// Validate checks both bounds are well formed and From <= To.
func (r DateRange) Validate() error {
	for _, d := range []string{r.From, r.To} {
		if _, err := time.Parse(DateLayout, d); err != nil {
			return fmt.Errorf("%w: %q is not YYYY.MM.DD", ErrInvalidDateRange, d)
		}
	}
	if r.From > r.To {
		return fmt.Errorf("%w: %s is after %s", ErrInvalidDateRange, r.From, r.To)
	}
	return nil
}

// Plan is the parsed form of a query before compilation.
type Plan struct {
	Senders  []string
	HasLink  bool
	Dates    *DateRange
	FreeText string
}

// Empty reports whether the plan yields no predicate.
func (p *Plan) Empty() bool {
	return len(p.Senders) == 0 && !p.HasLink && p.Dates == nil && p.FreeText == ""
}

// Parse splits input into directives and free text. dates may be nil.
func Parse(input string, dates *DateRange) (*Plan, error) {
	plan := &Plan{}

	for _, m := range fromDirective.FindAllStringSubmatch(input, -1) {
		plan.Senders = append(plan.Senders, m[1])
	}
	rest := fromDirective.ReplaceAllString(input, " ")

	if strings.Contains(rest, linkDirective) {
		plan.HasLink = true
		rest = strings.ReplaceAll(rest, linkDirective, " ")
	}

	if dates != nil {
		if err := dates.Validate(); err != nil {
			return nil, err
		}
		d := *dates
		plan.Dates = &d
	}

	plan.FreeText = strings.Join(strings.Fields(rest), " ")

	if plan.Empty() {
		return nil, ErrEmptyQuery
	}
	return plan, nil
}

// Compiler turns plans into bleve queries.
type Compiler struct {
	tok *tokenizer.Tokenizer
}

// NewCompiler creates a compiler that analyzes sender directives with tok.
func NewCompiler(tok *tokenizer.Tokenizer) *Compiler {
	return &Compiler{tok: tok}
}

// Compile parses input and returns the composed query and its plan.
func (c *Compiler) Compile(input string, dates *DateRange) (bquery.Query, *Plan, error) {
	plan, err := Parse(input, dates)
	if err != nil {
		return nil, nil, err
	}
	q, err := c.Query(plan)
	if err != nil {
		return nil, nil, err
	}
	return q, plan, nil
}

// Query compiles a plan into a conjunction of its predicates.
func (c *Compiler) Query(plan *Plan) (bquery.Query, error) {
	if plan == nil || plan.Empty() {
		return nil, ErrEmptyQuery
	}

	var preds []bquery.Query
	for _, sender := range plan.Senders {
		preds = append(preds, c.senderQuery(sender))
	}
	if plan.HasLink {
		q := bquery.NewBoolFieldQuery(true)
		q.SetField(FieldHasLink)
		preds = append(preds, q)
	}
	if plan.Dates != nil {
		inclusive := true
		q := bquery.NewTermRangeInclusiveQuery(plan.Dates.From, plan.Dates.To, &inclusive, &inclusive)
		q.SetField(FieldDate)
		preds = append(preds, q)
	}
	if plan.FreeText != "" {
		preds = append(preds, freeTextQuery(plan.FreeText))
	}

	return bquery.NewConjunctionQuery(preds), nil
}

// senderQuery matches the sender terms of token exactly. Tokens that
// analyze to several terms (a name written in ideographs, "a/b") require
// all of them.
func (c *Compiler) senderQuery(token string) bquery.Query {
	var terms []string
	if c.tok != nil {
		for _, t := range c.tok.Terms(token) {
			terms = appendUnique(terms, strings.ToLower(t))
		}
	}
	if len(terms) == 0 {
		terms = []string{strings.ToLower(token)}
	}

	queries := make([]bquery.Query, len(terms))
	for i, t := range terms {
		q := bquery.NewTermQuery(t)
		q.SetField(FieldSender)
		queries[i] = q
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bquery.NewConjunctionQuery(queries)
}

// freeTextQuery parses text with the query string syntax and points every
// unfielded clause at both sender and content. Text the syntax rejects is
// matched literally.
func freeTextQuery(text string) bquery.Query {
	parsed, err := bquery.NewQueryStringQuery(text).Parse()
	if err != nil {
		return acrossFields(bquery.NewMatchQuery(text), freeTextFields)
	}
	return expandFields(parsed, freeTextFields)
}

// expandFields rewrites q in place so that clauses without a field match
// any of fields.
func expandFields(q bquery.Query, fields []string) bquery.Query {
	switch v := q.(type) {
	case *bquery.BooleanQuery:
		if v.Must != nil {
			v.Must = expandFields(v.Must, fields)
		}
		if v.Should != nil {
			v.Should = expandFields(v.Should, fields)
		}
		if v.MustNot != nil {
			v.MustNot = expandFields(v.MustNot, fields)
		}
		return v
	case *bquery.ConjunctionQuery:
		for i, c := range v.Conjuncts {
			v.Conjuncts[i] = expandFields(c, fields)
		}
		return v
	case *bquery.DisjunctionQuery:
		for i, d := range v.Disjuncts {
			v.Disjuncts[i] = expandFields(d, fields)
		}
		return v
	case bquery.FieldableQuery:
		if v.Field() != "" {
			return v
		}
		return acrossFields(v, fields)
	}
	return q
}

func acrossFields(q bquery.FieldableQuery, fields []string) bquery.Query {
	alts := make([]bquery.Query, 0, len(fields))
	for _, f := range fields {
		c := withField(q, f)
		if c == nil {
			return q
		}
		alts = append(alts, c)
	}
	return bquery.NewDisjunctionQuery(alts)
}

// withField returns a copy of q bound to field, or nil for query types the
// query string syntax does not produce without a field.
func withField(q bquery.FieldableQuery, field string) bquery.Query {
	switch v := q.(type) {
	case *bquery.MatchQuery:
		c := *v
		c.SetField(field)
		return &c
	case *bquery.MatchPhraseQuery:
		c := *v
		c.SetField(field)
		return &c
	case *bquery.FuzzyQuery:
		c := *v
		c.SetField(field)
		return &c
	case *bquery.PrefixQuery:
		c := *v
		c.SetField(field)
		return &c
	case *bquery.WildcardQuery:
		c := *v
		c.SetField(field)
		return &c
	case *bquery.RegexpQuery:
		c := *v
		c.SetField(field)
		return &c
	case *bquery.TermQuery:
		c := *v
		c.SetField(field)
		return &c
	}
	return nil
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
