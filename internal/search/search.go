package search

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	htmlstyle "github.com/blevesearch/bleve/v2/search/highlight/highlighter/html"
	bquery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/sahilm/fuzzy"

	"github.com/renderinc/tgsift/internal/query"
	"github.com/renderinc/tgsift/internal/storage"
)

const (
	// MaxHits caps the hits returned by one search. Totals are not capped.
	MaxHits = 500

	// DefaultFragments is how many highlighted fragments make a snippet
	DefaultFragments = 5

	// FallbackRunes is the length of the snippet used when nothing was
	// highlighted
	FallbackRunes = 200

	fragmentSeparator = " ... "
	ellipsis          = "..."
)

// Options tune a search request
type Options struct {
	Limit     int // hits to return, capped at MaxHits
	Fragments int // highlighted fragments per snippet
}

// Hit is one matching record
type Hit struct {
	storage.Record
	Score   float64 `json:"score"`
	Snippet string  `json:"snippet"` // HTML, matches wrapped in <mark>
}

// Results of one search
type Results struct {
	Total uint64        `json:"total"` // all matches, even past the cap
	Hits  []Hit         `json:"hits"`
	Took  time.Duration `json:"took"`
}

// Search runs q and returns relevance-ordered hits hydrated from the record
// store
func (i *Index) Search(ctx context.Context, q bquery.Query, opts Options) (*Results, error) {
	if q == nil {
		return nil, query.ErrEmptyQuery
	}

	limit := opts.Limit
	if limit <= 0 || limit > MaxHits {
		limit = MaxHits
	}
	fragments := opts.Fragments
	if fragments <= 0 {
		fragments = DefaultFragments
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Highlight = bleve.NewHighlightWithStyle(htmlstyle.Name)
	req.Highlight.AddField(query.FieldContent)

	res, err := i.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	ids := make([]string, len(res.Hits))
	for n, hit := range res.Hits {
		ids[n] = hit.ID
	}
	records, err := i.db.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}

	out := &Results{
		Total: res.Total,
		Hits:  make([]Hit, 0, len(res.Hits)),
		Took:  res.Took,
	}
	for _, hit := range res.Hits {
		rec, ok := records[hit.ID]
		if !ok {
			i.log.Warn("hit without record", "id", hit.ID)
			continue
		}
		// the highlighter fragments content even when only sender matched
		var highlighted []string
		if len(hit.Locations[query.FieldContent]) > 0 {
			highlighted = hit.Fragments[query.FieldContent]
		}
		out.Hits = append(out.Hits, Hit{
			Record:  *rec,
			Score:   hit.Score,
			Snippet: Snippet(highlighted, rec.Content, fragments),
		})
	}

	i.log.Debug("search", "total", out.Total, "hits", len(out.Hits), "took", out.Took)
	return out, nil
}

// SearchString compiles input with c and runs it. dates may be nil.
func (i *Index) SearchString(ctx context.Context, c *query.Compiler, input string, dates *query.DateRange, opts Options) (*Results, error) {
	q, _, err := c.Compile(input, dates)
	if err != nil {
		return nil, err
	}
	return i.Search(ctx, q, opts)
}

// Snippet joins up to n highlighted fragments. Without fragments it falls
// back to the first FallbackRunes characters of content, escaped, followed
// by an ellipsis.
func Snippet(fragments []string, content string, n int) string {
	if len(fragments) > 0 {
		if n > 0 && len(fragments) > n {
			fragments = fragments[:n]
		}
		return strings.Join(fragments, fragmentSeparator)
	}
	return html.EscapeString(truncateRunes(content, FallbackRunes)) + ellipsis
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for idx := range s {
		if count == n {
			return s[:idx]
		}
		count++
	}
	return s
}

// SuggestSenders returns senders fuzzily matching pattern, best first, at
// most limit of them. An empty pattern lists the most active senders.
func (i *Index) SuggestSenders(pattern string, limit int) ([]storage.SenderCount, error) {
	senders, err := i.db.Senders()
	if err != nil {
		return nil, fmt.Errorf("list senders: %w", err)
	}

	var out []storage.SenderCount
	if strings.TrimSpace(pattern) == "" {
		out = senders
	} else {
		names := make([]string, len(senders))
		for n, s := range senders {
			names[n] = s.Sender
		}
		for _, m := range fuzzy.Find(pattern, names) {
			out = append(out, senders[m.Index])
		}
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
