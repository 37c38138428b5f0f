// Package tokenizer segments mixed Chinese and Latin text into indexable
// terms with byte offsets into the original string.
//
// Latin, digit and other letter runs follow Unicode word boundaries. Runs of
// ideographs are segmented with a dictionary in search mode: each word is
// emitted together with its shorter dictionary sub-words, so a query for a
// part of a compound still matches.
package tokenizer

import (
	"fmt"
	"iter"
	"strings"
	"sync"

	"github.com/blevesearch/segment"
	"github.com/go-ego/gse"
)

// Kind classifies a token.
type Kind int

const (
	Word Kind = iota
	Number
	Ideographic
)

// Token is a term with its byte offsets in the source text.
type Token struct {
	Term     string
	Start    int
	End      int
	Position int // 1-based ordinal in the token sequence
	Kind     Kind
}

// Tokenizer is safe for concurrent use once created.
type Tokenizer struct {
	seg *gse.Segmenter
}

var (
	defaultOnce sync.Once
	defaultTok  *Tokenizer
	defaultErr  error
)

// Default returns the shared tokenizer, loading the embedded dictionary on
// first use.
func Default() (*Tokenizer, error) {
	defaultOnce.Do(func() {
		defaultTok, defaultErr = New()
	})
	return defaultTok, defaultErr
}

// New loads the embedded Chinese dictionary into a fresh tokenizer.
func New() (*Tokenizer, error) {
	seg := new(gse.Segmenter)
	if err := seg.LoadDictEmbed(); err != nil {
		return nil, fmt.Errorf("load dictionary: %w", err)
	}
	return &Tokenizer{seg: seg}, nil
}

// Tokens returns the token sequence of text. The sequence is lazy and may
// be ranged over any number of times; each pass re-tokenizes text.
func (t *Tokenizer) Tokens(text string) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		e := emitter{yield: yield}
		src := []byte(text)
		segmenter := segment.NewWordSegmenterDirect(src)

		runStart, runEnd := -1, -1
		flush := func() bool {
			if runStart < 0 {
				return true
			}
			ok := t.ideographs(text[runStart:runEnd], runStart, &e)
			runStart, runEnd = -1, -1
			return ok
		}

		start := 0
		for segmenter.Segment() {
			end := start + len(segmenter.Bytes())
			switch segmenter.Type() {
			case segment.Ideo:
				if runStart >= 0 && runEnd == start {
					runEnd = end
				} else {
					if !flush() {
						return
					}
					runStart, runEnd = start, end
				}
			case segment.Letter, segment.Kana:
				if !flush() || !e.emit(text[start:end], start, end, Word) {
					return
				}
			case segment.Number:
				if !flush() || !e.emit(text[start:end], start, end, Number) {
					return
				}
			default:
				if !flush() {
					return
				}
			}
			start = end
		}
		flush()
	}
}

// Terms returns the distinct terms of text in first-seen order.
func (t *Tokenizer) Terms(text string) []string {
	seen := make(map[string]struct{})
	var terms []string
	for tok := range t.Tokens(text) {
		if _, ok := seen[tok.Term]; ok {
			continue
		}
		seen[tok.Term] = struct{}{}
		terms = append(terms, tok.Term)
	}
	return terms
}

// ideographs segments a run of ideographs starting at byte offset base.
// Words come from precise segmentation and are located left to right; the
// search-mode sub-words of each word are located inside that word.
func (t *Tokenizer) ideographs(run string, base int, e *emitter) bool {
	cursor := 0
	for _, word := range t.seg.Cut(run, true) {
		if strings.TrimSpace(word) == "" {
			continue
		}
		idx := strings.Index(run[cursor:], word)
		if idx < 0 {
			continue
		}
		wordStart := cursor + idx
		cursor = wordStart + len(word)

		emitted := make(map[[2]int]struct{})
		for _, sub := range t.seg.CutSearch(word, true) {
			off := strings.Index(word, sub)
			if sub == "" || off < 0 {
				continue
			}
			key := [2]int{off, len(sub)}
			if _, dup := emitted[key]; dup {
				continue
			}
			emitted[key] = struct{}{}
			start := base + wordStart + off
			if !e.emit(sub, start, start+len(sub), Ideographic) {
				return false
			}
		}
		if _, ok := emitted[[2]int{0, len(word)}]; !ok {
			start := base + wordStart
			if !e.emit(word, start, start+len(word), Ideographic) {
				return false
			}
		}
	}
	return true
}

type emitter struct {
	yield    func(Token) bool
	position int
}

func (e *emitter) emit(term string, start, end int, kind Kind) bool {
	e.position++
	return e.yield(Token{
		Term:     term,
		Start:    start,
		End:      end,
		Position: e.position,
		Kind:     kind,
	})
}
