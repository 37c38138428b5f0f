package search

import (
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/registry"

	"github.com/renderinc/tgsift/internal/tokenizer"
)

// TokenizerName is the bleve registry name of the mixed-script tokenizer.
const TokenizerName = "tgsift_mixed"

// AnalyzerName is the analyzer applied to sender and content.
const AnalyzerName = "tgsift_chat"

func init() {
	if err := registry.RegisterTokenizer(TokenizerName, tokenizerConstructor); err != nil {
		panic(err)
	}
}

func tokenizerConstructor(_ map[string]interface{}, _ *registry.Cache) (analysis.Tokenizer, error) {
	tok, err := tokenizer.Default()
	if err != nil {
		return nil, err
	}
	return &bleveTokenizer{tok: tok}, nil
}

// bleveTokenizer adapts tokenizer.Tokenizer to bleve's analysis pipeline.
type bleveTokenizer struct {
	tok *tokenizer.Tokenizer
}

func (b *bleveTokenizer) Tokenize(input []byte) analysis.TokenStream {
	var stream analysis.TokenStream
	for tk := range b.tok.Tokens(string(input)) {
		stream = append(stream, &analysis.Token{
			Term:     []byte(tk.Term),
			Start:    tk.Start,
			End:      tk.End,
			Position: tk.Position,
			Type:     tokenType(tk.Kind),
		})
	}
	return stream
}

func tokenType(k tokenizer.Kind) analysis.TokenType {
	switch k {
	case tokenizer.Ideographic:
		return analysis.Ideographic
	case tokenizer.Number:
		return analysis.Numeric
	default:
		return analysis.AlphaNumeric
	}
}
