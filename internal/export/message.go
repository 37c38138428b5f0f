package export

import (
	"fmt"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// UnknownSender is used when a message carries no author name.
const UnknownSender = "Unknown"

// linkMarker is the hyperlink attribute whose presence sets HasLink.
const linkMarker = "href="

// Message is one chat message extracted from a page.
type Message struct {
	ID        string
	Sender    string
	Content   string // plain text, used for matching and snippets
	RawMarkup string // rendered markup of the text node, for display only
	Date      string // YYYY.MM.DD, "" when the native label is unparseable
	DateLabel string // the export's own timestamp label
	HasLink   bool
}

// ReadPage parses a page into a document tree.
func ReadPage(path string) (*goquery.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("parse page %s: %w", path, err)
	}
	return doc, nil
}

// Extract returns the messages under root matched by rule, in document
// order. Messages with no text are dropped.
func Extract(root *goquery.Selection, rule Rule) ([]Message, error) {
	var (
		out      []Message
		firstErr error
	)
	root.Find(rule.Selector()).Each(func(_ int, s *goquery.Selection) {
		if firstErr != nil {
			return
		}
		msg, err := MessageFrom(s)
		if err != nil {
			firstErr = err
			return
		}
		if msg.Content != "" {
			out = append(out, msg)
		}
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// MessageFrom builds a Message from a message node. The returned message
// may have empty Content; callers decide whether to keep it.
func MessageFrom(s *goquery.Selection) (Message, error) {
	id, _ := s.Attr("id")

	sender := UnknownSender
	if from := s.Find("div.from_name").First(); from.Length() > 0 {
		sender = strings.TrimSpace(from.Text())
	}

	var content, markup string
	if text := s.Find("div.text").First(); text.Length() > 0 {
		content = strings.TrimSpace(text.Text())
		rendered, err := goquery.OuterHtml(text)
		if err != nil {
			return Message{}, fmt.Errorf("render message %s: %w", id, err)
		}
		markup = rendered
	}

	var label string
	if date := s.Find("div.date").First(); date.Length() > 0 {
		title, _ := date.Attr("title")
		label = strings.TrimSpace(title)
	}

	return Message{
		ID:        id,
		Sender:    sender,
		Content:   content,
		RawMarkup: markup,
		Date:      NormalizeDate(label),
		DateLabel: label,
		HasLink:   strings.Contains(markup, linkMarker),
	}, nil
}

// NormalizeDate turns a native "D.M.Y hh:mm:ss ..." label into a sortable
// "Y.M.D". Single-digit day and month are zero-padded. Labels whose date
// part does not have exactly three dot-separated components yield "".
func NormalizeDate(label string) string {
	fields := strings.Fields(label)
	if len(fields) == 0 {
		return ""
	}
	parts := strings.Split(fields[0], ".")
	if len(parts) != 3 {
		return ""
	}
	day, month, year := pad2(parts[0]), pad2(parts[1]), parts[2]
	return year + "." + month + "." + day
}

func pad2(s string) string {
	if len(s) == 1 && s[0] >= '0' && s[0] <= '9' {
		return "0" + s
	}
	return s
}
