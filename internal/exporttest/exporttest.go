// Package exporttest writes small chat exports for tests.
package exporttest

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Msg describes one message node of a fixture page.
type Msg struct {
	ID      string
	Sender  string // "" omits the from_name node (a "joined" message)
	Text    string // "" omits the text node
	Label   string // date title, e.g. "28.02.2021 15:34:12 UTC+03:00"
	Link    string // when set, appended to the text as an anchor
	Service bool   // service notice instead of a default message
}

// Label formats a native export timestamp for the given day.
func Label(year, month, day int) string {
	return fmt.Sprintf("%02d.%02d.%04d 12:00:00 UTC+03:00", day, month, year)
}

// Page renders msgs as an export page.
func Page(msgs ...Msg) string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"/><title>Exported Data</title><link href="css/style.css" rel="stylesheet"/></head>
<body>
<div class="page_wrap">
<div class="page_body chat_page">
<div class="history">
`)
	for _, m := range msgs {
		if m.Service {
			fmt.Fprintf(&b, `<div class="message service" id="%s"><div class="body details">%s</div></div>
`, html.EscapeString(m.ID), html.EscapeString(m.Text))
			continue
		}
		fmt.Fprintf(&b, `<div class="message default clearfix" id="%s">
<div class="body">
`, html.EscapeString(m.ID))
		if m.Label != "" {
			fmt.Fprintf(&b, `<div class="pull_right date details" title="%s">12:00</div>
`, html.EscapeString(m.Label))
		}
		if m.Sender != "" {
			fmt.Fprintf(&b, `<div class="from_name">%s</div>
`, html.EscapeString(m.Sender))
		}
		if m.Text != "" || m.Link != "" {
			b.WriteString(`<div class="text">`)
			b.WriteString(html.EscapeString(m.Text))
			if m.Link != "" {
				fmt.Fprintf(&b, ` <a href="%s">%s</a>`, html.EscapeString(m.Link), html.EscapeString(m.Link))
			}
			b.WriteString("</div>\n")
		}
		b.WriteString("</div>\n</div>\n")
	}
	b.WriteString("</div>\n</div>\n</div>\n</body>\n</html>\n")
	return b.String()
}

// PageName returns the file name of page n (1-based).
func PageName(n int) string {
	if n == 1 {
		return "messages.html"
	}
	return fmt.Sprintf("messages%d.html", n)
}

// Write creates an export in a temp dir with one file per page and returns
// the directory.
func Write(t testing.TB, pages ...[]Msg) string {
	t.Helper()
	dir := t.TempDir()
	for i, msgs := range pages {
		WriteFile(t, filepath.Join(dir, PageName(i+1)), Page(msgs...))
	}
	return dir
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// Series returns n default messages with ids prefix1..prefixN, alternating
// senders, one per day starting at 2021-01-01.
func Series(prefix string, n int) []Msg {
	msgs := make([]Msg, n)
	for i := range msgs {
		sender := "Alice"
		if i%2 == 1 {
			sender = "Bob"
		}
		msgs[i] = Msg{
			ID:     fmt.Sprintf("%s%d", prefix, i+1),
			Sender: sender,
			Text:   fmt.Sprintf("message number %d", i+1),
			Label:  Label(2021, 1+(i/28)%12, 1+i%28),
		}
	}
	return msgs
}
