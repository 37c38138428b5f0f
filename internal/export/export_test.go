package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderinc/tgsift/internal/exporttest"
)

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"28.02.2021 15:34:12 UTC+03:00", "2021.02.28"},
		{"01.12.2019 00:00:01", "2019.12.01"},
		{"1.2.2020 10:00:00", "2020.02.01"},
		{"28.02.2021", "2021.02.28"},
		{"  05.06.2022   09:00:00 ", "2022.06.05"},
		{"", ""},
		{"2021-02-28 15:34:12", ""},
		{"28.02 15:34", ""},
		{"1.2.3.4 00:00", ""},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeDate(tt.label))
		})
	}
}

func TestNormalizeDate_LexicographicMatchesChronological(t *testing.T) {
	labels := []string{
		"31.12.2020 23:59:59",
		"01.01.2021 00:00:00",
		"09.01.2021 08:00:00",
		"10.01.2021 08:00:00",
		"02.10.2021 08:00:00",
	}
	for i := 1; i < len(labels); i++ {
		prev, cur := NormalizeDate(labels[i-1]), NormalizeDate(labels[i])
		assert.Less(t, prev, cur, "%s should sort before %s", labels[i-1], labels[i])
	}
}

func TestValidate(t *testing.T) {
	dir := exporttest.Write(t, exporttest.Series("message", 1))
	assert.NoError(t, Validate(dir))

	empty := t.TempDir()
	err := Validate(empty)
	assert.ErrorIs(t, err, ErrInvalidExport)

	err = Validate(filepath.Join(empty, "missing"))
	assert.ErrorIs(t, err, ErrInvalidExport)

	file := filepath.Join(dir, FirstPage)
	err = Validate(file)
	assert.ErrorIs(t, err, ErrInvalidExport)
}

func TestPages_Order(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"messages10.html", "messages.html", "messages2.html", "messages_extra.html", "index.html", "messages3.htm"} {
		exporttest.WriteFile(t, filepath.Join(dir, name), "<html></html>")
	}

	pages, err := Pages(dir)
	require.NoError(t, err)

	var names []string
	for _, p := range pages {
		names = append(names, filepath.Base(p.Path))
	}
	assert.Equal(t, []string{"messages.html", "messages2.html", "messages10.html", "messages_extra.html"}, names)
	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, 10, pages[2].Number)
	assert.Equal(t, 0, pages[3].Number)
}

func TestExtract_Fields(t *testing.T) {
	page := exporttest.Page(
		exporttest.Msg{ID: "service1", Text: "Alice joined the group", Service: true},
		exporttest.Msg{ID: "message1", Sender: "Alice", Text: "hello world", Label: "28.02.2021 15:34:12 UTC+03:00"},
		exporttest.Msg{ID: "message2", Text: "no author here", Label: "01.03.2021 10:00:00"},
		exporttest.Msg{ID: "message3", Sender: "Bob", Text: "see", Link: "https://example.com"},
		exporttest.Msg{ID: "message4", Sender: "Bob"},
	)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)

	msgs, err := Extract(doc.Selection, Indexable)
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	first := msgs[0]
	assert.Equal(t, "message1", first.ID)
	assert.Equal(t, "Alice", first.Sender)
	assert.Equal(t, "hello world", first.Content)
	assert.Equal(t, "2021.02.28", first.Date)
	assert.Equal(t, "28.02.2021 15:34:12 UTC+03:00", first.DateLabel)
	assert.False(t, first.HasLink)
	assert.Contains(t, first.RawMarkup, `class="text"`)

	assert.Equal(t, UnknownSender, msgs[1].Sender)
	assert.Equal(t, "2021.03.01", msgs[1].Date)

	assert.True(t, msgs[2].HasLink)
	assert.Contains(t, msgs[2].RawMarkup, `href="https://example.com"`)
	assert.Equal(t, "", msgs[2].Date)
}

func TestExtract_ContextualIncludesService(t *testing.T) {
	page := exporttest.Page(
		exporttest.Msg{ID: "service1", Text: "pinned a message", Service: true},
		exporttest.Msg{ID: "message1", Sender: "Alice", Text: "hello"},
	)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)

	assert.Equal(t, 2, doc.Find(Contextual.Selector()).Length())
	assert.Equal(t, 1, doc.Find(Indexable.Selector()).Length())

	nodes := doc.Find(Contextual.Selector()).Nodes
	assert.True(t, IsService(nodes[0]))
	assert.True(t, Contextual.Match(nodes[0]))
	assert.False(t, Indexable.Match(nodes[0]))
	assert.True(t, Indexable.Match(nodes[1]))
	assert.False(t, IsService(nodes[1]))
}

func TestScanner_Scan(t *testing.T) {
	dir := exporttest.Write(t,
		exporttest.Series("a", 5),
		exporttest.Series("b", 3),
	)

	result, err := NewScanner(2).Scan(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Pages)
	assert.Empty(t, result.Skipped)
	require.Len(t, result.Messages, 8)
	assert.Equal(t, "a1", result.Messages[0].ID)
	assert.Equal(t, "b3", result.Messages[7].ID)
}

func TestScanner_SkipsUnreadablePage(t *testing.T) {
	dir := exporttest.Write(t, exporttest.Series("a", 2))
	// A directory named like a page cannot be read as a file.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "messages2.html"), 0o755))
	exporttest.WriteFile(t, filepath.Join(dir, "messages3.html"), exporttest.Page(exporttest.Series("c", 1)...))

	result, err := NewScanner(1).Scan(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Pages)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, filepath.Join(dir, "messages2.html"), result.Skipped[0].Path)
	assert.Len(t, result.Messages, 3)
}

func TestScanner_InvalidExport(t *testing.T) {
	_, err := NewScanner(1).Scan(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrInvalidExport)
}

func TestScanner_Canceled(t *testing.T) {
	dir := exporttest.Write(t, exporttest.Series("a", 2))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewScanner(1).Scan(ctx, dir)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestStylesheet(t *testing.T) {
	dir := exporttest.Write(t, exporttest.Series("a", 1))
	assert.Equal(t, "", Stylesheet(dir))

	exporttest.WriteFile(t, filepath.Join(dir, "css", "common.css"), "body{color:red}")
	assert.Equal(t, "body{color:red}", Stylesheet(dir))

	exporttest.WriteFile(t, filepath.Join(dir, "css", "style.css"), ".message{}")
	assert.Equal(t, ".message{}", Stylesheet(dir))
}
