// Package preview rebuilds the neighborhood of a message from the export
// pages themselves, independent of any index.
package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"github.com/renderinc/tgsift/internal/export"
	"github.com/renderinc/tgsift/internal/logging"
)

// Span is how many message nodes are kept on each side of the target
const Span = 10

// TargetStyle marks the target message in a rendered window
const TargetStyle = "border: 2px solid #D35400; background-color: #FEF9E7; border-radius: 5px;"

// ErrNotFound means no page of the export holds the requested message
var ErrNotFound = errors.New("message not found")

// Entry is one message node of a window
type Entry struct {
	ID      string `json:"id"`
	Markup  string `json:"markup"`
	Service bool   `json:"service"`
	Target  bool   `json:"target"`
}

// Window is the ordered neighborhood of a target message
type Window struct {
	ExportDir   string  `json:"export_dir"`
	Page        string  `json:"page"`
	TargetID    string  `json:"target_id"`
	TargetIndex int     `json:"target_index"`
	Entries     []Entry `json:"entries"`
	Stylesheet  string  `json:"-"`
}

// Builder reconstructs windows. The zero value is not usable; call New.
type Builder struct {
	log *slog.Logger
}

// New creates a Builder
func New() *Builder {
	return &Builder{log: logging.ForComponent(logging.CompPreview)}
}

// Build scans the pages of exportDir in page order and returns the window
// around the first div with the given id.
func (b *Builder) Build(ctx context.Context, exportDir, id string) (*Window, error) {
	if err := export.Validate(exportDir); err != nil {
		return nil, err
	}
	pages, err := export.Pages(exportDir)
	if err != nil {
		return nil, err
	}

	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		root, err := parsePage(page.Path)
		if err != nil {
			b.log.Warn("skipping page", "path", page.Path, "error", err)
			continue
		}

		target := findDiv(root, id)
		if target == nil {
			continue
		}

		w := &Window{
			ExportDir:  exportDir,
			Page:       page.Path,
			TargetID:   id,
			Stylesheet: export.Stylesheet(exportDir),
		}
		if err := w.collect(target); err != nil {
			return nil, err
		}
		b.log.Debug("context built", "id", id, "page", page.Path, "entries", len(w.Entries))
		return w, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (w *Window) collect(target *html.Node) error {
	var before []*html.Node
	for n := target.PrevSibling; n != nil && len(before) < Span; n = n.PrevSibling {
		if export.Contextual.Match(n) {
			before = append(before, n)
		}
	}

	nodes := make([]*html.Node, 0, 2*Span+1)
	for i := len(before) - 1; i >= 0; i-- {
		nodes = append(nodes, before[i])
	}
	w.TargetIndex = len(nodes)
	nodes = append(nodes, target)

	after := 0
	for n := target.NextSibling; n != nil && after < Span; n = n.NextSibling {
		if export.Contextual.Match(n) {
			nodes = append(nodes, n)
			after++
		}
	}

	for i, n := range nodes {
		isTarget := i == w.TargetIndex
		if isTarget {
			markTarget(n)
		}
		markup, err := render(n)
		if err != nil {
			return fmt.Errorf("render message: %w", err)
		}
		id, _ := export.Attr(n, "id")
		w.Entries = append(w.Entries, Entry{
			ID:      id,
			Markup:  markup,
			Service: export.IsService(n),
			Target:  isTarget,
		})
	}
	return nil
}

// Markup concatenates the rendered entries
func (w *Window) Markup() string {
	var sb strings.Builder
	for _, e := range w.Entries {
		sb.WriteString(e.Markup)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Anchor is the fragment identifier of the target
func (w *Window) Anchor() string {
	return "#" + w.TargetID
}

var documentTemplate = template.Must(template.New("context").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8"/>
{{if .Base}}<base href="{{.Base}}"/>
{{end}}<style>{{.Style}}</style>
</head>
<body>
<div class="page_wrap">
<div class="page_body chat_page">
<div class="history">
{{.Body}}</div>
</div>
</div>
</body>
</html>
`))

// Document renders the window as a standalone page. Relative resources in
// the markup and stylesheet resolve against baseHref, normally the export
// directory (see FileBase).
func (w *Window) Document(baseHref string) (string, error) {
	var buf bytes.Buffer
	err := documentTemplate.Execute(&buf, map[string]any{
		"Base":  template.URL(baseHref),
		"Style": template.CSS(w.Stylesheet),
		"Body":  template.HTML(w.Markup()),
	})
	if err != nil {
		return "", fmt.Errorf("render document: %w", err)
	}
	return buf.String(), nil
}

// FileBase returns a file URL for dir with a trailing slash, usable as a
// document base
func FileBase(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	p := filepath.ToSlash(abs)
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return (&url.URL{Scheme: "file", Path: p}).String()
}

func parsePage(path string) (*html.Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return html.Parse(f)
}

// findDiv returns the first div in document order whose id is id
func findDiv(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode && n.Data == "div" {
		if v, ok := export.Attr(n, "id"); ok && v == id {
			return n
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findDiv(c, id); found != nil {
			return found
		}
	}
	return nil
}

// markTarget appends TargetStyle to the node's style attribute
func markTarget(n *html.Node) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == "style" {
			style := strings.TrimSpace(a.Val)
			if style != "" && !strings.HasSuffix(style, ";") {
				style += ";"
			}
			n.Attr[i].Val = strings.TrimSpace(style + " " + TargetStyle)
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: "style", Val: TargetStyle})
}

func render(n *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", err
	}
	return buf.String(), nil
}
