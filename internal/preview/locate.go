package preview

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/renderinc/tgsift/internal/export"
)

// Source is the page file that holds a message
type Source struct {
	Path string `json:"path"`
	ID   string `json:"id"`
}

// URL returns a file URL of the page anchored at the message
func (s *Source) URL() string {
	abs, err := filepath.Abs(s.Path)
	if err != nil {
		abs = s.Path
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs), Fragment: s.ID}
	return u.String()
}

// Locate finds the first page, in page order, whose raw bytes carry the id
// attribute of the message. Pages are not parsed.
func Locate(ctx context.Context, exportDir, id string) (*Source, error) {
	if err := export.Validate(exportDir); err != nil {
		return nil, err
	}
	pages, err := export.Pages(exportDir)
	if err != nil {
		return nil, err
	}

	needles := [][]byte{
		[]byte(`id="` + id + `"`),
		[]byte(`id='` + id + `'`),
	}
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(page.Path)
		if err != nil {
			continue
		}
		for _, n := range needles {
			if bytes.Contains(data, n) {
				return &Source{Path: page.Path, ID: id}, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}
