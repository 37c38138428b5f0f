// Package export reads a chat history export: a read-only folder of
// paginated HTML documents (messages.html, messages2.html, ...) plus an
// optional stylesheet. It lists the pages, checks the folder looks like an
// export, and extracts message records from the pages.
package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	// PagePrefix and PageExt bound the file names of paginated documents.
	PagePrefix = "messages"
	PageExt    = ".html"

	// FirstPage must exist for a folder to be treated as an export.
	FirstPage = PagePrefix + PageExt
)

// StylesheetPaths are the export-relative locations tried, in order, for the
// page stylesheet.
var StylesheetPaths = []string{
	filepath.Join("css", "style.css"),
	filepath.Join("css", "common.css"),
}

// ErrInvalidExport is returned when a folder is not a readable export.
var ErrInvalidExport = errors.New("invalid export")

// Page is one paginated document of an export.
type Page struct {
	Path   string
	Number int // 1 for messages.html, N for messagesN.html, 0 if unnumbered
}

// Validate checks that dir is a directory holding the first page.
func Validate(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidExport, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrInvalidExport, dir)
	}
	if _, err := os.Stat(filepath.Join(dir, FirstPage)); err != nil {
		return fmt.Errorf("%w: %s not found in %s", ErrInvalidExport, FirstPage, dir)
	}
	return nil
}

// Pages lists the paginated documents of dir in page order. Unnumbered pages
// that still match the naming convention sort after numbered ones, by name.
func Pages(dir string) ([]Page, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read export dir: %w", err)
	}

	var pages []Page
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, PagePrefix) || !strings.HasSuffix(name, PageExt) {
			continue
		}
		pages = append(pages, Page{
			Path:   filepath.Join(dir, name),
			Number: pageNumber(name),
		})
	}

	sort.SliceStable(pages, func(i, j int) bool {
		a, b := pages[i], pages[j]
		if (a.Number == 0) != (b.Number == 0) {
			return a.Number != 0
		}
		if a.Number != b.Number {
			return a.Number < b.Number
		}
		return a.Path < b.Path
	})
	return pages, nil
}

func pageNumber(name string) int {
	middle := strings.TrimSuffix(strings.TrimPrefix(name, PagePrefix), PageExt)
	if middle == "" {
		return 1
	}
	n, err := strconv.Atoi(middle)
	if err != nil || n < 1 {
		return 0
	}
	return n
}

// Stylesheet returns the export's stylesheet contents, or "" when the export
// ships none.
func Stylesheet(dir string) string {
	for _, rel := range StylesheetPaths {
		data, err := os.ReadFile(filepath.Join(dir, rel))
		if err == nil {
			return string(data)
		}
	}
	return ""
}
