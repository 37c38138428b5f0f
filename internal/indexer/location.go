package indexer

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/renderinc/tgsift/internal/export"
	"github.com/renderinc/tgsift/internal/search"
)

// IndexesDir is the directory under the data root holding one location per
// export
const IndexesDir = "indexes"

// CanonicalPath returns the absolute, cleaned form of dir with symlinks
// resolved when possible
func CanonicalPath(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", dir, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return filepath.Clean(abs), nil
}

// Location maps an export to its index directory under dataRoot. The name
// depends only on the export's canonical path, never on its contents.
func Location(dataRoot, exportDir string) (string, error) {
	canonical, err := CanonicalPath(exportDir)
	if err != nil {
		return "", err
	}
	sum := md5.Sum([]byte(canonical))
	return filepath.Join(dataRoot, IndexesDir, hex.EncodeToString(sum[:])), nil
}

// ChangedPages lists the export pages modified after the manifest's build
// time. Indexes are never rebuilt on their own; callers only report this.
func ChangedPages(m search.Manifest) ([]string, error) {
	pages, err := export.Pages(m.ExportDir)
	if err != nil {
		return nil, err
	}
	var changed []string
	for _, p := range pages {
		info, err := os.Stat(p.Path)
		if err != nil {
			return nil, err
		}
		if info.ModTime().After(m.BuiltAt) {
			changed = append(changed, p.Path)
		}
	}
	return changed, nil
}
