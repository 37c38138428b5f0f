package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderinc/tgsift/internal/export"
	"github.com/renderinc/tgsift/internal/exporttest"
	"github.com/renderinc/tgsift/internal/search"
	"github.com/renderinc/tgsift/internal/storage"
)

func newBuilder() *Builder {
	return NewBuilder(Options{Workers: 2})
}

func records(t *testing.T, location string) []*storage.Record {
	t.Helper()
	idx, err := search.Open(location)
	require.NoError(t, err)
	defer idx.Close()
	recs, err := idx.Records()
	require.NoError(t, err)
	return recs
}

func TestBuild_Commits(t *testing.T) {
	dir := exporttest.Write(t, exporttest.Series("a", 5), exporttest.Series("b", 4))
	location := filepath.Join(t.TempDir(), "loc")

	res, err := newBuilder().Build(context.Background(), dir, location, nil)
	require.NoError(t, err)
	assert.Equal(t, 9, res.Total)
	assert.Equal(t, 2, res.Pages)
	assert.Empty(t, res.Skipped)
	assert.Equal(t, location, res.Location)

	recs := records(t, location)
	require.Len(t, recs, 9)
	assert.Equal(t, "a1", recs[0].ID)
	assert.Equal(t, "b4", recs[8].ID)
	assert.Equal(t, "2021.01.01", recs[0].Date)
}

func TestBuild_Idempotent(t *testing.T) {
	dir := exporttest.Write(t, exporttest.Series("a", 20), exporttest.Series("b", 20))
	b := newBuilder()

	first := filepath.Join(t.TempDir(), "one")
	second := filepath.Join(t.TempDir(), "two")
	_, err := b.Build(context.Background(), dir, first, nil)
	require.NoError(t, err)
	_, err = b.Build(context.Background(), dir, second, nil)
	require.NoError(t, err)

	assert.ElementsMatch(t, records(t, first), records(t, second))
}

func TestBuild_UniqueIDs(t *testing.T) {
	dup := exporttest.Series("m", 3)
	dir := exporttest.Write(t, dup, dup)
	location := filepath.Join(t.TempDir(), "loc")

	res, err := newBuilder().Build(context.Background(), dir, location, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)

	seen := map[string]bool{}
	for _, r := range records(t, location) {
		assert.False(t, seen[r.ID], "duplicate %s", r.ID)
		seen[r.ID] = true
	}
}

func TestBuild_Progress(t *testing.T) {
	dir := exporttest.Write(t, exporttest.Series("m", 250))
	b := NewBuilder(Options{ProgressEvery: 100})

	var reports []Progress
	_, err := b.Build(context.Background(), dir, filepath.Join(t.TempDir(), "loc"), func(p Progress) {
		reports = append(reports, p)
	})
	require.NoError(t, err)
	assert.Equal(t, []Progress{{0, 250}, {100, 250}, {200, 250}, {250, 250}}, reports)
}

func TestBuild_ProgressExactMultiple(t *testing.T) {
	dir := exporttest.Write(t, exporttest.Series("m", 200))
	b := NewBuilder(Options{ProgressEvery: 100})

	var reports []Progress
	_, err := b.Build(context.Background(), dir, filepath.Join(t.TempDir(), "loc"), func(p Progress) {
		reports = append(reports, p)
	})
	require.NoError(t, err)
	assert.Equal(t, []Progress{{0, 200}, {100, 200}, {200, 200}}, reports)
}

func TestBuild_SkipsBrokenPage(t *testing.T) {
	dir := exporttest.Write(t, exporttest.Series("a", 3))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "messages2.html"), 0o755))
	exporttest.WriteFile(t, filepath.Join(dir, "messages3.html"), exporttest.Page(exporttest.Series("c", 2)...))

	res, err := newBuilder().Build(context.Background(), dir, filepath.Join(t.TempDir(), "loc"), nil)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 3, res.Pages)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, filepath.Join(dir, "messages2.html"), res.Skipped[0].Path)
}

func TestBuild_CanceledLeavesNotBuilt(t *testing.T) {
	dir := exporttest.Write(t, exporttest.Series("m", 300))
	location := filepath.Join(t.TempDir(), "loc")
	b := NewBuilder(Options{ProgressEvery: 100})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := b.Build(ctx, dir, location, func(p Progress) {
		if p.Done == 100 {
			cancel()
		}
	})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = search.Open(location)
	assert.ErrorIs(t, err, search.ErrNotBuilt)
	assert.NoDirExists(t, location)
	assert.False(t, b.Building(location))
}

func TestBuild_CanceledReplacesPreviousIndex(t *testing.T) {
	dir := exporttest.Write(t, exporttest.Series("m", 10))
	location := filepath.Join(t.TempDir(), "loc")
	b := newBuilder()

	_, err := b.Build(context.Background(), dir, location, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Build(ctx, dir, location, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, search.Exists(location))
}

func TestBuild_InvalidExport(t *testing.T) {
	location := filepath.Join(t.TempDir(), "loc")
	_, err := newBuilder().Build(context.Background(), t.TempDir(), location, nil)
	assert.ErrorIs(t, err, export.ErrInvalidExport)
	assert.NoDirExists(t, location)
}

func TestBuild_InProgress(t *testing.T) {
	dir := exporttest.Write(t, exporttest.Series("m", 3))
	location := filepath.Join(t.TempDir(), "loc")
	b := newBuilder()

	require.NoError(t, b.acquire(location))
	_, err := b.Build(context.Background(), dir, location, nil)
	assert.ErrorIs(t, err, ErrBuildInProgress)
	_, err = b.Start(context.Background(), dir, location)
	assert.ErrorIs(t, err, ErrBuildInProgress)

	b.release(location)
	_, err = b.Build(context.Background(), dir, location, nil)
	assert.NoError(t, err)
}

func TestLocation(t *testing.T) {
	root := t.TempDir()
	dir := t.TempDir()

	a, err := Location(root, dir)
	require.NoError(t, err)
	b, err := Location(root, filepath.Join(dir, ".", "sub", ".."))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, filepath.Join(root, IndexesDir), filepath.Dir(a))
	assert.Len(t, filepath.Base(a), 32)

	other, err := Location(root, t.TempDir())
	require.NoError(t, err)
	assert.NotEqual(t, a, other)
}

func TestLocation_FollowsSymlink(t *testing.T) {
	root := t.TempDir()
	dir := t.TempDir()
	link := filepath.Join(t.TempDir(), "link")
	if err := os.Symlink(dir, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	a, err := Location(root, dir)
	require.NoError(t, err)
	b, err := Location(root, link)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestChangedPages(t *testing.T) {
	dir := exporttest.Write(t, exporttest.Series("a", 3), exporttest.Series("b", 3))
	location := filepath.Join(t.TempDir(), "loc")
	_, err := newBuilder().Build(context.Background(), dir, location, nil)
	require.NoError(t, err)

	m, err := search.ReadManifest(location)
	require.NoError(t, err)

	changed, err := ChangedPages(*m)
	require.NoError(t, err)
	assert.Empty(t, changed)

	later := m.BuiltAt.Add(time.Hour)
	second := filepath.Join(m.ExportDir, exporttest.PageName(2))
	require.NoError(t, os.Chtimes(second, later, later))

	changed, err = ChangedPages(*m)
	require.NoError(t, err)
	assert.Equal(t, []string{second}, changed)
}
