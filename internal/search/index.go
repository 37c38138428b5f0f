package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/renderinc/tgsift/internal/logging"
	"github.com/renderinc/tgsift/internal/query"
	"github.com/renderinc/tgsift/internal/storage"
)

// Files inside an index location
const (
	RecordsFile  = "records.db"
	PostingsDir  = "postings.bleve"
	ManifestFile = "manifest.json"
)

// ManifestVersion is bumped whenever the on-disk layout changes
const ManifestVersion = 1

var (
	// ErrNotBuilt means the location holds no committed index
	ErrNotBuilt = errors.New("index not built")

	// ErrCorrupt means a committed index cannot be read back
	ErrCorrupt = errors.New("index corrupt")
)

// Manifest describes a committed index. It is written last, so its presence
// marks a complete build.
type Manifest struct {
	Version   int       `json:"version"`
	ExportDir string    `json:"export_dir"`
	Records   int       `json:"records"`
	Pages     int       `json:"pages"`
	Skipped   []string  `json:"skipped,omitempty"`
	BuiltAt   time.Time `json:"built_at"`
}

// Index is a read-only handle on a committed index location
type Index struct {
	index    bleve.Index
	db       *storage.DB
	manifest Manifest
	location string
	log      *slog.Logger
}

// buildIndexMapping maps sender and content through the mixed-script
// analyzer, date as a sortable keyword and has_link as a boolean
func buildIndexMapping() (mapping.IndexMapping, error) {
	indexMapping := bleve.NewIndexMapping()
	err := indexMapping.AddCustomAnalyzer(AnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     TokenizerName,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("register analyzer: %w", err)
	}

	senderFieldMapping := bleve.NewTextFieldMapping()
	senderFieldMapping.Analyzer = AnalyzerName
	senderFieldMapping.Store = false
	senderFieldMapping.IncludeTermVectors = true

	// Content is stored for highlighting
	contentFieldMapping := bleve.NewTextFieldMapping()
	contentFieldMapping.Analyzer = AnalyzerName
	contentFieldMapping.Store = true
	contentFieldMapping.IncludeTermVectors = true

	dateFieldMapping := bleve.NewKeywordFieldMapping()
	dateFieldMapping.Store = false
	dateFieldMapping.IncludeInAll = false
	dateFieldMapping.DocValues = true

	linkFieldMapping := bleve.NewBooleanFieldMapping()
	linkFieldMapping.Store = false
	linkFieldMapping.IncludeInAll = false

	docMapping := bleve.NewDocumentMapping()
	docMapping.Dynamic = false
	docMapping.AddFieldMappingsAt(query.FieldSender, senderFieldMapping)
	docMapping.AddFieldMappingsAt(query.FieldContent, contentFieldMapping)
	docMapping.AddFieldMappingsAt(query.FieldDate, dateFieldMapping)
	docMapping.AddFieldMappingsAt(query.FieldHasLink, linkFieldMapping)

	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = AnalyzerName
	indexMapping.StoreDynamic = false
	indexMapping.IndexDynamic = false
	indexMapping.DocValuesDynamic = false

	return indexMapping, nil
}

// indexedFields is the postings document of one record
func indexedFields(rec *storage.Record) map[string]interface{} {
	doc := map[string]interface{}{
		query.FieldSender:  rec.Sender,
		query.FieldContent: rec.Content,
		query.FieldHasLink: rec.HasLink,
	}
	if rec.Date != "" {
		doc[query.FieldDate] = rec.Date
	}
	return doc
}

// Exists reports whether location holds a committed manifest
func Exists(location string) bool {
	_, err := os.Stat(filepath.Join(location, ManifestFile))
	return err == nil
}

// ReadManifest loads the manifest of location
func ReadManifest(location string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(location, ManifestFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotBuilt
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read manifest: %w", ErrCorrupt, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: parse manifest: %w", ErrCorrupt, err)
	}
	if m.Version != ManifestVersion {
		return nil, fmt.Errorf("%w: manifest version %d, want %d", ErrCorrupt, m.Version, ManifestVersion)
	}
	return &m, nil
}

func writeManifest(location string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp := filepath.Join(location, ManifestFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(location, ManifestFile))
}

// Open opens a committed index for searching. Many handles may be open on
// the same location at once.
func Open(location string) (*Index, error) {
	m, err := ReadManifest(location)
	if err != nil {
		return nil, err
	}

	recordsPath := filepath.Join(location, RecordsFile)
	if _, err := os.Stat(recordsPath); err != nil {
		return nil, fmt.Errorf("%w: record store: %w", ErrCorrupt, err)
	}
	db, err := storage.OpenReadOnly(recordsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: record store: %w", ErrCorrupt, err)
	}

	idx, err := bleve.OpenUsing(filepath.Join(location, PostingsDir), map[string]interface{}{
		"read_only": true,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: postings: %w", ErrCorrupt, err)
	}

	i := &Index{
		index:    idx,
		db:       db,
		manifest: *m,
		location: location,
		log:      logging.ForComponent(logging.CompSearch),
	}

	if err := i.verify(); err != nil {
		i.Close()
		return nil, err
	}
	return i, nil
}

// verify checks both stores hold the record count the manifest promised
func (i *Index) verify() error {
	records, err := i.db.Count()
	if err != nil {
		return fmt.Errorf("%w: count records: %w", ErrCorrupt, err)
	}
	docs, err := i.index.DocCount()
	if err != nil {
		return fmt.Errorf("%w: count postings: %w", ErrCorrupt, err)
	}
	if records != i.manifest.Records || docs != uint64(i.manifest.Records) {
		return fmt.Errorf("%w: manifest lists %d records, found %d records and %d postings",
			ErrCorrupt, i.manifest.Records, records, docs)
	}
	return nil
}

// Close releases both stores
func (i *Index) Close() error {
	return errors.Join(i.index.Close(), i.db.Close())
}

// Manifest returns the manifest the index was opened with
func (i *Index) Manifest() Manifest {
	return i.manifest
}

// Location returns the index directory
func (i *Index) Location() string {
	return i.location
}

// Count returns the number of searchable records
func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}

// Record returns one record by id, or nil when absent
func (i *Index) Record(id string) (*storage.Record, error) {
	return i.db.Get(id)
}

// Records returns every record in scan order
func (i *Index) Records() ([]*storage.Record, error) {
	return i.db.List()
}

// Bounds is the inclusive date span of an index
type Bounds struct {
	Min string `json:"min"`
	Max string `json:"max"`
}

// DateBounds returns the earliest and latest record dates. ok is false when
// no record carries a date.
func (i *Index) DateBounds() (b Bounds, ok bool, err error) {
	lo, hi, ok, err := i.db.DateBounds()
	if err != nil || !ok {
		return Bounds{}, false, err
	}
	return Bounds{Min: lo, Max: hi}, true, nil
}

// Writer builds a fresh index at a location. Nothing it writes becomes
// visible to Open until Commit succeeds.
type Writer struct {
	location string
	db       *storage.DB
	tx       *storage.Writer
	index    bleve.Index
	batch    *bleve.Batch
	count    int
	done     bool
	log      *slog.Logger
}

// Create clears location and starts a new build there
func Create(ctx context.Context, location string) (*Writer, error) {
	if err := os.RemoveAll(location); err != nil {
		return nil, fmt.Errorf("clear location: %w", err)
	}
	if err := os.MkdirAll(location, 0o755); err != nil {
		return nil, fmt.Errorf("create location: %w", err)
	}

	w := &Writer{location: location, log: logging.ForComponent(logging.CompIndex)}
	if err := w.open(ctx); err != nil {
		w.discard()
		return nil, err
	}
	return w, nil
}

func (w *Writer) open(ctx context.Context) error {
	db, err := storage.Open(filepath.Join(w.location, RecordsFile))
	if err != nil {
		return fmt.Errorf("create record store: %w", err)
	}
	w.db = db

	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin records: %w", err)
	}
	w.tx = tx

	indexMapping, err := buildIndexMapping()
	if err != nil {
		return err
	}
	idx, err := bleve.New(filepath.Join(w.location, PostingsDir), indexMapping)
	if err != nil {
		return fmt.Errorf("create postings: %w", err)
	}
	w.index = idx
	w.batch = idx.NewBatch()
	return nil
}

// Add stages one record. A repeated id replaces the earlier staging.
func (w *Writer) Add(rec *storage.Record) error {
	if w.done {
		return errors.New("writer closed")
	}
	if err := w.tx.Upsert(rec); err != nil {
		return fmt.Errorf("stage record %s: %w", rec.ID, err)
	}
	if err := w.batch.Index(rec.ID, indexedFields(rec)); err != nil {
		return fmt.Errorf("stage postings %s: %w", rec.ID, err)
	}
	w.count++
	return nil
}

// Commit makes the staged records searchable. The manifest record count is
// taken from the record store, so duplicate ids count once.
func (w *Writer) Commit(m Manifest) error {
	if w.done {
		return errors.New("writer closed")
	}
	w.done = true

	if err := w.tx.Commit(); err != nil {
		w.discard()
		return fmt.Errorf("commit records: %w", err)
	}
	w.tx = nil

	if err := w.index.Batch(w.batch); err != nil {
		w.discard()
		return fmt.Errorf("commit postings: %w", err)
	}

	records, err := w.db.Count()
	if err != nil {
		w.discard()
		return fmt.Errorf("count records: %w", err)
	}

	if err := errors.Join(w.index.Close(), w.db.Close()); err != nil {
		w.index, w.db = nil, nil
		w.discard()
		return fmt.Errorf("close stores: %w", err)
	}
	w.index, w.db = nil, nil

	m.Version = ManifestVersion
	m.Records = records
	if m.BuiltAt.IsZero() {
		m.BuiltAt = time.Now().UTC()
	}
	if err := writeManifest(w.location, &m); err != nil {
		w.discard()
		return fmt.Errorf("write manifest: %w", err)
	}

	w.log.Info("index committed", "location", w.location, "records", records, "staged", w.count)
	return nil
}

// Abort discards everything staged and removes the location
func (w *Writer) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	return w.discard()
}

func (w *Writer) discard() error {
	var errs []error
	if w.tx != nil {
		errs = append(errs, w.tx.Rollback())
		w.tx = nil
	}
	if w.index != nil {
		errs = append(errs, w.index.Close())
		w.index = nil
	}
	if w.db != nil {
		errs = append(errs, w.db.Close())
		w.db = nil
	}
	errs = append(errs, os.RemoveAll(w.location))
	return errors.Join(errs...)
}
