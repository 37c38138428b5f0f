package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite record table of one index
type DB struct {
	db *sql.DB
}

// Open opens or creates a record database and ensures the schema exists
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	storage := &DB{db: db}
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return storage, nil
}

// OpenReadOnly opens an existing record database without modifying it
func OpenReadOnly(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	var name string
	err = db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'messages'").Scan(&name)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("check schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database
func (d *DB) Close() error {
	return d.db.Close()
}

// initSchema creates tables if they don't exist
func (d *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		sender TEXT NOT NULL,
		content TEXT NOT NULL,
		raw_markup TEXT NOT NULL,
		date TEXT NOT NULL,
		date_label TEXT NOT NULL,
		has_link INTEGER NOT NULL,
		seq INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sender ON messages(sender);
	CREATE INDEX IF NOT EXISTS idx_date ON messages(date);
	CREATE INDEX IF NOT EXISTS idx_seq ON messages(seq);
	`

	_, err := d.db.Exec(schema)
	return err
}

const upsertQuery = `
	INSERT INTO messages (
		id, sender, content, raw_markup, date, date_label, has_link, seq
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		sender = excluded.sender,
		content = excluded.content,
		raw_markup = excluded.raw_markup,
		date = excluded.date,
		date_label = excluded.date_label,
		has_link = excluded.has_link,
		seq = excluded.seq
	`

const selectColumns = `id, sender, content, raw_markup, date, date_label, has_link, seq`

// Upsert inserts or replaces a record outside of any batch
func (d *DB) Upsert(rec *Record) error {
	_, err := d.db.Exec(upsertQuery,
		rec.ID, rec.Sender, rec.Content, rec.RawMarkup, rec.Date, rec.DateLabel, rec.HasLink, rec.Seq,
	)
	return err
}

// Writer batches upserts into a single transaction
type Writer struct {
	tx   *sql.Tx
	stmt *sql.Stmt
}

// Begin starts a write transaction. Nothing written through the Writer is
// visible until Commit.
func (d *DB) Begin(ctx context.Context) (*Writer, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, upsertQuery)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("prepare upsert: %w", err)
	}
	return &Writer{tx: tx, stmt: stmt}, nil
}

// Upsert adds a record to the transaction; a repeated id replaces the
// earlier record
func (w *Writer) Upsert(rec *Record) error {
	_, err := w.stmt.Exec(
		rec.ID, rec.Sender, rec.Content, rec.RawMarkup, rec.Date, rec.DateLabel, rec.HasLink, rec.Seq,
	)
	return err
}

// Commit commits the transaction
func (w *Writer) Commit() error {
	w.stmt.Close()
	return w.tx.Commit()
}

// Rollback discards the transaction
func (w *Writer) Rollback() error {
	w.stmt.Close()
	return w.tx.Rollback()
}

// Get retrieves a record by ID
func (d *DB) Get(id string) (*Record, error) {
	row := d.db.QueryRow("SELECT "+selectColumns+" FROM messages WHERE id = ?", id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetMany retrieves records by ID. Missing IDs are absent from the map.
func (d *DB) GetMany(ctx context.Context, ids []string) (map[string]*Record, error) {
	const chunk = 500
	out := make(map[string]*Record, len(ids))
	for len(ids) > 0 {
		n := min(chunk, len(ids))
		part := ids[:n]
		ids = ids[n:]

		args := make([]any, len(part))
		for i, id := range part {
			args[i] = id
		}
		query := "SELECT " + selectColumns + " FROM messages WHERE id IN (?" + strings.Repeat(",?", len(part)-1) + ")"

		rows, err := d.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			out[rec.ID] = rec
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

// List retrieves all records in scan order
func (d *DB) List() ([]*Record, error) {
	rows, err := d.db.Query("SELECT " + selectColumns + " FROM messages ORDER BY seq")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	return recs, rows.Err()
}

// Count returns the total number of records
func (d *DB) Count() (int, error) {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM messages").Scan(&count)
	return count, err
}

// DateBounds returns the smallest and largest non-empty dates. ok is false
// when no record has a date.
func (d *DB) DateBounds() (minDate, maxDate string, ok bool, err error) {
	var lo, hi sql.NullString
	err = d.db.QueryRow("SELECT MIN(date), MAX(date) FROM messages WHERE date != ''").Scan(&lo, &hi)
	if err != nil {
		return "", "", false, err
	}
	if !lo.Valid || !hi.Valid {
		return "", "", false, nil
	}
	return lo.String, hi.String, true, nil
}

// Senders returns every distinct sender, most active first
func (d *DB) Senders() ([]SenderCount, error) {
	rows, err := d.db.Query("SELECT sender, COUNT(*) AS n FROM messages GROUP BY sender ORDER BY n DESC, sender")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SenderCount
	for rows.Next() {
		var sc SenderCount
		if err := rows.Scan(&sc.Sender, &sc.Count); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	rec := &Record{}
	err := row.Scan(
		&rec.ID, &rec.Sender, &rec.Content, &rec.RawMarkup, &rec.Date, &rec.DateLabel, &rec.HasLink, &rec.Seq,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}
