package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/dgallion1/docrag/internal/ragerr"
	"github.com/dgallion1/docrag/internal/vectorstore/migrations"
)

// SQLite persists records in a single database file. Vectors are stored as little-endian
// float32 blobs and scored in process.
type SQLite struct {
	db   *sql.DB
	path string
	dim  atomic.Int64
}

// NewSQLite opens (creating if necessary) the database at path and applies migrations.
// The special path ":memory:" opens a private in-memory database.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// Each connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	s := &SQLite{db: db, path: path}
	if err := s.migrate(ctx, migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if err := s.refreshDimension(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate(ctx context.Context, fsys fs.FS) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *SQLite) refreshDimension(ctx context.Context) error {
	var dim int64
	err := s.db.QueryRowContext(ctx, "SELECT dim FROM records LIMIT 1").Scan(&dim)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("reading vector dimension: %w", err)
	}
	s.dim.Store(dim)
	return nil
}

// Path returns the database file path.
func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Dimension() int { return int(s.dim.Load()) }

func (s *SQLite) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	return s.write(ctx, "sqlite upsert", "", false, records)
}

func (s *SQLite) ReplaceDocument(ctx context.Context, docID string, records []Record) error {
	return s.write(ctx, "sqlite replace", docID, true, records)
}

// write runs the whole batch in one transaction; a failure leaves the table unchanged.
func (s *SQLite) write(ctx context.Context, op, docID string, replace bool, records []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if replace {
		if _, err := tx.ExecContext(ctx, "DELETE FROM records WHERE doc_id = ?", docID); err != nil {
			return fmt.Errorf("deleting document %s: %w", docID, err)
		}
	}

	var want int
	if err := tx.QueryRowContext(ctx, "SELECT dim FROM records LIMIT 1").Scan(&want); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("reading vector dimension: %w", err)
	}
	dim, err := batchDimension(op, want, records)
	if err != nil {
		return err
	}

	var seq int64
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), 0) FROM records").Scan(&seq); err != nil {
		return fmt.Errorf("reading sequence: %w", err)
	}

	query := `
		INSERT INTO records (id, doc_id, chunk_index, seq, text, filename, page_numbers, title, dim, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if !replace {
		query += `
		ON CONFLICT(id) DO UPDATE SET
			doc_id = excluded.doc_id,
			chunk_index = excluded.chunk_index,
			text = excluded.text,
			filename = excluded.filename,
			page_numbers = excluded.page_numbers,
			title = excluded.title,
			dim = excluded.dim,
			vector = excluded.vector`
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if replace {
			r.DocID = docID
		}
		pages, err := json.Marshal(nonNilPages(r.Metadata.PageNumbers))
		if err != nil {
			return fmt.Errorf("marshalling page numbers: %w", err)
		}
		seq++
		if _, err := stmt.ExecContext(ctx, r.ID, r.DocID, r.ChunkIndex, seq, r.Text,
			r.Metadata.Filename, string(pages), r.Metadata.Title, len(r.Vector), float32SliceToBytes(r.Vector)); err != nil {
			return fmt.Errorf("saving record %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	if dim == 0 {
		return s.refreshDimension(ctx)
	}
	s.dim.Store(int64(dim))
	return nil
}

func (s *SQLite) DeleteDocument(ctx context.Context, docID string) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE doc_id = ?", docID)
	if err != nil {
		return 0, fmt.Errorf("deleting document %s: %w", docID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if err := s.refreshDimension(ctx); err != nil {
		return int(n), err
	}
	return int(n), nil
}

func (s *SQLite) Search(ctx context.Context, vector []float32, k int) ([]Result, error) {
	dim := s.Dimension()
	if dim == 0 {
		return []Result{}, nil
	}
	if len(vector) != dim {
		return nil, ragerr.SpaceMismatch("sqlite search", dim, len(vector))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, doc_id, chunk_index, seq, text, filename, page_numbers, title, vector
		FROM records ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var cands []scored
	for rows.Next() {
		var (
			r     Record
			seq   int64
			pages string
			blob  []byte
		)
		if err := rows.Scan(&r.ID, &r.DocID, &r.ChunkIndex, &seq, &r.Text,
			&r.Metadata.Filename, &pages, &r.Metadata.Title, &blob); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		if err := json.Unmarshal([]byte(pages), &r.Metadata.PageNumbers); err != nil {
			return nil, fmt.Errorf("decoding page numbers of %s: %w", r.ID, err)
		}
		r.Metadata.PageNumbers = nonNilPages(r.Metadata.PageNumbers)
		r.Vector = bytesToFloat32Slice(blob)
		cands = append(cands, scored{res: Result{Record: r, Score: Cosine(vector, r.Vector)}, seq: seq})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return topK(cands, k), nil
}

func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return n, nil
}

func (s *SQLite) Documents(ctx context.Context) ([]DocumentInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, MIN(filename), COUNT(*)
		FROM records GROUP BY doc_id ORDER BY MIN(seq)`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	out := []DocumentInfo{}
	for rows.Next() {
		var d DocumentInfo
		if err := rows.Scan(&d.DocID, &d.Filename, &d.Chunks); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func nonNilPages(p []int) []int {
	if p == nil {
		return []int{}
	}
	return p
}

func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToFloat32Slice(data []byte) []float32 {
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
