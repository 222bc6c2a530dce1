// Package vectorstore persists embedded filing chunks in SQLite and serves
// cosine nearest-neighbour queries through sqlite-vec.
package vectorstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

var (
	ErrDimensionMismatch = errors.New("vectorstore: embedding dimension mismatch")
	ErrLengthMismatch    = errors.New("vectorstore: ids, texts, embeddings and metadata differ in length")
	ErrUnknownField      = errors.New("vectorstore: filter field not allowed")
)

// Metadata is the per-record attribute set. Keys listed in Fields are also
// stored as columns so they can be filtered on.
type Metadata map[string]any

// Record is one query hit.
type Record struct {
	ID       string
	Document string
	Metadata Metadata
	Distance float64
}

// Store wraps the SQLite database holding embedded documents.
type Store struct {
	db  *sql.DB
	dim int
}

// Open opens (or creates) the store at path. The first open fixes the
// embedding dimension; reopening with a different one fails.
func Open(path string, dim int) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("open store: %w: dimension %d", ErrDimensionMismatch, dim)
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, dim: dim}
	if err := s.checkDim(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Dim returns the embedding dimension the store was created with.
func (s *Store) Dim() int {
	return s.dim
}

func (s *Store) checkDim(ctx context.Context) error {
	var stored string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE key = 'embedding_dim'`).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.ExecContext(ctx, `INSERT INTO store_meta (key, value) VALUES ('embedding_dim', ?)`, strconv.Itoa(s.dim))
		if err != nil {
			return fmt.Errorf("recording embedding dimension: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("reading embedding dimension: %w", err)
	}
	if stored != strconv.Itoa(s.dim) {
		return fmt.Errorf("%w: store has %s, configured %d", ErrDimensionMismatch, stored, s.dim)
	}
	return nil
}

// Upsert writes records in one transaction, replacing any with the same id.
func (s *Store) Upsert(ctx context.Context, ids, texts []string, embeddings [][]float32, metas []Metadata) error {
	if len(texts) != len(ids) || len(embeddings) != len(ids) || len(metas) != len(ids) {
		return ErrLengthMismatch
	}
	for i, e := range embeddings {
		if len(e) != s.dim {
			return fmt.Errorf("%w: record %s has %d, want %d", ErrDimensionMismatch, ids[i], len(e), s.dim)
		}
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertSQL)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, id := range ids {
			meta, err := json.Marshal(metas[i])
			if err != nil {
				return fmt.Errorf("encoding metadata for %s: %w", id, err)
			}
			args := []any{id, texts[i], string(meta), column(metas[i], "accession")}
			for _, f := range Fields {
				args = append(args, column(metas[i], f))
			}
			args = append(args, serializeFloat32(embeddings[i]))
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("upserting %s: %w", id, err)
			}
		}
		return nil
	})
}

// Query returns up to topK records nearest to embedding by cosine distance,
// restricted by where.
func (s *Store) Query(ctx context.Context, embedding []float32, topK int, where Where) ([]Record, error) {
	if len(embedding) != s.dim {
		return nil, fmt.Errorf("%w: query has %d, want %d", ErrDimensionMismatch, len(embedding), s.dim)
	}
	clause, whereArgs, err := where.sql()
	if err != nil {
		return nil, err
	}

	q := `SELECT id, document, metadata, vec_distance_cosine(embedding, ?) AS distance FROM documents`
	if clause != "" {
		q += " WHERE " + clause
	}
	q += " ORDER BY distance LIMIT ?"

	args := append([]any{serializeFloat32(embedding)}, whereArgs...)
	args = append(args, topK)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying store: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r    Record
			meta string
		)
		if err := rows.Scan(&r.ID, &r.Document, &meta, &r.Distance); err != nil {
			return nil, err
		}
		if r.Metadata, err = decodeMetadata(meta); err != nil {
			return nil, fmt.Errorf("decoding metadata for %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// HasAccession reports whether any record from the filing is stored.
func (s *Store) HasAccession(ctx context.Context, accession string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE accession = ?`, accession).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking accession: %w", err)
	}
	return n > 0, nil
}

// DeleteAccession removes every record from the filing.
func (s *Store) DeleteAccession(ctx context.Context, accession string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE accession = ?`, accession)
	if err != nil {
		return 0, fmt.Errorf("deleting accession: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, err
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func column(m Metadata, key string) any {
	v, ok := m[key]
	if !ok {
		return nil
	}
	return v
}

func decodeMetadata(raw string) (Metadata, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var m Metadata
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
