package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	_ "embed"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/promptab/promptab/core/embedder"
)

//go:embed schema.sql
var schemaSQL string

// Store persists knowledge records in SQLite. WAL mode keeps readers
// unblocked while reindex batches commit.
type Store struct {
	db *sql.DB

	// epoch increments on every mutation; the query cache keys on it so
	// stale results are never served after a write.
	epoch atomic.Uint64
}

func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Epoch returns the current mutation epoch.
func (s *Store) Epoch() uint64 {
	return s.epoch.Load()
}

// Upsert inserts or replaces a record. The embedding is written in the same
// statement as the rest of the row, so a reader can never observe a record
// without its vector.
func (s *Store) Upsert(ctx context.Context, rec *KnowledgeRecord) (uuid.UUID, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO knowledge_records (id, title, content, category, embedding, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			category = excluded.category,
			embedding = excluded.embedding,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`,
		rec.ID.String(), rec.Title, rec.Content, nullableString(rec.Category),
		embedder.EncodeVector(rec.Embedding), string(meta), rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upsert record: %w", err)
	}

	s.epoch.Add(1)
	return rec.ID, nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*KnowledgeRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, content, category, embedding, metadata, created_at, updated_at
		FROM knowledge_records WHERE id = ?`, id.String())

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("record %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge_records`).Scan(&n)
	return n, err
}

// All streams every record in insertion order. Candidates for ranking come
// through here; insertion order is what makes similarity ties stable.
func (s *Store) All(ctx context.Context, category string) ([]KnowledgeRecord, error) {
	query := `
		SELECT id, title, content, category, embedding, metadata, created_at, updated_at
		FROM knowledge_records`
	args := []any{}
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []KnowledgeRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// ListBatch returns up to limit records starting at offset, in insertion
// order. ReindexAll uses it to walk the table in bounded windows.
func (s *Store) ListBatch(ctx context.Context, offset, limit int) ([]KnowledgeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content, category, embedding, metadata, created_at, updated_at
		FROM knowledge_records ORDER BY rowid LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list batch: %w", err)
	}
	defer rows.Close()

	var records []KnowledgeRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// UpdateEmbeddings replaces the vectors for a batch of records inside one
// transaction. Each vector is swapped with a single UPDATE, so a concurrent
// reader sees either the old or the new vector, never a partial one.
func (s *Store) UpdateEmbeddings(ctx context.Context, ids []uuid.UUID, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids/vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reindex batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE knowledge_records SET embedding = ?, updated_at = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("prepare update: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, id := range ids {
		if _, err := stmt.ExecContext(ctx, embedder.EncodeVector(vectors[i]), now, id.String()); err != nil {
			return fmt.Errorf("update embedding %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reindex batch: %w", err)
	}

	s.epoch.Add(1)
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*KnowledgeRecord, error) {
	var (
		idStr    string
		category sql.NullString
		blob     []byte
		metaJSON string
		rec      KnowledgeRecord
	)
	if err := row.Scan(&idStr, &rec.Title, &rec.Content, &category, &blob, &metaJSON, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse record id: %w", err)
	}
	rec.ID = id
	rec.Category = category.String

	rec.Embedding, err = embedder.DecodeVector(blob)
	if err != nil {
		return nil, fmt.Errorf("decode embedding for %s: %w", idStr, err)
	}

	if err := json.Unmarshal([]byte(metaJSON), &rec.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata for %s: %w", idStr, err)
	}
	return &rec, nil
}
