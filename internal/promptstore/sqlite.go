// Package promptstore persists per-object visual prompts: metadata, reference
// image, and an opaque embedding artifact, under one directory per memory id.
package promptstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aisight/mitsuke/internal/models"
)

// memoryIndex mirrors visual prompt metadata into SQLite so memories can be
// looked up by object name without scanning the directory tree. The embedding
// artifact itself is never stored here.
type memoryIndex struct {
	db *sql.DB
}

// newMemoryIndex opens or creates the index database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
func newMemoryIndex(dbPath string) (*memoryIndex, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		memory_id TEXT PRIMARY KEY,
		object_name TEXT NOT NULL,
		metadata TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_memories_object_name ON memories(object_name);
	CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &memoryIndex{db: db}, nil
}

// insert mirrors a record's metadata. Records are immutable; an existing row
// for the same id is a programming error surfaced by the primary key.
func (x *memoryIndex) insert(ctx context.Context, rec *models.VisualPromptRecord) error {
	metadataJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	_, err = x.db.ExecContext(ctx,
		`INSERT INTO memories (memory_id, object_name, metadata, created_at)
		 VALUES (?, ?, ?, ?)`,
		rec.MemoryID, strings.ToLower(rec.ObjectName), string(metadataJSON), rec.CreatedAt,
	)
	return err
}

// get returns the mirrored record for id, or sql.ErrNoRows.
func (x *memoryIndex) get(ctx context.Context, id string) (*models.VisualPromptRecord, error) {
	var metadataJSON string
	err := x.db.QueryRowContext(ctx,
		`SELECT metadata FROM memories WHERE memory_id = ?`, id,
	).Scan(&metadataJSON)
	if err != nil {
		return nil, err
	}
	var rec models.VisualPromptRecord
	if err := json.Unmarshal([]byte(metadataJSON), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &rec, nil
}

// remove deletes the row for id, if present.
func (x *memoryIndex) remove(ctx context.Context, id string) error {
	_, err := x.db.ExecContext(ctx, `DELETE FROM memories WHERE memory_id = ?`, id)
	return err
}

// byName returns memory ids with the exact object name, most recent first.
func (x *memoryIndex) byName(ctx context.Context, name string) ([]string, error) {
	rows, err := x.db.QueryContext(ctx,
		`SELECT memory_id FROM memories WHERE object_name = ? ORDER BY created_at DESC`,
		strings.ToLower(name),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// orderByRecency re-orders the given ids by created_at descending. Unknown ids
// are dropped.
func (x *memoryIndex) orderByRecency(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := x.db.QueryContext(ctx,
		`SELECT memory_id FROM memories WHERE memory_id IN (`+placeholders+`) ORDER BY created_at DESC`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// allIDs returns every indexed memory id.
func (x *memoryIndex) allIDs(ctx context.Context) ([]string, error) {
	rows, err := x.db.QueryContext(ctx, `SELECT memory_id FROM memories`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// count returns the total number of indexed memories.
func (x *memoryIndex) count(ctx context.Context) (int64, error) {
	var n int64
	err := x.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n)
	return n, err
}

func (x *memoryIndex) close() error {
	return x.db.Close()
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
