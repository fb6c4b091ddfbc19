package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Store is the narrow durable-storage contract: exact-match reads, inserts
// with storage-assigned ids, last-writer-wins updates, and deletes. The
// trading core never needs anything richer than this.
type Store interface {
	Read(ctx context.Context, collection string, filter Filter) ([]Record, error)
	Write(ctx context.Context, collection string, records []Record) ([]string, error)
	Update(ctx context.Context, collection string, record Record, filter Filter) error
	Delete(ctx context.Context, collection string, filter Filter) error
	Close() error
}

// Filter is an exact-match conjunction over the named record fields.
// Supported keys: "id", "owner_id".
type Filter map[string]string

// Record is one stored document. Data carries the collection-specific
// payload as JSON.
type Record struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// DecodeData unmarshals the record payload into v.
func (r Record) DecodeData(v any) error {
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("decode record %s: %w", r.ID, err)
	}
	return nil
}

type SQLiteStore struct {
	db *sql.DB
}

func Open(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=3000;",
		"PRAGMA synchronous=NORMAL;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", p, err)
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS records (
    collection TEXT NOT NULL,
    id TEXT NOT NULL,
    owner_id TEXT NOT NULL DEFAULT '',
    data TEXT NOT NULL DEFAULT '{}',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (collection, id)
);

CREATE INDEX IF NOT EXISTS idx_records_owner ON records(collection, owner_id);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func whereClause(filter Filter) (string, []any, error) {
	clauses := []string{"collection = ?"}
	var args []any
	for key, val := range filter {
		switch key {
		case "id":
			clauses = append(clauses, "id = ?")
			args = append(args, val)
		case "owner_id":
			clauses = append(clauses, "owner_id = ?")
			args = append(args, val)
		default:
			return "", nil, fmt.Errorf("unsupported filter field %q", key)
		}
	}
	return strings.Join(clauses, " AND "), args, nil
}

func (s *SQLiteStore) Read(ctx context.Context, collection string, filter Filter) ([]Record, error) {
	where, filterArgs, err := whereClause(filter)
	if err != nil {
		return nil, err
	}
	args := append([]any{collection}, filterArgs...)

	rows, err := s.db.QueryContext(ctx, `
SELECT id, owner_id, data, created_at, updated_at
FROM records
WHERE `+where+`
ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", collection, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec  Record
			data string
		)
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &data, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan %s record: %w", collection, err)
		}
		rec.Data = json.RawMessage(data)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", collection, err)
	}
	return records, nil
}

func (s *SQLiteStore) Write(ctx context.Context, collection string, records []Record) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin write: %w", err)
	}
	defer tx.Rollback()

	ids := make([]string, 0, len(records))
	now := time.Now().UTC()
	for _, rec := range records {
		id := rec.ID
		if id == "" {
			id = uuid.New().String()
		}
		data := rec.Data
		if len(data) == 0 {
			data = json.RawMessage("{}")
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO records (collection, id, owner_id, data, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)`,
			collection, id, rec.OwnerID, string(data), now, now); err != nil {
			return nil, fmt.Errorf("write %s record: %w", collection, err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit write: %w", err)
	}
	return ids, nil
}

func (s *SQLiteStore) Update(ctx context.Context, collection string, record Record, filter Filter) error {
	where, filterArgs, err := whereClause(filter)
	if err != nil {
		return err
	}
	args := append([]any{string(record.Data), record.OwnerID, time.Now().UTC(), collection}, filterArgs...)

	if _, err := s.db.ExecContext(ctx, `
UPDATE records SET data = ?, owner_id = ?, updated_at = ?
WHERE `+where, args...); err != nil {
		return fmt.Errorf("update %s: %w", collection, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, collection string, filter Filter) error {
	where, filterArgs, err := whereClause(filter)
	if err != nil {
		return err
	}
	args := append([]any{collection}, filterArgs...)

	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE `+where, args...); err != nil {
		return fmt.Errorf("delete %s: %w", collection, err)
	}
	return nil
}
