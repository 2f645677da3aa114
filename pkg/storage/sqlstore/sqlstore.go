// Package sqlstore implements storage.MetadataStorage over database/sql for
// SQLite (modernc.org/sqlite) and PostgreSQL (pgx).
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/goclaw/agentmemory/pkg/memory"
	"github.com/goclaw/agentmemory/pkg/storage"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "modernc.org/sqlite"             // SQLite driver
)

// Dialect selects driver-specific SQL.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

func (d Dialect) driverName() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite"
}

// placeholder returns the n-th (1-based) bind parameter.
func (d Dialect) placeholder(n int) string {
	if d == Postgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// containsExpr is a case-sensitive substring test on column.
func (d Dialect) containsExpr(column string, n int) string {
	if d == Postgres {
		return fmt.Sprintf("strpos(%s, %s) > 0", column, d.placeholder(n))
	}
	return fmt.Sprintf("instr(%s, %s) > 0", column, d.placeholder(n))
}

// Config holds connection settings.
type Config struct {
	Dialect Dialect
	// DSN is a file path for SQLite or a connection string for PostgreSQL.
	DSN          string
	MaxOpenConns int
}

// Store is a SQL-backed metadata store.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

var _ storage.MetadataStorage = (*Store)(nil)

// Open connects, applies pragmas and creates the schema if missing.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	backend := string(cfg.Dialect)
	if cfg.Dialect != SQLite && cfg.Dialect != Postgres {
		return nil, storage.ConfigError("sql", "open", fmt.Errorf("unsupported dialect %q", cfg.Dialect))
	}
	if cfg.DSN == "" {
		return nil, storage.ConfigError(backend, "open", errors.New("dsn is required"))
	}

	db, err := sql.Open(cfg.Dialect.driverName(), cfg.DSN)
	if err != nil {
		return nil, storage.ConnectionError(backend, "open", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.Dialect == SQLite {
		// One writer at a time avoids SQLITE_BUSY under concurrent stores.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, storage.ConnectionError(backend, "open", fmt.Errorf("set WAL mode: %w", err))
		}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, storage.ConnectionError(backend, "ping", err)
	}

	s := &Store{db: db, dialect: cfg.Dialect}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema(s.dialect) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return storage.DatabaseError(string(s.dialect), "migrate", err)
		}
	}
	return nil
}

func schema(d Dialect) []string {
	tsType := "INTEGER"
	relType := "REAL"
	if d == Postgres {
		tsType = "BIGINT"
		relType = "DOUBLE PRECISION"
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS memory_entries (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			timestamp ` + tsType + ` NOT NULL,
			memory_type TEXT NOT NULL,
			relevance_score ` + relType + `,
			user_id TEXT NOT NULL DEFAULT '',
			agent_id TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_entries_type ON memory_entries (memory_type)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_entries_user ON memory_entries (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_entries_timestamp ON memory_entries (timestamp)`,
	}
}

const selectColumns = `SELECT id, content, metadata, timestamp, memory_type, relevance_score FROM memory_entries`

// StoreMetadata upserts an entry.
func (s *Store) StoreMetadata(ctx context.Context, entry *memory.MemoryEntry) error {
	if entry == nil || entry.ID == "" {
		return storage.DatabaseError(string(s.dialect), "store", memory.ErrInvalidEntryID)
	}
	meta := entry.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return storage.SerializationError(string(s.dialect), "store", err)
	}

	var relevance sql.NullFloat64
	if entry.RelevanceScore != nil {
		relevance = sql.NullFloat64{Float64: *entry.RelevanceScore, Valid: true}
	}

	p := s.dialect.placeholder
	query := fmt.Sprintf(`INSERT INTO memory_entries
		(id, content, metadata, timestamp, memory_type, relevance_score, user_id, agent_id)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s)
		ON CONFLICT (id) DO UPDATE SET
			content = excluded.content,
			metadata = excluded.metadata,
			timestamp = excluded.timestamp,
			memory_type = excluded.memory_type,
			relevance_score = excluded.relevance_score,
			user_id = excluded.user_id,
			agent_id = excluded.agent_id`,
		p(1), p(2), p(3), p(4), p(5), p(6), p(7), p(8))

	_, err = s.db.ExecContext(ctx, query,
		entry.ID,
		entry.Content,
		string(metaJSON),
		entry.Timestamp.UnixNano(),
		string(entry.MemoryType),
		relevance,
		entry.UserID(),
		entry.AgentID(),
	)
	if err != nil {
		return storage.DatabaseError(string(s.dialect), "store", err)
	}
	return nil
}

// GetMetadata fetches one entry.
func (s *Store) GetMetadata(ctx context.Context, id string) (*memory.MemoryEntry, bool, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" WHERE id = "+s.dialect.placeholder(1), id)
	entry, err := s.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

// UpdateMetadata replaces an entry.
func (s *Store) UpdateMetadata(ctx context.Context, entry *memory.MemoryEntry) error {
	return s.StoreMetadata(ctx, entry)
}

// DeleteMetadata removes an entry.
func (s *Store) DeleteMetadata(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM memory_entries WHERE id = "+s.dialect.placeholder(1), id)
	if err != nil {
		return storage.DatabaseError(string(s.dialect), "delete", err)
	}
	return nil
}

// ListByType lists entries of one kind, newest first.
func (s *Store) ListByType(ctx context.Context, memoryType memory.MemoryType, limit int) ([]*memory.MemoryEntry, error) {
	return s.list(ctx, "memory_type = "+s.dialect.placeholder(1), string(memoryType), limit)
}

// ListByUser lists entries owned by userID, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]*memory.MemoryEntry, error) {
	return s.list(ctx, "user_id = "+s.dialect.placeholder(1), userID, limit)
}

// SearchMetadata returns entries whose content contains query.
func (s *Store) SearchMetadata(ctx context.Context, query string, limit int) ([]*memory.MemoryEntry, error) {
	return s.list(ctx, s.dialect.containsExpr("content", 1), query, limit)
}

func (s *Store) list(ctx context.Context, where string, arg any, limit int) ([]*memory.MemoryEntry, error) {
	if limit <= 0 {
		return []*memory.MemoryEntry{}, nil
	}
	query := fmt.Sprintf("%s WHERE %s ORDER BY timestamp DESC, id ASC LIMIT %s",
		selectColumns, where, s.dialect.placeholder(2))

	rows, err := s.db.QueryContext(ctx, query, arg, limit)
	if err != nil {
		return nil, storage.DatabaseError(string(s.dialect), "list", err)
	}
	defer rows.Close()

	entries := []*memory.MemoryEntry{}
	for rows.Next() {
		entry, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.DatabaseError(string(s.dialect), "list", err)
	}
	return entries, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scan(row scanner) (*memory.MemoryEntry, error) {
	var (
		entry     memory.MemoryEntry
		metaJSON  string
		ts        int64
		memType   string
		relevance sql.NullFloat64
	)
	if err := row.Scan(&entry.ID, &entry.Content, &metaJSON, &ts, &memType, &relevance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, storage.DatabaseError(string(s.dialect), "scan", err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &entry.Metadata); err != nil {
		return nil, storage.SerializationError(string(s.dialect), "scan", err)
	}
	entry.Timestamp = time.Unix(0, ts).UTC()
	entry.MemoryType = memory.MemoryType(memType)
	if relevance.Valid {
		entry.SetRelevance(relevance.Float64)
	}
	return &entry, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

