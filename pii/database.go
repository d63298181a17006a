package pii

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DatabaseConfig holds database configuration for the SQLite backend
type DatabaseConfig struct {
	Path string // Path to SQLite database file
}

// MappingDB defines the interface for persistent mapping backends
type MappingDB interface {
	// StoreMapping upserts a mapping entry keyed by its identity
	StoreMapping(ctx context.Context, entry MappingEntry) error

	// GetToken retrieves the substitute token for a normalized identity
	GetToken(ctx context.Context, norm, label string) (string, bool, error)

	// GetEntry retrieves the entry for a substitute token
	GetEntry(ctx context.Context, token string) (MappingEntry, bool, error)

	// LoadAll retrieves the full correspondence table
	LoadAll(ctx context.Context) ([]MappingEntry, error)

	// DeleteMapping removes the entry for a substitute token
	DeleteMapping(ctx context.Context, token string) error

	// CleanupOldMappings removes entries older than the given duration
	CleanupOldMappings(ctx context.Context, olderThan time.Duration) (int64, error)

	// ClearMappings removes all entries
	ClearMappings(ctx context.Context) error

	// GetMappingsCount returns the total number of entries
	GetMappingsCount(ctx context.Context) (int, error)

	// Close closes the backend
	Close() error
}

// SQLiteMappingDB implements MappingDB for SQLite
type SQLiteMappingDB struct {
	db *sql.DB
}

// NewSQLiteMappingDB creates a new SQLite mapping database
func NewSQLiteMappingDB(ctx context.Context, config DatabaseConfig) (*SQLiteMappingDB, error) {
	dbPath := config.Path
	if dbPath == "" {
		dbPath = "anonydoc.db"
	}

	// Ensure the directory exists
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Open database connection with SQLite pragmas for performance
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// SQLite works best with a single writer connection
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := createSQLiteTables(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &SQLiteMappingDB{db: db}, nil
}

// createSQLiteTables creates the required tables if they don't exist
func createSQLiteTables(ctx context.Context, db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS entity_mappings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			token TEXT NOT NULL UNIQUE,
			original_text TEXT NOT NULL,
			normalized_text TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			first_seen_context TEXT NOT NULL DEFAULT '',
			created_at TEXT DEFAULT (datetime('now')),
			last_accessed_at TEXT DEFAULT (datetime('now')),
			access_count INTEGER DEFAULT 1,
			UNIQUE (normalized_text, entity_type)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entity_mappings_token ON entity_mappings(token)`,
		`CREATE INDEX IF NOT EXISTS idx_entity_mappings_identity ON entity_mappings(normalized_text, entity_type)`,
		`CREATE INDEX IF NOT EXISTS idx_entity_mappings_created_at ON entity_mappings(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_entity_mappings_entity_type ON entity_mappings(entity_type)`,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute: %s: %w", query, err)
		}
	}

	return nil
}

// StoreMapping upserts a mapping entry keyed by its identity
func (s *SQLiteMappingDB) StoreMapping(ctx context.Context, entry MappingEntry) error {
	id := IdentityOf(entry.Original, entry.Label)
	query := `
	INSERT INTO entity_mappings (token, original_text, normalized_text, entity_type, first_seen_context, created_at, last_accessed_at, access_count)
	VALUES (?, ?, ?, ?, ?, datetime('now'), datetime('now'), 1)
	ON CONFLICT (normalized_text, entity_type)
	DO UPDATE SET
		last_accessed_at = datetime('now'),
		access_count = entity_mappings.access_count + 1
	`

	_, err := s.db.ExecContext(ctx, query, entry.Token, entry.Original, id.Norm, entry.Label, entry.FirstSeenContext)
	return err
}

// GetToken retrieves the substitute token for a normalized identity
func (s *SQLiteMappingDB) GetToken(ctx context.Context, norm, label string) (string, bool, error) {
	var token string
	err := s.db.QueryRowContext(ctx,
		`SELECT token FROM entity_mappings WHERE normalized_text = ? AND entity_type = ?`,
		norm, label).Scan(&token)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}

	s.touch(ctx, token)
	return token, true, nil
}

// GetEntry retrieves the entry for a substitute token
func (s *SQLiteMappingDB) GetEntry(ctx context.Context, token string) (MappingEntry, bool, error) {
	var entry MappingEntry
	err := s.db.QueryRowContext(ctx,
		`SELECT token, original_text, entity_type, first_seen_context FROM entity_mappings WHERE token = ?`,
		token).Scan(&entry.Token, &entry.Original, &entry.Label, &entry.FirstSeenContext)
	if err != nil {
		if err == sql.ErrNoRows {
			return MappingEntry{}, false, nil
		}
		return MappingEntry{}, false, err
	}

	s.touch(ctx, token)
	return entry, true, nil
}

// touch updates access statistics for a token
func (s *SQLiteMappingDB) touch(ctx context.Context, token string) {
	query := `UPDATE entity_mappings SET last_accessed_at = datetime('now'), access_count = access_count + 1 WHERE token = ?`
	if _, err := s.db.ExecContext(ctx, query, token); err != nil {
		log.Printf("[SQLiteDB] Warning: failed to update access statistics: %v", err)
	}
}

// LoadAll retrieves the full correspondence table
func (s *SQLiteMappingDB) LoadAll(ctx context.Context) ([]MappingEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT token, original_text, entity_type, first_seen_context FROM entity_mappings`)
	if err != nil {
		return nil, fmt.Errorf("failed to query mappings: %w", err)
	}
	defer rows.Close()

	var entries []MappingEntry
	for rows.Next() {
		var entry MappingEntry
		if err := rows.Scan(&entry.Token, &entry.Original, &entry.Label, &entry.FirstSeenContext); err != nil {
			return nil, fmt.Errorf("failed to scan mapping row: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mapping rows: %w", err)
	}

	return entries, nil
}

// DeleteMapping removes the entry for a substitute token
func (s *SQLiteMappingDB) DeleteMapping(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM entity_mappings WHERE token = ?`, token)
	return err
}

// CleanupOldMappings removes entries older than the given duration
func (s *SQLiteMappingDB) CleanupOldMappings(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `DELETE FROM entity_mappings WHERE created_at < datetime('now', ?)`
	modifier := fmt.Sprintf("-%d seconds", int(olderThan.Seconds()))

	result, err := s.db.ExecContext(ctx, query, modifier)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// ClearMappings removes all entries from the database
func (s *SQLiteMappingDB) ClearMappings(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM entity_mappings`)
	if err != nil {
		return fmt.Errorf("failed to clear mappings: %w", err)
	}
	log.Println("[SQLiteDB] All entity mappings cleared")
	return nil
}

// GetMappingsCount returns the total number of entries
func (s *SQLiteMappingDB) GetMappingsCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entity_mappings`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get mappings count: %w", err)
	}
	return count, nil
}

// Close closes the database connection
func (s *SQLiteMappingDB) Close() error {
	return s.db.Close()
}
