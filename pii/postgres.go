package pii

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host         string
	Port         int
	Database     string
	Username     string
	Password     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// PostgresMappingDB implements MappingDB for PostgreSQL
type PostgresMappingDB struct {
	db *sql.DB
}

// NewPostgresMappingDB creates a new PostgreSQL mapping database
func NewPostgresMappingDB(config PostgresConfig) (*PostgresMappingDB, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.Username, config.Password, config.Database, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.MaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := createPostgresTable(db); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &PostgresMappingDB{db: db}, nil
}

// createPostgresTable creates the entity_mappings table if it doesn't exist
func createPostgresTable(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS entity_mappings (
		id SERIAL PRIMARY KEY,
		token VARCHAR(500) NOT NULL UNIQUE,
		original_text VARCHAR(500) NOT NULL,
		normalized_text VARCHAR(500) NOT NULL,
		entity_type VARCHAR(100) NOT NULL,
		first_seen_context TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		last_accessed_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		access_count INTEGER DEFAULT 1,
		UNIQUE (normalized_text, entity_type)
	);

	-- Create indexes for better performance
	CREATE INDEX IF NOT EXISTS idx_entity_mappings_token ON entity_mappings(token);
	CREATE INDEX IF NOT EXISTS idx_entity_mappings_identity ON entity_mappings(normalized_text, entity_type);
	CREATE INDEX IF NOT EXISTS idx_entity_mappings_created_at ON entity_mappings(created_at);
	CREATE INDEX IF NOT EXISTS idx_entity_mappings_entity_type ON entity_mappings(entity_type);
	`

	_, err := db.Exec(query)
	return err
}

// StoreMapping upserts a mapping entry keyed by its identity
func (p *PostgresMappingDB) StoreMapping(ctx context.Context, entry MappingEntry) error {
	id := IdentityOf(entry.Original, entry.Label)
	query := `
	INSERT INTO entity_mappings (token, original_text, normalized_text, entity_type, first_seen_context, created_at, last_accessed_at, access_count)
	VALUES ($1, $2, $3, $4, $5, NOW(), NOW(), 1)
	ON CONFLICT (normalized_text, entity_type)
	DO UPDATE SET
		last_accessed_at = NOW(),
		access_count = entity_mappings.access_count + 1
	`

	_, err := p.db.ExecContext(ctx, query, entry.Token, entry.Original, id.Norm, entry.Label, entry.FirstSeenContext)
	return err
}

// GetToken retrieves the substitute token for a normalized identity
func (p *PostgresMappingDB) GetToken(ctx context.Context, norm, label string) (string, bool, error) {
	query := `
	SELECT token FROM entity_mappings
	WHERE normalized_text = $1 AND entity_type = $2
	`

	var token string
	err := p.db.QueryRowContext(ctx, query, norm, label).Scan(&token)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}

	p.touch(ctx, token)
	return token, true, nil
}

// GetEntry retrieves the entry for a substitute token
func (p *PostgresMappingDB) GetEntry(ctx context.Context, token string) (MappingEntry, bool, error) {
	query := `
	SELECT token, original_text, entity_type, first_seen_context FROM entity_mappings
	WHERE token = $1
	`

	var entry MappingEntry
	err := p.db.QueryRowContext(ctx, query, token).Scan(&entry.Token, &entry.Original, &entry.Label, &entry.FirstSeenContext)
	if err != nil {
		if err == sql.ErrNoRows {
			return MappingEntry{}, false, nil
		}
		return MappingEntry{}, false, err
	}

	p.touch(ctx, token)
	return entry, true, nil
}

// touch updates access statistics for a token
func (p *PostgresMappingDB) touch(ctx context.Context, token string) {
	query := `
	UPDATE entity_mappings
	SET last_accessed_at = NOW(), access_count = access_count + 1
	WHERE token = $1
	`
	p.db.ExecContext(ctx, query, token) // Don't fail if this fails
}

// LoadAll retrieves the full correspondence table
func (p *PostgresMappingDB) LoadAll(ctx context.Context) ([]MappingEntry, error) {
	rows, err := p.db.QueryContext(ctx,
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
func (p *PostgresMappingDB) DeleteMapping(ctx context.Context, token string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM entity_mappings WHERE token = $1`, token)
	return err
}

// CleanupOldMappings removes entries older than the given duration
func (p *PostgresMappingDB) CleanupOldMappings(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `DELETE FROM entity_mappings WHERE created_at < NOW() - $1::interval`
	interval := fmt.Sprintf("%d seconds", int(olderThan.Seconds()))

	result, err := p.db.ExecContext(ctx, query, interval)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// ClearMappings removes all entries from the database
func (p *PostgresMappingDB) ClearMappings(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM entity_mappings`)
	if err != nil {
		return fmt.Errorf("failed to clear mappings: %w", err)
	}
	return nil
}

// GetMappingsCount returns the total number of entries
func (p *PostgresMappingDB) GetMappingsCount(ctx context.Context) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entity_mappings`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get mappings count: %w", err)
	}
	return count, nil
}

// Close closes the database connection
func (p *PostgresMappingDB) Close() error {
	return p.db.Close()
}
