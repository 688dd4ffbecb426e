package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresDocumentStore implements DocumentStore over a PostgreSQL
// jsonb table. Each collection's rows live in the documents table
// keyed by (collection, id).
type PostgresDocumentStore struct {
	mu      sync.RWMutex
	pool    *pgxpool.Pool
	connStr string
	healthy atomic.Bool
	logger  *zap.Logger
}

// NewPostgresDocumentStore creates the store and verifies the
// connection.
func NewPostgresDocumentStore(
	host string,
	port int,
	database, user, password string,
	maxConns, minConns int,
	logger *zap.Logger,
) (*PostgresDocumentStore, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s pool_max_conns=%d pool_min_conns=%d",
		host, port, database, user, password, maxConns, minConns,
	)

	s := &PostgresDocumentStore{
		connStr: connStr,
		logger:  logger,
	}

	if err := s.Reconnect(context.Background()); err != nil {
		return nil, err
	}

	return s, nil
}

// Create inserts a new document and returns its store-assigned id.
func (s *PostgresDocumentStore) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to marshal fields: %w", err)
	}

	id := uuid.New().String()

	query := `INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3)`
	if _, err := s.getPool().Exec(ctx, query, collection, id, data); err != nil {
		return "", err
	}

	return id, nil
}

// GetByID retrieves a document, returning ErrNotFound when absent.
func (s *PostgresDocumentStore) GetByID(ctx context.Context, collection, id string) (map[string]any, error) {
	query := `SELECT data FROM documents WHERE collection = $1 AND id = $2`

	var raw []byte
	err := s.getPool().QueryRow(ctx, query, collection, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}

	return data, nil
}

// Update merges the given fields into an existing document.
func (s *PostgresDocumentStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}

	query := `UPDATE documents SET data = data || $3 WHERE collection = $1 AND id = $2`
	result, err := s.getPool().Exec(ctx, query, collection, id, data)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes a document.
func (s *PostgresDocumentStore) Delete(ctx context.Context, collection, id string) error {
	query := `DELETE FROM documents WHERE collection = $1 AND id = $2`
	result, err := s.getPool().Exec(ctx, query, collection, id)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// QueryAll retrieves every document in a collection.
func (s *PostgresDocumentStore) QueryAll(ctx context.Context, collection string) ([]Record, error) {
	query := `SELECT id, data FROM documents WHERE collection = $1 ORDER BY created_at`

	rows, err := s.getPool().Query(ctx, query, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}

		var data map[string]any
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal document %s: %w", id, err)
		}

		records = append(records, Record{ID: id, Data: data})
	}

	return records, rows.Err()
}

// QueryProjected retrieves only the named fields of every document in
// a collection. Extraction happens in SQL so full documents are never
// transferred.
func (s *PostgresDocumentStore) QueryProjected(ctx context.Context, collection string, fields []string) ([]map[string]any, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("projection requires at least one field")
	}

	cols := make([]string, len(fields))
	for i, f := range fields {
		// Field names come from code constants, not user input.
		cols[i] = fmt.Sprintf("data->>'%s'", f)
	}

	query := fmt.Sprintf(
		`SELECT %s FROM documents WHERE collection = $1`,
		strings.Join(cols, ", "),
	)

	rows, err := s.getPool().Query(ctx, query, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []map[string]any
	for rows.Next() {
		values := make([]*string, len(fields))
		dest := make([]any, len(fields))
		for i := range values {
			dest[i] = &values[i]
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		projected := make(map[string]any, len(fields))
		for i, f := range fields {
			if values[i] != nil {
				projected[f] = *values[i]
			}
		}
		results = append(results, projected)
	}

	return results, rows.Err()
}

// Ping probes the database. A failed probe clears the adapter's
// health flag; the supervisor reconnects on its next tick.
func (s *PostgresDocumentStore) Ping(ctx context.Context) error {
	if err := s.getPool().Ping(ctx); err != nil {
		s.healthy.Store(false)
		return err
	}
	return nil
}

// Healthy reports the adapter's own health flag.
func (s *PostgresDocumentStore) Healthy() bool {
	return s.healthy.Load()
}

// Reconnect rebuilds the connection pool. Safe to call on an
// already-connected store.
func (s *PostgresDocumentStore) Reconnect(ctx context.Context) error {
	cfg, err := pgxpool.ParseConfig(s.connStr)
	if err != nil {
		return fmt.Errorf("failed to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.mu.Lock()
	old := s.pool
	s.pool = pool
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}

	s.healthy.Store(true)
	s.logger.Info("connected to PostgreSQL")
	return nil
}

// Close closes the connection pool.
func (s *PostgresDocumentStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresDocumentStore) getPool() *pgxpool.Pool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pool
}
