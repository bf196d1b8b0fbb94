// Package store persists endpoint snapshots to SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/conduit-lang/wsmodel/internal/metamodel/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS endpoints (
	id TEXT PRIMARY KEY,
	metamodel TEXT NOT NULL,
	revision INTEGER NOT NULL,
	verb TEXT NOT NULL,
	path TEXT NOT NULL,
	template TEXT NOT NULL,
	resource_method TEXT NOT NULL,
	data TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_endpoints_path ON endpoints (path, verb);
`

const upsertEndpoint = `INSERT OR REPLACE INTO endpoints
	(id, metamodel, revision, verb, path, template, resource_method, data, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Record is a stored endpoint. Data holds the full JSON representation.
type Record struct {
	ID             string
	Metamodel      string
	Revision       int
	Verb           string
	Path           string
	Template       string
	ResourceMethod string
	Data           json.RawMessage
	UpdatedAt      time.Time
}

// Store writes endpoints to a SQLite database.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// Open opens or creates the database file at path.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	s, err := New(ctx, db, logger)
	if err != nil {
		return nil, multierr.Append(err, db.Close())
	}
	return s, nil
}

// New creates a store on an open database and creates the schema.
func New(ctx context.Context, db *sql.DB, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	// SQLite has a single writer and each :memory: connection is its own database
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create endpoints table: %w", err)
	}
	return &Store{db: db, logger: logger.Named("store"), now: time.Now}, nil
}

// SaveSnapshot replaces the stored endpoints with the given ones.
func (s *Store) SaveSnapshot(ctx context.Context, metamodel string, endpoints []*domain.Endpoint) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM endpoints"); err != nil {
			return fmt.Errorf("failed to clear endpoints: %w", err)
		}
		for _, e := range endpoints {
			if err := s.upsert(ctx, tx, metamodel, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// Apply writes the given events: added and changed endpoints are upserted,
// removed ones deleted.
func (s *Store) Apply(ctx context.Context, metamodel string, events []domain.EndpointEvent) error {
	if len(events) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, ev := range events {
			if ev.Kind == domain.EndpointRemoved {
				if _, err := tx.ExecContext(ctx, "DELETE FROM endpoints WHERE id = ?", ev.Endpoint.ID.String()); err != nil {
					return fmt.Errorf("failed to delete endpoint %s: %w", ev.Endpoint.ID, err)
				}
				continue
			}
			if err := s.upsert(ctx, tx, metamodel, ev.Endpoint); err != nil {
				return err
			}
		}
		return nil
	})
}

// Listener returns an EndpointListener writing the events of metamodel m.
// Failures are logged.
func (s *Store) Listener(m *domain.Metamodel) domain.EndpointListener {
	id := m.ID().String()
	return domain.EndpointListenerFunc(func(ctx context.Context, events []domain.EndpointEvent) {
		if err := s.Apply(ctx, id, events); err != nil {
			s.logger.Error("failed to store endpoint events", zap.Int("events", len(events)), zap.Error(err))
		}
	})
}

// Endpoints returns the stored endpoints ordered by path and verb.
func (s *Store) Endpoints(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, metamodel, revision, verb, path, template, resource_method, data, updated_at
		FROM endpoints
		ORDER BY path, verb, id
	`)
	if err != nil {
		return nil, fmt.Errorf("database query error: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var data string
		if err := rows.Scan(&r.ID, &r.Metamodel, &r.Revision, &r.Verb, &r.Path, &r.Template, &r.ResourceMethod, &data, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan endpoint: %w", err)
		}
		r.Data = json.RawMessage(data)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) upsert(ctx context.Context, tx *sql.Tx, metamodel string, e *domain.Endpoint) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal endpoint %s: %w", e.ID, err)
	}
	_, err = tx.ExecContext(ctx, upsertEndpoint,
		e.ID.String(), metamodel, e.Revision, e.Verb, e.PathTemplate,
		e.DisplayTemplate(), e.ResourceMethod().String(), string(data), s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to store endpoint %s: %w", e.ID, err)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		return multierr.Append(err, tx.Rollback())
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}
